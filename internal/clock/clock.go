// Package clock abstracts time for components that stamp observations.
package clock

import "time"

// Clock supplies the current time so sweeps and stores stay testable.
type Clock interface {
	Now() time.Time
}

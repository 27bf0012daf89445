// Package screenshot captures page images for tracked resources.
package screenshot

import "context"

// Capturer renders a URL and returns image bytes.
type Capturer interface {
	Capture(ctx context.Context, url string) ([]byte, error)
}

// Disabled is the Capturer used when screenshot capture is turned off.
type Disabled struct{}

// Capture returns no image.
func (Disabled) Capture(context.Context, string) ([]byte, error) {
	return nil, nil
}

// Package feed distributes resource feed events to in-process subscribers
// and optional external sinks.
package feed

import (
	"context"

	"github.com/resourcewatch/resourcewatch/internal/registry"
)

// Publisher accepts feed events as they happen. Implementations must be safe
// for concurrent use and must not block event producers.
type Publisher interface {
	Publish(ctx context.Context, ev registry.FeedEvent) error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher by doing nothing.
func (Nop) Publish(context.Context, registry.FeedEvent) error { return nil }

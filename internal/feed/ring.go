package feed

import (
	"context"
	"sync"

	"github.com/resourcewatch/resourcewatch/internal/registry"
)

const defaultCapacity = 256

// Ring is a bounded in-process event buffer with fan-out. Once full, each
// published event overwrites the oldest one. Subscribers receive events on
// buffered channels; a subscriber that falls behind misses events rather
// than blocking publishers.
type Ring struct {
	mu      sync.Mutex
	buf     []registry.FeedEvent
	start   int
	count   int
	subs    map[int]chan registry.FeedEvent
	nextSub int
}

// NewRing creates a Ring holding up to capacity events.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Ring{
		buf:  make([]registry.FeedEvent, capacity),
		subs: make(map[int]chan registry.FeedEvent),
	}
}

// Publish appends the event and fans it out without blocking.
func (r *Ring) Publish(_ context.Context, ev registry.FeedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := (r.start + r.count) % len(r.buf)
	r.buf[idx] = ev
	if r.count < len(r.buf) {
		r.count++
	} else {
		r.start = (r.start + 1) % len(r.buf)
	}

	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Recent returns up to n buffered events, newest first.
func (r *Ring) Recent(n int) []registry.FeedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]registry.FeedEvent, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.start + r.count - 1 - i) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// Subscribe registers a listener with the given channel buffer. The returned
// cancel function removes the subscription and closes the channel.
func (r *Ring) Subscribe(buffer int) (<-chan registry.FeedEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan registry.FeedEvent, buffer)

	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		sub, ok := r.subs[id]
		if ok {
			delete(r.subs, id)
		}
		r.mu.Unlock()
		if ok {
			close(sub)
		}
	}
	return ch, cancel
}

package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resourcewatch/resourcewatch/internal/registry"
)

func event(i int) registry.FeedEvent {
	return registry.FeedEvent{
		Kind:       registry.EventResourceAdded,
		ResourceID: int64(i),
	}
}

func TestRingRecentNewestFirst(t *testing.T) {
	t.Parallel()

	r := NewRing(8)
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Publish(context.Background(), event(i)))
	}

	got := r.Recent(3)
	require.Len(t, got, 3)
	assert.Equal(t, event(4).ResourceID, got[0].ResourceID)
	assert.Equal(t, event(3).ResourceID, got[1].ResourceID)
	assert.Equal(t, event(2).ResourceID, got[2].ResourceID)
}

func TestRingOverwritesOldest(t *testing.T) {
	t.Parallel()

	r := NewRing(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Publish(context.Background(), event(i)))
	}

	got := r.Recent(0)
	require.Len(t, got, 3)
	assert.Equal(t, event(4).ResourceID, got[0].ResourceID)
	assert.Equal(t, event(2).ResourceID, got[2].ResourceID)
}

func TestRingSubscribe(t *testing.T) {
	t.Parallel()

	r := NewRing(4)
	ch, cancel := r.Subscribe(4)
	defer cancel()

	require.NoError(t, r.Publish(context.Background(), event(1)))

	select {
	case ev := <-ch:
		assert.Equal(t, event(1).ResourceID, ev.ResourceID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestRingSubscribeCancelClosesChannel(t *testing.T) {
	t.Parallel()

	r := NewRing(4)
	ch, cancel := r.Subscribe(1)
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after cancel must not panic.
	require.NoError(t, r.Publish(context.Background(), event(2)))
}

func TestRingSlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()

	r := NewRing(4)
	_, cancel := r.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = r.Publish(context.Background(), event(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}

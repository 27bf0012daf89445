package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRoundTrip(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	id, err := uuid.NewV7()
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(context.Background(), Task{JobID: id, Ref: "archives/a.zip"}))

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, got.JobID)
	assert.Equal(t, "archives/a.zip", got.Ref)
}

func TestQueueEnqueueAfterClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	q.Close()

	err := q.Enqueue(context.Background(), Task{})
	require.ErrorIs(t, err, ErrQueueClosed)

	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueueDequeueDrainsBeforeClosedError(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	require.NoError(t, q.Enqueue(context.Background(), Task{Ref: "a"}))
	q.Close()

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", got.Ref)

	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueueEnqueueRacingClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(64)

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			if _, err := q.Dequeue(context.Background()); err != nil {
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			for {
				if err := q.Enqueue(ctx, Task{}); err != nil {
					// Either ErrQueueClosed or context expiry; a send on the
					// closed channel would have panicked instead.
					return
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.Close()
	wg.Wait()
	<-drained
}

func TestQueueEnqueueCanceledContext(t *testing.T) {
	t.Parallel()

	q := NewQueue(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := q.Enqueue(ctx, Task{})
	require.ErrorIs(t, err, context.Canceled)
}

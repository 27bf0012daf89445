// Package ingest executes bulk-ingestion jobs: archive extraction, URL
// validation, registry deduplication, bulk persistence, and progress
// reporting.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Task is one queued ingestion job. Exactly one of Archive or Ref is set:
// Archive carries the bytes inline, Ref points at a staged blob.
type Task struct {
	JobID   uuid.UUID
	Archive []byte
	Ref     string
}

// ErrQueueClosed is returned for operations against a closed queue.
var ErrQueueClosed = errors.New("queue closed")

// Queue is a bounded in-memory task queue with context-aware operations.
type Queue struct {
	ch      chan Task
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan Task, capacity),
	}
}

// Enqueue pushes a task into the queue or returns if the context ends. It
// returns ErrQueueClosed after Close; the read lock keeps Close from closing
// the channel underneath an in-flight send.
func (q *Queue) Enqueue(ctx context.Context, task Task) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (Task, error) {
	select {
	case <-ctx.Done():
		return Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return Task{}, ErrQueueClosed
		}
		return task, nil
	}
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}

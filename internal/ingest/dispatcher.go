package ingest

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher fans queue tasks out to a fixed pool of runner goroutines.
type Dispatcher struct {
	queue   *Queue
	runner  *Runner
	workers int
	logger  *zap.Logger
}

// NewDispatcher creates a Dispatcher with the given pool size.
func NewDispatcher(queue *Queue, runner *Runner, workers int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		runner:  runner,
		workers: workers,
		logger:  logger,
	}
}

// Run starts the pool and blocks until the context finishes and every
// in-flight task has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.consume(ctx)
		}()
	}
	<-ctx.Done()
	wg.Wait()
}

func (d *Dispatcher) consume(ctx context.Context) {
	for {
		task, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Error("dequeue failed", zap.Error(err))
			continue
		}
		if err := d.runner.Process(ctx, task); err != nil {
			d.logger.Error("task processing failed",
				zap.String("job_id", task.JobID.String()),
				zap.Error(err))
		}
	}
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, task Task) error {
	if err := d.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

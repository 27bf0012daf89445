// Package sched drives periodic background tasks on fixed intervals.
package sched

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of periodic work. Run must return once the pass is
// complete; the scheduler never cancels a pass mid-run.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc struct {
	TaskName string
	Fn       func(ctx context.Context) error
}

// Name returns the task's name.
func (t TaskFunc) Name() string { return t.TaskName }

// Run invokes the wrapped function.
func (t TaskFunc) Run(ctx context.Context) error { return t.Fn(ctx) }

type entry struct {
	task     Task
	interval time.Duration
}

// Scheduler runs registered tasks on their own tickers.
type Scheduler struct {
	logger  *zap.Logger
	entries []entry
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New constructs an empty Scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Register adds a task with its interval. Must be called before Start.
func (s *Scheduler) Register(task Task, interval time.Duration) {
	s.entries = append(s.entries, entry{task: task, interval: interval})
}

// Start launches one goroutine per task. Each task runs immediately once,
// then on every tick until Stop or context cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	for _, e := range s.entries {
		s.wg.Add(1)
		go func(e entry) {
			defer s.wg.Done()
			s.loop(ctx, e)
		}(e)
	}
}

func (s *Scheduler) loop(ctx context.Context, e entry) {
	s.run(ctx, e.task)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.run(ctx, e.task)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) run(ctx context.Context, task Task) {
	if err := task.Run(ctx); err != nil {
		s.logger.Error("scheduled task failed",
			zap.String("task", task.Name()),
			zap.Error(err))
	}
}

// Stop halts all tickers and waits for in-flight passes to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

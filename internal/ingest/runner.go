package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/resourcewatch/resourcewatch/internal/archive"
	"github.com/resourcewatch/resourcewatch/internal/clock"
	"github.com/resourcewatch/resourcewatch/internal/metrics"
	"github.com/resourcewatch/resourcewatch/internal/progress"
	"github.com/resourcewatch/resourcewatch/internal/registry"
	"github.com/resourcewatch/resourcewatch/internal/storage"
)

// Runner processes one ingestion task at a time: it resolves the archive,
// extracts URLs, validates and deduplicates them, bulk-persists the
// survivors, and records the terminal job outcome.
type Runner struct {
	store    registry.Store
	progress progress.Store
	blobs    storage.Provider
	clock    clock.Clock
	logger   *zap.Logger
}

// NewRunner constructs a Runner. blobs may be nil when all tasks carry
// inline archive bytes.
func NewRunner(
	store registry.Store,
	progressStore progress.Store,
	blobs storage.Provider,
	clk clock.Clock,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		store:    store,
		progress: progressStore,
		blobs:    blobs,
		clock:    clk,
		logger:   logger,
	}
}

// Process executes the task to its terminal state. The returned error
// reports runner-level failures; a job that finishes `failed` with its
// record written is not an error from the runner's point of view.
func (r *Runner) Process(ctx context.Context, task Task) error {
	job, err := r.store.GetJob(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", task.JobID, err)
	}
	if job.Status.Terminal() {
		r.logger.Warn("skipping already finished job",
			zap.String("job_id", job.ID.String()),
			zap.String("status", string(job.Status)))
		return nil
	}

	metrics.JobStarted()
	defer metrics.JobFinished()

	job.Status = registry.JobInProcess
	if err := r.store.SaveJob(ctx, job); err != nil {
		return r.fail(ctx, job, fmt.Errorf("mark job in_process: %w", err))
	}
	r.snapshot(ctx, job)

	data, err := r.resolveArchive(ctx, task)
	if err != nil {
		return r.fail(ctx, job, fmt.Errorf("resolve archive: %w", err))
	}

	lines, err := archive.Lines(data)
	if err != nil {
		return r.fail(ctx, job, fmt.Errorf("extract archive: %w", err))
	}

	job.Total = len(lines)
	r.snapshot(ctx, job)

	existing, err := r.store.ExistingURLs(ctx, lines)
	if err != nil {
		return r.fail(ctx, job, fmt.Errorf("check existing urls: %w", err))
	}

	seen := make(map[string]struct{}, len(lines))
	fresh := make([]registry.Resource, 0, len(lines))
	for _, line := range lines {
		res, parseErr := registry.NewResource(line)
		switch {
		case parseErr != nil:
			job.ErrorCount++
			job.RejectedURLs = append(job.RejectedURLs, line)
		default:
			_, dupRegistry := existing[line]
			_, dupBatch := seen[line]
			if !dupRegistry && !dupBatch {
				seen[line] = struct{}{}
				fresh = append(fresh, res)
			}
		}
		job.Processed++
		r.snapshot(ctx, job)
	}

	if len(fresh) > 0 {
		if err := r.store.BulkInsert(ctx, fresh); err != nil {
			return r.fail(ctx, job, fmt.Errorf("bulk insert: %w", err))
		}
	}

	now := r.clock.Now()
	job.Status = registry.JobSucceeded
	job.FinishedAt = &now
	if err := r.store.SaveJob(ctx, job); err != nil {
		return r.fail(ctx, job, fmt.Errorf("record job outcome: %w", err))
	}
	r.snapshot(ctx, job)

	metrics.AddIngested(len(fresh))
	metrics.AddRejected(job.ErrorCount)
	metrics.IncJobFinished(string(registry.JobSucceeded))
	r.logger.Info("ingestion finished",
		zap.String("job_id", job.ID.String()),
		zap.Int("total", job.Total),
		zap.Int("created", len(fresh)),
		zap.Int("rejected", job.ErrorCount))
	return nil
}

func (r *Runner) resolveArchive(ctx context.Context, task Task) ([]byte, error) {
	if len(task.Archive) > 0 {
		return task.Archive, nil
	}
	if task.Ref == "" {
		return nil, fmt.Errorf("task carries neither archive bytes nor a blob reference")
	}
	if r.blobs == nil {
		return nil, fmt.Errorf("no blob store configured for reference %q", task.Ref)
	}
	data, err := r.blobs.GetObject(ctx, task.Ref)
	if err != nil {
		return nil, fmt.Errorf("fetch staged archive %q: %w", task.Ref, err)
	}
	return data, nil
}

// fail writes the terminal failed record. The original cause is returned so
// callers can log it; a save failure supersedes it.
func (r *Runner) fail(ctx context.Context, job registry.IngestionJob, cause error) error {
	r.logger.Error("ingestion failed",
		zap.String("job_id", job.ID.String()),
		zap.Error(cause))

	now := r.clock.Now()
	job.Status = registry.JobFailed
	job.FinishedAt = &now
	if err := r.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("record job failure (cause: %v): %w", cause, err)
	}
	r.snapshot(ctx, job)
	metrics.IncJobFinished(string(registry.JobFailed))
	return cause
}

// snapshot mirrors the job's counters to the ephemeral progress store. A
// write failure is logged and otherwise ignored; progress is best effort.
func (r *Runner) snapshot(ctx context.Context, job registry.IngestionJob) {
	if r.progress == nil {
		return
	}
	snap := progress.Snapshot{
		Total:        job.Total,
		Processed:    job.Processed,
		ErrorCount:   job.ErrorCount,
		RejectedURLs: job.RejectedURLs,
		UpdatedAt:    r.clock.Now(),
	}
	if err := r.progress.Set(ctx, job.Token, snap); err != nil {
		r.logger.Warn("progress snapshot write failed",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
	}
}

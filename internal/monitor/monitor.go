package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/resourcewatch/resourcewatch/internal/clock"
	"github.com/resourcewatch/resourcewatch/internal/feed"
	"github.com/resourcewatch/resourcewatch/internal/metrics"
	"github.com/resourcewatch/resourcewatch/internal/registry"
)

// Config controls sweep behavior.
type Config struct {
	// MaxConcurrent bounds the number of in-flight checks.
	MaxConcurrent int
}

// Monitor runs availability sweeps over the whole registry.
type Monitor struct {
	store   registry.Store
	checker Checker
	feed    feed.Publisher
	clock   clock.Clock
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Monitor.
func New(
	store registry.Store,
	checker Checker,
	publisher feed.Publisher,
	clk clock.Clock,
	cfg Config,
	logger *zap.Logger,
) *Monitor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if publisher == nil {
		publisher = feed.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		store:   store,
		checker: checker,
		feed:    publisher,
		clock:   clk,
		cfg:     cfg,
		logger:  logger,
	}
}

// Sweep probes every registered resource once. Each resource is an isolated
// unit of work; one failure never aborts the rest of the sweep. The returned
// error covers only listing the registry.
func (m *Monitor) Sweep(ctx context.Context) error {
	start := time.Now()
	resources, err := m.store.List(ctx, registry.ListFilter{})
	if err != nil {
		return fmt.Errorf("list resources: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.MaxConcurrent)
	for _, res := range resources {
		g.Go(func() error {
			m.checkOne(gctx, res)
			return nil
		})
	}
	_ = g.Wait()

	metrics.ObserveSweepDuration(time.Since(start))
	m.logger.Info("sweep finished",
		zap.Int("resources", len(resources)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (m *Monitor) checkOne(ctx context.Context, res registry.Resource) {
	result := m.checker.Check(ctx, res.FullURL)
	metrics.IncCheck(result.IsAvailable)

	obs := registry.Observation{
		StatusCode:  result.StatusCode,
		IsAvailable: result.IsAvailable,
		ObservedAt:  m.clock.Now(),
	}
	changed, err := m.store.RecordObservation(ctx, res.ID, obs)
	if err != nil {
		m.logger.Error("record observation failed",
			zap.String("url", res.FullURL),
			zap.Error(err))
		return
	}
	if !changed {
		return
	}

	ev := registry.FeedEvent{
		Kind:         registry.EventStatusChanged,
		ResourceID:   res.ID,
		ResourceUUID: res.UUID,
		OccurredAt:   obs.ObservedAt,
	}
	if err := m.feed.Publish(ctx, ev); err != nil {
		m.logger.Warn("feed publish failed",
			zap.String("url", res.FullURL),
			zap.Error(err))
	}
}

// Package evict removes resources that have been unavailable for too many
// consecutive sweeps.
package evict

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/resourcewatch/resourcewatch/internal/metrics"
	"github.com/resourcewatch/resourcewatch/internal/registry"
)

// Config controls eviction.
type Config struct {
	// Threshold is the unavailability count at which a resource is removed.
	Threshold int
}

// Sweeper deletes resources whose unavailability counter reached the
// threshold, cascading to their status records and feed events. Deletion is
// silent; no event is emitted for the removed resource.
type Sweeper struct {
	store  registry.Store
	cfg    Config
	logger *zap.Logger
}

// New constructs a Sweeper.
func New(store registry.Store, cfg Config, logger *zap.Logger) *Sweeper {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 7
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// Evict runs one eviction pass and returns how many resources were removed.
func (s *Sweeper) Evict(ctx context.Context) (int, error) {
	candidates, err := s.store.ListUnavailable(ctx, s.cfg.Threshold)
	if err != nil {
		return 0, fmt.Errorf("list unavailable resources: %w", err)
	}

	removed := 0
	for _, res := range candidates {
		if err := s.store.Delete(ctx, res.ID); err != nil {
			// A concurrent delete is not a failure.
			if errors.Is(err, registry.ErrNotFound) {
				continue
			}
			s.logger.Error("evict resource failed",
				zap.String("url", res.FullURL),
				zap.Error(err))
			continue
		}
		removed++
		s.logger.Info("resource evicted",
			zap.String("url", res.FullURL),
			zap.Int("unavailable_count", res.UnavailableCount))
	}

	metrics.AddEvicted(removed)
	return removed, nil
}

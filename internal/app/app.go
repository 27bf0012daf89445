// Package app initializes and holds the long-lived backing services, acting
// as the dependency injection container for the binary.
package app

import (
	"context"
	"fmt"
	"time"

	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/resourcewatch/resourcewatch/internal/config"
	"github.com/resourcewatch/resourcewatch/internal/feed"
	feedpubsub "github.com/resourcewatch/resourcewatch/internal/feed/pubsub"
	"github.com/resourcewatch/resourcewatch/internal/progress"
	progressmem "github.com/resourcewatch/resourcewatch/internal/progress/memory"
	progressredis "github.com/resourcewatch/resourcewatch/internal/progress/redis"
	"github.com/resourcewatch/resourcewatch/internal/registry"
	registrymem "github.com/resourcewatch/resourcewatch/internal/registry/memory"
	registrypg "github.com/resourcewatch/resourcewatch/internal/registry/postgres"
	"github.com/resourcewatch/resourcewatch/internal/screenshot"
	"github.com/resourcewatch/resourcewatch/internal/storage"
	storagegcs "github.com/resourcewatch/resourcewatch/internal/storage/gcs"
	storagelocal "github.com/resourcewatch/resourcewatch/internal/storage/local"
	storagemem "github.com/resourcewatch/resourcewatch/internal/storage/memory"
)

// App holds the shared, long-lived services of the process.
type App struct {
	Registry registry.Store
	Progress progress.Store
	Blobs    storage.Provider
	Feed     *feed.Ring
	Mirror   *feedpubsub.Publisher
	Capturer screenshot.Capturer

	logger   *zap.Logger
	closers  []func() error
	browsers []*screenshot.Browser
}

// New builds every backing service from config, failing fast when a critical
// one cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{logger: logger}

	if cfg.DB.DSN != "" {
		logger.Info("connecting to postgres")
		store, err := registrypg.NewStore(ctx, registrypg.Config{
			DSN:             cfg.DB.DSN,
			MaxConns:        int32(cfg.DB.MaxConns),
			MinConns:        int32(cfg.DB.MinConns),
			MaxConnLifetime: time.Duration(cfg.DB.ConnLifetimeMin) * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		a.Registry = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	} else {
		logger.Info("no db.dsn configured, using the in-memory registry")
		a.Registry = registrymem.NewStore()
	}

	if cfg.Redis.Addr != "" {
		logger.Info("connecting to redis", zap.String("addr", cfg.Redis.Addr))
		store, err := progressredis.NewStore(ctx, progressredis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      time.Duration(cfg.Redis.TTLHours) * time.Hour,
		})
		if err != nil {
			return nil, fmt.Errorf("init redis progress store: %w", err)
		}
		a.Progress = store
		a.closers = append(a.closers, store.Close)
	} else {
		logger.Info("no redis.addr configured, using the in-memory progress store")
		a.Progress = progressmem.NewStore()
	}

	blobs, err := a.initBlobs(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Blobs = blobs

	a.Feed = feed.NewRing(cfg.Feed.BufferSize)
	if cfg.Feed.PubSubProject != "" {
		logger.Info("mirroring feed events to pub/sub",
			zap.String("topic", cfg.Feed.PubSubTopic))
		mirror, err := feedpubsub.New(ctx, feedpubsub.Config{
			ProjectID: cfg.Feed.PubSubProject,
			TopicID:   cfg.Feed.PubSubTopic,
		})
		if err != nil {
			return nil, fmt.Errorf("init pub/sub feed mirror: %w", err)
		}
		a.Mirror = mirror
		a.closers = append(a.closers, mirror.Close)
	}

	a.Capturer = screenshot.Disabled{}
	if cfg.Screenshot.Enabled {
		browser, err := screenshot.NewBrowser(screenshot.Config{
			MaxParallel:       cfg.Screenshot.MaxParallel,
			UserAgent:         cfg.Screenshot.UserAgent,
			NavigationTimeout: time.Duration(cfg.Screenshot.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			// Capture is optional; the service still runs without it.
			logger.Warn("screenshot capturer init failed", zap.Error(err))
		} else {
			a.Capturer = browser
			a.browsers = append(a.browsers, browser)
		}
	}

	return a, nil
}

func (a *App) initBlobs(ctx context.Context, cfg config.Config) (storage.Provider, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storagemem.New(), nil
	case "local":
		store, err := storagelocal.New(storagelocal.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local blob store: %w", err)
		}
		return store, nil
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store, err := storagegcs.New(client, storagegcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs blob store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// Close releases all held connections in reverse initialization order.
func (a *App) Close() {
	for _, b := range a.browsers {
		b.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close service failed", zap.Error(err))
		}
	}
}

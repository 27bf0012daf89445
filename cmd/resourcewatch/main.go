package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/resourcewatch/resourcewatch/internal/api"
	"github.com/resourcewatch/resourcewatch/internal/app"
	"github.com/resourcewatch/resourcewatch/internal/clock/system"
	"github.com/resourcewatch/resourcewatch/internal/config"
	"github.com/resourcewatch/resourcewatch/internal/evict"
	"github.com/resourcewatch/resourcewatch/internal/id/uuid"
	"github.com/resourcewatch/resourcewatch/internal/ingest"
	"github.com/resourcewatch/resourcewatch/internal/logging"
	"github.com/resourcewatch/resourcewatch/internal/metrics"
	"github.com/resourcewatch/resourcewatch/internal/monitor"
	"github.com/resourcewatch/resourcewatch/internal/sched"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg, logger.Named("app"))
	if err != nil {
		logger.Error("service init failed", zap.Error(err))
		os.Exit(1)
	}
	defer services.Close()

	clk := system.New()
	idGen := uuid.New()

	queue := ingest.NewQueue(cfg.Ingest.QueueDepth)
	runner := ingest.NewRunner(
		services.Registry,
		services.Progress,
		services.Blobs,
		clk,
		logger.Named("ingest"),
	)
	dispatch := ingest.NewDispatcher(queue, runner, cfg.Ingest.Workers, logger.Named("dispatcher"))

	checker := monitor.NewHTTPChecker(cfg.CheckTimeout(), cfg.Monitor.UserAgent)
	mon := monitor.New(
		services.Registry,
		checker,
		services.Feed,
		clk,
		monitor.Config{MaxConcurrent: cfg.Monitor.MaxConcurrent},
		logger.Named("monitor"),
	)
	sweeper := evict.New(services.Registry, evict.Config{Threshold: cfg.Evict.Threshold}, logger.Named("evict"))

	scheduler := sched.New(logger.Named("sched"))
	scheduler.Register(sched.TaskFunc{TaskName: "availability-sweep", Fn: mon.Sweep}, cfg.MonitorInterval())
	scheduler.Register(sched.TaskFunc{
		TaskName: "eviction",
		Fn: func(ctx context.Context) error {
			_, err := sweeper.Evict(ctx)
			return err
		},
	}, cfg.EvictInterval())

	apiServer := api.NewServer(
		services.Registry,
		services.Progress,
		dispatch,
		services.Blobs,
		services.Feed,
		services.Capturer,
		idGen,
		clk,
		cfg,
		logger.Named("api"),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if services.Mirror != nil {
		go mirrorFeed(ctx, services, logger.Named("feed-mirror"))
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Ingest.Workers))
		dispatch.Run(ctx)
	}()

	scheduler.Start(ctx)

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	scheduler.Stop()
	queue.Close()
	logger.Info("shutdown complete")
}

// mirrorFeed forwards in-process feed events to the Pub/Sub topic until the
// context ends.
func mirrorFeed(ctx context.Context, services *app.App, logger *zap.Logger) {
	events, cancel := services.Feed.Subscribe(64)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := services.Mirror.Publish(ctx, ev); err != nil {
				logger.Warn("mirror publish failed", zap.Error(err))
			}
		}
	}
}

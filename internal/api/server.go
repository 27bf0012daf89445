// Package api exposes the HTTP interface for the registry service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/resourcewatch/resourcewatch/internal/clock"
	"github.com/resourcewatch/resourcewatch/internal/config"
	"github.com/resourcewatch/resourcewatch/internal/feed"
	"github.com/resourcewatch/resourcewatch/internal/ingest"
	"github.com/resourcewatch/resourcewatch/internal/metrics"
	"github.com/resourcewatch/resourcewatch/internal/middleware"
	"github.com/resourcewatch/resourcewatch/internal/progress"
	"github.com/resourcewatch/resourcewatch/internal/registry"
	"github.com/resourcewatch/resourcewatch/internal/screenshot"
	"github.com/resourcewatch/resourcewatch/internal/storage"
)

// IDGenerator issues ingestion job identifiers and correlation tokens.
type IDGenerator interface {
	NewJobID() (uuid.UUID, error)
	NewToken() (uuid.UUID, error)
}

// Server wires HTTP handlers to the stores and the ingestion dispatcher.
type Server struct {
	router     chi.Router
	store      registry.Store
	progress   progress.Store
	dispatcher *ingest.Dispatcher
	blobs      storage.Provider
	feed       *feed.Ring
	capturer   screenshot.Capturer
	idGen      IDGenerator
	clock      clock.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store registry.Store,
	progressStore progress.Store,
	dispatcher *ingest.Dispatcher,
	blobs storage.Provider,
	ring *feed.Ring,
	capturer screenshot.Capturer,
	idGen IDGenerator,
	clk clock.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if capturer == nil {
		capturer = screenshot.Disabled{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:      store,
		progress:   progressStore,
		dispatcher: dispatcher,
		blobs:      blobs,
		feed:       ring,
		capturer:   capturer,
		idGen:      idGen,
		clock:      clk,
		cfg:        cfg,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(middleware.Metrics)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/resources", func(r chi.Router) {
			r.Post("/", s.createResource)
			r.Get("/", s.listResources)
			r.Route("/{resource_uuid}", func(r chi.Router) {
				r.Get("/", s.getResource)
				r.Delete("/", s.deleteResource)
				r.Get("/screenshot", s.getScreenshot)
				r.Post("/screenshot", s.putScreenshot)
			})
		})
		r.Get("/ingestions/{job_id}", s.getIngestion)
		r.Get("/feed", s.getFeed)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The registry store is the only hard dependency.
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.store.List(ctx, registry.ListFilter{Limit: 1}); err != nil {
		writeError(w, http.StatusServiceUnavailable, "registry store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

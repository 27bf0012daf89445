// Package metrics exposes Prometheus collectors for the resourcewatch
// service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	checksTotal           *prometheus.CounterVec
	sweepDurationSeconds  prometheus.Histogram
	resourcesEvictedTotal prometheus.Counter
	urlsIngestedTotal     prometheus.Counter
	urlsRejectedTotal     prometheus.Counter
	ingestionJobsTotal    *prometheus.CounterVec
	ingestionsInFlight    prometheus.Gauge

	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call multiple
// times; helpers are no-ops until it has been called.
func Init() {
	once.Do(func() {
		checksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resourcewatch_checks_total",
				Help: "Total availability checks performed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		sweepDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "resourcewatch_sweep_duration_seconds",
				Help:    "Duration of full availability sweeps.",
				Buckets: []float64{0.5, 1, 5, 15, 60, 300, 900},
			},
		)

		resourcesEvictedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "resourcewatch_resources_evicted_total",
				Help: "Total resources removed by the eviction sweeper.",
			},
		)

		urlsIngestedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "resourcewatch_urls_ingested_total",
				Help: "Total new resources created by bulk ingestion.",
			},
		)

		urlsRejectedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "resourcewatch_urls_rejected_total",
				Help: "Total archive lines rejected as invalid URLs.",
			},
		)

		ingestionJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resourcewatch_ingestion_jobs_total",
				Help: "Total ingestion jobs finished, labeled by status.",
			},
			[]string{"status"},
		)

		ingestionsInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "resourcewatch_ingestions_in_flight",
				Help: "Number of ingestion jobs currently running.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// IncCheck counts one availability check by outcome.
func IncCheck(available bool) {
	if checksTotal == nil {
		return
	}
	outcome := "available"
	if !available {
		outcome = "unavailable"
	}
	checksTotal.WithLabelValues(outcome).Inc()
}

// ObserveSweepDuration records the duration of one full sweep.
func ObserveSweepDuration(d time.Duration) {
	if sweepDurationSeconds == nil {
		return
	}
	sweepDurationSeconds.Observe(d.Seconds())
}

// AddEvicted counts resources removed by the sweeper.
func AddEvicted(n int) {
	if resourcesEvictedTotal == nil || n <= 0 {
		return
	}
	resourcesEvictedTotal.Add(float64(n))
}

// AddIngested counts resources created by bulk ingestion.
func AddIngested(n int) {
	if urlsIngestedTotal == nil || n <= 0 {
		return
	}
	urlsIngestedTotal.Add(float64(n))
}

// AddRejected counts rejected archive lines.
func AddRejected(n int) {
	if urlsRejectedTotal == nil || n <= 0 {
		return
	}
	urlsRejectedTotal.Add(float64(n))
}

// IncJobFinished counts a finished ingestion job by terminal status.
func IncJobFinished(status string) {
	if ingestionJobsTotal == nil {
		return
	}
	ingestionJobsTotal.WithLabelValues(status).Inc()
}

// JobStarted marks one more ingestion job in flight.
func JobStarted() {
	if ingestionsInFlight == nil {
		return
	}
	ingestionsInFlight.Inc()
}

// JobFinished marks one fewer ingestion job in flight.
func JobFinished() {
	if ingestionsInFlight == nil {
		return
	}
	ingestionsInFlight.Dec()
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler returns an http.Handler exposing the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingest outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeInvalid  = "invalid"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "equipstat_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "equipstat_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "equipstat_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "equipstat_ingest_total",
			Help: "Uploads by outcome: accepted, invalid, rejected (busy) or failed",
		},
		[]string{"outcome"},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "equipstat_ingest_duration_seconds",
			Help:    "Duration of accepted uploads in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~41s
		},
	)

	IngestRows = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "equipstat_ingest_rows",
			Help:    "Rows per accepted upload",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	DatasetsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "equipstat_datasets_evicted_total",
			Help: "Datasets removed by the retention cap",
		},
	)

	BlobReleaseFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "equipstat_blob_release_failures_total",
			Help: "Stored uploads whose bytes could not be deleted after their dataset was removed",
		},
	)

	OrphansReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "equipstat_orphans_released_total",
			Help: "Previously orphaned uploads released by the sweeper",
		},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "equipstat_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		},
		[]string{"scope"},
	)
)

// RecordIngest counts one upload attempt by outcome.
func RecordIngest(outcome string) {
	IngestTotal.WithLabelValues(outcome).Inc()
}

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Route patterns keep label cardinality bounded
		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		status := strconv.Itoa(ww.Status())
		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsRegistry holds all Prometheus metrics for the dashboard companion
type MetricsRegistry struct {
	registry *prometheus.Registry

	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec

	// Remote activity service
	RemoteRequestsTotal   *prometheus.CounterVec
	RemoteRequestDuration *prometheus.HistogramVec

	// Cache Metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Sync / feed / upload
	SyncJobDuration     *prometheus.HistogramVec
	SyncPagesFetched    prometheus.Counter
	SyncRecordsUpserted prometheus.Counter
	SyncFailuresTotal   prometheus.Counter
	SyncInProgress      prometheus.Gauge
	FeedPagesServed     *prometheus.CounterVec
	FeedStaleResponses  prometheus.Counter
	UploadsTotal        *prometheus.CounterVec
}

// NewMetricsRegistry initializes and returns a new MetricsRegistry with all metrics.
// Each registry owns its own prometheus.Registry so several can coexist in tests.
func NewMetricsRegistry() *MetricsRegistry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &MetricsRegistry{
		registry: reg,

		// HTTP Metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitdash_http_requests_total",
				Help: "Total HTTP requests processed by endpoint, method, and status code",
			},
			[]string{"endpoint", "method", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fitdash_http_request_duration_seconds",
				Help:    "HTTP request latency distribution in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint", "method"},
		),
		HTTPRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fitdash_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"endpoint"},
		),

		// Remote activity service
		RemoteRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitdash_remote_requests_total",
				Help: "Requests made to the activity service by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		RemoteRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fitdash_remote_request_duration_seconds",
				Help:    "Activity service request latency in seconds",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),

		// Cache Metrics
		CacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitdash_cache_hits_total",
				Help: "Total cache hits by cache key pattern",
			},
			[]string{"cache_key_pattern"},
		),
		CacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitdash_cache_misses_total",
				Help: "Total cache misses by cache key pattern",
			},
			[]string{"cache_key_pattern"},
		),

		SyncJobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fitdash_sync_job_duration_seconds",
				Help:    "Sync job execution time in seconds",
				Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"job_name", "status"},
		),
		SyncPagesFetched: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fitdash_sync_pages_fetched_total",
				Help: "Pages drained from the activity service by the full sync",
			},
		),
		SyncRecordsUpserted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fitdash_sync_records_upserted_total",
				Help: "Activity records written to the local store by the full sync",
			},
		),
		SyncFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fitdash_sync_failures_total",
				Help: "Full sync attempts aborted by an error",
			},
		),
		SyncInProgress: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fitdash_sync_in_progress",
				Help: "1 while a full sync is draining the activity service",
			},
		),
		FeedPagesServed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitdash_feed_pages_served_total",
				Help: "Feed pages served by source (remote or local)",
			},
			[]string{"source"},
		),
		FeedStaleResponses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fitdash_feed_stale_responses_total",
				Help: "Feed responses discarded because the filter changed while they were in flight",
			},
		),
		UploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitdash_uploads_total",
				Help: "Batch upload files by final status",
			},
			[]string{"status"},
		),
	}
}

// Handler exposes this registry on /metrics
func (m *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

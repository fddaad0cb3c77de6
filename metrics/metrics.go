package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// === Upstream (KoboToolbox) ===

	// KoboFetchTotal counts requests to Kobo data endpoints by asset and HTTP status
	KoboFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aforo_kobo_fetch_total",
			Help: "Total number of KoboToolbox data requests",
		},
		[]string{"endpoint", "status"}, // asset uid, HTTP status code or "error"
	)

	// KoboFetchDuration measures Kobo request latency
	KoboFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aforo_kobo_fetch_duration_seconds",
			Help:    "Time spent on a single KoboToolbox data request",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// === Snapshot cache ===

	// SnapshotRequestsTotal counts snapshot lookups by outcome
	SnapshotRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aforo_snapshot_requests_total",
			Help: "Snapshot lookups by cache outcome",
		},
		[]string{"outcome"}, // hit, miss, shared
	)

	// SnapshotRefreshTotal counts completed refreshes by result
	SnapshotRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aforo_snapshot_refresh_total",
			Help: "Completed snapshot refreshes by result",
		},
		[]string{"result"}, // success, failure
	)

	// SnapshotRefreshDuration measures the fetch+normalize cycle
	SnapshotRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aforo_snapshot_refresh_duration_seconds",
			Help:    "Time spent fetching and normalizing a snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	// StationsTotal tracks stations in the current snapshot
	StationsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aforo_stations_total",
			Help: "Measurement stations in the current snapshot",
		},
	)

	// ReadingsTotal tracks readings in the current snapshot
	ReadingsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aforo_readings_total",
			Help: "Flow readings in the current snapshot",
		},
	)

	// RecordsDegradedTotal counts records that lost a field during normalization
	RecordsDegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aforo_records_degraded_total",
			Help: "Records dropped or degraded during normalization by reason",
		},
		[]string{"reason"}, // bad_location, bad_timestamp, bad_flow
	)

	// === Geometry ===

	// GeometryFeaturesTotal tracks features per loaded layer
	GeometryFeaturesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aforo_geometry_features_total",
			Help: "Features in the last loaded geometry layer",
		},
		[]string{"layer"}, // canales, catastro
	)

	// GeometryLoadErrorsTotal counts geometry documents that failed to parse
	GeometryLoadErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aforo_geometry_load_errors_total",
			Help: "Geometry files that could not be loaded",
		},
		[]string{"layer"},
	)

	// === Page ===

	// PageViewsTotal tracks dashboard renders by outcome
	PageViewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aforo_page_views_total",
			Help: "Dashboard renders by outcome",
		},
		[]string{"outcome"}, // map, error
	)

	// === HTTP ===

	// HTTPRequestDuration measures HTTP request latency by path
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aforo_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestsTotal counts HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aforo_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestsInFlight tracks active HTTP requests
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aforo_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// CacheHits tracks HTTP cache hits by path
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aforo_http_cache_hits_total",
			Help: "Total number of HTTP cache hits (304 Not Modified responses)",
		},
		[]string{"path"},
	)

	// ResponseSizeBytes measures HTTP response sizes
	ResponseSizeBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aforo_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 7), // 100B to 100MB
		},
		[]string{"path"},
	)

	// MemoryUsageBytes tracks application memory usage
	MemoryUsageBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aforo_memory_usage_bytes",
			Help: "Application memory usage in bytes",
		},
	)
)

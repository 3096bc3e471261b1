package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets     = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	dispatchDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets         = []float64{100, 1024, 10240, 102400, 1048576}
	pagesConsumedBuckets    = []float64{1, 2, 3, 5, 8, 13, 21}
)

// Metrics holds all Prometheus metric instruments for the BFF.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// RPC dispatch metrics
	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	DeprecatedOpsTotal *prometheus.CounterVec

	// Aggregation and caching metrics
	AggregationPagesConsumed *prometheus.HistogramVec
	SnapshotHitsTotal        prometheus.Counter
	SnapshotMissesTotal      prometheus.Counter
	SnapshotsActive          prometheus.Gauge
	ETagNotModifiedTotal     *prometheus.CounterVec

	// Mutation facade metrics
	IdempotencyReplaysTotal   *prometheus.CounterVec
	IdempotencyConflictsTotal *prometheus.CounterVec

	// Upstream Google metrics
	GoogleRequestsTotal   *prometheus.CounterVec
	GoogleRequestDuration *prometheus.HistogramVec
	RateLimitDenialsTotal *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bff_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bff_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bff_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bff_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Dispatch
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bff_dispatch_total",
			Help: "Total number of RPC operation dispatches.",
		}, []string{"domain", "op", "status"}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bff_dispatch_duration_seconds",
			Help:    "RPC operation dispatch duration in seconds.",
			Buckets: dispatchDurationBuckets,
		}, []string{"domain", "op"}),
		DeprecatedOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bff_deprecated_ops_total",
			Help: "Total number of redirected deprecated mutation operations.",
		}, []string{"domain", "op"}),

		// Aggregation and caching
		AggregationPagesConsumed: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bff_aggregation_pages_consumed",
			Help:    "Upstream pages consumed per aggregate-mode listing.",
			Buckets: pagesConsumedBuckets,
		}, []string{"domain"}),
		SnapshotHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bff_snapshot_hits_total",
			Help: "Total snapshot token lookups that found a live entry.",
		}),
		SnapshotMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bff_snapshot_misses_total",
			Help: "Total snapshot token lookups that missed or hit an expired entry.",
		}),
		SnapshotsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bff_snapshots_active",
			Help: "Number of live snapshot entries.",
		}),
		ETagNotModifiedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bff_etag_not_modified_total",
			Help: "Total 304 responses served from If-None-Match matches.",
		}, []string{"domain"}),

		// Mutation facades
		IdempotencyReplaysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bff_idempotency_replays_total",
			Help: "Total mutation requests answered from the idempotency store.",
		}, []string{"action"}),
		IdempotencyConflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bff_idempotency_conflicts_total",
			Help: "Total idempotency key reuses with a different input hash.",
		}, []string{"action"}),

		// Upstream
		GoogleRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bff_google_requests_total",
			Help: "Total Google API requests.",
		}, []string{"service", "status"}),
		GoogleRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bff_google_request_duration_seconds",
			Help:    "Google API request duration in seconds.",
			Buckets: dispatchDurationBuckets,
		}, []string{"service"}),
		RateLimitDenialsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bff_rate_limit_denials_total",
			Help: "Total dispatches denied by the per-user cost gate.",
		}, []string{"domain"}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Dispatch
		m.DispatchTotal,
		m.DispatchDuration,
		m.DeprecatedOpsTotal,
		// Aggregation and caching
		m.AggregationPagesConsumed,
		m.SnapshotHitsTotal,
		m.SnapshotMissesTotal,
		m.SnapshotsActive,
		m.ETagNotModifiedTotal,
		// Mutation facades
		m.IdempotencyReplaysTotal,
		m.IdempotencyConflictsTotal,
		// Upstream
		m.GoogleRequestsTotal,
		m.GoogleRequestDuration,
		m.RateLimitDenialsTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordDispatch records an RPC dispatch outcome.
func (m *Metrics) RecordDispatch(domain, op, status string, duration time.Duration) {
	m.DispatchTotal.WithLabelValues(domain, op, status).Inc()
	m.DispatchDuration.WithLabelValues(domain, op).Observe(duration.Seconds())
}

// RecordDeprecatedOp records a 410 redirect for a disabled mutation.
func (m *Metrics) RecordDeprecatedOp(domain, op string) {
	m.DeprecatedOpsTotal.WithLabelValues(domain, op).Inc()
}

// RecordAggregation records the pages consumed by an aggregate listing.
func (m *Metrics) RecordAggregation(domain string, pagesConsumed int) {
	m.AggregationPagesConsumed.WithLabelValues(domain).Observe(float64(pagesConsumed))
}

// RecordSnapshotHit records a snapshot token lookup hit.
func (m *Metrics) RecordSnapshotHit() {
	m.SnapshotHitsTotal.Inc()
}

// RecordSnapshotMiss records a snapshot token lookup miss.
func (m *Metrics) RecordSnapshotMiss() {
	m.SnapshotMissesTotal.Inc()
}

// SetSnapshotsActive sets the live snapshot entry count.
func (m *Metrics) SetSnapshotsActive(count float64) {
	m.SnapshotsActive.Set(count)
}

// RecordETagNotModified records a 304 short-circuit.
func (m *Metrics) RecordETagNotModified(domain string) {
	m.ETagNotModifiedTotal.WithLabelValues(domain).Inc()
}

// RecordIdempotencyReplay records a cached mutation replay.
func (m *Metrics) RecordIdempotencyReplay(action string) {
	m.IdempotencyReplaysTotal.WithLabelValues(action).Inc()
}

// RecordIdempotencyConflict records a key reuse with a different input.
func (m *Metrics) RecordIdempotencyConflict(action string) {
	m.IdempotencyConflictsTotal.WithLabelValues(action).Inc()
}

// RecordGoogleRequest records a Google API request.
func (m *Metrics) RecordGoogleRequest(service string, status int, duration time.Duration) {
	m.GoogleRequestsTotal.WithLabelValues(service, strconv.Itoa(status)).Inc()
	m.GoogleRequestDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordRateLimitDenial records a cost-gate denial.
func (m *Metrics) RecordRateLimitDenial(domain string) {
	m.RateLimitDenialsTotal.WithLabelValues(domain).Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

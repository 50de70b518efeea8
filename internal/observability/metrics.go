package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets     = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	upstreamDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
)

// Metrics holds all Prometheus metric instruments of the CRM front end.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Upstream CRM API metrics
	UpstreamRequestsTotal       *prometheus.CounterVec
	UpstreamRequestDuration     *prometheus.HistogramVec
	UpstreamRetriesTotal        prometheus.Counter
	UpstreamCircuitBreakerState prometheus.Gauge

	// Response cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Navigation metrics
	NavigationsTotal    *prometheus.CounterVec
	NavigationDuration  *prometheus.HistogramVec
	AssetFallbacksTotal *prometheus.CounterVec
	ActiveSessions      prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmdesk_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crmdesk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		UpstreamRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmdesk_upstream_requests_total",
			Help: "Total number of CRM API requests.",
		}, []string{"method", "resource", "status"}),
		UpstreamRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crmdesk_upstream_request_duration_seconds",
			Help:    "CRM API request duration in seconds.",
			Buckets: upstreamDurationBuckets,
		}, []string{"method", "resource"}),
		UpstreamRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crmdesk_upstream_retries_total",
			Help: "Total number of CRM API read retries.",
		}),
		UpstreamCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crmdesk_upstream_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}),

		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmdesk_cache_hits_total",
			Help: "Total response cache hits.",
		}, []string{"resource"}),
		CacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmdesk_cache_misses_total",
			Help: "Total response cache misses.",
		}, []string{"resource"}),

		NavigationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmdesk_navigations_total",
			Help: "Total page navigations by outcome.",
		}, []string{"page", "outcome"}),
		NavigationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crmdesk_navigation_duration_seconds",
			Help:    "Time from navigation start to commit in seconds.",
			Buckets: upstreamDurationBuckets,
		}, []string{"page"}),
		AssetFallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmdesk_asset_fallbacks_total",
			Help: "Total page markup loads served from built-in stubs.",
		}, []string{"page"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crmdesk_active_sessions",
			Help: "Number of live browser sessions.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.UpstreamRequestsTotal,
		m.UpstreamRequestDuration,
		m.UpstreamRetriesTotal,
		m.UpstreamCircuitBreakerState,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.NavigationsTotal,
		m.NavigationDuration,
		m.AssetFallbacksTotal,
		m.ActiveSessions,
	)

	return m
}

// --- Recording helpers ---
//
// Every helper is safe to call on a nil *Metrics so components can be built
// without a registry in tests.

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
}

// RecordUpstreamRequest records a CRM API request. Status 0 means the
// request failed before a response arrived.
func (m *Metrics) RecordUpstreamRequest(method, resource string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequestsTotal.WithLabelValues(method, resource, strconv.Itoa(status)).Inc()
	m.UpstreamRequestDuration.WithLabelValues(method, resource).Observe(duration.Seconds())
}

// RecordUpstreamRetry records a read retry.
func (m *Metrics) RecordUpstreamRetry() {
	if m == nil {
		return
	}
	m.UpstreamRetriesTotal.Inc()
}

// SetCircuitBreakerState sets the breaker gauge.
func (m *Metrics) SetCircuitBreakerState(state float64) {
	if m == nil {
		return
	}
	m.UpstreamCircuitBreakerState.Set(state)
}

// RecordCacheHit records a response cache hit.
func (m *Metrics) RecordCacheHit(resource string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(resource).Inc()
}

// RecordCacheMiss records a response cache miss.
func (m *Metrics) RecordCacheMiss(resource string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(resource).Inc()
}

// RecordNavigation records a finished navigation. Outcome is one of
// "displayed", "failed" or "superseded".
func (m *Metrics) RecordNavigation(page, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.NavigationsTotal.WithLabelValues(page, outcome).Inc()
	if outcome == "displayed" {
		m.NavigationDuration.WithLabelValues(page).Observe(duration.Seconds())
	}
}

// RecordAssetFallback records a page markup load served from a stub.
func (m *Metrics) RecordAssetFallback(page string) {
	if m == nil {
		return
	}
	m.AssetFallbacksTotal.WithLabelValues(page).Inc()
}

// SessionOpened increments the live sessions gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionClosed decrements the live sessions gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), responseStatus(ww), time.Since(start))
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
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

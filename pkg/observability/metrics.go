package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	PermissionChecksTotal   *prometheus.CounterVec
	PermissionCheckDuration *prometheus.HistogramVec
	WildcardShortCircuits   prometheus.Counter

	// Permission cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
	CacheInvalidated *prometheus.CounterVec

	// Tenant context metrics
	TenantEntersTotal  *prometheus.CounterVec
	TenantExitsTotal   prometheus.Counter
	TenantContextDepth prometheus.Histogram

	// Support grant metrics
	SupportGrantsIssued  *prometheus.CounterVec
	SupportGrantsRevoked prometheus.Counter
	SupportGrantsActive  prometheus.Gauge

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caregrid_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "caregrid_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caregrid_permission_checks_total",
				Help: "Total number of permission checks",
			},
			[]string{"scope", "allowed"},
		),
		PermissionCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "caregrid_permission_check_duration_seconds",
				Help:    "Permission resolution duration in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
			[]string{"scope"},
		),
		WildcardShortCircuits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "caregrid_permission_wildcard_short_circuits_total",
				Help: "Permission resolutions answered by the wildcard short-circuit",
			},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caregrid_permission_cache_hits_total",
				Help: "Total number of permission cache hits",
			},
			[]string{"backend"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caregrid_permission_cache_misses_total",
				Help: "Total number of permission cache misses",
			},
			[]string{"backend"},
		),
		CacheInvalidated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caregrid_permission_cache_invalidations_total",
				Help: "Total number of permission cache invalidations",
			},
			[]string{"backend"},
		),
		TenantEntersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caregrid_tenant_context_enters_total",
				Help: "Total number of tenant context enters",
			},
			[]string{"status"},
		),
		TenantExitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "caregrid_tenant_context_exits_total",
				Help: "Total number of tenant context exits",
			},
		),
		TenantContextDepth: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "caregrid_tenant_context_depth",
				Help:    "Depth of the tenant context stack at enter time",
				Buckets: []float64{1, 2, 3, 5, 8},
			},
		),
		SupportGrantsIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caregrid_support_grants_issued_total",
				Help: "Total number of support access grants issued",
			},
			[]string{"access_level"},
		),
		SupportGrantsRevoked: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "caregrid_support_grants_revoked_total",
				Help: "Total number of support access grants revoked",
			},
		),
		SupportGrantsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "caregrid_support_grants_active",
				Help: "Number of currently active support access grants",
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "caregrid_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "caregrid_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionChecksTotal,
		m.PermissionCheckDuration,
		m.WildcardShortCircuits,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidated,
		m.TenantEntersTotal,
		m.TenantExitsTotal,
		m.TenantContextDepth,
		m.SupportGrantsIssued,
		m.SupportGrantsRevoked,
		m.SupportGrantsActive,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns the Prometheus metrics HTTP handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePermissionCheck records a permission check outcome
func (m *Metrics) ObservePermissionCheck(scope string, allowed bool, duration time.Duration) {
	m.PermissionChecksTotal.WithLabelValues(scope, strconv.FormatBool(allowed)).Inc()
	m.PermissionCheckDuration.WithLabelValues(scope).Observe(duration.Seconds())
}

// InstrumentHandler wraps an HTTP handler with request metrics
func (m *Metrics) InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.code)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration.Seconds())
	})
}

// statusWriter captures the response status code
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/1qh/nexvex/pkg/apperr"
)

// Metrics holds all Prometheus metrics. Recording methods are safe on a nil
// receiver so components can run without metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Engine operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Authorization and rate limiting
	AuthzDenialsTotal        *prometheus.CounterVec
	RateLimitRejectionsTotal *prometheus.CounterVec

	// Cascade metrics
	CascadeRunsTotal        *prometheus.CounterVec
	CascadeRowsDeletedTotal *prometheus.CounterVec
	CascadeRowFailuresTotal *prometheus.CounterVec

	// Hook metrics
	HookPanicsTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexvex_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexvex_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexvex_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "route"},
		),

		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexvex_operations_total",
				Help: "Total number of engine operations by resource, operation and result code",
			},
			[]string{"resource", "operation", "code"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexvex_operation_duration_seconds",
				Help:    "Engine operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"resource", "operation"},
		),

		AuthzDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexvex_authz_denials_total",
				Help: "Total number of authorization denials by code",
			},
			[]string{"resource", "code"},
		),
		RateLimitRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexvex_rate_limit_rejections_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"resource", "operation"},
		),

		CascadeRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexvex_cascade_runs_total",
				Help: "Total number of organization cascade removals by result",
			},
			[]string{"result"},
		),
		CascadeRowsDeletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexvex_cascade_rows_deleted_total",
				Help: "Total number of rows deleted by cascade removals",
			},
			[]string{"table"},
		),
		CascadeRowFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexvex_cascade_row_failures_total",
				Help: "Total number of rows a cascade removal failed to delete",
			},
			[]string{"table"},
		),

		HookPanicsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexvex_hook_panics_total",
				Help: "Total number of recovered panics in after-hooks",
			},
			[]string{"hook"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexvex_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexvex_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nexvex_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nexvex_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.OperationsTotal,
		m.OperationDuration,
		m.AuthzDenialsTotal,
		m.RateLimitRejectionsTotal,
		m.CascadeRunsTotal,
		m.CascadeRowsDeletedTotal,
		m.CascadeRowFailuresTotal,
		m.HookPanicsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// RecordOperation records the outcome and latency of one engine operation.
// The code label is "OK" on success and the error code otherwise.
func (m *Metrics) RecordOperation(resource, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	code := "OK"
	if err != nil {
		code = string(apperr.CodeOf(err))
	}
	m.OperationsTotal.WithLabelValues(resource, operation, code).Inc()
	m.OperationDuration.WithLabelValues(resource, operation).Observe(duration.Seconds())

	switch apperr.CodeOf(err) {
	case apperr.CodeNotOrgMember, apperr.CodeInsufficientOrgRole, apperr.CodeForbidden:
		m.AuthzDenialsTotal.WithLabelValues(resource, code).Inc()
	case apperr.CodeRateLimited:
		m.RateLimitRejectionsTotal.WithLabelValues(resource, operation).Inc()
	}
}

// RecordRateLimitRejection counts a rejection made outside an engine
// operation, such as the per-caller request limit
func (m *Metrics) RecordRateLimitRejection(resource, operation string) {
	if m == nil {
		return
	}
	m.RateLimitRejectionsTotal.WithLabelValues(resource, operation).Inc()
}

// RecordCascade records a finished cascade removal
func (m *Metrics) RecordCascade(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.CascadeRunsTotal.WithLabelValues(result).Inc()
}

// RecordCascadeRows records rows deleted and rows skipped for a table
func (m *Metrics) RecordCascadeRows(table string, deleted, failed int) {
	if m == nil {
		return
	}
	if deleted > 0 {
		m.CascadeRowsDeletedTotal.WithLabelValues(table).Add(float64(deleted))
	}
	if failed > 0 {
		m.CascadeRowFailuresTotal.WithLabelValues(table).Add(float64(failed))
	}
}

// RecordHookPanic counts a recovered after-hook panic
func (m *Metrics) RecordHookPanic(hook string) {
	if m == nil {
		return
	}
	m.HookPanicsTotal.WithLabelValues(hook).Inc()
}

// RecordCacheLookup counts a cache hit or miss
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// UpdateDBStats sets the connection gauges
func (m *Metrics) UpdateDBStats(active, idle int) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(active))
	m.DBConnectionsIdle.Set(float64(idle))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel returns the matched mux route template so IDs do not explode
// label cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Permission evaluation metrics
	PermissionChecksTotal  *prometheus.CounterVec // outcome: allow|deny|bypass
	PermissionCheckErrors  prometheus.Counter
	MenuBuildsTotal        prometheus.Counter
	MatrixAssembliesTotal  prometheus.Counter

	// Store metrics
	StoreOperationDuration *prometheus.HistogramVec
	StoreErrorsTotal       *prometheus.CounterVec

	// Database pool
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics on a fresh registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashgate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dashgate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashgate_permission_checks_total",
				Help: "Permission evaluations by capability and outcome",
			},
			[]string{"capability", "outcome"},
		),
		PermissionCheckErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dashgate_permission_check_errors_total",
				Help: "Permission evaluations that failed on the backing store",
			},
		),
		MenuBuildsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dashgate_menu_builds_total",
				Help: "Navigation menu trees built",
			},
		),
		MatrixAssembliesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dashgate_matrix_assemblies_total",
				Help: "Dense permission matrices assembled",
			},
		),
		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dashgate_store_operation_duration_seconds",
				Help:    "Store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashgate_store_errors_total",
				Help: "Store operations that returned an error",
			},
			[]string{"operation"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dashgate_db_connections_active",
				Help: "Active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dashgate_db_connections_idle",
				Help: "Idle database connections",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionChecksTotal,
		m.PermissionCheckErrors,
		m.MenuBuildsTotal,
		m.MatrixAssembliesTotal,
		m.StoreOperationDuration,
		m.StoreErrorsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePermissionCheck records one evaluator decision
func (m *Metrics) ObservePermissionCheck(capability string, allowed bool) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	m.PermissionChecksTotal.WithLabelValues(capability, outcome).Inc()
}

// ObserveSuperadminBypass records a check short-circuited by the bypass
func (m *Metrics) ObserveSuperadminBypass(capability string) {
	m.PermissionChecksTotal.WithLabelValues(capability, "bypass").Inc()
}

// ObserveStoreOperation records the duration (and failure) of a store call
func (m *Metrics) ObserveStoreOperation(operation string, start time.Time, err error) {
	m.StoreOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		m.StoreErrorsTotal.WithLabelValues(operation).Inc()
	}
}

// HTTPMiddleware instruments a handler with request count and duration
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

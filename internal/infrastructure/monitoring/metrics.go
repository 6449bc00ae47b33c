package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Each instance owns its registry so
// several hosts can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Lifecycle metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	AppState          prometheus.Gauge
	LoaderBreaker     prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "antcore_http_requests_total",
				Help: "Total number of control requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "antcore_http_request_duration_seconds",
				Help:    "Control request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "antcore_http_request_size_bytes",
				Help:    "Buffered request body size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "route"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "antcore_http_response_size_bytes",
				Help:    "Response body size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "route"},
		),

		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "antcore_lifecycle_operations_total",
				Help: "Lifecycle operations by result code",
			},
			[]string{"operation", "code"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "antcore_lifecycle_operation_duration_seconds",
				Help:    "Lifecycle operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),
		AppState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "antcore_app_state",
				Help: "Application slot state (0=uninstalled, 1=installed, 2=running)",
			},
		),
		LoaderBreaker: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "antcore_loader_breaker_state",
				Help: "Loader circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "antcore_uptime_seconds",
			Help: "Host uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records a control request
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, route).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, route).Observe(float64(respSize))
}

// RecordOperation records a lifecycle operation and the status code it produced
func (m *Metrics) RecordOperation(operation string, code int, duration time.Duration) {
	m.OperationsTotal.WithLabelValues(operation, strconv.Itoa(code)).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetAppState sets the application slot state gauge
func (m *Metrics) SetAppState(level int) {
	m.AppState.Set(float64(level))
}

// SetLoaderBreaker sets the loader breaker state gauge
func (m *Metrics) SetLoaderBreaker(level int) {
	m.LoaderBreaker.Set(float64(level))
}

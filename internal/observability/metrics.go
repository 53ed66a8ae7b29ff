package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	movements       *prometheus.CounterVec
	movementUnits   *prometheus.CounterVec
	shortfallUnits  prometheus.Counter
	revaluations    prometheus.Counter
	revaluedRows    prometheus.Histogram
	lowStockAlerts  prometheus.Counter
	jobsTotal       *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockpool_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockpool_http_request_duration_seconds",
			Help:    "HTTP request duration per route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		movements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockpool_inventory_movements_total",
			Help: "Stock movements posted by kind.",
		}, []string{"kind"}),
		movementUnits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockpool_inventory_movement_units_total",
			Help: "Units moved by movement kind.",
		}, []string{"kind"}),
		shortfallUnits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockpool_inventory_shortfall_units_total",
			Help: "Units sold beyond the available tranches.",
		}),
		revaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockpool_inventory_revaluations_total",
			Help: "Completed currency revaluation runs.",
		}),
		revaluedRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stockpool_inventory_revalued_rows",
			Help:    "Products repriced per revaluation run.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		lowStockAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockpool_inventory_low_stock_alerts_total",
			Help: "Low stock alerts raised.",
		}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockpool_jobs_total",
			Help: "Background tasks processed by type and outcome.",
		}, []string{"task", "status"}),
	}
	registry.MustRegister(
		m.requestsTotal, m.requestDuration,
		m.movements, m.movementUnits, m.shortfallUnits,
		m.revaluations, m.revaluedRows, m.lowStockAlerts,
		m.jobsTotal,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveMovement counts one posted movement of qty units.
func (m *Metrics) ObserveMovement(kind string, qty int64) {
	if m == nil {
		return
	}
	m.movements.WithLabelValues(kind).Inc()
	if qty > 0 {
		m.movementUnits.WithLabelValues(kind).Add(float64(qty))
	}
}

// ObserveShortfall counts units sold with no stock behind them.
func (m *Metrics) ObserveShortfall(qty int64) {
	if m == nil || qty <= 0 {
		return
	}
	m.shortfallUnits.Add(float64(qty))
}

// ObserveRevaluation records a finished revaluation run.
func (m *Metrics) ObserveRevaluation(rows int) {
	if m == nil {
		return
	}
	m.revaluations.Inc()
	m.revaluedRows.Observe(float64(rows))
}

// ObserveLowStock counts a raised low stock alert.
func (m *Metrics) ObserveLowStock() {
	if m == nil {
		return
	}
	m.lowStockAlerts.Inc()
}

// ObserveJob counts a processed background task.
func (m *Metrics) ObserveJob(task string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.jobsTotal.WithLabelValues(task, status).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics of the API process.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ledgerWrites    *prometheus.CounterVec
	unitsMoved      *prometheus.CounterVec
	stockLevel      *prometheus.GaugeVec
	hookFailures    *prometheus.CounterVec
}

// NewMetrics initialises the registry with HTTP and ledger collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "homestock_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "homestock_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	writes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "homestock_ledger_writes_total",
		Help: "Committed ledger writes by change kind.",
	}, []string{"change"})
	units := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "homestock_ledger_units_moved_total",
		Help: "Units added, sold or restored by change kind.",
	}, []string{"change"})
	stock := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "homestock_product_stock_units",
		Help: "Current stock per product after the latest ledger write.",
	}, []string{"product_id", "product"})
	hooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "homestock_ledger_hook_failures_total",
		Help: "Post-commit hook failures by hook.",
	}, []string{"hook"})
	registry.MustRegister(requests, duration, writes, units, stock, hooks)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		ledgerWrites:    writes,
		unitsMoved:      units,
		stockLevel:      stock,
		hookFailures:    hooks,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per route pattern.
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

// ObserveLedgerChange counts one committed write and the units it moved.
func (m *Metrics) ObserveLedgerChange(change string, units int64) {
	if m == nil {
		return
	}
	m.ledgerWrites.WithLabelValues(change).Inc()
	if units > 0 {
		m.unitsMoved.WithLabelValues(change).Add(float64(units))
	}
}

// SetStockLevel publishes the stock of one product. A series left behind by
// a rename is removed first.
func (m *Metrics) SetStockLevel(productID, name string, stock int64) {
	if m == nil {
		return
	}
	m.stockLevel.DeletePartialMatch(prometheus.Labels{"product_id": productID})
	m.stockLevel.WithLabelValues(productID, name).Set(float64(stock))
}

// DropStockLevel forgets a deleted product.
func (m *Metrics) DropStockLevel(productID string) {
	if m == nil {
		return
	}
	m.stockLevel.DeletePartialMatch(prometheus.Labels{"product_id": productID})
}

// HookFailed counts a failed post-commit hook.
func (m *Metrics) HookFailed(hook string) {
	if m == nil {
		return
	}
	m.hookFailures.WithLabelValues(hook).Inc()
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
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

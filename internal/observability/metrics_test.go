package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/homestock/homestock/internal/jobs"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	require.NoError(t, jobs.Track("analytics:warmup").End(nil))

	body := scrape(t, metrics)
	require.Contains(t, body, `homestock_jobs_total{job="analytics:warmup",status="success"} 1`)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `homestock_http_requests_total{code="418",route="/test"} 1`)
	require.Contains(t, body, `homestock_http_request_duration_seconds_bucket{route="/test"`)
}

func TestLedgerCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveLedgerChange("sale", 5)
	metrics.ObserveLedgerChange("sale", 2)
	metrics.ObserveLedgerChange("product", 0)
	metrics.SetStockLevel("c-1", "Candle", 19)
	metrics.SetStockLevel("s-1", "Soap", 3)
	metrics.DropStockLevel("s-1")
	metrics.HookFailed("analytics_cache")

	body := scrape(t, metrics)
	require.Contains(t, body, `homestock_ledger_writes_total{change="sale"} 2`)
	require.Contains(t, body, `homestock_ledger_units_moved_total{change="sale"} 7`)
	require.Contains(t, body, `homestock_ledger_writes_total{change="product"} 1`)
	require.NotContains(t, body, `homestock_ledger_units_moved_total{change="product"}`)
	require.Contains(t, body, `homestock_product_stock_units{product="Candle",product_id="c-1"} 19`)
	require.False(t, strings.Contains(body, `product="Soap"`))
	require.Contains(t, body, `homestock_ledger_hook_failures_total{hook="analytics_cache"} 1`)
}

func TestStockGaugeFollowsProductIdentity(t *testing.T) {
	metrics := NewMetrics()
	metrics.SetStockLevel("a-1", "Candle", 4)
	metrics.SetStockLevel("b-2", "Candle", 9)

	body := scrape(t, metrics)
	require.Contains(t, body, `homestock_product_stock_units{product="Candle",product_id="a-1"} 4`)
	require.Contains(t, body, `homestock_product_stock_units{product="Candle",product_id="b-2"} 9`)

	metrics.SetStockLevel("a-1", "Beeswax Candle", 4)
	body = scrape(t, metrics)
	require.Contains(t, body, `homestock_product_stock_units{product="Beeswax Candle",product_id="a-1"} 4`)
	require.NotContains(t, body, `product="Candle",product_id="a-1"`)
	require.Contains(t, body, `product_id="b-2"`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveLedgerChange("sale", 1)
	metrics.SetStockLevel("x", "x", 1)
	metrics.DropStockLevel("x")
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

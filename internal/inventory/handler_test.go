package inventory

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/homestock/homestock/internal/platform/httpx"
)

func newTestRouter(t *testing.T) (http.Handler, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	idem := &memoryIdempotency{keys: map[string]bool{}}
	svc := NewService(repo, idem, ServiceConfig{}, nil)
	r := chi.NewRouter()
	r.Route("/api", NewHandler(nil, svc).MountRoutes)
	return r, repo
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createProductViaAPI(t *testing.T, h http.Handler) productResponse {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/products",
		`{"name":"Candle","unit_selling_price":"8.00","cost_per_batch":"60.00","units_per_batch":12}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out productResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandlerLedgerFlow(t *testing.T) {
	h, repo := newTestRouter(t)
	product := createProductViaAPI(t, h)
	require.Equal(t, "8.00", product.UnitSellingPrice)
	require.Equal(t, "5.00", product.UnitCost)

	rec := doJSON(t, h, http.MethodPost, "/api/purchases",
		`{"product_id":"`+product.ID.String()+`","batches_purchased":2}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var purchase purchaseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &purchase))
	require.Equal(t, "120.00", purchase.TotalCost)
	require.EqualValues(t, 24, purchase.UnitsAdded)

	rec = doJSON(t, h, http.MethodPost, "/api/sales",
		`{"items":[{"product_id":"`+product.ID.String()+`","quantity":5}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sale saleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sale))
	require.Equal(t, "40.00", sale.TotalAmount)
	require.EqualValues(t, 19, repo.products[product.ID].CurrentStock)

	rec = doJSON(t, h, http.MethodGet, "/api/sales/"+sale.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/api/sales/"+sale.ID.String(), "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.EqualValues(t, 24, repo.products[product.ID].CurrentStock)

	rec = doJSON(t, h, http.MethodDelete, "/api/sales/"+sale.ID.String(), "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/products/"+product.ID.String()+"/purchases", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var purchases listResponse[purchaseResponse]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &purchases))
	require.Len(t, purchases.Data, 1)
}

func TestHandlerRejectsOversell(t *testing.T) {
	h, repo := newTestRouter(t)
	product := createProductViaAPI(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/sales",
		`{"items":[{"product_id":"`+product.ID.String()+`","quantity":1}]}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Contains(t, problem.Detail, "Candle")
	require.Contains(t, problem.Detail, "available 0")
	require.Empty(t, repo.sales)
}

func TestHandlerValidationErrors(t *testing.T) {
	h, _ := newTestRouter(t)

	cases := []struct {
		name  string
		path  string
		body  string
		field string
	}{
		{"negative price", "/api/products", `{"name":"A","unit_selling_price":"-1.00","cost_per_batch":"1.00","units_per_batch":1}`, "unit_selling_price"},
		{"three decimals", "/api/products", `{"name":"A","unit_selling_price":"1.005","cost_per_batch":"1.00","units_per_batch":1}`, "unit_selling_price"},
		{"zero batch size", "/api/products", `{"name":"A","unit_selling_price":"1.00","cost_per_batch":"1.00","units_per_batch":0}`, "units_per_batch"},
		{"missing name", "/api/products", `{"unit_selling_price":"1.00","cost_per_batch":"1.00","units_per_batch":1}`, "name"},
		{"empty sale", "/api/sales", `{"items":[]}`, "items"},
		{"zero quantity", "/api/sales", `{"items":[{"product_id":"6f1c2f7e-9a43-4b53-8a59-6d0e7b3f7d10","quantity":0}]}`, "items[0].quantity"},
		{"bad product id", "/api/purchases", `{"product_id":"nope","batches_purchased":1}`, "product_id"},
		{"price beyond column", "/api/products", `{"name":"A","unit_selling_price":"1e15","cost_per_batch":"1.00","units_per_batch":1}`, "unit_selling_price"},
		{"cost beyond column", "/api/products", `{"name":"A","unit_selling_price":"1.00","cost_per_batch":"99999999999","units_per_batch":1}`, "cost_per_batch"},
		{"batch size above cap", "/api/products", `{"name":"A","unit_selling_price":"1.00","cost_per_batch":"1.00","units_per_batch":1000001}`, "units_per_batch"},
		{"quantity above cap", "/api/sales", `{"items":[{"product_id":"6f1c2f7e-9a43-4b53-8a59-6d0e7b3f7d10","quantity":9223372036854775807}]}`, "items[0].quantity"},
		{"batches above cap", "/api/purchases", `{"product_id":"6f1c2f7e-9a43-4b53-8a59-6d0e7b3f7d10","batches_purchased":1000001}`, "batches_purchased"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, tc.path, tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			var problem httpx.ProblemDetail
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			require.Contains(t, problem.Errors, tc.field)
		})
	}
}

func TestHandlerRejectsSubtotalBeyondColumn(t *testing.T) {
	h, repo := newTestRouter(t)
	rec := doJSON(t, h, http.MethodPost, "/api/products",
		`{"name":"Gold","unit_selling_price":"9999999999.99","cost_per_batch":"0.00","units_per_batch":10}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var product productResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &product))
	rec = doJSON(t, h, http.MethodPost, "/api/purchases",
		`{"product_id":"`+product.ID.String()+`","batches_purchased":1}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/api/sales",
		`{"items":[{"product_id":"`+product.ID.String()+`","quantity":2}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Contains(t, problem.Errors["items[0].subtotal"], "below 10000000000")
	require.Empty(t, repo.sales)
	require.EqualValues(t, 10, repo.products[product.ID].CurrentStock)
}

func TestHandlerUnknownProduct(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := doJSON(t, h, http.MethodGet, "/api/products/6f1c2f7e-9a43-4b53-8a59-6d0e7b3f7d10", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/products/not-a-uuid", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerIdempotencyKeyReplay(t *testing.T) {
	h, repo := newTestRouter(t)
	product := createProductViaAPI(t, h)
	rec := doJSON(t, h, http.MethodPost, "/api/purchases",
		`{"product_id":"`+product.ID.String()+`","batches_purchased":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	body := `{"items":[{"product_id":"` + product.ID.String() + `","quantity":2}]}`
	rec = doJSON(t, h, http.MethodPost, "/api/sales", body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, h, http.MethodPost, "/api/sales", body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.EqualValues(t, 10, repo.products[product.ID].CurrentStock)
}

func TestHandlerListSalesRange(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := doJSON(t, h, http.MethodGet, "/api/sales?from=yesterday", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/sales?from=2024-03-02T00:00:00Z&to=2024-03-01T00:00:00Z", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/sales?from=2024-03-01T00:00:00Z&to=2024-03-02T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

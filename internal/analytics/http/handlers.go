package analytichttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/homestock/homestock/internal/analytics"
	"github.com/homestock/homestock/internal/analytics/export"
	"github.com/homestock/homestock/internal/platform/httpx"
)

const requestTimeout = 5 * time.Second

// AnalyticsService defines the data contract used by the handler.
type AnalyticsService interface {
	Summary(ctx context.Context, q analytics.Query) (analytics.Summary, error)
	Dashboard(ctx context.Context) (analytics.Dashboard, error)
}

// Handler serves the profit and revenue reports.
type Handler struct {
	logger  *slog.Logger
	service AnalyticsService
	csvPool sync.Pool
}

// NewHandler constructs the analytics HTTP handler.
func NewHandler(logger *slog.Logger, service AnalyticsService) *Handler {
	h := &Handler{logger: logger, service: service}
	h.csvPool.New = func() any { return new(bytes.Buffer) }
	return h
}

type productMetricsResponse struct {
	ProductID      uuid.UUID `json:"product_id"`
	Name           string    `json:"name"`
	Revenue        string    `json:"revenue"`
	UnitsSold      int64     `json:"units_sold"`
	Cost           string    `json:"cost"`
	ProfitPerUnit  string    `json:"profit_per_unit"`
	LifetimeProfit string    `json:"lifetime_profit"`
	CurrentStock   int64     `json:"current_stock"`
}

type summaryResponse struct {
	Window       analytics.Window         `json:"window"`
	From         string                   `json:"from,omitempty"`
	To           string                   `json:"to,omitempty"`
	Revenue      string                   `json:"revenue"`
	UnitsSold    int64                    `json:"units_sold"`
	Cost         string                   `json:"cost"`
	Profit       string                   `json:"profit"`
	ProfitMargin string                   `json:"profit_margin"`
	SalesCount   int                      `json:"sales_count"`
	Products     []productMetricsResponse `json:"products"`
	GeneratedAt  time.Time                `json:"generated_at"`
}

type dashboardResponse struct {
	Today     summaryResponse `json:"today"`
	Yesterday summaryResponse `json:"yesterday"`
	All       summaryResponse `json:"all"`
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	query, err := parseQuery(r)
	if err != nil {
		h.respondError(w, "parse query", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	summary, err := h.service.Summary(ctx, query)
	if err != nil {
		h.respondError(w, "load summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSummaryResponse(summary))
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	dash, err := h.service.Dashboard(ctx)
	if err != nil {
		h.respondError(w, "load dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, dashboardResponse{
		Today:     toSummaryResponse(dash.Today),
		Yesterday: toSummaryResponse(dash.Yesterday),
		All:       toSummaryResponse(dash.All),
	})
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	query, err := parseQuery(r)
	if err != nil {
		h.respondError(w, "parse query", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	summary, err := h.service.Summary(ctx, query)
	if err != nil {
		h.respondError(w, "load summary", err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	if err := export.WriteSummaryCSV(buf, summary); err != nil {
		h.respondError(w, "write summary csv", err)
		return
	}
	buf.WriteString("\n")
	if err := export.WriteProductsCSV(buf, summary.Products); err != nil {
		h.respondError(w, "write products csv", err)
		return
	}

	filename := fmt.Sprintf("homestock-%s.csv", summary.Window)
	if summary.From != "" {
		filename = fmt.Sprintf("homestock-%s-%s.csv", summary.From, summary.To)
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logError("stream csv", err)
	}
}

func parseQuery(r *http.Request) (analytics.Query, error) {
	q := r.URL.Query()
	window, err := analytics.ParseWindow(q.Get("window"))
	if err != nil {
		return analytics.Query{}, err
	}
	return analytics.Query{Window: window, From: q.Get("from"), To: q.Get("to")}, nil
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, analytics.ErrInvalidWindow), errors.Is(err, analytics.ErrInvalidRange):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Window", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		h.logError(op, err)
		httpx.Problem(w, http.StatusGatewayTimeout, "Timeout", "")
	default:
		h.logError(op, err)
		httpx.RespondError(w, err)
	}
}

func (h *Handler) logError(op string, err error) {
	if h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
}

func toSummaryResponse(s analytics.Summary) summaryResponse {
	products := make([]productMetricsResponse, 0, len(s.Products))
	for _, p := range s.Products {
		products = append(products, productMetricsResponse{
			ProductID:      p.ProductID,
			Name:           p.Name,
			Revenue:        money(p.Revenue),
			UnitsSold:      p.UnitsSold,
			Cost:           money(p.Cost),
			ProfitPerUnit:  money(p.ProfitPerUnit),
			LifetimeProfit: money(p.LifetimeProfit),
			CurrentStock:   p.CurrentStock,
		})
	}
	return summaryResponse{
		Window:       s.Window,
		From:         s.From,
		To:           s.To,
		Revenue:      money(s.Revenue),
		UnitsSold:    s.UnitsSold,
		Cost:         money(s.Cost),
		Profit:       money(s.Profit),
		ProfitMargin: money(s.ProfitMargin),
		SalesCount:   s.SalesCount,
		Products:     products,
		GeneratedAt:  s.GeneratedAt,
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

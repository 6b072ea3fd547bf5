package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/homestock/homestock/internal/inventory"
	"github.com/homestock/homestock/internal/notify"
)

// CacheInvalidator drops cached reports.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// LedgerMetrics records committed ledger writes.
type LedgerMetrics interface {
	ObserveLedgerChange(change string, units int64)
	SetStockLevel(productID, name string, stock int64)
	DropStockLevel(productID string)
	HookFailed(hook string)
}

// StockChecker evaluates stock levels against the alert threshold.
type StockChecker interface {
	Check(ctx context.Context, levels []notify.StockLevel) (int, error)
}

// Hooks fans committed ledger changes out to reporting, metrics and alerting.
type Hooks struct {
	cache   CacheInvalidator
	metrics LedgerMetrics
	stock   StockChecker
	logger  *slog.Logger
}

// NewHooks constructs integration hooks. Any collaborator may be nil.
func NewHooks(cache CacheInvalidator, metrics LedgerMetrics, stock StockChecker, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{cache: cache, metrics: metrics, stock: stock, logger: logger}
}

// HandleLedgerChanged implements inventory.IntegrationHandler.
func (h *Hooks) HandleLedgerChanged(ctx context.Context, evt inventory.LedgerChangedEvent) error {
	if h == nil {
		return nil
	}
	var errs []error
	if h.metrics != nil {
		h.metrics.ObserveLedgerChange(string(evt.Change), evt.UnitsMoved)
		for _, level := range evt.Levels {
			h.metrics.SetStockLevel(level.ProductID.String(), level.Name, level.CurrentStock)
		}
		for _, level := range evt.Removed {
			h.metrics.DropStockLevel(level.ProductID.String())
		}
	}
	if h.cache != nil {
		if err := h.cache.Invalidate(ctx); err != nil {
			h.failed("analytics_cache")
			errs = append(errs, fmt.Errorf("integration: invalidate analytics: %w", err))
		}
	}
	// product edits only refresh gauge labels; stock did not move
	if h.stock != nil && len(evt.Levels) > 0 && evt.Change != inventory.ChangeProduct {
		if _, err := h.stock.Check(ctx, toStockLevels(evt.Levels)); err != nil {
			h.failed("low_stock")
			errs = append(errs, fmt.Errorf("integration: low stock check: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (h *Hooks) failed(hook string) {
	if h.metrics != nil {
		h.metrics.HookFailed(hook)
	}
	h.logger.Debug("ledger hook failed", slog.String("hook", hook))
}

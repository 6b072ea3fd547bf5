package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/homestock/homestock/internal/inventory"
	"github.com/homestock/homestock/internal/notify"
)

type fakeCache struct {
	calls int
	err   error
}

func (f *fakeCache) Invalidate(ctx context.Context) error {
	f.calls++
	return f.err
}

type fakeMetrics struct {
	changes  map[string]int64
	levels   map[string]int64
	names    map[string]string
	failures []string
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{changes: map[string]int64{}, levels: map[string]int64{}, names: map[string]string{}}
}

func (f *fakeMetrics) ObserveLedgerChange(change string, units int64) { f.changes[change] += units }
func (f *fakeMetrics) HookFailed(hook string)                         { f.failures = append(f.failures, hook) }

func (f *fakeMetrics) SetStockLevel(productID, name string, stock int64) {
	f.levels[productID] = stock
	f.names[productID] = name
}

func (f *fakeMetrics) DropStockLevel(productID string) {
	delete(f.levels, productID)
	delete(f.names, productID)
}

type fakeChecker struct {
	levels []notify.StockLevel
}

func (f *fakeChecker) Check(ctx context.Context, levels []notify.StockLevel) (int, error) {
	f.levels = append(f.levels, levels...)
	return len(levels), nil
}

var candleID = uuid.MustParse("11111111-1111-1111-1111-111111111111")

func saleEvent() inventory.LedgerChangedEvent {
	return inventory.LedgerChangedEvent{
		Change:     inventory.ChangeSale,
		UnitsMoved: 5,
		OccurredAt: time.Now(),
		Levels: []inventory.StockLevel{
			{ProductID: candleID, Name: "Candle", CurrentStock: 19, TotalUnitsSold: 5},
		},
	}
}

func TestHandleLedgerChangedFansOut(t *testing.T) {
	cache := &fakeCache{}
	metrics := newFakeMetrics()
	checker := &fakeChecker{}
	hooks := NewHooks(cache, metrics, checker, nil)

	require.NoError(t, hooks.HandleLedgerChanged(context.Background(), saleEvent()))
	require.Equal(t, 1, cache.calls)
	require.EqualValues(t, 5, metrics.changes[string(inventory.ChangeSale)])
	require.EqualValues(t, 19, metrics.levels[candleID.String()])
	require.Equal(t, "Candle", metrics.names[candleID.String()])
	require.Len(t, checker.levels, 1)
	require.EqualValues(t, 19, checker.levels[0].CurrentStock)
}

func TestHandleLedgerChangedReportsCacheFailure(t *testing.T) {
	cache := &fakeCache{err: errors.New("redis down")}
	metrics := newFakeMetrics()
	checker := &fakeChecker{}
	hooks := NewHooks(cache, metrics, checker, nil)

	err := hooks.HandleLedgerChanged(context.Background(), saleEvent())
	require.ErrorContains(t, err, "redis down")
	require.Equal(t, []string{"analytics_cache"}, metrics.failures)
	// the low stock check still runs
	require.Len(t, checker.levels, 1)
}

func TestNilCollaboratorsAreSkipped(t *testing.T) {
	hooks := NewHooks(nil, nil, nil, nil)
	require.NoError(t, hooks.HandleLedgerChanged(context.Background(), saleEvent()))

	var nilHooks *Hooks
	require.NoError(t, nilHooks.HandleLedgerChanged(context.Background(), saleEvent()))
}

func TestProductDeletionDropsStockGauge(t *testing.T) {
	metrics := newFakeMetrics()
	checker := &fakeChecker{}
	hooks := NewHooks(&fakeCache{}, metrics, checker, nil)
	ctx := context.Background()

	require.NoError(t, hooks.HandleLedgerChanged(ctx, saleEvent()))
	require.Contains(t, metrics.levels, candleID.String())

	require.NoError(t, hooks.HandleLedgerChanged(ctx, inventory.LedgerChangedEvent{
		Change:  inventory.ChangeProduct,
		Removed: []inventory.StockLevel{{ProductID: candleID, Name: "Candle"}},
	}))
	require.NotContains(t, metrics.levels, candleID.String())
	// deletions carry no levels, so no stock check runs for them
	require.Len(t, checker.levels, 1)
}

func TestSameNamedProductsKeepSeparateGauges(t *testing.T) {
	metrics := newFakeMetrics()
	hooks := NewHooks(nil, metrics, nil, nil)
	other := uuid.New()

	require.NoError(t, hooks.HandleLedgerChanged(context.Background(), inventory.LedgerChangedEvent{
		Change: inventory.ChangePurchase,
		Levels: []inventory.StockLevel{
			{ProductID: candleID, Name: "Candle", CurrentStock: 4},
			{ProductID: other, Name: "Candle", CurrentStock: 9},
		},
	}))
	require.EqualValues(t, 4, metrics.levels[candleID.String()])
	require.EqualValues(t, 9, metrics.levels[other.String()])
}

func TestProductRenameRelabelsWithoutStockCheck(t *testing.T) {
	metrics := newFakeMetrics()
	checker := &fakeChecker{}
	hooks := NewHooks(nil, metrics, checker, nil)
	ctx := context.Background()

	require.NoError(t, hooks.HandleLedgerChanged(ctx, saleEvent()))
	require.NoError(t, hooks.HandleLedgerChanged(ctx, inventory.LedgerChangedEvent{
		Change: inventory.ChangeProduct,
		Levels: []inventory.StockLevel{{ProductID: candleID, Name: "Beeswax Candle", CurrentStock: 19}},
	}))
	require.Equal(t, "Beeswax Candle", metrics.names[candleID.String()])
	require.Len(t, checker.levels, 1)
}

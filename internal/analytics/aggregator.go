package analytics

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ProductSnapshot is the current pricing and counters of a product.
type ProductSnapshot struct {
	ID               uuid.UUID       `json:"id"`
	Name             string          `json:"name"`
	UnitSellingPrice decimal.Decimal `json:"unit_selling_price"`
	CostPerBatch     decimal.Decimal `json:"cost_per_batch"`
	UnitsPerBatch    int64           `json:"units_per_batch"`
	CurrentStock     int64           `json:"current_stock"`
	TotalUnitsSold   int64           `json:"total_units_sold"`
}

// SaleLine is a sale item joined with its parent sale timestamp.
type SaleLine struct {
	SaleID    uuid.UUID
	ProductID uuid.UUID
	SoldAt    time.Time
	Quantity  int64
	Subtotal  decimal.Decimal
}

// PurchaseRecord is the cost side of a stock purchase.
type PurchaseRecord struct {
	ProductID   uuid.UUID
	PurchasedAt time.Time
	TotalCost   decimal.Decimal
}

// Dataset holds raw sale lines and purchases.
type Dataset struct {
	Lines     []SaleLine
	Purchases []PurchaseRecord
}

// Within keeps the records whose timestamps fall inside r.
func (d Dataset) Within(r Range) Dataset {
	if r.Unbounded {
		return d
	}
	out := Dataset{}
	for _, line := range d.Lines {
		if r.Contains(line.SoldAt) {
			out.Lines = append(out.Lines, line)
		}
	}
	for _, p := range d.Purchases {
		if r.Contains(p.PurchasedAt) {
			out.Purchases = append(out.Purchases, p)
		}
	}
	return out
}

// ProductMetrics are the per-product figures of a summary.
type ProductMetrics struct {
	ProductID      uuid.UUID       `json:"product_id"`
	Name           string          `json:"name"`
	Revenue        decimal.Decimal `json:"revenue"`
	UnitsSold      int64           `json:"units_sold"`
	Cost           decimal.Decimal `json:"cost"`
	ProfitPerUnit  decimal.Decimal `json:"profit_per_unit"`
	LifetimeProfit decimal.Decimal `json:"lifetime_profit"`
	CurrentStock   int64           `json:"current_stock"`
}

// Summary is the aggregated view of one window.
type Summary struct {
	Window       Window           `json:"window"`
	From         string           `json:"from,omitempty"`
	To           string           `json:"to,omitempty"`
	Revenue      decimal.Decimal  `json:"revenue"`
	UnitsSold    int64            `json:"units_sold"`
	Cost         decimal.Decimal  `json:"cost"`
	Profit       decimal.Decimal  `json:"profit"`
	ProfitMargin decimal.Decimal  `json:"profit_margin"`
	SalesCount   int              `json:"sales_count"`
	Products     []ProductMetrics `json:"products"`
	GeneratedAt  time.Time        `json:"generated_at"`
}

// Aggregate reduces the window and lifetime datasets into a Summary. It does
// not filter: window must already be restricted to the reporting range.
func Aggregate(products []ProductSnapshot, window, lifetime Dataset) Summary {
	perProduct := make(map[uuid.UUID]*ProductMetrics, len(products))
	metrics := make([]*ProductMetrics, 0, len(products))
	for _, p := range products {
		m := &ProductMetrics{
			ProductID:      p.ID,
			Name:           p.Name,
			Revenue:        decimal.Zero,
			Cost:           decimal.Zero,
			ProfitPerUnit:  profitPerUnit(p),
			LifetimeProfit: decimal.Zero,
			CurrentStock:   p.CurrentStock,
		}
		perProduct[p.ID] = m
		metrics = append(metrics, m)
	}

	summary := Summary{Revenue: decimal.Zero, Cost: decimal.Zero}
	sales := make(map[uuid.UUID]struct{})
	for _, line := range window.Lines {
		summary.Revenue = summary.Revenue.Add(line.Subtotal)
		summary.UnitsSold += line.Quantity
		sales[line.SaleID] = struct{}{}
		if m, ok := perProduct[line.ProductID]; ok {
			m.Revenue = m.Revenue.Add(line.Subtotal)
			m.UnitsSold += line.Quantity
		}
	}
	for _, p := range window.Purchases {
		summary.Cost = summary.Cost.Add(p.TotalCost)
		if m, ok := perProduct[p.ProductID]; ok {
			m.Cost = m.Cost.Add(p.TotalCost)
		}
	}
	for _, line := range lifetime.Lines {
		if m, ok := perProduct[line.ProductID]; ok {
			m.LifetimeProfit = m.LifetimeProfit.Add(line.Subtotal)
		}
	}
	for _, p := range lifetime.Purchases {
		if m, ok := perProduct[p.ProductID]; ok {
			m.LifetimeProfit = m.LifetimeProfit.Sub(p.TotalCost)
		}
	}

	summary.SalesCount = len(sales)
	summary.Profit = summary.Revenue.Sub(summary.Cost)
	summary.ProfitMargin = ProfitMargin(summary.Profit, summary.Revenue)

	sort.SliceStable(metrics, func(i, j int) bool {
		if !metrics[i].Revenue.Equal(metrics[j].Revenue) {
			return metrics[i].Revenue.GreaterThan(metrics[j].Revenue)
		}
		return metrics[i].Name < metrics[j].Name
	})
	summary.Products = make([]ProductMetrics, 0, len(metrics))
	for _, m := range metrics {
		summary.Products = append(summary.Products, *m)
	}
	return summary
}

// ProfitMargin is profit/revenue*100 rounded to two places, or 0 when
// revenue is not positive.
func ProfitMargin(profit, revenue decimal.Decimal) decimal.Decimal {
	if !revenue.IsPositive() {
		return decimal.Zero
	}
	return profit.Div(revenue).Mul(hundred).Round(2)
}

func profitPerUnit(p ProductSnapshot) decimal.Decimal {
	if p.UnitsPerBatch <= 0 {
		return p.UnitSellingPrice
	}
	unitCost := p.CostPerBatch.Div(decimal.NewFromInt(p.UnitsPerBatch))
	return p.UnitSellingPrice.Sub(unitCost).Round(2)
}

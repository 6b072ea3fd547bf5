package integration

import (
	"github.com/homestock/homestock/internal/inventory"
	"github.com/homestock/homestock/internal/notify"
)

func toStockLevels(levels []inventory.StockLevel) []notify.StockLevel {
	out := make([]notify.StockLevel, 0, len(levels))
	for _, level := range levels {
		out = append(out, notify.StockLevel{
			ProductID:    level.ProductID,
			Name:         level.Name,
			CurrentStock: level.CurrentStock,
		})
	}
	return out
}

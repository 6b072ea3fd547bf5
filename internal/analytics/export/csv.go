package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/homestock/homestock/internal/analytics"
)

// WriteSummaryCSV serialises the window totals to a Metric,Value table.
func WriteSummaryCSV(w io.Writer, summary analytics.Summary) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Metric", "Value"}); err != nil {
		return err
	}
	period := string(summary.Window)
	if summary.From != "" {
		period += " " + summary.From + ".." + summary.To
	}
	records := [][]string{
		{"Window", period},
		{"Revenue", formatMoney(summary.Revenue)},
		{"Units Sold", strconv.FormatInt(summary.UnitsSold, 10)},
		{"Purchase Cost", formatMoney(summary.Cost)},
		{"Profit", formatMoney(summary.Profit)},
		{"Profit Margin %", formatMoney(summary.ProfitMargin)},
		{"Sales", strconv.Itoa(summary.SalesCount)},
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteProductsCSV emits the per-product breakdown.
func WriteProductsCSV(w io.Writer, products []analytics.ProductMetrics) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Product", "Revenue", "Units Sold", "Purchase Cost", "Profit Per Unit", "Lifetime Profit", "Current Stock"}); err != nil {
		return err
	}
	for _, p := range products {
		if err := writer.Write([]string{
			p.Name,
			formatMoney(p.Revenue),
			strconv.FormatInt(p.UnitsSold, 10),
			formatMoney(p.Cost),
			formatMoney(p.ProfitPerUnit),
			formatMoney(p.LifetimeProfit),
			strconv.FormatInt(p.CurrentStock, 10),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

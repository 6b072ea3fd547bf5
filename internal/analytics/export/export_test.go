package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/homestock/homestock/internal/analytics"
)

func TestWriteSummaryCSV(t *testing.T) {
	summary := analytics.Summary{
		Window:       analytics.WindowToday,
		From:         "2024-03-10",
		To:           "2024-03-10",
		Revenue:      decimal.RequireFromString("40"),
		Cost:         decimal.RequireFromString("30"),
		Profit:       decimal.RequireFromString("10"),
		ProfitMargin: decimal.RequireFromString("25"),
		UnitsSold:    5,
		SalesCount:   1,
	}
	buf := &bytes.Buffer{}
	require.NoError(t, WriteSummaryCSV(buf, summary))

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 8)
	require.Equal(t, []string{"Window", "today 2024-03-10..2024-03-10"}, records[1])
	require.Equal(t, []string{"Revenue", "40.00"}, records[2])
	require.Equal(t, []string{"Profit Margin %", "25.00"}, records[6])
}

func TestWriteProductsCSVQuotesNames(t *testing.T) {
	products := []analytics.ProductMetrics{{
		Name:           `Soap, "lavender"`,
		Revenue:        decimal.RequireFromString("25"),
		UnitsSold:      5,
		Cost:           decimal.Zero,
		ProfitPerUnit:  decimal.RequireFromString("2"),
		LifetimeProfit: decimal.RequireFromString("-5"),
		CurrentStock:   5,
	}}
	buf := &bytes.Buffer{}
	require.NoError(t, WriteProductsCSV(buf, products))

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, `Soap, "lavender"`, records[1][0])
	require.Equal(t, "-5.00", records[1][5])
}

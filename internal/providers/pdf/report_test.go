package pdf

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLicenseReport(t *testing.T) {
	provider := New()
	reader, err := provider.GenerateLicenseReport(context.Background(), ReportData{
		Title:       "License Utilization Report",
		GeneratedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Scope:       "admin",
		Filters:     []string{"Mode: relay", "Currencies: USD"},
		KPIs: []Figure{
			{Label: "Licenses", Value: "20"},
			{Label: "Active utilization", Value: "25.0%"},
		},
		Currencies: []CurrencyLine{
			{Currency: "USD", Records: 1, Licenses: 20, TotalRevenue: "1000.00", AvgCostPerUnit: "50.00"},
		},
		Rows: []ReportRow{
			{Entity: "Acme (Company)", ProductCode: "REL", StartDate: "2026-01-01", EndDate: "2026-12-31", Licenses: 20, TotalCost: "1000.00 USD", ActivePct: "25.0%", TotalPct: "50.0%", Status: "Active"},
		},
		Excluded: 1,
	})
	require.NoError(t, err)

	doc, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.True(t, len(doc) > 4)
	assert.Equal(t, "%PDF", string(doc[:4]))
}

func TestGenerateLicenseReportRequiresTitle(t *testing.T) {
	_, err := New().GenerateLicenseReport(context.Background(), ReportData{})
	assert.ErrorIs(t, err, ErrEmptyTitle)
}

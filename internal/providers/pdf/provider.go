package pdf

import (
	"context"
	"io"
	"time"

	"go.uber.org/fx"
)

// ReportData is a rendered dashboard flattened into printable text.
type ReportData struct {
	Title       string
	GeneratedAt time.Time
	Scope       string
	Filters     []string
	KPIs        []Figure
	Currencies  []CurrencyLine
	Rows        []ReportRow
	Excluded    int
}

type Figure struct {
	Label string
	Value string
}

type CurrencyLine struct {
	Currency       string
	Records        int
	Licenses       int
	TotalRevenue   string
	AvgCostPerUnit string
}

type ReportRow struct {
	Entity      string
	ProductCode string
	StartDate   string
	EndDate     string
	Licenses    int
	TotalCost   string
	ActivePct   string
	TotalPct    string
	Status      string
}

type Provider interface {
	GenerateLicenseReport(ctx context.Context, data ReportData) (io.Reader, error)
}

var Module = fx.Module("pdf",
	fx.Provide(New),
)

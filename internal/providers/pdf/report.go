package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/orientation"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrEmptyTitle = errors.New("report title is required")

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateLicenseReport(ctx context.Context, data ReportData) (io.Reader, error) {
	if strings.TrimSpace(data.Title) == "" {
		return nil, ErrEmptyTitle
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithOrientation(orientation.Horizontal).
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(8, data.Title, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, "Generated "+data.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"), props.Text{
			Size:  8,
			Align: align.Right,
			Top:   4,
		}),
	)

	meta := col.New(12).Add(text.New("Scope: "+data.Scope, props.Text{Size: 9}))
	for i, filter := range data.Filters {
		meta.Add(text.New(filter, props.Text{Size: 8, Top: float64(5 + 4*i)}))
	}
	m.AddRow(float64(8+4*len(data.Filters)), meta)

	// KPI strip, four figures per row
	for start := 0; start < len(data.KPIs); start += 4 {
		end := start + 4
		if end > len(data.KPIs) {
			end = len(data.KPIs)
		}
		cols := make([]core.Col, 0, 4)
		for _, figure := range data.KPIs[start:end] {
			cols = append(cols, col.New(3).Add(
				text.New(figure.Label, props.Text{Size: 8}),
				text.New(figure.Value, props.Text{Size: 12, Style: fontstyle.Bold, Top: 4}),
			))
		}
		for len(cols) < 4 {
			cols = append(cols, col.New(3))
		}
		m.AddRow(14, cols...)
	}

	if len(data.Currencies) > 0 {
		m.AddRow(10, text.NewCol(12, "Financials by currency", props.Text{Size: 11, Style: fontstyle.Bold, Top: 3}))
		m.AddRow(7,
			text.NewCol(2, "Currency", headerText(align.Left)),
			text.NewCol(2, "Records", headerText(align.Right)),
			text.NewCol(2, "Licenses", headerText(align.Right)),
			text.NewCol(3, "Total revenue", headerText(align.Right)),
			text.NewCol(3, "Avg cost / license", headerText(align.Right)),
		)
		for _, line := range data.Currencies {
			m.AddRow(6,
				text.NewCol(2, line.Currency, cellText(align.Left)),
				text.NewCol(2, fmt.Sprintf("%d", line.Records), cellText(align.Right)),
				text.NewCol(2, fmt.Sprintf("%d", line.Licenses), cellText(align.Right)),
				text.NewCol(3, line.TotalRevenue, cellText(align.Right)),
				text.NewCol(3, line.AvgCostPerUnit, cellText(align.Right)),
			)
		}
	}

	m.AddRow(10, text.NewCol(12, "Licenses", props.Text{Size: 11, Style: fontstyle.Bold, Top: 3}))
	m.AddRow(7,
		text.NewCol(3, "Entity", headerText(align.Left)),
		text.NewCol(1, "Product", headerText(align.Left)),
		text.NewCol(1, "Start", headerText(align.Left)),
		text.NewCol(1, "End", headerText(align.Left)),
		text.NewCol(1, "Licenses", headerText(align.Right)),
		text.NewCol(2, "Total cost", headerText(align.Right)),
		text.NewCol(1, "Active %", headerText(align.Right)),
		text.NewCol(1, "Total %", headerText(align.Right)),
		text.NewCol(1, "Status", headerText(align.Right)),
	)
	for _, row := range data.Rows {
		m.AddRow(6,
			text.NewCol(3, row.Entity, cellText(align.Left)),
			text.NewCol(1, row.ProductCode, cellText(align.Left)),
			text.NewCol(1, row.StartDate, cellText(align.Left)),
			text.NewCol(1, row.EndDate, cellText(align.Left)),
			text.NewCol(1, fmt.Sprintf("%d", row.Licenses), cellText(align.Right)),
			text.NewCol(2, row.TotalCost, cellText(align.Right)),
			text.NewCol(1, row.ActivePct, cellText(align.Right)),
			text.NewCol(1, row.TotalPct, cellText(align.Right)),
			text.NewCol(1, row.Status, cellText(align.Right)),
		)
	}
	if len(data.Rows) == 0 {
		m.AddRow(8, text.NewCol(12, "No licenses match the current filters.", props.Text{Size: 9, Style: fontstyle.Italic}))
	}

	if data.Excluded > 0 {
		m.AddRow(10, text.NewCol(12,
			fmt.Sprintf("%d license record(s) were excluded because they reference neither a company nor a partner.", data.Excluded),
			props.Text{Size: 8, Style: fontstyle.Italic, Top: 4},
		))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}

func headerText(a align.Type) props.Text {
	return props.Text{Size: 8, Style: fontstyle.Bold, Align: a}
}

func cellText(a align.Type) props.Text {
	return props.Text{Size: 8, Align: a}
}

package service

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/smallbiznis/licenseboard/internal/license/domain"
)

var exportHeader = []string{
	"id", "company", "entity_type", "product_code", "product_label",
	"start_date", "end_date", "number_of_licenses", "cost_per_license", "total_cost", "currency", "status",
}

// ExportCSV writes licenses with the owner under the company column, so the file re-imports as is.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, licenses []domain.License) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return err
	}

	for _, item := range licenses {
		if err := ctx.Err(); err != nil {
			return err
		}

		entityName, entityType := "", ""
		if resolved, err := item.Entity(); err == nil {
			entityName, entityType = resolved.Name, string(resolved.Type)
		}

		record := []string{
			item.ID.String(),
			entityName,
			entityType,
			item.ProductCode,
			item.ProductLabel,
			item.StartDate.Format(domain.DateLayout),
			item.EndDate.Format(domain.DateLayout),
			strconv.Itoa(item.NumberOfLicenses),
			item.CostPerLicense.StringFixed(2),
			item.TotalCost.StringFixed(2),
			item.Currency,
			string(item.Status),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

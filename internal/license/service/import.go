package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/licenseboard/internal/license/domain"
	"github.com/smallbiznis/licenseboard/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	colCompany          = "company"
	colStartDate        = "start_date"
	colEndDate          = "end_date"
	colNumberOfLicenses = "number_of_licenses"
	colCostPerLicense   = "cost_per_license"
	colProductCode      = "product_code"
	colCurrency         = "currency"
	colStatus           = "status"

	defaultImportProductCode = "SUB"
	defaultImportCurrency    = "USD"
)

var requiredImportColumns = []string{colCompany, colStartDate, colEndDate, colNumberOfLicenses, colCostPerLicense}

// Import inserts one license per CSV row. Row failures are counted and skipped.
func (s *Service) Import(ctx context.Context, r io.Reader) (domain.ImportResult, error) {
	var result domain.ImportResult
	err := s.guard.WithImportLock(ctx, func() error {
		var err error
		result, err = s.importCSV(ctx, r)
		return err
	})
	if errors.Is(err, ratelimit.ErrLockHeld) {
		return domain.ImportResult{}, domain.ErrImportInProgress
	}
	if err != nil {
		return domain.ImportResult{}, err
	}
	return result, nil
}

func (s *Service) importCSV(ctx context.Context, r io.Reader) (domain.ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return domain.ImportResult{}, domain.ErrEmptyImport
	}
	if err != nil {
		return domain.ImportResult{}, fmt.Errorf("read import header: %w", err)
	}

	columns := indexColumns(header)
	var missing []string
	for _, name := range requiredImportColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return domain.ImportResult{}, &domain.ImportColumnsError{Missing: missing}
	}

	result := domain.ImportResult{BatchID: ulid.Make().String()}
	log := s.log.With(zap.String("batch_id", result.BatchID))

	for rowNum := 1; ; rowNum++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return domain.ImportResult{}, fmt.Errorf("read import row %d: %w", rowNum, err)
			}
			addRowError(&result, rowNum, err)
			continue
		}
		if blankRecord(record) {
			continue
		}

		req, err := s.importRequest(ctx, columns, record)
		if err == nil {
			_, err = s.insert(ctx, req)
		}
		if err != nil {
			log.Debug("import row rejected", zap.Int("row", rowNum), zap.Error(err))
			addRowError(&result, rowNum, err)
			continue
		}
		result.SuccessCount++
	}

	s.metrics.RecordImportRows(ctx, "success", result.SuccessCount)
	s.metrics.RecordImportRows(ctx, "error", result.ErrorCount)

	if result.SuccessCount > 0 {
		s.Invalidate(ctx)
	}
	if s.audit != nil {
		_ = s.audit.AuditLog(ctx, "license.import", "license", nil, map[string]any{
			"batch_id":      result.BatchID,
			"success_count": result.SuccessCount,
			"error_count":   result.ErrorCount,
		})
	}

	log.Info("license import finished",
		zap.Int("success_count", result.SuccessCount),
		zap.Int("error_count", result.ErrorCount),
	)
	return result, nil
}

func (s *Service) importRequest(ctx context.Context, columns map[string]int, record []string) (domain.CreateLicenseRequest, error) {
	field := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	req := domain.CreateLicenseRequest{
		ProductCode: orDefault(field(colProductCode), defaultImportProductCode),
		StartDate:   field(colStartDate),
		EndDate:     field(colEndDate),
		Currency:    orDefault(field(colCurrency), defaultImportCurrency),
		Status:      orDefault(field(colStatus), string(defaultStatus)),
	}

	owner := field(colCompany)
	if owner == "" {
		return domain.CreateLicenseRequest{}, domain.ErrInvalidOwner
	}
	company, err := s.reference.FindCompanyByName(ctx, owner)
	if err != nil {
		return domain.CreateLicenseRequest{}, err
	}
	if company != nil {
		req.CompanyID = &company.ID
	} else {
		partner, err := s.reference.FindPartnerByName(ctx, owner)
		if err != nil {
			return domain.CreateLicenseRequest{}, err
		}
		if partner == nil {
			return domain.CreateLicenseRequest{}, fmt.Errorf("%w: %s", domain.ErrUnknownCompany, owner)
		}
		req.PartnerID = &partner.ID
	}

	count, err := parseCount(field(colNumberOfLicenses))
	if err != nil {
		return domain.CreateLicenseRequest{}, err
	}
	cost, err := parseCost(field(colCostPerLicense))
	if err != nil {
		return domain.CreateLicenseRequest{}, err
	}
	req.NumberOfLicenses = count
	req.CostPerLicense = cost
	return req, nil
}

func addRowError(result *domain.ImportResult, row int, err error) {
	result.ErrorCount++
	result.Errors = append(result.Errors, domain.RowError{Row: row, Reason: err.Error()})
}

func indexColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for idx, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if name == "" {
			continue
		}
		if _, exists := columns[name]; !exists {
			columns[name] = idx
		}
	}
	return columns
}

func blankRecord(record []string) bool {
	for _, value := range record {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

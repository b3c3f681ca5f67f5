package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ListLicenseRequest struct {
	StartFrom *time.Time
	StartTo   *time.Time
}

type CreateLicenseRequest struct {
	CompanyID        *int64          `json:"company_id"`
	PartnerID        *int64          `json:"partner_id"`
	ProductCode      string          `json:"product_code"`
	StartDate        string          `json:"start_date"`
	EndDate          string          `json:"end_date"`
	NumberOfLicenses int             `json:"number_of_licenses"`
	CostPerLicense   decimal.Decimal `json:"cost_per_license"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
}

// UpdateLicenseRequest carries only the fields to change. Owner and product are immutable
// and rejected when they differ from the stored record. ExpectedUpdatedAt opts into a
// stale-write check; without it the last writer wins.
type UpdateLicenseRequest struct {
	CompanyID         *int64           `json:"company_id"`
	PartnerID         *int64           `json:"partner_id"`
	ProductCode       *string          `json:"product_code"`
	StartDate         *string          `json:"start_date"`
	EndDate           *string          `json:"end_date"`
	NumberOfLicenses  *int             `json:"number_of_licenses"`
	CostPerLicense    *decimal.Decimal `json:"cost_per_license"`
	Currency          *string          `json:"currency"`
	Status            *string          `json:"status"`
	ExpectedUpdatedAt *time.Time       `json:"expected_updated_at"`
}

type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type ImportResult struct {
	BatchID      string     `json:"batch_id"`
	SuccessCount int        `json:"success_count"`
	ErrorCount   int        `json:"error_count"`
	Errors       []RowError `json:"errors,omitempty"`
}

type Service interface {
	List(ctx context.Context, req ListLicenseRequest) ([]License, error)
	Get(ctx context.Context, id string) (License, error)
	Create(ctx context.Context, req CreateLicenseRequest) (License, error)
	Update(ctx context.Context, id string, req UpdateLicenseRequest) (License, error)
	Delete(ctx context.Context, id string) error
	Import(ctx context.Context, r io.Reader) (ImportResult, error)
	ExportCSV(ctx context.Context, w io.Writer, licenses []License) error
	Invalidate(ctx context.Context)
}

// MaxLicenses is the largest number_of_licenses the INT column holds.
const MaxLicenses = math.MaxInt32

var (
	ErrInvalidID          = errors.New("invalid_id")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidOwner       = errors.New("exactly_one_of_company_or_partner_required")
	ErrUnknownCompany     = errors.New("unknown_company")
	ErrUnknownPartner     = errors.New("unknown_partner")
	ErrUnknownProductCode = errors.New("unknown_product_code")
	ErrInvalidDate        = errors.New("invalid_date")
	ErrInvalidDateRange   = errors.New("invalid_date_range")
	ErrInvalidCount       = errors.New("invalid_number_of_licenses")
	ErrInvalidCost        = errors.New("invalid_cost_per_license")
	ErrInvalidCurrency    = errors.New("invalid_currency")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrImmutableField     = errors.New("immutable_field")
	ErrConflict           = errors.New("stale_update")
	ErrImportInProgress   = errors.New("import_in_progress")
	ErrEmptyImport        = errors.New("empty_import")
)

// ImportColumnsError rejects an upload before any row is processed.
type ImportColumnsError struct {
	Missing []string
}

func (e *ImportColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/licenseboard/internal/audit/domain"
	"github.com/smallbiznis/licenseboard/internal/cache"
	"github.com/smallbiznis/licenseboard/internal/clock"
	"github.com/smallbiznis/licenseboard/internal/config"
	"github.com/smallbiznis/licenseboard/internal/license/domain"
	"github.com/smallbiznis/licenseboard/internal/observability/metrics"
	"github.com/smallbiznis/licenseboard/internal/ratelimit"
	referencedomain "github.com/smallbiznis/licenseboard/internal/reference/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultStatus = domain.StatusActive

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Reference referencedomain.Repository
	Snapshots cache.SnapshotStore
	Dashboard *config.DashboardConfigHolder
	Audit     auditdomain.Service `optional:"true"`
	Metrics   *metrics.Metrics    `optional:"true"`
	Guard     *ratelimit.Guard    `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	reference referencedomain.Repository
	snapshots cache.SnapshotStore
	dashboard *config.DashboardConfigHolder
	audit     auditdomain.Service
	metrics   *metrics.Metrics
	guard     *ratelimit.Guard
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("license.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		reference: p.Reference,
		snapshots: p.Snapshots,
		dashboard: p.Dashboard,
		audit:     p.Audit,
		metrics:   p.Metrics,
		guard:     p.Guard,
	}
}

// List reads licenses whose start date falls in the range, through the snapshot cache.
func (s *Service) List(ctx context.Context, req domain.ListLicenseRequest) ([]domain.License, error) {
	if req.StartFrom != nil && req.StartTo != nil && req.StartFrom.After(*req.StartTo) {
		return nil, domain.ErrInvalidDateRange
	}

	key := snapshotKey(req)
	if cached, ok := s.readSnapshot(ctx, key); ok {
		s.metrics.RecordLicenseCache(ctx, "hit")
		return cached, nil
	}
	s.metrics.RecordLicenseCache(ctx, "miss")

	licenses, err := s.repo.List(ctx, s.db, domain.ListFilter{
		StartFrom: req.StartFrom,
		StartTo:   req.StartTo,
	})
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}

	s.writeSnapshot(ctx, key, licenses)
	return licenses, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.License, error) {
	licenseID, err := parseID(id)
	if err != nil {
		return domain.License{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, licenseID)
	if err != nil {
		return domain.License{}, err
	}
	if item == nil {
		return domain.License{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateLicenseRequest) (domain.License, error) {
	license, err := s.insert(ctx, req)
	if err != nil {
		s.metrics.RecordLicenseMutation(ctx, "create", "rejected")
		return domain.License{}, err
	}

	s.metrics.RecordLicenseMutation(ctx, "create", "success")
	s.Invalidate(ctx)
	s.recordAudit(ctx, "license.create", license.ID, map[string]any{
		"product_code":       license.ProductCode,
		"number_of_licenses": license.NumberOfLicenses,
		"total_cost":         license.TotalCost.StringFixed(2),
		"currency":           license.Currency,
	})
	return license, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateLicenseRequest) (domain.License, error) {
	licenseID, err := parseID(id)
	if err != nil {
		return domain.License{}, err
	}

	current, err := s.repo.FindByID(ctx, s.db, licenseID)
	if err != nil {
		return domain.License{}, err
	}
	if current == nil {
		s.metrics.RecordLicenseMutation(ctx, "update", "not_found")
		return domain.License{}, domain.ErrNotFound
	}

	updated, changes, err := s.applyUpdate(*current, req)
	if err != nil {
		s.metrics.RecordLicenseMutation(ctx, "update", "rejected")
		return domain.License{}, err
	}
	if len(changes) == 0 {
		return *current, nil
	}
	updated.UpdatedAt = s.clock.Now().UTC()

	affected, err := s.repo.Update(ctx, s.db, &updated)
	if err != nil {
		s.metrics.RecordLicenseMutation(ctx, "update", "error")
		return domain.License{}, fmt.Errorf("update license: %w", err)
	}
	if affected == 0 {
		s.metrics.RecordLicenseMutation(ctx, "update", "not_found")
		return domain.License{}, domain.ErrNotFound
	}

	s.metrics.RecordLicenseMutation(ctx, "update", "success")
	s.Invalidate(ctx)
	s.recordAudit(ctx, "license.update", updated.ID, map[string]any{"changes": changes})
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	licenseID, err := parseID(id)
	if err != nil {
		return err
	}

	affected, err := s.repo.Delete(ctx, s.db, licenseID)
	if err != nil {
		s.metrics.RecordLicenseMutation(ctx, "delete", "error")
		return fmt.Errorf("delete license: %w", err)
	}
	if affected == 0 {
		s.metrics.RecordLicenseMutation(ctx, "delete", "not_found")
		return domain.ErrNotFound
	}

	s.metrics.RecordLicenseMutation(ctx, "delete", "success")
	s.Invalidate(ctx)
	s.recordAudit(ctx, "license.delete", licenseID, nil)
	return nil
}

// Invalidate drops every cached license snapshot.
func (s *Service) Invalidate(ctx context.Context) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.Invalidate(ctx); err != nil {
		s.log.Warn("failed to invalidate license snapshots", zap.Error(err))
	}
}

// insert validates a create request and persists it without side effects on cache or audit.
func (s *Service) insert(ctx context.Context, req domain.CreateLicenseRequest) (domain.License, error) {
	cfg := s.dashboard.Get()

	license, err := s.buildLicense(ctx, cfg, req)
	if err != nil {
		return domain.License{}, err
	}

	now := s.clock.Now().UTC()
	license.ID = s.genID.Generate()
	license.CreatedAt = now
	license.UpdatedAt = now

	if err := s.repo.Insert(ctx, s.db, &license); err != nil {
		return domain.License{}, fmt.Errorf("insert license: %w", err)
	}
	return license, nil
}

func (s *Service) buildLicense(ctx context.Context, cfg config.DashboardConfig, req domain.CreateLicenseRequest) (domain.License, error) {
	companyID := positiveID(req.CompanyID)
	partnerID := positiveID(req.PartnerID)
	if (companyID == nil) == (partnerID == nil) {
		return domain.License{}, domain.ErrInvalidOwner
	}

	license := domain.License{}
	if companyID != nil {
		company, err := s.reference.GetCompany(ctx, *companyID)
		if err != nil {
			return domain.License{}, err
		}
		if company == nil {
			return domain.License{}, domain.ErrUnknownCompany
		}
		license.CompanyID = &company.ID
		license.CompanyName = company.Name
	} else {
		partner, err := s.reference.GetPartner(ctx, *partnerID)
		if err != nil {
			return domain.License{}, err
		}
		if partner == nil {
			return domain.License{}, domain.ErrUnknownPartner
		}
		license.PartnerID = &partner.ID
		license.PartnerName = partner.Name
	}

	code := strings.ToUpper(strings.TrimSpace(req.ProductCode))
	if code == "" {
		return domain.License{}, fmt.Errorf("%w: product code is required", domain.ErrUnknownProductCode)
	}
	product, err := s.reference.GetProductCodeByCode(ctx, code)
	if err != nil {
		return domain.License{}, err
	}
	if product == nil {
		return domain.License{}, fmt.Errorf("%w: %s", domain.ErrUnknownProductCode, code)
	}
	license.ProductCodeID = product.ID
	license.ProductCode = product.Code
	license.ProductLabel = product.Label

	start, err := parseDate(req.StartDate)
	if err != nil {
		return domain.License{}, err
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		return domain.License{}, err
	}
	license.StartDate = start
	license.EndDate = end

	license.NumberOfLicenses = req.NumberOfLicenses
	license.CostPerLicense = req.CostPerLicense

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	license.Currency = currency

	status := defaultStatus
	if strings.TrimSpace(req.Status) != "" {
		parsed, ok := domain.ParseStatus(req.Status)
		if !ok {
			return domain.License{}, domain.ErrInvalidStatus
		}
		status = parsed
	}
	license.Status = status

	if err := validateMutable(cfg, license); err != nil {
		return domain.License{}, err
	}
	license.TotalCost = domain.TotalCost(license.NumberOfLicenses, license.CostPerLicense)
	return license, nil
}

func (s *Service) applyUpdate(current domain.License, req domain.UpdateLicenseRequest) (domain.License, map[string]any, error) {
	if req.ExpectedUpdatedAt != nil && !req.ExpectedUpdatedAt.UTC().Equal(current.UpdatedAt.UTC()) {
		return domain.License{}, nil, domain.ErrConflict
	}
	if req.CompanyID != nil && !sameID(current.CompanyID, req.CompanyID) {
		return domain.License{}, nil, fmt.Errorf("%w: company_id", domain.ErrImmutableField)
	}
	if req.PartnerID != nil && !sameID(current.PartnerID, req.PartnerID) {
		return domain.License{}, nil, fmt.Errorf("%w: partner_id", domain.ErrImmutableField)
	}
	if req.ProductCode != nil && !strings.EqualFold(strings.TrimSpace(*req.ProductCode), current.ProductCode) {
		return domain.License{}, nil, fmt.Errorf("%w: product_code", domain.ErrImmutableField)
	}

	updated := current
	changes := map[string]any{}

	if req.StartDate != nil {
		start, err := parseDate(*req.StartDate)
		if err != nil {
			return domain.License{}, nil, err
		}
		if !start.Equal(current.StartDate) {
			updated.StartDate = start
			changes["start_date"] = start.Format(domain.DateLayout)
		}
	}
	if req.EndDate != nil {
		end, err := parseDate(*req.EndDate)
		if err != nil {
			return domain.License{}, nil, err
		}
		if !end.Equal(current.EndDate) {
			updated.EndDate = end
			changes["end_date"] = end.Format(domain.DateLayout)
		}
	}
	if req.NumberOfLicenses != nil && *req.NumberOfLicenses != current.NumberOfLicenses {
		updated.NumberOfLicenses = *req.NumberOfLicenses
		changes["number_of_licenses"] = updated.NumberOfLicenses
	}
	if req.CostPerLicense != nil && !req.CostPerLicense.Equal(current.CostPerLicense) {
		updated.CostPerLicense = *req.CostPerLicense
		changes["cost_per_license"] = updated.CostPerLicense.String()
	}
	if req.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*req.Currency))
		if currency != current.Currency {
			updated.Currency = currency
			changes["currency"] = currency
		}
	}
	if req.Status != nil {
		status, ok := domain.ParseStatus(*req.Status)
		if !ok {
			return domain.License{}, nil, domain.ErrInvalidStatus
		}
		if status != current.Status {
			updated.Status = status
			changes["status"] = string(status)
		}
	}

	if err := validateMutable(s.dashboard.Get(), updated); err != nil {
		return domain.License{}, nil, err
	}

	total := domain.TotalCost(updated.NumberOfLicenses, updated.CostPerLicense)
	if !total.Equal(current.TotalCost) {
		changes["total_cost"] = total.StringFixed(2)
	}
	updated.TotalCost = total
	return updated, changes, nil
}

func validateMutable(cfg config.DashboardConfig, license domain.License) error {
	if license.EndDate.Before(license.StartDate) {
		return domain.ErrInvalidDateRange
	}
	if license.NumberOfLicenses <= 0 || license.NumberOfLicenses > domain.MaxLicenses {
		return domain.ErrInvalidCount
	}
	if !license.CostPerLicense.IsPositive() {
		return domain.ErrInvalidCost
	}
	if len(license.Currency) != 3 || !cfg.CurrencyAllowed(license.Currency) {
		return fmt.Errorf("%w: %s", domain.ErrInvalidCurrency, license.Currency)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action string, id snowflake.ID, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	targetID := id.String()
	_ = s.audit.AuditLog(ctx, action, "license", &targetID, metadata)
}

func (s *Service) readSnapshot(ctx context.Context, key string) ([]domain.License, bool) {
	if s.snapshots == nil {
		return nil, false
	}
	payload, ok, err := s.snapshots.Get(ctx, key)
	if err != nil {
		s.log.Warn("license snapshot read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var licenses []domain.License
	if err := json.Unmarshal(payload, &licenses); err != nil {
		s.log.Warn("license snapshot is corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return licenses, true
}

func (s *Service) writeSnapshot(ctx context.Context, key string, licenses []domain.License) {
	if s.snapshots == nil {
		return
	}
	payload, err := json.Marshal(licenses)
	if err != nil {
		s.log.Warn("license snapshot encode failed", zap.Error(err))
		return
	}
	if err := s.snapshots.Set(ctx, key, payload, s.dashboard.Get().LicenseCacheTTL); err != nil {
		s.log.Warn("license snapshot write failed", zap.String("key", key), zap.Error(err))
	}
}

func snapshotKey(req domain.ListLicenseRequest) string {
	from, to := "*", "*"
	if req.StartFrom != nil {
		from = req.StartFrom.UTC().Format(domain.DateLayout)
	}
	if req.StartTo != nil {
		to = req.StartTo.UTC().Format(domain.DateLayout)
	}
	return "licenses:" + from + ":" + to
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

var dateLayouts = []string{
	domain.DateLayout,
	"2006/01/02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"02/01/2006",
}

// parseDate accepts ISO dates and day-first slash dates.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: date is required", domain.ErrInvalidDate)
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return domain.DateOnly(parsed), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", domain.ErrInvalidDate, value)
}

func parseCount(value string) (int, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil || !parsed.IsInteger() || !parsed.IsPositive() ||
		parsed.GreaterThan(decimal.NewFromInt(domain.MaxLicenses)) {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidCount, value)
	}
	return int(parsed.IntPart()), nil
}

func parseCost(value string) (decimal.Decimal, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", domain.ErrInvalidCost, value)
	}
	return parsed, nil
}

func positiveID(id *int64) *int64 {
	if id == nil || *id <= 0 {
		return nil
	}
	return id
}

func sameID(current, requested *int64) bool {
	requested = positiveID(requested)
	if current == nil || requested == nil {
		return current == nil && requested == nil
	}
	return *current == *requested
}

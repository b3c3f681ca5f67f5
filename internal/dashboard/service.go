package dashboard

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/licenseboard/internal/activity"
	"github.com/smallbiznis/licenseboard/internal/clock"
	"github.com/smallbiznis/licenseboard/internal/config"
	licensedomain "github.com/smallbiznis/licenseboard/internal/license/domain"
	"github.com/smallbiznis/licenseboard/internal/observability/metrics"
	"github.com/smallbiznis/licenseboard/internal/providers/pdf"
	referencedomain "github.com/smallbiznis/licenseboard/internal/reference/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// KPISink receives every rendered dashboard. Implementations must not block the render.
type KPISink interface {
	Observe(ctx context.Context, dashboard Dashboard)
}

// Dashboard is one fully computed view.
type Dashboard struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Scope       string           `json:"scope"`
	View        ViewState        `json:"view"`
	Rows        []Row            `json:"rows"`
	Entities    []EntitySummary  `json:"entities"`
	Currencies  []CurrencyRollup `json:"currencies"`
	KPIs        KPIs             `json:"kpis"`
	Insights    Insights         `json:"insights"`
	Excluded    []Excluded       `json:"excluded"`
}

// FilterOptions lists the values a caller can pick from in each multi-select.
type FilterOptions struct {
	Entities     []string `json:"entities"`
	Statuses     []string `json:"statuses"`
	Currencies   []string `json:"currencies"`
	ProductCodes []string `json:"product_codes"`
}

// Report is a rendered PDF with its download name.
type Report struct {
	Filename string
	Body     io.Reader
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Dashboard *config.DashboardConfigHolder
	Licenses  licensedomain.Service
	Reference referencedomain.Repository
	Activity  activity.Set
	PDF       pdf.Provider     `optional:"true"`
	Metrics   *metrics.Metrics `optional:"true"`
	Sink      KPISink          `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	clock     clock.Clock
	cfg       *config.DashboardConfigHolder
	licenses  licensedomain.Service
	reference referencedomain.Repository
	activity  activity.Set
	pdf       pdf.Provider
	metrics   *metrics.Metrics
	sink      KPISink
}

func NewService(p Params) *Service {
	return &Service{
		log:       p.Log.Named("dashboard.service"),
		clock:     p.Clock,
		cfg:       p.Dashboard,
		licenses:  p.Licenses,
		reference: p.Reference,
		activity:  p.Activity,
		pdf:       p.PDF,
		metrics:   p.Metrics,
		sink:      p.Sink,
	}
}

// Render loads licenses for the view, filters them, merges freshly computed activity
// metrics and derives every summary. Activity failures degrade to zero counts.
func (s *Service) Render(ctx context.Context, view ViewState, scope activity.RoleScope) (Dashboard, error) {
	if err := view.Validate(); err != nil {
		return Dashboard{}, err
	}
	if view.Mode == "" {
		view.Mode = ModeAll
	}

	cfg := s.cfg.Get()
	now := s.clock.Now()

	rows, excluded, err := s.loadRows(ctx, view, scope, now, cfg)
	if err != nil {
		return Dashboard{}, err
	}
	rows = Apply(rows, view, cfg)

	rows = Merge(rows, s.aggregate(ctx, now, scope), cfg.JoinKey)
	rows = Calculate(rows, view.Mode)

	thresholds := ThresholdsFrom(cfg)
	entities := SummarizeEntities(rows, view.Mode, thresholds)
	currencies := RollupCurrencies(rows)
	kpis := ComputeKPIs(rows, entities, currencies, view.Mode, cfg.JoinKey)

	dashboard := Dashboard{
		GeneratedAt: now,
		Scope:       scope.String(),
		View:        view,
		Rows:        rows,
		Entities:    entities,
		Currencies:  currencies,
		KPIs:        kpis,
		Insights:    DeriveInsights(rows, entities, kpis, view.Mode, now, cfg),
		Excluded:    excluded,
	}
	if dashboard.Excluded == nil {
		dashboard.Excluded = []Excluded{}
	}

	s.metrics.RecordDashboardRender(ctx, string(view.Mode))
	if s.sink != nil {
		s.sink.Observe(ctx, dashboard)
	}
	return dashboard, nil
}

// Licenses returns the license records behind the filtered rows, in row order.
func (s *Service) Licenses(ctx context.Context, view ViewState, scope activity.RoleScope) ([]licensedomain.License, error) {
	if err := view.Validate(); err != nil {
		return nil, err
	}
	cfg := s.cfg.Get()
	licenses, err := s.scopedLicenses(ctx, view, scope, s.clock.Now(), cfg)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]licensedomain.License, len(licenses))
	for _, item := range licenses {
		byID[item.ID.Int64()] = item
	}
	rows, _ := BuildRows(licenses)
	rows = Apply(rows, view, cfg)

	out := make([]licensedomain.License, 0, len(rows))
	for _, row := range rows {
		out = append(out, byID[row.LicenseID.Int64()])
	}
	return out, nil
}

func (s *Service) FilterOptions(ctx context.Context, mode Mode, scope activity.RoleScope) (FilterOptions, error) {
	cfg := s.cfg.Get()
	view := DefaultViewState()
	view.Mode = mode

	rows, _, err := s.loadRows(ctx, view, scope, s.clock.Now(), cfg)
	if err != nil {
		return FilterOptions{}, err
	}
	rows = Apply(rows, view, cfg)

	entities := map[string]struct{}{}
	statuses := map[string]struct{}{}
	currencies := map[string]struct{}{}
	codes := map[string]struct{}{}
	for _, row := range rows {
		entities[row.Entity.Label()] = struct{}{}
		statuses[string(row.Status)] = struct{}{}
		currencies[row.Currency] = struct{}{}
		codes[row.ProductCode] = struct{}{}
	}
	return FilterOptions{
		Entities:     sortedKeys(entities),
		Statuses:     sortedKeys(statuses),
		Currencies:   sortedKeys(currencies),
		ProductCodes: sortedKeys(codes),
	}, nil
}

// Report renders the dashboard and prints it as a PDF.
func (s *Service) Report(ctx context.Context, view ViewState, scope activity.RoleScope) (Report, error) {
	if s.pdf == nil {
		return Report{}, ErrReportUnavailable
	}
	dashboard, err := s.Render(ctx, view, scope)
	if err != nil {
		return Report{}, err
	}

	title := "License Utilization Report"
	if dashboard.View.Mode != ModeAll {
		mode := string(dashboard.View.Mode)
		title = fmt.Sprintf("%s License Utilization Report", strings.ToUpper(mode[:1])+mode[1:])
	}
	body, err := s.pdf.GenerateLicenseReport(ctx, reportData(title, dashboard))
	if err != nil {
		return Report{}, fmt.Errorf("generate report: %w", err)
	}

	filename := slug.Make(title+" "+dashboard.GeneratedAt.Format("2006-01-02")) + ".pdf"
	return Report{Filename: filename, Body: body}, nil
}

func (s *Service) loadRows(ctx context.Context, view ViewState, scope activity.RoleScope, now time.Time, cfg config.DashboardConfig) ([]Row, []Excluded, error) {
	licenses, err := s.scopedLicenses(ctx, view, scope, now, cfg)
	if err != nil {
		return nil, nil, err
	}
	rows, excluded := BuildRows(licenses)
	for _, item := range excluded {
		s.log.Warn("license excluded from dashboard",
			zap.String("license_id", item.LicenseID.String()),
			zap.String("reason", item.Reason),
		)
	}
	return rows, excluded, nil
}

// scopedLicenses loads the license window and keeps only those the scope may see.
// Without an explicit start date the trailing load window applies.
func (s *Service) scopedLicenses(ctx context.Context, view ViewState, scope activity.RoleScope, now time.Time, cfg config.DashboardConfig) ([]licensedomain.License, error) {
	from := calendarDay(now.UTC()).AddDate(0, 0, -cfg.LoadWindowDays)
	if view.StartDate != nil {
		from = calendarDay(*view.StartDate)
	}
	req := licensedomain.ListLicenseRequest{StartFrom: &from}
	if view.EndDate != nil {
		to := calendarDay(*view.EndDate)
		req.StartTo = &to
	}

	licenses, err := s.licenses.List(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("load licenses: %w", err)
	}
	return s.filterScope(ctx, licenses, scope)
}

func (s *Service) filterScope(ctx context.Context, licenses []licensedomain.License, scope activity.RoleScope) ([]licensedomain.License, error) {
	switch scope.Role {
	case activity.ScopeAdmin, "":
		return licenses, nil
	case activity.ScopeCompany:
		if scope.CompanyID == nil {
			return []licensedomain.License{}, nil
		}
		out := make([]licensedomain.License, 0, len(licenses))
		for _, item := range licenses {
			if item.CompanyID != nil && *item.CompanyID == *scope.CompanyID {
				out = append(out, item)
			}
		}
		return out, nil
	case activity.ScopePartner:
		if scope.PartnerID == nil {
			return []licensedomain.License{}, nil
		}
		companies, err := s.reference.ListActiveCompanies(ctx)
		if err != nil {
			return nil, fmt.Errorf("load companies: %w", err)
		}
		children := make(map[int64]struct{})
		for _, company := range companies {
			if company.PartnerID != nil && *company.PartnerID == *scope.PartnerID {
				children[company.ID] = struct{}{}
			}
		}
		out := make([]licensedomain.License, 0, len(licenses))
		for _, item := range licenses {
			if item.PartnerID != nil && *item.PartnerID == *scope.PartnerID {
				out = append(out, item)
				continue
			}
			if item.CompanyID != nil {
				if _, ok := children[*item.CompanyID]; ok {
					out = append(out, item)
				}
			}
		}
		return out, nil
	default:
		return []licensedomain.License{}, nil
	}
}

// aggregate runs the three aggregators concurrently and returns once all have finished,
// so a render stays synchronous for its caller. Each degrades on its own. Results keep the
// order of activity.Set.All regardless of completion order, so the merge is deterministic.
func (s *Service) aggregate(ctx context.Context, now time.Time, scope activity.RoleScope) []MetricResult {
	aggregators := s.activity.All()
	results := make([]MetricResult, len(aggregators))

	var wg sync.WaitGroup
	for i, aggregator := range aggregators {
		if aggregator == nil {
			continue
		}
		wg.Add(1)
		go func(i int, aggregator *activity.Aggregator) {
			defer wg.Done()
			results[i] = MetricResult{
				Kind:   aggregator.Kind(),
				Counts: aggregator.Aggregate(ctx, now, scope),
			}
		}(i, aggregator)
	}
	wg.Wait()

	out := results[:0]
	for _, result := range results {
		if result.Kind != "" {
			out = append(out, result)
		}
	}
	return out
}

func reportData(title string, dashboard Dashboard) pdf.ReportData {
	view := dashboard.View
	filters := []string{"Mode: " + string(view.Mode)}
	if view.StartDate != nil || view.EndDate != nil {
		filters = append(filters, "Start date: "+formatDate(view.StartDate)+" to "+formatDate(view.EndDate))
	}
	for _, item := range []struct {
		label     string
		selection Selection
	}{
		{"Entities", view.Entities},
		{"Statuses", view.Statuses},
		{"Currencies", view.Currencies},
		{"Product codes", view.ProductCodes},
	} {
		if !item.selection.All {
			filters = append(filters, item.label+": "+strings.Join(item.selection.Values, ", "))
		}
	}

	kpis := dashboard.KPIs
	data := pdf.ReportData{
		Title:       title,
		GeneratedAt: dashboard.GeneratedAt,
		Scope:       dashboard.Scope,
		Filters:     filters,
		KPIs: []pdf.Figure{
			{Label: "License records", Value: fmt.Sprintf("%d", kpis.LicenseRecords)},
			{Label: "Licenses", Value: fmt.Sprintf("%d", kpis.NumberOfLicenses)},
			{Label: "Active licenses", Value: fmt.Sprintf("%d", kpis.ActiveLicenses)},
			{Label: "Entities", Value: fmt.Sprintf("%d", kpis.Entities)},
			{Label: "Portal users", Value: fmt.Sprintf("%d", kpis.PortalUserCount)},
			{Label: "Active users", Value: fmt.Sprintf("%d", kpis.ActiveUserCount)},
			{Label: "Active relay devices", Value: fmt.Sprintf("%d", kpis.ActiveRelayDeviceCount)},
			{Label: "Active utilization", Value: formatPct(kpis.ActiveUtilizationPct)},
		},
		Excluded: len(dashboard.Excluded),
	}
	for _, rollup := range dashboard.Currencies {
		data.Currencies = append(data.Currencies, pdf.CurrencyLine{
			Currency:       rollup.Currency,
			Records:        rollup.LicenseRecords,
			Licenses:       rollup.NumberOfLicenses,
			TotalRevenue:   rollup.TotalRevenue.StringFixed(2),
			AvgCostPerUnit: rollup.AvgCostPerLicense.StringFixed(2),
		})
	}
	for _, row := range dashboard.Rows {
		data.Rows = append(data.Rows, pdf.ReportRow{
			Entity:      row.Entity.Label(),
			ProductCode: row.ProductCode,
			StartDate:   row.StartDate.Format(licensedomain.DateLayout),
			EndDate:     row.EndDate.Format(licensedomain.DateLayout),
			Licenses:    row.NumberOfLicenses,
			TotalCost:   row.TotalCost.StringFixed(2) + " " + row.Currency,
			ActivePct:   formatPct(row.ActiveUtilizationPct),
			TotalPct:    formatPct(row.TotalUtilizationPct),
			Status:      string(row.Status),
		})
	}
	return data
}

func formatPct(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "any"
	}
	return t.Format(licensedomain.DateLayout)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		if key != "" {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

package dashboard

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/licenseboard/internal/config"
	"github.com/smallbiznis/licenseboard/internal/entity"
	licensedomain "github.com/smallbiznis/licenseboard/internal/license/domain"
)

type UtilizationStatus string

const (
	OverUtilized  UtilizationStatus = "Over-utilized"
	WellUtilized  UtilizationStatus = "Well-utilized"
	UnderUtilized UtilizationStatus = "Under-utilized"
)

// Thresholds bound the Well-utilized band, inclusive on both ends.
type Thresholds struct {
	Under float64
	Over  float64
}

func ThresholdsFrom(cfg config.DashboardConfig) Thresholds {
	return Thresholds{Under: cfg.UnderThreshold, Over: cfg.OverThreshold}
}

func Classify(ratio float64, t Thresholds) UtilizationStatus {
	switch {
	case ratio > t.Over:
		return OverUtilized
	case ratio >= t.Under:
		return WellUtilized
	default:
		return UnderUtilized
	}
}

// Ratio divides and maps division by zero and non-finite results to 0.
func Ratio(numerator, denominator int) float64 {
	if denominator <= 0 || numerator <= 0 {
		return 0
	}
	return finite(float64(numerator) / float64(denominator))
}

// Percent is Ratio × 100 rounded to one decimal.
func Percent(numerator, denominator int) float64 {
	return round1(Ratio(numerator, denominator) * 100)
}

func round1(v float64) float64 {
	return finite(math.Round(v*10) / 10)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// RelevantActive is the relay device count on the relay dashboard, the active user count otherwise.
func RelevantActive(mode Mode, activeUsers, activeRelayDevices int) int {
	if mode == ModeRelay {
		return activeRelayDevices
	}
	return activeUsers
}

// Calculate fills the per-row utilization percentages.
func Calculate(rows []Row, mode Mode) []Row {
	out := make([]Row, len(rows))
	for i, row := range rows {
		active := RelevantActive(mode, row.ActiveUserCount, row.ActiveRelayDeviceCount)
		row.ActiveUtilizationPct = Percent(active, row.NumberOfLicenses)
		row.TotalUtilizationPct = Percent(row.PortalUserCount, row.NumberOfLicenses)
		out[i] = row
	}
	return out
}

type CurrencyAmount struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// EntitySummary rolls all rows of one owner together. Activity metrics are owner-level
// values and are taken once, never summed across the owner's rows.
type EntitySummary struct {
	Entity                 entity.Entity     `json:"entity"`
	Label                  string            `json:"label"`
	LicenseRecords         int               `json:"license_records"`
	NumberOfLicenses       int               `json:"number_of_licenses"`
	PortalUserCount        int               `json:"portal_user_count"`
	ActiveUserCount        int               `json:"active_user_count"`
	ActiveRelayDeviceCount int               `json:"active_relay_device_count"`
	ActiveCount            int               `json:"active_count"`
	ActiveRatio            float64           `json:"active_ratio"`
	ActiveUtilizationPct   float64           `json:"active_utilization_pct"`
	TotalUtilizationPct    float64           `json:"total_utilization_pct"`
	Status                 UtilizationStatus `json:"utilization_status"`
	Spend                  []CurrencyAmount  `json:"spend"`
}

func SummarizeEntities(rows []Row, mode Mode, t Thresholds) []EntitySummary {
	index := make(map[entity.Key]int)
	var summaries []EntitySummary
	spend := make(map[entity.Key]map[string]decimal.Decimal)

	for _, row := range rows {
		key := row.Entity.Key()
		idx, ok := index[key]
		if !ok {
			idx = len(summaries)
			index[key] = idx
			summaries = append(summaries, EntitySummary{
				Entity:                 row.Entity,
				Label:                  row.Entity.Label(),
				PortalUserCount:        row.PortalUserCount,
				ActiveUserCount:        row.ActiveUserCount,
				ActiveRelayDeviceCount: row.ActiveRelayDeviceCount,
			})
			spend[key] = make(map[string]decimal.Decimal)
		}
		summary := &summaries[idx]
		summary.LicenseRecords++
		summary.NumberOfLicenses += row.NumberOfLicenses
		spend[key][row.Currency] = spend[key][row.Currency].Add(row.TotalCost)
	}

	for i := range summaries {
		summary := &summaries[i]
		summary.ActiveCount = RelevantActive(mode, summary.ActiveUserCount, summary.ActiveRelayDeviceCount)
		summary.ActiveRatio = Ratio(summary.ActiveCount, summary.NumberOfLicenses)
		summary.ActiveUtilizationPct = Percent(summary.ActiveCount, summary.NumberOfLicenses)
		summary.TotalUtilizationPct = Percent(summary.PortalUserCount, summary.NumberOfLicenses)
		summary.Status = Classify(summary.ActiveRatio, t)
		summary.Spend = sortedAmounts(spend[summary.Entity.Key()])
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Label < summaries[j].Label
	})
	return summaries
}

// CurrencyRollup is the financial total of one currency. Totals are never combined across currencies.
type CurrencyRollup struct {
	Currency          string          `json:"currency"`
	LicenseRecords    int             `json:"license_records"`
	NumberOfLicenses  int             `json:"number_of_licenses"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	AvgCostPerLicense decimal.Decimal `json:"avg_cost_per_license"`
}

func RollupCurrencies(rows []Row) []CurrencyRollup {
	index := make(map[string]int)
	var rollups []CurrencyRollup
	costSums := make(map[string]decimal.Decimal)

	for _, row := range rows {
		idx, ok := index[row.Currency]
		if !ok {
			idx = len(rollups)
			index[row.Currency] = idx
			rollups = append(rollups, CurrencyRollup{Currency: row.Currency, TotalRevenue: decimal.Zero})
		}
		rollup := &rollups[idx]
		rollup.LicenseRecords++
		rollup.NumberOfLicenses += row.NumberOfLicenses
		rollup.TotalRevenue = rollup.TotalRevenue.Add(row.TotalCost)
		costSums[row.Currency] = costSums[row.Currency].Add(row.CostPerLicense)
	}

	for i := range rollups {
		rollup := &rollups[i]
		rollup.TotalRevenue = rollup.TotalRevenue.Round(2)
		rollup.AvgCostPerLicense = decimal.Zero
		if rollup.LicenseRecords > 0 {
			rollup.AvgCostPerLicense = costSums[rollup.Currency].
				Div(decimal.NewFromInt(int64(rollup.LicenseRecords))).
				Round(2)
		}
	}

	sort.Slice(rollups, func(i, j int) bool { return rollups[i].Currency < rollups[j].Currency })
	return rollups
}

type KPIs struct {
	LicenseRecords         int     `json:"license_records"`
	ActiveLicenseRecords   int     `json:"active_license_records"`
	NumberOfLicenses       int     `json:"number_of_licenses"`
	ActiveLicenses         int     `json:"active_licenses"`
	Entities               int     `json:"entities"`
	Currencies             int     `json:"currencies"`
	PortalUserCount        int     `json:"portal_user_count"`
	ActiveUserCount        int     `json:"active_user_count"`
	ActiveRelayDeviceCount int     `json:"active_relay_device_count"`
	ActiveUtilizationPct   float64 `json:"active_utilization_pct"`
	TotalUtilizationPct    float64 `json:"total_utilization_pct"`
}

// ComputeKPIs derives headline numbers. Owner-level metrics are summed over distinct owners.
// Under the name join key a Company and a Partner sharing a name received the same merged
// counts, so they are summed once per name.
func ComputeKPIs(rows []Row, entities []EntitySummary, currencies []CurrencyRollup, mode Mode, joinKey string) KPIs {
	kpis := KPIs{
		LicenseRecords: len(rows),
		Entities:       len(entities),
		Currencies:     len(currencies),
	}
	for _, row := range rows {
		kpis.NumberOfLicenses += row.NumberOfLicenses
		if row.Status == licensedomain.StatusActive {
			kpis.ActiveLicenseRecords++
			kpis.ActiveLicenses += row.NumberOfLicenses
		}
	}
	seen := make(map[string]struct{}, len(entities))
	for _, summary := range entities {
		if joinKey == config.JoinKeyName {
			if _, dup := seen[summary.Entity.Name]; dup {
				continue
			}
			seen[summary.Entity.Name] = struct{}{}
		}
		kpis.PortalUserCount += summary.PortalUserCount
		kpis.ActiveUserCount += summary.ActiveUserCount
		kpis.ActiveRelayDeviceCount += summary.ActiveRelayDeviceCount
	}
	active := RelevantActive(mode, kpis.ActiveUserCount, kpis.ActiveRelayDeviceCount)
	kpis.ActiveUtilizationPct = Percent(active, kpis.NumberOfLicenses)
	kpis.TotalUtilizationPct = Percent(kpis.PortalUserCount, kpis.NumberOfLicenses)
	return kpis
}

type OverLimit struct {
	Label  string `json:"label"`
	Used   int    `json:"used"`
	Limit  int    `json:"limit"`
	Excess int    `json:"excess"`
}

type Expiring struct {
	LicenseID string    `json:"license_id"`
	Label     string    `json:"label"`
	EndDate   time.Time `json:"end_date"`
	DaysLeft  int       `json:"days_left"`
}

type Performer struct {
	Label                string  `json:"label"`
	ActiveCount          int     `json:"active_count"`
	ActiveUtilizationPct float64 `json:"active_utilization_pct"`
}

type QuickStats struct {
	Entities       int `json:"entities"`
	ActiveLicenses int `json:"active_licenses"`
	Currencies     int `json:"currencies"`
}

type StatusCount struct {
	Status UtilizationStatus `json:"status"`
	Count  int               `json:"count"`
}

type Insights struct {
	OverLimit          []OverLimit   `json:"over_limit"`
	ExpiringSoon       []Expiring    `json:"expiring_soon"`
	TopPerformers      []Performer   `json:"top_performers"`
	UtilizationSummary []StatusCount `json:"utilization_summary"`
	QuickStats         QuickStats    `json:"quick_stats"`
}

// DeriveInsights flags owners over their licensed count, active licenses ending within the
// horizon, and the top performers by active count.
func DeriveInsights(rows []Row, entities []EntitySummary, kpis KPIs, mode Mode, now time.Time, cfg config.DashboardConfig) Insights {
	insights := Insights{
		OverLimit:     []OverLimit{},
		ExpiringSoon:  []Expiring{},
		TopPerformers: []Performer{},
		QuickStats: QuickStats{
			Entities:       kpis.Entities,
			ActiveLicenses: kpis.ActiveLicenses,
			Currencies:     kpis.Currencies,
		},
	}

	statusCounts := map[UtilizationStatus]int{}
	for _, summary := range entities {
		statusCounts[summary.Status]++

		used := summary.PortalUserCount
		if mode == ModeRelay {
			used = summary.ActiveRelayDeviceCount
		}
		if used > summary.NumberOfLicenses {
			insights.OverLimit = append(insights.OverLimit, OverLimit{
				Label:  summary.Label,
				Used:   used,
				Limit:  summary.NumberOfLicenses,
				Excess: used - summary.NumberOfLicenses,
			})
		}
	}
	for _, status := range []UtilizationStatus{OverUtilized, WellUtilized, UnderUtilized} {
		insights.UtilizationSummary = append(insights.UtilizationSummary, StatusCount{Status: status, Count: statusCounts[status]})
	}

	today := calendarDay(now.UTC())
	horizon := today.AddDate(0, 0, cfg.ExpiryHorizonDays)
	for _, row := range rows {
		if row.Status != licensedomain.StatusActive || row.EndDate.After(horizon) {
			continue
		}
		insights.ExpiringSoon = append(insights.ExpiringSoon, Expiring{
			LicenseID: row.LicenseID.String(),
			Label:     row.Entity.Label(),
			EndDate:   row.EndDate,
			DaysLeft:  int(row.EndDate.Sub(today).Hours() / 24),
		})
	}
	sort.SliceStable(insights.ExpiringSoon, func(i, j int) bool {
		return insights.ExpiringSoon[i].EndDate.Before(insights.ExpiringSoon[j].EndDate)
	})

	ranked := append([]EntitySummary(nil), entities...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].ActiveCount != ranked[j].ActiveCount {
			return ranked[i].ActiveCount > ranked[j].ActiveCount
		}
		return ranked[i].Label < ranked[j].Label
	})
	for _, summary := range ranked {
		if len(insights.TopPerformers) >= cfg.TopPerformers {
			break
		}
		insights.TopPerformers = append(insights.TopPerformers, Performer{
			Label:                summary.Label,
			ActiveCount:          summary.ActiveCount,
			ActiveUtilizationPct: summary.ActiveUtilizationPct,
		})
	}
	return insights
}

func sortedAmounts(amounts map[string]decimal.Decimal) []CurrencyAmount {
	out := make([]CurrencyAmount, 0, len(amounts))
	for currency, amount := range amounts {
		out = append(out, CurrencyAmount{Currency: currency, Amount: amount.Round(2)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

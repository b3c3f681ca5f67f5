package dashboard

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/licenseboard/internal/entity"
	licensedomain "github.com/smallbiznis/licenseboard/internal/license/domain"
)

// Row is one license with its resolved owner, merged activity metrics and derived percentages.
// Every metric field defaults to zero.
type Row struct {
	LicenseID        snowflake.ID         `json:"license_id"`
	Entity           entity.Entity        `json:"entity"`
	CompanyName      string               `json:"company,omitempty"`
	PartnerName      string               `json:"partner,omitempty"`
	ProductCode      string               `json:"product_code"`
	ProductLabel     string               `json:"product_label"`
	StartDate        time.Time            `json:"start_date"`
	EndDate          time.Time            `json:"end_date"`
	NumberOfLicenses int                  `json:"number_of_licenses"`
	CostPerLicense   decimal.Decimal      `json:"cost_per_license"`
	TotalCost        decimal.Decimal      `json:"total_cost"`
	Currency         string               `json:"currency"`
	Status           licensedomain.Status `json:"status"`

	PortalUserCount        int `json:"portal_user_count"`
	ActiveUserCount        int `json:"active_user_count"`
	ActiveRelayDeviceCount int `json:"active_relay_device_count"`

	ActiveUtilizationPct float64 `json:"active_utilization_pct"`
	TotalUtilizationPct  float64 `json:"total_utilization_pct"`
}

// Excluded reports a license left out of the dashboard and why.
type Excluded struct {
	LicenseID snowflake.ID `json:"license_id"`
	Reason    string       `json:"reason"`
}

// BuildRows resolves the owner of every license. Licenses without an owner are excluded.
func BuildRows(licenses []licensedomain.License) ([]Row, []Excluded) {
	rows := make([]Row, 0, len(licenses))
	var excluded []Excluded
	for _, item := range licenses {
		owner, err := item.Entity()
		if err != nil {
			excluded = append(excluded, Excluded{LicenseID: item.ID, Reason: err.Error()})
			continue
		}
		rows = append(rows, Row{
			LicenseID:        item.ID,
			Entity:           owner,
			CompanyName:      item.CompanyName,
			PartnerName:      item.PartnerName,
			ProductCode:      item.ProductCode,
			ProductLabel:     item.ProductLabel,
			StartDate:        item.StartDate,
			EndDate:          item.EndDate,
			NumberOfLicenses: item.NumberOfLicenses,
			CostPerLicense:   item.CostPerLicense,
			TotalCost:        item.TotalCost,
			Currency:         item.Currency,
			Status:           item.Status,
		})
	}
	return rows, excluded
}

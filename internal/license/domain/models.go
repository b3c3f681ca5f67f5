package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/licenseboard/internal/entity"
)

const DateLayout = "2006-01-02"

type Status string

const (
	StatusActive  Status = "Active"
	StatusExpired Status = "Expired"
)

// ParseStatus matches Active or Expired case-insensitively.
func ParseStatus(value string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "active":
		return StatusActive, true
	case "expired":
		return StatusExpired, true
	default:
		return "", false
	}
}

// License is one purchased license grant joined with its owner and product labels.
type License struct {
	ID               snowflake.ID    `json:"id"`
	CompanyID        *int64          `json:"company_id,omitempty"`
	CompanyName      string          `json:"company,omitempty"`
	PartnerID        *int64          `json:"partner_id,omitempty"`
	PartnerName      string          `json:"partner,omitempty"`
	ProductCodeID    int64           `json:"product_code_id"`
	ProductCode      string          `json:"product_code"`
	ProductLabel     string          `json:"product_label"`
	StartDate        time.Time       `json:"start_date"`
	EndDate          time.Time       `json:"end_date"`
	NumberOfLicenses int             `json:"number_of_licenses"`
	CostPerLicense   decimal.Decimal `json:"cost_per_license"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	Currency         string          `json:"currency"`
	Status           Status          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Entity resolves the canonical owner of the license.
func (l License) Entity() (entity.Entity, error) {
	return entity.Resolve(int64(l.ID), l.CompanyName, l.PartnerName)
}

// TotalCost is always derived from the count and unit cost, rounded to cents.
func TotalCost(count int, costPerLicense decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(int64(count)).Mul(costPerLicense).Round(2)
}

// DateOnly truncates t to midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

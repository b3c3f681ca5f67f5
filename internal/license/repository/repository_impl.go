package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/licenseboard/internal/license/domain"
	"gorm.io/gorm"
)

const selectLicenses = `SELECT
	lr.id, lr.company_id, c.company_name, lr.partner_id, p.partner_name,
	lr.product_code_id, pc.code AS product_code, pc.label AS product_label,
	lr.start_date, lr.end_date, lr.number_of_licenses, lr.cost_per_license, lr.total_cost,
	lr.currency, lr.status, lr.created_at, lr.updated_at
FROM license_records lr
LEFT JOIN companies c ON c.id = lr.company_id
LEFT JOIN partners p ON p.id = lr.partner_id
LEFT JOIN license_product_codes pc ON pc.id = lr.product_code_id`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type licenseRow struct {
	ID               int64           `gorm:"column:id"`
	CompanyID        sql.NullInt64   `gorm:"column:company_id"`
	CompanyName      sql.NullString  `gorm:"column:company_name"`
	PartnerID        sql.NullInt64   `gorm:"column:partner_id"`
	PartnerName      sql.NullString  `gorm:"column:partner_name"`
	ProductCodeID    int64           `gorm:"column:product_code_id"`
	ProductCode      sql.NullString  `gorm:"column:product_code"`
	ProductLabel     sql.NullString  `gorm:"column:product_label"`
	StartDate        time.Time       `gorm:"column:start_date"`
	EndDate          time.Time       `gorm:"column:end_date"`
	NumberOfLicenses int             `gorm:"column:number_of_licenses"`
	CostPerLicense   decimal.Decimal `gorm:"column:cost_per_license"`
	TotalCost        decimal.Decimal `gorm:"column:total_cost"`
	Currency         string          `gorm:"column:currency"`
	Status           string          `gorm:"column:status"`
	CreatedAt        time.Time       `gorm:"column:created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at"`
}

func (r licenseRow) toDomain() domain.License {
	license := domain.License{
		ID:               snowflake.ID(r.ID),
		CompanyName:      r.CompanyName.String,
		PartnerName:      r.PartnerName.String,
		ProductCodeID:    r.ProductCodeID,
		ProductCode:      r.ProductCode.String,
		ProductLabel:     r.ProductLabel.String,
		StartDate:        domain.DateOnly(r.StartDate),
		EndDate:          domain.DateOnly(r.EndDate),
		NumberOfLicenses: r.NumberOfLicenses,
		CostPerLicense:   r.CostPerLicense,
		TotalCost:        r.TotalCost,
		Currency:         r.Currency,
		Status:           domain.Status(r.Status),
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
	if r.CompanyID.Valid {
		id := r.CompanyID.Int64
		license.CompanyID = &id
	}
	if r.PartnerID.Valid {
		id := r.PartnerID.Int64
		license.PartnerID = &id
	}
	return license
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.License, error) {
	query := selectLicenses + ` WHERE 1 = 1`
	args := make([]any, 0, 2)
	if filter.StartFrom != nil {
		query += ` AND lr.start_date >= ?`
		args = append(args, domain.DateOnly(*filter.StartFrom))
	}
	if filter.StartTo != nil {
		query += ` AND lr.start_date <= ?`
		args = append(args, domain.DateOnly(*filter.StartTo))
	}
	query += ` ORDER BY lr.start_date DESC, lr.id DESC`

	var rows []licenseRow
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}

	licenses := make([]domain.License, 0, len(rows))
	for _, row := range rows {
		licenses = append(licenses, row.toDomain())
	}
	return licenses, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.License, error) {
	var rows []licenseRow
	err := db.WithContext(ctx).
		Raw(selectLicenses+` WHERE lr.id = ?`, int64(id)).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	license := rows[0].toDomain()
	return &license, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, license *domain.License) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO license_records (
			id, company_id, partner_id, product_code_id, start_date, end_date,
			number_of_licenses, cost_per_license, total_cost, currency, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(license.ID),
		license.CompanyID,
		license.PartnerID,
		license.ProductCodeID,
		license.StartDate,
		license.EndDate,
		license.NumberOfLicenses,
		license.CostPerLicense,
		license.TotalCost,
		license.Currency,
		string(license.Status),
		license.CreatedAt,
		license.UpdatedAt,
	).Error
}

// Update writes the mutable columns only.
func (r *repo) Update(ctx context.Context, db *gorm.DB, license *domain.License) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE license_records SET
			start_date = ?, end_date = ?, number_of_licenses = ?, cost_per_license = ?,
			total_cost = ?, currency = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		license.StartDate,
		license.EndDate,
		license.NumberOfLicenses,
		license.CostPerLicense,
		license.TotalCost,
		license.Currency,
		string(license.Status),
		license.UpdatedAt,
		int64(license.ID),
	)
	return result.RowsAffected, result.Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).Exec(`DELETE FROM license_records WHERE id = ?`, int64(id))
	return result.RowsAffected, result.Error
}

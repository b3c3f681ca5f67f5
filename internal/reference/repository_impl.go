package reference

import (
	"context"
	"database/sql"
	"strings"

	"github.com/smallbiznis/licenseboard/internal/reference/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

type companyRow struct {
	ID        int64         `gorm:"column:id"`
	Name      string        `gorm:"column:company_name"`
	PartnerID sql.NullInt64 `gorm:"column:partner_id"`
}

func (r companyRow) toDomain() domain.Company {
	company := domain.Company{ID: r.ID, Name: r.Name}
	if r.PartnerID.Valid {
		id := r.PartnerID.Int64
		company.PartnerID = &id
	}
	return company
}

type partnerRow struct {
	ID   int64  `gorm:"column:id"`
	Name string `gorm:"column:partner_name"`
}

type productCodeRow struct {
	ID    int64  `gorm:"column:id"`
	Code  string `gorm:"column:code"`
	Label string `gorm:"column:label"`
}

func (r *repository) ListActiveCompanies(ctx context.Context) ([]domain.Company, error) {
	var rows []companyRow
	err := r.db.WithContext(ctx).
		Raw(`SELECT id, company_name, partner_id FROM companies WHERE active = ? ORDER BY company_name`, true).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	companies := make([]domain.Company, 0, len(rows))
	for _, item := range rows {
		companies = append(companies, item.toDomain())
	}
	return companies, nil
}

func (r *repository) ListActivePartners(ctx context.Context) ([]domain.Partner, error) {
	var rows []partnerRow
	err := r.db.WithContext(ctx).
		Raw(`SELECT id, partner_name FROM partners WHERE active = ? ORDER BY partner_name`, true).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	partners := make([]domain.Partner, 0, len(rows))
	for _, item := range rows {
		partners = append(partners, domain.Partner{ID: item.ID, Name: item.Name})
	}
	return partners, nil
}

func (r *repository) ListProductCodes(ctx context.Context) ([]domain.ProductCode, error) {
	var rows []productCodeRow
	err := r.db.WithContext(ctx).
		Raw(`SELECT id, code, label FROM license_product_codes ORDER BY code`).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	codes := make([]domain.ProductCode, 0, len(rows))
	for _, item := range rows {
		codes = append(codes, domain.ProductCode{ID: item.ID, Code: item.Code, Label: item.Label})
	}
	return codes, nil
}

func (r *repository) GetProductCodeByCode(ctx context.Context, code string) (*domain.ProductCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, nil
	}
	return r.getProductCode(ctx, `SELECT id, code, label FROM license_product_codes WHERE code = ?`, code)
}

func (r *repository) GetProductCodeByID(ctx context.Context, id int64) (*domain.ProductCode, error) {
	return r.getProductCode(ctx, `SELECT id, code, label FROM license_product_codes WHERE id = ?`, id)
}

func (r *repository) getProductCode(ctx context.Context, query string, arg any) (*domain.ProductCode, error) {
	var rows []productCodeRow
	if err := r.db.WithContext(ctx).Raw(query, arg).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &domain.ProductCode{ID: rows[0].ID, Code: rows[0].Code, Label: rows[0].Label}, nil
}

func (r *repository) FindCompanyByName(ctx context.Context, name string) (*domain.Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	return r.getCompany(ctx,
		`SELECT id, company_name, partner_id FROM companies WHERE LOWER(company_name) = LOWER(?) ORDER BY active DESC, id LIMIT 1`,
		name,
	)
}

func (r *repository) GetCompany(ctx context.Context, id int64) (*domain.Company, error) {
	return r.getCompany(ctx, `SELECT id, company_name, partner_id FROM companies WHERE id = ?`, id)
}

func (r *repository) getCompany(ctx context.Context, query string, arg any) (*domain.Company, error) {
	var rows []companyRow
	if err := r.db.WithContext(ctx).Raw(query, arg).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	company := rows[0].toDomain()
	return &company, nil
}

func (r *repository) FindPartnerByName(ctx context.Context, name string) (*domain.Partner, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	return r.getPartner(ctx,
		`SELECT id, partner_name FROM partners WHERE LOWER(partner_name) = LOWER(?) ORDER BY active DESC, id LIMIT 1`,
		name,
	)
}

func (r *repository) GetPartner(ctx context.Context, id int64) (*domain.Partner, error) {
	return r.getPartner(ctx, `SELECT id, partner_name FROM partners WHERE id = ?`, id)
}

func (r *repository) getPartner(ctx context.Context, query string, arg any) (*domain.Partner, error) {
	var rows []partnerRow
	if err := r.db.WithContext(ctx).Raw(query, arg).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &domain.Partner{ID: rows[0].ID, Name: rows[0].Name}, nil
}

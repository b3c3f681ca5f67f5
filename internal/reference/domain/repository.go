package domain

import "context"

// Repository reads the reference data that license records point at.
// Lookups that find nothing return (nil, nil).
type Repository interface {
	ListActiveCompanies(ctx context.Context) ([]Company, error)
	ListActivePartners(ctx context.Context) ([]Partner, error)
	ListProductCodes(ctx context.Context) ([]ProductCode, error)
	GetProductCodeByCode(ctx context.Context, code string) (*ProductCode, error)
	GetProductCodeByID(ctx context.Context, id int64) (*ProductCode, error)
	FindCompanyByName(ctx context.Context, name string) (*Company, error)
	FindPartnerByName(ctx context.Context, name string) (*Partner, error)
	GetCompany(ctx context.Context, id int64) (*Company, error)
	GetPartner(ctx context.Context, id int64) (*Partner, error)
}

package seed

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type productCode struct {
	Code  string
	Label string
}

var defaultProductCodes = []productCode{
	{Code: "SUB", Label: "Subscription"},
	{Code: "REL", Label: "Relay"},
	{Code: "USR", Label: "User"},
	{Code: "USR_LIC", Label: "User Licence"},
	{Code: "ADM", Label: "Administrator"},
	{Code: "ENT", Label: "Enterprise"},
}

// EnsureProductCodes inserts the default product codes that are not present yet.
func EnsureProductCodes(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range defaultProductCodes {
			var count int64
			if err := tx.Raw(`SELECT COUNT(1) FROM license_product_codes WHERE code = ?`, item.Code).
				Scan(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			if err := tx.Exec(
				`INSERT INTO license_product_codes (code, label) VALUES (?, ?)`,
				item.Code, item.Label,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	StartFrom *time.Time
	StartTo   *time.Time
}

type Repository interface {
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]License, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*License, error)
	Insert(ctx context.Context, db *gorm.DB, license *License) error
	Update(ctx context.Context, db *gorm.DB, license *License) (int64, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
}

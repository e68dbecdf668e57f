package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, plan *Plan) error
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Plan, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]Plan, error)
	SetActive(ctx context.Context, db *gorm.DB, code string, active bool) error
}

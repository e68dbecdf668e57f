package repository

import (
	"context"

	plandomain "github.com/zutali/conmart/internal/plan/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() plandomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, plan *plandomain.Plan) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscription_plans (
			id, code, role, tier, display_name, amount, currency, duration_days,
			capacity_limit, features, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID,
		plan.Code,
		plan.Role,
		plan.Tier,
		plan.DisplayName,
		plan.Amount,
		plan.Currency,
		plan.DurationDays,
		plan.CapacityLimit,
		plan.Features,
		plan.Active,
		plan.CreatedAt,
		plan.UpdatedAt,
	).Error
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*plandomain.Plan, error) {
	var plan plandomain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, role, tier, display_name, amount, currency, duration_days,
		 capacity_limit, features, active, created_at, updated_at
		 FROM subscription_plans WHERE code = ?`,
		code,
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]plandomain.Plan, error) {
	var plans []plandomain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, role, tier, display_name, amount, currency, duration_days,
		 capacity_limit, features, active, created_at, updated_at
		 FROM subscription_plans WHERE active ORDER BY amount ASC, code ASC`,
	).Scan(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, code string, active bool) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscription_plans SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE code = ?`,
		active,
		code,
	).Error
}

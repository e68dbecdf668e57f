package domain

import (
	"context"
	"errors"
)

var (
	ErrPlanNotFound = errors.New("plan_not_found")
	ErrInvalidPlan  = errors.New("invalid_plan")
)

// Service is the plan catalog surface used by payment flows.
type Service interface {
	// GetPlan returns an active plan by code.
	GetPlan(ctx context.Context, code string) (*Plan, error)
	// FindPlan returns a plan by code regardless of sale status, so
	// in-flight settlements survive a deactivation.
	FindPlan(ctx context.Context, code string) (*Plan, error)
	// EnsurePlan idempotently creates or reactivates a well-known plan.
	// Codes outside the defaults registry return ErrPlanNotFound.
	EnsurePlan(ctx context.Context, code string) (*Plan, error)
	// List returns the active catalog for public pricing.
	List(ctx context.Context) ([]Plan, error)
	// Deactivate removes a plan from sale without touching subscribers.
	Deactivate(ctx context.Context, code string) error
}

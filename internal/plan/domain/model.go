// Package domain contains persistence models for the subscription plan catalog.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PlanRole distinguishes buyer plans from seller plans.
type PlanRole string

const (
	PlanRoleUser   PlanRole = "user"
	PlanRoleSeller PlanRole = "seller"
)

// Tier names shared by plans, accounts and seller profiles.
const (
	TierFree     = "free"
	TierBasic    = "basic"
	TierStandard = "standard"
	TierPremium  = "premium"
)

// Plan is a purchasable subscription offer.
type Plan struct {
	ID            snowflake.ID   `gorm:"primaryKey"`
	Code          string         `gorm:"type:text;not null;uniqueIndex"`
	Role          PlanRole       `gorm:"type:text;not null"`
	Tier          string         `gorm:"type:text;not null"`
	DisplayName   string         `gorm:"type:text;not null"`
	Amount        float64        `gorm:"type:numeric(10,2);not null"`
	Currency      string         `gorm:"type:text;not null;default:ETB"`
	DurationDays  int            `gorm:"not null;default:30"`
	CapacityLimit *int           `gorm:""`
	Features      datatypes.JSON `gorm:"type:jsonb"`
	Active        bool           `gorm:"not null;default:true"`
	CreatedAt     time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "subscription_plans" }

// CapacityForTier maps a seller tier to its visible listing allowance.
// A nil result means unlimited.
func CapacityForTier(tier string) *int {
	switch tier {
	case TierStandard:
		limit := 10
		return &limit
	case TierPremium:
		return nil
	default:
		limit := 1
		return &limit
	}
}

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrAccountNotFound       = errors.New("account_not_found")
	ErrSellerProfileRequired = errors.New("seller_profile_required")
)

// SubscriptionTerms is the tier window propagated onto accounts and
// seller profiles when a payment activates or a subscription expires.
type SubscriptionTerms struct {
	Tier      string
	Active    bool
	StartDate *time.Time
	EndDate   *time.Time
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Account, error)
	FindSellerProfileByAccountID(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*SellerProfile, error)
	FindSellerProfileByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*SellerProfile, error)

	// ApplyAccountTerms writes the restricted subscription fields on the account.
	ApplyAccountTerms(ctx context.Context, db *gorm.DB, accountID snowflake.ID, terms SubscriptionTerms) error
	// ApplySellerTerms writes the restricted subscription fields plus the
	// listing allowance on the seller profile.
	ApplySellerTerms(ctx context.Context, db *gorm.DB, sellerProfileID snowflake.ID, terms SubscriptionTerms, listingLimit *int) error
}

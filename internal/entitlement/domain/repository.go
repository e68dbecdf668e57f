package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// HideBeyondLimit hides every listing past the first limit entries in
	// created_at ASC, id ASC order and returns the number of rows changed.
	HideBeyondLimit(ctx context.Context, db *gorm.DB, sellerProfileID snowflake.ID, limit int) (int64, error)
	// UnhideWithinLimit unhides the first limit entries in the same order.
	UnhideWithinLimit(ctx context.Context, db *gorm.DB, sellerProfileID snowflake.ID, limit int) (int64, error)
	// UnhideAll clears the hidden flag on every listing of the seller.
	UnhideAll(ctx context.Context, db *gorm.DB, sellerProfileID snowflake.ID) (int64, error)
}

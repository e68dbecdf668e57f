package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	entitlementdomain "github.com/zutali/conmart/internal/entitlement/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() entitlementdomain.Repository {
	return &repo{}
}

// Seniority order for visibility: oldest listings stay visible first.
// The id tiebreaker keeps the cut deterministic when created_at collides.
const visibleWindowQuery = `
SELECT id FROM listings
WHERE seller_profile_id = ?
ORDER BY created_at ASC, id ASC
LIMIT ?`

func (r *repo) HideBeyondLimit(ctx context.Context, db *gorm.DB, sellerProfileID snowflake.ID, limit int) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE listings SET hidden = TRUE, updated_at = CURRENT_TIMESTAMP
		 WHERE seller_profile_id = ?
		   AND hidden = FALSE
		   AND id NOT IN (`+visibleWindowQuery+`)`,
		sellerProfileID, sellerProfileID, limit,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) UnhideWithinLimit(ctx context.Context, db *gorm.DB, sellerProfileID snowflake.ID, limit int) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE listings SET hidden = FALSE, updated_at = CURRENT_TIMESTAMP
		 WHERE seller_profile_id = ?
		   AND hidden = TRUE
		   AND id IN (`+visibleWindowQuery+`)`,
		sellerProfileID, sellerProfileID, limit,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) UnhideAll(ctx context.Context, db *gorm.DB, sellerProfileID snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE listings SET hidden = FALSE, updated_at = CURRENT_TIMESTAMP
		 WHERE seller_profile_id = ? AND hidden = TRUE`,
		sellerProfileID,
	)
	return res.RowsAffected, res.Error
}

package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/zutali/conmart/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() accountdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*accountdomain.Account, error) {
	var account accountdomain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, first_name, last_name, phone, role, tier, subscription_active,
		 subscription_start_date, subscription_end_date, created_at, updated_at
		 FROM accounts WHERE id = ?`,
		id,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) FindSellerProfileByAccountID(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*accountdomain.SellerProfile, error) {
	var profile accountdomain.SellerProfile
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, business_name, tier, subscription_active,
		 subscription_start_date, subscription_end_date, listing_limit, created_at, updated_at
		 FROM seller_profiles WHERE account_id = ?`,
		accountID,
	).Scan(&profile).Error
	if err != nil {
		return nil, err
	}
	if profile.ID == 0 {
		return nil, nil
	}
	return &profile, nil
}

func (r *repo) FindSellerProfileByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*accountdomain.SellerProfile, error) {
	var profile accountdomain.SellerProfile
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, business_name, tier, subscription_active,
		 subscription_start_date, subscription_end_date, listing_limit, created_at, updated_at
		 FROM seller_profiles WHERE id = ?`,
		id,
	).Scan(&profile).Error
	if err != nil {
		return nil, err
	}
	if profile.ID == 0 {
		return nil, nil
	}
	return &profile, nil
}

func (r *repo) ApplyAccountTerms(ctx context.Context, db *gorm.DB, accountID snowflake.ID, terms accountdomain.SubscriptionTerms) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts SET
			tier = ?,
			subscription_active = ?,
			subscription_start_date = ?,
			subscription_end_date = ?,
			updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		terms.Tier,
		terms.Active,
		terms.StartDate,
		terms.EndDate,
		accountID,
	).Error
}

func (r *repo) ApplySellerTerms(ctx context.Context, db *gorm.DB, sellerProfileID snowflake.ID, terms accountdomain.SubscriptionTerms, listingLimit *int) error {
	return db.WithContext(ctx).Exec(
		`UPDATE seller_profiles SET
			tier = ?,
			subscription_active = ?,
			subscription_start_date = ?,
			subscription_end_date = ?,
			listing_limit = ?,
			updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		terms.Tier,
		terms.Active,
		terms.StartDate,
		terms.EndDate,
		listingLimit,
		sellerProfileID,
	).Error
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/zutali/conmart/internal/account/domain"
	accountrepository "github.com/zutali/conmart/internal/account/repository"
	entitlementdomain "github.com/zutali/conmart/internal/entitlement/domain"
	"github.com/zutali/conmart/internal/entitlement/repository"
	plandomain "github.com/zutali/conmart/internal/plan/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type enforcerFixture struct {
	db   *gorm.DB
	node *snowflake.Node
	svc  entitlementdomain.Enforcer
}

func setupEnforcer(t *testing.T) *enforcerFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&accountdomain.SellerProfile{},
		&accountdomain.Listing{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		DB:          db,
		Log:         zap.NewNop(),
		AccountRepo: accountrepository.Provide(),
		Repo:        repository.Provide(),
	})

	return &enforcerFixture{db: db, node: node, svc: svc}
}

func (f *enforcerFixture) createProfile(t *testing.T, tier string, listingLimit *int) *accountdomain.SellerProfile {
	t.Helper()
	profile := &accountdomain.SellerProfile{
		ID:           f.node.Generate(),
		AccountID:    f.node.Generate(),
		Tier:         tier,
		ListingLimit: listingLimit,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	require.NoError(t, f.db.Create(profile).Error)
	return profile
}

func (f *enforcerFixture) createListings(t *testing.T, profileID snowflake.ID, n int) []accountdomain.Listing {
	t.Helper()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	listings := make([]accountdomain.Listing, 0, n)
	for i := 0; i < n; i++ {
		listing := accountdomain.Listing{
			ID:              f.node.Generate(),
			SellerProfileID: profileID,
			Title:           "listing",
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:       base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, f.db.Create(&listing).Error)
		listings = append(listings, listing)
	}
	return listings
}

func (f *enforcerFixture) visibleIDs(t *testing.T, profileID snowflake.ID) []snowflake.ID {
	t.Helper()
	var listings []accountdomain.Listing
	require.NoError(t, f.db.
		Where("seller_profile_id = ? AND hidden = ?", profileID, false).
		Order("created_at ASC, id ASC").
		Find(&listings).Error)
	ids := make([]snowflake.ID, 0, len(listings))
	for _, l := range listings {
		ids = append(ids, l.ID)
	}
	return ids
}

func TestEnforceHidesListingsBeyondLimit(t *testing.T) {
	f := setupEnforcer(t)
	limit := 2
	profile := f.createProfile(t, plandomain.TierStandard, &limit)
	listings := f.createListings(t, profile.ID, 5)

	result, err := f.svc.EnforceListingLimit(context.Background(), profile.ID, entitlementdomain.TriggerExpiry)
	require.NoError(t, err)
	require.Equal(t, int64(3), result.Hidden)
	require.Equal(t, int64(0), result.Unhidden)

	// The oldest two stay visible.
	require.Equal(t, []snowflake.ID{listings[0].ID, listings[1].ID}, f.visibleIDs(t, profile.ID))
}

func TestEnforceIsIdempotent(t *testing.T) {
	f := setupEnforcer(t)
	limit := 2
	profile := f.createProfile(t, plandomain.TierStandard, &limit)
	f.createListings(t, profile.ID, 5)

	_, err := f.svc.EnforceListingLimit(context.Background(), profile.ID, entitlementdomain.TriggerExpiry)
	require.NoError(t, err)

	again, err := f.svc.EnforceListingLimit(context.Background(), profile.ID, entitlementdomain.TriggerExpiry)
	require.NoError(t, err)
	require.Equal(t, int64(0), again.Hidden)
	require.Equal(t, int64(0), again.Unhidden)
}

func TestEnforceUnhidesWhenLimitRaised(t *testing.T) {
	f := setupEnforcer(t)
	limit := 1
	profile := f.createProfile(t, plandomain.TierStandard, &limit)
	listings := f.createListings(t, profile.ID, 3)

	_, err := f.svc.EnforceListingLimit(context.Background(), profile.ID, entitlementdomain.TriggerExpiry)
	require.NoError(t, err)
	require.Equal(t, []snowflake.ID{listings[0].ID}, f.visibleIDs(t, profile.ID))

	require.NoError(t, f.db.Model(&accountdomain.SellerProfile{}).
		Where("id = ?", profile.ID).
		Update("listing_limit", 3).Error)

	result, err := f.svc.EnforceListingLimit(context.Background(), profile.ID, entitlementdomain.TriggerActivation)
	require.NoError(t, err)
	require.Equal(t, int64(2), result.Unhidden)
	require.Len(t, f.visibleIDs(t, profile.ID), 3)
}

func TestEnforceUnlimitedClearsAllHidden(t *testing.T) {
	f := setupEnforcer(t)
	limit := 1
	profile := f.createProfile(t, plandomain.TierStandard, &limit)
	f.createListings(t, profile.ID, 4)

	_, err := f.svc.EnforceListingLimit(context.Background(), profile.ID, entitlementdomain.TriggerExpiry)
	require.NoError(t, err)

	// Premium has no allowance column value; the tier decides.
	require.NoError(t, f.db.Model(&accountdomain.SellerProfile{}).
		Where("id = ?", profile.ID).
		Updates(map[string]any{"tier": plandomain.TierPremium, "listing_limit": nil}).Error)

	result, err := f.svc.EnforceListingLimit(context.Background(), profile.ID, entitlementdomain.TriggerActivation)
	require.NoError(t, err)
	require.Nil(t, result.Limit)
	require.Equal(t, int64(3), result.Unhidden)
	require.Len(t, f.visibleIDs(t, profile.ID), 4)
}

func TestEnforceDefaultsToBasicAllowance(t *testing.T) {
	f := setupEnforcer(t)
	profile := f.createProfile(t, plandomain.TierBasic, nil)
	listings := f.createListings(t, profile.ID, 3)

	result, err := f.svc.EnforceListingLimit(context.Background(), profile.ID, entitlementdomain.TriggerManual)
	require.NoError(t, err)
	require.NotNil(t, result.Limit)
	require.Equal(t, 1, *result.Limit)
	require.Equal(t, []snowflake.ID{listings[0].ID}, f.visibleIDs(t, profile.ID))
}

func TestEnforceUnknownProfile(t *testing.T) {
	f := setupEnforcer(t)

	_, err := f.svc.EnforceListingLimit(context.Background(), f.node.Generate(), entitlementdomain.TriggerManual)
	require.ErrorIs(t, err, accountdomain.ErrSellerProfileRequired)
}

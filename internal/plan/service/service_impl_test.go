package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"github.com/zutali/conmart/internal/clock"
	"github.com/zutali/conmart/internal/config"
	plandomain "github.com/zutali/conmart/internal/plan/domain"
	planrepository "github.com/zutali/conmart/internal/plan/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type catalogFixture struct {
	db  *gorm.DB
	svc plandomain.Service
}

func setupCatalog(t *testing.T) *catalogFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&plandomain.Plan{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	// No plans.yml in the test directory, so the holder serves the
	// built-in defaults.
	holder, err := config.NewCatalogConfigHolder()
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
		Repo:    planrepository.Provide(),
		Catalog: holder,
	})

	return &catalogFixture{db: db, svc: svc}
}

func TestEnsurePlanCreatesFromCatalog(t *testing.T) {
	f := setupCatalog(t)
	ctx := context.Background()

	plan, err := f.svc.EnsurePlan(ctx, "standard_user")
	require.NoError(t, err)
	require.Equal(t, "standard_user", plan.Code)
	require.Equal(t, 50.0, plan.Amount)
	require.Equal(t, "ETB", plan.Currency)
	require.Equal(t, 30, plan.DurationDays)
	require.True(t, plan.Active)

	got, err := f.svc.GetPlan(ctx, "standard_user")
	require.NoError(t, err)
	require.Equal(t, plan.ID, got.ID)
}

func TestEnsurePlanIsIdempotent(t *testing.T) {
	f := setupCatalog(t)
	ctx := context.Background()

	first, err := f.svc.EnsurePlan(ctx, "standard_owner")
	require.NoError(t, err)
	second, err := f.svc.EnsurePlan(ctx, "standard_owner")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, f.db.Model(&plandomain.Plan{}).Where("code = ?", "standard_owner").Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestEnsurePlanReactivatesDeactivatedPlan(t *testing.T) {
	f := setupCatalog(t)
	ctx := context.Background()

	_, err := f.svc.EnsurePlan(ctx, "premium_user")
	require.NoError(t, err)
	require.NoError(t, f.svc.Deactivate(ctx, "premium_user"))

	_, err = f.svc.GetPlan(ctx, "premium_user")
	require.ErrorIs(t, err, plandomain.ErrPlanNotFound)

	plan, err := f.svc.EnsurePlan(ctx, "premium_user")
	require.NoError(t, err)
	require.True(t, plan.Active)

	got, err := f.svc.GetPlan(ctx, "premium_user")
	require.NoError(t, err)
	require.True(t, got.Active)
}

func TestFindPlanIgnoresSaleStatus(t *testing.T) {
	f := setupCatalog(t)
	ctx := context.Background()

	created, err := f.svc.EnsurePlan(ctx, "standard_user")
	require.NoError(t, err)
	require.NoError(t, f.svc.Deactivate(ctx, "standard_user"))

	_, err = f.svc.GetPlan(ctx, "standard_user")
	require.ErrorIs(t, err, plandomain.ErrPlanNotFound)

	// Settlement lookups still see the pulled plan.
	found, err := f.svc.FindPlan(ctx, "standard_user")
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)
	require.False(t, found.Active)

	_, err = f.svc.FindPlan(ctx, "no_such_plan")
	require.ErrorIs(t, err, plandomain.ErrPlanNotFound)
}

func TestEnsurePlanUnknownCode(t *testing.T) {
	f := setupCatalog(t)

	_, err := f.svc.EnsurePlan(context.Background(), "gold_tier")
	require.ErrorIs(t, err, plandomain.ErrPlanNotFound)
}

func TestGetPlanBlankCode(t *testing.T) {
	f := setupCatalog(t)

	_, err := f.svc.GetPlan(context.Background(), "  ")
	require.ErrorIs(t, err, plandomain.ErrInvalidPlan)
}

func TestListReturnsOnlyActivePlans(t *testing.T) {
	f := setupCatalog(t)
	ctx := context.Background()

	_, err := f.svc.EnsurePlan(ctx, "standard_user")
	require.NoError(t, err)
	_, err = f.svc.EnsurePlan(ctx, "premium_user")
	require.NoError(t, err)
	require.NoError(t, f.svc.Deactivate(ctx, "premium_user"))

	plans, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	require.Equal(t, "standard_user", plans[0].Code)
}

func TestDeactivateUnknownPlan(t *testing.T) {
	f := setupCatalog(t)

	err := f.svc.Deactivate(context.Background(), "missing")
	require.ErrorIs(t, err, plandomain.ErrPlanNotFound)
}

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	accountdomain "github.com/zutali/conmart/internal/account/domain"
	accountrepository "github.com/zutali/conmart/internal/account/repository"
	"github.com/zutali/conmart/internal/clock"
	entitlementdomain "github.com/zutali/conmart/internal/entitlement/domain"
	notificationdomain "github.com/zutali/conmart/internal/notification/domain"
	obsmetrics "github.com/zutali/conmart/internal/observability/metrics"
	plandomain "github.com/zutali/conmart/internal/plan/domain"
	schedulertesting "github.com/zutali/conmart/internal/scheduler/testing"
	subscriptiondomain "github.com/zutali/conmart/internal/subscription/domain"
	subscriptionrepository "github.com/zutali/conmart/internal/subscription/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Mocks for dependencies

type sweepPlanSvc struct {
	plans map[string]*plandomain.Plan
}

func (p *sweepPlanSvc) GetPlan(ctx context.Context, code string) (*plandomain.Plan, error) {
	if plan, ok := p.plans[code]; ok {
		return plan, nil
	}
	return nil, plandomain.ErrPlanNotFound
}
func (p *sweepPlanSvc) FindPlan(ctx context.Context, code string) (*plandomain.Plan, error) {
	return p.GetPlan(ctx, code)
}
func (p *sweepPlanSvc) EnsurePlan(ctx context.Context, code string) (*plandomain.Plan, error) {
	return p.GetPlan(ctx, code)
}
func (p *sweepPlanSvc) List(ctx context.Context) ([]plandomain.Plan, error) { return nil, nil }
func (p *sweepPlanSvc) Deactivate(ctx context.Context, code string) error   { return nil }

type sweepEnforcer struct {
	calls []snowflake.ID
}

func (e *sweepEnforcer) EnforceListingLimit(ctx context.Context, sellerProfileID snowflake.ID, trigger string) (*entitlementdomain.RecomputeResult, error) {
	e.calls = append(e.calls, sellerProfileID)
	return &entitlementdomain.RecomputeResult{SellerProfileID: sellerProfileID}, nil
}

type sweepNotifier struct {
	decisions []notificationdomain.Decision
}

func (n *sweepNotifier) Record(ctx context.Context, decision notificationdomain.Decision) error {
	n.decisions = append(n.decisions, decision)
	return nil
}
func (n *sweepNotifier) ListByRecipient(ctx context.Context, recipientAccountID snowflake.ID, limit int) ([]notificationdomain.Notification, error) {
	return nil, nil
}

func (n *sweepNotifier) countKind(kind notificationdomain.Kind) int {
	count := 0
	for _, d := range n.decisions {
		if d.Kind == kind {
			count++
		}
	}
	return count
}

// failOnUpdateRepo wraps the real repository and fails updates for one
// subscription, to exercise per-item isolation.
type failOnUpdateRepo struct {
	subscriptiondomain.Repository
	failID snowflake.ID
}

func (r *failOnUpdateRepo) Update(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	if subscription.ID == r.failID {
		return errors.New("simulated update failure")
	}
	return r.Repository.Update(ctx, db, subscription)
}

func newSweepDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&accountdomain.Account{},
		&accountdomain.SellerProfile{},
		&subscriptiondomain.Subscription{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// TestSweeper_RunOnce_FakeClock_30Days walks a paid seller subscription
// through a full cycle: quiet period, one reminder inside the window, then
// expiry with account and seller downgrade.
func TestSweeper_RunOnce_FakeClock_30Days(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()
	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: "conmart", Environment: "test"})

	db := newSweepDB(t)
	node, _ := snowflake.NewNode(1)
	startTime := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fakeClock := clock.NewFakeClock(startTime)

	capacity := 10
	plan := &plandomain.Plan{
		ID:            node.Generate(),
		Code:          "standard_owner",
		Role:          plandomain.PlanRoleSeller,
		Tier:          plandomain.TierStandard,
		DisplayName:   "Standard Seller",
		Amount:        200,
		Currency:      "ETB",
		DurationDays:  30,
		CapacityLimit: &capacity,
		Active:        true,
	}

	account := &accountdomain.Account{
		ID:                 node.Generate(),
		Email:              "seller@example.com",
		Tier:               plandomain.TierStandard,
		SubscriptionActive: true,
		CreatedAt:          startTime,
		UpdatedAt:          startTime,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	profile := &accountdomain.SellerProfile{
		ID:                 node.Generate(),
		AccountID:          account.ID,
		Tier:               plandomain.TierStandard,
		SubscriptionActive: true,
		ListingLimit:       &capacity,
		CreatedAt:          startTime,
		UpdatedAt:          startTime,
	}
	if err := db.Create(profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	end := startTime.AddDate(0, 0, 30)
	subscription := &subscriptiondomain.Subscription{
		ID:              node.Generate(),
		AccountID:       account.ID,
		SellerProfileID: &profile.ID,
		PlanID:          plan.ID,
		PlanCode:        plan.Code,
		Tier:            plan.Tier,
		Amount:          plan.Amount,
		Currency:        plan.Currency,
		Status:          subscriptiondomain.SubscriptionStatusActive,
		IsActive:        true,
		StartDate:       &startTime,
		EndDate:         &end,
		NextBillingDate: &end,
		PaymentStatus:   subscriptiondomain.PaymentStatusCompleted,
		CreatedAt:       startTime,
		UpdatedAt:       startTime,
	}
	if err := db.Create(subscription).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}

	enforcer := &sweepEnforcer{}
	notifier := &sweepNotifier{}

	sweeper, err := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fakeClock,
		Repo:        subscriptionrepository.Provide(),
		AccountRepo: accountrepository.Provide(),
		Plansvc:     &sweepPlanSvc{plans: map[string]*plandomain.Plan{plan.Code: plan}},
		Enforcer:    enforcer,
		Notifier:    notifier,
		Config: Config{
			RunInterval:    time.Hour,
			JobTimeout:     time.Minute,
			BatchSize:      10,
			ReminderWindow: 5 * 24 * time.Hour,
		},
	})
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}

	ctx := context.Background()

	// Day 1: nothing due, nothing in the window.
	if err := sweeper.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce at start: %v", err)
	}
	if len(notifier.decisions) != 0 {
		t.Fatalf("expected no decisions on day 1, got %d", len(notifier.decisions))
	}

	// Walk day by day until past the billing anchor.
	targetDate := startTime.AddDate(0, 0, 32)
	for fakeClock.Now().Before(targetDate) {
		fakeClock.Advance(24 * time.Hour)
		if err := sweeper.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce at %v: %v", fakeClock.Now(), err)
		}
	}

	// One reminder for the whole window, despite daily runs.
	if got := notifier.countKind(notificationdomain.KindSubscriptionExpiring); got != 1 {
		t.Errorf("expected exactly 1 expiring reminder, got %d", got)
	}
	if got := notifier.countKind(notificationdomain.KindSubscriptionExpired); got != 1 {
		t.Errorf("expected exactly 1 expired notice, got %d", got)
	}
	if got := notifier.countKind(notificationdomain.KindSellerDowngraded); got != 1 {
		t.Errorf("expected exactly 1 downgrade notice, got %d", got)
	}

	var gotSub subscriptiondomain.Subscription
	if err := db.Where("id = ?", subscription.ID).First(&gotSub).Error; err != nil {
		t.Fatalf("refetch subscription: %v", err)
	}
	if gotSub.IsActive {
		t.Error("expected subscription to be inactive after expiry")
	}
	if gotSub.Status != subscriptiondomain.SubscriptionStatusExpired {
		t.Errorf("expected status expired, got %s", gotSub.Status)
	}
	if gotSub.AutoRenew {
		t.Error("expected auto renew off after expiry")
	}
	if gotSub.LastNotifiedAt == nil {
		t.Error("expected reminder stamp to be set")
	}

	var gotAccount accountdomain.Account
	if err := db.Where("id = ?", account.ID).First(&gotAccount).Error; err != nil {
		t.Fatalf("refetch account: %v", err)
	}
	if gotAccount.Tier != plandomain.TierFree || gotAccount.SubscriptionActive {
		t.Errorf("expected account downgraded to free/inactive, got %s active=%v", gotAccount.Tier, gotAccount.SubscriptionActive)
	}

	var gotProfile accountdomain.SellerProfile
	if err := db.Where("id = ?", profile.ID).First(&gotProfile).Error; err != nil {
		t.Fatalf("refetch profile: %v", err)
	}
	if gotProfile.Tier != plandomain.TierBasic || gotProfile.SubscriptionActive {
		t.Errorf("expected profile downgraded to basic/inactive, got %s active=%v", gotProfile.Tier, gotProfile.SubscriptionActive)
	}
	if gotProfile.ListingLimit == nil || *gotProfile.ListingLimit != 1 {
		t.Errorf("expected listing limit 1 after downgrade, got %v", gotProfile.ListingLimit)
	}

	if len(enforcer.calls) != 1 || enforcer.calls[0] != profile.ID {
		t.Errorf("expected one recompute for profile %v, got %v", profile.ID, enforcer.calls)
	}
}

// TestExpirySweepIsolatesFailures verifies one failing subscription does
// not block the rest of the batch.
func TestExpirySweepIsolatesFailures(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()
	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: "conmart", Environment: "test"})

	db := newSweepDB(t)
	node, _ := snowflake.NewNode(1)
	startTime := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fakeClock := clock.NewFakeClock(startTime.AddDate(0, 0, 31))

	future := startTime.AddDate(0, 0, 60)
	var subIDs []snowflake.ID
	for i := 0; i < 2; i++ {
		accountID := node.Generate()
		if err := db.Create(&accountdomain.Account{
			ID:        accountID,
			Email:     "user" + snowflake.ID(i+1).String() + "@example.com",
			Tier:      plandomain.TierStandard,
			CreatedAt: startTime,
			UpdatedAt: startTime,
		}).Error; err != nil {
			t.Fatalf("seed account: %v", err)
		}
		sub := &subscriptiondomain.Subscription{
			ID:              node.Generate(),
			AccountID:       accountID,
			PlanID:          node.Generate(),
			PlanCode:        "standard_user",
			Tier:            plandomain.TierStandard,
			Amount:          50,
			Currency:        "ETB",
			Status:          subscriptiondomain.SubscriptionStatusActive,
			IsActive:        true,
			NextBillingDate: &future,
			CreatedAt:       startTime,
			UpdatedAt:       startTime,
		}
		if err := db.Create(sub).Error; err != nil {
			t.Fatalf("seed subscription: %v", err)
		}
		subIDs = append(subIDs, sub.ID)
	}

	// Pull both anchors behind the clock so the sweep sees them as due.
	accel := schedulertesting.NewTimeAccelerator(db)
	for _, id := range subIDs {
		if err := accel.SetBillingAnchor(context.Background(), id, startTime.AddDate(0, 0, 30)); err != nil {
			t.Fatalf("set billing anchor: %v", err)
		}
	}

	sweeper, err := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fakeClock,
		Repo:        &failOnUpdateRepo{Repository: subscriptionrepository.Provide(), failID: subIDs[0]},
		AccountRepo: accountrepository.Provide(),
		Plansvc:     &sweepPlanSvc{plans: map[string]*plandomain.Plan{}},
		Enforcer:    &sweepEnforcer{},
		Notifier:    &sweepNotifier{},
		Config:      Config{BatchSize: 10},
	})
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}

	jobErr := sweeper.ExpirySweepJob(context.Background())
	if jobErr == nil {
		t.Fatal("expected the failing subscription to surface in the job error")
	}

	var healthy subscriptiondomain.Subscription
	if err := db.Where("id = ?", subIDs[1]).First(&healthy).Error; err != nil {
		t.Fatalf("refetch healthy subscription: %v", err)
	}
	if healthy.IsActive || healthy.Status != subscriptiondomain.SubscriptionStatusExpired {
		t.Errorf("expected healthy subscription to expire, got status=%s active=%v", healthy.Status, healthy.IsActive)
	}

	var failed subscriptiondomain.Subscription
	if err := db.Where("id = ?", subIDs[0]).First(&failed).Error; err != nil {
		t.Fatalf("refetch failed subscription: %v", err)
	}
	if !failed.IsActive {
		t.Error("expected failing subscription to remain active")
	}
}

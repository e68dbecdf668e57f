// Package scheduler runs the periodic subscription sweep: expiry reminders
// inside the configured window and deactivation of lapsed subscriptions.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/zutali/conmart/internal/account/domain"
	"github.com/zutali/conmart/internal/clock"
	entitlementdomain "github.com/zutali/conmart/internal/entitlement/domain"
	notificationdomain "github.com/zutali/conmart/internal/notification/domain"
	obsmetrics "github.com/zutali/conmart/internal/observability/metrics"
	plandomain "github.com/zutali/conmart/internal/plan/domain"
	subscriptiondomain "github.com/zutali/conmart/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  subscriptiondomain.Repository

	AccountRepo accountdomain.Repository
	Plansvc     plandomain.Service
	Enforcer    entitlementdomain.Enforcer
	Notifier    notificationdomain.Service
	Config      Config `optional:"true"`
}

type Sweeper struct {
	db    *gorm.DB
	log   *zap.Logger
	cfg   Config
	genID *snowflake.Node
	clock clock.Clock
	repo  subscriptiondomain.Repository

	accountRepo accountdomain.Repository
	plansvc     plandomain.Service
	enforcer    entitlementdomain.Enforcer
	notifier    notificationdomain.Service
}

func New(p Params) (*Sweeper, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Repo == nil || p.AccountRepo == nil || p.Plansvc == nil || p.Enforcer == nil || p.Notifier == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Sweeper{
		db:    p.DB,
		log:   p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:   cfg,
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,

		accountRepo: p.AccountRepo,
		plansvc:     p.Plansvc,
		enforcer:    p.Enforcer,
		notifier:    p.Notifier,
	}, nil
}

func (s *Sweeper) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// Deadline is a soft timeout: the next run picks up the rest.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Sweeper) RunOnce(parent context.Context) error {
	var err error

	err = errors.Join(err, s.runJob(parent, "reminder_sweep", s.cfg.BatchSize, s.cfg.JobTimeout, s.ReminderSweepJob))
	err = errors.Join(err, s.runJob(parent, "expiry_sweep", s.cfg.BatchSize, s.cfg.JobTimeout, s.ExpirySweepJob))

	return err
}

func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sweep run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ReminderSweepJob sends at most one expiring notice per billing cycle for
// subscriptions entering the reminder window. One batch per run; rows that
// stay in the window are picked up again by later runs.
func (s *Sweeper) ReminderSweepJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "reminder_sweep", s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	now := s.clock.Now()
	schedMetrics := obsmetrics.Scheduler()
	var jobErr error

	subscriptions, err := s.repo.ListDue(ctx, s.db, now.Add(s.cfg.ReminderWindow), s.cfg.BatchSize)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.sweep.fetch.failed", "reminder_sweep", 0, err)
		return err
	}

	processed := 0
	for i := range subscriptions {
		if ctx.Err() != nil {
			jobErr = errors.Join(jobErr, ctx.Err())
			break
		}
		subscription := subscriptions[i]
		if !subscription.ShouldSendReminder(now, s.cfg.ReminderWindow) {
			continue
		}

		if err := s.remindOne(ctx, subscription.ID, now); err != nil {
			jobErr = errors.Join(jobErr, err)
			schedMetrics.IncItemError("reminder_sweep", err)
			s.logSchedulerError(ctx, run, "scheduler.reminder.failed", "reminder_sweep", subscription.ID, err)
			continue
		}
		processed++
		run.AddProcessed(1)
	}

	if processed > 0 {
		schedMetrics.AddBatchProcessed("reminder_sweep", obsmetrics.SweepResourceReminders, processed)
	}
	return jobErr
}

// ExpirySweepJob deactivates lapsed subscriptions and downgrades the
// attached account and seller profile. Loops until the scan drains.
func (s *Sweeper) ExpirySweepJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "expiry_sweep", s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	now := s.clock.Now()
	schedMetrics := obsmetrics.Scheduler()
	var jobErr error

	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		subscriptions, err := s.repo.ListDue(ctx, s.db, now, s.cfg.BatchSize)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.sweep.fetch.failed", "expiry_sweep", 0, err)
			return errors.Join(jobErr, err)
		}

		processed := 0
		for i := range subscriptions {
			if ctx.Err() != nil {
				jobErr = errors.Join(jobErr, ctx.Err())
				break
			}
			subscription := subscriptions[i]
			if !subscription.IsExpired(now) {
				continue
			}

			if err := s.expireOne(ctx, subscription.ID, now); err != nil {
				jobErr = errors.Join(jobErr, err)
				schedMetrics.IncItemError("expiry_sweep", err)
				s.logSchedulerError(ctx, run, "scheduler.expiry.failed", "expiry_sweep", subscription.ID, err)
				continue
			}
			processed++
			run.AddProcessed(1)
		}

		if processed > 0 {
			schedMetrics.AddBatchProcessed("expiry_sweep", obsmetrics.SweepResourceExpirations, processed)
		}
		if processed == 0 {
			break
		}
	}

	return jobErr
}

func (s *Sweeper) remindOne(ctx context.Context, subscriptionID snowflake.ID, now time.Time) error {
	var subscription *subscriptiondomain.Subscription

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		subscription, err = s.repo.FindByIDForUpdate(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if subscription == nil || !subscription.ShouldSendReminder(now, s.cfg.ReminderWindow) {
			subscription = nil
			return nil
		}
		subscription.RecordNotification(now)
		return s.repo.Update(ctx, tx, subscription)
	})
	if err != nil || subscription == nil {
		return err
	}

	displayName := subscription.PlanCode
	if plan, err := s.plansvc.GetPlan(ctx, subscription.PlanCode); err == nil {
		displayName = plan.DisplayName
	}

	dueDate := now
	if subscription.NextBillingDate != nil {
		dueDate = *subscription.NextBillingDate
	}
	if err := s.notifier.Record(ctx, notificationdomain.Decision{
		RecipientAccountID: subscription.AccountID,
		Kind:               notificationdomain.KindSubscriptionExpiring,
		Title:              "Subscription expiring soon",
		Message:            fmt.Sprintf("Your %s subscription expires on %s. Renew to keep your benefits.", displayName, dueDate.Format("2006-01-02")),
	}); err != nil {
		s.logger(ctx).Error("recording expiring notification",
			zap.String("subscription_id", idString(subscription.ID)),
			zap.Error(err))
	}

	s.logger(ctx).Info("expiry reminder sent",
		zap.String("subscription_id", idString(subscription.ID)),
		zap.String("plan_code", subscription.PlanCode),
		zap.Time("next_billing_date", dueDate))
	return nil
}

func (s *Sweeper) expireOne(ctx context.Context, subscriptionID snowflake.ID, now time.Time) error {
	var subscription *subscriptiondomain.Subscription

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		subscription, err = s.repo.FindByIDForUpdate(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if subscription == nil || !subscription.IsActive || !subscription.IsExpired(now) {
			subscription = nil
			return nil
		}

		subscription.MarkExpired(now)
		if err := s.repo.Update(ctx, tx, subscription); err != nil {
			return err
		}

		if err := s.accountRepo.ApplyAccountTerms(ctx, tx, subscription.AccountID, accountdomain.SubscriptionTerms{
			Tier:      plandomain.TierFree,
			Active:    false,
			StartDate: subscription.StartDate,
			EndDate:   subscription.EndDate,
		}); err != nil {
			return err
		}

		if subscription.SellerProfileID != nil {
			if err := s.accountRepo.ApplySellerTerms(ctx, tx, *subscription.SellerProfileID, accountdomain.SubscriptionTerms{
				Tier:      plandomain.TierBasic,
				Active:    false,
				StartDate: subscription.StartDate,
				EndDate:   subscription.EndDate,
			}, plandomain.CapacityForTier(plandomain.TierBasic)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || subscription == nil {
		return err
	}

	if subscription.SellerProfileID != nil {
		if _, err := s.enforcer.EnforceListingLimit(ctx, *subscription.SellerProfileID, entitlementdomain.TriggerExpiry); err != nil {
			s.logger(ctx).Error("listing recompute after expiry",
				zap.String("seller_profile_id", idString(*subscription.SellerProfileID)),
				zap.Error(err))
		}
		if err := s.notifier.Record(ctx, notificationdomain.Decision{
			RecipientAccountID: subscription.AccountID,
			Kind:               notificationdomain.KindSellerDowngraded,
			Title:              "Seller plan downgraded",
			Message:            "Your seller subscription expired and your shop is back on the basic plan.",
		}); err != nil {
			s.logger(ctx).Error("recording downgrade notification", zap.Error(err))
		}
	}

	if err := s.notifier.Record(ctx, notificationdomain.Decision{
		RecipientAccountID: subscription.AccountID,
		Kind:               notificationdomain.KindSubscriptionExpired,
		Title:              "Subscription expired",
		Message:            fmt.Sprintf("Your %s subscription has expired.", subscription.PlanCode),
	}); err != nil {
		s.logger(ctx).Error("recording expired notification", zap.Error(err))
	}

	s.logger(ctx).Info("subscription expired",
		zap.String("subscription_id", idString(subscription.ID)),
		zap.String("plan_code", subscription.PlanCode))
	return nil
}

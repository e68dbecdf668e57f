package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/zutali/conmart/internal/account/domain"
	entitlementdomain "github.com/zutali/conmart/internal/entitlement/domain"
	obsmetrics "github.com/zutali/conmart/internal/observability/metrics"
	plandomain "github.com/zutali/conmart/internal/plan/domain"
	"github.com/zutali/conmart/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const recomputeLockTTL = 15 * time.Second

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	AccountRepo accountdomain.Repository
	Repo        entitlementdomain.Repository
	Locker      *ratelimit.Locker   `optional:"true"`
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type enforcer struct {
	db          *gorm.DB
	log         *zap.Logger
	accountRepo accountdomain.Repository
	repo        entitlementdomain.Repository
	locker      *ratelimit.Locker
	metrics     *obsmetrics.Metrics

	mu    sync.Mutex
	local map[snowflake.ID]*sync.Mutex
}

func NewService(p ServiceParam) entitlementdomain.Enforcer {
	return &enforcer{
		db:          p.DB,
		log:         p.Log.Named("entitlement.service"),
		accountRepo: p.AccountRepo,
		repo:        p.Repo,
		locker:      p.Locker,
		metrics:     p.Metrics,
		local:       make(map[snowflake.ID]*sync.Mutex),
	}
}

func (s *enforcer) EnforceListingLimit(ctx context.Context, sellerProfileID snowflake.ID, trigger string) (*entitlementdomain.RecomputeResult, error) {
	unlock := s.lockSeller(ctx, sellerProfileID)
	defer unlock()

	profile, err := s.accountRepo.FindSellerProfileByID(ctx, s.db, sellerProfileID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, accountdomain.ErrSellerProfileRequired
	}

	// An explicit allowance on the profile wins; otherwise the tier decides.
	allowance := profile.ListingLimit
	if allowance == nil {
		allowance = plandomain.CapacityForTier(profile.Tier)
	}

	result := &entitlementdomain.RecomputeResult{
		SellerProfileID: sellerProfileID,
		Limit:           allowance,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if allowance == nil {
			unhidden, err := s.repo.UnhideAll(ctx, tx, sellerProfileID)
			if err != nil {
				return err
			}
			result.Unhidden = unhidden
			return nil
		}

		limit := *allowance
		if limit < 0 {
			limit = 0
		}
		hidden, err := s.repo.HideBeyondLimit(ctx, tx, sellerProfileID, limit)
		if err != nil {
			return err
		}
		unhidden, err := s.repo.UnhideWithinLimit(ctx, tx, sellerProfileID, limit)
		if err != nil {
			return err
		}
		result.Hidden = hidden
		result.Unhidden = unhidden
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordEntitlementRecompute(ctx, trigger)
	if result.Hidden > 0 || result.Unhidden > 0 {
		s.log.Info("listing visibility recomputed",
			zap.Int64("seller_profile_id", int64(sellerProfileID)),
			zap.String("trigger", trigger),
			zap.Int64("hidden", result.Hidden),
			zap.Int64("unhidden", result.Unhidden))
	}
	return result, nil
}

// lockSeller serializes recomputes for one seller. The redis lock covers
// multiple instances, the local mutex covers goroutines in this one. The
// recompute itself is idempotent so a lost redis lock only wastes work.
func (s *enforcer) lockSeller(ctx context.Context, sellerProfileID snowflake.ID) func() {
	s.mu.Lock()
	m, ok := s.local[sellerProfileID]
	if !ok {
		m = &sync.Mutex{}
		s.local[sellerProfileID] = m
	}
	s.mu.Unlock()
	m.Lock()

	if s.locker == nil {
		return m.Unlock
	}

	key := fmt.Sprintf("entitlement:seller:%d", sellerProfileID)
	token, acquired, err := s.locker.TryLock(ctx, key, recomputeLockTTL)
	if err != nil {
		s.log.Warn("recompute lock unavailable, continuing", zap.Error(err))
		return m.Unlock
	}
	if !acquired {
		return m.Unlock
	}
	return func() {
		if err := s.locker.Release(ctx, key, token); err != nil {
			s.log.Warn("recompute lock release failed", zap.Error(err))
		}
		m.Unlock()
	}
}

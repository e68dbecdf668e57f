package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	accountdomain "github.com/zutali/conmart/internal/account/domain"
	"github.com/zutali/conmart/internal/clock"
	"github.com/zutali/conmart/internal/config"
	entitlementdomain "github.com/zutali/conmart/internal/entitlement/domain"
	gatewaydomain "github.com/zutali/conmart/internal/gateway/domain"
	notificationdomain "github.com/zutali/conmart/internal/notification/domain"
	obsmetrics "github.com/zutali/conmart/internal/observability/metrics"
	plandomain "github.com/zutali/conmart/internal/plan/domain"
	subscriptiondomain "github.com/zutali/conmart/internal/subscription/domain"
	"github.com/zutali/conmart/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	txRefPrefix     = "zutali_"
	paymentProvider = "chapa"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger
	cfg config.Config

	genID *snowflake.Node
	clock clock.Clock
	repo  subscriptiondomain.Repository

	accountRepo accountdomain.Repository
	plansvc     plandomain.Service
	gateway     gatewaydomain.Client
	enforcer    entitlementdomain.Enforcer
	notifier    notificationdomain.Service
	metrics     *obsmetrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  subscriptiondomain.Repository

	AccountRepo accountdomain.Repository
	Plansvc     plandomain.Service
	Gateway     gatewaydomain.Client
	Enforcer    entitlementdomain.Enforcer
	Notifier    notificationdomain.Service
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),
		cfg: p.Cfg,

		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,

		accountRepo: p.AccountRepo,
		plansvc:     p.Plansvc,
		gateway:     p.Gateway,
		enforcer:    p.Enforcer,
		notifier:    p.Notifier,
		metrics:     p.Metrics,
	}
}

// Initiate implements domain.Service.
func (s *Service) Initiate(ctx context.Context, req subscriptiondomain.InitiateRequest) (*subscriptiondomain.InitiateResponse, error) {
	accountID, err := s.parseID(req.AccountID, subscriptiondomain.ErrInvalidAccount)
	if err != nil {
		return nil, err
	}

	account, err := s.accountRepo.FindByID(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, accountdomain.ErrAccountNotFound
	}

	plan, err := s.resolvePlan(ctx, req.PlanCode)
	if err != nil {
		return nil, err
	}

	if !s.cfg.Chapa.Configured() {
		return nil, gatewaydomain.ErrNotConfigured
	}

	var sellerProfileID *snowflake.ID
	if plan.Role == plandomain.PlanRoleSeller {
		profile, err := s.accountRepo.FindSellerProfileByAccountID(ctx, s.db, accountID)
		if err != nil {
			return nil, err
		}
		if profile == nil {
			return nil, accountdomain.ErrSellerProfileRequired
		}
		sellerProfileID = &profile.ID
	}

	now := s.clock.Now()
	txRef := txRefPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	returnURL := strings.TrimSpace(req.ReturnURL)
	if returnURL == "" {
		returnURL = s.cfg.Chapa.ReturnURL
	}

	var (
		subscription *subscriptiondomain.Subscription
		txn          *subscriptiondomain.PaymentTransaction
		gatewayErr   error
	)

	// The gateway call stays inside the transaction so the reset, the
	// transaction row and its outcome commit together.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByAccountAndPlanForUpdate(ctx, tx, accountID, plan.ID)
		if err != nil {
			return err
		}

		if existing == nil {
			subscription = &subscriptiondomain.Subscription{
				ID:              s.genID.Generate(),
				AccountID:       accountID,
				SellerProfileID: sellerProfileID,
				PlanID:          plan.ID,
				PlanCode:        plan.Code,
				Tier:            plan.Tier,
				Amount:          plan.Amount,
				Currency:        plan.Currency,
				Status:          subscriptiondomain.SubscriptionStatusPending,
				PaymentStatus:   subscriptiondomain.PaymentStatusPending,
				PaymentMethod:   paymentProvider,
				AutoRenew:       true,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := s.repo.Insert(ctx, tx, subscription); err != nil {
				return err
			}
		} else {
			subscription = existing
			subscription.SellerProfileID = sellerProfileID
			subscription.PlanCode = plan.Code
			subscription.Tier = plan.Tier
			subscription.Amount = plan.Amount
			subscription.Currency = plan.Currency
			subscription.Status = subscriptiondomain.SubscriptionStatusPending
			subscription.IsActive = false
			subscription.PaymentStatus = subscriptiondomain.PaymentStatusPending
			subscription.UpdatedAt = now
			if err := s.repo.Update(ctx, tx, subscription); err != nil {
				return err
			}
		}

		txn = &subscriptiondomain.PaymentTransaction{
			ID:              s.genID.Generate(),
			AccountID:       accountID,
			SubscriptionID:  subscription.ID,
			PlanID:          plan.ID,
			SellerProfileID: sellerProfileID,
			TxRef:           txRef,
			Amount:          plan.Amount,
			Currency:        plan.Currency,
			Status:          subscriptiondomain.TransactionStatusInitiated,
			InitiatedAt:     now,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.repo.InsertTransaction(ctx, tx, txn); err != nil {
			return err
		}

		result, err := s.gateway.Initialize(ctx, gatewaydomain.InitializeRequest{
			Amount:      plan.Amount,
			Currency:    plan.Currency,
			Email:       account.Email,
			FirstName:   account.FirstName,
			LastName:    account.LastName,
			Phone:       account.Phone,
			TxRef:       txRef,
			CallbackURL: s.cfg.Chapa.CallbackURL,
			ReturnURL:   returnURL,

			CustomizationTitle:       "Zutali Subscription",
			CustomizationDescription: plan.DisplayName,

			Metadata: map[string]string{
				"plan_code":       plan.Code,
				"account_id":      accountID.String(),
				"subscription_id": subscription.ID.String(),
			},
		})
		if err != nil {
			gatewayErr = err
			txn.Status = subscriptiondomain.TransactionStatusFailed
			txn.ResponsePayload = errorPayload(err)
			txn.UpdatedAt = now
			return s.repo.UpdateTransaction(ctx, tx, txn)
		}

		txn.Status = subscriptiondomain.TransactionStatusProcessing
		txn.CheckoutURL = result.CheckoutURL
		txn.ResponsePayload = datatypes.JSON(result.Raw)
		txn.UpdatedAt = now
		return s.repo.UpdateTransaction(ctx, tx, txn)
	})
	if err != nil {
		return nil, err
	}

	if gatewayErr != nil {
		s.log.Warn("checkout initialization failed",
			zap.String("tx_ref", txRef),
			zap.String("plan_code", plan.Code),
			zap.Error(gatewayErr))
		s.metrics.RecordPaymentEvent(ctx, paymentProvider, "initialize_failed")
		return nil, fmt.Errorf("%w: %v", subscriptiondomain.ErrGatewayUnavailable, gatewayErr)
	}

	s.metrics.RecordPaymentEvent(ctx, paymentProvider, "initialized")
	s.log.Info("checkout initialized",
		zap.String("tx_ref", txRef),
		zap.String("plan_code", plan.Code),
		zap.Int64("subscription_id", int64(subscription.ID)))

	return &subscriptiondomain.InitiateResponse{
		CheckoutURL:    txn.CheckoutURL,
		TxRef:          txRef,
		SubscriptionID: subscription.ID.String(),
	}, nil
}

// ProcessCallback implements domain.Service. The callback body is only a
// trigger; the gateway verify response is the sole authority.
func (s *Service) ProcessCallback(ctx context.Context, txRef string) (*subscriptiondomain.CallbackResult, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return nil, subscriptiondomain.ErrTransactionNotFound
	}

	txn, err := s.repo.FindTransactionByTxRef(ctx, s.db, txRef)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, subscriptiondomain.ErrTransactionNotFound
	}

	if txn.Status == subscriptiondomain.TransactionStatusSuccessful {
		return s.replayedResult(ctx, txn)
	}

	now := s.clock.Now()

	verify, err := s.gateway.Verify(ctx, txRef)
	if err != nil {
		settled, failErr := s.failTransaction(ctx, txn, errorPayload(err), nil)
		if failErr != nil {
			s.log.Error("recording verify failure", zap.String("tx_ref", txRef), zap.Error(failErr))
		}
		if settled {
			return s.replayedResult(ctx, txn)
		}
		s.metrics.RecordPaymentEvent(ctx, paymentProvider, "verify_unavailable")
		return nil, fmt.Errorf("%w: %v", subscriptiondomain.ErrGatewayUnavailable, err)
	}

	if verify.Outcome != gatewaydomain.OutcomeSuccess {
		settled, err := s.failTransaction(ctx, txn, datatypes.JSON(verify.Raw), &now)
		if err != nil {
			return nil, err
		}
		if settled {
			return s.replayedResult(ctx, txn)
		}
		s.metrics.RecordPaymentEvent(ctx, paymentProvider, "declined")
		return nil, subscriptiondomain.ErrPaymentDeclined
	}

	subscription, err := s.repo.FindByID(ctx, s.db, txn.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}

	// The plan may have been pulled from sale while the checkout was in
	// flight; a verified payment still settles against it.
	plan, err := s.plansvc.FindPlan(ctx, subscription.PlanCode)
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(verify.Currency, plan.Currency) || verify.Amount < plan.Amount {
		settled, err := s.failTransaction(ctx, txn, datatypes.JSON(verify.Raw), &now)
		if err != nil {
			return nil, err
		}
		if settled {
			return s.replayedResult(ctx, txn)
		}
		s.log.Warn("verified payment does not match plan terms",
			zap.String("tx_ref", txRef),
			zap.String("plan_code", plan.Code),
			zap.Float64("verified_amount", verify.Amount),
			zap.String("verified_currency", verify.Currency))
		s.metrics.RecordPaymentEvent(ctx, paymentProvider, "mismatch")
		return nil, subscriptiondomain.ErrPaymentMismatch
	}

	replayed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindTransactionByTxRefForUpdate(ctx, tx, txRef)
		if err != nil {
			return err
		}
		if locked == nil {
			return subscriptiondomain.ErrTransactionNotFound
		}
		if locked.Status == subscriptiondomain.TransactionStatusSuccessful {
			replayed = true
			txn = locked
			return nil
		}

		subscription, err = s.repo.FindByIDForUpdate(ctx, tx, locked.SubscriptionID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		locked.Status = subscriptiondomain.TransactionStatusSuccessful
		locked.CompletedAt = &now
		locked.ResponsePayload = datatypes.JSON(verify.Raw)
		locked.UpdatedAt = now
		if err := s.repo.UpdateTransaction(ctx, tx, locked); err != nil {
			return err
		}
		txn = locked

		subscription.PlanCode = plan.Code
		subscription.Tier = plan.Tier
		subscription.Amount = plan.Amount
		subscription.Currency = plan.Currency
		subscription.Activate(plan.DurationDays, txRef, now)
		if err := s.repo.Update(ctx, tx, subscription); err != nil {
			return err
		}

		terms := accountdomain.SubscriptionTerms{
			Tier:      plan.Tier,
			Active:    true,
			StartDate: subscription.StartDate,
			EndDate:   subscription.EndDate,
		}
		accountTerms := terms
		if plan.Role == plandomain.PlanRoleSeller && plan.Tier != plandomain.TierPremium {
			// A seller plan bleeds into the account tier only at premium;
			// otherwise the account keeps its own tier.
			account, err := s.accountRepo.FindByID(ctx, tx, subscription.AccountID)
			if err != nil {
				return err
			}
			if account != nil {
				accountTerms.Tier = account.Tier
			}
		}
		if err := s.accountRepo.ApplyAccountTerms(ctx, tx, subscription.AccountID, accountTerms); err != nil {
			return err
		}
		if plan.Role == plandomain.PlanRoleSeller && subscription.SellerProfileID != nil {
			if err := s.accountRepo.ApplySellerTerms(ctx, tx, *subscription.SellerProfileID, terms, plan.CapacityLimit); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if replayed {
		return s.replayedResult(ctx, txn)
	}

	// Enforcement and notification run after the commit. A failure here
	// must not undo the recorded payment.
	if plan.Role == plandomain.PlanRoleSeller && subscription.SellerProfileID != nil {
		if _, err := s.enforcer.EnforceListingLimit(ctx, *subscription.SellerProfileID, entitlementdomain.TriggerActivation); err != nil {
			s.log.Error("listing recompute after activation",
				zap.Int64("seller_profile_id", int64(*subscription.SellerProfileID)),
				zap.Error(err))
		}
	}
	if err := s.notifier.Record(ctx, notificationdomain.Decision{
		RecipientAccountID: subscription.AccountID,
		Kind:               notificationdomain.KindSubscriptionUpdated,
		Title:              "Subscription activated",
		Message:            fmt.Sprintf("Your %s subscription is active until %s.", plan.DisplayName, subscription.EndDate.Format("2006-01-02")),
	}); err != nil {
		s.log.Error("recording activation notification", zap.Error(err))
	}

	s.metrics.RecordPaymentEvent(ctx, paymentProvider, "verified_success")
	s.metrics.RecordActivation(ctx, plan.Code)
	s.log.Info("subscription activated",
		zap.String("tx_ref", txRef),
		zap.String("plan_code", plan.Code),
		zap.Int64("subscription_id", int64(subscription.ID)))

	return &subscriptiondomain.CallbackResult{
		TxRef:          txRef,
		Status:         subscriptiondomain.TransactionStatusSuccessful,
		SubscriptionID: subscription.ID.String(),
		PlanCode:       plan.Code,
		Subscription:   subscription.Status,
	}, nil
}

// GetByAccount implements domain.Service.
func (s *Service) GetByAccount(ctx context.Context, req subscriptiondomain.GetByAccountRequest) (subscriptiondomain.Subscription, error) {
	accountID, err := s.parseID(req.AccountID, subscriptiondomain.ErrInvalidAccount)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	item, err := s.repo.FindCurrentByAccountID(ctx, s.db, accountID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if item == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *item, nil
}

// ListTransactions implements domain.Service.
func (s *Service) ListTransactions(ctx context.Context, req subscriptiondomain.ListTransactionsRequest) (subscriptiondomain.ListTransactionsResponse, error) {
	accountID, err := s.parseID(req.AccountID, subscriptiondomain.ErrInvalidAccount)
	if err != nil {
		return subscriptiondomain.ListTransactionsResponse{}, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	if pageSize > 250 {
		pageSize = 250
	}

	var createdBefore *time.Time
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return subscriptiondomain.ListTransactionsResponse{}, err
		}
		if cursor.CreatedAt != "" {
			at, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
			if err != nil {
				return subscriptiondomain.ListTransactionsResponse{}, err
			}
			createdBefore = &at
		}
	}

	items, err := s.repo.ListTransactionsByAccount(ctx, s.db, accountID, createdBefore, pageSize+1)
	if err != nil {
		return subscriptiondomain.ListTransactionsResponse{}, err
	}

	refs := make([]*subscriptiondomain.PaymentTransaction, len(items))
	for i := range items {
		refs[i] = &items[i]
	}

	pageInfo := pagination.BuildCursorPageInfo(refs, int32(pageSize), func(item *subscriptiondomain.PaymentTransaction) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	resp := subscriptiondomain.ListTransactionsResponse{
		Transactions: items,
	}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// resolvePlan seeds well-known codes, then falls back to the stored catalog
// for custom plans. Unknown or inactive codes are an input error.
func (s *Service) resolvePlan(ctx context.Context, code string) (*plandomain.Plan, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, plandomain.ErrInvalidPlan
	}

	plan, err := s.plansvc.EnsurePlan(ctx, code)
	if errors.Is(err, plandomain.ErrPlanNotFound) {
		plan, err = s.plansvc.GetPlan(ctx, code)
	}
	if errors.Is(err, plandomain.ErrPlanNotFound) {
		return nil, plandomain.ErrInvalidPlan
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *Service) replayedResult(ctx context.Context, txn *subscriptiondomain.PaymentTransaction) (*subscriptiondomain.CallbackResult, error) {
	result := &subscriptiondomain.CallbackResult{
		TxRef:          txn.TxRef,
		Status:         txn.Status,
		SubscriptionID: txn.SubscriptionID.String(),
		AlreadyDone:    true,
	}

	subscription, err := s.repo.FindByID(ctx, s.db, txn.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if subscription != nil {
		result.PlanCode = subscription.PlanCode
		result.Subscription = subscription.Status
	}
	return result, nil
}

// failTransaction marks the row failed unless another delivery has settled
// it successful in the meantime; the row is re-read under lock so a
// successful status is never overwritten. Returns settled=true when the
// row was already successful. completedAt is nil for transport failures so
// the row stays recognizably unsettled.
func (s *Service) failTransaction(ctx context.Context, txn *subscriptiondomain.PaymentTransaction, payload datatypes.JSON, completedAt *time.Time) (bool, error) {
	settled := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindTransactionByTxRefForUpdate(ctx, tx, txn.TxRef)
		if err != nil {
			return err
		}
		if locked == nil {
			return subscriptiondomain.ErrTransactionNotFound
		}
		if locked.Status == subscriptiondomain.TransactionStatusSuccessful {
			settled = true
			*txn = *locked
			return nil
		}

		locked.Status = subscriptiondomain.TransactionStatusFailed
		locked.ResponsePayload = payload
		locked.CompletedAt = completedAt
		locked.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateTransaction(ctx, tx, locked); err != nil {
			return err
		}
		*txn = *locked
		return nil
	})
	return settled, err
}

func (s *Service) parseID(value string, invalidErr error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalidErr
	}
	return id, nil
}

func errorPayload(err error) datatypes.JSON {
	b, marshalErr := json.Marshal(map[string]string{"error": err.Error()})
	if marshalErr != nil {
		return nil
	}
	return datatypes.JSON(b)
}

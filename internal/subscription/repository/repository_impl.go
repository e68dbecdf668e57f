package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/zutali/conmart/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const subscriptionColumns = `id, account_id, seller_profile_id, plan_id, plan_code, tier, amount,
	 currency, status, is_active, start_date, end_date, next_billing_date, last_payment_date,
	 last_notified_at, auto_renew, payment_status, payment_reference, payment_method,
	 created_at, updated_at`

const transactionColumns = `id, account_id, subscription_id, plan_id, seller_profile_id, tx_ref,
	 amount, currency, checkout_url, status, response_payload, initiated_at, completed_at,
	 created_at, updated_at`

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

// lockForUpdate adds a row lock where the dialect supports one. SQLite
// serializes writers at the transaction level, so the clause is skipped.
func lockForUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector != nil && db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, account_id, seller_profile_id, plan_id, plan_code, tier, amount, currency,
			status, is_active, start_date, end_date, next_billing_date, last_payment_date,
			last_notified_at, auto_renew, payment_status, payment_reference, payment_method,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.AccountID,
		subscription.SellerProfileID,
		subscription.PlanID,
		subscription.PlanCode,
		subscription.Tier,
		subscription.Amount,
		subscription.Currency,
		subscription.Status,
		subscription.IsActive,
		subscription.StartDate,
		subscription.EndDate,
		subscription.NextBillingDate,
		subscription.LastPaymentDate,
		subscription.LastNotifiedAt,
		subscription.AutoRenew,
		subscription.PaymentStatus,
		subscription.PaymentRef,
		subscription.PaymentMethod,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET
			seller_profile_id = ?, plan_code = ?, tier = ?, amount = ?, currency = ?,
			status = ?, is_active = ?, start_date = ?, end_date = ?, next_billing_date = ?,
			last_payment_date = ?, last_notified_at = ?, auto_renew = ?, payment_status = ?,
			payment_reference = ?, payment_method = ?, updated_at = ?
		 WHERE id = ?`,
		subscription.SellerProfileID,
		subscription.PlanCode,
		subscription.Tier,
		subscription.Amount,
		subscription.Currency,
		subscription.Status,
		subscription.IsActive,
		subscription.StartDate,
		subscription.EndDate,
		subscription.NextBillingDate,
		subscription.LastPaymentDate,
		subscription.LastNotifiedAt,
		subscription.AutoRenew,
		subscription.PaymentStatus,
		subscription.PaymentRef,
		subscription.PaymentMethod,
		subscription.UpdatedAt,
		subscription.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`,
		id,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := lockForUpdate(db.WithContext(ctx)).
		Where("id = ?", id).
		Limit(1).
		Find(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindByAccountAndPlanForUpdate(ctx context.Context, db *gorm.DB, accountID, planID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := lockForUpdate(db.WithContext(ctx)).
		Where("account_id = ? AND plan_id = ?", accountID, planID).
		Limit(1).
		Find(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindCurrentByAccountID(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE account_id = ?
		 ORDER BY is_active DESC, updated_at DESC
		 LIMIT 1`,
		accountID,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE is_active AND next_billing_date IS NOT NULL AND next_billing_date <= ?
		 ORDER BY next_billing_date ASC
		 LIMIT ?`,
		cutoff,
		limit,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, txn *subscriptiondomain.PaymentTransaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_transactions (
			id, account_id, subscription_id, plan_id, seller_profile_id, tx_ref, amount,
			currency, checkout_url, status, response_payload, initiated_at, completed_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.AccountID,
		txn.SubscriptionID,
		txn.PlanID,
		txn.SellerProfileID,
		txn.TxRef,
		txn.Amount,
		txn.Currency,
		txn.CheckoutURL,
		txn.Status,
		txn.ResponsePayload,
		txn.InitiatedAt,
		txn.CompletedAt,
		txn.CreatedAt,
		txn.UpdatedAt,
	).Error
}

func (r *repo) UpdateTransaction(ctx context.Context, db *gorm.DB, txn *subscriptiondomain.PaymentTransaction) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_transactions SET
			checkout_url = ?, status = ?, response_payload = ?, completed_at = ?, updated_at = ?
		 WHERE id = ?`,
		txn.CheckoutURL,
		txn.Status,
		txn.ResponsePayload,
		txn.CompletedAt,
		txn.UpdatedAt,
		txn.ID,
	).Error
}

func (r *repo) FindTransactionByTxRef(ctx context.Context, db *gorm.DB, txRef string) (*subscriptiondomain.PaymentTransaction, error) {
	var txn subscriptiondomain.PaymentTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE tx_ref = ?`,
		txRef,
	).Scan(&txn).Error
	if err != nil {
		return nil, err
	}
	if txn.ID == 0 {
		return nil, nil
	}
	return &txn, nil
}

func (r *repo) FindTransactionByTxRefForUpdate(ctx context.Context, db *gorm.DB, txRef string) (*subscriptiondomain.PaymentTransaction, error) {
	var txn subscriptiondomain.PaymentTransaction
	err := lockForUpdate(db.WithContext(ctx)).
		Where("tx_ref = ?", txRef).
		Limit(1).
		Find(&txn).Error
	if err != nil {
		return nil, err
	}
	if txn.ID == 0 {
		return nil, nil
	}
	return &txn, nil
}

func (r *repo) ListTransactionsByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, createdBefore *time.Time, limit int) ([]subscriptiondomain.PaymentTransaction, error) {
	query := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if createdBefore != nil {
		query = query.Where("created_at < ?", *createdBefore)
	}

	var txns []subscriptiondomain.PaymentTransaction
	if err := query.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

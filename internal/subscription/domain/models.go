// Package domain contains the subscription ledger: subscription rows and
// the payment transactions that fund them.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusGrace     SubscriptionStatus = "grace"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// PaymentStatus tracks the funding state of the subscription itself.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// TransactionStatus tracks a single gateway transaction attempt.
type TransactionStatus string

const (
	TransactionStatusInitiated  TransactionStatus = "initiated"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusSuccessful TransactionStatus = "successful"
	TransactionStatusFailed     TransactionStatus = "failed"
)

// Subscription is the keyed singleton per (account, plan). Renewals reuse
// the row; they never create a second one.
type Subscription struct {
	ID              snowflake.ID       `gorm:"primaryKey"`
	AccountID       snowflake.ID       `gorm:"not null;uniqueIndex:uq_subscriptions_account_plan,priority:1"`
	SellerProfileID *snowflake.ID      `gorm:""`
	PlanID          snowflake.ID       `gorm:"not null;uniqueIndex:uq_subscriptions_account_plan,priority:2"`
	PlanCode        string             `gorm:"type:text;not null"`
	Tier            string             `gorm:"type:text;not null"`
	Amount          float64            `gorm:"type:numeric(10,2);not null"`
	Currency        string             `gorm:"type:text;not null;default:ETB"`
	Status          SubscriptionStatus `gorm:"type:text;not null;default:pending"`
	IsActive        bool               `gorm:"not null;default:false;index:idx_subscriptions_active_billing,priority:1"`
	StartDate       *time.Time         `gorm:""`
	EndDate         *time.Time         `gorm:""`
	NextBillingDate *time.Time         `gorm:"index:idx_subscriptions_active_billing,priority:2"`
	LastPaymentDate *time.Time         `gorm:""`
	LastNotifiedAt  *time.Time         `gorm:""`
	AutoRenew       bool               `gorm:"not null;default:true"`
	PaymentStatus   PaymentStatus      `gorm:"type:text;not null;default:pending"`
	PaymentRef      string             `gorm:"column:payment_reference;type:text;not null;default:''"`
	PaymentMethod   string             `gorm:"type:text;not null;default:chapa"`
	CreatedAt       time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// Activate applies a verified payment: the paid window starts now and the
// row becomes the account's live subscription.
func (s *Subscription) Activate(durationDays int, txRef string, now time.Time) {
	end := now.AddDate(0, 0, durationDays)
	s.Status = SubscriptionStatusActive
	s.IsActive = true
	s.StartDate = &now
	s.EndDate = &end
	s.NextBillingDate = &end
	s.LastPaymentDate = &now
	s.PaymentStatus = PaymentStatusCompleted
	s.PaymentRef = txRef
	s.UpdatedAt = now
}

// MarkExpired retires the subscription after its paid window lapsed.
func (s *Subscription) MarkExpired(now time.Time) {
	s.Status = SubscriptionStatusExpired
	s.IsActive = false
	s.AutoRenew = false
	s.UpdatedAt = now
}

// IsExpired reports whether the billing anchor has passed.
func (s *Subscription) IsExpired(now time.Time) bool {
	return s.NextBillingDate != nil && s.NextBillingDate.Before(now)
}

// ShouldSendReminder reports whether an expiry reminder is due: inside the
// reminder window, not yet expired, and not already notified this cycle.
func (s *Subscription) ShouldSendReminder(now time.Time, window time.Duration) bool {
	if !s.IsActive || s.NextBillingDate == nil {
		return false
	}
	due := *s.NextBillingDate
	windowOpen := due.Add(-window)
	if now.Before(windowOpen) || now.After(due) {
		return false
	}
	return s.LastNotifiedAt == nil || s.LastNotifiedAt.Before(windowOpen)
}

// RecordNotification stamps the reminder guard for the current cycle.
func (s *Subscription) RecordNotification(now time.Time) {
	s.LastNotifiedAt = &now
	s.UpdatedAt = now
}

// PaymentTransaction is one gateway attempt. TxRef is globally unique and
// never reused; replayed callbacks for a successful TxRef are idempotent.
type PaymentTransaction struct {
	ID              snowflake.ID      `gorm:"primaryKey"`
	AccountID       snowflake.ID      `gorm:"not null;index:idx_payment_transactions_account,priority:1"`
	SubscriptionID  snowflake.ID      `gorm:"not null"`
	PlanID          snowflake.ID      `gorm:"not null"`
	SellerProfileID *snowflake.ID     `gorm:""`
	TxRef           string            `gorm:"type:text;not null;uniqueIndex"`
	Amount          float64           `gorm:"type:numeric(10,2);not null"`
	Currency        string            `gorm:"type:text;not null;default:ETB"`
	CheckoutURL     string            `gorm:"type:text;not null;default:''"`
	Status          TransactionStatus `gorm:"type:text;not null;default:initiated"`
	ResponsePayload datatypes.JSON    `gorm:"type:jsonb"`
	InitiatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	CompletedAt     *time.Time        `gorm:""`
	CreatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_payment_transactions_account,priority:2"`
	UpdatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PaymentTransaction) TableName() string { return "payment_transactions" }

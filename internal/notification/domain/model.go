// Package domain records notification decisions. Delivery(email, push) is
// owned by a separate system; this ledger only decides and stores.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Kind enumerates the subscription lifecycle decisions.
type Kind string

const (
	KindSubscriptionUpdated  Kind = "subscription_updated"
	KindSubscriptionExpiring Kind = "subscription_expiring"
	KindSubscriptionExpired  Kind = "subscription_expired"
	KindSellerDowngraded     Kind = "seller_downgraded"
)

// Notification is one stored decision.
type Notification struct {
	ID                 snowflake.ID `gorm:"primaryKey"`
	RecipientAccountID snowflake.ID `gorm:"not null;index:idx_notifications_recipient,priority:1"`
	Kind               Kind         `gorm:"type:text;not null"`
	Title              string       `gorm:"type:text;not null;default:''"`
	Message            string       `gorm:"type:text;not null;default:''"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_notifications_recipient,priority:2"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, notification *Notification) error
	ListByRecipient(ctx context.Context, db *gorm.DB, recipientAccountID snowflake.ID, limit int) ([]Notification, error)
}

// Decision is a pending notification not yet assigned an ID.
type Decision struct {
	RecipientAccountID snowflake.ID
	Kind               Kind
	Title              string
	Message            string
}

type Service interface {
	// Record stores the decision. Failures are reported but must never
	// roll back the payment or sweep work that produced them.
	Record(ctx context.Context, decision Decision) error
	ListByRecipient(ctx context.Context, recipientAccountID snowflake.ID, limit int) ([]Notification, error)
}

// Package testing contains helpers for exercising the sweep against a
// database without waiting for real billing windows.
package testing

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// TimeAccelerator rewrites billing anchors so sweeps trigger immediately.
type TimeAccelerator struct {
	db *gorm.DB
}

func NewTimeAccelerator(db *gorm.DB) *TimeAccelerator {
	return &TimeAccelerator{db: db}
}

// FastForwardToExpiry moves a subscription's billing anchor into the past
// so the next expiry sweep picks it up.
func (ta *TimeAccelerator) FastForwardToExpiry(ctx context.Context, subscriptionID snowflake.ID) error {
	now := time.Now().UTC()
	return ta.db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET next_billing_date = ?, updated_at = ?
		 WHERE id = ? AND is_active`,
		now.Add(-1*time.Minute),
		now,
		subscriptionID,
	).Error
}

// FastForwardIntoReminderWindow places the billing anchor inside the
// reminder window without expiring the subscription.
func (ta *TimeAccelerator) FastForwardIntoReminderWindow(ctx context.Context, subscriptionID snowflake.ID, window time.Duration) error {
	now := time.Now().UTC()
	return ta.db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET next_billing_date = ?, last_notified_at = NULL, updated_at = ?
		 WHERE id = ? AND is_active`,
		now.Add(window/2),
		now,
		subscriptionID,
	).Error
}

// SetBillingAnchor sets an explicit billing anchor for a subscription.
func (ta *TimeAccelerator) SetBillingAnchor(ctx context.Context, subscriptionID snowflake.ID, at time.Time) error {
	return ta.db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET next_billing_date = ?, updated_at = ?
		 WHERE id = ?`,
		at,
		time.Now().UTC(),
		subscriptionID,
	).Error
}

// ResetReminderGuard clears the per-cycle reminder stamp for retesting.
func (ta *TimeAccelerator) ResetReminderGuard(ctx context.Context, subscriptionID snowflake.ID) error {
	return ta.db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET last_notified_at = NULL, updated_at = ?
		 WHERE id = ?`,
		time.Now().UTC(),
		subscriptionID,
	).Error
}

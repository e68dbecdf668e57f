package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	notificationdomain "github.com/zutali/conmart/internal/notification/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() notificationdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, notification *notificationdomain.Notification) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO notifications (id, recipient_account_id, kind, title, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		notification.ID,
		notification.RecipientAccountID,
		notification.Kind,
		notification.Title,
		notification.Message,
		notification.CreatedAt,
	).Error
}

func (r *repo) ListByRecipient(ctx context.Context, db *gorm.DB, recipientAccountID snowflake.ID, limit int) ([]notificationdomain.Notification, error) {
	var notifications []notificationdomain.Notification
	err := db.WithContext(ctx).Raw(
		`SELECT id, recipient_account_id, kind, title, message, created_at
		 FROM notifications WHERE recipient_account_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		recipientAccountID,
		limit,
	).Scan(&notifications).Error
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Update(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByAccountAndPlanForUpdate(ctx context.Context, db *gorm.DB, accountID, planID snowflake.ID) (*Subscription, error)
	FindCurrentByAccountID(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*Subscription, error)
	// ListDue returns active subscriptions with a billing anchor at or
	// before the cutoff, oldest anchor first. The sweep uses one cutoff of
	// now+window so the same batch serves reminders and expirations.
	ListDue(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]Subscription, error)

	InsertTransaction(ctx context.Context, db *gorm.DB, txn *PaymentTransaction) error
	UpdateTransaction(ctx context.Context, db *gorm.DB, txn *PaymentTransaction) error
	FindTransactionByTxRef(ctx context.Context, db *gorm.DB, txRef string) (*PaymentTransaction, error)
	FindTransactionByTxRefForUpdate(ctx context.Context, db *gorm.DB, txRef string) (*PaymentTransaction, error)
	ListTransactionsByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, createdBefore *time.Time, limit int) ([]PaymentTransaction, error)
}

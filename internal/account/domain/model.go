// Package domain contains collaborator models owned by the marketplace core.
// The payment flows only touch the subscription fields declared here.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Account is a marketplace user able to purchase subscriptions.
type Account struct {
	ID                    snowflake.ID `gorm:"primaryKey"`
	Email                 string       `gorm:"type:text;not null;uniqueIndex"`
	FirstName             string       `gorm:"type:text;not null;default:''"`
	LastName              string       `gorm:"type:text;not null;default:''"`
	Phone                 string       `gorm:"type:text;not null;default:''"`
	Role                  string       `gorm:"type:text;not null;default:user"`
	Tier                  string       `gorm:"type:text;not null;default:free"`
	SubscriptionActive    bool         `gorm:"not null;default:false"`
	SubscriptionStartDate *time.Time   `gorm:""`
	SubscriptionEndDate   *time.Time   `gorm:""`
	CreatedAt             time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt             time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "accounts" }

// SellerProfile is the selling identity attached to an account.
type SellerProfile struct {
	ID                    snowflake.ID `gorm:"primaryKey"`
	AccountID             snowflake.ID `gorm:"not null;uniqueIndex"`
	BusinessName          string       `gorm:"type:text;not null;default:''"`
	Tier                  string       `gorm:"type:text;not null;default:basic"`
	SubscriptionActive    bool         `gorm:"not null;default:false"`
	SubscriptionStartDate *time.Time   `gorm:""`
	SubscriptionEndDate   *time.Time   `gorm:""`
	ListingLimit          *int         `gorm:""`
	CreatedAt             time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt             time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SellerProfile) TableName() string { return "seller_profiles" }

// Listing is a seller's product entry. Hidden is owned by the entitlement
// recompute and must not be edited anywhere else.
type Listing struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	SellerProfileID snowflake.ID `gorm:"not null;index:idx_listings_seller_created,priority:1"`
	Title           string       `gorm:"type:text;not null;default:''"`
	Hidden          bool         `gorm:"not null;default:false"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_listings_seller_created,priority:2"`
	UpdatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Listing) TableName() string { return "listings" }

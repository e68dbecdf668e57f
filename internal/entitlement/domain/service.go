// Package domain defines the listing entitlement enforcer. The enforcer is
// the only writer of the listings.hidden flag.
package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// RecomputeResult reports what a visibility recompute changed.
type RecomputeResult struct {
	SellerProfileID snowflake.ID
	Limit           *int
	Hidden          int64
	Unhidden        int64
}

// Recompute triggers, used as metric labels.
const (
	TriggerActivation = "activation"
	TriggerExpiry     = "expiry"
	TriggerManual     = "manual"
)

// Enforcer recomputes listing visibility for a seller profile against its
// current listing allowance. Recomputes are idempotent.
type Enforcer interface {
	EnforceListingLimit(ctx context.Context, sellerProfileID snowflake.ID, trigger string) (*RecomputeResult, error)
}

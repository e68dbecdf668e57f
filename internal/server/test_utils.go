package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type testCleanupRequest struct {
	Prefix string `json:"prefix"`
}

// TestCleanup removes fixture accounts created by end-to-end runs. Only
// wired outside production.
func (s *Server) TestCleanup(c *gin.Context) {
	if s.cfg.Environment == "production" {
		AbortWithError(c, ErrNotFound)
		return
	}

	var req testCleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	prefix := strings.TrimSpace(req.Prefix)
	if prefix == "" {
		AbortWithError(c, newValidationError("prefix", "required", "prefix is required"))
		return
	}

	ctx := c.Request.Context()
	like := prefix + "%"

	var accountIDs []int64
	if err := s.db.WithContext(ctx).
		Table("accounts").
		Select("id").
		Where("email LIKE ?", like).
		Scan(&accountIDs).Error; err != nil {
		AbortWithError(c, err)
		return
	}

	if len(accountIDs) > 0 {
		if err := s.db.WithContext(ctx).Exec(
			`DELETE FROM payment_transactions WHERE account_id IN ?`, accountIDs,
		).Error; err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.db.WithContext(ctx).Exec(
			`DELETE FROM subscriptions WHERE account_id IN ?`, accountIDs,
		).Error; err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.db.WithContext(ctx).Exec(
			`DELETE FROM notifications WHERE recipient_account_id IN ?`, accountIDs,
		).Error; err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.db.WithContext(ctx).Exec(
			`DELETE FROM listings WHERE seller_profile_id IN (SELECT id FROM seller_profiles WHERE account_id IN ?)`, accountIDs,
		).Error; err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.db.WithContext(ctx).Exec(
			`DELETE FROM seller_profiles WHERE account_id IN ?`, accountIDs,
		).Error; err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.db.WithContext(ctx).Exec(
			`DELETE FROM accounts WHERE id IN ?`, accountIDs,
		).Error; err != nil {
			AbortWithError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"accounts_deleted": len(accountIDs),
	})
}

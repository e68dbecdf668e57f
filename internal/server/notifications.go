package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/zutali/conmart/internal/subscription/domain"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

func (s *Server) ListAccountNotifications(c *gin.Context) {
	raw, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil {
		AbortWithError(c, subscriptiondomain.ErrInvalidAccount)
		return
	}

	limit := defaultNotificationLimit
	if value := strings.TrimSpace(c.Query("limit")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}

	notifications, err := s.notificationSvc.ListByRecipient(c.Request.Context(), snowflake.ID(raw), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

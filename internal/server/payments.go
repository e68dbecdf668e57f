package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/zutali/conmart/internal/subscription/domain"
)

func (s *Server) InitializeSubscription(c *gin.Context) {
	var req subscriptiondomain.InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if strings.TrimSpace(req.AccountID) == "" {
		AbortWithError(c, newValidationError("account_id", "required", "account_id is required"))
		return
	}
	if strings.TrimSpace(req.PlanCode) == "" {
		AbortWithError(c, newValidationError("plan_code", "required", "plan_code is required"))
		return
	}

	resp, err := s.subscriptionSvc.Initiate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CallbackRateLimit throttles the public callback endpoint by client IP
// plus an endpoint-wide budget. Without redis the limiter is inert.
func (s *Server) CallbackRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.callbackLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		res, err := s.callbackLimiter.Allow(ctx, c.ClientIP())
		if err != nil {
			// Fail open: the gateway retries, a dropped callback does not.
			s.obsMetrics.RecordRateLimitAllowed(ctx, "chapa_callback")
			c.Next()
			return
		}
		if !res.Allowed {
			s.obsMetrics.RecordRateLimitDenied(ctx, "chapa_callback", "bucket_exhausted")
			AbortWithError(c, ErrTooManyRequests)
			return
		}

		s.obsMetrics.RecordRateLimitAllowed(ctx, "chapa_callback")
		c.Next()
	}
}

// ChapaCallback is the gateway's redelivery target. Terminal outcomes,
// declines and mismatches included, return 200 so Chapa stops retrying;
// transport failures return 502 so it tries again.
func (s *Server) ChapaCallback(c *gin.Context) {
	txRef := extractTxRef(c)
	if txRef == "" {
		AbortWithError(c, newValidationError("tx_ref", "required", "tx_ref is required"))
		return
	}
	c.Set("tx_ref", txRef)

	result, err := s.subscriptionSvc.ProcessCallback(c.Request.Context(), txRef)
	if err != nil {
		switch {
		case errors.Is(err, subscriptiondomain.ErrPaymentDeclined),
			errors.Is(err, subscriptiondomain.ErrPaymentMismatch):
			// Terminal: acknowledge so the gateway stops redelivering.
			c.JSON(http.StatusOK, gin.H{
				"status": "failed",
				"tx_ref": txRef,
				"reason": mapCallbackFailureReason(err),
			})
			return
		default:
			AbortWithError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, result)
}

func mapCallbackFailureReason(err error) string {
	switch {
	case errors.Is(err, subscriptiondomain.ErrPaymentDeclined):
		return "payment_declined"
	case errors.Is(err, subscriptiondomain.ErrPaymentMismatch):
		return "payment_mismatch"
	default:
		return "failed"
	}
}

// extractTxRef digs the transaction reference out of the callback. Chapa
// has shipped it under several names and in both the query string and the
// JSON body, so all of them are accepted.
func extractTxRef(c *gin.Context) string {
	aliases := []string{"tx_ref", "trx_ref", "transaction_ref"}

	for _, key := range aliases {
		if value := strings.TrimSpace(c.Query(key)); value != "" {
			return value
		}
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		return ""
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}

	for _, key := range aliases {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		var value string
		if err := json.Unmarshal(raw, &value); err == nil {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func (s *Server) ListPlans(c *gin.Context) {
	plans, err := s.plansvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

func (s *Server) GetAccountSubscription(c *gin.Context) {
	subscription, err := s.subscriptionSvc.GetByAccount(c.Request.Context(), subscriptiondomain.GetByAccountRequest{
		AccountID: c.Param("id"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, subscription)
}

func (s *Server) ListAccountTransactions(c *gin.Context) {
	req := subscriptiondomain.ListTransactionsRequest{
		AccountID: c.Param("id"),
	}
	if err := c.ShouldBindQuery(&req.Pagination); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.ListTransactions(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

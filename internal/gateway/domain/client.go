// Package domain defines the payment gateway boundary. Verification results
// from this boundary are the only authority for payment outcomes; callback
// payloads received over HTTP are never trusted directly.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// VerifyOutcome classifies what the gateway reported for a transaction.
type VerifyOutcome string

const (
	OutcomeSuccess VerifyOutcome = "success"
	OutcomeFailed  VerifyOutcome = "failed"
)

var (
	// ErrNotConfigured means no gateway credentials were supplied.
	ErrNotConfigured = errors.New("gateway_not_configured")
)

// GatewayError wraps transport, auth and server-side failures. It is
// retryable: the caller may re-attempt once the gateway recovers. Business
// declines are VerifyOutcome values, never a GatewayError.
type GatewayError struct {
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway_error: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway_error: %v", e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsGatewayError reports whether err originated at the gateway boundary.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

// InitializeRequest carries everything needed to open a hosted checkout.
type InitializeRequest struct {
	Amount      float64
	Currency    string
	Email       string
	FirstName   string
	LastName    string
	Phone       string
	TxRef       string
	CallbackURL string
	ReturnURL   string

	CustomizationTitle       string
	CustomizationDescription string

	Metadata map[string]string
}

// InitializeResult is the gateway's answer to a checkout initialization.
type InitializeResult struct {
	CheckoutURL string
	Raw         json.RawMessage
}

// VerifyResult is the authoritative record of a transaction's state.
type VerifyResult struct {
	Outcome  VerifyOutcome
	Amount   float64
	Currency string
	Raw      json.RawMessage
}

// Client talks to the payment gateway. Single attempt, bounded timeout;
// retry policy belongs to the caller (or the gateway's own redelivery).
type Client interface {
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, txRef string) (*VerifyResult, error)
}

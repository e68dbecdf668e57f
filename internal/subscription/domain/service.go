package domain

import (
	"context"
	"errors"

	"github.com/zutali/conmart/pkg/db/pagination"
)

var (
	ErrInvalidAccount       = errors.New("invalid_account")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrTransactionNotFound  = errors.New("transaction_not_found")
	ErrPaymentMismatch      = errors.New("payment_mismatch")
	ErrPaymentDeclined      = errors.New("payment_declined")
	ErrGatewayUnavailable   = errors.New("gateway_unavailable")
)

type InitiateRequest struct {
	AccountID string `json:"account_id"`
	PlanCode  string `json:"plan_code"`
	ReturnURL string `json:"return_url,omitempty"`
}

type InitiateResponse struct {
	CheckoutURL    string `json:"checkout_url"`
	TxRef          string `json:"tx_ref"`
	SubscriptionID string `json:"subscription_id"`
}

type CallbackResult struct {
	TxRef          string             `json:"tx_ref"`
	Status         TransactionStatus  `json:"status"`
	SubscriptionID string             `json:"subscription_id"`
	PlanCode       string             `json:"plan_code"`
	Subscription   SubscriptionStatus `json:"subscription_status"`
	AlreadyDone    bool               `json:"already_processed,omitempty"`
}

type GetByAccountRequest struct {
	AccountID string
}

type ListTransactionsRequest struct {
	AccountID string
	pagination.Pagination
}

type ListTransactionsResponse struct {
	pagination.PageInfo
	Transactions []PaymentTransaction `json:"transactions"`
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	// Initiate resets or creates the (account, plan) subscription and opens
	// a hosted checkout for it.
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error)
	// ProcessCallback re-verifies a transaction with the gateway and, on a
	// validated success, activates the funded subscription.
	ProcessCallback(ctx context.Context, txRef string) (*CallbackResult, error)
	// GetByAccount returns the account's current subscription row.
	GetByAccount(ctx context.Context, req GetByAccountRequest) (Subscription, error)
	// ListTransactions pages through an account's payment history.
	ListTransactions(ctx context.Context, req ListTransactionsRequest) (ListTransactionsResponse, error)
}

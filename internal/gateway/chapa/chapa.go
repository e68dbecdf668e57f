// Package chapa implements the gateway client against the Chapa REST API.
package chapa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/zutali/conmart/internal/config"
	gatewaydomain "github.com/zutali/conmart/internal/gateway/domain"
	"go.uber.org/zap"
)

const statusSuccess = "success"

type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
	log       *zap.Logger
}

// New builds a Chapa client from configuration. The HTTP client carries the
// configured timeout; there is no retry here.
func New(cfg config.ChapaConfig, log *zap.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		http:      &http.Client{Timeout: cfg.Timeout},
		log:       log.Named("gateway.chapa"),
	}
}

// WithHTTPClient swaps the transport, for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

type initializePayload struct {
	Amount      string            `json:"amount"`
	Currency    string            `json:"currency"`
	Email       string            `json:"email"`
	FirstName   string            `json:"first_name,omitempty"`
	LastName    string            `json:"last_name,omitempty"`
	PhoneNumber string            `json:"phone_number,omitempty"`
	TxRef       string            `json:"tx_ref"`
	CallbackURL string            `json:"callback_url,omitempty"`
	ReturnURL   string            `json:"return_url,omitempty"`
	Custom      *customization    `json:"customization,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

type customization struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeData struct {
	CheckoutURL string `json:"checkout_url"`
}

type verifyData struct {
	Status   string      `json:"status"`
	Amount   json.Number `json:"amount"`
	Currency string      `json:"currency"`
}

// Initialize implements domain.Client.
func (c *Client) Initialize(ctx context.Context, req gatewaydomain.InitializeRequest) (*gatewaydomain.InitializeResult, error) {
	if c.secretKey == "" {
		return nil, gatewaydomain.ErrNotConfigured
	}

	payload := initializePayload{
		Amount:      strconv.FormatFloat(req.Amount, 'f', 2, 64),
		Currency:    req.Currency,
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.Phone,
		TxRef:       req.TxRef,
		CallbackURL: req.CallbackURL,
		ReturnURL:   req.ReturnURL,
		Meta:        req.Metadata,
	}
	if req.CustomizationTitle != "" || req.CustomizationDescription != "" {
		payload.Custom = &customization{
			Title:       req.CustomizationTitle,
			Description: req.CustomizationDescription,
		}
	}

	body, raw, err := c.do(ctx, http.MethodPost, "/transaction/initialize", payload)
	if err != nil {
		return nil, err
	}
	if body.Status != statusSuccess {
		return nil, &gatewaydomain.GatewayError{Err: fmt.Errorf("initialize rejected: %s", body.Message)}
	}

	var data initializeData
	if err := json.Unmarshal(body.Data, &data); err != nil {
		return nil, &gatewaydomain.GatewayError{Err: fmt.Errorf("decode initialize data: %w", err)}
	}
	if strings.TrimSpace(data.CheckoutURL) == "" {
		return nil, &gatewaydomain.GatewayError{Err: errors.New("initialize response missing checkout_url")}
	}

	return &gatewaydomain.InitializeResult{
		CheckoutURL: data.CheckoutURL,
		Raw:         raw,
	}, nil
}

// Verify implements domain.Client. A parseable non-success answer is a
// decline, not an error.
func (c *Client) Verify(ctx context.Context, txRef string) (*gatewaydomain.VerifyResult, error) {
	if c.secretKey == "" {
		return nil, gatewaydomain.ErrNotConfigured
	}
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return nil, &gatewaydomain.GatewayError{Err: errors.New("empty tx_ref")}
	}

	body, raw, err := c.do(ctx, http.MethodGet, "/transaction/verify/"+txRef, nil)
	if err != nil {
		return nil, err
	}

	result := &gatewaydomain.VerifyResult{Outcome: gatewaydomain.OutcomeFailed, Raw: raw}
	if body.Status != statusSuccess {
		return result, nil
	}

	var data verifyData
	if err := json.Unmarshal(body.Data, &data); err != nil {
		return nil, &gatewaydomain.GatewayError{Err: fmt.Errorf("decode verify data: %w", err)}
	}
	result.Currency = strings.ToUpper(strings.TrimSpace(data.Currency))
	if amount, err := data.Amount.Float64(); err == nil {
		result.Amount = amount
	}
	if strings.EqualFold(strings.TrimSpace(data.Status), statusSuccess) {
		result.Outcome = gatewaydomain.OutcomeSuccess
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*envelope, json.RawMessage, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, &gatewaydomain.GatewayError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, &gatewaydomain.GatewayError{StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= http.StatusInternalServerError ||
		resp.StatusCode == http.StatusUnauthorized ||
		resp.StatusCode == http.StatusForbidden {
		return nil, nil, &gatewaydomain.GatewayError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s %s: %s", method, path, http.StatusText(resp.StatusCode)),
		}
	}

	var body envelope
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, nil, &gatewaydomain.GatewayError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}

	return &body, raw, nil
}

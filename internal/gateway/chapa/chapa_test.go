package chapa

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zutali/conmart/internal/config"
	gatewaydomain "github.com/zutali/conmart/internal/gateway/domain"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(config.ChapaConfig{
		SecretKey: "test-secret",
		BaseURL:   srv.URL,
		Timeout:   5 * time.Second,
	}, zap.NewNop())
}

func TestInitializeSuccess(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]any

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/transaction/initialize", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","message":"Hosted Link","data":{"checkout_url":"https://checkout.chapa.co/pay/abc"}}`))
	})

	result, err := client.Initialize(context.Background(), gatewaydomain.InitializeRequest{
		Amount:   50,
		Currency: "ETB",
		Email:    "user@example.com",
		TxRef:    "zutali_abc",
	})
	require.NoError(t, err)
	require.Equal(t, "https://checkout.chapa.co/pay/abc", result.CheckoutURL)
	require.Equal(t, "Bearer test-secret", gotAuth)
	require.Equal(t, "50.00", gotPayload["amount"])
	require.Equal(t, "zutali_abc", gotPayload["tx_ref"])
}

func TestInitializeRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"failed","message":"Invalid currency"}`))
	})

	_, err := client.Initialize(context.Background(), gatewaydomain.InitializeRequest{
		Amount: 50, Currency: "XXX", Email: "user@example.com", TxRef: "zutali_bad",
	})
	require.Error(t, err)
	var gwErr *gatewaydomain.GatewayError
	require.True(t, errors.As(err, &gwErr))
}

func TestInitializeNotConfigured(t *testing.T) {
	client := New(config.ChapaConfig{BaseURL: "https://api.chapa.co/v1"}, zap.NewNop())

	_, err := client.Initialize(context.Background(), gatewaydomain.InitializeRequest{TxRef: "zutali_x"})
	require.ErrorIs(t, err, gatewaydomain.ErrNotConfigured)
}

func TestVerifySuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/transaction/verify/zutali_ok", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"success","data":{"status":"success","amount":200,"currency":"etb"}}`))
	})

	result, err := client.Verify(context.Background(), "zutali_ok")
	require.NoError(t, err)
	require.Equal(t, gatewaydomain.OutcomeSuccess, result.Outcome)
	require.Equal(t, 200.0, result.Amount)
	require.Equal(t, "ETB", result.Currency)
}

func TestVerifyDeclineIsOutcomeNotError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":"failed","message":"transaction not found"}`))
	})

	result, err := client.Verify(context.Background(), "zutali_declined")
	require.NoError(t, err)
	require.Equal(t, gatewaydomain.OutcomeFailed, result.Outcome)
}

func TestVerifyPendingIsNotSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","data":{"status":"pending","amount":50,"currency":"ETB"}}`))
	})

	result, err := client.Verify(context.Background(), "zutali_pending")
	require.NoError(t, err)
	require.Equal(t, gatewaydomain.OutcomeFailed, result.Outcome)
}

func TestVerifyServerErrorIsGatewayError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Verify(context.Background(), "zutali_boom")
	var gwErr *gatewaydomain.GatewayError
	require.True(t, errors.As(err, &gwErr))
	require.Equal(t, http.StatusInternalServerError, gwErr.StatusCode)
}

func TestVerifyTransportFailureIsGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := srv.URL
	srv.Close()

	client := New(config.ChapaConfig{
		SecretKey: "test-secret",
		BaseURL:   baseURL,
		Timeout:   time.Second,
	}, zap.NewNop())

	_, err := client.Verify(context.Background(), "zutali_down")
	var gwErr *gatewaydomain.GatewayError
	require.True(t, errors.As(err, &gwErr))
}

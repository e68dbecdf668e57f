package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/zutali/conmart/internal/config"
	plandomain "github.com/zutali/conmart/internal/plan/domain"
	subscriptiondomain "github.com/zutali/conmart/internal/subscription/domain"
)

type fakeSubscriptionService struct {
	initiateResp *subscriptiondomain.InitiateResponse
	initiateErr  error

	callbackResult *subscriptiondomain.CallbackResult
	callbackErr    error
	callbackTxRefs []string

	subscription subscriptiondomain.Subscription
	getErr       error
}

func (f *fakeSubscriptionService) Initiate(ctx context.Context, req subscriptiondomain.InitiateRequest) (*subscriptiondomain.InitiateResponse, error) {
	if f.initiateErr != nil {
		return nil, f.initiateErr
	}
	return f.initiateResp, nil
}

func (f *fakeSubscriptionService) ProcessCallback(ctx context.Context, txRef string) (*subscriptiondomain.CallbackResult, error) {
	f.callbackTxRefs = append(f.callbackTxRefs, txRef)
	if f.callbackErr != nil {
		return nil, f.callbackErr
	}
	return f.callbackResult, nil
}

func (f *fakeSubscriptionService) GetByAccount(ctx context.Context, req subscriptiondomain.GetByAccountRequest) (subscriptiondomain.Subscription, error) {
	if f.getErr != nil {
		return subscriptiondomain.Subscription{}, f.getErr
	}
	return f.subscription, nil
}

func (f *fakeSubscriptionService) ListTransactions(ctx context.Context, req subscriptiondomain.ListTransactionsRequest) (subscriptiondomain.ListTransactionsResponse, error) {
	return subscriptiondomain.ListTransactionsResponse{}, nil
}

type fakeCatalog struct {
	plans []plandomain.Plan
}

func (f *fakeCatalog) GetPlan(ctx context.Context, code string) (*plandomain.Plan, error) {
	return nil, plandomain.ErrPlanNotFound
}
func (f *fakeCatalog) FindPlan(ctx context.Context, code string) (*plandomain.Plan, error) {
	return nil, plandomain.ErrPlanNotFound
}
func (f *fakeCatalog) EnsurePlan(ctx context.Context, code string) (*plandomain.Plan, error) {
	return nil, plandomain.ErrPlanNotFound
}
func (f *fakeCatalog) List(ctx context.Context) ([]plandomain.Plan, error) { return f.plans, nil }
func (f *fakeCatalog) Deactivate(ctx context.Context, code string) error   { return nil }

func newTestServer(t *testing.T, subs subscriptiondomain.Service) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	srv := &Server{
		engine:          engine,
		cfg:             config.Config{Environment: "test"},
		plansvc:         &fakeCatalog{},
		subscriptionSvc: subs,
	}
	srv.registerAPIRoutes()
	return srv
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	return rec
}

func TestChapaCallbackSuccess(t *testing.T) {
	fake := &fakeSubscriptionService{
		callbackResult: &subscriptiondomain.CallbackResult{
			TxRef:        "zutali_abc",
			Status:       subscriptiondomain.TransactionStatusSuccessful,
			Subscription: subscriptiondomain.SubscriptionStatusActive,
		},
	}
	srv := newTestServer(t, fake)

	rec := doRequest(srv, http.MethodPost, "/api/v1/payments/chapa/callback", `{"tx_ref":"zutali_abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"zutali_abc"}, fake.callbackTxRefs)

	var result subscriptiondomain.CallbackResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, subscriptiondomain.TransactionStatusSuccessful, result.Status)
}

func TestChapaCallbackAcceptsAliases(t *testing.T) {
	cases := []struct {
		name string
		path string
		body string
	}{
		{"trx_ref body", "/api/v1/payments/chapa/callback", `{"trx_ref":"zutali_alias1"}`},
		{"transaction_ref body", "/api/v1/payments/chapa/callback", `{"transaction_ref":"zutali_alias2"}`},
		{"tx_ref query", "/api/v1/payments/chapa/callback?tx_ref=zutali_alias3", ""},
		{"trx_ref query", "/api/v1/payments/chapa/callback?trx_ref=zutali_alias4", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeSubscriptionService{
				callbackResult: &subscriptiondomain.CallbackResult{Status: subscriptiondomain.TransactionStatusSuccessful},
			}
			srv := newTestServer(t, fake)

			rec := doRequest(srv, http.MethodPost, tc.path, tc.body)
			require.Equal(t, http.StatusOK, rec.Code)
			require.Len(t, fake.callbackTxRefs, 1)
		})
	}
}

func TestChapaCallbackMissingTxRef(t *testing.T) {
	fake := &fakeSubscriptionService{}
	srv := newTestServer(t, fake)

	rec := doRequest(srv, http.MethodPost, "/api/v1/payments/chapa/callback", `{"status":"success"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, fake.callbackTxRefs)
}

func TestChapaCallbackUnknownTxRef(t *testing.T) {
	fake := &fakeSubscriptionService{callbackErr: subscriptiondomain.ErrTransactionNotFound}
	srv := newTestServer(t, fake)

	rec := doRequest(srv, http.MethodPost, "/api/v1/payments/chapa/callback", `{"tx_ref":"zutali_unknown"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChapaCallbackDeclinedIsTerminal(t *testing.T) {
	fake := &fakeSubscriptionService{callbackErr: subscriptiondomain.ErrPaymentDeclined}
	srv := newTestServer(t, fake)

	rec := doRequest(srv, http.MethodPost, "/api/v1/payments/chapa/callback", `{"tx_ref":"zutali_declined"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "payment_declined", body["reason"])
}

func TestChapaCallbackMismatchIsTerminal(t *testing.T) {
	fake := &fakeSubscriptionService{callbackErr: subscriptiondomain.ErrPaymentMismatch}
	srv := newTestServer(t, fake)

	rec := doRequest(srv, http.MethodPost, "/api/v1/payments/chapa/callback", `{"tx_ref":"zutali_short"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "payment_mismatch", body["reason"])
}

func TestChapaCallbackTransportFailureIsRetryable(t *testing.T) {
	fake := &fakeSubscriptionService{callbackErr: subscriptiondomain.ErrGatewayUnavailable}
	srv := newTestServer(t, fake)

	rec := doRequest(srv, http.MethodPost, "/api/v1/payments/chapa/callback", `{"tx_ref":"zutali_retry"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestInitializeSubscription(t *testing.T) {
	fake := &fakeSubscriptionService{
		initiateResp: &subscriptiondomain.InitiateResponse{
			CheckoutURL:    "https://checkout.chapa.co/x",
			TxRef:          "zutali_new",
			SubscriptionID: "42",
		},
	}
	srv := newTestServer(t, fake)

	rec := doRequest(srv, http.MethodPost, "/api/v1/payments/subscriptions/initialize",
		`{"account_id":"7","plan_code":"standard_user"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp subscriptiondomain.InitiateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "zutali_new", resp.TxRef)
	require.NotEmpty(t, resp.CheckoutURL)
}

func TestInitializeSubscriptionValidation(t *testing.T) {
	srv := newTestServer(t, &fakeSubscriptionService{})

	rec := doRequest(srv, http.MethodPost, "/api/v1/payments/subscriptions/initialize",
		`{"account_id":"7"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "validation_error", resp.Error.Type)
}

func TestInitializeSubscriptionUnknownPlan(t *testing.T) {
	fake := &fakeSubscriptionService{initiateErr: plandomain.ErrInvalidPlan}
	srv := newTestServer(t, fake)

	rec := doRequest(srv, http.MethodPost, "/api/v1/payments/subscriptions/initialize",
		`{"account_id":"7","plan_code":"bogus"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAccountSubscriptionNotFound(t *testing.T) {
	fake := &fakeSubscriptionService{getErr: subscriptiondomain.ErrSubscriptionNotFound}
	srv := newTestServer(t, fake)

	rec := doRequest(srv, http.MethodGet, "/api/v1/accounts/7/subscription", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPlans(t *testing.T) {
	srv := newTestServer(t, &fakeSubscriptionService{})
	srv.plansvc = &fakeCatalog{plans: []plandomain.Plan{{Code: "standard_user"}}}

	rec := doRequest(srv, http.MethodGet, "/api/v1/plans", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Plans []plandomain.Plan `json:"plans"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Plans, 1)
}

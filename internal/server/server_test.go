package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/and161185/checkout/internal/auth"
	"github.com/and161185/checkout/internal/config"
	"github.com/and161185/checkout/internal/deps"
	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/gateway"
	"github.com/and161185/checkout/internal/middleware"
	"github.com/and161185/checkout/internal/mocks"
	"github.com/and161185/checkout/internal/model"
	"github.com/and161185/checkout/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

type testMocks struct {
	users       *mocks.MockUserStorage
	orders      *mocks.MockOrders
	webhooks    *mocks.MockWebhooks
	wallet      *mocks.MockWallet
	withdrawals *mocks.MockWithdrawals
}

func setup(t *testing.T) (*Server, testMocks) {
	t.Helper()

	ctrl := gomock.NewController(t)
	m := testMocks{
		users:       mocks.NewMockUserStorage(ctrl),
		orders:      mocks.NewMockOrders(ctrl),
		webhooks:    mocks.NewMockWebhooks(ctrl),
		wallet:      mocks.NewMockWallet(ctrl),
		withdrawals: mocks.NewMockWithdrawals(ctrl),
	}

	logger := zaptest.NewLogger(t)
	cfg := &config.Config{WebhookRetryInterval: 10 * time.Millisecond}
	deps := &deps.Deps{
		TokenManager: auth.NewTokenManager("testsecret"),
		Logger:       logger.Sugar(),
	}

	srv := NewServer(m.users, Services{
		Orders:      m.orders,
		Webhooks:    m.webhooks,
		Wallet:      m.wallet,
		Withdrawals: m.withdrawals,
	}, cfg, deps)

	return srv, m
}

func newAuthenticatedRequest(method, path, token string, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func withUser(req *http.Request, user model.User) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.UserContextKey, user)
	return req.WithContext(ctx)
}

func chiContext(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestRegisterHandler(t *testing.T) {
	srv, m := setup(t)

	id := uuid.New()
	m.users.EXPECT().
		CreateUser(gomock.Any(), "user", gomock.Any(), model.RoleSeller).
		Return(model.User{ID: id, Login: "user", Role: model.RoleSeller}, nil)

	payload := `{"login":"user","password":"pass"}`
	req := httptest.NewRequest("POST", "/api/user/register", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	srv.RegisterHandler(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	authHeader := resp.Header.Get("Authorization")
	require.True(t, strings.HasPrefix(authHeader, "Bearer "), "missing token")

	claims, err := srv.deps.TokenManager.ParseToken(strings.TrimPrefix(authHeader, "Bearer "))
	require.NoError(t, err)
	require.Equal(t, id, claims.UserID)
}

func TestRegisterHandlerLoginTaken(t *testing.T) {
	srv, m := setup(t)

	m.users.EXPECT().
		CreateUser(gomock.Any(), "user", gomock.Any(), model.RoleSeller).
		Return(model.User{}, errs.ErrLoginAlreadyExists)

	req := httptest.NewRequest("POST", "/api/user/register", strings.NewReader(`{"login":"user","password":"pass"}`))
	w := httptest.NewRecorder()
	srv.RegisterHandler(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestLoginHandler(t *testing.T) {
	srv, m := setup(t)

	pw, _ := bcryptHash("pass")
	m.users.EXPECT().
		GetUserByLogin(gomock.Any(), "user").
		Return(model.User{ID: uuid.New(), Login: "user", Role: model.RoleSeller}, pw, nil).
		Times(2)

	req := httptest.NewRequest("POST", "/api/user/login", strings.NewReader(`{"login":"user","password":"pass"}`))
	w := httptest.NewRecorder()
	srv.LoginHandler(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("POST", "/api/user/login", strings.NewReader(`{"login":"user","password":"wrong"}`))
	w = httptest.NewRecorder()
	srv.LoginHandler(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheckoutHandler(t *testing.T) {
	srv, m := setup(t)

	offerID := uuid.New()
	order := model.Order{
		ID:      uuid.New(),
		Method:  model.MethodPix,
		Status:  model.Pending,
		Payload: model.ProviderPayload{CopyPasteCode: "00020126", QRImage: "data:image/png;base64,AA"},
	}

	m.orders.EXPECT().
		Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, in orders.CheckoutInput) (model.Order, error) {
			require.Equal(t, offerID, in.OfferID)
			require.Equal(t, "pix", in.Method)
			require.Equal(t, "key-1", in.CheckoutKey)
			require.Nil(t, in.Card)
			return order, nil
		})

	body := `{"sellerPlanId":"` + offerID.String() + `","method":"pix","buyer":{"name":"Maria","document":"529.982.247-25"}}`
	req := httptest.NewRequest("POST", "/api/checkout", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "key-1")
	w := httptest.NewRecorder()

	srv.CheckoutHandler(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp model.CheckoutResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, order.ID.String(), resp.OrderID)
	require.Equal(t, model.Pending, resp.Status)
	require.Equal(t, "00020126", resp.ProviderPayload.CopyPasteCode)
}

func TestCheckoutHandlerErrors(t *testing.T) {
	orderID := uuid.New()

	tests := []struct {
		name       string
		order      model.Order
		err        error
		wantStatus int
		wantReason string
		wantOrder  bool
	}{
		{"invalid method", model.Order{}, errs.ErrInvalidMethod, http.StatusBadRequest, "invalid_method", false},
		{"invalid buyer", model.Order{}, errs.ErrInvalidBuyer, http.StatusBadRequest, "invalid_buyer", false},
		{"card missing", model.Order{}, errs.ErrCardRequired, http.StatusBadRequest, "invalid_request", false},
		{"unknown plan", model.Order{}, errs.ErrOfferNotFound, http.StatusNotFound, "plan_not_found", false},
		{
			"gateway down",
			model.Order{ID: orderID, Method: model.MethodPix, Status: model.Pending},
			&errs.GatewayError{Provider: "efi", StatusCode: 502, Retryable: true, Err: errors.New("upstream says: secret details")},
			http.StatusServiceUnavailable, "gateway_unavailable", true,
		},
		{
			"card declined",
			model.Order{ID: orderID, Method: model.MethodCard, Status: model.Cancelled},
			errs.ErrPaymentDeclined,
			http.StatusPaymentRequired, "card_declined", true,
		},
		{
			"boleto rejected",
			model.Order{ID: orderID, Method: model.MethodBoleto, Status: model.Cancelled},
			errs.ErrPaymentDeclined,
			http.StatusPaymentRequired, "payment_rejected", true,
		},
		{"misconfigured", model.Order{}, errs.NewConfigurationError("no provider for PIX"), http.StatusInternalServerError, "configuration_error", false},
		{"unexpected", model.Order{}, errors.New("pool closed"), http.StatusInternalServerError, "internal_error", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, m := setup(t)
			m.orders.EXPECT().Create(gomock.Any(), gomock.Any()).Return(tt.order, tt.err)

			body := `{"sellerPlanId":"` + uuid.NewString() + `","method":"PIX","buyer":{"name":"Maria","document":"52998224725"}}`
			req := httptest.NewRequest("POST", "/api/checkout", strings.NewReader(body))
			w := httptest.NewRecorder()
			srv.CheckoutHandler(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
			resp := decodeError(t, w)
			require.Equal(t, tt.wantReason, resp.Error)
			require.NotContains(t, resp.Message, "secret")
			if tt.wantOrder {
				require.Equal(t, orderID.String(), resp.OrderID)
			} else {
				require.Empty(t, resp.OrderID)
			}
		})
	}
}

func TestCheckoutHandlerBadInput(t *testing.T) {
	srv, _ := setup(t)

	req := httptest.NewRequest("POST", "/api/checkout", strings.NewReader(`{not json`))
	w := httptest.NewRecorder()
	srv.CheckoutHandler(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_request", decodeError(t, w).Error)

	req = httptest.NewRequest("POST", "/api/checkout", strings.NewReader(`{"sellerPlanId":"nope","method":"PIX"}`))
	w = httptest.NewRecorder()
	srv.CheckoutHandler(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "plan_not_found", decodeError(t, w).Error)
}

func TestRetryPaymentThroughRouter(t *testing.T) {
	srv, m := setup(t)
	router := srv.buildRouter()

	orderID := uuid.New()
	m.orders.EXPECT().
		Pay(gomock.Any(), orderID, &gateway.Card{Token: "tok", Installments: 3}).
		Return(model.Order{ID: orderID, Method: model.MethodCard, Status: model.Paid}, nil)

	req := httptest.NewRequest("POST", "/api/checkout/"+orderID.String()+"/payment", strings.NewReader(`{"card":{"token":"tok","installments":3}}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp model.CheckoutResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, model.Paid, resp.Status)
}

func TestCheckoutStatusThroughRouter(t *testing.T) {
	srv, m := setup(t)
	router := srv.buildRouter()

	known := uuid.New()
	m.orders.EXPECT().Get(gomock.Any(), known).Return(model.Order{ID: known, Method: model.MethodBoleto, Status: model.Pending}, nil)
	m.orders.EXPECT().Get(gomock.Any(), gomock.Not(known)).Return(model.Order{}, errs.ErrOrderNotFound)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/checkout/"+known.String(), nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/checkout/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "order_not_found", decodeError(t, w).Error)
}

func TestWebhookHandler(t *testing.T) {
	tests := []struct {
		name       string
		acceptErr  error
		processErr error
		wantStatus int
	}{
		{"applied", nil, nil, http.StatusOK},
		{"apply failed is still acknowledged", nil, errors.New("db down"), http.StatusOK},
		{"unknown provider", errs.ErrUnknownProvider, nil, http.StatusNotFound},
		{"forged", errs.ErrUnauthenticEvent, nil, http.StatusUnauthorized},
		{"store failed", errors.New("db down"), nil, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, m := setup(t)
			router := srv.buildRouter()

			ev := model.WebhookEvent{ID: uuid.New(), Provider: "asaas"}
			m.webhooks.EXPECT().
				Accept(gomock.Any(), "asaas", gomock.Any()).
				DoAndReturn(func(_ context.Context, _ string, n gateway.Notification) (model.WebhookEvent, error) {
					require.Equal(t, `{"event":"PAYMENT_RECEIVED"}`, string(n.Body))
					require.Equal(t, "tok", n.Header.Get("asaas-access-token"))
					return ev, tt.acceptErr
				})

			processed := make(chan struct{})
			if tt.acceptErr == nil {
				m.webhooks.EXPECT().
					Process(gomock.Any(), ev).
					DoAndReturn(func(context.Context, model.WebhookEvent) error {
						close(processed)
						return tt.processErr
					})
			}

			req := httptest.NewRequest("POST", "/api/webhooks/asaas", strings.NewReader(`{"event":"PAYMENT_RECEIVED"}`))
			req.Header.Set("asaas-access-token", "tok")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.acceptErr == nil {
				select {
				case <-processed:
				case <-time.After(2 * time.Second):
					t.Fatal("accepted event was not applied")
				}
			}
		})
	}
}

func TestWebhookHandlerRepliesBeforeApplying(t *testing.T) {
	srv, m := setup(t)
	router := srv.buildRouter()

	ev := model.WebhookEvent{ID: uuid.New(), Provider: "mercadopago"}
	m.webhooks.EXPECT().Accept(gomock.Any(), "mercadopago", gomock.Any()).Return(ev, nil)

	release := make(chan struct{})
	done := make(chan struct{})
	var applyCtxErr error
	m.webhooks.EXPECT().
		Process(gomock.Any(), ev).
		DoAndReturn(func(ctx context.Context, _ model.WebhookEvent) error {
			defer close(done)
			<-release
			// запрос уже завершён, а контекст обработки жив
			applyCtxErr = ctx.Err()
			return nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("POST", "/api/webhooks/mercadopago", strings.NewReader(`{"data":{"id":"1"}}`)).WithContext(ctx)
	w := httptest.NewRecorder()

	served := make(chan struct{})
	go func() {
		router.ServeHTTP(w, req)
		close(served)
	}()

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("handler waited for the event to be applied")
	}
	require.Equal(t, http.StatusOK, w.Code)

	cancel()
	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("accepted event was not applied")
	}
	require.NoError(t, applyCtxErr)
}

func TestGetOrdersHandler(t *testing.T) {
	srv, m := setup(t)

	user := model.User{ID: uuid.New(), Role: model.RoleSeller}
	paidAt := time.Now()
	m.orders.EXPECT().
		ListBySeller(gomock.Any(), user.ID).
		Return([]model.Order{
			{ID: uuid.New(), Method: model.MethodPix, Status: model.Paid, Gross: decimal.RequireFromString("100"), PaidAt: &paidAt},
		}, nil)

	token, _ := srv.deps.TokenManager.GenerateToken(user.ID, user.Role)
	req := withUser(newAuthenticatedRequest("GET", "/api/seller/orders", token, ""), user)

	w := httptest.NewRecorder()
	srv.GetOrdersHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp []model.OrderResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp, 1)
	require.Equal(t, model.Paid, resp[0].Status)
}

func TestGetReceiptHandler(t *testing.T) {
	srv, m := setup(t)

	user := model.User{ID: uuid.New(), Role: model.RoleSeller}
	orderID := uuid.New()
	paidAt := time.Now()
	fees := model.FeeBreakdown{
		Gross:      decimal.RequireFromString("100"),
		Fee:        decimal.RequireFromString("2.50"),
		Net:        decimal.RequireFromString("97.50"),
		Percentual: decimal.RequireFromString("2"),
		Fixed:      decimal.RequireFromString("0.50"),
	}
	m.orders.EXPECT().
		Receipt(gomock.Any(), user.ID, orderID).
		Return(model.Order{ID: orderID, Method: model.MethodPix, Status: model.Paid, PaidAt: &paidAt}, fees, nil)

	req := withUser(httptest.NewRequest("GET", "/api/seller/orders/"+orderID.String()+"/receipt", nil), user)
	rctx := chiContext(req, "orderID", orderID.String())

	w := httptest.NewRecorder()
	srv.GetReceiptHandler(w, rctx)

	require.Equal(t, http.StatusOK, w.Code)
	var resp model.ReceiptResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.Fees.Net.Equal(fees.Net))
	require.True(t, resp.Fees.Fee.Add(resp.Fees.Net).Equal(resp.Fees.Gross))
}

func TestGetBalanceHandler(t *testing.T) {
	srv, m := setup(t)

	user := model.User{ID: uuid.New(), Role: model.RoleSeller}
	m.wallet.EXPECT().
		Balance(gomock.Any(), user.ID).
		Return(model.Balance{
			Pending:   decimal.RequireFromString("97.50"),
			Available: decimal.RequireFromString("50"),
			Reserved:  decimal.RequireFromString("40"),
		}, nil)

	req := withUser(httptest.NewRequest("GET", "/api/seller/balance", nil), user)
	w := httptest.NewRecorder()
	srv.GetBalanceHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp model.BalanceResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.PendingBalance.Equal(decimal.RequireFromString("97.50")))
	require.True(t, resp.AvailableBalance.Equal(decimal.RequireFromString("50")))
	require.True(t, resp.ReservedBalance.Equal(decimal.RequireFromString("40")))
}

func TestWithdrawHandler(t *testing.T) {
	srv, m := setup(t)

	user := model.User{ID: uuid.New(), Role: model.RoleSeller}
	accountID := uuid.New()
	wdID := uuid.New()

	m.withdrawals.EXPECT().
		Request(gomock.Any(), user.ID, gomock.Any(), accountID).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, amount decimal.Decimal, _ uuid.UUID) (model.Withdrawal, error) {
			require.True(t, amount.Equal(decimal.RequireFromString("40")))
			return model.Withdrawal{ID: wdID, Status: model.WithdrawalPending}, nil
		})

	reqBody := `{"amount":"40.00","bankAccountId":"` + accountID.String() + `"}`
	req := withUser(httptest.NewRequest("POST", "/api/seller/withdrawals", strings.NewReader(reqBody)), user)

	w := httptest.NewRecorder()
	srv.WithdrawHandler(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp model.WithdrawResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, wdID.String(), resp.WithdrawalID)
	require.Equal(t, model.WithdrawalPending, resp.Status)
}

func TestWithdrawHandlerInsufficientBalance(t *testing.T) {
	srv, m := setup(t)

	user := model.User{ID: uuid.New(), Role: model.RoleSeller}
	m.withdrawals.EXPECT().
		Request(gomock.Any(), user.ID, gomock.Any(), gomock.Any()).
		Return(model.Withdrawal{}, &errs.InsufficientBalanceError{Available: decimal.RequireFromString("10")})

	reqBody := `{"amount":40,"bankAccountId":"` + uuid.NewString() + `"}`
	req := withUser(httptest.NewRequest("POST", "/api/seller/withdrawals", strings.NewReader(reqBody)), user)

	w := httptest.NewRecorder()
	srv.WithdrawHandler(w, req)

	require.Equal(t, http.StatusPaymentRequired, w.Code)
	resp := decodeError(t, w)
	require.Equal(t, "insufficient_balance", resp.Error)
	require.NotNil(t, resp.AvailableBalance)
	require.True(t, resp.AvailableBalance.Equal(decimal.RequireFromString("10")))
}

func TestGetWithdrawalsHandler(t *testing.T) {
	srv, m := setup(t)

	user := model.User{ID: uuid.New(), Role: model.RoleSeller}
	m.withdrawals.EXPECT().
		List(gomock.Any(), user.ID).
		Return([]model.Withdrawal{
			{ID: uuid.New(), Amount: decimal.RequireFromString("10.5"), Status: model.WithdrawalApproved, RequestedAt: time.Now()},
		}, nil)

	req := withUser(httptest.NewRequest("GET", "/api/seller/withdrawals", nil), user)
	w := httptest.NewRecorder()
	srv.GetWithdrawalsHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestSellerRoutesRequireToken(t *testing.T) {
	srv, _ := setup(t)
	router := srv.buildRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/seller/balance", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	srv, m := setup(t)
	router := srv.buildRouter()

	seller := model.User{ID: uuid.New(), Role: model.RoleSeller}
	admin := model.User{ID: uuid.New(), Role: model.RoleAdmin}
	m.users.EXPECT().GetUserByID(gomock.Any(), seller.ID).Return(seller, nil).AnyTimes()
	m.users.EXPECT().GetUserByID(gomock.Any(), admin.ID).Return(admin, nil).AnyTimes()

	sellerToken, _ := srv.deps.TokenManager.GenerateToken(seller.ID, seller.Role)
	adminToken, _ := srv.deps.TokenManager.GenerateToken(admin.ID, admin.Role)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, newAuthenticatedRequest("GET", "/api/admin/withdrawals", sellerToken, ""))
	require.Equal(t, http.StatusForbidden, w.Code)

	m.withdrawals.EXPECT().
		ListByStatus(gomock.Any(), model.WithdrawalPending).
		Return([]model.Withdrawal{{ID: uuid.New(), Status: model.WithdrawalPending}}, nil)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, newAuthenticatedRequest("GET", "/api/admin/withdrawals", adminToken, ""))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, newAuthenticatedRequest("GET", "/api/admin/withdrawals?status=LOST", adminToken, ""))
	require.Equal(t, http.StatusBadRequest, w.Code)

	wdID := uuid.New()
	now := time.Now()
	m.withdrawals.EXPECT().
		Approve(gomock.Any(), model.Actor{ID: admin.ID, Role: model.RoleAdmin}, wdID, "E2E123").
		Return(model.Withdrawal{ID: wdID, Status: model.WithdrawalApproved, DecidedAt: &now, ReceiptRef: "E2E123"}, nil)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, newAuthenticatedRequest("POST", "/api/admin/withdrawals/"+wdID.String()+"/decision", adminToken,
		`{"status":"APPROVED","receiptRef":"E2E123"}`))
	require.Equal(t, http.StatusOK, w.Code)
	var resp model.WithdrawalResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, model.WithdrawalApproved, resp.Status)

	m.withdrawals.EXPECT().
		Reject(gomock.Any(), gomock.Any(), wdID, "wrong account").
		Return(model.Withdrawal{ID: wdID, Status: model.WithdrawalApproved}, errs.ErrWithdrawalDecided)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, newAuthenticatedRequest("POST", "/api/admin/withdrawals/"+wdID.String()+"/decision", adminToken,
		`{"status":"rejected","reason":"wrong account"}`))
	require.Equal(t, http.StatusConflict, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, newAuthenticatedRequest("POST", "/api/admin/withdrawals/"+wdID.String()+"/decision", adminToken,
		`{"status":"maybe"}`))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSweep(t *testing.T) {
	srv, m := setup(t)

	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	gomock.InOrder(
		m.orders.EXPECT().Backfill(gomock.Any(), backfillBatch).Return(1, nil),
		m.wallet.EXPECT().PromoteDue(gomock.Any(), now).Return(int64(2), nil),
	)
	srv.Sweep(context.Background(), now)

	// сбой дозаписи не мешает выпуску средств
	m.orders.EXPECT().Backfill(gomock.Any(), backfillBatch).Return(0, errors.New("db down"))
	m.wallet.EXPECT().PromoteDue(gomock.Any(), now).Return(int64(0), nil)
	srv.Sweep(context.Background(), now)
}

func TestWebhookRedelivery(t *testing.T) {
	srv, m := setup(t)

	ev := model.WebhookEvent{ID: uuid.New(), Provider: "efi", Attempts: 1}
	done := make(chan struct{})

	m.webhooks.EXPECT().Pending(gomock.Any(), redeliveryBatch).Return([]model.WebhookEvent{ev}, nil)
	m.webhooks.EXPECT().Pending(gomock.Any(), redeliveryBatch).Return(nil, nil).AnyTimes()
	m.webhooks.EXPECT().
		Process(gomock.Any(), ev).
		DoAndReturn(func(context.Context, model.WebhookEvent) error {
			close(done)
			return nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		srv.WebhookRedelivery(ctx)
		close(stopped)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event was not redelivered")
	}
	cancel()
	<-stopped
}

func bcryptHash(pw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), 10)
	return string(hash), err
}

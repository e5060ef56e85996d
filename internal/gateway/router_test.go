package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	id      string
	methods []model.Method
}

func (s stubProvider) ID() string { return s.id }

func (s stubProvider) Supports(method model.Method) bool {
	for _, m := range s.methods {
		if m == method {
			return true
		}
	}
	return false
}

func (s stubProvider) CreatePayment(context.Context, PaymentRequest) (IntentResult, error) {
	return IntentResult{Outcome: PendingCollection, ProviderRef: s.id + "-1"}, nil
}

func (s stubProvider) Authenticate(Notification) error { return nil }

func (s stubProvider) ParseEvent(context.Context, []byte) ([]Event, error) { return nil, nil }

func TestRoutingFallsBackToDefault(t *testing.T) {
	r := Routing{model.MethodPix: "mercadopago"}

	require.Equal(t, "mercadopago", r.ProviderFor(model.MethodPix))
	require.Equal(t, "pagarme", r.ProviderFor(model.MethodCard))
	require.Equal(t, "asaas", r.ProviderFor(model.MethodBoleto))
	require.Equal(t, "", r.ProviderFor(model.Method("CASH")))
}

func TestRouterSelect(t *testing.T) {
	router := NewRouter(
		stubProvider{id: "efi", methods: []model.Method{model.MethodPix}},
		stubProvider{id: "asaas", methods: model.Methods},
	)

	tests := []struct {
		name    string
		method  model.Method
		routing Routing
		want    string
		wantErr bool
	}{
		{name: "default pix", method: model.MethodPix, routing: nil, want: "efi"},
		{name: "override", method: model.MethodPix, routing: Routing{model.MethodPix: "asaas"}, want: "asaas"},
		{name: "default boleto", method: model.MethodBoleto, want: "asaas"},
		{name: "unregistered default", method: model.MethodCard, wantErr: true},
		{name: "unsupported method", method: model.MethodCard, routing: Routing{model.MethodCard: "efi"}, wantErr: true},
		{name: "unknown method", method: model.Method("CASH"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := router.Select(tt.method, tt.routing)
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, errs.IsConfiguration(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, adapter.ID())
		})
	}
}

func TestRouterSource(t *testing.T) {
	router := NewRouter(stubProvider{id: "pagseguro"})

	src, err := router.Source("pagseguro")
	require.NoError(t, err)
	require.NotNil(t, src)

	_, err = router.Source("paypal")
	require.ErrorIs(t, err, errs.ErrUnknownProvider)

	router.Register(stubProvider{id: "efi"})
	ids := router.Providers()
	sort.Strings(ids)
	require.Equal(t, []string{"efi", "pagseguro"}, ids)
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantErr   bool
		retryable bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "created", status: http.StatusCreated},
		{name: "bad request", status: http.StatusBadRequest, wantErr: true},
		{name: "unprocessable", status: http.StatusUnprocessableEntity, wantErr: true},
		{name: "unauthorized", status: http.StatusUnauthorized, wantErr: true},
		{name: "rate limited", status: http.StatusTooManyRequests, wantErr: true, retryable: true},
		{name: "server error", status: http.StatusBadGateway, wantErr: true, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			resp, err := NewHTTPClient(srv.URL, 0).R().Get("/")
			err = Check("stub", resp, err)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}

			var ge *errs.GatewayError
			require.ErrorAs(t, err, &ge)
			require.Equal(t, tt.status, ge.StatusCode)
			require.Equal(t, tt.retryable, ge.Retryable)
		})
	}
}

func TestCheckTransportFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	resp, err := NewHTTPClient(srv.URL, 0).R().Get("/")
	err = Check("stub", resp, err)

	var ge *errs.GatewayError
	require.ErrorAs(t, err, &ge)
	require.True(t, ge.Retryable)
	require.Same(t, err, Refusal(err))
}

func TestRefusal(t *testing.T) {
	tests := []struct {
		name   string
		status int
		config bool
	}{
		{name: "bad request", status: http.StatusBadRequest},
		{name: "unprocessable", status: http.StatusUnprocessableEntity},
		{name: "not found", status: http.StatusNotFound},
		{name: "unauthorized", status: http.StatusUnauthorized, config: true},
		{name: "forbidden", status: http.StatusForbidden, config: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Refusal(&errs.GatewayError{Provider: "stub", StatusCode: tt.status})
			if tt.config {
				require.True(t, errs.IsConfiguration(err))
				return
			}
			var ge *errs.GatewayError
			require.ErrorAs(t, err, &ge)
			require.False(t, ge.Retryable)
			require.Equal(t, tt.status, ge.StatusCode)
		})
	}
}

func TestCents(t *testing.T) {
	require.Equal(t, int64(10000), Cents(decimal.RequireFromString("100.00")))
	require.Equal(t, int64(5990), Cents(decimal.RequireFromString("59.9")))
	require.Equal(t, int64(1), Cents(decimal.RequireFromString("0.005")))
}

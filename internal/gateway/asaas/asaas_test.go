package asaas

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/gateway"
	"github.com/and161185/checkout/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func request(method model.Method) gateway.PaymentRequest {
	return gateway.PaymentRequest{
		Amount:            decimal.RequireFromString("59.90"),
		Method:            method,
		Buyer:             model.Buyer{Name: "Joao", Email: "joao@example.com", Document: "11.222.333/0001-81", Phone: "(11) 98888-7777"},
		ExternalReference: "order-42",
	}
}

type fakeAsaas struct {
	t            *testing.T
	paymentCode  int
	paymentBody  string
	status       string
	followUpCode int

	mu    sync.Mutex
	calls []string
}

func (f *fakeAsaas) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	f.mu.Unlock()
	require.Equal(f.t, "key", r.Header.Get("access_token"))

	switch r.URL.Path {
	case "/v3/customers":
		var body map[string]any
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(f.t, "11222333000181", body["cpfCnpj"])
		io.WriteString(w, `{"id":"cus_1"}`)
	case "/v3/payments":
		var body map[string]any
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(f.t, "cus_1", body["customer"])
		require.Equal(f.t, "order-42", body["externalReference"])
		if f.paymentCode != 0 {
			w.WriteHeader(f.paymentCode)
			io.WriteString(w, f.paymentBody)
			return
		}
		io.WriteString(w, `{"id":"pay_1","status":"`+f.status+`","bankSlipUrl":"https://asaas/b/pay_1"}`)
	case "/v3/payments/pay_1/pixQrCode":
		if f.followUpCode != 0 {
			w.WriteHeader(f.followUpCode)
			return
		}
		io.WriteString(w, `{"encodedImage":"iVBOR","payload":"000201"}`)
	case "/v3/payments/pay_1/identificationField":
		io.WriteString(w, `{"identificationField":"23793.38128 60000","barCode":"2379"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newClient(t *testing.T, f *fakeAsaas) (*Client, func()) {
	srv := httptest.NewServer(f)
	c := New(Config{BaseURL: srv.URL, APIKey: "key", WebhookToken: "hook"}, zaptest.NewLogger(t).Sugar())
	return c, srv.Close
}

func TestCreatePaymentPix(t *testing.T) {
	f := &fakeAsaas{t: t, status: "PENDING"}
	c, stop := newClient(t, f)
	defer stop()

	res, err := c.CreatePayment(context.Background(), request(model.MethodPix))

	require.NoError(t, err)
	require.Equal(t, gateway.PendingCollection, res.Outcome)
	require.Equal(t, "pay_1", res.ProviderRef)
	require.Equal(t, "000201", res.Payload.CopyPasteCode)
	require.Equal(t, "data:image/png;base64,iVBOR", res.Payload.QRImage)
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Equal(t, []string{"POST /v3/customers", "POST /v3/payments", "GET /v3/payments/pay_1/pixQrCode"}, f.calls)
}

func TestCreatePaymentPixKeepsIntentWhenQRCodeFails(t *testing.T) {
	f := &fakeAsaas{t: t, status: "PENDING", followUpCode: http.StatusInternalServerError}
	c, stop := newClient(t, f)
	defer stop()

	res, err := c.CreatePayment(context.Background(), request(model.MethodPix))

	require.NoError(t, err)
	require.Equal(t, gateway.PendingCollection, res.Outcome)
	require.Equal(t, "pay_1", res.ProviderRef)
	require.Empty(t, res.Payload.CopyPasteCode)
}

func TestCreatePaymentBoleto(t *testing.T) {
	f := &fakeAsaas{t: t, status: "PENDING"}
	c, stop := newClient(t, f)
	defer stop()

	res, err := c.CreatePayment(context.Background(), request(model.MethodBoleto))

	require.NoError(t, err)
	require.Equal(t, "https://asaas/b/pay_1", res.Payload.DocumentURL)
	require.Equal(t, "23793.38128 60000", res.Payload.Barcode)
}

func TestCreatePaymentCard(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		code    int
		outcome gateway.Outcome
	}{
		{name: "confirmed", status: "CONFIRMED", outcome: gateway.Approved},
		{name: "refused", code: http.StatusBadRequest, outcome: gateway.Rejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeAsaas{t: t, status: tt.status, paymentCode: tt.code,
				paymentBody: `{"errors":[{"code":"invalid_creditCard","description":"Transação não autorizada"}]}`}
			c, stop := newClient(t, f)
			defer stop()

			req := request(model.MethodCard)
			req.Card = &gateway.Card{Token: "tok", Installments: 2}
			res, err := c.CreatePayment(context.Background(), req)

			require.NoError(t, err)
			require.Equal(t, tt.outcome, res.Outcome)
		})
	}
}

func TestCreatePaymentBadRequestIsNotADecline(t *testing.T) {
	for _, method := range []model.Method{model.MethodPix, model.MethodCard} {
		t.Run(string(method), func(t *testing.T) {
			f := &fakeAsaas{t: t, paymentCode: http.StatusBadRequest,
				paymentBody: `{"errors":[{"code":"invalid_value","description":"O valor da cobrança é inválido"}]}`}
			c, stop := newClient(t, f)
			defer stop()

			req := request(method)
			req.Card = &gateway.Card{Token: "tok"}
			res, err := c.CreatePayment(context.Background(), req)

			var ge *errs.GatewayError
			require.ErrorAs(t, err, &ge)
			require.False(t, ge.Retryable)
			require.Equal(t, http.StatusBadRequest, ge.StatusCode)
			require.NotEqual(t, gateway.Rejected, res.Outcome)
		})
	}
}

func TestCreatePaymentBadAPIKey(t *testing.T) {
	f := &fakeAsaas{t: t, paymentCode: http.StatusUnauthorized}
	c, stop := newClient(t, f)
	defer stop()

	_, err := c.CreatePayment(context.Background(), request(model.MethodPix))
	require.True(t, errs.IsConfiguration(err))
}

func TestCreatePaymentUnavailable(t *testing.T) {
	f := &fakeAsaas{t: t, paymentCode: http.StatusBadGateway}
	c, stop := newClient(t, f)
	defer stop()

	_, err := c.CreatePayment(context.Background(), request(model.MethodBoleto))

	var ge *errs.GatewayError
	require.ErrorAs(t, err, &ge)
	require.True(t, ge.Retryable)
}

func TestAuthenticate(t *testing.T) {
	c := New(Config{WebhookToken: "hook"}, zaptest.NewLogger(t).Sugar())

	require.NoError(t, c.Authenticate(gateway.Notification{Header: http.Header{"Asaas-Access-Token": {"hook"}}}))
	require.ErrorIs(t, c.Authenticate(gateway.Notification{Header: http.Header{"Asaas-Access-Token": {"nope"}}}), errs.ErrUnauthenticEvent)
	require.ErrorIs(t, c.Authenticate(gateway.Notification{Header: http.Header{}}), errs.ErrUnauthenticEvent)
}

func TestParseEvent(t *testing.T) {
	c := New(Config{}, zaptest.NewLogger(t).Sugar())

	tests := []struct {
		event string
		want  gateway.EventStatus
	}{
		{event: "PAYMENT_RECEIVED", want: gateway.EventPaid},
		{event: "PAYMENT_CONFIRMED", want: gateway.EventPaid},
		{event: "PAYMENT_DELETED", want: gateway.EventCancelled},
		{event: "PAYMENT_REPROVED_BY_RISK_ANALYSIS", want: gateway.EventCancelled},
		{event: "PAYMENT_UPDATED", want: gateway.EventPending},
	}
	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			events, err := c.ParseEvent(context.Background(),
				[]byte(`{"event":"`+tt.event+`","payment":{"id":"pay_1","status":"X","externalReference":"order-42"}}`))
			require.NoError(t, err)
			require.Len(t, events, 1)
			require.Equal(t, "pay_1", events[0].ProviderRef)
			require.Equal(t, "order-42", events[0].ExternalReference)
			require.Equal(t, tt.want, events[0].Status)
		})
	}

	_, err := c.ParseEvent(context.Background(), []byte(`{"event":"PAYMENT_RECEIVED"}`))
	require.ErrorIs(t, err, errs.ErrMalformedEvent)
}

package pagseguro

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/gateway"
	"github.com/and161185/checkout/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func request(method model.Method) gateway.PaymentRequest {
	return gateway.PaymentRequest{
		Amount:            decimal.RequireFromString("35.50"),
		Method:            method,
		Buyer:             model.Buyer{Name: "Carla", Email: "carla@example.com", Document: "529.982.247-25"},
		Description:       "Ebook",
		ExternalReference: "order-9",
		NotificationURL:   "https://checkout.example.com/api/webhooks/pagseguro",
	}
}

func serve(t *testing.T, check func(body map[string]any), response string) (*Client, func()) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orders", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "order-9", body["reference_id"])
		check(body)

		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, response)
	}))
	c := New(Config{BaseURL: srv.URL, Token: "tok"})
	c.now = func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) }
	return c, srv.Close
}

func TestCreatePaymentPix(t *testing.T) {
	c, stop := serve(t, func(body map[string]any) {
		qr := body["qr_codes"].([]any)[0].(map[string]any)
		require.Equal(t, 3550.0, qr["amount"].(map[string]any)["value"])
		require.Equal(t, "2026-05-01T11:00:00Z", qr["expiration_date"])
	}, `{"id":"ORDE_1","qr_codes":[{"text":"00020101","links":[{"rel":"QRCODE.PNG","href":"https://pagseguro/qr.png"}]}]}`)
	defer stop()

	res, err := c.CreatePayment(context.Background(), request(model.MethodPix))

	require.NoError(t, err)
	require.Equal(t, gateway.PendingCollection, res.Outcome)
	require.Equal(t, "ORDE_1", res.ProviderRef)
	require.Equal(t, "00020101", res.Payload.CopyPasteCode)
	require.Equal(t, "https://pagseguro/qr.png", res.Payload.QRImage)
}

func TestCreatePaymentBoleto(t *testing.T) {
	c, stop := serve(t, func(body map[string]any) {
		ch := body["charges"].([]any)[0].(map[string]any)
		pm := ch["payment_method"].(map[string]any)
		require.Equal(t, "BOLETO", pm["type"])
		require.Equal(t, "2026-05-04", pm["boleto"].(map[string]any)["due_date"])
	}, `{"id":"ORDE_2","charges":[{"id":"CHAR_1","status":"WAITING","payment_method":{"boleto":{"formatted_barcode":"0339.9"}},"links":[{"rel":"BOLETO.PDF","href":"https://pagseguro/b.pdf"}]}]}`)
	defer stop()

	res, err := c.CreatePayment(context.Background(), request(model.MethodBoleto))

	require.NoError(t, err)
	require.Equal(t, gateway.PendingCollection, res.Outcome)
	require.Equal(t, "0339.9", res.Payload.Barcode)
	require.Equal(t, "https://pagseguro/b.pdf", res.Payload.DocumentURL)
}

func TestCreatePaymentCard(t *testing.T) {
	tests := []struct {
		status  string
		outcome gateway.Outcome
	}{
		{status: "PAID", outcome: gateway.Approved},
		{status: "DECLINED", outcome: gateway.Rejected},
		{status: "IN_ANALYSIS", outcome: gateway.PendingCollection},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			c, stop := serve(t, func(body map[string]any) {
				ch := body["charges"].([]any)[0].(map[string]any)
				pm := ch["payment_method"].(map[string]any)
				require.Equal(t, "CREDIT_CARD", pm["type"])
				require.Equal(t, "enc", pm["card"].(map[string]any)["encrypted"])
			}, `{"id":"ORDE_3","charges":[{"id":"CHAR_3","status":"`+tt.status+`","payment_response":{"message":"NAO AUTORIZADO"}}]}`)
			defer stop()

			req := request(model.MethodCard)
			req.Card = &gateway.Card{Token: "enc", Installments: 1}
			res, err := c.CreatePayment(context.Background(), req)

			require.NoError(t, err)
			require.Equal(t, tt.outcome, res.Outcome)
			require.Equal(t, "ORDE_3", res.ProviderRef)
		})
	}
}

func TestCreatePaymentBadRequestIsNotADecline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error_messages":[{"code":"40002","description":"invalid_parameter","parameter_name":"customer.tax_id"}]}`)
	}))
	defer srv.Close()

	res, err := New(Config{BaseURL: srv.URL, Token: "tok"}).CreatePayment(context.Background(), request(model.MethodPix))

	var ge *errs.GatewayError
	require.ErrorAs(t, err, &ge)
	require.False(t, ge.Retryable)
	require.NotEqual(t, gateway.Rejected, res.Outcome)
}

func TestAuthenticate(t *testing.T) {
	c := New(Config{Token: "tok"})
	body := []byte(`{"id":"ORDE_1"}`)

	n := gateway.Notification{Header: http.Header{}, Body: body}
	n.Header.Set("x-authenticity-token", Signature("tok", body))
	require.NoError(t, c.Authenticate(n))

	n.Body = []byte(`{"id":"ORDE_2"}`)
	require.ErrorIs(t, c.Authenticate(n), errs.ErrUnauthenticEvent)

	require.ErrorIs(t, c.Authenticate(gateway.Notification{Header: http.Header{}, Body: body}), errs.ErrUnauthenticEvent)
}

func TestParseEvent(t *testing.T) {
	c := New(Config{})

	events, err := c.ParseEvent(context.Background(), []byte(`{"id":"ORDE_1","reference_id":"order-9","charges":[{"id":"C1","status":"PAID"}]}`))
	require.NoError(t, err)
	require.Equal(t, []gateway.Event{{ProviderRef: "ORDE_1", ExternalReference: "order-9", Status: gateway.EventPaid, RawStatus: "PAID"}}, events)

	events, err = c.ParseEvent(context.Background(), []byte(`{"id":"ORDE_1","charges":[{"id":"C1","status":"DECLINED"}]}`))
	require.NoError(t, err)
	require.Equal(t, gateway.EventCancelled, events[0].Status)

	events, err = c.ParseEvent(context.Background(), []byte(`{"id":"ORDE_1","qr_codes":[{"text":"x"}]}`))
	require.NoError(t, err)
	require.Equal(t, gateway.EventPending, events[0].Status)

	_, err = c.ParseEvent(context.Background(), []byte(`{}`))
	require.ErrorIs(t, err, errs.ErrMalformedEvent)
}

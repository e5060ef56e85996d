// Package mercadopago talks to the Mercado Pago payments API.
package mercadopago

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/gateway"
	"github.com/and161185/checkout/internal/model"
	"github.com/and161185/checkout/internal/utils"
	"github.com/go-resty/resty/v2"
)

const ID = "mercadopago"

const DefaultBaseURL = "https://api.mercadopago.com"

type Config struct {
	BaseURL       string
	AccessToken   string
	WebhookSecret string
	Timeout       time.Duration
}

type Client struct {
	http   *resty.Client
	secret string
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		http:   gateway.NewHTTPClient(cfg.BaseURL, cfg.Timeout).SetAuthToken(cfg.AccessToken),
		secret: cfg.WebhookSecret,
	}
}

func (c *Client) ID() string { return ID }

func (c *Client) Supports(method model.Method) bool {
	switch method {
	case model.MethodPix, model.MethodCard, model.MethodBoleto:
		return true
	}
	return false
}

type identification struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type payer struct {
	Email          string         `json:"email"`
	FirstName      string         `json:"first_name,omitempty"`
	LastName       string         `json:"last_name,omitempty"`
	Identification identification `json:"identification"`
	Address        *payerAddress  `json:"address,omitempty"`
}

type payerAddress struct {
	ZipCode      string `json:"zip_code"`
	StreetName   string `json:"street_name"`
	StreetNumber string `json:"street_number"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	FederalUnit  string `json:"federal_unit"`
}

type paymentRequest struct {
	TransactionAmount float64 `json:"transaction_amount"`
	Description       string  `json:"description"`
	PaymentMethodID   string  `json:"payment_method_id"`
	ExternalReference string  `json:"external_reference"`
	NotificationURL   string  `json:"notification_url,omitempty"`
	DateOfExpiration  string  `json:"date_of_expiration,omitempty"`
	Token             string  `json:"token,omitempty"`
	Installments      int     `json:"installments,omitempty"`
	Payer             payer   `json:"payer"`
}

type payment struct {
	ID                 int64  `json:"id"`
	Status             string `json:"status"`
	StatusDetail       string `json:"status_detail"`
	ExternalReference  string `json:"external_reference"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
	TransactionDetails struct {
		ExternalResourceURL string `json:"external_resource_url"`
	} `json:"transaction_details"`
	Barcode struct {
		Content string `json:"content"`
	} `json:"barcode"`
}

func (c *Client) CreatePayment(ctx context.Context, req gateway.PaymentRequest) (gateway.IntentResult, error) {
	body, err := buildPayment(req)
	if err != nil {
		return gateway.IntentResult{}, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Idempotency-Key", req.ExternalReference).
		SetBody(body).
		Post("/v1/payments")
	if err := gateway.Check(ID, resp, err); err != nil {
		// отказ по карте приходит телом со status=rejected, а не 4xx
		return gateway.IntentResult{}, gateway.Refusal(err)
	}

	var p payment
	if err := json.Unmarshal(resp.Body(), &p); err != nil {
		return gateway.IntentResult{}, &errs.GatewayError{Provider: ID, Retryable: true, Err: err}
	}
	return toIntent(p), nil
}

func buildPayment(req gateway.PaymentRequest) (paymentRequest, error) {
	first, last, _ := strings.Cut(strings.TrimSpace(req.Buyer.Name), " ")
	body := paymentRequest{
		TransactionAmount: req.Amount.Round(2).InexactFloat64(),
		Description:       req.Description,
		ExternalReference: req.ExternalReference,
		NotificationURL:   req.NotificationURL,
		Payer: payer{
			Email:     req.Buyer.Email,
			FirstName: first,
			LastName:  last,
			Identification: identification{
				Type:   string(utils.DocumentType(req.Buyer.Document)),
				Number: utils.OnlyDigits(req.Buyer.Document),
			},
		},
	}

	switch req.Method {
	case model.MethodPix:
		body.PaymentMethodID = "pix"
	case model.MethodBoleto:
		body.PaymentMethodID = "bolbradesco"
		if !req.DueDate.IsZero() {
			body.DateOfExpiration = req.DueDate.Format("2006-01-02T15:04:05.000-07:00")
		}
		if a := req.Address; a != nil {
			body.Payer.Address = &payerAddress{
				ZipCode:      utils.OnlyDigits(a.ZipCode),
				StreetName:   a.Street,
				StreetNumber: a.Number,
				Neighborhood: a.District,
				City:         a.City,
				FederalUnit:  a.State,
			}
		}
	case model.MethodCard:
		if req.Card == nil || req.Card.Token == "" {
			return paymentRequest{}, errs.ErrCardRequired
		}
		body.PaymentMethodID = strings.ToLower(req.Card.Brand)
		body.Token = req.Card.Token
		body.Installments = max(req.Card.Installments, 1)
	default:
		return paymentRequest{}, errs.ErrInvalidMethod
	}
	return body, nil
}

func toIntent(p payment) gateway.IntentResult {
	ref := fmt.Sprint(p.ID)
	payload := model.ProviderPayload{
		TransactionID: ref,
		CopyPasteCode: p.PointOfInteraction.TransactionData.QRCode,
		DocumentURL:   p.TransactionDetails.ExternalResourceURL,
		Barcode:       p.Barcode.Content,
	}
	if img := p.PointOfInteraction.TransactionData.QRCodeBase64; img != "" {
		payload.QRImage = "data:image/png;base64," + img
	}

	switch p.Status {
	case "approved":
		approved := true
		payload.Approved = &approved
		return gateway.IntentResult{Outcome: gateway.Approved, ProviderRef: ref, Payload: payload}
	case "rejected", "cancelled":
		return gateway.Rejection(ref, p.StatusDetail)
	}
	return gateway.IntentResult{Outcome: gateway.PendingCollection, ProviderRef: ref, Payload: payload}
}

// Authenticate checks the x-signature header: "ts=<unix>,v1=<hex hmac>" where
// the HMAC is taken over a manifest built from the data id, the request id
// and the timestamp.
func (c *Client) Authenticate(n gateway.Notification) error {
	if c.secret == "" {
		return errs.ErrUnauthenticEvent
	}

	var ts, v1 string
	for _, part := range strings.Split(n.Header.Get("x-signature"), ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "ts":
			ts = v
		case "v1":
			v1 = v
		}
	}
	if ts == "" || v1 == "" {
		return errs.ErrUnauthenticEvent
	}

	dataID := n.Query.Get("data.id")
	if dataID == "" {
		if parsed, err := parseNotification(n.Body); err == nil {
			dataID = parsed.Data.ID
		}
	}

	got, err := hex.DecodeString(v1)
	if err != nil {
		return errs.ErrUnauthenticEvent
	}
	if !hmac.Equal(got, Sign(c.secret, dataID, n.Header.Get("x-request-id"), ts)) {
		return errs.ErrUnauthenticEvent
	}
	return nil
}

func Sign(secret, dataID, requestID, ts string) []byte {
	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", strings.ToLower(dataID), requestID, ts)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return mac.Sum(nil)
}

type notification struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
}

func parseNotification(body []byte) (notification, error) {
	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return n, err
	}
	if n.Data.ID == "" {
		return n, errs.ErrMalformedEvent
	}
	return n, nil
}

// The notification only carries an id, the status is fetched.
func (c *Client) ParseEvent(ctx context.Context, body []byte) ([]gateway.Event, error) {
	n, err := parseNotification(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedEvent, err)
	}
	if n.Type != "" && n.Type != "payment" {
		return nil, nil
	}

	resp, err := c.http.R().SetContext(ctx).Get("/v1/payments/" + n.Data.ID)
	if err := gateway.Check(ID, resp, err); err != nil {
		return nil, err
	}

	var p payment
	if err := json.Unmarshal(resp.Body(), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedEvent, err)
	}
	return []gateway.Event{{
		ProviderRef:       fmt.Sprint(p.ID),
		ExternalReference: p.ExternalReference,
		Status:            eventStatus(p.Status),
		RawStatus:         p.Status,
	}}, nil
}

func eventStatus(s string) gateway.EventStatus {
	switch s {
	case "approved":
		return gateway.EventPaid
	case "rejected", "cancelled", "refunded", "charged_back":
		return gateway.EventCancelled
	}
	return gateway.EventPending
}

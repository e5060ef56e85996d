package pagseguro

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/gateway"
	"github.com/and161185/checkout/internal/model"
	"github.com/and161185/checkout/internal/utils"
	"github.com/go-resty/resty/v2"
)

const ID = "pagseguro"

const DefaultBaseURL = "https://api.pagseguro.com"

type Config struct {
	BaseURL         string
	Token           string
	Timeout         time.Duration
	PixExpiresIn    time.Duration
	BoletoDueInDays int
}

type Client struct {
	http         *resty.Client
	token        string
	pixExpiresIn time.Duration
	boletoDue    int
	now          func() time.Time
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PixExpiresIn <= 0 {
		cfg.PixExpiresIn = time.Hour
	}
	if cfg.BoletoDueInDays <= 0 {
		cfg.BoletoDueInDays = 3
	}
	return &Client{
		http:         gateway.NewHTTPClient(cfg.BaseURL, cfg.Timeout).SetAuthToken(cfg.Token),
		token:        cfg.Token,
		pixExpiresIn: cfg.PixExpiresIn,
		boletoDue:    cfg.BoletoDueInDays,
		now:          time.Now,
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

type amount struct {
	Value    int64  `json:"value"`
	Currency string `json:"currency,omitempty"`
}

type customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	TaxID string `json:"tax_id"`
}

type orderRequest struct {
	ReferenceID      string           `json:"reference_id"`
	Customer         customer         `json:"customer"`
	Items            []map[string]any `json:"items"`
	QRCodes          []map[string]any `json:"qr_codes,omitempty"`
	Charges          []map[string]any `json:"charges,omitempty"`
	NotificationURLs []string         `json:"notification_urls,omitempty"`
}

type link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type charge struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PaymentMethod struct {
		Boleto struct {
			FormattedBarcode string `json:"formatted_barcode"`
		} `json:"boleto"`
	} `json:"payment_method"`
	PaymentResponse struct {
		Message string `json:"message"`
	} `json:"payment_response"`
	Links []link `json:"links"`
}

type order struct {
	ID          string `json:"id"`
	ReferenceID string `json:"reference_id"`
	QRCodes     []struct {
		Text  string `json:"text"`
		Links []link `json:"links"`
	} `json:"qr_codes"`
	Charges     []charge `json:"charges"`
}

func (c *Client) CreatePayment(ctx context.Context, req gateway.PaymentRequest) (gateway.IntentResult, error) {
	body, err := c.buildOrder(req)
	if err != nil {
		return gateway.IntentResult{}, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-idempotency-key", req.ExternalReference).
		SetBody(body).
		Post("/orders")
	if err := gateway.Check(ID, resp, err); err != nil {
		return gateway.IntentResult{}, gateway.Refusal(err)
	}

	var o order
	if err := json.Unmarshal(resp.Body(), &o); err != nil {
		return gateway.IntentResult{}, &errs.GatewayError{Provider: ID, Retryable: true, Err: err}
	}
	return toIntent(o), nil
}

func (c *Client) buildOrder(req gateway.PaymentRequest) (orderRequest, error) {
	value := gateway.Cents(req.Amount)
	body := orderRequest{
		ReferenceID: req.ExternalReference,
		Customer: customer{
			Name:  req.Buyer.Name,
			Email: req.Buyer.Email,
			TaxID: utils.OnlyDigits(req.Buyer.Document),
		},
		Items: []map[string]any{{
			"reference_id": req.ExternalReference,
			"name":         req.Description,
			"quantity":     1,
			"unit_amount":  value,
		}},
	}
	if req.NotificationURL != "" {
		body.NotificationURLs = []string{req.NotificationURL}
	}

	switch req.Method {
	case model.MethodPix:
		body.QRCodes = []map[string]any{{
			"amount":          amount{Value: value},
			"expiration_date": c.now().Add(c.pixExpiresIn).Format(time.RFC3339),
		}}
	case model.MethodBoleto:
		due := req.DueDate
		if due.IsZero() {
			due = c.now().AddDate(0, 0, c.boletoDue)
		}
		boleto := map[string]any{
			"due_date": due.Format(time.DateOnly),
			"holder": map[string]any{
				"name":    req.Buyer.Name,
				"tax_id":  utils.OnlyDigits(req.Buyer.Document),
				"email":   req.Buyer.Email,
				"address": holderAddress(req.Address),
			},
		}
		body.Charges = []map[string]any{{
			"reference_id":   req.ExternalReference,
			"description":    req.Description,
			"amount":         amount{Value: value, Currency: "BRL"},
			"payment_method": map[string]any{"type": "BOLETO", "boleto": boleto},
		}}
	case model.MethodCard:
		if req.Card == nil || req.Card.Token == "" {
			return orderRequest{}, errs.ErrCardRequired
		}
		body.Charges = []map[string]any{{
			"reference_id": req.ExternalReference,
			"description":  req.Description,
			"amount":       amount{Value: value, Currency: "BRL"},
			"payment_method": map[string]any{
				"type":         "CREDIT_CARD",
				"installments": max(req.Card.Installments, 1),
				"capture":      true,
				"card":         map[string]any{"encrypted": req.Card.Token},
			},
		}}
	default:
		return orderRequest{}, errs.ErrInvalidMethod
	}
	return body, nil
}

func holderAddress(a *model.Address) map[string]any {
	if a == nil {
		return nil
	}
	return map[string]any{
		"street":      a.Street,
		"number":      a.Number,
		"locality":    a.District,
		"city":        a.City,
		"region_code": a.State,
		"country":     "BRA",
		"postal_code": utils.OnlyDigits(a.ZipCode),
	}
}

func href(links []link, rel string) string {
	for _, l := range links {
		if l.Rel == rel {
			return l.Href
		}
	}
	return ""
}

func toIntent(o order) gateway.IntentResult {
	payload := model.ProviderPayload{TransactionID: o.ID}

	if len(o.QRCodes) > 0 {
		payload.CopyPasteCode = o.QRCodes[0].Text
		payload.QRImage = href(o.QRCodes[0].Links, "QRCODE.PNG")
		return gateway.IntentResult{Outcome: gateway.PendingCollection, ProviderRef: o.ID, Payload: payload}
	}
	if len(o.Charges) == 0 {
		return gateway.IntentResult{Outcome: gateway.PendingCollection, ProviderRef: o.ID, Payload: payload}
	}

	ch := o.Charges[0]
	payload.Barcode = ch.PaymentMethod.Boleto.FormattedBarcode
	payload.DocumentURL = href(ch.Links, "BOLETO.PDF")

	switch chargeStatus(ch.Status) {
	case gateway.EventPaid:
		approved := true
		payload.Approved = &approved
		return gateway.IntentResult{Outcome: gateway.Approved, ProviderRef: o.ID, Payload: payload}
	case gateway.EventCancelled:
		return gateway.Rejection(o.ID, ch.PaymentResponse.Message)
	}
	return gateway.IntentResult{Outcome: gateway.PendingCollection, ProviderRef: o.ID, Payload: payload}
}

func Signature(token string, body []byte) string {
	sum := sha256.Sum256(append([]byte(token+"-"), body...))
	return hex.EncodeToString(sum[:])
}

func (c *Client) Authenticate(n gateway.Notification) error {
	got := n.Header.Get("x-authenticity-token")
	if c.token == "" || got == "" {
		return errs.ErrUnauthenticEvent
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(Signature(c.token, n.Body))) != 1 {
		return errs.ErrUnauthenticEvent
	}
	return nil
}

// ParseEvent reads the order notification. A PIX payment shows up as a
// charge appended to the order.
func (c *Client) ParseEvent(_ context.Context, body []byte) ([]gateway.Event, error) {
	var o order
	if err := json.Unmarshal(body, &o); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedEvent, err)
	}
	if o.ID == "" {
		return nil, errs.ErrMalformedEvent
	}

	status, raw := gateway.EventPending, ""
	for _, ch := range o.Charges {
		raw = ch.Status
		s := chargeStatus(ch.Status)
		if s == gateway.EventPending {
			continue
		}
		status = s
		if s == gateway.EventPaid {
			break
		}
	}
	return []gateway.Event{{ProviderRef: o.ID, ExternalReference: o.ReferenceID, Status: status, RawStatus: raw}}, nil
}

func chargeStatus(s string) gateway.EventStatus {
	switch s {
	case "PAID":
		return gateway.EventPaid
	case "DECLINED", "CANCELED":
		return gateway.EventCancelled
	}
	return gateway.EventPending
}

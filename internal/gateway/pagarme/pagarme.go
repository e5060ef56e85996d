package pagarme

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/gateway"
	"github.com/and161185/checkout/internal/model"
	"github.com/and161185/checkout/internal/utils"
	"github.com/go-resty/resty/v2"
)

const ID = "pagarme"

const DefaultBaseURL = "https://api.pagar.me"

type Config struct {
	BaseURL    string
	SecretKey  string
	AllowedIPs []string
	Timeout    time.Duration

	// PixExpiresIn is how long a PIX code stays payable.
	PixExpiresIn time.Duration
}

type Client struct {
	http         *resty.Client
	allowed      []netip.Prefix
	pixExpiresIn time.Duration
}

// New fails when an allow-list entry is neither an address nor a CIDR.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PixExpiresIn <= 0 {
		cfg.PixExpiresIn = time.Hour
	}

	allowed := make([]netip.Prefix, 0, len(cfg.AllowedIPs))
	for _, s := range cfg.AllowedIPs {
		s = strings.TrimSpace(s)
		if !strings.Contains(s, "/") {
			addr, err := netip.ParseAddr(s)
			if err != nil {
				return nil, fmt.Errorf("pagarme allowed ip %q: %w", s, err)
			}
			allowed = append(allowed, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("pagarme allowed ip %q: %w", s, err)
		}
		allowed = append(allowed, prefix.Masked())
	}

	return &Client{
		http:         gateway.NewHTTPClient(cfg.BaseURL, cfg.Timeout).SetBasicAuth(cfg.SecretKey, ""),
		allowed:      allowed,
		pixExpiresIn: cfg.PixExpiresIn,
	}, nil
}

func (c *Client) ID() string { return ID }

func (c *Client) Supports(method model.Method) bool {
	switch method {
	case model.MethodPix, model.MethodCard, model.MethodBoleto:
		return true
	}
	return false
}

type phone struct {
	CountryCode string `json:"country_code"`
	AreaCode    string `json:"area_code"`
	Number      string `json:"number"`
}

type address struct {
	Line1   string `json:"line_1"`
	Line2   string `json:"line_2,omitempty"`
	ZipCode string `json:"zip_code"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

type customer struct {
	Name     string           `json:"name"`
	Email    string           `json:"email"`
	Document string           `json:"document"`
	Type     string           `json:"type"`
	Phones   map[string]phone `json:"phones,omitempty"`
	Address  *address         `json:"address,omitempty"`
}

type item struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	Code        string `json:"code"`
}

type payment struct {
	PaymentMethod string         `json:"payment_method"`
	Pix           map[string]any `json:"pix,omitempty"`
	Boleto        map[string]any `json:"boleto,omitempty"`
	CreditCard    map[string]any `json:"credit_card,omitempty"`
}

type orderRequest struct {
	Code     string    `json:"code"`
	Items    []item    `json:"items"`
	Customer customer  `json:"customer"`
	Payments []payment `json:"payments"`
}

type order struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Status  string `json:"status"`
	Charges []struct {
		ID              string `json:"id"`
		Status          string `json:"status"`
		LastTransaction struct {
			Status    string `json:"status"`
			QRCode    string `json:"qr_code"`
			QRCodeURL string `json:"qr_code_url"`
			URL       string `json:"url"`
			PDF       string `json:"pdf"`
			Line      string `json:"line"`
		} `json:"last_transaction"`
	} `json:"charges"`
}

func (c *Client) CreatePayment(ctx context.Context, req gateway.PaymentRequest) (gateway.IntentResult, error) {
	body, err := c.buildOrder(req)
	if err != nil {
		return gateway.IntentResult{}, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", req.ExternalReference).
		SetBody(body).
		Post("/core/v5/orders")
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
	doc := utils.OnlyDigits(req.Buyer.Document)
	kind := "individual"
	if utils.DocumentType(doc) == utils.DocumentCNPJ {
		kind = "company"
	}

	cust := customer{
		Name:     req.Buyer.Name,
		Email:    req.Buyer.Email,
		Document: doc,
		Type:     kind,
	}
	if area, number := utils.SplitPhone(req.Buyer.Phone); number != "" {
		cust.Phones = map[string]phone{"mobile_phone": {CountryCode: "55", AreaCode: area, Number: number}}
	}
	if a := req.Address; a != nil {
		cust.Address = &address{
			Line1:   strings.Join([]string{a.Number, a.Street, a.District}, ", "),
			Line2:   a.Complement,
			ZipCode: utils.OnlyDigits(a.ZipCode),
			City:    a.City,
			State:   a.State,
			Country: "BR",
		}
	}

	var p payment
	switch req.Method {
	case model.MethodPix:
		p = payment{PaymentMethod: "pix", Pix: map[string]any{"expires_in": int(c.pixExpiresIn.Seconds())}}
	case model.MethodBoleto:
		boleto := map[string]any{"instructions": req.Description}
		if !req.DueDate.IsZero() {
			boleto["due_at"] = req.DueDate.UTC().Format(time.RFC3339)
		}
		p = payment{PaymentMethod: "boleto", Boleto: boleto}
	case model.MethodCard:
		if req.Card == nil || req.Card.Token == "" {
			return orderRequest{}, errs.ErrCardRequired
		}
		p = payment{PaymentMethod: "credit_card", CreditCard: map[string]any{
			"card_token":   req.Card.Token,
			"installments": max(req.Card.Installments, 1),
			"capture":      true,
		}}
	default:
		return orderRequest{}, errs.ErrInvalidMethod
	}

	return orderRequest{
		Code: req.ExternalReference,
		Items: []item{{
			Amount:      gateway.Cents(req.Amount),
			Description: req.Description,
			Quantity:    1,
			Code:        req.ExternalReference,
		}},
		Customer: cust,
		Payments: []payment{p},
	}, nil
}

func toIntent(o order) gateway.IntentResult {
	payload := model.ProviderPayload{TransactionID: o.ID}
	if len(o.Charges) > 0 {
		tx := o.Charges[0].LastTransaction
		payload.CopyPasteCode = tx.QRCode
		payload.QRImage = tx.QRCodeURL
		payload.Barcode = tx.Line
		payload.DocumentURL = tx.PDF
		if payload.DocumentURL == "" {
			payload.DocumentURL = tx.URL
		}
	}

	switch o.Status {
	case "paid":
		approved := true
		payload.Approved = &approved
		return gateway.IntentResult{Outcome: gateway.Approved, ProviderRef: o.ID, Payload: payload}
	case "failed", "canceled":
		return gateway.Rejection(o.ID, o.Status)
	}
	return gateway.IntentResult{Outcome: gateway.PendingCollection, ProviderRef: o.ID, Payload: payload}
}

func (c *Client) Authenticate(n gateway.Notification) error {
	host := n.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return errs.ErrUnauthenticEvent
	}
	addr = addr.Unmap()
	for _, p := range c.allowed {
		if p.Contains(addr) {
			return nil
		}
	}
	return errs.ErrUnauthenticEvent
}

type notification struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		ID     string `json:"id"`
		Code   string `json:"code"`
		Status string `json:"status"`
		Order  struct {
			ID   string `json:"id"`
			Code string `json:"code"`
		} `json:"order"`
	} `json:"data"`
}

func (c *Client) ParseEvent(_ context.Context, body []byte) ([]gateway.Event, error) {
	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedEvent, err)
	}

	ref, code := n.Data.ID, n.Data.Code
	if strings.HasPrefix(n.Type, "charge.") {
		ref, code = n.Data.Order.ID, n.Data.Order.Code
	}
	if ref == "" || n.Type == "" {
		return nil, errs.ErrMalformedEvent
	}

	return []gateway.Event{{ProviderRef: ref, ExternalReference: code, Status: eventStatus(n.Type), RawStatus: n.Type}}, nil
}

func eventStatus(eventType string) gateway.EventStatus {
	switch eventType {
	case "order.paid", "charge.paid":
		return gateway.EventPaid
	case "order.payment_failed", "order.canceled", "charge.payment_failed", "charge.canceled":
		return gateway.EventCancelled
	}
	return gateway.EventPending
}

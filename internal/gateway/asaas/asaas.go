package asaas

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/gateway"
	"github.com/and161185/checkout/internal/model"
	"github.com/and161185/checkout/internal/utils"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const ID = "asaas"

const DefaultBaseURL = "https://api.asaas.com"

type Config struct {
	BaseURL      string
	APIKey       string
	WebhookToken string
	Timeout      time.Duration
	DueInDays    int
}

type Client struct {
	http      *resty.Client
	token     string
	dueInDays int
	logger    *zap.SugaredLogger
}

func New(cfg Config, logger *zap.SugaredLogger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.DueInDays <= 0 {
		cfg.DueInDays = 3
	}
	return &Client{
		http:      gateway.NewHTTPClient(cfg.BaseURL, cfg.Timeout).SetHeader("access_token", cfg.APIKey),
		token:     cfg.WebhookToken,
		dueInDays: cfg.DueInDays,
		logger:    logger,
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

type customerRequest struct {
	Name              string `json:"name"`
	Email             string `json:"email,omitempty"`
	CpfCnpj           string `json:"cpfCnpj"`
	MobilePhone       string `json:"mobilePhone,omitempty"`
	PostalCode        string `json:"postalCode,omitempty"`
	Address           string `json:"address,omitempty"`
	AddressNumber     string `json:"addressNumber,omitempty"`
	Complement        string `json:"complement,omitempty"`
	Province          string `json:"province,omitempty"`
	ExternalReference string `json:"externalReference,omitempty"`
}

type paymentRequest struct {
	Customer          string  `json:"customer"`
	BillingType       string  `json:"billingType"`
	Value             float64 `json:"value"`
	DueDate           string  `json:"dueDate"`
	Description       string  `json:"description,omitempty"`
	ExternalReference string  `json:"externalReference"`
	InstallmentCount  int     `json:"installmentCount,omitempty"`
	InstallmentValue  float64 `json:"installmentValue,omitempty"`
	CreditCardToken   string  `json:"creditCardToken,omitempty"`
}

type payment struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	ExternalReference string `json:"externalReference"`
	InvoiceURL        string `json:"invoiceUrl"`
	BankSlipURL       string `json:"bankSlipUrl"`
}

type pixQRCode struct {
	EncodedImage string `json:"encodedImage"`
	Payload      string `json:"payload"`
}

type identificationField struct {
	IdentificationField string `json:"identificationField"`
	BarCode             string `json:"barCode"`
}

func (c *Client) CreatePayment(ctx context.Context, req gateway.PaymentRequest) (gateway.IntentResult, error) {
	kind, err := billingType(req)
	if err != nil {
		return gateway.IntentResult{}, err
	}

	customerID, err := c.createCustomer(ctx, req)
	if err != nil {
		return gateway.IntentResult{}, gateway.Refusal(err)
	}

	due := req.DueDate
	if due.IsZero() {
		due = time.Now().AddDate(0, 0, c.dueInDays)
	}
	body := paymentRequest{
		Customer:          customerID,
		BillingType:       kind,
		Value:             req.Amount.Round(2).InexactFloat64(),
		DueDate:           due.Format(time.DateOnly),
		Description:       req.Description,
		ExternalReference: req.ExternalReference,
	}
	if req.Method == model.MethodCard {
		body.CreditCardToken = req.Card.Token
		if req.Card.Installments > 1 {
			body.InstallmentCount = req.Card.Installments
			body.InstallmentValue = req.Amount.DivRound(decimal.NewFromInt(int64(req.Card.Installments)), 2).InexactFloat64()
		}
	}

	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post("/v3/payments")
	if err := gateway.Check(ID, resp, err); err != nil {
		if reason, ok := cardRefused(req, resp); ok {
			return gateway.Rejection("", reason), nil
		}
		return gateway.IntentResult{}, gateway.Refusal(err)
	}

	var p payment
	if err := json.Unmarshal(resp.Body(), &p); err != nil {
		return gateway.IntentResult{}, &errs.GatewayError{Provider: ID, Retryable: true, Err: err}
	}

	switch eventStatus(p.Status) {
	case gateway.EventCancelled:
		return gateway.Rejection(p.ID, p.Status), nil
	case gateway.EventPaid:
		approved := true
		return gateway.IntentResult{
			Outcome:     gateway.Approved,
			ProviderRef: p.ID,
			Payload:     model.ProviderPayload{TransactionID: p.ID, Approved: &approved},
		}, nil
	}

	payload := model.ProviderPayload{TransactionID: p.ID}
	switch req.Method {
	case model.MethodPix:
		c.fillPix(ctx, p.ID, &payload)
	case model.MethodBoleto:
		payload.DocumentURL = p.BankSlipURL
		c.fillBoleto(ctx, p.ID, &payload)
	}
	return gateway.IntentResult{Outcome: gateway.PendingCollection, ProviderRef: p.ID, Payload: payload}, nil
}

type apiErrors struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

// cardRefused recognises the 400 Asaas answers with when the issuer turns a
// card down. Other validation errors are not declines.
func cardRefused(req gateway.PaymentRequest, resp *resty.Response) (string, bool) {
	if req.Method != model.MethodCard || resp == nil || resp.StatusCode() != http.StatusBadRequest {
		return "", false
	}
	var body apiErrors
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", false
	}
	for _, e := range body.Errors {
		if e.Code == "invalid_creditCard" {
			return e.Description, true
		}
	}
	return "", false
}

func billingType(req gateway.PaymentRequest) (string, error) {
	switch req.Method {
	case model.MethodPix:
		return "PIX", nil
	case model.MethodBoleto:
		return "BOLETO", nil
	case model.MethodCard:
		if req.Card == nil || req.Card.Token == "" {
			return "", errs.ErrCardRequired
		}
		return "CREDIT_CARD", nil
	}
	return "", errs.ErrInvalidMethod
}

func (c *Client) createCustomer(ctx context.Context, req gateway.PaymentRequest) (string, error) {
	body := customerRequest{
		Name:              req.Buyer.Name,
		Email:             req.Buyer.Email,
		CpfCnpj:           utils.OnlyDigits(req.Buyer.Document),
		MobilePhone:       utils.OnlyDigits(req.Buyer.Phone),
		ExternalReference: req.ExternalReference,
	}
	if a := req.Address; a != nil {
		body.PostalCode = utils.OnlyDigits(a.ZipCode)
		body.Address = a.Street
		body.AddressNumber = a.Number
		body.Complement = a.Complement
		body.Province = a.District
	}

	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post("/v3/customers")
	if err := gateway.Check(ID, resp, err); err != nil {
		return "", err
	}

	var customer struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Body(), &customer); err != nil || customer.ID == "" {
		return "", &errs.GatewayError{Provider: ID, Retryable: true, Err: fmt.Errorf("customer without id: %v", err)}
	}
	return customer.ID, nil
}

// fillPix and fillBoleto are best effort, the payment already exists.
func (c *Client) fillPix(ctx context.Context, paymentID string, payload *model.ProviderPayload) {
	var qr pixQRCode
	resp, err := c.http.R().SetContext(ctx).Get("/v3/payments/" + paymentID + "/pixQrCode")
	if err := gateway.Check(ID, resp, err); err != nil {
		c.logger.Warnw("asaas_pix_qrcode_failed", "payment_id", paymentID, "error", err)
		return
	}
	if err := json.Unmarshal(resp.Body(), &qr); err != nil {
		c.logger.Warnw("asaas_pix_qrcode_failed", "payment_id", paymentID, "error", err)
		return
	}
	payload.CopyPasteCode = qr.Payload
	if qr.EncodedImage != "" {
		payload.QRImage = "data:image/png;base64," + qr.EncodedImage
	}
}

func (c *Client) fillBoleto(ctx context.Context, paymentID string, payload *model.ProviderPayload) {
	var field identificationField
	resp, err := c.http.R().SetContext(ctx).Get("/v3/payments/" + paymentID + "/identificationField")
	if err := gateway.Check(ID, resp, err); err != nil {
		c.logger.Warnw("asaas_identification_field_failed", "payment_id", paymentID, "error", err)
		return
	}
	if err := json.Unmarshal(resp.Body(), &field); err != nil {
		c.logger.Warnw("asaas_identification_field_failed", "payment_id", paymentID, "error", err)
		return
	}
	payload.Barcode = field.IdentificationField
}

func (c *Client) Authenticate(n gateway.Notification) error {
	got := n.Header.Get("asaas-access-token")
	if c.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(c.token)) != 1 {
		return errs.ErrUnauthenticEvent
	}
	return nil
}

type notification struct {
	Event   string  `json:"event"`
	Payment payment `json:"payment"`
}

func (c *Client) ParseEvent(_ context.Context, body []byte) ([]gateway.Event, error) {
	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedEvent, err)
	}
	if n.Payment.ID == "" {
		return nil, errs.ErrMalformedEvent
	}
	return []gateway.Event{{
		ProviderRef:       n.Payment.ID,
		ExternalReference: n.Payment.ExternalReference,
		Status:            eventStatus(n.Event),
		RawStatus:         n.Event,
	}}, nil
}

func eventStatus(s string) gateway.EventStatus {
	switch s {
	case "PAYMENT_CONFIRMED", "PAYMENT_RECEIVED", "CONFIRMED", "RECEIVED":
		return gateway.EventPaid
	case "PAYMENT_DELETED", "PAYMENT_CREDIT_CARD_CAPTURE_REFUSED", "PAYMENT_REPROVED_BY_RISK_ANALYSIS",
		"REFUNDED", "PAYMENT_REFUNDED":
		return gateway.EventCancelled
	}
	return gateway.EventPending
}

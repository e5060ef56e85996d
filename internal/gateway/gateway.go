package gateway

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/and161185/checkout/internal/model"
	"github.com/shopspring/decimal"
)

type Outcome string

const (
	Approved          Outcome = "approved"
	PendingCollection Outcome = "pending_collection"
	Rejected          Outcome = "rejected"
)

type Card struct {
	Token        string
	Installments int
	Brand        string
}

type PaymentRequest struct {
	Amount            decimal.Decimal
	Method            model.Method
	Buyer             model.Buyer
	Address           *model.Address
	Description       string
	ExternalReference string
	NotificationURL   string
	DueDate           time.Time
	Card              *Card
}

type IntentResult struct {
	Outcome       Outcome
	ProviderRef   string
	Payload       model.ProviderPayload
	DeclineReason string
}

type Adapter interface {
	ID() string
	Supports(method model.Method) bool
	CreatePayment(ctx context.Context, req PaymentRequest) (IntentResult, error)
}

type Notification struct {
	Header     http.Header
	Query      url.Values
	RemoteAddr string
	Body       []byte
}

type EventStatus string

const (
	EventPaid      EventStatus = "paid"
	EventCancelled EventStatus = "cancelled"
	EventPending   EventStatus = "pending"
)

type Event struct {
	ProviderRef       string
	ExternalReference string
	Status            EventStatus
	RawStatus         string
}

type EventSource interface {
	Authenticate(n Notification) error
	ParseEvent(ctx context.Context, body []byte) ([]Event, error)
}

type Provider interface {
	Adapter
	EventSource
}

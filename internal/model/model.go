package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Method string

const (
	MethodPix    Method = "PIX"
	MethodCard   Method = "CARD"
	MethodBoleto Method = "BOLETO"
)

var Methods = []Method{MethodPix, MethodCard, MethodBoleto}

func ParseMethod(s string) (Method, bool) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case MethodPix, MethodCard, MethodBoleto:
		return m, true
	}
	return "", false
}

type OrderStatus string

const (
	Pending   OrderStatus = "PENDING"
	Paid      OrderStatus = "PAID"
	Cancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) Terminal() bool {
	return s == Paid || s == Cancelled
}

type Role string

const (
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

type User struct {
	ID        uuid.UUID
	Login     string
	Role      Role
	FeePlanID *uuid.UUID
}

type Actor struct {
	ID   uuid.UUID
	Role Role
}

type Buyer struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Document string `json:"document"`
	Phone    string `json:"phone"`
}

type Address struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	State      string `json:"state"`
	ZipCode    string `json:"zip_code"`
}

type ProviderPayload struct {
	QRImage       string `json:"qrImage,omitempty"`
	CopyPasteCode string `json:"copyPasteCode,omitempty"`
	DocumentURL   string `json:"documentUrl,omitempty"`
	Barcode       string `json:"barcode,omitempty"`
	Approved      *bool  `json:"approved,omitempty"`
	TransactionID string `json:"providerTransactionId,omitempty"`
}

type Offer struct {
	ID       uuid.UUID
	SellerID uuid.UUID
	Title    string
	Price    decimal.Decimal
	Active   bool
}

type Order struct {
	ID          uuid.UUID
	OfferID     uuid.UUID
	SellerID    uuid.UUID
	FeePlanID   *uuid.UUID
	CheckoutKey string
	Gross       decimal.Decimal
	Method      Method
	Status      OrderStatus
	Provider    string
	ProviderRef string
	Payload     ProviderPayload
	Buyer       Buyer
	Address     *Address
	Description string
	CreatedAt   time.Time
	PaidAt      *time.Time
	CancelledAt *time.Time
}

type MethodFee struct {
	Percentual       decimal.Decimal
	Fixed            decimal.Decimal
	ReleaseDelayDays int
}

type FeePlan struct {
	ID     uuid.UUID
	Name   string
	Pix    MethodFee
	Card   MethodFee
	Boleto MethodFee
}

func (p FeePlan) For(method Method) MethodFee {
	switch method {
	case MethodPix:
		return p.Pix
	case MethodCard:
		return p.Card
	case MethodBoleto:
		return p.Boleto
	}
	return MethodFee{}
}

type FeeBreakdown struct {
	Gross      decimal.Decimal `json:"gross"`
	Fee        decimal.Decimal `json:"fee"`
	Net        decimal.Decimal `json:"net"`
	Percentual decimal.Decimal `json:"feePercentual"`
	Fixed      decimal.Decimal `json:"feeFixed"`
	Clamped    bool            `json:"-"`
}

type WalletEntryStatus string

const (
	EntryPending   WalletEntryStatus = "PENDING"
	EntryAvailable WalletEntryStatus = "AVAILABLE"
)

type WalletEntry struct {
	ID            uuid.UUID
	SellerID      uuid.UUID
	OrderID       uuid.UUID
	Method        Method
	Gross         decimal.Decimal
	Fee           decimal.Decimal
	Net           decimal.Decimal
	FeePercentual decimal.Decimal
	FeeFixed      decimal.Decimal
	Status        WalletEntryStatus
	ReleaseAt     time.Time
	CreatedAt     time.Time
	ReleasedAt    *time.Time
}

func (e WalletEntry) Breakdown() FeeBreakdown {
	return FeeBreakdown{Gross: e.Gross, Fee: e.Fee, Net: e.Net, Percentual: e.FeePercentual, Fixed: e.FeeFixed}
}

type Balance struct {
	Pending   decimal.Decimal
	Available decimal.Decimal
	Reserved  decimal.Decimal
}

// Withdrawable is what a new withdrawal request may still ask for.
func (b Balance) Withdrawable() decimal.Decimal {
	return b.Available.Sub(b.Reserved)
}

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "PENDING"
	WithdrawalApproved WithdrawalStatus = "APPROVED"
	WithdrawalRejected WithdrawalStatus = "REJECTED"
)

type Withdrawal struct {
	ID              uuid.UUID
	SellerID        uuid.UUID
	BankAccountID   uuid.UUID
	Amount          decimal.Decimal
	Status          WithdrawalStatus
	RequestedAt     time.Time
	DecidedAt       *time.Time
	DecidedBy       *uuid.UUID
	RejectionReason string
	ReceiptRef      string
}

type WithdrawalDecision struct {
	Status     WithdrawalStatus
	DecidedBy  uuid.UUID
	DecidedAt  time.Time
	Reason     string
	ReceiptRef string
}

type PayoutType string

const (
	PayoutPixKey      PayoutType = "pix_key"
	PayoutBankAccount PayoutType = "bank_account"
)

type BankAccount struct {
	ID             uuid.UUID
	SellerID       uuid.UUID
	PayoutType     PayoutType
	PixKey         string
	HolderName     string
	HolderDocument string
	BankCode       string
	Branch         string
	AccountNumber  string
	CreatedAt      time.Time
}

type WebhookEvent struct {
	ID          uuid.UUID
	Provider    string
	Payload     []byte
	ReceivedAt  time.Time
	ProcessedAt *time.Time
	Attempts    int
	LastError   string
}

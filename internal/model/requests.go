package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type CardInput struct {
	Token        string `json:"token"`
	Installments int    `json:"installments"`
	Brand        string `json:"brand,omitempty"`
}

type CheckoutRequest struct {
	SellerPlanID string     `json:"sellerPlanId"`
	Method       string     `json:"method"`
	Buyer        Buyer      `json:"buyer"`
	Address      *Address   `json:"address,omitempty"`
	Card         *CardInput `json:"card,omitempty"`
}

type PaymentRetryRequest struct {
	Card *CardInput `json:"card,omitempty"`
}

type CheckoutResponse struct {
	OrderID         string          `json:"orderId"`
	Method          Method          `json:"method"`
	Status          OrderStatus     `json:"status"`
	ProviderPayload ProviderPayload `json:"providerPayload"`
}

type BalanceResponse struct {
	PendingBalance   decimal.Decimal `json:"pendingBalance"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	ReservedBalance  decimal.Decimal `json:"reservedBalance"`
}

type WithdrawRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	BankAccountID string          `json:"bankAccountId"`
}

type WithdrawResponse struct {
	WithdrawalID string           `json:"withdrawalId"`
	Status       WithdrawalStatus `json:"status"`
}

type WithdrawalDecisionRequest struct {
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	ReceiptRef string `json:"receiptRef,omitempty"`
}

type BankAccountRequest struct {
	PayoutType     PayoutType `json:"payoutType"`
	PixKey         string     `json:"pixKey,omitempty"`
	HolderName     string     `json:"holderName"`
	HolderDocument string     `json:"holderDocument"`
	BankCode       string     `json:"bankCode,omitempty"`
	Branch         string     `json:"branch,omitempty"`
	AccountNumber  string     `json:"accountNumber,omitempty"`
}

type ErrorResponse struct {
	Error            string           `json:"error"`
	Message          string           `json:"message"`
	OrderID          string           `json:"order_id,omitempty"`
	AvailableBalance *decimal.Decimal `json:"available_balance,omitempty"`
}

type OrderResponse struct {
	OrderID     string          `json:"orderId"`
	OfferID     string          `json:"sellerPlanId"`
	Method      Method          `json:"method"`
	Status      OrderStatus     `json:"status"`
	Gross       decimal.Decimal `json:"gross"`
	Provider    string          `json:"provider,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	PaidAt      *time.Time      `json:"paidAt,omitempty"`
	CancelledAt *time.Time      `json:"cancelledAt,omitempty"`
}

type ReceiptResponse struct {
	OrderID string       `json:"orderId"`
	Method  Method       `json:"method"`
	PaidAt  *time.Time   `json:"paidAt"`
	Fees    FeeBreakdown `json:"fees"`
}

type WalletEntryResponse struct {
	OrderID    string            `json:"orderId"`
	Method     Method            `json:"method"`
	Gross      decimal.Decimal   `json:"gross"`
	Fee        decimal.Decimal   `json:"fee"`
	Net        decimal.Decimal   `json:"net"`
	Status     WalletEntryStatus `json:"status"`
	ReleaseAt  time.Time         `json:"releaseAt"`
	ReleasedAt *time.Time        `json:"releasedAt,omitempty"`
}

type WithdrawalResponse struct {
	WithdrawalID    string           `json:"withdrawalId"`
	SellerID        string           `json:"sellerId"`
	BankAccountID   string           `json:"bankAccountId"`
	Amount          decimal.Decimal  `json:"amount"`
	Status          WithdrawalStatus `json:"status"`
	RequestedAt     time.Time        `json:"requestedAt"`
	DecidedAt       *time.Time       `json:"decidedAt,omitempty"`
	RejectionReason string           `json:"rejectionReason,omitempty"`
	ReceiptRef      string           `json:"receiptRef,omitempty"`
}

type BankAccountResponse struct {
	BankAccountID  string     `json:"bankAccountId"`
	PayoutType     PayoutType `json:"payoutType"`
	PixKey         string     `json:"pixKey,omitempty"`
	HolderName     string     `json:"holderName"`
	HolderDocument string     `json:"holderDocument"`
	BankCode       string     `json:"bankCode,omitempty"`
	Branch         string     `json:"branch,omitempty"`
	AccountNumber  string     `json:"accountNumber,omitempty"`
}

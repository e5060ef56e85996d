package errs

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrUserNotFound = errors.New("user not found")
var ErrInvalidToken = errors.New("invalid token")
var ErrLoginAlreadyExists = errors.New("login already exists")
var ErrForbidden = errors.New("forbidden")

var ErrInvalidMethod = errors.New("invalid payment method")
var ErrInvalidAmount = errors.New("amount must be positive")
var ErrInvalidBuyer = errors.New("invalid buyer identity")
var ErrOfferNotFound = errors.New("plan not found")
var ErrOrderNotFound = errors.New("order not found")
var ErrOrderExists = errors.New("order already exists")
var ErrPaymentDeclined = errors.New("payment declined by provider")
var ErrCardRequired = errors.New("card token required")

var ErrUnknownProvider = errors.New("unknown provider")
var ErrUnauthenticEvent = errors.New("event failed provider verification")
var ErrUnknownReference = errors.New("unknown provider reference")
var ErrMalformedEvent = errors.New("malformed provider event")

var ErrWithdrawalNotFound = errors.New("withdrawal not found")
var ErrWithdrawalDecided = errors.New("withdrawal already decided")
var ErrBankAccountNotFound = errors.New("bank account not found")
var ErrInvalidBankAccount = errors.New("invalid bank account")
var ErrEntryNotFound = errors.New("wallet entry not found")
var ErrFeePlanNotFound = errors.New("fee plan not found")

// ConfigurationError means the platform is set up in a way that cannot move
// money safely. It is never defaulted around.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// GatewayError is a failed provider call that did not produce a decision.
// The order it was made for stays PENDING.
type GatewayError struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s: %v", e.Provider, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

type InsufficientBalanceError struct {
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return "insufficient balance: available " + e.Available.StringFixed(2)
}

func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

func IsGateway(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

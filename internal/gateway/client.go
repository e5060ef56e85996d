package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/model"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const DefaultTimeout = 20 * time.Second

func NewHTTPClient(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
}

// Transport failures, timeouts, 429 and 5xx are retryable.
func Check(provider string, resp *resty.Response, err error) error {
	if err != nil {
		return &errs.GatewayError{Provider: provider, Retryable: true, Err: err}
	}
	if resp.IsSuccess() {
		return nil
	}

	code := resp.StatusCode()
	retryable := code >= http.StatusInternalServerError ||
		code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout
	return &errs.GatewayError{
		Provider:   provider,
		StatusCode: code,
		Retryable:  retryable,
		Err:        fmt.Errorf("unexpected response %s", resp.Status()),
	}
}

// Refusal maps a non-retryable answer to payment creation. 401 and 403 mean
// the provider does not take our credentials. Any other 4xx stays a
// GatewayError: a request the provider could not validate is not a decline,
// so the order keeps waiting.
func Refusal(err error) error {
	var ge *errs.GatewayError
	if !errors.As(err, &ge) || ge.Retryable {
		return err
	}
	switch ge.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errs.NewConfigurationError("%s refused the credentials: status %d", ge.Provider, ge.StatusCode)
	}
	return err
}

func Rejection(ref string, reason string) IntentResult {
	approved := false
	return IntentResult{
		Outcome:     Rejected,
		ProviderRef: ref,
		Payload: model.ProviderPayload{
			Approved:      &approved,
			TransactionID: ref,
		},
		DeclineReason: reason,
	}
}

func Cents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/model"
	"github.com/google/uuid"
)

type apiError struct {
	status  int
	code    string
	message string
}

var (
	errInvalidRequest = apiError{http.StatusBadRequest, "invalid_request", "request body is not valid"}
	errInternal       = apiError{http.StatusInternalServerError, "internal_error", "internal error"}
)

// Provider and storage errors are never shown to the client as is.
var knownErrors = []struct {
	target error
	api    apiError
}{
	{errs.ErrInvalidMethod, apiError{http.StatusBadRequest, "invalid_method", "payment method must be PIX, CARD or BOLETO"}},
	{errs.ErrInvalidBuyer, apiError{http.StatusBadRequest, "invalid_buyer", "buyer name and a valid CPF or CNPJ are required"}},
	{errs.ErrCardRequired, apiError{http.StatusBadRequest, "invalid_request", "card token is required for CARD payments"}},
	{errs.ErrInvalidAmount, apiError{http.StatusBadRequest, "invalid_request", "amount must be positive"}},
	{errs.ErrOfferNotFound, apiError{http.StatusNotFound, "plan_not_found", "checkout plan not found"}},
	{errs.ErrOrderNotFound, apiError{http.StatusNotFound, "order_not_found", "order not found"}},
	{errs.ErrBankAccountNotFound, apiError{http.StatusNotFound, "bank_account_not_found", "bank account not found"}},
	{errs.ErrInvalidBankAccount, apiError{http.StatusBadRequest, "invalid_bank_account", "bank account details are incomplete"}},
	{errs.ErrWithdrawalNotFound, apiError{http.StatusNotFound, "withdrawal_not_found", "withdrawal not found"}},
	{errs.ErrWithdrawalDecided, apiError{http.StatusConflict, "withdrawal_decided", "withdrawal was already decided"}},
	{errs.ErrForbidden, apiError{http.StatusForbidden, "forbidden", "not allowed"}},
	{errs.ErrEntryNotFound, apiError{http.StatusNotFound, "order_not_found", "order not found"}},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (srv *Server) writeAPIError(w http.ResponseWriter, e apiError, orderID uuid.UUID) {
	resp := model.ErrorResponse{Error: e.code, Message: e.message}
	if orderID != uuid.Nil {
		resp.OrderID = orderID.String()
	}
	writeJSON(w, e.status, resp)
}

func (srv *Server) writeError(w http.ResponseWriter, err error, order model.Order) {
	var (
		gwErr  *errs.GatewayError
		cfgErr *errs.ConfigurationError
		balErr *errs.InsufficientBalanceError
	)

	switch {
	case errors.As(err, &gwErr):
		srv.writeAPIError(w, apiError{http.StatusServiceUnavailable, "gateway_unavailable", "payment provider is unavailable, retry later"}, order.ID)
		return
	case errors.Is(err, errs.ErrPaymentDeclined):
		if order.Method == model.MethodCard {
			srv.writeAPIError(w, apiError{http.StatusPaymentRequired, "card_declined", "card payment was declined"}, order.ID)
			return
		}
		srv.writeAPIError(w, apiError{http.StatusPaymentRequired, "payment_rejected", "payment was rejected by the provider"}, order.ID)
		return
	case errors.As(err, &cfgErr):
		srv.deps.Logger.Errorw("configuration_error", "order_id", order.ID, "error", err)
		srv.writeAPIError(w, apiError{http.StatusInternalServerError, "configuration_error", "checkout is not configured for this payment"}, order.ID)
		return
	case errors.As(err, &balErr):
		available := balErr.Available
		writeJSON(w, http.StatusPaymentRequired, model.ErrorResponse{
			Error:            "insufficient_balance",
			Message:          "amount exceeds available balance",
			AvailableBalance: &available,
		})
		return
	}

	for _, known := range knownErrors {
		if errors.Is(err, known.target) {
			srv.writeAPIError(w, known.api, order.ID)
			return
		}
	}

	srv.deps.Logger.Errorw("request_failed", "order_id", order.ID, "error", err)
	srv.writeAPIError(w, errInternal, order.ID)
}

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/gateway"
	"github.com/and161185/checkout/internal/model"
	"github.com/and161185/checkout/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxWebhookBody = 1 << 20

func checkoutResponse(o model.Order) model.CheckoutResponse {
	return model.CheckoutResponse{
		OrderID:         o.ID.String(),
		Method:          o.Method,
		Status:          o.Status,
		ProviderPayload: o.Payload,
	}
}

func toGatewayCard(c *model.CardInput) *gateway.Card {
	if c == nil {
		return nil
	}
	return &gateway.Card{Token: c.Token, Installments: c.Installments, Brand: c.Brand}
}

func (srv *Server) CheckoutHandler(w http.ResponseWriter, r *http.Request) {
	var req model.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		srv.writeAPIError(w, errInvalidRequest, uuid.Nil)
		return
	}

	offerID, err := uuid.Parse(strings.TrimSpace(req.SellerPlanID))
	if err != nil {
		srv.writeAPIError(w, apiError{http.StatusNotFound, "plan_not_found", "checkout plan not found"}, uuid.Nil)
		return
	}

	in := orders.CheckoutInput{
		OfferID:     offerID,
		Method:      req.Method,
		Buyer:       req.Buyer,
		Address:     req.Address,
		Card:        toGatewayCard(req.Card),
		CheckoutKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	}

	order, err := srv.services.Orders.Create(r.Context(), in)
	if err != nil {
		srv.writeError(w, err, order)
		return
	}

	writeJSON(w, http.StatusCreated, checkoutResponse(order))
}

func (srv *Server) CheckoutStatusHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		srv.writeAPIError(w, apiError{http.StatusNotFound, "order_not_found", "order not found"}, uuid.Nil)
		return
	}

	order, err := srv.services.Orders.Get(r.Context(), orderID)
	if err != nil {
		srv.writeError(w, err, model.Order{})
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse(order))
}

func (srv *Server) RetryPaymentHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		srv.writeAPIError(w, apiError{http.StatusNotFound, "order_not_found", "order not found"}, uuid.Nil)
		return
	}

	var req model.PaymentRetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		srv.writeAPIError(w, errInvalidRequest, orderID)
		return
	}

	order, err := srv.services.Orders.Pay(r.Context(), orderID, toGatewayCard(req.Card))
	if err != nil {
		if order.ID == uuid.Nil {
			order.ID = orderID
		}
		srv.writeError(w, err, order)
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse(order))
}

func (srv *Server) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	n := gateway.Notification{
		Header:     r.Header,
		Query:      r.URL.Query(),
		RemoteAddr: r.RemoteAddr,
		Body:       body,
	}

	ev, err := srv.services.Webhooks.Accept(r.Context(), provider, n)
	switch {
	case errors.Is(err, errs.ErrUnknownProvider):
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	case errors.Is(err, errs.ErrUnauthenticEvent):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	case err != nil:
		srv.deps.Logger.Errorw("webhook_store_failed", "provider", provider, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// событие сохранено, отвечаем сразу
	w.WriteHeader(http.StatusOK)

	go srv.applyAccepted(r.Context(), ev)
}

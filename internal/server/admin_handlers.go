package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/and161185/checkout/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (srv *Server) AdminWithdrawalsHandler(w http.ResponseWriter, r *http.Request) {
	status := model.WithdrawalStatus(strings.ToUpper(r.URL.Query().Get("status")))
	switch status {
	case "":
		status = model.WithdrawalPending
	case model.WithdrawalPending, model.WithdrawalApproved, model.WithdrawalRejected:
	default:
		srv.writeAPIError(w, apiError{http.StatusBadRequest, "invalid_request", "unknown withdrawal status"}, uuid.Nil)
		return
	}

	list, err := srv.services.Withdrawals.ListByStatus(r.Context(), status)
	if err != nil {
		srv.writeError(w, err, model.Order{})
		return
	}

	resp := make([]model.WithdrawalResponse, 0, len(list))
	for _, wd := range list {
		resp = append(resp, withdrawalResponse(wd))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (srv *Server) AdminDecisionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "withdrawalID"))
	if err != nil {
		srv.writeAPIError(w, apiError{http.StatusNotFound, "withdrawal_not_found", "withdrawal not found"}, uuid.Nil)
		return
	}

	var req model.WithdrawalDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		srv.writeAPIError(w, errInvalidRequest, uuid.Nil)
		return
	}

	actor := model.Actor{ID: user.ID, Role: user.Role}

	var wd model.Withdrawal
	switch strings.ToLower(strings.TrimSpace(req.Status)) {
	case "approved":
		wd, err = srv.services.Withdrawals.Approve(r.Context(), actor, id, req.ReceiptRef)
	case "rejected":
		wd, err = srv.services.Withdrawals.Reject(r.Context(), actor, id, req.Reason)
	default:
		srv.writeAPIError(w, apiError{http.StatusBadRequest, "invalid_request", "status must be approved or rejected"}, uuid.Nil)
		return
	}
	if err != nil {
		srv.writeError(w, err, model.Order{})
		return
	}

	writeJSON(w, http.StatusOK, withdrawalResponse(wd))
}

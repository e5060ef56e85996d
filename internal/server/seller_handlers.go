package server

import (
	"encoding/json"
	"net/http"

	"github.com/and161185/checkout/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func orderResponse(o model.Order) model.OrderResponse {
	return model.OrderResponse{
		OrderID:     o.ID.String(),
		OfferID:     o.OfferID.String(),
		Method:      o.Method,
		Status:      o.Status,
		Gross:       o.Gross,
		Provider:    o.Provider,
		CreatedAt:   o.CreatedAt,
		PaidAt:      o.PaidAt,
		CancelledAt: o.CancelledAt,
	}
}

func withdrawalResponse(wd model.Withdrawal) model.WithdrawalResponse {
	return model.WithdrawalResponse{
		WithdrawalID:    wd.ID.String(),
		SellerID:        wd.SellerID.String(),
		BankAccountID:   wd.BankAccountID.String(),
		Amount:          wd.Amount,
		Status:          wd.Status,
		RequestedAt:     wd.RequestedAt,
		DecidedAt:       wd.DecidedAt,
		RejectionReason: wd.RejectionReason,
		ReceiptRef:      wd.ReceiptRef,
	}
}

func bankAccountResponse(a model.BankAccount) model.BankAccountResponse {
	return model.BankAccountResponse{
		BankAccountID:  a.ID.String(),
		PayoutType:     a.PayoutType,
		PixKey:         a.PixKey,
		HolderName:     a.HolderName,
		HolderDocument: a.HolderDocument,
		BankCode:       a.BankCode,
		Branch:         a.Branch,
		AccountNumber:  a.AccountNumber,
	}
}

func (srv *Server) GetOrdersHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	list, err := srv.services.Orders.ListBySeller(r.Context(), user.ID)
	if err != nil {
		srv.writeError(w, err, model.Order{})
		return
	}

	if len(list) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]model.OrderResponse, 0, len(list))
	for _, o := range list {
		resp = append(resp, orderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (srv *Server) GetReceiptHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		srv.writeAPIError(w, apiError{http.StatusNotFound, "order_not_found", "order not found"}, uuid.Nil)
		return
	}

	order, fees, err := srv.services.Orders.Receipt(r.Context(), user.ID, orderID)
	if err != nil {
		srv.writeError(w, err, model.Order{})
		return
	}

	writeJSON(w, http.StatusOK, model.ReceiptResponse{
		OrderID: order.ID.String(),
		Method:  order.Method,
		PaidAt:  order.PaidAt,
		Fees:    fees,
	})
}

func (srv *Server) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	b, err := srv.services.Wallet.Balance(r.Context(), user.ID)
	if err != nil {
		srv.writeError(w, err, model.Order{})
		return
	}

	writeJSON(w, http.StatusOK, model.BalanceResponse{
		PendingBalance:   b.Pending,
		AvailableBalance: b.Available,
		ReservedBalance:  b.Reserved,
	})
}

func (srv *Server) GetWalletEntriesHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	entries, err := srv.services.Wallet.Entries(r.Context(), user.ID)
	if err != nil {
		srv.writeError(w, err, model.Order{})
		return
	}

	if len(entries) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]model.WalletEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, model.WalletEntryResponse{
			OrderID:    e.OrderID.String(),
			Method:     e.Method,
			Gross:      e.Gross,
			Fee:        e.Fee,
			Net:        e.Net,
			Status:     e.Status,
			ReleaseAt:  e.ReleaseAt,
			ReleasedAt: e.ReleasedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (srv *Server) AddBankAccountHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req model.BankAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		srv.writeAPIError(w, errInvalidRequest, uuid.Nil)
		return
	}

	account, err := srv.services.Withdrawals.AddBankAccount(r.Context(), user.ID, req)
	if err != nil {
		srv.writeError(w, err, model.Order{})
		return
	}

	writeJSON(w, http.StatusCreated, bankAccountResponse(account))
}

func (srv *Server) GetBankAccountsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	accounts, err := srv.services.Withdrawals.BankAccounts(r.Context(), user.ID)
	if err != nil {
		srv.writeError(w, err, model.Order{})
		return
	}

	resp := make([]model.BankAccountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, bankAccountResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (srv *Server) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req model.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		srv.writeAPIError(w, errInvalidRequest, uuid.Nil)
		return
	}

	accountID, err := uuid.Parse(req.BankAccountID)
	if err != nil {
		srv.writeAPIError(w, apiError{http.StatusNotFound, "bank_account_not_found", "bank account not found"}, uuid.Nil)
		return
	}

	wd, err := srv.services.Withdrawals.Request(r.Context(), user.ID, req.Amount, accountID)
	if err != nil {
		srv.writeError(w, err, model.Order{})
		return
	}

	writeJSON(w, http.StatusCreated, model.WithdrawResponse{WithdrawalID: wd.ID.String(), Status: wd.Status})
}

func (srv *Server) GetWithdrawalsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	list, err := srv.services.Withdrawals.List(r.Context(), user.ID)
	if err != nil {
		srv.writeError(w, err, model.Order{})
		return
	}

	if len(list) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]model.WithdrawalResponse, 0, len(list))
	for _, wd := range list {
		resp = append(resp, withdrawalResponse(wd))
	}
	writeJSON(w, http.StatusOK, resp)
}

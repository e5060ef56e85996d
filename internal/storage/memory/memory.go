// Package memory is an in-process storage for development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type userRecord struct {
	user model.User
	hash string
}

type Storage struct {
	mu sync.Mutex

	users  map[uuid.UUID]userRecord
	logins map[string]uuid.UUID
	plans  map[uuid.UUID]model.FeePlan
	offers map[uuid.UUID]model.Offer

	orders    map[uuid.UUID]model.Order
	orderKeys map[string]uuid.UUID
	refs      map[string]uuid.UUID

	entries      map[uuid.UUID]model.WalletEntry
	entryByOrder map[uuid.UUID]uuid.UUID

	withdrawals map[uuid.UUID]model.Withdrawal
	accounts    map[uuid.UUID]model.BankAccount

	events map[uuid.UUID]model.WebhookEvent
}

func New() *Storage {
	return &Storage{
		users:        make(map[uuid.UUID]userRecord),
		logins:       make(map[string]uuid.UUID),
		plans:        make(map[uuid.UUID]model.FeePlan),
		offers:       make(map[uuid.UUID]model.Offer),
		orders:       make(map[uuid.UUID]model.Order),
		orderKeys:    make(map[string]uuid.UUID),
		refs:         make(map[string]uuid.UUID),
		entries:      make(map[uuid.UUID]model.WalletEntry),
		entryByOrder: make(map[uuid.UUID]uuid.UUID),
		withdrawals:  make(map[uuid.UUID]model.Withdrawal),
		accounts:     make(map[uuid.UUID]model.BankAccount),
		events:       make(map[uuid.UUID]model.WebhookEvent),
	}
}

func (s *Storage) Close() {}

// users

func (s *Storage) CreateUser(_ context.Context, login, passwordHash string, role model.Role) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(login)
	if _, ok := s.logins[key]; ok {
		return model.User{}, errs.ErrLoginAlreadyExists
	}
	u := model.User{ID: uuid.New(), Login: login, Role: role}
	s.users[u.ID] = userRecord{user: u, hash: passwordHash}
	s.logins[key] = u.ID
	return u, nil
}

func (s *Storage) GetUserByLogin(_ context.Context, login string) (model.User, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.logins[strings.ToLower(login)]
	if !ok {
		return model.User{}, "", errs.ErrUserNotFound
	}
	rec := s.users[id]
	return rec.user, rec.hash, nil
}

func (s *Storage) GetUserByID(_ context.Context, id uuid.UUID) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[id]
	if !ok {
		return model.User{}, errs.ErrUserNotFound
	}
	return rec.user, nil
}

func (s *Storage) AssignFeePlan(_ context.Context, userID, planID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[userID]
	if !ok {
		return errs.ErrUserNotFound
	}
	if _, ok := s.plans[planID]; !ok {
		return errs.ErrFeePlanNotFound
	}
	rec.user.FeePlanID = &planID
	s.users[userID] = rec
	return nil
}

// fee plans and offers

func (s *Storage) CreateFeePlan(_ context.Context, plan model.FeePlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.plans[plan.ID] = plan
	return nil
}

func (s *Storage) GetFeePlan(_ context.Context, id uuid.UUID) (model.FeePlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plans[id]
	if !ok {
		return model.FeePlan{}, errs.ErrFeePlanNotFound
	}
	return p, nil
}

func (s *Storage) CreateOffer(_ context.Context, offer model.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[offer.SellerID]; !ok {
		return errs.ErrUserNotFound
	}
	s.offers[offer.ID] = offer
	return nil
}

func (s *Storage) GetOffer(_ context.Context, id uuid.UUID) (model.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.offers[id]
	if !ok {
		return model.Offer{}, errs.ErrOfferNotFound
	}
	return o, nil
}

// orders

func checkoutKey(offerID uuid.UUID, key string) string {
	return offerID.String() + "/" + key
}

func refKey(provider, ref string) string {
	return provider + "/" + ref
}

func (s *Storage) CreateOrder(_ context.Context, order model.Order) (model.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.CheckoutKey != "" {
		if id, ok := s.orderKeys[checkoutKey(order.OfferID, order.CheckoutKey)]; ok {
			return s.orders[id], false, nil
		}
	}
	if _, ok := s.orders[order.ID]; ok {
		return model.Order{}, false, errs.ErrOrderExists
	}

	s.orders[order.ID] = order
	if order.CheckoutKey != "" {
		s.orderKeys[checkoutKey(order.OfferID, order.CheckoutKey)] = order.ID
	}
	return order, true, nil
}

func (s *Storage) GetOrder(_ context.Context, id uuid.UUID) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return model.Order{}, errs.ErrOrderNotFound
	}
	return o, nil
}

func (s *Storage) GetOrderByProviderRef(_ context.Context, provider, ref string) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.refs[refKey(provider, ref)]
	if !ok {
		return model.Order{}, errs.ErrUnknownReference
	}
	return s.orders[id], nil
}

func (s *Storage) AttachIntent(_ context.Context, id uuid.UUID, provider, ref string, payload model.ProviderPayload) (model.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return model.Order{}, false, errs.ErrOrderNotFound
	}
	if o.ProviderRef != "" || o.Status != model.Pending {
		return o, false, nil
	}

	o.Provider = provider
	o.ProviderRef = ref
	o.Payload = payload
	s.orders[id] = o
	s.refs[refKey(provider, ref)] = id
	return o, true, nil
}

func (s *Storage) TransitionOrder(_ context.Context, id uuid.UUID, to model.OrderStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return false, errs.ErrOrderNotFound
	}
	if o.Status != model.Pending {
		return false, nil
	}

	o.Status = to
	switch to {
	case model.Paid:
		o.PaidAt = &at
	case model.Cancelled:
		o.CancelledAt = &at
	}
	s.orders[id] = o
	return true, nil
}

func (s *Storage) ListSellerOrders(_ context.Context, sellerID uuid.UUID) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Order
	for _, o := range s.orders {
		if o.SellerID == sellerID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Storage) ListPaidOrdersWithoutEntry(_ context.Context, limit int) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Order
	for _, o := range s.orders {
		if o.Status != model.Paid {
			continue
		}
		if _, ok := s.entryByOrder[o.ID]; ok {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaidAt.Before(*out[j].PaidAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// wallet

func (s *Storage) InsertWalletEntry(_ context.Context, entry model.WalletEntry) (model.WalletEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entryByOrder[entry.OrderID]; ok {
		return s.entries[id], false, nil
	}
	s.entries[entry.ID] = entry
	s.entryByOrder[entry.OrderID] = entry.ID
	return entry, true, nil
}

func (s *Storage) PromoteDueEntries(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, e := range s.entries {
		if e.Status != model.EntryPending || e.ReleaseAt.After(now) {
			continue
		}
		at := now
		e.Status = model.EntryAvailable
		e.ReleasedAt = &at
		s.entries[id] = e
		n++
	}
	return n, nil
}

func (s *Storage) GetBalance(_ context.Context, sellerID uuid.UUID) (model.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.balance(sellerID), nil
}

// balance must be called with mu held.
func (s *Storage) balance(sellerID uuid.UUID) model.Balance {
	b := model.Balance{Pending: decimal.Zero, Available: decimal.Zero, Reserved: decimal.Zero}
	for _, e := range s.entries {
		if e.SellerID != sellerID {
			continue
		}
		switch e.Status {
		case model.EntryPending:
			b.Pending = b.Pending.Add(e.Net)
		case model.EntryAvailable:
			b.Available = b.Available.Add(e.Net)
		}
	}
	for _, w := range s.withdrawals {
		if w.SellerID != sellerID {
			continue
		}
		switch w.Status {
		case model.WithdrawalApproved:
			b.Available = b.Available.Sub(w.Amount)
		case model.WithdrawalPending:
			b.Reserved = b.Reserved.Add(w.Amount)
		}
	}
	return b
}

func (s *Storage) ListWalletEntries(_ context.Context, sellerID uuid.UUID) ([]model.WalletEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.WalletEntry
	for _, e := range s.entries {
		if e.SellerID == sellerID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Storage) GetWalletEntryByOrder(_ context.Context, orderID uuid.UUID) (model.WalletEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entryByOrder[orderID]
	if !ok {
		return model.WalletEntry{}, errs.ErrEntryNotFound
	}
	return s.entries[id], nil
}

// withdrawals

func (s *Storage) CreateBankAccount(_ context.Context, account model.BankAccount) (model.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.ID] = account
	return account, nil
}

func (s *Storage) GetBankAccount(_ context.Context, id uuid.UUID) (model.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return model.BankAccount{}, errs.ErrBankAccountNotFound
	}
	return a, nil
}

func (s *Storage) ListBankAccounts(_ context.Context, sellerID uuid.UUID) ([]model.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.BankAccount
	for _, a := range s.accounts {
		if a.SellerID == sellerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Storage) CreateWithdrawal(_ context.Context, w model.Withdrawal) (model.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if withdrawable := s.balance(w.SellerID).Withdrawable(); w.Amount.GreaterThan(withdrawable) {
		return model.Withdrawal{}, &errs.InsufficientBalanceError{Available: withdrawable}
	}
	s.withdrawals[w.ID] = w
	return w, nil
}

func (s *Storage) DecideWithdrawal(_ context.Context, id uuid.UUID, d model.WithdrawalDecision) (model.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.withdrawals[id]
	if !ok {
		return model.Withdrawal{}, errs.ErrWithdrawalNotFound
	}
	if w.Status != model.WithdrawalPending {
		if w.Status == d.Status {
			return w, nil
		}
		return w, errs.ErrWithdrawalDecided
	}

	if d.Status == model.WithdrawalApproved {
		// w itself is part of Reserved.
		if limit := s.balance(w.SellerID).Withdrawable().Add(w.Amount); w.Amount.GreaterThan(limit) {
			return w, &errs.InsufficientBalanceError{Available: limit}
		}
	}

	at, by := d.DecidedAt, d.DecidedBy
	w.Status = d.Status
	w.DecidedAt = &at
	w.DecidedBy = &by
	w.RejectionReason = d.Reason
	w.ReceiptRef = d.ReceiptRef
	s.withdrawals[id] = w
	return w, nil
}

func (s *Storage) GetWithdrawal(_ context.Context, id uuid.UUID) (model.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.withdrawals[id]
	if !ok {
		return model.Withdrawal{}, errs.ErrWithdrawalNotFound
	}
	return w, nil
}

func (s *Storage) ListWithdrawals(_ context.Context, sellerID uuid.UUID) ([]model.Withdrawal, error) {
	return s.filterWithdrawals(func(w model.Withdrawal) bool { return w.SellerID == sellerID }), nil
}

func (s *Storage) ListWithdrawalsByStatus(_ context.Context, status model.WithdrawalStatus) ([]model.Withdrawal, error) {
	return s.filterWithdrawals(func(w model.Withdrawal) bool { return w.Status == status }), nil
}

func (s *Storage) filterWithdrawals(keep func(model.Withdrawal) bool) []model.Withdrawal {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Withdrawal
	for _, w := range s.withdrawals {
		if keep(w) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out
}

// webhook events

func (s *Storage) SaveWebhookEvent(_ context.Context, ev model.WebhookEvent) (model.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev.Payload = append([]byte(nil), ev.Payload...)
	s.events[ev.ID] = ev
	return ev, nil
}

func (s *Storage) MarkWebhookProcessed(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return errs.ErrMalformedEvent
	}
	ev.ProcessedAt = &at
	ev.Attempts++
	ev.LastError = ""
	s.events[id] = ev
	return nil
}

func (s *Storage) RecordWebhookFailure(_ context.Context, id uuid.UUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return errs.ErrMalformedEvent
	}
	ev.Attempts++
	ev.LastError = message
	s.events[id] = ev
	return nil
}

func (s *Storage) ListPendingWebhookEvents(_ context.Context, limit, maxAttempts int) ([]model.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.WebhookEvent
	for _, ev := range s.events {
		if ev.ProcessedAt != nil || (maxAttempts > 0 && ev.Attempts >= maxAttempts) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

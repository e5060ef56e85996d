package withdrawal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/model"
	"github.com/and161185/checkout/internal/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Storage interface {
	// CreateWithdrawal checks the seller's withdrawable balance and inserts w
	// as one atomic step, returning *errs.InsufficientBalanceError when the
	// balance does not cover it.
	CreateWithdrawal(ctx context.Context, w model.Withdrawal) (model.Withdrawal, error)
	// DecideWithdrawal applies d to a PENDING withdrawal. Approval re-checks
	// the balance under the same lock.
	DecideWithdrawal(ctx context.Context, id uuid.UUID, d model.WithdrawalDecision) (model.Withdrawal, error)
	GetWithdrawal(ctx context.Context, id uuid.UUID) (model.Withdrawal, error)
	ListWithdrawals(ctx context.Context, sellerID uuid.UUID) ([]model.Withdrawal, error)
	ListWithdrawalsByStatus(ctx context.Context, status model.WithdrawalStatus) ([]model.Withdrawal, error)

	CreateBankAccount(ctx context.Context, account model.BankAccount) (model.BankAccount, error)
	GetBankAccount(ctx context.Context, id uuid.UUID) (model.BankAccount, error)
	ListBankAccounts(ctx context.Context, sellerID uuid.UUID) ([]model.BankAccount, error)
}

type Workflow struct {
	storage Storage
	logger  *zap.SugaredLogger
	now     func() time.Time
}

func NewWorkflow(storage Storage, logger *zap.SugaredLogger) *Workflow {
	return &Workflow{storage: storage, logger: logger, now: time.Now}
}

func (wf *Workflow) Request(ctx context.Context, sellerID uuid.UUID, amount decimal.Decimal, bankAccountID uuid.UUID) (model.Withdrawal, error) {
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return model.Withdrawal{}, errs.ErrInvalidAmount
	}

	account, err := wf.storage.GetBankAccount(ctx, bankAccountID)
	if err != nil {
		return model.Withdrawal{}, err
	}
	if account.SellerID != sellerID {
		return model.Withdrawal{}, errs.ErrBankAccountNotFound
	}

	w, err := wf.storage.CreateWithdrawal(ctx, model.Withdrawal{
		ID:            uuid.New(),
		SellerID:      sellerID,
		BankAccountID: bankAccountID,
		Amount:        amount,
		Status:        model.WithdrawalPending,
		RequestedAt:   wf.now().UTC(),
	})
	if err != nil {
		return model.Withdrawal{}, err
	}

	wf.logger.Infow("withdrawal_requested",
		"withdrawal_id", w.ID,
		"seller_id", sellerID,
		"amount", amount.StringFixed(2),
	)
	return w, nil
}

func (wf *Workflow) Approve(ctx context.Context, actor model.Actor, id uuid.UUID, receiptRef string) (model.Withdrawal, error) {
	return wf.decide(ctx, actor, id, model.WithdrawalDecision{
		Status:     model.WithdrawalApproved,
		ReceiptRef: strings.TrimSpace(receiptRef),
	})
}

func (wf *Workflow) Reject(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) (model.Withdrawal, error) {
	return wf.decide(ctx, actor, id, model.WithdrawalDecision{
		Status: model.WithdrawalRejected,
		Reason: strings.TrimSpace(reason),
	})
}

func (wf *Workflow) decide(ctx context.Context, actor model.Actor, id uuid.UUID, d model.WithdrawalDecision) (model.Withdrawal, error) {
	if actor.Role != model.RoleAdmin {
		wf.logger.Warnw("withdrawal_decision_forbidden", "withdrawal_id", id, "user_id", actor.ID)
		return model.Withdrawal{}, errs.ErrForbidden
	}

	d.DecidedBy = actor.ID
	d.DecidedAt = wf.now().UTC()

	w, err := wf.storage.DecideWithdrawal(ctx, id, d)
	if err != nil {
		return w, err
	}

	wf.logger.Infow("withdrawal_decided",
		"withdrawal_id", w.ID,
		"seller_id", w.SellerID,
		"status", w.Status,
		"amount", w.Amount.StringFixed(2),
		"admin_id", actor.ID,
	)
	return w, nil
}

func (wf *Workflow) Get(ctx context.Context, id uuid.UUID) (model.Withdrawal, error) {
	return wf.storage.GetWithdrawal(ctx, id)
}

func (wf *Workflow) List(ctx context.Context, sellerID uuid.UUID) ([]model.Withdrawal, error) {
	return wf.storage.ListWithdrawals(ctx, sellerID)
}

func (wf *Workflow) ListByStatus(ctx context.Context, status model.WithdrawalStatus) ([]model.Withdrawal, error) {
	switch status {
	case model.WithdrawalPending, model.WithdrawalApproved, model.WithdrawalRejected:
	default:
		return nil, fmt.Errorf("unknown withdrawal status %q", status)
	}
	return wf.storage.ListWithdrawalsByStatus(ctx, status)
}

func (wf *Workflow) AddBankAccount(ctx context.Context, sellerID uuid.UUID, req model.BankAccountRequest) (model.BankAccount, error) {
	account := model.BankAccount{
		ID:             uuid.New(),
		SellerID:       sellerID,
		PayoutType:     req.PayoutType,
		PixKey:         strings.TrimSpace(req.PixKey),
		HolderName:     strings.TrimSpace(req.HolderName),
		HolderDocument: utils.OnlyDigits(req.HolderDocument),
		BankCode:       utils.OnlyDigits(req.BankCode),
		Branch:         utils.OnlyDigits(req.Branch),
		AccountNumber:  strings.TrimSpace(req.AccountNumber),
		CreatedAt:      wf.now().UTC(),
	}

	if account.HolderName == "" || !utils.IsValidDocument(account.HolderDocument) {
		return model.BankAccount{}, errs.ErrInvalidBankAccount
	}
	switch account.PayoutType {
	case model.PayoutPixKey:
		if account.PixKey == "" {
			return model.BankAccount{}, errs.ErrInvalidBankAccount
		}
		account.BankCode, account.Branch, account.AccountNumber = "", "", ""
	case model.PayoutBankAccount:
		if account.BankCode == "" || account.Branch == "" || account.AccountNumber == "" {
			return model.BankAccount{}, errs.ErrInvalidBankAccount
		}
		account.PixKey = ""
	default:
		return model.BankAccount{}, errs.ErrInvalidBankAccount
	}

	stored, err := wf.storage.CreateBankAccount(ctx, account)
	if err != nil {
		return model.BankAccount{}, fmt.Errorf("create bank account: %w", err)
	}
	wf.logger.Infow("bank_account_added", "seller_id", sellerID, "bank_account_id", stored.ID, "payout_type", stored.PayoutType)
	return stored, nil
}

func (wf *Workflow) BankAccounts(ctx context.Context, sellerID uuid.UUID) ([]model.BankAccount, error) {
	return wf.storage.ListBankAccounts(ctx, sellerID)
}

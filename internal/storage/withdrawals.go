package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const withdrawalColumns = `id, seller_id, bank_account_id, amount, status, requested_at, decided_at, decided_by,
	rejection_reason, receipt_ref`

func scanWithdrawal(row pgx.Row) (model.Withdrawal, error) {
	var w model.Withdrawal
	err := row.Scan(&w.ID, &w.SellerID, &w.BankAccountID, &w.Amount, &w.Status, &w.RequestedAt, &w.DecidedAt, &w.DecidedBy,
		&w.RejectionReason, &w.ReceiptRef)
	return w, err
}

// lockSeller serializes balance-changing operations of one seller.
func lockSeller(ctx context.Context, tx pgx.Tx, sellerID uuid.UUID) error {
	const query = `SELECT id FROM users WHERE id = $1 FOR UPDATE`

	var id uuid.UUID
	if err := tx.QueryRow(ctx, query, sellerID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrUserNotFound
		}
		return fmt.Errorf("lock seller: %w", err)
	}
	return nil
}

func (s *PostgresStorage) CreateWithdrawal(ctx context.Context, w model.Withdrawal) (model.Withdrawal, error) {
	const insertWithdrawalQuery = `
		INSERT INTO withdrawals (id, seller_id, bank_account_id, amount, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return model.Withdrawal{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockSeller(ctx, tx, w.SellerID); err != nil {
		return model.Withdrawal{}, err
	}

	b, err := balance(ctx, tx, w.SellerID)
	if err != nil {
		return model.Withdrawal{}, err
	}
	if withdrawable := b.Withdrawable(); w.Amount.GreaterThan(withdrawable) {
		return model.Withdrawal{}, &errs.InsufficientBalanceError{Available: withdrawable}
	}

	_, err = tx.Exec(ctx, insertWithdrawalQuery, w.ID, w.SellerID, w.BankAccountID, w.Amount.String(), string(w.Status), w.RequestedAt)
	if err != nil {
		return model.Withdrawal{}, fmt.Errorf("insert withdrawal: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Withdrawal{}, fmt.Errorf("commit: %w", err)
	}
	return w, nil
}

func (s *PostgresStorage) DecideWithdrawal(ctx context.Context, id uuid.UUID, d model.WithdrawalDecision) (model.Withdrawal, error) {
	const sellerQuery = `SELECT seller_id FROM withdrawals WHERE id = $1`
	const lockQuery = `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1 FOR UPDATE`
	const updateQuery = `
		UPDATE withdrawals
		SET status = $2, decided_at = $3, decided_by = $4, rejection_reason = $5, receipt_ref = $6
		WHERE id = $1
		RETURNING ` + withdrawalColumns

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return model.Withdrawal{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// продавца блокируем раньше заявки, как и при создании
	var sellerID uuid.UUID
	if err := tx.QueryRow(ctx, sellerQuery, id).Scan(&sellerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Withdrawal{}, errs.ErrWithdrawalNotFound
		}
		return model.Withdrawal{}, fmt.Errorf("get withdrawal: %w", err)
	}
	if err := lockSeller(ctx, tx, sellerID); err != nil {
		return model.Withdrawal{}, err
	}

	w, err := scanWithdrawal(tx.QueryRow(ctx, lockQuery, id))
	if err != nil {
		return model.Withdrawal{}, fmt.Errorf("lock withdrawal: %w", err)
	}
	if w.Status != model.WithdrawalPending {
		if w.Status == d.Status {
			return w, nil
		}
		return w, errs.ErrWithdrawalDecided
	}

	if d.Status == model.WithdrawalApproved {
		b, err := balance(ctx, tx, sellerID)
		if err != nil {
			return w, err
		}
		if limit := b.Withdrawable().Add(w.Amount); w.Amount.GreaterThan(limit) {
			return w, &errs.InsufficientBalanceError{Available: limit}
		}
	}

	w, err = scanWithdrawal(tx.QueryRow(ctx, updateQuery, id, string(d.Status), d.DecidedAt, d.DecidedBy, d.Reason, d.ReceiptRef))
	if err != nil {
		return model.Withdrawal{}, fmt.Errorf("update withdrawal: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Withdrawal{}, fmt.Errorf("commit: %w", err)
	}
	return w, nil
}

func (s *PostgresStorage) GetWithdrawal(ctx context.Context, id uuid.UUID) (model.Withdrawal, error) {
	const query = `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1`

	w, err := scanWithdrawal(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Withdrawal{}, errs.ErrWithdrawalNotFound
		}
		return model.Withdrawal{}, fmt.Errorf("get withdrawal: %w", err)
	}
	return w, nil
}

func (s *PostgresStorage) queryWithdrawals(ctx context.Context, query string, arg any) ([]model.Withdrawal, error) {
	rows, err := s.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("get withdrawals: %w", err)
	}
	defer rows.Close()

	var list []model.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan withdrawal: %w", err)
		}
		list = append(list, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return list, nil
}

func (s *PostgresStorage) ListWithdrawals(ctx context.Context, sellerID uuid.UUID) ([]model.Withdrawal, error) {
	const query = `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE seller_id = $1 ORDER BY requested_at ASC`
	return s.queryWithdrawals(ctx, query, sellerID)
}

func (s *PostgresStorage) ListWithdrawalsByStatus(ctx context.Context, status model.WithdrawalStatus) ([]model.Withdrawal, error) {
	const query = `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE status = $1 ORDER BY requested_at ASC`
	return s.queryWithdrawals(ctx, query, string(status))
}

const bankAccountColumns = `id, seller_id, payout_type, pix_key, holder_name, holder_document, bank_code, branch,
	account_number, created_at`

func scanBankAccount(row pgx.Row) (model.BankAccount, error) {
	var a model.BankAccount
	err := row.Scan(&a.ID, &a.SellerID, &a.PayoutType, &a.PixKey, &a.HolderName, &a.HolderDocument, &a.BankCode, &a.Branch,
		&a.AccountNumber, &a.CreatedAt)
	return a, err
}

func (s *PostgresStorage) CreateBankAccount(ctx context.Context, a model.BankAccount) (model.BankAccount, error) {
	const query = `
		INSERT INTO bank_accounts (id, seller_id, payout_type, pix_key, holder_name, holder_document, bank_code, branch, account_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.Exec(ctx, query, a.ID, a.SellerID, string(a.PayoutType), a.PixKey, a.HolderName, a.HolderDocument,
		a.BankCode, a.Branch, a.AccountNumber, a.CreatedAt)
	if err != nil {
		return model.BankAccount{}, fmt.Errorf("insert bank account: %w", err)
	}
	return a, nil
}

func (s *PostgresStorage) GetBankAccount(ctx context.Context, id uuid.UUID) (model.BankAccount, error) {
	const query = `SELECT ` + bankAccountColumns + ` FROM bank_accounts WHERE id = $1`

	a, err := scanBankAccount(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.BankAccount{}, errs.ErrBankAccountNotFound
		}
		return model.BankAccount{}, fmt.Errorf("get bank account: %w", err)
	}
	return a, nil
}

func (s *PostgresStorage) ListBankAccounts(ctx context.Context, sellerID uuid.UUID) ([]model.BankAccount, error) {
	const query = `SELECT ` + bankAccountColumns + ` FROM bank_accounts WHERE seller_id = $1 ORDER BY created_at ASC`

	rows, err := s.db.Query(ctx, query, sellerID)
	if err != nil {
		return nil, fmt.Errorf("get bank accounts: %w", err)
	}
	defer rows.Close()

	var list []model.BankAccount
	for rows.Next() {
		a, err := scanBankAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bank account: %w", err)
		}
		list = append(list, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return list, nil
}

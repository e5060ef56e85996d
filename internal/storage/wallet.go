package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const entryColumns = `id, seller_id, order_id, method, gross, fee, net, fee_percentual, fee_fixed,
	status, release_at, created_at, released_at`

func scanEntry(row pgx.Row) (model.WalletEntry, error) {
	var e model.WalletEntry
	err := row.Scan(&e.ID, &e.SellerID, &e.OrderID, &e.Method, &e.Gross, &e.Fee, &e.Net, &e.FeePercentual, &e.FeeFixed,
		&e.Status, &e.ReleaseAt, &e.CreatedAt, &e.ReleasedAt)
	return e, err
}

func (s *PostgresStorage) InsertWalletEntry(ctx context.Context, entry model.WalletEntry) (model.WalletEntry, bool, error) {
	const query = `
		INSERT INTO wallet_entries (id, seller_id, order_id, method, gross, fee, net, fee_percentual, fee_fixed, status, release_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (order_id) DO NOTHING`

	tag, err := s.db.Exec(ctx, query,
		entry.ID, entry.SellerID, entry.OrderID, string(entry.Method),
		entry.Gross.String(), entry.Fee.String(), entry.Net.String(),
		entry.FeePercentual.String(), entry.FeeFixed.String(),
		string(entry.Status), entry.ReleaseAt, entry.CreatedAt,
	)
	if err != nil {
		return model.WalletEntry{}, false, fmt.Errorf("insert wallet entry: %w", err)
	}

	if tag.RowsAffected() == 0 {
		existing, err := s.GetWalletEntryByOrder(ctx, entry.OrderID)
		if err != nil {
			return model.WalletEntry{}, false, err
		}
		return existing, false, nil
	}
	return entry, true, nil
}

func (s *PostgresStorage) PromoteDueEntries(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE wallet_entries
		SET status = 'AVAILABLE', released_at = $1
		WHERE status = 'PENDING' AND release_at <= $1`

	tag, err := s.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("promote wallet entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func balance(ctx context.Context, q querier, sellerID uuid.UUID) (model.Balance, error) {
	const query = `
		SELECT
			(SELECT COALESCE(SUM(net), 0) FROM wallet_entries WHERE seller_id = $1 AND status = 'PENDING'),
			(SELECT COALESCE(SUM(net), 0) FROM wallet_entries WHERE seller_id = $1 AND status = 'AVAILABLE')
				- (SELECT COALESCE(SUM(amount), 0) FROM withdrawals WHERE seller_id = $1 AND status = 'APPROVED'),
			(SELECT COALESCE(SUM(amount), 0) FROM withdrawals WHERE seller_id = $1 AND status = 'PENDING')`

	var b model.Balance
	if err := q.QueryRow(ctx, query, sellerID).Scan(&b.Pending, &b.Available, &b.Reserved); err != nil {
		return model.Balance{}, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

func (s *PostgresStorage) GetBalance(ctx context.Context, sellerID uuid.UUID) (model.Balance, error) {
	return balance(ctx, s.db, sellerID)
}

func (s *PostgresStorage) ListWalletEntries(ctx context.Context, sellerID uuid.UUID) ([]model.WalletEntry, error) {
	const query = `SELECT ` + entryColumns + ` FROM wallet_entries WHERE seller_id = $1 ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, sellerID)
	if err != nil {
		return nil, fmt.Errorf("get wallet entries: %w", err)
	}
	defer rows.Close()

	var list []model.WalletEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet entry: %w", err)
		}
		list = append(list, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return list, nil
}

func (s *PostgresStorage) GetWalletEntryByOrder(ctx context.Context, orderID uuid.UUID) (model.WalletEntry, error) {
	const query = `SELECT ` + entryColumns + ` FROM wallet_entries WHERE order_id = $1`

	e, err := scanEntry(s.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.WalletEntry{}, errs.ErrEntryNotFound
		}
		return model.WalletEntry{}, fmt.Errorf("get wallet entry: %w", err)
	}
	return e, nil
}

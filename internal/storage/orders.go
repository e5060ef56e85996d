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

const orderColumns = `id, offer_id, seller_id, fee_plan_id, COALESCE(checkout_key, ''), gross, method, status,
	provider, provider_ref, payload, buyer, address, description, created_at, paid_at, cancelled_at`

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	err := row.Scan(&o.ID, &o.OfferID, &o.SellerID, &o.FeePlanID, &o.CheckoutKey, &o.Gross, &o.Method, &o.Status,
		&o.Provider, &o.ProviderRef, &o.Payload, &o.Buyer, &o.Address, &o.Description, &o.CreatedAt, &o.PaidAt, &o.CancelledAt)
	return o, err
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	defer rows.Close()

	var list []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		list = append(list, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return list, nil
}

func (s *PostgresStorage) CreateOrder(ctx context.Context, order model.Order) (model.Order, bool, error) {
	const query = `
		INSERT INTO orders (id, offer_id, seller_id, fee_plan_id, checkout_key, gross, method, status, buyer, address, description, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (offer_id, checkout_key) WHERE checkout_key IS NOT NULL DO NOTHING`

	const byKeyQuery = `SELECT ` + orderColumns + ` FROM orders WHERE offer_id = $1 AND checkout_key = $2`

	tag, err := s.db.Exec(ctx, query,
		order.ID, order.OfferID, order.SellerID, order.FeePlanID, order.CheckoutKey,
		order.Gross.String(), string(order.Method), string(order.Status),
		order.Buyer, order.Address, order.Description, order.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Order{}, false, errs.ErrOrderExists
		}
		return model.Order{}, false, fmt.Errorf("insert order: %w", err)
	}

	// ключ уже использован: отдаём существующий заказ
	if tag.RowsAffected() == 0 {
		existing, err := scanOrder(s.db.QueryRow(ctx, byKeyQuery, order.OfferID, order.CheckoutKey))
		if err != nil {
			return model.Order{}, false, fmt.Errorf("select order by checkout key: %w", err)
		}
		return existing, false, nil
	}

	return order, true, nil
}

func (s *PostgresStorage) GetOrder(ctx context.Context, id uuid.UUID) (model.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, errs.ErrOrderNotFound
		}
		return model.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (s *PostgresStorage) GetOrderByProviderRef(ctx context.Context, provider, ref string) (model.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE provider = $1 AND provider_ref = $2`

	if ref == "" {
		return model.Order{}, errs.ErrUnknownReference
	}

	o, err := scanOrder(s.db.QueryRow(ctx, query, provider, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, errs.ErrUnknownReference
		}
		return model.Order{}, fmt.Errorf("get order by provider ref: %w", err)
	}
	return o, nil
}

func (s *PostgresStorage) AttachIntent(ctx context.Context, id uuid.UUID, provider, ref string, payload model.ProviderPayload) (model.Order, bool, error) {
	const query = `
		UPDATE orders
		SET provider = $2, provider_ref = $3, payload = $4
		WHERE id = $1 AND status = 'PENDING' AND provider_ref = ''
		RETURNING ` + orderColumns

	o, err := scanOrder(s.db.QueryRow(ctx, query, id, provider, ref, payload))
	if err == nil {
		return o, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, false, fmt.Errorf("attach intent: %w", err)
	}

	o, err = s.GetOrder(ctx, id)
	if err != nil {
		return model.Order{}, false, err
	}
	return o, false, nil
}

func (s *PostgresStorage) TransitionOrder(ctx context.Context, id uuid.UUID, status model.OrderStatus, at time.Time) (bool, error) {
	const query = `
		UPDATE orders
		SET status = $2,
			paid_at = CASE WHEN $2 = 'PAID' THEN $3::timestamptz ELSE paid_at END,
			cancelled_at = CASE WHEN $2 = 'CANCELLED' THEN $3::timestamptz ELSE cancelled_at END
		WHERE id = $1 AND status = 'PENDING'`

	const existsQuery = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	tag, err := s.db.Exec(ctx, query, id, string(status), at)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx, existsQuery, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check order: %w", err)
	}
	if !exists {
		return false, errs.ErrOrderNotFound
	}
	return false, nil
}

func (s *PostgresStorage) ListSellerOrders(ctx context.Context, sellerID uuid.UUID) ([]model.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE seller_id = $1 ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, sellerID)
	if err != nil {
		return nil, fmt.Errorf("get seller orders: %w", err)
	}
	return collectOrders(rows)
}

func (s *PostgresStorage) ListPaidOrdersWithoutEntry(ctx context.Context, limit int) ([]model.Order, error) {
	const query = `
		SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.status = 'PAID'
			AND NOT EXISTS (SELECT 1 FROM wallet_entries w WHERE w.order_id = o.id)
		ORDER BY o.paid_at ASC
		LIMIT $1`

	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get paid orders without entry: %w", err)
	}
	return collectOrders(rows)
}

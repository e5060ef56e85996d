package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/checkout/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Storage interface {
	// InsertWalletEntry stores entry unless one exists for the same order, in
	// which case the existing entry is returned with created=false.
	InsertWalletEntry(ctx context.Context, entry model.WalletEntry) (model.WalletEntry, bool, error)
	// PromoteDueEntries moves every PENDING entry with release_at <= now to
	// AVAILABLE in one conditional write and reports how many moved.
	PromoteDueEntries(ctx context.Context, now time.Time) (int64, error)
	GetBalance(ctx context.Context, sellerID uuid.UUID) (model.Balance, error)
	ListWalletEntries(ctx context.Context, sellerID uuid.UUID) ([]model.WalletEntry, error)
	GetWalletEntryByOrder(ctx context.Context, orderID uuid.UUID) (model.WalletEntry, error)
}

type Ledger struct {
	storage Storage
	logger  *zap.SugaredLogger
	now     func() time.Time
}

func NewLedger(storage Storage, logger *zap.SugaredLogger) *Ledger {
	return &Ledger{storage: storage, logger: logger, now: time.Now}
}

func (l *Ledger) CreditPending(ctx context.Context, order model.Order, b model.FeeBreakdown, releaseAt time.Time) (model.WalletEntry, bool, error) {
	entry := model.WalletEntry{
		ID:            uuid.New(),
		SellerID:      order.SellerID,
		OrderID:       order.ID,
		Method:        order.Method,
		Gross:         b.Gross,
		Fee:           b.Fee,
		Net:           b.Net,
		FeePercentual: b.Percentual,
		FeeFixed:      b.Fixed,
		Status:        model.EntryPending,
		ReleaseAt:     releaseAt.UTC(),
		CreatedAt:     l.now().UTC(),
	}

	stored, created, err := l.storage.InsertWalletEntry(ctx, entry)
	if err != nil {
		return model.WalletEntry{}, false, fmt.Errorf("credit order %s: %w", order.ID, err)
	}

	if created {
		l.logger.Infow("wallet_credited",
			"seller_id", order.SellerID,
			"order_id", order.ID,
			"net", stored.Net.StringFixed(2),
			"release_at", stored.ReleaseAt,
		)
	} else {
		l.logger.Debugw("wallet_credit_exists", "order_id", order.ID, "entry_id", stored.ID)
	}
	return stored, created, nil
}

// PromoteDue releases everything due at now. Running it again with the same
// now changes nothing.
func (l *Ledger) PromoteDue(ctx context.Context, now time.Time) (int64, error) {
	n, err := l.storage.PromoteDueEntries(ctx, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("promote due entries: %w", err)
	}
	if n > 0 {
		l.logger.Infow("wallet_entries_released", "count", n, "at", now.UTC())
	}
	return n, nil
}

func (l *Ledger) Balance(ctx context.Context, sellerID uuid.UUID) (model.Balance, error) {
	return l.storage.GetBalance(ctx, sellerID)
}

func (l *Ledger) Entries(ctx context.Context, sellerID uuid.UUID) ([]model.WalletEntry, error) {
	return l.storage.ListWalletEntries(ctx, sellerID)
}

func (l *Ledger) EntryForOrder(ctx context.Context, orderID uuid.UUID) (model.WalletEntry, error) {
	return l.storage.GetWalletEntryByOrder(ctx, orderID)
}

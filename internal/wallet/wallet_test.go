package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/model"
	"github.com/and161185/checkout/internal/storage/memory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func paidOrder(seller uuid.UUID, method model.Method) model.Order {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return model.Order{
		ID:       uuid.New(),
		SellerID: seller,
		Method:   method,
		Status:   model.Paid,
		Gross:    decimal.RequireFromString("100.00"),
		PaidAt:   &at,
	}
}

func breakdown(gross, fee string) model.FeeBreakdown {
	g, f := decimal.RequireFromString(gross), decimal.RequireFromString(fee)
	return model.FeeBreakdown{Gross: g, Fee: f, Net: g.Sub(f), Percentual: decimal.Zero, Fixed: f}
}

func TestCreditPendingOncePerOrder(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(memory.New(), zaptest.NewLogger(t).Sugar())

	seller := uuid.New()
	order := paidOrder(seller, model.MethodPix)
	releaseAt := order.PaidAt.Add(72 * time.Hour)

	first, created, err := l.CreditPending(ctx, order, breakdown("100.00", "3.99"), releaseAt)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, model.EntryPending, first.Status)
	require.True(t, first.Net.Equal(decimal.RequireFromString("96.01")))

	second, created, err := l.CreditPending(ctx, order, breakdown("100.00", "0"), releaseAt)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
	require.True(t, second.Net.Equal(first.Net))

	entries, err := l.Entries(ctx, seller)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	b, err := l.Balance(ctx, seller)
	require.NoError(t, err)
	require.True(t, b.Pending.Equal(decimal.RequireFromString("96.01")))
	require.True(t, b.Available.IsZero())
}

func TestPromoteDueReleasesOnSchedule(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(memory.New(), zaptest.NewLogger(t).Sugar())

	seller := uuid.New()
	order := paidOrder(seller, model.MethodCard)
	releaseAt := order.PaidAt.Add(72 * time.Hour)

	_, _, err := l.CreditPending(ctx, order, breakdown("100.00", "5.00"), releaseAt)
	require.NoError(t, err)

	n, err := l.PromoteDue(ctx, order.PaidAt.Add(48*time.Hour))
	require.NoError(t, err)
	require.Zero(t, n)

	b, err := l.Balance(ctx, seller)
	require.NoError(t, err)
	require.True(t, b.Pending.Equal(decimal.RequireFromString("95")))
	require.True(t, b.Available.IsZero())

	n, err = l.PromoteDue(ctx, releaseAt)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = l.PromoteDue(ctx, releaseAt)
	require.NoError(t, err)
	require.Zero(t, n)

	b, err = l.Balance(ctx, seller)
	require.NoError(t, err)
	require.True(t, b.Pending.IsZero())
	require.True(t, b.Available.Equal(decimal.RequireFromString("95")))

	entry, err := l.EntryForOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.EntryAvailable, entry.Status)
	require.NotNil(t, entry.ReleasedAt)
}

func TestEntryForOrderMissing(t *testing.T) {
	l := NewLedger(memory.New(), zaptest.NewLogger(t).Sugar())

	_, err := l.EntryForOrder(context.Background(), uuid.New())
	require.ErrorIs(t, err, errs.ErrEntryNotFound)
}

func TestBalancesAreIsolatedPerSeller(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(memory.New(), zaptest.NewLogger(t).Sugar())

	a, b := uuid.New(), uuid.New()
	oa := paidOrder(a, model.MethodPix)
	_, _, err := l.CreditPending(ctx, oa, breakdown("100.00", "1.00"), *oa.PaidAt)
	require.NoError(t, err)

	bal, err := l.Balance(ctx, b)
	require.NoError(t, err)
	require.True(t, bal.Pending.IsZero())
	require.True(t, bal.Available.IsZero())
}

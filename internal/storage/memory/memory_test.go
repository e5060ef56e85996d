package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestUsersCaseInsensitiveLogin(t *testing.T) {
	s := New()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "Loja", "hash", model.RoleSeller)
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, "loja", "other", model.RoleSeller)
	require.ErrorIs(t, err, errs.ErrLoginAlreadyExists)

	got, hash, err := s.GetUserByLogin(ctx, "LOJA")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, "hash", hash)
}

func TestCreateOrderCheckoutKey(t *testing.T) {
	s := New()
	ctx := context.Background()
	offerID := uuid.New()

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, _, err := s.CreateOrder(ctx, model.Order{ID: uuid.New(), OfferID: offerID, CheckoutKey: "k", Status: model.Pending})
			if err == nil {
				ids[i] = o.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}

	// без ключа заказы не склеиваются
	_, created, err := s.CreateOrder(ctx, model.Order{ID: uuid.New(), OfferID: offerID, Status: model.Pending})
	require.NoError(t, err)
	require.True(t, created)
}

func TestPromoteDueEntriesIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	seller := uuid.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, release := range []time.Time{now.Add(-time.Hour), now, now.Add(time.Hour)} {
		_, created, err := s.InsertWalletEntry(ctx, model.WalletEntry{
			ID: uuid.New(), SellerID: seller, OrderID: uuid.New(), Net: decimal.RequireFromString("10"),
			Status: model.EntryPending, ReleaseAt: release,
		})
		require.NoError(t, err)
		require.True(t, created)
	}

	n, err := s.PromoteDueEntries(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = s.PromoteDueEntries(ctx, now)
	require.NoError(t, err)
	require.Zero(t, n)

	b, err := s.GetBalance(ctx, seller)
	require.NoError(t, err)
	require.True(t, b.Available.Equal(decimal.RequireFromString("20")))
	require.True(t, b.Pending.Equal(decimal.RequireFromString("10")))
}

func TestWebhookEventAttempts(t *testing.T) {
	s := New()
	ctx := context.Background()

	ev, err := s.SaveWebhookEvent(ctx, model.WebhookEvent{ID: uuid.New(), Provider: "efi", ReceivedAt: time.Now()})
	require.NoError(t, err)

	require.NoError(t, s.RecordWebhookFailure(ctx, ev.ID, "boom"))
	require.NoError(t, s.RecordWebhookFailure(ctx, ev.ID, "boom"))

	pending, err := s.ListPendingWebhookEvents(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 2, pending[0].Attempts)

	pending, err = s.ListPendingWebhookEvents(ctx, 10, 2)
	require.NoError(t, err)
	require.Empty(t, pending)

	require.NoError(t, s.MarkWebhookProcessed(ctx, ev.ID, time.Now()))
	pending, err = s.ListPendingWebhookEvents(ctx, 10, 0)
	require.NoError(t, err)
	require.Empty(t, pending)

	require.ErrorIs(t, s.RecordWebhookFailure(ctx, uuid.New(), "x"), errs.ErrMalformedEvent)
}

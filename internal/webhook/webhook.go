package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/gateway"
	"github.com/and161185/checkout/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const MaxAttempts = 10

type Storage interface {
	SaveWebhookEvent(ctx context.Context, ev model.WebhookEvent) (model.WebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordWebhookFailure(ctx context.Context, id uuid.UUID, message string) error
	ListPendingWebhookEvents(ctx context.Context, limit, maxAttempts int) ([]model.WebhookEvent, error)
}

type Sources interface {
	Source(provider string) (gateway.EventSource, error)
}

type Orders interface {
	FindByProviderRef(ctx context.Context, provider, ref string) (model.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (model.Order, error)
	AttachReference(ctx context.Context, orderID uuid.UUID, provider, ref string) (model.Order, error)
	Complete(ctx context.Context, orderID uuid.UUID, status model.OrderStatus) (bool, error)
}

type Reconciler struct {
	storage Storage
	sources Sources
	orders  Orders
	logger  *zap.SugaredLogger
	now     func() time.Time
}

func NewReconciler(storage Storage, sources Sources, orders Orders, logger *zap.SugaredLogger) *Reconciler {
	return &Reconciler{storage: storage, sources: sources, orders: orders, logger: logger, now: time.Now}
}

func (r *Reconciler) Accept(ctx context.Context, provider string, n gateway.Notification) (model.WebhookEvent, error) {
	source, err := r.sources.Source(provider)
	if err != nil {
		r.logger.Warnw("webhook_unknown_provider", "provider", provider, "remote_addr", n.RemoteAddr)
		return model.WebhookEvent{}, errs.ErrUnknownProvider
	}

	if err := source.Authenticate(n); err != nil {
		r.logger.Warnw("webhook_rejected",
			"provider", provider,
			"remote_addr", n.RemoteAddr,
			"error", err,
		)
		return model.WebhookEvent{}, errs.ErrUnauthenticEvent
	}

	ev, err := r.storage.SaveWebhookEvent(ctx, model.WebhookEvent{
		ID:         uuid.New(),
		Provider:   provider,
		Payload:    n.Body,
		ReceivedAt: r.now().UTC(),
	})
	if err != nil {
		return model.WebhookEvent{}, fmt.Errorf("save webhook event: %w", err)
	}
	r.logger.Debugw("webhook_accepted", "provider", provider, "event_id", ev.ID)
	return ev, nil
}

// Apply parses body and moves every referenced order accordingly. Events for
// references this service never issued are logged and skipped.
func (r *Reconciler) Apply(ctx context.Context, provider string, body []byte) error {
	source, err := r.sources.Source(provider)
	if err != nil {
		return errs.ErrUnknownProvider
	}

	events, err := source.ParseEvent(ctx, body)
	if err != nil {
		return fmt.Errorf("parse %s event: %w", provider, err)
	}

	for _, ev := range events {
		if err := r.applyOne(ctx, provider, ev); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) applyOne(ctx context.Context, provider string, ev gateway.Event) error {
	var status model.OrderStatus
	switch ev.Status {
	case gateway.EventPaid:
		status = model.Paid
	case gateway.EventCancelled:
		status = model.Cancelled
	default:
		r.logger.Debugw("webhook_status_ignored", "provider", provider, "provider_ref", ev.ProviderRef, "raw_status", ev.RawStatus)
		return nil
	}

	order, err := r.orders.FindByProviderRef(ctx, provider, ev.ProviderRef)
	if errors.Is(err, errs.ErrUnknownReference) {
		order, err = r.byExternalReference(ctx, provider, ev)
	}
	if errors.Is(err, errs.ErrUnknownReference) {
		r.logger.Warnw("webhook_unknown_reference",
			"provider", provider,
			"provider_ref", ev.ProviderRef,
			"external_reference", ev.ExternalReference,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("find order by %s/%s: %w", provider, ev.ProviderRef, err)
	}

	won, err := r.orders.Complete(ctx, order.ID, status)
	if err != nil {
		return err
	}
	if !won {
		r.logger.Debugw("webhook_duplicate", "order_id", order.ID, "status", status)
	}
	return nil
}

// byExternalReference finds the order when the answer to payment creation
// was lost and the reference never got stored.
func (r *Reconciler) byExternalReference(ctx context.Context, provider string, ev gateway.Event) (model.Order, error) {
	id, err := uuid.Parse(ev.ExternalReference)
	if err != nil {
		return model.Order{}, errs.ErrUnknownReference
	}

	order, err := r.orders.Get(ctx, id)
	if errors.Is(err, errs.ErrOrderNotFound) {
		return model.Order{}, errs.ErrUnknownReference
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("get order %s: %w", id, err)
	}

	if order.ProviderRef == "" {
		order, err = r.orders.AttachReference(ctx, order.ID, provider, ev.ProviderRef)
		if err != nil {
			return model.Order{}, err
		}
	}
	// заказ уже привязан к другому платежу
	if order.Provider != provider || order.ProviderRef != ev.ProviderRef {
		r.logger.Warnw("webhook_reference_mismatch",
			"order_id", order.ID,
			"provider", provider,
			"provider_ref", ev.ProviderRef,
			"order_provider", order.Provider,
			"order_provider_ref", order.ProviderRef,
		)
		return model.Order{}, errs.ErrUnknownReference
	}

	r.logger.Infow("webhook_reference_recovered", "order_id", order.ID, "provider", provider, "provider_ref", ev.ProviderRef)
	return order, nil
}

func (r *Reconciler) Process(ctx context.Context, ev model.WebhookEvent) error {
	if err := r.Apply(ctx, ev.Provider, ev.Payload); err != nil {
		r.logger.Errorw("webhook_apply_failed",
			"event_id", ev.ID,
			"provider", ev.Provider,
			"attempt", ev.Attempts+1,
			"error", err,
		)
		if recErr := r.storage.RecordWebhookFailure(ctx, ev.ID, err.Error()); recErr != nil {
			r.logger.Errorw("webhook_record_failure_failed", "event_id", ev.ID, "error", recErr)
		}
		return err
	}
	return r.storage.MarkWebhookProcessed(ctx, ev.ID, r.now().UTC())
}

func (r *Reconciler) Pending(ctx context.Context, limit int) ([]model.WebhookEvent, error) {
	return r.storage.ListPendingWebhookEvents(ctx, limit, MaxAttempts)
}

func (r *Reconciler) Redeliver(ctx context.Context, limit int) (int, error) {
	events, err := r.Pending(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending webhook events: %w", err)
	}

	n := 0
	for _, ev := range events {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if err := r.Process(ctx, ev); err == nil {
			n++
		}
	}
	return n, nil
}

package server

import (
	"context"
	"time"

	"github.com/and161185/checkout/internal/model"
)

const (
	redeliveryBatch     = 100
	webhookApplyTimeout = time.Minute
)

// applyAccepted runs after the provider already got its 200. A failure stays
// on the stored event and WebhookRedelivery picks it up.
func (srv *Server) applyAccepted(ctx context.Context, ev model.WebhookEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), webhookApplyTimeout)
	defer cancel()

	if err := srv.services.Webhooks.Process(ctx, ev); err != nil {
		srv.deps.Logger.Warnw("webhook_deferred", "provider", ev.Provider, "event_id", ev.ID, "error", err)
	}
}

func (srv *Server) WebhookRedelivery(ctx context.Context) {
	workerCount := 5

	ch := make(chan model.WebhookEvent, 10*workerCount)
	for i := 0; i < workerCount; i++ {
		go srv.ProcessEvents(ctx, ch)
	}

	srv.PollEvents(ctx, ch)
}

func (srv *Server) PollEvents(ctx context.Context, ch chan model.WebhookEvent) {
	interval := srv.config.WebhookRetryInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			events, err := srv.services.Webhooks.Pending(ctx, redeliveryBatch)
			if err != nil {
				srv.deps.Logger.Errorf("pending webhook events: %v", err)
				continue
			}
			skipped := 0
			for _, ev := range events {
				select {
				case ch <- ev:

				default:
					skipped++
					if skipped%10 == 0 {
						srv.deps.Logger.Warnf("channel full, skipped %d events", skipped)
					}
				}
			}
		}
	}
}

func (srv *Server) ProcessEvents(ctx context.Context, ch chan model.WebhookEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			// ошибка уже записана в событие, следующий проход повторит
			if err := srv.services.Webhooks.Process(ctx, ev); err != nil {
				srv.deps.Logger.Debugw("webhook_redelivery_failed", "event_id", ev.ID, "attempts", ev.Attempts+1, "error", err)
			}
		}
	}
}

package server

import (
	"context"
	"time"
)

const backfillBatch = 500

func (srv *Server) ReleaseSweep(ctx context.Context) {
	interval := srv.config.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			srv.Sweep(ctx, time.Now())
		}
	}
}

func (srv *Server) Sweep(ctx context.Context, now time.Time) {
	booked, err := srv.services.Orders.Backfill(ctx, backfillBatch)
	if err != nil {
		srv.deps.Logger.Errorw("wallet_backfill_failed", "error", err)
	} else if booked > 0 {
		srv.deps.Logger.Infow("wallet_backfill", "entries", booked)
	}

	if _, err := srv.services.Wallet.PromoteDue(ctx, now); err != nil {
		srv.deps.Logger.Errorw("wallet_release_failed", "error", err)
	}
}

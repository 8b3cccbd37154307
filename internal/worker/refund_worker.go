// Package worker contains background loops that run alongside the
// HTTP server.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tdnguyen/movie-ticket-booking/internal/payment"
	"github.com/tdnguyen/movie-ticket-booking/internal/repository"
)

// RefundStore is the outbox surface the worker drains.
type RefundStore interface {
	Due(ctx context.Context, limit int) ([]repository.RefundRecord, error)
	MarkDone(ctx context.Context, id uint64) error
	MarkFailed(ctx context.Context, id uint64, lastError string, nextAttempt time.Time) error
}

// Refunder issues the refund call; satisfied by payment.Gateway.
type Refunder interface {
	Refund(ctx context.Context, paymentRef string, amountCents int64) error
}

var _ Refunder = (payment.Gateway)(nil)

// RefundWorker drains the payment_refunds outbox.  Reservation
// requests that fail after their charge enqueue a refund obligation;
// this loop retries each one until the gateway accepts it, backing off
// per row as attempts accumulate.  Running it detached from the
// request path is what makes the compensation durable: a crashed or
// timed-out request cannot lose an owed refund.
type RefundWorker struct {
	refunds  RefundStore
	gateway  Refunder
	interval time.Duration
	batch    int
	logger   zerolog.Logger
}

// NewRefundWorker builds the worker.  interval is the poll period;
// batch bounds how many rows one poll processes.
func NewRefundWorker(refunds RefundStore, gateway Refunder, interval time.Duration, logger zerolog.Logger) *RefundWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &RefundWorker{
		refunds:  refunds,
		gateway:  gateway,
		interval: interval,
		batch:    50,
		logger:   logger,
	}
}

// Run polls until the context is cancelled.
func (w *RefundWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *RefundWorker) drain(ctx context.Context) {
	due, err := w.refunds.Due(ctx, w.batch)
	if err != nil {
		w.logger.Error().Err(err).Msg("refund-worker: listing due refunds failed")
		return
	}
	for _, rec := range due {
		if err := w.gateway.Refund(ctx, rec.PaymentRef, rec.AmountCents); err != nil {
			next := time.Now().Add(retryDelay(rec.Attempts + 1))
			w.logger.Warn().Err(err).Str("payment_ref", rec.PaymentRef).
				Uint32("attempts", rec.Attempts+1).Time("next_attempt", next).
				Msg("refund-worker: refund attempt failed")
			if err := w.refunds.MarkFailed(ctx, rec.ID, err.Error(), next); err != nil {
				w.logger.Error().Err(err).Uint64("refund_id", rec.ID).Msg("refund-worker: mark failed errored")
			}
			continue
		}
		if err := w.refunds.MarkDone(ctx, rec.ID); err != nil {
			w.logger.Error().Err(err).Uint64("refund_id", rec.ID).Msg("refund-worker: mark done errored")
			continue
		}
		w.logger.Info().Str("payment_ref", rec.PaymentRef).Int64("amount", rec.AmountCents).
			Msg("refund-worker: refund delivered")
	}
}

// retryDelay doubles per attempt, capped at five minutes.
func retryDelay(attempts uint32) time.Duration {
	d := time.Second
	for i := uint32(1); i < attempts && d < 5*time.Minute; i++ {
		d *= 2
	}
	if d > 5*time.Minute {
		d = 5 * time.Minute
	}
	return d
}

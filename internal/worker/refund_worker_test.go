package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdnguyen/movie-ticket-booking/internal/repository"
)

// memOutbox is an in-memory RefundStore mirroring the PENDING/DONE
// lifecycle of the payment_refunds table.
type memOutbox struct {
	records []repository.RefundRecord
	done    map[uint64]int
	failed  map[uint64][]time.Time
}

func newMemOutbox(records ...repository.RefundRecord) *memOutbox {
	return &memOutbox{
		records: records,
		done:    make(map[uint64]int),
		failed:  make(map[uint64][]time.Time),
	}
}

func (m *memOutbox) Due(ctx context.Context, limit int) ([]repository.RefundRecord, error) {
	now := time.Now()
	out := make([]repository.RefundRecord, 0, limit)
	for _, r := range m.records {
		if m.done[r.ID] > 0 {
			continue
		}
		if attempts := m.failed[r.ID]; len(attempts) > 0 {
			r.Attempts = uint32(len(attempts))
			if attempts[len(attempts)-1].After(now) {
				continue
			}
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memOutbox) MarkDone(ctx context.Context, id uint64) error {
	m.done[id]++
	return nil
}

func (m *memOutbox) MarkFailed(ctx context.Context, id uint64, lastError string, nextAttempt time.Time) error {
	m.failed[id] = append(m.failed[id], nextAttempt)
	return nil
}

type scriptedRefunder struct {
	failures int
	calls    []string
}

func (r *scriptedRefunder) Refund(ctx context.Context, paymentRef string, amountCents int64) error {
	r.calls = append(r.calls, paymentRef)
	if len(r.calls) <= r.failures {
		return errors.New("gateway timeout")
	}
	return nil
}

func TestDrainDeliversAndMarksDone(t *testing.T) {
	outbox := newMemOutbox(
		repository.RefundRecord{ID: 1, PaymentRef: "pay_a", AmountCents: 30000, Currency: "vnd"},
		repository.RefundRecord{ID: 2, PaymentRef: "pay_b", AmountCents: 12000, Currency: "vnd"},
	)
	gateway := &scriptedRefunder{}
	w := NewRefundWorker(outbox, gateway, time.Second, zerolog.Nop())

	w.drain(context.Background())

	assert.Equal(t, []string{"pay_a", "pay_b"}, gateway.calls)
	assert.Equal(t, 1, outbox.done[1])
	assert.Equal(t, 1, outbox.done[2])
}

func TestDrainRetriesUntilSuccess(t *testing.T) {
	outbox := newMemOutbox(
		repository.RefundRecord{ID: 1, PaymentRef: "pay_a", AmountCents: 30000, Currency: "vnd"},
	)
	gateway := &scriptedRefunder{failures: 2}
	w := NewRefundWorker(outbox, gateway, time.Second, zerolog.Nop())

	// First two drains fail the refund and record a backoff.
	w.drain(context.Background())
	require.Len(t, outbox.failed[1], 1)
	assert.Zero(t, outbox.done[1])

	// Make the row due again instead of waiting out the backoff.
	outbox.failed[1][0] = time.Now().Add(-time.Second)
	w.drain(context.Background())
	require.Len(t, outbox.failed[1], 2)
	assert.Zero(t, outbox.done[1])

	outbox.failed[1][1] = time.Now().Add(-time.Second)
	w.drain(context.Background())

	assert.Equal(t, 3, len(gateway.calls))
	assert.Equal(t, 1, outbox.done[1], "MarkDone called exactly once")
}

func TestDrainSkipsRowsBackedOffIntoTheFuture(t *testing.T) {
	outbox := newMemOutbox(
		repository.RefundRecord{ID: 1, PaymentRef: "pay_a", AmountCents: 30000, Currency: "vnd"},
	)
	outbox.failed[1] = []time.Time{time.Now().Add(time.Hour)}
	gateway := &scriptedRefunder{}
	w := NewRefundWorker(outbox, gateway, time.Second, zerolog.Nop())

	w.drain(context.Background())

	assert.Empty(t, gateway.calls)
	assert.Zero(t, outbox.done[1])
}

func TestRunStopsOnContextCancel(t *testing.T) {
	outbox := newMemOutbox()
	w := NewRefundWorker(outbox, &scriptedRefunder{}, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	assert.Equal(t, time.Second, retryDelay(1))
	assert.Equal(t, 2*time.Second, retryDelay(2))
	assert.Equal(t, 16*time.Second, retryDelay(5))
	assert.Equal(t, 5*time.Minute, retryDelay(20))
}

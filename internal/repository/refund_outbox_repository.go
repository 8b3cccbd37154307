package repository

import (
	"context"
	"database/sql"
	"time"
)

// RefundRecord mirrors the payment_refunds outbox table.  Each row is
// a refund the service owes the payment gateway because a charge was
// captured but the reservation ultimately failed.  Rows stay PENDING
// until the refund worker delivers them.
type RefundRecord struct {
	ID          uint64
	PaymentRef  string
	AmountCents int64
	Currency    string
	Reason      string
	Status      string
	Attempts    uint32
	LastError   *string
	CreatedAt   time.Time
}

// RefundOutboxRepo is the durable outbox for payment compensation.
// Enqueueing is a plain insert in its own short transaction, separate
// from the failed reservation transaction, so the refund obligation
// survives a crash between the charge and the response.
type RefundOutboxRepo struct {
	db *sql.DB
}

// NewRefundOutboxRepo returns a new RefundOutboxRepo bound to the
// given database.
func NewRefundOutboxRepo(db *sql.DB) *RefundOutboxRepo { return &RefundOutboxRepo{db: db} }

// Enqueue records a refund obligation.  The row becomes due
// immediately; the worker picks it up on its next poll.
func (r *RefundOutboxRepo) Enqueue(ctx context.Context, paymentRef string, amountCents int64, currency, reason string) error {
	const q = `INSERT INTO payment_refunds (payment_ref, amount_cents, currency, reason, status, attempts, next_attempt_at)
	           VALUES (?, ?, ?, ?, 'PENDING', 0, NOW())`
	_, err := r.db.ExecContext(ctx, q, paymentRef, amountCents, currency, reason)
	return err
}

// Due returns up to limit pending refunds whose next attempt time has
// passed, oldest first.
func (r *RefundOutboxRepo) Due(ctx context.Context, limit int) ([]RefundRecord, error) {
	const q = `SELECT id, payment_ref, amount_cents, currency, reason, status, attempts, last_error, created_at
	           FROM payment_refunds
	           WHERE status = 'PENDING' AND next_attempt_at <= NOW()
	           ORDER BY id
	           LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RefundRecord
	for rows.Next() {
		var rec RefundRecord
		var lastErr sql.NullString
		if err := rows.Scan(&rec.ID, &rec.PaymentRef, &rec.AmountCents, &rec.Currency, &rec.Reason,
			&rec.Status, &rec.Attempts, &lastErr, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if lastErr.Valid {
			e := lastErr.String
			rec.LastError = &e
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkDone marks a refund as delivered.
func (r *RefundOutboxRepo) MarkDone(ctx context.Context, id uint64) error {
	const q = `UPDATE payment_refunds SET status = 'DONE', last_error = NULL WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// MarkFailed records a failed delivery attempt and schedules the next
// one.  The row stays PENDING so it will be retried.
func (r *RefundOutboxRepo) MarkFailed(ctx context.Context, id uint64, lastError string, nextAttempt time.Time) error {
	const q = `UPDATE payment_refunds SET attempts = attempts + 1, last_error = ?, next_attempt_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, lastError, nextAttempt.UTC(), id)
	return err
}

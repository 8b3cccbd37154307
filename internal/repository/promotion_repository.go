package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tdnguyen/movie-ticket-booking/internal/model"
)

// PromotionRepo validates promotions and records their usage.  A
// promotion is usable by a given user when it is inside its validity
// window, its global usage limit is not exhausted, and the user has
// not consumed it before.  Usage is recorded at most once per user via
// a unique (promotion_id, user_id) key, which makes MarkUsed safe
// under at-least-once delivery.
type PromotionRepo struct {
	db *sql.DB
}

// NewPromotionRepo returns a new PromotionRepo bound to the given database.
func NewPromotionRepo(db *sql.DB) *PromotionRepo { return &PromotionRepo{db: db} }

// CheckValid loads a promotion and verifies the user may still apply
// it.  Any reason the promotion cannot be applied, including the
// promotion not existing at all, is reported as ErrPromotionNotFound
// so callers cannot tell a guessed code from an exhausted one.
func (r *PromotionRepo) CheckValid(ctx context.Context, promotionID, userID uint64) (*model.Promotion, error) {
	const q = `SELECT id, code, discount, starts_at, ends_at, max_usage
	           FROM promotions
	           WHERE id = ? AND starts_at <= NOW() AND ends_at >= NOW()`
	var p model.Promotion
	err := r.db.QueryRowContext(ctx, q, promotionID).Scan(
		&p.ID, &p.Code, &p.Discount, &p.StartsAt, &p.EndsAt, &p.MaxUsage,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPromotionNotFound
	}
	if err != nil {
		return nil, err
	}

	const usedByUser = `SELECT EXISTS(SELECT 1 FROM promotion_usages WHERE promotion_id = ? AND user_id = ?)`
	var used bool
	if err := r.db.QueryRowContext(ctx, usedByUser, p.ID, userID).Scan(&used); err != nil {
		return nil, err
	}
	if used {
		return nil, ErrPromotionNotFound
	}

	if p.MaxUsage > 0 {
		const count = `SELECT COUNT(*) FROM promotion_usages WHERE promotion_id = ?`
		var n uint32
		if err := r.db.QueryRowContext(ctx, count, p.ID).Scan(&n); err != nil {
			return nil, err
		}
		if n >= p.MaxUsage {
			return nil, ErrPromotionNotFound
		}
	}
	return &p, nil
}

// MarkUsed records that the user consumed the promotion for the given
// reservation.  INSERT IGNORE keeps the call idempotent: replaying it
// for the same (promotion, user) pair does not double-count usage.
func (r *PromotionRepo) MarkUsed(ctx context.Context, promotionID, userID, reservationID uint64) error {
	const q = `INSERT IGNORE INTO promotion_usages (promotion_id, user_id, reservation_id) VALUES (?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, promotionID, userID, reservationID)
	return err
}

package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tdnguyen/movie-ticket-booking/internal/model"
)

// UserRepo reads user accounts and their stored payment cards.  Both
// tables are owned by the external auth/profile service; this service
// never writes to them.
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo returns a new UserRepo bound to the given database.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// GetByID loads a user by primary key.  It returns ErrUserNotFound
// when the user does not exist.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	const q = `SELECT id, full_name, email, phone_number, created_at FROM users WHERE id = ?`
	var u model.User
	err := r.db.QueryRowContext(ctx, q, id).Scan(&u.ID, &u.FullName, &u.Email, &u.PhoneNumber, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetCard loads a payment card and verifies that it belongs to the
// given user.  A card owned by someone else is reported as
// ErrCardNotFound rather than leaked.
func (r *UserRepo) GetCard(ctx context.Context, userID, cardID uint64) (*model.PaymentCard, error) {
	const q = `SELECT id, user_id, gateway_token, brand, last4 FROM payment_cards WHERE id = ? AND user_id = ?`
	var c model.PaymentCard
	err := r.db.QueryRowContext(ctx, q, cardID, userID).Scan(&c.ID, &c.UserID, &c.GatewayToken, &c.Brand, &c.Last4)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

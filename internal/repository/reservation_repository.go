package repository

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/tdnguyen/movie-ticket-booking/internal/model"
)

// ReservationRepo persists reservations together with their product
// snapshot and ticket claims.  The write path runs everything inside
// one transaction so that "claim succeeded" and "reservation exists"
// are observed together by any other reader; there is no window where
// a ticket shows claimed but no reservation exists, or vice versa.
type ReservationRepo struct {
	db      *sql.DB
	tickets *TicketRepo
}

// NewReservationRepo returns a new ReservationRepo bound to the given
// database.  The ticket repo performs the conditional claims inside
// the reservation transaction.
func NewReservationRepo(db *sql.DB, tickets *TicketRepo) *ReservationRepo {
	return &ReservationRepo{db: db, tickets: tickets}
}

// CreateWithTickets inserts the reservation, its product snapshot and
// the claims for all requested tickets as one atomic unit.  On success
// it populates res.ID and res.CreatedAt and returns (nil, nil).  When
// any ticket is already claimed the transaction is rolled back, no row
// is retained, and the conflicting ticket IDs are returned with a nil
// error.  Any other failure rolls back and returns the error.
func (r *ReservationRepo) CreateWithTickets(ctx context.Context, res *model.Reservation, ticketIDs []uint64) ([]uint64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const ins = `INSERT INTO reservations
		(user_id, show_time_id, email, phone_number, original_price_cents, total_price_cents, payment_ref, promotion_id, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var promoID interface{}
	if res.PromotionID != nil {
		promoID = *res.PromotionID
	}
	result, err := tx.ExecContext(ctx, ins,
		res.UserID, res.ShowTimeID, res.Email, res.PhoneNumber,
		res.OriginalPriceCents, res.TotalPriceCents, res.PaymentRef, promoID, res.IsActive,
	)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	res.ID = uint64(id)

	if err := r.insertProductsTx(ctx, tx, res.ID, res.Products); err != nil {
		return nil, err
	}

	conflicts, err := r.tickets.ClaimTx(ctx, tx, ticketIDs, res.ID)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		// Deferred rollback discards the reservation row and any
		// claims made before the conflicting ticket.
		return conflicts, nil
	}

	var createdAt time.Time
	const sel = `SELECT created_at FROM reservations WHERE id = ?`
	if err := tx.QueryRowContext(ctx, sel, res.ID).Scan(&createdAt); err != nil {
		return nil, err
	}
	res.CreatedAt = createdAt

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return nil, nil
}

func (r *ReservationRepo) insertProductsTx(ctx context.Context, tx *sql.Tx, reservationID uint64, lines []model.ReservationProduct) error {
	if len(lines) == 0 {
		return nil
	}
	query := `INSERT INTO reservation_products (reservation_id, product_id, quantity, unit_price_cents) VALUES `
	args := make([]interface{}, 0, len(lines)*4)
	for i, l := range lines {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, reservationID, l.ProductID, l.Quantity, l.UnitPriceCents)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// ReservationDetail is a reservation joined with its show time, seats
// and product lines, as returned to customers.
type ReservationDetail struct {
	model.Reservation
	MovieTitle string   `json:"movie_title"`
	HallName   string   `json:"hall_name"`
	StartsAt   string   `json:"starts_at"`
	Seats      []string `json:"seats"`
	TicketIDs  []uint64 `json:"ticket_ids"`
}

// GetByIDForUser returns a single reservation for the given user.
// Ownership is enforced in the query; a reservation belonging to a
// different user surfaces as sql.ErrNoRows.
func (r *ReservationRepo) GetByIDForUser(ctx context.Context, reservationID, userID uint64) (*ReservationDetail, error) {
	const q = `SELECT r.id, r.user_id, r.show_time_id, r.email, r.phone_number,
	                  r.original_price_cents, r.total_price_cents, r.payment_ref, r.promotion_id,
	                  r.is_active, r.created_at,
	                  st.movie_title, st.hall_name, st.starts_at
	           FROM reservations r
	           JOIN show_times st ON st.id = r.show_time_id
	           WHERE r.id = ? AND r.user_id = ?`
	var det ReservationDetail
	var promoID sql.NullInt64
	var startsAt time.Time
	err := r.db.QueryRowContext(ctx, q, reservationID, userID).Scan(
		&det.ID, &det.UserID, &det.ShowTimeID, &det.Email, &det.PhoneNumber,
		&det.OriginalPriceCents, &det.TotalPriceCents, &det.PaymentRef, &promoID,
		&det.IsActive, &det.CreatedAt,
		&det.MovieTitle, &det.HallName, &startsAt,
	)
	if err != nil {
		return nil, err
	}
	if promoID.Valid {
		pid := uint64(promoID.Int64)
		det.PromotionID = &pid
	}
	det.StartsAt = startsAt.UTC().Format(time.RFC3339)
	if err := r.loadProducts(ctx, &det); err != nil {
		return nil, err
	}
	if err := r.loadSeats(ctx, &det); err != nil {
		return nil, err
	}
	return &det, nil
}

// ListByUser returns all reservations for the given user, newest
// first.  When no reservations exist an empty slice is returned.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID uint64) ([]ReservationDetail, error) {
	const q = `SELECT r.id, r.user_id, r.show_time_id, r.email, r.phone_number,
	                  r.original_price_cents, r.total_price_cents, r.payment_ref, r.promotion_id,
	                  r.is_active, r.created_at,
	                  st.movie_title, st.hall_name, st.starts_at
	           FROM reservations r
	           JOIN show_times st ON st.id = r.show_time_id
	           WHERE r.user_id = ?
	           ORDER BY r.created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	details := make([]ReservationDetail, 0)
	for rows.Next() {
		var det ReservationDetail
		var promoID sql.NullInt64
		var startsAt time.Time
		if err := rows.Scan(
			&det.ID, &det.UserID, &det.ShowTimeID, &det.Email, &det.PhoneNumber,
			&det.OriginalPriceCents, &det.TotalPriceCents, &det.PaymentRef, &promoID,
			&det.IsActive, &det.CreatedAt,
			&det.MovieTitle, &det.HallName, &startsAt,
		); err != nil {
			return nil, err
		}
		if promoID.Valid {
			pid := uint64(promoID.Int64)
			det.PromotionID = &pid
		}
		det.StartsAt = startsAt.UTC().Format(time.RFC3339)
		details = append(details, det)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range details {
		if err := r.loadProducts(ctx, &details[i]); err != nil {
			return nil, err
		}
		if err := r.loadSeats(ctx, &details[i]); err != nil {
			return nil, err
		}
	}
	return details, nil
}

func (r *ReservationRepo) loadProducts(ctx context.Context, det *ReservationDetail) error {
	const q = `SELECT product_id, quantity, unit_price_cents FROM reservation_products WHERE reservation_id = ?`
	rows, err := r.db.QueryContext(ctx, q, det.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	det.Products = make([]model.ReservationProduct, 0)
	for rows.Next() {
		var p model.ReservationProduct
		if err := rows.Scan(&p.ProductID, &p.Quantity, &p.UnitPriceCents); err != nil {
			return err
		}
		det.Products = append(det.Products, p)
	}
	return rows.Err()
}

func (r *ReservationRepo) loadSeats(ctx context.Context, det *ReservationDetail) error {
	const q = `SELECT id, seat_row, seat_column FROM tickets WHERE reservation_id = ? ORDER BY seat_row, seat_column`
	rows, err := r.db.QueryContext(ctx, q, det.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	det.Seats = make([]string, 0)
	det.TicketIDs = make([]uint64, 0)
	for rows.Next() {
		var id uint64
		var row string
		var col uint32
		if err := rows.Scan(&id, &row, &col); err != nil {
			return err
		}
		det.TicketIDs = append(det.TicketIDs, id)
		det.Seats = append(det.Seats, row+strconv.FormatUint(uint64(col), 10))
	}
	return rows.Err()
}

package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/tdnguyen/movie-ticket-booking/internal/model"
)

// TicketRepo encapsulates database operations for tickets.  A ticket
// is claimed by setting its reservation_id with a conditional update
// that requires the column to still be NULL; the database's row-level
// guarantee is the only serialization point for concurrent claims, so
// two racing requests for the same ticket resolve deterministically.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// FindByIDs loads the tickets for the given IDs.  The result may be
// shorter than the input when some IDs do not exist; the caller is
// responsible for treating that as an error.
func (r *TicketRepo) FindByIDs(ctx context.Context, ids []uint64) ([]model.Ticket, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT id, show_time_id, seat_row, seat_column, price_cents, reservation_id, created_at
	      FROM tickets WHERE id IN (` + placeholders(len(ids)) + `)`
	rows, err := r.db.QueryContext(ctx, q, idArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// ListByShowTime returns all tickets of a show time ordered by seat,
// used by the public availability endpoint.
func (r *TicketRepo) ListByShowTime(ctx context.Context, showTimeID uint64) ([]model.Ticket, error) {
	const q = `SELECT id, show_time_id, seat_row, seat_column, price_cents, reservation_id, created_at
	           FROM tickets WHERE show_time_id = ? ORDER BY seat_row, seat_column`
	rows, err := r.db.QueryContext(ctx, q, showTimeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// Unavailable returns the subset of the given ticket IDs that are
// already claimed.  This is the optimistic pre-flight check run before
// charging money; it takes no locks and its answer can be stale, so
// the conditional claim inside the reservation transaction remains
// authoritative.
func (r *TicketRepo) Unavailable(ctx context.Context, ids []uint64) ([]uint64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT id FROM tickets WHERE id IN (` + placeholders(len(ids)) + `) AND reservation_id IS NOT NULL`
	rows, err := r.db.QueryContext(ctx, q, idArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var taken []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		taken = append(taken, id)
	}
	return taken, rows.Err()
}

// ClaimTx assigns every ticket in ids to the given reservation within
// the provided transaction.  Each update only succeeds if the ticket
// is still unclaimed; IDs whose update matched no row are returned as
// conflicts.  On any non-empty conflict set the caller must roll back
// the transaction so no partial claim survives.
func (r *TicketRepo) ClaimTx(ctx context.Context, tx *sql.Tx, ids []uint64, reservationID uint64) ([]uint64, error) {
	const q = `UPDATE tickets SET reservation_id = ? WHERE id = ? AND reservation_id IS NULL`
	var conflicts []uint64
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, q, reservationID, id)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			conflicts = append(conflicts, id)
		}
	}
	return conflicts, nil
}

func scanTickets(rows *sql.Rows) ([]model.Ticket, error) {
	var out []model.Ticket
	for rows.Next() {
		var t model.Ticket
		var resID sql.NullInt64
		if err := rows.Scan(&t.ID, &t.ShowTimeID, &t.SeatRow, &t.SeatColumn, &t.PriceCents, &resID, &t.CreatedAt); err != nil {
			return nil, err
		}
		if resID.Valid {
			id := uint64(resID.Int64)
			t.ReservationID = &id
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []uint64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

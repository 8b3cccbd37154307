package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tdnguyen/movie-ticket-booking/internal/model"
)

// ShowTimeRepo reads show times.  Show times and their ticket grids
// are created by the admin service.
type ShowTimeRepo struct {
	db *sql.DB
}

// NewShowTimeRepo returns a new ShowTimeRepo bound to the given database.
func NewShowTimeRepo(db *sql.DB) *ShowTimeRepo { return &ShowTimeRepo{db: db} }

// GetByID loads a show time by primary key.  It returns
// ErrShowTimeNotFound when no row exists.
func (r *ShowTimeRepo) GetByID(ctx context.Context, id uint64) (*model.ShowTime, error) {
	const q = `SELECT id, movie_title, hall_name, starts_at FROM show_times WHERE id = ?`
	var st model.ShowTime
	err := r.db.QueryRowContext(ctx, q, id).Scan(&st.ID, &st.MovieTitle, &st.HallName, &st.StartsAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrShowTimeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

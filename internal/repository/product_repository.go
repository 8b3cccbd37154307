package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/tdnguyen/movie-ticket-booking/internal/model"
)

// ProductRepo reads the add-on product catalog.  The catalog is
// managed by the admin service; reservations only read current prices
// and snapshot them at creation time.
type ProductRepo struct {
	db *sql.DB
}

// NewProductRepo returns a new ProductRepo bound to the given database.
func NewProductRepo(db *sql.DB) *ProductRepo { return &ProductRepo{db: db} }

// FindByIDs loads the products for the given IDs keyed by ID.  IDs
// with no matching row are simply absent from the result; the caller
// decides whether a missing product is an error.
func (r *ProductRepo) FindByIDs(ctx context.Context, ids []uint64) (map[uint64]model.Product, error) {
	out := make(map[uint64]model.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	q := `SELECT id, name, price_cents FROM products WHERE id IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceCents); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

package model

// Product is a catalog add-on (popcorn, drinks, combos) sold alongside
// tickets.  The catalog is managed elsewhere; this service only reads
// products to price reservations.
type Product struct {
	ID         uint64 `json:"id"`    // products.id
	Name       string `json:"name"`  // products.name
	PriceCents int64  `json:"price"` // products.price_cents
}

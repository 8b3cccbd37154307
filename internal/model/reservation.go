package model

import "time"

// Reservation is the committed record binding a user, a set of claimed
// tickets, an add-on product snapshot and a charged amount.
//
// Invariants:
//   - TotalPriceCents equals OriginalPriceCents when no promotion was
//     applied, otherwise ceil(original * (1 - discount)).
//   - A reservation row exists if and only if every ticket it claimed
//     has its reservation_id set to this reservation's ID; both are
//     written inside one transaction.
type Reservation struct {
	ID                 uint64               `json:"id"`                // reservations.id
	UserID             uint64               `json:"user_id"`           // reservations.user_id
	ShowTimeID         uint64               `json:"show_time_id"`      // reservations.show_time_id
	Email              string               `json:"email"`             // reservations.email
	PhoneNumber        string               `json:"phone_number"`      // reservations.phone_number
	Products           []ReservationProduct `json:"products"`          // reservation_products rows
	OriginalPriceCents int64                `json:"original_price"`    // reservations.original_price_cents
	TotalPriceCents    int64                `json:"total_price"`       // reservations.total_price_cents
	PaymentRef         string               `json:"payment_reference"` // reservations.payment_ref
	PromotionID        *uint64              `json:"promotion_id"`      // reservations.promotion_id (nullable)
	IsActive           bool                 `json:"is_active"`         // reservations.is_active
	CreatedAt          time.Time            `json:"created_at"`        // reservations.created_at
}

// ReservationProduct is one product line of a reservation.  The unit
// price is copied from the catalog at creation time so later catalog
// edits do not change what the customer was charged.
type ReservationProduct struct {
	ProductID      uint64 `json:"product_id"` // reservation_products.product_id
	Quantity       uint32 `json:"quantity"`   // reservation_products.quantity
	UnitPriceCents int64  `json:"unit_price"` // reservation_products.unit_price_cents
}

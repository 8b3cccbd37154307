package model

import (
	"strconv"
	"time"
)

// Ticket is a claimable unit representing one seat for one show time.
// ReservationID is nullable and write-once: it is only ever set by a
// conditional update that requires it to be NULL, so once a ticket is
// claimed it stays claimed for the ticket's lifetime.
type Ticket struct {
	ID            uint64    `json:"id"`             // tickets.id
	ShowTimeID    uint64    `json:"show_time_id"`   // tickets.show_time_id
	SeatRow       string    `json:"seat_row"`       // tickets.seat_row
	SeatColumn    uint32    `json:"seat_column"`    // tickets.seat_column
	PriceCents    int64     `json:"price"`          // tickets.price_cents
	ReservationID *uint64   `json:"reservation_id"` // tickets.reservation_id (nullable)
	CreatedAt     time.Time `json:"-"`              // tickets.created_at
}

// SeatLabel renders the seat reference in the form shown to users,
// e.g. "C7".
func (t *Ticket) SeatLabel() string {
	return t.SeatRow + strconv.FormatUint(uint64(t.SeatColumn), 10)
}

// Available reports whether the ticket has not been claimed yet.  The
// answer is inherently racy outside the claiming transaction and must
// be re-verified by the conditional claim itself.
func (t *Ticket) Available() bool { return t.ReservationID == nil }

// Package queue defines message payloads exchanged over the message
// broker and the publisher/consumer that move them.
package queue

// ReservationCreatedEvent is published when a reservation commits.  It
// carries enough information for downstream consumers to notify the
// customer without querying the primary database.
type ReservationCreatedEvent struct {
	ReservationID   uint64   `json:"reservation_id"`
	UserID          uint64   `json:"user_id"`
	ShowTimeID      uint64   `json:"show_time_id"`
	Email           string   `json:"email"`
	SeatLabels      []string `json:"seats"`
	TotalPriceCents int64    `json:"total_price_cents"`
	CreatedAt       string   `json:"created_at"`
}

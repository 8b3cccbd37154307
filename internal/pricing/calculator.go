// Package pricing computes reservation prices.  All functions are pure
// and operate on amounts in cents; inputs are assumed to have been
// validated to exist by the caller.
package pricing

import (
	"math"

	"github.com/tdnguyen/movie-ticket-booking/internal/model"
)

// Line is one priced product line of a reservation request.
type Line struct {
	UnitPriceCents int64
	Quantity       uint32
}

// OriginalPrice sums the ticket prices plus unit price times quantity
// over all product lines.
func OriginalPrice(tickets []model.Ticket, lines []Line) int64 {
	var total int64
	for _, t := range tickets {
		total += t.PriceCents
	}
	for _, l := range lines {
		total += l.UnitPriceCents * int64(l.Quantity)
	}
	return total
}

// ApplyDiscount returns the price after taking off the given discount
// fraction, rounded up to the next cent.  A discount of 0 returns the
// original amount unchanged.
func ApplyDiscount(originalCents int64, discount float64) int64 {
	if discount <= 0 {
		return originalCents
	}
	return int64(math.Ceil(float64(originalCents) * (1 - discount)))
}

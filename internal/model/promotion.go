package model

import "time"

// Promotion is a discount rule.  Discount is a fraction in [0, 1); a
// value of 0.10 takes ten percent off the original price.  Each user
// may consume a promotion at most once, enforced by a unique key on
// promotion_usages.
type Promotion struct {
	ID       uint64    `json:"id"`       // promotions.id
	Code     string    `json:"code"`     // promotions.code
	Discount float64   `json:"discount"` // promotions.discount
	StartsAt time.Time `json:"-"`        // promotions.starts_at
	EndsAt   time.Time `json:"-"`        // promotions.ends_at
	MaxUsage uint32    `json:"-"`        // promotions.max_usage (0 = unlimited)
}

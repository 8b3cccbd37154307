// Package repository defines error types that are reused across
// multiple repositories. These sentinel values allow higher layers
// such as the reservation service to distinguish between different
// failure scenarios without inspecting SQL errors directly.
package repository

import "errors"

// ErrUserNotFound is returned when no user exists for the given ID.
var ErrUserNotFound = errors.New("user not found")

// ErrCardNotFound is returned when the requested payment card does
// not exist or belongs to a different user.
var ErrCardNotFound = errors.New("payment card not found")

// ErrShowTimeNotFound is returned when no show time exists for the
// given ID.
var ErrShowTimeNotFound = errors.New("show time not found")

// ErrTicketNotFound is returned when one of the requested ticket IDs
// does not exist.
var ErrTicketNotFound = errors.New("ticket not found")

// ErrPromotionNotFound is returned when a promotion does not exist,
// is outside its validity window, has exhausted its usage limit, or
// was already consumed by the requesting user. Callers treat all of
// these as "invalid promotion".
var ErrPromotionNotFound = errors.New("promotion not found")

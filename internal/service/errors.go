// Package service implements the reservation workflow.  Errors are
// classified with the sentinels below; handlers map them to HTTP
// status codes with errors.Is and the wrapped message is what the
// caller sees.
package service

import "errors"

// ErrValidation covers malformed requests, incomplete profiles and
// invalid promotions.  Nothing has been charged or persisted.
var ErrValidation = errors.New("validation failed")

// ErrNotFound is returned when a referenced catalog entity (product,
// show time, ticket) does not exist.  Nothing has been charged.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a requested ticket is already claimed.
// When detected after the charge, a refund has been enqueued before
// this error surfaces.
var ErrConflict = errors.New("ticket already reserved")

// ErrPayment is returned when the charge was declined or the gateway
// was unreachable.  No reservation or ticket state was touched and no
// compensation is needed.
var ErrPayment = errors.New("payment failed")

// ErrPersistence is returned when the atomic reservation transaction
// failed for a reason other than a ticket conflict.  When the charge
// had already succeeded, a refund has been enqueued.
var ErrPersistence = errors.New("cannot create reservation")

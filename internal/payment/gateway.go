// Package payment wraps the external payment gateway.  The gateway
// holds the authoritative ledger; this service only issues charge and
// refund requests against vaulted card tokens and records the opaque
// payment reference the gateway returns.
package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Sentinel errors returned by Gateway implementations.  Handlers and
// the coordinator distinguish a decline (the card was rejected) from
// the gateway being unreachable, but both end the reservation attempt
// without touching ticket or reservation state.
var (
	ErrCardDeclined       = errors.New("card declined")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// ChargeRequest describes a single capture attempt.  IdempotencyKey
// must be stable across retries of the same reservation request so the
// gateway can deduplicate; see IdempotencyKey.
type ChargeRequest struct {
	CardToken      string
	AmountCents    int64
	Currency       string
	IdempotencyKey string
}

// Gateway is the contract consumed by the reservation coordinator.
// Charge returns the gateway's payment reference on success.  Refund
// voids a previously captured charge and must be safe to retry.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (string, error)
	Refund(ctx context.Context, paymentRef string, amountCents int64) error
}

// idempotencyBucket bounds how long a retried request maps to the same
// idempotency key.  Five minutes comfortably covers client retries of
// a failed submission without pinning the key forever.
const idempotencyBucket = 5 * time.Minute

// IdempotencyKey derives a stable token for a reservation attempt from
// the requesting user, the requested ticket set and a coarse time
// bucket.  Ticket order does not matter.  A client retrying the same
// request within the bucket produces the same key, so the gateway will
// not capture the charge twice.
func IdempotencyKey(userID uint64, ticketIDs []uint64, now time.Time) string {
	sorted := make([]uint64, len(ticketIDs))
	copy(sorted, ticketIDs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	h := sha256.New()
	fmt.Fprintf(h, "%d", userID)
	for _, id := range sorted {
		h.Write([]byte("|"))
		h.Write([]byte(strconv.FormatUint(id, 10)))
	}
	fmt.Fprintf(h, "|%d", now.Unix()/int64(idempotencyBucket.Seconds()))
	return hex.EncodeToString(h.Sum(nil))
}

package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyKeyStable(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	a := IdempotencyKey(7, []uint64{3, 1, 2}, now)
	b := IdempotencyKey(7, []uint64{1, 2, 3}, now.Add(30*time.Second))

	assert.Equal(t, a, b, "same user, same tickets, same bucket")
}

func TestIdempotencyKeyDiffers(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	base := IdempotencyKey(7, []uint64{1, 2}, now)

	assert.NotEqual(t, base, IdempotencyKey(8, []uint64{1, 2}, now), "different user")
	assert.NotEqual(t, base, IdempotencyKey(7, []uint64{1, 3}, now), "different tickets")
	assert.NotEqual(t, base, IdempotencyKey(7, []uint64{1, 2}, now.Add(10*time.Minute)), "different bucket")
}

func TestChargeSuccess(t *testing.T) {
	var got chargeBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/charges", r.URL.Path)
		require.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "pi_123"})
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, "sk_test", time.Second, zerolog.Nop())
	ref, err := g.Charge(context.Background(), ChargeRequest{
		CardToken:      "tok_abc",
		AmountCents:    36000,
		Currency:       "vnd",
		IdempotencyKey: "key-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "pi_123", ref)
	assert.Equal(t, int64(36000), got.Amount)
	assert.Equal(t, "vnd", got.Currency)
	assert.Equal(t, "tok_abc", got.Source)
	assert.Equal(t, "key-1", got.IdempotencyKey)
	assert.NotEmpty(t, got.RequestID)
}

func TestChargeDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "insufficient funds"})
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, "sk_test", time.Second, zerolog.Nop())
	_, err := g.Charge(context.Background(), ChargeRequest{CardToken: "tok", AmountCents: 100, Currency: "vnd"})

	assert.ErrorIs(t, err, ErrCardDeclined)
}

func TestChargeGatewayDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, "sk_test", time.Second, zerolog.Nop())
	_, err := g.Charge(context.Background(), ChargeRequest{CardToken: "tok", AmountCents: 100, Currency: "vnd"})

	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestChargeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, "sk_test", 50*time.Millisecond, zerolog.Nop())
	_, err := g.Charge(context.Background(), ChargeRequest{CardToken: "tok", AmountCents: 100, Currency: "vnd"})

	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestRefund(t *testing.T) {
	var got refundBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/refunds", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, "sk_test", time.Second, zerolog.Nop())
	err := g.Refund(context.Background(), "pi_123", 36000)

	require.NoError(t, err)
	assert.Equal(t, "pi_123", got.PaymentReference)
	assert.Equal(t, int64(36000), got.Amount)
}

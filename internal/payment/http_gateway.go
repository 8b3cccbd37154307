package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPGateway talks to the payment provider's REST API.  The embedded
// http.Client carries the request timeout, so a hung gateway surfaces
// as ErrGatewayUnavailable instead of blocking the reservation flow.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  zerolog.Logger
}

// NewHTTPGateway builds a gateway client.  timeout bounds every charge
// and refund call.
func NewHTTPGateway(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type chargeBody struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Source         string `json:"source"`
	IdempotencyKey string `json:"idempotency_key"`
	RequestID      string `json:"request_id"`
}

type chargeResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type refundBody struct {
	PaymentReference string `json:"payment_reference"`
	Amount           int64  `json:"amount"`
	RequestID        string `json:"request_id"`
}

// Charge captures the given amount against a vaulted card token.  A
// 402 from the provider maps to ErrCardDeclined; transport failures
// and 5xx responses map to ErrGatewayUnavailable.
func (g *HTTPGateway) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	body := chargeBody{
		Amount:         req.AmountCents,
		Currency:       req.Currency,
		Source:         req.CardToken,
		IdempotencyKey: req.IdempotencyKey,
		RequestID:      uuid.NewString(),
	}
	var resp chargeResponse
	status, err := g.post(ctx, "/v1/charges", body, &resp)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	switch {
	case status == http.StatusOK || status == http.StatusCreated:
		if resp.ID == "" {
			return "", fmt.Errorf("%w: charge response missing id", ErrGatewayUnavailable)
		}
		return resp.ID, nil
	case status == http.StatusPaymentRequired:
		g.logger.Warn().Str("reason", resp.Message).Msg("charge declined")
		return "", fmt.Errorf("%w: %s", ErrCardDeclined, resp.Message)
	default:
		return "", fmt.Errorf("%w: unexpected status %d", ErrGatewayUnavailable, status)
	}
}

// Refund voids a captured charge.  The provider deduplicates by
// payment reference, so retrying a refund that already went through is
// a no-op on its side.
func (g *HTTPGateway) Refund(ctx context.Context, paymentRef string, amountCents int64) error {
	body := refundBody{
		PaymentReference: paymentRef,
		Amount:           amountCents,
		RequestID:        uuid.NewString(),
	}
	var resp chargeResponse
	status, err := g.post(ctx, "/v1/refunds", body, &resp)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("%w: refund status %d", ErrGatewayUnavailable, status)
	}
	return nil
}

func (g *HTTPGateway) post(ctx context.Context, path string, body any, out any) (int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	res, err := g.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = res.Body.Close() }()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, err
	}
	if len(data) > 0 {
		// Tolerate non-JSON error bodies; the status code is enough.
		_ = json.Unmarshal(data, out)
	}
	return res.StatusCode, nil
}

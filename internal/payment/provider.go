// Package payment talks to the external payment provider: intent creation
// and cancellation, and verification of the provider's signed webhooks.
package payment

import (
	"context"
	"fmt"

	"github.com/iliyamo/seatcore/internal/config"
)

// IntentRequest asks the provider to collect AmountCents for an order.
// IdempotencyKey makes provider-side retries safe.
type IntentRequest struct {
	OrderID        string
	AmountCents    int64
	Currency       string
	IdempotencyKey string
}

// Intent is the provider's handle for a payment in progress.
type Intent struct {
	Ref          string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status,omitempty"`
}

// Provider is implemented by the HTTP adapter and the sandbox.
type Provider interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	CancelPaymentIntent(ctx context.Context, ref string) error
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("payment %s: provider returned %d: %s", e.Op, e.Code, e.Body)
}

// Permanent reports a client-side rejection that retrying will not fix.
func (e *StatusError) Permanent() bool {
	return e.Code >= 400 && e.Code < 500 && e.Code != 408 && e.Code != 429
}

// FromConfig picks the sandbox or the HTTP adapter.
func FromConfig(c config.PaymentConfig) Provider {
	if c.Provider == "sandbox" {
		return NewSandbox()
	}
	return NewHTTPClient(c.BaseURL, c.APIKey, c.Timeout)
}

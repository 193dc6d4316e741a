package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientCreatePaymentIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "order:o1", r.Header.Get("Idempotency-Key"))
		var body createIntentBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(5000), body.Amount)
		assert.Equal(t, "usd", body.Currency)
		assert.Equal(t, "o1", body.Metadata["order_id"])
		_, _ = w.Write([]byte(`{"id":"pi_1","client_secret":"pi_1_secret"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", "sk_test", time.Second)
	in, err := c.CreatePaymentIntent(context.Background(), IntentRequest{OrderID: "o1", AmountCents: 5000, Currency: "USD", IdempotencyKey: "order:o1"})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", in.Ref)
	assert.Equal(t, "pi_1_secret", in.ClientSecret)
}

func TestHTTPClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents/pi_9/cancel", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"no such intent"}`))
	}))
	defer srv.Close()

	err := NewHTTPClient(srv.URL, "sk", time.Second).CancelPaymentIntent(context.Background(), "pi_9")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.True(t, se.Permanent())
	assert.False(t, (&StatusError{Code: 503}).Permanent())
}

func TestSandboxIsIdempotentPerKey(t *testing.T) {
	sb := NewSandbox()
	ctx := context.Background()

	a, err := sb.CreatePaymentIntent(ctx, IntentRequest{OrderID: "o1", AmountCents: 100, Currency: "EUR", IdempotencyKey: "order:o1"})
	require.NoError(t, err)
	b, err := sb.CreatePaymentIntent(ctx, IntentRequest{OrderID: "o1", AmountCents: 100, Currency: "EUR", IdempotencyKey: "order:o1"})
	require.NoError(t, err)
	assert.Equal(t, a.Ref, b.Ref)

	require.NoError(t, sb.CancelPaymentIntent(ctx, a.Ref))
	in, ok := sb.Lookup(a.Ref)
	require.True(t, ok)
	assert.True(t, in.Canceled)

	assert.Error(t, sb.CancelPaymentIntent(ctx, "pi_missing"))
}

package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient is the REST adapter for the payment provider.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type createIntentBody struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

func (c *HTTPClient) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	body, err := json.Marshal(createIntentBody{
		Amount:   req.AmountCents,
		Currency: strings.ToLower(req.Currency),
		Metadata: map[string]string{"order_id": req.OrderID},
	})
	if err != nil {
		return nil, err
	}
	var intent Intent
	if err := c.do(ctx, "create_intent", c.baseURL+"/v1/payment_intents", req.IdempotencyKey, body, &intent); err != nil {
		return nil, err
	}
	if intent.Ref == "" {
		return nil, fmt.Errorf("payment create_intent: response without id")
	}
	return &intent, nil
}

func (c *HTTPClient) CancelPaymentIntent(ctx context.Context, ref string) error {
	endpoint := c.baseURL + "/v1/payment_intents/" + url.PathEscape(ref) + "/cancel"
	return c.do(ctx, "cancel_intent", endpoint, "cancel:"+ref, []byte(`{}`), nil)
}

func (c *HTTPClient) do(ctx context.Context, op, endpoint, idempotencyKey string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("payment %s: %w", op, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("payment %s: read body: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, Code: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("payment %s: decode: %w", op, err)
	}
	return nil
}

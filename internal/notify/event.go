// Package notify publishes order notifications to RabbitMQ for downstream
// consumers (e-mail, push, analytics). Delivery to end users happens there.
package notify

// OrderConfirmedEvent is published once an order's payment is confirmed.
// It carries enough for consumers to act without reading the primary
// database.
type OrderConfirmedEvent struct {
	OrderID       string   `json:"order_id"`
	UserID        string   `json:"user_id"`
	PerformanceID string   `json:"performance_id"`
	SeatIDs       []string `json:"seats"`
	AmountCents   int64    `json:"amount_cents"`
	Currency      string   `json:"currency"`
	PaymentRef    string   `json:"payment_ref"`
	ConfirmedAt   string   `json:"confirmed_at"`
}

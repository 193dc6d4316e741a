package model

import "time"

// OrderStatus is the payment lifecycle state of an order.
type OrderStatus string

const (
	OrderPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderConfirmed      OrderStatus = "CONFIRMED"
	OrderCanceled       OrderStatus = "CANCELED"
	OrderExpired        OrderStatus = "EXPIRED"
	OrderRefunded       OrderStatus = "REFUNDED"
)

// SeatEffect is what an order transition does to the order's seats.
type SeatEffect int

const (
	SeatEffectNone SeatEffect = iota
	SeatEffectSell
	SeatEffectRelease
)

// Valid reports whether s is one of the declared statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPendingPayment, OrderConfirmed, OrderCanceled, OrderExpired, OrderRefunded:
		return true
	}
	return false
}

// Terminal reports whether the payment outcome of the order is settled.
// A confirmed order can still be refunded; nothing else leaves a terminal
// status.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderConfirmed, OrderCanceled, OrderExpired, OrderRefunded:
		return true
	}
	return false
}

// CanTransitionTo is the exhaustive order transition table.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderPendingPayment:
		return next == OrderConfirmed || next == OrderCanceled || next == OrderExpired
	case OrderConfirmed:
		return next == OrderRefunded
	case OrderCanceled, OrderExpired, OrderRefunded:
		return false
	}
	return false
}

// SeatEffect returns the seat transition that accompanies entering s.
func (s OrderStatus) SeatEffect() SeatEffect {
	switch s {
	case OrderConfirmed:
		return SeatEffectSell
	case OrderCanceled, OrderExpired, OrderRefunded:
		return SeatEffectRelease
	}
	return SeatEffectNone
}

// Order is a reservation of seats awaiting or holding payment.  It is
// created in the same transaction that moves its seats to RESERVED.
//
// Fields:
//
//	ID            – order identifier (uuid).
//	UserID        – session user that created the order.
//	PerformanceID – performance of every seat in the order.
//	Status        – payment lifecycle state.
//	SeatIDs       – reserved seats in seat order.
//	AmountCents   – total in minor currency units.
//	Currency      – ISO 4217 code, upper case.
//	PaymentRef    – payment intent reference once created.
type Order struct {
	ID            string      // orders.id
	UserID        string      // orders.user_id
	PerformanceID string      // orders.performance_id
	Status        OrderStatus // orders.status
	SeatIDs       []string    // order_lines.seat_id
	AmountCents   int64       // orders.amount_cents
	Currency      string      // orders.currency
	PaymentRef    *string     // orders.payment_ref (nullable)
	CreatedAt     time.Time   // orders.created_at
	UpdatedAt     time.Time   // orders.updated_at
}

// OrderLine prices one seat of an order.
type OrderLine struct {
	OrderID       string // order_lines.order_id
	PerformanceID string // order_lines.performance_id
	SeatID        string // order_lines.seat_id
	PriceCents    int64  // order_lines.price_cents
}

// OrderAudit records one applied order transition.
type OrderAudit struct {
	OrderID    string      // order_audit.order_id
	FromStatus OrderStatus // order_audit.from_status (empty on creation)
	ToStatus   OrderStatus // order_audit.to_status
	EventID    string      // order_audit.event_id (empty when not event driven)
	Reason     string      // order_audit.reason
	CreatedAt  time.Time   // order_audit.created_at
}

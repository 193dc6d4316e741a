package model

import "time"

// Payment provider event types the worker acts on.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventPaymentCanceled  = "payment_intent.canceled"
	EventChargeRefunded   = "charge.refunded"
)

// PaymentEvent is one row of the payment event outbox.  Rows are inserted
// once per provider event id and never deleted; only the outbox worker
// mutates them.
type PaymentEvent struct {
	ID            int64      // payment_events.id
	EventID       string     // payment_events.event_id (provider id, unique)
	Type          string     // payment_events.event_type
	Payload       []byte     // payment_events.payload
	Processed     bool       // payment_events.processed
	DeadLettered  bool       // payment_events.dead_lettered
	Attempts      int        // payment_events.attempts
	NextAttemptAt time.Time  // payment_events.next_attempt_at
	LastError     *string    // payment_events.last_error
	ClaimedBy     *string    // payment_events.claimed_by
	ClaimedUntil  *time.Time // payment_events.claimed_until
	CreatedAt     time.Time  // payment_events.created_at
}

// IngestResult distinguishes first delivery from provider retries.
type IngestResult string

const (
	IngestAccepted  IngestResult = "accepted"
	IngestDuplicate IngestResult = "duplicate"
)

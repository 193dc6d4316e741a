package model

import "time"

// IdempotencyStatus tracks whether the first request under a key finished.
type IdempotencyStatus string

const (
	IdempotencyInProgress IdempotencyStatus = "IN_PROGRESS"
	IdempotencyCompleted  IdempotencyStatus = "COMPLETED"
)

// IdempotencyRecord stores the response of a mutating request so retries
// with the same key and body replay it.
type IdempotencyRecord struct {
	Key         string            // idempotency_records.idem_key (hash of scope + client key)
	RequestHash string            // idempotency_records.request_hash
	Status      IdempotencyStatus // idempotency_records.status
	StatusCode  int               // idempotency_records.response_status
	ContentType string            // idempotency_records.response_content_type
	Body        []byte            // idempotency_records.response_body
	ExpiresAt   time.Time         // idempotency_records.expires_at
}

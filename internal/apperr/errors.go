// Package apperr defines the typed failures shared by the service, the HTTP
// layer and the outbox worker.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies failures for consistent HTTP mapping.
type Kind string

const (
	KindUnknown             Kind = "unknown"
	KindConflict            Kind = "conflict"
	KindStaleLock           Kind = "stale-lock"
	KindValidation          Kind = "validation"
	KindUnauthorized        Kind = "unauthorized"
	KindOwnership           Kind = "ownership"
	KindExpired             Kind = "expired"
	KindPrecondition        Kind = "precondition"
	KindNotFound            Kind = "not-found"
	KindIdempotencyConflict Kind = "idempotency-conflict"
	KindInvalidState        Kind = "invalid-state"
	KindTransient           Kind = "transient-store"
	KindUpstream            Kind = "upstream"
	KindPoisonEvent         Kind = "poison-event"
)

// Error is a typed application failure. SeatIDs is set for seat conflicts
// and stale locks so responses can list the offending seats.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	SeatIDs []string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(string(e.Kind))
	}
	if len(e.SeatIDs) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.SeatIDs, ","))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can write errors.Is(err, &Error{Kind: ...}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Op == "" && t.Message == ""
}

func newErr(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// Conflict reports seats that are already held or no longer available.
func Conflict(seatIDs []string) error {
	return &Error{Kind: KindConflict, Message: "seats unavailable", SeatIDs: seatIDs}
}

// StaleLock reports seats whose lock was lost or whose version moved on
// between hold and reservation.
func StaleLock(seatIDs []string) error {
	return &Error{Kind: KindStaleLock, Message: "seat locks are stale", SeatIDs: seatIDs}
}

func Validation(format string, args ...any) error {
	return newErr(KindValidation, fmt.Sprintf(format, args...))
}

func Unauthorized(msg string) error { return newErr(KindUnauthorized, msg) }
func Ownership(msg string) error    { return newErr(KindOwnership, msg) }
func Expired(msg string) error      { return newErr(KindExpired, msg) }
func Precondition(msg string) error { return newErr(KindPrecondition, msg) }
func NotFound(msg string) error     { return newErr(KindNotFound, msg) }
func InvalidState(msg string) error { return newErr(KindInvalidState, msg) }

func IdempotencyConflict(msg string) error { return newErr(KindIdempotencyConflict, msg) }

// Transient wraps a store failure (timeout, connection loss, deadlock) the
// caller may retry.
func Transient(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Message: "store unavailable", Err: err}
}

// Upstream wraps a failure of an external collaborator such as the payment
// provider.
func Upstream(op string, err error) error {
	return &Error{Kind: KindUpstream, Op: op, Message: "upstream failure", Err: err}
}

// PoisonEvent marks an outbox event that exhausted its retries.
func PoisonEvent(eventID string, err error) error {
	return &Error{Kind: KindPoisonEvent, Op: "outbox", Message: "event " + eventID + " dead-lettered", Err: err}
}

// As extracts the typed error from a chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindUnknown for untyped errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }

// SeatIDs returns the seats attached to err, if any.
func SeatIDs(err error) []string {
	if e, ok := As(err); ok {
		return e.SeatIDs
	}
	return nil
}

// HTTPStatus maps an error to an HTTP status code.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch KindOf(err) {
	case KindConflict, KindStaleLock, KindIdempotencyConflict, KindInvalidState:
		return http.StatusConflict
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindOwnership:
		return http.StatusForbidden
	case KindExpired:
		return http.StatusGone
	case KindPrecondition:
		return http.StatusPreconditionFailed
	case KindNotFound:
		return http.StatusNotFound
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message safe to show to clients. Wrapped causes
// of transient and upstream failures stay in the logs.
func PublicMessage(err error) string {
	e, ok := As(err)
	if !ok {
		return "internal error"
	}
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

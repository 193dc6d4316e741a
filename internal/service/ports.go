// Package service holds the seat reservation use cases: holds over the lock
// coordinator, promotion of holds into orders, order transitions and
// payment event ingestion.
package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/seatcore/internal/lock"
	"github.com/iliyamo/seatcore/internal/model"
)

// Session identifies the caller. UserID doubles as the lock holder token,
// so a hold can only be promoted or extended by the user who took it.
type Session struct {
	UserID string
}

// TxRunner runs fn in one database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// LockCoordinator is the seat lock layer (internal/lock).
type LockCoordinator interface {
	Acquire(ctx context.Context, performanceID string, seatIDs []string, holder string, ttl time.Duration) (*lock.Grant, error)
	Extend(ctx context.Context, holdID, holder string, additional time.Duration) (time.Time, error)
	Release(ctx context.Context, performanceID string, seatIDs []string, holder string) (int, error)
	ReleaseHold(ctx context.Context, holdID, holder string) (int, error)
	Verify(ctx context.Context, performanceID, seatID, holder string) (int64, bool, error)
	Hold(ctx context.Context, holdID string) (*model.Hold, error)
	LiveLocks(ctx context.Context, performanceID string, seatIDs []string) (map[string]bool, error)
}

// SeatStore is the durable seat version store.
type SeatStore interface {
	ReserveTx(ctx context.Context, tx *sql.Tx, performanceID, seatID string, expectedVersion int64, orderID string) (bool, error)
	MarkSoldTx(ctx context.Context, tx *sql.Tx, orderID string) (int64, error)
	ReleaseTx(ctx context.Context, tx *sql.Tx, orderID string) (int64, error)
	ListByPerformance(ctx context.Context, performanceID string) ([]model.Seat, error)
}

// OrderStore persists orders and their audit trail.
type OrderStore interface {
	CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order, lines []model.OrderLine) error
	GetByID(ctx context.Context, id string) (*model.Order, error)
	GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Order, error)
	GetByPaymentRefForUpdateTx(ctx context.Context, tx *sql.Tx, paymentRef string) (*model.Order, error)
	UpdateStatusTx(ctx context.Context, tx *sql.Tx, id string, from, to model.OrderStatus) (bool, error)
	SetPaymentRef(ctx context.Context, id, paymentRef string) error
	InsertAuditTx(ctx context.Context, tx *sql.Tx, a model.OrderAudit) error
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// Catalog prices seats.
type Catalog interface {
	SeatPrices(ctx context.Context, performanceID string, seatIDs []string) (map[string]model.SeatPrice, error)
}

// TaskScheduler enqueues retried background work.
type TaskScheduler interface {
	ScheduleCancelIntent(ctx context.Context, orderID, paymentRef, reason string) error
}

// EventRecorder is the write side of the payment event outbox.
type EventRecorder interface {
	Insert(ctx context.Context, eventID, eventType string, payload []byte) (model.IngestResult, error)
}

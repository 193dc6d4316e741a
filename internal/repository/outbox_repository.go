package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/seatcore/internal/database"
	"github.com/iliyamo/seatcore/internal/model"
)

// OutboxRepo is the durable payment event outbox. Rows are inserted once per
// provider event id and are never deleted; the outbox worker claims due rows
// under a lease and marks them processed or dead-lettered.
type OutboxRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewOutboxRepo(db *sql.DB) *OutboxRepo {
	return &OutboxRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Insert records a provider event. A second delivery of the same event id
// hits the unique key and is reported as a duplicate, not an error.
func (r *OutboxRepo) Insert(ctx context.Context, eventID, eventType string, payload []byte) (model.IngestResult, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_events (event_id, event_type, payload, next_attempt_at) VALUES (?, ?, ?, ?)`,
		eventID, eventType, payload, r.now(),
	)
	if database.IsDuplicateKey(err) {
		return model.IngestDuplicate, nil
	}
	if err != nil {
		return "", fmt.Errorf("insert payment event: %w", err)
	}
	return model.IngestAccepted, nil
}

// Claim leases up to limit due rows to workerID. Rows locked by a concurrent
// claimer are skipped rather than waited on.
func (r *OutboxRepo) Claim(ctx context.Context, workerID string, limit int, lease time.Duration) ([]model.PaymentEvent, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := r.now()
	rows, err := tx.QueryContext(ctx,
		`SELECT id, event_id, event_type, payload, attempts, next_attempt_at, created_at
		 FROM payment_events
		 WHERE processed = 0 AND next_attempt_at <= ? AND (claimed_until IS NULL OR claimed_until < ?)
		 ORDER BY id
		 LIMIT ?
		 FOR UPDATE SKIP LOCKED`,
		now, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select due events: %w", err)
	}
	var events []model.PaymentEvent
	for rows.Next() {
		var ev model.PaymentEvent
		if err := rows.Scan(&ev.ID, &ev.EventID, &ev.Type, &ev.Payload, &ev.Attempts, &ev.NextAttemptAt, &ev.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		committed = true
		return nil, nil
	}

	until := now.Add(lease)
	args := []any{workerID, until}
	for _, ev := range events {
		args = append(args, ev.ID)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE payment_events SET claimed_by = ?, claimed_until = ? WHERE id IN (`+inClause(len(events))+`)`,
		args...,
	); err != nil {
		return nil, fmt.Errorf("lease events: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	for i := range events {
		events[i].ClaimedBy = &workerID
		events[i].ClaimedUntil = &until
	}
	return events, nil
}

// LockClaimedTx re-locks a claimed row inside the processing tx. It reports
// false when the row was processed meanwhile or the lease moved to another
// worker.
func (r *OutboxRepo) LockClaimedTx(ctx context.Context, tx *sql.Tx, id int64, workerID string) (bool, error) {
	var (
		processed bool
		claimedBy sql.NullString
	)
	err := tx.QueryRowContext(ctx,
		`SELECT processed, claimed_by FROM payment_events WHERE id = ? FOR UPDATE`, id,
	).Scan(&processed, &claimedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return !processed && claimedBy.Valid && claimedBy.String == workerID, nil
}

// MarkProcessedTx finishes an event in the same tx as its effects. note is
// kept in last_error for events skipped without effect.
func (r *OutboxRepo) MarkProcessedTx(ctx context.Context, tx *sql.Tx, id int64, note string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE payment_events
		 SET processed = 1, processed_at = ?, last_error = NULLIF(?, ''), claimed_by = NULL, claimed_until = NULL
		 WHERE id = ?`,
		r.now(), note, id,
	)
	return err
}

// Retry releases the lease and schedules the next attempt.
func (r *OutboxRepo) Retry(ctx context.Context, id int64, workerID string, attempts int, next time.Time, errMsg string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payment_events
		 SET attempts = ?, next_attempt_at = ?, last_error = ?, claimed_by = NULL, claimed_until = NULL
		 WHERE id = ? AND claimed_by = ? AND processed = 0`,
		attempts, next.UTC(), errMsg, id, workerID,
	)
	return err
}

// DeadLetter parks an event that exhausted its attempts. The row stays for
// manual remediation.
func (r *OutboxRepo) DeadLetter(ctx context.Context, id int64, workerID string, attempts int, errMsg string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payment_events
		 SET processed = 1, dead_lettered = 1, attempts = ?, last_error = ?, processed_at = ?, claimed_by = NULL, claimed_until = NULL
		 WHERE id = ? AND claimed_by = ? AND processed = 0`,
		attempts, errMsg, r.now(), id, workerID,
	)
	return err
}

// ReleaseClaims drops workerID's leases on rows it will not process, so
// another worker can pick them up without waiting for the lease to lapse.
func (r *OutboxRepo) ReleaseClaims(ctx context.Context, workerID string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := []any{workerID}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE payment_events SET claimed_by = NULL, claimed_until = NULL
		 WHERE claimed_by = ? AND processed = 0 AND id IN (`+inClause(len(ids))+`)`,
		args...,
	)
	return err
}

// ListDeadLettered returns parked events, newest first.
func (r *OutboxRepo) ListDeadLettered(ctx context.Context, limit int) ([]model.PaymentEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_id, event_type, attempts, last_error, created_at
		 FROM payment_events WHERE dead_lettered = 1 ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PaymentEvent
	for rows.Next() {
		var (
			ev      model.PaymentEvent
			lastErr sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.EventID, &ev.Type, &ev.Attempts, &lastErr, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Processed, ev.DeadLettered = true, true
		if lastErr.Valid {
			ev.LastError = &lastErr.String
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Requeue puts a dead-lettered event back in the queue with a fresh attempt
// budget.
func (r *OutboxRepo) Requeue(ctx context.Context, eventID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_events
		 SET processed = 0, dead_lettered = 0, attempts = 0, next_attempt_at = ?, processed_at = NULL
		 WHERE event_id = ? AND dead_lettered = 1`,
		r.now(), eventID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

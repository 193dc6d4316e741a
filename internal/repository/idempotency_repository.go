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

// IdempotencyRepo stores responses of mutating requests keyed by the
// client's Idempotency-Key.
type IdempotencyRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewIdempotencyRepo(db *sql.DB) *IdempotencyRepo {
	return &IdempotencyRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Begin claims key for a new request. When the key is already claimed, the
// existing record is returned with created=false. Expired records are
// replaced.
func (r *IdempotencyRepo) Begin(ctx context.Context, key, requestHash string, ttl time.Duration) (*model.IdempotencyRecord, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		now := r.now()
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO idempotency_records (idem_key, request_hash, status, expires_at) VALUES (?, ?, 'IN_PROGRESS', ?)`,
			key, requestHash, now.Add(ttl),
		)
		if err == nil {
			return &model.IdempotencyRecord{Key: key, RequestHash: requestHash, Status: model.IdempotencyInProgress, ExpiresAt: now.Add(ttl)}, true, nil
		}
		if !database.IsDuplicateKey(err) {
			return nil, false, fmt.Errorf("insert idempotency record: %w", err)
		}
		rec, err := r.get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		if rec.ExpiresAt.After(now) {
			return rec, false, nil
		}
		if _, err := r.db.ExecContext(ctx,
			`DELETE FROM idempotency_records WHERE idem_key = ? AND expires_at <= ?`, key, now); err != nil {
			return nil, false, err
		}
	}
	return nil, false, fmt.Errorf("idempotency key %s: %w", key, ErrConflict)
}

func (r *IdempotencyRepo) get(ctx context.Context, key string) (*model.IdempotencyRecord, error) {
	var (
		rec         model.IdempotencyRecord
		status      sql.NullInt64
		contentType sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT idem_key, request_hash, status, response_status, response_content_type, response_body, expires_at
		 FROM idempotency_records WHERE idem_key = ?`, key,
	).Scan(&rec.Key, &rec.RequestHash, &rec.Status, &status, &contentType, &rec.Body, &rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.StatusCode = int(status.Int64)
	rec.ContentType = contentType.String
	return &rec, nil
}

// Complete stores the final response for replay.
func (r *IdempotencyRepo) Complete(ctx context.Context, key string, statusCode int, contentType string, body []byte) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE idempotency_records
		 SET status = 'COMPLETED', response_status = ?, response_content_type = ?, response_body = ?
		 WHERE idem_key = ?`,
		statusCode, contentType, body, key,
	)
	return err
}

// Discard forgets an in-progress key so the client may retry, used when the
// request failed in a way that must not be replayed.
func (r *IdempotencyRepo) Discard(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_records WHERE idem_key = ? AND status = 'IN_PROGRESS'`, key)
	return err
}

// PurgeExpired deletes records past their expiry.
func (r *IdempotencyRepo) PurgeExpired(ctx context.Context, limit int) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_records WHERE expires_at <= ? LIMIT ?`, r.now(), limit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

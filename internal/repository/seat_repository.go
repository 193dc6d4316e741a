package repository // repository for seat inventory persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/seatcore/internal/model"
)

// SeatRepo is the seat version store: the durable source of truth for seat
// state. Every state change goes through a compare-and-set on version and
// bumps it.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo given a DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

// Versions returns state and version for the requested seats. Seats that
// do not exist are absent from the map.
func (r *SeatRepo) Versions(ctx context.Context, performanceID string, seatIDs []string) (map[string]model.SeatVersion, error) {
	out := make(map[string]model.SeatVersion, len(seatIDs))
	if len(seatIDs) == 0 {
		return out, nil
	}
	query := `SELECT seat_id, state, version FROM seats WHERE performance_id = ? AND seat_id IN (` + inClause(len(seatIDs)) + `)`
	rows, err := r.db.QueryContext(ctx, query, stringArgs([]any{performanceID}, seatIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query seat versions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id string
			sv model.SeatVersion
		)
		if err := rows.Scan(&id, &sv.State, &sv.Version); err != nil {
			return nil, err
		}
		out[id] = sv
	}
	return out, rows.Err()
}

// ReserveTx moves one AVAILABLE seat at expectedVersion to RESERVED, bound
// to orderID. It reports false when the seat's version or state moved on,
// which means the caller's lock is stale.
func (r *SeatRepo) ReserveTx(ctx context.Context, tx *sql.Tx, performanceID, seatID string, expectedVersion int64, orderID string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE seats SET state = 'RESERVED', order_id = ?, version = version + 1
		 WHERE performance_id = ? AND seat_id = ? AND version = ? AND state = 'AVAILABLE'`,
		orderID, performanceID, seatID, expectedVersion,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// lockOrderSeatsTx takes row locks on every seat of an order in seat_id
// order so bulk transitions never deadlock against each other.
func (r *SeatRepo) lockOrderSeatsTx(ctx context.Context, tx *sql.Tx, orderID string) (int, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT seat_id FROM seats WHERE order_id = ? ORDER BY seat_id FOR UPDATE`, orderID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		n++
	}
	return n, rows.Err()
}

// MarkSoldTx moves every RESERVED seat of orderID to SOLD.
func (r *SeatRepo) MarkSoldTx(ctx context.Context, tx *sql.Tx, orderID string) (int64, error) {
	if _, err := r.lockOrderSeatsTx(ctx, tx, orderID); err != nil {
		return 0, fmt.Errorf("lock order seats: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE seats SET state = 'SOLD', version = version + 1 WHERE order_id = ? AND state = 'RESERVED'`,
		orderID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReleaseTx returns every seat bound to orderID to AVAILABLE and unbinds it.
func (r *SeatRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, orderID string) (int64, error) {
	if _, err := r.lockOrderSeatsTx(ctx, tx, orderID); err != nil {
		return 0, fmt.Errorf("lock order seats: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE seats SET state = 'AVAILABLE', order_id = NULL, version = version + 1 WHERE order_id = ?`,
		orderID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListByPerformance returns every seat of a performance in seat order.
func (r *SeatRepo) ListByPerformance(ctx context.Context, performanceID string) ([]model.Seat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT performance_id, seat_id, state, order_id, version, updated_at
		 FROM seats WHERE performance_id = ? ORDER BY seat_id`, performanceID)
	if err != nil {
		return nil, fmt.Errorf("list seats: %w", err)
	}
	defer rows.Close()
	var seats []model.Seat
	for rows.Next() {
		var (
			s       model.Seat
			orderID sql.NullString
		)
		if err := rows.Scan(&s.PerformanceID, &s.SeatID, &s.State, &orderID, &s.Version, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if orderID.Valid {
			s.OrderID = &orderID.String
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

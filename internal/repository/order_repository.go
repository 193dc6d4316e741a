package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/seatcore/internal/model"
)

// OrderRepo persists orders, their seat lines and the transition audit.
type OrderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

const orderColumns = `id, user_id, performance_id, status, amount_cents, currency, payment_ref, created_at, updated_at`

// CreateTx inserts the order and one line per seat inside tx.
func (r *OrderRepo) CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order, lines []model.OrderLine) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, performance_id, status, amount_cents, currency) VALUES (?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.PerformanceID, o.Status, o.AmountCents, o.Currency,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	if len(lines) == 0 {
		return nil
	}
	query := `INSERT INTO order_lines (order_id, performance_id, seat_id, price_cents) VALUES `
	args := make([]any, 0, len(lines)*4)
	for i, l := range lines {
		if i > 0 {
			query += ", "
		}
		query += "(?, ?, ?, ?)"
		args = append(args, l.OrderID, l.PerformanceID, l.SeatID, l.PriceCents)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert order lines: %w", err)
	}
	return nil
}

func scanOrder(row *sql.Row) (*model.Order, error) {
	var (
		o   model.Order
		ref sql.NullString
	)
	err := row.Scan(&o.ID, &o.UserID, &o.PerformanceID, &o.Status, &o.AmountCents, &o.Currency, &ref, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if ref.Valid {
		o.PaymentRef = &ref.String
	}
	return &o, nil
}

func (r *OrderRepo) loadSeatIDs(ctx context.Context, q queryer, o *model.Order) error {
	rows, err := q.QueryContext(ctx, `SELECT seat_id FROM order_lines WHERE order_id = ? ORDER BY seat_id`, o.ID)
	if err != nil {
		return fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()
	o.SeatIDs = o.SeatIDs[:0]
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		o.SeatIDs = append(o.SeatIDs, id)
	}
	return rows.Err()
}

func (r *OrderRepo) get(ctx context.Context, q queryer, query string, arg any) (*model.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	if err := r.loadSeatIDs(ctx, q, o); err != nil {
		return nil, err
	}
	return o, nil
}

// GetByID loads an order with its seats.
func (r *OrderRepo) GetByID(ctx context.Context, id string) (*model.Order, error) {
	return r.get(ctx, r.db, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
}

// GetForUpdateTx loads and row-locks an order.
func (r *OrderRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Order, error) {
	return r.get(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = ? FOR UPDATE`, id)
}

// GetByPaymentRefForUpdateTx loads and row-locks the order owning a payment
// intent.
func (r *OrderRepo) GetByPaymentRefForUpdateTx(ctx context.Context, tx *sql.Tx, paymentRef string) (*model.Order, error) {
	return r.get(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE payment_ref = ? FOR UPDATE`, paymentRef)
}

// UpdateStatusTx moves an order from one status to another. It reports
// false when the order was no longer in from.
func (r *OrderRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id string, from, to model.OrderStatus) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetPaymentRef links the payment intent to a pending order.
func (r *OrderRepo) SetPaymentRef(ctx context.Context, id, paymentRef string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET payment_ref = ? WHERE id = ? AND payment_ref IS NULL`, paymentRef, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// InsertAuditTx records an applied transition in the same tx as the
// transition itself.
func (r *OrderRepo) InsertAuditTx(ctx context.Context, tx *sql.Tx, a model.OrderAudit) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO order_audit (order_id, from_status, to_status, event_id, reason) VALUES (?, NULLIF(?, ''), ?, NULLIF(?, ''), ?)`,
		a.OrderID, string(a.FromStatus), string(a.ToStatus), a.EventID, a.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert order audit: %w", err)
	}
	return nil
}

// ListAudit returns the transitions of an order, oldest first.
func (r *OrderRepo) ListAudit(ctx context.Context, orderID string) ([]model.OrderAudit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT order_id, COALESCE(from_status, ''), to_status, COALESCE(event_id, ''), reason, created_at
		 FROM order_audit WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.OrderAudit
	for rows.Next() {
		var a model.OrderAudit
		if err := rows.Scan(&a.OrderID, &a.FromStatus, &a.ToStatus, &a.EventID, &a.Reason, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListExpiredPending returns ids of PENDING_PAYMENT orders created before
// cutoff, oldest first.
func (r *OrderRepo) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM orders WHERE status = 'PENDING_PAYMENT' AND created_at < ? ORDER BY created_at LIMIT ?`,
		cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/seatcore/internal/apperr"
	"github.com/iliyamo/seatcore/internal/model"
)

// Cause explains a transition in the audit trail.
type Cause struct {
	EventID string
	Reason  string
}

// Transitions applies order status changes together with their seat effect
// and audit row, inside the caller's transaction. The order row must already
// be locked by the caller.
type Transitions struct {
	seats  SeatStore
	orders OrderStore
}

func NewTransitions(seats SeatStore, orders OrderStore) *Transitions {
	return &Transitions{seats: seats, orders: orders}
}

func (t *Transitions) ApplyTx(ctx context.Context, tx *sql.Tx, o *model.Order, to model.OrderStatus, cause Cause) error {
	from := o.Status
	if !from.CanTransitionTo(to) {
		return apperr.InvalidState(fmt.Sprintf("order %s cannot move from %s to %s", o.ID, from, to))
	}
	ok, err := t.orders.UpdateStatusTx(ctx, tx, o.ID, from, to)
	if err != nil {
		return storeErr("order.update_status", err)
	}
	if !ok {
		return apperr.InvalidState(fmt.Sprintf("order %s is no longer %s", o.ID, from))
	}
	switch to.SeatEffect() {
	case model.SeatEffectSell:
		n, err := t.seats.MarkSoldTx(ctx, tx, o.ID)
		if err != nil {
			return storeErr("seats.mark_sold", err)
		}
		if int(n) != len(o.SeatIDs) {
			return fmt.Errorf("order %s: sold %d of %d seats", o.ID, n, len(o.SeatIDs))
		}
	case model.SeatEffectRelease:
		if _, err := t.seats.ReleaseTx(ctx, tx, o.ID); err != nil {
			return storeErr("seats.release", err)
		}
	case model.SeatEffectNone:
	}
	if err := t.orders.InsertAuditTx(ctx, tx, model.OrderAudit{
		OrderID:    o.ID,
		FromStatus: from,
		ToStatus:   to,
		EventID:    cause.EventID,
		Reason:     cause.Reason,
	}); err != nil {
		return storeErr("order.audit", err)
	}
	o.Status = to
	return nil
}

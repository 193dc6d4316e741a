package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/seatcore/internal/apperr"
	"github.com/iliyamo/seatcore/internal/catalog"
	"github.com/iliyamo/seatcore/internal/lock"
	"github.com/iliyamo/seatcore/internal/model"
	"github.com/iliyamo/seatcore/internal/payment"
	"github.com/iliyamo/seatcore/internal/repository"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// CreateOrderInput is the client's view of the order it wants to pay for.
type CreateOrderInput struct {
	PerformanceID string
	SeatIDs       []string
	AmountCents   int64
	Currency      string
}

// CreatedOrder is returned once the order exists and the payment intent was
// opened.
type CreatedOrder struct {
	Order        *model.Order
	ClientSecret string
}

func (s *ReservationService) validateOrder(ctx context.Context, in *CreateOrderInput) ([]model.OrderLine, error) {
	if err := validID("performance id", in.PerformanceID); err != nil {
		return nil, err
	}
	in.SeatIDs = lock.Normalize(in.SeatIDs)
	if err := validSeatIDs(in.SeatIDs, s.cfg.MaxSeats); err != nil {
		return nil, err
	}
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if !currencyPattern.MatchString(in.Currency) {
		return nil, apperr.Validation("invalid currency %q", in.Currency)
	}
	if in.AmountCents <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}

	prices, err := s.catalog.SeatPrices(ctx, in.PerformanceID, in.SeatIDs)
	if err != nil {
		return nil, storeErr("catalog.seat_prices", err)
	}
	total, currency, missing, err := catalog.Quote(prices, in.SeatIDs)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("unknown seats %v", missing)
	}
	if total != in.AmountCents || currency != in.Currency {
		return nil, apperr.Validation("amount %d %s does not match price %d %s", in.AmountCents, in.Currency, total, currency)
	}

	lines := make([]model.OrderLine, 0, len(in.SeatIDs))
	for _, id := range in.SeatIDs {
		lines = append(lines, model.OrderLine{
			PerformanceID: in.PerformanceID,
			SeatID:        id,
			PriceCents:    prices[id].AmountCents,
		})
	}
	return lines, nil
}

// CreateOrder promotes the session's live locks on in.SeatIDs into a
// PENDING_PAYMENT order and opens a payment intent for it.
func (s *ReservationService) CreateOrder(ctx context.Context, sess Session, in CreateOrderInput) (_ *CreatedOrder, err error) {
	ctx, span := s.tracer.Start(ctx, "ReservationService.CreateOrder", trace.WithAttributes(
		attribute.String("performance.id", in.PerformanceID),
		attribute.Int("seat.count", len(in.SeatIDs)),
	))
	defer func() { endSpan(span, err) }()

	lines, err := s.validateOrder(ctx, &in)
	if err != nil {
		return nil, err
	}

	fencing := make(map[string]int64, len(in.SeatIDs))
	var stale []string
	for _, id := range in.SeatIDs {
		tok, ok, err := s.locks.Verify(ctx, in.PerformanceID, id, sess.UserID)
		if err != nil {
			return nil, err
		}
		if !ok {
			stale = append(stale, id)
			continue
		}
		fencing[id] = tok
	}
	if len(stale) > 0 {
		return nil, apperr.StaleLock(stale)
	}

	order := &model.Order{
		ID:            s.newID(),
		UserID:        sess.UserID,
		PerformanceID: in.PerformanceID,
		Status:        model.OrderPendingPayment,
		SeatIDs:       in.SeatIDs,
		AmountCents:   in.AmountCents,
		Currency:      in.Currency,
	}
	for i := range lines {
		lines[i].OrderID = order.ID
	}

	err = s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.orders.CreateTx(ctx, tx, order, lines); err != nil {
			return storeErr("order.create", err)
		}
		for _, id := range in.SeatIDs {
			ok, err := s.seats.ReserveTx(ctx, tx, in.PerformanceID, id, fencing[id]-1, order.ID)
			if err != nil {
				return storeErr("seats.reserve", err)
			}
			if !ok {
				return apperr.StaleLock([]string{id})
			}
		}
		return storeErr("order.audit", s.orders.InsertAuditTx(ctx, tx, model.OrderAudit{
			OrderID:  order.ID,
			ToStatus: model.OrderPendingPayment,
			Reason:   "order created",
		}))
	})
	if err != nil {
		return nil, storeErr("order.create", err)
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	// The seats are RESERVED now; the locks only block other holders.
	if _, err := s.locks.Release(ctx, in.PerformanceID, in.SeatIDs, sess.UserID); err != nil {
		s.log.WarnContext(ctx, "release locks after reserve", "order_id", order.ID, "err", err)
	}

	intent, err := s.payments.CreatePaymentIntent(ctx, payment.IntentRequest{
		OrderID:        order.ID,
		AmountCents:    order.AmountCents,
		Currency:       order.Currency,
		IdempotencyKey: "order:" + order.ID,
	})
	if err != nil {
		s.compensate(ctx, order.ID, "", "payment intent creation failed")
		return nil, apperr.Upstream("payment.create_intent", err)
	}
	if err := s.orders.SetPaymentRef(ctx, order.ID, intent.Ref); err != nil {
		s.compensate(ctx, order.ID, intent.Ref, "payment reference not stored")
		return nil, storeErr("order.set_payment_ref", err)
	}
	order.PaymentRef = &intent.Ref

	s.log.InfoContext(ctx, "order created", "order_id", order.ID, "performance_id", order.PerformanceID, "seats", len(order.SeatIDs), "amount_cents", order.AmountCents, "currency", order.Currency)
	return &CreatedOrder{Order: order, ClientSecret: intent.ClientSecret}, nil
}

// compensate cancels an order whose payment side could not be set up. If it
// fails the order stays pending and the expiry reaper picks it up.
func (s *ReservationService) compensate(ctx context.Context, orderID, paymentRef, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cleanupTimeout)
	defer cancel()

	err := s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		o, err := s.orders.GetForUpdateTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		return s.transitions.ApplyTx(ctx, tx, o, model.OrderCanceled, Cause{Reason: reason})
	})
	if err != nil {
		s.log.ErrorContext(ctx, "compensate order", "order_id", orderID, "reason", reason, "err", err)
		return
	}
	s.log.WarnContext(ctx, "order canceled", "order_id", orderID, "reason", reason)
	if paymentRef != "" {
		if err := s.tasks.ScheduleCancelIntent(ctx, orderID, paymentRef, reason); err != nil {
			s.log.ErrorContext(ctx, "schedule intent cancel", "order_id", orderID, "err", err)
		}
	}
}

// GetOrder returns an order owned by the session user.
func (s *ReservationService) GetOrder(ctx context.Context, sess Session, orderID string) (*model.Order, error) {
	if err := validID("order id", orderID); err != nil {
		return nil, err
	}
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, storeErr("order.get", err)
	}
	if o.UserID != sess.UserID {
		return nil, apperr.Ownership("order belongs to another user")
	}
	return o, nil
}

// CancelOrder abandons a pending order and frees its seats.
func (s *ReservationService) CancelOrder(ctx context.Context, sess Session, orderID string) (_ *model.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "ReservationService.CancelOrder", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer func() { endSpan(span, err) }()

	if err := validID("order id", orderID); err != nil {
		return nil, err
	}
	var order *model.Order
	err = s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		o, err := s.orders.GetForUpdateTx(ctx, tx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("order not found")
		}
		if err != nil {
			return storeErr("order.get", err)
		}
		if o.UserID != sess.UserID {
			return apperr.Ownership("order belongs to another user")
		}
		if o.Status != model.OrderPendingPayment {
			return apperr.InvalidState("order is " + string(o.Status))
		}
		if err := s.transitions.ApplyTx(ctx, tx, o, model.OrderCanceled, Cause{Reason: "canceled by customer"}); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, storeErr("order.cancel", err)
	}
	if order.PaymentRef != nil {
		if err := s.tasks.ScheduleCancelIntent(ctx, order.ID, *order.PaymentRef, "canceled by customer"); err != nil {
			s.log.ErrorContext(ctx, "schedule intent cancel", "order_id", order.ID, "err", err)
		}
	}
	s.log.InfoContext(ctx, "order canceled", "order_id", order.ID, "user_id", sess.UserID)
	return order, nil
}

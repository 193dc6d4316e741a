package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/seatcore/internal/apperr"
	"github.com/iliyamo/seatcore/internal/lock"
	"github.com/iliyamo/seatcore/internal/model"
)

func (s *ReservationService) ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl == 0 {
		return s.cfg.DefaultTTL
	}
	return ttl
}

// HoldSeats places an all-or-nothing hold on seatIDs for the session user.
func (s *ReservationService) HoldSeats(ctx context.Context, sess Session, performanceID string, seatIDs []string, ttl time.Duration) (_ *lock.Grant, err error) {
	ctx, span := s.tracer.Start(ctx, "ReservationService.HoldSeats", trace.WithAttributes(
		attribute.String("performance.id", performanceID),
		attribute.Int("seat.count", len(seatIDs)),
	))
	defer func() { endSpan(span, err) }()

	if err := validID("performance id", performanceID); err != nil {
		return nil, err
	}
	seatIDs = lock.Normalize(seatIDs)
	if err := validSeatIDs(seatIDs, s.cfg.MaxSeats); err != nil {
		return nil, err
	}
	prices, err := s.catalog.SeatPrices(ctx, performanceID, seatIDs)
	if err != nil {
		return nil, storeErr("catalog.seat_prices", err)
	}
	var unknown []string
	for _, id := range seatIDs {
		if _, ok := prices[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return nil, apperr.Validation("unknown seats %v", unknown)
	}

	g, err := s.locks.Acquire(ctx, performanceID, seatIDs, sess.UserID, s.ttlOrDefault(ttl))
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "seats held", "hold_id", g.HoldID, "performance_id", performanceID, "seats", len(g.SeatIDs), "user_id", sess.UserID)
	return g, nil
}

// holdFor loads a hold and checks that the session owns it and that the
// presented fencing token was issued for it.
func (s *ReservationService) holdFor(ctx context.Context, sess Session, holdID string, fencing *int64) (*model.Hold, error) {
	if fencing == nil {
		return nil, apperr.Precondition("fencing token required")
	}
	h, err := s.locks.Hold(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if h.HolderToken != sess.UserID {
		return nil, apperr.Ownership("hold belongs to another holder")
	}
	if !h.HasFencingToken(*fencing) {
		return nil, apperr.Precondition("fencing token does not match hold")
	}
	return h, nil
}

// ExtendHold pushes the deadline of every surviving lock in the hold.
func (s *ReservationService) ExtendHold(ctx context.Context, sess Session, holdID string, ttl time.Duration, fencing *int64) (_ time.Time, err error) {
	ctx, span := s.tracer.Start(ctx, "ReservationService.ExtendHold", trace.WithAttributes(attribute.String("hold.id", holdID)))
	defer func() { endSpan(span, err) }()

	if _, err := s.holdFor(ctx, sess, holdID, fencing); err != nil {
		return time.Time{}, err
	}
	return s.locks.Extend(ctx, holdID, sess.UserID, s.ttlOrDefault(ttl))
}

// ReleaseHold drops the hold early. Releasing is idempotent at the lock
// layer, but the hold record must still exist.
func (s *ReservationService) ReleaseHold(ctx context.Context, sess Session, holdID string, fencing *int64) (err error) {
	ctx, span := s.tracer.Start(ctx, "ReservationService.ReleaseHold", trace.WithAttributes(attribute.String("hold.id", holdID)))
	defer func() { endSpan(span, err) }()

	if _, err := s.holdFor(ctx, sess, holdID, fencing); err != nil {
		return err
	}
	n, err := s.locks.ReleaseHold(ctx, holdID, sess.UserID)
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "hold released", "hold_id", holdID, "locks", n)
	return nil
}

// Package worker drains the payment event outbox: it claims due events,
// applies each one to its order in a single transaction and schedules the
// side effects that must only happen after commit.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/seatcore/internal/apperr"
	"github.com/iliyamo/seatcore/internal/config"
	"github.com/iliyamo/seatcore/internal/model"
	"github.com/iliyamo/seatcore/internal/notify"
	"github.com/iliyamo/seatcore/internal/payment"
	"github.com/iliyamo/seatcore/internal/repository"
	"github.com/iliyamo/seatcore/internal/service"
	"github.com/iliyamo/seatcore/internal/telemetry"
)

// Outbox is the worker side of the payment event table.
type Outbox interface {
	Claim(ctx context.Context, workerID string, limit int, lease time.Duration) ([]model.PaymentEvent, error)
	LockClaimedTx(ctx context.Context, tx *sql.Tx, id int64, workerID string) (bool, error)
	MarkProcessedTx(ctx context.Context, tx *sql.Tx, id int64, note string) error
	Retry(ctx context.Context, id int64, workerID string, attempts int, next time.Time, errMsg string) error
	DeadLetter(ctx context.Context, id int64, workerID string, attempts int, errMsg string) error
	ReleaseClaims(ctx context.Context, workerID string, ids []int64) error
}

// OrderLocker loads the order an event refers to under a row lock.
type OrderLocker interface {
	GetByPaymentRefForUpdateTx(ctx context.Context, tx *sql.Tx, paymentRef string) (*model.Order, error)
}

// Notifier receives confirmed orders.
type Notifier interface {
	OrderConfirmed(ctx context.Context, ev notify.OrderConfirmedEvent) error
}

// errLeaseLost means another worker owns the row now; nothing to record.
var errLeaseLost = errors.New("outbox lease lost")

// rule maps an event type to the order transition it drives.
type rule struct {
	from   model.OrderStatus
	to     model.OrderStatus
	reason string
	// cancelIntent asks the provider to cancel an intent that may still be
	// open after the order left PENDING_PAYMENT.
	cancelIntent bool
}

var rules = map[string]rule{
	model.EventPaymentSucceeded: {from: model.OrderPendingPayment, to: model.OrderConfirmed, reason: "payment succeeded"},
	model.EventPaymentFailed:    {from: model.OrderPendingPayment, to: model.OrderCanceled, reason: "payment failed", cancelIntent: true},
	model.EventPaymentCanceled:  {from: model.OrderPendingPayment, to: model.OrderCanceled, reason: "payment canceled"},
	model.EventChargeRefunded:   {from: model.OrderConfirmed, to: model.OrderRefunded, reason: "charge refunded"},
}

// Processor applies one outbox event.
type Processor struct {
	outbox      Outbox
	orders      OrderLocker
	tx          service.TxRunner
	transitions *service.Transitions
	notifier    Notifier
	tasks       service.TaskScheduler
	cfg         config.OutboxConfig
	log         *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
	jitter      func(time.Duration) time.Duration
}

func NewProcessor(outbox Outbox, orders OrderLocker, tx service.TxRunner, transitions *service.Transitions,
	notifier Notifier, tasks service.TaskScheduler, cfg config.OutboxConfig, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		outbox:      outbox,
		orders:      orders,
		tx:          tx,
		transitions: transitions,
		notifier:    notifier,
		tasks:       tasks,
		cfg:         cfg,
		log:         log.With("component", "outbox"),
		tracer:      telemetry.Tracer("seatcore/worker"),
		now:         time.Now,
		jitter:      fullJitter,
	}
}

// outcome is what happened inside the transaction, for post-commit work.
type outcome struct {
	order *model.Order
	rule  rule
	note  string
}

// Process runs the event transaction. It returns nil when the event was
// applied or skipped as semantically void; both mark the row processed.
func (p *Processor) Process(ctx context.Context, workerID string, ev model.PaymentEvent) (err error) {
	ctx, span := p.tracer.Start(ctx, "outbox.process", trace.WithAttributes(
		attribute.String("event.id", ev.EventID),
		attribute.String("event.type", ev.Type),
		attribute.Int("event.attempts", ev.Attempts),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "process event")
		}
		span.End()
	}()

	var out outcome
	err = p.tx.WithTx(ctx, func(tx *sql.Tx) error {
		out = outcome{}
		ok, err := p.outbox.LockClaimedTx(ctx, tx, ev.ID, workerID)
		if err != nil {
			return fmt.Errorf("lock event: %w", err)
		}
		if !ok {
			return errLeaseLost
		}
		out, err = p.apply(ctx, tx, ev)
		if err != nil {
			return err
		}
		return p.outbox.MarkProcessedTx(ctx, tx, ev.ID, out.note)
	})
	if err != nil {
		return err
	}

	if out.note != "" {
		p.log.WarnContext(ctx, "event skipped", "event_id", ev.EventID, "type", ev.Type, "note", out.note)
		return nil
	}
	p.log.InfoContext(ctx, "event applied", "event_id", ev.EventID, "type", ev.Type, "order_id", out.order.ID, "status", out.order.Status)
	p.afterCommit(ctx, ev, out)
	return nil
}

func (p *Processor) apply(ctx context.Context, tx *sql.Tx, ev model.PaymentEvent) (outcome, error) {
	r, ok := rules[ev.Type]
	if !ok {
		return outcome{note: "unhandled event type " + ev.Type}, nil
	}
	pe, err := payment.ParseEvent(ev.Payload)
	if err != nil {
		return outcome{note: "malformed payload: " + err.Error()}, nil
	}
	ref := pe.PaymentRef()
	if ref == "" {
		return outcome{note: "event without payment reference"}, nil
	}

	o, err := p.orders.GetByPaymentRefForUpdateTx(ctx, tx, ref)
	if errors.Is(err, repository.ErrNotFound) {
		return outcome{note: "no order for payment " + ref}, nil
	}
	if err != nil {
		return outcome{}, fmt.Errorf("load order: %w", err)
	}
	if o.Status != r.from {
		return outcome{note: fmt.Sprintf("order %s is %s, expected %s", o.ID, o.Status, r.from)}, nil
	}
	if err := p.transitions.ApplyTx(ctx, tx, o, r.to, service.Cause{EventID: ev.EventID, Reason: r.reason}); err != nil {
		return outcome{}, err
	}
	return outcome{order: o, rule: r}, nil
}

func (p *Processor) afterCommit(ctx context.Context, ev model.PaymentEvent, out outcome) {
	o := out.order
	switch {
	case o.Status == model.OrderConfirmed && p.notifier != nil:
		ref := ""
		if o.PaymentRef != nil {
			ref = *o.PaymentRef
		}
		err := p.notifier.OrderConfirmed(ctx, notify.OrderConfirmedEvent{
			OrderID:       o.ID,
			UserID:        o.UserID,
			PerformanceID: o.PerformanceID,
			SeatIDs:       o.SeatIDs,
			AmountCents:   o.AmountCents,
			Currency:      o.Currency,
			PaymentRef:    ref,
			ConfirmedAt:   p.now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			p.log.ErrorContext(ctx, "publish order confirmed", "order_id", o.ID, "err", err)
		}
	case out.rule.cancelIntent && o.PaymentRef != nil && p.tasks != nil:
		if err := p.tasks.ScheduleCancelIntent(ctx, o.ID, *o.PaymentRef, out.rule.reason); err != nil {
			p.log.ErrorContext(ctx, "schedule intent cancel", "order_id", o.ID, "event_id", ev.EventID, "err", err)
		}
	}
}

func (p *Processor) bookkeepingTimeout() time.Duration {
	if p.cfg.DrainTimeout > 0 {
		return p.cfg.DrainTimeout
	}
	return 5 * time.Second
}

// Handle processes ev and records the failure bookkeeping: a retry with
// backoff, or dead-lettering once attempts are exhausted.
func (p *Processor) Handle(ctx context.Context, workerID string, ev model.PaymentEvent) {
	err := p.Process(ctx, workerID, ev)
	if err == nil {
		return
	}
	if errors.Is(err, errLeaseLost) {
		p.log.WarnContext(ctx, "event lease lost", "event_id", ev.EventID, "worker_id", workerID)
		return
	}

	// The event context may be the one that just ran out; the bookkeeping
	// gets its own deadline so the attempt is always counted.
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.bookkeepingTimeout())
	defer cancel()

	attempts := ev.Attempts + 1
	if attempts >= p.cfg.MaxAttempts {
		poison := apperr.PoisonEvent(ev.EventID, err)
		if derr := p.outbox.DeadLetter(bctx, ev.ID, workerID, attempts, err.Error()); derr != nil {
			p.log.ErrorContext(ctx, "dead-letter event", "event_id", ev.EventID, "err", derr)
			return
		}
		p.log.ErrorContext(ctx, "event dead-lettered", "event_id", ev.EventID, "type", ev.Type, "attempts", attempts, "err", poison)
		return
	}

	delay := p.jitter(Backoff(p.cfg.BaseBackoff, p.cfg.MaxBackoff, attempts))
	if rerr := p.outbox.Retry(bctx, ev.ID, workerID, attempts, p.now().Add(delay), err.Error()); rerr != nil {
		p.log.ErrorContext(ctx, "schedule event retry", "event_id", ev.EventID, "err", rerr)
		return
	}
	p.log.WarnContext(ctx, "event failed, retrying", "event_id", ev.EventID, "attempts", attempts, "delay", delay, "err", err)
}

// Package reaper runs the periodic cleanup passes: stray seat locks in Redis
// and orders whose payment window closed.
package reaper

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/iliyamo/seatcore/internal/apperr"
	"github.com/iliyamo/seatcore/internal/config"
	"github.com/iliyamo/seatcore/internal/lock"
	"github.com/iliyamo/seatcore/internal/model"
	"github.com/iliyamo/seatcore/internal/service"
)

// Sweeper removes overdue lock entries.
type Sweeper interface {
	Sweep(ctx context.Context, grace time.Duration) (lock.SweepStats, error)
}

// Orders is the order store slice the expiry pass needs.
type Orders interface {
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Order, error)
}

type Reaper struct {
	locks       Sweeper
	orders      Orders
	tx          service.TxRunner
	transitions *service.Transitions
	tasks       service.TaskScheduler
	lockCfg     config.LockConfig
	expiryCfg   config.OrderExpiryConfig
	log         *slog.Logger
	now         func() time.Time
}

func New(locks Sweeper, orders Orders, tx service.TxRunner, transitions *service.Transitions, tasks service.TaskScheduler,
	lockCfg config.LockConfig, expiryCfg config.OrderExpiryConfig, log *slog.Logger) *Reaper {
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{
		locks:       locks,
		orders:      orders,
		tx:          tx,
		transitions: transitions,
		tasks:       tasks,
		lockCfg:     lockCfg,
		expiryCfg:   expiryCfg,
		log:         log.With("component", "reaper"),
		now:         time.Now,
	}
}

// Run ticks both passes until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) error {
	lockTick := time.NewTicker(r.lockCfg.SweepInterval)
	defer lockTick.Stop()
	orderTick := time.NewTicker(r.expiryCfg.SweepInterval)
	defer orderTick.Stop()

	r.log.Info("reaper started", "lock_interval", r.lockCfg.SweepInterval, "order_interval", r.expiryCfg.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reaper stopped")
			return nil
		case <-lockTick.C:
			if _, err := r.SweepLocks(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("lock sweep failed", "err", err)
			}
		case <-orderTick.C:
			if _, err := r.ExpireOrders(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("order expiry failed", "err", err)
			}
		}
	}
}

// SweepLocks deletes lock entries past their deadline plus the grace period.
func (r *Reaper) SweepLocks(ctx context.Context) (lock.SweepStats, error) {
	stats, err := r.locks.Sweep(ctx, r.lockCfg.SweepGrace)
	if err != nil {
		return stats, err
	}
	if stats.Locks > 0 || stats.Holds > 0 {
		r.log.Info("stale locks swept", "locks", stats.Locks, "holds", stats.Holds)
	}
	return stats, nil
}

// ExpireOrders moves one batch of PENDING_PAYMENT orders older than the
// payment window to EXPIRED. Orders that settled in the meantime are left
// alone.
func (r *Reaper) ExpireOrders(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.expiryCfg.PaymentWindow)
	ids, err := r.orders.ListExpiredPending(ctx, cutoff, r.expiryCfg.BatchSize)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		o, err := r.expire(ctx, id)
		if err != nil {
			if apperr.IsKind(err, apperr.KindInvalidState) {
				continue
			}
			r.log.Error("expire order", "order_id", id, "err", err)
			continue
		}
		expired++
		r.log.Info("order expired", "order_id", id, "seats", len(o.SeatIDs))
		if o.PaymentRef != nil {
			if err := r.tasks.ScheduleCancelIntent(ctx, o.ID, *o.PaymentRef, "payment window elapsed"); err != nil {
				r.log.Error("schedule intent cancel", "order_id", o.ID, "err", err)
			}
		}
	}
	return expired, nil
}

func (r *Reaper) expire(ctx context.Context, id string) (*model.Order, error) {
	var order *model.Order
	err := r.tx.WithTx(ctx, func(tx *sql.Tx) error {
		o, err := r.orders.GetForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if o.Status != model.OrderPendingPayment {
			return apperr.InvalidState("order is " + string(o.Status))
		}
		if err := r.transitions.ApplyTx(ctx, tx, o, model.OrderExpired, service.Cause{Reason: "payment window elapsed"}); err != nil {
			return err
		}
		order = o
		return nil
	})
	return order, err
}

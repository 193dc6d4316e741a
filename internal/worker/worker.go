package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/seatcore/internal/config"
	"github.com/iliyamo/seatcore/internal/model"
)

// Worker owns one claim loop. Its id is written into the lease columns so
// claims of concurrent workers never overlap.
type Worker struct {
	id     string
	outbox Outbox
	proc   *Processor
	cfg    config.OutboxConfig
	log    *slog.Logger
}

func NewWorker(id string, outbox Outbox, proc *Processor, cfg config.OutboxConfig, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{id: id, outbox: outbox, proc: proc, cfg: cfg, log: log.With("worker_id", id)}
}

func (w *Worker) ID() string { return w.id }

// Run polls until ctx is canceled. A full batch is followed immediately by
// the next claim so a backlog drains without waiting for the ticker.
func (w *Worker) Run(ctx context.Context) error {
	t := time.NewTicker(w.cfg.PollInterval)
	defer t.Stop()

	w.log.Info("outbox worker started")
	for {
		n, err := w.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			w.log.Error("outbox claim failed", "err", err)
		}
		if ctx.Err() != nil {
			w.log.Info("outbox worker stopped")
			return nil
		}
		if err == nil && n == w.cfg.BatchSize {
			continue
		}
		select {
		case <-ctx.Done():
			w.log.Info("outbox worker stopped")
			return nil
		case <-t.C:
		}
	}
}

// RunOnce claims one batch and handles it. Once ctx is canceled the event in
// flight still completes, bounded by DrainTimeout, and the leases of the
// events not yet started are handed back.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	events, err := w.outbox.Claim(ctx, w.id, w.cfg.BatchSize, w.cfg.Lease)
	if err != nil {
		return 0, fmt.Errorf("claim: %w", err)
	}
	for i, ev := range events {
		if ctx.Err() != nil {
			w.releaseRest(ctx, events[i:])
			return i, nil
		}
		evCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.DrainTimeout)
		w.proc.Handle(evCtx, w.id, ev)
		cancel()
	}
	return len(events), nil
}

func (w *Worker) releaseRest(ctx context.Context, rest []model.PaymentEvent) {
	ids := make([]int64, 0, len(rest))
	for _, ev := range rest {
		ids = append(ids, ev.ID)
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.DrainTimeout)
	defer cancel()
	if err := w.outbox.ReleaseClaims(rctx, w.id, ids); err != nil {
		w.log.Error("release claims", "count", len(ids), "err", err)
		return
	}
	w.log.Info("released unstarted claims", "count", len(ids))
}

// Pool runs a fixed set of workers.
type Pool struct {
	workers []*Worker
}

// NewPool builds cfg.Workers workers with ids derived from the host name.
func NewPool(outbox Outbox, proc *Processor, cfg config.OutboxConfig, log *slog.Logger) *Pool {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	run := uuid.NewString()[:8]
	p := &Pool{}
	for i := 0; i < cfg.Workers; i++ {
		id := fmt.Sprintf("%s-%s-%d", host, run, i)
		p.workers = append(p.workers, NewWorker(id, outbox, proc, cfg, log))
	}
	return p
}

func (p *Pool) Size() int { return len(p.workers) }

// Run blocks until every worker has drained after ctx is canceled.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		g.Go(func() error { return w.Run(ctx) })
	}
	return g.Wait()
}

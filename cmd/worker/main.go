package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/seatcore/internal/config"
	"github.com/iliyamo/seatcore/internal/database"
	"github.com/iliyamo/seatcore/internal/lock"
	"github.com/iliyamo/seatcore/internal/logging"
	"github.com/iliyamo/seatcore/internal/notify"
	"github.com/iliyamo/seatcore/internal/payment"
	"github.com/iliyamo/seatcore/internal/reaper"
	"github.com/iliyamo/seatcore/internal/repository"
	"github.com/iliyamo/seatcore/internal/service"
	"github.com/iliyamo/seatcore/internal/tasks"
	"github.com/iliyamo/seatcore/internal/telemetry"
	"github.com/iliyamo/seatcore/internal/worker"
)

const (
	purgeInterval = 10 * time.Minute
	purgeBatch    = 1000
)

func main() {
	listDead := flag.Bool("list-dead", false, "print dead-lettered payment events and exit")
	requeue := flag.String("requeue", "", "requeue the dead-lettered event with this provider event id and exit")
	flag.Parse()

	if err := run(*listDead, *requeue); err != nil {
		slog.Error("worker exited", "err", err)
		os.Exit(1)
	}
}

func run(listDead bool, requeue string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	lockCfg, err := config.LoadLockConfig()
	if err != nil {
		return err
	}
	outCfg, err := config.LoadOutboxConfig()
	if err != nil {
		return err
	}

	log := logging.New(cfg.LogLevel).With("component", "worker")
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	outbox := repository.NewOutboxRepo(db)

	switch {
	case listDead:
		return printDeadLetters(ctx, outbox)
	case requeue != "":
		if err := outbox.Requeue(ctx, requeue); err != nil {
			return fmt.Errorf("requeue %s: %w", requeue, err)
		}
		log.Info("event requeued", "event_id", requeue)
		return nil
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing, "worker")
	if err != nil {
		log.Warn("tracing disabled", "err", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	rdb, err := config.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	taskClient := asynq.NewClient(cfg.Redis.AsynqOpt())
	defer taskClient.Close()
	scheduler := tasks.NewScheduler(taskClient, cfg.Tasks.MaxRetry)

	var notifier worker.Notifier = notify.LogNotifier{Log: log}
	if cfg.AMQP.URL != "" {
		pub := notify.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Queue, log)
		defer pub.Close()
		notifier = pub
	}

	seats := repository.NewSeatRepo(db)
	orders := repository.NewOrderRepo(db)
	txm := repository.NewTxManager(db)
	transitions := service.NewTransitions(seats, orders)

	proc := worker.NewProcessor(outbox, orders, txm, transitions, notifier, scheduler, outCfg, log)
	pool := worker.NewPool(outbox, proc, outCfg, log)
	rp := reaper.New(lock.New(rdb, seats, lockCfg), orders, txm, transitions, scheduler, lockCfg, cfg.Expiry, log)

	taskSrv, mux := tasks.NewServer(cfg.Redis.AsynqOpt(), cfg.Tasks.Concurrency, tasks.NewHandlers(payment.FromConfig(cfg.Payment), log), log)
	if err := taskSrv.Start(mux); err != nil {
		return fmt.Errorf("start task server: %w", err)
	}
	defer taskSrv.Shutdown()

	log.Info("worker started", "outbox_workers", pool.Size())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(gctx) })
	g.Go(func() error { return rp.Run(gctx) })
	g.Go(func() error { return purgeIdempotency(gctx, repository.NewIdempotencyRepo(db), log) })
	err = g.Wait()
	log.Info("worker stopped")
	return err
}

func purgeIdempotency(ctx context.Context, repo *repository.IdempotencyRepo, log *slog.Logger) error {
	t := time.NewTicker(purgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := repo.PurgeExpired(ctx, purgeBatch)
			if err != nil {
				log.Warn("idempotency purge failed", "err", err)
				continue
			}
			if n > 0 {
				log.Info("idempotency records purged", "count", n)
			}
		}
	}
}

func printDeadLetters(ctx context.Context, outbox *repository.OutboxRepo) error {
	events, err := outbox.ListDeadLettered(ctx, 100)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT ID\tTYPE\tATTEMPTS\tRECEIVED\tLAST ERROR")
	for _, ev := range events {
		lastErr := ""
		if ev.LastError != nil {
			lastErr = *ev.LastError
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", ev.EventID, ev.Type, ev.Attempts, ev.CreatedAt.UTC().Format(time.RFC3339), lastErr)
	}
	return w.Flush()
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/seatcore/internal/catalog"
	"github.com/iliyamo/seatcore/internal/config"
	"github.com/iliyamo/seatcore/internal/database"
	"github.com/iliyamo/seatcore/internal/handler"
	"github.com/iliyamo/seatcore/internal/lock"
	"github.com/iliyamo/seatcore/internal/logging"
	"github.com/iliyamo/seatcore/internal/middleware"
	"github.com/iliyamo/seatcore/internal/payment"
	"github.com/iliyamo/seatcore/internal/repository"
	"github.com/iliyamo/seatcore/internal/router"
	"github.com/iliyamo/seatcore/internal/service"
	"github.com/iliyamo/seatcore/internal/tasks"
	"github.com/iliyamo/seatcore/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	lockCfg, err := config.LoadLockConfig()
	if err != nil {
		return err
	}
	rlCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		return err
	}
	cacheCfg, err := config.LoadCacheConfig()
	if err != nil {
		return err
	}

	log := logging.New(cfg.LogLevel).With("component", "server")
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing, "server")
	if err != nil {
		log.Warn("tracing disabled", "err", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	rdb, err := config.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	taskClient := asynq.NewClient(cfg.Redis.AsynqOpt())
	defer taskClient.Close()

	seats := repository.NewSeatRepo(db)
	orders := repository.NewOrderRepo(db)
	svc := service.NewReservationService(service.Deps{
		Locks:    lock.New(rdb, seats, lockCfg),
		Seats:    seats,
		Orders:   orders,
		Tx:       repository.NewTxManager(db),
		Catalog:  catalog.NewStore(db),
		Payments: payment.FromConfig(cfg.Payment),
		Tasks:    tasks.NewScheduler(taskClient, cfg.Tasks.MaxRetry),
		Log:      log,
	}, lockCfg)
	ingest := service.NewPaymentIngest(repository.NewOutboxRepo(db), log)

	e := router.New(router.Handlers{
		Holds:        handler.NewHoldHandler(svc),
		Orders:       handler.NewOrderHandler(svc),
		Availability: handler.NewAvailabilityHandler(svc),
		Webhooks:     handler.NewWebhookHandler(ingest, cfg.Payment.WebhookSecret, cfg.Payment.WebhookTolerance, log),
		Health:       handler.NewHealthHandler(db, rdb),
	}, router.Middleware{
		Session:     middleware.Session(cfg.JWTSecret),
		Idempotency: middleware.Idempotency(repository.NewIdempotencyRepo(db), cfg.Idempotency, log),
		RateLimit:   middleware.NewTokenBucket(rlCfg, rdb, log),
		Cache:       middleware.NewRedisCache(cacheCfg, rdb, log),
	}, log, cfg.RequestTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return e.Shutdown(sctx)
	})
	return g.Wait()
}

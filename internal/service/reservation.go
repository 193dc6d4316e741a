package service

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/seatcore/internal/config"
	"github.com/iliyamo/seatcore/internal/payment"
	"github.com/iliyamo/seatcore/internal/telemetry"
)

// Deps are the collaborators of ReservationService.
type Deps struct {
	Locks    LockCoordinator
	Seats    SeatStore
	Orders   OrderStore
	Tx       TxRunner
	Catalog  Catalog
	Payments payment.Provider
	Tasks    TaskScheduler
	Log      *slog.Logger
}

// ReservationService drives a seat from hold to reserved order.
type ReservationService struct {
	locks       LockCoordinator
	seats       SeatStore
	orders      OrderStore
	tx          TxRunner
	catalog     Catalog
	payments    payment.Provider
	tasks       TaskScheduler
	transitions *Transitions
	cfg         config.LockConfig
	log         *slog.Logger
	tracer      trace.Tracer
	newID       func() string
	// compensation runs detached from the request so a dropped client
	// cannot leave an order without its cleanup.
	cleanupTimeout time.Duration
}

func NewReservationService(d Deps, cfg config.LockConfig) *ReservationService {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &ReservationService{
		locks:          d.Locks,
		seats:          d.Seats,
		orders:         d.Orders,
		tx:             d.Tx,
		catalog:        d.Catalog,
		payments:       d.Payments,
		tasks:          d.Tasks,
		transitions:    NewTransitions(d.Seats, d.Orders),
		cfg:            cfg,
		log:            log.With("component", "reservation"),
		tracer:         telemetry.Tracer("seatcore/service"),
		newID:          uuid.NewString,
		cleanupTimeout: 10 * time.Second,
	}
}

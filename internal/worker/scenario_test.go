package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seatcore/internal/apperr"
	"github.com/iliyamo/seatcore/internal/config"
	"github.com/iliyamo/seatcore/internal/handler"
	"github.com/iliyamo/seatcore/internal/lock"
	"github.com/iliyamo/seatcore/internal/model"
	"github.com/iliyamo/seatcore/internal/notify"
	"github.com/iliyamo/seatcore/internal/payment"
	"github.com/iliyamo/seatcore/internal/repository"
	"github.com/iliyamo/seatcore/internal/service"
)

// inventory is an in-memory seat, order and outbox store. WithTx serializes
// transactions and restores the previous state when fn fails.
type inventory struct {
	mu      sync.Mutex
	txMu    sync.Mutex
	seats   map[string]model.Seat
	prices  map[string]model.SeatPrice
	orders  map[string]model.Order
	audit   []model.OrderAudit
	events  []model.PaymentEvent
	nextEv  int64
	publish []notify.OrderConfirmedEvent
}

func newInventory(seatIDs ...string) *inventory {
	inv := &inventory{
		seats:  map[string]model.Seat{},
		prices: map[string]model.SeatPrice{},
		orders: map[string]model.Order{},
	}
	for _, id := range seatIDs {
		inv.seats[id] = model.Seat{PerformanceID: "P1", SeatID: id, State: model.SeatAvailable}
		inv.prices[id] = model.SeatPrice{SeatID: id, AmountCents: 1000, Currency: "EUR"}
	}
	return inv
}

type snapshot struct {
	seats  map[string]model.Seat
	orders map[string]model.Order
	audit  []model.OrderAudit
	events []model.PaymentEvent
}

func (inv *inventory) snapshot() snapshot {
	s := snapshot{seats: map[string]model.Seat{}, orders: map[string]model.Order{}}
	for k, v := range inv.seats {
		s.seats[k] = v
	}
	for k, v := range inv.orders {
		s.orders[k] = v
	}
	s.audit = append(s.audit, inv.audit...)
	s.events = append(s.events, inv.events...)
	return s
}

func (inv *inventory) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	inv.txMu.Lock()
	defer inv.txMu.Unlock()
	inv.mu.Lock()
	before := inv.snapshot()
	inv.mu.Unlock()
	if err := fn(nil); err != nil {
		inv.mu.Lock()
		inv.seats, inv.orders, inv.audit, inv.events = before.seats, before.orders, before.audit, before.events
		inv.mu.Unlock()
		return err
	}
	return nil
}

func (inv *inventory) Versions(_ context.Context, _ string, seatIDs []string) (map[string]model.SeatVersion, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := map[string]model.SeatVersion{}
	for _, id := range seatIDs {
		if s, ok := inv.seats[id]; ok {
			out[id] = model.SeatVersion{State: s.State, Version: s.Version}
		}
	}
	return out, nil
}

func (inv *inventory) SeatPrices(_ context.Context, _ string, seatIDs []string) (map[string]model.SeatPrice, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := map[string]model.SeatPrice{}
	for _, id := range seatIDs {
		if p, ok := inv.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (inv *inventory) ReserveTx(_ context.Context, _ *sql.Tx, _, seatID string, expectedVersion int64, orderID string) (bool, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	s, ok := inv.seats[seatID]
	if !ok || s.Version != expectedVersion || s.State != model.SeatAvailable {
		return false, nil
	}
	s.State, s.OrderID, s.Version = model.SeatReserved, &orderID, s.Version+1
	inv.seats[seatID] = s
	return true, nil
}

func (inv *inventory) moveOrderSeats(orderID string, from, to model.SeatState) int64 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	var n int64
	for id, s := range inv.seats {
		if s.OrderID == nil || *s.OrderID != orderID || s.State != from {
			continue
		}
		s.State, s.Version = to, s.Version+1
		if to == model.SeatAvailable {
			s.OrderID = nil
		}
		inv.seats[id] = s
		n++
	}
	return n
}

func (inv *inventory) MarkSoldTx(_ context.Context, _ *sql.Tx, orderID string) (int64, error) {
	return inv.moveOrderSeats(orderID, model.SeatReserved, model.SeatSold), nil
}

func (inv *inventory) ReleaseTx(_ context.Context, _ *sql.Tx, orderID string) (int64, error) {
	return inv.moveOrderSeats(orderID, model.SeatReserved, model.SeatAvailable), nil
}

func (inv *inventory) ListByPerformance(_ context.Context, _ string) ([]model.Seat, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]model.Seat, 0, len(inv.seats))
	for _, s := range inv.seats {
		out = append(out, s)
	}
	return out, nil
}

func (inv *inventory) CreateTx(_ context.Context, _ *sql.Tx, o *model.Order, _ []model.OrderLine) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.orders[o.ID] = *o
	return nil
}

func (inv *inventory) GetByID(_ context.Context, id string) (*model.Order, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	o, ok := inv.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &o, nil
}

func (inv *inventory) GetForUpdateTx(ctx context.Context, _ *sql.Tx, id string) (*model.Order, error) {
	return inv.GetByID(ctx, id)
}

func (inv *inventory) GetByPaymentRefForUpdateTx(_ context.Context, _ *sql.Tx, ref string) (*model.Order, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	for _, o := range inv.orders {
		if o.PaymentRef != nil && *o.PaymentRef == ref {
			return &o, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (inv *inventory) UpdateStatusTx(_ context.Context, _ *sql.Tx, id string, from, to model.OrderStatus) (bool, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	o, ok := inv.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	inv.orders[id] = o
	return true, nil
}

func (inv *inventory) SetPaymentRef(_ context.Context, id, ref string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	o := inv.orders[id]
	o.PaymentRef = &ref
	inv.orders[id] = o
	return nil
}

func (inv *inventory) InsertAuditTx(_ context.Context, _ *sql.Tx, a model.OrderAudit) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.audit = append(inv.audit, a)
	return nil
}

func (inv *inventory) ListExpiredPending(context.Context, time.Time, int) ([]string, error) {
	return nil, nil
}

func (inv *inventory) Insert(_ context.Context, eventID, eventType string, payload []byte) (model.IngestResult, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	for _, ev := range inv.events {
		if ev.EventID == eventID {
			return model.IngestDuplicate, nil
		}
	}
	inv.nextEv++
	inv.events = append(inv.events, model.PaymentEvent{ID: inv.nextEv, EventID: eventID, Type: eventType, Payload: payload})
	return model.IngestAccepted, nil
}

func (inv *inventory) Claim(_ context.Context, workerID string, limit int, _ time.Duration) ([]model.PaymentEvent, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	var out []model.PaymentEvent
	for i := range inv.events {
		ev := &inv.events[i]
		if ev.Processed || ev.DeadLettered || ev.ClaimedBy != nil || len(out) == limit {
			continue
		}
		id := workerID
		ev.ClaimedBy = &id
		out = append(out, *ev)
	}
	return out, nil
}

func (inv *inventory) event(id int64) *model.PaymentEvent {
	for i := range inv.events {
		if inv.events[i].ID == id {
			return &inv.events[i]
		}
	}
	return nil
}

func (inv *inventory) LockClaimedTx(_ context.Context, _ *sql.Tx, id int64, workerID string) (bool, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	ev := inv.event(id)
	return ev != nil && !ev.Processed && ev.ClaimedBy != nil && *ev.ClaimedBy == workerID, nil
}

func (inv *inventory) MarkProcessedTx(_ context.Context, _ *sql.Tx, id int64, _ string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	ev := inv.event(id)
	ev.Processed, ev.ClaimedBy = true, nil
	return nil
}

func (inv *inventory) Retry(_ context.Context, id int64, _ string, attempts int, next time.Time, errMsg string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	ev := inv.event(id)
	ev.Attempts, ev.NextAttemptAt, ev.LastError, ev.ClaimedBy = attempts, next, &errMsg, nil
	return nil
}

func (inv *inventory) DeadLetter(_ context.Context, id int64, _ string, attempts int, errMsg string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	ev := inv.event(id)
	ev.Attempts, ev.DeadLettered, ev.LastError, ev.ClaimedBy = attempts, true, &errMsg, nil
	return nil
}

func (inv *inventory) ReleaseClaims(_ context.Context, _ string, ids []int64) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	for _, id := range ids {
		inv.event(id).ClaimedBy = nil
	}
	return nil
}

func (inv *inventory) OrderConfirmed(_ context.Context, ev notify.OrderConfirmedEvent) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.publish = append(inv.publish, ev)
	return nil
}

func (inv *inventory) ScheduleCancelIntent(context.Context, string, string, string) error { return nil }

func (inv *inventory) seat(id string) model.Seat {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.seats[id]
}

const webhookSecret = "whsec_test"

func postWebhook(t *testing.T, e *echo.Echo, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payments/webhooks", strings.NewReader(string(body)))
	req.Header.Set(payment.SignatureHeader, payment.Sign(webhookSecret, body, time.Now()))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHoldOrderPaymentScenario(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	lockCfg := config.LockConfig{
		Prefix: "it", DefaultTTL: time.Minute, MinTTL: time.Second, MaxTTL: 5 * time.Minute,
		MaxExtensions: 1, MaxLifetime: 10 * time.Minute, PromotionGuard: 100 * time.Millisecond, MaxSeats: 25,
	}
	inv := newInventory("S1", "S2", "S3")
	svc := service.NewReservationService(service.Deps{
		Locks:    lock.New(rdb, inv, lockCfg),
		Seats:    inv,
		Orders:   inv,
		Tx:       inv,
		Catalog:  inv,
		Payments: payment.NewSandbox(),
		Tasks:    inv,
	}, lockCfg)

	e := echo.New()
	e.HTTPErrorHandler = handler.ErrorHandler(nil)
	e.POST("/payments/webhooks", handler.NewWebhookHandler(service.NewPaymentIngest(inv, nil), webhookSecret, 5*time.Minute, nil).Receive)

	tr := service.NewTransitions(inv, inv)
	proc := NewProcessor(inv, inv, inv, tr, inv, inv, outboxConfig(), nil)
	w := NewWorker("w1", inv, proc, outboxConfig(), nil)

	alice, bob := service.Session{UserID: "alice"}, service.Session{UserID: "bob"}

	g, err := svc.HoldSeats(ctx, alice, "P1", []string{"S2", "S1"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S2"}, g.SeatIDs)
	assert.Equal(t, []int64{1, 1}, g.FencingTokens)

	_, err = svc.HoldSeats(ctx, bob, "P1", []string{"S1", "S3"}, time.Minute)
	require.True(t, apperr.IsKind(err, apperr.KindConflict), "got %v", err)
	conflict, _ := apperr.As(err)
	assert.Equal(t, []string{"S1"}, conflict.SeatIDs)
	assert.False(t, mr.Exists("it:lock:P1:S3"), "a refused batch holds nothing")

	created, err := svc.CreateOrder(ctx, alice, service.CreateOrderInput{
		PerformanceID: "P1", SeatIDs: []string{"S1", "S2"}, AmountCents: 2000, Currency: "eur",
	})
	require.NoError(t, err)
	order := created.Order
	require.NotNil(t, order.PaymentRef)
	assert.Equal(t, model.OrderPendingPayment, order.Status)
	assert.Equal(t, model.SeatReserved, inv.seat("S1").State)
	assert.Equal(t, int64(1), inv.seat("S1").Version)

	body, err := json.Marshal(map[string]any{
		"id":   "evt_1",
		"type": model.EventPaymentSucceeded,
		"data": map[string]any{"object": map[string]any{"id": *order.PaymentRef, "object": "payment_intent"}},
	})
	require.NoError(t, err)

	rec := postWebhook(t, e, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true,"result":"accepted"}`, rec.Body.String())

	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	confirmed, err := svc.GetOrder(ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderConfirmed, confirmed.Status)
	for _, id := range []string{"S1", "S2"} {
		s := inv.seat(id)
		assert.Equal(t, model.SeatSold, s.State, id)
		assert.Equal(t, int64(2), s.Version, id)
	}
	assert.Equal(t, model.SeatAvailable, inv.seat("S3").State)
	require.Len(t, inv.publish, 1)
	assert.Equal(t, order.ID, inv.publish[0].OrderID)
	auditRows := len(inv.audit)
	assert.Equal(t, 2, auditRows)

	// The provider redelivers the same event.
	rec = postWebhook(t, e, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true,"result":"duplicate"}`, rec.Body.String())

	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, inv.audit, auditRows)
	assert.Len(t, inv.publish, 1)
	assert.Equal(t, int64(2), inv.seat("S1").Version)

	// Bob's late order on S1 fails on the missing lock.
	_, err = svc.CreateOrder(ctx, bob, service.CreateOrderInput{
		PerformanceID: "P1", SeatIDs: []string{"S1"}, AmountCents: 1000, Currency: "EUR",
	})
	assert.True(t, apperr.IsKind(err, apperr.KindStaleLock), "got %v", err)
}

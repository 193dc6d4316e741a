package mocks

import (
	"context"
	"database/sql"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/iliyamo/seatcore/internal/model"
)

type SeatStore struct {
	mock.Mock
}

func NewSeatStore(t testingT) *SeatStore {
	m := &SeatStore{}
	register(t, &m.Mock)
	return m
}

func (m *SeatStore) ReserveTx(ctx context.Context, tx *sql.Tx, performanceID, seatID string, expectedVersion int64, orderID string) (bool, error) {
	ret := m.Called(ctx, tx, performanceID, seatID, expectedVersion, orderID)
	return ret.Bool(0), errAt(ret, 1)
}

func (m *SeatStore) MarkSoldTx(ctx context.Context, tx *sql.Tx, orderID string) (int64, error) {
	ret := m.Called(ctx, tx, orderID)
	return ret.Get(0).(int64), errAt(ret, 1)
}

func (m *SeatStore) ReleaseTx(ctx context.Context, tx *sql.Tx, orderID string) (int64, error) {
	ret := m.Called(ctx, tx, orderID)
	return ret.Get(0).(int64), errAt(ret, 1)
}

func (m *SeatStore) ListByPerformance(ctx context.Context, performanceID string) ([]model.Seat, error) {
	ret := m.Called(ctx, performanceID)
	var seats []model.Seat
	if v := ret.Get(0); v != nil {
		seats = v.([]model.Seat)
	}
	return seats, errAt(ret, 1)
}

type OrderStore struct {
	mock.Mock
}

func NewOrderStore(t testingT) *OrderStore {
	m := &OrderStore{}
	register(t, &m.Mock)
	return m
}

func orderAt(ret mock.Arguments, i int) *model.Order {
	if v := ret.Get(i); v != nil {
		return v.(*model.Order)
	}
	return nil
}

func (m *OrderStore) CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order, lines []model.OrderLine) error {
	return errAt(m.Called(ctx, tx, o, lines), 0)
}

func (m *OrderStore) GetByID(ctx context.Context, id string) (*model.Order, error) {
	ret := m.Called(ctx, id)
	return orderAt(ret, 0), errAt(ret, 1)
}

func (m *OrderStore) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Order, error) {
	ret := m.Called(ctx, tx, id)
	return orderAt(ret, 0), errAt(ret, 1)
}

func (m *OrderStore) GetByPaymentRefForUpdateTx(ctx context.Context, tx *sql.Tx, paymentRef string) (*model.Order, error) {
	ret := m.Called(ctx, tx, paymentRef)
	return orderAt(ret, 0), errAt(ret, 1)
}

func (m *OrderStore) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id string, from, to model.OrderStatus) (bool, error) {
	ret := m.Called(ctx, tx, id, from, to)
	return ret.Bool(0), errAt(ret, 1)
}

func (m *OrderStore) SetPaymentRef(ctx context.Context, id, paymentRef string) error {
	return errAt(m.Called(ctx, id, paymentRef), 0)
}

func (m *OrderStore) InsertAuditTx(ctx context.Context, tx *sql.Tx, a model.OrderAudit) error {
	return errAt(m.Called(ctx, tx, a), 0)
}

func (m *OrderStore) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	ret := m.Called(ctx, cutoff, limit)
	var ids []string
	if v := ret.Get(0); v != nil {
		ids = v.([]string)
	}
	return ids, errAt(ret, 1)
}

type Outbox struct {
	mock.Mock
}

func NewOutbox(t testingT) *Outbox {
	m := &Outbox{}
	register(t, &m.Mock)
	return m
}

func (m *Outbox) Insert(ctx context.Context, eventID, eventType string, payload []byte) (model.IngestResult, error) {
	ret := m.Called(ctx, eventID, eventType, payload)
	return ret.Get(0).(model.IngestResult), errAt(ret, 1)
}

func (m *Outbox) Claim(ctx context.Context, workerID string, limit int, lease time.Duration) ([]model.PaymentEvent, error) {
	ret := m.Called(ctx, workerID, limit, lease)
	var evs []model.PaymentEvent
	if v := ret.Get(0); v != nil {
		evs = v.([]model.PaymentEvent)
	}
	return evs, errAt(ret, 1)
}

func (m *Outbox) LockClaimedTx(ctx context.Context, tx *sql.Tx, id int64, workerID string) (bool, error) {
	ret := m.Called(ctx, tx, id, workerID)
	return ret.Bool(0), errAt(ret, 1)
}

func (m *Outbox) MarkProcessedTx(ctx context.Context, tx *sql.Tx, id int64, note string) error {
	return errAt(m.Called(ctx, tx, id, note), 0)
}

func (m *Outbox) Retry(ctx context.Context, id int64, workerID string, attempts int, next time.Time, errMsg string) error {
	return errAt(m.Called(ctx, id, workerID, attempts, next, errMsg), 0)
}

func (m *Outbox) DeadLetter(ctx context.Context, id int64, workerID string, attempts int, errMsg string) error {
	return errAt(m.Called(ctx, id, workerID, attempts, errMsg), 0)
}

func (m *Outbox) ReleaseClaims(ctx context.Context, workerID string, ids []int64) error {
	return errAt(m.Called(ctx, workerID, ids), 0)
}

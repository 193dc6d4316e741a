package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/iliyamo/seatcore/internal/model"
	"github.com/iliyamo/seatcore/internal/notify"
	"github.com/iliyamo/seatcore/internal/payment"
)

type Catalog struct {
	mock.Mock
}

func NewCatalog(t testingT) *Catalog {
	m := &Catalog{}
	register(t, &m.Mock)
	return m
}

func (m *Catalog) SeatPrices(ctx context.Context, performanceID string, seatIDs []string) (map[string]model.SeatPrice, error) {
	ret := m.Called(ctx, performanceID, seatIDs)
	var prices map[string]model.SeatPrice
	if v := ret.Get(0); v != nil {
		prices = v.(map[string]model.SeatPrice)
	}
	return prices, errAt(ret, 1)
}

type PaymentProvider struct {
	mock.Mock
}

func NewPaymentProvider(t testingT) *PaymentProvider {
	m := &PaymentProvider{}
	register(t, &m.Mock)
	return m
}

func (m *PaymentProvider) CreatePaymentIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	ret := m.Called(ctx, req)
	var in *payment.Intent
	if v := ret.Get(0); v != nil {
		in = v.(*payment.Intent)
	}
	return in, errAt(ret, 1)
}

func (m *PaymentProvider) CancelPaymentIntent(ctx context.Context, ref string) error {
	return errAt(m.Called(ctx, ref), 0)
}

type TaskScheduler struct {
	mock.Mock
}

func NewTaskScheduler(t testingT) *TaskScheduler {
	m := &TaskScheduler{}
	register(t, &m.Mock)
	return m
}

func (m *TaskScheduler) ScheduleCancelIntent(ctx context.Context, orderID, paymentRef, reason string) error {
	return errAt(m.Called(ctx, orderID, paymentRef, reason), 0)
}

type Notifier struct {
	mock.Mock
}

func NewNotifier(t testingT) *Notifier {
	m := &Notifier{}
	register(t, &m.Mock)
	return m
}

func (m *Notifier) OrderConfirmed(ctx context.Context, ev notify.OrderConfirmedEvent) error {
	return errAt(m.Called(ctx, ev), 0)
}

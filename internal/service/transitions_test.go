package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seatcore/internal/apperr"
	"github.com/iliyamo/seatcore/internal/model"
	"github.com/iliyamo/seatcore/internal/service"
	"github.com/iliyamo/seatcore/internal/service/mocks"
)

func TestTransitionConfirmSellsSeats(t *testing.T) {
	seats, orders := mocks.NewSeatStore(t), mocks.NewOrderStore(t)
	tr := service.NewTransitions(seats, orders)
	o := &model.Order{ID: "o1", Status: model.OrderPendingPayment, SeatIDs: []string{"S1", "S2"}}

	orders.On("UpdateStatusTx", mock.Anything, mock.Anything, "o1", model.OrderPendingPayment, model.OrderConfirmed).Return(true, nil)
	seats.On("MarkSoldTx", mock.Anything, mock.Anything, "o1").Return(int64(2), nil)
	orders.On("InsertAuditTx", mock.Anything, mock.Anything, model.OrderAudit{
		OrderID: "o1", FromStatus: model.OrderPendingPayment, ToStatus: model.OrderConfirmed, EventID: "evt_1", Reason: "payment succeeded",
	}).Return(nil)

	err := tr.ApplyTx(context.Background(), nil, o, model.OrderConfirmed, service.Cause{EventID: "evt_1", Reason: "payment succeeded"})
	require.NoError(t, err)
	assert.Equal(t, model.OrderConfirmed, o.Status)
}

func TestTransitionRefundReleasesSeats(t *testing.T) {
	seats, orders := mocks.NewSeatStore(t), mocks.NewOrderStore(t)
	tr := service.NewTransitions(seats, orders)
	o := &model.Order{ID: "o1", Status: model.OrderConfirmed, SeatIDs: []string{"S1"}}

	orders.On("UpdateStatusTx", mock.Anything, mock.Anything, "o1", model.OrderConfirmed, model.OrderRefunded).Return(true, nil)
	seats.On("ReleaseTx", mock.Anything, mock.Anything, "o1").Return(int64(1), nil)
	orders.On("InsertAuditTx", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, tr.ApplyTx(context.Background(), nil, o, model.OrderRefunded, service.Cause{}))
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	tr := service.NewTransitions(mocks.NewSeatStore(t), mocks.NewOrderStore(t))
	o := &model.Order{ID: "o1", Status: model.OrderCanceled}

	err := tr.ApplyTx(context.Background(), nil, o, model.OrderConfirmed, service.Cause{})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
	assert.Equal(t, model.OrderCanceled, o.Status)
}

func TestTransitionLostStatusRace(t *testing.T) {
	orders := mocks.NewOrderStore(t)
	tr := service.NewTransitions(mocks.NewSeatStore(t), orders)
	o := &model.Order{ID: "o1", Status: model.OrderPendingPayment}
	orders.On("UpdateStatusTx", mock.Anything, mock.Anything, "o1", model.OrderPendingPayment, model.OrderExpired).Return(false, nil)

	err := tr.ApplyTx(context.Background(), nil, o, model.OrderExpired, service.Cause{})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
}

func TestTransitionSoldCountMismatchFails(t *testing.T) {
	seats, orders := mocks.NewSeatStore(t), mocks.NewOrderStore(t)
	tr := service.NewTransitions(seats, orders)
	o := &model.Order{ID: "o1", Status: model.OrderPendingPayment, SeatIDs: []string{"S1", "S2"}}
	orders.On("UpdateStatusTx", mock.Anything, mock.Anything, "o1", model.OrderPendingPayment, model.OrderConfirmed).Return(true, nil)
	seats.On("MarkSoldTx", mock.Anything, mock.Anything, "o1").Return(int64(1), nil)

	assert.Error(t, tr.ApplyTx(context.Background(), nil, o, model.OrderConfirmed, service.Cause{}))
}

package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seatcore/internal/apperr"
	"github.com/iliyamo/seatcore/internal/handler"
	"github.com/iliyamo/seatcore/internal/lock"
	"github.com/iliyamo/seatcore/internal/model"
	"github.com/iliyamo/seatcore/internal/service"
)

type reservationsMock struct {
	mock.Mock
}

func (m *reservationsMock) HoldSeats(ctx context.Context, sess service.Session, performanceID string, seatIDs []string, ttl time.Duration) (*lock.Grant, error) {
	ret := m.Called(sess, performanceID, seatIDs, ttl)
	g, _ := ret.Get(0).(*lock.Grant)
	return g, ret.Error(1)
}

func (m *reservationsMock) ExtendHold(ctx context.Context, sess service.Session, holdID string, ttl time.Duration, fencing *int64) (time.Time, error) {
	ret := m.Called(sess, holdID, ttl, fencing)
	return ret.Get(0).(time.Time), ret.Error(1)
}

func (m *reservationsMock) ReleaseHold(ctx context.Context, sess service.Session, holdID string, fencing *int64) error {
	return m.Called(sess, holdID, fencing).Error(0)
}

func (m *reservationsMock) CreateOrder(ctx context.Context, sess service.Session, in service.CreateOrderInput) (*service.CreatedOrder, error) {
	ret := m.Called(sess, in)
	o, _ := ret.Get(0).(*service.CreatedOrder)
	return o, ret.Error(1)
}

func (m *reservationsMock) GetOrder(ctx context.Context, sess service.Session, orderID string) (*model.Order, error) {
	ret := m.Called(sess, orderID)
	o, _ := ret.Get(0).(*model.Order)
	return o, ret.Error(1)
}

func (m *reservationsMock) CancelOrder(ctx context.Context, sess service.Session, orderID string) (*model.Order, error) {
	ret := m.Called(sess, orderID)
	o, _ := ret.Get(0).(*model.Order)
	return o, ret.Error(1)
}

func (m *reservationsMock) Availability(ctx context.Context, performanceID string) (*service.Availability, error) {
	ret := m.Called(performanceID)
	a, _ := ret.Get(0).(*service.Availability)
	return a, ret.Error(1)
}

var alice = service.Session{UserID: "user-alice"}

func asUser(uid string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if uid != "" {
				c.Set("user_id", uid)
			}
			return next(c)
		}
	}
}

func newServer(t *testing.T, uid string) (*echo.Echo, *reservationsMock) {
	svc := &reservationsMock{}
	t.Cleanup(func() { svc.AssertExpectations(t) })

	e := echo.New()
	e.HTTPErrorHandler = handler.ErrorHandler(nil)
	holds := handler.NewHoldHandler(svc)
	orders := handler.NewOrderHandler(svc)
	av := handler.NewAvailabilityHandler(svc)
	u := asUser(uid)
	e.POST("/performances/:id/holds", holds.Create, u)
	e.PATCH("/holds/:holdId", holds.Extend, u)
	e.DELETE("/holds/:holdId", holds.Release, u)
	e.POST("/orders", orders.Create, u)
	e.GET("/orders/:id", orders.Get, u)
	e.POST("/orders/:id/cancel", orders.Cancel, u)
	e.GET("/performances/:id/seats", av.Get)
	return e, svc
}

func do(e *echo.Echo, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) handler.Problem {
	t.Helper()
	assert.Equal(t, handler.MIMEProblemJSON, rec.Header().Get(echo.HeaderContentType))
	var p handler.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestCreateHold(t *testing.T) {
	e, svc := newServer(t, "user-alice")
	exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.On("HoldSeats", alice, "P1", []string{"S1", "S2"}, 90*time.Second).Return(&lock.Grant{
		HoldID: "h1", PerformanceID: "P1", SeatIDs: []string{"S1", "S2"}, FencingTokens: []int64{1, 3}, ExpiresAt: exp,
	}, nil)

	rec := do(e, http.MethodPost, "/performances/P1/holds", `{"seats":["S1","S2"],"ttlMs":90000}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"holdId":"h1","seatIds":["S1","S2"],"fencingTokens":[1,3],"expiresAt":"2026-01-02T03:04:05Z"}`, rec.Body.String())
}

func TestCreateHoldConflictListsSeats(t *testing.T) {
	e, svc := newServer(t, "user-alice")
	svc.On("HoldSeats", alice, "P1", []string{"S1"}, time.Duration(0)).Return(nil, apperr.Conflict([]string{"S1"}))

	rec := do(e, http.MethodPost, "/performances/P1/holds", `{"seats":["S1"]}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, "urn:seatcore:problem:conflict", p.Type)
	assert.Equal(t, []string{"S1"}, p.ConflictSeatIDs)
}

func TestCreateHoldRejectsBadInput(t *testing.T) {
	e, _ := newServer(t, "user-alice")

	rec := do(e, http.MethodPost, "/performances/P1/holds", `{"seats":`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(e, http.MethodPost, "/performances/P1/holds", `{"seats":["S1"],"ttlMs":-5}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Overflows time.Duration when converted to nanoseconds.
	rec = do(e, http.MethodPost, "/performances/P1/holds", `{"seats":["S1"],"ttlMs":9223372036855}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec = do(e, http.MethodPatch, "/holds/h1", `{"ttlMs":86400001,"expectedVersion":7}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateHoldRequiresSession(t *testing.T) {
	e, _ := newServer(t, "")
	rec := do(e, http.MethodPost, "/performances/P1/holds", `{"seats":["S1"]}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExtendHoldFencingSources(t *testing.T) {
	exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tok := int64(7)

	t.Run("body", func(t *testing.T) {
		e, svc := newServer(t, "user-alice")
		svc.On("ExtendHold", alice, "h1", time.Minute, &tok).Return(exp, nil)
		rec := do(e, http.MethodPatch, "/holds/h1", `{"ttlMs":60000,"expectedVersion":7}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"holdId":"h1","expiresAt":"2026-01-02T03:04:05Z"}`, rec.Body.String())
	})

	t.Run("if-match", func(t *testing.T) {
		e, svc := newServer(t, "user-alice")
		svc.On("ExtendHold", alice, "h1", time.Minute, &tok).Return(exp, nil)
		rec := do(e, http.MethodPatch, "/holds/h1", `{"ttlMs":60000}`, handler.HeaderIfMatch, `"7"`)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		e, _ := newServer(t, "user-alice")
		rec := do(e, http.MethodPatch, "/holds/h1", `{"ttlMs":60000}`, handler.HeaderIfMatch, `"abc"`)
		assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	})
}

func TestExtendHoldErrorStatuses(t *testing.T) {
	cases := map[string]struct {
		err  error
		code int
	}{
		"missing":  {apperr.NotFound("hold not found"), http.StatusNotFound},
		"foreign":  {apperr.Ownership("hold belongs to another holder"), http.StatusForbidden},
		"expired":  {apperr.Expired("hold expired"), http.StatusGone},
		"mismatch": {apperr.Precondition("fencing token does not match hold"), http.StatusPreconditionFailed},
		"store":    {apperr.Transient("lock.extend", context.DeadlineExceeded), http.StatusServiceUnavailable},
		"untyped":  {assert.AnError, http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e, svc := newServer(t, "user-alice")
			svc.On("ExtendHold", alice, "h1", time.Duration(0), mock.Anything).Return(time.Time{}, tc.err)
			rec := do(e, http.MethodPatch, "/holds/h1", `{}`, handler.HeaderFencingToken, "3")
			assert.Equal(t, tc.code, rec.Code)
			p := decodeProblem(t, rec)
			assert.Equal(t, tc.code, p.Status)
		})
	}
}

func TestReleaseHold(t *testing.T) {
	e, svc := newServer(t, "user-alice")
	tok := int64(4)
	svc.On("ReleaseHold", alice, "h1", &tok).Return(nil)

	rec := do(e, http.MethodDelete, "/holds/h1", "", handler.HeaderFencingToken, "4")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCreateOrder(t *testing.T) {
	e, svc := newServer(t, "user-alice")
	in := service.CreateOrderInput{PerformanceID: "P1", SeatIDs: []string{"S1", "S2"}, AmountCents: 2000, Currency: "EUR"}
	svc.On("CreateOrder", alice, in).Return(&service.CreatedOrder{
		Order:        &model.Order{ID: "o1", Status: model.OrderPendingPayment},
		ClientSecret: "pi_1_secret",
	}, nil)

	rec := do(e, http.MethodPost, "/orders", `{"performanceId":"P1","seatIds":["S1","S2"],"amount":2000,"currency":"EUR"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"orderId":"o1","status":"PENDING_PAYMENT","paymentClientSecret":"pi_1_secret"}`, rec.Body.String())
}

func TestCreateOrderStaleLock(t *testing.T) {
	e, svc := newServer(t, "user-alice")
	svc.On("CreateOrder", alice, mock.Anything).Return(nil, apperr.StaleLock([]string{"S2"}))

	rec := do(e, http.MethodPost, "/orders", `{"performanceId":"P1","seatIds":["S1","S2"],"amount":2000,"currency":"EUR"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, "urn:seatcore:problem:stale-lock", p.Type)
	assert.Equal(t, []string{"S2"}, p.ConflictSeatIDs)
}

func TestGetAndCancelOrder(t *testing.T) {
	e, svc := newServer(t, "user-alice")
	ref := "pi_1"
	svc.On("GetOrder", alice, "o1").Return(&model.Order{
		ID: "o1", PerformanceID: "P1", Status: model.OrderConfirmed, SeatIDs: []string{"S1"}, AmountCents: 1000, Currency: "EUR", PaymentRef: &ref,
	}, nil)
	svc.On("CancelOrder", alice, "o1").Return(nil, apperr.InvalidState("order is CONFIRMED"))

	rec := do(e, http.MethodGet, "/orders/o1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"orderId":"o1","performanceId":"P1","status":"CONFIRMED","seatIds":["S1"],"amount":1000,"currency":"EUR","paymentRef":"pi_1"}`, rec.Body.String())

	rec = do(e, http.MethodPost, "/orders/o1/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "urn:seatcore:problem:invalid-state", decodeProblem(t, rec).Type)
}

func TestAvailability(t *testing.T) {
	e, svc := newServer(t, "")
	svc.On("Availability", "P1").Return(&service.Availability{
		PerformanceID: "P1",
		Seats:         []service.SeatAvailability{{SeatID: "S1", State: service.SeatHeld, Version: 2}},
	}, nil)

	rec := do(e, http.MethodGet, "/performances/P1/seats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"performanceId":"P1","seats":[{"seatId":"S1","state":"HELD","version":2}]}`, rec.Body.String())
}

func TestUnknownRouteIsProblem(t *testing.T) {
	e, _ := newServer(t, "")
	rec := do(e, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "urn:seatcore:problem:not-found", decodeProblem(t, rec).Type)
}

package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seatcore/internal/handler"
	"github.com/iliyamo/seatcore/internal/model"
	"github.com/iliyamo/seatcore/internal/payment"
)

type eventsMock struct {
	mock.Mock
}

func (m *eventsMock) Ingest(ctx context.Context, eventID, eventType string, payload []byte) (model.IngestResult, error) {
	ret := m.Called(eventID, eventType, payload)
	return ret.Get(0).(model.IngestResult), ret.Error(1)
}

const secret = "whsec_test"

func webhookServer(t *testing.T) (*echo.Echo, *eventsMock) {
	ev := &eventsMock{}
	t.Cleanup(func() { ev.AssertExpectations(t) })
	e := echo.New()
	e.HTTPErrorHandler = handler.ErrorHandler(nil)
	e.POST("/payments/webhooks", handler.NewWebhookHandler(ev, secret, 5*time.Minute, nil).Receive)
	return e, ev
}

func postWebhook(e *echo.Echo, body, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/payments/webhooks", strings.NewReader(body))
	if sig != "" {
		req.Header.Set(payment.SignatureHeader, sig)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const succeeded = `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`

func TestWebhookRecordsVerifiedEvent(t *testing.T) {
	e, ev := webhookServer(t)
	ev.On("Ingest", "evt_1", model.EventPaymentSucceeded, []byte(succeeded)).Return(model.IngestAccepted, nil).Once()
	ev.On("Ingest", "evt_1", model.EventPaymentSucceeded, []byte(succeeded)).Return(model.IngestDuplicate, nil).Once()

	sig := payment.Sign(secret, []byte(succeeded), time.Now())
	rec := postWebhook(e, succeeded, sig)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true,"result":"accepted"}`, rec.Body.String())

	rec = postWebhook(e, succeeded, sig)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true,"result":"duplicate"}`, rec.Body.String())
}

func TestWebhookRejectsBadSignatures(t *testing.T) {
	e, _ := webhookServer(t)

	assert.Equal(t, http.StatusBadRequest, postWebhook(e, succeeded, "").Code)
	assert.Equal(t, http.StatusBadRequest, postWebhook(e, succeeded, payment.Sign("other", []byte(succeeded), time.Now())).Code)

	stale := payment.Sign(secret, []byte(succeeded), time.Now().Add(-10*time.Minute))
	rec := postWebhook(e, succeeded, stale)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "tolerance")
}

func TestWebhookRejectsMalformedEvent(t *testing.T) {
	e, _ := webhookServer(t)
	body := `{"type":"payment_intent.succeeded"}`
	rec := postWebhook(e, body, payment.Sign(secret, []byte(body), time.Now()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

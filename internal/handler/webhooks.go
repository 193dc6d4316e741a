package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seatcore/internal/model"
	"github.com/iliyamo/seatcore/internal/payment"
)

const maxWebhookBody = 1 << 20

// PaymentEvents records verified provider events.
type PaymentEvents interface {
	Ingest(ctx context.Context, eventID, eventType string, payload []byte) (model.IngestResult, error)
}

type WebhookHandler struct {
	events    PaymentEvents
	secret    string
	tolerance time.Duration
	now       func() time.Time
	log       *slog.Logger
}

func NewWebhookHandler(events PaymentEvents, secret string, tolerance time.Duration, log *slog.Logger) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{events: events, secret: secret, tolerance: tolerance, now: time.Now, log: log}
}

type webhookResponse struct {
	Received bool               `json:"received"`
	Result   model.IngestResult `json:"result"`
}

// Receive handles POST /payments/webhooks. The event is only recorded here;
// the outbox worker applies it, so the provider gets a fast 200 and its
// retries of the same event id are absorbed.
func (h *WebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	if len(body) > maxWebhookBody {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "payload too large")
	}

	sig := c.Request().Header.Get(payment.SignatureHeader)
	if err := payment.VerifySignature(h.secret, sig, body, h.now(), h.tolerance); err != nil {
		h.log.Warn("webhook rejected", "err", err, "remote_ip", c.RealIP())
		msg := "invalid signature"
		if errors.Is(err, payment.ErrStaleSignature) {
			msg = "signature timestamp outside tolerance"
		}
		return echo.NewHTTPError(http.StatusBadRequest, msg)
	}

	ev, err := payment.ParseEvent(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed event")
	}
	res, err := h.events.Ingest(c.Request().Context(), ev.ID, ev.Type, body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, webhookResponse{Received: true, Result: res})
}

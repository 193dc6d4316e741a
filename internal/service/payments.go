package service

import (
	"context"
	"log/slog"

	"github.com/iliyamo/seatcore/internal/apperr"
	"github.com/iliyamo/seatcore/internal/model"
)

// PaymentIngest records verified provider events in the outbox. The outbox
// worker applies them later, so the webhook answers as soon as the row is
// durable.
type PaymentIngest struct {
	outbox EventRecorder
	log    *slog.Logger
}

func NewPaymentIngest(outbox EventRecorder, log *slog.Logger) *PaymentIngest {
	if log == nil {
		log = slog.Default()
	}
	return &PaymentIngest{outbox: outbox, log: log.With("component", "payment_ingest")}
}

// Ingest stores the event once per provider event id. A redelivery reports
// IngestDuplicate and is still a success.
func (p *PaymentIngest) Ingest(ctx context.Context, eventID, eventType string, payload []byte) (model.IngestResult, error) {
	if eventID == "" || len(eventID) > 255 {
		return "", apperr.Validation("invalid event id")
	}
	if eventType == "" {
		return "", apperr.Validation("event type required")
	}
	res, err := p.outbox.Insert(ctx, eventID, eventType, payload)
	if err != nil {
		return "", storeErr("outbox.insert", err)
	}
	p.log.InfoContext(ctx, "payment event recorded", "event_id", eventID, "type", eventType, "result", res)
	return res, nil
}

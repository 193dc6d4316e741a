// Package tasks runs retried background jobs on asynq. The only job today is
// cancelling a payment intent after its order was canceled or expired.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/iliyamo/seatcore/internal/payment"
)

const TypeCancelPaymentIntent = "payment:cancel_intent"

type CancelIntentPayload struct {
	OrderID    string `json:"order_id"`
	PaymentRef string `json:"payment_ref"`
	Reason     string `json:"reason"`
}

// Enqueuer is the slice of *asynq.Client the scheduler needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler enqueues tasks. One task per payment ref: re-scheduling the same
// cancellation is a no-op.
type Scheduler struct {
	client   Enqueuer
	maxRetry int
}

func NewScheduler(client Enqueuer, maxRetry int) *Scheduler {
	return &Scheduler{client: client, maxRetry: maxRetry}
}

func (s *Scheduler) ScheduleCancelIntent(ctx context.Context, orderID, paymentRef, reason string) error {
	payload, err := json.Marshal(CancelIntentPayload{OrderID: orderID, PaymentRef: paymentRef, Reason: reason})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeCancelPaymentIntent, payload)
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.TaskID("cancel-intent:"+paymentRef),
		asynq.MaxRetry(s.maxRetry),
		asynq.Timeout(30*time.Second),
		asynq.Retention(24*time.Hour),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeCancelPaymentIntent, err)
	}
	return nil
}

// Handlers processes tasks.
type Handlers struct {
	payments payment.Provider
	log      *slog.Logger
}

func NewHandlers(p payment.Provider, log *slog.Logger) *Handlers {
	return &Handlers{payments: p, log: log}
}

func (h *Handlers) HandleCancelIntent(ctx context.Context, t *asynq.Task) error {
	var p CancelIntentPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	err := h.payments.CancelPaymentIntent(ctx, p.PaymentRef)
	var se *payment.StatusError
	if errors.As(err, &se) && se.Permanent() {
		// Already canceled, already paid or unknown: nothing a retry can fix.
		h.log.Warn("payment intent cancel rejected", "order_id", p.OrderID, "payment_ref", p.PaymentRef, "status", se.Code)
		return nil
	}
	if err != nil {
		return err
	}
	h.log.Info("payment intent canceled", "order_id", p.OrderID, "payment_ref", p.PaymentRef, "reason", p.Reason)
	return nil
}

// NewServer builds the task server and its routes.
func NewServer(opt asynq.RedisClientOpt, concurrency int, h *Handlers, log *slog.Logger) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{"default": 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error("task failed", "type", task.Type(), "err", err)
		}),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeCancelPaymentIntent, h.HandleCancelIntent)
	return srv, mux
}

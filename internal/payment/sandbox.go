package payment

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Sandbox is an in-memory provider for local runs and tests. Intents are
// keyed by idempotency key, like the real provider.
type Sandbox struct {
	mu      sync.Mutex
	intents map[string]*SandboxIntent
	byKey   map[string]string

	// FailCreate, when set, is returned by CreatePaymentIntent.
	FailCreate error
}

// SandboxIntent is the recorded state of one intent.
type SandboxIntent struct {
	Intent
	OrderID     string
	AmountCents int64
	Currency    string
	Canceled    bool
}

func NewSandbox() *Sandbox {
	return &Sandbox{intents: map[string]*SandboxIntent{}, byKey: map[string]string{}}
}

func (s *Sandbox) CreatePaymentIntent(_ context.Context, req IntentRequest) (*Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreate != nil {
		return nil, s.FailCreate
	}
	if ref, ok := s.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		in := s.intents[ref].Intent
		return &in, nil
	}
	ref := "pi_" + uuid.NewString()
	in := &SandboxIntent{
		Intent:      Intent{Ref: ref, ClientSecret: ref + "_secret_" + uuid.NewString()[:8], Status: "requires_payment_method"},
		OrderID:     req.OrderID,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
	}
	s.intents[ref] = in
	if req.IdempotencyKey != "" {
		s.byKey[req.IdempotencyKey] = ref
	}
	out := in.Intent
	return &out, nil
}

var errUnknownIntent = errors.New("sandbox: unknown payment intent")

func (s *Sandbox) CancelPaymentIntent(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[ref]
	if !ok {
		return &StatusError{Op: "cancel_intent", Code: 404, Body: errUnknownIntent.Error()}
	}
	in.Canceled = true
	in.Status = "canceled"
	return nil
}

// Lookup returns a copy of the recorded intent.
func (s *Sandbox) Lookup(ref string) (SandboxIntent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[ref]
	if !ok {
		return SandboxIntent{}, false
	}
	return *in, true
}

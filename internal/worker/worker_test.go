package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seatcore/internal/model"
)

func TestRunOnceReleasesClaimsOnShutdown(t *testing.T) {
	f := newFixture(t)
	w := NewWorker("w1", f.outbox, f.proc, outboxConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	claimed := []model.PaymentEvent{{ID: 1}, {ID: 2}, {ID: 3}}
	f.outbox.On("Claim", anything, "w1", 3, 30*time.Second).Return(claimed, nil)
	f.outbox.On("ReleaseClaims", anything, "w1", []int64{1, 2, 3}).Return(nil)

	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunOnceHandlesClaimedBatch(t *testing.T) {
	f := newFixture(t)
	w := NewWorker("w1", f.outbox, f.proc, outboxConfig(), nil)

	ev := event(9, "customer.created", "cus_1", 0)
	f.outbox.On("Claim", anything, "w1", 3, 30*time.Second).Return([]model.PaymentEvent{ev}, nil)
	f.outbox.On("LockClaimedTx", anything, anything, int64(9), "w1").Return(true, nil)
	f.outbox.On("MarkProcessedTx", anything, anything, int64(9), "unhandled event type customer.created").Return(nil)

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPoolStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.outbox.On("Claim", anything, anything, 3, 30*time.Second).Return(nil, nil).Maybe()
	p := NewPool(f.outbox, f.proc, outboxConfig(), nil)
	require.Equal(t, 2, p.Size())
	assert.NotEqual(t, p.workers[0].ID(), p.workers[1].ID())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop")
	}
}

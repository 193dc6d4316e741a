package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{Conflict([]string{"S1"}), http.StatusConflict},
		{StaleLock([]string{"S2"}), http.StatusConflict},
		{Validation("bad %s", "seat"), http.StatusUnprocessableEntity},
		{Ownership("nope"), http.StatusForbidden},
		{Expired("gone"), http.StatusGone},
		{Precondition("fencing"), http.StatusPreconditionFailed},
		{NotFound("hold"), http.StatusNotFound},
		{IdempotencyConflict("body differs"), http.StatusConflict},
		{Transient("seats.reserve", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{Upstream("payment.create", errors.New("boom")), http.StatusBadGateway},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), "%v", tc.err)
	}
}

func TestWrappedErrorsKeepKindAndSeats(t *testing.T) {
	err := fmt.Errorf("create order: %w", StaleLock([]string{"S1", "S3"}))

	assert.Equal(t, KindStaleLock, KindOf(err))
	assert.Equal(t, []string{"S1", "S3"}, SeatIDs(err))
	assert.True(t, errors.Is(err, &Error{Kind: KindStaleLock}))
	assert.False(t, errors.Is(err, &Error{Kind: KindConflict}))
}

func TestTransientUnwrapsCause(t *testing.T) {
	err := Transient("outbox.claim", context.DeadlineExceeded)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "store unavailable", PublicMessage(err))
	assert.Contains(t, err.Error(), "outbox.claim")
	assert.Equal(t, "internal error", PublicMessage(errors.New("secret detail")))
}

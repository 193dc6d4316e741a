package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/seatcore/internal/apperr"
	"github.com/iliyamo/seatcore/internal/database"
	"github.com/iliyamo/seatcore/internal/repository"
)

// storeErr maps a repository failure onto the error taxonomy: typed errors
// pass through, retryable driver failures become transient, anything else
// stays an internal error.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(strings.SplitN(op, ".", 2)[0] + " not found")
	}
	if database.IsTransient(err) || errors.Is(err, context.Canceled) {
		return apperr.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

func validID(kind, id string) error {
	if !idPattern.MatchString(id) {
		return apperr.Validation("invalid %s %q", kind, id)
	}
	return nil
}

func validSeatIDs(seatIDs []string, max int) error {
	if len(seatIDs) == 0 || len(seatIDs) > max {
		return apperr.Validation("between 1 and %d seats required", max)
	}
	for _, s := range seatIDs {
		if err := validID("seat id", s); err != nil {
			return err
		}
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.KindOf(err)))
	}
	span.End()
}

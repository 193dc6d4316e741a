package handler

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seatcore/internal/apperr"
	"github.com/iliyamo/seatcore/internal/lock"
	"github.com/iliyamo/seatcore/internal/middleware"
	"github.com/iliyamo/seatcore/internal/model"
	"github.com/iliyamo/seatcore/internal/service"
)

// Reservations is the use-case surface the HTTP layer drives.
type Reservations interface {
	HoldSeats(ctx context.Context, sess service.Session, performanceID string, seatIDs []string, ttl time.Duration) (*lock.Grant, error)
	ExtendHold(ctx context.Context, sess service.Session, holdID string, ttl time.Duration, fencing *int64) (time.Time, error)
	ReleaseHold(ctx context.Context, sess service.Session, holdID string, fencing *int64) error
	CreateOrder(ctx context.Context, sess service.Session, in service.CreateOrderInput) (*service.CreatedOrder, error)
	GetOrder(ctx context.Context, sess service.Session, orderID string) (*model.Order, error)
	CancelOrder(ctx context.Context, sess service.Session, orderID string) (*model.Order, error)
	Availability(ctx context.Context, performanceID string) (*service.Availability, error)
}

func session(c echo.Context) (service.Session, error) {
	uid := middleware.UserID(c)
	if uid == "" {
		return service.Session{}, apperr.Unauthorized("authentication required")
	}
	return service.Session{UserID: uid}, nil
}

// bind decodes the JSON body, reporting malformed input as a validation
// failure rather than echo's plain 400.
func bind(c echo.Context, v any) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, v); err != nil {
		return apperr.Validation("malformed request body")
	}
	return nil
}

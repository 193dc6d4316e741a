// Package router wires handlers and middleware onto an echo instance.
package router

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/seatcore/internal/handler"
	"github.com/iliyamo/seatcore/internal/middleware"
)

type Handlers struct {
	Holds        *handler.HoldHandler
	Orders       *handler.OrderHandler
	Availability *handler.AvailabilityHandler
	Webhooks     *handler.WebhookHandler
	Health       *handler.HealthHandler
}

// Middleware holds the route-level middleware. Nil entries are skipped.
type Middleware struct {
	Session     echo.MiddlewareFunc
	Idempotency echo.MiddlewareFunc
	RateLimit   echo.MiddlewareFunc
	Cache       echo.MiddlewareFunc
}

func chain(mws ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(mws))
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// New builds the API. Every store call made by a handler inherits the
// request timeout through the request context.
func New(h Handlers, mw Middleware, log *slog.Logger, requestTimeout time.Duration) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(log)

	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.Recover())
	if requestTimeout > 0 {
		e.Use(echomw.ContextTimeout(requestTimeout))
	}

	Register(e, h, mw)
	return e
}

// Register maps the routes. Mutating client routes run Session before
// Idempotency so stored responses are scoped to the user.
func Register(e *echo.Echo, h Handlers, mw Middleware) {
	if h.Health != nil {
		e.GET("/healthz", h.Health.Check)
	}
	if h.Webhooks != nil {
		e.POST("/payments/webhooks", h.Webhooks.Receive)
	}
	if h.Availability != nil {
		e.GET("/performances/:id/seats", h.Availability.Get, chain(mw.Cache)...)
	}
	if h.Holds != nil {
		e.POST("/performances/:id/holds", h.Holds.Create, chain(mw.Session, mw.RateLimit, mw.Idempotency)...)
		e.PATCH("/holds/:holdId", h.Holds.Extend, chain(mw.Session, mw.Idempotency)...)
		e.DELETE("/holds/:holdId", h.Holds.Release, chain(mw.Session, mw.Idempotency)...)
	}
	if h.Orders != nil {
		e.POST("/orders", h.Orders.Create, chain(mw.Session, mw.Idempotency)...)
		e.GET("/orders/:id", h.Orders.Get, chain(mw.Session)...)
		e.POST("/orders/:id/cancel", h.Orders.Cancel, chain(mw.Session, mw.Idempotency)...)
	}
}

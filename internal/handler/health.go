package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports whether the process can reach its stores. Load
// balancers use it to take an instance out of rotation.
type HealthHandler struct {
	checks map[string]func(context.Context) error
}

func NewHealthHandler(db *sql.DB, rdb *redis.Client) *HealthHandler {
	h := &HealthHandler{checks: map[string]func(context.Context) error{}}
	if db != nil {
		h.checks["mysql"] = db.PingContext
	}
	if rdb != nil {
		h.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return h
}

// Check handles GET /healthz.
func (h *HealthHandler) Check(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	out := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			out[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		out[name] = "ok"
	}
	return c.JSON(status, echo.Map{"status": http.StatusText(status), "checks": out})
}

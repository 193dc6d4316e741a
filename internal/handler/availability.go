package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type AvailabilityHandler struct {
	svc Reservations
}

func NewAvailabilityHandler(svc Reservations) *AvailabilityHandler {
	return &AvailabilityHandler{svc: svc}
}

// Get handles GET /performances/:id/seats. The response is served through
// the short-TTL cache, so a seat shown AVAILABLE may already be held.
func (h *AvailabilityHandler) Get(c echo.Context) error {
	av, err := h.svc.Availability(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, av)
}

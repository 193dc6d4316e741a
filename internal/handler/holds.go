package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seatcore/internal/apperr"
)

const (
	HeaderFencingToken = "X-Fencing-Token"
	HeaderIfMatch      = "If-Match"

	// maxTTLms bounds ttlMs before conversion so the duration cannot
	// overflow; the lock layer applies the configured limits.
	maxTTLms = int64(24 * time.Hour / time.Millisecond)
)

type HoldHandler struct {
	svc Reservations
}

func NewHoldHandler(svc Reservations) *HoldHandler { return &HoldHandler{svc: svc} }

type createHoldRequest struct {
	Seats []string `json:"seats"`
	TTLms *int64   `json:"ttlMs"`
}

type holdResponse struct {
	HoldID        string    `json:"holdId"`
	SeatIDs       []string  `json:"seatIds,omitempty"`
	FencingTokens []int64   `json:"fencingTokens,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

func ttlFrom(ms *int64) (time.Duration, error) {
	if ms == nil {
		return 0, nil
	}
	if *ms <= 0 {
		return 0, apperr.Validation("ttlMs must be positive")
	}
	if *ms > maxTTLms {
		return 0, apperr.Validation("ttlMs must not exceed %d", maxTTLms)
	}
	return time.Duration(*ms) * time.Millisecond, nil
}

// Create handles POST /performances/:id/holds.
func (h *HoldHandler) Create(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	var req createHoldRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ttl, err := ttlFrom(req.TTLms)
	if err != nil {
		return err
	}
	g, err := h.svc.HoldSeats(c.Request().Context(), sess, c.Param("id"), req.Seats, ttl)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, holdResponse{
		HoldID:        g.HoldID,
		SeatIDs:       g.SeatIDs,
		FencingTokens: g.FencingTokens,
		ExpiresAt:     g.ExpiresAt.UTC(),
	})
}

type extendHoldRequest struct {
	TTLms           *int64 `json:"ttlMs"`
	ExpectedVersion *int64 `json:"expectedVersion"`
}

// fencingFrom reads the credential from the body, If-Match or
// X-Fencing-Token, in that order. A present but unparsable header is a
// precondition failure.
func fencingFrom(c echo.Context, body *int64) (*int64, error) {
	if body != nil {
		return body, nil
	}
	for _, name := range []string{HeaderIfMatch, HeaderFencingToken} {
		v := strings.TrimSpace(c.Request().Header.Get(name))
		if v == "" {
			continue
		}
		v = strings.Trim(strings.TrimPrefix(v, "W/"), `"`)
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, apperr.Precondition("malformed fencing token")
		}
		return &n, nil
	}
	return nil, nil
}

// Extend handles PATCH /holds/:holdId.
func (h *HoldHandler) Extend(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	var req extendHoldRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ttl, err := ttlFrom(req.TTLms)
	if err != nil {
		return err
	}
	fencing, err := fencingFrom(c, req.ExpectedVersion)
	if err != nil {
		return err
	}
	holdID := c.Param("holdId")
	deadline, err := h.svc.ExtendHold(c.Request().Context(), sess, holdID, ttl, fencing)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, holdResponse{HoldID: holdID, ExpiresAt: deadline.UTC()})
}

// Release handles DELETE /holds/:holdId.
func (h *HoldHandler) Release(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	fencing, err := fencingFrom(c, nil)
	if err != nil {
		return err
	}
	if err := h.svc.ReleaseHold(c.Request().Context(), sess, c.Param("holdId"), fencing); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

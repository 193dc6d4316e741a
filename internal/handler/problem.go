package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seatcore/internal/apperr"
)

const (
	MIMEProblemJSON = "application/problem+json"
	problemTypeBase = "urn:seatcore:problem:"
)

// Problem is an RFC 9457 problem document.
type Problem struct {
	Type            string   `json:"type"`
	Title           string   `json:"title"`
	Status          int      `json:"status"`
	Detail          string   `json:"detail,omitempty"`
	ConflictSeatIDs []string `json:"conflictSeatIds,omitempty"`
}

var statusKinds = map[int]string{
	http.StatusBadRequest:            "bad-request",
	http.StatusUnauthorized:          string(apperr.KindUnauthorized),
	http.StatusNotFound:              string(apperr.KindNotFound),
	http.StatusMethodNotAllowed:      "method-not-allowed",
	http.StatusRequestEntityTooLarge: "payload-too-large",
	http.StatusUnsupportedMediaType:  "unsupported-media-type",
	http.StatusTooManyRequests:       "rate-limited",
	http.StatusServiceUnavailable:    string(apperr.KindTransient),
}

// ProblemFor converts any handler error into a problem document. Untyped
// errors become an opaque 500.
func ProblemFor(err error) Problem {
	if e, ok := apperr.As(err); ok {
		status := apperr.HTTPStatus(err)
		return Problem{
			Type:            problemTypeBase + string(e.Kind),
			Title:           http.StatusText(status),
			Status:          status,
			Detail:          apperr.PublicMessage(err),
			ConflictSeatIDs: e.SeatIDs,
		}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		kind, ok := statusKinds[he.Code]
		if !ok {
			kind = "http-error"
		}
		p := Problem{Type: problemTypeBase + kind, Title: http.StatusText(he.Code), Status: he.Code}
		if he.Message != nil && he.Code < http.StatusInternalServerError {
			p.Detail = fmt.Sprint(he.Message)
		}
		return p
	}
	return Problem{
		Type:   problemTypeBase + string(apperr.KindUnknown),
		Title:  http.StatusText(http.StatusInternalServerError),
		Status: http.StatusInternalServerError,
	}
}

// ErrorHandler renders every error as application/problem+json and logs
// server-side failures with their cause.
func ErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	if log == nil {
		log = slog.Default()
	}
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		p := ProblemFor(err)
		if p.Status >= http.StatusInternalServerError {
			log.ErrorContext(c.Request().Context(), "request failed",
				"method", c.Request().Method, "path", c.Path(), "status", p.Status, "err", err)
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(p.Status)
			return
		}
		body, merr := json.Marshal(p)
		if merr != nil {
			_ = c.NoContent(http.StatusInternalServerError)
			return
		}
		_ = c.Blob(p.Status, MIMEProblemJSON, body)
	}
}

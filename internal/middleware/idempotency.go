package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seatcore/internal/apperr"
	"github.com/iliyamo/seatcore/internal/config"
	"github.com/iliyamo/seatcore/internal/database"
	"github.com/iliyamo/seatcore/internal/model"
)

const (
	HeaderIdempotencyKey     = "Idempotency-Key"
	HeaderIdempotentReplayed = "Idempotent-Replayed"

	maxIdempotentBody = 1 << 20
	maxKeyLen         = 255
)

// IdempotencyStore persists first responses per key.
type IdempotencyStore interface {
	Begin(ctx context.Context, key, requestHash string, ttl time.Duration) (*model.IdempotencyRecord, bool, error)
	Complete(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
	Discard(ctx context.Context, key string) error
}

func hashHex(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Idempotency requires an Idempotency-Key on the wrapped routes and replays
// the stored response when the same user retries the same request. Reusing a
// key for a different request, or while the first is still running, is a
// conflict. Server failures are not stored so the client can retry.
func Idempotency(store IdempotencyStore, cfg config.IdempotencyConfig, log *slog.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			clientKey := req.Header.Get(HeaderIdempotencyKey)
			if len(clientKey) < cfg.MinKeyLen || len(clientKey) > maxKeyLen {
				return apperr.Validation("%s header must be %d to %d characters", HeaderIdempotencyKey, cfg.MinKeyLen, maxKeyLen)
			}

			body, err := io.ReadAll(io.LimitReader(req.Body, maxIdempotentBody+1))
			if err != nil {
				return apperr.Validation("unreadable request body")
			}
			if len(body) > maxIdempotentBody {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
			}
			req.Body = io.NopCloser(bytes.NewReader(body))

			key := hashHex([]byte(UserID(c)), []byte(req.Method), []byte(req.URL.Path), []byte(clientKey))
			requestHash := hashHex(body, []byte(req.Header.Get("If-Match")), []byte(req.Header.Get("X-Fencing-Token")))

			ctx := req.Context()
			rec, created, err := store.Begin(ctx, key, requestHash, cfg.TTL)
			if err != nil {
				if database.IsTransient(err) {
					return apperr.Transient("idempotency.begin", err)
				}
				return err
			}
			if !created {
				return replay(c, rec, requestHash)
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK}
			c.Response().Writer = cw
			if err := next(c); err != nil {
				c.Error(err)
			}

			// The response is already written; persist it detached from the
			// request so a disconnect cannot strand the key IN_PROGRESS.
			saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if cw.status >= http.StatusInternalServerError {
				if err := store.Discard(saveCtx, key); err != nil {
					log.Error("discard idempotency key", "err", err)
				}
				return nil
			}
			ct := c.Response().Header().Get(echo.HeaderContentType)
			if err := store.Complete(saveCtx, key, cw.status, ct, cw.buf.Bytes()); err != nil {
				log.Error("store idempotent response", "status", cw.status, "err", err)
			}
			return nil
		}
	}
}

func replay(c echo.Context, rec *model.IdempotencyRecord, requestHash string) error {
	if rec.RequestHash != requestHash {
		return apperr.IdempotencyConflict("idempotency key reused with a different request")
	}
	if rec.Status != model.IdempotencyCompleted {
		return apperr.IdempotencyConflict("a request with this idempotency key is in progress")
	}
	c.Response().Header().Set(HeaderIdempotentReplayed, "true")
	if len(rec.Body) == 0 {
		return c.NoContent(rec.StatusCode)
	}
	ct := rec.ContentType
	if ct == "" {
		ct = echo.MIMEApplicationJSON
	}
	return c.Blob(rec.StatusCode, ct, rec.Body)
}

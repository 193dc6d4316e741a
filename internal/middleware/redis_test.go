package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seatcore/internal/config"
	"github.com/iliyamo/seatcore/internal/middleware"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestTokenBucketLimits(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour,
		TTL: time.Hour, KeyStrategy: "ip_route", Prefix: "rl",
	}
	e := newEcho()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, middleware.NewTokenBucket(cfg, rdb, nil))

	assert.Equal(t, http.StatusOK, get(e, "/x").Code)
	rec := get(e, "/x")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = get(e, "/x")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate-limited")
}

func TestTokenBucketFailsOpen(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute, Prefix: "rl"}
	e := newEcho()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, middleware.NewTokenBucket(cfg, rdb, nil))

	assert.Equal(t, http.StatusOK, get(e, "/x").Code)
}

func TestRedisCacheKeysOnPath(t *testing.T) {
	mr, rdb := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, TTL: time.Second, Prefix: "cache", Methods: map[string]bool{http.MethodGet: true}}
	calls := map[string]int{}
	e := newEcho()
	e.GET("/performances/:id/seats", func(c echo.Context) error {
		calls[c.Param("id")]++
		return c.JSON(http.StatusOK, echo.Map{"performanceId": c.Param("id")})
	}, middleware.NewRedisCache(cfg, rdb, nil))

	first := get(e, "/performances/P1/seats")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	hit := get(e, "/performances/P1/seats")
	assert.Equal(t, "HIT", hit.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), hit.Body.String())
	assert.Contains(t, hit.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON)

	other := get(e, "/performances/P2/seats")
	assert.Equal(t, "MISS", other.Header().Get("X-Cache"))
	assert.Contains(t, other.Body.String(), "P2")

	mr.FastForward(2 * time.Second)
	assert.Equal(t, "MISS", get(e, "/performances/P1/seats").Header().Get("X-Cache"))
	assert.Equal(t, 2, calls["P1"])
	assert.Equal(t, 1, calls["P2"])
}

func TestRedisCacheSkipsErrors(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, TTL: time.Minute, Prefix: "cache", Methods: map[string]bool{http.MethodGet: true}}
	e := newEcho()
	e.GET("/p/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "no such performance")
	}, middleware.NewRedisCache(cfg, rdb, nil))

	get(e, "/p/1")
	assert.Equal(t, "MISS", get(e, "/p/1").Header().Get("X-Cache"))
}

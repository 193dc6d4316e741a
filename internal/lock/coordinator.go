// Package lock coordinates short-lived exclusive seat holds in Redis. Every
// multi-seat operation runs as one Lua script, so a batch is acquired,
// extended or released as a unit.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/seatcore/internal/apperr"
	"github.com/iliyamo/seatcore/internal/config"
	"github.com/iliyamo/seatcore/internal/database"
	"github.com/iliyamo/seatcore/internal/model"
)

// VersionReader exposes durable seat state and versions.
type VersionReader interface {
	Versions(ctx context.Context, performanceID string, seatIDs []string) (map[string]model.SeatVersion, error)
}

// Grant is the result of a successful batch acquisition.
type Grant struct {
	HoldID        string
	PerformanceID string
	SeatIDs       []string
	FencingTokens []int64
	ExpiresAt     time.Time
}

// Coordinator owns the seat lock key space.
type Coordinator struct {
	rdb      *redis.Client
	versions VersionReader
	cfg      config.LockConfig
	now      func() time.Time
	newID    func() string
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithClock replaces the wall clock used for deadlines.
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// WithIDGenerator replaces the hold id generator.
func WithIDGenerator(gen func() string) Option { return func(c *Coordinator) { c.newID = gen } }

func New(rdb *redis.Client, versions VersionReader, cfg config.LockConfig, opts ...Option) *Coordinator {
	c := &Coordinator{
		rdb:      rdb,
		versions: versions,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Coordinator) lockKey(performanceID, seatID string) string {
	return c.cfg.Prefix + ":lock:" + performanceID + ":" + seatID
}

func (c *Coordinator) holdKey(holdID string) string {
	return c.cfg.Prefix + ":hold:" + holdID
}

func (c *Coordinator) lockKeys(performanceID string, seatIDs []string) []string {
	keys := make([]string, len(seatIDs))
	for i, s := range seatIDs {
		keys[i] = c.lockKey(performanceID, s)
	}
	return keys
}

// Normalize sorts and de-duplicates seat ids. Every batch operation works in
// this order.
func Normalize(seatIDs []string) []string {
	seen := make(map[string]struct{}, len(seatIDs))
	out := make([]string, 0, len(seatIDs))
	for _, s := range seatIDs {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func redisErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return apperr.Transient("lock."+op, err)
}

func storeErr(op string, err error) error {
	if database.IsTransient(err) {
		return apperr.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Acquire locks every seat for holder or none of them. Seats that are not
// AVAILABLE in the store or already locked are returned in a conflict error.
func (c *Coordinator) Acquire(ctx context.Context, performanceID string, seatIDs []string, holder string, ttl time.Duration) (*Grant, error) {
	seatIDs = Normalize(seatIDs)
	if len(seatIDs) == 0 || len(seatIDs) > c.cfg.MaxSeats {
		return nil, apperr.Validation("between 1 and %d seats required", c.cfg.MaxSeats)
	}
	if holder == "" {
		return nil, apperr.Validation("holder token required")
	}
	if ttl < c.cfg.MinTTL || ttl > c.cfg.MaxTTL {
		return nil, apperr.Validation("ttl must be between %s and %s", c.cfg.MinTTL, c.cfg.MaxTTL)
	}

	versions, err := c.versions.Versions(ctx, performanceID, seatIDs)
	if err != nil {
		return nil, storeErr("seats.versions", err)
	}
	var unknown, conflicts []string
	tokens := make([]int64, len(seatIDs))
	for i, s := range seatIDs {
		v, ok := versions[s]
		switch {
		case !ok:
			unknown = append(unknown, s)
		case v.State != model.SeatAvailable:
			conflicts = append(conflicts, s)
		default:
			tokens[i] = v.Version + 1
		}
	}
	if len(unknown) > 0 {
		return nil, apperr.Validation("unknown seats: %s", strings.Join(unknown, ","))
	}
	if len(conflicts) > 0 {
		live, err := c.LiveLocks(ctx, performanceID, seatIDs)
		if err != nil {
			return nil, err
		}
		for _, s := range seatIDs {
			if live[s] && versions[s].State == model.SeatAvailable {
				conflicts = append(conflicts, s)
			}
		}
		sort.Strings(conflicts)
		return nil, apperr.Conflict(conflicts)
	}

	holdID := c.newID()
	now := c.now()
	tokenStrs := make([]string, len(tokens))
	for i, t := range tokens {
		tokenStrs[i] = strconv.FormatInt(t, 10)
	}
	keys := append([]string{c.holdKey(holdID)}, c.lockKeys(performanceID, seatIDs)...)
	args := []any{
		holder,
		holdID,
		ttl.Milliseconds(),
		now.UnixMilli(),
		performanceID,
		strings.Join(seatIDs, ","),
		strings.Join(tokenStrs, ","),
	}
	for _, t := range tokens {
		args = append(args, t)
	}

	res, err := acquireScript.Run(ctx, c.rdb, keys, args...).Slice()
	if err != nil {
		return nil, redisErr("acquire", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("lock.acquire: unexpected script result %v", res)
	}
	if asInt64(res[0]) != 1 {
		idx, _ := res[1].([]any)
		taken := make([]string, 0, len(idx))
		for _, v := range idx {
			if i := int(asInt64(v)) - 1; i >= 0 && i < len(seatIDs) {
				taken = append(taken, seatIDs[i])
			}
		}
		return nil, apperr.Conflict(taken)
	}
	if err := c.confirmVersions(ctx, performanceID, seatIDs, tokens, holder, holdID, keys); err != nil {
		return nil, err
	}
	return &Grant{
		HoldID:        holdID,
		PerformanceID: performanceID,
		SeatIDs:       seatIDs,
		FencingTokens: tokens,
		ExpiresAt:     time.UnixMilli(asInt64(res[1])).UTC(),
	}, nil
}

// confirmVersions re-reads the seats after the locks are in place. A seat
// that was reserved and released in between carries a newer version, so the
// fencing token issued for it could never complete a reserve; the hold is
// dropped and the seat reported as a conflict.
func (c *Coordinator) confirmVersions(ctx context.Context, performanceID string, seatIDs []string, tokens []int64,
	holder, holdID string, keys []string) error {
	versions, err := c.versions.Versions(ctx, performanceID, seatIDs)
	var moved []string
	if err == nil {
		for i, s := range seatIDs {
			v, ok := versions[s]
			if !ok || v.State != model.SeatAvailable || v.Version+1 != tokens[i] {
				moved = append(moved, s)
			}
		}
		if len(moved) == 0 {
			return nil
		}
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if rerr := releaseHoldScript.Run(rctx, c.rdb, keys, holder, holdID).Err(); rerr != nil {
		return redisErr("acquire.rollback", rerr)
	}
	if err != nil {
		return storeErr("seats.versions", err)
	}
	return apperr.Conflict(moved)
}

// Hold loads a hold record.
func (c *Coordinator) Hold(ctx context.Context, holdID string) (*model.Hold, error) {
	m, err := c.rdb.HGetAll(ctx, c.holdKey(holdID)).Result()
	if err != nil {
		return nil, redisErr("hold", err)
	}
	if len(m) == 0 {
		return nil, apperr.NotFound("hold not found")
	}
	return parseHold(holdID, m)
}

func parseHold(holdID string, m map[string]string) (*model.Hold, error) {
	h := &model.Hold{
		ID:            holdID,
		PerformanceID: m["performance_id"],
		HolderToken:   m["holder"],
	}
	if s := m["seats"]; s != "" {
		h.SeatIDs = strings.Split(s, ",")
	}
	if s := m["tokens"]; s != "" {
		for _, part := range strings.Split(s, ",") {
			t, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("hold %s: bad fencing token %q", holdID, part)
			}
			h.FencingTokens = append(h.FencingTokens, t)
		}
	}
	created, _ := strconv.ParseInt(m["created_ms"], 10, 64)
	deadline, _ := strconv.ParseInt(m["deadline_ms"], 10, 64)
	h.CreatedAt = time.UnixMilli(created).UTC()
	h.ExpiresAt = time.UnixMilli(deadline).UTC()
	h.Extensions, _ = strconv.Atoi(m["extensions"])
	return h, nil
}

// Extend pushes the hold deadline by additional, bounded by the extension
// count and the absolute lifetime ceiling.
func (c *Coordinator) Extend(ctx context.Context, holdID, holder string, additional time.Duration) (time.Time, error) {
	if additional < c.cfg.MinTTL || additional > c.cfg.MaxTTL {
		return time.Time{}, apperr.Validation("ttl must be between %s and %s", c.cfg.MinTTL, c.cfg.MaxTTL)
	}
	h, err := c.Hold(ctx, holdID)
	if err != nil {
		return time.Time{}, err
	}
	if h.HolderToken != holder {
		return time.Time{}, apperr.Ownership("hold belongs to another holder")
	}
	keys := append([]string{c.holdKey(holdID)}, c.lockKeys(h.PerformanceID, h.SeatIDs)...)
	res, err := extendScript.Run(ctx, c.rdb, keys,
		holder, holdID, additional.Milliseconds(), c.now().UnixMilli(),
		c.cfg.MaxExtensions, c.cfg.MaxLifetime.Milliseconds(),
	).Slice()
	if err != nil {
		return time.Time{}, redisErr("extend", err)
	}
	if len(res) == 0 {
		return time.Time{}, fmt.Errorf("lock.extend: empty script result")
	}
	switch asInt64(res[0]) {
	case 1:
		if len(res) < 2 {
			return time.Time{}, fmt.Errorf("lock.extend: unexpected script result %v", res)
		}
		return time.UnixMilli(asInt64(res[1])).UTC(), nil
	case -1:
		return time.Time{}, apperr.Expired("hold expired")
	case -2:
		return time.Time{}, apperr.Ownership("hold belongs to another holder")
	default:
		return time.Time{}, apperr.Validation("hold extension limit reached")
	}
}

// Release drops holder's locks on the given seats. Foreign and missing
// locks are ignored, so calling it twice is harmless.
func (c *Coordinator) Release(ctx context.Context, performanceID string, seatIDs []string, holder string) (int, error) {
	seatIDs = Normalize(seatIDs)
	if len(seatIDs) == 0 {
		return 0, nil
	}
	n, err := releaseScript.Run(ctx, c.rdb, c.lockKeys(performanceID, seatIDs), holder).Int()
	if err != nil {
		return 0, redisErr("release", err)
	}
	return n, nil
}

// ReleaseHold drops a hold record together with the locks it still owns.
func (c *Coordinator) ReleaseHold(ctx context.Context, holdID, holder string) (int, error) {
	h, err := c.Hold(ctx, holdID)
	if err != nil {
		return 0, err
	}
	if h.HolderToken != holder {
		return 0, apperr.Ownership("hold belongs to another holder")
	}
	keys := append([]string{c.holdKey(holdID)}, c.lockKeys(h.PerformanceID, h.SeatIDs)...)
	n, err := releaseHoldScript.Run(ctx, c.rdb, keys, holder, holdID).Int()
	if err != nil {
		return 0, redisErr("release_hold", err)
	}
	switch n {
	case -1:
		return 0, apperr.NotFound("hold not found")
	case -2:
		return 0, apperr.Ownership("hold belongs to another holder")
	}
	return n, nil
}

// Verify re-reads a seat lock. It reports false when the lock is absent,
// owned by someone else, past its deadline, or too close to expiry to be
// promoted safely. The returned fencing token is only meaningful when ok.
func (c *Coordinator) Verify(ctx context.Context, performanceID, seatID, holder string) (int64, bool, error) {
	res, err := verifyScript.Run(ctx, c.rdb, []string{c.lockKey(performanceID, seatID)}, holder).Slice()
	if err != nil {
		return 0, false, redisErr("verify", err)
	}
	if len(res) < 4 || asInt64(res[0]) != 1 {
		return 0, false, nil
	}
	fencing := asInt64(res[1])
	remaining := time.Duration(asInt64(res[2])-c.now().UnixMilli()) * time.Millisecond
	if pttl := asInt64(res[3]); pttl >= 0 {
		if d := time.Duration(pttl) * time.Millisecond; d < remaining {
			remaining = d
		}
	}
	if remaining <= c.cfg.PromotionGuard {
		return 0, false, nil
	}
	return fencing, true, nil
}

// LiveLocks reports which seats currently have a lock entry.
func (c *Coordinator) LiveLocks(ctx context.Context, performanceID string, seatIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(seatIDs))
	if len(seatIDs) == 0 {
		return out, nil
	}
	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(seatIDs))
	for i, s := range seatIDs {
		cmds[i] = pipe.Exists(ctx, c.lockKey(performanceID, s))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, redisErr("live_locks", err)
	}
	for i, s := range seatIDs {
		out[s] = cmds[i].Val() == 1
	}
	return out, nil
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}

package lock

import (
	"context"
	"strings"
	"time"
)

// SweepStats counts what one sweep removed.
type SweepStats struct {
	Locks int
	Holds int
}

const sweepScanCount = 200

// Sweep removes lock entries whose recorded deadline passed more than grace
// ago but which are still present (TTL skew, a stray PERSIST), and hold
// records that are past their deadline or own no surviving lock. It never
// touches the seat store: an absent lock already fails Verify.
func (c *Coordinator) Sweep(ctx context.Context, grace time.Duration) (SweepStats, error) {
	var stats SweepStats
	cutoff := c.now().Add(-grace).UnixMilli()

	err := c.scan(ctx, c.cfg.Prefix+":lock:*", func(key string) error {
		n, err := sweepLockScript.Run(ctx, c.rdb, []string{key}, cutoff).Int()
		if err != nil {
			return redisErr("sweep_lock", err)
		}
		stats.Locks += n
		return nil
	})
	if err != nil {
		return stats, err
	}

	holdPrefix := c.cfg.Prefix + ":hold:"
	err = c.scan(ctx, holdPrefix+"*", func(key string) error {
		holdID := strings.TrimPrefix(key, holdPrefix)
		vals, err := c.rdb.HMGet(ctx, key, "performance_id", "seats").Result()
		if err != nil {
			return redisErr("sweep_hold", err)
		}
		perf, _ := vals[0].(string)
		seats, _ := vals[1].(string)
		keys := []string{key}
		if seats != "" {
			keys = append(keys, c.lockKeys(perf, strings.Split(seats, ","))...)
		}
		n, err := sweepHoldScript.Run(ctx, c.rdb, keys, holdID, cutoff).Int()
		if err != nil {
			return redisErr("sweep_hold", err)
		}
		stats.Holds += n
		return nil
	})
	return stats, err
}

func (c *Coordinator) scan(ctx context.Context, match string, fn func(key string) error) error {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, match, sweepScanCount).Result()
		if err != nil {
			return redisErr("scan", err)
		}
		for _, k := range keys {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(k); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

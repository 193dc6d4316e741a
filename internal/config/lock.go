package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// LockConfig bounds seat hold behaviour.
type LockConfig struct {
	Prefix         string        `env:"LOCK_PREFIX" envDefault:"seatcore"`
	DefaultTTL     time.Duration `env:"LOCK_DEFAULT_TTL" envDefault:"2m"`
	MinTTL         time.Duration `env:"LOCK_MIN_TTL" envDefault:"5s"`
	MaxTTL         time.Duration `env:"LOCK_MAX_TTL" envDefault:"10m"`
	MaxExtensions  int           `env:"LOCK_MAX_EXTENSIONS" envDefault:"1"`
	MaxLifetime    time.Duration `env:"LOCK_MAX_LIFETIME" envDefault:"15m"`
	PromotionGuard time.Duration `env:"LOCK_PROMOTION_GUARD" envDefault:"250ms"`
	MaxSeats       int           `env:"LOCK_MAX_SEATS" envDefault:"25"`
	SweepInterval  time.Duration `env:"LOCK_SWEEP_INTERVAL" envDefault:"10s"`
	SweepGrace     time.Duration `env:"LOCK_SWEEP_GRACE" envDefault:"2s"`
}

// LoadLockConfig parses LockConfig and clamps inconsistent values.
func LoadLockConfig() (LockConfig, error) {
	cfg, err := env.ParseAs[LockConfig]()
	if err != nil {
		return LockConfig{}, fmt.Errorf("parse lock config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *LockConfig) normalize() {
	if c.MinTTL <= 0 {
		c.MinTTL = time.Second
	}
	if c.MaxTTL < c.MinTTL {
		c.MaxTTL = c.MinTTL
	}
	if c.DefaultTTL < c.MinTTL || c.DefaultTTL > c.MaxTTL {
		c.DefaultTTL = c.MaxTTL
	}
	if c.MaxExtensions < 0 {
		c.MaxExtensions = 0
	}
	if c.MaxLifetime < c.MaxTTL {
		c.MaxLifetime = c.MaxTTL
	}
	if c.MaxSeats < 1 || c.MaxSeats > 25 {
		c.MaxSeats = 25
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 10 * time.Second
	}
}

// OutboxConfig configures the payment event worker pool.
type OutboxConfig struct {
	Workers      int           `env:"OUTBOX_WORKERS" envDefault:"4"`
	BatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"16"`
	PollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"500ms"`
	Lease        time.Duration `env:"OUTBOX_LEASE" envDefault:"30s"`
	MaxAttempts  int           `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"10"`
	BaseBackoff  time.Duration `env:"OUTBOX_BASE_BACKOFF" envDefault:"1s"`
	MaxBackoff   time.Duration `env:"OUTBOX_MAX_BACKOFF" envDefault:"5m"`
	DrainTimeout time.Duration `env:"OUTBOX_DRAIN_TIMEOUT" envDefault:"15s"`
}

// LoadOutboxConfig parses OutboxConfig and clamps inconsistent values.
func LoadOutboxConfig() (OutboxConfig, error) {
	cfg, err := env.ParseAs[OutboxConfig]()
	if err != nil {
		return OutboxConfig{}, fmt.Errorf("parse outbox config: %w", err)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = cfg.BaseBackoff
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Second
	}
	return cfg, nil
}

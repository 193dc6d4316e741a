package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the runtime configuration shared by the API and worker
// binaries. Concern-specific settings (locks, outbox, rate limiting, cache)
// have their own loaders so each binary only parses what it uses.
type Config struct {
	Env            string        `env:"APP_ENV" envDefault:"dev"`
	Port           string        `env:"APP_PORT" envDefault:"8080"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5s"`
	JWTSecret      string        `env:"JWT_SECRET,required"`
	AutoMigrate    bool          `env:"DB_AUTO_MIGRATE" envDefault:"false"`

	DB          DBConfig
	Redis       RedisConfig
	Payment     PaymentConfig
	AMQP        AMQPConfig
	Tracing     TracingConfig
	Idempotency IdempotencyConfig
	Expiry      OrderExpiryConfig
	Tasks       TaskConfig
}

// DBConfig describes the MySQL connection.
type DBConfig struct {
	User string `env:"DB_USER,required"`
	Pass string `env:"DB_PASS"`
	Host string `env:"DB_HOST,required"`
	Port string `env:"DB_PORT" envDefault:"3306"`
	Name string `env:"DB_NAME,required"`
}

// PaymentConfig selects and configures the payment provider adapter.
// Provider "sandbox" keeps intents in memory and is meant for local runs.
type PaymentConfig struct {
	Provider         string        `env:"PAYMENT_PROVIDER" envDefault:"sandbox"`
	BaseURL          string        `env:"PAYMENT_BASE_URL"`
	APIKey           string        `env:"PAYMENT_API_KEY"`
	WebhookSecret    string        `env:"PAYMENT_WEBHOOK_SECRET,required"`
	WebhookTolerance time.Duration `env:"PAYMENT_WEBHOOK_TOLERANCE" envDefault:"5m"`
	Timeout          time.Duration `env:"PAYMENT_TIMEOUT" envDefault:"10s"`
}

// AMQPConfig configures the order notification publisher. An empty URL
// disables publishing.
type AMQPConfig struct {
	URL   string `env:"RABBITMQ_URL"`
	Queue string `env:"RABBITMQ_QUEUE" envDefault:"order.confirmed"`
}

// TracingConfig toggles the OTLP trace exporter. Tracing is off unless an
// endpoint is set.
type TracingConfig struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"true"`
	Endpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"seatcore"`
}

// IdempotencyConfig controls how long stored responses are replayed.
type IdempotencyConfig struct {
	TTL       time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	MinKeyLen int           `env:"IDEMPOTENCY_MIN_KEY_LEN" envDefault:"8"`
}

// OrderExpiryConfig controls the PendingPayment expiry sweep.
type OrderExpiryConfig struct {
	PaymentWindow time.Duration `env:"ORDER_PAYMENT_WINDOW" envDefault:"15m"`
	SweepInterval time.Duration `env:"ORDER_EXPIRY_INTERVAL" envDefault:"30s"`
	BatchSize     int           `env:"ORDER_EXPIRY_BATCH" envDefault:"100"`
}

// TaskConfig configures the background task server.
type TaskConfig struct {
	Concurrency int `env:"TASK_CONCURRENCY" envDefault:"4"`
	MaxRetry    int `env:"TASK_MAX_RETRY" envDefault:"10"`
}

// Load reads .env (when present) and the process environment into a Config.
// Missing required variables are reported together in the returned error.
func Load() (Config, error) {
	loadDotEnv()
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.Idempotency.MinKeyLen < 1 {
		cfg.Idempotency.MinKeyLen = 8
	}
	if cfg.Payment.Provider != "sandbox" && cfg.Payment.BaseURL == "" {
		return Config{}, errors.New("PAYMENT_BASE_URL is required unless PAYMENT_PROVIDER=sandbox")
	}
	return cfg, nil
}

// loadDotEnv is best effort: deployments pass real environment variables.
func loadDotEnv() {
	_ = godotenv.Load()
}

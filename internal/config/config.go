package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Primary   Primary         `koanf:"primary"`
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Logger    LoggerConfig    `koanf:"logger"`
	Worker    WorkerConfig    `koanf:"worker"`
	Lifecycle LifecycleConfig `koanf:"lifecycle"`
	Kafka     KafkaConfig     `koanf:"kafka"`
	Merchants MerchantsConfig `koanf:"merchants"`
	Limits    LimitsConfig    `koanf:"limits"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port           string        `koanf:"port" validate:"required"`
	ReadTimeout    time.Duration `koanf:"read_timeout" validate:"required"`
	WriteTimeout   time.Duration `koanf:"write_timeout" validate:"required"`
	IdleTimeout    time.Duration `koanf:"idle_timeout" validate:"required"`
	InternalAPIKey string        `koanf:"internal_api_key"`
	PublicBaseURL  string        `koanf:"public_base_url"`
}

// DatabaseConfig is validated only when Driver is postgres.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver"`
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"required"`
	User            string        `koanf:"user" validate:"required"`
	Password        string        `koanf:"password" validate:"required"`
	Name            string        `koanf:"name" validate:"required"`
	SSLMode         string        `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time" validate:"required"`
}

type LoggerConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type WorkerConfig struct {
	Interval    time.Duration `koanf:"interval" validate:"required"`
	BatchSize   int           `koanf:"batch_size" validate:"required"`
	Concurrency int           `koanf:"concurrency" validate:"required,min=1"`
	StuckAfter  time.Duration `koanf:"stuck_after" validate:"required"`
}

type LifecycleConfig struct {
	LockTTL         time.Duration `koanf:"lock_ttl" validate:"required"`
	LockTimeout     time.Duration `koanf:"lock_timeout" validate:"required"`
	IdempotencyTTL  time.Duration `koanf:"idempotency_ttl" validate:"required"`
	TransactionTTL  time.Duration `koanf:"transaction_ttl" validate:"required"`
	MaxAttempts     int           `koanf:"max_attempts" validate:"required,min=1"`
	DefaultCurrency string        `koanf:"default_currency" validate:"required,len=3"`
	Retry           RetryConfig   `koanf:"retry"`
}

// RetryConfig bounds automatic retries of stale-version conflicts.
type RetryConfig struct {
	BaseDelay  time.Duration `koanf:"base_delay"`
	MaxRetries int           `koanf:"max_retries"`
}

// KafkaConfig enables transition events when Brokers is set.
type KafkaConfig struct {
	Brokers string `koanf:"brokers"`
	Topic   string `koanf:"topic"`
}

func (c KafkaConfig) Enabled() bool {
	return strings.TrimSpace(c.Brokers) != ""
}

func (c KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

type MerchantsConfig struct {
	SeedFile string `koanf:"seed_file"`
}

// LimitsConfig holds per-currency maximum Init amounts in major units,
// e.g. "RUB:150000,USD:2000".
type LimitsConfig struct {
	MaxAmount string `koanf:"max_amount"`
}

func defaults() map[string]any {
	return map[string]any{
		"primary.env":                      "development",
		"server.port":                      "8080",
		"server.read_timeout":              "10s",
		"server.write_timeout":             "10s",
		"server.idle_timeout":              "60s",
		"database.driver":                  DriverPostgres,
		"database.port":                    5432,
		"database.ssl_mode":                "disable",
		"database.max_open_conns":          10,
		"database.max_idle_conns":          2,
		"database.conn_max_lifetime":       "1h",
		"database.conn_max_idle_time":      "30m",
		"logger.level":                     "info",
		"logger.format":                    "text",
		"worker.interval":                  "30s",
		"worker.batch_size":                100,
		"worker.concurrency":               4,
		"worker.stuck_after":               "5m",
		"lifecycle.lock_ttl":               "10s",
		"lifecycle.lock_timeout":           "3s",
		"lifecycle.idempotency_ttl":        "24h",
		"lifecycle.transaction_ttl":        "30m",
		"lifecycle.max_attempts":           3,
		"lifecycle.default_currency":       "RUB",
		"lifecycle.retry.base_delay":       "20ms",
		"lifecycle.retry.max_retries":      3,
		"kafka.topic":                      "transaction-transitions",
	}
}

func LoadConfig() (*Config, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		logger.Error("failed to load default configuration", "error", err)
		return nil, err
	}

	err := k.Load(env.Provider("GATEWAY_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "GATEWAY_")),
			"__",
			".",
		)
	}), nil)
	if err != nil {
		logger.Error("failed to load environment variables", "error", err)
		return nil, err
	}

	mainConfig := &Config{}

	err = k.Unmarshal("", mainConfig)
	if err != nil {
		logger.Error("could not unmarshal main config", "error", err)
		return nil, err
	}

	if err := mainConfig.Validate(); err != nil {
		logger.Error("config validation failed", "error", err)
		return nil, err
	}

	return mainConfig, nil
}

// Validate checks every section; the database section only matters for the
// postgres driver.
func (c *Config) Validate() error {
	validate := validator.New()

	sections := []any{&c.Primary, &c.Server, &c.Worker, &c.Lifecycle}
	switch c.Database.Driver {
	case DriverPostgres:
		sections = append(sections, &c.Database)
	case DriverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	for _, s := range sections {
		if err := validate.Struct(s); err != nil {
			return err
		}
	}

	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic is required when brokers are set")
	}
	return nil
}

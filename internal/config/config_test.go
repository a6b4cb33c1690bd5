package config_test

import (
	"testing"
	"time"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MemoryDriverUsesDefaults(t *testing.T) {
	t.Setenv("GATEWAY_DATABASE__DRIVER", "memory")
	t.Setenv("GATEWAY_LIFECYCLE__MAX_ATTEMPTS", "5")
	t.Setenv("GATEWAY_KAFKA__BROKERS", "kafka-1:9092, kafka-2:9092")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, config.DriverMemory, cfg.Database.Driver)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5, cfg.Lifecycle.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Lifecycle.LockTimeout)
	assert.Equal(t, 20*time.Millisecond, cfg.Lifecycle.Retry.BaseDelay)
	assert.Equal(t, "RUB", cfg.Lifecycle.DefaultCurrency)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.BrokerList())
}

func TestLoadConfig_PostgresRequiresCredentials(t *testing.T) {
	t.Setenv("GATEWAY_DATABASE__DRIVER", "postgres")

	_, err := config.LoadConfig()
	assert.Error(t, err)

	t.Setenv("GATEWAY_DATABASE__HOST", "localhost")
	t.Setenv("GATEWAY_DATABASE__USER", "gateway")
	t.Setenv("GATEWAY_DATABASE__PASSWORD", "secret")
	t.Setenv("GATEWAY_DATABASE__NAME", "gateway")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestLoadConfig_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("GATEWAY_DATABASE__DRIVER", "sqlite")

	_, err := config.LoadConfig()
	assert.Error(t, err)
}

func TestPgxConfig(t *testing.T) {
	db := config.DatabaseConfig{
		Host:            "db",
		Port:            5433,
		User:            "u",
		Password:        "p",
		Name:            "gateway",
		SSLMode:         "disable",
		MaxOpenConns:    8,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute,
	}

	cfg, err := db.PgxConfig(t.Context())
	require.NoError(t, err)

	assert.Equal(t, "db", cfg.ConnConfig.Host)
	assert.Equal(t, uint16(5433), cfg.ConnConfig.Port)
	assert.Equal(t, int32(8), cfg.MaxConns)
	assert.Equal(t, time.Hour, cfg.MaxConnLifetime)
	assert.Equal(t, "merchant-gateway", cfg.ConnConfig.RuntimeParams["application_name"])

	db.Password = "p@ss/word"
	assert.Equal(t, "postgres://u:p%40ss%2Fword@db:5433/gateway?sslmode=disable", db.DSN())
}

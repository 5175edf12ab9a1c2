package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.HTTPPort)
	assert.Equal(t, "50057", cfg.GRPCPort)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTLJitter)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 3, cfg.OrderMaxRetries)
	assert.Equal(t, "order-events", cfg.OrderEventsTopic)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("HTTP_PORT", "8081")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, DevJWTSecret, cfg.JWTSecret)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		message string
	}{
		{"missing secret", map[string]string{}, "JWT_SECRET is required"},
		{"bad port", map[string]string{"JWT_SECRET": "x", "HTTP_PORT": "http"}, "HTTP_PORT must be a port number"},
		{"bad db port", map[string]string{"JWT_SECRET": "x", "DB_PORT": "five"}, "invalid DB_PORT"},
		{"bad duration", map[string]string{"JWT_SECRET": "x", "CACHE_TTL": "1 hour"}, "invalid CACHE_TTL"},
		{"bad driver", map[string]string{"STORE_DRIVER": "mongo"}, "STORE_DRIVER must be"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

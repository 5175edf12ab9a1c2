package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	// DevJWTSecret signs tokens when the memory driver runs without JWT_SECRET.
	DevJWTSecret = "dev-secret"
)

type Config struct {
	HTTPPort        string
	GRPCPort        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	StoreDriver    string
	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	MigrationsPath string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	CacheTTL       time.Duration
	CacheTTLJitter time.Duration
	CachePrefix    string

	JWTSecret       string
	OrderMaxRetries int

	KafkaBrokers     []string
	OrderEventsTopic string

	OTelEndpoint string
	LogLevel     string
	LogFormat    string
}

// Load reads the configuration from the environment, after applying a .env
// file when one exists in the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []error
	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "3000"),
		GRPCPort:        getEnv("GRPC_PORT", "50057"),
		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 30*time.Second, &errs),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second, &errs),

		StoreDriver:    getEnv("STORE_DRIVER", StoreDriverPostgres),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnvInt("DB_PORT", 5432, &errs),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "postgres"),
		DBName:         getEnv("DB_NAME", "ecommerce"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./internal/repository/migrations"),

		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0, &errs),
		CacheTTL:       getEnvDuration("CACHE_TTL", time.Hour, &errs),
		CacheTTLJitter: getEnvDuration("CACHE_TTL_JITTER", 5*time.Minute, &errs),
		CachePrefix:    getEnv("CACHE_PREFIX", ""),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		OrderMaxRetries: getEnvInt("ORDER_MAX_RETRIES", 3, &errs),

		KafkaBrokers:     splitList(getEnv("KAFKA_BROKERS", "")),
		OrderEventsTopic: getEnv("ORDER_EVENTS_TOPIC", "order-events"),

		OTelEndpoint: getEnv("OTEL_ENDPOINT", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error
	for key, port := range map[string]string{"HTTP_PORT": c.HTTPPort, "GRPC_PORT": c.GRPCPort} {
		if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
			errs = append(errs, fmt.Errorf("%s must be a port number, got %q", key, port))
		}
	}
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required"))
		}
	case StoreDriverMemory:
		if c.JWTSecret == "" {
			c.JWTSecret = DevJWTSecret
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q",
			StoreDriverPostgres, StoreDriverMemory, c.StoreDriver))
	}
	if c.OrderMaxRetries < 0 {
		errs = append(errs, errors.New("ORDER_MAX_RETRIES must not be negative"))
	}
	return errs
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

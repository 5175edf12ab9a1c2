package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const scanCount = 100

type Config struct {
	Prefix string
	TTL    time.Duration
	// Jitter is the upper bound of the random extra TTL added on Set.
	Jitter time.Duration
	// FailureThreshold is the number of consecutive backend failures that
	// opens the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		TTL:              time.Hour,
		Jitter:           5 * time.Minute,
		FailureThreshold: 5,
		OpenTimeout:      10 * time.Second,
	}
}

type stats struct {
	hits    atomic.Uint64
	misses  atomic.Uint64
	sets    atomic.Uint64
	deletes atomic.Uint64
	errors  atomic.Uint64
}

type RedisCache struct {
	client  *redis.Client
	cfg     Config
	breaker *gobreaker.CircuitBreaker[any]
	stats   stats
	logger  *zap.Logger
}

var _ Cache = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client, cfg Config, logger *zap.Logger) *RedisCache {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = DefaultConfig().OpenTimeout
	}

	c := &RedisCache{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "redis-cache",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// a miss or a caller that gave up says nothing about redis health
			return err == nil ||
				errors.Is(err, redis.Nil) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("cache circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) bool {
	fullKey := c.cfg.Prefix + key

	res, err := c.breaker.Execute(func() (any, error) {
		return c.client.Get(ctx, fullKey).Bytes()
	})
	if errors.Is(err, redis.Nil) {
		c.stats.misses.Add(1)
		return false
	}
	if err != nil {
		c.stats.misses.Add(1)
		c.logFailure("cache get failed", err, zap.String("key", fullKey))
		return false
	}

	data, _ := res.([]byte)
	if err = json.Unmarshal(data, dest); err != nil {
		c.stats.errors.Add(1)
		c.stats.misses.Add(1)
		c.logger.Warn("cache value undecodable", zap.String("key", fullKey), zap.Error(err))
		return false
	}

	c.stats.hits.Add(1)
	return true
}

// Set stores value with the configured TTL plus jitter.
func (c *RedisCache) Set(ctx context.Context, key string, value any) {
	c.SetWithTTL(ctx, key, value, c.ttl())
}

func (c *RedisCache) SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) {
	fullKey := c.cfg.Prefix + key

	data, err := json.Marshal(value)
	if err != nil {
		c.stats.errors.Add(1)
		c.logger.Error("cache marshal failed", zap.String("key", fullKey), zap.Error(err))
		return
	}

	_, err = c.breaker.Execute(func() (any, error) {
		return nil, c.client.Set(ctx, fullKey, data, ttl).Err()
	})
	if err != nil {
		c.logFailure("cache set failed", err, zap.String("key", fullKey))
		return
	}
	c.stats.sets.Add(1)
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	fullKeys := make([]string, len(keys))
	for i, k := range keys {
		fullKeys[i] = c.cfg.Prefix + k
	}

	res, err := c.breaker.Execute(func() (any, error) {
		return c.client.Del(ctx, fullKeys...).Result()
	})
	if err != nil {
		c.logFailure("cache delete failed", err, zap.Strings("keys", fullKeys))
		return
	}
	n, _ := res.(int64)
	c.stats.deletes.Add(uint64(n))
}

// DeletePattern walks the keyspace with SCAN and deletes matches batch by batch.
func (c *RedisCache) DeletePattern(ctx context.Context, pattern string) {
	fullPattern := c.cfg.Prefix + pattern

	res, err := c.breaker.Execute(func() (any, error) {
		return c.deletePattern(ctx, fullPattern)
	})
	if err != nil {
		c.logFailure("cache pattern delete failed", err, zap.String("pattern", fullPattern))
		return
	}
	n, _ := res.(int)
	c.stats.deletes.Add(uint64(n))
}

func (c *RedisCache) deletePattern(ctx context.Context, pattern string) (int, error) {
	var cursor uint64
	var deleted int

	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return deleted, fmt.Errorf("cache scan: %w", err)
		}

		if len(keys) > 0 {
			if err = c.client.Del(ctx, keys...).Err(); err != nil {
				return deleted, fmt.Errorf("cache delete: %w", err)
			}
			deleted += len(keys)
		}

		cursor = nextCursor
		if cursor == 0 {
			return deleted, nil
		}
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Stats() StatsSnapshot {
	hits := c.stats.hits.Load()
	misses := c.stats.misses.Load()
	totalGets := hits + misses

	var hitRate float64
	if totalGets > 0 {
		hitRate = float64(hits) / float64(totalGets) * 100
	}

	return StatsSnapshot{
		Hits:      hits,
		Misses:    misses,
		Sets:      c.stats.sets.Load(),
		Deletes:   c.stats.deletes.Load(),
		Errors:    c.stats.errors.Load(),
		HitRate:   hitRate,
		TotalGets: totalGets,
	}
}

func (c *RedisCache) logFailure(msg string, err error, fields ...zap.Field) {
	c.stats.errors.Add(1)
	fields = append(fields, zap.Error(err))
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Debug(msg, fields...)
		return
	}
	c.logger.Warn(msg, fields...)
}

func (c *RedisCache) ttl() time.Duration {
	if c.cfg.Jitter <= 0 {
		return c.cfg.TTL
	}
	return c.cfg.TTL + rand.N(c.cfg.Jitter)
}

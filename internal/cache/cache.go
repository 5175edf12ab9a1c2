// Package cache provides a fail-soft Redis cache for the cache-aside read path.
package cache

import (
	"context"
	"time"
)

// Cache never reports backend failures to callers: a broken backend looks like
// a miss on reads and a no-op on writes.
type Cache interface {
	// Get decodes the value stored at key into dest and reports whether it was found.
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any)
	SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
	// DeletePattern removes every key matching a glob pattern.
	DeletePattern(ctx context.Context, pattern string)
	Ping(ctx context.Context) error
	Stats() StatsSnapshot
}

// StatsSnapshot is a point-in-time copy of the cache counters.
type StatsSnapshot struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Sets      uint64  `json:"sets"`
	Deletes   uint64  `json:"deletes"`
	Errors    uint64  `json:"errors"`
	HitRate   float64 `json:"hit_rate"`
	TotalGets uint64  `json:"total_gets"`
}

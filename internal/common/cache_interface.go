package common

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"fit-analyse/dashboard/internal/logging"
	"fit-analyse/dashboard/internal/metrics"
)

// CacheInterface defines the contract for cache implementations.
// Values are opaque bytes so both backends round-trip them exactly.
type CacheInterface interface {
	// Set stores a value in cache with the given key and duration
	Set(ctx context.Context, key string, value []byte, duration time.Duration)

	// Get retrieves a value from cache by key
	// Returns the value and true if found, nil and false otherwise
	Get(ctx context.Context, key string) ([]byte, bool)

	// Delete removes a value from cache by key
	Delete(ctx context.Context, key string)

	// Close closes any underlying connections (for Redis, etc.)
	Close() error
}

// GetJSON decodes a cached value into T, counting hits and misses per key prefix
func GetJSON[T any](ctx context.Context, c CacheInterface, m *metrics.MetricsRegistry, key string) (T, bool) {
	var out T
	data, found := c.Get(ctx, key)
	if found {
		if err := json.Unmarshal(data, &out); err != nil {
			logging.Warn("Dropping undecodable cache entry", "key", key, "error", err)
			c.Delete(ctx, key)
			found = false
		}
	}

	if m != nil {
		if found {
			m.CacheHitsTotal.WithLabelValues(KeyPattern(key)).Inc()
		} else {
			m.CacheMissesTotal.WithLabelValues(KeyPattern(key)).Inc()
		}
	}
	return out, found
}

// SetJSON encodes value and stores it
func SetJSON(ctx context.Context, c CacheInterface, key string, value any, duration time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		logging.Warn("Failed to encode cache entry", "key", key, "error", err)
		return
	}
	c.Set(ctx, key, data, duration)
}

// KeyPattern reduces a key to its prefix so metric labels stay bounded,
// e.g. "ACTIVITY_42" -> "ACTIVITY_"
func KeyPattern(key string) string {
	if i := strings.IndexByte(key, '_'); i >= 0 {
		return key[:i+1]
	}
	return key
}

// Package cache keeps fetched source results for a limited time, keyed by
// source URL.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"SalesAnalytics/internal/logging"
	"SalesAnalytics/internal/ports"
)

// Cache is a typed view over a byte backend. Values are stored as JSON.
// Concurrent loads of one key share a single call to the loader.
type Cache[T any] struct {
	backend ports.CacheBackend
	prefix  string
	ttl     time.Duration
	logger  *slog.Logger
	group   singleflight.Group
}

// New builds a cache; ttl <= 0 disables storing.
func New[T any](backend ports.CacheBackend, prefix string, ttl time.Duration, logger *slog.Logger) *Cache[T] {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Cache[T]{backend: backend, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *Cache[T]) key(k string) string { return c.prefix + ":" + k }

// Get returns a cached value. Backend and decode failures count as a miss.
func (c *Cache[T]) Get(ctx context.Context, k string) (T, bool) {
	var zero T
	if c.backend == nil {
		return zero, false
	}
	data, ok, err := c.backend.Get(ctx, c.key(k))
	if err != nil {
		c.logger.Warn("cache read failed", "key", c.key(k), "error", err)
		return zero, false
	}
	if !ok {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Warn("cache entry is unreadable, ignoring", "key", c.key(k), "error", err)
		return zero, false
	}
	return v, true
}

// Set stores v for the cache TTL.
func (c *Cache[T]) Set(ctx context.Context, k string, v T) error {
	if c.backend == nil || c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", c.key(k), err)
	}
	if err := c.backend.Set(ctx, c.key(k), data, c.ttl); err != nil {
		return fmt.Errorf("store cache entry %s: %w", c.key(k), err)
	}
	return nil
}

// GetOrLoad returns the cached value or calls load once, even when several
// goroutines ask for the same key. Failed loads are not cached. hit reports
// whether the value came from the backend.
func (c *Cache[T]) GetOrLoad(ctx context.Context, k string, load func(ctx context.Context) (T, error)) (v T, hit bool, err error) {
	if cached, ok := c.Get(ctx, k); ok {
		return cached, true, nil
	}

	res, err, _ := c.group.Do(k, func() (any, error) {
		if cached, ok := c.Get(ctx, k); ok {
			return loaded[T]{value: cached, hit: true}, nil
		}
		fresh, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Set(ctx, k, fresh); err != nil {
			c.logger.Warn("cache write failed", "key", c.key(k), "error", err)
		}
		return loaded[T]{value: fresh}, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	l := res.(loaded[T])
	return l.value, l.hit, nil
}

type loaded[T any] struct {
	value T
	hit   bool
}

// Invalidate drops the given keys.
func (c *Cache[T]) Invalidate(ctx context.Context, keys ...string) error {
	if c.backend == nil || len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.backend.Delete(ctx, full...)
}

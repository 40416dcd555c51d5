package app

import (
	"context"
	"testing"

	"SalesAnalytics/internal/cache"
	"SalesAnalytics/internal/config"
	"SalesAnalytics/internal/logging"
)

func TestCacheBackendSelection(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		cfg     config.CacheConfig
		memory  bool
		closers int
	}{
		{name: "memory", cfg: config.CacheConfig{Backend: "memory"}, memory: true},
		{name: "none", cfg: config.CacheConfig{Backend: "none"}},
		{name: "unreachable redis", cfg: config.CacheConfig{Backend: "redis", RedisURL: "redis://127.0.0.1:1/0"}, memory: true},
		{name: "bad redis url", cfg: config.CacheConfig{Backend: "redis", RedisURL: "::"}, memory: true},
	}
	for _, tc := range cases {
		a := &Application{cfg: config.Config{Cache: tc.cfg}, logger: logging.Discard()}
		backend := a.cacheBackend(context.Background(), logging.Discard())
		_, isMemory := backend.(*cache.Memory)
		if isMemory != tc.memory {
			t.Fatalf("%s: expected memory=%v, got %T", tc.name, tc.memory, backend)
		}
		if !tc.memory && backend != nil {
			t.Fatalf("%s: expected no backend, got %T", tc.name, backend)
		}
		if len(a.closers) != tc.closers {
			t.Fatalf("%s: unexpected closers %d", tc.name, len(a.closers))
		}
	}
}

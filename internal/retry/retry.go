// Package retry runs fetch operations under a capped, fixed-delay policy.
package retry

import (
	"context"
	"log/slog"
	"time"

	"SalesAnalytics/internal/domain"
)

const (
	DefaultAttempts = 3
	DefaultDelay    = 5 * time.Second
)

// Policy bounds how often and how quickly an operation is retried.
type Policy struct {
	Attempts int
	Delay    time.Duration
	// Sleep waits between attempts; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnAttempt observes every finished attempt (metrics hook).
	OnAttempt func(attempt int, err error)
}

// DefaultPolicy is three attempts five seconds apart.
func DefaultPolicy() Policy {
	return Policy{Attempts: DefaultAttempts, Delay: DefaultDelay}
}

// Result reports how an operation ended.
type Result[T any] struct {
	Value    T
	Attempts int
	// Err is the last failure; nil on success.
	Err error
}

// Do runs op until it succeeds, returns a non-retryable error, the context
// ends, or the attempts run out. It never panics past the caller and always
// returns a Result; on failure Value is T's zero value.
func Do[T any](ctx context.Context, p Policy, logger *slog.Logger, name string, op func(ctx context.Context) (T, error)) Result[T] {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = timerSleep
	}

	var res Result[T]
	for attempt := 1; attempt <= attempts; attempt++ {
		res.Attempts = attempt
		value, err := op(ctx)
		if p.OnAttempt != nil {
			p.OnAttempt(attempt, err)
		}
		if err == nil {
			res.Value = value
			res.Err = nil
			return res
		}
		res.Err = err

		kind := domain.KindOf(err)
		if logger != nil {
			logger.Warn("fetch attempt failed",
				"operation", name,
				"attempt", attempt,
				"max_attempts", attempts,
				"kind", kind,
				"error", err)
		}
		if !kind.Retryable() || ctx.Err() != nil || attempt == attempts {
			break
		}
		if err := sleep(ctx, p.Delay); err != nil {
			break
		}
	}

	if logger != nil {
		logger.Error("fetch gave up", "operation", name, "attempts", res.Attempts, "error", res.Err)
	}
	return res
}

func timerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

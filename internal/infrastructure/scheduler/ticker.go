package scheduler

import (
	"context"
	"sync"
	"time"

	"SalesAnalytics/internal/ports"
)

// TickerScheduler runs a job every interval. The first run happens one
// interval after Start; the initial load is the caller's.
type TickerScheduler struct {
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*TickerScheduler)(nil)

// NewTickerScheduler builds a scheduler; a non-positive interval disables it.
func NewTickerScheduler(interval time.Duration) *TickerScheduler {
	return &TickerScheduler{interval: interval}
}

// Enabled reports whether Start will launch anything.
func (t *TickerScheduler) Enabled() bool { return t.interval > 0 }

// Start begins ticking. Runs never overlap: a tick that arrives while the job
// is still running is dropped by the ticker.
func (t *TickerScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil || !t.Enabled() {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop, t.done = stop, done
	go func() {
		defer close(done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case tick := <-ticker.C:
				job(tick)
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine and waits for a running job to return or
// ctx to end.
func (t *TickerScheduler) Stop(ctx context.Context) error {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

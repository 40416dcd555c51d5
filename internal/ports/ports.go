package ports

import (
	"context"
	"time"

	"SalesAnalytics/internal/domain"
)

// Progress is a download progress notification.
type Progress struct {
	URL   string
	Bytes int64
	// Total is the announced body size; zero when unknown.
	Total int64
}

// Fraction is the completed share in [0,1]; ok is false when Total is unknown.
func (p Progress) Fraction() (float64, bool) {
	if p.Total <= 0 {
		return 0, false
	}
	f := float64(p.Bytes) / float64(p.Total)
	if f > 1 {
		f = 1
	}
	return f, true
}

// ProgressSink receives download progress. Implementations must not affect
// the data being downloaded.
type ProgressSink interface {
	OnProgress(p Progress)
}

// FeedSource pulls normalized sales rows from one feed URL.
type FeedSource interface {
	Fetch(ctx context.Context, url string, sink ProgressSink) (domain.FeedResult, error)
}

// LookupSource pulls the deduplicated product lookup table.
type LookupSource interface {
	Fetch(ctx context.Context, url string) (domain.LookupResult, error)
}

// CacheBackend stores encoded values with a time to live.
type CacheBackend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// SnapshotRepository persists the latest merged dataset.
type SnapshotRepository interface {
	SaveSnapshot(ctx context.Context, ds *domain.Dataset) error
}

// Notifier publishes load digests to an operator channel.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls periodic refreshes.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

package feed

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"SalesAnalytics/internal/ports"
)

// chunkReader hands the decoder at most chunk bytes per Read and reports
// cumulative progress after every read.
type chunkReader struct {
	r     io.Reader
	chunk int
	url   string
	total int64
	sink  ports.ProgressSink
	count *int64
	// err keeps the first transport error so it can be told apart from
	// malformed content.
	err error
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(p) > c.chunk {
		p = p[:c.chunk]
	}
	n, err := c.r.Read(p)
	if n > 0 {
		*c.count += int64(n)
		if c.sink != nil {
			c.sink.OnProgress(ports.Progress{URL: c.url, Bytes: *c.count, Total: c.total})
		}
	}
	if err != nil && !errors.Is(err, io.EOF) && c.err == nil {
		c.err = err
	}
	return n, err
}

// LogProgress logs download progress every 10% of a known size, or every
// 50 MiB when the size is unknown.
type LogProgress struct {
	logger *slog.Logger

	mu   sync.Mutex
	last map[string]int64
}

var _ ports.ProgressSink = (*LogProgress)(nil)

const unknownSizeStep = 50 << 20

// NewLogProgress builds a throttled logging sink.
func NewLogProgress(logger *slog.Logger) *LogProgress {
	return &LogProgress{logger: logger, last: map[string]int64{}}
}

func (l *LogProgress) OnProgress(p ports.Progress) {
	if l == nil || l.logger == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var bucket int64
	if frac, ok := p.Fraction(); ok {
		bucket = int64(frac * 10)
	} else {
		bucket = p.Bytes / unknownSizeStep
	}
	prev, seen := l.last[p.URL]
	if seen && bucket <= prev {
		return
	}
	l.last[p.URL] = bucket

	if frac, ok := p.Fraction(); ok {
		l.logger.Info("downloading",
			"url", p.URL,
			"percent", fmt.Sprintf("%.0f", frac*100),
			"loaded_mb", fmt.Sprintf("%.1f", float64(p.Bytes)/(1<<20)),
			"total_mb", fmt.Sprintf("%.1f", float64(p.Total)/(1<<20)))
		return
	}
	l.logger.Info("downloading", "url", p.URL, "loaded_mb", fmt.Sprintf("%.1f", float64(p.Bytes)/(1<<20)))
}

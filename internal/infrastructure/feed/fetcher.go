// Package feed downloads the sales feed and streams it record by record
// through the normalizer.
//
// The body is never materialized: a json.Decoder reads array elements one at
// a time from a chunked reader, so memory stays bounded by the chunk size plus
// the largest single record regardless of the feed size.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"SalesAnalytics/internal/domain"
	"SalesAnalytics/internal/infrastructure/httpsource"
	"SalesAnalytics/internal/logging"
	"SalesAnalytics/internal/normalize"
	"SalesAnalytics/internal/ports"
)

const (
	DefaultChunkSize         = 1 << 20
	DefaultOversizeThreshold = 500 << 20
	DefaultHeadTimeout       = 10 * time.Second
	DefaultBodyTimeout       = 600 * time.Second
)

// Skip reasons reported on row outcomes.
const (
	ReasonNotObject  = "record is not an object"
	ReasonNullRecord = "record is null"
)

// Options tunes download behaviour.
type Options struct {
	ChunkSize         int
	OversizeThreshold int64
	HeadTimeout       time.Duration
	BodyTimeout       time.Duration
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.OversizeThreshold <= 0 {
		o.OversizeThreshold = DefaultOversizeThreshold
	}
	if o.HeadTimeout <= 0 {
		o.HeadTimeout = DefaultHeadTimeout
	}
	if o.BodyTimeout <= 0 {
		o.BodyTimeout = DefaultBodyTimeout
	}
	return o
}

// Fetcher implements ports.FeedSource over HTTP.
type Fetcher struct {
	client     *http.Client
	normalizer *normalize.Normalizer
	opts       Options
	logger     *slog.Logger
}

var _ ports.FeedSource = (*Fetcher)(nil)

// NewFetcher wires an HTTP client; nil falls back to httpsource.NewClient.
func NewFetcher(client *http.Client, n *normalize.Normalizer, opts Options, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = httpsource.NewClient(0)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Fetcher{client: client, normalizer: n, opts: opts.withDefaults(), logger: logger}
}

// Probe asks for the body size with a HEAD request. A failed probe is not an
// error for the load; size is then reported as unknown (zero).
func (f *Fetcher) Probe(ctx context.Context, url string) (size int64, oversize bool) {
	resp, err := httpsource.Head(ctx, f.client, domain.SourceFeed, url, f.opts.HeadTimeout)
	if err != nil {
		f.logger.Debug("size probe failed", "url", url, "error", err)
		return 0, false
	}
	_ = resp.Close()

	size = resp.ContentLength
	if size < 0 {
		size = 0
	}
	return size, f.warnOversize(url, size)
}

func (f *Fetcher) warnOversize(url string, size int64) bool {
	if size <= f.opts.OversizeThreshold {
		return false
	}
	f.logger.Warn("feed is very large, loading may take several minutes",
		"url", url,
		"size_mb", fmt.Sprintf("%.1f", float64(size)/(1<<20)),
		"threshold_mb", f.opts.OversizeThreshold>>20)
	return true
}

// Fetch downloads and normalizes the whole feed. Partial results are
// discarded when the stream fails midway.
func (f *Fetcher) Fetch(ctx context.Context, url string, sink ports.ProgressSink) (domain.FeedResult, error) {
	started := time.Now()
	_, oversize := f.Probe(ctx, url)

	result := domain.FeedResult{URL: url, Stats: domain.NewBatchStats(), Oversize: oversize}
	counter := &byteCounter{}
	for outcome, err := range f.stream(ctx, url, sink, counter) {
		if err != nil {
			return domain.FeedResult{}, err
		}
		result.Stats.Add(outcome)
		if outcome.Status == domain.RowAccepted {
			result.Rows = append(result.Rows, outcome.Row)
		}
	}
	result.Bytes = counter.n
	if counter.announced > 0 && !result.Oversize {
		result.Oversize = f.warnOversize(url, counter.announced)
	}

	f.logger.Info("feed loaded",
		"url", url,
		"schema", f.normalizer.Schema().Name,
		"records", result.Stats.Records,
		"rows", len(result.Rows),
		"skipped", result.Stats.Skipped,
		"field_warnings", result.Stats.Warnings,
		"bytes", result.Bytes,
		"duration", time.Since(started).Round(time.Millisecond))
	for field, n := range result.Stats.WarningsByField {
		f.logger.Warn("field coercion warnings", "url", url, "field", field, "count", n)
	}
	return result, nil
}

// Stream yields one outcome per feed array element, lazily. The sequence
// ends after the first source-level error, which is yielded with a zero
// outcome.
func (f *Fetcher) Stream(ctx context.Context, url string, sink ports.ProgressSink) iter.Seq2[domain.RowOutcome, error] {
	return f.stream(ctx, url, sink, &byteCounter{})
}

type byteCounter struct {
	n         int64
	announced int64
}

func (f *Fetcher) stream(ctx context.Context, url string, sink ports.ProgressSink, counter *byteCounter) iter.Seq2[domain.RowOutcome, error] {
	return func(yield func(domain.RowOutcome, error) bool) {
		resp, err := httpsource.Get(ctx, f.client, domain.SourceFeed, url, f.opts.BodyTimeout)
		if err != nil {
			yield(domain.RowOutcome{}, err)
			return
		}
		defer resp.Close()

		total := resp.ContentLength
		if total < 0 {
			total = 0
		}
		counter.announced = total

		body := &chunkReader{
			r:     resp.Body,
			chunk: f.opts.ChunkSize,
			url:   url,
			total: total,
			sink:  sink,
			count: &counter.n,
		}

		for outcome, err := range decodeArray(body, f.normalizer) {
			if err != nil {
				yield(domain.RowOutcome{}, f.classify(url, body, err))
				return
			}
			if !yield(outcome, nil) {
				return
			}
		}
	}
}

// classify separates transport failures seen by the body reader from
// malformed content.
func (f *Fetcher) classify(url string, body *chunkReader, err error) error {
	var se *domain.SourceError
	if errors.As(err, &se) {
		if se.URL == "" {
			se.URL = url
		}
		return se
	}
	if body.err != nil {
		if httpsource.IsTimeout(body.err) {
			f.logger.Warn("feed body read timed out", "url", url, "bytes", *body.count)
		}
		return httpsource.Transient(domain.SourceFeed, url, fmt.Errorf("read body: %w", body.err))
	}
	return domain.NewSourceError(domain.SourceFeed, url, domain.KindDecode, err)
}

// decodeArray walks a top-level JSON array. An empty body is an empty
// sequence, not an error.
func decodeArray(r io.Reader, n *normalize.Normalizer) iter.Seq2[domain.RowOutcome, error] {
	return func(yield func(domain.RowOutcome, error) bool) {
		dec := json.NewDecoder(r)
		dec.UseNumber()

		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			yield(domain.RowOutcome{}, fmt.Errorf("read opening token: %w", err))
			return
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			yield(domain.RowOutcome{}, fmt.Errorf("top-level value is not an array (got %v)", tok))
			return
		}

		for index := 0; dec.More(); index++ {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				yield(domain.RowOutcome{}, fmt.Errorf("record %d: %w", index, err))
				return
			}
			if !utf8.Valid(raw) {
				yield(domain.RowOutcome{}, &domain.SourceError{
					Source: domain.SourceFeed,
					Kind:   domain.KindEncoding,
					Err:    fmt.Errorf("record %d is not valid UTF-8", index),
				})
				return
			}
			if !yield(decodeRecord(raw, n), nil) {
				return
			}
		}

		if _, err := dec.Token(); err != nil {
			yield(domain.RowOutcome{}, fmt.Errorf("read closing token: %w", err))
			return
		}
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			yield(domain.RowOutcome{}, errors.New("trailing data after top-level array"))
		}
	}
}

func decodeRecord(raw json.RawMessage, n *normalize.Normalizer) domain.RowOutcome {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var rec domain.RawFeedRecord
	if err := dec.Decode(&rec); err != nil {
		return domain.RowOutcome{Status: domain.RowSkipped, Reason: ReasonNotObject}
	}
	if rec == nil {
		return domain.RowOutcome{Status: domain.RowSkipped, Reason: ReasonNullRecord}
	}
	return n.Normalize(rec)
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"SalesAnalytics/internal/cache"
	"SalesAnalytics/internal/domain"
	"SalesAnalytics/internal/logging"
	"SalesAnalytics/internal/merge"
	"SalesAnalytics/internal/metrics"
	"SalesAnalytics/internal/ports"
	"SalesAnalytics/internal/retry"
)

// FeedSpec is one configured sales feed. Channel tags its rows when several
// feeds are combined.
type FeedSpec struct {
	Channel string
	URL     string
}

// PipelineDeps wires all driven adapters into the load pipeline. Only Feeds
// and FeedSource are required.
type PipelineDeps struct {
	Feeds        []FeedSpec
	LookupURL    string
	FeedSource   ports.FeedSource
	LookupSource ports.LookupSource
	FeedCache    *cache.Cache[domain.FeedResult]
	LookupCache  *cache.Cache[domain.LookupResult]
	Retry        retry.Policy
	Repository   ports.SnapshotRepository
	Notifier     ports.Notifier
	Metrics      *metrics.Registry
	Progress     ports.ProgressSink
	Location     *time.Location
	// Concurrent fetches every feed and the lookup at once.
	Concurrent bool
	Logger     *slog.Logger
	Now        func() time.Time
}

// Pipeline implements the fetch, normalize, merge workflow.
type Pipeline struct {
	feeds        []FeedSpec
	lookupURL    string
	feedSource   ports.FeedSource
	lookupSource ports.LookupSource
	feedCache    *cache.Cache[domain.FeedResult]
	lookupCache  *cache.Cache[domain.LookupResult]
	retry        retry.Policy
	repository   ports.SnapshotRepository
	notifier     ports.Notifier
	metrics      *metrics.Registry
	progress     ports.ProgressSink
	location     *time.Location
	concurrent   bool
	logger       *slog.Logger
	now          func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		feeds:        deps.Feeds,
		lookupURL:    deps.LookupURL,
		feedSource:   deps.FeedSource,
		lookupSource: deps.LookupSource,
		feedCache:    deps.FeedCache,
		lookupCache:  deps.LookupCache,
		retry:        deps.Retry,
		repository:   deps.Repository,
		notifier:     deps.Notifier,
		metrics:      deps.Metrics,
		progress:     deps.Progress,
		location:     deps.Location,
		concurrent:   deps.Concurrent,
		logger:       deps.Logger,
		now:          deps.Now,
	}
	if p.logger == nil {
		p.logger = logging.Discard()
	}
	if p.location == nil {
		p.location = time.UTC
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// FeedReport describes the load of one feed.
type FeedReport struct {
	Channel   string
	URL       string
	Status    domain.LoadStatus
	Rows      int
	Stats     domain.BatchStats
	Attempts  int
	FromCache bool
	Oversize  bool
	Err       error
}

// LookupReport describes the lookup load. Status is empty when the lookup
// was not attempted.
type LookupReport struct {
	URL        string
	Status     domain.LoadStatus
	Rows       int
	Duplicates int
	Attempts   int
	FromCache  bool
	Err        error
}

// Report summarizes one pipeline run.
type Report struct {
	LoadID      string
	StartedAt   time.Time
	Duration    time.Duration
	Feeds       []FeedReport
	Lookup      LookupReport
	Stats       domain.BatchStats
	Merge       merge.Stats
	Failures    []*domain.SourceError
	SnapshotErr error
}

// Status is ok when at least one feed produced rows, empty when every feed
// answered without rows, failed otherwise.
func (r Report) Status() domain.LoadStatus {
	status := domain.StatusFailed
	for _, f := range r.Feeds {
		switch f.Status {
		case domain.StatusOK:
			return domain.StatusOK
		case domain.StatusEmpty:
			status = domain.StatusEmpty
		}
	}
	return status
}

// Load runs one full ingestion. Source failures never fail the call: they
// are reported and the affected source contributes no rows. The returned
// error is reserved for cancellation and internal consistency failures.
func (p *Pipeline) Load(ctx context.Context) (*domain.Dataset, Report, error) {
	started := p.now()
	report := Report{LoadID: uuid.NewString(), StartedAt: started, Stats: domain.NewBatchStats()}

	if len(p.feeds) == 0 || p.feedSource == nil {
		return nil, report, errors.New("no sales feed configured")
	}

	var (
		feeds  []FeedReport
		lookup domain.LookupResult
		err    error
	)
	results := make([]domain.FeedResult, len(p.feeds))
	if p.concurrent {
		feeds, lookup, report.Lookup, err = p.fetchConcurrent(ctx, results)
	} else {
		feeds, lookup, report.Lookup, err = p.fetchSequential(ctx, results)
	}
	if err != nil {
		return nil, report, err
	}
	report.Feeds = feeds

	var sales []domain.SalesRow
	for i, f := range feeds {
		if f.Err != nil {
			report.Failures = append(report.Failures, asSourceError(domain.SourceFeed, f.URL, f.Err))
			continue
		}
		report.Stats.Merge(f.Stats)
		for _, row := range results[i].Rows {
			if len(p.feeds) > 1 {
				row.SalesChannel = f.Channel
			}
			sales = append(sales, row)
		}
	}
	if report.Lookup.Err != nil {
		report.Failures = append(report.Failures, asSourceError(domain.SourceLookup, report.Lookup.URL, report.Lookup.Err))
	}

	merged, mstats, err := merge.LeftJoin(sales, lookup.Rows)
	if err != nil {
		return nil, report, fmt.Errorf("merge lookup: %w", err)
	}
	report.Merge = mstats

	ds := domain.NewDataset(report.LoadID, started, p.location, merged, report.Stats.Columns)
	report.Duration = p.now().Sub(started)
	p.observe(ds, report)

	if p.repository != nil && ds.Len() > 0 {
		if err := p.repository.SaveSnapshot(ctx, ds); err != nil {
			report.SnapshotErr = fmt.Errorf("save snapshot: %w", err)
			p.logger.Error("snapshot not saved", "load_id", report.LoadID, "error", err)
		}
	}

	p.logger.Info("load finished",
		"load_id", report.LoadID,
		"status", report.Status(),
		"rows", ds.Len(),
		"matched", mstats.Matched,
		"unmatched", mstats.Unmatched,
		"skipped", report.Stats.Skipped,
		"field_warnings", report.Stats.Warnings,
		"failures", len(report.Failures),
		"duration", report.Duration.Round(time.Millisecond))

	if p.notifier != nil {
		if err := p.notifier.PublishDigest(ctx, BuildDigest(report)); err != nil {
			p.logger.Warn("digest not delivered", "error", err)
		}
	}
	return ds, report, nil
}

// Invalidate drops cached results for every configured source.
func (p *Pipeline) Invalidate(ctx context.Context) error {
	var errs []error
	if p.feedCache != nil {
		urls := make([]string, len(p.feeds))
		for i, f := range p.feeds {
			urls[i] = f.URL
		}
		errs = append(errs, p.feedCache.Invalidate(ctx, urls...))
	}
	if p.lookupCache != nil && p.lookupURL != "" {
		errs = append(errs, p.lookupCache.Invalidate(ctx, p.lookupURL))
	}
	return errors.Join(errs...)
}

// fetchSequential loads feeds in order and the lookup only when some feed
// produced rows.
func (p *Pipeline) fetchSequential(ctx context.Context, results []domain.FeedResult) ([]FeedReport, domain.LookupResult, LookupReport, error) {
	reports := make([]FeedReport, len(p.feeds))
	anyRows := false
	for i, f := range p.feeds {
		if err := ctx.Err(); err != nil {
			return nil, domain.LookupResult{}, LookupReport{}, err
		}
		results[i], reports[i] = p.fetchFeed(ctx, f)
		anyRows = anyRows || reports[i].Status == domain.StatusOK
	}

	if !anyRows {
		p.logger.Info("no sales rows loaded, skipping lookup")
		return reports, domain.LookupResult{}, LookupReport{URL: p.lookupURL}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.LookupResult{}, LookupReport{}, err
	}
	lookup, lrep := p.fetchLookup(ctx)
	return reports, lookup, lrep, nil
}

// fetchConcurrent starts every fetch at once; merge waits for all of them.
func (p *Pipeline) fetchConcurrent(ctx context.Context, results []domain.FeedResult) ([]FeedReport, domain.LookupResult, LookupReport, error) {
	reports := make([]FeedReport, len(p.feeds))
	var (
		lookup domain.LookupResult
		lrep   LookupReport
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range p.feeds {
		g.Go(func() error {
			results[i], reports[i] = p.fetchFeed(gctx, f)
			return ctx.Err()
		})
	}
	g.Go(func() error {
		lookup, lrep = p.fetchLookup(gctx)
		return ctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, domain.LookupResult{}, LookupReport{}, err
	}
	return reports, lookup, lrep, nil
}

func (p *Pipeline) fetchFeed(ctx context.Context, f FeedSpec) (domain.FeedResult, FeedReport) {
	rep := FeedReport{Channel: f.Channel, URL: f.URL}
	logger := p.logger.With("source", domain.SourceFeed, "url", f.URL)

	load := func(ctx context.Context) (domain.FeedResult, error) {
		res := retry.Do(ctx, p.policy(domain.SourceFeed), logger, "feed "+f.URL,
			func(ctx context.Context) (domain.FeedResult, error) {
				return p.feedSource.Fetch(ctx, f.URL, p.progress)
			})
		rep.Attempts = res.Attempts
		return res.Value, res.Err
	}

	var (
		result domain.FeedResult
		err    error
	)
	if p.feedCache != nil {
		result, rep.FromCache, err = p.feedCache.GetOrLoad(ctx, f.URL, load)
	} else {
		result, err = load(ctx)
	}
	if rep.FromCache {
		p.countCacheHit(domain.SourceFeed)
		logger.Debug("feed served from cache", "rows", len(result.Rows))
	}

	if err != nil {
		rep.Status = domain.StatusFailed
		rep.Err = err
		p.countFailure(domain.SourceFeed, err)
		return domain.FeedResult{}, rep
	}
	rep.Status = result.Status()
	rep.Rows = len(result.Rows)
	rep.Stats = result.Stats
	rep.Oversize = result.Oversize
	return result, rep
}

func (p *Pipeline) fetchLookup(ctx context.Context) (domain.LookupResult, LookupReport) {
	rep := LookupReport{URL: p.lookupURL}
	if p.lookupSource == nil || p.lookupURL == "" {
		return domain.LookupResult{}, rep
	}
	logger := p.logger.With("source", domain.SourceLookup, "url", p.lookupURL)

	load := func(ctx context.Context) (domain.LookupResult, error) {
		res := retry.Do(ctx, p.policy(domain.SourceLookup), logger, "lookup "+p.lookupURL,
			func(ctx context.Context) (domain.LookupResult, error) {
				return p.lookupSource.Fetch(ctx, p.lookupURL)
			})
		rep.Attempts = res.Attempts
		return res.Value, res.Err
	}

	var (
		result domain.LookupResult
		err    error
	)
	if p.lookupCache != nil {
		result, rep.FromCache, err = p.lookupCache.GetOrLoad(ctx, p.lookupURL, load)
	} else {
		result, err = load(ctx)
	}
	if rep.FromCache {
		p.countCacheHit(domain.SourceLookup)
	}

	if err != nil {
		rep.Status = domain.StatusFailed
		rep.Err = err
		p.countFailure(domain.SourceLookup, err)
		logger.Warn("continuing without product names", "error", err)
		return domain.LookupResult{}, rep
	}
	rep.Status = domain.StatusOK
	if len(result.Rows) == 0 {
		rep.Status = domain.StatusEmpty
	}
	rep.Rows = len(result.Rows)
	rep.Duplicates = result.Duplicates
	return result, rep
}

// policy attaches the attempt counter to the configured retry policy.
func (p *Pipeline) policy(source domain.SourceName) retry.Policy {
	pol := p.retry
	if p.metrics == nil {
		return pol
	}
	next := pol.OnAttempt
	pol.OnAttempt = func(attempt int, err error) {
		p.metrics.FetchAttempts.WithLabelValues(string(source)).Inc()
		if next != nil {
			next(attempt, err)
		}
	}
	return pol
}

func (p *Pipeline) countFailure(source domain.SourceName, err error) {
	if p.metrics == nil {
		return
	}
	p.metrics.FetchFailures.WithLabelValues(string(source), string(domain.KindOf(err))).Inc()
}

func (p *Pipeline) countCacheHit(source domain.SourceName) {
	if p.metrics == nil {
		return
	}
	p.metrics.CacheHits.WithLabelValues(string(source)).Inc()
}

func (p *Pipeline) observe(ds *domain.Dataset, report Report) {
	if p.metrics == nil {
		return
	}
	// Cached results were counted when they were first normalized.
	for _, f := range report.Feeds {
		if f.FromCache || f.Err != nil {
			continue
		}
		p.metrics.RowsNormalized.Add(float64(f.Stats.Accepted))
		p.metrics.RowsSkipped.Add(float64(f.Stats.Skipped))
		for field, n := range f.Stats.WarningsByField {
			p.metrics.FieldWarnings.WithLabelValues(string(field)).Add(float64(n))
		}
	}
	if !report.Lookup.FromCache {
		p.metrics.LookupDuplicates.Add(float64(report.Lookup.Duplicates))
	}
	p.metrics.MergeUnmatched.Set(float64(report.Merge.Unmatched))
	p.metrics.DatasetRows.Set(float64(ds.Len()))
	p.metrics.LoadDurationSec.Observe(report.Duration.Seconds())
}

func asSourceError(source domain.SourceName, url string, err error) *domain.SourceError {
	var se *domain.SourceError
	if errors.As(err, &se) {
		return se
	}
	return domain.NewSourceError(source, url, domain.KindOf(err), err)
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"SalesAnalytics/internal/analytics"
	"SalesAnalytics/internal/cache"
	"SalesAnalytics/internal/config"
	"SalesAnalytics/internal/domain"
	"SalesAnalytics/internal/filter"
	"SalesAnalytics/internal/infrastructure/feed"
	"SalesAnalytics/internal/infrastructure/httpsource"
	"SalesAnalytics/internal/infrastructure/lookup"
	"SalesAnalytics/internal/infrastructure/scheduler"
	"SalesAnalytics/internal/infrastructure/storage"
	"SalesAnalytics/internal/infrastructure/telegram"
	"SalesAnalytics/internal/logging"
	"SalesAnalytics/internal/metrics"
	"SalesAnalytics/internal/normalize"
	"SalesAnalytics/internal/ports"
	"SalesAnalytics/internal/retry"
	"SalesAnalytics/internal/tabular"
	"SalesAnalytics/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	session   *usecase.Session
	scheduler *usecase.Scheduler
	metrics   *metrics.Registry
	closers   []func() error
}

// New builds a runnable application instance. Optional integrations that
// fail to start (redis, sqlite) are logged and left out.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format, nil)
	}
	a := &Application{cfg: cfg, logger: baseLogger.With("component", "app"), metrics: metrics.NewRegistry()}

	loc := cfg.Business.Location()
	client := httpsource.NewClient(cfg.Fetch.ConnectTimeout)

	feeds := feed.NewFetcher(client, normalize.New(normalize.SchemaWBStatisticsV1, loc), feed.Options{
		ChunkSize:         cfg.Fetch.ChunkSize,
		OversizeThreshold: cfg.Fetch.OversizeThresholdMB << 20,
		HeadTimeout:       cfg.Fetch.HeadTimeout,
		BodyTimeout:       cfg.Fetch.FeedTimeout,
	}, baseLogger.With("component", "feed"))

	lookups := lookup.NewFetcher(client, tabular.DefaultRegistry(), lookup.Options{
		SKUColumn:  cfg.Sources.Lookup.SKUColumn,
		NameColumn: cfg.Sources.Lookup.NameColumn,
		Timeout:    cfg.Fetch.LookupTimeout,
	}, baseLogger.With("component", "lookup"))

	backend := a.cacheBackend(ctx, baseLogger)
	cacheLogger := baseLogger.With("component", "cache")

	var repo ports.SnapshotRepository
	if cfg.Storage.SQLitePath != "" {
		sqlite, err := storage.OpenSQLite(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			a.logger.Error("snapshot storage disabled", "path", cfg.Storage.SQLitePath, "error", err)
		} else {
			repo = sqlite
			a.closers = append(a.closers, sqlite.Close)
		}
	}

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.BotToken != "" && cfg.Notifications.Telegram.ChatID != "" {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	}

	specs := make([]usecase.FeedSpec, len(cfg.Sources.Feeds))
	for i, f := range cfg.Sources.Feeds {
		specs[i] = usecase.FeedSpec{Channel: f.Channel, URL: f.URL}
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Feeds:        specs,
		LookupURL:    cfg.Sources.Lookup.URL,
		FeedSource:   feeds,
		LookupSource: lookups,
		FeedCache:    cache.New[domain.FeedResult](backend, "feed", cfg.Cache.FeedTTL, cacheLogger),
		LookupCache:  cache.New[domain.LookupResult](backend, "lookup", cfg.Cache.LookupTTL, cacheLogger),
		Retry:        retry.Policy{Attempts: cfg.Retry.Attempts, Delay: cfg.Retry.Delay},
		Repository:   repo,
		Notifier:     notifier,
		Metrics:      a.metrics,
		Progress:     feed.NewLogProgress(baseLogger.With("component", "progress")),
		Location:     loc,
		Concurrent:   cfg.Fetch.Concurrent,
		Logger:       baseLogger.With("component", "pipeline"),
	})

	a.session = usecase.NewSession(pipeline, domain.FilterSpec{}, baseLogger.With("component", "session")).
		WithDefaultFilter(func(ds *domain.Dataset) domain.FilterSpec {
			return domain.FilterSpec{
				DateRange:        filter.LastDays(ds, cfg.Filter.LastDays),
				IncludeCancelled: cfg.Filter.IncludeCancelled,
				WarehouseTypes:   cfg.Filter.WarehouseTypes,
			}
		})

	a.scheduler = usecase.NewScheduler(
		scheduler.NewTickerScheduler(cfg.Scheduler.RefreshInterval),
		a.session,
		baseLogger.With("component", "scheduler"),
		a.afterLoad,
	)
	return a, nil
}

func (a *Application) cacheBackend(ctx context.Context, logger *slog.Logger) ports.CacheBackend {
	switch a.cfg.Cache.Backend {
	case "none":
		return nil
	case "redis":
		r, err := cache.NewRedis(ctx, a.cfg.Cache.RedisURL, logger.With("component", "redis"))
		if err != nil {
			a.logger.Error("redis cache misconfigured, using memory", "error", err)
			return cache.NewMemory()
		}
		if !r.Available() {
			a.logger.Warn("redis unreachable, using memory cache")
			return cache.NewMemory()
		}
		a.closers = append(a.closers, r.Close)
		return r
	default:
		return cache.NewMemory()
	}
}

// Run loads once, writes exports, then keeps refreshing until ctx ends when
// a refresh interval is configured.
func (a *Application) Run(ctx context.Context) error {
	a.logger.Info("starting", "config", a.cfg.String())

	if a.cfg.Metrics.Listen != "" {
		go func() {
			if err := a.metrics.Serve(ctx, a.cfg.Metrics.Listen, a.logger); err != nil {
				a.logger.Error("metrics listener stopped", "error", err)
			}
		}()
	}

	report, err := a.session.Load(ctx)
	if err != nil {
		return fmt.Errorf("initial load: %w", err)
	}
	a.afterLoad(report)
	if report.Status() == domain.StatusFailed {
		a.logger.Error("no sales data could be loaded")
	}

	if a.cfg.Scheduler.RefreshInterval <= 0 {
		return nil
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.scheduler.Stop(stopCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	return nil
}

// Session exposes the loaded data to embedding callers.
func (a *Application) Session() *usecase.Session { return a.session }

// Close releases storage and cache connections.
func (a *Application) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func (a *Application) afterLoad(report usecase.Report) {
	for _, f := range report.Failures {
		a.logger.Warn(f.UserMessage(), "source", f.Source, "kind", f.Kind, "url", f.URL, "cause", f.Err)
	}

	state := a.session.Current()
	s := analytics.Summarize(state.View)
	attrs := []any{
		"rows", s.Rows,
		"revenue", s.Revenue.StringFixed(2),
		"orders", s.Orders,
		"average_check", s.AverageCheck.StringFixed(2),
	}
	if s.AverageDiscount.Valid {
		attrs = append(attrs, "average_discount", s.AverageDiscount.Decimal.String())
	}
	if s.LineItemDuplication {
		attrs = append(attrs, "repeated_order_ids", s.DuplicateOrderIDs)
	}
	a.logger.Info("current view", attrs...)
	if ds := a.session.Dataset(); ds != nil {
		a.logger.Info("warehouse options", "labels", ds.WarehouseLabels(), "selected", state.Spec.WarehouseTypes)
	}

	if a.cfg.Export.Dir == "" {
		return
	}
	if err := writeExports(a.cfg.Export, state); err != nil {
		a.logger.Error("export failed", "dir", a.cfg.Export.Dir, "error", err)
		return
	}
	a.logger.Info("exports written", "dir", a.cfg.Export.Dir)
}

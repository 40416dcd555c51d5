package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg              *prometheus.Registry
	FetchAttempts    *prometheus.CounterVec
	FetchFailures    *prometheus.CounterVec
	CacheHits        *prometheus.CounterVec
	RowsNormalized   prometheus.Counter
	RowsSkipped      prometheus.Counter
	FieldWarnings    *prometheus.CounterVec
	LookupDuplicates prometheus.Counter
	MergeUnmatched   prometheus.Gauge
	DatasetRows      prometheus.Gauge
	LoadDurationSec  prometheus.Histogram
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "sales_fetch_attempts_total"}, []string{"source"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "sales_fetch_failures_total"}, []string{"source", "kind"})
	hits := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "sales_cache_hits_total"}, []string{"source"})
	normalized := prometheus.NewCounter(prometheus.CounterOpts{Name: "sales_rows_normalized_total"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "sales_rows_skipped_total"})
	warnings := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "sales_field_warnings_total"}, []string{"field"})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{Name: "sales_lookup_duplicates_total"})
	unmatched := prometheus.NewGauge(prometheus.GaugeOpts{Name: "sales_merge_unmatched_rows"})
	rows := prometheus.NewGauge(prometheus.GaugeOpts{Name: "sales_dataset_rows"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sales_load_duration_seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	r.MustRegister(attempts, failures, hits, normalized, skipped, warnings, duplicates, unmatched, rows, duration)
	return &Registry{
		reg:              r,
		FetchAttempts:    attempts,
		FetchFailures:    failures,
		CacheHits:        hits,
		RowsNormalized:   normalized,
		RowsSkipped:      skipped,
		FieldWarnings:    warnings,
		LookupDuplicates: duplicates,
		MergeUnmatched:   unmatched,
		DatasetRows:      rows,
		LoadDurationSec:  duration,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// Serve exposes /metrics and /healthz on addr until ctx is done.
func (r *Registry) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

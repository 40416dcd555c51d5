package usecase

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"SalesAnalytics/internal/domain"
	"SalesAnalytics/internal/filter"
)

// ViewState is the filtered view currently shown to consumers.
type ViewState struct {
	Spec    domain.FilterSpec
	View    domain.View
	Notices []domain.Notice
}

// Session holds the current dataset and filtered view. Readers never block:
// both are swapped atomically and an old view stays valid until replaced.
type Session struct {
	pipeline *Pipeline
	logger   *slog.Logger

	// mu serializes loads and filter changes.
	mu       sync.Mutex
	spec     domain.FilterSpec
	defaults func(*domain.Dataset) domain.FilterSpec
	dataset  atomic.Pointer[domain.Dataset]
	view     atomic.Pointer[ViewState]
	report   atomic.Pointer[Report]
}

// NewSession binds a session to a pipeline with an initial filter.
func NewSession(p *Pipeline, spec domain.FilterSpec, logger *slog.Logger) *Session {
	if logger == nil {
		logger = p.logger
	}
	return &Session{pipeline: p, spec: spec, logger: logger}
}

// WithDefaultFilter recomputes the filter from every freshly loaded dataset,
// e.g. to keep a "last N days" window anchored to the newest data.
func (s *Session) WithDefaultFilter(fn func(*domain.Dataset) domain.FilterSpec) *Session {
	s.defaults = fn
	return s
}

// Load runs the pipeline, serving cached sources when fresh.
func (s *Session) Load(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

// Reload drops cached sources and loads again.
func (s *Session) Reload(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.pipeline.Invalidate(ctx); err != nil {
		s.logger.Warn("cache invalidation failed", "error", err)
	}
	return s.loadLocked(ctx)
}

func (s *Session) loadLocked(ctx context.Context) (Report, error) {
	ds, report, err := s.pipeline.Load(ctx)
	if err != nil {
		return report, err
	}
	s.report.Store(&report)

	// A load where every feed failed keeps the previous data on screen.
	if report.Status() == domain.StatusFailed && s.dataset.Load() != nil {
		s.logger.Warn("load failed, keeping previous dataset",
			"load_id", report.LoadID,
			"previous_load_id", s.dataset.Load().LoadID)
		return report, nil
	}

	s.dataset.Store(ds)
	spec := s.spec
	if s.defaults != nil {
		spec = s.defaults(ds)
	}
	s.applyLocked(spec)
	return report, nil
}

// Apply recomputes the view for spec against the current dataset.
func (s *Session) Apply(spec domain.FilterSpec) ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(spec)
}

func (s *Session) applyLocked(spec domain.FilterSpec) ViewState {
	s.spec = spec
	view, notices := filter.Apply(s.dataset.Load(), spec)
	for _, n := range notices {
		s.logger.Info("filter notice", "kind", n.Kind, "message", n.Message)
	}
	state := &ViewState{Spec: spec, View: view, Notices: notices}
	s.view.Store(state)
	return *state
}

// Dataset is the current merged dataset; nil before the first load.
func (s *Session) Dataset() *domain.Dataset { return s.dataset.Load() }

// Current is the latest filtered view.
func (s *Session) Current() ViewState {
	if v := s.view.Load(); v != nil {
		return *v
	}
	return ViewState{}
}

// LastReport is the report of the latest load attempt.
func (s *Session) LastReport() (Report, bool) {
	if r := s.report.Load(); r != nil {
		return *r, true
	}
	return Report{}, false
}

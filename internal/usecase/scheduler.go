package usecase

import (
	"context"
	"log/slog"
	"time"

	"SalesAnalytics/internal/ports"
)

// Scheduler wires the ticker driver with session reloads.
type Scheduler struct {
	driver  ports.Scheduler
	session *Session
	logger  *slog.Logger
	onLoad  func(Report)
}

// NewScheduler returns a helper to start/stop recurring reloads. onLoad, if
// set, observes every successful reload.
func NewScheduler(driver ports.Scheduler, session *Session, logger *slog.Logger, onLoad func(Report)) *Scheduler {
	if logger == nil && session != nil {
		logger = session.logger
	}
	return &Scheduler{driver: driver, session: session, logger: logger, onLoad: onLoad}
}

// Start registers the reload job with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.session == nil {
		return nil
	}

	job := func(trigger time.Time) {
		report, err := s.session.Reload(ctx)
		if err != nil {
			s.logger.Error("scheduled reload failed", "trigger", trigger, "error", err)
			return
		}
		if s.onLoad != nil {
			s.onLoad(report)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

package importer

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Scheduler runs an import over the configured sources on a fixed interval.
type Scheduler struct {
	runner      *Runner
	principalID string
	logger      *slog.Logger
}

// NewScheduler creates an import scheduler that attributes its runs to
// principalID.
func NewScheduler(runner *Runner, principalID string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:      runner,
		principalID: principalID,
		logger:      logger.With(slog.String("component", "import-scheduler")),
	}
}

// Start blocks until ctx is canceled, starting an import on each tick. A
// tick that finds a run already in progress is skipped.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.logger.Error("import scheduler not started: non-positive interval", slog.String("interval", interval.String()))
		return
	}
	s.logger.Info("import scheduler started", slog.String("interval", interval.String()))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("import scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	sum, err := s.runner.Run(ctx, s.principalID, "", nil)
	switch {
	case errors.Is(err, ErrRunActive):
		s.logger.Info("scheduled import skipped: another import is running")
	case err != nil:
		s.logger.Error("scheduled import failed", slog.String("error", err.Error()))
	default:
		s.logger.Info("scheduled import complete",
			slog.Int("created", sum.Created),
			slog.Int("skipped", sum.Skipped),
			slog.Int("errors", sum.Errors))
	}
}

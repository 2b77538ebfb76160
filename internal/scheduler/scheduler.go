// Package scheduler runs the periodic booking jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultJobTimeout = time.Minute

// NoShowSweeper marks confirmed bookings whose renter never turned up.
type NoShowSweeper interface {
	SweepNoShows(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron       *cron.Cron
	sweeper    NoShowSweeper
	jobTimeout time.Duration
	logger     *slog.Logger
}

// New registers the no-show sweep on spec, a six-field cron expression
// evaluated in UTC.
func New(spec string, sweeper NoShowSweeper, logger *slog.Logger) (*Scheduler, error) {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	s := &Scheduler{
		cron:       c,
		sweeper:    sweeper,
		jobTimeout: defaultJobTimeout,
		logger:     logger,
	}

	if _, err := c.AddFunc(spec, s.SweepNoShows); err != nil {
		return nil, fmt.Errorf("register no-show sweep %q: %w", spec, err)
	}
	logger.Info("cron jobs registered", "no_show_sweep", spec)
	return s, nil
}

// SweepNoShows runs one sweep. Errors are logged; the next tick retries.
func (s *Scheduler) SweepNoShows() {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	start := time.Now()
	marked, err := s.sweeper.SweepNoShows(ctx)
	if err != nil {
		s.logger.Error("no-show sweep failed", "error", err)
		return
	}
	s.logger.Debug("no-show sweep done", "marked", marked, "duration", time.Since(start))
}

func (s *Scheduler) Start() {
	s.logger.Info("starting cron scheduler")
	s.cron.Start()
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping cron scheduler")
	<-s.cron.Stop().Done()
	s.logger.Info("cron scheduler stopped")
}

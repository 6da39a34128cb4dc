// Package scheduler triggers pipeline runs on a cron or interval schedule.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/mtzanidakis/storecrew/internal/config"
)

// RunFunc performs one scheduled run.
type RunFunc func(ctx context.Context) error

// Scheduler runs one job at a time; a tick that arrives while a run is
// still going is skipped.
type Scheduler struct {
	schedule *Schedule
	run      RunFunc
	now      func() time.Time
	after    func(d time.Duration) <-chan time.Time
}

func New(cfg config.ScheduleConfig, run RunFunc) (*Scheduler, error) {
	sched, err := ParseSchedule(cfg.Cron)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		schedule: sched,
		run:      run,
		now:      time.Now,
		after:    time.After,
	}, nil
}

func (s *Scheduler) Schedule() *Schedule {
	return s.schedule
}

// Start blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("scheduler started", "schedule", s.schedule.String())

	for {
		now := s.now()
		next, err := s.schedule.Next(now)
		if err != nil {
			slog.Error("failed to compute next run", "schedule", s.schedule.String(), "error", err)
			return
		}
		slog.Debug("next scheduled run", "at", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-s.after(next.Sub(now)):
			s.execute(ctx)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context) {
	start := s.now()
	slog.Info("executing scheduled run")

	if err := s.run(ctx); err != nil {
		slog.Error("scheduled run failed", "error", err, "duration", s.now().Sub(start))
		return
	}
	slog.Info("scheduled run finished", "duration", s.now().Sub(start))
}

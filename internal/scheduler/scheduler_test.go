package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mtzanidakis/storecrew/internal/config"
)

func TestParseScheduleCron(t *testing.T) {
	s, err := ParseSchedule("0 9 * * *")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if s.Kind != "cron" {
		t.Errorf("expected kind 'cron', got '%s'", s.Kind)
	}
	if s.CronExpr != "0 9 * * *" {
		t.Errorf("expected cron expr '0 9 * * *', got '%s'", s.CronExpr)
	}
}

func TestParseScheduleInterval(t *testing.T) {
	s, err := ParseSchedule("@every 6h")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if s.Kind != "interval" {
		t.Errorf("expected kind 'interval', got '%s'", s.Kind)
	}
	if s.Interval != 6*time.Hour {
		t.Errorf("expected interval 6h, got %v", s.Interval)
	}
	if s.String() != "@every 6h0m0s" {
		t.Errorf("unexpected string form %q", s.String())
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	for _, raw := range []string{"", "not a cron", "@every soon", "@every 10s"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestNextCron(t *testing.T) {
	s, _ := ParseSchedule("0 9 * * *")
	ref := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	next, err := s.Next(ref)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	want := time.Date(2026, 4, 11, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNextInterval(t *testing.T) {
	s, _ := ParseSchedule("@every 30m")
	ref := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	next, _ := s.Next(ref)
	if !next.Equal(ref.Add(30 * time.Minute)) {
		t.Errorf("expected ref+30m, got %v", next)
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	if _, err := New(config.ScheduleConfig{Cron: "bogus"}, nil); err == nil {
		t.Fatal("expected error for bad schedule")
	}
}

func TestStartRunsOnEveryTick(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := New(config.ScheduleConfig{Cron: "@every 1h"}, func(ctx context.Context) error {
		if runs.Add(1) == 3 {
			cancel()
		}
		return errors.New("a failed run does not stop the scheduler")
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ticks := make(chan time.Time)
	close(ticks)
	s.after = func(time.Duration) <-chan time.Time {
		if runs.Load() >= 3 {
			return nil
		}
		return ticks
	}

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if got := runs.Load(); got != 3 {
		t.Errorf("expected 3 runs, got %d", got)
	}
}

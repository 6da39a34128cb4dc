package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

const everyPrefix = "@every "

// Schedule is either a cron expression or a fixed interval written as
// "@every <duration>".
type Schedule struct {
	Kind     string        // "cron" or "interval"
	CronExpr string        // if kind=cron
	Interval time.Duration // if kind=interval
}

func ParseSchedule(raw string) (*Schedule, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	if strings.HasPrefix(raw, everyPrefix) {
		d, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(raw, everyPrefix)))
		if err != nil {
			return nil, fmt.Errorf("parse interval %q: %w", raw, err)
		}
		if d < time.Minute {
			return nil, fmt.Errorf("interval %s is shorter than a minute", d)
		}
		return &Schedule{Kind: "interval", Interval: d}, nil
	}

	if !gronx.New().IsValid(raw) {
		return nil, fmt.Errorf("invalid cron expression %q", raw)
	}
	return &Schedule{Kind: "cron", CronExpr: raw}, nil
}

// Next returns the first run time strictly after ref.
func (s *Schedule) Next(ref time.Time) (time.Time, error) {
	switch s.Kind {
	case "cron":
		return gronx.NextTickAfter(s.CronExpr, ref, false)
	case "interval":
		return ref.Add(s.Interval), nil
	default:
		return time.Time{}, fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
}

func (s *Schedule) String() string {
	if s.Kind == "interval" {
		return everyPrefix + s.Interval.String()
	}
	return s.CronExpr
}

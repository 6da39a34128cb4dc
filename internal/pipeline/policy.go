package pipeline

import (
	"fmt"

	"github.com/mtzanidakis/storecrew/internal/config"
)

// FallbackScope decides how backend failures carry across task retries.
type FallbackScope string

const (
	// ScopeAttempt gives every task attempt a fresh backend session.
	ScopeAttempt FallbackScope = "attempt"
	// ScopeTask keeps failed backends excluded for all attempts of a task.
	ScopeTask FallbackScope = "task"
)

const (
	DefaultMaxAttempts    = 3
	DefaultMaxCorrections = 1
)

// RetryPolicy bounds how often a failing task is attempted.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts per task, first
	// included.
	MaxAttempts int
	// SelfCorrect retries schema validation failures with the
	// validation error appended to the prompt.
	SelfCorrect bool
	// MaxCorrections caps how many of those attempts may be spent on
	// self-correction after a schema validation failure.
	MaxCorrections int
	FallbackScope  FallbackScope
}

func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    DefaultMaxAttempts,
		SelfCorrect:    true,
		MaxCorrections: DefaultMaxCorrections,
		FallbackScope:  ScopeAttempt,
	}
}

// PolicyFromConfig converts the pipeline config section.
func PolicyFromConfig(c config.PipelineConfig) (RetryPolicy, error) {
	p := RetryPolicy{
		MaxAttempts:    c.MaxAttempts,
		SelfCorrect:    c.SelfCorrect,
		MaxCorrections: c.MaxCorrections,
		FallbackScope:  FallbackScope(c.FallbackScope),
	}
	if p.MaxCorrections == 0 {
		p.MaxCorrections = DefaultMaxCorrections
	}
	if p.FallbackScope == "" {
		p.FallbackScope = ScopeAttempt
	}
	return p, p.Validate()
}

func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.MaxCorrections < 0 {
		return fmt.Errorf("max corrections must not be negative, got %d", p.MaxCorrections)
	}
	switch p.FallbackScope {
	case ScopeAttempt, ScopeTask:
		return nil
	default:
		return fmt.Errorf("unknown fallback scope %q", p.FallbackScope)
	}
}

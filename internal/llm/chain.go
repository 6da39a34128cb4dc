package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

var ErrAllBackendsFailed = errors.New("all backends failed")

const DefaultAttemptTimeout = 2 * time.Minute

// Entry is one backend in a chain together with its per-attempt timeout.
type Entry struct {
	Backend Backend
	Timeout time.Duration
}

// Attempt records the outcome of calling one backend.
type Attempt struct {
	Index    int
	Name     string
	Err      error
	Duration time.Duration
	// Skipped is set when the backend already failed earlier in the
	// same session and was not called again.
	Skipped bool
}

// ChainError is returned when every backend in the chain failed.
type ChainError struct {
	Attempts []Attempt
}

func (e *ChainError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		msg := fmt.Sprintf("[%d] %s: %v", a.Index, a.Name, a.Err)
		if a.Skipped {
			msg += " (skipped)"
		}
		parts = append(parts, msg)
	}
	return fmt.Sprintf("%s: %s", ErrAllBackendsFailed, strings.Join(parts, "; "))
}

func (e *ChainError) Is(target error) bool {
	return target == ErrAllBackendsFailed
}

// Session remembers which backends failed so a single agent invocation
// never calls a failed backend twice.
type Session struct {
	mu     sync.Mutex
	failed map[int]error
}

func NewSession() *Session {
	return &Session{failed: make(map[int]error)}
}

func (s *Session) markFailed(i int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[i] = err
}

func (s *Session) failure(i int) (error, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err, ok := s.failed[i]
	return err, ok
}

// Failed returns the indexes of backends that failed in this session.
func (s *Session) Failed() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.failed))
	for i := range s.failed {
		out = append(out, i)
	}
	return out
}

// Result is a successful chain response and the backend that served it.
type Result struct {
	Response
	Index    int
	Backend  string
	Attempts []Attempt
}

// Chain tries backends in a fixed order: primary first, then each
// fallback.
type Chain struct {
	entries []Entry
	// Observe, if set, is called after every backend attempt.
	Observe func(Attempt)
}

func NewChain(entries ...Entry) (*Chain, error) {
	if len(entries) == 0 {
		return nil, errors.New("backend chain is empty")
	}
	for i, e := range entries {
		if e.Backend == nil {
			return nil, fmt.Errorf("backend %d is nil", i)
		}
	}
	return &Chain{entries: append([]Entry(nil), entries...)}, nil
}

func (c *Chain) Len() int { return len(c.entries) }

// Names returns backend names in fallback order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Backend.Name()
	}
	return names
}

// Generate calls each backend in order until one returns a non-empty
// response. A nil session is treated as a fresh one. Cancellation of ctx
// stops the chain without falling back.
func (c *Chain) Generate(ctx context.Context, sess *Session, req Request) (*Result, error) {
	if sess == nil {
		sess = NewSession()
	}

	var attempts []Attempt
	for i, e := range c.entries {
		name := e.Backend.Name()
		if prev, failed := sess.failure(i); failed {
			attempts = append(attempts, Attempt{Index: i, Name: name, Err: prev, Skipped: true})
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := c.call(ctx, e, req)
		a := Attempt{Index: i, Name: name, Err: err, Duration: time.Since(start)}
		if c.Observe != nil {
			c.Observe(a)
		}

		if err == nil {
			attempts = append(attempts, a)
			if i > 0 {
				slog.Info("served by fallback backend", "backend", name, "index", i)
			}
			return &Result{Response: resp, Index: i, Backend: name, Attempts: attempts}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		attempts = append(attempts, a)
		sess.markFailed(i, err)
		slog.Warn("backend failed", "backend", name, "index", i, "error", err)
	}
	return nil, &ChainError{Attempts: attempts}
}

func (c *Chain) call(ctx context.Context, e Entry, req Request) (Response, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := e.Backend.Generate(actx, req)
	if err != nil {
		return Response{}, err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return Response{}, ErrEmptyResponse
	}
	return resp, nil
}

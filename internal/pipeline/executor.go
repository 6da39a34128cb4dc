package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mtzanidakis/storecrew/internal/agent"
	"github.com/mtzanidakis/storecrew/internal/llm"
	"github.com/mtzanidakis/storecrew/internal/schema"
)

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// RunInfo describes a run as it starts.
type RunInfo struct {
	ID        string
	Pipeline  string
	Mode      string
	Inputs    map[string]string
	StartedAt time.Time
}

// Recorder persists runs and task results.
type Recorder interface {
	RunStarted(ctx context.Context, run RunInfo) error
	TaskFinished(ctx context.Context, runID string, res *TaskResult) error
	RunFinished(ctx context.Context, runID string, status RunStatus, summary string) error
}

// Emitter publishes run lifecycle events.
type Emitter interface {
	Emit(runID, eventType string, data map[string]any)
}

// Observer receives timing and outcome measurements.
type Observer interface {
	TaskAttempt(taskID, kind string)
	TaskFinished(taskID, status string, attempts int, d time.Duration)
	RunFinished(status string, d time.Duration)
}

// FeedbackSource returns operator feedback collected in training runs.
type FeedbackSource interface {
	Feedback(ctx context.Context, taskID string) ([]string, error)
}

// Report is the outcome of one run.
type Report struct {
	RunID      string
	Pipeline   string
	Status     RunStatus
	Results    []*TaskResult
	Final      *TaskResult
	StartedAt  time.Time
	FinishedAt time.Time
	Err        *RunError
}

// Result returns the result of the given task, if it ran.
func (r *Report) Result(taskID string) (*TaskResult, bool) {
	for _, res := range r.Results {
		if res.TaskID == taskID {
			return res, true
		}
	}
	return nil, false
}

// Executor runs pipelines. Collaborators are optional.
type Executor struct {
	Policy   RetryPolicy
	Recorder Recorder
	Events   Emitter
	Metrics  Observer
	Feedback FeedbackSource
	// Mode is stored with every run ("run", "train", "schedule").
	Mode string

	newID func() string
	now   func() time.Time
}

func NewExecutor(policy RetryPolicy) *Executor {
	return &Executor{
		Policy: policy,
		Mode:   "run",
		newID:  func() string { return uuid.New().String() },
		now:    time.Now,
	}
}

// Run executes the pipeline's tasks strictly in order. A structurally
// invalid pipeline fails before anything is recorded or executed. The
// returned error is a *RunError when a task fails.
func (e *Executor) Run(ctx context.Context, p *Pipeline, inputs map[string]string) (*Report, error) {
	if err := e.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("retry policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     e.newID(),
		Pipeline:  p.Name,
		Status:    RunRunning,
		StartedAt: e.now(),
	}
	log := slog.With("run", report.RunID, "pipeline", p.Name)
	log.Info("starting run", "tasks", len(p.Tasks), "mode", e.Mode)

	if e.Recorder != nil {
		if err := e.Recorder.RunStarted(ctx, RunInfo{
			ID:        report.RunID,
			Pipeline:  p.Name,
			Mode:      e.Mode,
			Inputs:    inputs,
			StartedAt: report.StartedAt,
		}); err != nil {
			log.Warn("record run failed", "error", err)
		}
	}
	e.emit(report.RunID, "run_started", map[string]any{"pipeline": p.Name, "tasks": len(p.Tasks)})

	outputs := make(map[string]string, len(p.Tasks))
	for i, t := range p.Tasks {
		e.emit(report.RunID, "task_started", map[string]any{"task": t.ID, "agent": t.Agent.ID, "index": i})

		res := e.runTask(ctx, log, p, t, inputs, outputs)

		if res.Kind == KindCancelled {
			report.Err = &RunError{RunID: report.RunID, TaskID: t.ID, Kind: KindCancelled, Retries: res.Retries(), Err: res.Err}
			return e.finish(ctx, log, report, RunCancelled), report.Err
		}

		report.Results = append(report.Results, res)
		if res.Succeeded() {
			outputs[t.ID] = res.Raw
		}
		if e.Recorder != nil {
			if err := e.Recorder.TaskFinished(ctx, report.RunID, res); err != nil {
				log.Warn("record task result failed", "task", t.ID, "error", err)
			}
		}
		e.emit(report.RunID, "task_finished", map[string]any{
			"task":     t.ID,
			"status":   string(res.Status),
			"attempts": res.Attempts,
			"backend":  res.Backend,
			"output":   truncate(res.Raw, 200),
		})

		if !res.Succeeded() {
			report.Err = &RunError{RunID: report.RunID, TaskID: t.ID, Kind: res.Kind, Retries: res.Retries(), Err: res.Err}
			return e.finish(ctx, log, report, RunFailed), report.Err
		}
	}

	report.Final = report.Results[len(report.Results)-1]
	return e.finish(ctx, log, report, RunSucceeded), nil
}

func (e *Executor) finish(ctx context.Context, log *slog.Logger, report *Report, status RunStatus) *Report {
	report.Status = status
	report.FinishedAt = e.now()

	summary := ""
	if report.Err != nil {
		summary = report.Err.Error()
	}
	if e.Recorder != nil {
		// The run context may already be cancelled.
		if err := e.Recorder.RunFinished(context.WithoutCancel(ctx), report.RunID, status, summary); err != nil {
			log.Warn("record run status failed", "error", err)
		}
	}
	if e.Metrics != nil {
		e.Metrics.RunFinished(string(status), report.FinishedAt.Sub(report.StartedAt))
	}

	data := map[string]any{"results": len(report.Results)}
	if report.Err != nil {
		data["task"] = report.Err.TaskID
		data["kind"] = string(report.Err.Kind)
		data["retries"] = report.Err.Retries
	}
	e.emit(report.RunID, "run_"+string(status), data)

	log.Info("run finished", "status", status, "duration", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	return report
}

func (e *Executor) runTask(ctx context.Context, log *slog.Logger, p *Pipeline, t *Task, inputs, outputs map[string]string) *TaskResult {
	res := &TaskResult{TaskID: t.ID, AgentID: t.Agent.ID, StartedAt: e.now()}
	defer func() {
		res.FinishedAt = e.now()
		if e.Metrics != nil {
			e.Metrics.TaskFinished(t.ID, string(res.Status), res.Attempts, res.FinishedAt.Sub(res.StartedAt))
		}
	}()

	fail := func(err error) *TaskResult {
		res.Status = StatusFailed
		res.Err = err
		res.Kind = Classify(err)
		if ctx.Err() != nil {
			res.Kind = KindCancelled
		}
		return res
	}

	prompt, err := e.basePrompt(ctx, p, t, inputs, outputs)
	if err != nil {
		res.Attempts = 1
		return fail(err)
	}

	var validator *schema.Validator
	if t.OutputSchema != "" {
		if validator, err = p.Schemas.Get(t.OutputSchema); err != nil {
			res.Attempts = 1
			return fail(err)
		}
		prompt += "\n\n" + validator.Instructions()
	}

	// Outputs already interpolated into the description are not repeated
	// as context.
	entries := make([]agent.ContextEntry, 0, len(t.Context))
	for _, dep := range t.Context {
		if strings.Contains(t.Description, "{"+dep.ID+outputSuffix+"}") {
			continue
		}
		entries = append(entries, agent.ContextEntry{TaskID: dep.ID, Text: outputs[dep.ID]})
	}

	var (
		sess        *llm.Session
		lastErr     error
		corrections int
	)
	if e.Policy.FallbackScope == ScopeTask {
		sess = llm.NewSession()
	}

	for attempt := 1; attempt <= e.Policy.MaxAttempts; attempt++ {
		res.Attempts = attempt
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		attemptPrompt := prompt
		var ve *schema.ValidationError
		if errors.As(lastErr, &ve) {
			attemptPrompt += correctionPrompt(ve)
			corrections++
		}

		attemptSess := sess
		if e.Policy.FallbackScope == ScopeAttempt {
			attemptSess = llm.NewSession()
		}

		resp, err := t.Agent.Respond(ctx, agent.Request{Prompt: attemptPrompt, Context: entries, Session: attemptSess})
		if err == nil {
			res.Raw = resp.Text
			res.Backend = resp.Backend
			res.BackendIndex = resp.BackendIndex
			if validator != nil {
				var structured any
				structured, err = validator.Parse(resp.Text)
				res.Structured = structured
			}
		}
		if err == nil {
			res.Status = StatusSucceeded
			res.Err = nil
			res.Kind = KindNone
			e.observeAttempt(t.ID, KindNone)
			log.Info("task succeeded", "task", t.ID, "attempt", attempt, "backend", resp.Backend)
			return res
		}

		kind := Classify(err)
		if ctx.Err() != nil {
			kind = KindCancelled
		}
		e.observeAttempt(t.ID, kind)
		lastErr = err
		res.Structured = nil

		retry := kind.Transient() ||
			(kind == KindSchemaValidation && e.Policy.SelfCorrect && corrections < e.Policy.MaxCorrections)
		if !retry || attempt == e.Policy.MaxAttempts {
			log.Warn("task failed", "task", t.ID, "attempt", attempt, "kind", kind, "error", err)
			return fail(err)
		}
		log.Warn("task attempt failed, retrying", "task", t.ID, "attempt", attempt, "kind", kind, "error", err)
	}
	return fail(lastErr)
}

func (e *Executor) basePrompt(ctx context.Context, p *Pipeline, t *Task, inputs, outputs map[string]string) (string, error) {
	desc, err := Render(t, inputs, outputs)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(desc))
	if t.ExpectedOutput != "" {
		expected, err := RenderExpected(t, inputs, outputs)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "\n\nThis is the expected criteria for your final answer: %s", strings.TrimSpace(expected))
	}

	if e.Feedback != nil {
		notes, err := e.Feedback.Feedback(ctx, t.ID)
		if err != nil {
			slog.Warn("load task feedback failed", "task", t.ID, "error", err)
		}
		if len(notes) > 0 {
			sb.WriteString("\n\n## Feedback from Previous Runs\n\n")
			for _, n := range notes {
				fmt.Fprintf(&sb, "- %s\n", strings.TrimSpace(n))
			}
		}
	}
	return sb.String(), nil
}

func correctionPrompt(ve *schema.ValidationError) string {
	return fmt.Sprintf("\n\n## Correction Required\n\nYour previous answer did not match the %s schema: %s\nReturn a corrected JSON object that satisfies every constraint.", ve.Schema, ve.Error())
}

func (e *Executor) observeAttempt(taskID string, kind ErrorKind) {
	if e.Metrics == nil {
		return
	}
	k := string(kind)
	if kind == KindNone {
		k = "ok"
	}
	e.Metrics.TaskAttempt(taskID, k)
}

func (e *Executor) emit(runID, eventType string, data map[string]any) {
	if e.Events == nil {
		return
	}
	e.Events.Emit(runID, eventType, data)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

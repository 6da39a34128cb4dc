package crew

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mtzanidakis/storecrew/internal/pipeline"
	"github.com/mtzanidakis/storecrew/internal/store"
)

// Recorder persists runs, task results and training feedback in the
// store. It implements pipeline.Recorder, pipeline.FeedbackSource and
// pipeline.FeedbackSink.
type Recorder struct {
	Store *store.Store
}

func (r *Recorder) RunStarted(_ context.Context, run pipeline.RunInfo) error {
	return r.Store.SaveRun(&store.Run{
		ID:        run.ID,
		Pipeline:  run.Pipeline,
		Mode:      run.Mode,
		Status:    string(pipeline.RunRunning),
		Inputs:    run.Inputs,
		StartedAt: run.StartedAt.UTC(),
	})
}

func (r *Recorder) TaskFinished(_ context.Context, runID string, res *pipeline.TaskResult) error {
	rec := &store.TaskRecord{
		RunID:        runID,
		TaskID:       res.TaskID,
		AgentID:      res.AgentID,
		Status:       string(res.Status),
		Kind:         string(res.Kind),
		Attempts:     res.Attempts,
		Backend:      res.Backend,
		BackendIndex: res.BackendIndex,
		Raw:          res.Raw,
		Error:        res.ErrorText(),
		StartedAt:    res.StartedAt.UTC(),
		FinishedAt:   res.FinishedAt.UTC(),
	}
	if res.Structured != nil {
		data, err := json.Marshal(res.Structured)
		if err != nil {
			return fmt.Errorf("encode structured output of %s: %w", res.TaskID, err)
		}
		rec.Structured = data
	}
	return r.Store.SaveTaskResult(rec)
}

func (r *Recorder) RunFinished(_ context.Context, runID string, status pipeline.RunStatus, summary string) error {
	return r.Store.FinishRun(runID, string(status), summary)
}

func (r *Recorder) Feedback(_ context.Context, taskID string) ([]string, error) {
	entries, err := r.Store.ListFeedback(taskID)
	if err != nil {
		return nil, err
	}
	notes := make([]string, 0, len(entries))
	for _, f := range entries {
		notes = append(notes, f.Text)
	}
	return notes, nil
}

func (r *Recorder) SaveFeedback(_ context.Context, runID, taskID string, iteration int, text string) error {
	return r.Store.SaveFeedback(runID, taskID, iteration, text)
}

// Prompter asks an operator for feedback on each task result during
// training. An empty line skips the task.
type Prompter struct {
	out io.Writer
	in  *bufio.Reader
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{out: out, in: bufio.NewReader(in)}
}

func (p *Prompter) Collect(ctx context.Context, iteration int, res *pipeline.TaskResult) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintf(p.out, "\n=== Iteration %d, task %s (%s) ===\n%s\n\n", iteration, res.TaskID, res.AgentID, strings.TrimSpace(res.Raw))
	fmt.Fprint(p.out, "Feedback (empty to skip): ")

	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read feedback: %w", err)
	}
	return strings.TrimSpace(line), nil
}

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// FeedbackCollector asks an operator for feedback on a task result.
// An empty string means no feedback.
type FeedbackCollector interface {
	Collect(ctx context.Context, iteration int, res *TaskResult) (string, error)
}

// FeedbackSink stores feedback so later runs can include it.
type FeedbackSink interface {
	SaveFeedback(ctx context.Context, runID, taskID string, iteration int, text string) error
}

// Trainer runs a pipeline repeatedly, collecting feedback after every
// successful task.
type Trainer struct {
	Executor  *Executor
	Collector FeedbackCollector
	Sink      FeedbackSink
}

// TrainSummary counts what a training session produced.
type TrainSummary struct {
	Iterations int
	Feedback   int
	Reports    []*Report
}

// Train performs n iterations. It stops at the first failed run.
func (tr *Trainer) Train(ctx context.Context, p *Pipeline, inputs map[string]string, n int) (*TrainSummary, error) {
	if n < 1 {
		return nil, fmt.Errorf("iterations must be a positive integer, got %d", n)
	}
	if tr.Executor == nil {
		return nil, fmt.Errorf("trainer has no executor")
	}

	sum := &TrainSummary{}
	for i := 1; i <= n; i++ {
		slog.Info("training iteration", "iteration", i, "of", n)
		report, err := tr.Executor.Run(ctx, p, inputs)
		if report != nil {
			sum.Reports = append(sum.Reports, report)
		}
		if err != nil {
			return sum, fmt.Errorf("training iteration %d: %w", i, err)
		}
		sum.Iterations = i

		if tr.Collector == nil {
			continue
		}
		for _, res := range report.Results {
			text, err := tr.Collector.Collect(ctx, i, res)
			if err != nil {
				return sum, fmt.Errorf("collect feedback for %s: %w", res.TaskID, err)
			}
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			if tr.Sink != nil {
				if err := tr.Sink.SaveFeedback(ctx, report.RunID, res.TaskID, i, text); err != nil {
					return sum, fmt.Errorf("save feedback for %s: %w", res.TaskID, err)
				}
			}
			sum.Feedback++
		}
	}
	return sum, nil
}

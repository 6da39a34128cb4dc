// Package pipeline runs tasks sequentially, threading each task's output
// into the prompts of the tasks that depend on it.
package pipeline

import (
	"time"

	"github.com/mtzanidakis/storecrew/internal/agent"
)

// Task is one pipeline step.
type Task struct {
	ID string
	// Description is the prompt template. See Render for placeholders.
	Description    string
	ExpectedOutput string
	Agent          *agent.Agent
	// Context lists upstream tasks whose output feeds this task. Each must
	// precede this task in the pipeline.
	Context []*Task
	// OutputSchema names a schema registry entry. Empty means free text.
	OutputSchema string
}

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// TaskResult is created once a task reaches a terminal state and is not
// modified afterwards.
type TaskResult struct {
	TaskID     string
	AgentID    string
	Raw        string
	Structured any
	Status     Status
	Err        error
	Kind       ErrorKind
	Attempts   int
	Backend    string
	// BackendIndex is the position in the agent's chain of the backend
	// that produced Raw.
	BackendIndex int
	StartedAt    time.Time
	FinishedAt   time.Time
}

func (r *TaskResult) Succeeded() bool { return r.Status == StatusSucceeded }

// Retries is the number of attempts beyond the first.
func (r *TaskResult) Retries() int {
	if r.Attempts <= 1 {
		return 0
	}
	return r.Attempts - 1
}

// ErrorText is Err as a string, or empty.
func (r *TaskResult) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/mtzanidakis/storecrew/internal/agent"
	"github.com/mtzanidakis/storecrew/internal/config"
	"github.com/mtzanidakis/storecrew/internal/llm"
	"github.com/mtzanidakis/storecrew/internal/schema"
	"github.com/mtzanidakis/storecrew/internal/tool"
)

var ErrInvalidDependencyOrder = errors.New("invalid dependency order")

// DependencyError names a task whose context task does not precede it.
type DependencyError struct {
	Task       string
	Dependency string
	Reason     string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: task %s depends on %s: %s", ErrInvalidDependencyOrder, e.Task, e.Dependency, e.Reason)
}

func (e *DependencyError) Is(target error) bool { return target == ErrInvalidDependencyOrder }

// TemplateError reports a placeholder with no bound value.
type TemplateError struct {
	Task        string
	Placeholder string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("task %s: unresolved placeholder {%s}", e.Task, e.Placeholder)
}

// ErrorKind classifies task failures for retry decisions and reporting.
type ErrorKind string

const (
	KindNone                   ErrorKind = ""
	KindConfiguration          ErrorKind = "configuration"
	KindInvalidDependencyOrder ErrorKind = "invalid_dependency_order"
	KindTemplate               ErrorKind = "unresolved_placeholder"
	KindInvalidArguments       ErrorKind = "tool_invalid_arguments"
	KindToolExecution          ErrorKind = "tool_execution_failed"
	KindAllBackendsFailed      ErrorKind = "all_backends_failed"
	KindSchemaValidation       ErrorKind = "schema_validation"
	KindIterationLimit         ErrorKind = "iteration_limit"
	KindCancelled              ErrorKind = "cancelled"
	KindAgent                  ErrorKind = "agent"
)

// Transient reports whether a failure of this kind may succeed when the
// task is attempted again with the same inputs.
func (k ErrorKind) Transient() bool {
	switch k {
	case KindToolExecution, KindAllBackendsFailed, KindIterationLimit, KindAgent:
		return true
	default:
		return false
	}
}

// Classify maps err to its kind. Configuration errors are checked before
// tool errors since tools wrap missing credentials.
func Classify(err error) ErrorKind {
	var (
		te  *TemplateError
		ve  *schema.ValidationError
		tle *tool.Error
	)
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrInvalidDependencyOrder):
		return KindInvalidDependencyOrder
	case errors.Is(err, config.ErrConfiguration):
		return KindConfiguration
	case errors.As(err, &te):
		return KindTemplate
	case errors.As(err, &ve):
		return KindSchemaValidation
	case tool.IsInvalidArguments(err):
		return KindInvalidArguments
	case errors.Is(err, llm.ErrAllBackendsFailed):
		return KindAllBackendsFailed
	case errors.As(err, &tle):
		return KindToolExecution
	case errors.Is(err, agent.ErrIterationLimit):
		return KindIterationLimit
	default:
		return KindAgent
	}
}

// RunError is the failure report returned to the caller of a run.
type RunError struct {
	RunID   string
	TaskID  string
	Kind    ErrorKind
	Retries int
	Err     error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s: task %s failed (%s) after %d retries: %v", e.RunID, e.TaskID, e.Kind, e.Retries, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Package tool wraps external capabilities behind a uniform invocation
// interface. Failures never cross the agent boundary as Go errors: every
// invocation produces a Result the agent can fold back into its reasoning.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// InvokeFunc performs the tool's work with already-validated arguments.
type InvokeFunc func(ctx context.Context, args json.RawMessage) Result

// Spec describes a tool to the model and binds its implementation.
type Spec struct {
	Name        string
	Description string
	// Arguments is a JSON Schema for the call arguments. Empty means the
	// tool takes no arguments.
	Arguments json.RawMessage
	Invoke    InvokeFunc
}

// Kind tags the variant held by a Result.
type Kind int

const (
	KindText Kind = iota
	KindStructured
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindStructured:
		return "structured"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the tagged outcome of a tool invocation.
type Result struct {
	Kind Kind
	Text string
	Data any
	Err  *Error
}

func Text(s string) Result {
	return Result{Kind: KindText, Text: s}
}

// Structured wraps a JSON-serialisable value (a map, slice or struct).
func Structured(v any) Result {
	return Result{Kind: KindStructured, Data: v}
}

func Failed(err *Error) Result {
	return Result{Kind: KindError, Err: err}
}

// Render turns the result into text usable as prompt context.
func (r Result) Render() string {
	switch r.Kind {
	case KindText:
		return r.Text
	case KindStructured:
		data, err := json.MarshalIndent(r.Data, "", "  ")
		if err != nil {
			return fmt.Sprintf("error: unrenderable tool output: %v", err)
		}
		return string(data)
	case KindError:
		if r.Err == nil {
			return "error: unknown tool failure"
		}
		return "error: " + r.Err.Error()
	default:
		return ""
	}
}

// ErrorKind separates deterministic argument failures from failures of the
// external call itself.
type ErrorKind string

const (
	InvalidArguments ErrorKind = "invalid_arguments"
	ExecutionFailed  ErrorKind = "execution_failed"
)

type Error struct {
	Kind   ErrorKind
	Tool   string
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("tool %s: %s: %s", e.Tool, e.Kind, e.Reason)
	if e.Cause != nil && !strings.Contains(e.Reason, e.Cause.Error()) {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Execution builds an ExecutionFailed error for the named tool.
func Execution(toolName string, err error) *Error {
	return &Error{Kind: ExecutionFailed, Tool: toolName, Reason: err.Error(), Cause: err}
}

// IsInvalidArguments reports whether err carries an InvalidArguments tool error.
func IsInvalidArguments(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == InvalidArguments
}

// Set is an immutable collection of tools keyed by unique name.
type Set struct {
	tools map[string]Spec
	order []string
}

func NewSet(specs ...Spec) (*Set, error) {
	s := &Set{tools: make(map[string]Spec, len(specs))}
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, errors.New("tool name is empty")
		}
		if spec.Invoke == nil {
			return nil, fmt.Errorf("tool %q has no implementation", spec.Name)
		}
		if _, dup := s.tools[spec.Name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", spec.Name)
		}
		if len(spec.Arguments) > 0 {
			if _, err := compileArguments(spec.Arguments); err != nil {
				return nil, fmt.Errorf("tool %q argument schema: %w", spec.Name, err)
			}
		}
		s.tools[spec.Name] = spec
		s.order = append(s.order, spec.Name)
	}
	return s, nil
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

func (s *Set) Get(name string) (Spec, bool) {
	if s == nil {
		return Spec{}, false
	}
	spec, ok := s.tools[name]
	return spec, ok
}

// Specs returns the tools in registration order.
func (s *Set) Specs() []Spec {
	if s == nil {
		return nil
	}
	out := make([]Spec, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tools[name])
	}
	return out
}

func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	names := append([]string(nil), s.order...)
	sort.Strings(names)
	return names
}

// Invoke validates args against the tool's schema and runs it. Unknown
// tools, bad arguments and panics all come back as error Results.
func (s *Set) Invoke(ctx context.Context, name string, args json.RawMessage) (res Result) {
	spec, ok := s.Get(name)
	if !ok {
		return Failed(&Error{
			Kind:   InvalidArguments,
			Tool:   name,
			Reason: fmt.Sprintf("unknown tool; available tools: %s", strings.Join(s.Names(), ", ")),
		})
	}

	if len(strings.TrimSpace(string(args))) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := validateArguments(spec, args); err != nil {
		return Failed(err)
	}

	defer func() {
		if r := recover(); r != nil {
			res = Failed(&Error{Kind: ExecutionFailed, Tool: name, Reason: fmt.Sprintf("panic: %v", r)})
		}
	}()

	if err := ctx.Err(); err != nil {
		return Failed(Execution(name, err))
	}
	res = spec.Invoke(ctx, args)
	if res.Kind == KindError && res.Err != nil && res.Err.Tool == "" {
		res.Err.Tool = name
	}
	return res
}

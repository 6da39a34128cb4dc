// Package agent runs a role-bound persona against a language-model
// backend chain, letting it call tools until it produces a final answer.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mtzanidakis/storecrew/internal/llm"
	"github.com/mtzanidakis/storecrew/internal/tool"
)

const DefaultMaxIterations = 8

var ErrIterationLimit = errors.New("agent iteration limit reached")

// IterationError is returned when the agent keeps calling tools without
// producing a final answer. It wraps the last tool failure, if any.
type IterationError struct {
	Agent   string
	Limit   int
	LastErr error
}

func (e *IterationError) Error() string {
	msg := fmt.Sprintf("agent %s: %s after %d iterations", e.Agent, ErrIterationLimit, e.Limit)
	if e.LastErr != nil {
		msg += ": last tool error: " + e.LastErr.Error()
	}
	return msg
}

func (e *IterationError) Is(target error) bool { return target == ErrIterationLimit }

func (e *IterationError) Unwrap() error { return e.LastErr }

// Agent is immutable configuration; it may be shared by several tasks.
type Agent struct {
	ID        string
	Role      string
	Goal      string
	Backstory string
	Tools     *tool.Set
	Backends  *llm.Chain

	MaxIterations int
	Temperature   float64
}

// ContextEntry is the output of an upstream task handed to the agent.
type ContextEntry struct {
	TaskID string
	Text   string
}

type Request struct {
	Prompt  string
	Context []ContextEntry
	// Session carries backend failures across calls. Nil starts a fresh
	// session for this invocation.
	Session *llm.Session
}

type ToolCall struct {
	Tool   string          `json:"tool"`
	Input  json.RawMessage `json:"input"`
	Result tool.Result     `json:"-"`
}

type Response struct {
	Text         string
	Backend      string
	BackendIndex int
	ToolCalls    []ToolCall
	Iterations   int
	InputTokens  int
	OutputTokens int
}

func (a *Agent) maxIterations() int {
	if a.MaxIterations > 0 {
		return a.MaxIterations
	}
	return DefaultMaxIterations
}

// Respond answers req.Prompt. The agent may invoke tools between model
// calls; each tool observation is appended to the conversation.
func (a *Agent) Respond(ctx context.Context, req Request) (*Response, error) {
	if a.Backends == nil {
		return nil, fmt.Errorf("agent %s has no backends", a.ID)
	}
	sess := req.Session
	if sess == nil {
		sess = llm.NewSession()
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: a.systemPrompt()},
		{Role: llm.RoleUser, Content: renderPrompt(req.Prompt, req.Context)},
	}

	out := &Response{}
	var lastToolErr error
	limit := a.maxIterations()

	for i := 0; i < limit; i++ {
		res, err := a.Backends.Generate(ctx, sess, llm.Request{
			Messages:    messages,
			Temperature: a.Temperature,
			Stop:        []string{"\nObservation:"},
		})
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", a.ID, err)
		}
		out.Iterations = i + 1
		out.Backend = res.Backend
		out.BackendIndex = res.Index
		out.InputTokens += res.InputTokens
		out.OutputTokens += res.OutputTokens

		st := parseStep(res.Text)
		if st.final {
			out.Text = st.answer
			return out, nil
		}

		result := a.invoke(ctx, st.tool, st.input)
		out.ToolCalls = append(out.ToolCalls, ToolCall{Tool: st.tool, Input: st.input, Result: result})
		if result.Kind == tool.KindError && result.Err != nil {
			lastToolErr = result.Err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		slog.Debug("agent tool call", "agent", a.ID, "tool", st.tool, "result", result.Kind)
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: res.Text},
			llm.Message{Role: llm.RoleUser, Content: "Observation: " + result.Render()},
		)
	}

	return nil, &IterationError{Agent: a.ID, Limit: limit, LastErr: lastToolErr}
}

func (a *Agent) invoke(ctx context.Context, name string, input json.RawMessage) tool.Result {
	if a.Tools.Len() == 0 {
		return tool.Failed(&tool.Error{Kind: tool.InvalidArguments, Tool: name, Reason: "this agent has no tools; give your Final Answer"})
	}
	return a.Tools.Invoke(ctx, name, input)
}

func (a *Agent) systemPrompt() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s.\n", a.Role)
	if a.Backstory != "" {
		sb.WriteString(strings.TrimSpace(a.Backstory))
		sb.WriteString("\n")
	}
	if a.Goal != "" {
		fmt.Fprintf(&sb, "\nYour personal goal is: %s\n", strings.TrimSpace(a.Goal))
	}

	if a.Tools.Len() > 0 {
		sb.WriteString("\n## Tools\n\nYou can use these tools:\n\n")
		for _, spec := range a.Tools.Specs() {
			fmt.Fprintf(&sb, "- %s: %s\n", spec.Name, spec.Description)
			if len(spec.Arguments) > 0 {
				fmt.Fprintf(&sb, "  Arguments JSON Schema: %s\n", spec.Arguments)
			}
		}
		sb.WriteString("\nTo use a tool, reply with exactly:\n\n")
		sb.WriteString("Action: <tool name>\nAction Input: <JSON arguments>\n\n")
		sb.WriteString("You will receive the result as an Observation. ")
	} else {
		sb.WriteString("\n")
	}
	sb.WriteString("When you have the final result, reply with:\n\nFinal Answer: <your complete answer>\n")
	return sb.String()
}

// renderPrompt appends upstream task outputs to the task prompt.
func renderPrompt(prompt string, entries []ContextEntry) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(prompt))
	sb.WriteString("\n\n")

	if len(entries) > 0 {
		sb.WriteString("## Context from Previous Tasks\n\n")
		for _, e := range entries {
			fmt.Fprintf(&sb, "### Output of %s\n\n%s\n\n", e.TaskID, strings.TrimSpace(e.Text))
		}
	}
	return strings.TrimSpace(sb.String())
}

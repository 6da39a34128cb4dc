package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtzanidakis/storecrew/internal/llm"
	"github.com/mtzanidakis/storecrew/internal/tool"
)

// scripted replies with canned turns and records every request.
type scripted struct {
	name    string
	replies []string
	err     error

	mu       sync.Mutex
	requests []llm.Request
}

func (s *scripted) Name() string { return s.name }

func (s *scripted) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return llm.Response{}, s.err
	}
	if len(s.replies) == 0 {
		return llm.Response{}, errors.New("script exhausted")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return llm.Response{Text: r, InputTokens: 10, OutputTokens: 2}, nil
}

func (s *scripted) lastUserMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.requests[len(s.requests)-1].Messages
	return msgs[len(msgs)-1].Content
}

func newChain(t *testing.T, backends ...llm.Backend) *llm.Chain {
	t.Helper()
	entries := make([]llm.Entry, len(backends))
	for i, b := range backends {
		entries[i] = llm.Entry{Backend: b}
	}
	c, err := llm.NewChain(entries...)
	require.NoError(t, err)
	return c
}

type lookupArgs struct {
	Query string `json:"query"`
}

func lookupTools(t *testing.T, fail bool) *tool.Set {
	t.Helper()
	set, err := tool.NewSet(tool.Spec{
		Name:        "lookup",
		Description: "looks things up",
		Arguments:   tool.ArgumentsFor[lookupArgs](),
		Invoke: func(ctx context.Context, args json.RawMessage) tool.Result {
			if fail {
				return tool.Failed(&tool.Error{Kind: tool.ExecutionFailed, Reason: "search API unreachable"})
			}
			var a lookupArgs
			if err := tool.Decode("lookup", args, &a); err != nil {
				return tool.Failed(err)
			}
			return tool.Text("found: " + a.Query)
		},
	})
	require.NoError(t, err)
	return set
}

func TestRespondPlainAnswer(t *testing.T) {
	b := &scripted{name: "ollama", replies: []string{"Just a plain answer."}}
	a := &Agent{ID: "writer", Role: "Copywriter", Backends: newChain(t, b)}

	resp, err := a.Respond(context.Background(), Request{Prompt: "Write a tagline"})
	require.NoError(t, err)
	assert.Equal(t, "Just a plain answer.", resp.Text)
	assert.Equal(t, "ollama", resp.Backend)
	assert.Equal(t, 0, resp.BackendIndex)
	assert.Equal(t, 1, resp.Iterations)
}

func TestRespondUsesToolThenAnswers(t *testing.T) {
	b := &scripted{name: "ollama", replies: []string{
		"Thought: I need data.\nAction: lookup\nAction Input: {\"query\": \"mugs\"}",
		"Final Answer: mugs are popular",
	}}
	a := &Agent{ID: "analyst", Role: "Analyst", Tools: lookupTools(t, false), Backends: newChain(t, b)}

	resp, err := a.Respond(context.Background(), Request{Prompt: "Research mugs"})
	require.NoError(t, err)
	assert.Equal(t, "mugs are popular", resp.Text)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "lookup", resp.ToolCalls[0].Tool)
	assert.Equal(t, "Observation: found: mugs", b.lastUserMessage())
	assert.Equal(t, 2, resp.Iterations)
	assert.Equal(t, 20, resp.InputTokens)
}

func TestRespondToolErrorBecomesObservation(t *testing.T) {
	b := &scripted{name: "ollama", replies: []string{
		"Action: lookup\nAction Input: {\"query\": \"mugs\"}",
		"Final Answer: research unavailable, using general knowledge",
	}}
	a := &Agent{ID: "analyst", Role: "Analyst", Tools: lookupTools(t, true), Backends: newChain(t, b)}

	resp, err := a.Respond(context.Background(), Request{Prompt: "Research mugs"})
	require.NoError(t, err)
	assert.Contains(t, b.lastUserMessage(), "search API unreachable")
	assert.Equal(t, tool.KindError, resp.ToolCalls[0].Result.Kind)
}

func TestRespondIterationLimit(t *testing.T) {
	loop := "Action: lookup\nAction Input: {\"query\": \"again\"}"
	b := &scripted{name: "ollama", replies: []string{loop, loop, loop}}
	a := &Agent{ID: "analyst", Role: "Analyst", Tools: lookupTools(t, true), Backends: newChain(t, b), MaxIterations: 3}

	_, err := a.Respond(context.Background(), Request{Prompt: "Research"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIterationLimit))

	var te *tool.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, tool.ExecutionFailed, te.Kind)
}

func TestRespondFallbackBackend(t *testing.T) {
	primary := &scripted{name: "ollama", err: errors.New("connection refused")}
	fallback := &scripted{name: "gemini", replies: []string{
		"Action: lookup\nAction Input: {\"query\": \"lamps\"}",
		"Final Answer: lamps",
	}}
	a := &Agent{ID: "analyst", Role: "Analyst", Tools: lookupTools(t, false), Backends: newChain(t, primary, fallback)}

	resp, err := a.Respond(context.Background(), Request{Prompt: "Research lamps"})
	require.NoError(t, err)
	assert.Equal(t, "gemini", resp.Backend)
	assert.Equal(t, 1, resp.BackendIndex)
	assert.Len(t, primary.requests, 1, "failed primary must not be retried in the same invocation")
}

func TestRespondAllBackendsFailed(t *testing.T) {
	a := &Agent{ID: "writer", Role: "Writer", Backends: newChain(t,
		&scripted{name: "a", err: errors.New("down")},
		&scripted{name: "b", err: errors.New("also down")},
	)}

	_, err := a.Respond(context.Background(), Request{Prompt: "hi"})
	require.ErrorIs(t, err, llm.ErrAllBackendsFailed)
	var ce *llm.ChainError
	require.ErrorAs(t, err, &ce)
	assert.Len(t, ce.Attempts, 2)
}

func TestRespondRendersContext(t *testing.T) {
	b := &scripted{name: "ollama", replies: []string{"Final Answer: ok"}}
	a := &Agent{ID: "writer", Role: "Writer", Goal: "write", Backstory: "seasoned", Backends: newChain(t, b)}

	_, err := a.Respond(context.Background(), Request{
		Prompt: "Write copy",
		Context: []ContextEntry{
			{TaskID: "strategy", Text: "Go local"},
			{TaskID: "seo", Text: "Mug | Handmade"},
		},
	})
	require.NoError(t, err)

	user := b.requests[0].Messages[1].Content
	assert.True(t, strings.HasPrefix(user, "Write copy"))
	assert.Contains(t, user, "## Context from Previous Tasks")
	assert.Contains(t, user, "### Output of strategy\n\nGo local")
	assert.Contains(t, user, "### Output of seo\n\nMug | Handmade")

	system := b.requests[0].Messages[0].Content
	assert.Contains(t, system, "You are Writer.")
	assert.NotContains(t, system, "## Tools")
}

func TestParseStep(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		final bool
		tool  string
		input string
		text  string
	}{
		{"plain", "hello", true, "", "", "hello"},
		{"final", "Thought: done\nFinal Answer: the copy", true, "", "", "the copy"},
		{"action", "Action: web_search\nAction Input: {\"query\": \"x\"}", false, "web_search", `{"query": "x"}`, ""},
		{"fenced input", "Action: `web_search`\nAction Input: ```json\n{\"query\": \"x\"}\n```", false, "web_search", `{"query": "x"}`, ""},
		{"no input", "Action: load_store_products", false, "load_store_products", "{}", ""},
		{"final first", "Final Answer: done\nAction: lookup", true, "", "", "done\nAction: lookup"},
		{"hallucinated observation", "Action: lookup\nAction Input: {\"query\": \"x\"}\nObservation: made up", false, "lookup", `{"query": "x"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := parseStep(tt.in)
			assert.Equal(t, tt.final, st.final)
			if tt.final {
				assert.Equal(t, tt.text, st.answer)
				return
			}
			assert.Equal(t, tt.tool, st.tool)
			assert.Equal(t, tt.input, string(st.input))
		})
	}
}

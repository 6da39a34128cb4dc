// Package llm defines the language-model backend interface and the
// deterministic fallback chain agents use to reach it.
package llm

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrMissingAPIKey = errors.New("missing api key")
	ErrEmptyPrompt   = errors.New("prompt is empty")
	ErrEmptyResponse = errors.New("backend returned an empty response")
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-agnostic chat request.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// Empty reports whether no message carries content.
func (r Request) Empty() bool {
	for _, m := range r.Messages {
		if strings.TrimSpace(m.Content) != "" {
			return false
		}
	}
	return true
}

// System returns the concatenated system messages.
func (r Request) System() string {
	var parts []string
	for _, m := range r.Messages {
		if m.Role == RoleSystem {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Backend is a single language-model endpoint.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
}

package crew

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mtzanidakis/storecrew/internal/config"
	"github.com/mtzanidakis/storecrew/internal/llm"
	"github.com/mtzanidakis/storecrew/internal/llm/gemini"
	"github.com/mtzanidakis/storecrew/internal/llm/ollama"
	"github.com/mtzanidakis/storecrew/internal/llm/openai"
)

// unavailable stands in for a backend that could not be constructed, so
// the chain keeps its configured order and falls through it at call time.
type unavailable struct {
	name string
	err  error
}

func (u unavailable) Name() string { return u.name }

func (u unavailable) Generate(context.Context, llm.Request) (llm.Response, error) {
	return llm.Response{}, u.err
}

// NewBackend constructs one backend from its config.
func NewBackend(ctx context.Context, bc config.BackendConfig, httpClient *http.Client) (llm.Backend, error) {
	switch bc.Provider {
	case "ollama":
		return ollama.NewClient(bc.Model, bc.BaseURL, httpClient), nil
	case "openai":
		return openai.NewClient(bc.APIKey, bc.Model, bc.BaseURL, httpClient), nil
	case "gemini":
		c, err := gemini.NewClient(ctx, bc.APIKey, bc.Model, bc.BaseURL, httpClient)
		if err != nil {
			return unavailable{name: "gemini/" + bc.Model, err: err}, nil
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", bc.Provider)
	}
}

// NewChain builds the crew's backend chain in the configured order:
// primary first, then each fallback.
func NewChain(ctx context.Context, cfg *config.Config, httpClient *http.Client) (*llm.Chain, error) {
	entries := make([]llm.Entry, 0, len(cfg.Crew.Backends))
	for _, name := range cfg.Crew.Backends {
		bc, ok := cfg.Backends[name]
		if !ok {
			return nil, &config.ConfigurationError{Section: "backends", Missing: []string{name}}
		}
		b, err := NewBackend(ctx, bc, httpClient)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", name, err)
		}
		entries = append(entries, llm.Entry{Backend: b, Timeout: bc.Timeout})
	}

	chain, err := llm.NewChain(entries...)
	if err != nil {
		return nil, err
	}
	slog.Info("backend chain ready", "order", chain.Names())
	return chain, nil
}

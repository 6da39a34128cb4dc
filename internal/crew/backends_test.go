package crew

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtzanidakis/storecrew/internal/config"
	"github.com/mtzanidakis/storecrew/internal/llm"
)

func TestNewChainKeepsConfiguredOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"Final Answer: hi"},"prompt_eval_count":3,"eval_count":2}`))
	}))
	defer srv.Close()

	cfg := &config.Config{
		Backends: map[string]config.BackendConfig{
			"gemini": {Provider: "gemini", Model: "gemini-1.5-flash", Timeout: time.Second},
			"local":  {Provider: "ollama", Model: "llama3.1", BaseURL: srv.URL, Timeout: time.Second},
		},
		Crew: config.CrewConfig{Backends: []string{"gemini", "local"}},
	}

	chain, err := NewChain(context.Background(), cfg, srv.Client())
	require.NoError(t, err)
	assert.Equal(t, []string{"gemini/gemini-1.5-flash", "ollama/llama3.1"}, chain.Names())

	res, err := chain.Generate(context.Background(), nil, llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Index)
	assert.Equal(t, "Final Answer: hi", res.Text)
	require.Len(t, res.Attempts, 2)
	assert.True(t, errors.Is(res.Attempts[0].Err, llm.ErrMissingAPIKey))
}

func TestNewChainErrors(t *testing.T) {
	cfg := &config.Config{
		Backends: map[string]config.BackendConfig{"odd": {Provider: "carrier-pigeon"}},
		Crew:     config.CrewConfig{Backends: []string{"odd"}},
	}
	_, err := NewChain(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")

	cfg.Crew.Backends = []string{"missing"}
	_, err = NewChain(context.Background(), cfg, nil)
	assert.True(t, errors.Is(err, config.ErrConfiguration))
}

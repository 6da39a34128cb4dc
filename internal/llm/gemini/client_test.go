package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtzanidakis/storecrew/internal/llm"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-test:generateContent")
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "describe the mug")
		assert.Contains(t, string(body), "systemInstruction")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"A sturdy "},{"text":"mug."}]}}],"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":3}}`))
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), "test-key", "gemini-test", srv.URL, srv.Client())
	require.NoError(t, err)
	assert.Equal(t, "gemini/gemini-test", c.Name())

	resp, err := c.Generate(context.Background(), llm.Request{Messages: []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a copywriter."},
		{Role: llm.RoleUser, Content: "describe the mug"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "A sturdy mug.", resp.Text)
	assert.Equal(t, 7, resp.InputTokens)
	assert.Equal(t, 3, resp.OutputTokens)
}

func TestGenerateSendsSamplingOptions(t *testing.T) {
	var got struct {
		GenerationConfig *struct {
			Temperature     float64  `json:"temperature"`
			MaxOutputTokens int      `json:"maxOutputTokens"`
			StopSequences   []string `json:"stopSequences"`
		} `json:"generationConfig"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"ok"}]}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), "test-key", "gemini-test", srv.URL, srv.Client())
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), llm.Request{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Temperature: 0.3,
		MaxTokens:   256,
		Stop:        []string{"\nObservation:"},
	})
	require.NoError(t, err)
	require.NotNil(t, got.GenerationConfig)
	assert.InDelta(t, 0.3, got.GenerationConfig.Temperature, 1e-9)
	assert.Equal(t, 256, got.GenerationConfig.MaxOutputTokens)
	assert.Equal(t, []string{"\nObservation:"}, got.GenerationConfig.StopSequences)
}

func TestGenerateNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), "test-key", "gemini-test", srv.URL, srv.Client())
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	require.ErrorIs(t, err, llm.ErrEmptyResponse)
}

func TestGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), "test-key", "gemini-test", srv.URL, srv.Client())
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "quota exceeded") || strings.Contains(err.Error(), "429"))
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), "", "", "", nil)
	require.ErrorIs(t, err, llm.ErrMissingAPIKey)
}

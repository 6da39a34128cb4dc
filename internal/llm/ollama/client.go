// Package ollama implements llm.Backend for a local Ollama server.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mtzanidakis/storecrew/internal/llm"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "llama3.1"
)

type Client struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewClient(model, baseURL string, httpClient *http.Client) *Client {
	if model == "" {
		model = defaultModel
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{model: model, baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (c *Client) Name() string { return "ollama/" + c.model }

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []llm.Message `json:"messages"`
	Stream    bool          `json:"stream"`
	KeepAlive string        `json:"keep_alive,omitempty"`
	Options   *chatOptions  `json:"options,omitempty"`
}

type chatOptions struct {
	Temperature float64  `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

func (c *Client) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	if req.Empty() {
		return llm.Response{}, llm.ErrEmptyPrompt
	}

	hReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", nil)
	if err != nil {
		return llm.Response{}, fmt.Errorf("build request: %w", err)
	}

	payload := chatRequest{
		Model:     c.model,
		Messages:  req.Messages,
		Stream:    false,
		KeepAlive: "5m",
	}
	if req.Temperature > 0 || req.MaxTokens > 0 || len(req.Stop) > 0 {
		payload.Options = &chatOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens, Stop: req.Stop}
	}

	body, err := llm.DoJSON(ctx, c.httpClient, hReq, payload)
	if err != nil {
		return llm.Response{}, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return llm.Response{}, fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != "" {
		return llm.Response{}, fmt.Errorf("ollama: %s", parsed.Error)
	}

	return llm.Response{
		Text:         strings.TrimSpace(parsed.Message.Content),
		InputTokens:  parsed.PromptEvalCount,
		OutputTokens: parsed.EvalCount,
	}, nil
}

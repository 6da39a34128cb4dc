// Package gemini implements llm.Backend on top of the Google Generative
// Language API.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/generativelanguage/v1beta"
	"google.golang.org/api/option"

	"github.com/mtzanidakis/storecrew/internal/llm"
)

const defaultModel = "gemini-1.5-flash"

type Client struct {
	model string
	svc   *generativelanguage.Service
}

// NewClient builds a Gemini backend. endpoint and httpClient are optional
// and exist mainly for tests.
func NewClient(ctx context.Context, apiKey, model, endpoint string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, llm.ErrMissingAPIKey
	}
	if model == "" {
		model = defaultModel
	}

	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(endpoint, "/")+"/"))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	svc, err := generativelanguage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini service: %w", err)
	}
	return &Client{model: model, svc: svc}, nil
}

func (c *Client) Name() string { return "gemini/" + c.model }

func (c *Client) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	if req.Empty() {
		return llm.Response{}, llm.ErrEmptyPrompt
	}

	gReq := &generativelanguage.GenerateContentRequest{}
	if sys := req.System(); sys != "" {
		gReq.SystemInstruction = &generativelanguage.Content{
			Parts: []*generativelanguage.Part{{Text: sys}},
		}
	}
	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			continue
		}
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		gReq.Contents = append(gReq.Contents, &generativelanguage.Content{
			Role:  role,
			Parts: []*generativelanguage.Part{{Text: m.Content}},
		})
	}

	if req.Temperature > 0 || req.MaxTokens > 0 || len(req.Stop) > 0 {
		gReq.GenerationConfig = &generativelanguage.GenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: int64(req.MaxTokens),
			StopSequences:   req.Stop,
		}
	}

	resp, err := c.svc.Models.GenerateContent("models/"+c.model, gReq).Context(ctx).Do()
	if err != nil {
		return llm.Response{}, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return llm.Response{}, llm.ErrEmptyResponse
	}

	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	out := llm.Response{Text: strings.TrimSpace(text.String())}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mtzanidakis/storecrew/internal/config"
	"github.com/mtzanidakis/storecrew/internal/tool"
)

const (
	WebSearchName = "web_search"

	tavilyURL         = "https://api.tavily.com/search"
	defaultMaxResults = 5
)

type searchArgs struct {
	Query string `json:"query" jsonschema:"minLength=1,description=What to search the web for"`
}

// Searcher queries the Tavily search API.
type Searcher struct {
	APIKey     string
	MaxResults int
	Endpoint   string
	HTTPClient *http.Client
}

func NewSearcher(cfg config.SearchConfig) *Searcher {
	return &Searcher{
		APIKey:     cfg.TavilyAPIKey,
		MaxResults: cfg.MaxResults,
		Endpoint:   tavilyURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search returns results formatted as prompt text.
func (s *Searcher) Search(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return "", &config.ConfigurationError{Section: "search", Missing: []string{"TAVILY_API_KEY"}}
	}
	max := s.MaxResults
	if max <= 0 {
		max = defaultMaxResults
	}

	data, err := json.Marshal(map[string]any{
		"api_key":     s.APIKey,
		"query":       query,
		"max_results": max,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("search returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	var sb strings.Builder
	if parsed.Answer != "" {
		fmt.Fprintf(&sb, "Summary: %s\n\n", parsed.Answer)
	}
	for i, r := range parsed.Results {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, strings.TrimSpace(r.Content))
	}
	if sb.Len() == 0 {
		return "No results found for: " + query, nil
	}
	return strings.TrimSpace(sb.String()), nil
}

func WebSearch(s *Searcher) tool.Spec {
	return tool.Spec{
		Name:        WebSearchName,
		Description: "Searches the internet and returns the top results with titles, links, and snippets.",
		Arguments:   tool.ArgumentsFor[searchArgs](),
		Invoke: func(ctx context.Context, args json.RawMessage) tool.Result {
			var in searchArgs
			if err := tool.Decode(WebSearchName, args, &in); err != nil {
				return tool.Failed(err)
			}
			text, err := s.Search(ctx, in.Query)
			if err != nil {
				return tool.Failed(tool.Execution(WebSearchName, err))
			}
			return tool.Text(text)
		},
	}
}

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/mtzanidakis/storecrew/internal/tool"
)

const (
	ScrapeWebsiteName = "scrape_website"

	maxPageBytes = 2 << 20
	maxPageText  = 8000
)

type scrapeArgs struct {
	URL string `json:"url" jsonschema:"minLength=1,description=Absolute http(s) URL of the page to read"`
}

// Scraper fetches pages and reduces them to readable text.
type Scraper struct {
	HTTPClient *http.Client
	MaxText    int
}

func NewScraper() *Scraper {
	return &Scraper{HTTPClient: &http.Client{Timeout: 30 * time.Second}, MaxText: maxPageText}
}

func parsePageURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q: want an absolute http(s) URL", rawURL)
	}
	return u, nil
}

func (s *Scraper) Scrape(ctx context.Context, rawURL string) (string, error) {
	u, err := parsePageURL(rawURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "storecrew/1.0")

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: status %d", u, resp.StatusCode)
	}

	text, err := extractText(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", u, err)
	}
	limit := s.MaxText
	if limit <= 0 {
		limit = maxPageText
	}
	if r := []rune(text); len(r) > limit {
		text = string(r[:limit]) + "..."
	}
	return text, nil
}

var skipElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "svg": true, "head": true, "iframe": true,
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// extractText returns the visible text of an HTML document, one block per
// line.
func extractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var lines []string
	var cur strings.Builder
	flush := func() {
		if line := strings.Join(strings.Fields(cur.String()), " "); line != "" {
			lines = append(lines, line)
		}
		cur.Reset()
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			cur.WriteString(n.Data)
			cur.WriteString(" ")
		}
		block := n.Type == html.ElementNode && blockElements[n.Data]
		if block {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			flush()
		}
	}
	walk(doc)
	flush()
	return strings.Join(lines, "\n"), nil
}

func ScrapeWebsite(s *Scraper) tool.Spec {
	return tool.Spec{
		Name:        ScrapeWebsiteName,
		Description: "Reads the content of a web page and returns its visible text.",
		Arguments:   tool.ArgumentsFor[scrapeArgs](),
		Invoke: func(ctx context.Context, args json.RawMessage) tool.Result {
			var in scrapeArgs
			if err := tool.Decode(ScrapeWebsiteName, args, &in); err != nil {
				return tool.Failed(err)
			}
			if _, err := parsePageURL(in.URL); err != nil {
				return tool.Failed(&tool.Error{Kind: tool.InvalidArguments, Tool: ScrapeWebsiteName, Reason: err.Error()})
			}
			text, err := s.Scrape(ctx, in.URL)
			if err != nil {
				return tool.Failed(tool.Execution(ScrapeWebsiteName, err))
			}
			return tool.Text(text)
		},
	}
}

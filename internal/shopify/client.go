// Package shopify is a small client for the Shopify Admin REST API,
// covering the product reads and SEO writes the crew needs.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mtzanidakis/storecrew/internal/config"
)

const pageLimit = 250

// Product is the simplified product view handed to agents.
type Product struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Handle         string `json:"handle"`
	BodyHTML       string `json:"body_html"`
	Tags           string `json:"tags"`
	SEOTitle       string `json:"seo_title"`
	SEODescription string `json:"seo_description"`
}

type apiProduct struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Handle         string `json:"handle"`
	BodyHTML       string `json:"body_html"`
	Tags           string `json:"tags"`
	SEOTitle       string `json:"metafields_global_title_tag"`
	SEODescription string `json:"metafields_global_description_tag"`
}

// APIError is a non-2xx response from the Admin API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shopify api returned status %d: %s", e.Status, e.Body)
}

type Client struct {
	cfg        config.StorefrontConfig
	httpClient *http.Client
}

// New returns a client. Credentials are checked on every call, before any
// request is sent.
func New(cfg config.StorefrontConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

// Validate returns a *config.ConfigurationError if any credential is
// missing.
func (c *Client) Validate() error {
	return c.cfg.Validate()
}

func (c *Client) baseURL() string {
	shop := strings.TrimRight(strings.TrimSpace(c.cfg.ShopURL), "/")
	if !strings.HasPrefix(shop, "http://") && !strings.HasPrefix(shop, "https://") {
		shop = "https://" + shop
	}
	return fmt.Sprintf("%s/admin/api/%s", shop, c.cfg.APIVersion)
}

// LoadAllProducts fetches every product, following cursor pagination.
func (c *Client) LoadAllProducts(ctx context.Context) ([]Product, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("limit", fmt.Sprint(pageLimit))
	next := c.baseURL() + "/products.json?" + q.Encode()

	var products []Product
	for page := 1; next != ""; page++ {
		var body struct {
			Products []apiProduct `json:"products"`
		}
		link, err := c.do(ctx, http.MethodGet, next, nil, &body)
		if err != nil {
			return nil, fmt.Errorf("load products page %d: %w", page, err)
		}
		for _, p := range body.Products {
			products = append(products, Product(p))
		}
		next = nextPageURL(link)
	}

	slog.Debug("loaded storefront products", "count", len(products))
	return products, nil
}

// UpdateProductSEO writes the product's global title and description tags
// and returns a confirmation message.
func (c *Client) UpdateProductSEO(ctx context.Context, productID int64, title, description string) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}

	payload := map[string]any{
		"product": map[string]any{
			"id":                                productID,
			"metafields_global_title_tag":       title,
			"metafields_global_description_tag": description,
		},
	}
	endpoint := fmt.Sprintf("%s/products/%d.json", c.baseURL(), productID)
	if _, err := c.do(ctx, http.MethodPut, endpoint, payload, nil); err != nil {
		return "", fmt.Errorf("update product %d: %w", productID, err)
	}
	return fmt.Sprintf("Successfully updated SEO for product ID %d.", productID), nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload, out any) (string, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.cfg.AccessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		body := string(data)
		if len(body) > 512 {
			body = body[:512] + "..."
		}
		return "", &APIError{Status: resp.StatusCode, Body: body}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return "", fmt.Errorf("parse response: %w", err)
		}
	}
	return resp.Header.Get("Link"), nil
}

var linkRe = regexp.MustCompile(`<([^>]+)>;\s*rel="?([a-z]+)"?`)

// nextPageURL extracts the rel="next" target from a Link header.
func nextPageURL(header string) string {
	for _, m := range linkRe.FindAllStringSubmatch(header, -1) {
		if m[2] == "next" {
			return m[1]
		}
	}
	return ""
}

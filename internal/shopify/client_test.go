package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtzanidakis/storecrew/internal/config"
)

func TestLoadAllProductsPaginates(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/2024-07/products.json", r.URL.Path)
		assert.Equal(t, "shpat_test", r.Header.Get("X-Shopify-Access-Token"))

		switch r.URL.Query().Get("page_info") {
		case "":
			assert.Equal(t, "250", r.URL.Query().Get("limit"))
			next := fmt.Sprintf("%s/admin/api/2024-07/products.json?limit=250&page_info=p2", srv.URL)
			w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next"`, next))
			_, _ = w.Write([]byte(`{"products":[{"id":1,"title":"Lamp","handle":"lamp","body_html":"<p>Bright</p>","tags":"light, desk","metafields_global_title_tag":"Desk Lamp"}]}`))
		case "p2":
			prev := fmt.Sprintf("%s/admin/api/2024-07/products.json?limit=250&page_info=p1", srv.URL)
			w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="previous"`, prev))
			_, _ = w.Write([]byte(`{"products":[{"id":2,"title":"Vase","handle":"vase"}]}`))
		default:
			t.Errorf("unexpected page_info %q", r.URL.Query().Get("page_info"))
		}
	}))
	defer srv.Close()

	c := New(config.StorefrontConfig{ShopURL: srv.URL, APIVersion: "2024-07", AccessToken: "shpat_test"}, srv.Client())
	products, err := c.LoadAllProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, int64(1), products[0].ID)
	assert.Equal(t, "Desk Lamp", products[0].SEOTitle)
	assert.Equal(t, "light, desk", products[0].Tags)
	assert.Equal(t, "Vase", products[1].Title)
}

func TestMissingCredentialsNeverCallNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := New(config.StorefrontConfig{ShopURL: srv.URL, APIVersion: "2024-07"}, srv.Client())

	_, err := c.LoadAllProducts(context.Background())
	require.True(t, errors.Is(err, config.ErrConfiguration))
	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"SHOPIFY_ADMIN_ACCESS_TOKEN"}, cfgErr.Missing)

	_, err = c.UpdateProductSEO(context.Background(), 1, "t", "d")
	require.ErrorIs(t, err, config.ErrConfiguration)

	assert.Zero(t, calls.Load())
}

func TestUpdateProductSEO(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/admin/api/2024-07/products/42.json", r.URL.Path)

		var body struct {
			Product map[string]any `json:"product"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Handmade Mug", body.Product["metafields_global_title_tag"])
		assert.Equal(t, "Stoneware mug.", body.Product["metafields_global_description_tag"])
		_, _ = w.Write([]byte(`{"product":{"id":42}}`))
	}))
	defer srv.Close()

	c := New(config.StorefrontConfig{ShopURL: srv.URL, APIVersion: "2024-07", AccessToken: "t"}, srv.Client())
	msg, err := c.UpdateProductSEO(context.Background(), 42, "Handmade Mug", "Stoneware mug.")
	require.NoError(t, err)
	assert.Equal(t, "Successfully updated SEO for product ID 42.", msg)
}

func TestUpdateProductSEOAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":"Not Found"}`))
	}))
	defer srv.Close()

	c := New(config.StorefrontConfig{ShopURL: srv.URL, APIVersion: "2024-07", AccessToken: "t"}, srv.Client())
	_, err := c.UpdateProductSEO(context.Background(), 7, "a", "b")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestBaseURL(t *testing.T) {
	c := New(config.StorefrontConfig{ShopURL: "demo.myshopify.com/", APIVersion: "2024-07"}, nil)
	assert.Equal(t, "https://demo.myshopify.com/admin/api/2024-07", c.baseURL())
}

func TestNextPageURL(t *testing.T) {
	h := `<https://a/products.json?page_info=prev>; rel="previous", <https://a/products.json?page_info=next>; rel="next"`
	assert.Equal(t, "https://a/products.json?page_info=next", nextPageURL(h))
	assert.Empty(t, nextPageURL(""))
}

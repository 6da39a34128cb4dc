// Package tools provides the concrete tools the crew's agents use: web
// search, page scraping, and storefront product access.
package tools

import (
	"context"
	"encoding/json"

	"github.com/mtzanidakis/storecrew/internal/schema"
	"github.com/mtzanidakis/storecrew/internal/shopify"
	"github.com/mtzanidakis/storecrew/internal/tool"
)

const (
	LoadStoreProductsName = "load_store_products"
	UpdateProductSEOName  = "update_product_seo"
)

// Storefront is the product API the storefront tools call.
type Storefront interface {
	LoadAllProducts(ctx context.Context) ([]shopify.Product, error)
	UpdateProductSEO(ctx context.Context, productID int64, title, description string) (string, error)
}

func LoadStoreProducts(sf Storefront) tool.Spec {
	return tool.Spec{
		Name:        LoadStoreProductsName,
		Description: "Loads all products from the store, returning a JSON list with product ID, title, handle, body, tags, and current SEO fields.",
		Invoke: func(ctx context.Context, _ json.RawMessage) tool.Result {
			products, err := sf.LoadAllProducts(ctx)
			if err != nil {
				return tool.Failed(tool.Execution(LoadStoreProductsName, err))
			}
			if products == nil {
				products = []shopify.Product{}
			}
			return tool.Structured(products)
		},
	}
}

func UpdateProductSEO(sf Storefront) tool.Spec {
	return tool.Spec{
		Name:        UpdateProductSEOName,
		Description: "Updates the SEO meta title (max 70 chars) and meta description (max 160 chars) of one product by product_id.",
		Arguments:   tool.ArgumentsFor[schema.ProductSEO](),
		Invoke: func(ctx context.Context, args json.RawMessage) tool.Result {
			var in schema.ProductSEO
			if err := tool.Decode(UpdateProductSEOName, args, &in); err != nil {
				return tool.Failed(err)
			}
			msg, err := sf.UpdateProductSEO(ctx, in.ProductID, in.SEOTitle, in.SEODescription)
			if err != nil {
				return tool.Failed(tool.Execution(UpdateProductSEOName, err))
			}
			return tool.Text(msg)
		},
	}
}

package schema

// Names of the built-in output contracts.
const (
	MarketStrategyName = "MarketStrategy"
	CampaignIdeaName   = "CampaignIdea"
	CopyName           = "Copy"
	ProductSEOName     = "ProductSEO"
)

// Title and description bounds for storefront SEO fields.
const (
	MaxSEOTitle       = 70
	MaxSEODescription = 160
)

type MarketStrategy struct {
	Name     string   `json:"name" jsonschema:"minLength=1,description=Name of the market strategy"`
	Tactics  []string `json:"tactics" jsonschema:"description=Tactics to execute"`
	Channels []string `json:"channels" jsonschema:"description=Channels the strategy runs on"`
	KPIs     []string `json:"kpis" jsonschema:"description=Key performance indicators"`
}

type CampaignIdea struct {
	Name        string `json:"name" jsonschema:"minLength=1"`
	Description string `json:"description" jsonschema:"minLength=1"`
	Audience    string `json:"audience"`
	Channel     string `json:"channel"`
}

type Copy struct {
	Title string `json:"title" jsonschema:"minLength=1"`
	Body  string `json:"body" jsonschema:"minLength=1"`
}

// ProductSEO is the SEO record for a single storefront product.
type ProductSEO struct {
	ProductID      int64  `json:"product_id" jsonschema:"minimum=1"`
	SEOTitle       string `json:"seo_title" jsonschema:"minLength=1,maxLength=70"`
	SEODescription string `json:"seo_description" jsonschema:"minLength=1,maxLength=160"`
}

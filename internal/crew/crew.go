package crew

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/mtzanidakis/storecrew/internal/config"
	"github.com/mtzanidakis/storecrew/internal/llm"
	"github.com/mtzanidakis/storecrew/internal/metrics"
	"github.com/mtzanidakis/storecrew/internal/pipeline"
	"github.com/mtzanidakis/storecrew/internal/schema"
	"github.com/mtzanidakis/storecrew/internal/shopify"
	"github.com/mtzanidakis/storecrew/internal/store"
	"github.com/mtzanidakis/storecrew/internal/tool"
	"github.com/mtzanidakis/storecrew/internal/tools"
)

// Options wires a crew to its collaborators. Everything except Config is
// optional.
type Options struct {
	Config *config.Config
	// Definition overrides Config.Crew.DefinitionPath.
	Definition *Definition
	// Backends overrides the chain built from Config.
	Backends   *llm.Chain
	Storefront tools.Storefront
	Searcher   *tools.Searcher
	Scraper    *tools.Scraper
	Store      *store.Store
	Events     pipeline.Emitter
	Metrics    *metrics.Metrics
	HTTPClient *http.Client
	// Mode is recorded with every run: run, train or schedule.
	Mode string
}

// Crew is a ready-to-run pipeline with its executor.
type Crew struct {
	Pipeline *pipeline.Pipeline
	Executor *pipeline.Executor
	Inputs   map[string]string

	recorder *Recorder
}

func New(ctx context.Context, opts Options) (*Crew, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("crew: no config")
	}

	def := opts.Definition
	if def == nil {
		var err error
		if def, err = LoadDefinition(cfg.Crew.DefinitionPath); err != nil {
			return nil, err
		}
	}

	if err := preflight(def, cfg, opts); err != nil {
		return nil, err
	}

	chain := opts.Backends
	if chain == nil {
		var err error
		if chain, err = NewChain(ctx, cfg, opts.HTTPClient); err != nil {
			return nil, err
		}
	}
	if opts.Metrics != nil && chain.Observe == nil {
		chain.Observe = opts.Metrics.BackendAttempt
	}

	inputs := cfg.Crew.Inputs
	if len(inputs) == 0 {
		inputs = config.DefaultInputs()
	}

	p, err := def.Build(Deps{
		Backends:      chain,
		Tools:         toolCatalog(cfg, opts),
		Schemas:       schema.Builtin(),
		MaxIterations: cfg.Pipeline.MaxIterations,
	}, inputs)
	if err != nil {
		return nil, fmt.Errorf("build crew %s: %w", def.Name, err)
	}

	policy, err := pipeline.PolicyFromConfig(cfg.Pipeline)
	if err != nil {
		return nil, err
	}
	exec := pipeline.NewExecutor(policy)
	if opts.Mode != "" {
		exec.Mode = opts.Mode
	}
	if opts.Events != nil {
		exec.Events = opts.Events
	}
	if opts.Metrics != nil {
		exec.Metrics = opts.Metrics
	}

	c := &Crew{Pipeline: p, Executor: exec, Inputs: inputs}
	if opts.Store != nil {
		c.recorder = &Recorder{Store: opts.Store}
		exec.Recorder = c.recorder
		exec.Feedback = c.recorder
	}

	slog.Info("crew assembled", "crew", p.Name, "agents", len(p.Agents), "tasks", len(p.Tasks), "backends", chain.Names())
	return c, nil
}

func (c *Crew) Run(ctx context.Context) (*pipeline.Report, error) {
	return c.Executor.Run(ctx, c.Pipeline, c.Inputs)
}

// Train runs the crew n times, asking collector for feedback after each
// task. Feedback is stored only when the crew has a store.
func (c *Crew) Train(ctx context.Context, n int, collector pipeline.FeedbackCollector) (*pipeline.TrainSummary, error) {
	tr := &pipeline.Trainer{Executor: c.Executor, Collector: collector}
	if c.recorder != nil {
		tr.Sink = c.recorder
	}
	return tr.Train(ctx, c.Pipeline, c.Inputs, n)
}

func toolCatalog(cfg *config.Config, opts Options) map[string]tool.Spec {
	sf := opts.Storefront
	if sf == nil {
		sf = shopify.New(cfg.Storefront, opts.HTTPClient)
	}
	searcher := opts.Searcher
	if searcher == nil {
		searcher = tools.NewSearcher(cfg.Search)
	}
	scraper := opts.Scraper
	if scraper == nil {
		scraper = tools.NewScraper()
	}

	catalog := make(map[string]tool.Spec)
	for _, spec := range []tool.Spec{
		tools.LoadStoreProducts(sf),
		tools.UpdateProductSEO(sf),
		tools.WebSearch(searcher),
		tools.ScrapeWebsite(scraper),
	} {
		catalog[spec.Name] = spec
	}
	return catalog
}

// preflight fails fast on missing credentials for the tools the crew
// actually uses, before any network call is made.
func preflight(def *Definition, cfg *config.Config, opts Options) error {
	var used []string
	for _, a := range def.Agents {
		used = append(used, a.Tools...)
	}

	if opts.Storefront == nil && (slices.Contains(used, tools.LoadStoreProductsName) || slices.Contains(used, tools.UpdateProductSEOName)) {
		if err := cfg.Storefront.Validate(); err != nil {
			return err
		}
	}
	if opts.Searcher == nil && slices.Contains(used, tools.WebSearchName) && cfg.Search.TavilyAPIKey == "" {
		return &config.ConfigurationError{Section: "search", Missing: []string{"TAVILY_API_KEY"}}
	}
	return nil
}

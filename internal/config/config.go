package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StorePath is the default location of the SQLite database.
const StorePath = "data/storecrew.db"

type Config struct {
	Log        LogConfig                `yaml:"log"`
	Backends   map[string]BackendConfig `yaml:"backends"`
	Crew       CrewConfig               `yaml:"crew"`
	Pipeline   PipelineConfig           `yaml:"pipeline"`
	Storefront StorefrontConfig         `yaml:"storefront"`
	Search     SearchConfig             `yaml:"search"`
	Store      StoreConfig              `yaml:"store"`
	NATS       NATSConfig               `yaml:"nats"`
	Metrics    MetricsConfig            `yaml:"metrics"`
	Web        WebConfig                `yaml:"web"`
	Schedule   ScheduleConfig           `yaml:"schedule"`
	Telegram   TelegramConfig           `yaml:"telegram"`
	Vault      VaultConfig              `yaml:"vault"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// BackendConfig describes one language-model endpoint.
type BackendConfig struct {
	Provider string        `yaml:"provider"` // ollama, openai, gemini
	Model    string        `yaml:"model"`
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

type CrewConfig struct {
	// DefinitionPath points at a crew YAML; empty uses the built-in crew.
	DefinitionPath string `yaml:"definition_path"`
	// Backends is the primary backend followed by its fallbacks, in order.
	Backends []string          `yaml:"backends"`
	Inputs   map[string]string `yaml:"inputs"`
}

type PipelineConfig struct {
	MaxAttempts    int    `yaml:"max_attempts"`
	SelfCorrect    bool   `yaml:"self_correct"`
	MaxCorrections int    `yaml:"max_corrections"`
	FallbackScope  string `yaml:"fallback_scope"` // attempt or task
	MaxIterations  int    `yaml:"max_iterations"`
}

type StorefrontConfig struct {
	ShopURL     string `yaml:"shop_url"`
	APIVersion  string `yaml:"api_version"`
	AccessToken string `yaml:"access_token"`
}

type SearchConfig struct {
	TavilyAPIKey string `yaml:"tavily_api_key"`
	MaxResults   int    `yaml:"max_results"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// WebConfig controls the run API served by `serve`. Auth, when set, is
// the Basic Auth password.
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

type ScheduleConfig struct {
	Cron string `yaml:"cron"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type VaultConfig struct {
	Passphrase string `yaml:"passphrase"`
}

// DefaultInputs are the run inputs used when the config names none.
func DefaultInputs() map[string]string {
	return map[string]string{
		"target_audience": "Tech-savvy professionals and small business owners who value high-quality, unique products.",
		"brand_voice":     "Professional, slightly playful, innovative, and customer-focused.",
		"product_type":    "Unique 3D printed gadgets and home decor",
	}
}

func defaults() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Backends: map[string]BackendConfig{
			"ollama": {
				Provider: "ollama",
				Model:    "llama3.1",
				BaseURL:  "http://localhost:11434",
				Timeout:  2 * time.Minute,
			},
			"gemini": {
				Provider: "gemini",
				Model:    "gemini-1.5-flash",
				Timeout:  time.Minute,
			},
			"openai": {
				Provider: "openai",
				Model:    "gpt-4o-mini",
				Timeout:  time.Minute,
			},
		},
		Crew: CrewConfig{
			Backends: []string{"ollama", "gemini", "openai"},
			Inputs:   DefaultInputs(),
		},
		Pipeline: PipelineConfig{
			MaxAttempts:    3,
			SelfCorrect:    true,
			MaxCorrections: 1,
			FallbackScope:  "attempt",
			MaxIterations:  8,
		},
		Storefront: StorefrontConfig{
			APIVersion: "2024-07",
		},
		Search: SearchConfig{
			MaxResults: 5,
		},
		Store: StoreConfig{
			Path: StorePath,
		},
		NATS: NATSConfig{
			Port:    4222,
			DataDir: "data/nats",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Web: WebConfig{
			Port: 8080,
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("STORECREW_CONFIG")
	if path == "" {
		path = "config/storecrew.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("STORECREW_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SHOPIFY_SHOP_URL"); v != "" {
		cfg.Storefront.ShopURL = v
	}
	if v := os.Getenv("SHOPIFY_API_VERSION"); v != "" {
		cfg.Storefront.APIVersion = v
	}
	if v := os.Getenv("SHOPIFY_ADMIN_ACCESS_TOKEN"); v != "" {
		cfg.Storefront.AccessToken = v
	}
	if v := os.Getenv("TAVILY_API_KEY"); v != "" {
		cfg.Search.TavilyAPIKey = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		setBackend(cfg, "ollama", func(b *BackendConfig) { b.BaseURL = v })
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		setBackend(cfg, "gemini", func(b *BackendConfig) { b.APIKey = v })
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		setBackend(cfg, "openai", func(b *BackendConfig) { b.APIKey = v })
	}
	if v := os.Getenv("STORECREW_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxAttempts = n
		}
	}
	if v := os.Getenv("STORECREW_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("STORECREW_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("STORECREW_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("STORECREW_TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		}
	}
	if v := os.Getenv("STORECREW_WEB_PASSWORD"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("STORECREW_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("STORECREW_VAULT_PASSPHRASE"); v != "" {
		cfg.Vault.Passphrase = v
	}
}

func setBackend(cfg *Config, name string, fn func(*BackendConfig)) {
	if cfg.Backends == nil {
		cfg.Backends = make(map[string]BackendConfig)
	}
	b, ok := cfg.Backends[name]
	if !ok {
		b = BackendConfig{Provider: name}
	}
	fn(&b)
	cfg.Backends[name] = b
}

func (c *Config) validate() error {
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("pipeline.max_attempts must be at least 1, got %d", c.Pipeline.MaxAttempts)
	}
	switch c.Pipeline.FallbackScope {
	case "", "attempt", "task":
	default:
		return fmt.Errorf("pipeline.fallback_scope must be attempt or task, got %q", c.Pipeline.FallbackScope)
	}
	if len(c.Crew.Backends) == 0 {
		return fmt.Errorf("crew.backends must name at least one backend")
	}
	for _, name := range c.Crew.Backends {
		b, ok := c.Backends[name]
		if !ok {
			return fmt.Errorf("crew backend %q is not defined under backends", name)
		}
		switch b.Provider {
		case "ollama", "openai", "gemini":
		default:
			return fmt.Errorf("backend %q has unknown provider %q", name, b.Provider)
		}
	}
	if len(c.Crew.Inputs) == 0 {
		c.Crew.Inputs = DefaultInputs()
	}
	return nil
}

// Validate reports every storefront value that is missing. The storefront
// client refuses to start without all three.
func (s StorefrontConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(s.ShopURL) == "" {
		missing = append(missing, "SHOPIFY_SHOP_URL")
	}
	if strings.TrimSpace(s.APIVersion) == "" {
		missing = append(missing, "SHOPIFY_API_VERSION")
	}
	if strings.TrimSpace(s.AccessToken) == "" {
		missing = append(missing, "SHOPIFY_ADMIN_ACCESS_TOKEN")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Section: "storefront", Missing: missing}
	}
	return nil
}

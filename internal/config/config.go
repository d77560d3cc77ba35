// Package config loads and validates the YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kaiwa-ai/kaiwa/internal/tools"
	"github.com/kaiwa-ai/kaiwa/internal/usage"
)

// Config is the root configuration document.
type Config struct {
	Server     ServerConfig          `yaml:"server"`
	Logging    LoggingConfig         `yaml:"logging"`
	Database   DatabaseConfig        `yaml:"database"`
	Models     ModelsConfig          `yaml:"models"`
	Embeddings EmbeddingsConfig      `yaml:"embeddings"`
	Memory     MemoryConfig          `yaml:"memory"`
	Tools      tools.Directory       `yaml:"tools"`
	Pricing    map[string]usage.Cost `yaml:"pricing"`
	Usage      UsageConfig           `yaml:"usage"`
	Personas   PersonasConfig        `yaml:"personas"`
	Stickers   map[string]string     `yaml:"stickers"` // mood -> URL overrides
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	Path   string `yaml:"path"`   // sqlite file path
	URL    string `yaml:"url"`    // postgres connection string
}

// AdapterConfig declares one model backend.
type AdapterConfig struct {
	Name         string   `yaml:"name"` // openai, anthropic, gemini, ollama, or a compat name
	Kind         string   `yaml:"kind"` // adapter implementation; defaults to Name
	APIKey       string   `yaml:"api_key"`
	BaseURL      string   `yaml:"base_url"`
	DefaultModel string   `yaml:"default_model"`
	Aliases      []string `yaml:"aliases"`
}

type ModelsConfig struct {
	Default  string          `yaml:"default"` // model name used when a request names none
	Planner  string          `yaml:"planner"` // model for the planning pass; empty disables planning
	Adapters []AdapterConfig `yaml:"adapters"`
}

type EmbeddingsConfig struct {
	Provider  string `yaml:"provider"` // openai, ollama, or empty to disable retrieval
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	IndexPath string `yaml:"index_path"`
}

type MemoryConfig struct {
	Window int `yaml:"window"`
}

type UsageConfig struct {
	AuditPath string `yaml:"audit_path"`
}

type PersonasConfig struct {
	Dir     string `yaml:"dir"`
	Default string `yaml:"default"`
}

// Load reads, env-expands, parses, defaults, and validates the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/kaiwa.db"
	}
	if cfg.Embeddings.IndexPath == "" {
		cfg.Embeddings.IndexPath = "data/index.json"
	}
	if cfg.Memory.Window == 0 {
		cfg.Memory.Window = 12
	}
	if cfg.Personas.Dir == "" {
		cfg.Personas.Dir = "personas"
	}
}

// Validate rejects configurations that cannot possibly serve.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("config: sqlite driver needs database.path")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("config: postgres driver needs database.url")
		}
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}

	if len(c.Models.Adapters) == 0 {
		return fmt.Errorf("config: at least one model adapter is required")
	}
	if c.Models.Default == "" {
		return fmt.Errorf("config: models.default is required")
	}

	switch c.Embeddings.Provider {
	case "", "openai", "ollama":
	default:
		return fmt.Errorf("config: unknown embeddings provider %q", c.Embeddings.Provider)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/i-dream-of-ai/sparkmango/pkg/models"
)

// Config holds all sparkmango configuration.
type Config struct {
	DBPath     string                `yaml:"db_path"`
	Providers  []ProviderConfig      `yaml:"providers"`
	Router     RouterConfig          `yaml:"router"`
	Generation GenerationConfig      `yaml:"generation"`
	Cache      CacheConfig           `yaml:"cache"`
	Budget     BudgetConfig          `yaml:"budget"`
	Pricing    []models.ModelPricing `yaml:"pricing"`
	Log        LogConfig             `yaml:"log"`
}

// RouterConfig maps model aliases to concrete provider targets.
type RouterConfig struct {
	Routes []RouteConfig `yaml:"routes"`
}

// RouteConfig maps a model alias to an ordered list of targets.
type RouteConfig struct {
	Model   string        `yaml:"model"`
	Targets []RouteTarget `yaml:"targets"`
}

// RouteTarget identifies a specific provider and model.
type RouteTarget struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// ProviderConfig defines an OpenAI-compatible generation service.
type ProviderConfig struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// GenerationConfig controls the generation client and batch runner.
type GenerationConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	Temperature       float64       `yaml:"temperature"`
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	Concurrency       int           `yaml:"concurrency"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Dedupe            bool          `yaml:"dedupe"`
}

// CacheConfig selects and configures the artifact cache backend.
// Backend is one of "file" (default), "sqlite", "redis" or "badger".
type CacheConfig struct {
	Backend string       `yaml:"backend"`
	Dir     string       `yaml:"dir"`
	DBPath  string       `yaml:"db_path"`
	Redis   RedisConfig  `yaml:"redis"`
	Badger  BadgerConfig `yaml:"badger"`
}

// RedisConfig configures the redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// BadgerConfig configures the badger cache backend.
type BadgerConfig struct {
	Dir string `yaml:"dir"`
}

// BudgetConfig controls budget enforcement.
type BudgetConfig struct {
	Enabled  bool                  `yaml:"enabled"`
	Policies []models.BudgetPolicy `yaml:"policies"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Cache backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendBadger = "badger"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DBPath: "sparkmango.db",
		Generation: GenerationConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			Temperature: 0.1,
			MaxAttempts: 3,
			BaseDelay:   5 * time.Second,
			Concurrency: 4,
		},
		Cache: CacheConfig{
			Backend: BackendFile,
			DBPath:  "sparkmango-cache.db",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "sparkmango:artifact:",
			},
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks backend names and numeric limits.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case BackendFile, BackendSQLite, BackendRedis, BackendBadger:
	default:
		return fmt.Errorf("invalid cache backend %q", c.Cache.Backend)
	}
	if c.Generation.MaxAttempts < 1 {
		return fmt.Errorf("generation.max_attempts must be positive, got %d", c.Generation.MaxAttempts)
	}
	if c.Generation.BaseDelay < 0 {
		return fmt.Errorf("generation.base_delay must not be negative")
	}
	if c.Generation.Concurrency < 1 {
		return fmt.Errorf("generation.concurrency must be positive, got %d", c.Generation.Concurrency)
	}
	if c.Generation.RequestsPerMinute < 0 {
		return fmt.Errorf("generation.requests_per_minute must not be negative")
	}
	for _, p := range c.Budget.Policies {
		if p.MaxTokens <= 0 {
			return fmt.Errorf("budget policy for %q: max_tokens must be positive", p.Contract)
		}
	}
	return nil
}

// Provider returns the named provider with its API key resolved.
// A provider named "openai" is synthesized when none is configured, and an
// empty key falls back to OPENAI_API_KEY.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			if p.APIKey == "" {
				p.APIKey = os.Getenv("OPENAI_API_KEY")
			}
			return p, true
		}
	}
	if name == "openai" {
		return ProviderConfig{Name: "openai", APIKey: os.Getenv("OPENAI_API_KEY")}, true
	}
	return ProviderConfig{}, false
}

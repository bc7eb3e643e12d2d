package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Cache.Backend != BackendFile {
		t.Errorf("expected file backend, got %s", cfg.Cache.Backend)
	}
	if cfg.Generation.MaxAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", cfg.Generation.MaxAttempts)
	}
	if cfg.Generation.BaseDelay != 5*time.Second {
		t.Errorf("expected 5s base delay, got %v", cfg.Generation.BaseDelay)
	}
	if cfg.Generation.Temperature != 0.1 {
		t.Errorf("expected temperature 0.1, got %v", cfg.Generation.Temperature)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-test-123")

	path := writeConfig(t, `
db_path: "test.db"
providers:
  - name: openai
    url: https://api.openai.com/v1
    api_key: ${TEST_API_KEY}
generation:
  model: gpt-4o-mini
  base_delay: 2s
  concurrency: 8
  dedupe: true
cache:
  backend: redis
  redis:
    addr: cache:6379
budget:
  enabled: true
  policies:
    - contract: "*"
      max_tokens: 500000
      period: daily
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DBPath != "test.db" {
		t.Errorf("expected test.db, got %s", cfg.DBPath)
	}
	if cfg.Providers[0].APIKey != "sk-test-123" {
		t.Errorf("env var not expanded: got %s", cfg.Providers[0].APIKey)
	}
	if cfg.Generation.BaseDelay != 2*time.Second {
		t.Errorf("expected 2s base delay, got %v", cfg.Generation.BaseDelay)
	}
	if cfg.Generation.MaxAttempts != 3 {
		t.Errorf("expected default max attempts to survive, got %d", cfg.Generation.MaxAttempts)
	}
	if !cfg.Generation.Dedupe {
		t.Error("expected dedupe enabled")
	}
	if cfg.Cache.Backend != BackendRedis || cfg.Cache.Redis.Addr != "cache:6379" {
		t.Errorf("unexpected cache config: %+v", cfg.Cache)
	}
	if cfg.Cache.Redis.Prefix != "sparkmango:artifact:" {
		t.Errorf("expected default redis prefix, got %q", cfg.Cache.Redis.Prefix)
	}
	if len(cfg.Budget.Policies) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(cfg.Budget.Policies))
	}
	if cfg.Budget.Policies[0].MaxTokens != 500000 {
		t.Errorf("expected 500000 max tokens, got %d", cfg.Budget.Policies[0].MaxTokens)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cache.Backend != BackendFile {
		t.Errorf("expected defaults, got backend %s", cfg.Cache.Backend)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"backend":     "cache:\n  backend: memcached\n",
		"attempts":    "generation:\n  max_attempts: 0\n",
		"concurrency": "generation:\n  concurrency: -1\n",
		"budget":      "budget:\n  policies:\n    - contract: x\n      max_tokens: 0\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestProviderFallsBackToEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg := Default()
	p, ok := cfg.Provider("openai")
	if !ok {
		t.Fatal("expected synthesized openai provider")
	}
	if p.APIKey != "sk-env" {
		t.Errorf("expected env key, got %q", p.APIKey)
	}

	if _, ok := cfg.Provider("missing"); ok {
		t.Error("expected unknown provider to be absent")
	}
}

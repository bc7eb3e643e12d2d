package router

import (
	"context"
	"errors"
	"testing"

	"github.com/i-dream-of-ai/sparkmango/pkg/config"
	"github.com/i-dream-of-ai/sparkmango/pkg/llm"
)

func TestResolveNoRoutes(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{Name: "openai", URL: "https://api.openai.com", APIKey: "sk-1"},
		},
	}
	r := New(cfg)
	routes, err := r.Resolve("gpt-4")
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(routes))
	}
	if routes[0].Provider.Name != "openai" || routes[0].Model != "gpt-4" {
		t.Errorf("unexpected route: %+v", routes[0])
	}
}

func TestResolveWithAlias(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{Name: "openai", URL: "https://api.openai.com", APIKey: "sk-1"},
			{Name: "internal", URL: "https://llm.internal/v1", APIKey: "sk-2"},
		},
		Router: config.RouterConfig{
			Routes: []config.RouteConfig{
				{
					Model: "fast",
					Targets: []config.RouteTarget{
						{Provider: "openai", Model: "gpt-4o-mini"},
						{Provider: "internal", Model: "llama-3.1-70b"},
					},
				},
			},
		},
	}
	r := New(cfg)
	routes, err := r.Resolve("fast")
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(routes))
	}
	if routes[0].Model != "gpt-4o-mini" || routes[0].Provider.Name != "openai" {
		t.Errorf("unexpected first route: %+v", routes[0])
	}
	if routes[1].Model != "llama-3.1-70b" || routes[1].Provider.Name != "internal" {
		t.Errorf("unexpected second route: %+v", routes[1])
	}
}

func TestResolveEmptyModelUsesRequested(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{Name: "openai", URL: "https://api.openai.com", APIKey: "sk-1"},
		},
		Router: config.RouterConfig{
			Routes: []config.RouteConfig{
				{
					Model: "gpt-4",
					Targets: []config.RouteTarget{
						{Provider: "openai"},
					},
				},
			},
		},
	}
	r := New(cfg)
	routes, err := r.Resolve("gpt-4")
	if err != nil {
		t.Fatal(err)
	}
	if routes[0].Model != "gpt-4" {
		t.Errorf("expected model gpt-4, got %s", routes[0].Model)
	}
}

func TestResolveSkipsUnknownProvider(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{Name: "openai", URL: "https://api.openai.com", APIKey: "sk-1"},
		},
		Router: config.RouterConfig{
			Routes: []config.RouteConfig{
				{
					Model: "fast",
					Targets: []config.RouteTarget{
						{Provider: "unknown", Model: "x"},
						{Provider: "openai", Model: "gpt-4o-mini"},
					},
				},
			},
		},
	}
	r := New(cfg)
	routes, err := r.Resolve("fast")
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(routes))
	}
	if routes[0].Provider.Name != "openai" {
		t.Errorf("expected openai, got %s", routes[0].Provider.Name)
	}
}

func TestResolveAllUnknownProviders(t *testing.T) {
	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{Name: "openai", URL: "https://api.openai.com", APIKey: "sk-1"},
		},
		Router: config.RouterConfig{
			Routes: []config.RouteConfig{
				{
					Model:   "bad",
					Targets: []config.RouteTarget{{Provider: "unknown", Model: "x"}},
				},
			},
		},
	}
	r := New(cfg)
	_, err := r.Resolve("bad")
	if err == nil {
		t.Fatal("expected error for all unknown providers")
	}
}

func TestResolveNoProviders(t *testing.T) {
	cfg := &config.Config{}
	r := New(cfg)
	_, err := r.Resolve("gpt-4")
	if err == nil {
		t.Fatal("expected error for no providers")
	}
}

func TestResolveSynthesizesOpenAI(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	cfg := config.Default()
	r := New(cfg)
	routes, err := r.Resolve("gpt-4o")
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 1 || routes[0].Provider.Name != "openai" || routes[0].Provider.APIKey != "sk-env" {
		t.Fatalf("unexpected routes: %+v", routes)
	}
}

func TestResolvePrefersGenerationProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Generation.Provider = "internal"
	cfg.Providers = []config.ProviderConfig{
		{Name: "openai", APIKey: "sk-1"},
		{Name: "internal", URL: "https://llm.internal/v1", APIKey: "sk-2"},
	}
	routes, err := New(cfg).Resolve("gpt-4o")
	if err != nil {
		t.Fatal(err)
	}
	if routes[0].Provider.Name != "internal" {
		t.Errorf("expected internal provider, got %s", routes[0].Provider.Name)
	}
}

type stubCompleter struct {
	name  string
	err   error
	calls *[]string
}

func (s stubCompleter) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	*s.calls = append(*s.calls, s.name+":"+req.Model)
	if s.err != nil {
		return llm.CompletionResponse{}, s.err
	}
	return llm.CompletionResponse{Text: s.name}, nil
}

func fallbackConfig() *config.Config {
	cfg := config.Default()
	cfg.Providers = []config.ProviderConfig{
		{Name: "primary", APIKey: "sk-1"},
		{Name: "secondary", APIKey: "sk-2"},
	}
	cfg.Router.Routes = []config.RouteConfig{{
		Model: "fast",
		Targets: []config.RouteTarget{
			{Provider: "primary", Model: "gpt-4o-mini"},
			{Provider: "secondary", Model: "gpt-4o"},
		},
	}}
	return cfg
}

func TestChainFallsBack(t *testing.T) {
	var calls []string
	factory := func(p config.ProviderConfig) llm.Completer {
		if p.Name == "primary" {
			return stubCompleter{name: p.Name, err: errors.New("boom"), calls: &calls}
		}
		return stubCompleter{name: p.Name, calls: &calls}
	}

	c, err := New(fallbackConfig()).Completer("fast", factory, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Complete(context.Background(), llm.CompletionRequest{Model: "fast"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != "secondary" {
		t.Errorf("expected secondary to answer, got %s", resp.Text)
	}
	if len(calls) != 2 || calls[0] != "primary:gpt-4o-mini" || calls[1] != "secondary:gpt-4o" {
		t.Errorf("unexpected call order: %v", calls)
	}
}

func TestChainReturnsLastError(t *testing.T) {
	var calls []string
	limited := &llm.RateLimitError{Err: errors.New("429")}
	factory := func(p config.ProviderConfig) llm.Completer {
		if p.Name == "primary" {
			return stubCompleter{name: p.Name, err: errors.New("boom"), calls: &calls}
		}
		return stubCompleter{name: p.Name, err: limited, calls: &calls}
	}

	c, err := New(fallbackConfig()).Completer("fast", factory, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, llm.ErrRateLimited) {
		t.Errorf("expected rate limit from last target, got %v", err)
	}
}

func TestCompleterRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New(config.Default()).Completer("gpt-4o", OpenAIFactory, nil)
	if err == nil {
		t.Fatal("expected missing key error")
	}
}

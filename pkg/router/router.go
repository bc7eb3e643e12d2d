package router

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/i-dream-of-ai/sparkmango/pkg/config"
	"github.com/i-dream-of-ai/sparkmango/pkg/llm"
)

// Route represents a resolved provider and model to try.
type Route struct {
	Provider config.ProviderConfig
	Model    string
}

// Router resolves requested model names to ordered provider+model chains.
type Router struct {
	cfg *config.Config
}

// New creates a Router from the given configuration.
func New(cfg *config.Config) *Router {
	return &Router{cfg: cfg}
}

func (r *Router) providers() []config.ProviderConfig {
	if len(r.cfg.Providers) > 0 {
		out := make([]config.ProviderConfig, 0, len(r.cfg.Providers))
		for _, p := range r.cfg.Providers {
			resolved, _ := r.cfg.Provider(p.Name)
			out = append(out, resolved)
		}
		return out
	}
	if p, ok := r.cfg.Provider(r.cfg.Generation.Provider); ok {
		return []config.ProviderConfig{p}
	}
	return nil
}

// Resolve returns an ordered list of routes for the requested model.
// If the model matches a configured route, the route's targets are returned.
// Otherwise the default generation provider (or the first one) is used with
// the original model name.
func (r *Router) Resolve(requestedModel string) ([]Route, error) {
	providers := r.providers()
	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	// Build provider index by name
	providerIndex := make(map[string]config.ProviderConfig, len(providers))
	for _, p := range providers {
		providerIndex[p.Name] = p
	}

	// Check configured routes
	for _, route := range r.cfg.Router.Routes {
		if route.Model != requestedModel {
			continue
		}
		var routes []Route
		for _, target := range route.Targets {
			provider, ok := providerIndex[target.Provider]
			if !ok {
				continue // skip unknown providers
			}
			model := target.Model
			if model == "" {
				model = requestedModel
			}
			routes = append(routes, Route{Provider: provider, Model: model})
		}
		if len(routes) == 0 {
			return nil, fmt.Errorf("route %q: all providers unknown", requestedModel)
		}
		return routes, nil
	}

	if p, ok := providerIndex[r.cfg.Generation.Provider]; ok {
		return []Route{{Provider: p, Model: requestedModel}}, nil
	}
	return []Route{{Provider: providers[0], Model: requestedModel}}, nil
}

// Factory builds the completer for one provider.
type Factory func(p config.ProviderConfig) llm.Completer

// OpenAIFactory builds OpenAI-compatible completers.
func OpenAIFactory(p config.ProviderConfig) llm.Completer {
	return llm.NewOpenAICompleter(llm.OpenAIConfig{APIKey: p.APIKey, BaseURL: p.URL})
}

// Completer resolves requestedModel and returns a completer that walks the
// resulting chain in order.
func (r *Router) Completer(requestedModel string, factory Factory, logger *zap.Logger) (llm.Completer, error) {
	routes, err := r.Resolve(requestedModel)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	chain := &Chain{logger: logger}
	for _, rt := range routes {
		if rt.Provider.APIKey == "" {
			return nil, fmt.Errorf("provider %q has no api key (set api_key or OPENAI_API_KEY)", rt.Provider.Name)
		}
		chain.links = append(chain.links, link{route: rt, completer: factory(rt.Provider)})
	}
	return chain, nil
}

type link struct {
	route     Route
	completer llm.Completer
}

// Chain is a fallback chain of completers. A failed target hands the request
// to the next one; the last failure is returned when every target fails, so
// a chain that ends in a rate limit still reports a rate limit.
type Chain struct {
	links  []link
	logger *zap.Logger
}

// Complete tries each target with its own model name.
func (c *Chain) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	var lastErr error
	for i, l := range c.links {
		req.Model = l.route.Model
		resp, err := l.completer.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if i < len(c.links)-1 {
			c.logger.Warn("provider failed, falling back",
				zap.String("provider", l.route.Provider.Name),
				zap.String("model", l.route.Model),
				zap.Bool("rate_limited", errors.Is(err, llm.ErrRateLimited)),
				zap.Error(err))
		}
	}
	if lastErr == nil {
		lastErr = errors.New("empty provider chain")
	}
	return llm.CompletionResponse{}, lastErr
}

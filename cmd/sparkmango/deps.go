package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/i-dream-of-ai/sparkmango/pkg/budget"
	"github.com/i-dream-of-ai/sparkmango/pkg/cache"
	"github.com/i-dream-of-ai/sparkmango/pkg/cache/badger"
	"github.com/i-dream-of-ai/sparkmango/pkg/cache/file"
	"github.com/i-dream-of-ai/sparkmango/pkg/cache/redis"
	"github.com/i-dream-of-ai/sparkmango/pkg/cache/sqlite"
	"github.com/i-dream-of-ai/sparkmango/pkg/config"
	"github.com/i-dream-of-ai/sparkmango/pkg/errs"
	"github.com/i-dream-of-ai/sparkmango/pkg/generator"
	"github.com/i-dream-of-ai/sparkmango/pkg/llm"
	"github.com/i-dream-of-ai/sparkmango/pkg/logging"
	"github.com/i-dream-of-ai/sparkmango/pkg/meter"
	"github.com/i-dream-of-ai/sparkmango/pkg/router"
	"github.com/i-dream-of-ai/sparkmango/pkg/tracker"
)

// defaultCacheDir is the file cache location, relative to the output directory,
// when neither --cache-dir nor cache.dir is set.
const defaultCacheDir = "cache"

func loadConfig(path string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openCache opens the configured backend. dir overrides the file cache
// directory; for the other backends it is ignored.
func openCache(ctx context.Context, cfg config.CacheConfig, dir string) (cache.Store, error) {
	switch cfg.Backend {
	case "", config.BackendFile:
		if dir == "" {
			dir = cfg.Dir
		}
		if dir == "" {
			return nil, fmt.Errorf("no cache directory: set --cache-dir or cache.dir")
		}
		return file.New(dir)
	case config.BackendSQLite:
		return sqlite.New(cfg.DBPath)
	case config.BackendRedis:
		return redis.New(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	case config.BackendBadger:
		return badger.New(cfg.Badger.Dir)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// pipeline owns everything a generation run needs.
type pipeline struct {
	*generator.Pipeline
	usage    tracker.Tracker
	cache    cache.Store
	meter    *meter.Meter
	enforcer *budget.Enforcer
}

func (p *pipeline) Close() {
	_ = p.cache.Close()
	_ = p.usage.Close()
}

// newPipeline wires the cache, usage ledger, budget, provider chain and
// generation client into a Pipeline.
func newPipeline(ctx context.Context, cfg *config.Config, cacheDir string, logger *zap.Logger) (*pipeline, error) {
	gen := cfg.Generation
	completer, err := router.New(cfg).Completer(gen.Model, router.OpenAIFactory, logger)
	if err != nil {
		return nil, errs.New(errs.KindConfig, "no usable generation provider", err)
	}

	store, err := openCache(ctx, cfg.Cache, cacheDir)
	if err != nil {
		return nil, err
	}
	tr, err := tracker.New(cfg.DBPath)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	metrics := generator.NewMetrics()
	m := meter.New()
	client := llm.NewClient(completer, m, llm.Config{
		Model:             gen.Model,
		Temperature:       gen.Temperature,
		MaxAttempts:       gen.MaxAttempts,
		BaseDelay:         gen.BaseDelay,
		RequestsPerMinute: gen.RequestsPerMinute,
	},
		llm.WithLogger(logger),
		llm.WithUsageSink(tr),
		llm.WithRetryHook(metrics.RateLimitRetry),
	)

	opts := []generator.Option{
		generator.WithLogger(logger),
		generator.WithMetrics(metrics),
		generator.WithRunRecorder(tr),
		generator.WithConcurrency(gen.Concurrency),
		generator.WithDedupe(gen.Dedupe),
	}
	var enforcer *budget.Enforcer
	if cfg.Budget.Enabled {
		enforcer = budget.New(cfg.Budget.Policies, tr)
		opts = append(opts, generator.WithBudget(enforcer))
	}

	return &pipeline{
		Pipeline: generator.New(store, client, opts...),
		usage:    tr,
		cache:    store,
		meter:    m,
		enforcer: enforcer,
	}, nil
}

func cacheDirFor(outputDir, flag string, cfg config.CacheConfig) string {
	switch {
	case flag != "":
		return flag
	case cfg.Dir != "":
		return cfg.Dir
	default:
		return filepath.Join(outputDir, defaultCacheDir)
	}
}

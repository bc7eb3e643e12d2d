// Package generator orchestrates cache lookup, generation, validation and
// storage of method implementations.
package generator

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/i-dream-of-ai/sparkmango/pkg/cache"
	"github.com/i-dream-of-ai/sparkmango/pkg/errs"
	"github.com/i-dream-of-ai/sparkmango/pkg/llm"
	"github.com/i-dream-of-ai/sparkmango/pkg/models"
	"github.com/i-dream-of-ai/sparkmango/pkg/signature"
	"github.com/i-dream-of-ai/sparkmango/pkg/validator"
)

// Generator produces candidate implementations. *llm.Client implements it.
type Generator interface {
	Generate(ctx context.Context, sig models.FunctionSignature, contract models.Contract) (llm.Generation, error)
	Model() string
}

// BudgetChecker refuses generation once a contract's budget is spent.
// *budget.Enforcer implements it.
type BudgetChecker interface {
	Check(ctx context.Context, contract, model string) error
}

// RunRecorder registers batch runs. *tracker.SQLiteTracker implements it.
type RunRecorder interface {
	StartRun(ctx context.Context, runID, contract string) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics records pipeline metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithBudget checks b before every generation.
func WithBudget(b BudgetChecker) Option {
	return func(p *Pipeline) { p.budget = b }
}

// WithRunRecorder registers every batch run with r.
func WithRunRecorder(r RunRecorder) Option {
	return func(p *Pipeline) { p.runs = r }
}

// WithConcurrency bounds how many signatures a batch run processes at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithDedupe collapses concurrent misses on the same digest into one generation.
func WithDedupe(on bool) Option {
	return func(p *Pipeline) { p.dedupe = on }
}

// Pipeline runs signatures through CacheCheck, Generate, Validate and Store.
type Pipeline struct {
	cache       cache.Store
	gen         Generator
	budget      BudgetChecker
	runs        RunRecorder
	logger      *zap.Logger
	metrics     *Metrics
	concurrency int
	dedupe      bool
	group       singleflight.Group
}

// New creates a Pipeline over store and gen.
func New(store cache.Store, gen Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		cache:       store,
		gen:         gen,
		logger:      zap.NewNop(),
		metrics:     NewMetrics(),
		concurrency: 4,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Metrics returns the pipeline's collectors.
func (p *Pipeline) Metrics() *Metrics { return p.metrics }

// Result is the outcome of a successful Generate.
type Result struct {
	Text      string
	Digest    models.Digest
	FromCache bool
	// CacheErr is set when the implementation was accepted but could not be stored.
	CacheErr error
}

// Generate returns an implementation for sig, from the cache when present.
//
// A cached implementation is returned as is. A cache read failure is treated
// as a miss. A generated implementation is returned only if the validator
// accepts it, and is then stored; a store failure does not fail the call.
func (p *Pipeline) Generate(ctx context.Context, sig models.FunctionSignature, contract models.Contract) (Result, error) {
	digest := signature.Canonicalize(sig)
	log := p.logger.With(zap.String("function", sig.Name), zap.String("digest", digest.Short()))

	text, ok, err := p.cache.Lookup(ctx, digest)
	switch {
	case err != nil:
		p.metrics.cacheLookups.WithLabelValues("error").Inc()
		log.Warn("cache read failed", zap.String("kind", errs.KindCacheRead.String()), zap.Error(err))
	case ok:
		p.metrics.cacheLookups.WithLabelValues("hit").Inc()
		log.Info("cache hit")
		return Result{Text: text, Digest: digest, FromCache: true}, nil
	default:
		p.metrics.cacheLookups.WithLabelValues("miss").Inc()
		log.Info("cache miss")
	}

	if !p.dedupe {
		return p.generate(ctx, sig, contract, digest, log)
	}
	// The shared call outlives any one caller; each caller stops waiting on its own ctx.
	ch := p.group.DoChan(string(digest), func() (any, error) {
		return p.generate(context.WithoutCancel(ctx), sig, contract, digest, log)
	})
	select {
	case r := <-ch:
		if r.Shared {
			log.Debug("joined in-flight generation")
		}
		return r.Val.(Result), r.Err
	case <-ctx.Done():
		log.Info("stopped waiting for in-flight generation", zap.Error(ctx.Err()))
		return Result{Digest: digest}, ctx.Err()
	}
}

func (p *Pipeline) generate(ctx context.Context, sig models.FunctionSignature, contract models.Contract, digest models.Digest, log *zap.Logger) (Result, error) {
	failed := Result{Digest: digest}

	if p.budget != nil {
		if err := p.budget.Check(ctx, contract.Name, p.gen.Model()); err != nil {
			p.metrics.generations.WithLabelValues("budget").Inc()
			log.Warn("generation refused", zap.String("kind", kindOf(err)), zap.Error(err))
			return failed, err
		}
	}

	start := time.Now()
	gen, err := p.gen.Generate(ctx, sig, contract)
	p.metrics.duration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.generations.WithLabelValues("failed").Inc()
		log.Error("generation failed",
			zap.String("kind", kindOf(err)),
			zap.Int("attempts", gen.Attempts),
			zap.Error(err))
		return failed, err
	}
	p.metrics.tokens.Add(float64(gen.Usage.TotalTokens))

	verdict := validator.Validate(sig, gen.Code)
	attempt := models.GenerationAttempt{
		Signature: sig,
		Prompt:    gen.Prompt,
		Response:  gen.Raw,
		Accepted:  verdict.Accepted,
		Reason:    verdict.Reason,
		Attempts:  gen.Attempts,
	}
	log.Debug("generation attempt",
		zap.Int("attempts", attempt.Attempts),
		zap.Bool("accepted", attempt.Accepted),
		zap.String("reason", attempt.Reason),
		zap.Int("prompt_bytes", len(attempt.Prompt)),
		zap.String("response", attempt.Response))

	if !verdict.Accepted {
		p.metrics.generations.WithLabelValues("rejected").Inc()
		log.Warn("implementation rejected",
			zap.String("kind", errs.KindValidation.String()),
			zap.String("rule", string(verdict.Rule)),
			zap.String("reason", verdict.Reason))
		return failed, errs.New(errs.KindValidation, verdict.Reason, nil).
			WithContext("function", sig.Name).
			WithContext("rule", string(verdict.Rule))
	}
	p.metrics.generations.WithLabelValues("accepted").Inc()

	out := Result{Text: gen.Code, Digest: digest}
	if err := p.cache.Store(ctx, digest, gen.Code); err != nil {
		p.metrics.cacheWriteErrors.Inc()
		log.Warn("cache write failed", zap.String("kind", errs.KindCacheWrite.String()), zap.Error(err))
		out.CacheErr = err
	}
	log.Info("implementation accepted", zap.Int("attempts", gen.Attempts))
	return out, nil
}

func kindOf(err error) string {
	if k, ok := errs.KindOf(err); ok {
		return k.String()
	}
	return "unknown"
}

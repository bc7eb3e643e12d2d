package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/i-dream-of-ai/sparkmango/pkg/errs"
	"github.com/i-dream-of-ai/sparkmango/pkg/meter"
	"github.com/i-dream-of-ai/sparkmango/pkg/models"
)

// Defaults applied to zero Config fields.
const (
	DefaultModel       = "gpt-4o"
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 5 * time.Second
)

// Config controls the generation client.
type Config struct {
	Model       string
	Temperature float64
	// MaxAttempts bounds completion calls per generation, including the first.
	MaxAttempts int
	// BaseDelay is the first rate-limit backoff; it doubles after every retry.
	BaseDelay time.Duration
	// RequestsPerMinute paces calls client-side when positive.
	RequestsPerMinute int
}

// UsageSink receives one record per successful completion.
type UsageSink interface {
	Record(ctx context.Context, rec models.UsageRecord) error
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithUsageSink records usage of every successful completion to s.
func WithUsageSink(s UsageSink) Option {
	return func(c *Client) { c.sink = s }
}

// WithSleep replaces the backoff wait, for tests.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) { c.sleep = fn }
}

// WithRetryHook is called once per rate-limit retry.
func WithRetryHook(fn func()) Option {
	return func(c *Client) { c.onRetry = fn }
}

// Client generates implementations through a Completer, retrying rate limits
// with exponential backoff and recording usage on a Meter.
type Client struct {
	completer Completer
	meter     *meter.Meter
	cfg       Config
	limiter   *rate.Limiter
	sink      UsageSink
	logger    *zap.Logger
	sleep     SleepFunc
	onRetry   func()
}

// NewClient creates a Client. m may be shared between clients.
func NewClient(completer Completer, m *meter.Meter, cfg Config, opts ...Option) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if m == nil {
		m = meter.New()
	}
	c := &Client{
		completer: completer,
		meter:     m,
		cfg:       cfg,
		logger:    zap.NewNop(),
		sleep:     sleepContext,
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60), 1)
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Meter returns the meter usage is recorded on.
func (c *Client) Meter() *meter.Meter { return c.meter }

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// Generation is the outcome of a successful Generate call.
type Generation struct {
	Code     string
	Raw      string
	Prompt   string
	Attempts int
	Usage    CompletionResponse
}

// Generate asks the service for an implementation of sig.
//
// A rate-limited call is retried up to MaxAttempts in total. The wait before
// a retry is the service's suggested delay when it gave one, else the current
// backoff; the backoff doubles after every retry either way. Any other
// failure returns immediately.
func (c *Client) Generate(ctx context.Context, sig models.FunctionSignature, contract models.Contract) (Generation, error) {
	user, err := UserPrompt(sig, contract)
	if err != nil {
		return Generation{}, errs.New(errs.KindService, "build prompt", err).WithContext("function", sig.Name)
	}
	req := CompletionRequest{
		System:      SystemPrompt,
		User:        user,
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
	}
	log := c.logger.With(zap.String("function", sig.Name), zap.String("model", c.cfg.Model))

	delay := c.cfg.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return Generation{Prompt: user, Attempts: attempt - 1},
					errs.New(errs.KindService, "wait for request slot", err).WithContext("function", sig.Name)
			}
		}

		log.Debug("requesting completion", zap.Int("attempt", attempt))
		resp, err := c.completer.Complete(ctx, req)
		if err == nil {
			c.record(ctx, sig, contract, resp)
			return Generation{
				Code:     ExtractCode(resp.Text),
				Raw:      resp.Text,
				Prompt:   user,
				Attempts: attempt,
				Usage:    resp,
			}, nil
		}

		var rl *RateLimitError
		if !errors.As(err, &rl) {
			log.Error("generation request failed", zap.Int("attempt", attempt), zap.Error(err))
			return Generation{Prompt: user, Attempts: attempt},
				errs.New(errs.KindService, "generation request failed", err).WithContext("function", sig.Name)
		}
		lastErr = err
		if attempt == c.cfg.MaxAttempts {
			break
		}

		wait := delay
		if rl.RetryAfter > 0 {
			wait = rl.RetryAfter
		}
		log.Warn("rate limited, backing off",
			zap.Duration("wait", wait),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.cfg.MaxAttempts))
		if c.onRetry != nil {
			c.onRetry()
		}
		if err := c.sleep(ctx, wait); err != nil {
			return Generation{Prompt: user, Attempts: attempt},
				errs.New(errs.KindService, "backoff interrupted", err).WithContext("function", sig.Name)
		}
		delay *= 2
	}

	return Generation{Prompt: user, Attempts: c.cfg.MaxAttempts},
		errs.New(errs.KindRateLimited, fmt.Sprintf("rate limited after %d attempts", c.cfg.MaxAttempts), lastErr).
			WithContext("function", sig.Name)
}

func (c *Client) record(ctx context.Context, sig models.FunctionSignature, contract models.Contract, resp CompletionResponse) {
	c.meter.Record(int64(resp.TotalTokens))
	if c.sink == nil {
		return
	}
	rec := models.UsageRecord{
		RunID:            RunIDFromContext(ctx),
		Contract:         contract.Name,
		Function:         sig.Name,
		Model:            c.cfg.Model,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalTokens:      resp.TotalTokens,
	}
	if err := c.sink.Record(ctx, rec); err != nil {
		c.logger.Warn("failed to record usage", zap.String("function", sig.Name), zap.Error(err))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type runIDKey struct{}

// WithRunID tags ctx with the batch run the request belongs to.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the run tagged by WithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Package llm talks to the generation service: prompt construction, the
// completion call, rate-limit retry and code extraction.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTemperature keeps generations close to deterministic.
const DefaultTemperature = 0.1

// ErrRateLimited matches every *RateLimitError via errors.Is.
var ErrRateLimited = errors.New("rate limited")

// CompletionRequest is a single system+user chat completion.
type CompletionRequest struct {
	System      string
	User        string
	Model       string
	Temperature float64
}

// CompletionResponse carries the generated text and its token usage.
type CompletionResponse struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completer performs one completion call without retrying.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

func (f CompleterFunc) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return f(ctx, req)
}

// RateLimitError reports that the service refused the request for rate
// reasons. RetryAfter is the service's suggested wait, or 0 when it gave none.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

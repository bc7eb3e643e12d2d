package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIConfig configures an OpenAI-compatible chat completion endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// OpenAICompleter is a Completer backed by the OpenAI chat completions API.
// The SDK's own retries are disabled so Client controls backoff.
type OpenAICompleter struct {
	client openai.Client
}

var _ Completer = (*OpenAICompleter)(nil)

// NewOpenAICompleter builds a completer from cfg.
func NewOpenAICompleter(cfg OpenAIConfig) *OpenAICompleter {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &OpenAICompleter{client: openai.NewClient(opts...)}
}

// Complete sends a system and a user message and returns the first choice.
func (c *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		Temperature: openai.Float(req.Temperature),
	})
	if err != nil {
		return CompletionResponse{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return CompletionResponse{}, fmt.Errorf("completion %s returned no choices", resp.ID)
	}
	return CompletionResponse{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}, nil
}

// classify turns HTTP 429 responses into *RateLimitError.
func classify(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
		return err
	}
	var header http.Header
	if apiErr.Response != nil {
		header = apiErr.Response.Header
	}
	return &RateLimitError{RetryAfter: RetryAfter(header, apiErr.Error()), Err: err}
}

var tryAgainRe = regexp.MustCompile(`(?i)try again in (\d+(?:\.\d+)?)(ms|s)\b`)

// RetryAfter extracts the service's suggested wait from retry-after-ms,
// Retry-After (seconds or HTTP date) or a "try again in 1.5s" message.
// It returns 0 when no suggestion is present.
func RetryAfter(header http.Header, message string) time.Duration {
	if v := header.Get("retry-after-ms"); v != "" {
		if ms, err := strconv.ParseFloat(v, 64); err == nil && ms > 0 {
			return time.Duration(ms * float64(time.Millisecond))
		}
	}
	if v := header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
		if at, err := http.ParseTime(v); err == nil {
			if d := time.Until(at); d > 0 {
				return d
			}
		}
	}
	if m := tryAgainRe.FindStringSubmatch(message); m != nil {
		n, err := strconv.ParseFloat(m[1], 64)
		if err == nil && n > 0 {
			if m[2] == "ms" {
				return time.Duration(n * float64(time.Millisecond))
			}
			return time.Duration(n * float64(time.Second))
		}
	}
	return 0
}

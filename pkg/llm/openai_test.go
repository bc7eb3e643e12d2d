package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAICompleter(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "func totalSupply() {}"}}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 150}
		}`))
	}))
	defer srv.Close()

	c := NewOpenAICompleter(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})
	resp, err := c.Complete(context.Background(), CompletionRequest{
		System:      "sys",
		User:        "user",
		Model:       "gpt-4o",
		Temperature: 0.1,
	})
	require.NoError(t, err)

	assert.Equal(t, "func totalSupply() {}", resp.Text)
	assert.Equal(t, 120, resp.PromptTokens)
	assert.Equal(t, 30, resp.CompletionTokens)
	assert.Equal(t, 150, resp.TotalTokens)

	assert.Equal(t, "gpt-4o", got.Model)
	assert.InDelta(t, 0.1, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestOpenAICompleterRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("retry-after-ms", "1500")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "Rate limit reached. Please try again in 1.5s.", "type": "requests", "code": "rate_limit_exceeded"}}`))
	}))
	defer srv.Close()

	c := NewOpenAICompleter(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})
	_, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4o"})
	require.Error(t, err)

	var rl *RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, 1500*time.Millisecond, rl.RetryAfter)
	assert.EqualValues(t, 1, calls.Load(), "sdk retries are disabled")
}

func TestOpenAICompleterServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "bad model", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	c := NewOpenAICompleter(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})
	_, err := c.Complete(context.Background(), CompletionRequest{Model: "nope"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRateLimited))
}

func TestRetryAfter(t *testing.T) {
	cases := []struct {
		name    string
		header  http.Header
		message string
		want    time.Duration
	}{
		{"none", nil, "slow down", 0},
		{"ms header", http.Header{"Retry-After-Ms": {"250"}}, "", 250 * time.Millisecond},
		{"seconds header", http.Header{"Retry-After": {"3"}}, "", 3 * time.Second},
		{"message seconds", nil, "Please try again in 1.5s.", 1500 * time.Millisecond},
		{"message millis", nil, "Please try again in 300ms.", 300 * time.Millisecond},
		{"header wins", http.Header{"Retry-After": {"2"}}, "try again in 9s", 2 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RetryAfter(tc.header, tc.message))
		})
	}
}

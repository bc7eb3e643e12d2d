// Package errs provides the typed failure taxonomy of the generation pipeline.
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind represents the category of a failure.
type Kind int

const (
	// KindService is a non-retryable generation service failure.
	KindService Kind = iota
	// KindRateLimited is a rate-limit failure that survived every retry.
	KindRateLimited
	// KindValidation is a generated implementation rejected by the validator.
	KindValidation
	// KindCacheRead is an artifact cache storage failure on lookup.
	KindCacheRead
	// KindCacheWrite is an artifact cache storage failure on store.
	KindCacheWrite
	// KindBudget is a generation refused because a token budget is spent.
	KindBudget
	// KindConfig is a missing or invalid configuration value.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindService:
		return "service"
	case KindRateLimited:
		return "rate_limited"
	case KindValidation:
		return "validation"
	case KindCacheRead:
		return "cache_read"
	case KindCacheWrite:
		return "cache_write"
	case KindBudget:
		return "budget"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Error is the base error type for pipeline failures.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]any
}

// Error returns the error message.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Kind, e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Context[k])
		}
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error.
func New(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

// KindOf returns the kind of the first Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind checks if an error is of a specific kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsRetryable returns true if retrying the whole pipeline later may succeed.
func IsRetryable(err error) bool {
	return IsKind(err, KindRateLimited)
}

// Package models contains shared data models used across the phrasetracker codebase.
package models

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CompletionProvider is the interface every language-model integration implements.
// Never call specific providers directly; always inject this interface.
type CompletionProvider interface {
	// Complete sends one system+user prompt pair and returns the raw reply text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
}

// CompletionRequest is the input to a single completion call.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	JSONMode    bool // ask the provider for a JSON object reply
	MaxTokens   int
}

// Provider errors. Providers wrap these so callers can classify failures with errors.Is.
var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
	ErrRateLimited         = errors.New("ai provider rate limited")
)

// RateLimitError is returned on HTTP 429. RetryAfter is zero when the provider sent no hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v: retry after %s", ErrRateLimited, e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

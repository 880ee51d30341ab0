// Package llm defines the Provider interface for Large Language Model
// backends.
//
// An LLM provider wraps a remote model API (e.g. Anthropic Claude) and
// exposes a uniform completion interface so the agent runtime never couples
// to a specific SDK. Implementors must be safe for concurrent use and must
// propagate context cancellation promptly.
package llm

import (
	"context"
	"errors"
)

// ErrRateLimited marks a completion failure caused by provider throttling or
// overload. Callers may retry after a backoff.
var ErrRateLimited = errors.New("llm: rate limited")

// Provider is the abstraction over an LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Returns an error wrapping [ErrRateLimited] on throttling, or another
	// error if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Package engine adapts remote text-completion providers to one canonical
// interface. Each adapter converts between the canonical request/response
// types and its provider's wire format, retrying transient failures with
// exponential backoff.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/helix-labs/helix/internal/types"
)

// CompletionEngine is one opaque completion provider.
type CompletionEngine interface {
	ID() string
	Provider() string
	Complete(ctx context.Context, req types.CompletionRequest) (*types.CompletionResponse, error)
}

// EngineError is returned when a provider call ultimately fails. Retryable
// reports whether the last failure was transient (the retry budget was
// already spent on it).
type EngineError struct {
	EngineID  string
	Provider  string
	Status    int
	Retryable bool
	Err       error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s (%s) failed: %v", e.EngineID, e.Provider, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// RetryPolicy bounds the retry loop shared by all adapters.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	return base << uint(attempt)
}

// retryable reports whether an HTTP status warrants a retry. Auth and
// validation failures (4xx other than 429) never do.
func retryable(status int) bool {
	return status >= 500 || status == 429
}

// completeWithRetry runs fn up to the policy's attempt budget, backing off
// between attempts. fn returns a nil *EngineError on success.
func completeWithRetry(ctx context.Context, policy RetryPolicy, fn func() (*types.CompletionResponse, *EngineError)) (*types.CompletionResponse, error) {
	var last *EngineError
	for attempt := 0; attempt < policy.attempts(); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				last.Err = fmt.Errorf("%w (context cancelled during backoff)", last.Err)
				return nil, last
			case <-time.After(policy.delay(attempt - 1)):
			}
		}

		resp, engErr := fn()
		if engErr == nil {
			return resp, nil
		}
		last = engErr
		if !engErr.Retryable {
			return nil, engErr
		}
	}
	return nil, last
}

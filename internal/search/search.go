// Package search provides the documentation-search collaborator. The backend
// is a stub; the retrying wrapper is the real contract: bounded attempts with
// exponential backoff and a final degraded fallback, so a flaky backend never
// fails a workflow run.
package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/dkrenev/supportflow/internal/agent"
)

// StaticSearcher returns canned documentation entries. Stands in for a real
// search backend.
type StaticSearcher struct{}

var _ agent.DocSearcher = (*StaticSearcher)(nil)

// NewStatic creates the stub documentation searcher.
func NewStatic() *StaticSearcher {
	return &StaticSearcher{}
}

// Search implements agent.DocSearcher.
func (s *StaticSearcher) Search(ctx context.Context, query string) ([]string, error) {
	return []string{
		"Reset password via Settings > Security > Change Password",
		"Password must be at least 12 characters",
		"Include uppercase, lowercase, number and symbols",
	}, nil
}

// RetryPolicy bounds the retrying searcher. Attempts counts the first try.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the original behavior: three attempts with
// exponential backoff starting at 100ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// delay returns the backoff before the given retry (1-based).
func (p RetryPolicy) delay(retry int) time.Duration {
	d := p.BaseDelay * time.Duration(1<<(retry-1))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Retrying wraps a DocSearcher with the bounded-retry policy. When every
// attempt fails it returns a synthetic "temporarily unavailable" result
// instead of an error.
type Retrying struct {
	inner  agent.DocSearcher
	policy RetryPolicy
}

var _ agent.DocSearcher = (*Retrying)(nil)

// NewRetrying wraps inner with the given policy.
func NewRetrying(inner agent.DocSearcher, policy RetryPolicy) *Retrying {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Retrying{inner: inner, policy: policy}
}

// Search implements agent.DocSearcher.
func (r *Retrying) Search(ctx context.Context, query string) ([]string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		results, err := r.inner.Search(ctx, query)
		if err == nil {
			return results, nil
		}
		lastErr = err

		if attempt < r.policy.MaxAttempts {
			delay := r.policy.delay(attempt)
			slog.Debug("Documentation search failed, retrying",
				"query", query,
				"attempt", attempt,
				"delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	slog.Warn("Documentation search exhausted retries, degrading",
		"query", query,
		"attempts", r.policy.MaxAttempts,
		"error", lastErr)
	return []string{"Search temporarily unavailable: " + lastErr.Error()}, nil
}

// Package retry bounds re-attempts around lookups that fail while a page
// is still settling.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is a fixed-interval retry budget.
type Policy struct {
	// Attempts is the total number of calls, including the first.
	Attempts int
	// Delay is the constant pause between two calls.
	Delay time.Duration
}

// Default is three attempts two seconds apart.
var Default = Policy{Attempts: 3, Delay: 2 * time.Second}

// Once performs a single attempt.
var Once = Policy{Attempts: 1}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(attempts-1))
	return backoff.WithContext(b, ctx)
}

// Do calls op until it succeeds or the policy is exhausted, and returns
// fallback on exhaustion, on a Permanent error, or when ctx is done.
// Failures are never propagated.
func Do[T any](ctx context.Context, p Policy, fallback T, op func(ctx context.Context) (T, error)) T {
	v, err := backoff.RetryWithData(func() (T, error) {
		return op(ctx)
	}, p.backOff(ctx))
	if err != nil {
		return fallback
	}
	return v
}

// Permanent marks err as final so Do stops without further attempts.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

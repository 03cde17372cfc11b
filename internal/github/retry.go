// internal/github/retry.go
package github

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	custom_errors "repo-sync/internal/errors"
)

// RetryPolicy configures caller-side retries of provider calls. Only
// rate-limited and transient failures are retried.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
	// MaxAttempts caps the total number of calls; zero means bounded by MaxElapsed only.
	MaxAttempts int
	// MaxResetWait is the longest we sleep for a rate-limit reset before giving up.
	MaxResetWait time.Duration
}

// DefaultRetryPolicy returns the policy used by discovery and sync stages.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		MaxElapsed:      2 * time.Minute,
		MaxAttempts:     5,
		MaxResetWait:    5 * time.Minute,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = p.MaxElapsed
	b.Reset()

	var bo backoff.BackOff = b
	if p.MaxAttempts > 0 {
		bo = backoff.WithMaxRetries(bo, uint64(p.MaxAttempts-1))
	}
	return backoff.WithContext(bo, ctx)
}

// Retry runs op until it succeeds, fails permanently, or the policy is exhausted.
func Retry(ctx context.Context, p RetryPolicy, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !custom_errors.IsRetryable(err) {
			return backoff.Permanent(err)
		}

		var pErr *custom_errors.ProviderError
		if errors.As(err, &pErr) && !pErr.RetryAt.IsZero() {
			wait := time.Until(pErr.RetryAt)
			if wait > p.MaxResetWait {
				return backoff.Permanent(err)
			}
			if wait > 0 {
				select {
				case <-ctx.Done():
					return backoff.Permanent(ctx.Err())
				case <-time.After(wait):
				}
			}
		}
		return err
	}, p.backOff(ctx))
}

package services

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	apperrors "github.com/careflow/approvals/pkg/errors"
)

// RetryPolicy bounds the retries of transient store failures.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is used when the orchestrator is built without one.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     4,
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     2 * time.Second,
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

// retryStore runs op, retrying STORE_UNAVAILABLE failures with exponential backoff.
// Any other error is returned at once. When attempts run out the last failure is
// returned as STORE_UNAVAILABLE.
func retryStore[T any](ctx context.Context, policy RetryPolicy, notify func(error, time.Duration), op func() (T, error)) (T, error) {
	attempts := policy.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxTries(attempts),
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(notify))
	}

	result, err := backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !apperrors.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
	if err != nil && apperrors.IsRetryable(err) {
		return result, apperrors.Wrap(apperrors.KindStoreUnavailable, err, "gave up after %d attempts", attempts)
	}
	return result, err
}

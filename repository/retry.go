package repository

import (
	"context"
	"time"
)

// RetryPolicy bounds the automatic retry of transient fetch failures.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy mirrors the backoff the mobile client shipped with:
// three attempts starting at one second and doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialDelay: time.Second, Multiplier: 2}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return p
}

// withRetry runs fn up to policy.MaxAttempts times, sleeping between attempts
// with exponential backoff, as long as retryable classifies the failure as
// worth repeating. The last error is returned when attempts run out. Context
// cancellation cuts the wait short.
func withRetry[T any](ctx context.Context, policy RetryPolicy, retryable func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	policy = policy.normalized()

	var zero T
	delay := policy.InitialDelay
	for attempt := 1; ; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if attempt == policy.MaxAttempts || (retryable != nil && !retryable(err)) {
			return zero, err
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}
		delay = time.Duration(float64(delay) * policy.Multiplier)
	}
}

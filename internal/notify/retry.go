package notify

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the send retries: exponential backoff between
// Initial and MaxInterval, MaxAttempts total attempts.
type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	MaxInterval time.Duration
}

// DefaultRetryPolicy mirrors the historical behavior: up to five
// attempts, exponential wait between 4s and 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Initial: 4 * time.Second, MaxInterval: 10 * time.Second}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithMaxRetries(b, uint64(attempts-1))
}

package httpclient

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

var _ backoff.BackOff = (*policyBackOff)(nil)

// policyBackOff adapts a RetryPolicy to backoff.BackOff.
//
// With BaseDelay=200ms, MaxDelay=2s, MaxRetries=5 and no jitter:
//
//	200ms, 400ms, 800ms, 1.6s, 2s, Stop
//
// It is not safe for concurrent use; each call creates its own.
type policyBackOff struct {
	policy  RetryPolicy
	attempt uint
}

// NextBackOff implements backoff.BackOff.
func (b *policyBackOff) NextBackOff() time.Duration {
	if b.attempt >= b.policy.MaxRetries {
		return backoff.Stop
	}
	d := b.policy.NextDelay(b.attempt)
	b.attempt++
	return d
}

// Reset implements backoff.BackOff.
func (b *policyBackOff) Reset() {
	b.attempt = 0
}

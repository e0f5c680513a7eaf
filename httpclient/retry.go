package httpclient

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Jitter selects how NextDelay randomizes the exponential delay.
type Jitter int

const (
	// JitterFull draws the delay uniformly from [0, computed delay].
	JitterFull Jitter = iota
	// JitterNone uses the computed delay as is.
	JitterNone
)

// RetryPolicy controls how many times a retry-eligible call is re-sent and
// how long the executor waits in between.
//
// Delays grow exponentially from BaseDelay and are capped at MaxDelay:
//
//	attempt 0: BaseDelay
//	attempt 1: BaseDelay * 2
//	attempt n: min(BaseDelay * 2^n, MaxDelay)
//
// A Retry-After header on a 429 or 503 response overrides the computed delay
// for that retry.
//
// Example:
//
//	policy := httpclient.DefaultRetryPolicy()
//	policy.MaxRetries = 5
//	client, err := httpclient.New(baseURL, httpclient.WithRetryPolicy(policy))
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	// Zero disables retries.
	// Default: 3
	MaxRetries uint

	// BaseDelay is the delay before the first retry.
	// Default: 200ms
	BaseDelay time.Duration

	// MaxDelay caps every computed delay.
	// Default: 2s
	MaxDelay time.Duration

	// Jitter randomizes delays so that many clients do not retry in lockstep.
	// Default: JitterFull
	Jitter Jitter
}

// DefaultRetryPolicy returns 3 retries from 200ms up to 2s with full jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		Jitter:     JitterFull,
	}
}

// DisabledRetryPolicy returns a policy that never retries.
func DisabledRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 0,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		Jitter:     JitterFull,
	}
}

const maxBackoffShift = 31

// NextDelay returns the wait before retry number attempt (zero based).
// It is always 0 when retries are disabled.
func (p RetryPolicy) NextDelay(attempt uint) time.Duration {
	if p.MaxRetries == 0 {
		return 0
	}

	shift := attempt
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	factor := int64(1) << shift

	delay := p.MaxDelay
	if p.BaseDelay <= 0 {
		delay = 0
	} else if int64(p.BaseDelay) <= math.MaxInt64/factor {
		delay = min(p.BaseDelay*time.Duration(factor), p.MaxDelay)
	}
	if delay <= 0 {
		return 0
	}

	if p.Jitter == JitterFull {
		ms := delay.Milliseconds()
		if ms <= 0 {
			return 0
		}
		return time.Duration(rand.Int64N(ms+1)) * time.Millisecond
	}
	return delay
}

// BackOff returns a backoff.BackOff that yields NextDelay(0), NextDelay(1),
// ... and then backoff.Stop once MaxRetries delays have been handed out.
func (p RetryPolicy) BackOff() backoff.BackOff {
	return &policyBackOff{policy: p}
}

// RetryDecision is the outcome of evaluating one attempt.
type RetryDecision struct {
	Retry bool
	Delay time.Duration
}

// retryState tracks the retries made during one call.
type retryState struct {
	policy   RetryPolicy
	eligible bool
	retries  uint
	backoff  backoff.BackOff
}

func newRetryState(policy RetryPolicy, eligible bool) *retryState {
	return &retryState{
		policy:   policy,
		eligible: eligible,
		backoff:  policy.BackOff(),
	}
}

// decide consumes one backoff step when the attempt is retried, even if
// retryAfter replaces the computed delay.
func (s *retryState) decide(retryable bool, retryAfter time.Duration, hasRetryAfter bool) RetryDecision {
	if !s.eligible || !retryable || s.retries >= s.policy.MaxRetries {
		return RetryDecision{}
	}
	next := s.backoff.NextBackOff()
	if next == backoff.Stop {
		return RetryDecision{}
	}
	if hasRetryAfter {
		next = retryAfter
	}
	s.retries++
	return RetryDecision{Retry: true, Delay: next}
}

package httpclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_NextDelay(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		attempt uint
		want    time.Duration
	}{
		{
			name:    "given first attempt without jitter, then returns base delay",
			policy:  RetryPolicy{MaxRetries: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second, Jitter: JitterNone},
			attempt: 0,
			want:    200 * time.Millisecond,
		},
		{
			name:    "given third attempt without jitter, then doubles twice",
			policy:  RetryPolicy{MaxRetries: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second, Jitter: JitterNone},
			attempt: 2,
			want:    800 * time.Millisecond,
		},
		{
			name:    "given large attempt, then caps at max delay",
			policy:  RetryPolicy{MaxRetries: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second, Jitter: JitterNone},
			attempt: 10,
			want:    2 * time.Second,
		},
		{
			name:    "given huge attempt, then saturates instead of overflowing",
			policy:  RetryPolicy{MaxRetries: 3, BaseDelay: time.Hour, MaxDelay: 24 * time.Hour, Jitter: JitterNone},
			attempt: 1000,
			want:    24 * time.Hour,
		},
		{
			name:    "given disabled retries, then always returns zero",
			policy:  RetryPolicy{MaxRetries: 0, BaseDelay: time.Second, MaxDelay: time.Minute, Jitter: JitterNone},
			attempt: 2,
			want:    0,
		},
		{
			name:    "given zero base delay, then returns zero",
			policy:  RetryPolicy{MaxRetries: 3, BaseDelay: 0, MaxDelay: time.Second, Jitter: JitterNone},
			attempt: 2,
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.NextDelay(tt.attempt))
		})
	}
}

func TestRetryPolicy_NextDelay_FullJitterStaysInRange(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: JitterFull}

	for attempt := uint(0); attempt < 8; attempt++ {
		ceiling := min(100*time.Millisecond<<attempt, time.Second)
		for i := 0; i < 50; i++ {
			d := policy.NextDelay(attempt)
			assert.GreaterOrEqual(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, ceiling)
			assert.Zero(t, d%time.Millisecond, "jitter has millisecond granularity")
		}
	}
}

func TestRetryPresets(t *testing.T) {
	def := DefaultRetryPolicy()
	assert.Equal(t, uint(3), def.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, def.BaseDelay)
	assert.Equal(t, 2*time.Second, def.MaxDelay)
	assert.Equal(t, JitterFull, def.Jitter)

	assert.Equal(t, uint(0), DisabledRetryPolicy().MaxRetries)
}

func TestRetryState_Decide(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: JitterNone}

	t.Run("given retryable outcomes, then retries until max retries", func(t *testing.T) {
		s := newRetryState(policy, true)

		assert.Equal(t, RetryDecision{Retry: true, Delay: 100 * time.Millisecond}, s.decide(true, 0, false))
		assert.Equal(t, RetryDecision{Retry: true, Delay: 200 * time.Millisecond}, s.decide(true, 0, false))
		assert.Equal(t, RetryDecision{}, s.decide(true, 0, false))
	})

	t.Run("given retry after, then overrides delay but still advances backoff", func(t *testing.T) {
		s := newRetryState(policy, true)

		assert.Equal(t, RetryDecision{Retry: true, Delay: 5 * time.Second}, s.decide(true, 5*time.Second, true))
		assert.Equal(t, RetryDecision{Retry: true, Delay: 200 * time.Millisecond}, s.decide(true, 0, false))
	})

	t.Run("given ineligible call, then never retries", func(t *testing.T) {
		s := newRetryState(policy, false)
		assert.False(t, s.decide(true, 0, false).Retry)
	})

	t.Run("given non retryable outcome, then does not retry", func(t *testing.T) {
		s := newRetryState(policy, true)
		assert.False(t, s.decide(false, time.Second, true).Retry)
		assert.Equal(t, uint(0), s.retries)
	})
}

package httpclient

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimitConfig throttles attempts on the client side, before they reach
// Metabase. Retries count against the same budget.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate. Zero or less disables limiting.
	RequestsPerSecond float64

	// Burst is the number of attempts allowed above the sustained rate.
	Burst int

	// WaitOnLimit waits for a token (bounded by the attempt context) instead
	// of failing with ErrRateLimitExceeded.
	WaitOnLimit bool
}

// DefaultRateLimitConfig allows 20 requests per second with a burst of 5 and
// waits for capacity.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		Burst:             5,
		WaitOnLimit:       true,
	}
}

// ErrRateLimitExceeded is the cause of the KindTransport error returned when
// the client-side limiter rejects an attempt. It is distinct from
// ErrRateLimited, which reports a 429 from the server.
var ErrRateLimitExceeded = errors.New("client rate limit exceeded")

type rateLimitTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
	wait    bool
}

func newRateLimitTransport(next http.RoundTripper, cfg *RateLimitConfig) http.RoundTripper {
	if cfg == nil || cfg.RequestsPerSecond <= 0 {
		return next
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitTransport{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		wait:    cfg.WaitOnLimit,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if t.wait {
		if err := t.limiter.Wait(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, err
			}
			// Wait fails fast when the deadline is closer than the next token.
			return nil, ErrRateLimitExceeded
		}
	} else if !t.limiter.Allow() {
		return nil, ErrRateLimitExceeded
	}

	return t.next.RoundTrip(req)
}

// Unwrap returns the wrapped transport.
func (t *rateLimitTransport) Unwrap() http.RoundTripper { return t.next }

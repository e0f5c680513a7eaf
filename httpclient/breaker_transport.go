package httpclient

import (
	"context"
	"errors"
	"net/http"

	gobreaker "github.com/sony/gobreaker/v2"
)

const defaultBreakerName = "metabase"

// errSyntheticFailure tells the breaker that a response (a 5xx, say) is a
// failure even though RoundTrip succeeded. It never reaches the caller.
var errSyntheticFailure = errors.New("synthetic failure")

// circuitBreakerTransport runs every attempt through a CircuitBreaker.
type circuitBreakerTransport struct {
	breaker    CircuitBreaker
	next       http.RoundTripper
	classifier BreakerClassifier
	metrics    *metrics
	name       string
}

// RoundTrip implements http.RoundTripper.
func (t *circuitBreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	res, err := t.breaker.Execute(func() (interface{}, error) {
		resp, err := t.next.RoundTrip(req) //nolint:bodyclose
		if t.classifier(resp, err) {
			if err != nil {
				return resp, err
			}
			return resp, errSyntheticFailure
		}
		return resp, err
	})

	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			t.metrics.recordBreakerRequest(ctx, t.name, "rejected")
		default:
			t.metrics.recordBreakerRequest(ctx, t.name, "failure")
		}

		if errors.Is(err, errSyntheticFailure) {
			if resp, ok := res.(*http.Response); ok {
				return resp, nil
			}
		}
		return nil, err
	}

	t.metrics.recordBreakerRequest(ctx, t.name, "success")

	resp, ok := res.(*http.Response)
	if !ok {
		return nil, errors.New("circuit breaker returned unexpected result")
	}
	return resp, nil
}

// Unwrap returns the wrapped transport.
func (t *circuitBreakerTransport) Unwrap() http.RoundTripper { return t.next }

// newCircuitBreakerTransport wraps next when a breaker is configured.
func newCircuitBreakerTransport(next http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	if cfg.Breaker == nil {
		return next
	}
	bc := *cfg.Breaker
	if bc.Classifier == nil {
		bc.Classifier = DefaultBreakerClassifier
	}

	name := cfg.ServiceName
	if name == "" {
		name = defaultBreakerName
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: bc.readyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			cfg.Metrics.recordBreakerState(context.Background(), name, int64(to))
			cfg.Logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("metabase circuit breaker state change")
			if bc.OnStateChange != nil {
				bc.OnStateChange(name, from, to)
			}
		},
	}

	var cb CircuitBreaker = cfg.breakerOverride
	if cb == nil && bc.Store != nil {
		dcb, err := gobreaker.NewDistributedCircuitBreaker[interface{}](bc.Store, st)
		if err == nil {
			cb = dcb
		} else {
			// Degrade to a process-local breaker.
			cfg.Logger.Warn().Err(err).Str("breaker", name).Msg("distributed circuit breaker unavailable, using local breaker")
		}
	}
	if cb == nil {
		cb = gobreaker.NewCircuitBreaker[interface{}](st)
	}

	return &circuitBreakerTransport{
		breaker:    cb,
		next:       next,
		classifier: bc.Classifier,
		metrics:    cfg.Metrics,
		name:       name,
	}
}

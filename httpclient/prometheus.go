package httpclient

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer receives per-attempt and per-call events. Implementations must
// be safe for concurrent use and must not block.
type Observer interface {
	// ObserveAttempt is called before every attempt, retries included.
	ObserveAttempt(method string)

	// ObserveResult is called once per call that reached the network, with
	// outcome "ok", "decode_error", "transport_error" or the status class
	// ("4xx", "5xx", ...) of an error response.
	ObserveResult(method, outcome string, duration time.Duration)
}

// PrometheusObserver exports call metrics to Prometheus:
//
//	metabase_request_attempts_total{method}
//	metabase_requests_total{method,outcome}
//	metabase_request_duration_seconds{method,outcome}
type PrometheusObserver struct {
	attempts *prometheus.CounterVec
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver registers the collectors with reg. Collectors that
// are already registered, for example by a second client, are reused.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "metabase_request_attempts_total",
		Help: "Number of HTTP attempts sent to Metabase, retries included.",
	}, []string{"method"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "metabase_requests_total",
		Help: "Number of finished Metabase calls by outcome.",
	}, []string{"method", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "metabase_request_duration_seconds",
		Help:    "Duration of Metabase calls including retries.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"method", "outcome"})

	var err error
	if attempts, err = register(reg, attempts); err != nil {
		return nil, err
	}
	if requests, err = register(reg, requests); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}

	return &PrometheusObserver{attempts: attempts, requests: requests, duration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveAttempt implements Observer.
func (o *PrometheusObserver) ObserveAttempt(method string) {
	o.attempts.WithLabelValues(method).Inc()
}

// ObserveResult implements Observer.
func (o *PrometheusObserver) ObserveResult(method, outcome string, duration time.Duration) {
	o.requests.WithLabelValues(method, outcome).Inc()
	o.duration.WithLabelValues(method, outcome).Observe(duration.Seconds())
}

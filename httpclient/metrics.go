package httpclient

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the OpenTelemetry instruments. Every record method is nil
// safe so a failed registration only disables metrics.
type metrics struct {
	// === Per attempt (transport) ===

	// attemptDuration measures one HTTP exchange, headers received.
	attemptDuration metric.Float64Histogram

	requestBodySize  metric.Int64Histogram
	responseBodySize metric.Int64Histogram

	// activeRequests tracks attempts in flight.
	activeRequests metric.Int64UpDownCounter

	// attemptErrors counts transport failures by error.type.
	attemptErrors metric.Int64Counter

	dnsDuration        metric.Float64Histogram
	connectionDuration metric.Float64Histogram
	tlsDuration        metric.Float64Histogram
	ttfb               metric.Float64Histogram

	// === Per call (executor) ===

	// calls counts finished calls by method and outcome.
	calls metric.Int64Counter

	// callDuration measures a call including retries and sleeps.
	callDuration metric.Float64Histogram

	// retries counts retries by reason.
	retries metric.Int64Counter

	// === Circuit breaker ===

	breakerRequests metric.Int64Counter
	breakerState    metric.Int64Gauge
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}
	var err error

	latencyBuckets := metric.WithExplicitBucketBoundaries(
		0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10,
	)
	sizeBuckets := metric.WithExplicitBucketBoundaries(
		0, 100, 1024, 10*1024, 100*1024, 1024*1024, 10*1024*1024,
	)
	phaseBuckets := metric.WithExplicitBucketBoundaries(
		0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
	)

	if m.attemptDuration, err = meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Duration of a single HTTP attempt in seconds"),
		metric.WithUnit("s"),
		latencyBuckets,
	); err != nil {
		return nil, err
	}
	if m.requestBodySize, err = meter.Int64Histogram(
		"http.client.request.body.size",
		metric.WithDescription("Size of HTTP request bodies in bytes"),
		metric.WithUnit("By"),
		sizeBuckets,
	); err != nil {
		return nil, err
	}
	if m.responseBodySize, err = meter.Int64Histogram(
		"http.client.response.body.size",
		metric.WithDescription("Size of HTTP response bodies in bytes"),
		metric.WithUnit("By"),
		sizeBuckets,
	); err != nil {
		return nil, err
	}
	if m.activeRequests, err = meter.Int64UpDownCounter(
		"http.client.active_requests",
		metric.WithDescription("Number of HTTP attempts in flight"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.attemptErrors, err = meter.Int64Counter(
		"http.client.request.error",
		metric.WithDescription("Number of HTTP attempts that failed before a response"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}
	if m.dnsDuration, err = meter.Float64Histogram(
		"http.client.dns.duration",
		metric.WithDescription("DNS lookup duration in seconds"),
		metric.WithUnit("s"),
		phaseBuckets,
	); err != nil {
		return nil, err
	}
	if m.connectionDuration, err = meter.Float64Histogram(
		"http.client.connection.duration",
		metric.WithDescription("Time to establish a connection in seconds"),
		metric.WithUnit("s"),
		phaseBuckets,
	); err != nil {
		return nil, err
	}
	if m.tlsDuration, err = meter.Float64Histogram(
		"http.client.tls.duration",
		metric.WithDescription("TLS handshake duration in seconds"),
		metric.WithUnit("s"),
		phaseBuckets,
	); err != nil {
		return nil, err
	}
	if m.ttfb, err = meter.Float64Histogram(
		"http.client.ttfb",
		metric.WithDescription("Time to first response byte in seconds"),
		metric.WithUnit("s"),
		latencyBuckets,
	); err != nil {
		return nil, err
	}
	if m.calls, err = meter.Int64Counter(
		"metabase.client.calls",
		metric.WithDescription("Number of finished Metabase API calls by outcome"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}
	if m.callDuration, err = meter.Float64Histogram(
		"metabase.client.call.duration",
		metric.WithDescription("Duration of Metabase API calls including retries in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
		),
	); err != nil {
		return nil, err
	}
	if m.retries, err = meter.Int64Counter(
		"metabase.client.retries",
		metric.WithDescription("Number of retried Metabase API attempts"),
		metric.WithUnit("{retry}"),
	); err != nil {
		return nil, err
	}
	if m.breakerRequests, err = meter.Int64Counter(
		"metabase.client.breaker.requests",
		metric.WithDescription("Attempts seen by the circuit breaker by result"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.breakerState, err = meter.Int64Gauge(
		"metabase.client.breaker.state",
		metric.WithDescription("Circuit breaker state (0 closed, 1 half-open, 2 open)"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *metrics) recordAttemptDuration(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil || m.attemptDuration == nil {
		return
	}
	m.attemptDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

func (m *metrics) recordRequestBodySize(ctx context.Context, size int64, attrs []attribute.KeyValue) {
	if m == nil || m.requestBodySize == nil {
		return
	}
	m.requestBodySize.Record(ctx, size, metric.WithAttributes(attrs...))
}

func (m *metrics) recordResponseBodySize(ctx context.Context, size int64, attrs []attribute.KeyValue) {
	if m == nil || m.responseBodySize == nil {
		return
	}
	m.responseBodySize.Record(ctx, size, metric.WithAttributes(attrs...))
}

func (m *metrics) recordActiveRequest(ctx context.Context, delta int64, attrs []attribute.KeyValue) {
	if m == nil || m.activeRequests == nil {
		return
	}
	m.activeRequests.Add(ctx, delta, metric.WithAttributes(attrs...))
}

func (m *metrics) recordAttemptError(ctx context.Context, errorType string, attrs []attribute.KeyValue) {
	if m == nil || m.attemptErrors == nil {
		return
	}
	all := append(append(make([]attribute.KeyValue, 0, len(attrs)+1), attrs...),
		attribute.String("error.type", errorType))
	m.attemptErrors.Add(ctx, 1, metric.WithAttributes(all...))
}

func (m *metrics) recordDNSDuration(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil || m.dnsDuration == nil {
		return
	}
	m.dnsDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

func (m *metrics) recordConnectionDuration(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil || m.connectionDuration == nil {
		return
	}
	m.connectionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

func (m *metrics) recordTLSDuration(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil || m.tlsDuration == nil {
		return
	}
	m.tlsDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

func (m *metrics) recordTTFB(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil || m.ttfb == nil {
		return
	}
	m.ttfb.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

// recordCall records the final outcome of a call.
func (m *metrics) recordCall(ctx context.Context, method, outcome string, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil || m.calls == nil || m.callDuration == nil {
		return
	}
	all := append(append(make([]attribute.KeyValue, 0, len(attrs)+2), attrs...),
		attribute.String("http.request.method", method),
		attribute.String("metabase.outcome", outcome),
	)
	m.calls.Add(ctx, 1, metric.WithAttributes(all...))
	m.callDuration.Record(ctx, d.Seconds(), metric.WithAttributes(all...))
}

func (m *metrics) recordRetry(ctx context.Context, method, reason string, attrs []attribute.KeyValue) {
	if m == nil || m.retries == nil {
		return
	}
	all := append(append(make([]attribute.KeyValue, 0, len(attrs)+2), attrs...),
		attribute.String("http.request.method", method),
		attribute.String("retry.reason", reason),
	)
	m.retries.Add(ctx, 1, metric.WithAttributes(all...))
}

func (m *metrics) recordBreakerRequest(ctx context.Context, name, result string) {
	if m == nil || m.breakerRequests == nil {
		return
	}
	m.breakerRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker.name", name),
		attribute.String("breaker.result", result),
	))
}

func (m *metrics) recordBreakerState(ctx context.Context, name string, state int64) {
	if m == nil || m.breakerState == nil {
		return
	}
	m.breakerState.Record(ctx, state, metric.WithAttributes(attribute.String("breaker.name", name)))
}

package httpclient

import (
	"fmt"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var _ http.RoundTripper = (*otelTransport)(nil)

// otelTransport opens one client span per attempt, injects the trace
// context and records attempt metrics. The span ends when the response
// body is closed or fully read.
type otelTransport struct {
	base       http.RoundTripper
	cfg        *internalConfig
	propagator propagation.TextMapPropagator
}

func newOtelTransport(base http.RoundTripper, cfg *internalConfig) *otelTransport {
	p := cfg.Propagators
	if p == nil {
		p = propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	}
	return &otelTransport{base: base, cfg: cfg, propagator: p}
}

// RoundTrip implements http.RoundTripper.
func (t *otelTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	ctx, span := t.cfg.Tracer.Start(req.Context(), "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.requestAttributes(req)...),
	)

	req = req.Clone(ctx)
	t.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	attrs := t.metricAttributes(req)
	t.cfg.Metrics.recordActiveRequest(ctx, 1, attrs)
	defer t.cfg.Metrics.recordActiveRequest(ctx, -1, attrs)

	if req.ContentLength > 0 {
		t.cfg.Metrics.recordRequestBodySize(ctx, req.ContentLength, attrs)
	}

	var nt *networkTrace
	if t.cfg.EnableNetworkTrace {
		nt = &networkTrace{}
		req = req.WithContext(httptrace.WithClientTrace(ctx, nt.clientTrace()))
	}

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	if nt != nil {
		nt.annotate(ctx, span, t.cfg.Metrics, attrs)
	}

	if err != nil {
		errorType := classifyError(err)
		setSpanError(span, err, errorType)
		t.cfg.Metrics.recordAttemptError(ctx, errorType, attrs)
		t.cfg.Metrics.recordAttemptDuration(ctx, duration,
			append(attrs, attribute.String("error.type", errorType)))
		span.End()
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", resp.StatusCode))
		span.SetAttributes(attribute.String("error.type", strconv.Itoa(resp.StatusCode)))
	}
	if id := requestID(resp.Header); id != "" {
		span.SetAttributes(attribute.String("metabase.request_id", id))
	}

	respAttrs := append(attrs, attribute.Int("http.response.status_code", resp.StatusCode))
	t.cfg.Metrics.recordAttemptDuration(ctx, duration, respAttrs)

	resp.Body = newWrappedBody(span, resp.Body, func(n int64) {
		t.cfg.Metrics.recordResponseBodySize(ctx, n, attrs)
	})
	return resp, nil
}

// Unwrap returns the wrapped transport.
func (t *otelTransport) Unwrap() http.RoundTripper { return t.base }

func (t *otelTransport) requestAttributes(req *http.Request) []attribute.KeyValue {
	attrs := append(t.cfg.baseAttributes(),
		attribute.String("http.request.method", req.Method),
		attribute.String("url.full", redactedURL(req.URL)),
		attribute.String("url.path", req.URL.EscapedPath()),
	)
	attrs = append(attrs, serverAttributes(req)...)
	if req.ContentLength > 0 {
		attrs = append(attrs, attribute.Int64("http.request.body.size", req.ContentLength))
	}
	if ua := req.UserAgent(); ua != "" {
		attrs = append(attrs, attribute.String("user_agent.original", ua))
	}
	return attrs
}

func (t *otelTransport) metricAttributes(req *http.Request) []attribute.KeyValue {
	attrs := append(t.cfg.baseAttributes(), attribute.String("http.request.method", req.Method))
	return append(attrs, serverAttributes(req)...)
}

func serverAttributes(req *http.Request) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if host := req.URL.Hostname(); host != "" {
		attrs = append(attrs, attribute.String("server.address", host))
	}
	port := req.URL.Port()
	switch {
	case port != "":
		if p, err := strconv.Atoi(port); err == nil {
			attrs = append(attrs, attribute.Int("server.port", p))
		}
	case req.URL.Scheme == "https":
		attrs = append(attrs, attribute.Int("server.port", 443))
	case req.URL.Scheme == "http":
		attrs = append(attrs, attribute.Int("server.port", 80))
	}
	return attrs
}

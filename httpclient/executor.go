package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/http/httpguts"
)

const (
	mediaTypeJSON = "application/json"
	acceptAny     = "*/*"
)

// Call outcomes reported to metrics. Non-2xx responses report their
// status class instead.
const (
	outcomeOK             = "ok"
	outcomeDecodeError    = "decode_error"
	outcomeTransportError = "transport_error"
)

// executor runs the build, send, evaluate and classify loop shared by
// Client and AsyncClient.
type executor struct {
	cfg      *internalConfig
	baseURL  *url.URL
	strategy Strategy

	// flights is nil unless request coalescing is enabled.
	flights *coalescer
}

func newExecutor(cfg *internalConfig, baseURL *url.URL, strategy Strategy) *executor {
	e := &executor{cfg: cfg, baseURL: baseURL, strategy: strategy}
	if cfg.coalesce {
		e.flights = &coalescer{}
	}
	return e
}

// preparedRequest is built once per call and cloned for every attempt.
type preparedRequest struct {
	template *http.Request
	method   string
	path     string
	body     []byte
	timeout  time.Duration
	deadline time.Duration
	eligible bool
}

func (p *preparedRequest) attemptRequest(ctx context.Context) *http.Request {
	req := p.template.Clone(ctx)
	if len(p.body) > 0 {
		body := p.body
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		req.ContentLength = int64(len(body))
	}
	return req
}

func (e *executor) executeJSON(ctx context.Context, call Call, out any) error {
	return e.run(ctx, call, nil, mediaTypeJSON, func(p *preparedRequest, raw *rawResponse) error {
		return e.decodeJSON(p, raw, out)
	})
}

func (e *executor) executeMultipartJSON(ctx context.Context, call Call, form *Form, out any) error {
	if form == nil {
		form = NewForm()
	}
	return e.run(ctx, call, form, mediaTypeJSON, func(p *preparedRequest, raw *rawResponse) error {
		return e.decodeJSON(p, raw, out)
	})
}

func (e *executor) executeBytes(ctx context.Context, call Call) ([]byte, error) {
	var body []byte
	err := e.run(ctx, call, nil, acceptAny, func(_ *preparedRequest, raw *rawResponse) error {
		body = raw.body
		if e.flights != nil {
			// Coalesced callers share raw.body.
			body = bytes.Clone(raw.body)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// run executes one call and hands a 2xx response to onSuccess.
func (e *executor) run(
	ctx context.Context,
	call Call,
	form *Form,
	accept string,
	onSuccess func(*preparedRequest, *rawResponse) error,
) error {
	start := time.Now()

	ctx, span := e.cfg.Tracer.Start(ctx, "metabase.request",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(e.cfg.baseAttributes()...),
	)
	defer span.End()

	p, err := e.prepare(ctx, call, form, accept)
	if err != nil {
		return e.fail(span, err)
	}
	span.SetAttributes(
		attribute.String("http.request.method", p.method),
		attribute.String("url.path", p.path),
		attribute.Bool("metabase.retry_eligible", p.eligible),
	)

	raw, err := e.fetch(ctx, p)
	if err != nil {
		e.finish(ctx, span, p.method, outcomeTransportError, start)
		return e.fail(span, err)
	}

	span.SetAttributes(attribute.Int("http.response.status_code", raw.status))
	if id := requestID(raw.header); id != "" {
		span.SetAttributes(attribute.String("metabase.request_id", id))
	}

	if !raw.isSuccess() {
		e.finish(ctx, span, p.method, statusClass(raw.status), start)
		return e.fail(span, e.responseError(p, raw))
	}

	if err := onSuccess(p, raw); err != nil {
		e.finish(ctx, span, p.method, outcomeDecodeError, start)
		return e.fail(span, err)
	}
	e.finish(ctx, span, p.method, outcomeOK, start)
	return nil
}

// prepare builds the URL, headers and body. Failures are never retried.
func (e *executor) prepare(ctx context.Context, call Call, form *Form, accept string) (*preparedRequest, error) {
	method := strings.ToUpper(strings.TrimSpace(call.Method))
	if method == "" {
		method = http.MethodGet
	}

	u := BuildURL(e.baseURL, call.Segments)
	if call.Query != nil {
		q, err := EncodeQuery(call.Query)
		if err != nil {
			return nil, err
		}
		u.RawQuery = q
	}

	var (
		body        []byte
		contentType string
	)
	switch {
	case form != nil:
		encoded, ct, err := form.encode()
		if err != nil {
			return nil, err
		}
		body, contentType = encoded, ct
	case call.Body != nil:
		switch v := call.Body.(type) {
		case []byte:
			body = v
		case json.RawMessage:
			body = v
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, newSerializeError("failed to encode request body", err)
			}
			body = encoded
		}
		contentType = mediaTypeJSON
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, newBuildError("failed to build request", err)
	}
	req.URL = u

	if err := e.cfg.auth.Apply(req.Header); err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	if key := call.Options.IdempotencyKey; !key.IsZero() {
		if !httpguts.ValidHeaderFieldValue(key.String()) {
			return nil, newHeaderError(HeaderIdempotencyKey, errInvalidHeaderValue)
		}
		req.Header.Set(HeaderIdempotencyKey, key.String())
	}
	if e.cfg.userAgent != "" {
		req.Header.Set("User-Agent", e.cfg.userAgent)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if err := e.cfg.interceptors.apply(req); err != nil {
		var mbErr *Error
		if errors.As(err, &mbErr) {
			return nil, err
		}
		return nil, newBuildError("request interceptor failed", err)
	}

	timeout := call.Options.Timeout
	if timeout <= 0 {
		timeout = e.cfg.httpConfig.RequestTimeout
	}
	deadline := call.Options.CallTimeout
	if deadline <= 0 {
		deadline = e.cfg.httpConfig.CallTimeout
	}

	return &preparedRequest{
		template: req,
		method:   method,
		path:     u.EscapedPath(),
		body:     body,
		timeout:  timeout,
		deadline: deadline,
		eligible: CanRetry(method, call.Options),
	}, nil
}

// fetch executes p, sharing the execution with identical in-flight calls
// when coalescing is enabled.
func (e *executor) fetch(ctx context.Context, p *preparedRequest) (*rawResponse, error) {
	if e.flights == nil || !coalescable(p.method) {
		return e.execute(ctx, p)
	}

	key := GenerateCoalesceKey(p.method, p.template.URL.String(), nil) + "|" + p.template.Header.Get("Accept")
	raw, shared, err := e.flights.do(ctx, key, func(ctx context.Context) (*rawResponse, error) {
		return e.execute(ctx, p)
	})
	if shared {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("metabase.coalesced", true))
	}
	if err != nil {
		var mbErr *Error
		if !errors.As(err, &mbErr) {
			err = newTransportError(p.method, p.path, err)
		}
		return nil, err
	}
	return raw, nil
}

// execute sends attempts until a response is final or retries run out.
// The call deadline also bounds coalesced flights, which ignore the
// caller's cancellation.
func (e *executor) execute(ctx context.Context, p *preparedRequest) (*rawResponse, error) {
	if p.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.deadline)
		defer cancel()
	}
	state := newRetryState(e.cfg.retryPolicy, p.eligible)

	for attempt := uint(1); ; attempt++ {
		raw, delay, err := e.attempt(ctx, p, state, attempt)
		if err != nil {
			return nil, err
		}
		if raw != nil {
			return raw, nil
		}

		if err := e.strategy.Sleep(ctx, delay); err != nil {
			return nil, newTransportError(p.method, p.path, err)
		}
	}
}

// attempt performs one exchange under its own timeout. It returns either
// a final response, a retry delay (nil response, nil error) or an error.
// The body is read before the attempt context is released.
func (e *executor) attempt(
	ctx context.Context,
	p *preparedRequest,
	state *retryState,
	n uint,
) (*rawResponse, time.Duration, error) {
	attemptCtx, cancel := withAttemptTimeout(ctx, p.timeout)
	defer cancel()

	req := p.attemptRequest(attemptCtx)
	e.noteAttempt(ctx, p, req, n)

	start := time.Now()
	resp, err := e.strategy.Send(attemptCtx, req)
	if err != nil {
		// A done caller context is final, whatever the cause looks like.
		if ctx.Err() == nil {
			if d := state.decide(IsRetryableTransportError(err), 0, false); d.Retry {
				e.noteRetry(ctx, p, n, d.Delay, classifyError(err))
				return nil, d.Delay, nil
			}
		}
		return nil, 0, newTransportError(p.method, p.path, err)
	}
	if e.cfg.debug {
		logResponse(e.cfg.Logger, resp, time.Since(start))
	}

	if IsRetryableStatus(resp.StatusCode) {
		after, ok := retryAfterFromHeader(resp.Header, time.Now())
		if d := state.decide(true, after, ok); d.Retry {
			drainAndClose(resp.Body)
			e.noteRetry(ctx, p, n, d.Delay, strconv.Itoa(resp.StatusCode))
			return nil, d.Delay, nil
		}
	}

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, newTransportError(p.method, p.path, err)
	}
	return &rawResponse{status: resp.StatusCode, header: resp.Header, body: body}, 0, nil
}

func withAttemptTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func (e *executor) noteAttempt(ctx context.Context, p *preparedRequest, req *http.Request, n uint) {
	trace.SpanFromContext(ctx).AddEvent("metabase.attempt",
		trace.WithAttributes(attribute.Int("metabase.attempt", int(n))))
	if e.cfg.observer != nil {
		e.cfg.observer.ObserveAttempt(p.method)
	}
	if e.cfg.debug {
		logAttempt(e.cfg.Logger, req, n)
	}
	if e.cfg.generateCurl {
		e.cfg.Logger.Debug().Str("curl", generateCurlCommand(req, p.body)).Msg("metabase request curl")
	}
}

func (e *executor) noteRetry(ctx context.Context, p *preparedRequest, n uint, delay time.Duration, reason string) {
	trace.SpanFromContext(ctx).AddEvent("metabase.retry", trace.WithAttributes(
		attribute.Int("metabase.attempt", int(n)),
		attribute.Int64("metabase.retry.delay_ms", delay.Milliseconds()),
		attribute.String("metabase.retry.reason", reason),
	))
	e.cfg.Metrics.recordRetry(ctx, p.method, reason, e.cfg.baseAttributes())
	if e.cfg.debug {
		logRetry(e.cfg.Logger, p.method, n, delay, reason)
	}
}

func (e *executor) finish(ctx context.Context, span trace.Span, method, outcome string, start time.Time) {
	d := time.Since(start)
	span.SetAttributes(attribute.String("metabase.outcome", outcome))
	e.cfg.Metrics.recordCall(ctx, method, outcome, d, e.cfg.baseAttributes())
	if e.cfg.observer != nil {
		e.cfg.observer.ObserveResult(method, outcome, d)
	}
}

// fail records err on span and returns it unchanged.
func (e *executor) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var mbErr *Error
	if errors.As(err, &mbErr) {
		span.SetAttributes(attribute.String("metabase.error.kind", mbErr.Kind.String()))
		if e.cfg.debug {
			logFailure(e.cfg.Logger, mbErr)
		}
	}
	return err
}

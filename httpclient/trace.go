package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http/httptrace"
	"strings"
	"sync"
	"syscall"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Values of the error.type attribute for attempts that got no response.
const (
	ErrorTypeTimeout           = "timeout"
	ErrorTypeConnectionRefused = "connection_refused"
	ErrorTypeConnectionReset   = "connection_reset"
	ErrorTypeDNSError          = "dns_error"
	ErrorTypeTLSError          = "tls_error"
	ErrorTypeCancelled         = "cancelled"
	ErrorTypeCircuitOpen       = "circuit_open"
	ErrorTypeRateLimited       = "client_rate_limited"
	ErrorTypeEOF               = "eof"
	ErrorTypeUnknown           = "unknown"
)

// networkTrace collects connection phase timestamps for one attempt. Dial
// callbacks may fire on other goroutines, hence the mutex.
type networkTrace struct {
	mu sync.Mutex

	dnsStart, dnsDone         time.Time
	connectStart, connectDone time.Time
	tlsStart, tlsDone         time.Time
	gotConn                   time.Time
	wroteRequest              time.Time
	firstByte                 time.Time

	connReused bool
	remoteAddr string
	tlsVersion string
}

func (nt *networkTrace) clientTrace() *httptrace.ClientTrace {
	stamp := func(t *time.Time) {
		nt.mu.Lock()
		*t = time.Now()
		nt.mu.Unlock()
	}
	return &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			nt.mu.Lock()
			defer nt.mu.Unlock()
			nt.gotConn = time.Now()
			nt.connReused = info.Reused
			if info.Conn != nil && info.Conn.RemoteAddr() != nil {
				nt.remoteAddr = info.Conn.RemoteAddr().String()
			}
		},
		DNSStart:          func(httptrace.DNSStartInfo) { stamp(&nt.dnsStart) },
		DNSDone:           func(httptrace.DNSDoneInfo) { stamp(&nt.dnsDone) },
		ConnectStart:      func(_, _ string) { stamp(&nt.connectStart) },
		ConnectDone:       func(_, _ string, _ error) { stamp(&nt.connectDone) },
		TLSHandshakeStart: func() { stamp(&nt.tlsStart) },
		TLSHandshakeDone: func(state tls.ConnectionState, _ error) {
			nt.mu.Lock()
			defer nt.mu.Unlock()
			nt.tlsDone = time.Now()
			nt.tlsVersion = tls.VersionName(state.Version)
		},
		WroteRequest:         func(httptrace.WroteRequestInfo) { stamp(&nt.wroteRequest) },
		GotFirstResponseByte: func() { stamp(&nt.firstByte) },
	}
}

func phase(start, end time.Time) (time.Duration, bool) {
	if start.IsZero() || end.IsZero() {
		return 0, false
	}
	return end.Sub(start), true
}

// annotate adds the phases as span events and records their metrics.
func (nt *networkTrace) annotate(ctx context.Context, span trace.Span, m *metrics, attrs []attribute.KeyValue) {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	if d, ok := phase(nt.dnsStart, nt.dnsDone); ok {
		span.AddEvent("dns.done", trace.WithTimestamp(nt.dnsDone),
			trace.WithAttributes(attribute.Float64("dns.duration_ms", float64(d.Milliseconds()))))
		m.recordDNSDuration(ctx, d, attrs)
	}
	if d, ok := phase(nt.connectStart, nt.connectDone); ok {
		span.AddEvent("connect.done", trace.WithTimestamp(nt.connectDone),
			trace.WithAttributes(attribute.Float64("connect.duration_ms", float64(d.Milliseconds()))))
		m.recordConnectionDuration(ctx, d, attrs)
	}
	if d, ok := phase(nt.tlsStart, nt.tlsDone); ok {
		span.AddEvent("tls.done", trace.WithTimestamp(nt.tlsDone),
			trace.WithAttributes(
				attribute.Float64("tls.duration_ms", float64(d.Milliseconds())),
				attribute.String("tls.protocol.version", nt.tlsVersion),
			))
		m.recordTLSDuration(ctx, d, attrs)
	}
	if !nt.gotConn.IsZero() {
		span.AddEvent("got_conn", trace.WithTimestamp(nt.gotConn),
			trace.WithAttributes(
				attribute.Bool("connection.reused", nt.connReused),
				attribute.String("network.peer.address", nt.remoteAddr),
			))
	}
	if d, ok := phase(nt.wroteRequest, nt.firstByte); ok {
		span.AddEvent("got_first_response_byte", trace.WithTimestamp(nt.firstByte),
			trace.WithAttributes(attribute.Float64("ttfb_ms", float64(d.Milliseconds()))))
		m.recordTTFB(ctx, d, attrs)
	}
}

// classifyError returns the error.type value for an attempt error.
func classifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return ErrorTypeCancelled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, errReadTimeout):
		return ErrorTypeTimeout
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ErrorTypeCircuitOpen
	case errors.Is(err, ErrRateLimitExceeded):
		return ErrorTypeRateLimited
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorTypeDNSError
	}
	var certErr *tls.CertificateVerificationError
	var recordErr *tls.RecordHeaderError
	if errors.As(err, &certErr) || errors.As(err, &recordErr) {
		return ErrorTypeTLSError
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrorTypeConnectionRefused
	case errors.Is(err, syscall.ECONNRESET):
		return ErrorTypeConnectionReset
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ErrorTypeEOF
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"):
		return ErrorTypeTimeout
	case strings.Contains(errStr, "connection refused"):
		return ErrorTypeConnectionRefused
	case strings.Contains(errStr, "connection reset"):
		return ErrorTypeConnectionReset
	case strings.Contains(errStr, "no such host"):
		return ErrorTypeDNSError
	case strings.Contains(errStr, "x509"), strings.Contains(errStr, "tls:"):
		return ErrorTypeTLSError
	}
	return ErrorTypeUnknown
}

// setSpanError marks span as failed with err.
func setSpanError(span trace.Span, err error, errorType string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if errorType != "" {
		span.SetAttributes(attribute.String("error.type", errorType))
	}
}

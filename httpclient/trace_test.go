package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http/httptrace"
	"syscall"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "given nil, then empty", err: nil, want: ""},
		{name: "given canceled context, then cancelled", err: context.Canceled, want: ErrorTypeCancelled},
		{
			name: "given wrapped cancellation, then cancelled",
			err:  errors.Join(errors.New("request failed"), context.Canceled),
			want: ErrorTypeCancelled,
		},
		{name: "given deadline exceeded, then timeout", err: context.DeadlineExceeded, want: ErrorTypeTimeout},
		{name: "given stalled body read, then timeout", err: readTimeoutError{}, want: ErrorTypeTimeout},
		{name: "given open breaker, then circuit_open", err: gobreaker.ErrOpenState, want: ErrorTypeCircuitOpen},
		{name: "given half-open overflow, then circuit_open", err: gobreaker.ErrTooManyRequests, want: ErrorTypeCircuitOpen},
		{name: "given client limiter, then client_rate_limited", err: ErrRateLimitExceeded, want: ErrorTypeRateLimited},
		{
			name: "given DNS error, then dns_error",
			err:  &net.DNSError{Err: "no such host", Name: "metabase.internal"},
			want: ErrorTypeDNSError,
		},
		{
			name: "given TLS record header error, then tls_error",
			err:  &tls.RecordHeaderError{Msg: "tls: first record does not look like a TLS handshake"},
			want: ErrorTypeTLSError,
		},
		{
			name: "given ECONNREFUSED, then connection_refused",
			err:  &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED},
			want: ErrorTypeConnectionRefused,
		},
		{name: "given ECONNRESET, then connection_reset", err: fmt.Errorf("read: %w", syscall.ECONNRESET), want: ErrorTypeConnectionReset},
		{name: "given unexpected EOF, then eof", err: io.ErrUnexpectedEOF, want: ErrorTypeEOF},
		{name: "given timeout text, then timeout", err: errors.New("connection timeout"), want: ErrorTypeTimeout},
		{name: "given x509 text, then tls_error", err: errors.New("x509: certificate signed by unknown authority"), want: ErrorTypeTLSError},
		{name: "given unknown error, then unknown", err: errors.New("something else"), want: ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyError(tt.err))
		})
	}
}

func TestNetworkTrace_ClientTrace(t *testing.T) {
	t.Run("given hooks fired, then stamps each phase", func(t *testing.T) {
		nt := &networkTrace{}
		ct := nt.clientTrace()

		ct.DNSStart(httptrace.DNSStartInfo{Host: "metabase.test"})
		ct.DNSDone(httptrace.DNSDoneInfo{})
		ct.ConnectStart("tcp", "10.0.0.1:443")
		ct.ConnectDone("tcp", "10.0.0.1:443", nil)
		ct.TLSHandshakeStart()
		ct.TLSHandshakeDone(tls.ConnectionState{Version: tls.VersionTLS13}, nil)
		ct.GotConn(httptrace.GotConnInfo{Reused: true})
		ct.WroteRequest(httptrace.WroteRequestInfo{})
		ct.GotFirstResponseByte()

		assert.False(t, nt.dnsDone.IsZero())
		assert.False(t, nt.connectDone.IsZero())
		assert.False(t, nt.firstByte.IsZero())
		assert.True(t, nt.connReused)
		assert.Equal(t, "TLS 1.3", nt.tlsVersion)
	})
}

func TestNetworkTrace_Annotate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		trace      *networkTrace
		wantEvents []string
		nilMetrics bool
	}{
		{
			name: "given DNS and TTFB phases, then adds both events",
			trace: &networkTrace{
				dnsStart:     now,
				dnsDone:      now.Add(5 * time.Millisecond),
				wroteRequest: now.Add(10 * time.Millisecond),
				firstByte:    now.Add(60 * time.Millisecond),
			},
			wantEvents: []string{"dns.done", "got_first_response_byte"},
		},
		{
			name:       "given empty trace, then adds no events",
			trace:      &networkTrace{},
			wantEvents: nil,
		},
		{
			name: "given nil metrics, then still annotates the span",
			trace: &networkTrace{
				connectStart: now,
				connectDone:  now.Add(time.Millisecond),
			},
			wantEvents: []string{"connect.done"},
			nilMetrics: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			span, exporter := startTestSpan(t)

			var m *metrics
			if !tt.nilMetrics {
				m, _ = newTestMetrics(t)
			}

			require.NotPanics(t, func() {
				tt.trace.annotate(context.Background(), span, m, nil)
			})
			span.End()

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)

			var got []string
			for _, ev := range spans[0].Events {
				got = append(got, ev.Name)
			}
			assert.Equal(t, tt.wantEvents, got)
		})
	}
}

package httpclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
)

// IsIdempotentMethod reports whether method is safe to repeat:
// GET, HEAD, PUT, DELETE and OPTIONS.
func IsIdempotentMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	default:
		return false
	}
}

// CanRetry reports whether a call may be re-sent at all. Idempotent methods
// always may; POST only when the caller supplied an idempotency key.
func CanRetry(method string, opts RequestOptions) bool {
	if IsIdempotentMethod(method) {
		return true
	}
	return strings.EqualFold(method, http.MethodPost) && !opts.IdempotencyKey.IsZero()
}

// IsRetryableStatus reports whether a response status is transient:
// 429, 502, 503 and 504. A 500 is treated as a server bug and not retried.
func IsRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsRetryableTransportError reports whether err is a connect failure or a
// timeout.
//
// Retries on:
//   - Dial failures (refused, reset, unreachable network or host)
//   - Temporary DNS failures
//   - Timeouts (net.Error, os.ErrDeadlineExceeded, an expired per-attempt deadline)
//
// Does NOT retry on:
//   - Cancellation (context.Canceled)
//   - TLS certificate errors
//   - Unknown hosts (NXDOMAIN)
//   - Anything else, such as malformed requests
//
// The caller's own deadline is checked by the executor before this is
// consulted, so context.DeadlineExceeded here means the attempt timed out.
func IsRetryableTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if isPermanentError(err) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}

	return containsTransientPattern(err)
}

// containsTransientPattern is a fallback for errors wrapped without %w.
func containsTransientPattern(err error) bool {
	errStr := strings.ToLower(err.Error())
	patterns := []string{
		"connection refused",
		"connection reset",
		"network is unreachable",
		"no route to host",
		"i/o timeout",
		"tls handshake timeout",
	}
	for _, p := range patterns {
		if strings.Contains(errStr, p) {
			return true
		}
	}
	return false
}

// isPermanentError returns true for errors that cannot succeed on retry.
func isPermanentError(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}

	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &unknownAuth) {
		return true
	}

	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}

	if errors.Is(err, syscall.EACCES) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "x509:") || strings.Contains(errStr, "certificate")
}

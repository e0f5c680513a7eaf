package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Kind identifies which member of the error taxonomy an *Error belongs to.
type Kind int

const (
	// KindInvalidConfig reports a bad base URL or a header value that cannot
	// be sent. Never retried.
	KindInvalidConfig Kind = iota + 1

	// KindBuild reports a failure assembling the request (URL, multipart
	// form, interceptor).
	KindBuild

	// KindSerialize reports a query or body that could not be serialized.
	KindSerialize

	// KindTransport reports a connection, timeout or I/O failure. It carries
	// no status code.
	KindTransport

	// KindAuth is returned for 401 and 403 responses.
	KindAuth

	// KindNotFound is returned for 404 responses.
	KindNotFound

	// KindConflict is returned for 409 and 412 responses.
	KindConflict

	// KindRateLimited is returned for 429 responses.
	KindRateLimited

	// KindAPI is returned for every other non-2xx response.
	KindAPI

	// KindDecode is returned when a 2xx body does not match the expected shape.
	KindDecode
)

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidConfig:
		return "invalid_config"
	case KindBuild:
		return "build"
	case KindSerialize:
		return "serialize"
	case KindTransport:
		return "transport"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindAPI:
		return "api"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Sentinel errors for errors.Is checks. Each matches every *Error of the
// corresponding Kind.
var (
	ErrInvalidConfig = errors.New("invalid client configuration")
	ErrBuild         = errors.New("failed to build request")
	ErrSerialize     = errors.New("failed to serialize request")
	ErrTransport     = errors.New("transport failure")
	ErrAuth          = errors.New("authentication failed")
	ErrNotFound      = errors.New("resource not found")
	ErrConflict      = errors.New("conflict")
	ErrRateLimited   = errors.New("rate limited")
	ErrAPI           = errors.New("api error")
	ErrDecode        = errors.New("failed to decode response")
)

var kindSentinels = map[Kind]error{
	KindInvalidConfig: ErrInvalidConfig,
	KindBuild:         ErrBuild,
	KindSerialize:     ErrSerialize,
	KindTransport:     ErrTransport,
	KindAuth:          ErrAuth,
	KindNotFound:      ErrNotFound,
	KindConflict:      ErrConflict,
	KindRateLimited:   ErrRateLimited,
	KindAPI:           ErrAPI,
	KindDecode:        ErrDecode,
}

// Error is the single error type returned by the execution engine.
//
// Branch on failure type with errors.Is against the sentinels above, or
// extract the details with errors.As:
//
//	var apiErr *httpclient.Error
//	if errors.As(err, &apiErr) && apiErr.Kind == httpclient.KindRateLimited {
//	    time.Sleep(apiErr.RetryAfter)
//	}
//
// Error() never includes Body or Snippet, and %#v redacts both.
type Error struct {
	Kind Kind

	// Method and Path describe the request. Path is the escaped URL path.
	Method string
	Path   string

	// Status is the HTTP status code. Zero for kinds without a response.
	Status int

	// RequestID is the first non-empty X-Request-Id, X-Amzn-Requestid or
	// X-Correlation-Id response header.
	RequestID string

	// Message is the "message" field of a JSON error body, or a description
	// for configuration and build failures.
	Message string

	// Body is the error response body when it parsed as JSON.
	Body json.RawMessage

	// Snippet is a bounded, possibly redacted prefix of the response body.
	Snippet string

	// RetryAfter is the resolved Retry-After header of a 429 response.
	// Valid only when HasRetryAfter is true.
	RetryAfter    time.Duration
	HasRetryAfter bool

	// DecodePath locates the decode failure within the JSON document.
	DecodePath string

	// Header names the offending header for KindInvalidConfig header errors.
	Header string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindInvalidConfig:
		if e.Header != "" {
			return "invalid header value for " + e.Header
		}
		return e.withCause("invalid client configuration: " + e.Message)
	case KindBuild:
		return e.withCause("failed to build request: " + e.Message)
	case KindSerialize:
		return e.withCause("failed to serialize request: " + e.Message)
	case KindTransport:
		return e.withCause(fmt.Sprintf("transport error (method=%s, path=%s)", e.Method, e.Path))
	case KindDecode:
		var b strings.Builder
		fmt.Fprintf(&b, "decode error (status=%d, method=%s, path=%s", e.Status, e.Method, e.Path)
		if e.RequestID != "" {
			b.WriteString(", request_id=" + e.RequestID)
		}
		if e.DecodePath != "" {
			b.WriteString(", decode_path=" + e.DecodePath)
		}
		b.WriteString(")")
		return e.withCause(b.String())
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "%s (status=%d, method=%s, path=%s", e.label(), e.Status, e.Method, e.Path)
		if e.RequestID != "" {
			b.WriteString(", request_id=" + e.RequestID)
		}
		if e.Message != "" {
			b.WriteString(", message=" + e.Message)
		}
		if e.HasRetryAfter {
			b.WriteString(", retry_after=" + e.RetryAfter.String())
		}
		b.WriteString(")")
		return b.String()
	}
}

func (e *Error) label() string {
	switch e.Kind {
	case KindAuth:
		return "auth error"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate limited"
	default:
		return "api error"
	}
}

func (e *Error) withCause(msg string) string {
	if e.Err == nil {
		return msg
	}
	return msg + ": " + e.Err.Error()
}

// GoString keeps %#v from printing the body or snippet.
func (e *Error) GoString() string {
	return fmt.Sprintf(
		"&httpclient.Error{Kind:%s, Method:%q, Path:%q, Status:%d, RequestID:%q, Message:%q, Body:<redacted>, Snippet:<redacted>}",
		e.Kind, e.Method, e.Path, e.Status, e.RequestID, e.Message,
	)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's Kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// StatusCode returns the HTTP status, or 0 when no response was received.
func (e *Error) StatusCode() int {
	return e.Status
}

// AsError unwraps err into an *Error.
func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// ClassifyStatus maps a non-success HTTP status to a response-classified
// Kind. The mapping is total: any status not listed is KindAPI.
func ClassifyStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict, http.StatusPreconditionFailed:
		return KindConflict
	case http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindAPI
	}
}

// statusClass buckets a status code for metric labels.
func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}

func newConfigError(msg string, cause error) *Error {
	return &Error{Kind: KindInvalidConfig, Message: msg, Err: cause}
}

func newHeaderError(header string, cause error) *Error {
	return &Error{Kind: KindInvalidConfig, Header: header, Err: cause}
}

func newBuildError(msg string, cause error) *Error {
	return &Error{Kind: KindBuild, Message: msg, Err: cause}
}

func newSerializeError(msg string, cause error) *Error {
	return &Error{Kind: KindSerialize, Message: msg, Err: cause}
}

func newTransportError(method, path string, cause error) *Error {
	return &Error{Kind: KindTransport, Method: method, Path: path, Err: cause}
}

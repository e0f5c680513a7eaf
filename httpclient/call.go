package httpclient

import (
	"time"

	"github.com/google/uuid"
)

// HeaderIdempotencyKey carries the caller's idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

// IdempotencyKey marks a POST as safe to retry.
type IdempotencyKey string

// NewIdempotencyKey returns a random UUIDv4 key.
func NewIdempotencyKey() IdempotencyKey {
	return IdempotencyKey(uuid.NewString())
}

// IsZero reports whether no key is set.
func (k IdempotencyKey) IsZero() bool { return k == "" }

func (k IdempotencyKey) String() string { return string(k) }

// RequestOptions tune a single call.
type RequestOptions struct {
	// Timeout bounds each attempt. Zero uses the client's RequestTimeout.
	Timeout time.Duration

	// CallTimeout bounds the whole call, retries included. Zero uses the
	// client's CallTimeout.
	CallTimeout time.Duration

	// IdempotencyKey is sent as Idempotency-Key and makes POST retryable.
	IdempotencyKey IdempotencyKey
}

// Call describes one logical request handed to the executor.
type Call struct {
	// Method is the HTTP method, e.g. http.MethodGet.
	Method string

	// Segments are appended to the base URL, each percent-encoded.
	Segments []string

	// Query is encoded with EncodeQuery. Nil means no query string.
	Query any

	// Body is JSON-encoded when non-nil. A []byte or json.RawMessage body
	// is sent as is.
	Body any

	Options RequestOptions
}

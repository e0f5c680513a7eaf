package httpclient

import (
	"context"
	"time"
)

// RequestBuilder assembles a Call for a blocking Client.
//
// Create a RequestBuilder using Client.Request():
//
//	var dashboard map[string]any
//	err := client.Request(http.MethodGet).
//	    Path("api", "dashboard", strconv.Itoa(id)).
//	    Timeout(5 * time.Second).
//	    JSON(ctx, &dashboard)
//
// A RequestBuilder is not safe for concurrent use.
type RequestBuilder struct {
	client *Client
	call   Call
}

// Path appends path segments. Each segment is escaped on its own, so a
// segment containing "/" stays a single segment.
func (rb *RequestBuilder) Path(segments ...string) *RequestBuilder {
	rb.call.Segments = append(rb.call.Segments, segments...)
	return rb
}

// Query sets the query parameters, encoded with EncodeQuery: a struct or
// map for key/value parameters, or a list of [key, value] pairs.
//
//	client.Request(http.MethodGet).
//	    Path("api", "search").
//	    Query(map[string]any{"q": "revenue", "models": []string{"card", "dashboard"}})
func (rb *RequestBuilder) Query(v any) *RequestBuilder {
	rb.call.Query = v
	return rb
}

// Body sets the JSON request body. []byte and json.RawMessage are sent as
// is.
func (rb *RequestBuilder) Body(v any) *RequestBuilder {
	rb.call.Body = v
	return rb
}

// IdempotencyKey sends key as Idempotency-Key, which also makes a POST
// eligible for retries.
func (rb *RequestBuilder) IdempotencyKey(key IdempotencyKey) *RequestBuilder {
	rb.call.Options.IdempotencyKey = key
	return rb
}

// CallTimeout overrides the client's CallTimeout for this call.
func (rb *RequestBuilder) CallTimeout(d time.Duration) *RequestBuilder {
	rb.call.Options.CallTimeout = d
	return rb
}

// Timeout overrides the client's per-attempt RequestTimeout.
func (rb *RequestBuilder) Timeout(d time.Duration) *RequestBuilder {
	rb.call.Options.Timeout = d
	return rb
}

// Options replaces all per-call options.
func (rb *RequestBuilder) Options(opts RequestOptions) *RequestBuilder {
	rb.call.Options = opts
	return rb
}

// Call returns the assembled Call.
func (rb *RequestBuilder) Call() Call {
	return rb.call
}

// JSON executes the call and decodes the response into out.
func (rb *RequestBuilder) JSON(ctx context.Context, out any) error {
	return rb.client.ExecuteJSON(ctx, rb.call, out)
}

// Bytes executes the call and returns the raw response body.
func (rb *RequestBuilder) Bytes(ctx context.Context) ([]byte, error) {
	return rb.client.ExecuteBytes(ctx, rb.call)
}

// Multipart executes the call with form as the body and decodes the
// response into out.
func (rb *RequestBuilder) Multipart(ctx context.Context, form *Form, out any) error {
	return rb.client.ExecuteMultipartJSON(ctx, rb.call, form, out)
}

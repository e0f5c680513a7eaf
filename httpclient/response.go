package httpclient

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// requestIDHeaders are checked in order; the first non-empty value wins.
var requestIDHeaders = []string{"X-Request-Id", "X-Amzn-Requestid", "X-Correlation-Id"}

func requestID(h http.Header) string {
	for _, name := range requestIDHeaders {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

// rawResponse is the final, fully read response of a call.
type rawResponse struct {
	status int
	header http.Header
	body   []byte
}

func (r *rawResponse) isSuccess() bool {
	return r.status >= 200 && r.status < 300
}

// decodeJSON decodes a successful body into out. An empty or whitespace
// body decodes as null.
func (e *executor) decodeJSON(p *preparedRequest, raw *rawResponse, out any) error {
	if out == nil {
		return nil
	}
	data := raw.body
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("null")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{
			Kind:       KindDecode,
			Method:     p.method,
			Path:       p.path,
			Status:     raw.status,
			RequestID:  requestID(raw.header),
			DecodePath: decodePath(err, data, out),
			Snippet:    e.cfg.snippet.capture(raw.body),
			Err:        err,
		}
	}
	return nil
}

// responseError classifies a non-2xx response.
func (e *executor) responseError(p *preparedRequest, raw *rawResponse) *Error {
	apiErr := &Error{
		Kind:      ClassifyStatus(raw.status),
		Method:    p.method,
		Path:      p.path,
		Status:    raw.status,
		RequestID: requestID(raw.header),
		Snippet:   e.cfg.snippet.capture(raw.body),
	}

	if len(raw.body) > 0 && json.Valid(raw.body) {
		apiErr.Body = append(json.RawMessage(nil), raw.body...)
		if msg := gjson.GetBytes(raw.body, "message"); msg.Type == gjson.String {
			apiErr.Message = msg.Str
		}
	}

	if apiErr.Kind == KindRateLimited {
		apiErr.RetryAfter, apiErr.HasRetryAfter = retryAfterFromHeader(raw.header, time.Now())
	}
	return apiErr
}

package httpclient

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestInterceptor modifies a request after the executor has set its
// standard headers and before the first attempt is sent. Interceptors run in
// the order they were added; an error aborts the call with a KindBuild error.
//
// Common use cases:
//   - Tenant or routing headers
//   - Correlation IDs
//   - Headers derived from the request context
type RequestInterceptor func(req *http.Request) error

type interceptorChain []RequestInterceptor

func (c interceptorChain) apply(req *http.Request) error {
	for _, interceptor := range c {
		if err := interceptor(req); err != nil {
			return err
		}
	}
	return nil
}

// HeaderInterceptor sets a fixed header on every request.
func HeaderInterceptor(name, value string) RequestInterceptor {
	return func(req *http.Request) error {
		req.Header.Set(name, value)
		return nil
	}
}

// CorrelationIDInterceptor sets headerName to a fresh ID per call. A nil
// idFunc generates random UUIDs. Existing values are left alone.
func CorrelationIDInterceptor(headerName string, idFunc func() string) RequestInterceptor {
	if idFunc == nil {
		idFunc = uuid.NewString
	}
	return func(req *http.Request) error {
		if req.Header.Get(headerName) == "" {
			req.Header.Set(headerName, idFunc())
		}
		return nil
	}
}

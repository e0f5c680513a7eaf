package httpclient

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"sync"
)

// MockResponse is one scripted reply of a MockTransport. A non-nil Err is
// returned instead of a response.
type MockResponse struct {
	Status int
	Body   string
	Header http.Header
	Err    error
}

// MockTransport is an http.RoundTripper for tests. Scripted replies are
// served in order; once they run out the last one repeats. Every request is
// recorded together with its body.
//
//	mock := httpclient.NewMockTransport().
//	    Enqueue(httpclient.MockResponse{Status: 503}).
//	    Enqueue(httpclient.MockResponse{Status: 200, Body: `{"status":"ok"}`})
//	client, _ := httpclient.New("https://metabase.test", httpclient.WithMockTransport(mock))
type MockTransport struct {
	mu        sync.Mutex
	responses []MockResponse
	next      int
	requests  []*http.Request
	bodies    [][]byte
	hook      func(*http.Request)
}

var _ http.RoundTripper = (*MockTransport)(nil)

// NewMockTransport creates an empty MockTransport.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Enqueue appends scripted replies.
func (m *MockTransport) Enqueue(responses ...MockResponse) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
	return m
}

// StubResponse is shorthand for Enqueue with a status and body.
func (m *MockTransport) StubResponse(status int, body string) *MockTransport {
	return m.Enqueue(MockResponse{Status: status, Body: body})
}

// StubError is shorthand for Enqueue with an error.
func (m *MockTransport) StubError(err error) *MockTransport {
	return m.Enqueue(MockResponse{Err: err})
}

// OnRequest sets a hook called for each request before it is answered.
func (m *MockTransport) OnRequest(fn func(*http.Request)) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = fn
	return m
}

// RoundTrip implements http.RoundTripper.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.bodies = append(m.bodies, body)
	hook := m.hook
	if len(m.responses) == 0 {
		m.mu.Unlock()
		return nil, errors.New("no mock response for request: " + req.Method + " " + req.URL.String())
	}
	reply := m.responses[m.next]
	if m.next < len(m.responses)-1 {
		m.next++
	}
	m.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	if reply.Err != nil {
		return nil, reply.Err
	}

	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	header := reply.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		Status:        http.StatusText(status),
		StatusCode:    status,
		Header:        header,
		Body:          io.NopCloser(bytes.NewBufferString(reply.Body)),
		ContentLength: int64(len(reply.Body)),
		Request:       req,
	}, nil
}

// Requests returns all requests made through this transport.
func (m *MockTransport) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request{}, m.requests...)
}

// RequestCount returns the number of requests made.
func (m *MockTransport) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// LastRequest returns the most recent request, or nil if none.
func (m *MockTransport) LastRequest() *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// Body returns the body of the i-th request.
func (m *MockTransport) Body(i int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.bodies) {
		return nil
	}
	return m.bodies[i]
}

// Reset clears recorded requests and scripted replies.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = nil
	m.next = 0
	m.requests = nil
	m.bodies = nil
	m.hook = nil
}

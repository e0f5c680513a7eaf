// Package metabasetest runs an in-process fake Metabase for tests.
//
// Routes are scripted with Handle; every request that reaches the server is
// recorded, matched or not.
//
//	srv := metabasetest.NewServer(t)
//	srv.Handle(http.MethodGet, "/api/health", metabasetest.JSON(http.StatusOK, `{"status":"ok"}`))
//	srv.Handle(http.MethodGet, "/api/card/{id}",
//	    metabasetest.Reply{Status: http.StatusServiceUnavailable},
//	    metabasetest.JSON(http.StatusOK, `{"id":1}`),
//	)
//
//	client, _ := metabase.New(srv.URL())
//
// Routes may be added or rescripted while requests are in flight.
package metabasetest

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Server is a fake Metabase backed by httptest.Server and a chi router.
type Server struct {
	srv    *httptest.Server
	mux    atomic.Pointer[chi.Mux]
	logger zerolog.Logger
	auth   authConfig

	mu       sync.Mutex
	routes   map[string]*route
	handlers []routeHandler
	requests []Request
}

type routeHandler struct {
	method  string
	pattern string
	h       http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger logs every request at debug level. Default: zerolog.Nop().
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAPIKey makes every route except the public ones require key in
// X-API-KEY (or a valid session).
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.auth.apiKeys = append(s.auth.apiKeys, key)
	}
}

// WithSession makes every route except the public ones require token in
// X-Metabase-Session (or a valid API key).
func WithSession(token string) Option {
	return func(s *Server) {
		s.auth.sessions = append(s.auth.sessions, token)
	}
}

// NewServer starts a Server and closes it when t finishes.
func NewServer(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{
		logger: zerolog.Nop(),
		routes: make(map[string]*route),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.Store(s.buildMux())
	handler := chi.Chain(
		s.recovery,
		requestID,
		s.record,
		s.logRequests,
		s.auth.middleware,
	).HandlerFunc(s.dispatch)

	s.srv = httptest.NewServer(handler)
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the base URL, without a trailing slash.
func (s *Server) URL() string {
	return s.srv.URL
}

// Client returns an *http.Client wired to the server.
func (s *Server) Client() *http.Client {
	return s.srv.Client()
}

// Close shuts the server down. It is also called on test cleanup.
func (s *Server) Close() {
	s.srv.Close()
}

// Handle scripts replies for method and a chi pattern such as
// "/api/dashboard/{id}". Replies are served in order and the last one
// repeats. Calling Handle again for the same route replaces its script.
func (s *Server) Handle(method, pattern string, replies ...Reply) {
	if len(replies) == 0 {
		replies = []Reply{{Status: http.StatusOK}}
	}

	key := method + " " + pattern
	s.mu.Lock()
	rt, exists := s.routes[key]
	if !exists {
		rt = &route{}
		s.routes[key] = rt
	}
	rt.reset(replies)
	if !exists {
		s.setHandlerLocked(method, pattern, rt)
	}
	s.mu.Unlock()
}

// HandleFunc registers a custom handler, replacing any earlier one for the
// same route. Requests are still recorded.
func (s *Server) HandleFunc(method, pattern string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.routes, method+" "+pattern)
	s.setHandlerLocked(method, pattern, h)
}

// setHandlerLocked swaps in a new mux holding h. chi routers must not be
// modified while serving, so the table is rebuilt rather than extended.
func (s *Server) setHandlerLocked(method, pattern string, h http.Handler) {
	replaced := false
	for i, rh := range s.handlers {
		if rh.method == method && rh.pattern == pattern {
			s.handlers[i].h = h
			replaced = true
		}
	}
	if !replaced {
		s.handlers = append(s.handlers, routeHandler{method: method, pattern: pattern, h: h})
	}
	s.mux.Store(s.buildMux())
}

func (s *Server) buildMux() *chi.Mux {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeReply(w, JSON(http.StatusNotFound, `{"message":"API endpoint does not exist."}`))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeReply(w, JSON(http.StatusMethodNotAllowed, `{"message":"Method not allowed."}`))
	})
	for _, rh := range s.handlers {
		r.Method(rh.method, rh.pattern, rh.h)
	}
	return r
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	s.mux.Load().ServeHTTP(w, r)
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// LastRequest returns the most recent request. ok is false when none was
// received.
func (s *Server) LastRequest() (req Request, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return Request{}, false
	}
	return s.requests[len(s.requests)-1], true
}

// Count returns how many requests matched method and path exactly.
func (s *Server) Count(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Reset forgets recorded requests. Scripted routes start over from their
// first reply.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
	for _, rt := range s.routes {
		rt.rewind()
	}
}

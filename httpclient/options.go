package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	// scope is the instrumentation scope name for OpenTelemetry.
	scope = "github.com/kroma-labs/metabase-go/httpclient"
)

// =============================================================================
// Config - Transport and Timeout Configuration
// =============================================================================

// Config holds the connection and timeout settings of a client.
// Start from DefaultConfig() and adjust individual fields:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.RequestTimeout = 2 * time.Minute // large dataset exports
//
//	client, err := httpclient.New(baseURL, httpclient.WithConfig(cfg))
type Config struct {
	// =======================================================================
	// Timeouts
	// =======================================================================

	// ConnectTimeout bounds TCP connection establishment.
	//
	// Default: 10s
	ConnectTimeout time.Duration

	// RequestTimeout bounds each attempt, from sending the request to
	// reading the last byte of the response. It is re-applied on every
	// retry. RequestOptions.Timeout overrides it for a single call.
	// Zero disables it.
	//
	// Default: 30s
	RequestTimeout time.Duration

	// CallTimeout bounds a whole call: every attempt and every retry sleep,
	// Retry-After waits included. RequestOptions.CallTimeout overrides it
	// for a single call. Zero leaves the call bounded only by its context.
	//
	// Default: 0
	CallTimeout time.Duration

	// ReadTimeout fails a response body read that makes no progress for
	// this long. Zero disables it.
	//
	// Default: 30s
	ReadTimeout time.Duration

	// TLSHandshakeTimeout is the maximum time to wait for a TLS handshake.
	//
	// Default: 10s
	TLSHandshakeTimeout time.Duration

	// ResponseHeaderTimeout is the time to wait for response headers after
	// the request is written. Zero leaves it to RequestTimeout.
	//
	// Default: 0
	ResponseHeaderTimeout time.Duration

	// ExpectContinueTimeout is how long to wait for "100 Continue".
	//
	// Default: 1s
	ExpectContinueTimeout time.Duration

	// =======================================================================
	// Connection Pool
	// =======================================================================

	// MaxIdleConns caps idle keep-alive connections across all hosts.
	//
	// Default: 100
	MaxIdleConns int

	// MaxIdleConnsPerHost caps idle connections to the Metabase host. A
	// client talks to one host, so this is usually close to MaxIdleConns.
	//
	// Default: 20
	MaxIdleConnsPerHost int

	// MaxConnsPerHost caps idle plus active connections. Zero is unlimited.
	//
	// Default: 100
	MaxConnsPerHost int

	// IdleConnTimeout closes connections idle for longer than this.
	//
	// Default: 90s
	IdleConnTimeout time.Duration

	// KeepAlive is the TCP keep-alive probe interval.
	//
	// Default: 30s
	KeepAlive time.Duration

	// WriteBufferSize and ReadBufferSize size the per-connection buffers.
	//
	// Default: 64KB
	WriteBufferSize int
	ReadBufferSize  int

	// DisableKeepAlives forces a new connection per attempt.
	DisableKeepAlives bool

	// ForceHTTP2 attempts HTTP/2 even with a custom TLS config.
	ForceHTTP2 bool
}

// DefaultConfig returns balanced settings: connect 10s, request 30s and
// read 30s.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:        10 * time.Second,
		RequestTimeout:        30 * time.Second,
		ReadTimeout:           30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
		KeepAlive:           30 * time.Second,

		WriteBufferSize: 64 * 1024,
		ReadBufferSize:  64 * 1024,
	}
}

// HighThroughputConfig suits batch jobs that keep many calls in flight,
// typically through an AsyncClient.
//
// Key differences from DefaultConfig:
//   - Larger pool and unlimited MaxConnsPerHost
//   - Larger buffers
//   - Longer request timeout for big exports
func HighThroughputConfig() Config {
	cfg := DefaultConfig()
	cfg.RequestTimeout = 60 * time.Second
	cfg.MaxIdleConns = 500
	cfg.MaxIdleConnsPerHost = 100
	cfg.MaxConnsPerHost = 0
	cfg.IdleConnTimeout = 120 * time.Second
	cfg.WriteBufferSize = 128 * 1024
	cfg.ReadBufferSize = 128 * 1024
	return cfg
}

// LowLatencyConfig fails fast, for user-facing paths such as embedding
// dashboards.
func LowLatencyConfig() Config {
	cfg := DefaultConfig()
	cfg.ConnectTimeout = 2 * time.Second
	cfg.RequestTimeout = 5 * time.Second
	cfg.ReadTimeout = 5 * time.Second
	cfg.TLSHandshakeTimeout = 5 * time.Second
	cfg.ResponseHeaderTimeout = 3 * time.Second
	cfg.ExpectContinueTimeout = 500 * time.Millisecond
	cfg.MaxIdleConns = 50
	cfg.MaxIdleConnsPerHost = 25
	cfg.MaxConnsPerHost = 50
	cfg.IdleConnTimeout = 60 * time.Second
	cfg.KeepAlive = 15 * time.Second
	cfg.WriteBufferSize = 32 * 1024
	cfg.ReadBufferSize = 32 * 1024
	cfg.ForceHTTP2 = true
	return cfg
}

// ConservativeConfig keeps few connections and small buffers, for
// serverless functions and sidecars.
func ConservativeConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxIdleConns = 20
	cfg.MaxIdleConnsPerHost = 5
	cfg.MaxConnsPerHost = 20
	cfg.IdleConnTimeout = 30 * time.Second
	cfg.WriteBufferSize = 4 * 1024
	cfg.ReadBufferSize = 4 * 1024
	return cfg
}

// =============================================================================
// Internal Configuration
// =============================================================================

// internalConfig is built once by New and never mutated afterwards.
// WithAuth copies it.
type internalConfig struct {
	httpConfig Config

	retryPolicy RetryPolicy
	auth        Auth
	snippet     SnippetConfig
	userAgent   string

	// === Logging ===

	Logger       zerolog.Logger
	debug        bool
	generateCurl bool

	// === OpenTelemetry ===

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	Metrics        *metrics

	// ServiceName is added as "http.client.name" and names the breaker.
	ServiceName string

	// EnableNetworkTrace records DNS, connect and TLS timings. Default: true
	EnableNetworkTrace bool

	// Propagators default to W3C TraceContext and Baggage.
	Propagators propagation.TextMapPropagator

	// observer receives attempt and call outcomes, e.g. Prometheus.
	observer Observer

	// === Transport ===

	TLSConfig            *tls.Config
	ProxyURL             *url.URL
	ProxyFromEnvironment bool

	// baseTransport replaces the pooled http.Transport.
	baseTransport http.RoundTripper

	// MockTransport takes precedence over baseTransport.
	MockTransport *MockTransport

	// strategy replaces the Blocking or Async strategy.
	strategy Strategy

	// === Resilience ===

	Breaker         *BreakerConfig
	breakerOverride CircuitBreaker
	RateLimit       *RateLimitConfig
	coalesce        bool

	interceptors interceptorChain
}

// newConfig applies opts over the defaults.
func newConfig(opts ...Option) *internalConfig {
	cfg := &internalConfig{
		httpConfig:     DefaultConfig(),
		retryPolicy:    DefaultRetryPolicy(),
		snippet:        DefaultSnippetConfig(),
		userAgent:      DefaultUserAgent,
		Logger:         zerolog.Nop(),
		TracerProvider: otel.GetTracerProvider(),
		MeterProvider:  otel.GetMeterProvider(),

		EnableNetworkTrace:   true,
		ProxyFromEnvironment: true,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	// Debug output needs a sink; fall back to stdout.
	if cfg.debug && cfg.Logger.GetLevel() == zerolog.Disabled {
		cfg.Logger = debugLogger
	}

	cfg.Tracer = cfg.TracerProvider.Tracer(scope, trace.WithInstrumentationVersion(Version))
	cfg.Meter = cfg.MeterProvider.Meter(scope, metric.WithInstrumentationVersion(Version))

	// Metrics are disabled when registration fails.
	cfg.Metrics, _ = newMetrics(cfg.Meter)

	return cfg
}

// validate reports settings that cannot produce a working client.
func (cfg *internalConfig) validate() error {
	hc := cfg.httpConfig
	if hc.ConnectTimeout < 0 || hc.RequestTimeout < 0 || hc.ReadTimeout < 0 || hc.CallTimeout < 0 {
		return newConfigError("timeouts must not be negative", nil)
	}
	if cfg.retryPolicy.BaseDelay < 0 || cfg.retryPolicy.MaxDelay < 0 {
		return newConfigError("retry delays must not be negative", nil)
	}
	if cfg.snippet.Capture && cfg.snippet.Limit < 0 {
		return newConfigError("snippet limit must not be negative", nil)
	}
	return nil
}

// buildTransport creates the pooled http.Transport.
func (cfg *internalConfig) buildTransport() *http.Transport {
	hc := cfg.httpConfig

	dialer := &net.Dialer{
		Timeout:   hc.ConnectTimeout,
		KeepAlive: hc.KeepAlive,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          hc.MaxIdleConns,
		MaxIdleConnsPerHost:   hc.MaxIdleConnsPerHost,
		MaxConnsPerHost:       hc.MaxConnsPerHost,
		IdleConnTimeout:       hc.IdleConnTimeout,
		TLSHandshakeTimeout:   hc.TLSHandshakeTimeout,
		ResponseHeaderTimeout: hc.ResponseHeaderTimeout,
		ExpectContinueTimeout: hc.ExpectContinueTimeout,
		DisableKeepAlives:     hc.DisableKeepAlives,
		WriteBufferSize:       hc.WriteBufferSize,
		ReadBufferSize:        hc.ReadBufferSize,
		TLSClientConfig:       cfg.TLSConfig,
		ForceAttemptHTTP2:     hc.ForceHTTP2,
	}

	if cfg.ProxyURL != nil {
		transport.Proxy = http.ProxyURL(cfg.ProxyURL)
	} else if cfg.ProxyFromEnvironment {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return transport
}

// roundTripper assembles otel -> breaker -> rate limit -> base.
func (cfg *internalConfig) roundTripper() http.RoundTripper {
	var base http.RoundTripper
	switch {
	case cfg.MockTransport != nil:
		base = cfg.MockTransport
	case cfg.baseTransport != nil:
		base = cfg.baseTransport
	default:
		base = cfg.buildTransport()
	}

	limited := newRateLimitTransport(base, cfg.RateLimit)
	guarded := newCircuitBreakerTransport(limited, cfg)
	return newOtelTransport(guarded, cfg)
}

// baseAttributes returns common attributes for all spans and metrics.
func (cfg *internalConfig) baseAttributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 1)
	if cfg.ServiceName != "" {
		attrs = append(attrs, attribute.String("http.client.name", cfg.ServiceName))
	}
	return attrs
}

// =============================================================================
// Options
// =============================================================================

// Option configures a Client or AsyncClient.
type Option func(*internalConfig)

// WithConfig sets the transport and timeout configuration.
//
//	client, err := httpclient.New(baseURL,
//	    httpclient.WithConfig(httpclient.LowLatencyConfig()),
//	)
func WithConfig(c Config) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig = c
	}
}

// WithAuth sets the credentials attached to every request.
//
//	client, err := httpclient.New(baseURL,
//	    httpclient.WithAuth(httpclient.APIKeyAuth(os.Getenv("METABASE_API_KEY"))),
//	)
func WithAuth(auth Auth) Option {
	return func(cfg *internalConfig) {
		cfg.auth = auth
	}
}

// WithRetryPolicy replaces DefaultRetryPolicy. Use DisabledRetryPolicy to
// send every call exactly once.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(cfg *internalConfig) {
		cfg.retryPolicy = p
	}
}

// WithUserAgent overrides the "metabase-go/<version>" User-Agent.
func WithUserAgent(ua string) Option {
	return func(cfg *internalConfig) {
		cfg.userAgent = ua
	}
}

// WithSnippetConfig controls how error and decode failures capture the
// response body.
func WithSnippetConfig(s SnippetConfig) Option {
	return func(cfg *internalConfig) {
		cfg.snippet = s
	}
}

// WithLogger sets the logger for debug and warning events.
// Default: zerolog.Nop()
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *internalConfig) {
		cfg.Logger = logger
	}
}

// WithDebug logs every attempt, response and retry at debug level. Without
// WithLogger the events go to stdout.
func WithDebug(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.debug = enabled
	}
}

// WithGenerateCurl logs an equivalent cURL command for every attempt, with
// credentials masked. Implies WithDebug.
func WithGenerateCurl(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.generateCurl = enabled
		if enabled {
			cfg.debug = true
		}
	}
}

// WithServiceName sets the "http.client.name" attribute on spans and
// metrics, and the circuit breaker name.
func WithServiceName(name string) Option {
	return func(cfg *internalConfig) {
		cfg.ServiceName = name
	}
}

// WithTracerProvider sets the TracerProvider. Default: the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *internalConfig) {
		cfg.TracerProvider = tp
	}
}

// WithMeterProvider sets the MeterProvider. Default: the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *internalConfig) {
		cfg.MeterProvider = mp
	}
}

// WithPropagators sets the propagators used to inject trace context.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *internalConfig) {
		cfg.Propagators = p
	}
}

// WithDisableNetworkTrace turns off DNS, connect and TLS timing.
func WithDisableNetworkTrace() Option {
	return func(cfg *internalConfig) {
		cfg.EnableNetworkTrace = false
	}
}

// WithObserver reports attempts and call outcomes to o, in addition to the
// OpenTelemetry metrics.
//
//	obs, err := httpclient.NewPrometheusObserver(prometheus.DefaultRegisterer)
//	if err != nil {
//	    return err
//	}
//	client, err := httpclient.New(baseURL, httpclient.WithObserver(obs))
func WithObserver(o Observer) Option {
	return func(cfg *internalConfig) {
		cfg.observer = o
	}
}

// WithTLSConfig sets the TLS configuration of the pooled transport.
func WithTLSConfig(tlsCfg *tls.Config) Option {
	return func(cfg *internalConfig) {
		cfg.TLSConfig = tlsCfg
	}
}

// WithProxyURL routes requests through proxyURL instead of the proxy
// environment variables.
func WithProxyURL(proxyURL *url.URL) Option {
	return func(cfg *internalConfig) {
		cfg.ProxyURL = proxyURL
		cfg.ProxyFromEnvironment = false
	}
}

// WithProxyFromEnvironment toggles HTTP_PROXY, HTTPS_PROXY and NO_PROXY.
// Default: true
func WithProxyFromEnvironment(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.ProxyFromEnvironment = enabled
	}
}

// WithTransport replaces the pooled transport. The instrumentation, breaker
// and rate limiter still wrap it.
func WithTransport(rt http.RoundTripper) Option {
	return func(cfg *internalConfig) {
		cfg.baseTransport = rt
	}
}

// WithMockTransport sends every attempt to mock. Intended for tests.
func WithMockTransport(mock *MockTransport) Option {
	return func(cfg *internalConfig) {
		cfg.MockTransport = mock
	}
}

// WithStrategy replaces the I/O strategy chosen by New or NewAsync.
func WithStrategy(s Strategy) Option {
	return func(cfg *internalConfig) {
		cfg.strategy = s
	}
}

// WithBreaker enables the circuit breaker.
//
//	client, err := httpclient.New(baseURL,
//	    httpclient.WithBreaker(httpclient.DefaultBreakerConfig()),
//	)
func WithBreaker(bc BreakerConfig) Option {
	return func(cfg *internalConfig) {
		cfg.Breaker = &bc
	}
}

// WithCircuitBreaker uses cb instead of building a breaker from the
// BreakerConfig. It enables the breaker with DefaultBreakerConfig if
// WithBreaker was not given.
func WithCircuitBreaker(cb CircuitBreaker) Option {
	return func(cfg *internalConfig) {
		cfg.breakerOverride = cb
		if cfg.Breaker == nil {
			bc := DefaultBreakerConfig()
			cfg.Breaker = &bc
		}
	}
}

// WithRateLimit enables the client-side rate limiter.
func WithRateLimit(rl RateLimitConfig) Option {
	return func(cfg *internalConfig) {
		cfg.RateLimit = &rl
	}
}

// WithRequestCoalescing shares one in-flight GET or HEAD between concurrent
// identical calls. Each caller still decodes its own copy of the body.
func WithRequestCoalescing() Option {
	return func(cfg *internalConfig) {
		cfg.coalesce = true
	}
}

// WithRequestInterceptor adds an interceptor that runs after the standard
// headers are set.
func WithRequestInterceptor(i RequestInterceptor) Option {
	return func(cfg *internalConfig) {
		cfg.interceptors = append(cfg.interceptors, i)
	}
}

package httpclient

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestConfigPresets(t *testing.T) {
	tests := []struct {
		name               string
		cfg                Config
		wantConnect        time.Duration
		wantRequest        time.Duration
		wantRead           time.Duration
		wantMaxIdle        int
		wantMaxIdlePerHost int
		wantMaxPerHost     int
		wantBuffer         int
		wantHTTP2          bool
	}{
		{
			name:               "given DefaultConfig, then returns balanced settings",
			cfg:                DefaultConfig(),
			wantConnect:        10 * time.Second,
			wantRequest:        30 * time.Second,
			wantRead:           30 * time.Second,
			wantMaxIdle:        100,
			wantMaxIdlePerHost: 20,
			wantMaxPerHost:     100,
			wantBuffer:         64 * 1024,
		},
		{
			name:               "given HighThroughputConfig, then widens the pool",
			cfg:                HighThroughputConfig(),
			wantConnect:        10 * time.Second,
			wantRequest:        60 * time.Second,
			wantRead:           30 * time.Second,
			wantMaxIdle:        500,
			wantMaxIdlePerHost: 100,
			wantMaxPerHost:     0,
			wantBuffer:         128 * 1024,
		},
		{
			name:               "given LowLatencyConfig, then fails fast",
			cfg:                LowLatencyConfig(),
			wantConnect:        2 * time.Second,
			wantRequest:        5 * time.Second,
			wantRead:           5 * time.Second,
			wantMaxIdle:        50,
			wantMaxIdlePerHost: 25,
			wantMaxPerHost:     50,
			wantBuffer:         32 * 1024,
			wantHTTP2:          true,
		},
		{
			name:               "given ConservativeConfig, then keeps few connections",
			cfg:                ConservativeConfig(),
			wantConnect:        10 * time.Second,
			wantRequest:        30 * time.Second,
			wantRead:           30 * time.Second,
			wantMaxIdle:        20,
			wantMaxIdlePerHost: 5,
			wantMaxPerHost:     20,
			wantBuffer:         4 * 1024,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantConnect, tt.cfg.ConnectTimeout)
			assert.Equal(t, tt.wantRequest, tt.cfg.RequestTimeout)
			assert.Equal(t, tt.wantRead, tt.cfg.ReadTimeout)
			assert.Equal(t, tt.wantMaxIdle, tt.cfg.MaxIdleConns)
			assert.Equal(t, tt.wantMaxIdlePerHost, tt.cfg.MaxIdleConnsPerHost)
			assert.Equal(t, tt.wantMaxPerHost, tt.cfg.MaxConnsPerHost)
			assert.Equal(t, tt.wantBuffer, tt.cfg.WriteBufferSize)
			assert.Equal(t, tt.wantBuffer, tt.cfg.ReadBufferSize)
			assert.Equal(t, tt.wantHTTP2, tt.cfg.ForceHTTP2)
			assert.False(t, tt.cfg.DisableKeepAlives)
		})
	}
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := newConfig()

	assert.Equal(t, DefaultConfig(), cfg.httpConfig)
	assert.Equal(t, DefaultRetryPolicy(), cfg.retryPolicy)
	assert.Equal(t, DefaultSnippetConfig(), cfg.snippet)
	assert.Equal(t, DefaultUserAgent, cfg.userAgent)
	assert.True(t, cfg.auth.IsZero())
	assert.True(t, cfg.EnableNetworkTrace)
	assert.True(t, cfg.ProxyFromEnvironment)
	assert.False(t, cfg.debug)
	assert.False(t, cfg.coalesce)
	assert.Nil(t, cfg.Breaker)
	assert.Nil(t, cfg.RateLimit)
	assert.NotNil(t, cfg.Tracer)
	assert.NotNil(t, cfg.Meter)
	assert.NotNil(t, cfg.Metrics)
	assert.Equal(t, zerolog.Disabled, cfg.Logger.GetLevel())
}

func TestNewConfig_Options(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.internal:3128")
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	prop := propagation.TraceContext{}
	tp := sdktrace.NewTracerProvider()
	mp := noop.NewMeterProvider()
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Jitter: JitterNone}
	snippet := SnippetConfig{Capture: true, Limit: 128}
	interceptor := HeaderInterceptor("X-Tenant", "acme")

	cfg := newConfig(
		WithConfig(LowLatencyConfig()),
		WithAuth(APIKeyAuth("key")),
		WithRetryPolicy(policy),
		WithUserAgent("reports/2.0"),
		WithSnippetConfig(snippet),
		WithServiceName("reports"),
		WithTracerProvider(tp),
		WithMeterProvider(mp),
		WithPropagators(prop),
		WithDisableNetworkTrace(),
		WithTLSConfig(tlsConfig),
		WithProxyURL(proxyURL),
		WithRateLimit(DefaultRateLimitConfig()),
		WithBreaker(DefaultBreakerConfig()),
		WithRequestCoalescing(),
		WithRequestInterceptor(interceptor),
	)

	assert.Equal(t, LowLatencyConfig(), cfg.httpConfig)
	assert.Equal(t, HeaderAPIKey, cfg.auth.HeaderName())
	assert.Equal(t, policy, cfg.retryPolicy)
	assert.Equal(t, "reports/2.0", cfg.userAgent)
	assert.Equal(t, snippet, cfg.snippet)
	assert.Equal(t, "reports", cfg.ServiceName)
	assert.Equal(t, tp, cfg.TracerProvider)
	assert.Equal(t, mp, cfg.MeterProvider)
	assert.Equal(t, prop, cfg.Propagators)
	assert.False(t, cfg.EnableNetworkTrace)
	assert.Same(t, tlsConfig, cfg.TLSConfig)
	assert.Equal(t, proxyURL, cfg.ProxyURL)
	assert.False(t, cfg.ProxyFromEnvironment)
	require.NotNil(t, cfg.RateLimit)
	assert.Equal(t, DefaultRateLimitConfig(), *cfg.RateLimit)
	require.NotNil(t, cfg.Breaker)
	assert.True(t, cfg.coalesce)
	assert.Len(t, cfg.interceptors, 1)
}

func TestWithDebug(t *testing.T) {
	tests := []struct {
		name      string
		opts      []Option
		wantDebug bool
		wantCurl  bool
		wantLevel zerolog.Level
	}{
		{
			name:      "given debug without logger, then falls back to stdout logger",
			opts:      []Option{WithDebug(true)},
			wantDebug: true,
			wantLevel: debugLogger.GetLevel(),
		},
		{
			name:      "given curl generation, then implies debug",
			opts:      []Option{WithGenerateCurl(true)},
			wantDebug: true,
			wantCurl:  true,
			wantLevel: debugLogger.GetLevel(),
		},
		{
			name:      "given debug with an explicit logger, then keeps the logger",
			opts:      []Option{WithLogger(zerolog.Nop().Level(zerolog.WarnLevel)), WithDebug(true)},
			wantDebug: true,
			wantLevel: zerolog.WarnLevel,
		},
		{
			name:      "given debug disabled, then stays silent",
			opts:      []Option{WithDebug(false)},
			wantLevel: zerolog.Disabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newConfig(tt.opts...)

			assert.Equal(t, tt.wantDebug, cfg.debug)
			assert.Equal(t, tt.wantCurl, cfg.generateCurl)
			assert.Equal(t, tt.wantLevel, cfg.Logger.GetLevel())
		})
	}
}

func TestWithCircuitBreaker(t *testing.T) {
	t.Run("given no breaker config, then enables defaults", func(t *testing.T) {
		cfg := newConfig(WithCircuitBreaker(nil))
		require.NotNil(t, cfg.Breaker)
		assert.Equal(t, DefaultBreakerConfig().ConsecutiveFailures, cfg.Breaker.ConsecutiveFailures)
	})

	t.Run("given an explicit breaker config, then keeps it", func(t *testing.T) {
		bc := DefaultBreakerConfig()
		bc.ConsecutiveFailures = 9

		cfg := newConfig(WithBreaker(bc), WithCircuitBreaker(nil))
		require.NotNil(t, cfg.Breaker)
		assert.Equal(t, uint32(9), cfg.Breaker.ConsecutiveFailures)
	})
}

func TestInternalConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{name: "given defaults, then valid", opts: nil},
		{
			name:    "given negative connect timeout, then invalid",
			opts:    []Option{WithConfig(Config{ConnectTimeout: -time.Second})},
			wantErr: true,
		},
		{
			name:    "given negative read timeout, then invalid",
			opts:    []Option{WithConfig(Config{ReadTimeout: -time.Second})},
			wantErr: true,
		},
		{
			name:    "given negative retry delay, then invalid",
			opts:    []Option{WithRetryPolicy(RetryPolicy{MaxRetries: 1, BaseDelay: -1})},
			wantErr: true,
		},
		{
			name:    "given negative snippet limit, then invalid",
			opts:    []Option{WithSnippetConfig(SnippetConfig{Capture: true, Limit: -1})},
			wantErr: true,
		},
		{
			name: "given negative snippet limit with capture off, then valid",
			opts: []Option{WithSnippetConfig(SnippetConfig{Limit: -1})},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newConfig(tt.opts...).validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBuildTransport(t *testing.T) {
	t.Run("given custom pool settings, then builds matching transport", func(t *testing.T) {
		custom := DefaultConfig()
		custom.MaxIdleConns = 50
		custom.MaxIdleConnsPerHost = 25
		custom.IdleConnTimeout = time.Minute
		custom.DisableKeepAlives = true

		transport := newConfig(WithConfig(custom)).buildTransport()

		require.NotNil(t, transport)
		assert.Equal(t, 50, transport.MaxIdleConns)
		assert.Equal(t, 25, transport.MaxIdleConnsPerHost)
		assert.Equal(t, time.Minute, transport.IdleConnTimeout)
		assert.True(t, transport.DisableKeepAlives)
		assert.NotNil(t, transport.Proxy)
	})

	t.Run("given proxy from environment disabled, then has no proxy", func(t *testing.T) {
		transport := newConfig(WithProxyFromEnvironment(false)).buildTransport()
		assert.Nil(t, transport.Proxy)
	})

	t.Run("given proxy URL, then routes through it", func(t *testing.T) {
		proxyURL, _ := url.Parse("http://proxy.internal:3128")
		transport := newConfig(WithProxyURL(proxyURL)).buildTransport()

		req, _ := http.NewRequest(http.MethodGet, "https://metabase.example.com", nil)
		got, err := transport.Proxy(req)
		require.NoError(t, err)
		assert.Equal(t, proxyURL, got)
	})
}

func TestRoundTripper_Chain(t *testing.T) {
	t.Run("given mock transport and transport override, then mock wins", func(t *testing.T) {
		mt := NewMockTransport()
		cfg := newConfig(WithTransport(http.DefaultTransport), WithMockTransport(mt))

		otel, ok := cfg.roundTripper().(*otelTransport)
		require.True(t, ok)
		assert.Same(t, mt, otel.Unwrap())
	})

	t.Run("given breaker and rate limit, then wraps in order", func(t *testing.T) {
		cfg := newConfig(
			WithMockTransport(NewMockTransport()),
			WithBreaker(DefaultBreakerConfig()),
			WithRateLimit(DefaultRateLimitConfig()),
		)

		otel, ok := cfg.roundTripper().(*otelTransport)
		require.True(t, ok)
		breaker, ok := otel.Unwrap().(*circuitBreakerTransport)
		require.True(t, ok)
		_, ok = breaker.Unwrap().(*rateLimitTransport)
		assert.True(t, ok)
	})
}

func TestBaseAttributes(t *testing.T) {
	tests := []struct {
		name        string
		serviceName string
		wantLen     int
	}{
		{name: "given service name, then returns http.client.name", serviceName: "reports", wantLen: 1},
		{name: "given no service name, then returns empty", serviceName: "", wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := newConfig(WithServiceName(tt.serviceName)).baseAttributes()

			require.Len(t, attrs, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, "http.client.name", string(attrs[0].Key))
				assert.Equal(t, tt.serviceName, attrs[0].Value.AsString())
			}
		})
	}
}

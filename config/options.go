package config

import (
	"github.com/kroma-labs/metabase-go/httpclient"
)

// Credentials selects the credential: APIKey, then SessionToken, then none.
func (c *Config) Credentials() httpclient.Auth {
	switch {
	case c.Auth.APIKey != "":
		return httpclient.APIKeyAuth(c.Auth.APIKey)
	case c.Auth.SessionToken != "":
		return httpclient.SessionAuth(c.Auth.SessionToken)
	default:
		return httpclient.NoAuth()
	}
}

// RetryPolicy converts the retry section.
func (c *Config) RetryPolicy() httpclient.RetryPolicy {
	jitter := httpclient.JitterFull
	if c.Retry.Jitter == JitterNone {
		jitter = httpclient.JitterNone
	}
	return httpclient.RetryPolicy{
		MaxRetries: c.Retry.MaxRetries,
		BaseDelay:  c.Retry.BaseDelay,
		MaxDelay:   c.Retry.MaxDelay,
		Jitter:     jitter,
	}
}

// HTTPConfig is httpclient.DefaultConfig with the configured timeouts.
func (c *Config) HTTPConfig() httpclient.Config {
	hc := httpclient.DefaultConfig()
	hc.ConnectTimeout = c.Timeout.Connect
	hc.RequestTimeout = c.Timeout.Request
	hc.ReadTimeout = c.Timeout.Read
	hc.CallTimeout = c.Timeout.Call
	return hc
}

// Options returns the httpclient options described by c. Pass extra
// options after these to override them.
//
//	cfg, err := config.Load(config.WithFile("metabase.yaml"))
//	if err != nil {
//	    return err
//	}
//	client, err := httpclient.New(cfg.BaseURL, append(cfg.Options(), httpclient.WithLogger(log))...)
func (c *Config) Options() []httpclient.Option {
	opts := []httpclient.Option{
		httpclient.WithConfig(c.HTTPConfig()),
		httpclient.WithAuth(c.Credentials()),
		httpclient.WithRetryPolicy(c.RetryPolicy()),
		httpclient.WithSnippetConfig(httpclient.SnippetConfig{
			Capture: c.Snippet.Capture,
			Limit:   c.Snippet.Limit,
			Redact:  c.Snippet.Redact,
		}),
	}

	if c.UserAgent != "" {
		opts = append(opts, httpclient.WithUserAgent(c.UserAgent))
	}
	if c.RateLimit.RPS > 0 {
		opts = append(opts, httpclient.WithRateLimit(httpclient.RateLimitConfig{
			RequestsPerSecond: c.RateLimit.RPS,
			Burst:             c.RateLimit.Burst,
			WaitOnLimit:       c.RateLimit.Wait,
		}))
	}
	if c.Breaker.Enabled {
		opts = append(opts, httpclient.WithBreaker(httpclient.DefaultBreakerConfig()))
	}
	if c.Coalesce {
		opts = append(opts, httpclient.WithRequestCoalescing())
	}
	if c.Debug.Enabled {
		opts = append(opts, httpclient.WithDebug(true))
	}
	if c.Debug.Curl {
		opts = append(opts, httpclient.WithGenerateCurl(true))
	}

	return opts
}

package config

import (
	"fmt"
	"time"

	"github.com/kroma-labs/metabase-go/httpclient"
)

// Jitter modes accepted by retry.jitter.
const (
	JitterFull = "full"
	JitterNone = "none"
)

// Config is the file and environment representation of a client.
type Config struct {
	// BaseURL is the Metabase instance root, e.g. https://metabase.example.com.
	BaseURL string `koanf:"baseurl" validate:"required,url"`

	// UserAgent overrides the default metabase-go/<version>.
	UserAgent string `koanf:"useragent"`

	Auth      AuthConfig      `koanf:"auth"`
	Timeout   TimeoutConfig   `koanf:"timeout"`
	Retry     RetryConfig     `koanf:"retry"`
	Snippet   SnippetConfig   `koanf:"snippet"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Breaker   BreakerConfig   `koanf:"breaker"`
	Debug     DebugConfig     `koanf:"debug"`

	// Coalesce shares one request among identical concurrent GET calls.
	Coalesce bool `koanf:"coalesce"`
}

// AuthConfig holds at most one credential. APIKey wins when both are set.
// Printing an AuthConfig never shows the credentials.
type AuthConfig struct {
	APIKey       string `koanf:"apikey"`
	SessionToken string `koanf:"sessiontoken"`
}

func (a AuthConfig) String() string {
	return fmt.Sprintf("{APIKey:%s SessionToken:%s}",
		httpclient.NewSecret(a.APIKey), httpclient.NewSecret(a.SessionToken))
}

// GoString keeps %#v from bypassing String.
func (a AuthConfig) GoString() string { return a.String() }

// TimeoutConfig holds the network timeouts. Call bounds a whole call,
// retries included; zero disables it.
type TimeoutConfig struct {
	Connect time.Duration `koanf:"connect" validate:"gte=0"`
	Request time.Duration `koanf:"request" validate:"gte=0"`
	Read    time.Duration `koanf:"read" validate:"gte=0"`
	Call    time.Duration `koanf:"call" validate:"gte=0"`
}

// RetryConfig mirrors httpclient.RetryPolicy.
type RetryConfig struct {
	MaxRetries uint          `koanf:"maxretries" validate:"lte=10"`
	BaseDelay  time.Duration `koanf:"basedelay" validate:"gte=0"`
	MaxDelay   time.Duration `koanf:"maxdelay" validate:"gte=0,gtefield=BaseDelay"`
	Jitter     string        `koanf:"jitter" validate:"oneof=full none"`
}

// SnippetConfig mirrors httpclient.SnippetConfig.
type SnippetConfig struct {
	Capture bool `koanf:"capture"`
	Limit   int  `koanf:"limit" validate:"gte=0"`
	Redact  bool `koanf:"redact"`
}

// RateLimitConfig enables the client-side limiter when RPS is positive.
type RateLimitConfig struct {
	RPS   float64 `koanf:"rps" validate:"gte=0"`
	Burst int     `koanf:"burst" validate:"gte=0"`
	Wait  bool    `koanf:"wait"`
}

// BreakerConfig enables the in-memory circuit breaker with default
// thresholds.
type BreakerConfig struct {
	Enabled bool `koanf:"enabled"`
}

// DebugConfig turns on debug logging and cURL output.
type DebugConfig struct {
	Enabled bool `koanf:"enabled"`
	Curl    bool `koanf:"curl"`
}

package httpclient

import (
	"context"
	"net/http"
	"net/url"
)

// Client executes Metabase API calls on the calling goroutine.
//
// A Client is safe for concurrent use. Its configuration is fixed at
// construction; WithAuth returns a new Client rather than changing this one.
//
//	client, err := httpclient.New("https://metabase.example.com",
//	    httpclient.WithAuth(httpclient.APIKeyAuth(apiKey)),
//	    httpclient.WithServiceName("reporting"),
//	)
//	if err != nil {
//	    return err
//	}
//
//	var health struct{ Status string `json:"status"` }
//	err = client.ExecuteJSON(ctx, httpclient.Call{
//	    Method:   http.MethodGet,
//	    Segments: []string{"api", "health"},
//	}, &health)
type Client struct {
	httpClient *http.Client
	config     *internalConfig
	exec       *executor
}

// New validates baseURL and opts and returns a blocking Client.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	cfg := newConfig(opts...)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return newClient(cfg, base), nil
}

func newClient(cfg *internalConfig, base *url.URL) *Client {
	httpClient := &http.Client{Transport: cfg.roundTripper()}

	strategy := cfg.strategy
	if strategy == nil {
		strategy = NewBlockingStrategy(httpClient, cfg.httpConfig.ReadTimeout)
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
		exec:       newExecutor(cfg, base, strategy),
	}
}

// WithAuth returns a copy of c that sends auth instead of c's credentials.
// The copy has its own connection pool.
func (c *Client) WithAuth(auth Auth) *Client {
	cfg := *c.config
	cfg.auth = auth
	return newClient(&cfg, c.exec.baseURL)
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.exec.baseURL.String()
}

// HTTP returns the underlying *http.Client, with the instrumented transport
// chain but without auth, retries or error classification.
func (c *Client) HTTP() *http.Client {
	return c.httpClient
}

// ExecuteJSON sends call and decodes a 2xx JSON body into out. out may be
// nil to discard the body.
func (c *Client) ExecuteJSON(ctx context.Context, call Call, out any) error {
	return c.exec.executeJSON(ctx, call, out)
}

// ExecuteBytes sends call and returns the raw 2xx body.
func (c *Client) ExecuteBytes(ctx context.Context, call Call) ([]byte, error) {
	return c.exec.executeBytes(ctx, call)
}

// ExecuteMultipartJSON sends form as multipart/form-data and decodes a 2xx
// JSON body into out. call.Body is ignored.
func (c *Client) ExecuteMultipartJSON(ctx context.Context, call Call, form *Form, out any) error {
	return c.exec.executeMultipartJSON(ctx, call, form, out)
}

// Request starts a fluent call with the given HTTP method.
//
//	var user map[string]any
//	err := client.Request(http.MethodGet).
//	    Path("api", "user", "current").
//	    JSON(ctx, &user)
func (c *Client) Request(method string) *RequestBuilder {
	return &RequestBuilder{client: c, call: Call{Method: method}}
}

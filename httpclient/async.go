package httpclient

import (
	"context"
	"net/http"
	"net/url"
)

// AsyncClient starts every call on its own goroutine and returns a Future.
// Many calls may be in flight at once; each waits for the network and for
// retry delays without holding the caller.
//
// Cancel the ctx passed to an Execute method to abandon the call, including
// any pending retry delay.
type AsyncClient struct {
	httpClient *http.Client
	config     *internalConfig
	exec       *executor
}

// NewAsync validates baseURL and opts and returns an AsyncClient.
func NewAsync(baseURL string, opts ...Option) (*AsyncClient, error) {
	base, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	cfg := newConfig(opts...)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return newAsyncClient(cfg, base), nil
}

func newAsyncClient(cfg *internalConfig, base *url.URL) *AsyncClient {
	httpClient := &http.Client{Transport: cfg.roundTripper()}

	strategy := cfg.strategy
	if strategy == nil {
		strategy = NewAsyncStrategy(httpClient, cfg.httpConfig.ReadTimeout)
	}

	return &AsyncClient{
		httpClient: httpClient,
		config:     cfg,
		exec:       newExecutor(cfg, base, strategy),
	}
}

// WithAuth returns a copy of c that sends auth instead of c's credentials.
func (c *AsyncClient) WithAuth(auth Auth) *AsyncClient {
	cfg := *c.config
	cfg.auth = auth
	return newAsyncClient(&cfg, c.exec.baseURL)
}

// BaseURL returns the normalized base URL.
func (c *AsyncClient) BaseURL() string {
	return c.exec.baseURL.String()
}

// HTTP returns the underlying *http.Client.
func (c *AsyncClient) HTTP() *http.Client {
	return c.httpClient
}

// ExecuteJSON starts call; the future resolves to out once it is decoded.
func (c *AsyncClient) ExecuteJSON(ctx context.Context, call Call, out any) *Future[any] {
	return goFuture(func() (any, error) {
		if err := c.exec.executeJSON(ctx, call, out); err != nil {
			return nil, err
		}
		return out, nil
	})
}

// ExecuteBytes starts call; the future resolves to the raw body.
func (c *AsyncClient) ExecuteBytes(ctx context.Context, call Call) *Future[[]byte] {
	return goFuture(func() ([]byte, error) {
		return c.exec.executeBytes(ctx, call)
	})
}

// ExecuteMultipartJSON starts a multipart call; the future resolves to out.
func (c *AsyncClient) ExecuteMultipartJSON(ctx context.Context, call Call, form *Form, out any) *Future[any] {
	return goFuture(func() (any, error) {
		if err := c.exec.executeMultipartJSON(ctx, call, form, out); err != nil {
			return nil, err
		}
		return out, nil
	})
}

// Future is the pending result of an AsyncClient call.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func goFuture[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.val, f.err = fn()
	}()
	return f
}

// Done is closed once the call has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await waits for the call or for ctx. Giving up on ctx does not cancel the
// call; cancel the ctx the call was started with for that.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result blocks until the call has finished.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.val, f.err
}

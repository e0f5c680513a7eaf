// Package httpclient is the request execution engine of the Metabase API
// client: every endpoint call funnels through it.
//
// # Features
//
//   - Session token or API key authentication, never printed or logged
//   - Path segment escaping and JSON-driven query encoding
//   - Retries with capped exponential backoff, full jitter and Retry-After
//   - A typed error taxonomy (auth, not found, conflict, rate limited,
//     API, decode, transport) with request ids and redacted body snippets
//   - Multipart uploads
//   - Blocking and asynchronous clients sharing one executor
//   - OpenTelemetry tracing and metrics, optional Prometheus observer
//   - Optional circuit breaker (local or Redis backed), client-side rate
//     limiting and coalescing of identical GETs
//
// # Quick Start
//
//	client, err := httpclient.New("https://metabase.example.com",
//	    httpclient.WithAuth(httpclient.APIKeyAuth(os.Getenv("METABASE_API_KEY"))),
//	    httpclient.WithServiceName("reporting"),
//	)
//	if err != nil {
//	    return err
//	}
//
//	var user map[string]any
//	err = client.Request(http.MethodGet).
//	    Path("api", "user", "current").
//	    JSON(ctx, &user)
//
// # Retries
//
// GET, HEAD, PUT, DELETE and OPTIONS are retried on connect failures,
// timeouts and 429, 502, 503 and 504 responses. POST is retried only with
// an idempotency key:
//
//	err := client.Request(http.MethodPost).
//	    Path("api", "card").
//	    Body(card).
//	    IdempotencyKey(httpclient.NewIdempotencyKey()).
//	    JSON(ctx, &created)
//
// A Retry-After header replaces the computed delay. Cancel ctx to abandon
// a call, including a pending retry delay.
//
// # Errors
//
// Every failure is an *Error. Branch on its kind with errors.Is:
//
//	switch {
//	case errors.Is(err, httpclient.ErrNotFound):
//	    // ...
//	case errors.Is(err, httpclient.ErrRateLimited):
//	    mbErr, _ := httpclient.AsError(err)
//	    time.Sleep(mbErr.RetryAfter)
//	}
//
// # Asynchronous Calls
//
//	async, err := httpclient.NewAsync(baseURL, httpclient.WithAuth(auth))
//	f := async.ExecuteBytes(ctx, httpclient.Call{
//	    Method:   http.MethodPost,
//	    Segments: []string{"api", "dataset", "csv"},
//	    Body:     query,
//	})
//	csv, err := f.Await(ctx)
//
// # Observability
//
// Each call opens a "metabase.request" span with one "HTTP {method}" child
// span per attempt. Metrics:
//   - metabase.client.calls, metabase.client.call.duration (per call)
//   - metabase.client.retries
//   - http.client.request.duration and network timings (per attempt)
//   - metabase.client.breaker.requests, metabase.client.breaker.state
//
// # Debug Utilities
//
//	client, err := httpclient.New(baseURL,
//	    httpclient.WithDebug(true),        // attempts, responses, retries
//	    httpclient.WithGenerateCurl(true), // cURL per attempt, credentials masked
//	)
package httpclient

package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"
)

// Strategy performs the I/O of one attempt. The executor runs the same
// build, send, evaluate and classify loop over any Strategy; only how a
// request is sent and how a retry delay is waited out differ.
//
// Implementations must honor ctx in both methods.
type Strategy interface {
	// Send performs one HTTP exchange. The returned body is read by the
	// executor before ctx is released.
	Send(ctx context.Context, req *http.Request) (*http.Response, error)

	// Sleep waits for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

var (
	_ Strategy = (*BlockingStrategy)(nil)
	_ Strategy = (*AsyncStrategy)(nil)
)

// BlockingStrategy sends on the calling goroutine.
type BlockingStrategy struct {
	client      *http.Client
	readTimeout time.Duration
}

// NewBlockingStrategy sends through client. A positive readTimeout fails a
// body read that makes no progress for that long.
func NewBlockingStrategy(client *http.Client, readTimeout time.Duration) *BlockingStrategy {
	return &BlockingStrategy{client: client, readTimeout: readTimeout}
}

// Send implements Strategy.
func (s *BlockingStrategy) Send(ctx context.Context, req *http.Request) (*http.Response, error) {
	return doWithReadTimeout(ctx, s.client, req, s.readTimeout)
}

// Sleep implements Strategy.
func (s *BlockingStrategy) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AsyncStrategy sends on its own goroutine and returns as soon as either the
// response arrives or ctx is done. A response that arrives after ctx is done
// is drained and closed in the background.
type AsyncStrategy struct {
	client      *http.Client
	readTimeout time.Duration
}

// NewAsyncStrategy sends through client. readTimeout behaves as in
// NewBlockingStrategy.
func NewAsyncStrategy(client *http.Client, readTimeout time.Duration) *AsyncStrategy {
	return &AsyncStrategy{client: client, readTimeout: readTimeout}
}

type sendResult struct {
	resp *http.Response
	err  error
}

// Send implements Strategy.
func (s *AsyncStrategy) Send(ctx context.Context, req *http.Request) (*http.Response, error) {
	results := make(chan sendResult, 1)
	go func() {
		resp, err := doWithReadTimeout(ctx, s.client, req, s.readTimeout)
		results <- sendResult{resp: resp, err: err}
	}()

	select {
	case r := <-results:
		return r.resp, r.err
	case <-ctx.Done():
		go func() {
			if r := <-results; r.resp != nil {
				drainAndClose(r.resp.Body)
			}
		}()
		return nil, ctx.Err()
	}
}

// Sleep implements Strategy.
func (s *AsyncStrategy) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	fired := make(chan struct{})
	timer := time.AfterFunc(d, func() { close(fired) })

	select {
	case <-fired:
		return nil
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	}
}

var errReadTimeout = errors.New("response body read timeout")

// readTimeoutError is returned by a body read that stalled past the read
// timeout. It satisfies net.Error so the transport classifier treats it as a
// timeout.
type readTimeoutError struct{}

func (readTimeoutError) Error() string   { return errReadTimeout.Error() }
func (readTimeoutError) Timeout() bool   { return true }
func (readTimeoutError) Temporary() bool { return true }
func (readTimeoutError) Unwrap() error   { return errReadTimeout }

func doWithReadTimeout(ctx context.Context, client *http.Client, req *http.Request, readTimeout time.Duration) (*http.Response, error) {
	if readTimeout <= 0 {
		return client.Do(req.WithContext(ctx))
	}

	readCtx, cancel := context.WithCancelCause(ctx)
	resp, err := client.Do(req.WithContext(readCtx))
	if err != nil {
		cancel(nil)
		return nil, err
	}

	body := &readTimeoutBody{
		body:    resp.Body,
		ctx:     readCtx,
		cancel:  cancel,
		timeout: readTimeout,
	}
	body.timer = time.AfterFunc(readTimeout, func() { cancel(errReadTimeout) })
	resp.Body = body
	return resp, nil
}

// readTimeoutBody cancels the exchange when no read completes within
// timeout. The timer restarts after every successful read.
type readTimeoutBody struct {
	body    io.ReadCloser
	ctx     context.Context
	cancel  context.CancelCauseFunc
	timeout time.Duration
	timer   *time.Timer

	closeOnce sync.Once
}

func (b *readTimeoutBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if err != nil {
		if err != io.EOF && errors.Is(context.Cause(b.ctx), errReadTimeout) {
			return n, readTimeoutError{}
		}
		return n, err
	}
	b.timer.Reset(b.timeout)
	return n, nil
}

func (b *readTimeoutBody) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.timer.Stop()
		err = b.body.Close()
		b.cancel(nil)
	})
	return err
}

// drainAndClose discards a bounded amount of the body so the connection
// can be reused.
func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}

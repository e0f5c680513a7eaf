package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrategy_Sleep(t *testing.T) {
	t.Parallel()

	strategies := map[string]Strategy{
		"blocking": NewBlockingStrategy(http.DefaultClient, 0),
		"async":    NewAsyncStrategy(http.DefaultClient, 0),
	}

	for name, s := range strategies {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			t.Run("given a short delay, then returns nil after it", func(t *testing.T) {
				start := time.Now()
				require.NoError(t, s.Sleep(context.Background(), 20*time.Millisecond))
				assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
			})

			t.Run("given zero delay, then returns immediately", func(t *testing.T) {
				assert.NoError(t, s.Sleep(context.Background(), 0))
			})

			t.Run("given zero delay and a done ctx, then returns the ctx error", func(t *testing.T) {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				assert.ErrorIs(t, s.Sleep(ctx, 0), context.Canceled)
			})

			t.Run("given ctx cancelled during the delay, then returns early", func(t *testing.T) {
				ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
				defer cancel()

				start := time.Now()
				err := s.Sleep(ctx, 10*time.Second)
				assert.ErrorIs(t, err, context.DeadlineExceeded)
				assert.Less(t, time.Since(start), time.Second)
			})
		})
	}
}

func TestStrategy_Send(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	}))
	t.Cleanup(server.Close)

	strategies := map[string]Strategy{
		"blocking": NewBlockingStrategy(server.Client(), 0),
		"async":    NewAsyncStrategy(server.Client(), time.Second),
	}

	for name, s := range strategies {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			req, err := http.NewRequest(http.MethodGet, server.URL, nil)
			require.NoError(t, err)

			resp, err := s.Send(context.Background(), req)
			require.NoError(t, err)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, "pong", string(body))
		})
	}
}

func TestAsyncStrategy_SendAbandonsOnCancel(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	s := NewAsyncStrategy(server.Client(), 0)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	start := time.Now()
	resp, err := s.Send(ctx, req)

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestReadTimeoutBody(t *testing.T) {
	t.Parallel()

	t.Run("given steady reads, then the timer never fires", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			flusher := w.(http.Flusher)
			for i := 0; i < 4; i++ {
				_, _ = w.Write([]byte("x"))
				flusher.Flush()
				time.Sleep(20 * time.Millisecond)
			}
		}))
		defer server.Close()

		req, err := http.NewRequest(http.MethodGet, server.URL, nil)
		require.NoError(t, err)

		resp, err := doWithReadTimeout(context.Background(), server.Client(), req, 200*time.Millisecond)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "xxxx", string(body))
	})

	t.Run("given double close, then no panic", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
		defer server.Close()

		req, err := http.NewRequest(http.MethodGet, server.URL, nil)
		require.NoError(t, err)

		resp, err := doWithReadTimeout(context.Background(), server.Client(), req, time.Second)
		require.NoError(t, err)
		assert.NoError(t, resp.Body.Close())
		assert.NotPanics(t, func() { _ = resp.Body.Close() })
	})
}

func TestReadTimeoutError(t *testing.T) {
	var err error = readTimeoutError{}

	assert.ErrorIs(t, err, errReadTimeout)
	assert.True(t, IsRetryableTransportError(err))
}

package httpclient

import (
	"io"
	"sync/atomic"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// wrappedBody ends the attempt span once the body is drained or closed,
// so span duration covers the body transfer.
type wrappedBody struct {
	span   trace.Span
	body   io.ReadCloser
	read   atomic.Int64
	closed atomic.Bool

	// onClose receives the number of bytes read.
	onClose func(bytesRead int64)
}

func newWrappedBody(span trace.Span, body io.ReadCloser, onClose func(int64)) io.ReadCloser {
	if body == nil {
		span.End()
		return nil
	}
	return &wrappedBody{span: span, body: body, onClose: onClose}
}

func (w *wrappedBody) Read(p []byte) (int, error) {
	n, err := w.body.Read(p)
	w.read.Add(int64(n))

	switch err {
	case nil:
	case io.EOF:
		w.end()
	default:
		w.span.RecordError(err)
		w.span.SetStatus(codes.Error, err.Error())
	}
	return n, err
}

func (w *wrappedBody) Close() error {
	w.end()
	return w.body.Close()
}

func (w *wrappedBody) end() {
	if w.closed.CompareAndSwap(false, true) {
		if w.onClose != nil {
			w.onClose(w.read.Load())
		}
		w.span.End()
	}
}

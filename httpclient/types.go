package httpclient

import "net/http"

// RoundTripper mirrors http.RoundTripper so mocks can be generated for it.
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

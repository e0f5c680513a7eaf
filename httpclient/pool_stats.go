package httpclient

import (
	"net/http"
	"time"
)

// PoolStats is a snapshot of the connection pool configuration of a client.
//
//	stats := client.PoolStats()
//	fmt.Printf("max conns per host: %d\n", stats.MaxConnsPerHost)
type PoolStats struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	DisableKeepAlives   bool
}

// PoolStats returns the pool settings, or zero PoolStats when the client
// was built with WithTransport or WithMockTransport.
func (c *Client) PoolStats() PoolStats {
	return poolStats(c.httpClient)
}

// PoolStats returns the pool settings; see Client.PoolStats.
func (c *AsyncClient) PoolStats() PoolStats {
	return poolStats(c.httpClient)
}

func poolStats(hc *http.Client) PoolStats {
	if hc == nil {
		return PoolStats{}
	}
	transport := unwrapTransport(hc.Transport)
	if transport == nil {
		return PoolStats{}
	}
	return PoolStats{
		MaxIdleConns:        transport.MaxIdleConns,
		MaxIdleConnsPerHost: transport.MaxIdleConnsPerHost,
		MaxConnsPerHost:     transport.MaxConnsPerHost,
		IdleConnTimeout:     transport.IdleConnTimeout,
		DisableKeepAlives:   transport.DisableKeepAlives,
	}
}

// unwrapTransport walks the otel, breaker and rate limit wrappers down to
// the pooled *http.Transport.
func unwrapTransport(rt http.RoundTripper) *http.Transport {
	for rt != nil {
		switch t := rt.(type) {
		case *http.Transport:
			return t
		case interface{ Unwrap() http.RoundTripper }:
			rt = t.Unwrap()
		default:
			return nil
		}
	}
	return nil
}

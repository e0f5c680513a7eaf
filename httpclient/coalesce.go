package httpclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"
)

// GenerateCoalesceKey creates a key for request deduplication.
// Key = SHA256(method + URL + sorted query params + body hash)
func GenerateCoalesceKey(method, rawURL string, body []byte) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return hashString(method + rawURL + string(body))
	}

	queryParams := parsedURL.Query()
	var sortedParams []string
	for key, values := range queryParams {
		for _, v := range values {
			sortedParams = append(sortedParams, key+"="+v)
		}
	}
	sort.Strings(sortedParams)

	normalizedURL := fmt.Sprintf("%s://%s%s", parsedURL.Scheme, parsedURL.Host, parsedURL.EscapedPath())

	keyParts := []string{
		strings.ToUpper(method),
		normalizedURL,
		strings.Join(sortedParams, "&"),
	}

	if len(body) > 0 {
		bodyHash := sha256.Sum256(body)
		keyParts = append(keyParts, hex.EncodeToString(bodyHash[:]))
	}

	return hashString(strings.Join(keyParts, "|"))
}

func hashString(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}

// coalescer shares one execution among identical concurrent GET and HEAD
// calls of a single client.
type coalescer struct {
	group singleflight.Group
}

func coalescable(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// do runs fn once per key. The shared execution is detached from any one
// caller's cancellation; each caller stops waiting when its own ctx is done.
func (c *coalescer) do(
	ctx context.Context,
	key string,
	fn func(context.Context) (*rawResponse, error),
) (*rawResponse, bool, error) {
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return fn(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Shared, res.Err
		}
		return res.Val.(*rawResponse), res.Shared, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

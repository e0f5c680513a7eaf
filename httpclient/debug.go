package httpclient

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// debugLogger receives debug output when WithDebug is set without a logger.
var debugLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// generateCurlCommand creates a cURL command equivalent for the given
// request. Credential headers are masked and the body goes through the
// same redaction as error snippets.
//
// Example output:
//
//	curl -X POST 'https://metabase.example.com/api/session' \
//	  -H 'Content-Type: application/json' \
//	  -H 'X-Api-Key: <redacted>' \
//	  -d '{"username":"a@b.c"}'
func generateCurlCommand(req *http.Request, body []byte) string {
	parts := []string{"curl"}

	if req.Method != http.MethodGet {
		parts = append(parts, "-X", req.Method)
	}

	parts = append(parts, fmt.Sprintf("'%s'", redactedURL(req.URL)))

	headerKeys := make([]string, 0, len(req.Header))
	for k := range req.Header {
		headerKeys = append(headerKeys, k)
	}
	sort.Strings(headerKeys)

	for _, k := range headerKeys {
		for _, v := range req.Header[k] {
			if isSensitiveHeader(k) {
				v = redacted
			}
			parts = append(parts, "-H", fmt.Sprintf("'%s: %s'", k, v))
		}
	}

	if len(body) > 0 {
		bodyStr := strings.ReplaceAll(redactBody(body), "'", "'\\''")
		parts = append(parts, "-d", fmt.Sprintf("'%s'", bodyStr))
	}

	return strings.Join(parts, " ")
}

// redactedURL hides any password in the userinfo.
func redactedURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Redacted()
}

func logAttempt(logger zerolog.Logger, req *http.Request, attempt uint) {
	logger.Debug().
		Str("method", req.Method).
		Str("url", redactedURL(req.URL)).
		Uint("attempt", attempt).
		Msg("metabase request")
}

func logResponse(logger zerolog.Logger, resp *http.Response, duration time.Duration) {
	logger.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Str("request_id", requestID(resp.Header)).
		Int64("content_length", resp.ContentLength).
		Msg("metabase response")
}

func logRetry(logger zerolog.Logger, method string, attempt uint, delay time.Duration, reason string) {
	logger.Debug().
		Str("method", method).
		Uint("attempt", attempt).
		Dur("delay", delay).
		Str("reason", reason).
		Msg("metabase retry")
}

func logFailure(logger zerolog.Logger, err *Error) {
	logger.Debug().
		Str("kind", err.Kind.String()).
		Str("method", err.Method).
		Str("path", err.Path).
		Int("status", err.Status).
		Str("request_id", err.RequestID).
		Err(err).
		Msg("metabase request failed")
}

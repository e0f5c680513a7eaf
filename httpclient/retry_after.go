package httpclient

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ParseRetryAfter resolves a Retry-After header value relative to now.
//
// The value may be delta-seconds ("120") or an HTTP-date in any of the
// formats http.ParseTime accepts. Dates in the past resolve to 0. The second
// return value is false for an empty or unparsable header.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.ParseUint(value, 10, 64); err == nil {
		const maxSeconds = uint64(1<<63-1) / uint64(time.Second)
		if secs > maxSeconds {
			secs = maxSeconds
		}
		return time.Duration(secs) * time.Second, true
	}

	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	if d := at.Sub(now); d > 0 {
		return d, true
	}
	return 0, true
}

func retryAfterFromHeader(h http.Header, now time.Time) (time.Duration, bool) {
	return ParseRetryAfter(h.Get("Retry-After"), now)
}

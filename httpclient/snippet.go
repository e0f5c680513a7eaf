package httpclient

import (
	"bytes"
	"strings"

	json "github.com/goccy/go-json"
)

// SnippetConfig controls the body prefix attached to errors.
type SnippetConfig struct {
	// Capture enables snippets. When false, Error.Snippet is always empty.
	Capture bool

	// Limit is the maximum snippet size in bytes.
	Limit int

	// Redact masks credentials in the snippet.
	Redact bool
}

// DefaultSnippetConfig captures up to 4KiB with redaction on.
func DefaultSnippetConfig() SnippetConfig {
	return SnippetConfig{Capture: true, Limit: 4096, Redact: true}
}

func (c SnippetConfig) capture(body []byte) string {
	if !c.Capture {
		return ""
	}
	return CaptureSnippet(body, c.Limit, c.Redact)
}

var snippetMarkers = []string{
	"token",
	"password",
	"secret",
	"api_key",
	"api-key",
	"authorization",
	"cookie",
	"session",
}

var sensitiveKeys = []string{
	"password",
	"token",
	"secret",
	"api_key",
	"api-key",
	"session",
}

// CaptureSnippet returns at most limit bytes of body as valid UTF-8, with
// invalid sequences replaced by U+FFFD.
//
// With redact set, a snippet that mentions a credential marker is rewritten:
// a JSON snippet has every value under a sensitive key replaced by
// "<redacted>" and is re-serialized; anything else becomes "<redacted>".
func CaptureSnippet(body []byte, limit int, redact bool) string {
	if limit < 0 {
		limit = 0
	}
	if len(body) > limit {
		body = body[:limit]
	}
	snippet := strings.ToValidUTF8(string(body), "�")

	if !redact || !looksSensitive(snippet) {
		return snippet
	}
	return redactSnippet(snippet)
}

// redactBody masks credentials in a whole request body.
func redactBody(body []byte) string {
	s := string(body)
	if !looksSensitive(s) {
		return s
	}
	return redactSnippet(s)
}

func looksSensitive(snippet string) bool {
	lower := strings.ToLower(snippet)
	for _, m := range snippetMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func redactSnippet(snippet string) string {
	if !json.Valid([]byte(snippet)) {
		return redacted
	}
	dec := json.NewDecoder(strings.NewReader(snippet))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return redacted
	}
	redactValue(doc)

	// Marshal would escape the brackets of the redaction marker.
	out, err := json.MarshalNoEscape(doc)
	if err != nil {
		return redacted
	}
	return string(bytes.TrimSpace(out))
}

func redactValue(v any) {
	switch node := v.(type) {
	case map[string]any:
		for key, value := range node {
			if isSensitiveKey(key) {
				node[key] = redacted
				continue
			}
			redactValue(value)
		}
	case []any:
		for _, item := range node {
			redactValue(item)
		}
	}
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, k := range sensitiveKeys {
		if strings.Contains(key, k) {
			return true
		}
	}
	return false
}

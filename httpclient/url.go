package httpclient

import (
	"net/url"
	"strings"
)

// NormalizeBaseURL parses and validates a Metabase base URL.
//
// The URL must be absolute and hierarchical and must not carry a query
// string or fragment. The returned URL's path always ends with "/", so
// normalizing twice is a no-op.
func NormalizeBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, newConfigError("invalid base_url", err)
	}
	if u.Opaque != "" || u.Scheme == "" || u.Host == "" {
		return nil, newConfigError("base_url must be hierarchical", nil)
	}
	if u.RawQuery != "" || u.ForceQuery {
		return nil, newConfigError("base_url must not include a query string", nil)
	}
	if u.Fragment != "" || u.RawFragment != "" {
		return nil, newConfigError("base_url must not include a fragment", nil)
	}

	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
		if u.RawPath != "" {
			u.RawPath += "/"
		}
	}
	return u, nil
}

// BuildURL appends path segments to a normalized base URL. Each segment is
// percent-encoded on its own, so "a/b" becomes "a%2Fb" rather than two
// path elements. base is not modified.
func BuildURL(base *url.URL, segments []string) *url.URL {
	u := *base
	u.RawQuery = ""
	u.Fragment = ""

	rawPath := u.EscapedPath()
	if !strings.HasSuffix(rawPath, "/") {
		rawPath += "/"
	}
	path := u.Path
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}

	escaped := make([]string, len(segments))
	for i, seg := range segments {
		escaped[i] = url.PathEscape(seg)
	}
	u.RawPath = rawPath + strings.Join(escaped, "/")
	u.Path = path + strings.Join(segments, "/")
	return &u
}

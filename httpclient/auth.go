package httpclient

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/net/http/httpguts"
)

// Authentication headers understood by Metabase.
const (
	HeaderSession = "X-Metabase-Session"
	HeaderAPIKey  = "X-API-KEY"
)

const redacted = "<redacted>"

var errInvalidHeaderValue = errors.New("value contains characters not allowed in an HTTP header")

// Secret holds credential material. Every printing, logging and
// marshaling path renders "<redacted>"; only Expose returns the value.
type Secret struct {
	value string
}

// NewSecret wraps a credential.
func NewSecret(value string) Secret {
	return Secret{value: value}
}

// Expose returns the raw value.
func (s Secret) Expose() string { return s.value }

// IsZero reports whether the secret is empty.
func (s Secret) IsZero() bool { return s.value == "" }

func (s Secret) String() string   { return redacted }
func (s Secret) GoString() string { return redacted }

// Format makes every verb, including %x and %q, print the placeholder.
func (s Secret) Format(f fmt.State, _ rune) {
	_, _ = f.Write([]byte(redacted))
}

// MarshalJSON renders the placeholder.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// MarshalText renders the placeholder.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

type authKind int

const (
	authNone authKind = iota
	authSession
	authAPIKey
)

// Auth selects how requests are authenticated. The zero value is NoAuth.
type Auth struct {
	kind   authKind
	secret Secret
}

// NoAuth sends no credentials.
func NoAuth() Auth { return Auth{} }

// SessionAuth authenticates with a session token obtained from POST /api/session.
func SessionAuth(token string) Auth {
	return Auth{kind: authSession, secret: NewSecret(token)}
}

// APIKeyAuth authenticates with a Metabase API key.
func APIKeyAuth(key string) Auth {
	return Auth{kind: authAPIKey, secret: NewSecret(key)}
}

// HeaderName returns the header the credential is sent in, or "" for NoAuth.
func (a Auth) HeaderName() string {
	switch a.kind {
	case authSession:
		return HeaderSession
	case authAPIKey:
		return HeaderAPIKey
	default:
		return ""
	}
}

// IsZero reports whether a is NoAuth.
func (a Auth) IsZero() bool { return a.kind == authNone }

// Apply sets the credential header on h.
func (a Auth) Apply(h http.Header) error {
	name := a.HeaderName()
	if name == "" {
		return nil
	}
	if !httpguts.ValidHeaderFieldValue(a.secret.Expose()) {
		return newHeaderError(name, errInvalidHeaderValue)
	}
	h.Set(name, a.secret.Expose())
	return nil
}

func (a Auth) String() string {
	switch a.kind {
	case authSession:
		return "session(" + redacted + ")"
	case authAPIKey:
		return "api_key(" + redacted + ")"
	default:
		return "none"
	}
}

// GoString matches String.
func (a Auth) GoString() string { return a.String() }

// sensitiveHeaders are masked in debug output.
var sensitiveHeaders = map[string]bool{
	http.CanonicalHeaderKey(HeaderSession): true,
	http.CanonicalHeaderKey(HeaderAPIKey):  true,
	"Authorization":                        true,
	"Cookie":                               true,
	"Set-Cookie":                           true,
}

func isSensitiveHeader(name string) bool {
	return sensitiveHeaders[http.CanonicalHeaderKey(name)]
}

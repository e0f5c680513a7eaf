package httpclient

// Version is the library version reported in the default User-Agent.
const Version = "0.1.0"

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "metabase-go/" + Version

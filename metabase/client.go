// Package metabase is a small typed surface over httpclient for the
// Metabase calls most programs start with: health, login, the current user,
// search, dashboards, dataset export and CSV upload.
//
// Anything else goes through HTTP():
//
//	client, err := metabase.New("https://metabase.example.com",
//	    httpclient.WithAuth(httpclient.APIKeyAuth(key)),
//	)
//	var card map[string]any
//	err = client.HTTP().Request(http.MethodGet).Path("api", "card", "7").JSON(ctx, &card)
package metabase

import (
	"context"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/kroma-labs/metabase-go/config"
	"github.com/kroma-labs/metabase-go/httpclient"
)

// Client groups the typed services. It is safe for concurrent use.
type Client struct {
	http *httpclient.Client

	Sessions   *SessionService
	Users      *UserService
	Dashboards *DashboardService
	Dataset    *DatasetService
	Uploads    *UploadService
}

// New builds a Client on httpclient.New.
func New(baseURL string, opts ...httpclient.Option) (*Client, error) {
	hc, err := httpclient.New(baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return wrap(hc), nil
}

// NewFromConfig builds a Client from loaded settings. opts are applied
// after cfg.Options().
func NewFromConfig(cfg *config.Config, opts ...httpclient.Option) (*Client, error) {
	return New(cfg.BaseURL, append(cfg.Options(), opts...)...)
}

func wrap(hc *httpclient.Client) *Client {
	c := &Client{http: hc}
	c.Sessions = &SessionService{client: c}
	c.Users = &UserService{client: c}
	c.Dashboards = &DashboardService{client: c}
	c.Dataset = &DatasetService{client: c}
	c.Uploads = &UploadService{client: c}
	return c
}

// HTTP returns the engine for calls without a typed method.
func (c *Client) HTTP() *httpclient.Client {
	return c.http
}

// WithAuth returns a Client that sends auth instead of c's credentials.
func (c *Client) WithAuth(auth httpclient.Auth) *Client {
	return wrap(c.http.WithAuth(auth))
}

// Health calls GET /api/health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.http.ExecuteJSON(ctx, httpclient.Call{
		Method:   http.MethodGet,
		Segments: []string{"api", "health"},
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login creates a session and returns a Client authenticated with it.
func (c *Client) Login(ctx context.Context, username string, password httpclient.Secret) (*Client, error) {
	session, err := c.Sessions.Create(ctx, CreateSessionRequest{Username: username, Password: password})
	if err != nil {
		return nil, err
	}
	return c.WithAuth(httpclient.SessionAuth(session.ID.Expose())), nil
}

// Search calls GET /api/search. query is encoded like any httpclient query,
// e.g. map[string]any{"q": "orders", "models": []string{"card"}}.
func (c *Client) Search(ctx context.Context, query any) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.http.ExecuteJSON(ctx, httpclient.Call{
		Method:   http.MethodGet,
		Segments: []string{"api", "search"},
		Query:    query,
	}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

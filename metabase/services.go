package metabase

import (
	"context"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/kroma-labs/metabase-go/httpclient"
)

// SessionService covers /api/session.
type SessionService struct {
	client *Client
}

// Create calls POST /api/session.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest) (*CreateSessionResponse, error) {
	return s.CreateWithOptions(ctx, req, httpclient.RequestOptions{})
}

// CreateWithOptions is Create with per-call options. A login POST is only
// retried when opts carries an idempotency key.
func (s *SessionService) CreateWithOptions(
	ctx context.Context,
	req CreateSessionRequest,
	opts httpclient.RequestOptions,
) (*CreateSessionResponse, error) {
	var out CreateSessionResponse
	if err := s.client.http.ExecuteJSON(ctx, httpclient.Call{
		Method:   http.MethodPost,
		Segments: []string{"api", "session"},
		Body:     req,
		Options:  opts,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete calls DELETE /api/session, ending the client's session.
func (s *SessionService) Delete(ctx context.Context) error {
	return s.client.http.ExecuteJSON(ctx, httpclient.Call{
		Method:   http.MethodDelete,
		Segments: []string{"api", "session"},
	}, nil)
}

// UserService covers /api/user.
type UserService struct {
	client *Client
}

// Current calls GET /api/user/current.
func (s *UserService) Current(ctx context.Context) (*User, error) {
	var out User
	if err := s.client.http.ExecuteJSON(ctx, httpclient.Call{
		Method:   http.MethodGet,
		Segments: []string{"api", "user", "current"},
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DashboardService covers /api/dashboard.
type DashboardService struct {
	client *Client
}

// Get calls GET /api/dashboard/{id}.
func (s *DashboardService) Get(ctx context.Context, id DashboardID) (*Dashboard, error) {
	var out Dashboard
	if err := s.client.http.ExecuteJSON(ctx, httpclient.Call{
		Method:   http.MethodGet,
		Segments: []string{"api", "dashboard", id.String()},
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DatasetService covers /api/dataset.
type DatasetService struct {
	client *Client
}

// Export calls POST /api/dataset/{format} and returns the file as is.
func (s *DatasetService) Export(ctx context.Context, format ExportFormat, query any) ([]byte, error) {
	if format == "" {
		return nil, &httpclient.Error{
			Kind:    httpclient.KindBuild,
			Message: "export format is required",
		}
	}
	return s.client.http.ExecuteBytes(ctx, httpclient.Call{
		Method:   http.MethodPost,
		Segments: []string{"api", "dataset", string(format)},
		Body:     query,
	})
}

// UploadService covers /api/upload.
type UploadService struct {
	client *Client
}

// CSV calls POST /api/upload/csv with form, which usually carries a "file"
// part and a "collection_id" field.
func (s *UploadService) CSV(ctx context.Context, form *httpclient.Form) (json.RawMessage, error) {
	var out json.RawMessage
	if err := s.client.http.ExecuteMultipartJSON(ctx, httpclient.Call{
		Method:   http.MethodPost,
		Segments: []string{"api", "upload", "csv"},
	}, form, &out); err != nil {
		return nil, err
	}
	return out, nil
}

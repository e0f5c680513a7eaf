package metabase

import (
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/kroma-labs/metabase-go/httpclient"
)

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status string `json:"status"`
}

// OK reports whether Metabase finished starting.
func (h *HealthResponse) OK() bool {
	return h != nil && h.Status == "ok"
}

// CreateSessionRequest is the body of POST /api/session.
type CreateSessionRequest struct {
	Username string
	Password httpclient.Secret
}

// MarshalJSON exposes the password. It is the only place it leaves its
// Secret.
func (r CreateSessionRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{
		Username: r.Username,
		Password: r.Password.Expose(),
	})
}

// CreateSessionResponse is returned by POST /api/session. ID is the session
// token.
type CreateSessionResponse struct {
	ID httpclient.Secret
}

// UnmarshalJSON keeps the token inside a Secret.
func (r *CreateSessionResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.ID = httpclient.NewSecret(raw.ID)
	return nil
}

// User is returned by GET /api/user/current. Fields Metabase may omit are
// pointers.
type User struct {
	ID        int64   `json:"id"`
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

// DashboardID identifies a dashboard.
type DashboardID int64

func (id DashboardID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Dashboard is the dashboard JSON as returned by Metabase.
type Dashboard struct {
	json.RawMessage
}

// Get looks up a gjson path, e.g. "name" or "dashcards.#.card_id".
func (d Dashboard) Get(path string) gjson.Result {
	return gjson.GetBytes(d.RawMessage, path)
}

// ExportFormat is the {export-format} segment of POST /api/dataset/{export-format}.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
	ExportXLSX ExportFormat = "xlsx"
)

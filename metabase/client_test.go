package metabase

import (
	"context"
	"net/http"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kroma-labs/metabase-go/config"
	"github.com/kroma-labs/metabase-go/httpclient"
	"github.com/kroma-labs/metabase-go/metabasetest"
)

func noRetries() httpclient.Option {
	return httpclient.WithRetryPolicy(httpclient.DisabledRetryPolicy())
}

func newTestClient(t *testing.T, srv *metabasetest.Server, opts ...httpclient.Option) *Client {
	t.Helper()
	client, err := New(srv.URL(), opts...)
	require.NoError(t, err)
	return client
}

func TestNew(t *testing.T) {
	t.Run("given a valid base URL, then wires every service", func(t *testing.T) {
		client, err := New("https://metabase.example.com")
		require.NoError(t, err)

		assert.Equal(t, "https://metabase.example.com/", client.HTTP().BaseURL())
		assert.NotNil(t, client.Sessions)
		assert.NotNil(t, client.Users)
		assert.NotNil(t, client.Dashboards)
		assert.NotNil(t, client.Dataset)
		assert.NotNil(t, client.Uploads)
	})

	t.Run("given an invalid base URL, then invalid config", func(t *testing.T) {
		client, err := New("https://metabase.example.com?x=1")
		assert.Nil(t, client)
		assert.ErrorIs(t, err, httpclient.ErrInvalidConfig)
	})
}

func TestNewFromConfig(t *testing.T) {
	srv := metabasetest.NewServer(t, metabasetest.WithAPIKey("mb_cfg"))
	srv.Handle(http.MethodGet, "/api/user/current", metabasetest.JSON(http.StatusOK, `{"id":4}`))

	cfg, err := config.Load(config.WithoutEnv(), config.WithYAML([]byte(
		"baseurl: "+srv.URL()+"\nauth:\n  apikey: mb_cfg\nuseragent: reports/3\n",
	)))
	require.NoError(t, err)

	client, err := NewFromConfig(cfg, httpclient.WithServiceName("reports"))
	require.NoError(t, err)

	user, err := client.Users.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), user.ID)

	req, _ := srv.LastRequest()
	assert.Equal(t, "reports/3", req.Header.Get("User-Agent"))
}

func TestClient_Health(t *testing.T) {
	tests := []struct {
		name    string
		replies []metabasetest.Reply
		wantOK  bool
		wantErr error
	}{
		{
			name:    "given a healthy instance, then ok",
			replies: []metabasetest.Reply{metabasetest.JSON(http.StatusOK, `{"status":"ok"}`)},
			wantOK:  true,
		},
		{
			name:    "given a starting instance, then not ok",
			replies: []metabasetest.Reply{metabasetest.JSON(http.StatusOK, `{"status":"initializing"}`)},
		},
		{
			name: "given a transient 503, then retried",
			replies: []metabasetest.Reply{
				{Status: http.StatusServiceUnavailable},
				metabasetest.JSON(http.StatusOK, `{"status":"ok"}`),
			},
			wantOK: true,
		},
		{
			name:    "given a malformed body, then decode error",
			replies: []metabasetest.Reply{metabasetest.JSON(http.StatusOK, `{"status":`)},
			wantErr: httpclient.ErrDecode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := metabasetest.NewServer(t)
			srv.Handle(http.MethodGet, "/api/health", tt.replies...)
			client := newTestClient(t, srv, httpclient.WithRetryPolicy(httpclient.RetryPolicy{
				MaxRetries: 2,
				BaseDelay:  time.Millisecond,
				MaxDelay:   time.Millisecond,
				Jitter:     httpclient.JitterNone,
			}))

			health, err := client.Health(context.Background())

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, health)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, health.OK())
		})
	}
}

func TestSessionService_Create(t *testing.T) {
	srv := metabasetest.NewServer(t)
	srv.Handle(http.MethodPost, "/api/session", metabasetest.JSON(http.StatusOK, `{"id":"sess-42"}`))
	client := newTestClient(t, srv)

	session, err := client.Sessions.Create(context.Background(), CreateSessionRequest{
		Username: "ada@example.com",
		Password: httpclient.NewSecret("hunter2"),
	})

	require.NoError(t, err)
	assert.Equal(t, "sess-42", session.ID.Expose())
	assert.Equal(t, "<redacted>", session.ID.String())

	req, _ := srv.LastRequest()
	assert.JSONEq(t, `{"username":"ada@example.com","password":"hunter2"}`, string(req.Body))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
}

func TestSessionService_CreateWithOptions(t *testing.T) {
	t.Run("given no idempotency key, then a failed login is not retried", func(t *testing.T) {
		srv := metabasetest.NewServer(t)
		srv.Handle(http.MethodPost, "/api/session",
			metabasetest.Reply{Status: http.StatusBadGateway},
			metabasetest.JSON(http.StatusOK, `{"id":"s"}`),
		)
		client := newTestClient(t, srv)

		_, err := client.Sessions.Create(context.Background(), CreateSessionRequest{Username: "u"})

		assert.ErrorIs(t, err, httpclient.ErrAPI)
		assert.Equal(t, 1, srv.Count(http.MethodPost, "/api/session"))
	})

	t.Run("given an idempotency key, then a failed login is retried", func(t *testing.T) {
		srv := metabasetest.NewServer(t)
		srv.Handle(http.MethodPost, "/api/session",
			metabasetest.Reply{Status: http.StatusBadGateway},
			metabasetest.JSON(http.StatusOK, `{"id":"s"}`),
		)
		client := newTestClient(t, srv, httpclient.WithRetryPolicy(httpclient.RetryPolicy{
			MaxRetries: 1,
			Jitter:     httpclient.JitterNone,
		}))

		key := httpclient.NewIdempotencyKey()
		session, err := client.Sessions.CreateWithOptions(context.Background(),
			CreateSessionRequest{Username: "u"},
			httpclient.RequestOptions{IdempotencyKey: key},
		)

		require.NoError(t, err)
		assert.Equal(t, "s", session.ID.Expose())
		require.Len(t, srv.Requests(), 2)
		for _, req := range srv.Requests() {
			assert.Equal(t, key.String(), req.Header.Get(httpclient.HeaderIdempotencyKey))
		}
	})
}

func TestSessionService_Delete(t *testing.T) {
	srv := metabasetest.NewServer(t, metabasetest.WithSession("sess-1"))
	srv.Handle(http.MethodDelete, "/api/session", metabasetest.Reply{Status: http.StatusNoContent})
	client := newTestClient(t, srv, httpclient.WithAuth(httpclient.SessionAuth("sess-1")))

	require.NoError(t, client.Sessions.Delete(context.Background()))
	assert.Equal(t, 1, srv.Count(http.MethodDelete, "/api/session"))
}

func TestClient_Login(t *testing.T) {
	srv := metabasetest.NewServer(t, metabasetest.WithSession("sess-login"))
	srv.Handle(http.MethodPost, "/api/session", metabasetest.JSON(http.StatusOK, `{"id":"sess-login"}`))
	srv.Handle(http.MethodGet, "/api/user/current",
		metabasetest.JSON(http.StatusOK, `{"id":1,"email":"ada@example.com","first_name":"Ada"}`))

	anon := newTestClient(t, srv, noRetries())

	_, err := anon.Users.Current(context.Background())
	require.ErrorIs(t, err, httpclient.ErrAuth)

	authed, err := anon.Login(context.Background(), "ada@example.com", httpclient.NewSecret("pw"))
	require.NoError(t, err)

	user, err := authed.Users.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	require.NotNil(t, user.Email)
	assert.Equal(t, "ada@example.com", *user.Email)
	assert.Nil(t, user.LastName)

	req, _ := srv.LastRequest()
	assert.Equal(t, "sess-login", req.Header.Get(httpclient.HeaderSession))
}

func TestClient_LoginFailure(t *testing.T) {
	srv := metabasetest.NewServer(t)
	srv.Handle(http.MethodPost, "/api/session",
		metabasetest.JSON(http.StatusUnauthorized, `{"errors":{"password":"did not match stored password"}}`))
	client := newTestClient(t, srv)

	authed, err := client.Login(context.Background(), "ada@example.com", httpclient.NewSecret("wrong"))

	assert.Nil(t, authed)
	require.ErrorIs(t, err, httpclient.ErrAuth)
	mbErr, ok := httpclient.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, mbErr.StatusCode())
	assert.NotContains(t, err.Error(), "wrong")
}

func TestClient_Search(t *testing.T) {
	srv := metabasetest.NewServer(t)
	srv.Handle(http.MethodGet, "/api/search", metabasetest.JSON(http.StatusOK, `{"data":[{"model":"card","id":3}],"total":1}`))
	client := newTestClient(t, srv)

	result, err := client.Search(context.Background(), map[string]any{
		"q":      "orders",
		"models": []string{"card", "dashboard"},
	})

	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[{"model":"card","id":3}],"total":1}`, string(result))

	req, _ := srv.LastRequest()
	assert.Equal(t, "models=card&models=dashboard&q=orders", req.RawQuery)
}

func TestDashboardService_Get(t *testing.T) {
	srv := metabasetest.NewServer(t)
	srv.Handle(http.MethodGet, "/api/dashboard/{id}", metabasetest.JSON(http.StatusOK,
		`{"id":12,"name":"Sales","dashcards":[{"card_id":3},{"card_id":5}]}`))
	client := newTestClient(t, srv)

	dashboard, err := client.Dashboards.Get(context.Background(), DashboardID(12))

	require.NoError(t, err)
	assert.Equal(t, "Sales", dashboard.Get("name").String())
	assert.Equal(t, `[3,5]`, dashboard.Get("dashcards.#.card_id").Raw)

	req, _ := srv.LastRequest()
	assert.Equal(t, "/api/dashboard/12", req.Path)
}

func TestDashboardService_GetNotFound(t *testing.T) {
	srv := metabasetest.NewServer(t)
	srv.Handle(http.MethodGet, "/api/dashboard/{id}", metabasetest.JSON(http.StatusNotFound, `{"message":"Not found."}`))
	client := newTestClient(t, srv)

	dashboard, err := client.Dashboards.Get(context.Background(), 404)

	assert.Nil(t, dashboard)
	require.ErrorIs(t, err, httpclient.ErrNotFound)
	mbErr, _ := httpclient.AsError(err)
	assert.Equal(t, "Not found.", mbErr.Message)
	assert.Equal(t, "/api/dashboard/404", mbErr.Path)
}

func TestDatasetService_Export(t *testing.T) {
	srv := metabasetest.NewServer(t)
	srv.Handle(http.MethodPost, "/api/dataset/{format}", metabasetest.Reply{
		Status: http.StatusOK,
		Body:   "id,total\n1,9.5\n",
		Header: http.Header{"Content-Type": []string{"text/csv"}},
	})
	client := newTestClient(t, srv)

	query := map[string]any{"database": 1, "type": "native", "native": map[string]any{"query": "select 1"}}
	data, err := client.Dataset.Export(context.Background(), ExportCSV, query)

	require.NoError(t, err)
	assert.Equal(t, "id,total\n1,9.5\n", string(data))

	req, _ := srv.LastRequest()
	assert.Equal(t, "/api/dataset/csv", req.Path)
	assert.Equal(t, "*/*", req.Header.Get("Accept"))
	want, err := json.Marshal(query)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(req.Body))
}

func TestDatasetService_ExportRequiresFormat(t *testing.T) {
	srv := metabasetest.NewServer(t)
	client := newTestClient(t, srv)

	data, err := client.Dataset.Export(context.Background(), "", nil)

	assert.Nil(t, data)
	assert.ErrorIs(t, err, httpclient.ErrBuild)
	assert.Empty(t, srv.Requests())
}

func TestUploadService_CSV(t *testing.T) {
	srv := metabasetest.NewServer(t, metabasetest.WithAPIKey("mb_key"))
	srv.Handle(http.MethodPost, "/api/upload/csv", metabasetest.JSON(http.StatusOK, `42`))
	client := newTestClient(t, srv, httpclient.WithAuth(httpclient.APIKeyAuth("mb_key")))

	form := httpclient.NewForm().
		Text("collection_id", "7").
		FileWithContentType("file", "orders.csv", "text/csv", []byte("id\n1\n"))

	out, err := client.Uploads.CSV(context.Background(), form)

	require.NoError(t, err)
	assert.Equal(t, "42", string(out))

	req, _ := srv.LastRequest()
	assert.Contains(t, req.Header.Get("Content-Type"), "multipart/form-data; boundary=")
	assert.Contains(t, string(req.Body), `filename="orders.csv"`)
	assert.Contains(t, string(req.Body), "id\n1\n")
}

func TestClient_RateLimitedRetryAfter(t *testing.T) {
	srv := metabasetest.NewServer(t)
	srv.Handle(http.MethodGet, "/api/search", metabasetest.RetryAfter(30))
	client := newTestClient(t, srv, noRetries())

	_, err := client.Search(context.Background(), nil)

	require.ErrorIs(t, err, httpclient.ErrRateLimited)
	mbErr, _ := httpclient.AsError(err)
	assert.True(t, mbErr.HasRetryAfter)
	assert.Equal(t, 30*time.Second, mbErr.RetryAfter)
	assert.NotEmpty(t, mbErr.RequestID)
}

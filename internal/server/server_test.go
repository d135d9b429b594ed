package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/task-manager/internal/config"
	sqliteRepo "github.com/sakif/task-manager/internal/repository/sqlite"
)

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	cfg, err := config.LoadFrom(map[string]string{
		"JWT_SECRET":  "server-test-secret-0123456789",
		"BCRYPT_COST": "4",
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	s, err := NewWithStore(cfg, logger, store)
	require.NoError(t, err)
	return s.Handler()
}

func call(t *testing.T, h http.Handler, method, path, token, body string) (int, response) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var resp response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), "body: %s", rr.Body.String())
	return rr.Code, resp
}

func TestAliceLifecycle(t *testing.T) {
	h := newTestServer(t)

	code, resp := call(t, h, http.MethodPost, "/auth/register", "",
		`{"username":"alice","email":"alice@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, code, resp.Message)

	var auth struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &auth))
	require.NotEmpty(t, auth.Token)

	code, resp = call(t, h, http.MethodPost, "/tasks", auth.Token, `{"title":"Buy milk"}`)
	require.Equal(t, http.StatusCreated, code, resp.Message)

	var created struct {
		Task struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"task"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	assert.Equal(t, "pending", created.Task.Status)
	id := created.Task.ID

	var list struct {
		Count int `json:"count"`
	}
	code, resp = call(t, h, http.MethodGet, "/tasks", auth.Token, "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	assert.Equal(t, 1, list.Count)

	code, resp = call(t, h, http.MethodPatch, "/tasks/"+id+"/done", auth.Token, "")
	require.Equal(t, http.StatusOK, code, resp.Message)
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	assert.Equal(t, "done", created.Task.Status)

	code, resp = call(t, h, http.MethodDelete, "/tasks/"+id, auth.Token, "")
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, resp = call(t, h, http.MethodGet, "/tasks", auth.Token, "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	assert.Equal(t, 0, list.Count)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	h := newTestServer(t)

	code, _ := call(t, h, http.MethodPost, "/auth/register", "",
		`{"username":"alice","email":"alice@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, code)

	wrongPwCode, wrongPw := call(t, h, http.MethodPost, "/auth/login", "",
		`{"email":"alice@x.com","password":"wrongpass"}`)
	unknownCode, unknown := call(t, h, http.MethodPost, "/auth/login", "",
		`{"email":"nobody@x.com","password":"whatever"}`)

	assert.Equal(t, http.StatusUnauthorized, wrongPwCode)
	assert.Equal(t, http.StatusUnauthorized, unknownCode)
	assert.Equal(t, wrongPw.Message, unknown.Message)
	assert.False(t, wrongPw.Success)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/auth/me"},
		{http.MethodGet, "/tasks"},
		{http.MethodPost, "/tasks"},
		{http.MethodGet, "/tasks/stats"},
		{http.MethodGet, "/tasks/abc"},
		{http.MethodPut, "/tasks/abc"},
		{http.MethodDelete, "/tasks/abc"},
		{http.MethodPatch, "/tasks/abc/done"},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			code, resp := call(t, h, tc.method, tc.path, "", `{}`)
			assert.Equal(t, http.StatusUnauthorized, code)
			assert.Equal(t, "no token provided", resp.Message)
		})
	}
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	h := newTestServer(t)

	code, resp := call(t, h, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, resp.Success)

	code, resp = call(t, h, http.MethodPost, "/healthz", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	assert.False(t, resp.Success)
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t)

	code, resp := call(t, h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t)

	call(t, h, http.MethodPost, "/auth/login", "", `{"email":"x@example.com","password":"pw"}`)
	call(t, h, http.MethodGet, "/tasks/some-id", "", "")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `taskmanager_auth_attempts_total{op="login",outcome="failure"} 1`)
	assert.Contains(t, string(body), `route="/tasks/{id}"`)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/tasks", nil)
	req.Header.Set("Origin", "http://localhost:8081")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

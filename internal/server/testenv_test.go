package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bearkuang/oristagram/internal/config"
	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testPassword = "Str0ng!Passw0rd"

// testEnv is a fully wired server over in-memory SQLite and miniredis.
type testEnv struct {
	t     *testing.T
	srv   *Server
	app   *fiber.App
	db    *gorm.DB
	redis *redis.Client
	mr    *miniredis.Miniredis
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db := testutil.NewSQLiteDB(t)
	cfg := &config.Config{
		JWTSecret:      "handler-test-secret-0123456789abcdef",
		Env:            "test",
		MediaUploadDir: t.TempDir(),
	}

	srv, err := NewServerWithDeps(cfg, db, rdb, opts...)
	require.NoError(t, err)
	app := srv.App()

	ctx, cancel := context.WithCancel(context.Background())
	srv.StartHubs(ctx)
	t.Cleanup(func() {
		cancel()
		_ = srv.chatHub.Shutdown(context.Background())
	})

	return &testEnv{t: t, srv: srv, app: app, db: db, redis: rdb, mr: mr}
}

// register creates an account through the API and returns it with its tokens.
func (e *testEnv) register(username string) (*models.User, string) {
	e.t.Helper()
	resp := e.do(http.MethodPost, "/api/auth/register", "", fiber.Map{
		"username": username,
		"email":    username + "@example.com",
		"password": testPassword,
	})
	require.Equal(e.t, http.StatusCreated, resp.StatusCode, readBody(e.t, resp))

	var res struct {
		User   models.User `json:"user"`
		Access string      `json:"access"`
	}
	decode(e.t, resp, &res)
	return &res.User, res.Access
}

// do sends a JSON request. body may be nil.
func (e *testEnv) do(method, path, token string, body any) *http.Response {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

type formFile struct {
	field, name string
	content     []byte
}

// upload sends a multipart form with the given fields and files.
func (e *testEnv) upload(method, path, token string, fields map[string]string, files ...formFile) *http.Response {
	e.t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(e.t, w.WriteField(k, v))
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.name)
		require.NoError(e.t, err)
		_, err = part.Write(f.content)
		require.NoError(e.t, err)
	}
	require.NoError(e.t, w.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	return string(raw)
}

func errorOf(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body models.ErrorResponse
	decode(t, resp, &body)
	return body.Error
}

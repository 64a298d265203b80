package server

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/bearkuang/oristagram/internal/config"
	"github.com/bearkuang/oristagram/internal/middleware"
	"github.com/bearkuang/oristagram/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := middleware.Logger
	middleware.Logger = slog.New(slog.NewJSONHandler(&buf, nil))
	t.Cleanup(func() { middleware.Logger = prev })
	return &buf
}

func TestNewServerWithDeps_WarnsWhenVideoLengthUnchecked(t *testing.T) {
	cfg := &config.Config{JWTSecret: "handler-test-secret-0123456789abcdef", Env: "test", MediaUploadDir: t.TempDir()}

	logs := captureLogs(t)
	srv, err := NewServerWithDeps(cfg, testutil.NewSQLiteDB(t), nil)
	require.NoError(t, err)
	assert.Nil(t, srv.prober)
	assert.Contains(t, logs.String(), "length limits are not enforced")
	assert.Contains(t, logs.String(), `"ffprobe_enabled":false`)

	logs = captureLogs(t)
	srv, err = NewServerWithDeps(cfg, testutil.NewSQLiteDB(t), nil, WithVideoProber(&testutil.StubProber{Duration: time.Second}))
	require.NoError(t, err)
	assert.NotNil(t, srv.prober)
	assert.NotContains(t, logs.String(), "length limits are not enforced")
}

func TestNewServerWithDeps_WarnsAboutUnknownFlags(t *testing.T) {
	cfg := &config.Config{
		JWTSecret:      "handler-test-secret-0123456789abcdef",
		Env:            "test",
		MediaUploadDir: t.TempDir(),
		FeatureFlags:   "explore_reels=off,stories=on",
	}

	logs := captureLogs(t)
	srv, err := NewServerWithDeps(cfg, testutil.NewSQLiteDB(t), nil)
	require.NoError(t, err)
	assert.False(t, srv.featureFlags.Enabled("explore_reels", 1))
	assert.Contains(t, logs.String(), "FEATURE_FLAGS names unknown flags")
	assert.Contains(t, logs.String(), `"stories"`)
}

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

var threePerMinute = Quota{Name: "comment", Requests: 3, Window: time.Minute, Message: "slow down"}

func TestRateLimitsEnabled(t *testing.T) {
	for _, env := range []string{"", "test", "development", "stress"} {
		assert.False(t, RateLimitsEnabled(env), env)
	}
	for _, env := range []string{"production", "staging"} {
		assert.True(t, RateLimitsEnabled(env), env)
	}
}

func TestLimiter_BypassedOutsideProduction(t *testing.T) {
	allowed, _, err := NewLimiter(nil, "test").Allow(context.Background(), AuthQuota, "ip:1.2.3.4")
	assert.NoError(t, err)
	assert.True(t, allowed)

	var nilLimiter *Limiter
	allowed, _, err = nilLimiter.Allow(context.Background(), AuthQuota, "ip:1.2.3.4")
	assert.NoError(t, err)
	assert.True(t, allowed)
}

func TestLimiter_NilRedisInProduction(t *testing.T) {
	allowed, _, err := NewLimiter(nil, "production").Allow(context.Background(), AuthQuota, "ip:1.2.3.4")
	assert.Error(t, err)
	assert.False(t, allowed)
}

func TestLimiter_CountsWithinWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	limiter := NewLimiter(rdb, "production")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := limiter.Allow(ctx, threePerMinute, "user:7")
		require.NoError(t, err)
		assert.True(t, allowed, "hit %d", i+1)
	}

	allowed, retryAfter, err := limiter.Allow(ctx, threePerMinute, "user:7")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, time.Minute)
	assert.True(t, mr.Exists("rl:comment:user:7"))

	// a different identity has its own bucket
	allowed, _, err = limiter.Allow(ctx, threePerMinute, "user:8")
	require.NoError(t, err)
	assert.True(t, allowed)

	// and so does a different quota
	allowed, _, err = limiter.Allow(ctx, WSMessageQuota, "user:7")
	require.NoError(t, err)
	assert.True(t, allowed)

	mr.FastForward(time.Minute + time.Second)
	allowed, _, err = limiter.Allow(ctx, threePerMinute, "user:7")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestDomainQuotas(t *testing.T) {
	assert.Equal(t, 10, AuthQuota.Requests)
	assert.Equal(t, FailClosed, AuthQuota.Policy)
	assert.Equal(t, 20, CommentQuota.Requests)
	assert.Equal(t, 20, ChatMessageQuota.Requests)
	assert.Equal(t, 30, WSMessageQuota.Requests)
	for _, q := range []Quota{AuthQuota, CommentQuota, ChatMessageQuota, WSMessageQuota} {
		assert.Equal(t, time.Minute, q.Window, q.Name)
		assert.NotEmpty(t, q.Message, q.Name)
	}
}

func TestLimiterHandler(t *testing.T) {
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }

	t.Run("bypass in test mode", func(t *testing.T) {
		app := fiber.New()
		app.Post("/api/auth/login", NewLimiter(nil, "test").Handler(AuthQuota), ok)

		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("comment quota fails open without redis", func(t *testing.T) {
		app := fiber.New()
		app.Post("/api/posts/1/comment", NewLimiter(nil, "production").Handler(CommentQuota), ok)

		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/posts/1/comment", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("auth quota fails closed without redis", func(t *testing.T) {
		app := fiber.New()
		app.Post("/api/auth/login", NewLimiter(nil, "production").Handler(AuthQuota), ok)

		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("429 with Retry-After once spent", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		limiter := NewLimiter(rdb, "production")
		app := fiber.New()
		app.Post("/api/chatrooms/1/messages", func(c *fiber.Ctx) error {
			c.Locals("userID", uint(4))
			return c.Next()
		}, limiter.Handler(Quota{Name: "chat_message", Requests: 2, Window: time.Minute, Message: "too fast"}), ok)

		codes := make([]int, 0, 3)
		var last *http.Response
		for i := 0; i < 3; i++ {
			resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/chatrooms/1/messages", nil))
			require.NoError(t, err)
			codes = append(codes, resp.StatusCode)
			if last != nil {
				_ = last.Body.Close()
			}
			last = resp
		}
		defer func() { _ = last.Body.Close() }()
		assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
		assert.NotEmpty(t, last.Header.Get("Retry-After"))

		allowed, _, err := limiter.Allow(context.Background(), Quota{Name: "chat_message", Requests: 2, Window: time.Minute}, "user:4")
		require.NoError(t, err)
		assert.False(t, allowed, "the handler keys by user")
	})
}

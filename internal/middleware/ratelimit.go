// Package middleware provides the request pipeline pieces shared by every route:
// structured logging, request context, rate limiting, metrics and tracing.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy defines the behavior when the rate limit store (Redis) is unavailable.
type FailPolicy int

const (
	// FailOpen allows the request to proceed if Redis is unavailable.
	FailOpen FailPolicy = iota
	// FailClosed blocks the request (503 Service Unavailable) if Redis is unavailable.
	FailClosed
)

// Quota is a named fixed-window allowance.
type Quota struct {
	Name     string
	Requests int
	Window   time.Duration
	Policy   FailPolicy
	Message  string
}

var (
	// AuthQuota guards register, login, refresh and reactivate per client IP.
	// Credential stuffing should not get through while Redis is down.
	AuthQuota = Quota{
		Name:     "auth",
		Requests: 10,
		Window:   time.Minute,
		Policy:   FailClosed,
		Message:  "Too many sign-in attempts. Please try again later.",
	}
	// CommentQuota covers comments and replies on posts and reels.
	CommentQuota = Quota{
		Name:     "comment",
		Requests: 20,
		Window:   time.Minute,
		Message:  "You are commenting too fast. Please wait a moment.",
	}
	// ChatMessageQuota covers messages sent over HTTP.
	ChatMessageQuota = Quota{
		Name:     "chat_message",
		Requests: 20,
		Window:   time.Minute,
		Message:  "You are sending messages too fast. Please wait a moment.",
	}
	// WSMessageQuota covers frames sent over the chat websocket.
	WSMessageQuota = Quota{
		Name:     "ws_message",
		Requests: 30,
		Window:   time.Minute,
		Message:  "Rate limit exceeded. Please wait a moment.",
	}
)

// RateLimitsEnabled reports whether quotas apply in env. Local and load test
// environments are never throttled.
func RateLimitsEnabled(env string) bool {
	switch env {
	case "", "test", "development", "stress":
		return false
	}
	return true
}

// Limiter counts quota usage in Redis.
type Limiter struct {
	rdb     *redis.Client
	enabled bool
}

// NewLimiter returns a Limiter for env. rdb may be nil; quotas then follow
// their FailPolicy.
func NewLimiter(rdb *redis.Client, env string) *Limiter {
	return &Limiter{rdb: rdb, enabled: RateLimitsEnabled(env)}
}

func rateLimitKey(q Quota, subject string) string {
	return fmt.Sprintf("rl:%s:%s", q.Name, subject)
}

// Allow records one hit for subject and reports whether it is within q.
// retryAfter is the time left in the window when the hit is refused.
func (l *Limiter) Allow(ctx context.Context, q Quota, subject string) (allowed bool, retryAfter time.Duration, err error) {
	if l == nil || !l.enabled {
		return true, 0, nil
	}
	if l.rdb == nil {
		return false, 0, fmt.Errorf("redis client is nil")
	}

	key := rateLimitKey(q, subject)
	cnt, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		RedisErrors.WithLabelValues("incr").Inc()
		return false, 0, err
	}
	// the first hit in a window sets the expiry
	if cnt == 1 {
		l.rdb.Expire(ctx, key, q.Window)
	}
	if cnt <= int64(q.Requests) {
		return true, 0, nil
	}

	RateLimitRejections.WithLabelValues(q.Name).Inc()
	ttl, err := l.rdb.TTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		ttl = q.Window
	}
	return false, ttl, nil
}

// subjectOf keys signed-in callers by user and everyone else by IP.
func subjectOf(c *fiber.Ctx) string {
	if uid := c.Locals("userID"); uid != nil {
		return fmt.Sprintf("user:%v", uid)
	}
	return "ip:" + c.IP()
}

// Handler enforces q on a route. A refused request gets 429 with Retry-After.
func (l *Limiter) Handler(q Quota) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		allowed, retryAfter, err := l.Allow(ctx, q, subjectOf(c))
		if err != nil {
			if q.Policy == FailClosed {
				Logger.WarnContext(ctx, "rate limit fail-closed",
					slog.String("quota", q.Name),
					slog.String("path", c.Path()),
					slog.String("error", err.Error()),
				)
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "rate limit unavailable",
				})
			}
			return c.Next()
		}

		if !allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(retryAfter.Round(time.Second).Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": q.Message,
			})
		}
		return c.Next()
	}
}

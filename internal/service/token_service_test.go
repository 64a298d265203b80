package service

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/bearkuang/oristagram/internal/config"
	"github.com/bearkuang/oristagram/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-for-hs256"

func newTestTokenService(t *testing.T) (*TokenService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewTokenService(TokenConfig{
		Secret:     testSecret,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: time.Hour,
		TempTTL:    10 * time.Minute,
	}, rdb), mr
}

func TestTokenConfigFrom(t *testing.T) {
	tc := TokenConfigFrom(&config.Config{JWTSecret: "s", TempTokenTTLMinutes: 3})
	assert.Equal(t, 15*time.Minute, tc.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, tc.RefreshTTL)
	assert.Equal(t, 3*time.Minute, tc.TempTTL)
}

func TestTokenService_RoundTrip(t *testing.T) {
	svc, _ := newTestTokenService(t)
	ctx := context.Background()

	pair, err := svc.IssuePair(42)
	require.NoError(t, err)

	claims, err := svc.Parse(ctx, pair.Access, TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, TokenTypeAccess, claims.Type)
	assert.NotEmpty(t, claims.JTI)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt, 5*time.Second)

	claims, err = svc.Parse(ctx, pair.Refresh, TokenTypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, claims.Type)
}

func TestTokenService_TypeIsEnforced(t *testing.T) {
	svc, _ := newTestTokenService(t)
	ctx := context.Background()

	pair, err := svc.IssuePair(1)
	require.NoError(t, err)
	temp, err := svc.IssueTemp(1)
	require.NoError(t, err)

	_, err = svc.Parse(ctx, pair.Refresh, TokenTypeAccess)
	assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))

	_, err = svc.Parse(ctx, temp, TokenTypeAccess)
	assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))

	_, err = svc.VerifyTemp(ctx, pair.Access)
	assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))

	claims, err := svc.VerifyTemp(ctx, temp)
	require.NoError(t, err)
	assert.Equal(t, uint(1), claims.UserID)
	assert.Equal(t, TokenTypeTemp, claims.Type)
}

func TestTokenService_RejectsForeignTokens(t *testing.T) {
	svc, _ := newTestTokenService(t)
	ctx := context.Background()

	sign := func(secret string, claims jwt.MapClaims, method jwt.SigningMethod) string {
		tok, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return tok
	}
	base := func() jwt.MapClaims {
		now := time.Now()
		return jwt.MapClaims{
			"sub": strconv.Itoa(7),
			"iss": tokenIssuer,
			"aud": tokenAudience,
			"exp": now.Add(time.Minute).Unix(),
			"iat": now.Unix(),
			"jti": "x",
			"typ": TokenTypeAccess,
		}
	}

	wrongIssuer := base()
	wrongIssuer["iss"] = "someone-else"
	wrongAudience := base()
	wrongAudience["aud"] = "other-client"
	expired := base()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	noExpiry := base()
	delete(noExpiry, "exp")

	tests := map[string]string{
		"wrong secret":   sign("another-secret-another-secret-xx", base(), jwt.SigningMethodHS256),
		"wrong issuer":   sign(testSecret, wrongIssuer, jwt.SigningMethodHS256),
		"wrong audience": sign(testSecret, wrongAudience, jwt.SigningMethodHS256),
		"expired":        sign(testSecret, expired, jwt.SigningMethodHS256),
		"no expiry":      sign(testSecret, noExpiry, jwt.SigningMethodHS256),
		"garbage":        "not.a.jwt",
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Parse(ctx, tok, TokenTypeAccess)
			assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))
		})
	}

	ok := sign(testSecret, base(), jwt.SigningMethodHS512)
	claims, err := svc.Parse(ctx, ok, TokenTypeAccess)
	require.NoError(t, err, "any HMAC variant signed with the secret is accepted")
	assert.Equal(t, uint(7), claims.UserID)
}

func TestTokenService_RevokeBlacklistsUntilExpiry(t *testing.T) {
	svc, mr := newTestTokenService(t)
	ctx := context.Background()

	access, err := svc.IssueAccess(3)
	require.NoError(t, err)
	claims, err := svc.Parse(ctx, access, TokenTypeAccess)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, claims))
	assert.True(t, mr.Exists("jwt:blacklist:"+claims.JTI))
	ttl := mr.TTL("jwt:blacklist:" + claims.JTI)
	assert.True(t, ttl > 14*time.Minute && ttl <= 15*time.Minute, "ttl was %s", ttl)

	_, err = svc.Parse(ctx, access, TokenTypeAccess)
	require.Error(t, err)
	assert.EqualError(t, err, "Token has been revoked")

	other, err := svc.IssueAccess(3)
	require.NoError(t, err)
	_, err = svc.Parse(ctx, other, TokenTypeAccess)
	assert.NoError(t, err)
}

func TestTokenService_WithoutRedis(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: testSecret, AccessTTL: time.Minute}, nil)
	ctx := context.Background()

	access, err := svc.IssueAccess(9)
	require.NoError(t, err)
	claims, err := svc.Parse(ctx, access, TokenTypeAccess)
	require.NoError(t, err)
	assert.NoError(t, svc.Revoke(ctx, claims))

	revoked, err := svc.IsRevoked(ctx, claims.JTI)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestTokenService_MissingSecret(t *testing.T) {
	svc := NewTokenService(TokenConfig{AccessTTL: time.Minute}, nil)
	_, err := svc.IssueAccess(1)
	assert.Equal(t, models.CodeInternal, models.ErrorCode(err))
}

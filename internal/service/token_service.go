package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bearkuang/oristagram/internal/cache"
	"github.com/bearkuang/oristagram/internal/config"
	"github.com/bearkuang/oristagram/internal/middleware"
	"github.com/bearkuang/oristagram/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Token types carried in the "typ" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
	TokenTypeTemp    = "temp"
)

const (
	tokenIssuer   = "oristagram-api"
	tokenAudience = "oristagram-client"
)

// TokenConfig holds the signing secret and lifetimes.
type TokenConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	TempTTL    time.Duration
}

// TokenConfigFrom reads token settings from cfg, falling back to 15m / 7d / 10m.
func TokenConfigFrom(cfg *config.Config) TokenConfig {
	tc := TokenConfig{
		Secret:     cfg.JWTSecret,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		TempTTL:    10 * time.Minute,
	}
	if cfg.AccessTokenTTLMinutes > 0 {
		tc.AccessTTL = time.Duration(cfg.AccessTokenTTLMinutes) * time.Minute
	}
	if cfg.RefreshTokenTTLHours > 0 {
		tc.RefreshTTL = time.Duration(cfg.RefreshTokenTTLHours) * time.Hour
	}
	if cfg.TempTokenTTLMinutes > 0 {
		tc.TempTTL = time.Duration(cfg.TempTokenTTLMinutes) * time.Minute
	}
	return tc
}

// TokenPair is returned by register, login and reactivate.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// TokenClaims is the verified subset of a token's claims.
type TokenClaims struct {
	UserID    uint
	Type      string
	JTI       string
	ExpiresAt time.Time
}

// TempTokenVerifier authenticates the reactivate and delete-account endpoints
// of a deactivated account. It accepts temp tokens only.
type TempTokenVerifier interface {
	VerifyTemp(ctx context.Context, token string) (*TokenClaims, error)
}

// TokenService signs and verifies HS256 JWTs and keeps the jti blacklist.
type TokenService struct {
	cfg   TokenConfig
	redis *redis.Client
	now   func() time.Time
}

// NewTokenService returns a TokenService. rdb may be nil, in which case
// revocation is not enforced.
func NewTokenService(cfg TokenConfig, rdb *redis.Client) *TokenService {
	return &TokenService{cfg: cfg, redis: rdb, now: time.Now}
}

var errInvalidToken = models.NewUnauthorizedError("Invalid or expired token")

// IssuePair signs a fresh access and refresh token for userID.
func (s *TokenService) IssuePair(userID uint) (*TokenPair, error) {
	access, err := s.sign(userID, TokenTypeAccess, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(userID, TokenTypeRefresh, s.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// IssueAccess signs a single access token.
func (s *TokenService) IssueAccess(userID uint) (string, error) {
	return s.sign(userID, TokenTypeAccess, s.cfg.AccessTTL)
}

// IssueTemp signs a short-lived token for a deactivated account.
func (s *TokenService) IssueTemp(userID uint) (string, error) {
	return s.sign(userID, TokenTypeTemp, s.cfg.TempTTL)
}

func (s *TokenService) sign(userID uint, typ string, ttl time.Duration) (string, error) {
	if s.cfg.Secret == "" {
		return "", models.NewInternalError(fmt.Errorf("JWT secret not configured"))
	}

	now := s.now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatUint(uint64(userID), 10),
		"iss": tokenIssuer,
		"aud": tokenAudience,
		"exp": now.Add(ttl).Unix(),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"jti": uuid.NewString(),
		"typ": typ,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", models.NewInternalError(err)
	}
	return signed, nil
}

// Parse verifies signature, issuer, audience, expiry and type, then checks
// the blacklist.
func (s *TokenService) Parse(ctx context.Context, tokenString, wantType string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errInvalidToken
	}
	if typ, _ := claims["typ"].(string); typ != wantType {
		return nil, models.NewUnauthorizedError("Invalid token type")
	}

	userID, err := middleware.SubjectUserID(claims)
	if err != nil {
		return nil, models.NewUnauthorizedError(err.Error())
	}

	out := &TokenClaims{UserID: userID, Type: wantType}
	out.JTI, _ = claims["jti"].(string)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}

	revoked, err := s.IsRevoked(ctx, out.JTI)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "token blacklist lookup failed", slog.String("error", err.Error()))
	}
	if revoked {
		return nil, models.NewUnauthorizedError("Token has been revoked")
	}
	return out, nil
}

// VerifyTemp implements TempTokenVerifier.
func (s *TokenService) VerifyTemp(ctx context.Context, tokenString string) (*TokenClaims, error) {
	return s.Parse(ctx, tokenString, TokenTypeTemp)
}

// Revoke blacklists the token's jti until it would have expired anyway.
func (s *TokenService) Revoke(ctx context.Context, claims *TokenClaims) error {
	if claims == nil || claims.JTI == "" {
		return nil
	}
	if s.redis == nil {
		middleware.Logger.WarnContext(ctx, "redis unavailable, token revocation skipped")
		return nil
	}
	ttl := claims.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, cache.BlacklistKey(claims.JTI), "1", ttl).Err(); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// IsRevoked reports whether jti is blacklisted. Without Redis nothing is.
func (s *TokenService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if s.redis == nil || jti == "" {
		return false, nil
	}
	n, err := s.redis.Exists(ctx, cache.BlacklistKey(jti)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return n > 0, nil
}

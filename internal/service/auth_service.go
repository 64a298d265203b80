package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bearkuang/oristagram/internal/cache"
	"github.com/bearkuang/oristagram/internal/middleware"
	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/repository"
	"github.com/bearkuang/oristagram/internal/validation"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// AuthService handles registration, login and the account lifecycle.
type AuthService struct {
	userRepo repository.UserRepository
	tokens   *TokenService
	media    *MediaService
	redis    *redis.Client
}

type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	Bio       string
	BirthDate *time.Time
	Website   string
}

type LoginInput struct {
	UsernameOrEmail string
	Password        string
}

// AuthResult is a user with a fresh token pair.
type AuthResult struct {
	User    *models.User `json:"user"`
	Access  string       `json:"access"`
	Refresh string       `json:"refresh"`
}

// InactiveAccountError is returned by Login when the credentials are right
// but the account is deactivated. TempToken unlocks reactivate and delete.
type InactiveAccountError struct {
	TempToken string
}

func (e *InactiveAccountError) Error() string {
	return "This account is deactivated."
}

// NewAuthService returns a new AuthService. media may be nil when account
// deletion does not need to remove files.
func NewAuthService(userRepo repository.UserRepository, tokens *TokenService, media *MediaService, rdb *redis.Client) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		tokens:   tokens,
		media:    media,
		redis:    rdb,
	}
}

// Register creates an active account and signs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))

	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, models.NewValidationError("Username, email, and password are required")
	}
	if err := validation.ValidateUsername(in.Username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Username:  in.Username,
		Email:     in.Email,
		Password:  string(hashed),
		Bio:       in.Bio,
		BirthDate: in.BirthDate,
		Website:   in.Website,
		IsActive:  true,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	return s.signIn(user)
}

// Login accepts a username or an email (anything containing '@').
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	identifier := strings.TrimSpace(in.UsernameOrEmail)
	if identifier == "" || in.Password == "" {
		return nil, models.NewValidationError("Username or email and password are required")
	}

	var (
		user *models.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.userRepo.GetByEmail(ctx, strings.ToLower(identifier))
	} else {
		user, err = s.userRepo.GetByUsername(ctx, identifier)
	}
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.Password)); err != nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}

	if !user.IsActive {
		temp, err := s.tokens.IssueTemp(user.ID)
		if err != nil {
			return nil, err
		}
		return nil, &InactiveAccountError{TempToken: temp}
	}

	return s.signIn(user)
}

// Refresh exchanges a refresh token for a new access token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", models.NewValidationError("refresh is required")
	}
	claims, err := s.tokens.Parse(ctx, refreshToken, TokenTypeRefresh)
	if err != nil {
		return "", err
	}
	if _, err := s.activeUser(ctx, claims.UserID); err != nil {
		return "", err
	}
	return s.tokens.IssueAccess(claims.UserID)
}

// Authenticate verifies an access token and rejects inactive users.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*TokenClaims, error) {
	claims, err := s.tokens.Parse(ctx, accessToken, TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	if _, err := s.activeUser(ctx, claims.UserID); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *AuthService) activeUser(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if models.ErrorCode(err) == models.CodeNotFound {
			return nil, models.NewUnauthorizedError("User no longer exists")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, models.NewUnauthorizedError("This account is deactivated.")
	}
	return user, nil
}

// Logout revokes the presented access token.
func (s *AuthService) Logout(ctx context.Context, claims *TokenClaims) error {
	return s.tokens.Revoke(ctx, claims)
}

// Me returns the current user.
func (s *AuthService) Me(ctx context.Context, userID uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// Deactivate soft-disables the account and revokes the token used.
func (s *AuthService) Deactivate(ctx context.Context, userID uint, claims *TokenClaims) error {
	if err := s.userRepo.SetActive(ctx, userID, false); err != nil {
		return err
	}
	if err := s.tokens.Revoke(ctx, claims); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to revoke token on deactivate", slog.String("error", err.Error()))
	}
	middleware.Logger.InfoContext(ctx, "account deactivated", slog.Uint64("user_id", uint64(userID)))
	return nil
}

// RequireDeactivated admits a temp token holder only while their account is
// still deactivated.
func (s *AuthService) RequireDeactivated(ctx context.Context, userID uint) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if models.ErrorCode(err) == models.CodeNotFound {
			return models.NewUnauthorizedError("User no longer exists")
		}
		return err
	}
	if user.IsActive {
		return models.NewUnauthorizedError("This account is already active.")
	}
	return nil
}

// Reactivate is reached with a temp token only. The temp token is spent.
func (s *AuthService) Reactivate(ctx context.Context, userID uint, temp *TokenClaims) (*AuthResult, error) {
	if err := s.userRepo.SetActive(ctx, userID, true); err != nil {
		return nil, err
	}
	if err := s.tokens.Revoke(ctx, temp); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to revoke temp token on reactivate", slog.String("error", err.Error()))
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.signIn(user)
}

// DeleteAccount removes the user and everything they own, then their files.
func (s *AuthService) DeleteAccount(ctx context.Context, userID uint) error {
	media, err := s.userRepo.DeleteWithContent(ctx, userID)
	if err != nil {
		return err
	}
	if s.media != nil {
		s.media.Remove(ctx, media)
	}
	middleware.Logger.InfoContext(ctx, "account deleted", slog.Uint64("user_id", uint64(userID)))
	return nil
}

// IssueWSTicket stores a single-use ticket for the websocket handshake.
func (s *AuthService) IssueWSTicket(ctx context.Context, userID uint) (string, error) {
	if s.redis == nil {
		return "", models.NewInternalError(errors.New("websocket tickets need redis"))
	}
	ticket := uuid.NewString()
	if err := s.redis.Set(ctx, cache.TicketKey(ticket), strconv.FormatUint(uint64(userID), 10), cache.WSTicketTTL).Err(); err != nil {
		return "", models.NewInternalError(err)
	}
	return ticket, nil
}

// RedeemWSTicket consumes a ticket and returns its user.
func (s *AuthService) RedeemWSTicket(ctx context.Context, ticket string) (uint, error) {
	invalid := models.NewUnauthorizedError("Invalid or expired WebSocket ticket")
	if s.redis == nil || ticket == "" {
		return 0, invalid
	}
	raw, err := s.redis.GetDel(ctx, cache.TicketKey(ticket)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, invalid
		}
		return 0, models.NewInternalError(err)
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, invalid
	}
	return uint(id), nil
}

func (s *AuthService) signIn(user *models.User) (*AuthResult, error) {
	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Access: pair.Access, Refresh: pair.Refresh}, nil
}

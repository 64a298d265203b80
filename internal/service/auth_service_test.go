package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/repository"
	"github.com/bearkuang/oristagram/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const strongPassword = "CorrectHorse9!"

type authFixture struct {
	db     *gorm.DB
	svc    *AuthService
	tokens *TokenService
	mr     *miniredis.Miniredis
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	tokens, mr := newTestTokenService(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	media, _ := newTestMediaService(t, nil)
	return &authFixture{
		db:     db,
		svc:    NewAuthService(repository.NewUserRepository(db), tokens, media, rdb),
		tokens: tokens,
		mr:     mr,
	}
}

func (f *authFixture) register(t *testing.T, username string) *AuthResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: strongPassword,
	})
	require.NoError(t, err)
	return res
}

func TestAuthService_Register(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res := f.register(t, "ada")
	assert.NotZero(t, res.User.ID)
	assert.True(t, res.User.IsActive)
	assert.NotEqual(t, strongPassword, res.User.Password)
	assert.NotEmpty(t, res.Access)
	assert.NotEmpty(t, res.Refresh)

	tests := []struct {
		name string
		in   RegisterInput
		code string
	}{
		{"missing fields", RegisterInput{Username: "bob"}, models.CodeValidation},
		{"bad username", RegisterInput{Username: "b!", Email: "b@example.com", Password: strongPassword}, models.CodeValidation},
		{"bad email", RegisterInput{Username: "bob", Email: "nope", Password: strongPassword}, models.CodeValidation},
		{"weak password", RegisterInput{Username: "bob", Email: "bob@example.com", Password: "short"}, models.CodeValidation},
		{"duplicate username", RegisterInput{Username: "ada", Email: "other@example.com", Password: strongPassword}, models.CodeConflict},
		{"duplicate email", RegisterInput{Username: "ada2", Email: "ADA@example.com", Password: strongPassword}, models.CodeConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.in)
			assert.Equal(t, tt.code, models.ErrorCode(err))
		})
	}
}

func TestAuthService_LoginByUsernameOrEmail(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.register(t, "grace")

	res, err := f.svc.Login(ctx, LoginInput{UsernameOrEmail: "grace", Password: strongPassword})
	require.NoError(t, err)
	assert.Equal(t, "grace", res.User.Username)

	res, err = f.svc.Login(ctx, LoginInput{UsernameOrEmail: "Grace@Example.com", Password: strongPassword})
	require.NoError(t, err)
	assert.Equal(t, "grace", res.User.Username)

	_, err = f.svc.Login(ctx, LoginInput{UsernameOrEmail: "grace", Password: "wrong"})
	assert.EqualError(t, err, "Invalid credentials")

	_, err = f.svc.Login(ctx, LoginInput{UsernameOrEmail: "nobody", Password: strongPassword})
	assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))

	_, err = f.svc.Login(ctx, LoginInput{UsernameOrEmail: "", Password: strongPassword})
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
}

func TestAuthService_DeactivateReactivateFlow(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg := f.register(t, "linus")

	claims, err := f.svc.Authenticate(ctx, reg.Access)
	require.NoError(t, err)
	require.NoError(t, f.svc.Deactivate(ctx, reg.User.ID, claims))

	// the token used to deactivate is revoked
	_, err = f.svc.Authenticate(ctx, reg.Access)
	assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))

	// other outstanding tokens fail because the account is inactive
	_, err = f.svc.Refresh(ctx, reg.Refresh)
	assert.EqualError(t, err, "This account is deactivated.")

	_, err = f.svc.Login(ctx, LoginInput{UsernameOrEmail: "linus", Password: strongPassword})
	var inactive *InactiveAccountError
	require.True(t, errors.As(err, &inactive))
	require.NotEmpty(t, inactive.TempToken)

	// temp tokens are not access tokens
	_, err = f.svc.Authenticate(ctx, inactive.TempToken)
	assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))

	temp, err := f.tokens.VerifyTemp(ctx, inactive.TempToken)
	require.NoError(t, err)
	require.NoError(t, f.svc.RequireDeactivated(ctx, temp.UserID))
	res, err := f.svc.Reactivate(ctx, temp.UserID, temp)
	require.NoError(t, err)
	assert.True(t, res.User.IsActive)

	_, err = f.svc.Authenticate(ctx, res.Access)
	assert.NoError(t, err)

	// the temp token is spent and the account no longer qualifies
	_, err = f.tokens.VerifyTemp(ctx, inactive.TempToken)
	assert.EqualError(t, err, "Token has been revoked")
	err = f.svc.RequireDeactivated(ctx, temp.UserID)
	assert.EqualError(t, err, "This account is already active.")
}

func TestAuthService_RequireDeactivated_UnknownUser(t *testing.T) {
	f := newAuthFixture(t)
	err := f.svc.RequireDeactivated(context.Background(), 999)
	assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))
}

func TestAuthService_RefreshAndLogout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg := f.register(t, "margaret")

	access, err := f.svc.Refresh(ctx, reg.Refresh)
	require.NoError(t, err)
	claims, err := f.svc.Authenticate(ctx, access)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, access)
	assert.EqualError(t, err, "Invalid token type")

	require.NoError(t, f.svc.Logout(ctx, claims))
	_, err = f.svc.Authenticate(ctx, access)
	assert.EqualError(t, err, "Token has been revoked")
}

func TestAuthService_DeleteAccountRemovesContent(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg := f.register(t, "ken")
	other := testutil.CreateUser(t, f.db, "dennis")

	post := &models.Post{UserID: reg.User.ID, Content: "bye"}
	require.NoError(t, f.db.Create(post).Error)
	require.NoError(t, f.db.Create(models.NewLike(other.ID, models.PostTarget(post.ID))).Error)
	testutil.Follow(t, f.db, other.ID, reg.User.ID)

	require.NoError(t, f.svc.DeleteAccount(ctx, reg.User.ID))

	var n int64
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", reg.User.ID).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, f.db.Model(&models.Post{}).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, f.db.Model(&models.Like{}).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, f.db.Model(&models.Follow{}).Count(&n).Error)
	assert.Zero(t, n)

	_, err := f.svc.Authenticate(ctx, reg.Access)
	assert.EqualError(t, err, "User no longer exists")
}

func TestAuthService_WSTicketIsSingleUse(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	ticket, err := f.svc.IssueWSTicket(ctx, 12)
	require.NoError(t, err)
	assert.True(t, f.mr.Exists("ws:ticket:"+ticket))

	id, err := f.svc.RedeemWSTicket(ctx, ticket)
	require.NoError(t, err)
	assert.Equal(t, uint(12), id)

	_, err = f.svc.RedeemWSTicket(ctx, ticket)
	assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))

	expiring, err := f.svc.IssueWSTicket(ctx, 12)
	require.NoError(t, err)
	f.mr.FastForward(31 * time.Second)
	_, err = f.svc.RedeemWSTicket(ctx, expiring)
	assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))
}

package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/repository"
	"github.com/bearkuang/oristagram/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newUserService(t *testing.T) (*UserService, *gorm.DB, string) {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	media, dir := newTestMediaService(t, nil)
	svc := NewUserService(
		repository.NewUserRepository(db),
		repository.NewFollowRepository(db),
		repository.NewPostRepository(db),
		repository.NewReelRepository(db),
		media,
	)
	return svc, db, dir
}

func strPtr(s string) *string { return &s }

func TestUserService_UpdateProfile(t *testing.T) {
	svc, db, _ := newUserService(t)
	ctx := context.Background()
	ada := testutil.CreateUser(t, db, "ada")
	bob := testutil.CreateUser(t, db, "bob")

	_, err := svc.UpdateProfile(ctx, UpdateProfileInput{ActorID: bob.ID, UserID: ada.ID, Bio: strPtr("mine now")})
	assertForbiddenError(t, err)

	future := time.Now().Add(48 * time.Hour)
	tests := []struct {
		name string
		in   UpdateProfileInput
	}{
		{"bio too long", UpdateProfileInput{Bio: strPtr(strings.Repeat("x", maxBioLen+1))}},
		{"website too long", UpdateProfileInput{Website: strPtr(strings.Repeat("w", maxWebsiteLen+1))}},
		{"bad username", UpdateProfileInput{Username: strPtr("no spaces allowed")}},
		{"birth date in the future", UpdateProfileInput{BirthDate: &future}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.ActorID, tt.in.UserID = ada.ID, ada.ID
			_, err := svc.UpdateProfile(ctx, tt.in)
			assertValidationError(t, err)
		})
	}

	user, err := svc.UpdateProfile(ctx, UpdateProfileInput{ActorID: ada.ID, UserID: ada.ID, Bio: strPtr("mathematician")})
	require.NoError(t, err)
	assert.Equal(t, "mathematician", user.Bio)
	assert.Equal(t, "ada", user.Username, "unset fields are left alone")

	_, err = svc.UpdateProfile(ctx, UpdateProfileInput{ActorID: ada.ID, UserID: ada.ID, Username: strPtr("bob")})
	assertAppError(t, err, models.CodeConflict)
}

func TestUserService_SetAvatar(t *testing.T) {
	svc, db, dir := newUserService(t)
	ctx := context.Background()
	ada := testutil.CreateUser(t, db, "ada")

	user, err := svc.SetAvatar(ctx, ada.ID, Upload{Filename: "me.png", Content: testutil.TinyPNG(t, 64, 64)})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(user.ProfilePicture, "/media/images/"), user.ProfilePicture)
	assert.Equal(t, 2, countFiles(t, dir))

	_, err = svc.SetAvatar(ctx, ada.ID, Upload{Filename: "me.mp4", Content: testutil.MP4Header()})
	assertValidationError(t, err)
}

func TestUserService_Profile(t *testing.T) {
	svc, db, _ := newUserService(t)
	ctx := context.Background()
	ada := testutil.CreateUser(t, db, "ada")
	bob := testutil.CreateUser(t, db, "bob")
	testutil.Follow(t, db, bob.ID, ada.ID)

	now := time.Now()
	older := createPostAt(t, db, ada.ID, "older", now.Add(-time.Hour))
	newer := createPostAt(t, db, ada.ID, "newer", now)
	reel := &models.Reel{UserID: ada.ID, Content: "clip"}
	require.NoError(t, db.Omit("User").Create(reel).Error)
	bobPost := createPostAt(t, db, bob.ID, "bob's", now)
	require.NoError(t, db.Create(models.NewMark(ada.ID, bobPost.Target())).Error)

	p, err := svc.Profile(ctx, ada.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada", p.Username)
	assert.Equal(t, int64(1), p.FollowersCount)
	assert.Zero(t, p.FollowingCount)
	assert.Equal(t, int64(3), p.PostsCount, "posts and reels are both counted")
	assert.Equal(t, []uint{newer.ID, older.ID}, postIDs(p.Posts))
	require.Len(t, p.Reels, 1)
	assert.Equal(t, []uint{bobPost.ID}, postIDs(p.SavedPosts))
	assert.Empty(t, p.SavedReels)

	_, err = svc.Profile(ctx, 999, 0)
	assertNotFoundError(t, err)
}

func TestUserService_SearchUsernames(t *testing.T) {
	svc, db, _ := newUserService(t)
	ctx := context.Background()
	anna := testutil.CreateUser(t, db, "anna")
	testutil.CreateUser(t, db, "hannah")
	fan := testutil.CreateUser(t, db, "fan")
	testutil.Follow(t, db, fan.ID, anna.ID)

	users, err := svc.SearchUsernames(ctx, "ANN")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "anna", users[0].Username, "prefix matches rank first")
	assert.Equal(t, "hannah", users[1].Username)

	users, err = svc.SearchUsernames(ctx, "zzz")
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)

	_, err = svc.SearchUsernames(ctx, " ")
	assertValidationError(t, err)
}

func TestUserService_SearchUsernamesReturnsEveryMatch(t *testing.T) {
	svc, db, _ := newUserService(t)
	ctx := context.Background()
	const total = 120
	for i := 0; i < total; i++ {
		testutil.CreateUser(t, db, fmt.Sprintf("member%03d", i))
	}
	testutil.CreateUser(t, db, "outsider")

	users, err := svc.SearchUsernames(ctx, "member")
	require.NoError(t, err)
	require.Len(t, users, total)
	assert.Equal(t, "member000", users[0].Username, "equal tiers fall back to id order")
}

func TestUserService_FollowLists(t *testing.T) {
	svc, db, _ := newUserService(t)
	ctx := context.Background()
	ada := testutil.CreateUser(t, db, "ada")
	bob := testutil.CreateUser(t, db, "bob")
	testutil.Follow(t, db, bob.ID, ada.ID)

	followers, err := svc.Followers(ctx, ada.ID)
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.Equal(t, bob.ID, followers[0].ID)

	following, err := svc.Following(ctx, ada.ID)
	require.NoError(t, err)
	assert.Empty(t, following)

	_, err = svc.Followers(ctx, 999)
	assertNotFoundError(t, err)
}

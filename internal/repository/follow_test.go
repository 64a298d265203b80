package repository

import (
	"context"
	"testing"

	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFollowRepository_EdgeIsUnique(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewFollowRepository(db)
	ctx := context.Background()

	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")

	require.NoError(t, repo.Create(ctx, &models.Follow{FollowerID: a.ID, FollowedID: b.ID}))
	err := repo.Create(ctx, &models.Follow{FollowerID: a.ID, FollowedID: b.ID})
	assert.Equal(t, models.CodeConflict, models.ErrorCode(err))

	var n int64
	require.NoError(t, db.Model(&models.Follow{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	// the reverse direction is a different edge
	require.NoError(t, repo.Create(ctx, &models.Follow{FollowerID: b.ID, FollowedID: a.ID}))

	ok, err := repo.Exists(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFollowRepository_DeleteMissingEdge(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewFollowRepository(db)
	ctx := context.Background()

	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")

	err := repo.Delete(ctx, a.ID, b.ID)
	assert.Equal(t, models.CodeConflict, models.ErrorCode(err))

	testutil.Follow(t, db, a.ID, b.ID)
	require.NoError(t, repo.Delete(ctx, a.ID, b.ID))

	ok, err := repo.Exists(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFollowRepository_FollowersAndFollowing(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewFollowRepository(db)
	ctx := context.Background()

	star := testutil.CreateUser(t, db, "star")
	f1 := testutil.CreateUser(t, db, "f1")
	f2 := testutil.CreateUser(t, db, "f2")
	testutil.Follow(t, db, f1.ID, star.ID)
	testutil.Follow(t, db, f2.ID, star.ID)
	testutil.Follow(t, db, star.ID, f1.ID)

	followers, err := repo.Followers(ctx, star.ID)
	require.NoError(t, err)
	ids := []uint{}
	for _, u := range followers {
		ids = append(ids, u.ID)
	}
	assert.ElementsMatch(t, []uint{f1.ID, f2.ID}, ids)

	following, err := repo.Following(ctx, star.ID)
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, f1.ID, following[0].ID)

	none, err := repo.Following(ctx, f2.ID+100)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

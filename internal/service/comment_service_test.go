package service

import (
	"context"
	"strings"
	"testing"

	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/repository"
	"github.com/bearkuang/oristagram/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commentRepoStub is a stub for repository.CommentRepository.
type commentRepoStub struct {
	createFn       func(context.Context, *models.Comment) error
	getByIDFn      func(context.Context, uint) (*models.Comment, error)
	listTopLevelFn func(context.Context, repository.Page) ([]models.Comment, error)
	listByTargetFn func(context.Context, models.Target) ([]models.Comment, error)
	listRepliesFn  func(context.Context, uint) ([]models.Comment, error)
	deleteFn       func(context.Context, uint) error
}

func (s *commentRepoStub) Create(ctx context.Context, comment *models.Comment) error {
	return s.createFn(ctx, comment)
}
func (s *commentRepoStub) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	return s.getByIDFn(ctx, id)
}
func (s *commentRepoStub) ListTopLevel(ctx context.Context, page repository.Page) ([]models.Comment, error) {
	return s.listTopLevelFn(ctx, page)
}
func (s *commentRepoStub) ListByTarget(ctx context.Context, target models.Target) ([]models.Comment, error) {
	return s.listByTargetFn(ctx, target)
}
func (s *commentRepoStub) ListReplies(ctx context.Context, parentID uint) ([]models.Comment, error) {
	return s.listRepliesFn(ctx, parentID)
}
func (s *commentRepoStub) Delete(ctx context.Context, id uint) error {
	return s.deleteFn(ctx, id)
}

func noopCommentRepo() *commentRepoStub {
	return &commentRepoStub{
		createFn:       func(_ context.Context, _ *models.Comment) error { return nil },
		getByIDFn:      func(_ context.Context, id uint) (*models.Comment, error) { return nil, models.NewNotFoundError("Comment", id) },
		listTopLevelFn: func(_ context.Context, _ repository.Page) ([]models.Comment, error) { return nil, nil },
		listByTargetFn: func(_ context.Context, _ models.Target) ([]models.Comment, error) { return nil, nil },
		listRepliesFn:  func(_ context.Context, _ uint) ([]models.Comment, error) { return nil, nil },
		deleteFn:       func(_ context.Context, _ uint) error { return nil },
	}
}

func TestCommentService_Create_Validation(t *testing.T) {
	t.Parallel()

	svc := NewCommentService(noopCommentRepo())
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateCommentInput
	}{
		{"empty text", CreateCommentInput{UserID: 1, Target: models.PostTarget(1)}},
		{"whitespace text", CreateCommentInput{UserID: 1, Target: models.PostTarget(1), Text: "   "}},
		{"text too long", CreateCommentInput{UserID: 1, Target: models.PostTarget(1), Text: strings.Repeat("x", maxCommentLen+1)}},
		{"no target", CreateCommentInput{UserID: 1, Text: "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.Create(ctx, tt.in)
			assertValidationError(t, err)
		})
	}

	_, err := svc.Create(ctx, CreateCommentInput{UserID: 1, Target: models.PostTarget(1)})
	assert.EqualError(t, err, "Comment content cannot be empty")
}

func TestCommentService_Create_ParentMustShareTarget(t *testing.T) {
	t.Parallel()

	parentID := uint(5)
	repo := noopCommentRepo()
	repo.getByIDFn = func(_ context.Context, id uint) (*models.Comment, error) {
		c := &models.Comment{ID: id, UserID: 2, Text: "parent"}
		c.AttachTo(models.ReelTarget(3))
		return c, nil
	}
	var created *models.Comment
	repo.createFn = func(_ context.Context, c *models.Comment) error {
		created = c
		return nil
	}
	svc := NewCommentService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateCommentInput{UserID: 1, Target: models.PostTarget(3), Text: "hi", ParentID: &parentID})
	assertValidationError(t, err)
	assert.Nil(t, created)

	c, err := svc.Create(ctx, CreateCommentInput{UserID: 1, Target: models.ReelTarget(3), Text: " hi ", ParentID: &parentID})
	require.NoError(t, err)
	assert.Equal(t, "hi", c.Text)
	assert.Equal(t, models.ReelTarget(3), c.Target())
	assert.Nil(t, c.PostID)
}

func TestCommentService_Create_MissingParent(t *testing.T) {
	t.Parallel()

	missing := uint(99)
	svc := NewCommentService(noopCommentRepo())
	_, err := svc.Create(context.Background(), CreateCommentInput{UserID: 1, Target: models.PostTarget(1), Text: "hi", ParentID: &missing})
	assertNotFoundError(t, err)
}

func TestCommentService_Delete_OwnerOnly(t *testing.T) {
	t.Parallel()

	deleted := false
	repo := noopCommentRepo()
	repo.getByIDFn = func(_ context.Context, id uint) (*models.Comment, error) {
		return &models.Comment{ID: id, UserID: 7}, nil
	}
	repo.deleteFn = func(_ context.Context, _ uint) error {
		deleted = true
		return nil
	}
	svc := NewCommentService(repo)

	assertForbiddenError(t, svc.Delete(context.Background(), 1, 8))
	assert.False(t, deleted)

	require.NoError(t, svc.Delete(context.Background(), 1, 7))
	assert.True(t, deleted)
}

func TestCommentService_Threads(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	ctx := context.Background()
	svc := NewCommentService(repository.NewCommentRepository(db))

	author := testutil.CreateUser(t, db, "author")
	reader := testutil.CreateUser(t, db, "reader")
	post := &models.Post{UserID: author.ID, Content: "thread me"}
	require.NoError(t, db.Create(post).Error)

	root, err := svc.Create(ctx, CreateCommentInput{UserID: reader.ID, Target: post.Target(), Text: "first"})
	require.NoError(t, err)
	assert.Equal(t, "reader", root.User.Username)

	first, err := svc.Reply(ctx, ReplyInput{UserID: author.ID, ParentID: root.ID, Text: "thanks"})
	require.NoError(t, err)
	assert.Equal(t, post.Target(), first.Target())
	second, err := svc.Reply(ctx, ReplyInput{UserID: reader.ID, ParentID: root.ID, Text: "welcome"})
	require.NoError(t, err)
	_, err = svc.Reply(ctx, ReplyInput{UserID: reader.ID, ParentID: first.ID, Text: "nested"})
	require.NoError(t, err)

	replies, err := svc.Replies(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, replies, 2)
	assert.Equal(t, first.ID, replies[0].ID)
	assert.Equal(t, second.ID, replies[1].ID)

	topLevel, err := svc.ListByTarget(ctx, post.Target())
	require.NoError(t, err)
	require.Len(t, topLevel, 1)
	assert.Equal(t, int64(2), topLevel[0].RepliesCount)

	assertForbiddenError(t, svc.Delete(ctx, root.ID, author.ID))
	require.NoError(t, svc.Delete(ctx, root.ID, reader.ID))

	var n int64
	require.NoError(t, db.Model(&models.Comment{}).Count(&n).Error)
	assert.Zero(t, n, "deleting a comment removes its whole subtree")

	_, err = svc.Replies(ctx, root.ID)
	assertNotFoundError(t, err)
}

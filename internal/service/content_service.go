package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bearkuang/oristagram/internal/middleware"
	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/observability"
	"github.com/bearkuang/oristagram/internal/repository"
	"github.com/bearkuang/oristagram/internal/validation"
)

const maxContentLen = 2200

// contentKind holds what differs between posts and reels.
type contentKind struct {
	kind   models.TargetKind
	media  validation.MediaContext
	status string
	build  func(userID uint, content string) any
}

var (
	postKind = contentKind{
		kind:   models.TargetPost,
		media:  validation.MediaForFeed,
		status: "post",
		build: func(userID uint, content string) any {
			return &models.Post{UserID: userID, Content: content}
		},
	}
	reelKind = contentKind{
		kind:   models.TargetReel,
		media:  validation.MediaForReels,
		status: "reels",
		build: func(userID uint, content string) any {
			return &models.Reel{UserID: userID, Content: content}
		},
	}
)

func (k contentKind) target(id uint) models.Target {
	return models.Target{Kind: k.kind, ID: id}
}

// ContentService is the business logic shared by posts and reels.
type ContentService[T any, PT interface {
	*T
	models.Content
}] struct {
	repo       repository.ContentRepository[T]
	engagement repository.EngagementRepository
	comments   *CommentService
	users      repository.UserRepository
	media      *MediaService
	kind       contentKind
}

// PostService handles feed posts.
type PostService = ContentService[models.Post, *models.Post]

// ReelService handles reels.
type ReelService = ContentService[models.Reel, *models.Reel]

type CreateContentInput struct {
	UserID   uint
	Content  string
	Tags     []string
	Mentions []string
	Files    []Upload
}

// UpdateContentInput carries an edit. Nil fields are left unchanged.
type UpdateContentInput struct {
	UserID   uint
	ID       uint
	Content  *string
	Tags     *[]string
	Mentions *[]string
}

type ContentCommentInput struct {
	UserID   uint
	ID       uint
	Text     string
	ParentID *uint
}

func NewPostService(
	repo repository.PostRepository,
	engagement repository.EngagementRepository,
	comments *CommentService,
	users repository.UserRepository,
	media *MediaService,
) *PostService {
	return &PostService{repo: repo, engagement: engagement, comments: comments, users: users, media: media, kind: postKind}
}

func NewReelService(
	repo repository.ReelRepository,
	engagement repository.EngagementRepository,
	comments *CommentService,
	users repository.UserRepository,
	media *MediaService,
) *ReelService {
	return &ReelService{repo: repo, engagement: engagement, comments: comments, users: users, media: media, kind: reelKind}
}

// Create validates and stores the files, then writes the item with its
// media, tags and mentions in one transaction. Stored files are removed if
// the write fails.
func (s *ContentService[T, PT]) Create(ctx context.Context, in CreateContentInput) (*T, error) {
	if utf8.RuneCountInString(in.Content) > maxContentLen {
		return nil, models.NewValidationError(fmt.Sprintf("Content too long (max %d characters)", maxContentLen))
	}
	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return nil, err
	}

	media, err := s.media.Store(ctx, s.kind.media, in.Files)
	if err != nil {
		return nil, err
	}

	item := s.kind.build(in.UserID, in.Content).(*T)
	rel := repository.Relations{Media: media, Tags: tags, Mentions: trimNames(in.Mentions)}
	if err := s.repo.Create(ctx, item, rel); err != nil {
		s.media.Remove(ctx, media)
		return nil, err
	}

	observability.ContentCreated.WithLabelValues(string(s.kind.kind)).Inc()
	id := PT(item).Target().ID
	middleware.Logger.InfoContext(ctx, "content created",
		slog.String("kind", string(s.kind.kind)),
		slog.Uint64("id", uint64(id)),
		slog.Int("media", len(media)),
		slog.Int("tags", len(tags)),
	)
	return s.repo.GetByID(ctx, id, in.UserID)
}

func (s *ContentService[T, PT]) Get(ctx context.Context, id, viewerID uint) (*T, error) {
	return s.repo.GetByID(ctx, id, viewerID)
}

func (s *ContentService[T, PT]) List(ctx context.Context, opts repository.ListOptions) ([]T, error) {
	return s.repo.List(ctx, opts)
}

// ListByUser lists the items authored by userID, or NOT_FOUND for an unknown user.
func (s *ContentService[T, PT]) ListByUser(ctx context.Context, userID uint, opts repository.ListOptions) ([]T, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, userID, opts)
}

// ListFollowed lists items by accounts followerID follows, with no time bound.
func (s *ContentService[T, PT]) ListFollowed(ctx context.Context, followerID uint, opts repository.ListOptions) ([]T, error) {
	return s.repo.ListByFollowed(ctx, followerID, zeroTime, opts)
}

// Update changes the fields present in the input. Author only.
func (s *ContentService[T, PT]) Update(ctx context.Context, in UpdateContentInput) (*T, error) {
	if err := s.authorize(ctx, in.ID, in.UserID); err != nil {
		return nil, err
	}
	upd := repository.ContentUpdate{Content: in.Content}
	if in.Content != nil && utf8.RuneCountInString(*in.Content) > maxContentLen {
		return nil, models.NewValidationError(fmt.Sprintf("Content too long (max %d characters)", maxContentLen))
	}
	if in.Tags != nil {
		tags, err := normalizeTags(*in.Tags)
		if err != nil {
			return nil, err
		}
		upd.Tags = &tags
	}
	if in.Mentions != nil {
		mentions := trimNames(*in.Mentions)
		upd.Mentions = &mentions
	}
	if err := s.repo.UpdateWithRelations(ctx, in.ID, upd); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, in.ID, in.UserID)
}

// Delete removes the item and everything hanging off it. Author only.
func (s *ContentService[T, PT]) Delete(ctx context.Context, id, userID uint) error {
	if err := s.authorize(ctx, id, userID); err != nil {
		return err
	}
	media, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.media.Remove(ctx, media)
	return nil
}

func (s *ContentService[T, PT]) authorize(ctx context.Context, id, userID uint) error {
	authorID, err := s.repo.AuthorOf(ctx, id)
	if err != nil {
		return err
	}
	if authorID != userID {
		return models.NewForbiddenError(fmt.Sprintf("You are not allowed to edit this %s.", s.kind.status))
	}
	return nil
}

// exists returns NOT_FOUND for a missing item.
func (s *ContentService[T, PT]) exists(ctx context.Context, id uint) error {
	_, err := s.repo.AuthorOf(ctx, id)
	return err
}

// Like returns the status string for the response body.
func (s *ContentService[T, PT]) Like(ctx context.Context, userID, id uint) (string, error) {
	return s.engage(ctx, id, "like", "_liked", func(t models.Target) error {
		return s.engagement.Like(ctx, userID, t)
	})
}

func (s *ContentService[T, PT]) Unlike(ctx context.Context, userID, id uint) (string, error) {
	return s.engage(ctx, id, "unlike", "_unliked", func(t models.Target) error {
		return s.engagement.Unlike(ctx, userID, t)
	})
}

func (s *ContentService[T, PT]) Mark(ctx context.Context, userID, id uint) (string, error) {
	return s.engage(ctx, id, "mark", "_saved", func(t models.Target) error {
		return s.engagement.Mark(ctx, userID, t)
	})
}

func (s *ContentService[T, PT]) Unmark(ctx context.Context, userID, id uint) (string, error) {
	return s.engage(ctx, id, "unmark", "_unsaved", func(t models.Target) error {
		return s.engagement.Unmark(ctx, userID, t)
	})
}

func (s *ContentService[T, PT]) engage(ctx context.Context, id uint, action, suffix string, fn func(models.Target) error) (string, error) {
	if err := s.exists(ctx, id); err != nil {
		return "", err
	}
	if err := fn(s.kind.target(id)); err != nil {
		return "", err
	}
	observability.EngagementEvents.WithLabelValues(action, string(s.kind.kind)).Inc()
	return s.kind.status + suffix, nil
}

// Comment adds a comment, or a reply when ParentID is set.
func (s *ContentService[T, PT]) Comment(ctx context.Context, in ContentCommentInput) (*models.Comment, error) {
	if err := s.exists(ctx, in.ID); err != nil {
		return nil, err
	}
	return s.comments.Create(ctx, CreateCommentInput{
		UserID:   in.UserID,
		Target:   s.kind.target(in.ID),
		Text:     in.Text,
		ParentID: in.ParentID,
	})
}

// Comments lists the item's top-level comments, oldest first.
func (s *ContentService[T, PT]) Comments(ctx context.Context, id uint) ([]models.Comment, error) {
	if err := s.exists(ctx, id); err != nil {
		return nil, err
	}
	return s.comments.ListByTarget(ctx, s.kind.target(id))
}

var zeroTime time.Time

// normalizeTags trims each name and a leading '#', dropping blanks. Repeats
// are kept: every occurrence counts.
func normalizeTags(raw []string) ([]string, error) {
	tags := make([]string, 0, len(raw))
	for _, r := range raw {
		name, err := validation.NormalizeTag(r)
		if err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		if name != "" {
			tags = append(tags, name)
		}
	}
	return tags, nil
}

func trimNames(raw []string) []string {
	names := make([]string, 0, len(raw))
	for _, r := range raw {
		if name := strings.TrimPrefix(strings.TrimSpace(r), "@"); name != "" {
			names = append(names, name)
		}
	}
	return names
}

package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/observability"
	"github.com/bearkuang/oristagram/internal/repository"
)

const maxCommentLen = 2200

type CommentService struct {
	commentRepo repository.CommentRepository
}

type CreateCommentInput struct {
	UserID   uint
	Target   models.Target
	Text     string
	ParentID *uint
}

type ReplyInput struct {
	UserID   uint
	ParentID uint
	Text     string
}

func NewCommentService(commentRepo repository.CommentRepository) *CommentService {
	return &CommentService{commentRepo: commentRepo}
}

// Create stores a comment on Target. A parent must belong to the same target.
// The caller has already checked that the target exists.
func (s *CommentService) Create(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	text, err := checkCommentText(in.Text)
	if err != nil {
		return nil, err
	}
	if !in.Target.Valid() {
		return nil, models.NewValidationError("A comment needs a post or a reels")
	}

	if in.ParentID != nil {
		parent, err := s.commentRepo.GetByID(ctx, *in.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.Target() != in.Target {
			return nil, models.NewValidationError("Parent comment must belong to the same " + targetNoun(in.Target) + ".")
		}
	}

	comment := &models.Comment{UserID: in.UserID, Text: text, ParentID: in.ParentID}
	comment.AttachTo(in.Target)
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, err
	}
	observability.EngagementEvents.WithLabelValues("comment", string(in.Target.Kind)).Inc()
	return comment, nil
}

// Reply answers an existing comment; the reply inherits the parent's target.
func (s *CommentService) Reply(ctx context.Context, in ReplyInput) (*models.Comment, error) {
	parent, err := s.commentRepo.GetByID(ctx, in.ParentID)
	if err != nil {
		return nil, err
	}
	parentID := parent.ID
	return s.Create(ctx, CreateCommentInput{
		UserID:   in.UserID,
		Target:   parent.Target(),
		Text:     in.Text,
		ParentID: &parentID,
	})
}

func (s *CommentService) Get(ctx context.Context, id uint) (*models.Comment, error) {
	return s.commentRepo.GetByID(ctx, id)
}

// List returns top-level comments across all targets, newest first.
func (s *CommentService) List(ctx context.Context, page repository.Page) ([]models.Comment, error) {
	return s.commentRepo.ListTopLevel(ctx, page)
}

func (s *CommentService) ListByTarget(ctx context.Context, target models.Target) ([]models.Comment, error) {
	return s.commentRepo.ListByTarget(ctx, target)
}

// Replies returns the direct replies of a comment, oldest first.
func (s *CommentService) Replies(ctx context.Context, id uint) ([]models.Comment, error) {
	if _, err := s.commentRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.commentRepo.ListReplies(ctx, id)
}

// Delete removes the comment and its replies. Owner only.
func (s *CommentService) Delete(ctx context.Context, id, userID uint) error {
	comment, err := s.commentRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if comment.UserID != userID {
		return models.NewForbiddenError("You are not allowed to delete this comment.")
	}
	return s.commentRepo.Delete(ctx, id)
}

func checkCommentText(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", models.NewValidationError("Comment content cannot be empty")
	}
	if utf8.RuneCountInString(text) > maxCommentLen {
		return "", models.NewValidationError("Comment too long (max 2200 characters)")
	}
	return text, nil
}

func targetNoun(t models.Target) string {
	if t.Kind == models.TargetReel {
		return "reels"
	}
	return "post"
}

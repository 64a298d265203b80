package repository

import (
	"context"

	"github.com/bearkuang/oristagram/internal/models"

	"gorm.io/gorm"
)

// CommentRepository defines interface for comment operations
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	ListTopLevel(ctx context.Context, page Page) ([]models.Comment, error)
	ListByTarget(ctx context.Context, target models.Target) ([]models.Comment, error)
	ListReplies(ctx context.Context, parentID uint) ([]models.Comment, error)
	Delete(ctx context.Context, id uint) error
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func withReplyCount(db *gorm.DB) *gorm.DB {
	return db.Select("comments.*, (SELECT COUNT(*) FROM comments AS replies WHERE replies.parent_id = comments.id) AS replies_count").
		Preload("User")
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if err := r.db.WithContext(ctx).Omit("User").Create(comment).Error; err != nil {
		return models.NewInternalError(err)
	}
	if err := r.db.WithContext(ctx).Preload("User").First(comment, comment.ID).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := withReplyCount(r.db.WithContext(ctx).Model(&models.Comment{})).
		Where("comments.id = ?", id).
		First(&comment).Error; err != nil {
		return nil, notFoundOr(err, "Comment", id)
	}
	return &comment, nil
}

// ListTopLevel returns comments without a parent, newest first.
func (r *commentRepository) ListTopLevel(ctx context.Context, page Page) ([]models.Comment, error) {
	comments := make([]models.Comment, 0)
	db := withReplyCount(r.db.WithContext(ctx).Model(&models.Comment{})).
		Where("comments.parent_id IS NULL").
		Order("comments.created_at DESC").
		Order("comments.id DESC")
	if err := page.apply(db).Find(&comments).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return comments, nil
}

// ListByTarget returns the top-level comments of a post or reel, oldest first.
func (r *commentRepository) ListByTarget(ctx context.Context, t models.Target) ([]models.Comment, error) {
	comments := make([]models.Comment, 0)
	if err := withReplyCount(r.db.WithContext(ctx).Model(&models.Comment{})).
		Where("comments."+t.Column()+" = ? AND comments.parent_id IS NULL", t.ID).
		Order("comments.created_at ASC").
		Order("comments.id ASC").
		Find(&comments).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return comments, nil
}

func (r *commentRepository) ListReplies(ctx context.Context, parentID uint) ([]models.Comment, error) {
	replies := make([]models.Comment, 0)
	if err := withReplyCount(r.db.WithContext(ctx).Model(&models.Comment{})).
		Where("comments.parent_id = ?", parentID).
		Order("comments.created_at ASC").
		Order("comments.id ASC").
		Find(&replies).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return replies, nil
}

// Delete removes the comment and its whole reply subtree.
func (r *commentRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := []uint{id}
		for frontier := ids; len(frontier) > 0; {
			var children []uint
			if err := tx.Model(&models.Comment{}).Where("parent_id IN ?", frontier).Pluck("id", &children).Error; err != nil {
				return err
			}
			ids = append(ids, children...)
			frontier = children
		}
		result := tx.Where("id IN ?", ids).Delete(&models.Comment{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.NewNotFoundError("Comment", id)
		}
		return nil
	})
	if err != nil {
		return internal(err)
	}
	return nil
}

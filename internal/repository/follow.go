package repository

import (
	"context"

	"github.com/bearkuang/oristagram/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FollowRepository defines the social graph operations.
type FollowRepository interface {
	Create(ctx context.Context, follow *models.Follow) error
	Delete(ctx context.Context, followerID, followedID uint) error
	Exists(ctx context.Context, followerID, followedID uint) (bool, error)
	Followers(ctx context.Context, userID uint) ([]models.User, error)
	Following(ctx context.Context, userID uint) ([]models.User, error)
}

type followRepository struct {
	db *gorm.DB
}

// NewFollowRepository creates a new follow repository
func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db}
}

// Create inserts the edge; an existing edge is a CONFLICT.
func (r *followRepository) Create(ctx context.Context, follow *models.Follow) error {
	result := r.db.WithContext(ctx).
		Omit("Follower", "Followed").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(follow)
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewConflictError("You are already following this user.")
	}
	return nil
}

// Delete removes the edge; a missing edge is a CONFLICT.
func (r *followRepository) Delete(ctx context.Context, followerID, followedID uint) error {
	result := r.db.WithContext(ctx).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Delete(&models.Follow{})
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewConflictError("No Follow matches the given query.")
	}
	return nil
}

func (r *followRepository) Exists(ctx context.Context, followerID, followedID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

// Followers returns the users following userID, most recent first.
func (r *followRepository) Followers(ctx context.Context, userID uint) ([]models.User, error) {
	return r.edgeUsers(ctx, "follows.follower_id", "follows.followed_id", userID)
}

// Following returns the users userID follows, most recent first.
func (r *followRepository) Following(ctx context.Context, userID uint) ([]models.User, error) {
	return r.edgeUsers(ctx, "follows.followed_id", "follows.follower_id", userID)
}

func (r *followRepository) edgeUsers(ctx context.Context, joinCol, whereCol string, userID uint) ([]models.User, error) {
	users := make([]models.User, 0)
	if err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select("users.*").
		Joins("JOIN follows ON users.id = "+joinCol).
		Where(whereCol+" = ?", userID).
		Order("follows.created_at DESC").
		Order("follows.id DESC").
		Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

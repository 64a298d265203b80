// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"errors"

	"github.com/bearkuang/oristagram/internal/cache"
	"github.com/bearkuang/oristagram/internal/models"

	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	FindByUsernames(ctx context.Context, usernames []string) ([]models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	SetActive(ctx context.Context, id uint, active bool) error
	DeleteWithContent(ctx context.Context, id uint) ([]models.Media, error)
	Search(ctx context.Context, query string, limit int) ([]models.User, error)
	Stats(ctx context.Context, id uint) (*UserStats, error)
}

// UserStats are the counters shown on a profile.
type UserStats struct {
	Followers int64
	Following int64
	Posts     int64
	Reels     int64
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	key := cache.UserKey(id)

	err := cache.Aside(ctx, key, &user, cache.UserTTL, func() error {
		if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
			return notFoundOr(err, "User", id)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

// FindByUsernames returns the users that exist among usernames; unknown names are skipped.
func (r *userRepository) FindByUsernames(ctx context.Context, usernames []string) ([]models.User, error) {
	if len(usernames) == 0 {
		return nil, nil
	}
	return findUsersByName(r.db.WithContext(ctx), usernames)
}

func findUsersByName(db *gorm.DB, usernames []string) ([]models.User, error) {
	var users []models.User
	if err := db.Where("username IN ?", usernames).Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("User already exists")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Model(user).Select(
		"username", "bio", "birth_date", "website", "profile_picture", "updated_at",
	).Updates(user).Error
	if err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("A user with that username already exists")
		}
		return models.NewInternalError(err)
	}
	cache.InvalidateUser(ctx, user.ID)
	return nil
}

func (r *userRepository) SetActive(ctx context.Context, id uint, active bool) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("is_active", active)
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	cache.InvalidateUser(ctx, id)
	return nil
}

// DeleteWithContent removes the user and everything they own in one transaction.
// It returns the media rows that were removed so the caller can delete the files.
func (r *userRepository) DeleteWithContent(ctx context.Context, id uint) ([]models.Media, error) {
	var removed []models.Media
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, id).Error; err != nil {
			return notFoundOr(err, "User", id)
		}

		postIDs := tx.Model(&models.Post{}).Select("id").Where("user_id = ?", id)
		reelIDs := tx.Model(&models.Reel{}).Select("id").Where("user_id = ?", id)

		if err := tx.Where("post_id IN (?) OR reel_id IN (?)", postIDs, reelIDs).Find(&removed).Error; err != nil {
			return err
		}

		for _, model := range []interface{}{&models.Like{}, &models.Mark{}, &models.Comment{}} {
			if err := tx.Where("user_id = ? OR post_id IN (?) OR reel_id IN (?)", id, postIDs, reelIDs).
				Delete(model).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("post_id IN (?) OR reel_id IN (?)", postIDs, reelIDs).Delete(&models.Media{}).Error; err != nil {
			return err
		}

		links := []struct {
			sql  string
			args []interface{}
		}{
			{"DELETE FROM post_tags WHERE post_id IN (?)", []interface{}{postIDs}},
			{"DELETE FROM reel_tags WHERE reel_id IN (?)", []interface{}{reelIDs}},
			{"DELETE FROM post_mentions WHERE post_id IN (?) OR user_id = ?", []interface{}{postIDs, id}},
			{"DELETE FROM reel_mentions WHERE reel_id IN (?) OR user_id = ?", []interface{}{reelIDs, id}},
			{"DELETE FROM chat_room_participants WHERE user_id = ?", []interface{}{id}},
		}
		for _, l := range links {
			if err := tx.Exec(l.sql, l.args...).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("sender_id = ? OR receiver_id = ?", id, id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("follower_id = ? OR followed_id = ?", id, id).Delete(&models.Follow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Post{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Reel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		return nil, internal(err)
	}
	cache.InvalidateUser(ctx, id)
	return removed, nil
}

// Search ranks users: 3 when the username starts with query, 2 when it contains it,
// 1 when only the bio contains it. Ties break on follower count. A limit of
// zero or less returns every match.
func (r *userRepository) Search(ctx context.Context, query string, limit int) ([]models.User, error) {
	prefix := prefixPattern(query)
	contains := containsPattern(query)

	users := make([]models.User, 0)
	q := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select(
			"users.*, "+
				"(SELECT COUNT(*) FROM follows WHERE follows.followed_id = users.id) AS follower_count, "+
				"CASE WHEN LOWER(users.username) LIKE ? ESCAPE '\\' THEN 3 "+
				"WHEN LOWER(users.username) LIKE ? ESCAPE '\\' THEN 2 "+
				"WHEN LOWER(users.bio) LIKE ? ESCAPE '\\' THEN 1 ELSE 0 END AS match_score",
			prefix, contains, contains,
		).
		Where("LOWER(users.username) LIKE ? ESCAPE '\\' OR LOWER(users.bio) LIKE ? ESCAPE '\\'", contains, contains).
		Order("match_score DESC").
		Order("follower_count DESC").
		Order("users.id ASC")
	err := limitAll(q, limit).Find(&users).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *userRepository) Stats(ctx context.Context, id uint) (*UserStats, error) {
	var stats UserStats
	db := r.db.WithContext(ctx)
	counts := []struct {
		model interface{}
		where string
		dest  *int64
	}{
		{&models.Follow{}, "followed_id = ?", &stats.Followers},
		{&models.Follow{}, "follower_id = ?", &stats.Following},
		{&models.Post{}, "user_id = ?", &stats.Posts},
		{&models.Reel{}, "user_id = ?", &stats.Reels},
	}
	for _, c := range counts {
		if err := db.Model(c.model).Where(c.where, id).Count(c.dest).Error; err != nil {
			return nil, models.NewInternalError(err)
		}
	}
	return &stats, nil
}

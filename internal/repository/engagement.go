package repository

import (
	"context"
	"fmt"

	"github.com/bearkuang/oristagram/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EngagementRepository stores likes and marks on posts and reels.
type EngagementRepository interface {
	Like(ctx context.Context, userID uint, target models.Target) error
	Unlike(ctx context.Context, userID uint, target models.Target) error
	Mark(ctx context.Context, userID uint, target models.Target) error
	Unmark(ctx context.Context, userID uint, target models.Target) error
	CountLikes(ctx context.Context, target models.Target) (int64, error)
}

type engagementRepository struct {
	db *gorm.DB
}

// NewEngagementRepository returns a new EngagementRepository implementation.
func NewEngagementRepository(db *gorm.DB) EngagementRepository {
	return &engagementRepository{db: db}
}

// noun is how the target kind reads in user-facing messages.
func noun(t models.Target) string {
	if t.Kind == models.TargetReel {
		return "reels"
	}
	return "post"
}

func (r *engagementRepository) insert(ctx context.Context, row interface{}, duplicate string) error {
	// ON CONFLICT DO NOTHING keeps concurrent duplicates from erroring; zero rows means it existed.
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewConflictError(duplicate)
	}
	return nil
}

func (r *engagementRepository) remove(ctx context.Context, model interface{}, userID uint, t models.Target, missing string) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND "+t.Column()+" = ?", userID, t.ID).
		Delete(model)
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewConflictError(missing)
	}
	return nil
}

func (r *engagementRepository) Like(ctx context.Context, userID uint, t models.Target) error {
	return r.insert(ctx, models.NewLike(userID, t), fmt.Sprintf("You already liked this %s", noun(t)))
}

func (r *engagementRepository) Unlike(ctx context.Context, userID uint, t models.Target) error {
	return r.remove(ctx, &models.Like{}, userID, t, fmt.Sprintf("You have not liked this %s", noun(t)))
}

func (r *engagementRepository) Mark(ctx context.Context, userID uint, t models.Target) error {
	return r.insert(ctx, models.NewMark(userID, t), fmt.Sprintf("You already saved this %s", noun(t)))
}

func (r *engagementRepository) Unmark(ctx context.Context, userID uint, t models.Target) error {
	return r.remove(ctx, &models.Mark{}, userID, t, fmt.Sprintf("You have not saved this %s", noun(t)))
}

func (r *engagementRepository) CountLikes(ctx context.Context, t models.Target) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Like{}).Where(t.Column()+" = ?", t.ID).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

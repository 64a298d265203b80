package repository

import (
	"context"
	"errors"

	"github.com/bearkuang/oristagram/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TagRepository defines persistence operations for hashtags.
type TagRepository interface {
	GetByName(ctx context.Context, name string) (*models.Tag, error)
	Search(ctx context.Context, query string, limit int) ([]models.Tag, error)
	Increment(ctx context.Context, id uint) error
}

type tagRepository struct {
	db *gorm.DB
}

// NewTagRepository returns a new TagRepository implementation.
func NewTagRepository(db *gorm.DB) TagRepository {
	return &tagRepository{db: db}
}

// GetByName matches the name case-insensitively.
func (r *tagRepository) GetByName(ctx context.Context, name string) (*models.Tag, error) {
	var tag models.Tag
	if err := r.db.WithContext(ctx).Where("LOWER(name) = LOWER(?)", name).First(&tag).Error; err != nil {
		return nil, notFoundOr(err, "Tag", name)
	}
	return &tag, nil
}

// Search returns tags whose name contains query, most used first. Counts are
// read live so a tag used a moment ago shows up with its new post_count.
// A limit of zero or less returns every match.
func (r *tagRepository) Search(ctx context.Context, query string, limit int) ([]models.Tag, error) {
	tags := make([]models.Tag, 0)
	q := r.db.WithContext(ctx).
		Where("LOWER(name) LIKE ? ESCAPE '\\'", containsPattern(query)).
		Order("post_count DESC").
		Order("name ASC")
	if err := limitAll(q, limit).Find(&tags).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return tags, nil
}

func (r *tagRepository) Increment(ctx context.Context, id uint) error {
	if err := incrementTag(r.db.WithContext(ctx), id); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// incrementTag bumps post_count in the database; there is no read-modify-write.
func incrementTag(db *gorm.DB, id uint) error {
	return db.Model(&models.Tag{}).
		Where("id = ?", id).
		UpdateColumn("post_count", gorm.Expr("post_count + ?", 1)).Error
}

// upsertTag returns the tag named name, creating it when missing.
func upsertTag(db *gorm.DB, name string) (*models.Tag, error) {
	tag := models.Tag{Name: name}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&tag).Error; err != nil {
		return nil, err
	}
	if tag.ID != 0 {
		return &tag, nil
	}
	if err := db.Where("name = ?", name).Take(&tag).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewInternalError(err)
		}
		return nil, err
	}
	return &tag, nil
}

package repository

import (
	"errors"
	"strings"

	"github.com/bearkuang/oristagram/internal/models"

	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalized() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

func (p Page) apply(db *gorm.DB) *gorm.DB {
	p = p.normalized()
	return db.Limit(p.Limit).Offset(p.Offset)
}

// CollectPages calls fetch with consecutive full-size pages until one comes
// back short and returns everything it read.
func CollectPages[T any](fetch func(Page) ([]T, error)) ([]T, error) {
	out := make([]T, 0)
	for page := (Page{Limit: maxPageSize}); ; page.Offset += maxPageSize {
		batch, err := fetch(page)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(batch) < maxPageSize {
			return out, nil
		}
	}
}

// limitAll applies limit when positive. Zero or less means every row.
func limitAll(db *gorm.DB, limit int) *gorm.DB {
	if limit <= 0 {
		return db
	}
	return db.Limit(Page{Limit: limit}.normalized().Limit)
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	// PostgreSQL unique violation SQLSTATE 23505; SQLite "UNIQUE constraint failed"
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "23505")
}

// notFoundOr maps gorm.ErrRecordNotFound to a NOT_FOUND AppError and wraps everything else.
func notFoundOr(err error, resource string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	return internal(err)
}

// internal wraps err unless it already carries an AppError.
func internal(err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewInternalError(err)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern lower-cases q and escapes LIKE wildcards. Use with ESCAPE '\'.
func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(q)) + "%"
}

func prefixPattern(q string) string {
	return likeEscaper.Replace(strings.ToLower(q)) + "%"
}

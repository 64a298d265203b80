// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// User is an account. Username and email are unique.
type User struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Username       string     `gorm:"size:150;uniqueIndex;not null" json:"username"`
	Email          string     `gorm:"size:254;uniqueIndex;not null" json:"email"`
	Password       string     `gorm:"not null" json:"-"`
	Bio            string     `gorm:"type:text" json:"bio"`
	BirthDate      *time.Time `gorm:"type:date" json:"birth_date"`
	ProfilePicture string     `json:"profile_picture"`
	Website        string     `json:"website"`
	IsActive       bool       `gorm:"not null;default:true" json:"is_active"`

	// FollowerCount and MatchScore are filled by search queries only.
	FollowerCount int64 `gorm:"->;-:migration" json:"follower_count,omitempty"`
	MatchScore    int   `gorm:"->;-:migration" json:"match_score,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

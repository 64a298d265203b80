package models

import "time"

// Tag is a hashtag. PostCount only grows: it counts tag-add events, not live links.
type Tag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:50;uniqueIndex;not null" json:"name"`
	PostCount int64     `gorm:"not null;default:0" json:"post_count"`
	CreatedAt time.Time `json:"created_at"`
}

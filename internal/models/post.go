package models

import (
	"time"
)

// Post is a feed entry with optional text and image/video media.
type Post struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	UserID   uint    `gorm:"not null;index" json:"user_id"`
	User     User    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"author"`
	Content  string  `gorm:"type:text" json:"content"`
	Media    []Media `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"media"`
	Tags     []Tag   `gorm:"many2many:post_tags;constraint:OnDelete:CASCADE" json:"tags"`
	Mentions []User  `gorm:"many2many:post_mentions;constraint:OnDelete:CASCADE" json:"mentions"`

	// Computed at query time.
	LikesCount    int64 `gorm:"->;-:migration" json:"likes_count"`
	CommentsCount int64 `gorm:"->;-:migration" json:"comments_count"`
	Liked         bool  `gorm:"->;-:migration" json:"liked"`
	Marked        bool  `gorm:"->;-:migration" json:"marked"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Engagement is likes plus comments.
func (p *Post) Engagement() int64 {
	return p.LikesCount + p.CommentsCount
}

func (p *Post) Target() Target { return PostTarget(p.ID) }

func (p *Post) AuthorID() uint { return p.UserID }

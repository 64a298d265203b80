package models

import (
	"time"
)

// Reel is a short-form video post. Its media are videos only.
type Reel struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	UserID   uint    `gorm:"not null;index" json:"user_id"`
	User     User    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"author"`
	Content  string  `gorm:"type:text" json:"content"`
	Media    []Media `gorm:"foreignKey:ReelID;constraint:OnDelete:CASCADE" json:"videos"`
	Tags     []Tag   `gorm:"many2many:reel_tags;constraint:OnDelete:CASCADE" json:"tags"`
	Mentions []User  `gorm:"many2many:reel_mentions;constraint:OnDelete:CASCADE" json:"mentions"`

	LikesCount    int64 `gorm:"->;-:migration" json:"likes_count"`
	CommentsCount int64 `gorm:"->;-:migration" json:"comments_count"`
	Liked         bool  `gorm:"->;-:migration" json:"liked"`
	Marked        bool  `gorm:"->;-:migration" json:"marked"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Engagement is likes plus comments.
func (r *Reel) Engagement() int64 {
	return r.LikesCount + r.CommentsCount
}

func (r *Reel) Target() Target { return ReelTarget(r.ID) }

func (r *Reel) AuthorID() uint { return r.UserID }

package models

import "time"

// Comment is a (possibly threaded) comment on a post or a reel.
// A reply always targets the same post or reel as its parent.
type Comment struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	UserID   uint   `gorm:"not null;index" json:"user_id"`
	User     User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user"`
	PostID   *uint  `gorm:"index" json:"post_id,omitempty"`
	ReelID   *uint  `gorm:"index" json:"reel_id,omitempty"`
	ParentID *uint  `gorm:"index" json:"parent_id,omitempty"`
	Text     string `gorm:"type:text;not null" json:"text"`

	RepliesCount int64 `gorm:"->;-:migration" json:"replies_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Comment) Target() Target { return targetOf(c.PostID, c.ReelID) }

func (c *Comment) AttachTo(t Target) {
	c.PostID, c.ReelID = targetIDs(t)
}

package models

import "time"

// Like is one user's like on a post or a reel.
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_likes_user_post;uniqueIndex:idx_likes_user_reel" json:"user_id"`
	PostID    *uint     `gorm:"uniqueIndex:idx_likes_user_post;index" json:"post_id,omitempty"`
	ReelID    *uint     `gorm:"uniqueIndex:idx_likes_user_reel;index" json:"reel_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func NewLike(userID uint, t Target) *Like {
	l := &Like{UserID: userID}
	l.PostID, l.ReelID = targetIDs(t)
	return l
}

func (l *Like) Target() Target { return targetOf(l.PostID, l.ReelID) }

// Mark is a save/bookmark of a post or a reel.
type Mark struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_marks_user_post;uniqueIndex:idx_marks_user_reel" json:"user_id"`
	PostID    *uint     `gorm:"uniqueIndex:idx_marks_user_post;index" json:"post_id,omitempty"`
	ReelID    *uint     `gorm:"uniqueIndex:idx_marks_user_reel;index" json:"reel_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func NewMark(userID uint, t Target) *Mark {
	m := &Mark{UserID: userID}
	m.PostID, m.ReelID = targetIDs(t)
	return m
}

func (m *Mark) Target() Target { return targetOf(m.PostID, m.ReelID) }

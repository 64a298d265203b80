package models

import "time"

type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// Media is one stored file attached to exactly one post or reel.
type Media struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	PostID          *uint     `gorm:"index" json:"post_id,omitempty"`
	ReelID          *uint     `gorm:"index" json:"reel_id,omitempty"`
	Kind            MediaKind `gorm:"size:16;not null" json:"kind"`
	MimeType        string    `gorm:"size:64;not null" json:"mime_type"`
	Path            string    `gorm:"not null" json:"-"`
	VariantPath     string    `json:"-"`
	URL             string    `gorm:"not null" json:"url"`
	VariantURL      string    `json:"variant_url,omitempty"`
	Width           int       `json:"width,omitempty"`
	Height          int       `json:"height,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	SizeBytes       int64     `json:"size_bytes"`
	CreatedAt       time.Time `json:"created_at"`
}

func (Media) TableName() string { return "media" }

// AttachTo points the media row at t.
func (m *Media) AttachTo(t Target) {
	m.PostID, m.ReelID = targetIDs(t)
}

// Files lists every path on disk owned by this row.
func (m *Media) Files() []string {
	files := []string{m.Path}
	if m.VariantPath != "" {
		files = append(files, m.VariantPath)
	}
	return files
}

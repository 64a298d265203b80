package models

import "fmt"

// TargetKind identifies which content table an engagement row points at.
type TargetKind string

const (
	TargetPost TargetKind = "post"
	TargetReel TargetKind = "reel"
)

// Target is a post or a reel, never both.
type Target struct {
	Kind TargetKind
	ID   uint
}

func PostTarget(id uint) Target { return Target{Kind: TargetPost, ID: id} }

func ReelTarget(id uint) Target { return Target{Kind: TargetReel, ID: id} }

// Column is the foreign key column used for this target in likes, marks and comments.
func (t Target) Column() string {
	if t.Kind == TargetReel {
		return "reel_id"
	}
	return "post_id"
}

// Resource is the human name used in error messages.
func (t Target) Resource() string {
	if t.Kind == TargetReel {
		return "Reels"
	}
	return "Post"
}

func (t Target) Valid() bool {
	return t.ID != 0 && (t.Kind == TargetPost || t.Kind == TargetReel)
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%d", t.Kind, t.ID)
}

// targetIDs returns the (post_id, reel_id) pair for t.
func targetIDs(t Target) (*uint, *uint) {
	id := t.ID
	if t.Kind == TargetReel {
		return nil, &id
	}
	return &id, nil
}

// targetOf rebuilds a Target from a nullable pair.
func targetOf(postID, reelID *uint) Target {
	if reelID != nil {
		return ReelTarget(*reelID)
	}
	if postID != nil {
		return PostTarget(*postID)
	}
	return Target{}
}

// Content is the behavior shared by *Post and *Reel.
type Content interface {
	Target() Target
	AuthorID() uint
}

package database

import "github.com/bearkuang/oristagram/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
// Join tables (post_tags, reel_tags, post_mentions, reel_mentions,
// chat_room_participants) are created from the many2many tags.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Tag{},
		&models.Post{},
		&models.Reel{},
		&models.Media{},
		&models.Like{},
		&models.Mark{},
		&models.Comment{},
		&models.Follow{},
		&models.ChatRoom{},
		&models.Message{},
	}
}

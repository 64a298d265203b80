package models

import "time"

// ChatRoom groups participants exchanging direct messages.
type ChatRoom struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Participants []User    `gorm:"many2many:chat_room_participants;constraint:OnDelete:CASCADE" json:"participants,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Message belongs to exactly one room.
type Message struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ChatRoomID uint      `gorm:"not null;index" json:"chatroom"`
	SenderID   uint      `gorm:"not null;index" json:"sender_id"`
	Sender     User      `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE" json:"sender"`
	ReceiverID uint      `gorm:"not null;index" json:"receiver_id"`
	Receiver   User      `gorm:"foreignKey:ReceiverID;constraint:OnDelete:CASCADE" json:"receiver"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	CreatedAt  time.Time `gorm:"index" json:"timestamp"`
}

// ChatRoomSummary is one row of a user's room list: the room and one other participant.
type ChatRoomSummary struct {
	ChatRoomID uint `json:"chatroom_id"`
	User       User `json:"user"`
}

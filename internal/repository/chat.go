package repository

import (
	"context"
	"errors"

	"github.com/bearkuang/oristagram/internal/models"

	"gorm.io/gorm"
)

// ChatRepository defines the interface for chat data operations
type ChatRepository interface {
	CreateRoom(ctx context.Context, participantIDs ...uint) (*models.ChatRoom, error)
	GetRoom(ctx context.Context, id uint) (*models.ChatRoom, error)
	FindSharedRoom(ctx context.Context, userA, userB uint) (*models.ChatRoom, error)
	IsParticipant(ctx context.Context, roomID, userID uint) (bool, error)
	RoomsForUser(ctx context.Context, userID uint) ([]models.ChatRoomSummary, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, roomID uint) ([]models.Message, error)
}

// chatRepository implements ChatRepository
type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

// CreateRoom creates the room and its participant links in one transaction.
func (r *chatRepository) CreateRoom(ctx context.Context, participantIDs ...uint) (*models.ChatRoom, error) {
	room := &models.ChatRoom{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Participants").Create(room).Error; err != nil {
			return err
		}
		var users []models.User
		if err := tx.Where("id IN ?", participantIDs).Find(&users).Error; err != nil {
			return err
		}
		if len(users) != len(uniqueIDs(participantIDs)) {
			return models.NewNotFoundError("User", participantIDs)
		}
		return tx.Model(room).Omit("Participants.*").Association("Participants").Append(users)
	})
	if err != nil {
		return nil, internal(err)
	}
	return r.GetRoom(ctx, room.ID)
}

func uniqueIDs(ids []uint) map[uint]struct{} {
	set := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (r *chatRepository) GetRoom(ctx context.Context, id uint) (*models.ChatRoom, error) {
	var room models.ChatRoom
	if err := r.db.WithContext(ctx).Preload("Participants").First(&room, id).Error; err != nil {
		return nil, notFoundOr(err, "ChatRoom", id)
	}
	return &room, nil
}

// FindSharedRoom returns a room both users take part in, or nil when there is none.
func (r *chatRepository) FindSharedRoom(ctx context.Context, userA, userB uint) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := r.db.WithContext(ctx).
		Model(&models.ChatRoom{}).
		Joins("JOIN chat_room_participants a ON a.chat_room_id = chat_rooms.id AND a.user_id = ?", userA).
		Joins("JOIN chat_room_participants b ON b.chat_room_id = chat_rooms.id AND b.user_id = ?", userB).
		Order("chat_rooms.id ASC").
		First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &room, nil
}

func (r *chatRepository) IsParticipant(ctx context.Context, roomID, userID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Table("chat_room_participants").
		Where("chat_room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

// RoomsForUser lists one summary per other participant of every room userID is in.
func (r *chatRepository) RoomsForUser(ctx context.Context, userID uint) ([]models.ChatRoomSummary, error) {
	var rooms []models.ChatRoom
	if err := r.db.WithContext(ctx).
		Joins("JOIN chat_room_participants me ON me.chat_room_id = chat_rooms.id AND me.user_id = ?", userID).
		Preload("Participants").
		Order("chat_rooms.id ASC").
		Find(&rooms).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	summaries := make([]models.ChatRoomSummary, 0, len(rooms))
	for _, room := range rooms {
		for _, p := range room.Participants {
			if p.ID == userID {
				continue
			}
			summaries = append(summaries, models.ChatRoomSummary{ChatRoomID: room.ID, User: p})
		}
	}
	return summaries, nil
}

func (r *chatRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := r.db.WithContext(ctx).Omit("Sender", "Receiver").Create(msg).Error; err != nil {
		return models.NewInternalError(err)
	}
	if err := r.db.WithContext(ctx).Preload("Sender").Preload("Receiver").First(msg, msg.ID).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// ListMessages returns the room's messages in timestamp order.
func (r *chatRepository) ListMessages(ctx context.Context, roomID uint) ([]models.Message, error) {
	messages := make([]models.Message, 0)
	if err := r.db.WithContext(ctx).
		Where("chat_room_id = ?", roomID).
		Preload("Sender").
		Preload("Receiver").
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return messages, nil
}

package service

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bearkuang/oristagram/internal/middleware"
	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/observability"
	"github.com/bearkuang/oristagram/internal/repository"
)

const maxMessageLen = 5000

// Message sources, used as the metric label.
const (
	MessageSourceHTTP      = "http"
	MessageSourceWebSocket = "websocket"
)

// RoomBroadcaster delivers a persisted message to the members of its room.
type RoomBroadcaster interface {
	BroadcastMessage(ctx context.Context, msg *models.Message) error
}

// ChatService provides direct-message rooms between users.
type ChatService struct {
	chatRepo    repository.ChatRepository
	userRepo    repository.UserRepository
	broadcaster RoomBroadcaster
}

// SendMessageInput is the input for sending a message.
type SendMessageInput struct {
	RoomID     uint
	SenderID   uint
	ReceiverID uint
	Content    string
	Source     string
}

// NewChatService returns a new ChatService. A nil broadcaster only persists.
func NewChatService(chatRepo repository.ChatRepository, userRepo repository.UserRepository, broadcaster RoomBroadcaster) *ChatService {
	return &ChatService{chatRepo: chatRepo, userRepo: userRepo, broadcaster: broadcaster}
}

// CreateOrGetRoom returns the room userID already shares with otherID, or
// creates one. created reports which.
func (s *ChatService) CreateOrGetRoom(ctx context.Context, userID, otherID uint) (room *models.ChatRoom, created bool, err error) {
	if otherID == 0 {
		return nil, false, models.NewValidationError("User ID is required")
	}
	if otherID == userID {
		return nil, false, models.NewValidationError("You cannot start a chat with yourself.")
	}
	if _, err := s.userRepo.GetByID(ctx, otherID); err != nil {
		if models.ErrorCode(err) == models.CodeNotFound {
			return nil, false, models.NewNotFoundMessage("User not found")
		}
		return nil, false, err
	}

	existing, err := s.chatRepo.FindSharedRoom(ctx, userID, otherID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	room, err = s.chatRepo.CreateRoom(ctx, userID, otherID)
	if err != nil {
		return nil, false, err
	}
	middleware.Logger.InfoContext(ctx, "chat room created",
		slog.Uint64("room_id", uint64(room.ID)),
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("other_id", uint64(otherID)),
	)
	return room, true, nil
}

// MyRooms lists one entry per other participant of each of userID's rooms.
func (s *ChatService) MyRooms(ctx context.Context, userID uint) ([]models.ChatRoomSummary, error) {
	return s.chatRepo.RoomsForUser(ctx, userID)
}

// Authorize returns FORBIDDEN unless userID takes part in the room.
func (s *ChatService) Authorize(ctx context.Context, roomID, userID uint) error {
	if _, err := s.chatRepo.GetRoom(ctx, roomID); err != nil {
		return err
	}
	ok, err := s.chatRepo.IsParticipant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewForbiddenError("You are not a participant of this chat room.")
	}
	return nil
}

// Messages returns the room history in timestamp order. Participants only.
func (s *ChatService) Messages(ctx context.Context, roomID, userID uint) ([]models.Message, error) {
	if err := s.Authorize(ctx, roomID, userID); err != nil {
		return nil, err
	}
	return s.chatRepo.ListMessages(ctx, roomID)
}

// SendMessage persists the message, then hands it to the broadcaster.
// Delivery is best-effort: a broadcast failure is logged, not returned.
func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput) (_ *models.Message, err error) {
	ctx, end := observability.StartSpan(ctx, observability.OpChatSend, observability.RoomAttr(in.RoomID), observability.UserAttr(in.SenderID))
	defer func() { end(err) }()

	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, models.NewValidationError("Message content is required")
	}
	if utf8.RuneCountInString(content) > maxMessageLen {
		return nil, models.NewValidationError("Message too long (max 5000 characters)")
	}
	if err := s.Authorize(ctx, in.RoomID, in.SenderID); err != nil {
		return nil, err
	}
	if in.ReceiverID == 0 {
		return nil, models.NewValidationError("Receiver ID is required")
	}
	if _, err := s.userRepo.GetByID(ctx, in.ReceiverID); err != nil {
		if models.ErrorCode(err) == models.CodeNotFound {
			return nil, models.NewNotFoundMessage("Receiver not found")
		}
		return nil, err
	}
	ok, err := s.chatRepo.IsParticipant(ctx, in.RoomID, in.ReceiverID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewValidationError("Receiver is not in this chat room.")
	}

	msg := &models.Message{
		ChatRoomID: in.RoomID,
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Content:    content,
	}
	if err := s.chatRepo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	source := in.Source
	if source == "" {
		source = MessageSourceHTTP
	}
	observability.ChatMessages.WithLabelValues(source).Inc()

	if s.broadcaster != nil {
		if err := s.broadcaster.BroadcastMessage(ctx, msg); err != nil {
			middleware.Logger.WarnContext(ctx, "chat broadcast failed",
				slog.Uint64("room_id", uint64(in.RoomID)),
				slog.Uint64("message_id", uint64(msg.ID)),
				slog.String("error", err.Error()),
			)
		}
	}
	return msg, nil
}

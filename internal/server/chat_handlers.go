package server

import (
	"github.com/bearkuang/oristagram/internal/service"

	"github.com/gofiber/fiber/v2"
)

// SendMessageRequest is the body of POST /api/chatrooms/:id/messages.
type SendMessageRequest struct {
	Content    string `json:"content"`
	ReceiverID uint   `json:"receiver_id"`
}

// GetMyChatRooms handles GET /api/chatrooms
// @Summary My chat rooms
// @Description One entry per other participant
// @Tags chat
// @Security BearerAuth
// @Produce json
// @Success 200 {array} models.ChatRoomSummary
// @Router /chatrooms [get]
func (s *Server) GetMyChatRooms(c *fiber.Ctx) error {
	rooms, err := s.chatService.MyRooms(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(rooms)
}

// CreateChatRoom handles POST /api/chatrooms
// @Summary Open a chat with a user
// @Description Returns the room the two users already share, or creates one
// @Tags chat
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{user_id=int} true "Other user"
// @Success 200 {object} object{chatroom_id=int}
// @Success 201 {object} object{chatroom_id=int}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /chatrooms [post]
func (s *Server) CreateChatRoom(c *fiber.Ctx) error {
	var req struct {
		UserID uint `json:"user_id"`
	}
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	room, created, err := s.chatService.CreateOrGetRoom(c.UserContext(), currentUserID(c), req.UserID)
	if err != nil {
		return respondServiceError(c, err)
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"chatroom_id": room.ID})
}

// GetMessages handles GET /api/chatrooms/:id/messages
// @Summary Room history
// @Description Participants only, ordered by timestamp
// @Tags chat
// @Security BearerAuth
// @Produce json
// @Param id path int true "Chat room ID"
// @Success 200 {array} models.Message
// @Failure 403 {object} models.ErrorResponse
// @Router /chatrooms/{id}/messages [get]
func (s *Server) GetMessages(c *fiber.Ctx) error {
	roomID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	messages, err := s.chatService.Messages(c.UserContext(), roomID, currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(messages)
}

// SendMessage handles POST /api/chatrooms/:id/messages
// @Summary Send a message
// @Description Persisted, then broadcast to the room's websocket members
// @Tags chat
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Chat room ID"
// @Param request body SendMessageRequest true "Message"
// @Success 201 {object} models.Message
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /chatrooms/{id}/messages [post]
func (s *Server) SendMessage(c *fiber.Ctx) error {
	roomID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req SendMessageRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	msg, err := s.chatService.SendMessage(c.UserContext(), service.SendMessageInput{
		RoomID:     roomID,
		SenderID:   currentUserID(c),
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		Source:     service.MessageSourceHTTP,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

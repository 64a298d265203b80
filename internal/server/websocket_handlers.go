package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bearkuang/oristagram/internal/middleware"
	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/notifications"
	"github.com/bearkuang/oristagram/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// inboundChatFrame is what a client sends on /ws/chat/:chatroom_id.
// sender_id is accepted for compatibility; the sender is always the
// authenticated user.
type inboundChatFrame struct {
	Message    string `json:"message"`
	SenderID   uint   `json:"sender_id"`
	ReceiverID uint   `json:"receiver_id"`
}

// WebSocketUpgrade rejects plain HTTP requests on websocket routes.
func (s *Server) WebSocketUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

// ChatRoomMember admits participants of :chatroom_id only. Runs after AuthRequired.
func (s *Server) ChatRoomMember(c *fiber.Ctx) error {
	roomID, err := parseID(c, "chatroom_id")
	if err != nil {
		return nil
	}
	if err := s.chatService.Authorize(c.UserContext(), roomID, currentUserID(c)); err != nil {
		return respondServiceError(c, err)
	}
	c.Locals("roomID", roomID)
	return c.Next()
}

// WebSocketChatHandler joins the connection to its room. Every inbound frame
// is persisted and then broadcast to the room as {"message": ...}.
func (s *Server) WebSocketChatHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		userID, _ := conn.Locals("userID").(uint)
		roomID, _ := conn.Locals("roomID").(uint)
		if userID == 0 || roomID == 0 {
			_ = conn.WriteMessage(websocket.TextMessage, errorFrame("unauthorized"))
			_ = conn.Close()
			return
		}

		client, err := s.chatHub.Register(userID, roomID, conn)
		if err != nil {
			middleware.Logger.Warn("websocket register failed",
				slog.Uint64("user_id", uint64(userID)),
				slog.Uint64("room_id", uint64(roomID)),
				slog.String("error", err.Error()),
			)
			_ = conn.WriteMessage(websocket.TextMessage, errorFrame(err.Error()))
			_ = conn.Close()
			return
		}

		ctx := middleware.WithUserID(context.Background(), userID)
		middleware.Logger.InfoContext(ctx, "websocket joined room", slog.Uint64("room_id", uint64(roomID)))

		client.IncomingHandler = func(cl *notifications.Client, raw []byte) {
			s.handleChatFrame(ctx, cl, raw)
		}

		go client.WritePump()
		client.ReadPump()
	})
}

func (s *Server) handleChatFrame(ctx context.Context, client *notifications.Client, raw []byte) {
	var frame inboundChatFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		client.TrySend(errorFrame("Invalid message format"))
		return
	}
	if frame.SenderID != 0 && frame.SenderID != client.UserID {
		middleware.Logger.DebugContext(ctx, "ignoring sender_id from websocket frame",
			slog.Uint64("claimed", uint64(frame.SenderID)),
		)
	}

	allowed, _, err := s.limiter.Allow(ctx, middleware.WSMessageQuota, fmt.Sprintf("user:%d", client.UserID))
	if err == nil && !allowed {
		client.TrySend(errorFrame(middleware.WSMessageQuota.Message))
		return
	}

	_, err = s.chatService.SendMessage(ctx, service.SendMessageInput{
		RoomID:     client.RoomID,
		SenderID:   client.UserID,
		ReceiverID: frame.ReceiverID,
		Content:    frame.Message,
		Source:     service.MessageSourceWebSocket,
	})
	if err != nil {
		if code := models.ErrorCode(err); code == models.CodeInternal || code == "" {
			middleware.Logger.ErrorContext(ctx, "websocket message failed", slog.String("error", err.Error()))
			client.TrySend(errorFrame("Message could not be sent"))
			return
		}
		client.TrySend(errorFrame(err.Error()))
	}
}

func errorFrame(msg string) []byte {
	b, _ := json.Marshal(fiber.Map{"error": msg})
	return b
}

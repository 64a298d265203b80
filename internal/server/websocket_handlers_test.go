package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/bearkuang/oristagram/internal/featureflags"
	"github.com/bearkuang/oristagram/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serve runs the env's app on a loopback port and returns its address.
func serve(t *testing.T, env *testEnv) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = env.app.Listener(ln) }()
	t.Cleanup(func() { _ = env.app.Shutdown() })
	return ln.Addr().String()
}

func dialRoom(t *testing.T, env *testEnv, addr, access string, roomID uint) *websocket.Conn {
	t.Helper()
	ticket := issueTicket(t, env, access)
	url := fmt.Sprintf("ws://%s/ws/chat/%d?ticket=%s", addr, roomID, ticket)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type chatFrame struct {
	Message *models.Message `json:"message"`
	Error   string          `json:"error"`
}

func readFrame(t *testing.T, conn *websocket.Conn) chatFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame chatFrame
	require.NoError(t, json.Unmarshal(raw, &frame), string(raw))
	return frame
}

func TestWebSocketChat_Broadcast(t *testing.T) {
	tests := []struct {
		name  string
		flags string
	}{
		{"through redis", ""},
		{"local hub only", "chat_pubsub=off"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(s *Server) {
				s.featureFlags = featureflags.NewManager(tt.flags)
			})
			assert.Equal(t, tt.flags == "", env.srv.notifier != nil)

			alice, aliceToken := env.register("alice")
			bob, bobToken := env.register("bob")
			roomID := openRoom(t, env, aliceToken, bob.ID, http.StatusCreated)
			addr := serve(t, env)

			aliceConn := dialRoom(t, env, addr, aliceToken, roomID)
			bobConn := dialRoom(t, env, addr, bobToken, roomID)
			require.Eventually(t, func() bool {
				return env.srv.chatHub.Members(roomID) == 2
			}, 2*time.Second, 10*time.Millisecond)

			require.NoError(t, aliceConn.WriteJSON(fiber.Map{
				"message":     "over the wire",
				"sender_id":   bob.ID, // ignored
				"receiver_id": bob.ID,
			}))

			for _, conn := range []*websocket.Conn{aliceConn, bobConn} {
				frame := readFrame(t, conn)
				require.NotNil(t, frame.Message)
				assert.Equal(t, "over the wire", frame.Message.Content)
				assert.Equal(t, alice.ID, frame.Message.SenderID)
				assert.Equal(t, roomID, frame.Message.ChatRoomID)
			}

			// HTTP sends fan out to the room too
			resp := env.do(http.MethodPost, fmt.Sprintf("/api/chatrooms/%d/messages", roomID), bobToken,
				fiber.Map{"content": "via http", "receiver_id": alice.ID})
			require.Equal(t, http.StatusCreated, resp.StatusCode)
			frame := readFrame(t, aliceConn)
			require.NotNil(t, frame.Message)
			assert.Equal(t, "via http", frame.Message.Content)

			var stored int64
			require.NoError(t, env.db.Model(&models.Message{}).Where("chat_room_id = ?", roomID).Count(&stored).Error)
			assert.Equal(t, int64(2), stored)
		})
	}
}

func TestWebSocketChat_ErrorFrames(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.register("alice")
	bob, _ := env.register("bob")
	roomID := openRoom(t, env, aliceToken, bob.ID, http.StatusCreated)
	addr := serve(t, env)

	conn := dialRoom(t, env, addr, aliceToken, roomID)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, "Invalid message format", readFrame(t, conn).Error)

	require.NoError(t, conn.WriteJSON(fiber.Map{"message": "   ", "receiver_id": bob.ID}))
	assert.Equal(t, "Message content is required", readFrame(t, conn).Error)

	require.NoError(t, conn.WriteJSON(fiber.Map{"message": "hi"}))
	assert.Equal(t, "Receiver ID is required", readFrame(t, conn).Error)
}

func TestWebSocketChat_RejectsBeforeUpgrade(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.register("alice")
	bob, _ := env.register("bob")
	_, carolToken := env.register("carol")
	roomID := openRoom(t, env, aliceToken, bob.ID, http.StatusCreated)
	addr := serve(t, env)

	tests := []struct {
		name       string
		url        func() string
		wantStatus int
	}{
		{
			name:       "no credentials",
			url:        func() string { return fmt.Sprintf("ws://%s/ws/chat/%d", addr, roomID) },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown ticket",
			url:        func() string { return fmt.Sprintf("ws://%s/ws/chat/%d?ticket=nope", addr, roomID) },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "not a participant",
			url: func() string {
				return fmt.Sprintf("ws://%s/ws/chat/%d?ticket=%s", addr, roomID, issueTicket(t, env, carolToken))
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name: "unknown room",
			url: func() string {
				return fmt.Sprintf("ws://%s/ws/chat/9999?ticket=%s", addr, issueTicket(t, env, aliceToken))
			},
			wantStatus: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(tt.url(), nil)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}

	// a plain GET is not an upgrade
	resp := env.do(http.MethodGet, fmt.Sprintf("/ws/chat/%d", roomID), aliceToken, nil)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bearkuang/oristagram/internal/middleware"
	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per user across all rooms
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

var (
	errTotalConnLimit = errors.New("server connection limit reached")
	errUserConnLimit  = errors.New("user connection limit reached")
)

// Frame is what clients receive for every chat message.
type Frame struct {
	Message *models.Message `json:"message"`
}

// EncodeFrame serializes msg as an outbound frame.
func EncodeFrame(msg *models.Message) ([]byte, error) {
	return json.Marshal(Frame{Message: msg})
}

// ChatHub tracks the websocket clients joined to each chat room on this
// instance. With a wired Notifier, messages go through Redis so members
// connected to other instances receive them too.
type ChatHub struct {
	mu sync.RWMutex

	// roomID -> clients
	rooms map[uint]map[*Client]struct{}

	// userID -> open connections
	userConns  map[uint]int
	totalConns int

	notifier *Notifier
	wired    atomic.Bool
}

// Name returns a human-readable identifier for this hub.
func (h *ChatHub) Name() string { return "chat hub" }

// NewChatHub creates a hub. n may be nil for a single-instance setup.
func NewChatHub(n *Notifier) *ChatHub {
	return &ChatHub{
		rooms:     make(map[uint]map[*Client]struct{}),
		userConns: make(map[uint]int),
		notifier:  n,
	}
}

// Register joins a connection to a room. The caller has already checked
// that userID takes part in the room.
func (h *ChatHub) Register(userID, roomID uint, conn *websocket.Conn) (*Client, error) {
	client := NewClient(h, conn, userID, roomID)
	if err := h.join(client); err != nil {
		return nil, err
	}
	return client, nil
}

func (h *ChatHub) join(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.totalConns >= maxTotalConns {
		return errTotalConnLimit
	}
	if h.userConns[client.UserID] >= maxConnsPerUser {
		return errUserConnLimit
	}

	members, ok := h.rooms[client.RoomID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[client.RoomID] = members
	}
	members[client] = struct{}{}
	h.userConns[client.UserID]++
	h.totalConns++
	observability.WebSocketRoomConnections.Inc()
	return nil
}

// UnregisterClient removes the client from its room and stops its writer.
func (h *ChatHub) UnregisterClient(client *Client) {
	h.mu.Lock()
	members, ok := h.rooms[client.RoomID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, joined := members[client]; !joined {
		h.mu.Unlock()
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, client.RoomID)
	}
	h.userConns[client.UserID]--
	if h.userConns[client.UserID] <= 0 {
		delete(h.userConns, client.UserID)
	}
	h.totalConns--
	client.close()
	h.mu.Unlock()

	observability.WebSocketRoomConnections.Dec()
}

// Members returns how many local clients are joined to the room.
func (h *ChatHub) Members(roomID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// BroadcastLocal queues payload for every local member of the room.
// Slow clients lose the frame instead of blocking the others.
func (h *ChatHub) BroadcastLocal(roomID uint, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for c := range h.rooms[roomID] {
		if c.TrySend(payload) {
			delivered++
		}
	}
	return delivered
}

// BroadcastMessage delivers a persisted message to the room. When wired to
// Redis it publishes and lets every instance's subscriber fan out; if the
// publish fails it falls back to local delivery.
func (h *ChatHub) BroadcastMessage(ctx context.Context, msg *models.Message) error {
	payload, err := EncodeFrame(msg)
	if err != nil {
		return err
	}
	if h.wired.Load() {
		err := h.notifier.PublishRoom(ctx, msg.ChatRoomID, string(payload))
		if err == nil {
			return nil
		}
		middleware.Logger.WarnContext(ctx, "room publish failed, delivering locally",
			slog.Uint64("room_id", uint64(msg.ChatRoomID)),
			slog.String("error", err.Error()),
		)
	}
	h.BroadcastLocal(msg.ChatRoomID, payload)
	return nil
}

// StartWiring subscribes to every room channel and forwards payloads to local members.
func (h *ChatHub) StartWiring(ctx context.Context) error {
	if !h.notifier.Enabled() {
		return nil
	}
	err := h.notifier.StartRoomSubscriber(ctx, func(roomID uint, payload string) {
		h.BroadcastLocal(roomID, []byte(payload))
	})
	if err != nil {
		return err
	}
	h.wired.Store(true)
	return nil
}

// Shutdown closes every client's writer, which sends a close frame to the peer.
func (h *ChatHub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	closed := 0
	for _, members := range h.rooms {
		for client := range members {
			client.close()
			closed++
		}
	}
	observability.WebSocketRoomConnections.Sub(float64(closed))

	h.rooms = make(map[uint]map[*Client]struct{})
	h.userConns = make(map[uint]int)
	h.totalConns = 0
	h.wired.Store(false)

	middleware.Logger.Info("chat hub shut down", slog.Int("connections", closed))
	return nil
}

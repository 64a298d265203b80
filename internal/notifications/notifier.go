// Package notifications delivers chat messages to websocket clients, locally
// and across instances through Redis pub/sub.
package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/bearkuang/oristagram/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const roomChannelPrefix = "chat:room:"

// Notifier publishes room payloads into Redis channels.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
// A nil client turns every call into a no-op.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Enabled reports whether a Redis client is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

// PublishRoom sends a payload to a chat room channel.
func (n *Notifier) PublishRoom(ctx context.Context, roomID uint, payload string) error {
	if !n.Enabled() {
		return nil
	}
	if err := n.rdb.Publish(ctx, RoomChannel(roomID), payload).Err(); err != nil {
		middleware.RedisErrors.WithLabelValues("publish").Inc()
		return fmt.Errorf("publish room %d: %w", roomID, err)
	}
	return nil
}

// StartRoomSubscriber subscribes to `chat:room:*` and calls onMessage for each
// payload until ctx is cancelled.
func (n *Notifier) StartRoomSubscriber(ctx context.Context, onMessage func(roomID uint, payload string)) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, roomChannelPrefix+"*")
	// wait for the subscription so publishes right after start are not lost
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		middleware.RedisErrors.WithLabelValues("psubscribe").Inc()
		return fmt.Errorf("subscribe chat rooms: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				roomID, ok := ParseRoomChannel(msg.Channel)
				if !ok {
					middleware.Logger.Warn("invalid chat channel", slog.String("channel", msg.Channel))
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in room subscriber",
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())),
							)
						}
					}()
					onMessage(roomID, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

// RoomChannel derives the Redis channel name for a chat room.
func RoomChannel(roomID uint) string {
	return roomChannelPrefix + strconv.FormatUint(uint64(roomID), 10)
}

// ParseRoomChannel extracts the room id from a channel name.
func ParseRoomChannel(channel string) (uint, bool) {
	raw, ok := strings.CutPrefix(channel, roomChannelPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.False(t, n.Enabled())
	assert.NoError(t, n.PublishRoom(context.Background(), 1, "payload"))
	assert.NoError(t, n.StartRoomSubscriber(context.Background(), func(uint, string) {
		t.Fatal("no messages without redis")
	}))
}

func TestRoomChannel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "chat:room:5", RoomChannel(5))

	tests := []struct {
		channel string
		id      uint
		ok      bool
	}{
		{"chat:room:5", 5, true},
		{"chat:room:120", 120, true},
		{"chat:room:0", 0, false},
		{"chat:room:abc", 0, false},
		{"chat:conv:5", 0, false},
	}
	for _, tt := range tests {
		id, ok := ParseRoomChannel(tt.channel)
		assert.Equal(t, tt.ok, ok, tt.channel)
		assert.Equal(t, tt.id, id, tt.channel)
	}
}

func TestNotifier_RoomSubscriberStopsOnCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())

	type delivery struct {
		room    uint
		payload string
	}
	got := make(chan delivery, 2)
	require.NoError(t, n.StartRoomSubscriber(ctx, func(roomID uint, payload string) {
		got <- delivery{roomID, payload}
	}))

	require.NoError(t, n.PublishRoom(context.Background(), 42, `{"message":{}}`))
	select {
	case d := <-got:
		assert.Equal(t, uint(42), d.room)
		assert.Equal(t, `{"message":{}}`, d.payload)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a delivery")
	}

	cancel()
	require.Eventually(t, func() bool {
		return mr.PubSubNumPat() == 0
	}, 2*time.Second, 20*time.Millisecond)
}

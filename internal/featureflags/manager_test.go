package featureflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	m := NewManager("")
	assert.True(t, m.Enabled(ExploreReels, 0))
	assert.True(t, m.Enabled(ChatPubSub, 0))
	assert.Empty(t, m.Unknown())

	m = NewManager("EXPLORE_REELS=off")
	assert.False(t, m.Enabled(ExploreReels, 7))
	assert.True(t, m.Enabled(ChatPubSub, 7))
}

func TestEnabled_BooleanValues(t *testing.T) {
	for _, v := range []string{"on", "true", "1", "ON"} {
		assert.True(t, NewManager("explore_reels=off,explore_reels="+v).Enabled(ExploreReels, 1), v)
	}
	for _, v := range []string{"off", "false", "0"} {
		assert.False(t, NewManager("explore_reels="+v).Enabled(ExploreReels, 1), v)
	}
}

func TestEnabled_PercentageValues(t *testing.T) {
	assert.True(t, NewManager("chat_pubsub=100%").Enabled(ChatPubSub, 1))
	assert.False(t, NewManager("chat_pubsub=0%").Enabled(ChatPubSub, 1))

	m := NewManager("chat_pubsub=25%")
	first := m.Enabled(ChatPubSub, 42)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Enabled(ChatPubSub, 42), "rollout evaluation must be deterministic per user")
	}
	assert.False(t, m.Enabled(ChatPubSub, 0), "percentage rollout requires a user")

	on := 0
	for uid := uint(1); uid <= 1000; uid++ {
		if m.Enabled(ChatPubSub, uid) {
			on++
		}
	}
	assert.InDelta(t, 250, on, 80)
}

func TestNewManager_IgnoresBadInput(t *testing.T) {
	m := NewManager(" bad ,explore_reels=sometimes, chat_pubsub = 20% ,stories=on,=on")

	raw := m.Raw()
	assert.Len(t, raw, len(Registry))
	assert.Equal(t, "on", raw[ExploreReels], "unparseable values keep the default")
	assert.Equal(t, "20%", raw[ChatPubSub])
	assert.Equal(t, []string{"stories"}, m.Unknown())

	snap := m.Snapshot(123)
	assert.Len(t, snap, len(Registry))
	assert.True(t, snap[ExploreReels])
	assert.False(t, m.Enabled("stories", 123))
}

func TestDescribe(t *testing.T) {
	states := NewManager("explore_reels=off").Describe(3)
	require.Len(t, states, 2)

	assert.Equal(t, ChatPubSub, states[0].Name)
	assert.True(t, states[0].Enabled)
	assert.NotEmpty(t, states[0].Description)

	assert.Equal(t, ExploreReels, states[1].Name)
	assert.Equal(t, "off", states[1].Value)
	assert.Equal(t, "on", states[1].Default)
	assert.False(t, states[1].Enabled)
}

func TestNilManager(t *testing.T) {
	var m *Manager
	assert.False(t, m.Enabled(ExploreReels, 1))
	assert.Nil(t, m.Unknown())
}

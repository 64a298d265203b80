package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedUser struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func withMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { SetClient(nil) })
	return mr
}

func TestAside_FetchesOnceThenHits(t *testing.T) {
	mr := withMiniredis(t)
	ctx := context.Background()

	calls := 0
	fetch := func(dest *cachedUser) func() error {
		return func() error {
			calls++
			*dest = cachedUser{ID: 1, Name: "ada"}
			return nil
		}
	}

	var first cachedUser
	require.NoError(t, Aside(ctx, UserKey(1), &first, UserTTL, fetch(&first)))
	var second cachedUser
	require.NoError(t, Aside(ctx, UserKey(1), &second, UserTTL, fetch(&second)))

	assert.Equal(t, 1, calls)
	assert.Equal(t, "ada", second.Name)
	assert.True(t, mr.Exists("user:1"))

	InvalidateUser(ctx, 1)
	assert.False(t, mr.Exists("user:1"))
}

func TestAside_PropagatesFetchError(t *testing.T) {
	withMiniredis(t)
	var dest cachedUser
	err := Aside(context.Background(), UserKey(2), &dest, time.Minute, func() error {
		return errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
}

func TestAside_WithoutRedisCallsFetch(t *testing.T) {
	SetClient(nil)
	var dest cachedUser
	calls := 0
	for i := 0; i < 2; i++ {
		require.NoError(t, Aside(context.Background(), UserKey(3), &dest, time.Minute, func() error {
			calls++
			return nil
		}))
	}
	assert.Equal(t, 2, calls)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "user:5", UserKey(5))
	assert.Equal(t, "jwt:blacklist:abc", BlacklistKey("abc"))
	assert.Equal(t, "ws:ticket:t1", TicketKey("t1"))
}

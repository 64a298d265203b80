package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/bearkuang/oristagram/internal/featureflags"
	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/service"
	"github.com/bearkuang/oristagram/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFollowUnfollow(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.register("alice")
	bob, _ := env.register("bob")

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"follow", fmt.Sprintf("/api/follows/%d/follow", bob.ID), http.StatusCreated},
		{"follow twice", fmt.Sprintf("/api/follows/%d/follow", bob.ID), http.StatusBadRequest},
		{"follow self", fmt.Sprintf("/api/follows/%d/follow", alice.ID), http.StatusBadRequest},
		{"follow unknown", "/api/follows/9999/follow", http.StatusNotFound},
		{"unfollow", fmt.Sprintf("/api/follows/%d/unfollow", bob.ID), http.StatusOK},
		{"unfollow twice", fmt.Sprintf("/api/follows/%d/unfollows", bob.ID), http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp := env.do(http.MethodPost, tt.path, aliceToken, nil)
		assert.Equal(t, tt.wantStatus, resp.StatusCode, tt.name)
	}

	var count int64
	require.NoError(t, env.db.Model(&models.Follow{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGetFeed(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.register("alice")
	bob, bobToken := env.register("bob")
	_, carolToken := env.register("carol")
	testutil.Follow(t, env.db, alice.ID, bob.ID)

	quiet := createPost(t, env, bobToken, map[string]string{"content": "from bob"})
	loud := createPost(t, env, carolToken, map[string]string{"content": "popular"})
	resp := env.do(http.MethodPost, fmt.Sprintf("/api/posts/%d/like", loud.ID), bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(http.MethodGet, "/api/feed", aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var feed []models.Post
	decode(t, resp, &feed)
	require.Len(t, feed, 2)
	assert.Equal(t, loud.ID, feed[0].ID)
	assert.Equal(t, quiet.ID, feed[1].ID)
}

func TestGetExplore(t *testing.T) {
	env := newTestEnv(t)
	_, access := env.register("alice")
	createPost(t, env, access, map[string]string{"content": "one"})

	resp := env.do(http.MethodGet, "/api/explore", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out service.Explore
	decode(t, resp, &out)
	assert.Len(t, out.Feeds, 1)
	assert.Empty(t, out.Reels)
}

func TestTagSearchAndTagged(t *testing.T) {
	env := newTestEnv(t)
	_, access := env.register("alice")
	createPost(t, env, access, map[string]string{"content": "a", "tags": "sunset,sunrise"})
	createPost(t, env, access, map[string]string{"content": "b", "tags": "sunset"})

	resp := env.do(http.MethodGet, "/api/search/tags?q=%23sun", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tags []models.Tag
	decode(t, resp, &tags)
	require.Len(t, tags, 2)
	assert.Equal(t, "sunset", tags[0].Name)
	assert.Equal(t, int64(2), tags[0].PostCount)

	resp = env.do(http.MethodGet, "/api/search/tags?q=nomatch", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tags = nil
	decode(t, resp, &tags)
	assert.Empty(t, tags)

	resp = env.do(http.MethodGet, "/api/search/tags", access, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(http.MethodGet, "/api/search/tagged?tag=sunset", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tagged service.Tagged
	decode(t, resp, &tagged)
	require.NotNil(t, tagged.Tag)
	assert.Equal(t, "sunset", tagged.Tag.Name)
	assert.Len(t, tagged.Posts, 2)

	resp = env.do(http.MethodGet, "/api/search/tagged?tag=unknown", access, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFeatureFlags_PublicWithOptionalUser(t *testing.T) {
	env := newTestEnv(t)
	_, access := env.register("alice")

	for _, token := range []string{"", access} {
		resp := env.do(http.MethodGet, "/api/feature-flags", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body struct {
			Raw       map[string]string    `json:"raw"`
			Evaluated map[string]bool      `json:"evaluated"`
			Flags     []featureflags.State `json:"flags"`
		}
		decode(t, resp, &body)
		assert.Equal(t, "on", body.Raw["explore_reels"])
		assert.True(t, body.Evaluated["chat_pubsub"])
		require.Len(t, body.Flags, 2)
		assert.Equal(t, "chat_pubsub", body.Flags[0].Name)
		assert.NotEmpty(t, body.Flags[0].Description)
	}
}

package server

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUser(t *testing.T) {
	env := newTestEnv(t)
	alice, access := env.register("alice")

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"found", fmt.Sprintf("/api/users/%d", alice.ID), http.StatusOK},
		{"invalid id", "/api/users/abc", http.StatusBadRequest},
		{"missing", "/api/users/9999", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(http.MethodGet, tt.path, access, nil)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestUpdateUser(t *testing.T) {
	env := newTestEnv(t)
	alice, access := env.register("alice")
	bob, _ := env.register("bob")

	resp := env.do(http.MethodPatch, fmt.Sprintf("/api/users/%d", alice.ID), access, fiber.Map{
		"bio":        "hello",
		"birth_date": "1990-05-01",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated models.User
	decode(t, resp, &updated)
	assert.Equal(t, "hello", updated.Bio)
	assert.Equal(t, "alice", updated.Username)
	require.NotNil(t, updated.BirthDate)
	assert.Equal(t, 1990, updated.BirthDate.Year())

	resp = env.do(http.MethodPut, fmt.Sprintf("/api/users/%d", bob.ID), access, fiber.Map{"bio": "hijack"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(http.MethodPut, fmt.Sprintf("/api/users/%d", alice.ID), access, fiber.Map{"username": "bob"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(http.MethodPut, fmt.Sprintf("/api/users/%d", alice.ID), access, fiber.Map{"bio": strings.Repeat("x", 501)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadAvatar(t *testing.T) {
	env := newTestEnv(t)
	_, access := env.register("alice")

	resp := env.upload(http.MethodPost, "/api/users/me/avatar", access, nil,
		formFile{field: "file", name: "me.png", content: testutil.TinyPNG(t, 8, 8)})
	require.Equal(t, http.StatusOK, resp.StatusCode, readBody(t, resp))
	var user models.User
	decode(t, resp, &user)
	assert.True(t, strings.HasPrefix(user.ProfilePicture, "/media/"), user.ProfilePicture)

	resp = env.upload(http.MethodPost, "/api/users/me/avatar", access, nil,
		formFile{field: "file", name: "clip.mp4", content: testutil.MP4Header()})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.upload(http.MethodPost, "/api/users/me/avatar", access, map[string]string{"note": "no file"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Exactly one file is required", errorOf(t, resp))
}

func TestProfiles(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.register("alice")
	bob, bobToken := env.register("bob")
	testutil.Follow(t, env.db, bob.ID, alice.ID)

	resp := env.do(http.MethodGet, "/api/users/profile", aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var mine struct {
		ID             uint  `json:"id"`
		FollowersCount int64 `json:"followers_count"`
		FollowingCount int64 `json:"following_count"`
	}
	decode(t, resp, &mine)
	assert.Equal(t, alice.ID, mine.ID)
	assert.Equal(t, int64(1), mine.FollowersCount)
	assert.Zero(t, mine.FollowingCount)

	resp = env.do(http.MethodGet, fmt.Sprintf("/api/users/profile/%d", bob.ID), aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(http.MethodGet, "/api/users/following", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var following []models.User
	decode(t, resp, &following)
	require.Len(t, following, 1)
	assert.Equal(t, "alice", following[0].Username)

	resp = env.do(http.MethodGet, fmt.Sprintf("/api/users/%d/followers", alice.ID), bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var followers []models.User
	decode(t, resp, &followers)
	require.Len(t, followers, 1)
	assert.Equal(t, "bob", followers[0].Username)

	resp = env.do(http.MethodGet, "/api/users/9999/following", bobToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSearchUsernames(t *testing.T) {
	env := newTestEnv(t)
	_, access := env.register("alice")
	env.register("alicia")
	env.register("bob")

	resp := env.do(http.MethodGet, "/api/search/usernames?q=ali", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var users []models.User
	decode(t, resp, &users)
	assert.Len(t, users, 2)

	resp = env.do(http.MethodGet, "/api/search/usernames?q=zzz", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	users = nil
	decode(t, resp, &users)
	assert.Empty(t, users)

	resp = env.do(http.MethodGet, "/api/search/usernames", access, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

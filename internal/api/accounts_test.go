// ABOUTME: Tests for registration, login, profile, token expiry, and notification preferences
// ABOUTME: Exercises the bearer middleware through real routes

package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/roster/internal/store"
)

func TestRegisterLoginMe(t *testing.T) {
	env := newTestEnv(t)

	u := env.register("alice", "secret")
	assert.Equal(t, UserResponse{ID: 1, Username: "alice", Role: store.RoleIntermittent}, u)

	token := env.login("alice", "secret")
	assert.Regexp(t, `^tok_1_[0-9a-f]{16}$`, token)

	rec := env.do(http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me UserResponse
	decodeBody(t, rec, &me)
	assert.Equal(t, u, me)
}

func TestRegister_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.register("alice", "secret")

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantError  string
	}{
		{"duplicate username", map[string]string{"username": "alice", "password": "x"}, http.StatusConflict, "username already taken"},
		{"empty password", map[string]string{"username": "bob", "password": ""}, http.StatusUnprocessableEntity, "username and password are required"},
		{"blank username", map[string]string{"username": "   ", "password": "x"}, http.StatusUnprocessableEntity, "username and password are required"},
		{"malformed json", "{not json", http.StatusBadRequest, "invalid request body"},
		{"wrong field type", `{"username": 5, "password": "x"}`, http.StatusUnprocessableEntity, "invalid value for username"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/auth/register", "", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, errorMessage(t, rec))
		})
	}

	assert.Len(t, env.doc().Users, 1)
}

func TestLogin_Rejections(t *testing.T) {
	env := newTestEnv(t)
	env.register("alice", "secret")

	rec := env.do(http.MethodPost, "/auth/token-json", "", map[string]string{"username": "alice", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", errorMessage(t, rec))

	rec = env.do(http.MethodPost, "/auth/token-json", "", map[string]string{"username": "ghost", "password": "secret"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Empty(t, env.doc().Tokens)
}

func TestMe_TokenFailures(t *testing.T) {
	env := newTestEnv(t)
	token := env.userToken("alice")

	rec := env.do(http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/auth/me", "tok_1_ffffffffffffffff", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid token", errorMessage(t, rec))

	env.clock.Advance(25 * time.Hour)
	rec = env.do(http.MethodGet, "/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token expired", errorMessage(t, rec))
	assert.Len(t, env.doc().Tokens, 1, "expired tokens stay in storage")
}

func TestMe_InactiveUser(t *testing.T) {
	env := newTestEnv(t)
	token := env.userToken("alice")

	require.NoError(t, env.store.Update(context.Background(), func(doc *store.Document) error {
		u, _ := doc.User(1)
		u.IsActive = false
		return nil
	}))

	rec := env.do(http.MethodGet, "/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "inactive user", errorMessage(t, rec))
}

func TestPrefsAndNotifyTest(t *testing.T) {
	env := newTestEnv(t)
	token := env.userToken("u")

	rec := env.do(http.MethodPut, "/auth/me/prefs", token, map[string]any{
		"email":            "u@example.com",
		"telegram":         true,
		"telegram_chat_id": "123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var prefs store.Prefs
	decodeBody(t, rec, &prefs)
	assert.Equal(t, "u@example.com", prefs.Email)

	stored := env.doc().Users[0].Prefs
	require.NotNil(t, stored)
	assert.True(t, stored.Telegram)

	// Partial update keeps the other fields.
	rec = env.do(http.MethodPut, "/auth/me/prefs", token, map[string]any{"telegram": false})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &prefs)
	assert.Equal(t, store.Prefs{Email: "u@example.com", Telegram: false, TelegramChatID: "123"}, prefs)

	rec = env.do(http.MethodPut, "/auth/me/prefs", token, map[string]any{"telegram": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, "/auth/me/notify-test", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp NotifyTestResponse
	decodeBody(t, rec, &resp)
	assert.True(t, resp.DryRun)
	assert.ElementsMatch(t, []string{"email", "telegram"}, channelNames(resp))
	assert.Zero(t, env.notified.Len(), "dry run writes nothing")

	rec = env.do(http.MethodPost, "/auth/me/notify-test", token, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	env.clock.Advance(11 * time.Second)
	rec = env.do(http.MethodPost, "/auth/me/notify-test", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotifyTest_NoPrefs(t *testing.T) {
	env := newTestEnv(t)
	token := env.userToken("quiet")

	rec := env.do(http.MethodPost, "/auth/me/notify-test", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"dry_run": true, "channels": []}`, rec.Body.String())
}

func channelNames(resp NotifyTestResponse) []string {
	out := make([]string, len(resp.Channels))
	for i, ch := range resp.Channels {
		out[i] = string(ch)
	}
	return out
}

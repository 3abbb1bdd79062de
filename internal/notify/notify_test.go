// ABOUTME: Tests for channel selection, rendering, dry-run behavior, and test throttling
// ABOUTME: Uses a manual clock so cooldown windows are deterministic

package notify

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/roster/internal/store"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func fullPrefsUser() store.User {
	return store.User{
		ID:       3,
		Username: "gina",
		Prefs:    &store.Prefs{Email: "gina@example.com", Telegram: true, TelegramChatID: "123"},
	}
}

func TestChannels(t *testing.T) {
	assert.Empty(t, Channels(nil))
	assert.Equal(t, []Channel{ChannelEmail}, Channels(&store.Prefs{Email: "a@b.c"}))
	assert.Empty(t, Channels(&store.Prefs{Telegram: true}), "telegram needs a chat id")
	assert.Equal(t, []Channel{ChannelEmail, ChannelTelegram}, Channels(fullPrefsUser().Prefs))
}

func TestNew_SweeperOnlyWithCooldown(t *testing.T) {
	plain := New(Config{DryRun: true}, nil)
	assert.False(t, plain.cooldown.sweeps, "no cooldown means nothing to sweep")

	limited := New(Config{DryRun: true, TestCooldown: time.Minute}, nil)
	defer limited.Close()
	assert.True(t, limited.cooldown.sweeps)
}

func TestSend_DryRunWritesNothing(t *testing.T) {
	var out bytes.Buffer
	n := New(Config{DryRun: true, Output: &out}, nil)
	defer n.Close()

	deliveries, err := n.Send(context.Background(), fullPrefsUser(), TestMessage("gina"))
	require.NoError(t, err)
	require.Len(t, deliveries, 2)
	assert.Equal(t, 0, out.Len())
	assert.True(t, n.DryRun())
}

func TestSend_RendersEmailAsHTML(t *testing.T) {
	var out bytes.Buffer
	n := New(Config{Output: &out}, nil)
	defer n.Close()

	deliveries, err := n.Send(context.Background(), fullPrefsUser(), Message{Subject: "Hi", Markdown: "**bold**"})
	require.NoError(t, err)
	require.Len(t, deliveries, 2)

	assert.Equal(t, ChannelEmail, deliveries[0].Channel)
	assert.Equal(t, "gina@example.com", deliveries[0].Target)
	assert.Contains(t, deliveries[0].Body, "<strong>bold</strong>")

	assert.Equal(t, ChannelTelegram, deliveries[1].Channel)
	assert.Equal(t, "**bold**", deliveries[1].Body)

	assert.Contains(t, out.String(), "[email] to=gina@example.com")
	assert.Contains(t, out.String(), "[telegram] to=123")
}

func TestSendTest_Cooldown(t *testing.T) {
	clock := &manualClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	n := New(Config{DryRun: true, TestCooldown: 10 * time.Second, Now: clock.Now}, nil)
	defer n.Close()
	ctx := context.Background()

	_, err := n.SendTest(ctx, fullPrefsUser())
	require.NoError(t, err)

	_, err = n.SendTest(ctx, fullPrefsUser())
	assert.ErrorIs(t, err, ErrThrottled)

	other := fullPrefsUser()
	other.ID = 4
	_, err = n.SendTest(ctx, other)
	assert.NoError(t, err, "cooldown is per user")

	clock.Advance(11 * time.Second)
	_, err = n.SendTest(ctx, fullPrefsUser())
	assert.NoError(t, err)
}

func TestUsersWithPrefsAndTestAll(t *testing.T) {
	doc := store.NewDocument()
	doc.Users = []store.User{
		{ID: 1, Username: "admin"},
		fullPrefsUser(),
		{ID: 5, Username: "del", Prefs: &store.Prefs{Email: "x@y.z"}, Lifecycle: store.Deleted(time.Now())},
		{ID: 6, Username: "empty", Prefs: &store.Prefs{}},
	}

	users := UsersWithPrefs(doc)
	require.Len(t, users, 2)

	n := New(Config{DryRun: true}, nil)
	defer n.Close()
	tested, err := n.TestAll(context.Background(), users)
	require.NoError(t, err)
	assert.Equal(t, 2, tested)
}

func TestSend_CanceledContext(t *testing.T) {
	n := New(Config{}, nil)
	defer n.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := n.Send(ctx, fullPrefsUser(), TestMessage("gina"))
	assert.ErrorIs(t, err, context.Canceled)
}

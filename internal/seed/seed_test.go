// ABOUTME: Tests for fixture parsing and seeding runs against a real API server
// ABOUTME: Checks reset, force-insert, day spreading, and the two-assignee rule

package seed

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/roster/internal/api"
	"github.com/2389/roster/internal/auth"
	"github.com/2389/roster/internal/client"
	"github.com/2389/roster/internal/store"
)

var seedNow = time.Date(2025, 3, 1, 8, 30, 15, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServer(t *testing.T) (*store.DocumentStore, *auth.Service, string) {
	t.Helper()
	logger := discardLogger()
	s := store.NewMemoryStore(store.WithLogger(logger))
	svc := auth.NewService(s, 24*time.Hour, auth.WithBcryptCost(bcrypt.MinCost), auth.WithLogger(logger))
	srv := httptest.NewServer(api.New(api.Config{Store: s, Auth: svc, Logger: logger}).Handler())
	t.Cleanup(srv.Close)
	return s, svc, srv.URL
}

func adminClient(t *testing.T, svc *auth.Service, url string) *client.Client {
	t.Helper()
	_, _, err := svc.EnsureAdmin(context.Background(), "admin", "admin")
	require.NoError(t, err)
	c := client.New(url)
	_, err = c.Login(context.Background(), "admin", "admin")
	require.NoError(t, err)
	return c
}

func TestParseFixture(t *testing.T) {
	f, err := ParseFixture([]byte(`{
		// crew for the summer season
		"user_prefix": "crew",
		"titles": ["Festival", "Gala",],
		"positions": [
			{"label": "Son", "count": 2},
			{"label": "Lumière", "count": 1}, /* trailing comma */
		],
	}`))
	require.NoError(t, err)
	assert.Equal(t, "crew", f.UserPrefix)
	assert.Equal(t, "pw", f.Password, "defaults fill absent fields")
	assert.Equal(t, 2, f.Hours)
	assert.Equal(t, "Gala", f.title(3))
	assert.Equal(t, "", f.location(0))
	assert.Len(t, f.positions(10), 2)
}

func TestParseFixture_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"user_prefix": `},
		{"empty prefix", `{"user_prefix": ""}`},
		{"zero hours", `{"hours": 0}`},
		{"bad position", `{"positions": [{"label": "Son", "count": 0}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFixture([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestReadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{"locations": ["Cave"]} // one venue`), 0o600))

	f, err := ReadFixture(path)
	require.NoError(t, err)
	assert.Equal(t, "Cave", f.location(5))

	_, err = ReadFixture(filepath.Join(t.TempDir(), "missing.jsonc"))
	assert.Error(t, err)
}

func TestDefaultPositions(t *testing.T) {
	f := DefaultFixture()
	assert.Equal(t, []store.Position{{Label: "general", Count: 2, Skills: map[string]string{}}}, f.positions(1))
	assert.Equal(t, 5, f.positions(5)[0].Count)
}

func TestRun(t *testing.T) {
	s, svc, url := newServer(t)
	ctx := context.Background()
	c := adminClient(t, svc, url)

	res, err := Run(ctx, c, Options{
		Users:    3,
		Missions: 4,
		Days:     2,
		Now:      func() time.Time { return seedNow },
		Logger:   discardLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 4}, res.Users)
	assert.Equal(t, []int64{1, 2, 3, 4}, res.Missions)
	assert.Equal(t, 8, res.Assignments)
	assert.Zero(t, res.Skipped)

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, doc.Missions, 4)
	day0 := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	assert.Equal(t, day0, doc.Missions[0].Start)
	assert.Equal(t, day0.AddDate(0, 0, 1), doc.Missions[1].Start)
	assert.Equal(t, day0, doc.Missions[2].Start)
	assert.Equal(t, day0.Add(2*time.Hour), doc.Missions[0].End)
	assert.Equal(t, store.MissionPublished, doc.Missions[0].Status)
	assert.Equal(t, 3, doc.Missions[0].Positions[0].Count)

	for _, a := range doc.Assignments {
		assert.Contains(t, []int64{2, 3}, a.UserID, "only the first two users are assigned")
		assert.Equal(t, "general", a.RoleLabel)
	}

	// A second run without force reuses the existing accounts.
	res, err = Run(ctx, c, Options{Users: 3, Now: func() time.Time { return seedNow }, Logger: discardLogger()})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 4}, res.Users)
}

func TestRun_ForceInsert(t *testing.T) {
	s, svc, url := newServer(t)
	ctx := context.Background()
	c := adminClient(t, svc, url)
	for _, name := range []string{"user1", "user10"} {
		_, err := c.Register(ctx, name, "pw")
		require.NoError(t, err)
	}

	res, err := Run(ctx, c, Options{Users: 1, ForceInsert: true, Logger: discardLogger()})
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, res.Users)

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	old, _ := doc.User(2)
	assert.True(t, old.Lifecycle.IsDeleted(), "the previous user1 is soft-deleted")
	other, _ := doc.User(3)
	assert.False(t, other.Lifecycle.IsDeleted(), "user10 is left alone")
}

func TestRun_ResetKeepsAdminSession(t *testing.T) {
	s, svc, url := newServer(t)
	ctx := context.Background()
	c := adminClient(t, svc, url)

	_, err := Run(ctx, c, Options{Users: 2, Missions: 2, Days: 1, Logger: discardLogger()})
	require.NoError(t, err)

	res, err := Run(ctx, c, Options{Reset: true, Users: 1, Missions: 1, Days: 1, Logger: discardLogger()})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, res.Users, "ids restart above the kept admin")
	assert.Equal(t, []int64{1}, res.Missions)

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Users, 2)
	assert.Len(t, doc.Missions, 1)
	assert.Len(t, doc.Assignments, 1)
	for _, tok := range doc.Tokens {
		assert.Equal(t, int64(1), tok.UserID)
	}
}

func TestRun_RequiresAdmin(t *testing.T) {
	_, _, url := newServer(t)
	ctx := context.Background()
	c := client.New(url)
	_, err := c.Register(ctx, "plain", "pw")
	require.NoError(t, err)
	_, err = c.Login(ctx, "plain", "pw")
	require.NoError(t, err)

	_, err = Run(ctx, c, Options{Users: 1, Logger: discardLogger()})
	assert.ErrorIs(t, err, ErrNotAdmin)
}

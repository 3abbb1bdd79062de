// ABOUTME: Tests for DocumentStore locking, lazy initialization, and error reporting
// ABOUTME: Runs the shared behavior against memory, file, and sqlite media

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]*DocumentStore {
	t.Helper()
	dir := t.TempDir()

	fileStore, err := NewFileStore(filepath.Join(dir, "file"))
	require.NoError(t, err)
	sqliteStore, err := NewSQLiteStore(filepath.Join(dir, "sqlite", "roster.db"))
	require.NoError(t, err)

	stores := map[string]*DocumentStore{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"sqlite": sqliteStore,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestLoad_InitializesEmptyDocument(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			doc, err := s.Load(context.Background())
			require.NoError(t, err)
			assert.Empty(t, doc.Users)
			assert.Empty(t, doc.Tokens)
			assert.Empty(t, doc.Missions)
			assert.Empty(t, doc.Assignments)
			assert.NotNil(t, doc.Users, "collections must be empty, not absent")

			raw, err := s.medium.Read(context.Background())
			require.NoError(t, err)
			assert.NotNil(t, raw, "first Load should persist the empty document")
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	ctx := context.Background()
	deletedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			doc := NewDocument()
			doc.Users = append(doc.Users,
				User{ID: 1, Username: "alice", PasswordHash: "h", Role: RoleAdmin, IsActive: true},
				User{ID: 2, Username: "bob", PasswordHash: "h", Role: RoleIntermittent, Lifecycle: Deleted(deletedAt)},
			)
			doc.Missions = append(doc.Missions, Mission{
				ID:        1,
				Title:     "Festival",
				Start:     time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
				End:       time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC),
				Status:    MissionDraft,
				Positions: []Position{{Label: "Regisseur", Count: 1, Skills: map[string]string{}}},
			})

			require.NoError(t, s.Save(ctx, doc))

			got, err := s.Load(ctx)
			require.NoError(t, err)
			require.Len(t, got.Users, 2)
			assert.Equal(t, "alice", got.Users[0].Username)
			assert.False(t, got.Users[0].Lifecycle.IsDeleted())

			at, ok := got.Users[1].Lifecycle.DeletedAt()
			assert.True(t, ok)
			assert.True(t, at.Equal(deletedAt))

			require.Len(t, got.Missions, 1)
			assert.Equal(t, "Regisseur", got.Missions[0].Positions[0].Label)
		})
	}
}

func TestLoad_ReturnsPrivateCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	doc.Users = append(doc.Users, User{ID: 1, Username: "ghost"})

	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Users, "mutating a loaded document must not leak into the store")
}

func TestLoad_CorruptDocument(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"garbage", "{not json"},
		{"empty", ""},
		{"array", "[]"},
		{"null", "null"},
		{"wrong record shape", `{"users": [{"id": "one"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMemoryMedium()
			m.SetRaw([]byte(tt.raw))
			s := New(m)

			_, err := s.Load(context.Background())
			assert.ErrorIs(t, err, ErrStorageCorrupt)

			err = s.Update(context.Background(), func(*Document) error { return nil })
			assert.ErrorIs(t, err, ErrStorageCorrupt, "Update must not overwrite a corrupt document")
		})
	}
}

func TestLoad_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DocumentFileName), []byte("{{{{"), 0644))

	s, err := NewFileStore(dir)
	require.NoError(t, err)

	_, err = s.Load(context.Background())
	assert.ErrorIs(t, err, ErrStorageCorrupt)
}

func TestLoad_MissingCollectionsAreEmpty(t *testing.T) {
	m := NewMemoryMedium()
	m.SetRaw([]byte(`{"users": [{"id": 1, "username": "a", "role": "admin", "is_active": true}]}`))
	s := New(m)

	doc, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, doc.Users, 1)
	assert.NotNil(t, doc.Tokens)
	assert.NotNil(t, doc.Missions)
	assert.NotNil(t, doc.Assignments)
}

func TestSave_Unavailable(t *testing.T) {
	m := NewMemoryMedium()
	s := New(m)
	m.FailWrites(true)

	err := s.Save(context.Background(), NewDocument())
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, ErrInjected)
}

func TestSave_UnwritableDirectory(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.Chmod(dir, 0500))
	t.Cleanup(func() { os.Chmod(dir, 0755) })

	err = s.Save(context.Background(), NewDocument())
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestUpdate_ErrorAbortsWithoutWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Save(ctx, NewDocument()))

	errRejected := errors.New("rejected")
	err := s.Update(ctx, func(doc *Document) error {
		doc.Users = append(doc.Users, User{ID: 1, Username: "partial"})
		return errRejected
	})
	assert.Same(t, errRejected, err, "fn errors are returned unchanged")

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, doc.Users)
}

func TestUpdate_ConcurrentCreatesProduceDenseIDs(t *testing.T) {
	ctx := context.Background()
	const n = 50

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := s.Update(ctx, func(doc *Document) error {
						var next int64 = 1
						for _, m := range doc.Missions {
							if m.ID >= next {
								next = m.ID + 1
							}
						}
						doc.Missions = append(doc.Missions, Mission{ID: next, Title: "m"})
						return nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			doc, err := s.Load(ctx)
			require.NoError(t, err)
			require.Len(t, doc.Missions, n)

			ids := make([]int, 0, n)
			for _, m := range doc.Missions {
				ids = append(ids, int(m.ID))
			}
			sort.Ints(ids)
			for i, id := range ids {
				assert.Equal(t, i+1, id)
			}
		})
	}
}

func TestLoad_ConcurrentWithUpdates(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Update(ctx, func(doc *Document) error {
				doc.Users = append(doc.Users, User{ID: int64(len(doc.Users) + 1), Username: "u"})
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			_, err := s.Load(ctx)
			assert.NoError(t, err, "readers must never observe a partial write")
		}()
	}
	wg.Wait()
}

func TestMetrics_RecordOperations(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	s := NewMemoryStore(WithMetrics(metrics))

	_, err := s.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, func(*Document) error { return nil }))
	_ = s.Update(ctx, func(*Document) error { return errors.New("no") })

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.operations.WithLabelValues("load", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.operations.WithLabelValues("update", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.operations.WithLabelValues("update", "rejected")))
}

func TestOpen_Drivers(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(DriverFile, dir, "")
	require.NoError(t, err)
	assert.Equal(t, "file:"+filepath.Join(dir, DocumentFileName), s.medium.String())

	s, err = Open(DriverSQLite, dir, "")
	require.NoError(t, err)
	assert.Equal(t, "sqlite:"+filepath.Join(dir, "roster.db"), s.medium.String())
	s.Close()

	s, err = Open(DriverMemory, "", "")
	require.NoError(t, err)
	assert.Equal(t, "memory", s.medium.String())

	_, err = Open("postgres", dir, "")
	assert.Error(t, err)
}

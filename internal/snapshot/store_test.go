package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/talkwire/internal/config"
	"github.com/weiawesome/talkwire/internal/domain"
	"github.com/weiawesome/talkwire/internal/registry"
)

func testExport() registry.Export {
	return registry.Export{
		SavedAt: time.Now().UTC(),
		Rooms: []registry.ExportedRoom{
			{
				ID:         "123456",
				Name:       "persisted",
				Type:       domain.RoomTypeSemiPrivate,
				Layout:     domain.LayoutHorizontal,
				AccessCode: "654321",
				Banned:     []string{"troll"},
				Grants:     []string{"alice"},
				LastActive: time.Now().UTC(),
			},
		},
	}
}

func newTestStore(t *testing.T, interval time.Duration) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rooms.json")
	cfg := config.SnapshotConfig{Enabled: true, Path: path, Interval: interval}
	return New(cfg, zerolog.Nop(), func() registry.Export { return testExport() }), path
}

func TestFlushAndLoadRoundtrip(t *testing.T) {
	store, path := newTestStore(t, time.Minute)

	require.NoError(t, store.Flush())

	_, err := os.Stat(path)
	require.NoError(t, err)

	got, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Rooms, 1)
	assert.Equal(t, "123456", got.Rooms[0].ID)
	assert.Equal(t, "persisted", got.Rooms[0].Name)
	assert.Equal(t, "654321", got.Rooms[0].AccessCode)
	assert.Equal(t, []string{"troll"}, got.Rooms[0].Banned)
	assert.Equal(t, []string{"alice"}, got.Rooms[0].Grants)
}

func TestLoadMissingFile(t *testing.T) {
	store, _ := newTestStore(t, time.Minute)

	_, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadCorruptFile(t *testing.T) {
	store, path := newTestStore(t, time.Minute)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, ok, err := store.Load()
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	store, path := newTestStore(t, time.Minute)

	require.NoError(t, store.Flush())
	require.NoError(t, store.Flush())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(path), entries[0].Name())
}

func TestRunWritesDirtyState(t *testing.T) {
	store, path := newTestStore(t, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Run(ctx)
		close(done)
	}()

	store.MarkDirty()
	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestRunFlushesOnShutdown(t *testing.T) {
	store, path := newTestStore(t, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Run(ctx)
		close(done)
	}()

	// Dirty state never reaches a tick; shutdown writes it anyway.
	store.MarkDirty()
	cancel()
	<-done

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestDisabledStoreIsInert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.json")
	cfg := config.SnapshotConfig{Enabled: false, Path: path, Interval: time.Minute}
	store := New(cfg, zerolog.Nop(), func() registry.Export { return testExport() })

	require.NoError(t, store.Flush())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

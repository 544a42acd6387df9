package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"weallmesh/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSnapshotStore_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	store := NewSnapshotStore(path, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	snap := &domain.Snapshot{
		LastRefreshAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Purpose:       domain.PurposeUpload,
		Rules:         domain.DefaultRules(),
		Pool: []domain.PeerRecord{
			{Base: "https://a.example", Score: 12},
			{Base: "https://b.example", Score: -8, CooldownUntil: time.Date(2026, 8, 1, 12, 1, 0, 0, time.UTC)},
		},
	}
	require.NoError(t, store.Save(ctx, snap))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, snap.Purpose, loaded.Purpose)
	assert.Equal(t, snap.Rules, loaded.Rules)
	require.Len(t, loaded.Pool, 2)
	assert.True(t, snap.LastRefreshAt.Equal(loaded.LastRefreshAt))
	assert.True(t, snap.Pool[1].CooldownUntil.Equal(loaded.Pool[1].CooldownUntil))
}

func TestSnapshotStore_AbsentFileIsNoSnapshot(t *testing.T) {
	store := NewSnapshotStore(filepath.Join(t.TempDir(), "missing.json"), nil)

	snap, err := store.Load(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSnapshotStore_MalformedFileIsNoSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0o644))

	store := NewSnapshotStore(path, zaptest.NewLogger(t).Sugar())
	snap, err := store.Load(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSnapshotStore_SaveReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	store := NewSnapshotStore(path, nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &domain.Snapshot{Purpose: domain.PurposeFeed}))
	require.NoError(t, store.Save(ctx, &domain.Snapshot{Purpose: domain.PurposeWebRTC}))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PurposeWebRTC, loaded.Purpose)

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

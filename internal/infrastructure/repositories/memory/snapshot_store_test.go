package memory

import (
	"context"
	"testing"

	"weallmesh/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotStore_EmptyLoad(t *testing.T) {
	store := NewSnapshotStore()
	snap, err := store.Load(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSnapshotStore_Roundtrip(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()

	original := &domain.Snapshot{
		Purpose: domain.PurposeUpload,
		Rules:   domain.DefaultRules(),
		Pool:    []domain.PeerRecord{{Base: "https://a.example", Score: 7}},
	}
	require.NoError(t, store.Save(ctx, original))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, original.Purpose, loaded.Purpose)
	assert.Equal(t, original.Pool, loaded.Pool)

	// The store holds a copy; mutating what we saved or loaded must not
	// leak through.
	original.Pool[0].Score = -40
	loaded.Pool[0].Score = -40

	again, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7.0, again.Pool[0].Score)
}

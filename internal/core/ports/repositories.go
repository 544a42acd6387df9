package ports

import (
	"context"

	"weallmesh/internal/core/domain"
)

// SnapshotStore persists the pool snapshot. Load returns (nil, nil)
// when no usable snapshot exists; callers treat any error as soft and
// degrade to an in-memory pool.
type SnapshotStore interface {
	Load(ctx context.Context) (*domain.Snapshot, error)
	Save(ctx context.Context, snap *domain.Snapshot) error
}

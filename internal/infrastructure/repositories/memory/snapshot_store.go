package memory

import (
	"context"
	"sync"

	"weallmesh/internal/core/domain"
	"weallmesh/internal/core/ports"
)

// SnapshotStore keeps the snapshot in memory. Used by tests and as the
// degraded mode when no durable backend is configured.
type SnapshotStore struct {
	mu   sync.RWMutex
	snap *domain.Snapshot
}

func NewSnapshotStore() ports.SnapshotStore {
	return &SnapshotStore{}
}

func (s *SnapshotStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return nil, nil
	}
	cp := *s.snap
	cp.Pool = append([]domain.PeerRecord(nil), s.snap.Pool...)
	return &cp, nil
}

func (s *SnapshotStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	cp := *snap
	cp.Pool = append([]domain.PeerRecord(nil), snap.Pool...)

	s.mu.Lock()
	s.snap = &cp
	s.mu.Unlock()
	return nil
}

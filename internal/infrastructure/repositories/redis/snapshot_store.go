package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"weallmesh/internal/core/domain"
	"weallmesh/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const snapshotKey = "weallmesh:snapshot"

// SnapshotStore keeps the pool snapshot under a single Redis key.
type SnapshotStore struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

func NewSnapshotStore(client *redis.Client, logger *zap.SugaredLogger) ports.SnapshotStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SnapshotStore{client: client, logger: logger}
}

func (s *SnapshotStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	data, err := s.client.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warnw("discarding malformed snapshot", "key", snapshotKey, "error", err)
		return nil, nil
	}
	return &snap, nil
}

func (s *SnapshotStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

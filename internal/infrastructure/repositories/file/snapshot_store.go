package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"weallmesh/internal/core/domain"
	"weallmesh/internal/core/ports"

	"go.uber.org/zap"
)

// SnapshotStore persists the pool snapshot as a single JSON file.
// Absent or malformed files are treated as no snapshot, never as an
// error; writes go through a temp file and rename so a crash cannot
// leave a half-written snapshot behind.
type SnapshotStore struct {
	path   string
	logger *zap.SugaredLogger
}

func NewSnapshotStore(path string, logger *zap.SugaredLogger) ports.SnapshotStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SnapshotStore{path: path, logger: logger}
}

func (s *SnapshotStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot %s: %w", s.path, err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warnw("discarding malformed snapshot", "path", s.path, "error", err)
		return nil, nil
	}
	return &snap, nil
}

func (s *SnapshotStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rangePilot/internal/model"
)

// FileStore persists the position snapshot to a single JSON file. Writes go
// through a temp file and rename so a snapshot is either fully applied or
// not at all, even across a process restart.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type snapshot struct {
	Position model.LiquidityPosition `json:"position"`
	SavedAt  string                  `json:"saved_at"`
}

// SavePosition writes the position snapshot atomically.
func (s *FileStore) SavePosition(_ context.Context, pos model.LiquidityPosition) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	snap := snapshot{
		Position: pos,
		SavedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}

	return nil
}

// LoadPosition reads the snapshot back, reporting whether one exists for the
// given (owner, pool) pair.
func (s *FileStore) LoadPosition(_ context.Context, owner, pool string) (model.LiquidityPosition, bool, error) {
	stat, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.LiquidityPosition{}, false, nil
		}
		return model.LiquidityPosition{}, false, fmt.Errorf("stat snapshot: %w", err)
	}
	if stat.IsDir() {
		return model.LiquidityPosition{}, false, fmt.Errorf("snapshot path is a directory")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return model.LiquidityPosition{}, false, fmt.Errorf("read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.LiquidityPosition{}, false, fmt.Errorf("parse snapshot: %w", err)
	}

	if !strings.EqualFold(snap.Position.Owner, owner) || !strings.EqualFold(snap.Position.Pool, pool) {
		return model.LiquidityPosition{}, false, nil
	}

	return snap.Position, true, nil
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rangePilot/internal/model"
)

// WorkflowFile persists the latest workflow status to a single JSON file,
// using the same temp-write-and-rename scheme as FileStore.
type WorkflowFile struct {
	path string
}

func NewWorkflowFile(path string) *WorkflowFile {
	return &WorkflowFile{path: path}
}

// SaveWorkflowStatus writes the status atomically.
func (s *WorkflowFile) SaveWorkflowStatus(_ context.Context, status model.WorkflowStatus) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create workflow dir: %w", err)
		}
	}

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal workflow status: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write workflow tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename workflow file: %w", err)
	}

	return nil
}

// LoadWorkflowStatus reads the status back, reporting whether one exists for
// the given (owner, pool) pair.
func (s *WorkflowFile) LoadWorkflowStatus(_ context.Context, owner, pool string) (model.WorkflowStatus, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.WorkflowStatus{}, false, nil
		}
		return model.WorkflowStatus{}, false, fmt.Errorf("read workflow file: %w", err)
	}

	var status model.WorkflowStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return model.WorkflowStatus{}, false, fmt.Errorf("parse workflow file: %w", err)
	}

	if !strings.EqualFold(status.Owner, owner) || !strings.EqualFold(status.Pool, pool) {
		return model.WorkflowStatus{}, false, nil
	}

	return status, true, nil
}

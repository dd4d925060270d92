package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"rangePilot/internal/model"
)

// JsonlAuditSink appends audit records to a JSONL file.
type JsonlAuditSink struct {
	path string
	mu   sync.Mutex
}

func NewJsonlAuditSink(path string) *JsonlAuditSink {
	return &JsonlAuditSink{path: path}
}

// Append writes one audit record as a JSON line.
func (s *JsonlAuditSink) Append(record model.AuditRecord) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create audit dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush audit file: %w", err)
	}

	return nil
}

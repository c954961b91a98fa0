package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileSyncer persists rows as a single JSON array per identifier, one
// file per resource under Directory. Grounded on the mock/JSON-backed
// syncer variant of the original tooling: no database, no external
// service, just a directory of files an administrator can inspect.
type FileSyncer struct {
	Directory string
}

var _ Syncer = (*FileSyncer)(nil)

func NewFileSyncer(directory string) *FileSyncer {
	return &FileSyncer{Directory: directory}
}

func (s *FileSyncer) Name() string { return "file" }

func (s *FileSyncer) path(identifier string) string {
	return filepath.Join(s.Directory, identifier+".json")
}

func (s *FileSyncer) Load(ctx context.Context, identifier string) ([]Row, error) {
	data, err := os.ReadFile(s.path(identifier))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("syncer: file: read %s: %w", identifier, err)
	}

	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("syncer: file: parse %s: %w", identifier, err)
	}
	return rows, nil
}

func (s *FileSyncer) Dump(ctx context.Context, identifier string, data []Row) error {
	if err := os.MkdirAll(s.Directory, 0o755); err != nil {
		return fmt.Errorf("syncer: file: create directory: %w", err)
	}

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("syncer: file: marshal %s: %w", identifier, err)
	}

	if err := os.WriteFile(s.path(identifier), encoded, 0o644); err != nil {
		return fmt.Errorf("syncer: file: write %s: %w", identifier, err)
	}
	return nil
}

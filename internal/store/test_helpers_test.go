package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun writes a run with minimal required fields.
func createTestRun(t *testing.T, s *Store, id string, startedAt time.Time) Run {
	t.Helper()
	run := Run{
		ID:        id,
		StartedAt: startedAt,
		Source:    "commands.txt",
		Commands:  5,
		Skipped:   1,
	}
	if err := s.WriteRun(context.Background(), run); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	return run
}

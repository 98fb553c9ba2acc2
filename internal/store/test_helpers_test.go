package store

import (
	"context"
	"path/filepath"
	"testing"
)

// createTestStore creates a file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun registers a run named after the test.
func createTestRun(t *testing.T, s *Store, id string) *Run {
	t.Helper()
	r, err := s.BeginRun(context.Background(), id, t.Name(), "default")
	if err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
	return r
}

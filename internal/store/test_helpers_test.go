package store

import (
	"context"
	"path/filepath"
	"testing"
)

// createTestStore creates a new file-backed sqlite store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), Options{Driver: DriverSQLite, DSN: path})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createCounterTable creates a one-column table used by transaction tests.
func createCounterTable(t *testing.T, s *Store) {
	t.Helper()
	if _, err := s.DB().Exec("CREATE TABLE counters (n INTEGER NOT NULL)"); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
}

func countRows(t *testing.T, s *Store) int {
	t.Helper()
	var n int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM counters").Scan(&n); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return n
}

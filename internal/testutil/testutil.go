// Package testutil provides shared test helpers for setting up temporary
// card stores.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/knowcards/knowcards/internal/storage"
)

// TestStore creates a temporary SQLite-backed store that is automatically
// cleaned up with the test.
func TestStore(t *testing.T, opts ...storage.Option) *storage.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "knowcards-test.db")

	st, err := storage.Open(dbPath, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

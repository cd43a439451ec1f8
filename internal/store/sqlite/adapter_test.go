package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/openmem/openmem-server/internal/store"
	"github.com/openmem/openmem-server/internal/store/storetest"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "openmem_test.db")
	s, err := NewAtPath(context.Background(), path)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	return s
}

func TestSQLiteStoreCompliance(t *testing.T) {
	storetest.Run(t, newTestStore)
}

func TestDDLIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ddl.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	for i := 0; i < 2; i++ {
		if err := EnsureSchema(context.Background(), db); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
}

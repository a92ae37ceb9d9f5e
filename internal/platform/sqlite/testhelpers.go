package sqlite

import (
	"context"
	"database/sql"
	"io/fs"
	"testing"
)

// NewTestDB opens an in-memory database closed when the test ends.
func NewTestDB(t testing.TB) *sql.DB {
	t.Helper()
	db, err := OpenInMemory(context.Background())
	if err != nil {
		t.Fatalf("failed to create in-memory test DB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// NewMigratedTestDB opens an in-memory test database and migrates it.
func NewMigratedTestDB(t testing.TB, fsys fs.FS, dir string) *sql.DB {
	t.Helper()
	db := NewTestDB(t)
	if err := Migrate(db, fsys, dir); err != nil {
		t.Fatalf("failed to migrate test DB: %v", err)
	}
	return db
}

package scheduler

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"skysched/database/schemas"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "skysched.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	// the schema layer is dialect-portable; tests run the real queries
	if err := schemas.CreateSchema(context.Background(), db, schemas.CreateOccurrenceSchema()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func newTestManager(t *testing.T) (*Manager, *sql.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewManager(db, false), db
}

func countOwnerRows(t *testing.T, db *sql.DB, owner string) int {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM occurrences WHERE owner = $1`, owner).Scan(&n)
	if err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

func loadAll(t *testing.T, db *sql.DB, owner string) []schemas.Occurrence {
	t.Helper()
	occs, err := schemas.ListOccurrencesInRange(context.Background(), db, owner, "0000-01-01", "9999-12-31")
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	return occs
}

func mustSave(t *testing.T, m *Manager, owner string, editor Editor, p EventPayload) SaveResult {
	t.Helper()
	res, err := m.SaveEvent(context.Background(), owner, editor, p)
	if err != nil {
		t.Fatalf("save event: %v", err)
	}
	return res
}

package storage

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func TestMigrateRoundTripCompatibility(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migrate-roundtrip.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("first migrate up failed: %v", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Fatalf("repeated migrate up failed: %v", err)
	}
	if err := MigrateDown(db); err != nil {
		t.Fatalf("migrate down failed: %v", err)
	}

	var tables int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('templates', 'instances')`).Scan(&tables); err != nil {
		t.Fatalf("inspect schema: %v", err)
	}
	if tables != 0 {
		t.Fatalf("expected tables dropped, found %d", tables)
	}

	if err := MigrateUp(db); err != nil {
		t.Fatalf("second migrate up failed: %v", err)
	}

	repo, err := NewSQLiteRepository(db)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}

	tpl := newTemplate(t, "Roundtrip template")
	inst := newInstance(t, tpl, time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC))
	if err := repo.SaveBatch(t.Context(), tpl, nil); err != nil {
		t.Fatalf("insert after roundtrip failed: %v", err)
	}
	if err := repo.SaveInstance(t.Context(), inst); err != nil {
		t.Fatalf("insert instance after roundtrip failed: %v", err)
	}

	got, err := repo.GetInstance(t.Context(), inst.ID())
	if err != nil {
		t.Fatalf("get after roundtrip failed: %v", err)
	}
	if got.Title() != "Roundtrip template" {
		t.Fatalf("unexpected title after roundtrip: %q", got.Title())
	}
}

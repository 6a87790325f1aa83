package db

import (
	"path/filepath"
	"testing"
)

func TestRunMigrationsIsRepeatable(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "nested", "work_items.db")

	if err := RunMigrations(dbFile); err != nil {
		t.Fatalf("first RunMigrations: %v", err)
	}
	if err := RunMigrations(dbFile); err != nil {
		t.Fatalf("second RunMigrations: %v", err)
	}

	database, err := NewSQLiteDB(dbFile)
	if err != nil {
		t.Fatalf("NewSQLiteDB: %v", err)
	}
	defer database.Close()

	var count int
	if err := database.Get(&count, `SELECT COUNT(*) FROM work_items`); err != nil {
		t.Fatalf("work_items table not created: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

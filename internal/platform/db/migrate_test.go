package db

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMigrationFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("writing test file %s: %v", name, err)
		}
	}
}

func TestLoadMigrations(t *testing.T) {
	dir := t.TempDir()
	writeMigrationFiles(t, dir, map[string]string{
		"0001_init.sql":     "CREATE TABLE patients (id TEXT PRIMARY KEY);",
		"0002_counters.sql": "CREATE TABLE counters (name TEXT PRIMARY KEY);",
	})

	migrator := NewMigrator(nil, dir)
	migrations, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "0001_init.sql" {
		t.Errorf("first migration = %d %s, want 1 0001_init.sql", migrations[0].Version, migrations[0].Name)
	}
	if migrations[0].SQL != "CREATE TABLE patients (id TEXT PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
	if migrations[1].Version != 2 {
		t.Errorf("expected version 2, got %d", migrations[1].Version)
	}
}

func TestLoadMigrations_SortOrder(t *testing.T) {
	dir := t.TempDir()
	writeMigrationFiles(t, dir, map[string]string{
		"0010_tables.sql": "SELECT 10;",
		"0002_second.sql": "SELECT 2;",
		"0001_first.sql":  "SELECT 1;",
		"0005_middle.sql": "SELECT 5;",
	})

	migrator := NewMigrator(nil, dir)
	migrations, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	expectedVersions := []int{1, 2, 5, 10}
	if len(migrations) != len(expectedVersions) {
		t.Fatalf("expected %d migrations, got %d", len(expectedVersions), len(migrations))
	}
	for i, expected := range expectedVersions {
		if migrations[i].Version != expected {
			t.Errorf("migration[%d]: expected version %d, got %d", i, expected, migrations[i].Version)
		}
	}
}

func TestLoadMigrations_SkipsDownAndInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	writeMigrationFiles(t, dir, map[string]string{
		"0001_init.sql":      "SELECT 1;",
		"0001_init.down.sql": "DROP TABLE patients;",
		"readme.sql":         "-- no version prefix",
		"notes.txt":          "not a sql file",
		"abc_invalid.sql":    "-- non-numeric prefix",
		"0002_next.sql":      "SELECT 2;",
	})

	migrator := NewMigrator(nil, dir)
	migrations, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	if len(migrations) != 2 {
		t.Fatalf("expected 2 up migrations, got %d", len(migrations))
	}
	for _, mig := range migrations {
		if mig.Name == "0001_init.down.sql" {
			t.Error("down migration leaked into up list")
		}
	}
}

func TestLoadDownMigration(t *testing.T) {
	dir := t.TempDir()
	writeMigrationFiles(t, dir, map[string]string{
		"0001_init.sql":      "CREATE TABLE patients (id TEXT);",
		"0001_init.down.sql": "DROP TABLE patients;",
	})

	migrator := NewMigrator(nil, dir)
	down, err := migrator.loadDownMigration(1)
	if err != nil {
		t.Fatalf("loadDownMigration() error: %v", err)
	}
	if down.Version != 1 || down.SQL != "DROP TABLE patients;" {
		t.Errorf("down migration = %+v", down)
	}

	if _, err := migrator.loadDownMigration(2); err == nil {
		t.Error("expected error for missing down migration")
	}
}

func TestLoadMigrations_EmptyDir(t *testing.T) {
	migrator := NewMigrator(nil, t.TempDir())
	migrations, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected 0 migrations from empty dir, got %d", len(migrations))
	}
}

func TestLoadMigrations_NonExistentDir(t *testing.T) {
	migrator := NewMigrator(nil, "/nonexistent/path/that/does/not/exist")
	if _, err := migrator.LoadMigrations(); err == nil {
		t.Error("expected error for non-existent directory")
	}
}

func TestParseVersion(t *testing.T) {
	cases := []struct {
		name    string
		version int
		ok      bool
	}{
		{"0001_init.sql", 1, true},
		{"0420_big.sql", 420, true},
		{"readme.sql", 0, false},
		{"abc_x.sql", 0, false},
	}
	for _, tc := range cases {
		v, ok := parseVersion(tc.name)
		if v != tc.version || ok != tc.ok {
			t.Errorf("parseVersion(%q) = %d %v, want %d %v", tc.name, v, ok, tc.version, tc.ok)
		}
	}
}

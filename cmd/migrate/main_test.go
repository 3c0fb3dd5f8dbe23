package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestVersionFromFile(t *testing.T) {
	cases := map[string]int64{
		"001_init.up.sql":        1,
		"002_audit_log.down.sql": 2,
		"010_x.up.sql":           10,
	}
	for name, want := range cases {
		got, err := versionFromFile(name)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("%s: got %d, want %d", name, got, want)
		}
	}

	for _, bad := range []string{"init.sql", "abc_init.up.sql"} {
		if _, err := versionFromFile(bad); err == nil {
			t.Errorf("%s: expected error", bad)
		}
	}
}

func TestLoadMigrations_repo(t *testing.T) {
	migrations, err := loadMigrations(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(migrations) < 2 {
		t.Fatalf("expected at least 2 migrations, got %d", len(migrations))
	}
	for i, m := range migrations {
		if m.version != int64(i+1) {
			t.Errorf("migration %d: version %d, want %d", i, m.version, i+1)
		}
		if m.up == "" || m.down == "" {
			t.Errorf("version %d: missing up or down file (%q, %q)", m.version, m.up, m.down)
		}
	}
}

func TestLoadMigrations_rejectsUnknownSuffix(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_init.sql"), []byte("SELECT 1"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadMigrations(dir); err == nil {
		t.Error("expected error for file without up/down suffix")
	}
}

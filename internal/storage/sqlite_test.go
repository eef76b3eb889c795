package storage

import (
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSchemaAtLatestVersion(t *testing.T) {
	s := openTestStore(t)

	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(migrations) < 2 {
		t.Fatalf("expected at least two migrations, got %d", len(migrations))
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i].version <= migrations[i-1].version {
			t.Errorf("migrations out of order: %v", migrations)
		}
	}

	v, err := s.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if want := migrations[len(migrations)-1].version; v != want {
		t.Errorf("schema version = %d, want %d", v, want)
	}
}

// TestReopenKeepsData opens the same file twice; the second open must not
// re-run migrations over existing rows.
func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, err := s1.db.Exec(`INSERT INTO sessions (id, created_at, updated_at, request_json) VALUES ('a', '2026-01-01', '2026-01-01', '{}')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	v1, _ := s1.SchemaVersion()
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()

	v2, _ := s2.SchemaVersion()
	if v1 != v2 {
		t.Errorf("schema version changed on reopen: %d -> %d", v1, v2)
	}
	var n int
	if err := s2.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&n); err != nil || n != 1 {
		t.Errorf("sessions after reopen = %d, %v", n, err)
	}
}

func TestSchemaObjectsExist(t *testing.T) {
	s := openTestStore(t)

	objects := []struct{ kind, name string }{
		{"table", "sessions"},
		{"table", "jobs"},
		{"table", "component_events"},
		{"index", "idx_jobs_status_run_after"},
		{"index", "idx_sessions_created"},
		{"index", "idx_sessions_status"},
		{"index", "idx_component_events_session"},
		{"index", "idx_component_events_component"},
	}
	for _, o := range objects {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?", o.kind, o.name).Scan(&count)
		if err != nil {
			t.Fatalf("querying %s %s: %v", o.kind, o.name, err)
		}
		if count != 1 {
			t.Errorf("%s %q not found", o.kind, o.name)
		}
	}
}

func TestParseMigrationVersion(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{"001_init.sql", 1, false},
		{"012_add_index.sql", 12, false},
		{"init.sql", 0, true},
		{"000_zero.sql", 0, true},
	}
	for _, tt := range tests {
		v, err := parseMigrationVersion(tt.name)
		if (err != nil) != tt.wantErr || v != tt.want {
			t.Errorf("parseMigrationVersion(%q) = %d, %v", tt.name, v, err)
		}
	}
}

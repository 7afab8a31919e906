package store

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"messages", "dead_letters", "slots", "sequences"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_KeepsDataAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	if _, err := s1.Enqueue(ctx, "q", []byte("kept"), t0, 0); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	msg, ok, err := s2.Claim(ctx, "q", "c1", t0, 0)
	if err != nil || !ok {
		t.Fatalf("Claim() = %v, %v; want message", ok, err)
	}
	if string(msg.Body) != "kept" {
		t.Errorf("body = %q, want %q", msg.Body, "kept")
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name, want string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", strconv.Itoa(schemaVersion())},
	}
	for _, tt := range tests {
		got, err := s.pragma(tt.name)
		if err != nil {
			t.Error(err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestMigrate_SkipsApplied(t *testing.T) {
	s := createTestStore(t)

	if err := migrate(s.db); err != nil {
		t.Fatalf("second migrate() failed: %v", err)
	}
	var n int
	err := s.db.QueryRow(
		"SELECT count(*) FROM sqlite_master WHERE type='index' AND name='idx_dead_letters_queue'",
	).Scan(&n)
	if err != nil || n != 1 {
		t.Errorf("dead letter index count = %d, %v; want 1", n, err)
	}
}

func TestSchema_Columns(t *testing.T) {
	s := createTestStore(t)

	tests := map[string][]string{
		"messages":     {"id", "queue", "body", "enqueued_at", "expires_at", "deliveries", "lease_owner", "lease_until"},
		"dead_letters": {"id", "message_id", "queue", "body", "reason", "deliveries", "dead_at"},
		"slots":        {"name", "version", "payload", "published_at", "expires_at"},
		"sequences":    {"model_id", "next_seq"},
	}
	for table, expected := range tests {
		columns := getTableColumns(t, s, table)
		for _, col := range expected {
			if !slices.Contains(columns, col) {
				t.Errorf("%s table missing column %q", table, col)
			}
		}
	}
}

func TestDSN(t *testing.T) {
	const params = "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	if got := dsn("a.db"); got != "a.db?"+params {
		t.Errorf("dsn(a.db) = %q", got)
	}
	if got := dsn("file:a.db?mode=rwc"); got != "file:a.db?mode=rwc&"+params {
		t.Errorf("dsn(file:a.db?mode=rwc) = %q", got)
	}
}

package sqlitemigrate

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func count(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("%s: %v", query, err)
	}
	return n
}

func hasTable(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var got string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if err != nil {
		t.Fatalf("lookup table %s: %v", name, err)
	}
	return true
}

func file(sql string) *fstest.MapFile { return &fstest.MapFile{Data: []byte(sql)} }

func TestApplyMigrationsInOrderOnce(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	migrations := fstest.MapFS{
		"0002_pending.sql": file("-- +migrate Up\nALTER TABLE worlds ADD COLUMN turn_count INTEGER NOT NULL DEFAULT 0;\n-- +migrate Down\nSELECT 1;"),
		"0001_worlds.sql":  file("-- +migrate Up\nCREATE TABLE worlds (id TEXT PRIMARY KEY);"),
		"README.md":        file("not a migration"),
	}

	for i := 0; i < 2; i++ {
		if err := ApplyMigrations(ctx, db, migrations, ""); err != nil {
			t.Fatalf("apply pass %d: %v", i, err)
		}
	}
	if got := count(t, db, `SELECT COUNT(*) FROM schema_migrations`); got != 2 {
		t.Fatalf("recorded migrations = %d, want 2", got)
	}
	if got := count(t, db, `SELECT COUNT(*) FROM pragma_table_info('worlds') WHERE name = 'turn_count'`); got != 1 {
		t.Fatalf("turn_count column missing")
	}
}

func TestFailedMigrationIsNotRecorded(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	broken := fstest.MapFS{"0001_events.sql": file("-- +migrate Up\nCREAT TABLE events (id TEXT);")}
	if err := ApplyMigrations(ctx, db, broken, ""); err == nil {
		t.Fatal("expected broken migration to fail")
	}
	if got := count(t, db, `SELECT COUNT(*) FROM schema_migrations`); got != 0 {
		t.Fatalf("recorded migrations = %d, want 0", got)
	}

	fixed := fstest.MapFS{"0001_events.sql": file("-- +migrate Up\nCREATE TABLE events (id TEXT PRIMARY KEY);")}
	if err := ApplyMigrations(ctx, db, fixed, ""); err != nil {
		t.Fatalf("apply fixed migration: %v", err)
	}
	if !hasTable(t, db, "events") {
		t.Fatal("events table missing after fix")
	}
}

func TestApplyMigrationsUnderRoot(t *testing.T) {
	db := openDB(t)
	migrations := fstest.MapFS{
		"narrator/0001_lore.sql": file("-- +migrate Up\nCREATE TABLE lore (id INTEGER PRIMARY KEY);"),
	}
	if err := ApplyMigrations(context.Background(), db, migrations, "narrator"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := count(t, db, `SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, "narrator/0001_lore.sql"); got != 1 {
		t.Fatalf("root-qualified key not recorded")
	}
	if !hasTable(t, db, "lore") {
		t.Fatal("lore table missing")
	}
}

func TestApplyMigrationsRequiresInputs(t *testing.T) {
	if err := ApplyMigrations(context.Background(), nil, fstest.MapFS{}, ""); err == nil {
		t.Fatal("expected error for nil db")
	}
	if err := ApplyMigrations(context.Background(), openDB(t), nil, ""); err == nil {
		t.Fatal("expected error for nil fs")
	}
}

func TestExtractUpMigration(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "up and down", in: "-- +migrate Up\nCREATE TABLE a(id INT);\n-- +migrate Down\nDROP TABLE a;", want: "\nCREATE TABLE a(id INT);\n"},
		{name: "plain", in: "CREATE TABLE b(id INT);", want: "CREATE TABLE b(id INT);"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractUpMigration(tc.in); got != tc.want {
				t.Fatalf("up sql = %q, want %q", got, tc.want)
			}
		})
	}
}

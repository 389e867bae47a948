package migration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
)

func openTestDB(t *testing.T) *SQLiteExecutor {
	t.Helper()

	db, err := Open(context.Background(), DefaultSQLiteConfig(filepath.Join(t.TempDir(), "migrate.db")))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteExecutor(db)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestScanner_Scan(t *testing.T) {
	t.Parallel()

	t.Run("sorts by numeric version", func(t *testing.T) {
		t.Parallel()

		fsys := fstest.MapFS{
			"migrations/010_add_index.sql":    {Data: []byte("CREATE INDEX idx ON items(name);")},
			"migrations/002_create_items.sql": {Data: []byte("CREATE TABLE items (name TEXT);")},
			"migrations/README.md":            {Data: []byte("ignored")},
		}
		migrations, err := NewScanner(fsys, "migrations").Scan()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(migrations) != 2 || migrations[0].Version != 2 || migrations[1].Version != 10 {
			t.Fatalf("unexpected order %+v", migrations)
		}
		if migrations[0].Description != "create items" || migrations[0].Checksum == "" {
			t.Fatalf("unexpected metadata %+v", migrations[0])
		}
	})

	t.Run("rejects malformed names", func(t *testing.T) {
		t.Parallel()

		fsys := fstest.MapFS{"migrations/initial.sql": {Data: []byte("SELECT 1;")}}
		if _, err := NewScanner(fsys, "migrations").Scan(); !errors.Is(err, ErrInvalidMigrationFile) {
			t.Fatalf("expected ErrInvalidMigrationFile, got %v", err)
		}
	})

	t.Run("rejects duplicate versions", func(t *testing.T) {
		t.Parallel()

		fsys := fstest.MapFS{
			"migrations/001_a.sql":  {Data: []byte("SELECT 1;")},
			"migrations/0001_b.sql": {Data: []byte("SELECT 2;")},
		}
		if _, err := NewScanner(fsys, "migrations").Scan(); !errors.Is(err, ErrDuplicateVersion) {
			t.Fatalf("expected ErrDuplicateVersion, got %v", err)
		}
	})
}

func TestManager_Run(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("applies pending migrations once", func(t *testing.T) {
		t.Parallel()

		executor := openTestDB(t)
		fsys := fstest.MapFS{
			"migrations/001_create_items.sql": {Data: []byte("-- items\nCREATE TABLE items (id TEXT PRIMARY KEY, name TEXT NOT NULL);\nCREATE INDEX idx_items_name ON items(name);")},
			"migrations/002_seed.sql":         {Data: []byte("INSERT INTO items (id, name) VALUES ('a', 'first');")},
		}
		manager := NewManager(NewScanner(fsys, "migrations"), executor, discardLogger())

		if err := manager.Run(ctx); err != nil {
			t.Fatalf("first run: %v", err)
		}
		if err := manager.Run(ctx); err != nil {
			t.Fatalf("second run: %v", err)
		}

		status, err := manager.Status(ctx)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if status.CurrentVersion != 2 || len(status.Pending) != 0 || len(status.Applied) != 2 {
			t.Fatalf("unexpected status %+v", status)
		}

		var count int
		if err := executor.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&count); err != nil {
			t.Fatalf("count items: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected seed to run once, got %d rows", count)
		}
	})

	t.Run("detects edited migrations", func(t *testing.T) {
		t.Parallel()

		executor := openTestDB(t)
		original := fstest.MapFS{"migrations/001_create.sql": {Data: []byte("CREATE TABLE items (id TEXT);")}}
		if err := NewManager(NewScanner(original, "migrations"), executor, discardLogger()).Run(ctx); err != nil {
			t.Fatalf("run: %v", err)
		}

		edited := fstest.MapFS{"migrations/001_create.sql": {Data: []byte("CREATE TABLE items (id TEXT, name TEXT);")}}
		err := NewManager(NewScanner(edited, "migrations"), executor, discardLogger()).Run(ctx)
		if !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("expected ErrChecksumMismatch, got %v", err)
		}
	})

	t.Run("failed migration is rolled back", func(t *testing.T) {
		t.Parallel()

		executor := openTestDB(t)
		fsys := fstest.MapFS{"migrations/001_broken.sql": {Data: []byte("CREATE TABLE ok (id TEXT);\nCREATE TABLE broken (;")}}
		err := NewManager(NewScanner(fsys, "migrations"), executor, discardLogger()).Run(ctx)
		if !errors.Is(err, ErrMigrationFailed) {
			t.Fatalf("expected ErrMigrationFailed, got %v", err)
		}

		var name string
		err = executor.db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'ok'").Scan(&name)
		if err == nil {
			t.Fatal("expected table from failed migration to be rolled back")
		}
		applied, err := executor.Applied(ctx)
		if err != nil {
			t.Fatalf("applied: %v", err)
		}
		if len(applied) != 0 {
			t.Fatalf("expected no recorded migrations, got %+v", applied)
		}
	})
}

func TestSQLiteConfig_DSN(t *testing.T) {
	t.Parallel()

	dsn := DefaultSQLiteConfig("/tmp/pickups.db").DSN()
	for _, want := range []string{"file:/tmp/pickups.db?", "_pragma=foreign_keys(1)", "_pragma=journal_mode(WAL)", "_txlock=immediate"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("expected %q in %s", want, dsn)
		}
	}

	if err := (SQLiteConfig{Path: "x.db", JournalMode: "FAST"}).Validate(); err == nil {
		t.Fatal("expected invalid journal mode to be rejected")
	}
}

package backup

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sydlexius/releasewire/internal/database"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(db, database.DialectSQLite); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	_, err = db.Exec(`INSERT INTO artists (id, name, name_key, created_at) VALUES ('a1', 'M83', 'm83', '2026-01-01T00:00:00Z')`)
	if err != nil {
		t.Fatalf("seeding artist: %v", err)
	}
	return db
}

// clock returns a now func that advances one minute per call.
func clock() func() time.Time {
	t := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func TestBackup(t *testing.T) {
	db := setupTestDB(t)
	dir := filepath.Join(t.TempDir(), "backups")
	svc := NewService(db, dir, 7, testLogger())
	svc.now = clock()

	snap, err := svc.Backup(context.Background())
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if snap.Filename != "releasewire-20260301-120100.db" {
		t.Errorf("filename = %q", snap.Filename)
	}
	if snap.Size == 0 {
		t.Error("expected non-zero file size")
	}

	copyDB, err := sql.Open("sqlite", filepath.Join(dir, snap.Filename))
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer copyDB.Close() //nolint:errcheck

	var name string
	if err := copyDB.QueryRow("SELECT name FROM artists WHERE id = 'a1'").Scan(&name); err != nil {
		t.Fatalf("querying backup: %v", err)
	}
	if name != "M83" {
		t.Errorf("artist name in backup = %q", name)
	}
}

func TestBackupSameSecondFails(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, t.TempDir(), 7, testLogger())
	fixed := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	if _, err := svc.Backup(context.Background()); err != nil {
		t.Fatalf("first Backup: %v", err)
	}
	if _, err := svc.Backup(context.Background()); err == nil {
		t.Error("expected error when snapshot name already exists")
	}
}

func TestListAndPrune(t *testing.T) {
	db := setupTestDB(t)
	dir := filepath.Join(t.TempDir(), "backups")
	svc := NewService(db, dir, 2, testLogger())
	svc.now = clock()

	for i := 0; i < 4; i++ {
		if _, err := svc.Backup(context.Background()); err != nil {
			t.Fatalf("Backup %d: %v", i, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	snaps, err := svc.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snaps) != 4 {
		t.Fatalf("expected 4 snapshots, got %d", len(snaps))
	}
	if !snaps[0].CreatedAt.After(snaps[1].CreatedAt) {
		t.Error("expected snapshots sorted newest first")
	}

	removed, err := svc.Prune()
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	snaps, err = svc.List()
	if err != nil {
		t.Fatalf("List after prune: %v", err)
	}
	if len(snaps) != 2 || snaps[0].Filename != "releasewire-20260301-120400.db" {
		t.Errorf("remaining = %+v", snaps)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Error("prune removed a file it does not own")
	}
}

func TestPruneZeroRetentionKeepsAll(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, t.TempDir(), 0, testLogger())
	svc.now = clock()
	for i := 0; i < 3; i++ {
		if _, err := svc.Backup(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if removed, err := svc.Prune(); err != nil || removed != 0 {
		t.Errorf("Prune = %d, %v", removed, err)
	}
}

func TestListMissingDir(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, filepath.Join(t.TempDir(), "nonexistent"), 7, testLogger())

	snaps, err := svc.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("expected no snapshots, got %d", len(snaps))
	}
}

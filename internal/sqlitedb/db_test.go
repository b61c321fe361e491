package sqlitedb_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"storydub/internal/sqlitedb"
)

var testSchema = sqlitedb.Schema{
	Name:    "test",
	SQL:     "CREATE TABLE things (id TEXT PRIMARY KEY, note TEXT);",
	Version: 1,
}

func TestOpenCreatesSchemaOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := sqlitedb.Open(ctx, path, testSchema)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := db.ExecWithRetry(ctx, "INSERT INTO things (id, note) VALUES (?, ?)", "a", sqlitedb.NullableString("")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := sqlitedb.Open(ctx, path, testSchema)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	var count int
	if err := reopened.QueryRowContext(ctx, "SELECT COUNT(1) FROM things WHERE note IS NULL").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected persisted row with NULL note, got %d", count)
	}
	if reopened.Path() != path {
		t.Fatalf("unexpected path %q", reopened.Path())
	}
}

func TestOpenDetectsVersionMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlitedb.Open(ctx, path, testSchema)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = db.Close()

	bumped := testSchema
	bumped.Version = 2
	if _, err := sqlitedb.Open(ctx, path, bumped); !errors.Is(err, sqlitedb.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestRetryOnBusyStopsOnOtherErrors(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := sqlitedb.RetryOnBusy(context.Background(), func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("expected single call returning boom, got %d %v", calls, err)
	}
}

func TestRetryOnBusyRetriesLockedErrors(t *testing.T) {
	calls := 0
	err := sqlitedb.RetryOnBusy(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked (SQLITE_BUSY)")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success after 3 calls, got %d %v", calls, err)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 0, 123, time.UTC)
	if got := sqlitedb.ParseTime(sqlitedb.FormatTime(now)); !got.Equal(now) {
		t.Fatalf("expected %v, got %v", now, got)
	}
	if !sqlitedb.ParseTime("garbage").IsZero() {
		t.Fatal("expected zero time for garbage")
	}
}

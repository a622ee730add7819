package dialogue

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "dialogues.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLitePutGet(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	want := AwaitCaptcha("alice", "pw", "cid", "csrf")
	if err := store.Put(ctx, 42, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != want {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestSQLiteAbsentReadsIdle(t *testing.T) {
	store := newTestSQLite(t)

	got, err := store.Get(context.Background(), 99)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.IsIdle() {
		t.Errorf("absent chat should read as idle, got %+v", got)
	}
}

func TestSQLitePutIdleDeletes(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	if err := store.Put(ctx, 42, AwaitPassword("alice")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, 42, Idle()); err != nil {
		t.Fatalf("Put idle: %v", err)
	}

	var n int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM dialogues`).Scan(&n); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if n != 0 {
		t.Errorf("idle chat left %d rows behind", n)
	}
}

func TestSQLiteOverwrite(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	if err := store.Put(ctx, 42, AwaitUsername()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, 42, AwaitPassword("bob")); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}

	got, err := store.Get(ctx, 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Stage != StageAwaitPassword || got.Username != "bob" {
		t.Errorf("expected overwritten state, got %+v", got)
	}
}

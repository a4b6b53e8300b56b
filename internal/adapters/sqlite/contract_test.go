package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/transitclock/refresher/internal/adapters/contracttest"
	cachestoreport "github.com/transitclock/refresher/internal/ports/out/cachestore"
	credstoreport "github.com/transitclock/refresher/internal/ports/out/credstore"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "transitclock.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return db
}

func TestContract_SQLiteCredentialStore(t *testing.T) {
	contracttest.RunCredentialStore(t, func(t *testing.T) (credstoreport.Store, func()) {
		t.Helper()
		db := openTestDB(t)
		return NewCredentialStore(db), func() { _ = db.Close() }
	})
}

func TestContract_SQLiteCacheStore(t *testing.T) {
	contracttest.RunCacheStore(t, func(t *testing.T) (cachestoreport.Store, func()) {
		t.Helper()
		db := openTestDB(t)
		return NewCacheStore(db), func() { _ = db.Close() }
	})
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transitclock.db")
	ctx := context.Background()

	db, err := Open(ctx, path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := NewCacheStore(db).Save(ctx, 3, []byte(`[]`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err = Open(ctx, path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	got, ok, err := NewCacheStore(db).Load(ctx, 3)
	if err != nil || !ok || string(got) != `[]` {
		t.Fatalf("Load after reopen=%q ok=%v err=%v", got, ok, err)
	}
}

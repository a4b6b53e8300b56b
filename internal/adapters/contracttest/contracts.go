package contracttest

import (
	"context"
	"testing"

	"github.com/transitclock/refresher/internal/domain"
	cachestoreport "github.com/transitclock/refresher/internal/ports/out/cachestore"
	credstoreport "github.com/transitclock/refresher/internal/ports/out/credstore"
)

type CleanupFunc = func()

type CredentialStoreFactory func(t *testing.T) (credstoreport.Store, CleanupFunc)
type CacheStoreFactory func(t *testing.T) (cachestoreport.Store, CleanupFunc)

// RunCredentialStore checks load/save/delete/list semantics. The store must
// start empty for subscriber ids 9001..9003.
func RunCredentialStore(t *testing.T, newStore CredentialStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	const a, b = domain.SubscriberID(9001), domain.SubscriberID(9002)

	if _, ok, err := store.Load(ctx, a); err != nil || ok {
		t.Fatalf("Load unknown: ok=%v err=%v", ok, err)
	}

	creds := domain.Credentials{BaseURL: "https://transit.example", Username: "dashboard", Password: "s3cret"}
	if err := store.Save(ctx, a, creds); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := store.Load(ctx, a)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if got != creds {
		t.Fatalf("Load=%+v, want %+v", got, creds)
	}

	// Overwrite semantics; empty username/password are valid.
	creds2 := domain.Credentials{BaseURL: "https://other.example"}
	if err := store.Save(ctx, a, creds2); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}
	got, ok, err = store.Load(ctx, a)
	if err != nil || !ok || got != creds2 {
		t.Fatalf("expected overwritten credentials, got %+v ok=%v err=%v", got, ok, err)
	}

	if err := store.Save(ctx, b, creds); err != nil {
		t.Fatalf("Save b: %v", err)
	}
	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !containsInOrder(ids, a, b) {
		t.Fatalf("List=%v, want %d before %d", ids, a, b)
	}

	// Partitioning: deleting a leaves b alone.
	if err := store.Delete(ctx, a); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, err := store.Load(ctx, a); err != nil || ok {
		t.Fatalf("Load after delete: ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.Load(ctx, b); err != nil || !ok {
		t.Fatalf("Load b after deleting a: ok=%v err=%v", ok, err)
	}
	if err := store.Delete(ctx, domain.SubscriberID(9003)); err != nil {
		t.Fatalf("Delete unknown: %v", err)
	}
	if err := store.Delete(ctx, b); err != nil {
		t.Fatalf("Delete b: %v", err)
	}
}

// RunCacheStore checks that records are opaque, replaced wholesale and
// partitioned by subscriber.
func RunCacheStore(t *testing.T, newStore CacheStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	const a, b = domain.SubscriberID(9101), domain.SubscriberID(9102)

	if _, ok, err := store.Load(ctx, a); err != nil || ok {
		t.Fatalf("Load unknown: ok=%v err=%v", ok, err)
	}

	first := []byte(`[{"departure_time":"2024-05-01T10:00:00+02:00","arrival_time":"2024-05-01T10:20:00+02:00","leg":{"id":1}}]`)
	if err := store.Save(ctx, a, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := store.Load(ctx, a)
	if err != nil || !ok || string(got) != string(first) {
		t.Fatalf("Load=%q ok=%v err=%v", got, ok, err)
	}

	// Shorter record fully replaces the longer one.
	if err := store.Save(ctx, a, []byte(`[]`)); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}
	got, ok, err = store.Load(ctx, a)
	if err != nil || !ok || string(got) != `[]` {
		t.Fatalf("expected wholesale overwrite, got %q ok=%v err=%v", got, ok, err)
	}

	// Opaque bytes are stored as-is, even when they are not JSON.
	if err := store.Save(ctx, b, []byte("No data")); err != nil {
		t.Fatalf("Save b: %v", err)
	}
	got, ok, err = store.Load(ctx, b)
	if err != nil || !ok || string(got) != "No data" {
		t.Fatalf("Load b=%q ok=%v err=%v", got, ok, err)
	}

	if err := store.Delete(ctx, a); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, err := store.Load(ctx, a); err != nil || ok {
		t.Fatalf("Load after delete: ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.Load(ctx, b); err != nil || !ok {
		t.Fatalf("Load b after deleting a: ok=%v err=%v", ok, err)
	}
	if err := store.Delete(ctx, b); err != nil {
		t.Fatalf("Delete b: %v", err)
	}
}

func containsInOrder(ids []domain.SubscriberID, first, second domain.SubscriberID) bool {
	fi, si := -1, -1
	for i, id := range ids {
		switch id {
		case first:
			fi = i
		case second:
			si = i
		}
	}
	return fi >= 0 && si >= 0 && fi < si
}

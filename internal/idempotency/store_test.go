package idempotency

import (
	"context"
	"testing"
	"time"
)

func TestTryInsertOnlyFirstCallerInserts(t *testing.T) {
	store := NewMemoryStore(1000, time.Hour)
	defer store.Stop()

	rec := Record{Op: "settle", Key: "k1", RequestHash: "h1", Status: StatusPending, ExpiresAt: time.Now().Add(time.Hour)}

	_, inserted1, err := store.TryInsert(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}
	if !inserted1 {
		t.Fatal("first TryInsert should report inserted=true")
	}

	_, inserted2, err := store.TryInsert(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}
	if inserted2 {
		t.Fatal("second TryInsert for the same key should report inserted=false")
	}
}

func TestReclaimOnlySucceedsWhenFailed(t *testing.T) {
	store := NewMemoryStore(1000, time.Hour)
	defer store.Stop()

	rec := Record{Op: "settle", Key: "k2", RequestHash: "h1", Status: StatusPending, ExpiresAt: time.Now().Add(time.Hour)}
	if _, _, err := store.TryInsert(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	ok, err := store.Reclaim(context.Background(), "settle", "k2", "h2", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("Reclaim should fail while the record is still pending")
	}

	if err := store.Fail(context.Background(), "settle", "k2"); err != nil {
		t.Fatal(err)
	}

	ok, err = store.Reclaim(context.Background(), "settle", "k2", "h2", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("Reclaim should succeed once the record is failed")
	}

	got, found, err := store.Get(context.Background(), "settle", "k2")
	if err != nil || !found {
		t.Fatalf("Get() = %+v, %v, %v", got, found, err)
	}
	if got.Status != StatusPending || got.RequestHash != "h2" {
		t.Fatalf("got = %+v, want pending with hash h2", got)
	}
}

func TestSweepRemovesExpiredRecords(t *testing.T) {
	store := NewMemoryStore(1000, 20*time.Millisecond)
	defer store.Stop()

	rec := Record{Op: "settle", Key: "k3", RequestHash: "h1", Status: StatusPending, ExpiresAt: time.Now().Add(10 * time.Millisecond)}
	if _, _, err := store.TryInsert(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	time.Sleep(60 * time.Millisecond)

	if _, found, err := store.Get(context.Background(), "settle", "k3"); err != nil || found {
		t.Fatalf("expired record should have been swept, found=%v err=%v", found, err)
	}
}

func TestEvictsLRUWhenFull(t *testing.T) {
	store := NewMemoryStore(2, time.Hour)
	defer store.Stop()

	for _, k := range []string{"k1", "k2", "k3"} {
		rec := Record{Op: "settle", Key: k, RequestHash: "h", Status: StatusPending, ExpiresAt: time.Now().Add(time.Hour)}
		if _, _, err := store.TryInsert(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}

	if _, found, _ := store.Get(context.Background(), "settle", "k1"); found {
		t.Fatal("k1 should have been evicted once the store exceeded maxSize")
	}
	if _, found, _ := store.Get(context.Background(), "settle", "k3"); !found {
		t.Fatal("k3 (most recently inserted) should still be present")
	}
}

func TestGetReturnsFalseForUnknownKey(t *testing.T) {
	store := NewMemoryStore(1000, time.Hour)
	defer store.Stop()

	_, found, err := store.Get(context.Background(), "settle", "nonexistent")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected found=false for unknown key")
	}
}

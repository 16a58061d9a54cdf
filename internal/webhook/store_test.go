package webhook

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryDeliveryStoreEnqueueAppliesDefaults(t *testing.T) {
	store := NewMemoryDeliveryStore()
	d, err := store.Enqueue(context.Background(), Delivery{DeliveryID: "d1", EndpointID: "ep1"})
	if err != nil {
		t.Fatal(err)
	}
	if d.MaxAttempts != DefaultMaxAttempts || d.Status != StatusPending || d.CreatedAt.IsZero() {
		t.Fatalf("d = %+v, want defaulted MaxAttempts/Status/CreatedAt", d)
	}
}

func TestMemoryDeliveryStoreGetMissingReturnsErrDeliveryNotFound(t *testing.T) {
	store := NewMemoryDeliveryStore()
	_, err := store.Get(context.Background(), "nonexistent")
	if !errors.Is(err, ErrDeliveryNotFound) {
		t.Fatalf("error = %v, want ErrDeliveryNotFound", err)
	}
}

func TestMemoryDeliveryStoreDueForDeliverySkipsFutureRetries(t *testing.T) {
	store := NewMemoryDeliveryStore()
	ctx := context.Background()
	_, _ = store.Enqueue(ctx, Delivery{DeliveryID: "ready", EndpointID: "ep1"})
	_, _ = store.Enqueue(ctx, Delivery{DeliveryID: "future", EndpointID: "ep1", NextRetryAt: time.Now().Add(time.Hour)})

	due, err := store.DueForDelivery(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].DeliveryID != "ready" {
		t.Fatalf("due = %+v, want only the ready delivery", due)
	}
}

func TestMemoryDeliveryStoreDueForDeliveryRespectsLimit(t *testing.T) {
	store := NewMemoryDeliveryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = store.Enqueue(ctx, Delivery{DeliveryID: string(rune('a' + i)), EndpointID: "ep1"})
	}

	due, err := store.DueForDelivery(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 3 {
		t.Fatalf("len(due) = %d, want 3", len(due))
	}
}

func TestMemoryDeliveryStoreMarkProcessingRequiresExistingDelivery(t *testing.T) {
	store := NewMemoryDeliveryStore()
	if err := store.MarkProcessing(context.Background(), "nonexistent"); !errors.Is(err, ErrDeliveryNotFound) {
		t.Fatalf("error = %v, want ErrDeliveryNotFound", err)
	}
}

func TestMemoryDeliveryStoreRecordAttemptAccumulatesAndSetsCompletedAt(t *testing.T) {
	store := NewMemoryDeliveryStore()
	ctx := context.Background()
	_, _ = store.Enqueue(ctx, Delivery{DeliveryID: "d1", EndpointID: "ep1"})

	if err := store.RecordAttempt(ctx, "d1", Attempt{Number: 1, Error: "timeout"}, StatusPending, time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	mid, err := store.Get(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(mid.Attempts) != 1 || mid.CompletedAt != nil {
		t.Fatalf("mid = %+v, want one attempt and no CompletedAt yet", mid)
	}

	if err := store.RecordAttempt(ctx, "d1", Attempt{Number: 2, StatusCode: 200}, StatusSucceeded, time.Time{}); err != nil {
		t.Fatal(err)
	}
	final, err := store.Get(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(final.Attempts) != 2 || final.Status != StatusSucceeded || final.CompletedAt == nil {
		t.Fatalf("final = %+v, want two attempts, succeeded status, non-nil CompletedAt", final)
	}
}

func TestMemoryDeliveryStoreListByEndpointOrdersNewestFirst(t *testing.T) {
	store := NewMemoryDeliveryStore()
	ctx := context.Background()
	older, _ := store.Enqueue(ctx, Delivery{DeliveryID: "older", EndpointID: "ep1", CreatedAt: time.Now().Add(-time.Hour)})
	newer, _ := store.Enqueue(ctx, Delivery{DeliveryID: "newer", EndpointID: "ep1", CreatedAt: time.Now()})

	list, err := store.ListByEndpoint(ctx, "ep1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].DeliveryID != newer.DeliveryID || list[1].DeliveryID != older.DeliveryID {
		t.Fatalf("list = %+v, want newest-first ordering", list)
	}
}

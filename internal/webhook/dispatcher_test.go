package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestEmitEnqueuesOnlyForMatchingEnabledSubscriptions(t *testing.T) {
	subs := NewMemorySubscriptionStore()
	deliveries := NewMemoryDeliveryStore()
	ctx := context.Background()

	_ = subs.Save(ctx, Subscription{EndpointID: "match", URL: "https://a.example", Events: []string{EventPaymentSucceeded}, Enabled: true})
	_ = subs.Save(ctx, Subscription{EndpointID: "wrong-event", URL: "https://b.example", Events: []string{EventRiskAlert}, Enabled: true})
	_ = subs.Save(ctx, Subscription{EndpointID: "disabled", URL: "https://c.example", Events: []string{EventPaymentSucceeded}, Enabled: false})

	d := NewDispatcher(subs, deliveries, time.Second)
	if err := d.Emit(ctx, EventPaymentSucceeded, []byte(`{"ok":true}`)); err != nil {
		t.Fatal(err)
	}

	list, err := deliveries.ListByEndpoint(ctx, "match", 0)
	if err != nil || len(list) != 1 {
		t.Fatalf("match endpoint deliveries = %+v, %v, want 1", list, err)
	}

	if list, _ := deliveries.ListByEndpoint(ctx, "wrong-event", 0); len(list) != 0 {
		t.Fatalf("wrong-event endpoint got %d deliveries, want 0", len(list))
	}
	if list, _ := deliveries.ListByEndpoint(ctx, "disabled", 0); len(list) != 0 {
		t.Fatalf("disabled endpoint got %d deliveries, want 0", len(list))
	}
}

func TestProcessOneSignsRequestAndRecordsSuccess(t *testing.T) {
	var gotSignature, gotEvent string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Sardis-Signature")
		gotEvent = r.Header.Get("X-Sardis-Event")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	subs := NewMemorySubscriptionStore()
	deliveries := NewMemoryDeliveryStore()
	ctx := context.Background()

	secret := "whsec_test"
	_ = subs.Save(ctx, Subscription{EndpointID: "ep1", URL: server.URL, Secret: secret, Events: []string{"*"}, Enabled: true})

	d := NewDispatcher(subs, deliveries, time.Second)
	payload := []byte(`{"amount":100}`)
	if err := d.Emit(ctx, EventPaymentSucceeded, payload); err != nil {
		t.Fatal(err)
	}

	due, err := deliveries.DueForDelivery(ctx, 0)
	if err != nil || len(due) != 1 {
		t.Fatalf("due = %+v, %v, want 1", due, err)
	}

	d.processOne(ctx, due[0])

	wantSig := "sha256=" + sign(secret, payload)
	if gotSignature != wantSig {
		t.Fatalf("signature = %q, want %q", gotSignature, wantSig)
	}
	if gotEvent != EventPaymentSucceeded {
		t.Fatalf("event header = %q, want %q", gotEvent, EventPaymentSucceeded)
	}
	if string(gotBody) != string(payload) {
		t.Fatalf("body = %q, want %q", gotBody, payload)
	}

	final, err := deliveries.Get(ctx, due[0].DeliveryID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != StatusSucceeded || len(final.Attempts) != 1 || final.Attempts[0].StatusCode != http.StatusOK {
		t.Fatalf("final = %+v, want one succeeded attempt with status 200", final)
	}
}

func TestProcessOneSchedulesRetryOnFailureUntilMaxAttempts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	subs := NewMemorySubscriptionStore()
	deliveries := NewMemoryDeliveryStore()
	ctx := context.Background()
	_ = subs.Save(ctx, Subscription{EndpointID: "ep1", URL: server.URL, Secret: "s", Events: []string{"*"}, Enabled: true})

	d := NewDispatcher(subs, deliveries, time.Second)
	_ = d.Emit(ctx, EventPaymentFailed, []byte(`{}`))

	due, _ := deliveries.DueForDelivery(ctx, 0)
	delivery := due[0]

	for attempt := 1; attempt < DefaultMaxAttempts; attempt++ {
		d.processOne(ctx, delivery)
		updated, err := deliveries.Get(ctx, delivery.DeliveryID)
		if err != nil {
			t.Fatal(err)
		}
		if updated.Status != StatusPending {
			t.Fatalf("after attempt %d, status = %q, want pending (more retries remain)", attempt, updated.Status)
		}
		if updated.NextRetryAt.IsZero() {
			t.Fatalf("after attempt %d, NextRetryAt should be set for a retrying delivery", attempt)
		}
		delivery = updated
	}

	// Final attempt exhausts MaxAttempts.
	d.processOne(ctx, delivery)
	final, err := deliveries.Get(ctx, delivery.DeliveryID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != StatusFailed {
		t.Fatalf("final status = %q, want failed after exhausting %d attempts", final.Status, DefaultMaxAttempts)
	}
	if len(final.Attempts) != DefaultMaxAttempts {
		t.Fatalf("len(final.Attempts) = %d, want %d", len(final.Attempts), DefaultMaxAttempts)
	}
}

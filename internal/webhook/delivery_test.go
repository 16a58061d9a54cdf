package webhook

import (
	"testing"
	"time"
)

func TestSignIsDeterministicAndKeyedBySecret(t *testing.T) {
	body := []byte(`{"hello":"world"}`)

	if sign("secret-a", body) != sign("secret-a", body) {
		t.Fatal("sign should be deterministic for the same secret and body")
	}
	if sign("secret-a", body) == sign("secret-b", body) {
		t.Fatal("sign should differ across secrets")
	}
}

func TestSignChangesWithBody(t *testing.T) {
	if sign("secret", []byte("a")) == sign("secret", []byte("b")) {
		t.Fatal("sign should differ when body content differs")
	}
}

func TestCalculateBackoffGrowsExponentiallyAndCaps(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= 3; attempt++ {
		backoff := calculateBackoff(attempt)
		if backoff <= prev && attempt > 1 {
			t.Fatalf("attempt %d backoff %v did not increase over %v", attempt, backoff, prev)
		}
		prev = backoff
	}

	capped := calculateBackoff(20)
	if capped != backoffSchedule.max {
		t.Fatalf("calculateBackoff(20) = %v, want cap %v", capped, backoffSchedule.max)
	}
}

func TestReadyForDeliveryRequiresPendingStatus(t *testing.T) {
	d := Delivery{Status: StatusProcessing}
	if d.ReadyForDelivery() {
		t.Fatal("a processing delivery should not be ready")
	}
}

func TestReadyForDeliveryRespectsNextRetryAt(t *testing.T) {
	future := Delivery{Status: StatusPending, NextRetryAt: time.Now().Add(time.Hour)}
	if future.ReadyForDelivery() {
		t.Fatal("a delivery scheduled in the future should not be ready yet")
	}

	due := Delivery{Status: StatusPending, NextRetryAt: time.Now().Add(-time.Minute)}
	if !due.ReadyForDelivery() {
		t.Fatal("a delivery whose retry time has passed should be ready")
	}

	noRetrySet := Delivery{Status: StatusPending}
	if !noRetrySet.ReadyForDelivery() {
		t.Fatal("a brand new pending delivery with a zero NextRetryAt should be ready immediately")
	}
}

func TestAttemptCount(t *testing.T) {
	d := Delivery{Attempts: []Attempt{{Number: 1}, {Number: 2}}}
	if d.AttemptCount() != 2 {
		t.Fatalf("AttemptCount() = %d, want 2", d.AttemptCount())
	}
}

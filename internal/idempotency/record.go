// Package idempotency implements the run-once semantics of spec §4.8:
// canonicalize (op, key, payload) into a request hash, and guarantee a
// function runs exactly once per (op, key) pair even under concurrent or
// retried callers, replaying the stored response on every later call with
// a matching hash.
//
// Adapted from the teacher's internal/idempotency/store.go (LRU map +
// background sweep), generalized from a plain response cache into the
// record-based pending/completed/failed state machine spec.md §4.8
// describes, and resolving the teacher's own "evict before adding to
// prevent races" comment into an atomic compare-and-set insert.
package idempotency

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/sardis-ai/payments-core/internal/canon"
)

// Status is the lifecycle state of a Record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is one idempotency entry keyed by (op, key).
type Record struct {
	Op          string
	Key         string
	RequestHash string
	Status      Status
	Response    json.RawMessage
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// ErrConflict is returned when a record exists for (op, key) with a
// different request hash than the one computed for the current call.
var ErrConflict = errors.New("idempotency: conflicting payload for existing key")

// ErrInProgress is returned when a pending record's owner never finished
// within the caller's bounded backoff.
var ErrInProgress = errors.New("idempotency: operation still in progress")

// requestHash canonicalizes payload and returns its hex SHA-256 digest.
func requestHash(payload any) (string, error) {
	canonical, err := canon.Canonicalize(payload)
	if err != nil {
		return "", err
	}
	sum := canon.HashSHA256(canonical)
	return hexEncode(sum[:]), nil
}

const hexDigits = "0123456789abcdef"

func hexEncode(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0f]
	}
	return string(out)
}

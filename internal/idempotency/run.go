package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// BackoffSchedule is the bounded wait sequence RunIdempotent uses while
// polling a pending record left by a concurrent caller.
var BackoffSchedule = []time.Duration{
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	200 * time.Millisecond,
}

// RunIdempotent implements spec §4.8's run-once semantics for fn, keyed by
// (op, key) with payload canonicalized into the stored request hash:
//
//   - no record exists: insert pending, run fn, persist completed/failed.
//   - record completed with the same hash: return the stored response.
//   - record pending with the same hash: poll with bounded backoff; if it
//     never resolves, return ErrInProgress.
//   - record failed with the same hash: reclaim it to pending and re-run.
//   - record exists with a different hash: return ErrConflict.
func RunIdempotent[T any](ctx context.Context, store Store, op, key string, payload any, ttl time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	hash, err := requestHash(payload)
	if err != nil {
		return zero, fmt.Errorf("idempotency: compute request hash: %w", err)
	}

	now := time.Now()
	rec := Record{Op: op, Key: key, RequestHash: hash, Status: StatusPending, CreatedAt: now, ExpiresAt: now.Add(ttl)}

	current, inserted, err := store.TryInsert(ctx, rec)
	if err != nil {
		return zero, fmt.Errorf("idempotency: insert record: %w", err)
	}

	if inserted {
		return runAndPersist(ctx, store, op, key, fn)
	}

	return resolveExisting(ctx, store, op, key, hash, ttl, current, fn)
}

func resolveExisting[T any](ctx context.Context, store Store, op, key, hash string, ttl time.Duration, current Record, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if current.RequestHash != hash {
		return zero, ErrConflict
	}

	switch current.Status {
	case StatusCompleted:
		var resp T
		if len(current.Response) > 0 {
			if err := json.Unmarshal(current.Response, &resp); err != nil {
				return zero, fmt.Errorf("idempotency: decode stored response: %w", err)
			}
		}
		return resp, nil

	case StatusFailed:
		reclaimed, err := store.Reclaim(ctx, op, key, hash, time.Now().Add(ttl))
		if err != nil {
			return zero, fmt.Errorf("idempotency: reclaim failed record: %w", err)
		}
		if !reclaimed {
			// Lost the race to reclaim; fall through to polling the
			// record another caller is now running.
			return pollPending[T](ctx, store, op, key, hash)
		}
		return runAndPersist(ctx, store, op, key, fn)

	default: // StatusPending
		return pollPending[T](ctx, store, op, key, hash)
	}
}

func pollPending[T any](ctx context.Context, store Store, op, key, hash string) (T, error) {
	var zero T

	for _, wait := range BackoffSchedule {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}

		rec, ok, err := store.Get(ctx, op, key)
		if err != nil {
			return zero, fmt.Errorf("idempotency: poll record: %w", err)
		}
		if !ok {
			return zero, ErrInProgress
		}
		if rec.RequestHash != hash {
			return zero, ErrConflict
		}
		switch rec.Status {
		case StatusCompleted:
			var resp T
			if len(rec.Response) > 0 {
				if err := json.Unmarshal(rec.Response, &resp); err != nil {
					return zero, fmt.Errorf("idempotency: decode stored response: %w", err)
				}
			}
			return resp, nil
		case StatusFailed:
			return zero, ErrInProgress
		}
	}

	return zero, ErrInProgress
}

func runAndPersist[T any](ctx context.Context, store Store, op, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	result, err := fn(ctx)
	if err != nil {
		if failErr := store.Fail(ctx, op, key); failErr != nil {
			return zero, fmt.Errorf("idempotency: mark failed after %w: %s", err, failErr)
		}
		return zero, err
	}

	response, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		_ = store.Fail(ctx, op, key)
		return zero, fmt.Errorf("idempotency: marshal response: %w", marshalErr)
	}

	if err := store.Complete(ctx, op, key, response); err != nil {
		return zero, fmt.Errorf("idempotency: mark completed: %w", err)
	}
	return result, nil
}

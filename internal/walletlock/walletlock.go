// Package walletlock provides per-resource distributed locking with
// compare-and-set acquisition, conditional release/extend, and a
// jittered-retry wrapper — spec.md §4.9's `lock`/`release`/`extend`
// primitives, used by the Settlement Engine to serialize writes to a
// single wallet.
//
// The retry idiom (attempt, sleep with exponential backoff capped at a
// max interval, give up after a deadline) is adapted from the teacher's
// internal/callbacks/retry.go webhook delivery loop.
package walletlock

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sardis-ai/payments-core/internal/metrics"
)

// ErrTimeout is returned when a lock could not be acquired before the
// caller's deadline elapsed.
var ErrTimeout = errors.New("walletlock: timed out waiting for lock")

// ErrNotOwner is returned by Release/Extend when the caller-supplied
// owner token does not match the current holder (or the resource is not
// locked at all).
var ErrNotOwner = errors.New("walletlock: caller does not hold the lock")

// RetryConfig controls the jittered backoff Lock uses between failed
// compare-and-set attempts.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          float64 // fraction of the interval to randomize, e.g. 0.2 = ±20%
}

// DefaultRetryConfig matches the per-wallet lock retry spec.md §4.10
// step 3 describes for a 60s acquisition budget.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 25 * time.Millisecond,
		MaxInterval:     1 * time.Second,
		Multiplier:      2.0,
		Jitter:          0.2,
	}
}

type held struct {
	owner     string
	resource  string
	expiresAt time.Time
}

// Locker is an in-process compare-and-set lock keyed by resource name,
// with jittered-retry acquisition. The teacher's services run a single
// process per deployment behind a connection-pooled Postgres backend, so
// this mirrors that shape: a mutex-guarded map is the lock's source of
// truth, not an external Redis — promoting it to a real distributed lock
// (e.g. Redis SET NX PX) is a deployment-time swap behind this same
// interface, not a change to the locking semantics.
type Locker struct {
	mu      sync.Mutex
	locks   map[string]held
	retry   RetryConfig
	metrics *metrics.Metrics
}

// Option customizes a Locker.
type Option func(*Locker)

// WithRetryConfig overrides the default jittered-retry schedule.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(l *Locker) { l.retry = cfg }
}

// WithMetrics attaches a metrics collector for lock acquisition/timeout
// observability.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Locker) { l.metrics = m }
}

func NewLocker(opts ...Option) *Locker {
	l := &Locker{
		locks: make(map[string]held),
		retry: DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// tryAcquire attempts a single compare-and-set: succeeds if the resource
// is unheld, or held by an owner whose lease has expired.
func (l *Locker) tryAcquire(resource, owner string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if h, ok := l.locks[resource]; ok && h.expiresAt.After(now) {
		return false
	}
	l.locks[resource] = held{owner: owner, resource: resource, expiresAt: now.Add(ttl)}
	return true
}

// Lock acquires resource for owner, retrying with jittered exponential
// backoff until either it succeeds or ctx's deadline (or its own
// internal 60s deadline, if ctx carries none) is reached.
func (l *Locker) Lock(ctx context.Context, resource, owner string, ttl time.Duration) error {
	// Without a caller deadline, acquisition is bounded at 60s.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
	}

	start := time.Now()
	interval := l.retry.InitialInterval

	for {
		if l.tryAcquire(resource, owner, ttl) {
			l.observeAcquisition(resource, "acquired", time.Since(start))
			return nil
		}

		wait := jitter(interval, l.retry.Jitter)
		select {
		case <-ctx.Done():
			l.observeAcquisition(resource, "timeout", time.Since(start))
			return fmt.Errorf("%w: resource=%s: %s", ErrTimeout, resource, ctx.Err())
		case <-time.After(wait):
		}

		interval = time.Duration(float64(interval) * l.retry.Multiplier)
		if interval > l.retry.MaxInterval {
			interval = l.retry.MaxInterval
		}
	}
}

func (l *Locker) observeAcquisition(resource, result string, wait time.Duration) {
	if l.metrics == nil {
		return
	}
	l.metrics.ObserveWalletLockAcquisition(resourceType(resource), result, wait)
}

// Release drops the lock on resource, conditional on owner matching the
// current holder.
func (l *Locker) Release(resource, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.locks[resource]
	if !ok || h.owner != owner {
		return ErrNotOwner
	}
	delete(l.locks, resource)
	return nil
}

// Extend pushes out resource's expiry by ttl from now, conditional on
// owner matching the current holder and the lease not yet having
// expired.
func (l *Locker) Extend(resource, owner string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.locks[resource]
	if !ok || h.owner != owner || !h.expiresAt.After(time.Now()) {
		return ErrNotOwner
	}
	h.expiresAt = time.Now().Add(ttl)
	l.locks[resource] = h
	return nil
}

// WithLock acquires resource, runs fn, and releases the lock whether fn
// succeeds or not. This is the shape Settlement Engine step 3 actually
// uses — a critical section, not a bare lock/release pair the caller
// has to remember to balance.
func WithLock(ctx context.Context, l *Locker, resource, owner string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if err := l.Lock(ctx, resource, owner, ttl); err != nil {
		return err
	}
	defer func() { _ = l.Release(resource, owner) }()
	return fn(ctx)
}

func jitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	delta := float64(d) * frac
	offset := (rand.Float64()*2 - 1) * delta
	result := float64(d) + offset
	if result < 0 {
		result = 0
	}
	return time.Duration(result)
}

// resourceType buckets a resource key into a low-cardinality label for
// metrics, since resource names themselves are wallet IDs.
func resourceType(resource string) string {
	for i := 0; i < len(resource); i++ {
		if resource[i] == ':' {
			return resource[:i]
		}
	}
	return "wallet"
}

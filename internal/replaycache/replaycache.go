// Package replaycache tracks which mandate IDs have already been accepted so
// a verified-but-resubmitted mandate is rejected as a replay (spec §4.2).
//
// The shape mirrors the teacher's internal/idempotency.MemoryStore — a
// container/list LRU paired with an expiry map and a background sweep
// goroutine — but the operation is single-purpose: CheckAndInsert is
// atomic-or-reject, there is no update-in-place Set/Get pair, because a
// mandate ID is either fresh (insert succeeds) or a replay (insert refused).
package replaycache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Outcome is the result of attempting to record a mandate ID.
type Outcome int

const (
	// Fresh means the ID had not been seen before and is now recorded.
	Fresh Outcome = iota
	// Replay means the ID was already present and unexpired.
	Replay
)

// Cache records mandate IDs for the duration of their stated expiry so a
// second submission of the same ID is detected as a replay.
type Cache interface {
	// CheckAndInsert atomically checks whether id has been seen and, if not,
	// records it until expiresAt. The returned Outcome tells the caller
	// which branch occurred; insertion only happens on Fresh.
	CheckAndInsert(ctx context.Context, id string, expiresAt time.Time) (Outcome, error)
	// Contains reports whether id is currently recorded and unexpired,
	// without inserting or otherwise mutating the cache. Callers that must
	// check several IDs before committing any of them (e.g. a bundle of
	// mandates that must all be fresh or none recorded) use this to probe
	// read-only before calling CheckAndInsert.
	Contains(ctx context.Context, id string) (bool, error)
	Stop()
}

type entry struct {
	id      string
	expires time.Time
	element *list.Element
}

// MemoryCache is an in-process Cache bounded by maxSize with LRU eviction
// for entries that haven't expired yet, and a periodic sweep for ones that
// have.
type MemoryCache struct {
	mu        sync.Mutex
	entries   map[string]*entry
	lru       *list.List
	maxSize   int
	stopSweep chan struct{}
	sweepDone chan struct{}
}

// NewMemoryCache creates a MemoryCache holding at most maxSize unexpired
// entries, sweeping expired ones every sweepInterval.
func NewMemoryCache(maxSize int, sweepInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries:   make(map[string]*entry),
		lru:       list.New(),
		maxSize:   maxSize,
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go c.sweep(sweepInterval)
	return c
}

// CheckAndInsert returns Replay if id is present and unexpired; otherwise it
// inserts id (evicting the least-recently-used entry first if the cache is
// full) and returns Fresh. An expired entry for the same id is treated as
// absent and overwritten.
func (c *MemoryCache) CheckAndInsert(ctx context.Context, id string, expiresAt time.Time) (Outcome, error) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[id]; ok {
		if now.Before(e.expires) {
			c.lru.MoveToFront(e.element)
			return Replay, nil
		}
		// Expired: drop the stale record and fall through to a fresh insert.
		c.lru.Remove(e.element)
		delete(c.entries, id)
	}

	if len(c.entries) >= c.maxSize {
		c.evictLRU()
	}

	e := &entry{id: id, expires: expiresAt}
	e.element = c.lru.PushFront(e)
	c.entries[id] = e

	return Fresh, nil
}

// Contains reports whether id is present and unexpired, without inserting
// it or touching LRU order. An expired entry is reported absent, matching
// CheckAndInsert's treatment of expired entries as fresh.
func (c *MemoryCache) Contains(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return false, nil
	}
	return time.Now().Before(e.expires), nil
}

func (c *MemoryCache) evictLRU() {
	back := c.lru.Back()
	if back == nil {
		return
	}
	e := back.Value.(*entry)
	c.lru.Remove(back)
	delete(c.entries, e.id)
}

func (c *MemoryCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(c.sweepDone)

	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			var stale []string
			for id, e := range c.entries {
				if now.After(e.expires) {
					stale = append(stale, id)
				}
			}
			for _, id := range stale {
				if e, ok := c.entries[id]; ok {
					c.lru.Remove(e.element)
					delete(c.entries, id)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Stop shuts down the background sweep goroutine.
func (c *MemoryCache) Stop() {
	close(c.stopSweep)
	<-c.sweepDone
}

package idempotency

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Store persists Records keyed by (op, key). TryInsert's atomic
// compare-and-set semantics resolve the race the teacher's own comment in
// the original store.go flags ("evict before adding to prevent races"
// solved one race; concurrent first-callers on the same key is a
// different one) — two concurrent callers racing to create the same
// record must have exactly one of them observe inserted=true.
type Store interface {
	// TryInsert inserts rec if no record exists for (rec.Op, rec.Key). It
	// returns the current record (the one just inserted, or the one that
	// already existed) and whether this call performed the insert.
	TryInsert(ctx context.Context, rec Record) (current Record, inserted bool, err error)

	// Reclaim transitions an existing failed record back to pending with a
	// fresh request hash and expiry, succeeding only if the record's
	// current status is failed.
	Reclaim(ctx context.Context, op, key, requestHash string, expiresAt time.Time) (ok bool, err error)

	Complete(ctx context.Context, op, key string, response json.RawMessage) error
	Fail(ctx context.Context, op, key string) error
	Get(ctx context.Context, op, key string) (Record, bool, error)

	Stop()
}

func recordKey(op, key string) string {
	return op + "\x00" + key
}

type entry struct {
	record  Record
	element *list.Element
}

// MemoryStore is an in-memory Store with LRU eviction and a background
// sweep for expired records, grounded directly on the teacher's
// internal/idempotency/store.go MemoryStore (container/list LRU + map +
// ticker-driven cleanup goroutine).
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]*entry
	lru       *list.List
	maxSize   int
	stopSweep chan struct{}
	sweepDone chan struct{}
}

func NewMemoryStore(maxSize int, sweepInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries:   make(map[string]*entry),
		lru:       list.New(),
		maxSize:   maxSize,
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go s.sweep(sweepInterval)
	return s
}

func (s *MemoryStore) TryInsert(ctx context.Context, rec Record) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := recordKey(rec.Op, rec.Key)
	if e, ok := s.entries[k]; ok {
		s.lru.MoveToFront(e.element)
		return e.record, false, nil
	}

	if len(s.entries) >= s.maxSize {
		s.evictLRU()
	}

	e := &entry{record: rec}
	e.element = s.lru.PushFront(k)
	s.entries[k] = e
	return rec, true, nil
}

func (s *MemoryStore) Reclaim(ctx context.Context, op, key, requestHash string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := recordKey(op, key)
	e, ok := s.entries[k]
	if !ok || e.record.Status != StatusFailed {
		return false, nil
	}

	e.record.RequestHash = requestHash
	e.record.Status = StatusPending
	e.record.ExpiresAt = expiresAt
	e.record.Response = nil
	s.lru.MoveToFront(e.element)
	return true, nil
}

func (s *MemoryStore) Complete(ctx context.Context, op, key string, response json.RawMessage) error {
	return s.setStatus(op, key, StatusCompleted, response)
}

func (s *MemoryStore) Fail(ctx context.Context, op, key string) error {
	return s.setStatus(op, key, StatusFailed, nil)
}

func (s *MemoryStore) setStatus(op, key string, status Status, response json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := recordKey(op, key)
	e, ok := s.entries[k]
	if !ok {
		return fmt.Errorf("idempotency: no record for op=%s key=%s", op, key)
	}
	e.record.Status = status
	if response != nil {
		e.record.Response = response
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, op, key string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[recordKey(op, key)]
	if !ok {
		return Record{}, false, nil
	}
	return e.record, true, nil
}

func (s *MemoryStore) evictLRU() {
	elem := s.lru.Back()
	if elem == nil {
		return
	}
	k := elem.Value.(string)
	s.lru.Remove(elem)
	delete(s.entries, k)
}

func (s *MemoryStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(s.sweepDone)

	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			s.mu.Lock()
			now := time.Now()

			// Collect keys to delete first to avoid mutating the map
			// while ranging over it.
			var stale []string
			for k, e := range s.entries {
				if now.After(e.record.ExpiresAt) {
					stale = append(stale, k)
				}
			}
			for _, k := range stale {
				if e, ok := s.entries[k]; ok {
					s.lru.Remove(e.element)
					delete(s.entries, k)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *MemoryStore) Stop() {
	close(s.stopSweep)
	<-s.sweepDone
}

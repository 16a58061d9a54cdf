// Package balance implements the generation-tagged wallet balance cache
// of spec.md §4.9: entries are keyed by (wallet_id, token, generation).
// InvalidateWallet bumps that wallet's generation counter; any cached
// write tagged with an older generation is treated as a miss on the next
// read rather than served stale, without having to walk and delete every
// entry for that wallet immediately.
//
// Built on the teacher's internal/cacheutil.ReadThrough/WriteThrough
// generic helpers (double-checked locking, re-validated under the write
// lock) and internal/metrics for the hit/miss/set/delete/error/latency
// counters spec.md §4.9 requires.
package balance

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sardis-ai/payments-core/internal/cacheutil"
	"github.com/sardis-ai/payments-core/internal/metrics"
)

// Reader fetches a wallet's current balance directly from its rail,
// bypassing the cache — called on a miss or a stale-generation hit.
type Reader interface {
	ReadBalance(ctx context.Context, walletID, token string) (int64, error)
}

type key struct {
	walletID string
	token    string
}

type entry struct {
	amountMinor int64
	generation  uint64
	fetchedAt   time.Time
}

// Cache is a generation-tagged, TTL-bounded balance cache.
type Cache struct {
	mu          sync.RWMutex
	entries     map[key]entry
	generations map[string]uint64
	ttl         time.Duration
	metrics     *metrics.Metrics

	hits    uint64
	misses  uint64
	sets    uint64
	deletes uint64
	errors  uint64
}

// Option customizes a Cache.
type Option func(*Cache)

// WithTTL overrides the default cache entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithMetrics attaches a metrics collector for cache observability.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// NewCache constructs a Cache with a default 30s TTL, the window
// spec.md §4.10 step 4 expects a "re-check" to plausibly still be fresh
// within.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		entries:     make(map[key]entry),
		generations: make(map[string]uint64),
		ttl:         30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns walletID's cached balance for token, falling back to
// reader.ReadBalance on a miss, an expired entry, or an entry tagged
// with a generation older than the wallet's current one.
func (c *Cache) Get(ctx context.Context, walletID, token string, reader Reader) (int64, error) {
	start := time.Now()
	k := key{walletID: walletID, token: token}
	var hit bool

	amount, err := cacheutil.ReadThrough(
		&c.mu,
		func(now time.Time) (int64, bool) {
			e, ok := c.entries[k]
			if !ok || e.generation < c.generations[walletID] || now.Sub(e.fetchedAt) >= c.ttl {
				return 0, false
			}
			hit = true
			return e.amountMinor, true
		},
		func(now time.Time) (int64, error) {
			amount, err := reader.ReadBalance(ctx, walletID, token)
			if err != nil {
				atomic.AddUint64(&c.errors, 1)
				if c.metrics != nil {
					c.metrics.ObserveBalanceCacheError(token)
				}
				return 0, err
			}
			c.entries[k] = entry{amountMinor: amount, generation: c.generations[walletID], fetchedAt: now}
			atomic.AddUint64(&c.sets, 1)
			if c.metrics != nil {
				c.metrics.ObserveBalanceCacheSet(token)
			}
			return amount, nil
		},
	)

	duration := time.Since(start)
	if hit {
		atomic.AddUint64(&c.hits, 1)
		if c.metrics != nil {
			c.metrics.ObserveBalanceCacheHit(token, duration)
		}
	} else if err == nil {
		atomic.AddUint64(&c.misses, 1)
		if c.metrics != nil {
			c.metrics.ObserveBalanceCacheMiss(token, duration)
		}
	}
	return amount, err
}

// Set writes amountMinor for (walletID, token) directly, tagged with the
// wallet's current generation — used after a settlement debits or
// credits a balance, so the next read observes the new amount instead of
// a stale rail read.
func (c *Cache) Set(walletID, token string, amountMinor int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key{walletID: walletID, token: token}] = entry{
		amountMinor: amountMinor,
		generation:  c.generations[walletID],
		fetchedAt:   time.Now(),
	}
	atomic.AddUint64(&c.sets, 1)
	if c.metrics != nil {
		c.metrics.ObserveBalanceCacheSet(token)
	}
}

// InvalidateWallet increments walletID's generation counter. Every entry
// currently cached for that wallet, regardless of token, is immediately
// treated as stale on its next read — P10 in spec.md §7.
func (c *Cache) InvalidateWallet(walletID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generations[walletID]++
	atomic.AddUint64(&c.deletes, 1)
	if c.metrics != nil {
		c.metrics.ObserveBalanceCacheDelete(walletID)
	}
}

// Stats is a point-in-time snapshot of the cache's counters.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Sets    uint64
	Deletes uint64
	Errors  uint64
}

// HitRate returns hits / (hits + misses), or 0 if there have been no
// lookups yet.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns a snapshot of the cache's hit/miss/set/delete/error
// counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    atomic.LoadUint64(&c.hits),
		Misses:  atomic.LoadUint64(&c.misses),
		Sets:    atomic.LoadUint64(&c.sets),
		Deletes: atomic.LoadUint64(&c.deletes),
		Errors:  atomic.LoadUint64(&c.errors),
	}
}

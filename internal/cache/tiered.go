// Package cache stores upstream API responses in two tiers: a bounded
// in-process map with LRU/LFU eviction in front of a SQLite store. Both
// tiers carry independent expiry; reads go memory first with persistent
// backfill, writes go to memory synchronously and to SQLite best-effort.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultTTL is the default time-to-live for cached responses.
	DefaultTTL = 24 * time.Hour
	// DefaultMaxSize is the memory-tier entry capacity.
	DefaultMaxSize = 500
	// DefaultSweepInterval is how often the expiry sweeper runs.
	DefaultSweepInterval = time.Hour
)

// Stats summarizes cache effectiveness since the last Clear.
type Stats struct {
	MemoryHitRate     float64 `json:"memoryHitRate"`
	PersistentHitRate float64 `json:"persistentHitRate"`
	TotalHits         int64   `json:"totalHits"`
	TotalMisses       int64   `json:"totalMisses"`
	Size              int     `json:"size"`
	MaxSize           int     `json:"maxSize"`
}

// Tiered is the two-tier cache. Safe for concurrent use.
type Tiered struct {
	mu     sync.Mutex
	memory *memoryCache
	store  *Store
	ttl    time.Duration

	memoryHits     int64
	persistentHits int64
	misses         int64

	// pending tracks in-flight persistent writes so Close and tests can
	// wait for them.
	pending sync.WaitGroup
}

// Option configures a Tiered cache.
type Option func(*tieredConfig)

type tieredConfig struct {
	ttl     time.Duration
	maxSize int
	policy  Policy
}

// WithTTL overrides the default entry time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(c *tieredConfig) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithMaxSize overrides the memory-tier capacity.
func WithMaxSize(n int) Option {
	return func(c *tieredConfig) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithPolicy selects the eviction policy.
func WithPolicy(p Policy) Option {
	return func(c *tieredConfig) {
		c.policy = p
	}
}

// NewTiered creates a tiered cache in front of store.
func NewTiered(store *Store, opts ...Option) *Tiered {
	cfg := tieredConfig{
		ttl:     DefaultTTL,
		maxSize: DefaultMaxSize,
		policy:  PolicyLRU,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Tiered{
		memory: newMemoryCache(cfg.maxSize, cfg.policy),
		store:  store,
		ttl:    cfg.ttl,
	}
}

// Get looks key up in the memory tier, then the persistent tier. A
// persistent hit backfills the memory tier with a fresh memory expiry so the
// tiers do not drift apart for hot keys.
func (t *Tiered) Get(key string) (string, bool) {
	now := time.Now()

	t.mu.Lock()
	if payload, ok := t.memory.get(key, now); ok {
		t.memoryHits++
		t.mu.Unlock()
		return payload, true
	}
	t.mu.Unlock()

	data, ok, err := t.store.Get(key)
	if err != nil {
		slog.Warn("Persistent cache read failed", "key", key, "error", err)
	}
	if ok {
		t.mu.Lock()
		t.persistentHits++
		t.memory.set(key, data, now, now.Add(t.ttl))
		t.mu.Unlock()
		return data, true
	}

	t.mu.Lock()
	t.misses++
	t.mu.Unlock()
	return "", false
}

// Set writes value under key to both tiers. The memory write is synchronous;
// the persistent write happens on a goroutine and its failure is logged, not
// surfaced — a broken disk must not fail the request that produced the data.
func (t *Tiered) Set(key, value string, ttlOverride ...time.Duration) {
	ttl := t.ttl
	if len(ttlOverride) > 0 && ttlOverride[0] > 0 {
		ttl = ttlOverride[0]
	}
	now := time.Now()
	expiresAt := now.Add(ttl)

	t.mu.Lock()
	t.memory.set(key, value, now, expiresAt)
	t.mu.Unlock()

	t.pending.Add(1)
	go func() {
		defer t.pending.Done()
		if err := t.store.Set(key, value, expiresAt); err != nil {
			slog.Warn("Persistent cache write failed", "key", key, "error", err)
		}
	}()
}

// Delete removes key from both tiers.
func (t *Tiered) Delete(key string) {
	t.mu.Lock()
	t.memory.delete(key)
	t.mu.Unlock()

	if err := t.store.Delete(key); err != nil {
		slog.Warn("Persistent cache delete failed", "key", key, "error", err)
	}
}

// DeletePattern removes every key containing substr from both tiers and
// returns the total number of entries removed.
func (t *Tiered) DeletePattern(substr string) int {
	t.mu.Lock()
	removed := t.memory.deletePattern(substr)
	t.mu.Unlock()

	n, err := t.store.DeleteLike(substr)
	if err != nil {
		slog.Warn("Persistent cache pattern delete failed", "pattern", substr, "error", err)
	}
	return removed + int(n)
}

// Clear empties both tiers and resets the hit/miss counters.
func (t *Tiered) Clear() {
	t.mu.Lock()
	t.memory.clear()
	t.memoryHits = 0
	t.persistentHits = 0
	t.misses = 0
	t.mu.Unlock()

	if err := t.store.Clear(); err != nil {
		slog.Warn("Persistent cache clear failed", "error", err)
	}
}

// Cleanup sweeps expired entries from both tiers and returns the count
// removed.
func (t *Tiered) Cleanup() int {
	now := time.Now()

	t.mu.Lock()
	removed := t.memory.cleanup(now)
	t.mu.Unlock()

	n, err := t.store.ClearExpired()
	if err != nil {
		slog.Warn("Persistent cache cleanup failed", "error", err)
	}
	return removed + int(n)
}

// Stats returns hit/miss counters and memory-tier occupancy.
func (t *Tiered) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := t.memoryHits + t.persistentHits + t.misses
	stats := Stats{
		TotalHits:   t.memoryHits + t.persistentHits,
		TotalMisses: t.misses,
		Size:        t.memory.len(),
		MaxSize:     t.memory.capacity,
	}
	if total > 0 {
		stats.MemoryHitRate = float64(t.memoryHits) / float64(total) * 100
		stats.PersistentHitRate = float64(t.persistentHits) / float64(total) * 100
	}
	return stats
}

// HitCount reports the memory-tier hit counter for key.
func (t *Tiered) HitCount(key string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.memory.hitCount(key)
}

// TopPersistentKeys returns the most-read persistent keys, for warm-up
// heuristics.
func (t *Tiered) TopPersistentKeys(limit int) ([]KeyStat, error) {
	return t.store.TopKeys(limit)
}

// StartSweeper runs Cleanup every interval until ctx is cancelled.
func (t *Tiered) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := t.Cleanup(); removed > 0 {
					slog.Debug("Cache sweep complete", "removed", removed)
				}
			}
		}
	}()
}

// Close waits for in-flight persistent writes and closes the store.
func (t *Tiered) Close() error {
	t.pending.Wait()
	return t.store.Close()
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTiered(t *testing.T, opts ...Option) *Tiered {
	t.Helper()

	store := newTestStore(t)
	return NewTiered(store, opts...)
}

func TestTieredMemoryHit(t *testing.T) {
	tc := newTestTiered(t)

	tc.Set("k", "v")
	tc.pending.Wait()

	got, ok := tc.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	stats := tc.Stats()
	assert.Equal(t, int64(1), stats.TotalHits)
	assert.Equal(t, int64(0), stats.TotalMisses)
	assert.InDelta(t, 100.0, stats.MemoryHitRate, 0.001)
}

func TestTieredSetWritesBothTiers(t *testing.T) {
	tc := newTestTiered(t)

	tc.Set("k", "v")
	tc.pending.Wait()

	data, ok, err := tc.store.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", data)
}

func TestTieredPersistentBackfill(t *testing.T) {
	tc := newTestTiered(t)

	// Seed the persistent tier only, as if a previous process wrote it.
	require.NoError(t, tc.store.Set("k", "v", time.Now().Add(time.Hour)))

	got, ok := tc.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	stats := tc.Stats()
	assert.InDelta(t, 100.0, stats.PersistentHitRate, 0.001)
	assert.Equal(t, 1, stats.Size, "persistent hit should backfill the memory tier")

	// Second read comes from memory.
	_, ok = tc.Get("k")
	require.True(t, ok)
	stats = tc.Stats()
	assert.Equal(t, int64(2), stats.TotalHits)
	assert.InDelta(t, 50.0, stats.MemoryHitRate, 0.001)
}

func TestTieredMiss(t *testing.T) {
	tc := newTestTiered(t)

	_, ok := tc.Get("absent")
	assert.False(t, ok)

	stats := tc.Stats()
	assert.Equal(t, int64(0), stats.TotalHits)
	assert.Equal(t, int64(1), stats.TotalMisses)
}

func TestTieredMemoryEviction(t *testing.T) {
	tc := newTestTiered(t, WithMaxSize(2))

	tc.Set("a", "1")
	tc.Set("b", "2")
	tc.Set("c", "3")
	tc.pending.Wait()

	stats := tc.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 2, stats.MaxSize)

	// The evicted key survives in the persistent tier and backfills on read.
	got, ok := tc.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", got)
	assert.InDelta(t, 100.0, tc.Stats().PersistentHitRate, 0.001)
}

func TestTieredTTLOverride(t *testing.T) {
	tc := newTestTiered(t)

	tc.Set("short", "v", -time.Minute)
	tc.pending.Wait()

	// Negative override falls back to the default TTL, so the entry is live.
	_, ok := tc.Get("short")
	assert.True(t, ok)
}

func TestTieredDelete(t *testing.T) {
	tc := newTestTiered(t)

	tc.Set("k", "v")
	tc.pending.Wait()
	tc.Delete("k")

	_, ok := tc.Get("k")
	assert.False(t, ok)
}

func TestTieredDeletePattern(t *testing.T) {
	tc := newTestTiered(t)

	tc.Set("search:query=go", "1")
	tc.Set("search:query=rust", "2")
	tc.Set("isbn:isbn=123", "3")
	tc.pending.Wait()

	// Each key exists in both tiers, so the count covers both.
	removed := tc.DeletePattern("search:")
	assert.Equal(t, 4, removed)

	_, ok := tc.Get("search:query=go")
	assert.False(t, ok)
	_, ok = tc.Get("isbn:isbn=123")
	assert.True(t, ok)
}

func TestTieredClearResetsCounters(t *testing.T) {
	tc := newTestTiered(t)

	tc.Set("k", "v")
	tc.pending.Wait()
	tc.Get("k")
	tc.Get("absent")

	tc.Clear()

	stats := tc.Stats()
	assert.Equal(t, int64(0), stats.TotalHits)
	assert.Equal(t, int64(0), stats.TotalMisses)
	assert.Equal(t, 0, stats.Size)

	_, ok := tc.Get("k")
	assert.False(t, ok)
}

func TestTieredCleanupBothTiers(t *testing.T) {
	tc := newTestTiered(t)

	// Stale entry seeded into both tiers with a past expiry.
	now := time.Now()
	tc.mu.Lock()
	tc.memory.set("stale", "v", now.Add(-2*time.Hour), now.Add(-time.Hour))
	tc.mu.Unlock()
	require.NoError(t, tc.store.Set("stale", "v", now.Add(-time.Hour)))

	tc.Set("fresh", "v")
	tc.pending.Wait()

	removed := tc.Cleanup()
	assert.Equal(t, 2, removed)

	_, ok := tc.Get("fresh")
	assert.True(t, ok)
}

func TestStartSweeperRemovesExpiredEntries(t *testing.T) {
	tc := newTestTiered(t)

	now := time.Now()
	tc.mu.Lock()
	tc.memory.set("stale", "v", now.Add(-2*time.Hour), now.Add(-time.Hour))
	tc.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tc.StartSweeper(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		tc.mu.Lock()
		defer tc.mu.Unlock()
		return tc.memory.len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestStartSweeperStopsWithContext(t *testing.T) {
	tc := newTestTiered(t)

	ctx, cancel := context.WithCancel(context.Background())
	tc.StartSweeper(ctx, 5*time.Millisecond)
	cancel()

	// A read after cancellation must not race a dead sweeper.
	tc.Set("k", "v")
	tc.pending.Wait()
	time.Sleep(20 * time.Millisecond)

	_, ok := tc.Get("k")
	assert.True(t, ok)
}

func TestTieredHitCount(t *testing.T) {
	tc := newTestTiered(t)

	tc.Set("k", "v")
	tc.Get("k")
	tc.Get("k")
	tc.Get("k")

	hits, ok := tc.HitCount("k")
	require.True(t, ok)
	assert.Equal(t, 3, hits)
}

func TestTieredTopPersistentKeys(t *testing.T) {
	tc := newTestTiered(t)

	tc.Set("hot", "1")
	tc.pending.Wait()
	tc.Set("hot", "1")
	tc.pending.Wait()
	tc.Set("cold", "2")
	tc.pending.Wait()

	stats, err := tc.TopPersistentKeys(1)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "hot", stats[0].Key)
	assert.Equal(t, 2, stats[0].SearchCount)
}

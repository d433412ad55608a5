package cache

import (
	"container/list"
	"strings"
	"time"
)

// Policy selects the memory-tier eviction strategy. The policy is fixed at
// construction time, not switchable per call.
type Policy string

const (
	// PolicyLRU evicts the least-recently-touched entry.
	PolicyLRU Policy = "LRU"
	// PolicyLFU evicts the entry with the smallest hit count.
	PolicyLFU Policy = "LFU"
)

// memEntry is one memory-tier cache entry.
type memEntry struct {
	key       string
	payload   string
	createdAt time.Time
	expiresAt time.Time
	hits      int
}

// memoryCache is the bounded in-process tier. Access order lives in a
// doubly-linked list (front = most recent) with a map index for O(1) touch
// and evict. Not safe for concurrent use; Tiered holds the lock.
type memoryCache struct {
	capacity int
	policy   Policy
	order    *list.List
	index    map[string]*list.Element
}

func newMemoryCache(capacity int, policy Policy) *memoryCache {
	if capacity <= 0 {
		capacity = DefaultMaxSize
	}
	if policy != PolicyLFU {
		policy = PolicyLRU
	}
	return &memoryCache{
		capacity: capacity,
		policy:   policy,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// get returns the payload for key. Expired entries are removed and treated
// as absent. A hit bumps the entry's hit count and recency.
func (m *memoryCache) get(key string, now time.Time) (string, bool) {
	elem, ok := m.index[key]
	if !ok {
		return "", false
	}
	entry := elem.Value.(*memEntry)
	if !entry.expiresAt.After(now) {
		m.remove(elem)
		return "", false
	}
	entry.hits++
	m.order.MoveToFront(elem)
	return entry.payload, true
}

// set inserts or replaces key. On overflow exactly one entry is evicted
// according to the policy before the insert. An overwrite starts a fresh
// entry lifetime, so the hit count resets.
func (m *memoryCache) set(key, payload string, now, expiresAt time.Time) {
	if elem, ok := m.index[key]; ok {
		entry := elem.Value.(*memEntry)
		entry.payload = payload
		entry.createdAt = now
		entry.expiresAt = expiresAt
		entry.hits = 0
		m.order.MoveToFront(elem)
		return
	}

	if m.order.Len() >= m.capacity {
		m.evict()
	}

	entry := &memEntry{
		key:       key,
		payload:   payload,
		createdAt: now,
		expiresAt: expiresAt,
	}
	m.index[key] = m.order.PushFront(entry)
}

func (m *memoryCache) evict() {
	switch m.policy {
	case PolicyLFU:
		var victim *list.Element
		minHits := -1
		for elem := m.order.Back(); elem != nil; elem = elem.Prev() {
			if hits := elem.Value.(*memEntry).hits; minHits < 0 || hits < minHits {
				minHits = hits
				victim = elem
			}
		}
		if victim != nil {
			m.remove(victim)
		}
	default:
		if back := m.order.Back(); back != nil {
			m.remove(back)
		}
	}
}

func (m *memoryCache) delete(key string) bool {
	elem, ok := m.index[key]
	if !ok {
		return false
	}
	m.remove(elem)
	return true
}

// deletePattern removes every key containing substr, returning the count.
func (m *memoryCache) deletePattern(substr string) int {
	removed := 0
	for key, elem := range m.index {
		if strings.Contains(key, substr) {
			m.remove(elem)
			removed++
		}
	}
	return removed
}

// cleanup removes entries with expiresAt at or before now.
func (m *memoryCache) cleanup(now time.Time) int {
	removed := 0
	for _, elem := range m.index {
		if !elem.Value.(*memEntry).expiresAt.After(now) {
			m.remove(elem)
			removed++
		}
	}
	return removed
}

func (m *memoryCache) clear() {
	m.order.Init()
	m.index = make(map[string]*list.Element)
}

func (m *memoryCache) len() int {
	return m.order.Len()
}

// hitCount reports the hit counter for key, for stats and tests.
func (m *memoryCache) hitCount(key string) (int, bool) {
	elem, ok := m.index[key]
	if !ok {
		return 0, false
	}
	return elem.Value.(*memEntry).hits, true
}

func (m *memoryCache) remove(elem *list.Element) {
	m.order.Remove(elem)
	delete(m.index, elem.Value.(*memEntry).key)
}

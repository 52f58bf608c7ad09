// Package cache implements the bounded-capacity payload cache with LRU eviction.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/assetflow/assetflow/pkg/types"
)

// Store is a thread-safe LRU cache of fetched payloads, bounded by a byte
// budget. The total size of all entries never exceeds the budget after any
// mutation.
type Store struct {
	mu          sync.RWMutex
	capacity    int64
	currentSize int64
	items       map[string]*cacheItem
	evictList   *list.List

	stats types.CacheStats
}

// cacheItem represents one cached payload.
type cacheItem struct {
	key            string
	data           []byte
	size           int64
	storedAt       time.Time
	lastAccessedAt time.Time
	compressed     bool
	element        *list.Element
}

// cacheEntry is the value stored in the eviction list element.
type cacheEntry struct {
	key string
}

// NewStore creates a payload cache with the given byte budget.
func NewStore(maxSize int64) *Store {
	return &Store{
		capacity:  maxSize,
		items:     make(map[string]*cacheItem),
		evictList: list.New(),
		stats: types.CacheStats{
			CapacityBytes: maxSize,
		},
	}
}

// Get retrieves a payload and refreshes its last-access time. The second
// return value reports whether the key was present.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[key]
	if !exists {
		s.stats.Misses++
		return nil, false
	}

	item.lastAccessedAt = time.Now()
	s.evictList.MoveToFront(item.element)

	s.stats.Hits++

	// Return a copy so callers cannot mutate the cached payload
	result := make([]byte, len(item.data))
	copy(result, item.data)
	return result, true
}

// Put stores a payload, evicting least-recently-accessed entries until the
// new entry fits. A payload larger than the whole budget is skipped; the
// cache is a performance optimization, never a correctness requirement.
func (s *Store) Put(key string, data []byte, compressed bool) bool {
	if len(data) == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	size := int64(len(data))
	if size > s.capacity {
		s.stats.OversizeSkips++
		return false
	}

	now := time.Now()

	if item, exists := s.items[key]; exists {
		s.currentSize -= item.size
		item.data = make([]byte, len(data))
		copy(item.data, data)
		item.size = size
		item.storedAt = now
		item.lastAccessedAt = now
		item.compressed = compressed
		s.currentSize += size
		s.evictList.MoveToFront(item.element)
		s.evictUntilFits()
		return true
	}

	// Make room before inserting so the budget holds at every step
	for s.currentSize+size > s.capacity && s.evictList.Len() > 0 {
		s.evictOldest()
	}

	newItem := &cacheItem{
		key:            key,
		data:           make([]byte, len(data)),
		size:           size,
		storedAt:       now,
		lastAccessedAt: now,
		compressed:     compressed,
	}
	copy(newItem.data, data)
	newItem.element = s.evictList.PushFront(&cacheEntry{key: key})

	s.items[key] = newItem
	s.currentSize += size
	return true
}

// Contains reports presence without refreshing recency or counting a hit.
func (s *Store) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.items[key]
	return exists
}

// Delete removes a single entry.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeItem(key)
}

// Size returns the current total payload size in bytes.
func (s *Store) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// Stats returns a snapshot of cache statistics.
func (s *Store) Stats() types.CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := s.stats
	stats.Entries = len(s.items)
	stats.SizeBytes = s.currentSize
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	if s.capacity > 0 {
		stats.Utilization = float64(s.currentSize) / float64(s.capacity)
	}
	return stats
}

// Clear removes all entries. Hit/miss counters are preserved; they reset
// only with the owning engine.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*cacheItem)
	s.evictList.Init()
	s.currentSize = 0
}

// Keys returns all cached keys (for debugging).
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.items))
	for key := range s.items {
		keys = append(keys, key)
	}
	return keys
}

// Resize changes the byte budget, evicting as needed.
func (s *Store) Resize(newCapacity int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.capacity = newCapacity
	s.stats.CapacityBytes = newCapacity
	s.evictUntilFits()
}

func (s *Store) evictUntilFits() {
	for s.currentSize > s.capacity && s.evictList.Len() > 0 {
		s.evictOldest()
	}
}

func (s *Store) evictOldest() {
	element := s.evictList.Back()
	if element == nil {
		return
	}
	entry := element.Value.(*cacheEntry)
	s.removeItem(entry.key)
	s.stats.Evictions++
}

func (s *Store) removeItem(key string) {
	item, exists := s.items[key]
	if !exists {
		return
	}
	if item.element != nil {
		s.evictList.Remove(item.element)
	}
	delete(s.items, key)
	s.currentSize -= item.size
}

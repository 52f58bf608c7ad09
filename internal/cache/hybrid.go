package cache

import (
	"github.com/assetflow/assetflow/pkg/types"
)

// Hybrid layers the in-memory store over a best-effort disk tier. The
// memory tier is authoritative for the byte-budget invariant and all
// statistics; the disk tier only widens the working set between eviction
// and re-fetch.
type Hybrid struct {
	memory *Store
	disk   *DiskTier
}

// NewHybrid creates a hybrid cache with the memory budget applied to the
// in-memory tier and a disk tier four times that size.
func NewHybrid(maxSize int64, directory string) (*Hybrid, error) {
	disk, err := NewDiskTier(directory, 4*maxSize)
	if err != nil {
		return nil, err
	}
	return &Hybrid{
		memory: NewStore(maxSize),
		disk:   disk,
	}, nil
}

// Get checks memory first, then the disk tier. A disk hit is promoted back
// into memory.
func (h *Hybrid) Get(key string) ([]byte, bool) {
	if data, ok := h.memory.Get(key); ok {
		return data, true
	}
	data, ok := h.disk.Get(key)
	if !ok {
		return nil, false
	}
	h.memory.Put(key, data, false)
	return data, true
}

// Put stores into both tiers.
func (h *Hybrid) Put(key string, data []byte, compressed bool) bool {
	stored := h.memory.Put(key, data, compressed)
	h.disk.Put(key, data)
	return stored
}

// Size reports the in-memory byte total; the disk tier is not counted
// against the configured budget.
func (h *Hybrid) Size() int64 {
	return h.memory.Size()
}

// Clear empties both tiers.
func (h *Hybrid) Clear() {
	h.memory.Clear()
	h.disk.Clear()
}

// Stats returns the memory tier's statistics.
func (h *Hybrid) Stats() types.CacheStats {
	return h.memory.Stats()
}

package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

// DiskTier is a disk-backed secondary payload store used by the hybrid
// cache strategy. Payloads are gzip-compressed on disk and tracked by a
// JSON index so the tier survives engine restarts within a process group.
type DiskTier struct {
	mu          sync.Mutex
	directory   string
	maxSize     int64
	currentSize int64
	index       map[string]*diskItem
}

// diskItem represents one payload on disk.
type diskItem struct {
	Key        string    `json:"key"`
	FilePath   string    `json:"file_path"`
	Size       int64     `json:"size"` // size on disk, after compression
	StoredAt   time.Time `json:"stored_at"`
	AccessTime time.Time `json:"access_time"`
}

const diskIndexFile = "assetflow-index.json"

// NewDiskTier creates the disk tier rooted at directory with the given
// on-disk byte budget, loading any existing index.
func NewDiskTier(directory string, maxSize int64) (*DiskTier, error) {
	if err := os.MkdirAll(directory, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	t := &DiskTier{
		directory: directory,
		maxSize:   maxSize,
		index:     make(map[string]*diskItem),
	}
	if err := t.loadIndex(); err != nil {
		// A corrupt index is not fatal; start fresh
		t.index = make(map[string]*diskItem)
		t.currentSize = 0
	}
	return t, nil
}

// Get reads and decompresses a payload from disk.
func (t *DiskTier) Get(key string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, exists := t.index[key]
	if !exists {
		return nil, false
	}

	f, err := os.Open(item.FilePath)
	if err != nil {
		t.removeLocked(key)
		return nil, false
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		t.removeLocked(key)
		return nil, false
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		t.removeLocked(key)
		return nil, false
	}

	item.AccessTime = time.Now()
	return data, true
}

// Put compresses and writes a payload, evicting least-recently-accessed
// files to stay within the on-disk budget. Failures are swallowed; the
// disk tier is best-effort.
func (t *DiskTier) Put(key string, data []byte) {
	if len(data) == 0 {
		return
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return
	}
	if err := zw.Close(); err != nil {
		return
	}
	compressed := buf.Bytes()
	size := int64(len(compressed))

	t.mu.Lock()
	defer t.mu.Unlock()

	if size > t.maxSize {
		return
	}

	if _, exists := t.index[key]; exists {
		t.removeLocked(key)
	}
	for t.currentSize+size > t.maxSize && len(t.index) > 0 {
		t.evictOldestLocked()
	}

	path := filepath.Join(t.directory, fmt.Sprintf("%x.gz", sha256.Sum256([]byte(key))))
	if err := os.WriteFile(path, compressed, 0600); err != nil {
		return
	}

	now := time.Now()
	t.index[key] = &diskItem{
		Key:        key,
		FilePath:   path,
		Size:       size,
		StoredAt:   now,
		AccessTime: now,
	}
	t.currentSize += size
	t.saveIndex()
}

// Clear removes all payload files and the index.
func (t *DiskTier) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key := range t.index {
		t.removeLocked(key)
	}
	t.saveIndex()
}

// Size returns the on-disk byte total.
func (t *DiskTier) Size() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentSize
}

func (t *DiskTier) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, item := range t.index {
		if oldestKey == "" || item.AccessTime.Before(oldest) {
			oldestKey = key
			oldest = item.AccessTime
		}
	}
	if oldestKey != "" {
		t.removeLocked(oldestKey)
	}
}

func (t *DiskTier) removeLocked(key string) {
	item, exists := t.index[key]
	if !exists {
		return
	}
	os.Remove(item.FilePath)
	delete(t.index, key)
	t.currentSize -= item.Size
}

func (t *DiskTier) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(t.directory, diskIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var items []*diskItem
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}

	for _, item := range items {
		if _, err := os.Stat(item.FilePath); err != nil {
			continue
		}
		t.index[item.Key] = item
		t.currentSize += item.Size
	}
	return nil
}

func (t *DiskTier) saveIndex() {
	items := make([]*diskItem, 0, len(t.index))
	for _, item := range t.index {
		items = append(items, item)
	}
	data, err := json.Marshal(items)
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(t.directory, diskIndexFile), data, 0600)
}

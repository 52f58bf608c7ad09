package types

import (
	"context"
	"net/http"
	"time"
)

// FetchResponse is the raw transport result of a single GET.
// Body holds the decoded payload bytes; ReceivedBytes counts the bytes as
// transferred on the wire (compressed when the transport compressed them).
type FetchResponse struct {
	StatusCode      int
	Body            []byte
	Header          http.Header
	ContentEncoding string
	ReceivedBytes   int64
	Latency         time.Duration
}

// HTTPClient abstracts the transport so the source router is testable and
// portable. Implementations must follow redirects and decode any transport
// compression before returning the body.
type HTTPClient interface {
	Get(ctx context.Context, url string, headers map[string]string) (*FetchResponse, error)
}

// FetchResult is a router-level fetch outcome, annotated with the tier the
// bytes were served from.
type FetchResult struct {
	Data            []byte
	Source          Source
	Endpoint        string
	ContentEncoding string
	ReceivedBytes   int64
	Latency         time.Duration
}

// Fetcher is the source router contract consumed by the retry controller
// and the loading scheduler.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// Cache defines the payload caching contract.
type Cache interface {
	// Get returns the payload and whether it was present. A hit refreshes
	// the entry's last-access time.
	Get(key string) ([]byte, bool)
	// Put stores the payload, evicting least-recently-accessed entries to
	// honor the byte budget. It reports whether the entry was stored;
	// oversize payloads are skipped without error.
	Put(key string, data []byte, compressed bool) bool
	Size() int64
	Clear()
	Stats() CacheStats
}

// MetricsObserver receives one observation per logical load, one per source
// attempt, plus cache and latency signals. Implementations must be safe for
// concurrent use.
type MetricsObserver interface {
	// RecordLoad counts one logical load with the tier that settled it.
	RecordLoad(source Source, duration time.Duration, size int64, success bool)
	// RecordAttempt counts one source attempt, successful or not, with the
	// tier it targeted. A logical load may produce several attempts.
	RecordAttempt(source Source, success bool)
	RecordError(code string)
	RecordCacheHit()
	RecordCacheMiss()
	RecordLatency(endpoint string, latency time.Duration)
}

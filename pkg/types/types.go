// Package types defines the shared data model for the asset delivery engine.
package types

import (
	"time"

	"github.com/assetflow/assetflow/pkg/errors"
)

// AssetType identifies the payload kind of an asset.
type AssetType string

const (
	AssetAudio AssetType = "audio"
	AssetMIDI  AssetType = "midi"
)

// AssetCategory groups assets by their role in the application.
type AssetCategory string

const (
	CategoryInstrument   AssetCategory = "instrument"
	CategoryPercussion   AssetCategory = "percussion"
	CategoryBackingTrack AssetCategory = "backing_track"
	CategorySequence     AssetCategory = "sequence"
)

// Priority orders assets by loading urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank returns a numeric rank for ordering; lower ranks load first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Source identifies where asset bytes were served from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceCDN      Source = "cdn"
	SourceFallback Source = "fallback"
	// SourceNone marks loads that failed before any tier served bytes.
	SourceNone Source = "none"
)

// DependencyType distinguishes hard ordering constraints from hints.
type DependencyType string

const (
	DependencyRequired DependencyType = "required"
	DependencyOptional DependencyType = "optional"
)

// AssetReference identifies a single remote asset. Identity is the
// canonical URL; references are immutable once created.
type AssetReference struct {
	URL      string        `json:"url" yaml:"url"`
	Category AssetCategory `json:"category" yaml:"category"`
	Priority Priority      `json:"priority" yaml:"priority"`
	Type     AssetType     `json:"type" yaml:"type"`
}

// DependencyEdge declares that an asset depends on one or more others.
type DependencyEdge struct {
	AssetURL       string         `json:"asset_url" yaml:"asset_url"`
	DependsOn      []string       `json:"depends_on" yaml:"depends_on"`
	DependencyType DependencyType `json:"dependency_type" yaml:"dependency_type"`
}

// LoadingGroup is a named, prioritized subset of a manifest's assets.
// Members of a parallel-loadable group have no edges to each other.
type LoadingGroup struct {
	ID                  string           `json:"id" yaml:"id"`
	Priority            int              `json:"priority" yaml:"priority"`
	Assets              []AssetReference `json:"assets" yaml:"assets"`
	ParallelLoadable    bool             `json:"parallel_loadable" yaml:"parallel_loadable"`
	RequiredForPlayback bool             `json:"required_for_playback" yaml:"required_for_playback"`
}

// OptimizationHint carries per-asset loading hints supplied by the catalog.
type OptimizationHint struct {
	PreferCompression bool  `json:"prefer_compression" yaml:"prefer_compression"`
	ExpectedSizeBytes int64 `json:"expected_size_bytes" yaml:"expected_size_bytes"`
}

// AssetManifest is the declarative description of a batch of assets to
// load. The dependency resolver validates it and annotates CriticalPath
// and the loading group order; it is read-only thereafter.
type AssetManifest struct {
	Assets            []AssetReference            `json:"assets" yaml:"assets"`
	TotalCount        int                         `json:"total_count" yaml:"total_count"`
	EstimatedLoadTime time.Duration               `json:"estimated_load_time" yaml:"estimated_load_time"`
	Dependencies      []DependencyEdge            `json:"dependencies" yaml:"dependencies"`
	LoadingGroups     []LoadingGroup              `json:"loading_groups" yaml:"loading_groups"`
	Optimizations     map[string]OptimizationHint `json:"optimizations,omitempty" yaml:"optimizations,omitempty"`
	TotalSizeBytes    int64                       `json:"total_size_bytes" yaml:"total_size_bytes"`
	CriticalPath      []string                    `json:"critical_path,omitempty" yaml:"critical_path,omitempty"`
}

// LoadResult is the outcome of one asset request. Created once per request
// and never mutated after return.
type LoadResult struct {
	URL             string             `json:"url"`
	Success         bool               `json:"success"`
	Data            []byte             `json:"-"`
	Source          Source             `json:"source"`
	LoadTime        time.Duration      `json:"load_time"`
	SizeBytes       int64              `json:"size_bytes,omitempty"`
	CompressionUsed bool               `json:"compression_used,omitempty"`
	Error           *errors.AssetError `json:"error,omitempty"`
}

// CacheStats represents cache performance statistics.
type CacheStats struct {
	Hits          uint64  `json:"hits"`
	Misses        uint64  `json:"misses"`
	Evictions     uint64  `json:"evictions"`
	OversizeSkips uint64  `json:"oversize_skips"`
	Entries       int     `json:"entries"`
	SizeBytes     int64   `json:"size_bytes"`
	CapacityBytes int64   `json:"capacity_bytes"`
	HitRate       float64 `json:"hit_rate"`
	Utilization   float64 `json:"utilization"`
}

// PerformanceMetrics is a lifetime snapshot of the engine's load activity.
type PerformanceMetrics struct {
	TotalLoads      uint64                      `json:"total_loads"`
	SuccessfulLoads uint64                      `json:"successful_loads"`
	FailedLoads     uint64                      `json:"failed_loads"`
	TotalAttempts   uint64                      `json:"total_attempts"`
	FailedAttempts  uint64                      `json:"failed_attempts"`
	AverageLoadTime time.Duration               `json:"average_load_time"`
	TotalBytes      int64                       `json:"total_bytes"`
	CacheHits       uint64                      `json:"cache_hits"`
	CacheMisses     uint64                      `json:"cache_misses"`
	CacheHitRate    float64                     `json:"cache_hit_rate"`
	AverageLatency  time.Duration               `json:"average_latency"`
	ErrorCounts     map[errors.ErrorCode]uint64 `json:"error_counts"`
	LoadsBySource   map[Source]uint64           `json:"loads_by_source"`
	MeasuredSince   time.Time                   `json:"measured_since"`
}

// LoadingMetrics is the running progress of a manifest batch.
type LoadingMetrics struct {
	TotalAssets  int           `json:"total_assets"`
	LoadedAssets int           `json:"loaded_assets"`
	FailedAssets int           `json:"failed_assets"`
	BytesLoaded  int64         `json:"bytes_loaded"`
	LoadingSpeed float64       `json:"loading_speed"` // bytes per second over the batch
	Elapsed      time.Duration `json:"elapsed"`
}

// CompressionStats tracks transport compression observations.
type CompressionStats struct {
	CompressedResponses   uint64  `json:"compressed_responses"`
	UncompressedResponses uint64  `json:"uncompressed_responses"`
	AverageRatio          float64 `json:"average_ratio"` // original / compressed
	BytesSaved            int64   `json:"bytes_saved"`
}

// EndpointHealth is a read-only snapshot of one CDN endpoint's state.
type EndpointHealth struct {
	Name                string        `json:"name"`
	BaseURL             string        `json:"base_url"`
	Healthy             bool          `json:"healthy"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	TotalSuccesses      uint64        `json:"total_successes"`
	TotalFailures       uint64        `json:"total_failures"`
	LastSuccess         time.Time     `json:"last_success,omitempty"`
	LastFailure         time.Time     `json:"last_failure,omitempty"`
	ObservedLatency     time.Duration `json:"observed_latency"`
}

// ManifestReport is the outcome of a whole-manifest load.
type ManifestReport struct {
	Successful   []*LoadResult  `json:"successful"`
	Failed       []*LoadResult  `json:"failed"`
	Progress     LoadingMetrics `json:"progress"`
	LoadingOrder []string       `json:"loading_order"`
}

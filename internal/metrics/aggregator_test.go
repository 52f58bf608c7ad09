package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/assetflow/assetflow/internal/config"
	"github.com/assetflow/assetflow/pkg/errors"
	"github.com/assetflow/assetflow/pkg/types"
)

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	a, err := NewAggregator(config.MetricsConfig{
		Enabled:   true,
		Namespace: "assetflow_test",
	})
	if err != nil {
		t.Fatalf("NewAggregator failed: %v", err)
	}
	return a
}

func TestRecordLoad(t *testing.T) {
	a := newTestAggregator(t)

	a.RecordLoad(types.SourceCDN, 100*time.Millisecond, 1000, true)
	a.RecordLoad(types.SourceCDN, 300*time.Millisecond, 2000, true)
	a.RecordLoad(types.SourceCDN, 200*time.Millisecond, 0, false)

	m := a.Snapshot()
	if m.TotalLoads != 3 {
		t.Errorf("TotalLoads = %d, want 3", m.TotalLoads)
	}
	if m.SuccessfulLoads != 2 {
		t.Errorf("SuccessfulLoads = %d, want 2", m.SuccessfulLoads)
	}
	if m.FailedLoads != 1 {
		t.Errorf("FailedLoads = %d, want 1", m.FailedLoads)
	}
	if m.TotalBytes != 3000 {
		t.Errorf("TotalBytes = %d, want 3000", m.TotalBytes)
	}
	if m.AverageLoadTime != 200*time.Millisecond {
		t.Errorf("AverageLoadTime = %v, want 200ms", m.AverageLoadTime)
	}
	if m.LoadsBySource[types.SourceCDN] != 3 {
		t.Errorf("LoadsBySource[cdn] = %d", m.LoadsBySource[types.SourceCDN])
	}
}

func TestRecordAttempt(t *testing.T) {
	a := newTestAggregator(t)

	a.RecordAttempt(types.SourceCDN, false)
	a.RecordAttempt(types.SourceCDN, true)
	a.RecordAttempt(types.SourceFallback, true)

	m := a.Snapshot()
	if m.TotalAttempts != 3 {
		t.Errorf("TotalAttempts = %d, want 3", m.TotalAttempts)
	}
	if m.FailedAttempts != 1 {
		t.Errorf("FailedAttempts = %d, want 1", m.FailedAttempts)
	}
	// Attempts are tracked apart from logical loads
	if m.TotalLoads != 0 {
		t.Errorf("TotalLoads = %d, want 0", m.TotalLoads)
	}

	a.Reset()
	if got := a.Snapshot(); got.TotalAttempts != 0 || got.FailedAttempts != 0 {
		t.Error("Reset must clear attempt counters")
	}
}

func TestRecordCacheHitRate(t *testing.T) {
	a := newTestAggregator(t)

	a.RecordCacheHit()
	a.RecordCacheHit()
	a.RecordCacheHit()
	a.RecordCacheMiss()

	m := a.Snapshot()
	if m.CacheHits != 3 || m.CacheMisses != 1 {
		t.Errorf("hits=%d misses=%d", m.CacheHits, m.CacheMisses)
	}
	if m.CacheHitRate != 0.75 {
		t.Errorf("CacheHitRate = %v, want 0.75", m.CacheHitRate)
	}
}

func TestRecordError(t *testing.T) {
	a := newTestAggregator(t)

	a.RecordError(string(errors.ErrCodeTimeout))
	a.RecordError(string(errors.ErrCodeTimeout))
	a.RecordError(string(errors.ErrCodeAllSourcesFailed))

	m := a.Snapshot()
	if m.ErrorCounts[errors.ErrCodeTimeout] != 2 {
		t.Errorf("TIMEOUT count = %d, want 2", m.ErrorCounts[errors.ErrCodeTimeout])
	}
	if m.ErrorCounts[errors.ErrCodeAllSourcesFailed] != 1 {
		t.Errorf("ALL_SOURCES_FAILED count = %d", m.ErrorCounts[errors.ErrCodeAllSourcesFailed])
	}
	// Codes with no occurrences are still present in the snapshot
	if _, ok := m.ErrorCounts[errors.ErrCodeDependencyCycle]; !ok {
		t.Error("Snapshot must carry the full code set")
	}
}

func TestRecordLatency(t *testing.T) {
	a := newTestAggregator(t)

	a.RecordLatency("primary", 10*time.Millisecond)
	a.RecordLatency("primary", 30*time.Millisecond)

	m := a.Snapshot()
	if m.AverageLatency != 20*time.Millisecond {
		t.Errorf("AverageLatency = %v, want 20ms", m.AverageLatency)
	}
}

func TestDisabledAggregatorDropsObservations(t *testing.T) {
	a, err := NewAggregator(config.MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}

	a.RecordLoad(types.SourceCDN, time.Millisecond, 100, true)
	a.RecordAttempt(types.SourceCDN, true)
	a.RecordCacheHit()
	a.RecordError(string(errors.ErrCodeTimeout))
	a.RecordLatency("primary", time.Millisecond)
	a.UpdateCacheSize(100)

	m := a.Snapshot()
	if m.TotalLoads != 0 || m.TotalAttempts != 0 || m.CacheHits != 0 {
		t.Error("Disabled aggregator must drop observations")
	}
}

func TestReset(t *testing.T) {
	a := newTestAggregator(t)

	a.RecordLoad(types.SourceCache, time.Millisecond, 100, true)
	a.RecordCacheHit()
	a.RecordError(string(errors.ErrCodeTimeout))

	before := a.Snapshot().MeasuredSince
	a.Reset()

	m := a.Snapshot()
	if m.TotalLoads != 0 || m.CacheHits != 0 {
		t.Error("Reset must clear counters")
	}
	if m.ErrorCounts[errors.ErrCodeTimeout] != 0 {
		t.Error("Reset must clear error counts")
	}
	if !m.MeasuredSince.After(before) && !m.MeasuredSince.Equal(before) {
		t.Error("Reset must refresh the measurement window")
	}
}

func TestStopWithoutServer(t *testing.T) {
	a := newTestAggregator(t)
	if err := a.Stop(context.Background()); err != nil {
		t.Errorf("Stop without a server must be a no-op: %v", err)
	}
}

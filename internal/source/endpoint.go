// Package source routes asset fetches across CDN endpoints and the
// fallback storage tier, tracking per-endpoint health.
package source

import (
	"sort"
	"sync"
	"time"

	"github.com/assetflow/assetflow/internal/config"
	"github.com/assetflow/assetflow/pkg/types"
)

// latencyAlpha is the EWMA smoothing factor for observed endpoint latency.
const latencyAlpha = 0.3

// endpointState pairs an endpoint's configuration with its health counters.
// An endpoint is unhealthy after more than failureThreshold consecutive
// failures and stays so until a probe attempt succeeds again.
type endpointState struct {
	mu sync.Mutex

	cfg              config.EndpointConfig
	failureThreshold int

	consecutiveFailures int
	totalSuccesses      uint64
	totalFailures       uint64
	lastSuccess         time.Time
	lastFailure         time.Time
	latencyEWMA         time.Duration
}

func newEndpointState(cfg config.EndpointConfig, failureThreshold int) *endpointState {
	return &endpointState{cfg: cfg, failureThreshold: failureThreshold}
}

func (e *endpointState) healthy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.consecutiveFailures <= e.failureThreshold
}

// slow reports whether the endpoint's observed latency exceeds its
// configured threshold. Endpoints without samples are never slow.
func (e *endpointState) slow() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.LatencyThreshold > 0 &&
		e.latencyEWMA > 0 &&
		e.latencyEWMA > e.cfg.LatencyThreshold
}

func (e *endpointState) onSuccess(latency time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.consecutiveFailures = 0
	e.totalSuccesses++
	e.lastSuccess = time.Now()
	e.observeLatencyLocked(latency)
}

func (e *endpointState) onFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.consecutiveFailures++
	e.totalFailures++
	e.lastFailure = time.Now()
}

func (e *endpointState) observeLatencyLocked(latency time.Duration) {
	if latency <= 0 {
		return
	}
	if e.latencyEWMA == 0 {
		e.latencyEWMA = latency
		return
	}
	e.latencyEWMA = time.Duration(latencyAlpha*float64(latency) + (1-latencyAlpha)*float64(e.latencyEWMA))
}

func (e *endpointState) snapshot() types.EndpointHealth {
	e.mu.Lock()
	defer e.mu.Unlock()

	return types.EndpointHealth{
		Name:                e.cfg.Name,
		BaseURL:             e.cfg.BaseURL,
		Healthy:             e.consecutiveFailures <= e.failureThreshold,
		ConsecutiveFailures: e.consecutiveFailures,
		TotalSuccesses:      e.totalSuccesses,
		TotalFailures:       e.totalFailures,
		LastSuccess:         e.lastSuccess,
		LastFailure:         e.lastFailure,
		ObservedLatency:     e.latencyEWMA,
	}
}

// selectEndpoints orders endpoints by ascending priority and filters them
// to the active regions. Endpoints without a region list serve everywhere.
func selectEndpoints(endpoints []config.EndpointConfig, activeRegions []string, failureThreshold int) []*endpointState {
	active := make(map[string]bool, len(activeRegions))
	for _, r := range activeRegions {
		active[r] = true
	}

	var states []*endpointState
	for _, cfg := range endpoints {
		if len(activeRegions) > 0 && len(cfg.Regions) > 0 {
			match := false
			for _, r := range cfg.Regions {
				if active[r] {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		states = append(states, newEndpointState(cfg, failureThreshold))
	}

	sort.SliceStable(states, func(i, j int) bool {
		return states[i].cfg.Priority < states[j].cfg.Priority
	})
	return states
}

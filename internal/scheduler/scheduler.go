// Package scheduler dispatches manifest loading plans through a bounded worker pool.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/assetflow/assetflow/internal/manifest"
	"github.com/assetflow/assetflow/pkg/errors"
	"github.com/assetflow/assetflow/pkg/types"
)

// LoadFunc performs one asset load end to end (cache lookup, routed fetch,
// cache population, metrics). It never returns nil.
type LoadFunc func(ctx context.Context, ref types.AssetReference) *types.LoadResult

// Scheduler bounds the number of concurrent in-flight fetches and orders
// work by priority and dependency. Critical-path assets dispatch first;
// groups dispatch in resolver order; members of a parallel-loadable group
// fan out up to the pool size; members of a sequential group gate on their
// predecessor so fetches stay in resolved order. Dispatch itself never
// blocks, so a required dependency living in a later group still resolves.
type Scheduler struct {
	concurrency int
	loader      LoadFunc
	logger      *log.Logger
	metrics     types.MetricsObserver

	mu       sync.Mutex
	progress types.LoadingMetrics
}

// New creates a scheduler with the given pool size.
func New(concurrency int, loader LoadFunc, logger *log.Logger) *Scheduler {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Scheduler{
		concurrency: concurrency,
		loader:      loader,
		logger:      logger,
	}
}

// SetMetrics attaches the observer that receives results the scheduler
// settles without invoking the loader (dependency failures, cancellations).
func (s *Scheduler) SetMetrics(m types.MetricsObserver) {
	s.metrics = m
}

// Progress returns the running progress of the current (or most recent)
// batch.
func (s *Scheduler) Progress() types.LoadingMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Run executes a loading plan and aggregates the results. A single asset's
// failure never aborts the batch; only assets whose required dependency
// failed are marked failed without being attempted.
func (s *Scheduler) Run(ctx context.Context, plan *manifest.Plan) *types.ManifestReport {
	b := &batch{
		scheduler:  s,
		plan:       plan,
		sem:        make(chan struct{}, s.concurrency),
		results:    make(map[string]*types.LoadResult, plan.TotalAssets),
		done:       make(map[string]chan struct{}, plan.TotalAssets),
		orderAfter: make(map[string]string),
		started:    time.Now(),
	}

	var order []string
	refs := make(map[string]types.AssetReference, plan.TotalAssets)
	for _, g := range plan.Groups {
		for _, ref := range g.Assets {
			if _, seen := refs[ref.URL]; seen {
				continue
			}
			refs[ref.URL] = ref
			b.done[ref.URL] = make(chan struct{})
		}
	}

	// Sequential groups are enforced with ordering gates: each member waits
	// on its predecessor's done channel before fetching. Gates that would
	// close a cycle with a dependency edge are skipped; dependency order
	// wins when both cannot hold.
	waits := make(map[string][]string, len(refs))
	for url, deps := range plan.RequiredDeps {
		waits[url] = append(waits[url], deps...)
	}
	for _, g := range plan.Groups {
		if g.ParallelLoadable {
			continue
		}
		prev := ""
		for _, ref := range g.Assets {
			if prev != "" && prev != ref.URL {
				if _, gated := b.orderAfter[ref.URL]; !gated && !reaches(waits, prev, ref.URL) {
					b.orderAfter[ref.URL] = prev
					waits[ref.URL] = append(waits[ref.URL], prev)
				}
			}
			prev = ref.URL
		}
	}

	s.mu.Lock()
	s.progress = types.LoadingMetrics{TotalAssets: len(refs)}
	s.mu.Unlock()

	var wg sync.WaitGroup
	dispatched := make(map[string]bool, len(refs))
	dispatch := func(url string) {
		if dispatched[url] {
			return
		}
		dispatched[url] = true
		order = append(order, url)

		ref := refs[url]
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.runAsset(ctx, ref)
		}()
	}

	// Critical path first, regardless of group order. The chain elements
	// depend on each other, so ordering falls out of dependency gating.
	for _, url := range plan.CriticalPath {
		if _, ok := refs[url]; ok {
			dispatch(url)
		}
	}

	for _, g := range plan.Groups {
		for _, ref := range g.Assets {
			dispatch(ref.URL)
		}
	}

	wg.Wait()

	report := &types.ManifestReport{LoadingOrder: order}
	for _, url := range order {
		res := b.results[url]
		if res == nil {
			continue
		}
		if res.Success {
			report.Successful = append(report.Successful, res)
		} else {
			report.Failed = append(report.Failed, res)
		}
	}
	report.Progress = s.Progress()
	return report
}

// reaches reports whether `to` is reachable from `from` over wait edges.
func reaches(waits map[string][]string, from, to string) bool {
	if from == to {
		return true
	}
	seen := make(map[string]bool)
	stack := []string{from}
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if u == to {
			return true
		}
		if seen[u] {
			continue
		}
		seen[u] = true
		stack = append(stack, waits[u]...)
	}
	return false
}

// batch holds the shared state of one Run.
type batch struct {
	scheduler  *Scheduler
	plan       *manifest.Plan
	sem        chan struct{}
	orderAfter map[string]string // sequential-group predecessor, read-only after Run builds it
	started    time.Time

	mu      sync.Mutex
	results map[string]*types.LoadResult
	done    map[string]chan struct{}
}

// runAsset gates on the ordering predecessor and required dependencies,
// then performs the load inside a worker-pool slot.
func (b *batch) runAsset(ctx context.Context, ref types.AssetReference) {
	if prev, ok := b.orderAfter[ref.URL]; ok {
		if ch, tracked := b.doneChannel(prev); tracked {
			select {
			case <-ch:
				// predecessor settled; its failure does not propagate
			case <-ctx.Done():
				b.fail(ref.URL, canceledResult(ref.URL))
				return
			}
		}
	}

	for _, dep := range b.plan.RequiredDeps[ref.URL] {
		ch, tracked := b.doneChannel(dep)
		if !tracked {
			continue
		}
		select {
		case <-ch:
		case <-ctx.Done():
			b.fail(ref.URL, canceledResult(ref.URL))
			return
		}
		if b.depFailed(dep) {
			b.scheduler.logger.Debug("skipping asset, required dependency failed",
				"url", ref.URL, "dependency", dep)
			err := errors.NewError(errors.ErrCodeDependencyFailed,
				"required dependency failed: "+dep).WithURL(ref.URL)
			b.fail(ref.URL, &types.LoadResult{URL: ref.URL, Success: false, Error: err})
			return
		}
	}

	select {
	case b.sem <- struct{}{}:
	case <-ctx.Done():
		b.fail(ref.URL, canceledResult(ref.URL))
		return
	}
	defer func() { <-b.sem }()

	b.complete(ref.URL, b.scheduler.loader(ctx, ref))
}

// fail settles an asset the loader never saw, keeping the metrics view in
// step with the batch report.
func (b *batch) fail(url string, res *types.LoadResult) {
	if m := b.scheduler.metrics; m != nil {
		m.RecordLoad(types.SourceNone, 0, 0, false)
		if res.Error != nil {
			m.RecordError(string(res.Error.Code))
		}
	}
	b.complete(url, res)
}

func (b *batch) doneChannel(url string) (chan struct{}, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.done[url]
	return ch, ok
}

func (b *batch) depFailed(url string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	res, ok := b.results[url]
	return ok && !res.Success
}

// complete records the result, releases dependents, and updates progress.
func (b *batch) complete(url string, res *types.LoadResult) {
	b.mu.Lock()
	b.results[url] = res
	if ch, ok := b.done[url]; ok {
		close(ch)
	}
	b.mu.Unlock()

	s := b.scheduler
	s.mu.Lock()
	if res.Success {
		s.progress.LoadedAssets++
		s.progress.BytesLoaded += res.SizeBytes
	} else {
		s.progress.FailedAssets++
	}
	s.progress.Elapsed = time.Since(b.started)
	if secs := s.progress.Elapsed.Seconds(); secs > 0 {
		s.progress.LoadingSpeed = float64(s.progress.BytesLoaded) / secs
	}
	s.mu.Unlock()
}

func canceledResult(url string) *types.LoadResult {
	return &types.LoadResult{
		URL:     url,
		Success: false,
		Error: errors.NewError(errors.ErrCodeOperationCanceled, "load canceled").
			WithURL(url),
	}
}

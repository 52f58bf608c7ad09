// Package manifest validates asset manifests and produces ordered loading plans.
package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/assetflow/assetflow/pkg/errors"
	"github.com/assetflow/assetflow/pkg/types"
)

// Plan is the validated, ordered loading plan produced from a manifest.
// Groups are ordered by ascending priority; members of non-parallel groups
// are in dependency order with manifest input order breaking ties.
type Plan struct {
	Groups       []types.LoadingGroup
	CriticalPath []string
	// RequiredDeps maps each asset URL to the URLs it hard-depends on.
	RequiredDeps map[string][]string
	TotalAssets  int
}

// Resolver turns a declarative manifest into a loading plan.
type Resolver struct{}

// NewResolver creates a resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve validates the manifest and computes the plan. Structural errors
// (missing dependency targets, cycles) fail the whole manifest before any
// fetch is attempted.
func (r *Resolver) Resolve(m *types.AssetManifest) (*Plan, error) {
	inputOrder := make(map[string]int, len(m.Assets))
	for i, ref := range m.Assets {
		if _, dup := inputOrder[ref.URL]; !dup {
			inputOrder[ref.URL] = i
		}
	}

	requiredDeps, allDeps, err := buildDependencyMaps(m, inputOrder)
	if err != nil {
		return nil, err
	}

	if cycle := findCycle(inputOrder, allDeps); cycle != nil {
		return nil, errors.NewError(errors.ErrCodeDependencyCycle,
			fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")))
	}

	groups := orderGroups(m, inputOrder, allDeps)
	critical := criticalPath(groups, requiredDeps, inputOrder)

	return &Plan{
		Groups:       groups,
		CriticalPath: critical,
		RequiredDeps: requiredDeps,
		TotalAssets:  countAssets(groups),
	}, nil
}

// buildDependencyMaps validates edges and splits them into required-only
// and all-dependency adjacency maps keyed by asset URL.
func buildDependencyMaps(m *types.AssetManifest, inputOrder map[string]int) (required, all map[string][]string, err error) {
	required = make(map[string][]string)
	all = make(map[string][]string)

	for _, edge := range m.Dependencies {
		if _, ok := inputOrder[edge.AssetURL]; !ok {
			return nil, nil, errors.NewError(errors.ErrCodeDependencyMissing,
				fmt.Sprintf("dependency edge references unknown asset %q", edge.AssetURL))
		}
		for _, dep := range edge.DependsOn {
			if _, ok := inputOrder[dep]; !ok {
				return nil, nil, errors.NewError(errors.ErrCodeDependencyMissing,
					fmt.Sprintf("asset %q depends on unknown asset %q", edge.AssetURL, dep))
			}
			all[edge.AssetURL] = append(all[edge.AssetURL], dep)
			if edge.DependencyType != types.DependencyOptional {
				required[edge.AssetURL] = append(required[edge.AssetURL], dep)
			}
		}
	}
	return required, all, nil
}

// findCycle runs a depth-first search over the dependency graph and
// returns the URLs forming a cycle, or nil when the graph is acyclic.
// Nodes are visited in manifest input order for deterministic reporting.
func findCycle(inputOrder map[string]int, deps map[string][]string) []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // done
	)

	color := make(map[string]int, len(inputOrder))
	var stack []string
	var cycle []string

	var visit func(u string) bool
	visit = func(u string) bool {
		color[u] = gray
		stack = append(stack, u)
		for _, dep := range deps[u] {
			switch color[dep] {
			case gray:
				// Slice the cycle out of the current path
				for i, v := range stack {
					if v == dep {
						cycle = append(append([]string{}, stack[i:]...), dep)
						return true
					}
				}
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[u] = black
		return false
	}

	urls := make([]string, 0, len(inputOrder))
	for u := range inputOrder {
		urls = append(urls, u)
	}
	sort.Slice(urls, func(i, j int) bool { return inputOrder[urls[i]] < inputOrder[urls[j]] })

	for _, u := range urls {
		if color[u] == white {
			if visit(u) {
				return cycle
			}
		}
	}
	return nil
}

// orderGroups sorts loading groups by ascending priority and puts members
// of non-parallel groups into dependency order. A manifest without groups
// gets a single parallel group holding every asset.
func orderGroups(m *types.AssetManifest, inputOrder map[string]int, deps map[string][]string) []types.LoadingGroup {
	groups := make([]types.LoadingGroup, len(m.LoadingGroups))
	copy(groups, m.LoadingGroups)

	if len(groups) == 0 && len(m.Assets) > 0 {
		groups = []types.LoadingGroup{{
			ID:               "default",
			Priority:         0,
			Assets:           m.Assets,
			ParallelLoadable: true,
		}}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Priority < groups[j].Priority
	})

	for i := range groups {
		if !groups[i].ParallelLoadable {
			groups[i].Assets = topoSort(groups[i].Assets, inputOrder, deps)
		}
	}
	return groups
}

// topoSort orders group members so dependencies come before dependents,
// breaking ties by manifest input order. Only edges between members of the
// group constrain the order; the caller has already rejected cycles.
func topoSort(assets []types.AssetReference, inputOrder map[string]int, deps map[string][]string) []types.AssetReference {
	member := make(map[string]types.AssetReference, len(assets))
	indegree := make(map[string]int, len(assets))
	for _, ref := range assets {
		member[ref.URL] = ref
		indegree[ref.URL] = 0
	}
	dependents := make(map[string][]string)
	for _, ref := range assets {
		for _, dep := range deps[ref.URL] {
			if _, ok := member[dep]; ok {
				indegree[ref.URL]++
				dependents[dep] = append(dependents[dep], ref.URL)
			}
		}
	}

	var ready []string
	for url, deg := range indegree {
		if deg == 0 {
			ready = append(ready, url)
		}
	}

	ordered := make([]types.AssetReference, 0, len(assets))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return inputOrder[ready[i]] < inputOrder[ready[j]] })
		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, member[next])
		for _, dependent := range dependents[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}
	return ordered
}

// criticalPath computes the longest required-dependency chain ending at an
// asset in a required-for-playback group. Those assets are dispatched
// before anything else.
func criticalPath(groups []types.LoadingGroup, requiredDeps map[string][]string, inputOrder map[string]int) []string {
	playback := make(map[string]bool)
	for _, g := range groups {
		if g.RequiredForPlayback {
			for _, ref := range g.Assets {
				playback[ref.URL] = true
			}
		}
	}
	if len(playback) == 0 {
		return nil
	}

	type chain struct {
		length int
		parent string
	}
	memo := make(map[string]chain)

	var longest func(u string) int
	longest = func(u string) int {
		if c, ok := memo[u]; ok {
			return c.length
		}
		best := chain{length: 1}
		for _, dep := range requiredDeps[u] {
			if l := longest(dep) + 1; l > best.length ||
				(l == best.length && best.parent != "" && inputOrder[dep] < inputOrder[best.parent]) {
				best = chain{length: l, parent: dep}
			}
		}
		memo[u] = best
		return best.length
	}

	var endURL string
	bestLen := 0
	ends := make([]string, 0, len(playback))
	for u := range playback {
		ends = append(ends, u)
	}
	sort.Slice(ends, func(i, j int) bool { return inputOrder[ends[i]] < inputOrder[ends[j]] })
	for _, u := range ends {
		if l := longest(u); l > bestLen {
			bestLen = l
			endURL = u
		}
	}
	if endURL == "" {
		return nil
	}

	// Walk parents back to the chain root, then reverse
	var reversed []string
	for u := endURL; u != ""; u = memo[u].parent {
		reversed = append(reversed, u)
	}
	path := make([]string, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, reversed[i])
	}
	return path
}

func countAssets(groups []types.LoadingGroup) int {
	seen := make(map[string]bool)
	for _, g := range groups {
		for _, ref := range g.Assets {
			seen[ref.URL] = true
		}
	}
	return len(seen)
}

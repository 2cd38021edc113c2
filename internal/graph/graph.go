package graph

import (
	"sort"
	"sync"
)

// DependencyGraph tracks which fields must be re-validated when another
// field's value changes. Fields declare the keys they depend on; the graph
// stores the inverse relation (dependency -> dependents) so change
// propagation is a forward walk.
//
// Cycles are permitted. Traversal is visited-set bounded, so a cycle never
// causes an infinite walk; the batch coordinator additionally guarantees
// each field validates at most once per batch.
type DependencyGraph struct {
	mu sync.RWMutex

	// dependents[a] is the set of fields that declared a dependency on a.
	dependents map[string]map[string]struct{}
	// dependsOn[b] is the set of keys field b declared, kept so edges can
	// be removed when b is unregistered or re-registered.
	dependsOn map[string][]string

	// cache holds computed transitive dependent sets. It is invalidated
	// wholesale on any mutation.
	cache map[string][]string
}

// New creates an empty DependencyGraph.
func New() *DependencyGraph {
	return &DependencyGraph{
		dependents: make(map[string]map[string]struct{}),
		dependsOn:  make(map[string][]string),
		cache:      make(map[string][]string),
	}
}

// AddField records the dependency declarations of a field, replacing any
// edges from a previous registration of the same key. Declared dependencies
// need not be registered fields themselves; edges to unknown keys are inert
// until such a field appears.
func (g *DependencyGraph) AddField(key string, dependsOn []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.removeEdgesLocked(key)

	if len(dependsOn) > 0 {
		declared := make([]string, 0, len(dependsOn))
		for _, dep := range dependsOn {
			if dep == key {
				continue
			}
			declared = append(declared, dep)
			set, ok := g.dependents[dep]
			if !ok {
				set = make(map[string]struct{})
				g.dependents[dep] = set
			}
			set[key] = struct{}{}
		}
		g.dependsOn[key] = declared
	}

	g.invalidateLocked()
}

// RemoveField deletes the field's declared edges. Edges other fields
// declared onto this key remain; they become inert until a field with the
// same key is registered again.
func (g *DependencyGraph) RemoveField(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeEdgesLocked(key)
	g.invalidateLocked()
}

// removeEdgesLocked drops the outgoing declarations of key from the inverse
// index. Caller holds g.mu.
func (g *DependencyGraph) removeEdgesLocked(key string) {
	for _, dep := range g.dependsOn[key] {
		if set, ok := g.dependents[dep]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(g.dependents, dep)
			}
		}
	}
	delete(g.dependsOn, key)
}

// Dependents returns the direct dependents of key in sorted order.
func (g *DependencyGraph) Dependents(key string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	set := g.dependents[key]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// TransitiveDependents returns every field reachable from key through
// dependent edges, excluding key itself, in sorted order. Results are
// cached until the next mutation.
func (g *DependencyGraph) TransitiveDependents(key string) []string {
	g.mu.RLock()
	if cached, ok := g.cache[key]; ok {
		g.mu.RUnlock()
		return cached
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	if cached, ok := g.cache[key]; ok {
		return cached
	}

	visited := map[string]struct{}{key: {}}
	queue := []string{key}
	var out []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for dependent := range g.dependents[current] {
			if _, seen := visited[dependent]; seen {
				continue
			}
			visited[dependent] = struct{}{}
			out = append(out, dependent)
			queue = append(queue, dependent)
		}
	}
	sort.Strings(out)

	g.cache[key] = out
	return out
}

// invalidateLocked clears the traversal cache. Caller holds g.mu.
func (g *DependencyGraph) invalidateLocked() {
	if len(g.cache) > 0 {
		g.cache = make(map[string][]string)
	}
}

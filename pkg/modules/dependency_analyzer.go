package modules

import (
	"fmt"
	"sort"
	"sync"
)

// DependencyGraph records the import edges the loader has seen, keyed by
// resolved path. The engine links cycles on its own; the graph only serves
// diagnostics.
type DependencyGraph struct {
	discovered map[string]bool     // Modules seen as importer or imported
	depGraph   map[string][]string // Module → dependencies, in request order
	depCounts  map[string]int      // Module → import count
	mutex      sync.RWMutex
}

// GraphStats contains statistics about the import graph
type GraphStats struct {
	TotalModules      int      // Modules discovered
	TotalDependencies int      // Distinct import edges
	MaxDepth          int      // Longest acyclic import chain
	CircularDeps      []string // Modules that sit on an import cycle
}

// NewDependencyGraph creates an empty graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		discovered: make(map[string]bool),
		depGraph:   make(map[string][]string),
		depCounts:  make(map[string]int),
	}
}

// AddModule marks a module as discovered
func (g *DependencyGraph) AddModule(path string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.discovered[path] = true
}

// AddDependency records that from imports to. Repeated edges are counted
// once.
func (g *DependencyGraph) AddDependency(from, to string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.discovered[from] = true
	g.discovered[to] = true
	for _, dep := range g.depGraph[from] {
		if dep == to {
			return
		}
	}
	g.depGraph[from] = append(g.depGraph[from], to)
	g.depCounts[to]++
}

// Dependencies returns the modules path imports
func (g *DependencyGraph) Dependencies(path string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	return append([]string(nil), g.depGraph[path]...)
}

// Dependents returns the modules that import path, sorted
func (g *DependencyGraph) Dependents(path string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var dependents []string
	for from, deps := range g.depGraph {
		for _, dep := range deps {
			if dep == path {
				dependents = append(dependents, from)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}

// ImportCount returns how many distinct modules import path
func (g *DependencyGraph) ImportCount(path string) int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	return g.depCounts[path]
}

// Depth returns the length of the longest acyclic import chain below path
func (g *DependencyGraph) Depth(path string) int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	return g.depth(path, make(map[string]bool), make(map[string]int))
}

func (g *DependencyGraph) depth(path string, onPath map[string]bool, memo map[string]int) int {
	if d, ok := memo[path]; ok {
		return d
	}
	onPath[path] = true
	defer delete(onPath, path)

	maxDepth := 0
	for _, dep := range g.depGraph[path] {
		if onPath[dep] {
			continue // back edge
		}
		if d := g.depth(dep, onPath, memo) + 1; d > maxDepth {
			maxDepth = d
		}
	}
	memo[path] = maxDepth
	return maxDepth
}

// Cycles returns the modules that sit on an import cycle, sorted
func (g *DependencyGraph) Cycles() []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	return g.cycles()
}

// cycles runs Tarjan's algorithm. Members of a component with more than
// one module, or with a self import, are on a cycle.
func (g *DependencyGraph) cycles() []string {
	index := make(map[string]int)
	low := make(map[string]int)
	onStack := make(map[string]bool)
	var stack, result []string
	next := 0

	var strongConnect func(v string)
	strongConnect = func(v string) {
		index[v], low[v] = next, next
		next++
		stack = append(stack, v)
		onStack[v] = true

		selfLoop := false
		for _, w := range g.depGraph[v] {
			if w == v {
				selfLoop = true
			}
			if _, seen := index[w]; !seen {
				strongConnect(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] != index[v] {
			return
		}
		var component []string
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			component = append(component, w)
			if w == v {
				break
			}
		}
		if len(component) > 1 || selfLoop {
			result = append(result, component...)
		}
	}

	for _, v := range g.sortedModules() {
		if _, seen := index[v]; !seen {
			strongConnect(v)
		}
	}
	sort.Strings(result)
	return result
}

func (g *DependencyGraph) sortedModules() []string {
	paths := make([]string, 0, len(g.discovered))
	for path := range g.discovered {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// TopologicalOrder returns every module after the modules it imports. It
// fails when the graph has a cycle.
func (g *DependencyGraph) TopologicalOrder() ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// Kahn's algorithm over the reversed edges: a module is ready once all
	// of its dependencies are placed.
	remaining := make(map[string]int, len(g.discovered))
	dependents := make(map[string][]string)
	for _, path := range g.sortedModules() {
		remaining[path] = len(g.depGraph[path])
		for _, dep := range g.depGraph[path] {
			dependents[dep] = append(dependents[dep], path)
		}
	}

	var queue, result []string
	for _, path := range g.sortedModules() {
		if remaining[path] == 0 {
			queue = append(queue, path)
		}
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)
		for _, dependent := range dependents[current] {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(g.discovered) {
		return nil, fmt.Errorf("circular dependency detected among modules: %v", g.cycles())
	}
	return result, nil
}

// Stats summarizes the graph
func (g *DependencyGraph) Stats() GraphStats {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	stats := GraphStats{TotalModules: len(g.discovered)}
	memo := make(map[string]int)
	for _, path := range g.sortedModules() {
		stats.TotalDependencies += len(g.depGraph[path])
		if d := g.depth(path, make(map[string]bool), memo); d > stats.MaxDepth {
			stats.MaxDepth = d
		}
	}
	stats.CircularDeps = g.cycles()
	return stats
}

// Clear resets the graph
func (g *DependencyGraph) Clear() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.discovered = make(map[string]bool)
	g.depGraph = make(map[string][]string)
	g.depCounts = make(map[string]int)
}

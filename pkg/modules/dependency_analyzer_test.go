package modules

import (
	"reflect"
	"testing"
)

func TestDependencyGraphEdges(t *testing.T) {
	g := NewDependencyGraph()
	g.AddDependency("main.js", "utils.js")
	g.AddDependency("main.js", "config.json")
	g.AddDependency("main.js", "utils.js") // repeated
	g.AddDependency("other.js", "utils.js")
	g.AddModule("lonely.js")

	if deps := g.Dependencies("main.js"); !reflect.DeepEqual(deps, []string{"utils.js", "config.json"}) {
		t.Errorf("Expected [utils.js config.json], got %v", deps)
	}
	if dependents := g.Dependents("utils.js"); !reflect.DeepEqual(dependents, []string{"main.js", "other.js"}) {
		t.Errorf("Expected [main.js other.js], got %v", dependents)
	}
	if n := g.ImportCount("utils.js"); n != 2 {
		t.Errorf("Expected import count 2, got %d", n)
	}

	stats := g.Stats()
	if stats.TotalModules != 5 || stats.TotalDependencies != 3 {
		t.Errorf("Expected 5 modules and 3 edges, got %+v", stats)
	}
	if stats.MaxDepth != 1 {
		t.Errorf("Expected max depth 1, got %d", stats.MaxDepth)
	}
	if len(stats.CircularDeps) != 0 {
		t.Errorf("Expected no cycles, got %v", stats.CircularDeps)
	}
}

func TestDependencyGraphTopologicalOrder(t *testing.T) {
	g := NewDependencyGraph()
	g.AddDependency("main.js", "a.js")
	g.AddDependency("a.js", "b.js")
	g.AddDependency("main.js", "b.js")

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("Expected an order, got error: %v", err)
	}
	expected := []string{"b.js", "a.js", "main.js"}
	if !reflect.DeepEqual(order, expected) {
		t.Errorf("Expected %v, got %v", expected, order)
	}
	if d := g.Depth("main.js"); d != 2 {
		t.Errorf("Expected depth 2, got %d", d)
	}
}

func TestDependencyGraphCycles(t *testing.T) {
	g := NewDependencyGraph()
	g.AddDependency("main.js", "a.js")
	g.AddDependency("a.js", "b.js")
	g.AddDependency("b.js", "a.js")
	g.AddDependency("self.js", "self.js")
	g.AddDependency("main.js", "leaf.js")

	cycles := g.Cycles()
	expected := []string{"a.js", "b.js", "self.js"}
	if !reflect.DeepEqual(cycles, expected) {
		t.Errorf("Expected cycles %v, got %v", expected, cycles)
	}

	if _, err := g.TopologicalOrder(); err == nil {
		t.Error("Expected TopologicalOrder to fail on a cycle")
	}
	if d := g.Depth("main.js"); d != 2 {
		t.Errorf("Expected depth 2 through the cycle, got %d", d)
	}

	g.Clear()
	if stats := g.Stats(); stats.TotalModules != 0 {
		t.Errorf("Expected empty graph after Clear, got %+v", stats)
	}
}

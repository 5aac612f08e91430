package vm

import "fmt"

// --- Debug Flag ---
const debugGC = false

func debugGCPrintf(format string, args ...interface{}) {
	if debugGC {
		fmt.Printf("[GC Debug] "+format+"\n", args...)
	}
}

// --- End Debug Flag ---

// Visitor receives every heap reference a Marker holds.
type Visitor func(Marker)

// Marker is implemented by heap structures that keep other heap structures
// alive: objects and their internal slots, environments, execution
// contexts, realms, module records, coroutines and queued jobs. Weak edges
// are never reported to the visitor.
type Marker interface {
	Mark(visit Visitor)
}

func visitValue(visit Visitor, v Value) {
	if o, ok := v.(*Object); ok && o != nil {
		visit(o)
	}
}

func visitValues(visit Visitor, vs []Value) {
	for _, v := range vs {
		visitValue(visit, v)
	}
}

// GCStats summarises one collection.
type GCStats struct {
	Agent             string
	Marked            int
	WeakRefsCleared   int
	EntriesDropped    int
	CellsCleaned      int
	CoroutinesStopped int
}

func (s GCStats) String() string {
	return fmt.Sprintf("agent=%s marked=%d weakrefs-cleared=%d entries-dropped=%d cells-cleaned=%d coroutines-stopped=%d",
		s.Agent, s.Marked, s.WeakRefsCleared, s.EntriesDropped, s.CellsCleaned, s.CoroutinesStopped)
}

type collector struct {
	marked map[Marker]struct{}
	work   []Marker
}

func newCollector() *collector {
	return &collector{marked: make(map[Marker]struct{}, 1024)}
}

func (g *collector) visit(m Marker) {
	if m == nil {
		return
	}
	if _, seen := g.marked[m]; seen {
		return
	}
	g.marked[m] = struct{}{}
	g.work = append(g.work, m)
}

func (g *collector) drain() {
	for len(g.work) > 0 {
		m := g.work[len(g.work)-1]
		g.work = g.work[:len(g.work)-1]
		m.Mark(g.visit)
	}
}

func (g *collector) isMarked(o *Object) bool {
	_, ok := g.marked[o]
	return ok
}

// markRoots reports everything the agent keeps alive by itself.
func (a *Agent) markRoots(visit Visitor) {
	for _, ctx := range a.stack {
		visit(ctx)
	}
	for _, r := range a.realms {
		visit(r)
	}
	for co := a.coroutine; co != nil; co = co.parent {
		visit(co)
	}
	for j := range a.pending {
		visit(j)
	}
	for _, o := range a.keptAlive {
		visit(o)
	}
	for _, m := range a.hostRoots {
		visit(m)
	}
	for s := range a.loading {
		visit(s)
	}
}

// AddRoot registers a host structure whose references must survive
// collections, such as a REPL history of results.
func (a *Agent) AddRoot(m Marker) {
	a.hostRoots = append(a.hostRoots, m)
}

// KeepAlive adds m as a root until the returned release function is
// called. Hosts use it for callbacks they hold outside the heap, such as
// timers.
func (a *Agent) KeepAlive(m Marker) (release func()) {
	a.AddRoot(m)
	return func() { a.RemoveRoot(m) }
}

// RemoveRoot unregisters a root added with AddRoot.
func (a *Agent) RemoveRoot(m Marker) {
	for i, r := range a.hostRoots {
		if r == m {
			a.hostRoots = append(a.hostRoots[:i], a.hostRoots[i+1:]...)
			return
		}
	}
}

// GC runs one collection: it marks from the agent's roots, resolves
// ephemerons, clears dead WeakRef targets and weak collection entries,
// queues FinalizationRegistry callbacks, and stops suspended coroutines
// that nothing can resume any more. Called while code is running, for
// example from a debugger pause, it only marks. Go's own collector
// reclaims the memory afterwards.
func (a *Agent) GC() GCStats {
	g := newCollector()
	a.markRoots(g.visit)
	g.drain()

	// Ephemerons: a WeakMap value is live when both the map and the key are.
	for {
		progressed := false
		for _, o := range a.weakContainers {
			wm, ok := o.Internal.(*WeakMapData)
			if !ok || !g.isMarked(o) {
				continue
			}
			for key, v := range wm.entries {
				if !g.isMarked(key) {
					continue
				}
				if vo, ok := v.(*Object); ok && !g.isMarked(vo) {
					g.visit(vo)
					progressed = true
				}
			}
		}
		if !progressed {
			break
		}
		g.drain()
	}

	stats := GCStats{Agent: a.Signifier.String()}

	// While code runs, its evaluators hold objects in Go locals the roots
	// do not cover. Weak targets and suspended coroutines are only
	// reclaimed between turns.
	if len(a.stack) == 0 {
		live := a.weakContainers[:0]
		for _, o := range a.weakContainers {
			if !g.isMarked(o) {
				continue
			}
			live = append(live, o)
			switch data := o.Internal.(type) {
			case *WeakRefData:
				if data.target != nil && !g.isMarked(data.target) {
					data.target = nil
					stats.WeakRefsCleared++
				}
			case *WeakMapData:
				for key := range data.entries {
					if !g.isMarked(key) {
						delete(data.entries, key)
						stats.EntriesDropped++
					}
				}
			case *WeakSetData:
				for key := range data.entries {
					if !g.isMarked(key) {
						delete(data.entries, key)
						stats.EntriesDropped++
					}
				}
			case *FinalizationRegistryData:
				stats.CellsCleaned += data.sweep(a, g)
			}
		}
		clear(a.weakContainers[len(live):])
		a.weakContainers = live

		for co := range a.coroutines {
			if _, ok := g.marked[co]; !ok {
				co.stop()
				stats.CoroutinesStopped++
			}
		}
	}
	stats.Marked = len(g.marked)
	debugGCPrintf("collection: %s", stats)
	return stats
}

func (a *Agent) registerWeak(o *Object) {
	a.weakContainers = append(a.weakContainers, o)
}

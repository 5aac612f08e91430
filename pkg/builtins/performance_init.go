package builtins

import (
	"time"

	"siskin/pkg/vm"
)

// PerformanceInitializer installs the global performance object with a
// monotonic clock and user timing marks and measures. Each realm has its
// own time origin and entry buffer.
type PerformanceInitializer struct{}

func (p *PerformanceInitializer) Name() string {
	return "performance"
}

func (p *PerformanceInitializer) Priority() int {
	return PriorityPerformance
}

type performanceEntry struct {
	name      string
	entryType string
	startTime float64
	duration  float64
}

type performanceTimeline struct {
	origin  time.Time
	entries []performanceEntry
}

func (t *performanceTimeline) now() float64 {
	return float64(time.Since(t.origin).Nanoseconds()) / 1e6
}

// lookup returns the start time of the most recent mark called name.
func (t *performanceTimeline) lookup(name string) (float64, bool) {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if e := t.entries[i]; e.entryType == "mark" && e.name == name {
			return e.startTime, true
		}
	}
	return 0, false
}

func (t *performanceTimeline) clear(entryType string, args []vm.Value) {
	name, filtered := vm.Arg(args, 0).(vm.String)
	kept := t.entries[:0]
	for _, e := range t.entries {
		if e.entryType == entryType && (!filtered || e.name == name.String()) {
			continue
		}
		kept = append(kept, e)
	}
	t.entries = kept
}

func (t *performanceTimeline) list(a *vm.Agent, keep func(performanceEntry) bool) vm.Value {
	var items []vm.Value
	for _, e := range t.entries {
		if keep(e) {
			items = append(items, entryObject(a, e))
		}
	}
	return vm.CreateArrayFromList(a, items)
}

func entryObject(a *vm.Agent, e performanceEntry) *vm.Object {
	o := newObject(a)
	createData(a, o, vm.NewString("name"), vm.NewString(e.name))
	createData(a, o, vm.NewString("entryType"), vm.NewString(e.entryType))
	createData(a, o, vm.NewString("startTime"), vm.Number(e.startTime))
	createData(a, o, vm.NewString("duration"), vm.Number(e.duration))
	return o
}

// markTime reads a measure endpoint: a mark name or a timestamp.
func (t *performanceTimeline) markTime(a *vm.Agent, v vm.Value, def float64) (float64, *vm.Completion) {
	switch v := v.(type) {
	case vm.Number:
		return float64(v), nil
	case vm.String:
		start, ok := t.lookup(v.String())
		if !ok {
			return 0, a.ThrowSyntaxError("The mark '" + v.String() + "' does not exist.")
		}
		return start, nil
	}
	if vm.IsUndefined(v) {
		return def, nil
	}
	n, c := vm.ToNumber(a, v)
	return float64(n), c
}

func (p *PerformanceInitializer) InitRealm(r *vm.Realm) error {
	t := &performanceTimeline{origin: time.Now()}
	perf := namespace(r, "Performance")
	perf.Put(vm.NewString("timeOrigin"), vm.Number(float64(t.origin.UnixNano())/1e6), vm.AttrDefault)

	method(r, perf, "now", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		return vm.Number(t.now()), nil
	})

	method(r, perf, "mark", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		name, c := vm.ToString(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		e := performanceEntry{name: name.String(), entryType: "mark", startTime: t.now()}
		t.entries = append(t.entries, e)
		return entryObject(a, e), nil
	})

	// measure(name, startMark?, endMark?) spans from the time origin, or the
	// start mark, to now, or the end mark.
	method(r, perf, "measure", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		name, c := vm.ToString(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		end, c := t.markTime(a, vm.Arg(args, 2), t.now())
		if c != nil {
			return nil, c
		}
		start, c := t.markTime(a, vm.Arg(args, 1), 0)
		if c != nil {
			return nil, c
		}
		e := performanceEntry{name: name.String(), entryType: "measure", startTime: start, duration: end - start}
		t.entries = append(t.entries, e)
		return entryObject(a, e), nil
	})

	method(r, perf, "getEntries", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		return t.list(a, func(performanceEntry) bool { return true }), nil
	})

	method(r, perf, "getEntriesByType", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		kind, c := vm.ToString(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		return t.list(a, func(e performanceEntry) bool { return e.entryType == kind.String() }), nil
	})

	method(r, perf, "getEntriesByName", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		name, c := vm.ToString(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		kind, byKind := vm.Arg(args, 1).(vm.String)
		return t.list(a, func(e performanceEntry) bool {
			return e.name == name.String() && (!byKind || e.entryType == kind.String())
		}), nil
	})

	method(r, perf, "clearMarks", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		t.clear("mark", args)
		return vm.Undefined, nil
	})

	method(r, perf, "clearMeasures", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		t.clear("measure", args)
		return vm.Undefined, nil
	})

	r.DefineGlobal("performance", perf)
	return nil
}

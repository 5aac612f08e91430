package vm

import (
	"testing"
)

func TestWeakRefTargetCollected(t *testing.T) {
	a, r := newTestRealm(t, AgentOptions{})
	var ref *Object
	r.Scope(func() {
		ref = a.NewWeakRef(OrdinaryObjectCreate(r.Intrinsics.ObjectPrototype), r.Intrinsics.ObjectPrototype)
	})
	release := a.KeepAlive(ref)
	defer release()

	a.GC()
	if a.WeakRefDeref(ref) == Undefined {
		t.Fatalf("Expected the target to survive while kept for the current job")
	}
	a.ClearKeptObjects()
	stats := a.GC()
	if got := a.WeakRefDeref(ref); got != Undefined {
		t.Errorf("Expected undefined after collection, got %s", Inspect(got))
	}
	if stats.WeakRefsCleared != 1 {
		t.Errorf("Expected 1 cleared WeakRef, got %d", stats.WeakRefsCleared)
	}
}

func TestWeakRefTargetReachableFromGlobal(t *testing.T) {
	a, r := newTestRealm(t, AgentOptions{})
	target := OrdinaryObjectCreate(r.Intrinsics.ObjectPrototype)
	r.GlobalObject.Put(String("held"), target, AttrDefault)
	var ref *Object
	r.Scope(func() {
		ref = a.NewWeakRef(target, r.Intrinsics.ObjectPrototype)
	})
	release := a.KeepAlive(ref)
	defer release()

	a.ClearKeptObjects()
	a.GC()
	if got := a.WeakRefDeref(ref); got != target {
		t.Errorf("Expected the target to survive, got %s", Inspect(got))
	}
}

func TestWeakMapEphemerons(t *testing.T) {
	a, r := newTestRealm(t, AgentOptions{})
	wm := a.NewWeakMap(r.Intrinsics.ObjectPrototype)
	data := wm.Internal.(*WeakMapData)
	key := OrdinaryObjectCreate(nil)
	value := OrdinaryObjectCreate(nil)
	data.Set(key, value)

	releaseMap := a.KeepAlive(wm)
	defer releaseMap()
	releaseKey := a.KeepAlive(key)

	a.GC()
	if got, ok := data.Get(key); !ok || got != value {
		t.Fatalf("Expected the entry to survive while its key is live")
	}
	releaseKey()
	stats := a.GC()
	if data.Len() != 0 {
		t.Errorf("Expected the entry to be dropped, got %d entries", data.Len())
	}
	if stats.EntriesDropped != 1 {
		t.Errorf("Expected 1 dropped entry, got %d", stats.EntriesDropped)
	}
}

func TestFinalizationRegistryCleanup(t *testing.T) {
	a, r := newTestRealm(t, AgentOptions{})
	cleanup := mustEval(t, r, "globalThis.cleanup = function (held) { globalThis.finalized = held }; cleanup").(*Object)
	registry := a.NewFinalizationRegistry(r, cleanup, r.Intrinsics.ObjectPrototype)
	release := a.KeepAlive(registry)
	defer release()

	registry.Internal.(*FinalizationRegistryData).Register(OrdinaryObjectCreate(nil), String("token"), nil)
	stats := a.GC()
	if stats.CellsCleaned != 1 {
		t.Fatalf("Expected 1 cleaned cell, got %d", stats.CellsCleaned)
	}
	a.RunJobs()
	expectSame(t, "held value", mustEval(t, r, "globalThis.finalized"), String("token"))
}

func TestUnreachableGeneratorIsStopped(t *testing.T) {
	a, r := newTestRealm(t, AgentOptions{})
	mustEval(t, r, "(function* () { yield 1; yield 2 })().next().value")
	a.ClearKeptObjects()
	stats := a.GC()
	if stats.CoroutinesStopped < 1 {
		t.Errorf("Expected the abandoned generator to be stopped, got %d", stats.CoroutinesStopped)
	}
	mustEval(t, r, "globalThis.kept = (function* () { yield 1; yield 2 })(); kept.next()")
	a.GC()
	expectSame(t, "kept generator resumes", mustEval(t, r, "kept.next().value"), Number(2))
}

func TestStoppingGeneratorsInsideLexicalScopes(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"catch block", "(function () { function* gen() { try { throw 1 } catch (e) { yield e } } gen().next() })()"},
		{"for let", "(function () { function* gen() { for (let i = 0; i < 3; i++) yield i } gen().next() })()"},
		{"switch", "(function () { function* gen(x) { switch (x) { case 1: let y = x; yield y } } gen(1).next() })()"},
	}
	for _, test := range tests {
		t.Run(test.name+" collected", func(t *testing.T) {
			a, r := newTestRealm(t, AgentOptions{})
			mustEval(t, r, test.src)
			a.ClearKeptObjects()
			stats := a.GC()
			if stats.CoroutinesStopped < 1 {
				t.Errorf("Expected the suspended generator to be stopped, got %d", stats.CoroutinesStopped)
			}
			if a.StackDepth() != 0 {
				t.Errorf("Expected an empty stack after stopping, got depth %d", a.StackDepth())
			}
		})
		t.Run(test.name+" closed", func(t *testing.T) {
			a, r := newTestRealm(t, AgentOptions{})
			mustEval(t, r, test.src)
			a.Close()
			if a.StackDepth() != 0 {
				t.Errorf("Expected an empty stack after Close, got depth %d", a.StackDepth())
			}
		})
	}
}

func TestGCDuringDebuggerPauseKeepsWeakEntries(t *testing.T) {
	var (
		a     *Agent
		pause GCStats
	)
	a, r := newTestRealm(t, AgentOptions{
		OnDebugger: func(DebuggerInfo) DebuggerDirective {
			pause = a.GC()
			return DebuggerContinue
		},
	})
	wm := a.NewWeakMap(r.Intrinsics.ObjectPrototype)
	data := wm.Internal.(*WeakMapData)
	r.GlobalObject.Put(String("wm"), wm, AttrDefault)
	r.GlobalObject.Put(String("remember"), NewNativeFunction(r, "remember", 1, func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		data.Set(Arg(args, 0).(*Object), True)
		return Undefined, nil
	}), AttrDefault)
	r.GlobalObject.Put(String("remembered"), NewNativeFunction(r, "remembered", 1, func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		k, ok := Arg(args, 0).(*Object)
		return Boolean(ok && data.Has(k)), nil
	}), AttrDefault)

	got := mustEval(t, r, `
var arr = [(function () { var k = {}; remember(k); return k })(), (function () { debugger })()];
remembered(arr[0])`)
	expectSame(t, "live key after a paused collection", got, True)
	if pause.EntriesDropped != 0 || pause.Marked == 0 {
		t.Errorf("Expected a mark-only collection during the pause, got %s", pause)
	}
	if pause.Agent != a.Signifier.String() {
		t.Errorf("Expected stats for agent %s, got %q", a.Signifier, pause.Agent)
	}
}

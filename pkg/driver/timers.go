package driver

import (
	"fmt"
	"math"
	"time"

	"siskin/pkg/vm"
)

// timer is one pending setTimeout, setInterval or sleep. The Go timer fires
// on its own goroutine and posts the callback back to the agent.
type timer struct {
	id        int
	delay     time.Duration
	repeat    bool
	run       func()
	marks     []vm.Marker
	goTimer   *time.Timer
	release   func()
	cancelled bool
}

func (t *timer) Mark(visit vm.Visitor) {
	for _, m := range t.marks {
		visit(m)
	}
}

// timerSet owns the timers of a session. It is only touched on the agent
// thread.
type timerSet struct {
	s      *Session
	nextID int
	active map[int]*timer
}

func newTimerSet(s *Session) *timerSet {
	return &timerSet{s: s, active: make(map[int]*timer)}
}

// schedule starts a timer. Every armed Go timer holds one external op on
// the job queue so the event loop waits for it.
func (ts *timerSet) schedule(delay time.Duration, repeat bool, run func(), marks ...vm.Marker) *timer {
	ts.nextID++
	t := &timer{id: ts.nextID, delay: delay, repeat: repeat, run: run, marks: marks}
	t.release = ts.s.agent.KeepAlive(t)
	ts.active[t.id] = t
	ts.arm(t)
	debugPrintf("timer %d scheduled in %s (repeat=%v)", t.id, delay, repeat)
	return t
}

func (ts *timerSet) arm(t *timer) {
	jobs := ts.s.agent.Jobs()
	jobs.BeginExternalOp()
	t.goTimer = time.AfterFunc(t.delay, func() {
		jobs.Post(func() { ts.fire(t) })
	})
}

func (ts *timerSet) fire(t *timer) {
	if t.cancelled {
		return
	}
	if t.repeat {
		ts.arm(t)
	} else {
		ts.forget(t)
	}
	debugPrintf("timer %d fired", t.id)
	ts.s.realm.Scope(t.run)
	ts.s.agent.ClearKeptObjects()
}

// cancel stops a timer. A timer whose Go side already fired has its posted
// job turned into a no-op.
func (ts *timerSet) cancel(id int) {
	t, ok := ts.active[id]
	if !ok {
		return
	}
	t.cancelled = true
	if t.goTimer.Stop() {
		ts.s.agent.Jobs().EndExternalOp()
	}
	ts.forget(t)
}

func (ts *timerSet) forget(t *timer) {
	delete(ts.active, t.id)
	if t.release != nil {
		t.release()
		t.release = nil
	}
}

// stopAll cancels every pending timer.
func (ts *timerSet) stopAll() {
	for id := range ts.active {
		ts.cancel(id)
	}
}

// Len reports the number of pending timers.
func (ts *timerSet) Len() int {
	return len(ts.active)
}

// timerDelay converts a millisecond argument. NaN and negative delays are
// zero.
func timerDelay(a *vm.Agent, v vm.Value) (time.Duration, *vm.Completion) {
	if vm.IsUndefined(v) {
		return 0, nil
	}
	ms, c := vm.ToNumber(a, v)
	if c != nil {
		return 0, c
	}
	f := float64(ms)
	if math.IsNaN(f) || f < 0 {
		return 0, nil
	}
	if f > math.MaxInt32 {
		f = math.MaxInt32
	}
	return time.Duration(f * float64(time.Millisecond)), nil
}

func (ts *timerSet) callbackTimer(a *vm.Agent, args []vm.Value, repeat bool, name string) (vm.Value, *vm.Completion) {
	callback, ok := vm.Arg(args, 0).(*vm.Object)
	if !ok || !vm.IsCallable(callback) {
		return nil, a.ThrowTypeError(fmt.Sprintf("%s: callback must be a function", name))
	}
	delay, c := timerDelay(a, vm.Arg(args, 1))
	if c != nil {
		return nil, c
	}
	var extra []vm.Value
	if len(args) > 2 {
		extra = append(extra, args[2:]...)
	}
	marks := []vm.Marker{callback}
	for _, v := range extra {
		if m, ok := v.(vm.Marker); ok {
			marks = append(marks, m)
		}
	}
	t := ts.schedule(delay, repeat, func() {
		if _, c := vm.Call(a, callback, vm.Undefined, extra); c != nil {
			ts.s.uncaughtThrow(c)
		}
	}, marks...)
	return vm.Number(t.id), nil
}

func (ts *timerSet) clearTimer(a *vm.Agent, args []vm.Value) (vm.Value, *vm.Completion) {
	if n, ok := vm.Arg(args, 0).(vm.Number); ok {
		ts.cancel(int(n))
	}
	return vm.Undefined, nil
}

// sleep returns a promise fulfilled with undefined after the delay.
func (ts *timerSet) sleep(a *vm.Agent, args []vm.Value) (vm.Value, *vm.Completion) {
	delay, c := timerDelay(a, vm.Arg(args, 0))
	if c != nil {
		return nil, c
	}
	capability, c := vm.NewPromiseCapability(a, ts.s.realm.Intrinsics.Promise)
	if c != nil {
		return nil, c
	}
	ts.schedule(delay, false, func() {
		capability.Resolve(a, vm.Undefined)
	}, capability)
	return capability.Promise, nil
}

// TimersInitializer installs setTimeout, setInterval and their clear
// functions as globals.
type TimersInitializer struct {
	timers *timerSet
}

func (t *TimersInitializer) Name() string {
	return "timers"
}

func (t *TimersInitializer) Priority() int {
	return 200
}

func (t *TimersInitializer) InitRealm(r *vm.Realm) error {
	for name, fn := range t.timers.functions() {
		r.DefineGlobal(name, vm.NewNativeFunction(r, name, fn.length, fn.behavior))
	}
	return nil
}

type timerFunction struct {
	length   int
	behavior vm.NativeFunction
}

func (ts *timerSet) functions() map[string]timerFunction {
	return map[string]timerFunction{
		"setTimeout": {2, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
			return ts.callbackTimer(a, args, false, "setTimeout")
		}},
		"setInterval": {2, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
			return ts.callbackTimer(a, args, true, "setInterval")
		}},
		"clearTimeout": {1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
			return ts.clearTimer(a, args)
		}},
		"clearInterval": {1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
			return ts.clearTimer(a, args)
		}},
	}
}

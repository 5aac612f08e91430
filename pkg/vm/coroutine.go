package vm

import (
	"iter"

	"siskin/pkg/errors"
)

// --- Debug Flag ---
const debugCoroutine = false

func debugCoroutinePrintf(format string, args ...interface{}) {
	if debugCoroutine {
		debugPrintf("[coroutine] "+format, args...)
	}
}

// --- End Debug Flag ---

// resumption is what a suspended coroutine is resumed with: a value, or an
// abrupt Throw or Return completion.
type resumption struct {
	value      Value
	completion *Completion
}

func resumeNormal(v Value) resumption { return resumption{value: v} }
func resumeAbrupt(c *Completion) resumption { return resumption{completion: c} }
func resumeWith(v Value, c *Completion) resumption {
	if c != nil {
		return resumeAbrupt(c)
	}
	return resumeNormal(v)
}

// coroutineStopped is the panic payload that unwinds a coroutine body the
// agent has given up on.
type coroutineStopped struct{}

var errCoroutineStopped = &coroutineStopped{}

// coroutine runs code that may suspend: generator bodies, async function
// bodies and async module bodies. The body runs on a pull iterator and
// yields to suspend, so evaluators never return to their caller while
// suspended and no Go panic is involved in normal control flow.
//
// While a coroutine runs, its execution contexts sit on the agent stack
// above base. When it suspends they are saved and removed again.
type coroutine struct {
	agent    *Agent
	next     func() (struct{}, bool)
	stopPull func()
	yield    func(struct{}) bool

	contexts []*ExecutionContext
	base     int
	parent   *coroutine

	in     resumption
	out    Value
	result Completion
	done   bool

	// roots are extra references the body holds in Go locals across
	// suspensions.
	roots []Marker
}

// newCoroutine prepares body to run with contexts on the stack. Nothing
// runs until the first call to run.
func (a *Agent) newCoroutine(contexts []*ExecutionContext, body func(co *coroutine) Completion) *coroutine {
	co := &coroutine{agent: a, contexts: contexts}
	seq := func(yield func(struct{}) bool) {
		co.yield = yield
		defer func() {
			if r := recover(); r != nil {
				if r == errCoroutineStopped {
					return
				}
				panic(r)
			}
		}()
		co.result = body(co)
	}
	co.next, co.stopPull = iter.Pull(iter.Seq[struct{}](seq))
	a.coroutines[co] = struct{}{}
	return co
}

// run resumes the coroutine and returns when it suspends or finishes.
func (co *coroutine) run(r resumption) {
	a := co.agent
	errors.Assert(!co.done, "resuming a finished coroutine")
	co.in = r
	co.out = nil
	co.base = len(a.stack)
	a.stack = append(a.stack, co.contexts...)
	co.contexts = nil
	co.parent = a.coroutine
	a.coroutine = co

	returned := false
	defer func() {
		a.coroutine = co.parent
		co.parent = nil
		if !returned {
			co.finish()
		}
		if !co.done {
			co.contexts = append([]*ExecutionContext(nil), a.stack[co.base:]...)
		}
		clear(a.stack[co.base:])
		a.stack = a.stack[:co.base]
	}()

	_, more := co.next()
	returned = true
	if !more {
		co.finish()
	}
	debugCoroutinePrintf("run: done=%v", co.done)
}

// suspend hands out to whoever resumed the coroutine and blocks until the
// next resumption.
func (co *coroutine) suspend(out Value) resumption {
	a := co.agent
	errors.Assert(a.coroutine == co, "suspending a coroutine that is not running")
	errors.Assert(len(a.stack) == co.base+1, "suspending with foreign execution contexts on the stack")
	co.out = out
	if !co.yield(struct{}{}) {
		panic(errCoroutineStopped)
	}
	return co.in
}

func (co *coroutine) finish() {
	co.done = true
	co.roots = nil
	delete(co.agent.coroutines, co)
}

// stop abandons a suspended coroutine and releases its goroutine. The
// body unwinds with its own contexts on the stack, so deferred code in it
// still sees a running context.
func (co *coroutine) stop() {
	if co.done {
		return
	}
	a := co.agent
	base := len(a.stack)
	a.stack = append(a.stack, co.contexts...)
	co.base = base
	co.parent = a.coroutine
	a.coroutine = co
	defer func() {
		a.coroutine = co.parent
		co.parent = nil
		clear(a.stack[base:])
		a.stack = a.stack[:base]
	}()

	co.stopPull()
	co.finish()
	co.contexts = nil
}

func (co *coroutine) Mark(visit Visitor) {
	for _, ctx := range co.contexts {
		visit(ctx)
	}
	visitValue(visit, co.in.value)
	co.in.completion.Mark(visit)
	visitValue(visit, co.out)
	visitValue(visit, co.result.Value)
	for _, m := range co.roots {
		visit(m)
	}
}

// currentCoroutine returns the running coroutine, asserting that the
// running context belongs to it.
func (a *Agent) currentCoroutine() *coroutine {
	co := a.coroutine
	errors.Assert(co != nil, "await or yield outside a coroutine")
	return co
}

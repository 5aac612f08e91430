package vm

import (
	"fmt"
	"os"

	"github.com/dop251/goja/ast"
	"github.com/google/uuid"

	"siskin/pkg/errors"
	"siskin/pkg/parser"
	"siskin/pkg/runtime"
)

// maxStackDepth bounds nested execution contexts. Deeper recursion throws a
// RangeError instead of exhausting the Go stack.
const maxStackDepth = 2500

// Known feature flags.
const (
	FeatureJSONModules          = "json-modules"
	FeaturePromiseWithResolvers = "promise-with-resolvers"
	FeatureArrayGrouping        = "array-grouping"
)

// RejectionOperation is passed to the promise rejection tracker.
type RejectionOperation int

const (
	RejectionReject RejectionOperation = iota
	RejectionHandle
)

func (op RejectionOperation) String() string {
	if op == RejectionHandle {
		return "handle"
	}
	return "reject"
}

// DebuggerDirective tells the agent how to continue after a pause.
type DebuggerDirective int

const (
	DebuggerContinue DebuggerDirective = iota
	DebuggerStep
)

// FinishLoading completes a host module load. Exactly one of m and err is
// set. It may be called before LoadImportedModule returns or later from a
// job posted to the agent's queue.
type FinishLoading func(m ModuleRecord, err error)

// AgentOptions configure an Agent and the hooks it calls into the host.
type AgentOptions struct {
	// Features enables optional language features, see Feature*.
	Features []string

	// LoadImportedModule fetches the module a referrer requests. A nil hook
	// fails every import.
	LoadImportedModule func(referrer Referrer, specifier string, attrs []parser.ImportAttribute, hostDefined any, finish FinishLoading)

	// GetImportMetaProperties supplies the properties of import.meta.
	GetImportMetaProperties func(m *SourceTextModule) map[string]Value

	// PromiseRejectionTracker observes rejections without handlers and
	// handlers added later.
	PromiseRejectionTracker func(p *Object, op RejectionOperation)

	// OnDebugger is called at `debugger` statements and, while stepping,
	// before every statement.
	OnDebugger func(info DebuggerInfo) DebuggerDirective

	// RealmInitializers run on every new realm after the core intrinsics.
	RealmInitializers []RealmInitializer

	// Jobs defaults to runtime.NewDefaultJobQueue().
	Jobs runtime.JobQueue

	// ReportError receives errors no script can observe, such as a throwing
	// FinalizationRegistry callback.
	ReportError func(v Value)
}

// Agent owns an execution-context stack, a job queue and the realms it
// created. An Agent is not safe for concurrent use; host goroutines hand
// work back through the job queue's Post.
type Agent struct {
	Signifier uuid.UUID

	options  AgentOptions
	features map[string]bool
	jobs     runtime.JobQueue

	stack  []*ExecutionContext
	realms []*Realm

	coroutine  *coroutine
	coroutines map[*coroutine]struct{}

	pending        map[*pendingJob]struct{}
	keptAlive      []*Object
	weakContainers []*Object
	hostRoots      []Marker
	loading        map[Marker]struct{}

	moduleAsyncOrder uint64

	symbolRegistry map[String]*Symbol
	functionInfos  map[any]*functionInfo
	scopeDecls     map[ast.Node][]ast.Node

	stepping bool
}

// NewAgent creates an agent. It has no realm until NewRealm is called.
func NewAgent(opts AgentOptions) *Agent {
	a := &Agent{
		Signifier:      uuid.New(),
		options:        opts,
		features:       make(map[string]bool, len(opts.Features)),
		jobs:           opts.Jobs,
		coroutines:     make(map[*coroutine]struct{}),
		pending:        make(map[*pendingJob]struct{}),
		loading:        make(map[Marker]struct{}),
		symbolRegistry: make(map[String]*Symbol),
		functionInfos:  make(map[any]*functionInfo),
		scopeDecls:     make(map[ast.Node][]ast.Node),
	}
	if a.jobs == nil {
		a.jobs = runtime.NewDefaultJobQueue()
	}
	for _, f := range opts.Features {
		a.features[f] = true
	}
	debugPrintf("agent %s created with features %v", a.Signifier, opts.Features)
	return a
}

// HasFeature reports whether an optional feature is enabled.
func (a *Agent) HasFeature(name string) bool {
	return a.features[name]
}

// Jobs returns the agent's job queue.
func (a *Agent) Jobs() runtime.JobQueue {
	return a.jobs
}

// Realms lists the realms created by the agent.
func (a *Agent) Realms() []*Realm {
	return a.realms
}

// Close abandons every suspended coroutine. The agent must not be used
// afterwards.
func (a *Agent) Close() {
	for co := range a.coroutines {
		co.stop()
	}
	a.jobs.Reset()
	clear(a.pending)
}

// --- execution context stack ---

// RunningContext returns the running execution context.
func (a *Agent) RunningContext() *ExecutionContext {
	errors.Assert(len(a.stack) > 0, "no running execution context")
	return a.stack[len(a.stack)-1]
}

// CurrentRealm returns the realm of the running execution context.
func (a *Agent) CurrentRealm() *Realm {
	if len(a.stack) == 0 {
		errors.Assert(len(a.realms) > 0, "no current realm")
		return a.realms[0]
	}
	return a.stack[len(a.stack)-1].Realm
}

// StackDepth reports the number of execution contexts on the stack.
func (a *Agent) StackDepth() int {
	return len(a.stack)
}

// GetActiveScriptOrModule returns the innermost script or module that is
// running, or nil.
func (a *Agent) GetActiveScriptOrModule() Referrer {
	for i := len(a.stack) - 1; i >= 0; i-- {
		if m := a.stack[i].ScriptOrModule; m != nil {
			return m
		}
	}
	return nil
}

func (a *Agent) pushContext(ctx *ExecutionContext) *Completion {
	if len(a.stack) >= maxStackDepth {
		return a.ThrowRangeError("Maximum call stack size exceeded")
	}
	a.stack = append(a.stack, ctx)
	return nil
}

func (a *Agent) popContext(ctx *ExecutionContext) {
	n := len(a.stack)
	errors.Assert(n > 0 && a.stack[n-1] == ctx, "popping an execution context that is not running")
	a.stack[n-1] = nil
	a.stack = a.stack[:n-1]
}

// --- errors ---

func (a *Agent) throwError(proto func(*Intrinsics) *Object, msg string) *Completion {
	realm := a.CurrentRealm()
	return ThrowCompletion(a.newErrorObject(realm, proto(&realm.Intrinsics), msg))
}

// ThrowTypeError returns a Throw completion carrying a new TypeError.
func (a *Agent) ThrowTypeError(msg string) *Completion {
	return a.throwError(func(i *Intrinsics) *Object { return i.TypeErrorPrototype }, msg)
}

// ThrowRangeError returns a Throw completion carrying a new RangeError.
func (a *Agent) ThrowRangeError(msg string) *Completion {
	return a.throwError(func(i *Intrinsics) *Object { return i.RangeErrorPrototype }, msg)
}

// ThrowSyntaxError returns a Throw completion carrying a new SyntaxError.
func (a *Agent) ThrowSyntaxError(msg string) *Completion {
	return a.throwError(func(i *Intrinsics) *Object { return i.SyntaxErrorPrototype }, msg)
}

// ThrowReferenceError returns a Throw completion carrying a new
// ReferenceError.
func (a *Agent) ThrowReferenceError(msg string) *Completion {
	return a.throwError(func(i *Intrinsics) *Object { return i.ReferenceErrorPrototype }, msg)
}

// ThrowURIError returns a Throw completion carrying a new URIError.
func (a *Agent) ThrowURIError(msg string) *Completion {
	return a.throwError(func(i *Intrinsics) *Object { return i.URIErrorPrototype }, msg)
}

// ThrowError returns a Throw completion carrying a plain Error.
func (a *Agent) ThrowError(msg string) *Completion {
	return a.throwError(func(i *Intrinsics) *Object { return i.ErrorPrototype }, msg)
}

// ThrowGoError converts a host error into a Throw completion. Syntax errors
// become SyntaxError objects and *Exception re-throws its value.
func (a *Agent) ThrowGoError(err error) *Completion {
	switch e := err.(type) {
	case *Exception:
		return ThrowCompletion(e.Value)
	case *errors.SyntaxError:
		c := a.ThrowSyntaxError(e.Msg)
		if o, ok := c.Value.(*Object); ok && e.Source != nil {
			where := fmt.Sprintf("%s:%d:%d", e.Source.DisplayPath(), e.Line, e.Column)
			o.Put(String("stack"), NewString("SyntaxError: "+e.Msg+"\n    at "+where), AttrDefault)
		}
		return c
	}
	return a.ThrowError(err.Error())
}

// ReportError hands an error no script can catch to the host.
func (a *Agent) ReportError(v Value) {
	if a.options.ReportError != nil {
		a.options.ReportError(v)
		return
	}
	fmt.Fprintf(os.Stderr, "Uncaught %s\n", Inspect(v))
}

// --- jobs ---

// pendingJob keeps the references of a queued job alive until it runs.
type pendingJob struct {
	realm *Realm
	marks []Marker
}

func (j *pendingJob) Mark(visit Visitor) {
	if j.realm != nil {
		visit(j.realm)
	}
	for _, m := range j.marks {
		visit(m)
	}
}

// EnqueueJob queues job to run in realm once the current job finishes.
// marks lists what the job's closure keeps alive. A nil realm runs the job
// in the agent's first realm.
func (a *Agent) EnqueueJob(realm *Realm, job func(), marks ...Marker) {
	if realm == nil {
		errors.Assert(len(a.realms) > 0, "job queued before any realm exists")
		realm = a.realms[0]
	}
	p := &pendingJob{realm: realm, marks: marks}
	a.pending[p] = struct{}{}
	a.jobs.Enqueue(func() {
		delete(a.pending, p)
		realm.Scope(job)
		a.ClearKeptObjects()
	})
}

// RunJobs drains the job queue.
func (a *Agent) RunJobs() bool {
	return a.jobs.RunUntilIdle()
}

// RunEventLoop drains jobs and waits for external operations until there is
// nothing left to do.
func (a *Agent) RunEventLoop() {
	for {
		a.RunJobs()
		if !a.jobs.HasPendingExternalOps() {
			if a.jobs.Pending() == 0 {
				return
			}
			continue
		}
		a.jobs.WaitForExternalOp()
	}
}

// Drive pumps the job queue until promise settles or no work is left.
func (a *Agent) Drive(promise *Object) (PromiseState, Value) {
	data := promise.Internal.(*PromiseData)
	for {
		a.RunJobs()
		if data.State != PromisePending {
			return data.State, data.Result
		}
		if !a.jobs.HasPendingExternalOps() {
			if a.jobs.Pending() > 0 {
				continue
			}
			return PromisePending, nil
		}
		a.jobs.WaitForExternalOp()
	}
}

// --- kept objects ---

// AddToKeptObjects keeps o alive until the current job ends.
func (a *Agent) AddToKeptObjects(o *Object) {
	a.keptAlive = append(a.keptAlive, o)
}

// ClearKeptObjects releases everything kept by AddToKeptObjects.
func (a *Agent) ClearKeptObjects() {
	clear(a.keptAlive)
	a.keptAlive = a.keptAlive[:0]
}

// --- symbol registry ---

// SymbolFor implements Symbol.for.
func (a *Agent) SymbolFor(key String) *Symbol {
	if s, ok := a.symbolRegistry[key]; ok {
		return s
	}
	s := &Symbol{Description: key}
	a.symbolRegistry[key] = s
	return s
}

// SymbolKeyFor implements Symbol.keyFor.
func (a *Agent) SymbolKeyFor(s *Symbol) (String, bool) {
	for k, v := range a.symbolRegistry {
		if v == s {
			return k, true
		}
	}
	return "", false
}

// --- promise rejection tracking ---

func (a *Agent) trackRejection(p *Object, op RejectionOperation) {
	if a.options.PromiseRejectionTracker != nil {
		a.options.PromiseRejectionTracker(p, op)
	}
}

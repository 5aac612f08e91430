package vm

import (
	"fmt"
	"slices"
	"sort"

	"siskin/pkg/errors"
	"siskin/pkg/parser"
)

// --- Debug Flag ---
const debugModule = false

func debugModulePrintf(format string, args ...interface{}) {
	if debugModule {
		debugPrintf("[module] "+format, args...)
	}
}

// --- End Debug Flag ---

// ModuleStatus is the position of a module in its load/link/evaluate
// lifecycle. Transitions only move forward; Errored is terminal.
type ModuleStatus int

const (
	ModuleNew ModuleStatus = iota
	ModuleUnlinked
	ModuleLinking
	ModuleLinked
	ModuleEvaluating
	ModuleEvaluatingAsync
	ModuleEvaluated
	ModuleErrored
)

func (s ModuleStatus) String() string {
	switch s {
	case ModuleNew:
		return "new"
	case ModuleUnlinked:
		return "unlinked"
	case ModuleLinking:
		return "linking"
	case ModuleLinked:
		return "linked"
	case ModuleEvaluating:
		return "evaluating"
	case ModuleEvaluatingAsync:
		return "evaluating-async"
	case ModuleEvaluated:
		return "evaluated"
	case ModuleErrored:
		return "errored"
	}
	return fmt.Sprintf("ModuleStatus(%d)", int(s))
}

// ModuleRecord is a module of any kind: source text, JSON or host-provided.
type ModuleRecord interface {
	Referrer

	Realm() *Realm
	// Environment is nil until the module is linked.
	Environment() Environment
	Status() ModuleStatus

	// LoadRequestedModules loads the whole dependency graph. The returned
	// promise settles once every module is loaded or one load failed.
	LoadRequestedModules(hostDefined any) *PromiseCapability
	GetExportedNames(exportStarSet map[ModuleRecord]bool) []String
	// ResolveExport finds the binding behind an export name. It returns nil
	// when there is none and ambiguous when star exports conflict.
	ResolveExport(name String, set resolveSet) (binding *ResolvedBinding, ambiguous bool)
	Link() *Completion
	// Evaluate runs the module and its dependencies once. The returned
	// capability is the same on every call.
	Evaluate() *PromiseCapability

	base() *moduleBase
}

// ResolvedBinding names the module and binding an export resolves to. A
// Namespace binding stands for the module's namespace object.
type ResolvedBinding struct {
	Module      ModuleRecord
	BindingName String
	Namespace   bool
}

type resolveEntry struct {
	module ModuleRecord
	name   String
}

type resolveSet map[resolveEntry]bool

// moduleBase is the state every module kind shares.
type moduleBase struct {
	realm       *Realm
	specifier   string
	environment *ModuleEnvironment
	namespace   *Object
	loaded      map[string]ModuleRecord

	// HostDefined is free for the loader.
	HostDefined any
}

func newModuleBase(r *Realm, specifier string, hostDefined any) moduleBase {
	return moduleBase{realm: r, specifier: specifier, loaded: make(map[string]ModuleRecord), HostDefined: hostDefined}
}

func (m *moduleBase) base() *moduleBase { return m }

func (m *moduleBase) Realm() *Realm { return m.realm }

func (m *moduleBase) Specifier() string { return m.specifier }

func (m *moduleBase) loadedModules() map[string]ModuleRecord { return m.loaded }

func (m *moduleBase) Environment() Environment {
	if m.environment == nil {
		return nil
	}
	return m.environment
}

func (m *moduleBase) Mark(visit Visitor) {
	visit(m.realm)
	if m.environment != nil {
		visit(m.environment)
	}
	if m.namespace != nil {
		visit(m.namespace)
	}
	for _, dep := range m.loaded {
		visit(dep)
	}
	if h, ok := m.HostDefined.(Marker); ok {
		visit(h)
	}
}

// getImportedModule returns the module loaded for a request of referrer.
// Loading must have finished.
func getImportedModule(referrer Referrer, req parser.ModuleRequest) ModuleRecord {
	m, ok := referrer.loadedModules()[req.Key()]
	errors.Assert(ok, "module "+req.Specifier+" was not loaded")
	return m
}

// --- cyclic modules ---

// cyclicModule is a module that takes part in graph linking and evaluation
// and may depend on other modules.
type cyclicModule interface {
	ModuleRecord
	cyclic() *CyclicModule
	initializeEnvironment() *Completion
	// executeModule runs the body. With a capability the body may await and
	// settles the capability when done.
	executeModule(capability *PromiseCapability) *Completion
}

// CyclicModule holds the graph bookkeeping of a module that may be part of
// an import cycle.
type CyclicModule struct {
	moduleBase

	status          ModuleStatus
	evaluationError *Completion

	dfsIndex         int
	dfsAncestorIndex int

	RequestedModules []parser.ModuleRequest

	cycleRoot                cyclicModule
	hasTLA                   bool
	asyncEvaluation          bool
	asyncEvaluationOrder     uint64
	topLevelCapability       *PromiseCapability
	asyncParentModules       []cyclicModule
	pendingAsyncDependencies int
}

func (m *CyclicModule) cyclic() *CyclicModule { return m }

func (m *CyclicModule) Status() ModuleStatus { return m.status }

// EvaluationError returns the stored Throw completion of an errored module.
func (m *CyclicModule) EvaluationError() *Completion { return m.evaluationError }

// HasTopLevelAwait reports whether the module body awaits.
func (m *CyclicModule) HasTopLevelAwait() bool { return m.hasTLA }

func (m *CyclicModule) Mark(visit Visitor) {
	m.moduleBase.Mark(visit)
	m.evaluationError.Mark(visit)
	if m.cycleRoot != nil {
		visit(m.cycleRoot)
	}
	if m.topLevelCapability != nil {
		m.topLevelCapability.Mark(visit)
	}
	for _, p := range m.asyncParentModules {
		visit(p)
	}
}

func (m *CyclicModule) fail(c *Completion) {
	m.status = ModuleErrored
	m.evaluationError = c
}

// link instantiates the environments of module and everything it imports.
// On failure every module still being linked becomes Errored with the same
// error, and later calls return that error again.
func link(module cyclicModule) *Completion {
	m := module.cyclic()
	if m.status == ModuleErrored {
		return m.evaluationError
	}
	errors.Assert(m.status != ModuleNew && m.status != ModuleLinking && m.status != ModuleEvaluating,
		"Link called on a module that is "+m.status.String())
	var stack []cyclicModule
	if _, c := innerModuleLinking(module, &stack, 0); c != nil {
		for _, s := range stack {
			s.cyclic().fail(c)
		}
		debugModulePrintf("link %s failed: %s", m.specifier, Inspect(c.Value))
		return c
	}
	errors.Assert(m.status == ModuleLinked || m.status == ModuleEvaluatingAsync || m.status == ModuleEvaluated,
		"linked module is "+m.status.String())
	return nil
}

func innerModuleLinking(module ModuleRecord, stack *[]cyclicModule, index int) (int, *Completion) {
	cm, ok := module.(cyclicModule)
	if !ok {
		return index, module.Link()
	}
	m := cm.cyclic()
	switch m.status {
	case ModuleLinking, ModuleLinked, ModuleEvaluatingAsync, ModuleEvaluated:
		return index, nil
	case ModuleErrored:
		return index, m.evaluationError
	}
	errors.Assert(m.status == ModuleUnlinked, "linking a module that is "+m.status.String())
	m.status = ModuleLinking
	m.dfsIndex, m.dfsAncestorIndex = index, index
	index++
	*stack = append(*stack, cm)
	for _, req := range m.RequestedModules {
		required := getImportedModule(cm, req)
		var c *Completion
		if index, c = innerModuleLinking(required, stack, index); c != nil {
			return index, c
		}
		if rc, ok := required.(cyclicModule); ok {
			r := rc.cyclic()
			if r.status == ModuleLinking {
				m.dfsAncestorIndex = min(m.dfsAncestorIndex, r.dfsAncestorIndex)
			}
		}
	}
	if c := cm.initializeEnvironment(); c != nil {
		return index, c
	}
	if m.dfsAncestorIndex == m.dfsIndex {
		for {
			last := (*stack)[len(*stack)-1]
			*stack = (*stack)[:len(*stack)-1]
			last.cyclic().status = ModuleLinked
			if last == cm {
				break
			}
		}
	}
	return index, nil
}

// evaluate runs a linked graph. Members of a cycle share the capability of
// the cycle root.
func evaluate(module cyclicModule) *PromiseCapability {
	m := module.cyclic()
	a := m.realm.agent
	errors.Assert(m.status == ModuleLinked || m.status == ModuleEvaluatingAsync || m.status == ModuleEvaluated || m.status == ModuleErrored,
		"Evaluate called on a module that is "+m.status.String())
	if m.cycleRoot != nil && m.status != ModuleLinked {
		module = m.cycleRoot
		m = module.cyclic()
	}
	if m.topLevelCapability != nil {
		return m.topLevelCapability
	}
	capability := Must(NewPromiseCapability(a, m.realm.Intrinsics.Promise))
	m.topLevelCapability = capability

	var stack []cyclicModule
	if _, c := innerModuleEvaluation(module, &stack, 0); c != nil {
		for _, s := range stack {
			errors.Assert(s.cyclic().status == ModuleEvaluating, "unwinding a module that is not evaluating")
			s.cyclic().fail(c)
		}
		errors.Assert(m.status == ModuleErrored, "failed module is "+m.status.String())
		MustNormal(capability.Reject(a, c.Value))
		return capability
	}
	errors.Assert(len(stack) == 0, "evaluation left modules on the stack")
	if !m.asyncEvaluation {
		errors.Assert(m.status == ModuleEvaluated, "evaluated module is "+m.status.String())
		MustNormal(capability.Resolve(a, Undefined))
	}
	return capability
}

func innerModuleEvaluation(module ModuleRecord, stack *[]cyclicModule, index int) (int, *Completion) {
	cm, ok := module.(cyclicModule)
	if !ok {
		state, v := module.Evaluate().Settled()
		errors.Assert(state != PromisePending, "non-cyclic module evaluation did not settle")
		if state == PromiseRejected {
			return index, ThrowCompletion(v)
		}
		return index, nil
	}
	m := cm.cyclic()
	switch m.status {
	case ModuleEvaluatingAsync, ModuleEvaluated, ModuleErrored:
		return index, m.evaluationError
	case ModuleEvaluating:
		return index, nil
	}
	errors.Assert(m.status == ModuleLinked, "evaluating a module that is "+m.status.String())
	a := m.realm.agent
	m.status = ModuleEvaluating
	m.dfsIndex, m.dfsAncestorIndex = index, index
	m.pendingAsyncDependencies = 0
	index++
	*stack = append(*stack, cm)

	for _, req := range m.RequestedModules {
		required := getImportedModule(cm, req)
		var c *Completion
		if index, c = innerModuleEvaluation(required, stack, index); c != nil {
			return index, c
		}
		rc, ok := required.(cyclicModule)
		if !ok {
			continue
		}
		r := rc.cyclic()
		if r.status == ModuleEvaluating {
			m.dfsAncestorIndex = min(m.dfsAncestorIndex, r.dfsAncestorIndex)
		} else {
			rc = r.cycleRoot
			r = rc.cyclic()
			if r.evaluationError != nil {
				return index, r.evaluationError
			}
		}
		if r.asyncEvaluation {
			m.pendingAsyncDependencies++
			r.asyncParentModules = append(r.asyncParentModules, cm)
		}
	}

	if m.pendingAsyncDependencies > 0 || m.hasTLA {
		errors.Assert(!m.asyncEvaluation, "module is already evaluating asynchronously")
		m.asyncEvaluation = true
		a.moduleAsyncOrder++
		m.asyncEvaluationOrder = a.moduleAsyncOrder
		if m.pendingAsyncDependencies == 0 {
			executeAsyncModule(cm)
		}
	} else if c := cm.executeModule(nil); c != nil {
		return index, c
	}

	if m.dfsAncestorIndex == m.dfsIndex {
		for {
			last := (*stack)[len(*stack)-1]
			*stack = (*stack)[:len(*stack)-1]
			lc := last.cyclic()
			if lc.asyncEvaluation {
				lc.status = ModuleEvaluatingAsync
			} else {
				lc.status = ModuleEvaluated
			}
			lc.cycleRoot = cm
			if last == cm {
				break
			}
		}
	}
	return index, nil
}

// executeAsyncModule starts a body that awaits. Its promise reports back to
// the module graph when it settles.
func executeAsyncModule(module cyclicModule) {
	m := module.cyclic()
	a, realm := m.realm.agent, m.realm
	errors.Assert(m.hasTLA, "executing a module without top-level await asynchronously")
	capability := Must(NewPromiseCapability(a, realm.Intrinsics.Promise))
	onFulfilled := NewNativeFunction(realm, "", 0, func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		asyncModuleExecutionFulfilled(module)
		return Undefined, nil
	}, module)
	onRejected := NewNativeFunction(realm, "", 1, func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		asyncModuleExecutionRejected(module, Arg(args, 0))
		return Undefined, nil
	}, module)
	PerformPromiseThen(a, capability.Promise, onFulfilled, onRejected, nil)
	if c := module.executeModule(capability); c != nil {
		MustNormal(capability.Reject(a, c.Value))
	}
}

// gatherAvailableAncestors collects the importers of module that have no
// other async dependency left.
func gatherAvailableAncestors(module cyclicModule, execList *[]cyclicModule) {
	for _, p := range module.cyclic().asyncParentModules {
		pc := p.cyclic()
		if slices.Contains(*execList, p) || pc.cycleRoot.cyclic().evaluationError != nil {
			continue
		}
		errors.Assert(pc.status == ModuleEvaluatingAsync && pc.asyncEvaluation && pc.pendingAsyncDependencies > 0,
			"async parent in unexpected state "+pc.status.String())
		pc.pendingAsyncDependencies--
		if pc.pendingAsyncDependencies == 0 {
			*execList = append(*execList, p)
			if !pc.hasTLA {
				gatherAvailableAncestors(p, execList)
			}
		}
	}
}

func asyncModuleExecutionFulfilled(module cyclicModule) {
	m := module.cyclic()
	a := m.realm.agent
	if m.status == ModuleErrored {
		return
	}
	errors.Assert(m.status == ModuleEvaluatingAsync && m.asyncEvaluation, "fulfilled module is "+m.status.String())
	m.asyncEvaluation = false
	m.status = ModuleEvaluated
	if m.topLevelCapability != nil {
		MustNormal(m.topLevelCapability.Resolve(a, Undefined))
	}
	var execList []cyclicModule
	gatherAvailableAncestors(module, &execList)
	sort.SliceStable(execList, func(i, j int) bool {
		return execList[i].cyclic().asyncEvaluationOrder < execList[j].cyclic().asyncEvaluationOrder
	})
	for _, em := range execList {
		ec := em.cyclic()
		if ec.status == ModuleErrored {
			continue
		}
		if ec.hasTLA {
			executeAsyncModule(em)
			continue
		}
		if c := em.executeModule(nil); c != nil {
			asyncModuleExecutionRejected(em, c.Value)
			continue
		}
		ec.asyncEvaluation = false
		ec.status = ModuleEvaluated
		if ec.topLevelCapability != nil {
			MustNormal(ec.topLevelCapability.Resolve(a, Undefined))
		}
	}
}

// asyncModuleExecutionRejected fails module and every importer waiting on
// it with the first rejection reason.
func asyncModuleExecutionRejected(module cyclicModule, reason Value) {
	m := module.cyclic()
	if m.status == ModuleErrored {
		return
	}
	errors.Assert(m.status == ModuleEvaluatingAsync && m.asyncEvaluation, "rejected module is "+m.status.String())
	debugModulePrintf("async module %s rejected: %s", m.specifier, Inspect(reason))
	m.fail(ThrowCompletion(reason))
	for _, p := range m.asyncParentModules {
		asyncModuleExecutionRejected(p, reason)
	}
	if m.topLevelCapability != nil {
		MustNormal(m.topLevelCapability.Reject(m.realm.agent, reason))
	}
}

package vm

import (
	"fmt"
	"slices"

	"siskin/pkg/errors"
)

// SyntheticModule is a module whose exports are produced by Go code rather
// than by evaluating source text. JSON modules and host-native modules are
// synthetic. It has no dependencies.
type SyntheticModule struct {
	moduleBase

	status      ModuleStatus
	exportNames []String
	steps       func(m *SyntheticModule) error
	capability  *PromiseCapability
}

// NewSyntheticModule creates a module exporting names. steps runs once, on
// first evaluation, and fills the exports with SetExport.
func (r *Realm) NewSyntheticModule(specifier string, names []string, steps func(m *SyntheticModule) error) *SyntheticModule {
	m := &SyntheticModule{
		moduleBase: newModuleBase(r, specifier, nil),
		status:     ModuleUnlinked,
		steps:      steps,
	}
	for _, n := range names {
		m.exportNames = append(m.exportNames, NewString(n))
	}
	return m
}

// CreateDefaultExportModule creates a module whose only export is default.
func (r *Realm) CreateDefaultExportModule(specifier string, v Value) *SyntheticModule {
	return r.NewSyntheticModule(specifier, []string{"default"}, func(m *SyntheticModule) error {
		return m.SetExport("default", v)
	})
}

// CreateJSONModule parses src as JSON with the realm's JSON.parse and wraps
// the result in a default-export module.
func (r *Realm) CreateJSONModule(specifier, src string) (*SyntheticModule, error) {
	var (
		m   *SyntheticModule
		err error
	)
	r.Scope(func() {
		v, c := r.parseJSON(NewString(src))
		if c != nil {
			err = NewException(c)
			return
		}
		debugModulePrintf("json module %s: %s", specifier, Inspect(v))
		m = r.CreateDefaultExportModule(specifier, v)
	})
	return m, err
}

func (r *Realm) parseJSON(text String) (Value, *Completion) {
	a := r.agent
	json, c := r.GlobalObject.Get(a, String("JSON"), r.GlobalObject)
	if c != nil {
		return nil, c
	}
	if IsNullish(json) {
		return nil, a.ThrowTypeError("JSON modules need the JSON built-in")
	}
	return Invoke(a, json, String("parse"), []Value{text})
}

func (m *SyntheticModule) Status() ModuleStatus { return m.status }

func (m *SyntheticModule) Mark(visit Visitor) {
	m.moduleBase.Mark(visit)
	if m.capability != nil {
		m.capability.Mark(visit)
	}
}

func (m *SyntheticModule) LoadRequestedModules(hostDefined any) *PromiseCapability {
	a := m.realm.agent
	capability := Must(NewPromiseCapability(a, m.realm.Intrinsics.Promise))
	MustNormal(capability.Resolve(a, Undefined))
	return capability
}

func (m *SyntheticModule) GetExportedNames(exportStarSet map[ModuleRecord]bool) []String {
	return slices.Clone(m.exportNames)
}

func (m *SyntheticModule) ResolveExport(name String, set resolveSet) (*ResolvedBinding, bool) {
	if !containsString(m.exportNames, name) {
		return nil, false
	}
	return &ResolvedBinding{Module: m, BindingName: name}, false
}

// Link creates one initialised binding per export.
func (m *SyntheticModule) Link() *Completion {
	if m.environment != nil {
		return nil
	}
	a := m.realm.agent
	env := NewModuleEnvironment(m.realm.GlobalEnv)
	for _, name := range m.exportNames {
		MustNormal(env.CreateMutableBinding(a, name, false))
		MustNormal(env.InitializeBinding(a, name, Undefined))
	}
	m.environment = env
	m.status = ModuleLinked
	return nil
}

// Evaluate runs the module's steps once. The capability is already settled
// when Evaluate returns.
func (m *SyntheticModule) Evaluate() *PromiseCapability {
	if m.capability != nil {
		return m.capability
	}
	errors.Assert(m.environment != nil, "evaluating an unlinked synthetic module")
	a, realm := m.realm.agent, m.realm
	m.capability = Must(NewPromiseCapability(a, realm.Intrinsics.Promise))
	ctx := &ExecutionContext{
		Realm:               realm,
		ScriptOrModule:      m,
		LexicalEnvironment:  m.environment,
		VariableEnvironment: m.environment,
		strict:              true,
	}
	var err error
	if c := a.pushContext(ctx); c != nil {
		err = NewException(c)
	} else {
		err = m.runSteps()
		a.popContext(ctx)
	}
	if err != nil {
		m.status = ModuleErrored
		MustNormal(m.capability.Reject(a, a.ThrowGoError(err).Value))
		return m.capability
	}
	m.status = ModuleEvaluated
	MustNormal(m.capability.Resolve(a, Undefined))
	return m.capability
}

func (m *SyntheticModule) runSteps() (err error) {
	if m.steps == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(*errors.AssertionError); ok {
				panic(r)
			}
			err = fmt.Errorf("module %s: %v", m.specifier, r)
		}
	}()
	return m.steps(m)
}

// SetExport sets the value of an export. The module must be linked.
func (m *SyntheticModule) SetExport(name string, v Value) error {
	key := NewString(name)
	if m.environment == nil || !containsString(m.exportNames, key) {
		return fmt.Errorf("module %s has no export named %q", m.specifier, name)
	}
	if c := m.environment.SetMutableBinding(m.realm.agent, key, v, true); c != nil {
		return NewException(c)
	}
	return nil
}

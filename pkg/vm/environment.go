package vm

import (
	"fmt"

	"siskin/pkg/errors"
)

// Environment is an environment record: one scope's bindings plus the link
// to the enclosing scope.
type Environment interface {
	HasBinding(a *Agent, name String) (bool, *Completion)
	CreateMutableBinding(a *Agent, name String, deletable bool) *Completion
	CreateImmutableBinding(a *Agent, name String, strict bool) *Completion
	InitializeBinding(a *Agent, name String, v Value) *Completion
	SetMutableBinding(a *Agent, name String, v Value, strict bool) *Completion
	GetBindingValue(a *Agent, name String, strict bool) (Value, *Completion)
	DeleteBinding(a *Agent, name String) (bool, *Completion)
	HasThisBinding() bool
	HasSuperBinding() bool
	WithBaseObject() Value
	Outer() Environment
	Mark(visit Visitor)
}

// CreateBinding creates a mutable or immutable (strict) binding.
func CreateBinding(a *Agent, env Environment, name String, mutable bool) *Completion {
	if mutable {
		return env.CreateMutableBinding(a, name, false)
	}
	return env.CreateImmutableBinding(a, name, true)
}

// thisEnvironment is implemented by records that can carry a this binding.
type thisEnvironment interface {
	GetThisBinding(a *Agent) (Value, *Completion)
}

func referenceErrorNotDefined(a *Agent, name String) *Completion {
	return a.ThrowReferenceError(fmt.Sprintf("%s is not defined", name))
}

func referenceErrorTDZ(a *Agent, name String) *Completion {
	return a.ThrowReferenceError(fmt.Sprintf("Cannot access '%s' before initialization", name))
}

// --- Declarative ---

type binding struct {
	value       Value
	mutable     bool
	initialized bool
	deletable   bool
	strict      bool

	// Indirect bindings created by module imports.
	module ModuleRecord
	target String
}

// DeclarativeEnvironment holds let, const, class, function and parameter
// bindings.
type DeclarativeEnvironment struct {
	outer    Environment
	bindings map[String]*binding
}

// NewDeclarativeEnvironment creates an empty declarative record.
func NewDeclarativeEnvironment(outer Environment) *DeclarativeEnvironment {
	return &DeclarativeEnvironment{outer: outer}
}

func (e *DeclarativeEnvironment) lookup(name String) *binding {
	if e.bindings == nil {
		return nil
	}
	return e.bindings[name]
}

func (e *DeclarativeEnvironment) add(name String, b *binding) {
	if e.bindings == nil {
		e.bindings = make(map[String]*binding, 4)
	}
	e.bindings[name] = b
}

func (e *DeclarativeEnvironment) HasBinding(a *Agent, name String) (bool, *Completion) {
	return e.lookup(name) != nil, nil
}

func (e *DeclarativeEnvironment) CreateMutableBinding(a *Agent, name String, deletable bool) *Completion {
	errors.Assert(e.lookup(name) == nil, "duplicate binding "+name.String())
	e.add(name, &binding{mutable: true, deletable: deletable})
	return nil
}

func (e *DeclarativeEnvironment) CreateImmutableBinding(a *Agent, name String, strict bool) *Completion {
	errors.Assert(e.lookup(name) == nil, "duplicate binding "+name.String())
	e.add(name, &binding{strict: strict})
	return nil
}

func (e *DeclarativeEnvironment) InitializeBinding(a *Agent, name String, v Value) *Completion {
	b := e.lookup(name)
	errors.Assert(b != nil && !b.initialized, "InitializeBinding of unknown or initialised binding "+name.String())
	b.value = v
	b.initialized = true
	return nil
}

func (e *DeclarativeEnvironment) SetMutableBinding(a *Agent, name String, v Value, strict bool) *Completion {
	b := e.lookup(name)
	if b == nil {
		if strict {
			return referenceErrorNotDefined(a, name)
		}
		e.add(name, &binding{mutable: true, deletable: true, initialized: true, value: v})
		return nil
	}
	if b.strict {
		strict = true
	}
	switch {
	case !b.initialized:
		return referenceErrorTDZ(a, name)
	case b.mutable:
		b.value = v
	case strict:
		return a.ThrowTypeError("Assignment to constant variable.")
	}
	return nil
}

func (e *DeclarativeEnvironment) GetBindingValue(a *Agent, name String, strict bool) (Value, *Completion) {
	b := e.lookup(name)
	if b == nil {
		return nil, referenceErrorNotDefined(a, name)
	}
	if b.module != nil {
		return getIndirectBinding(a, b)
	}
	if !b.initialized {
		return nil, referenceErrorTDZ(a, name)
	}
	return b.value, nil
}

func (e *DeclarativeEnvironment) DeleteBinding(a *Agent, name String) (bool, *Completion) {
	b := e.lookup(name)
	if b == nil {
		return true, nil
	}
	if !b.deletable {
		return false, nil
	}
	delete(e.bindings, name)
	return true, nil
}

func (e *DeclarativeEnvironment) HasThisBinding() bool  { return false }
func (e *DeclarativeEnvironment) HasSuperBinding() bool { return false }
func (e *DeclarativeEnvironment) WithBaseObject() Value { return Undefined }
func (e *DeclarativeEnvironment) Outer() Environment    { return e.outer }

func (e *DeclarativeEnvironment) Mark(visit Visitor) {
	if e == nil {
		return
	}
	if e.outer != nil {
		visit(e.outer)
	}
	for _, b := range e.bindings {
		visitValue(visit, b.value)
		if b.module != nil {
			visit(b.module)
		}
	}
}

// --- Function ---

// ThisBindingStatus tracks whether a function's this has been bound.
type ThisBindingStatus uint8

const (
	ThisLexical ThisBindingStatus = iota
	ThisInitialized
	ThisUninitialized
)

// FunctionEnvironment is the top-level scope of a function invocation.
type FunctionEnvironment struct {
	DeclarativeEnvironment
	thisValue      Value
	ThisStatus     ThisBindingStatus
	FunctionObject *Object
	NewTarget      Value
}

// NewFunctionEnvironment creates the environment for a call of f.
func NewFunctionEnvironment(f *Object, newTarget Value) *FunctionEnvironment {
	fn := f.fn.(*ECMAScriptFunction)
	env := &FunctionEnvironment{
		DeclarativeEnvironment: DeclarativeEnvironment{outer: fn.Environment},
		FunctionObject:         f,
		NewTarget:              newTarget,
		ThisStatus:             ThisUninitialized,
	}
	if fn.ThisMode == ThisModeLexical {
		env.ThisStatus = ThisLexical
	}
	return env
}

// BindThisValue initialises the this binding.
func (e *FunctionEnvironment) BindThisValue(a *Agent, v Value) *Completion {
	errors.Assert(e.ThisStatus != ThisLexical, "BindThisValue on lexical this")
	if e.ThisStatus == ThisInitialized {
		return a.ThrowReferenceError("Super constructor may only be called once")
	}
	e.thisValue = v
	e.ThisStatus = ThisInitialized
	return nil
}

func (e *FunctionEnvironment) HasThisBinding() bool {
	return e.ThisStatus != ThisLexical
}

func (e *FunctionEnvironment) HasSuperBinding() bool {
	if e.ThisStatus == ThisLexical {
		return false
	}
	return e.FunctionObject.fn.(*ECMAScriptFunction).HomeObject != nil
}

// GetThisBinding returns this or throws before super() in derived
// constructors.
func (e *FunctionEnvironment) GetThisBinding(a *Agent) (Value, *Completion) {
	errors.Assert(e.ThisStatus != ThisLexical, "GetThisBinding on lexical this")
	if e.ThisStatus == ThisUninitialized {
		return nil, a.ThrowReferenceError("Must call super constructor in derived class before accessing 'this' or returning from derived constructor")
	}
	return e.thisValue, nil
}

// GetSuperBase returns the object super property lookups start from.
func (e *FunctionEnvironment) GetSuperBase(a *Agent) (Value, *Completion) {
	home := e.FunctionObject.fn.(*ECMAScriptFunction).HomeObject
	if home == nil {
		return Undefined, nil
	}
	proto, c := home.GetPrototypeOf(a)
	if c != nil {
		return nil, c
	}
	if proto == nil {
		return Null, nil
	}
	return proto, nil
}

func (e *FunctionEnvironment) Mark(visit Visitor) {
	if e == nil {
		return
	}
	e.DeclarativeEnvironment.Mark(visit)
	visitValue(visit, e.thisValue)
	visit(e.FunctionObject)
	visitValue(visit, e.NewTarget)
}

// --- Object ---

// ObjectEnvironment exposes the properties of an object as bindings, for
// `with` statements and the global object.
type ObjectEnvironment struct {
	BindingObject     *Object
	IsWithEnvironment bool
	outer             Environment
}

// NewObjectEnvironment creates an object record.
func NewObjectEnvironment(o *Object, with bool, outer Environment) *ObjectEnvironment {
	return &ObjectEnvironment{BindingObject: o, IsWithEnvironment: with, outer: outer}
}

func (e *ObjectEnvironment) HasBinding(a *Agent, name String) (bool, *Completion) {
	found, c := e.BindingObject.HasProperty(a, name)
	if c != nil || !found || !e.IsWithEnvironment {
		return found, c
	}
	unscopables, c := Get(a, e.BindingObject, SymbolUnscopables)
	if c != nil {
		return false, c
	}
	if u, ok := unscopables.(*Object); ok {
		blocked, c := Get(a, u, name)
		if c != nil {
			return false, c
		}
		if ToBoolean(blocked) {
			return false, nil
		}
	}
	return true, nil
}

func (e *ObjectEnvironment) CreateMutableBinding(a *Agent, name String, deletable bool) *Completion {
	attrs := AttrWritable | AttrEnumerable
	if deletable {
		attrs |= AttrConfigurable
	}
	return DefinePropertyOrThrow(a, e.BindingObject, name, DataDescriptor(Undefined, attrs))
}

func (e *ObjectEnvironment) CreateImmutableBinding(a *Agent, name String, strict bool) *Completion {
	errors.Assertf("CreateImmutableBinding on object environment for %s", name)
	return nil
}

func (e *ObjectEnvironment) InitializeBinding(a *Agent, name String, v Value) *Completion {
	return e.SetMutableBinding(a, name, v, false)
}

func (e *ObjectEnvironment) SetMutableBinding(a *Agent, name String, v Value, strict bool) *Completion {
	exists, c := e.BindingObject.HasProperty(a, name)
	if c != nil {
		return c
	}
	if !exists && strict {
		return referenceErrorNotDefined(a, name)
	}
	return Set(a, e.BindingObject, name, v, strict)
}

func (e *ObjectEnvironment) GetBindingValue(a *Agent, name String, strict bool) (Value, *Completion) {
	exists, c := e.BindingObject.HasProperty(a, name)
	if c != nil {
		return nil, c
	}
	if !exists {
		if strict {
			return nil, referenceErrorNotDefined(a, name)
		}
		return Undefined, nil
	}
	return Get(a, e.BindingObject, name)
}

func (e *ObjectEnvironment) DeleteBinding(a *Agent, name String) (bool, *Completion) {
	return e.BindingObject.Delete(a, name)
}

func (e *ObjectEnvironment) HasThisBinding() bool  { return false }
func (e *ObjectEnvironment) HasSuperBinding() bool { return false }
func (e *ObjectEnvironment) Outer() Environment    { return e.outer }

func (e *ObjectEnvironment) WithBaseObject() Value {
	if e.IsWithEnvironment {
		return e.BindingObject
	}
	return Undefined
}

func (e *ObjectEnvironment) Mark(visit Visitor) {
	if e == nil {
		return
	}
	visit(e.BindingObject)
	if e.outer != nil {
		visit(e.outer)
	}
}

// --- Global ---

// GlobalEnvironment combines the global object with the top-level lexical
// declarations of scripts.
type GlobalEnvironment struct {
	ObjectRecord      *ObjectEnvironment
	GlobalThisValue   *Object
	DeclarativeRecord *DeclarativeEnvironment
	VarNames          map[String]bool
}

// NewGlobalEnvironment creates the global record for a realm.
func NewGlobalEnvironment(global *Object, thisValue *Object) *GlobalEnvironment {
	return &GlobalEnvironment{
		ObjectRecord:      NewObjectEnvironment(global, false, nil),
		GlobalThisValue:   thisValue,
		DeclarativeRecord: NewDeclarativeEnvironment(nil),
		VarNames:          make(map[String]bool),
	}
}

func (e *GlobalEnvironment) HasBinding(a *Agent, name String) (bool, *Completion) {
	if e.DeclarativeRecord.lookup(name) != nil {
		return true, nil
	}
	return e.ObjectRecord.HasBinding(a, name)
}

func (e *GlobalEnvironment) CreateMutableBinding(a *Agent, name String, deletable bool) *Completion {
	if e.DeclarativeRecord.lookup(name) != nil {
		return a.ThrowTypeError(fmt.Sprintf("Identifier '%s' has already been declared", name))
	}
	return e.DeclarativeRecord.CreateMutableBinding(a, name, deletable)
}

func (e *GlobalEnvironment) CreateImmutableBinding(a *Agent, name String, strict bool) *Completion {
	if e.DeclarativeRecord.lookup(name) != nil {
		return a.ThrowTypeError(fmt.Sprintf("Identifier '%s' has already been declared", name))
	}
	return e.DeclarativeRecord.CreateImmutableBinding(a, name, strict)
}

func (e *GlobalEnvironment) InitializeBinding(a *Agent, name String, v Value) *Completion {
	if e.DeclarativeRecord.lookup(name) != nil {
		return e.DeclarativeRecord.InitializeBinding(a, name, v)
	}
	return e.ObjectRecord.InitializeBinding(a, name, v)
}

func (e *GlobalEnvironment) SetMutableBinding(a *Agent, name String, v Value, strict bool) *Completion {
	if e.DeclarativeRecord.lookup(name) != nil {
		return e.DeclarativeRecord.SetMutableBinding(a, name, v, strict)
	}
	return e.ObjectRecord.SetMutableBinding(a, name, v, strict)
}

func (e *GlobalEnvironment) GetBindingValue(a *Agent, name String, strict bool) (Value, *Completion) {
	if e.DeclarativeRecord.lookup(name) != nil {
		return e.DeclarativeRecord.GetBindingValue(a, name, strict)
	}
	return e.ObjectRecord.GetBindingValue(a, name, strict)
}

func (e *GlobalEnvironment) DeleteBinding(a *Agent, name String) (bool, *Completion) {
	if e.DeclarativeRecord.lookup(name) != nil {
		return e.DeclarativeRecord.DeleteBinding(a, name)
	}
	global := e.ObjectRecord.BindingObject
	exists, c := HasOwnProperty(a, global, name)
	if c != nil {
		return false, c
	}
	if !exists {
		return true, nil
	}
	status, c := e.ObjectRecord.DeleteBinding(a, name)
	if c != nil {
		return false, c
	}
	if status {
		delete(e.VarNames, name)
	}
	return status, nil
}

func (e *GlobalEnvironment) HasThisBinding() bool  { return true }
func (e *GlobalEnvironment) HasSuperBinding() bool { return false }
func (e *GlobalEnvironment) WithBaseObject() Value { return Undefined }
func (e *GlobalEnvironment) Outer() Environment    { return nil }

// GetThisBinding returns the global this value.
func (e *GlobalEnvironment) GetThisBinding(a *Agent) (Value, *Completion) {
	return e.GlobalThisValue, nil
}

// HasVarDeclaration reports a var or function declared by script code.
func (e *GlobalEnvironment) HasVarDeclaration(name String) bool {
	return e.VarNames[name]
}

// HasLexicalDeclaration reports a top-level let, const or class.
func (e *GlobalEnvironment) HasLexicalDeclaration(name String) bool {
	return e.DeclarativeRecord.lookup(name) != nil
}

// HasRestrictedGlobalProperty reports a non-configurable global property.
func (e *GlobalEnvironment) HasRestrictedGlobalProperty(a *Agent, name String) (bool, *Completion) {
	desc, c := e.ObjectRecord.BindingObject.GetOwnProperty(a, name)
	if c != nil || desc == nil {
		return false, c
	}
	return !desc.Configurable, nil
}

// CanDeclareGlobalVar reports whether a var binding may be created.
func (e *GlobalEnvironment) CanDeclareGlobalVar(a *Agent, name String) (bool, *Completion) {
	global := e.ObjectRecord.BindingObject
	has, c := HasOwnProperty(a, global, name)
	if c != nil || has {
		return has, c
	}
	return global.IsExtensible(a)
}

// CanDeclareGlobalFunction reports whether a function binding may be created.
func (e *GlobalEnvironment) CanDeclareGlobalFunction(a *Agent, name String) (bool, *Completion) {
	global := e.ObjectRecord.BindingObject
	existing, c := global.GetOwnProperty(a, name)
	if c != nil {
		return false, c
	}
	if existing == nil {
		return global.IsExtensible(a)
	}
	if existing.Configurable {
		return true, nil
	}
	return existing.IsDataDescriptor() && existing.Writable && existing.Enumerable, nil
}

// CreateGlobalVarBinding declares a var on the global object.
func (e *GlobalEnvironment) CreateGlobalVarBinding(a *Agent, name String, deletable bool) *Completion {
	global := e.ObjectRecord.BindingObject
	has, c := HasOwnProperty(a, global, name)
	if c != nil {
		return c
	}
	extensible, c := global.IsExtensible(a)
	if c != nil {
		return c
	}
	if !has && extensible {
		if c := e.ObjectRecord.CreateMutableBinding(a, name, deletable); c != nil {
			return c
		}
		if c := e.ObjectRecord.InitializeBinding(a, name, Undefined); c != nil {
			return c
		}
	}
	e.VarNames[name] = true
	return nil
}

// CreateGlobalFunctionBinding declares a function on the global object.
func (e *GlobalEnvironment) CreateGlobalFunctionBinding(a *Agent, name String, v Value, deletable bool) *Completion {
	global := e.ObjectRecord.BindingObject
	existing, c := global.GetOwnProperty(a, name)
	if c != nil {
		return c
	}
	var desc PropertyDescriptor
	if existing == nil || existing.Configurable {
		attrs := AttrWritable | AttrEnumerable
		if deletable {
			attrs |= AttrConfigurable
		}
		desc = DataDescriptor(v, attrs)
	} else {
		desc = PropertyDescriptor{Value: v, Has: HasValue}
	}
	if c := DefinePropertyOrThrow(a, global, name, desc); c != nil {
		return c
	}
	if c := Set(a, global, name, v, false); c != nil {
		return c
	}
	e.VarNames[name] = true
	return nil
}

func (e *GlobalEnvironment) Mark(visit Visitor) {
	if e == nil {
		return
	}
	visit(e.ObjectRecord)
	visit(e.GlobalThisValue)
	visit(e.DeclarativeRecord)
}

// --- Module ---

// ModuleEnvironment is the top-level scope of a module. Imported names are
// indirect bindings into the exporting module's environment.
type ModuleEnvironment struct {
	DeclarativeEnvironment
}

// NewModuleEnvironment creates a module record.
func NewModuleEnvironment(outer Environment) *ModuleEnvironment {
	return &ModuleEnvironment{DeclarativeEnvironment{outer: outer}}
}

// CreateImportBinding creates an initialised, immutable binding that reads
// target from module m.
func (e *ModuleEnvironment) CreateImportBinding(name String, m ModuleRecord, target String) {
	errors.Assert(e.lookup(name) == nil, "duplicate import binding "+name.String())
	e.add(name, &binding{module: m, target: target, initialized: true, strict: true})
}

func getIndirectBinding(a *Agent, b *binding) (Value, *Completion) {
	env := b.module.Environment()
	if env == nil {
		return nil, a.ThrowReferenceError(fmt.Sprintf("Cannot access '%s' before its module is linked", b.target))
	}
	return env.GetBindingValue(a, b.target, true)
}

func (e *ModuleEnvironment) SetMutableBinding(a *Agent, name String, v Value, strict bool) *Completion {
	if b := e.lookup(name); b != nil && b.module != nil {
		return a.ThrowTypeError("Assignment to constant variable.")
	}
	return e.DeclarativeEnvironment.SetMutableBinding(a, name, v, strict)
}

func (e *ModuleEnvironment) HasThisBinding() bool { return true }

// GetThisBinding is always undefined in modules.
func (e *ModuleEnvironment) GetThisBinding(a *Agent) (Value, *Completion) {
	return Undefined, nil
}

// --- resolution ---

// GetThisEnvironment finds the nearest record with a this binding.
func GetThisEnvironment(env Environment) Environment {
	for env != nil {
		if env.HasThisBinding() {
			return env
		}
		env = env.Outer()
	}
	errors.Assertf("no this environment")
	return nil
}

// GetIdentifierReference walks env outwards looking for name.
func GetIdentifierReference(a *Agent, env Environment, name String, strict bool) (*Reference, *Completion) {
	for env != nil {
		exists, c := env.HasBinding(a, name)
		if c != nil {
			return nil, c
		}
		if exists {
			return &Reference{env: env, name: name, strict: strict}, nil
		}
		env = env.Outer()
	}
	return &Reference{name: name, strict: strict, unresolvable: true}, nil
}

// ResolveBinding resolves name from env, or from the running context's
// lexical environment when env is nil.
func (a *Agent) ResolveBinding(name String, env Environment) (*Reference, *Completion) {
	ctx := a.RunningContext()
	if env == nil {
		env = ctx.LexicalEnvironment
	}
	return GetIdentifierReference(a, env, name, ctx.strict)
}

// ResolveThisBinding returns the this value of the running code.
func (a *Agent) ResolveThisBinding() (Value, *Completion) {
	env := GetThisEnvironment(a.RunningContext().LexicalEnvironment)
	return env.(thisEnvironment).GetThisBinding(a)
}

// GetNewTarget returns new.target for the running function.
func (a *Agent) GetNewTarget() Value {
	env := GetThisEnvironment(a.RunningContext().LexicalEnvironment)
	if fe, ok := env.(*FunctionEnvironment); ok && fe.NewTarget != nil {
		return fe.NewTarget
	}
	return Undefined
}

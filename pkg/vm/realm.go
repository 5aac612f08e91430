package vm

import (
	"fmt"
	"math"

	"github.com/dop251/goja/ast"

	"siskin/pkg/parser"
)

// Referrer is a script, module or realm that can request modules. Loaded
// modules are recorded per referrer, keyed by specifier and attributes.
type Referrer interface {
	Marker
	// Specifier names the referrer for the host, e.g. a resolved path. It
	// is empty for realms.
	Specifier() string
	loadedModules() map[string]ModuleRecord
}

// ModuleCache holds the modules a host loader created, keyed by resolved
// path and import attributes. Each key is fetched at most once per realm.
type ModuleCache struct {
	entries map[string]ModuleRecord
}

// ModuleCacheKey builds the cache key of a resolved module.
func ModuleCacheKey(path string, attrs []parser.ImportAttribute) string {
	return parser.ModuleRequest{Specifier: path, Attributes: attrs}.Key()
}

func (c *ModuleCache) Get(key string) (ModuleRecord, bool) {
	m, ok := c.entries[key]
	return m, ok
}

func (c *ModuleCache) Put(key string, m ModuleRecord) {
	c.entries[key] = m
}

func (c *ModuleCache) Len() int {
	return len(c.entries)
}

func (c *ModuleCache) Mark(visit Visitor) {
	for _, m := range c.entries {
		visit(m)
	}
}

// Realm is a global environment with its own set of intrinsics.
type Realm struct {
	agent *Agent

	Intrinsics   Intrinsics
	GlobalObject *Object
	GlobalEnv    *GlobalEnvironment

	// HostDefined is free for the embedder.
	HostDefined any

	templates map[*ast.TemplateLiteral]*Object
	modules   *ModuleCache
	loaded    map[string]ModuleRecord
}

// NewRealm creates a realm with the core intrinsics and a global object,
// then runs the agent's realm initializers in priority order.
func NewRealm(a *Agent, hostDefined any) (*Realm, error) {
	r := &Realm{
		agent:       a,
		HostDefined: hostDefined,
		templates:   make(map[*ast.TemplateLiteral]*Object),
		modules:     &ModuleCache{entries: make(map[string]ModuleRecord)},
		loaded:      make(map[string]ModuleRecord),
	}
	a.realms = append(a.realms, r)

	var err error
	r.Scope(func() {
		r.createIntrinsics()
		r.GlobalObject = OrdinaryObjectCreate(r.Intrinsics.ObjectPrototype)
		r.GlobalObject.Class = "global"
		r.GlobalEnv = NewGlobalEnvironment(r.GlobalObject, r.GlobalObject)
		r.setDefaultGlobalBindings()
		for _, init := range sortInitializers(a.options.RealmInitializers) {
			debugPrintf("realm init: %s (priority %d)", init.Name(), init.Priority())
			if e := init.InitRealm(r); e != nil {
				err = fmt.Errorf("initializing %s: %w", init.Name(), e)
				return
			}
		}
	})
	if err != nil {
		a.realms = a.realms[:len(a.realms)-1]
		return nil, err
	}
	return r, nil
}

// Agent returns the agent that owns r.
func (r *Realm) Agent() *Agent { return r.agent }

// Modules returns the realm's host module cache.
func (r *Realm) Modules() *ModuleCache { return r.modules }

// Specifier is empty: a realm is the referrer of host-initiated imports.
func (r *Realm) Specifier() string { return "" }

func (r *Realm) loadedModules() map[string]ModuleRecord { return r.loaded }

// Scope runs fn with an execution context for r on top of the stack. The
// context is popped when fn returns or panics, along with anything fn left
// above it.
func (r *Realm) Scope(fn func()) {
	a := r.agent
	depth := len(a.stack)
	a.stack = append(a.stack, &ExecutionContext{Realm: r})
	defer func() {
		clear(a.stack[depth:])
		a.stack = a.stack[:depth]
	}()
	fn()
}

// GC collects the agent's heap.
func (r *Realm) GC() GCStats {
	return r.agent.GC()
}

func (r *Realm) Mark(visit Visitor) {
	r.Intrinsics.each(func(o *Object) { visit(o) })
	if r.GlobalObject != nil {
		visit(r.GlobalObject)
	}
	if r.GlobalEnv != nil {
		visit(r.GlobalEnv)
	}
	for _, o := range r.templates {
		visit(o)
	}
	visit(r.modules)
	for _, m := range r.loaded {
		visit(m)
	}
	if m, ok := r.HostDefined.(Marker); ok {
		visit(m)
	}
}

// createIntrinsics builds the core intrinsics. Later steps depend on the
// objects created by earlier ones.
func (r *Realm) createIntrinsics() {
	i := &r.Intrinsics
	i.ObjectPrototype = OrdinaryObjectCreate(nil)
	i.FunctionPrototype = CreateBuiltinFunction(r, func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		return Undefined, nil
	}, 0, String(""), BuiltinOptions{Prototype: i.ObjectPrototype})

	i.Object = DefineConstructor(r, "Object", 1, objectConstructor, i.ObjectPrototype, BuiltinOptions{})
	i.Function = DefineConstructor(r, "Function", 1, dynamicFunctionConstructor(KindNormal), i.FunctionPrototype, BuiltinOptions{})

	i.BooleanPrototype = OrdinaryObjectCreate(i.ObjectPrototype)
	i.BooleanPrototype.Class, i.BooleanPrototype.Internal = "Boolean", &PrimitiveWrapper{Value: False}
	i.NumberPrototype = OrdinaryObjectCreate(i.ObjectPrototype)
	i.NumberPrototype.Class, i.NumberPrototype.Internal = "Number", &PrimitiveWrapper{Value: Number(0)}
	i.StringPrototype = StringCreate(String(""), i.ObjectPrototype)
	i.SymbolPrototype = OrdinaryObjectCreate(i.ObjectPrototype)
	i.BigIntPrototype = OrdinaryObjectCreate(i.ObjectPrototype)

	r.initArray()
	r.initErrors()
	i.ThrowTypeError = CreateBuiltinFunction(r, func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		return nil, a.ThrowTypeError("'caller', 'callee', and 'arguments' properties may not be accessed on strict mode functions or the arguments objects for calls to them")
	}, 0, String(""), BuiltinOptions{})
	Must(SetIntegrityLevel(r.agent, i.ThrowTypeError, Frozen))

	r.initIterators()
	r.initGenerators()
	r.initAsyncFunctions()
	r.initAsyncGenerators()
	r.initPromise()
	i.Eval = NewNativeFunction(r, "eval", 1, indirectEval)
}

func (r *Realm) setDefaultGlobalBindings() {
	g, i := r.GlobalObject, &r.Intrinsics
	g.Put(String("globalThis"), r.GlobalEnv.GlobalThisValue, AttrDefault)
	g.Put(String("undefined"), Undefined, AttrNone)
	g.Put(String("NaN"), Number(math.NaN()), AttrNone)
	g.Put(String("Infinity"), Number(math.Inf(1)), AttrNone)
	for _, global := range []struct {
		name string
		o    *Object
	}{
		{"Object", i.Object},
		{"Function", i.Function},
		{"Array", i.Array},
		{"Error", i.Error},
		{"TypeError", i.TypeError},
		{"RangeError", i.RangeError},
		{"SyntaxError", i.SyntaxError},
		{"ReferenceError", i.ReferenceError},
		{"EvalError", i.EvalError},
		{"URIError", i.URIError},
		{"AggregateError", i.AggregateError},
		{"Promise", i.Promise},
		{"eval", i.Eval},
	} {
		r.DefineGlobal(global.name, global.o)
	}
}

func objectConstructor(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
	if newTarget != nil && newTarget != a.RunningContext().Function {
		return OrdinaryCreateFromConstructor(a, newTarget, func(i *Intrinsics) *Object { return i.ObjectPrototype })
	}
	v := Arg(args, 0)
	if IsNullish(v) {
		return OrdinaryObjectCreate(a.CurrentRealm().Intrinsics.ObjectPrototype), nil
	}
	return ToObject(a, v)
}

func dynamicFunctionConstructor(kind FunctionKind) NativeFunction {
	return func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		return a.CreateDynamicFunction(a.RunningContext().Function, newTarget, kind, args)
	}
}

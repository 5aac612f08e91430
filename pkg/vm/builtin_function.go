package vm

import "fmt"

// NativeFunction implements a built-in. newTarget is nil for [[Call]].
type NativeFunction func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion)

// BuiltinFunction is a function implemented in Go.
type BuiltinFunction struct {
	realm       *Realm
	Behavior    NativeFunction
	constructor bool
	InitialName String

	// Captures lists the heap references the Go closure holds.
	Captures []Marker
}

func (f *BuiltinFunction) IsConstructor() bool { return f.constructor }
func (f *BuiltinFunction) Realm() *Realm       { return f.realm }

func (f *BuiltinFunction) Mark(visit Visitor) {
	visit(f.realm)
	for _, m := range f.Captures {
		visit(m)
	}
}

func (f *BuiltinFunction) Call(a *Agent, fo *Object, this Value, args []Value) (Value, *Completion) {
	return f.invoke(a, fo, this, args, nil)
}

func (f *BuiltinFunction) Construct(a *Agent, fo *Object, args []Value, newTarget *Object) (*Object, *Completion) {
	v, c := f.invoke(a, fo, Undefined, args, newTarget)
	if c != nil {
		return nil, c
	}
	o, ok := v.(*Object)
	if !ok {
		return nil, a.ThrowTypeError(fmt.Sprintf("%s did not construct an object", f.InitialName))
	}
	return o, nil
}

func (f *BuiltinFunction) invoke(a *Agent, fo *Object, this Value, args []Value, newTarget *Object) (Value, *Completion) {
	ctx := &ExecutionContext{Function: fo, Realm: f.realm, strict: true}
	if c := a.pushContext(ctx); c != nil {
		return nil, c
	}
	v, c := f.Behavior(a, this, args, newTarget)
	a.popContext(ctx)
	if c == nil && v == nil {
		v = Undefined
	}
	return v, c
}

// BuiltinOptions adjust CreateBuiltinFunction.
type BuiltinOptions struct {
	Prototype   *Object // defaults to %Function.prototype%
	Constructor bool
	Prefix      string
	Captures    []Marker
}

// CreateBuiltinFunction allocates a built-in function object in realm with
// the given name and length.
func CreateBuiltinFunction(realm *Realm, behavior NativeFunction, length int, name PropertyKey, opts BuiltinOptions) *Object {
	proto := opts.Prototype
	if proto == nil {
		proto = realm.Intrinsics.FunctionPrototype
	}
	bf := &BuiltinFunction{
		realm:       realm,
		Behavior:    behavior,
		constructor: opts.Constructor,
		Captures:    opts.Captures,
	}
	o := OrdinaryObjectCreate(proto)
	o.Class = "Function"
	o.fn = bf
	SetFunctionLength(o, length)
	SetFunctionName(o, name, opts.Prefix)
	if s, ok := o.OwnValue(String("name")); ok {
		bf.InitialName = s.(String)
	}
	return o
}

// NewNativeFunction is CreateBuiltinFunction for plain, non-constructor
// functions. captures lists values the closure keeps alive.
func NewNativeFunction(realm *Realm, name string, length int, behavior NativeFunction, captures ...Marker) *Object {
	return CreateBuiltinFunction(realm, behavior, length, NewString(name), BuiltinOptions{Captures: captures})
}

// Arg returns args[i] or undefined.
func Arg(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return Undefined
}

// --- bound functions ---

// BoundFunction is the exotic function Function.prototype.bind returns.
type BoundFunction struct {
	Target    *Object
	BoundThis Value
	BoundArgs []Value
}

func (f *BoundFunction) IsConstructor() bool { return f.Target.fn.IsConstructor() }
func (f *BoundFunction) Realm() *Realm       { return f.Target.fn.Realm() }

func (f *BoundFunction) Mark(visit Visitor) {
	visit(f.Target)
	visitValue(visit, f.BoundThis)
	visitValues(visit, f.BoundArgs)
}

func (f *BoundFunction) Call(a *Agent, fo *Object, this Value, args []Value) (Value, *Completion) {
	return Call(a, f.Target, f.BoundThis, append(append([]Value(nil), f.BoundArgs...), args...))
}

func (f *BoundFunction) Construct(a *Agent, fo *Object, args []Value, newTarget *Object) (*Object, *Completion) {
	if newTarget == fo {
		newTarget = f.Target
	}
	return Construct(a, f.Target, append(append([]Value(nil), f.BoundArgs...), args...), newTarget)
}

// BoundFunctionCreate implements BoundFunctionCreate.
func BoundFunctionCreate(a *Agent, target *Object, boundThis Value, boundArgs []Value) (*Object, *Completion) {
	proto, c := target.GetPrototypeOf(a)
	if c != nil {
		return nil, c
	}
	o := OrdinaryObjectCreate(proto)
	o.Class = "Function"
	o.fn = &BoundFunction{Target: target, BoundThis: boundThis, BoundArgs: boundArgs}
	return o, nil
}

package vm

import "sort"

// Intrinsics are the well-known objects of a realm. The core fields are
// created by NewRealm; initializers may register more by name.
type Intrinsics struct {
	ObjectPrototype   *Object
	Object            *Object
	FunctionPrototype *Object
	Function          *Object
	ArrayPrototype    *Object
	Array             *Object

	BooleanPrototype *Object
	NumberPrototype  *Object
	StringPrototype  *Object
	SymbolPrototype  *Object
	BigIntPrototype  *Object

	ErrorPrototype          *Object
	Error                   *Object
	TypeErrorPrototype      *Object
	TypeError               *Object
	RangeErrorPrototype     *Object
	RangeError              *Object
	SyntaxErrorPrototype    *Object
	SyntaxError             *Object
	ReferenceErrorPrototype *Object
	ReferenceError          *Object
	EvalErrorPrototype      *Object
	EvalError               *Object
	URIErrorPrototype       *Object
	URIError                *Object
	AggregateErrorPrototype *Object
	AggregateError          *Object

	IteratorPrototype              *Object
	AsyncIteratorPrototype         *Object
	ArrayIteratorPrototype         *Object
	AsyncFromSyncIteratorPrototype *Object

	GeneratorFunction               *Object
	GeneratorFunctionPrototype      *Object
	GeneratorPrototype              *Object
	AsyncFunction                   *Object
	AsyncFunctionPrototype          *Object
	AsyncGeneratorFunction          *Object
	AsyncGeneratorFunctionPrototype *Object
	AsyncGeneratorPrototype         *Object

	Promise          *Object
	PromisePrototype *Object

	ThrowTypeError *Object
	Eval           *Object

	extra map[string]*Object
}

// Register adds a named intrinsic, e.g. "%Map.prototype%".
func (i *Intrinsics) Register(name string, o *Object) {
	if i.extra == nil {
		i.extra = make(map[string]*Object)
	}
	i.extra[name] = o
}

// Lookup returns a registered intrinsic.
func (i *Intrinsics) Lookup(name string) (*Object, bool) {
	o, ok := i.extra[name]
	return o, ok
}

func (i *Intrinsics) each(fn func(*Object)) {
	core := [...]*Object{
		i.ObjectPrototype, i.Object, i.FunctionPrototype, i.Function, i.ArrayPrototype, i.Array,
		i.BooleanPrototype, i.NumberPrototype, i.StringPrototype, i.SymbolPrototype, i.BigIntPrototype,
		i.ErrorPrototype, i.Error, i.TypeErrorPrototype, i.TypeError, i.RangeErrorPrototype, i.RangeError,
		i.SyntaxErrorPrototype, i.SyntaxError, i.ReferenceErrorPrototype, i.ReferenceError,
		i.EvalErrorPrototype, i.EvalError, i.URIErrorPrototype, i.URIError,
		i.AggregateErrorPrototype, i.AggregateError,
		i.IteratorPrototype, i.AsyncIteratorPrototype, i.ArrayIteratorPrototype, i.AsyncFromSyncIteratorPrototype,
		i.GeneratorFunction, i.GeneratorFunctionPrototype, i.GeneratorPrototype,
		i.AsyncFunction, i.AsyncFunctionPrototype,
		i.AsyncGeneratorFunction, i.AsyncGeneratorFunctionPrototype, i.AsyncGeneratorPrototype,
		i.Promise, i.PromisePrototype, i.ThrowTypeError, i.Eval,
	}
	for _, o := range core {
		if o != nil {
			fn(o)
		}
	}
	for _, o := range i.extra {
		fn(o)
	}
}

// RealmInitializer installs part of the built-in library into a new realm.
// Initializers run inside the realm's scope in ascending Priority order.
type RealmInitializer interface {
	Name() string
	Priority() int
	InitRealm(r *Realm) error
}

func sortInitializers(list []RealmInitializer) []RealmInitializer {
	sorted := append([]RealmInitializer(nil), list...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return sorted
}

// --- helpers for defining built-ins ---

// DefineMethod creates a built-in function and installs it on o as a
// non-enumerable method.
func DefineMethod(r *Realm, o *Object, name string, length int, behavior NativeFunction, captures ...Marker) *Object {
	f := NewNativeFunction(r, name, length, behavior, captures...)
	o.Put(NewString(name), f, AttrDefault)
	return f
}

// DefineSymbolMethod installs a built-in method keyed by a symbol.
func DefineSymbolMethod(r *Realm, o *Object, sym *Symbol, length int, behavior NativeFunction) *Object {
	f := CreateBuiltinFunction(r, behavior, length, sym, BuiltinOptions{})
	o.Put(sym, f, AttrDefault)
	return f
}

// DefineGetter installs a configurable accessor with only a getter.
func DefineGetter(r *Realm, o *Object, key PropertyKey, behavior NativeFunction) *Object {
	g := CreateBuiltinFunction(r, behavior, 0, key, BuiltinOptions{Prefix: "get"})
	o.PutAccessor(key, g, nil, AttrConfigurable)
	return g
}

// DefineConstructor creates a built-in constructor with its prototype
// object linked both ways.
func DefineConstructor(r *Realm, name string, length int, behavior NativeFunction, prototype *Object, opts BuiltinOptions) *Object {
	opts.Constructor = true
	c := CreateBuiltinFunction(r, behavior, length, NewString(name), opts)
	if prototype != nil {
		c.Put(String("prototype"), prototype, AttrNone)
		prototype.Put(String("constructor"), c, AttrDefault)
	}
	return c
}

// DefineGlobal installs a writable, non-enumerable global binding.
func (r *Realm) DefineGlobal(name string, v Value) {
	r.GlobalObject.Put(NewString(name), v, AttrDefault)
}

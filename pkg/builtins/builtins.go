package builtins

import (
	"fmt"
	"math"

	"siskin/pkg/vm"
)

// --- Debug Flag ---
const debugBuiltins = false

func debugBuiltinsPrintf(format string, args ...interface{}) {
	if debugBuiltins {
		fmt.Printf("[Builtins Debug] "+format+"\n", args...)
	}
}

// --- End Debug Flag ---

// native is the signature every built-in function implements.
type native = vm.NativeFunction

// method installs a built-in method on o.
func method(r *vm.Realm, o *vm.Object, name string, length int, f native) *vm.Object {
	return vm.DefineMethod(r, o, name, length, f)
}

// constant installs a non-writable, non-configurable data property.
func constant(o *vm.Object, name string, v vm.Value) {
	o.Put(vm.NewString(name), v, vm.AttrNone)
}

// toStringTag installs @@toStringTag.
func toStringTag(o *vm.Object, tag string) {
	o.Put(vm.SymbolToStringTag, vm.NewString(tag), vm.AttrConfigurable)
}

// namespace creates a plain object inheriting from Object.prototype, as
// used by Math, JSON, Reflect and console.
func namespace(r *vm.Realm, tag string) *vm.Object {
	o := vm.OrdinaryObjectCreate(r.Intrinsics.ObjectPrototype)
	if tag != "" {
		toStringTag(o, tag)
	}
	return o
}

// thisObject checks that this is an object.
func thisObject(a *vm.Agent, this vm.Value, method string) (*vm.Object, *vm.Completion) {
	o, ok := this.(*vm.Object)
	if !ok {
		return nil, a.ThrowTypeError(fmt.Sprintf("%s called on non-object", method))
	}
	return o, nil
}

// thisInternal returns the internal slot of this when it has type T.
func thisInternal[T any](a *vm.Agent, this vm.Value, method string) (T, *vm.Completion) {
	var zero T
	o, ok := this.(*vm.Object)
	if !ok {
		return zero, a.ThrowTypeError(fmt.Sprintf("Method %s called on incompatible receiver %s", method, vm.Inspect(this)))
	}
	data, ok := o.Internal.(T)
	if !ok {
		return zero, a.ThrowTypeError(fmt.Sprintf("Method %s called on incompatible receiver %s", method, vm.Inspect(this)))
	}
	return data, nil
}

// callable checks that v can be called.
func callable(a *vm.Agent, v vm.Value, what string) (*vm.Object, *vm.Completion) {
	if !vm.IsCallable(v) {
		return nil, a.ThrowTypeError(fmt.Sprintf("%s is not a function", what))
	}
	return v.(*vm.Object), nil
}

// relativeArg reads args[i] as a relative index into length, clamped to
// [0, length], using def when the argument is undefined.
func relativeArg(a *vm.Agent, args []vm.Value, i int, length int64, def int64) (int64, *vm.Completion) {
	v := vm.Arg(args, i)
	if vm.IsUndefined(v) {
		return def, nil
	}
	rel, c := vm.ToIntegerOrInfinity(a, v)
	if c != nil {
		return 0, c
	}
	return vm.RelativeIndex(rel, length), nil
}

// clampInt converts a ToIntegerOrInfinity result to [lo, hi].
func clampInt(f float64, lo, hi int64) int64 {
	switch {
	case math.IsInf(f, -1) || f < float64(lo):
		return lo
	case math.IsInf(f, 1) || f > float64(hi):
		return hi
	}
	return int64(f)
}

// newObject creates an ordinary object from the current realm.
func newObject(a *vm.Agent) *vm.Object {
	return vm.OrdinaryObjectCreate(a.CurrentRealm().Intrinsics.ObjectPrototype)
}

// createData defines a data property on a fresh object, which cannot fail.
func createData(a *vm.Agent, o *vm.Object, key vm.PropertyKey, v vm.Value) {
	vm.MustNormal(vm.CreateDataPropertyOrThrow(a, o, key, v))
}

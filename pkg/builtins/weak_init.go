package builtins

import (
	"siskin/pkg/vm"
)

// WeakInitializer installs WeakMap, WeakSet, WeakRef and
// FinalizationRegistry. The weak semantics live in the collector.
type WeakInitializer struct{}

func (w *WeakInitializer) Name() string {
	return "Weak"
}

func (w *WeakInitializer) Priority() int {
	return PriorityWeak
}

func (w *WeakInitializer) InitRealm(r *vm.Realm) error {
	initWeakMap(r)
	initWeakSet(r)
	initWeakRef(r)
	initFinalizationRegistry(r)
	return nil
}

// weakTarget checks that v can be held weakly.
func weakTarget(a *vm.Agent, v vm.Value, what string) (*vm.Object, *vm.Completion) {
	if !vm.CanBeHeldWeakly(v) {
		return nil, a.ThrowTypeError("Invalid value used " + what)
	}
	return v.(*vm.Object), nil
}

// weakProto resolves the prototype for a weak constructor, failing when
// called without new.
func weakProto(a *vm.Agent, name string, newTarget *vm.Object) (*vm.Object, *vm.Completion) {
	if newTarget == nil {
		return nil, a.ThrowTypeError("Constructor " + name + " requires 'new'")
	}
	return vm.GetPrototypeFromConstructor(a, newTarget, func(i *vm.Intrinsics) *vm.Object {
		p, _ := i.Lookup("%" + name + ".prototype%")
		return p
	})
}

func initWeakMap(r *vm.Realm) {
	proto := vm.OrdinaryObjectCreate(r.Intrinsics.ObjectPrototype)
	r.Intrinsics.Register("%WeakMap.prototype%", proto)
	ctor := vm.DefineConstructor(r, "WeakMap", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		p, c := weakProto(a, "WeakMap", newTarget)
		if c != nil {
			return nil, c
		}
		o := a.NewWeakMap(p)
		if iterable := vm.Arg(args, 0); !vm.IsNullish(iterable) {
			if c := addEntriesFromIterable(a, o, iterable, vm.String("set"), true); c != nil {
				return nil, c
			}
		}
		return o, nil
	}, proto, vm.BuiltinOptions{})

	method(r, proto, "get", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisInternal[*vm.WeakMapData](a, this, "WeakMap.prototype.get")
		if c != nil {
			return nil, c
		}
		if key, ok := vm.Arg(args, 0).(*vm.Object); ok {
			if v, ok := data.Get(key); ok {
				return v, nil
			}
		}
		return vm.Undefined, nil
	})
	method(r, proto, "set", 2, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisInternal[*vm.WeakMapData](a, this, "WeakMap.prototype.set")
		if c != nil {
			return nil, c
		}
		key, c := weakTarget(a, vm.Arg(args, 0), "as weak map key")
		if c != nil {
			return nil, c
		}
		data.Set(key, vm.Arg(args, 1))
		return this, nil
	})
	method(r, proto, "has", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisInternal[*vm.WeakMapData](a, this, "WeakMap.prototype.has")
		if c != nil {
			return nil, c
		}
		key, ok := vm.Arg(args, 0).(*vm.Object)
		return vm.Boolean(ok && data.Has(key)), nil
	})
	method(r, proto, "delete", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisInternal[*vm.WeakMapData](a, this, "WeakMap.prototype.delete")
		if c != nil {
			return nil, c
		}
		key, ok := vm.Arg(args, 0).(*vm.Object)
		return vm.Boolean(ok && data.Delete(key)), nil
	})
	toStringTag(proto, "WeakMap")
	r.DefineGlobal("WeakMap", ctor)
}

func initWeakSet(r *vm.Realm) {
	proto := vm.OrdinaryObjectCreate(r.Intrinsics.ObjectPrototype)
	r.Intrinsics.Register("%WeakSet.prototype%", proto)
	ctor := vm.DefineConstructor(r, "WeakSet", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		p, c := weakProto(a, "WeakSet", newTarget)
		if c != nil {
			return nil, c
		}
		o := a.NewWeakSet(p)
		if iterable := vm.Arg(args, 0); !vm.IsNullish(iterable) {
			if c := addEntriesFromIterable(a, o, iterable, vm.String("add"), false); c != nil {
				return nil, c
			}
		}
		return o, nil
	}, proto, vm.BuiltinOptions{})

	method(r, proto, "add", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisInternal[*vm.WeakSetData](a, this, "WeakSet.prototype.add")
		if c != nil {
			return nil, c
		}
		key, c := weakTarget(a, vm.Arg(args, 0), "in weak set")
		if c != nil {
			return nil, c
		}
		data.Add(key)
		return this, nil
	})
	method(r, proto, "has", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisInternal[*vm.WeakSetData](a, this, "WeakSet.prototype.has")
		if c != nil {
			return nil, c
		}
		key, ok := vm.Arg(args, 0).(*vm.Object)
		return vm.Boolean(ok && data.Has(key)), nil
	})
	method(r, proto, "delete", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisInternal[*vm.WeakSetData](a, this, "WeakSet.prototype.delete")
		if c != nil {
			return nil, c
		}
		key, ok := vm.Arg(args, 0).(*vm.Object)
		return vm.Boolean(ok && data.Delete(key)), nil
	})
	toStringTag(proto, "WeakSet")
	r.DefineGlobal("WeakSet", ctor)
}

func initWeakRef(r *vm.Realm) {
	proto := vm.OrdinaryObjectCreate(r.Intrinsics.ObjectPrototype)
	r.Intrinsics.Register("%WeakRef.prototype%", proto)
	ctor := vm.DefineConstructor(r, "WeakRef", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		target, c := weakTarget(a, vm.Arg(args, 0), "as WeakRef target")
		if c != nil {
			return nil, c
		}
		p, c := weakProto(a, "WeakRef", newTarget)
		if c != nil {
			return nil, c
		}
		return a.NewWeakRef(target, p), nil
	}, proto, vm.BuiltinOptions{})
	method(r, proto, "deref", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		if _, c := thisInternal[*vm.WeakRefData](a, this, "WeakRef.prototype.deref"); c != nil {
			return nil, c
		}
		return a.WeakRefDeref(this.(*vm.Object)), nil
	})
	toStringTag(proto, "WeakRef")
	r.DefineGlobal("WeakRef", ctor)
}

func initFinalizationRegistry(r *vm.Realm) {
	proto := vm.OrdinaryObjectCreate(r.Intrinsics.ObjectPrototype)
	r.Intrinsics.Register("%FinalizationRegistry.prototype%", proto)
	ctor := vm.DefineConstructor(r, "FinalizationRegistry", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		p, c := weakProto(a, "FinalizationRegistry", newTarget)
		if c != nil {
			return nil, c
		}
		cleanup, c := callable(a, vm.Arg(args, 0), "FinalizationRegistry: cleanup")
		if c != nil {
			return nil, c
		}
		return a.NewFinalizationRegistry(a.CurrentRealm(), cleanup, p), nil
	}, proto, vm.BuiltinOptions{})

	method(r, proto, "register", 2, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisInternal[*vm.FinalizationRegistryData](a, this, "FinalizationRegistry.prototype.register")
		if c != nil {
			return nil, c
		}
		target, c := weakTarget(a, vm.Arg(args, 0), "as FinalizationRegistry target")
		if c != nil {
			return nil, c
		}
		held := vm.Arg(args, 1)
		if vm.SameValue(target, held) {
			return nil, a.ThrowTypeError("FinalizationRegistry.prototype.register: target and holdings must not be same")
		}
		var token *vm.Object
		if t := vm.Arg(args, 2); !vm.IsUndefined(t) {
			if token, c = weakTarget(a, t, "as unregister token"); c != nil {
				return nil, c
			}
		}
		data.Register(target, held, token)
		return vm.Undefined, nil
	})
	method(r, proto, "unregister", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisInternal[*vm.FinalizationRegistryData](a, this, "FinalizationRegistry.prototype.unregister")
		if c != nil {
			return nil, c
		}
		token, c := weakTarget(a, vm.Arg(args, 0), "as unregister token")
		if c != nil {
			return nil, c
		}
		return vm.Boolean(data.Unregister(token)), nil
	})
	toStringTag(proto, "FinalizationRegistry")
	r.DefineGlobal("FinalizationRegistry", ctor)
}

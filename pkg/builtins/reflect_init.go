package builtins

import (
	"siskin/pkg/vm"
)

type ReflectInitializer struct{}

func (r *ReflectInitializer) Name() string  { return "Reflect" }
func (r *ReflectInitializer) Priority() int { return PriorityReflect }

func (r *ReflectInitializer) InitRealm(realm *vm.Realm) error {
	reflect := namespace(realm, "Reflect")

	method(realm, reflect, "apply", 3, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		target := vm.Arg(args, 0)
		if !vm.IsCallable(target) {
			return nil, a.ThrowTypeError("Function.prototype.apply was called on " + vm.Inspect(target) + ", which is not a function")
		}
		list, c := vm.CreateListFromArrayLike(a, vm.Arg(args, 2))
		if c != nil {
			return nil, c
		}
		return vm.Call(a, target, vm.Arg(args, 1), list)
	})

	method(realm, reflect, "construct", 2, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		target := vm.Arg(args, 0)
		if !vm.IsConstructor(target) {
			return nil, a.ThrowTypeError(vm.Inspect(target) + " is not a constructor")
		}
		nt := target
		if len(args) > 2 {
			nt = args[2]
			if !vm.IsConstructor(nt) {
				return nil, a.ThrowTypeError(vm.Inspect(nt) + " is not a constructor")
			}
		}
		list, c := vm.CreateListFromArrayLike(a, vm.Arg(args, 1))
		if c != nil {
			return nil, c
		}
		return vm.Construct(a, target.(*vm.Object), list, nt.(*vm.Object))
	})

	method(realm, reflect, "defineProperty", 3, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, key, c := reflectTarget(a, args, "Reflect.defineProperty")
		if c != nil {
			return nil, c
		}
		desc, c := vm.ToPropertyDescriptor(a, vm.Arg(args, 2))
		if c != nil {
			return nil, c
		}
		ok, c := o.DefineOwnProperty(a, key, desc)
		return vm.Boolean(ok), c
	})

	method(realm, reflect, "deleteProperty", 2, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, key, c := reflectTarget(a, args, "Reflect.deleteProperty")
		if c != nil {
			return nil, c
		}
		ok, c := o.Delete(a, key)
		return vm.Boolean(ok), c
	})

	method(realm, reflect, "get", 2, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, key, c := reflectTarget(a, args, "Reflect.get")
		if c != nil {
			return nil, c
		}
		var receiver vm.Value = o
		if len(args) > 2 {
			receiver = args[2]
		}
		return o.Get(a, key, receiver)
	})

	method(realm, reflect, "getOwnPropertyDescriptor", 2, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, key, c := reflectTarget(a, args, "Reflect.getOwnPropertyDescriptor")
		if c != nil {
			return nil, c
		}
		desc, c := o.GetOwnProperty(a, key)
		if c != nil {
			return nil, c
		}
		return vm.FromPropertyDescriptor(a, desc), nil
	})

	method(realm, reflect, "getPrototypeOf", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, c := reflectObject(a, args, "Reflect.getPrototypeOf")
		if c != nil {
			return nil, c
		}
		p, c := o.GetPrototypeOf(a)
		if c != nil {
			return nil, c
		}
		if p == nil {
			return vm.Null, nil
		}
		return p, nil
	})

	method(realm, reflect, "has", 2, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, key, c := reflectTarget(a, args, "Reflect.has")
		if c != nil {
			return nil, c
		}
		ok, c := o.HasProperty(a, key)
		return vm.Boolean(ok), c
	})

	method(realm, reflect, "isExtensible", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, c := reflectObject(a, args, "Reflect.isExtensible")
		if c != nil {
			return nil, c
		}
		ok, c := o.IsExtensible(a)
		return vm.Boolean(ok), c
	})

	method(realm, reflect, "ownKeys", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, c := reflectObject(a, args, "Reflect.ownKeys")
		if c != nil {
			return nil, c
		}
		keys, c := o.OwnPropertyKeys(a)
		if c != nil {
			return nil, c
		}
		values := make([]vm.Value, len(keys))
		for i, k := range keys {
			values[i] = k
		}
		return vm.CreateArrayFromList(a, values), nil
	})

	method(realm, reflect, "preventExtensions", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, c := reflectObject(a, args, "Reflect.preventExtensions")
		if c != nil {
			return nil, c
		}
		ok, c := o.PreventExtensions(a)
		return vm.Boolean(ok), c
	})

	method(realm, reflect, "set", 3, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, key, c := reflectTarget(a, args, "Reflect.set")
		if c != nil {
			return nil, c
		}
		var receiver vm.Value = o
		if len(args) > 3 {
			receiver = args[3]
		}
		ok, c := o.Set(a, key, vm.Arg(args, 2), receiver)
		return vm.Boolean(ok), c
	})

	method(realm, reflect, "setPrototypeOf", 2, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, c := reflectObject(a, args, "Reflect.setPrototypeOf")
		if c != nil {
			return nil, c
		}
		var proto *vm.Object
		switch p := vm.Arg(args, 1).(type) {
		case *vm.Object:
			proto = p
		default:
			if p != vm.Null {
				return nil, a.ThrowTypeError("Object prototype may only be an Object or null: " + vm.Inspect(p))
			}
		}
		ok, c := o.SetPrototypeOf(a, proto)
		return vm.Boolean(ok), c
	})

	realm.Intrinsics.Register("%Reflect%", reflect)
	realm.DefineGlobal("Reflect", reflect)
	return nil
}

// reflectObject requires the first argument to be an object. Unlike the
// Object statics, Reflect never coerces its target.
func reflectObject(a *vm.Agent, args []vm.Value, name string) (*vm.Object, *vm.Completion) {
	o, ok := vm.Arg(args, 0).(*vm.Object)
	if !ok {
		return nil, a.ThrowTypeError(name + " called on non-object")
	}
	return o, nil
}

func reflectTarget(a *vm.Agent, args []vm.Value, name string) (*vm.Object, vm.PropertyKey, *vm.Completion) {
	o, c := reflectObject(a, args, name)
	if c != nil {
		return nil, nil, c
	}
	key, c := vm.ToPropertyKey(a, vm.Arg(args, 1))
	if c != nil {
		return nil, nil, c
	}
	return o, key, nil
}

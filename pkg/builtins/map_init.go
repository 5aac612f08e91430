package builtins

import (
	"siskin/pkg/vm"
)

type MapInitializer struct{}

func (m *MapInitializer) Name() string {
	return "Map"
}

func (m *MapInitializer) Priority() int {
	return PriorityCollections
}

func (m *MapInitializer) InitRealm(r *vm.Realm) error {
	proto := vm.OrdinaryObjectCreate(r.Intrinsics.ObjectPrototype)
	ctor := vm.DefineConstructor(r, "Map", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		if newTarget == nil {
			return nil, a.ThrowTypeError("Constructor Map requires 'new'")
		}
		o, c := vm.OrdinaryCreateFromConstructor(a, newTarget, func(i *vm.Intrinsics) *vm.Object {
			p, _ := i.Lookup("%Map.prototype%")
			return p
		})
		if c != nil {
			return nil, c
		}
		o.Class, o.Internal = "Map", newOrderedMap()
		if iterable := vm.Arg(args, 0); !vm.IsNullish(iterable) {
			if c := addEntriesFromIterable(a, o, iterable, vm.String("set"), true); c != nil {
				return nil, c
			}
		}
		return o, nil
	}, proto, vm.BuiltinOptions{})
	vm.DefineGetter(r, ctor, vm.SymbolSpecies, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		return this, nil
	})
	if r.Agent().HasFeature(vm.FeatureArrayGrouping) {
		method(r, ctor, "groupBy", 2, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
			order, groups, c := groupBy(a, vm.Arg(args, 0), vm.Arg(args, 1), func(v vm.Value) (vm.Value, *vm.Completion) {
				return v, nil
			})
			if c != nil {
				return nil, c
			}
			data := newOrderedMap()
			for _, key := range order {
				data.Set(key, vm.CreateArrayFromList(a, groups[hashKey(key)]))
			}
			o := vm.OrdinaryObjectCreate(proto)
			o.Class, o.Internal = "Map", data
			return o, nil
		})
	}

	method(r, proto, "get", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisMap(a, this, "Map.prototype.get")
		if c != nil {
			return nil, c
		}
		if v, ok := data.Get(vm.Arg(args, 0)); ok {
			return v, nil
		}
		return vm.Undefined, nil
	})
	method(r, proto, "set", 2, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisMap(a, this, "Map.prototype.set")
		if c != nil {
			return nil, c
		}
		data.Set(vm.Arg(args, 0), vm.Arg(args, 1))
		return this, nil
	})
	method(r, proto, "has", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisMap(a, this, "Map.prototype.has")
		if c != nil {
			return nil, c
		}
		return vm.Boolean(data.Has(vm.Arg(args, 0))), nil
	})
	method(r, proto, "delete", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisMap(a, this, "Map.prototype.delete")
		if c != nil {
			return nil, c
		}
		return vm.Boolean(data.Delete(vm.Arg(args, 0))), nil
	})
	method(r, proto, "clear", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisMap(a, this, "Map.prototype.clear")
		if c != nil {
			return nil, c
		}
		data.Clear()
		return vm.Undefined, nil
	})
	method(r, proto, "forEach", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisMap(a, this, "Map.prototype.forEach")
		if c != nil {
			return nil, c
		}
		fn, thisArg, c := callbackArgs(a, args)
		if c != nil {
			return nil, c
		}
		return vm.Undefined, data.each(func(key, value vm.Value) *vm.Completion {
			_, c := vm.Call(a, fn, thisArg, []vm.Value{value, key, this})
			return c
		})
	})
	vm.DefineGetter(r, proto, vm.String("size"), func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisMap(a, this, "get Map.prototype.size")
		if c != nil {
			return nil, c
		}
		return vm.Number(data.Len()), nil
	})
	mapIteration := func(kind vm.EnumerableKind, name string) native {
		return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
			data, c := thisMap(a, this, name)
			if c != nil {
				return nil, c
			}
			return newCollectionIterator(a, "%MapIteratorPrototype%", data, kind), nil
		}
	}
	method(r, proto, "keys", 0, mapIteration(vm.EnumerateKeys, "Map.prototype.keys"))
	method(r, proto, "values", 0, mapIteration(vm.EnumerateValues, "Map.prototype.values"))
	entries := method(r, proto, "entries", 0, mapIteration(vm.EnumerateEntries, "Map.prototype.entries"))
	proto.Put(vm.SymbolIterator, entries, vm.AttrDefault)
	toStringTag(proto, "Map")

	iterProto := vm.OrdinaryObjectCreate(r.Intrinsics.IteratorPrototype)
	method(r, iterProto, "next", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		it, c := thisInternal[*collectionIterator](a, this, "%MapIteratorPrototype%.next")
		if c != nil {
			return nil, c
		}
		return it.step(a), nil
	})
	toStringTag(iterProto, "Map Iterator")

	r.Intrinsics.Register("%Map%", ctor)
	r.Intrinsics.Register("%Map.prototype%", proto)
	r.Intrinsics.Register("%MapIteratorPrototype%", iterProto)
	r.DefineGlobal("Map", ctor)
	return nil
}

func thisMap(a *vm.Agent, this vm.Value, method string) (*orderedMap, *vm.Completion) {
	if o, ok := this.(*vm.Object); ok && o.Class == "Map" {
		if data, ok := o.Internal.(*orderedMap); ok {
			return data, nil
		}
	}
	return nil, a.ThrowTypeError("Method " + method + " called on incompatible receiver " + vm.Inspect(this))
}

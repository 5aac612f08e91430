package builtins

import (
	"math"

	"siskin/pkg/vm"
)

type SetInitializer struct{}

func (s *SetInitializer) Name() string {
	return "Set"
}

func (s *SetInitializer) Priority() int {
	return PriorityCollections
}

func (s *SetInitializer) InitRealm(r *vm.Realm) error {
	proto := vm.OrdinaryObjectCreate(r.Intrinsics.ObjectPrototype)
	ctor := vm.DefineConstructor(r, "Set", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		if newTarget == nil {
			return nil, a.ThrowTypeError("Constructor Set requires 'new'")
		}
		o, c := vm.OrdinaryCreateFromConstructor(a, newTarget, func(i *vm.Intrinsics) *vm.Object {
			p, _ := i.Lookup("%Set.prototype%")
			return p
		})
		if c != nil {
			return nil, c
		}
		o.Class, o.Internal = "Set", newOrderedMap()
		if iterable := vm.Arg(args, 0); !vm.IsNullish(iterable) {
			if c := addEntriesFromIterable(a, o, iterable, vm.String("add"), false); c != nil {
				return nil, c
			}
		}
		return o, nil
	}, proto, vm.BuiltinOptions{})
	vm.DefineGetter(r, ctor, vm.SymbolSpecies, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		return this, nil
	})

	method(r, proto, "add", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisSet(a, this, "Set.prototype.add")
		if c != nil {
			return nil, c
		}
		v := vm.Arg(args, 0)
		data.Set(v, v)
		return this, nil
	})
	method(r, proto, "has", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisSet(a, this, "Set.prototype.has")
		if c != nil {
			return nil, c
		}
		return vm.Boolean(data.Has(vm.Arg(args, 0))), nil
	})
	method(r, proto, "delete", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisSet(a, this, "Set.prototype.delete")
		if c != nil {
			return nil, c
		}
		return vm.Boolean(data.Delete(vm.Arg(args, 0))), nil
	})
	method(r, proto, "clear", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisSet(a, this, "Set.prototype.clear")
		if c != nil {
			return nil, c
		}
		data.Clear()
		return vm.Undefined, nil
	})
	method(r, proto, "forEach", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisSet(a, this, "Set.prototype.forEach")
		if c != nil {
			return nil, c
		}
		fn, thisArg, c := callbackArgs(a, args)
		if c != nil {
			return nil, c
		}
		return vm.Undefined, data.each(func(key, _ vm.Value) *vm.Completion {
			_, c := vm.Call(a, fn, thisArg, []vm.Value{key, key, this})
			return c
		})
	})
	vm.DefineGetter(r, proto, vm.String("size"), func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisSet(a, this, "get Set.prototype.size")
		if c != nil {
			return nil, c
		}
		return vm.Number(data.Len()), nil
	})

	method(r, proto, "union", 1, setOperation("union", setUnion))
	method(r, proto, "intersection", 1, setOperation("intersection", setIntersection))
	method(r, proto, "difference", 1, setOperation("difference", setDifference))
	method(r, proto, "symmetricDifference", 1, setOperation("symmetricDifference", setSymmetricDifference))
	method(r, proto, "isSubsetOf", 1, setPredicate("isSubsetOf", setIsSubsetOf))
	method(r, proto, "isSupersetOf", 1, setPredicate("isSupersetOf", setIsSupersetOf))
	method(r, proto, "isDisjointFrom", 1, setPredicate("isDisjointFrom", setIsDisjointFrom))

	setIteration := func(kind vm.EnumerableKind, name string) native {
		return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
			data, c := thisSet(a, this, name)
			if c != nil {
				return nil, c
			}
			return newCollectionIterator(a, "%SetIteratorPrototype%", data, kind), nil
		}
	}
	method(r, proto, "entries", 0, setIteration(vm.EnumerateEntries, "Set.prototype.entries"))
	values := method(r, proto, "values", 0, setIteration(vm.EnumerateValues, "Set.prototype.values"))
	proto.Put(vm.String("keys"), values, vm.AttrDefault)
	proto.Put(vm.SymbolIterator, values, vm.AttrDefault)
	toStringTag(proto, "Set")

	iterProto := vm.OrdinaryObjectCreate(r.Intrinsics.IteratorPrototype)
	method(r, iterProto, "next", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		it, c := thisInternal[*collectionIterator](a, this, "%SetIteratorPrototype%.next")
		if c != nil {
			return nil, c
		}
		return it.step(a), nil
	})
	toStringTag(iterProto, "Set Iterator")

	r.Intrinsics.Register("%Set%", ctor)
	r.Intrinsics.Register("%Set.prototype%", proto)
	r.Intrinsics.Register("%SetIteratorPrototype%", iterProto)
	r.DefineGlobal("Set", ctor)
	return nil
}

func thisSet(a *vm.Agent, this vm.Value, method string) (*orderedMap, *vm.Completion) {
	if o, ok := this.(*vm.Object); ok && o.Class == "Set" {
		if data, ok := o.Internal.(*orderedMap); ok {
			return data, nil
		}
	}
	return nil, a.ThrowTypeError("Method " + method + " called on incompatible receiver " + vm.Inspect(this))
}

// setRecord is the size, has and keys of a set-like argument.
type setRecord struct {
	object *vm.Object
	size   float64
	has    *vm.Object
	keys   *vm.Object
}

func getSetRecord(a *vm.Agent, v vm.Value) (*setRecord, *vm.Completion) {
	o, ok := v.(*vm.Object)
	if !ok {
		return nil, a.ThrowTypeError(vm.Inspect(v) + " is not an object")
	}
	rawSize, c := vm.Get(a, o, vm.String("size"))
	if c != nil {
		return nil, c
	}
	numSize, c := vm.ToNumber(a, rawSize)
	if c != nil {
		return nil, c
	}
	if math.IsNaN(float64(numSize)) {
		return nil, a.ThrowTypeError("The 'size' property must be a number")
	}
	size, _ := vm.ToIntegerOrInfinity(a, numSize)
	if size < 0 {
		return nil, a.ThrowRangeError("'" + vm.Inspect(numSize) + "' is an invalid size")
	}
	rec := &setRecord{object: o, size: size}
	for _, m := range []struct {
		name vm.String
		dst  **vm.Object
	}{{"has", &rec.has}, {"keys", &rec.keys}} {
		fn, c := vm.Get(a, o, m.name)
		if c != nil {
			return nil, c
		}
		if *m.dst, c = callable(a, fn, "The '"+m.name.String()+"' property"); c != nil {
			return nil, c
		}
	}
	return rec, nil
}

func (s *setRecord) contains(a *vm.Agent, v vm.Value) (bool, *vm.Completion) {
	result, c := vm.Call(a, s.has, s.object, []vm.Value{v})
	if c != nil {
		return false, c
	}
	return vm.ToBoolean(result), nil
}

// eachKey walks the keys iterator of the set-like. fn returns stop to end
// the walk early, which closes the iterator.
func (s *setRecord) eachKey(a *vm.Agent, fn func(v vm.Value) (stop bool, c *vm.Completion)) *vm.Completion {
	it, c := vm.Call(a, s.keys, s.object, nil)
	if c != nil {
		return c
	}
	ito, ok := it.(*vm.Object)
	if !ok {
		return a.ThrowTypeError("keys() result " + vm.Inspect(it) + " is not an object")
	}
	next, c := vm.Get(a, ito, vm.String("next"))
	if c != nil {
		return c
	}
	rec := &vm.IteratorRecord{Iterator: ito, NextMethod: next}
	for {
		v, done, c := vm.IteratorStepValue(a, rec)
		if c != nil || done {
			return c
		}
		if n, ok := v.(vm.Number); ok && n == 0 {
			v = vm.Number(0)
		}
		stop, c := fn(v)
		if c != nil {
			return c
		}
		if stop {
			result := vm.IteratorClose(a, rec, vm.NormalCompletion(vm.Undefined))
			return result.Abrupt()
		}
	}
}

// snapshot lists the current keys of data.
func snapshot(data *orderedMap) []vm.Value {
	keys := make([]vm.Value, 0, data.Len())
	data.each(func(key, _ vm.Value) *vm.Completion {
		keys = append(keys, key)
		return nil
	})
	return keys
}

func copySet(data *orderedMap) *orderedMap {
	result := newOrderedMap()
	for _, k := range snapshot(data) {
		result.Set(k, k)
	}
	return result
}

func setOperation(name string, op func(a *vm.Agent, data *orderedMap, other *setRecord) (*orderedMap, *vm.Completion)) native {
	return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisSet(a, this, "Set.prototype."+name)
		if c != nil {
			return nil, c
		}
		other, c := getSetRecord(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		result, c := op(a, data, other)
		if c != nil {
			return nil, c
		}
		proto, _ := a.CurrentRealm().Intrinsics.Lookup("%Set.prototype%")
		o := vm.OrdinaryObjectCreate(proto)
		o.Class, o.Internal = "Set", result
		return o, nil
	}
}

func setPredicate(name string, op func(a *vm.Agent, data *orderedMap, other *setRecord) (bool, *vm.Completion)) native {
	return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		data, c := thisSet(a, this, "Set.prototype."+name)
		if c != nil {
			return nil, c
		}
		other, c := getSetRecord(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		ok, c := op(a, data, other)
		if c != nil {
			return nil, c
		}
		return vm.Boolean(ok), nil
	}
}

func setUnion(a *vm.Agent, data *orderedMap, other *setRecord) (*orderedMap, *vm.Completion) {
	result := copySet(data)
	return result, other.eachKey(a, func(v vm.Value) (bool, *vm.Completion) {
		result.Set(v, v)
		return false, nil
	})
}

func setIntersection(a *vm.Agent, data *orderedMap, other *setRecord) (*orderedMap, *vm.Completion) {
	result := newOrderedMap()
	if float64(data.Len()) <= other.size {
		for _, k := range snapshot(data) {
			in, c := other.contains(a, k)
			if c != nil {
				return nil, c
			}
			if in {
				result.Set(k, k)
			}
		}
		return result, nil
	}
	return result, other.eachKey(a, func(v vm.Value) (bool, *vm.Completion) {
		if data.Has(v) {
			result.Set(v, v)
		}
		return false, nil
	})
}

func setDifference(a *vm.Agent, data *orderedMap, other *setRecord) (*orderedMap, *vm.Completion) {
	result := copySet(data)
	if float64(data.Len()) <= other.size {
		for _, k := range snapshot(data) {
			in, c := other.contains(a, k)
			if c != nil {
				return nil, c
			}
			if in {
				result.Delete(k)
			}
		}
		return result, nil
	}
	return result, other.eachKey(a, func(v vm.Value) (bool, *vm.Completion) {
		result.Delete(v)
		return false, nil
	})
}

func setSymmetricDifference(a *vm.Agent, data *orderedMap, other *setRecord) (*orderedMap, *vm.Completion) {
	result := copySet(data)
	return result, other.eachKey(a, func(v vm.Value) (bool, *vm.Completion) {
		if data.Has(v) {
			result.Delete(v)
		} else {
			result.Set(v, v)
		}
		return false, nil
	})
}

func setIsSubsetOf(a *vm.Agent, data *orderedMap, other *setRecord) (bool, *vm.Completion) {
	if float64(data.Len()) > other.size {
		return false, nil
	}
	for _, k := range snapshot(data) {
		in, c := other.contains(a, k)
		if c != nil || !in {
			return false, c
		}
	}
	return true, nil
}

func setIsSupersetOf(a *vm.Agent, data *orderedMap, other *setRecord) (bool, *vm.Completion) {
	if float64(data.Len()) < other.size {
		return false, nil
	}
	superset := true
	c := other.eachKey(a, func(v vm.Value) (bool, *vm.Completion) {
		superset = data.Has(v)
		return !superset, nil
	})
	return superset, c
}

func setIsDisjointFrom(a *vm.Agent, data *orderedMap, other *setRecord) (bool, *vm.Completion) {
	if float64(data.Len()) <= other.size {
		for _, k := range snapshot(data) {
			in, c := other.contains(a, k)
			if c != nil || in {
				return false, c
			}
		}
		return true, nil
	}
	disjoint := true
	c := other.eachKey(a, func(v vm.Value) (bool, *vm.Completion) {
		disjoint = !data.Has(v)
		return !disjoint, nil
	})
	return disjoint, c
}

package builtins

import (
	"siskin/pkg/vm"
)

type ObjectInitializer struct{}

func (o *ObjectInitializer) Name() string {
	return "Object"
}

func (o *ObjectInitializer) Priority() int {
	return PriorityObject
}

func (o *ObjectInitializer) InitRealm(r *vm.Realm) error {
	ctor, proto := r.Intrinsics.Object, r.Intrinsics.ObjectPrototype

	method(r, ctor, "keys", 1, objectEnumerable(vm.EnumerateKeys))
	method(r, ctor, "values", 1, objectEnumerable(vm.EnumerateValues))
	method(r, ctor, "entries", 1, objectEnumerable(vm.EnumerateEntries))
	method(r, ctor, "assign", 2, objectAssign)
	method(r, ctor, "create", 2, objectCreate)
	method(r, ctor, "defineProperty", 3, objectDefineProperty)
	method(r, ctor, "defineProperties", 2, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, ok := vm.Arg(args, 0).(*vm.Object)
		if !ok {
			return nil, a.ThrowTypeError("Object.defineProperties called on non-object")
		}
		return objectDefineProperties(a, o, vm.Arg(args, 1))
	})
	method(r, ctor, "getOwnPropertyDescriptor", 2, objectGetOwnPropertyDescriptor)
	method(r, ctor, "getOwnPropertyDescriptors", 1, objectGetOwnPropertyDescriptors)
	method(r, ctor, "getOwnPropertyNames", 1, objectOwnKeys(false))
	method(r, ctor, "getOwnPropertySymbols", 1, objectOwnKeys(true))
	method(r, ctor, "getPrototypeOf", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, c := vm.ToObject(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		proto, c := o.GetPrototypeOf(a)
		if c != nil || proto == nil {
			return vm.Null, c
		}
		return proto, nil
	})
	method(r, ctor, "setPrototypeOf", 2, objectSetPrototypeOf)
	method(r, ctor, "is", 2, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		return vm.Boolean(vm.SameValue(vm.Arg(args, 0), vm.Arg(args, 1))), nil
	})
	method(r, ctor, "freeze", 1, objectSetIntegrity(vm.Frozen))
	method(r, ctor, "seal", 1, objectSetIntegrity(vm.Sealed))
	method(r, ctor, "isFrozen", 1, objectTestIntegrity(vm.Frozen))
	method(r, ctor, "isSealed", 1, objectTestIntegrity(vm.Sealed))
	method(r, ctor, "preventExtensions", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, ok := vm.Arg(args, 0).(*vm.Object)
		if !ok {
			return vm.Arg(args, 0), nil
		}
		done, c := o.PreventExtensions(a)
		if c != nil {
			return nil, c
		}
		if !done {
			return nil, a.ThrowTypeError("Cannot prevent extensions")
		}
		return o, nil
	})
	method(r, ctor, "isExtensible", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, ok := vm.Arg(args, 0).(*vm.Object)
		if !ok {
			return vm.False, nil
		}
		ext, c := o.IsExtensible(a)
		return vm.Boolean(ext), c
	})
	method(r, ctor, "fromEntries", 1, objectFromEntries)
	method(r, ctor, "hasOwn", 2, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, c := vm.ToObject(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		key, c := vm.ToPropertyKey(a, vm.Arg(args, 1))
		if c != nil {
			return nil, c
		}
		has, c := vm.HasOwnProperty(a, o, key)
		return vm.Boolean(has), c
	})
	if r.Agent().HasFeature(vm.FeatureArrayGrouping) {
		method(r, ctor, "groupBy", 2, objectGroupBy)
	}

	method(r, proto, "hasOwnProperty", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		key, c := vm.ToPropertyKey(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		o, c := vm.ToObject(a, this)
		if c != nil {
			return nil, c
		}
		has, c := vm.HasOwnProperty(a, o, key)
		return vm.Boolean(has), c
	})
	method(r, proto, "isPrototypeOf", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		v, ok := vm.Arg(args, 0).(*vm.Object)
		if !ok {
			return vm.False, nil
		}
		o, c := vm.ToObject(a, this)
		if c != nil {
			return nil, c
		}
		for {
			p, c := v.GetPrototypeOf(a)
			if c != nil {
				return nil, c
			}
			if p == nil {
				return vm.False, nil
			}
			if p == o {
				return vm.True, nil
			}
			v = p
		}
	})
	method(r, proto, "propertyIsEnumerable", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		key, c := vm.ToPropertyKey(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		o, c := vm.ToObject(a, this)
		if c != nil {
			return nil, c
		}
		desc, c := o.GetOwnProperty(a, key)
		if c != nil {
			return nil, c
		}
		return vm.Boolean(desc != nil && desc.Enumerable), nil
	})
	method(r, proto, "toString", 0, objectToString)
	method(r, proto, "toLocaleString", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		return vm.Invoke(a, this, vm.String("toString"), nil)
	})
	method(r, proto, "valueOf", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		return vm.ToObject(a, this)
	})
	getProto := vm.CreateBuiltinFunction(r, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, c := vm.ToObject(a, this)
		if c != nil {
			return nil, c
		}
		p, c := o.GetPrototypeOf(a)
		if c != nil || p == nil {
			return vm.Null, c
		}
		return p, nil
	}, 0, vm.String("__proto__"), vm.BuiltinOptions{Prefix: "get"})
	setProto := vm.CreateBuiltinFunction(r, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		if vm.IsNullish(this) {
			return nil, a.ThrowTypeError("Object.prototype.__proto__ called on null or undefined")
		}
		o, ok := this.(*vm.Object)
		if !ok {
			return vm.Undefined, nil
		}
		var p *vm.Object
		switch v := vm.Arg(args, 0).(type) {
		case *vm.Object:
			p = v
		default:
			if v != vm.Null {
				return vm.Undefined, nil
			}
		}
		done, c := o.SetPrototypeOf(a, p)
		if c != nil {
			return nil, c
		}
		if !done {
			return nil, a.ThrowTypeError("Object.prototype.__proto__ setter failed")
		}
		return vm.Undefined, nil
	}, 1, vm.String("__proto__"), vm.BuiltinOptions{Prefix: "set"})
	proto.PutAccessor(vm.String("__proto__"), getProto, setProto, vm.AttrConfigurable)
	return nil
}

func objectEnumerable(kind vm.EnumerableKind) native {
	return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, c := vm.ToObject(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		list, c := vm.EnumerableOwnProperties(a, o, kind)
		if c != nil {
			return nil, c
		}
		return vm.CreateArrayFromList(a, list), nil
	}
}

func objectAssign(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	to, c := vm.ToObject(a, vm.Arg(args, 0))
	if c != nil {
		return nil, c
	}
	for _, source := range args[min(1, len(args)):] {
		if vm.IsNullish(source) {
			continue
		}
		from := vm.Must(vm.ToObject(a, source))
		keys, c := from.OwnPropertyKeys(a)
		if c != nil {
			return nil, c
		}
		for _, key := range keys {
			desc, c := from.GetOwnProperty(a, key)
			if c != nil {
				return nil, c
			}
			if desc == nil || !desc.Enumerable {
				continue
			}
			v, c := vm.Get(a, from, key)
			if c != nil {
				return nil, c
			}
			if c := vm.Set(a, to, key, v, true); c != nil {
				return nil, c
			}
		}
	}
	return to, nil
}

func objectCreate(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	var proto *vm.Object
	switch p := vm.Arg(args, 0).(type) {
	case *vm.Object:
		proto = p
	default:
		if p != vm.Null {
			return nil, a.ThrowTypeError("Object prototype may only be an Object or null: " + vm.Inspect(p))
		}
	}
	o := vm.OrdinaryObjectCreate(proto)
	if props := vm.Arg(args, 1); !vm.IsUndefined(props) {
		return objectDefineProperties(a, o, props)
	}
	return o, nil
}

func objectDefineProperty(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, ok := vm.Arg(args, 0).(*vm.Object)
	if !ok {
		return nil, a.ThrowTypeError("Object.defineProperty called on non-object")
	}
	key, c := vm.ToPropertyKey(a, vm.Arg(args, 1))
	if c != nil {
		return nil, c
	}
	desc, c := vm.ToPropertyDescriptor(a, vm.Arg(args, 2))
	if c != nil {
		return nil, c
	}
	if c := vm.DefinePropertyOrThrow(a, o, key, desc); c != nil {
		return nil, c
	}
	return o, nil
}

func objectDefineProperties(a *vm.Agent, o *vm.Object, properties vm.Value) (vm.Value, *vm.Completion) {
	props, c := vm.ToObject(a, properties)
	if c != nil {
		return nil, c
	}
	keys, c := props.OwnPropertyKeys(a)
	if c != nil {
		return nil, c
	}
	type pending struct {
		key  vm.PropertyKey
		desc vm.PropertyDescriptor
	}
	var descriptors []pending
	for _, key := range keys {
		prop, c := props.GetOwnProperty(a, key)
		if c != nil {
			return nil, c
		}
		if prop == nil || !prop.Enumerable {
			continue
		}
		v, c := vm.Get(a, props, key)
		if c != nil {
			return nil, c
		}
		desc, c := vm.ToPropertyDescriptor(a, v)
		if c != nil {
			return nil, c
		}
		descriptors = append(descriptors, pending{key, desc})
	}
	for _, p := range descriptors {
		if c := vm.DefinePropertyOrThrow(a, o, p.key, p.desc); c != nil {
			return nil, c
		}
	}
	return o, nil
}

func objectGetOwnPropertyDescriptor(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, c := vm.ToObject(a, vm.Arg(args, 0))
	if c != nil {
		return nil, c
	}
	key, c := vm.ToPropertyKey(a, vm.Arg(args, 1))
	if c != nil {
		return nil, c
	}
	desc, c := o.GetOwnProperty(a, key)
	if c != nil {
		return nil, c
	}
	return vm.FromPropertyDescriptor(a, desc), nil
}

func objectGetOwnPropertyDescriptors(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, c := vm.ToObject(a, vm.Arg(args, 0))
	if c != nil {
		return nil, c
	}
	keys, c := o.OwnPropertyKeys(a)
	if c != nil {
		return nil, c
	}
	result := newObject(a)
	for _, key := range keys {
		desc, c := o.GetOwnProperty(a, key)
		if c != nil {
			return nil, c
		}
		if desc != nil {
			createData(a, result, key, vm.FromPropertyDescriptor(a, desc))
		}
	}
	return result, nil
}

func objectOwnKeys(symbols bool) native {
	return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, c := vm.ToObject(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		keys, c := o.OwnPropertyKeys(a)
		if c != nil {
			return nil, c
		}
		var out []vm.Value
		for _, key := range keys {
			if _, isSymbol := key.(*vm.Symbol); isSymbol == symbols {
				out = append(out, key)
			}
		}
		return vm.CreateArrayFromList(a, out), nil
	}
}

func objectSetPrototypeOf(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	target := vm.Arg(args, 0)
	if vm.IsNullish(target) {
		return nil, a.ThrowTypeError("Object.setPrototypeOf called on null or undefined")
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
	o, ok := target.(*vm.Object)
	if !ok {
		return target, nil
	}
	done, c := o.SetPrototypeOf(a, proto)
	if c != nil {
		return nil, c
	}
	if !done {
		return nil, a.ThrowTypeError("Cyclic __proto__ value or non-extensible object")
	}
	return o, nil
}

func objectSetIntegrity(level vm.IntegrityLevel) native {
	return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, ok := vm.Arg(args, 0).(*vm.Object)
		if !ok {
			return vm.Arg(args, 0), nil
		}
		done, c := vm.SetIntegrityLevel(a, o, level)
		if c != nil {
			return nil, c
		}
		if !done {
			return nil, a.ThrowTypeError("Cannot change the integrity level of " + vm.Inspect(o))
		}
		return o, nil
	}
}

func objectTestIntegrity(level vm.IntegrityLevel) native {
	return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, ok := vm.Arg(args, 0).(*vm.Object)
		if !ok {
			return vm.True, nil
		}
		result, c := vm.TestIntegrityLevel(a, o, level)
		return vm.Boolean(result), c
	}
}

func objectFromEntries(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	iterable := vm.Arg(args, 0)
	if vm.IsNullish(iterable) {
		return nil, a.ThrowTypeError(vm.Inspect(iterable) + " is not iterable")
	}
	o := newObject(a)
	rec, c := vm.GetIterator(a, iterable, vm.IteratorSync)
	if c != nil {
		return nil, c
	}
	for {
		entry, done, c := vm.IteratorStepValue(a, rec)
		if c != nil {
			return nil, c
		}
		if done {
			return o, nil
		}
		if c := addEntry(a, o, entry); c != nil {
			return nil, closeWith(a, rec, c)
		}
	}
}

func addEntry(a *vm.Agent, o *vm.Object, entry vm.Value) *vm.Completion {
	e, ok := entry.(*vm.Object)
	if !ok {
		return a.ThrowTypeError("Iterator value " + vm.Inspect(entry) + " is not an entry object")
	}
	k, c := vm.Get(a, e, vm.String("0"))
	if c != nil {
		return c
	}
	v, c := vm.Get(a, e, vm.String("1"))
	if c != nil {
		return c
	}
	key, c := vm.ToPropertyKey(a, k)
	if c != nil {
		return c
	}
	return vm.CreateDataPropertyOrThrow(a, o, key, v)
}

// closeWith closes rec after an abrupt completion and returns the
// completion that wins.
func closeWith(a *vm.Agent, rec *vm.IteratorRecord, c *vm.Completion) *vm.Completion {
	result := vm.IteratorClose(a, rec, *c)
	return &result
}

// groupBy collects the values of items into groups keyed by callback.
// Keys are coerced with toKey, compared with SameValueZero and kept in
// first-seen order; groups is indexed by hashKey.
func groupBy(a *vm.Agent, items, callback vm.Value, toKey func(vm.Value) (vm.Value, *vm.Completion)) ([]vm.Value, map[any][]vm.Value, *vm.Completion) {
	if vm.IsNullish(items) {
		return nil, nil, a.ThrowTypeError(vm.Inspect(items) + " is not iterable")
	}
	fn, c := callable(a, callback, vm.Inspect(callback))
	if c != nil {
		return nil, nil, c
	}
	rec, c := vm.GetIterator(a, items, vm.IteratorSync)
	if c != nil {
		return nil, nil, c
	}
	var order []vm.Value
	groups := make(map[any][]vm.Value)
	for k := 0; ; k++ {
		v, done, c := vm.IteratorStepValue(a, rec)
		if c != nil {
			return nil, nil, c
		}
		if done {
			return order, groups, nil
		}
		key, c := vm.Call(a, fn, vm.Undefined, []vm.Value{v, vm.Number(k)})
		if c == nil {
			key, c = toKey(key)
		}
		if c != nil {
			return nil, nil, closeWith(a, rec, c)
		}
		hk := hashKey(key)
		if _, seen := groups[hk]; !seen {
			order = append(order, canonicalKey(key))
		}
		groups[hk] = append(groups[hk], v)
	}
}

func objectGroupBy(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	order, groups, c := groupBy(a, vm.Arg(args, 0), vm.Arg(args, 1), func(v vm.Value) (vm.Value, *vm.Completion) {
		return vm.ToPropertyKey(a, v)
	})
	if c != nil {
		return nil, c
	}
	o := vm.OrdinaryObjectCreate(nil)
	for _, key := range order {
		createData(a, o, key.(vm.PropertyKey), vm.CreateArrayFromList(a, groups[hashKey(key)]))
	}
	return o, nil
}

// builtinTags maps object classes to the tag Object.prototype.toString
// reports for them.
var builtinTags = map[string]string{
	"Arguments": "Arguments",
	"Boolean":   "Boolean",
	"Number":    "Number",
	"String":    "String",
	"Error":     "Error",
	"Date":      "Date",
	"RegExp":    "RegExp",
}

func objectToString(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	switch this {
	case vm.Undefined:
		return vm.String("[object Undefined]"), nil
	case vm.Null:
		return vm.String("[object Null]"), nil
	}
	o := vm.Must(vm.ToObject(a, this))
	builtinTag := "Object"
	switch {
	case vm.IsArray(o):
		builtinTag = "Array"
	case vm.IsCallable(o):
		builtinTag = "Function"
	default:
		if tag, ok := builtinTags[o.Class]; ok {
			builtinTag = tag
		}
	}
	tag, c := vm.Get(a, o, vm.SymbolToStringTag)
	if c != nil {
		return nil, c
	}
	if s, ok := tag.(vm.String); ok {
		builtinTag = s.String()
	}
	return vm.NewString("[object " + builtinTag + "]"), nil
}

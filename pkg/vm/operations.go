package vm

import (
	"fmt"
	"math"
)

// Get reads a property of an object.
func Get(a *Agent, o *Object, key PropertyKey) (Value, *Completion) {
	return o.Get(a, key, o)
}

// GetV reads a property of any value, boxing primitives for the lookup.
func GetV(a *Agent, v Value, key PropertyKey) (Value, *Completion) {
	if o, ok := v.(*Object); ok {
		return o.Get(a, key, o)
	}
	o, c := ToObject(a, v)
	if c != nil {
		return nil, c
	}
	return o.Get(a, key, v)
}

// Set writes a property, throwing a TypeError when throw is set and the
// write is refused.
func Set(a *Agent, o *Object, key PropertyKey, v Value, throw bool) *Completion {
	ok, c := o.Set(a, key, v, o)
	if c != nil {
		return c
	}
	if !ok && throw {
		return a.ThrowTypeError(fmt.Sprintf("Cannot assign to read only property '%s' of object", keyString(key)))
	}
	return nil
}

func keyString(key PropertyKey) string {
	switch k := key.(type) {
	case String:
		return k.String()
	case *Symbol:
		return k.DescriptiveString().String()
	}
	return "?"
}

// CreateDataProperty defines an enumerable, writable, configurable property.
func CreateDataProperty(a *Agent, o *Object, key PropertyKey, v Value) (bool, *Completion) {
	return o.DefineOwnProperty(a, key, DataDescriptor(v, AttrAll))
}

// CreateDataPropertyOrThrow is CreateDataProperty that throws on refusal.
func CreateDataPropertyOrThrow(a *Agent, o *Object, key PropertyKey, v Value) *Completion {
	ok, c := CreateDataProperty(a, o, key, v)
	if c != nil {
		return c
	}
	if !ok {
		return a.ThrowTypeError(fmt.Sprintf("Cannot define property %s, object is not extensible", keyString(key)))
	}
	return nil
}

// CreateMethodProperty defines a non-enumerable method.
func CreateMethodProperty(a *Agent, o *Object, key PropertyKey, v Value) {
	MustNormal(DefinePropertyOrThrow(a, o, key, DataDescriptor(v, AttrDefault)))
}

// DefinePropertyOrThrow defines a property or throws a TypeError.
func DefinePropertyOrThrow(a *Agent, o *Object, key PropertyKey, desc PropertyDescriptor) *Completion {
	ok, c := o.DefineOwnProperty(a, key, desc)
	if c != nil {
		return c
	}
	if !ok {
		return a.ThrowTypeError(fmt.Sprintf("Cannot redefine property: %s", keyString(key)))
	}
	return nil
}

// DeletePropertyOrThrow deletes a property or throws a TypeError.
func DeletePropertyOrThrow(a *Agent, o *Object, key PropertyKey) *Completion {
	ok, c := o.Delete(a, key)
	if c != nil {
		return c
	}
	if !ok {
		return a.ThrowTypeError(fmt.Sprintf("Cannot delete property '%s'", keyString(key)))
	}
	return nil
}

// GetMethod returns the callable at key, or nil when it is undefined or null.
func GetMethod(a *Agent, v Value, key PropertyKey) (*Object, *Completion) {
	f, c := GetV(a, v, key)
	if c != nil {
		return nil, c
	}
	if IsNullish(f) {
		return nil, nil
	}
	if !IsCallable(f) {
		return nil, a.ThrowTypeError(fmt.Sprintf("%s is not a function", Inspect(f)))
	}
	return f.(*Object), nil
}

// HasProperty checks the prototype chain.
func HasProperty(a *Agent, o *Object, key PropertyKey) (bool, *Completion) {
	return o.HasProperty(a, key)
}

// HasOwnProperty checks own properties only.
func HasOwnProperty(a *Agent, o *Object, key PropertyKey) (bool, *Completion) {
	desc, c := o.GetOwnProperty(a, key)
	return desc != nil, c
}

// Call invokes f. A non-callable f throws a TypeError.
func Call(a *Agent, f Value, this Value, args []Value) (Value, *Completion) {
	fo, ok := f.(*Object)
	if !ok || fo.fn == nil {
		return nil, a.ThrowTypeError(fmt.Sprintf("%s is not a function", Inspect(f)))
	}
	return fo.fn.Call(a, fo, this, args)
}

// Construct invokes [[Construct]]. newTarget defaults to f.
func Construct(a *Agent, f *Object, args []Value, newTarget *Object) (*Object, *Completion) {
	if f.fn == nil || !f.fn.IsConstructor() {
		return nil, a.ThrowTypeError(fmt.Sprintf("%s is not a constructor", Inspect(f)))
	}
	if newTarget == nil {
		newTarget = f
	}
	return f.fn.Construct(a, f, args, newTarget)
}

// Invoke calls the method key of v.
func Invoke(a *Agent, v Value, key PropertyKey, args []Value) (Value, *Completion) {
	f, c := GetV(a, v, key)
	if c != nil {
		return nil, c
	}
	return Call(a, f, v, args)
}

// IntegrityLevel selects between sealing and freezing.
type IntegrityLevel uint8

const (
	Sealed IntegrityLevel = iota
	Frozen
)

// SetIntegrityLevel seals or freezes o.
func SetIntegrityLevel(a *Agent, o *Object, level IntegrityLevel) (bool, *Completion) {
	ok, c := o.PreventExtensions(a)
	if c != nil || !ok {
		return false, c
	}
	keys, c := o.OwnPropertyKeys(a)
	if c != nil {
		return false, c
	}
	for _, k := range keys {
		desc := PropertyDescriptor{Configurable: false, Has: HasConfigurable}
		if level == Frozen {
			current, c := o.GetOwnProperty(a, k)
			if c != nil {
				return false, c
			}
			if current == nil {
				continue
			}
			if current.IsDataDescriptor() {
				desc.Writable = false
				desc.Has |= HasWritable
			}
		}
		if c := DefinePropertyOrThrow(a, o, k, desc); c != nil {
			return false, c
		}
	}
	return true, nil
}

// TestIntegrityLevel reports whether o is sealed or frozen.
func TestIntegrityLevel(a *Agent, o *Object, level IntegrityLevel) (bool, *Completion) {
	extensible, c := o.IsExtensible(a)
	if c != nil || extensible {
		return false, c
	}
	keys, c := o.OwnPropertyKeys(a)
	if c != nil {
		return false, c
	}
	for _, k := range keys {
		current, c := o.GetOwnProperty(a, k)
		if c != nil {
			return false, c
		}
		if current == nil {
			continue
		}
		if current.Configurable {
			return false, nil
		}
		if level == Frozen && current.IsDataDescriptor() && current.Writable {
			return false, nil
		}
	}
	return true, nil
}

// LengthOfArrayLike reads and clamps the length property.
func LengthOfArrayLike(a *Agent, o *Object) (int64, *Completion) {
	v, c := Get(a, o, lengthKey)
	if c != nil {
		return 0, c
	}
	return ToLength(a, v)
}

// CreateListFromArrayLike copies the indexed elements of v.
func CreateListFromArrayLike(a *Agent, v Value) ([]Value, *Completion) {
	o, ok := v.(*Object)
	if !ok {
		return nil, a.ThrowTypeError("CreateListFromArrayLike called on non-object")
	}
	n, c := LengthOfArrayLike(a, o)
	if c != nil {
		return nil, c
	}
	list := make([]Value, 0, min(n, 1024))
	for i := int64(0); i < n; i++ {
		item, c := Get(a, o, indexKey(int(i)))
		if c != nil {
			return nil, c
		}
		list = append(list, item)
	}
	return list, nil
}

// OrdinaryHasInstance walks the prototype chain of o looking for
// c.prototype.
func OrdinaryHasInstance(a *Agent, c Value, o Value) (bool, *Completion) {
	if !IsCallable(c) {
		return false, nil
	}
	co := c.(*Object)
	if bound, ok := co.fn.(*BoundFunction); ok {
		return InstanceofOperator(a, o, bound.Target)
	}
	obj, ok := o.(*Object)
	if !ok {
		return false, nil
	}
	p, comp := Get(a, co, String("prototype"))
	if comp != nil {
		return false, comp
	}
	proto, ok := p.(*Object)
	if !ok {
		return false, a.ThrowTypeError("Function has non-object prototype in instanceof check")
	}
	for {
		next, comp := obj.GetPrototypeOf(a)
		if comp != nil {
			return false, comp
		}
		if next == nil {
			return false, nil
		}
		if next == proto {
			return true, nil
		}
		obj = next
	}
}

// InstanceofOperator implements `v instanceof target`.
func InstanceofOperator(a *Agent, v Value, target Value) (bool, *Completion) {
	if _, ok := target.(*Object); !ok {
		return false, a.ThrowTypeError("Right-hand side of 'instanceof' is not an object")
	}
	handler, c := GetMethod(a, target, SymbolHasInstance)
	if c != nil {
		return false, c
	}
	if handler != nil {
		r, c := Call(a, handler, target, []Value{v})
		if c != nil {
			return false, c
		}
		return ToBoolean(r), nil
	}
	if !IsCallable(target) {
		return false, a.ThrowTypeError("Right-hand side of 'instanceof' is not callable")
	}
	return OrdinaryHasInstance(a, target, v)
}

// SpeciesConstructor finds the constructor to use for derived objects.
func SpeciesConstructor(a *Agent, o *Object, defaultCtor *Object) (*Object, *Completion) {
	ctor, c := Get(a, o, String("constructor"))
	if c != nil {
		return nil, c
	}
	if IsUndefined(ctor) {
		return defaultCtor, nil
	}
	co, ok := ctor.(*Object)
	if !ok {
		return nil, a.ThrowTypeError("object.constructor is not an object")
	}
	species, c := Get(a, co, SymbolSpecies)
	if c != nil {
		return nil, c
	}
	if IsNullish(species) {
		return defaultCtor, nil
	}
	if IsConstructor(species) {
		return species.(*Object), nil
	}
	return nil, a.ThrowTypeError("object.constructor[Symbol.species] is not a constructor")
}

// EnumerableKind selects what EnumerableOwnProperties returns.
type EnumerableKind uint8

const (
	EnumerateKeys EnumerableKind = iota
	EnumerateValues
	EnumerateEntries
)

// EnumerableOwnProperties lists enumerable string-keyed properties.
func EnumerableOwnProperties(a *Agent, o *Object, kind EnumerableKind) ([]Value, *Completion) {
	keys, c := o.OwnPropertyKeys(a)
	if c != nil {
		return nil, c
	}
	var out []Value
	for _, k := range keys {
		s, ok := k.(String)
		if !ok {
			continue
		}
		desc, c := o.GetOwnProperty(a, s)
		if c != nil {
			return nil, c
		}
		if desc == nil || !desc.Enumerable {
			continue
		}
		if kind == EnumerateKeys {
			out = append(out, s)
			continue
		}
		v, c := Get(a, o, s)
		if c != nil {
			return nil, c
		}
		if kind == EnumerateValues {
			out = append(out, v)
		} else {
			out = append(out, CreateArrayFromList(a, []Value{s, v}))
		}
	}
	return out, nil
}

// CopyDataProperties copies enumerable own properties of source into
// target, skipping excluded keys.
func CopyDataProperties(a *Agent, target *Object, source Value, excluded []PropertyKey) *Completion {
	if IsNullish(source) {
		return nil
	}
	from, c := ToObject(a, source)
	if c != nil {
		return c
	}
	keys, c := from.OwnPropertyKeys(a)
	if c != nil {
		return c
	}
next:
	for _, k := range keys {
		for _, ex := range excluded {
			if ex == k {
				continue next
			}
		}
		desc, c := from.GetOwnProperty(a, k)
		if c != nil {
			return c
		}
		if desc == nil || !desc.Enumerable {
			continue
		}
		v, c := Get(a, from, k)
		if c != nil {
			return c
		}
		if _, c := CreateDataProperty(a, target, k, v); c != nil {
			return c
		}
	}
	return nil
}

// FromPropertyDescriptor converts a descriptor to an object.
func FromPropertyDescriptor(a *Agent, d *PropertyDescriptor) Value {
	if d == nil {
		return Undefined
	}
	o := OrdinaryObjectCreate(a.CurrentRealm().Intrinsics.ObjectPrototype)
	if d.has(HasValue) {
		o.Put(String("value"), d.Value, AttrAll)
	}
	if d.has(HasWritable) {
		o.Put(String("writable"), Boolean(d.Writable), AttrAll)
	}
	if d.has(HasGet) {
		o.Put(String("get"), d.Get, AttrAll)
	}
	if d.has(HasSet) {
		o.Put(String("set"), d.Set, AttrAll)
	}
	if d.has(HasEnumerable) {
		o.Put(String("enumerable"), Boolean(d.Enumerable), AttrAll)
	}
	if d.has(HasConfigurable) {
		o.Put(String("configurable"), Boolean(d.Configurable), AttrAll)
	}
	return o
}

// ToPropertyDescriptor reads a descriptor object.
func ToPropertyDescriptor(a *Agent, v Value) (PropertyDescriptor, *Completion) {
	var d PropertyDescriptor
	o, ok := v.(*Object)
	if !ok {
		return d, a.ThrowTypeError("Property description must be an object")
	}
	field := func(name String, f DescriptorField, apply func(Value) *Completion) *Completion {
		has, c := HasProperty(a, o, name)
		if c != nil || !has {
			return c
		}
		val, c := Get(a, o, name)
		if c != nil {
			return c
		}
		d.Has |= f
		return apply(val)
	}
	steps := []struct {
		name  String
		field DescriptorField
		apply func(Value) *Completion
	}{
		{"enumerable", HasEnumerable, func(v Value) *Completion { d.Enumerable = ToBoolean(v); return nil }},
		{"configurable", HasConfigurable, func(v Value) *Completion { d.Configurable = ToBoolean(v); return nil }},
		{"value", HasValue, func(v Value) *Completion { d.Value = v; return nil }},
		{"writable", HasWritable, func(v Value) *Completion { d.Writable = ToBoolean(v); return nil }},
		{"get", HasGet, func(v Value) *Completion {
			if !IsUndefined(v) && !IsCallable(v) {
				return a.ThrowTypeError(fmt.Sprintf("Getter must be a function: %s", Inspect(v)))
			}
			d.Get = v
			return nil
		}},
		{"set", HasSet, func(v Value) *Completion {
			if !IsUndefined(v) && !IsCallable(v) {
				return a.ThrowTypeError(fmt.Sprintf("Setter must be a function: %s", Inspect(v)))
			}
			d.Set = v
			return nil
		}},
	}
	for _, s := range steps {
		if c := field(s.name, s.field, s.apply); c != nil {
			return d, c
		}
	}
	if d.IsAccessorDescriptor() && d.IsDataDescriptor() {
		return d, a.ThrowTypeError("Invalid property descriptor. Cannot both specify accessors and a value or writable attribute")
	}
	return d, nil
}

// GetFunctionRealm returns the realm a constructor belongs to.
func GetFunctionRealm(a *Agent, f *Object) *Realm {
	if f.fn != nil {
		if bound, ok := f.fn.(*BoundFunction); ok {
			return GetFunctionRealm(a, bound.Target)
		}
		if r := f.fn.Realm(); r != nil {
			return r
		}
	}
	return a.CurrentRealm()
}

// GetPrototypeFromConstructor reads constructor.prototype, falling back to
// an intrinsic of the constructor's realm.
func GetPrototypeFromConstructor(a *Agent, ctor *Object, fallback func(*Intrinsics) *Object) (*Object, *Completion) {
	p, c := Get(a, ctor, String("prototype"))
	if c != nil {
		return nil, c
	}
	if proto, ok := p.(*Object); ok {
		return proto, nil
	}
	return fallback(&GetFunctionRealm(a, ctor).Intrinsics), nil
}

// OrdinaryCreateFromConstructor creates an object whose prototype comes
// from ctor.
func OrdinaryCreateFromConstructor(a *Agent, ctor *Object, fallback func(*Intrinsics) *Object) (*Object, *Completion) {
	proto, c := GetPrototypeFromConstructor(a, ctor, fallback)
	if c != nil {
		return nil, c
	}
	return OrdinaryObjectCreate(proto), nil
}

// RelativeIndex resolves a possibly negative relative index against length.
func RelativeIndex(rel float64, length int64) int64 {
	if math.IsInf(rel, -1) {
		return 0
	}
	if rel < 0 {
		r := float64(length) + rel
		if r < 0 {
			return 0
		}
		return int64(r)
	}
	if rel > float64(length) {
		return length
	}
	return int64(rel)
}

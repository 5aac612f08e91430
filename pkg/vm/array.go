package vm

import (
	"math"
	"sort"
)

// arrayBehavior keeps "length" in step with the array index properties.
type arrayBehavior struct {
	ordinaryBehavior
}

var arrayExotic = &arrayBehavior{}

var lengthKey = String("length")

// ArrayCreate allocates an array exotic object.
func ArrayCreate(a *Agent, length uint64, proto *Object) (*Object, *Completion) {
	if length > math.MaxUint32 {
		return nil, a.ThrowRangeError("Invalid array length")
	}
	if proto == nil {
		proto = a.CurrentRealm().Intrinsics.ArrayPrototype
	}
	o := NewExoticObject(proto, arrayExotic, "Array")
	o.Put(lengthKey, Number(length), AttrWritable)
	return o, nil
}

// CreateArrayFromList creates an array holding values.
func CreateArrayFromList(a *Agent, values []Value) *Object {
	o := NewExoticObject(a.CurrentRealm().Intrinsics.ArrayPrototype, arrayExotic, "Array")
	o.properties = make(map[PropertyKey]*Property, len(values)+1)
	o.keys = make([]PropertyKey, 0, len(values)+1)
	o.Put(lengthKey, Number(len(values)), AttrWritable)
	for i, v := range values {
		o.Put(indexKey(i), v, AttrAll)
	}
	return o
}

// IsArray reports whether v is an array exotic object.
func IsArray(v Value) bool {
	o, ok := v.(*Object)
	if !ok {
		return false
	}
	_, isArray := o.behavior.(*arrayBehavior)
	return isArray
}

// IndexKey is the property key of an array index.
func IndexKey(i int64) String {
	return indexKey(int(i))
}

func indexKey(i int) String {
	if i >= 0 && i < len(smallIndexKeys) {
		return smallIndexKeys[i]
	}
	return String(formatInt(int64(i)))
}

var smallIndexKeys = func() []String {
	keys := make([]String, 256)
	for i := range keys {
		keys[i] = String(formatInt(int64(i)))
	}
	return keys
}()

func (b *arrayBehavior) arrayLength(o *Object) uint32 {
	p := o.getOwn(lengthKey)
	if p == nil {
		return 0
	}
	n, _ := p.Value.(Number)
	return uint32(n)
}

func (b *arrayBehavior) DefineOwnProperty(a *Agent, o *Object, key PropertyKey, desc PropertyDescriptor) (bool, *Completion) {
	if s, ok := key.(String); ok {
		if s == lengthKey {
			return b.setLength(a, o, desc)
		}
		if index, ok := s.ArrayIndex(); ok {
			lengthProp := o.getOwn(lengthKey)
			length := b.arrayLength(o)
			if index >= length && !lengthProp.Writable {
				return false, nil
			}
			if !validateAndApplyPropertyDescriptor(o, key, o.extensible, desc, descriptorOrNil(o, key)) {
				return false, nil
			}
			if index >= length {
				lengthProp.Value = Number(index + 1)
			}
			return true, nil
		}
	}
	return OrdinaryDefineOwnProperty(a, o, key, desc)
}

func descriptorOrNil(o *Object, key PropertyKey) *PropertyDescriptor {
	if p := o.getOwn(key); p != nil {
		return descriptorOf(p)
	}
	return nil
}

// setLength implements ArraySetLength.
func (b *arrayBehavior) setLength(a *Agent, o *Object, desc PropertyDescriptor) (bool, *Completion) {
	if !desc.has(HasValue) {
		return validateAndApplyPropertyDescriptor(o, lengthKey, o.extensible, desc, descriptorOrNil(o, lengthKey)), nil
	}
	newLen, c := ToUint32(a, desc.Value)
	if c != nil {
		return false, c
	}
	numberLen, c := ToNumber(a, desc.Value)
	if c != nil {
		return false, c
	}
	if float64(newLen) != float64(numberLen) {
		return false, a.ThrowRangeError("Invalid array length")
	}
	desc.Value = Number(newLen)
	oldLenProp := o.getOwn(lengthKey)
	oldLen := b.arrayLength(o)
	if newLen >= oldLen {
		return validateAndApplyPropertyDescriptor(o, lengthKey, o.extensible, desc, descriptorOf(oldLenProp)), nil
	}
	if !oldLenProp.Writable {
		return false, nil
	}
	newWritable := !desc.has(HasWritable) || desc.Writable
	desc.Writable = true
	desc.Has |= HasWritable
	if !validateAndApplyPropertyDescriptor(o, lengthKey, o.extensible, desc, descriptorOf(oldLenProp)) {
		return false, nil
	}

	// Delete indices from the top down, stopping at the first one that
	// refuses.
	var doomed []uint32
	for _, k := range o.keys {
		if s, ok := k.(String); ok {
			if idx, ok := s.ArrayIndex(); ok && idx >= newLen {
				doomed = append(doomed, idx)
			}
		}
	}
	sort.Slice(doomed, func(i, j int) bool { return doomed[i] > doomed[j] })
	for _, idx := range doomed {
		key := String(formatInt(int64(idx)))
		if p := o.getOwn(key); p != nil && !p.Configurable {
			oldLenProp.Value = Number(idx + 1)
			if !newWritable {
				oldLenProp.Writable = false
			}
			return false, nil
		}
		o.deleteOwn(key)
	}
	if !newWritable {
		oldLenProp.Writable = false
	}
	return true, nil
}

// initArray creates %Array.prototype%, itself an array, and %Array%. The
// remaining methods are installed by the builtins package.
func (r *Realm) initArray() {
	i := &r.Intrinsics
	i.ArrayPrototype = NewExoticObject(i.ObjectPrototype, arrayExotic, "Array")
	i.ArrayPrototype.Put(lengthKey, Number(0), AttrWritable)
	i.Array = DefineConstructor(r, "Array", 1, arrayConstructor, i.ArrayPrototype, BuiltinOptions{})
	DefineMethod(r, i.Array, "isArray", 1, func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		return Boolean(IsArray(Arg(args, 0))), nil
	})
	DefineGetter(r, i.Array, SymbolSpecies, returnThis)
}

func arrayConstructor(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
	if newTarget == nil {
		newTarget = a.RunningContext().Function
	}
	proto, c := GetPrototypeFromConstructor(a, newTarget, func(i *Intrinsics) *Object { return i.ArrayPrototype })
	if c != nil {
		return nil, c
	}
	if len(args) == 1 {
		if n, ok := args[0].(Number); ok {
			length := toUint32(float64(n))
			if float64(length) != float64(n) {
				return nil, a.ThrowRangeError("Invalid array length")
			}
			return ArrayCreate(a, uint64(length), proto)
		}
	}
	o, c := ArrayCreate(a, uint64(len(args)), proto)
	if c != nil {
		return nil, c
	}
	for i, v := range args {
		o.Put(indexKey(i), v, AttrAll)
	}
	return o, nil
}

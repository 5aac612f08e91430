package vm

import (
	"sort"
)

// Behavior is the set of essential internal methods. Exotic objects embed
// ordinaryBehavior and override only the methods the language specifies for
// them.
type Behavior interface {
	GetPrototypeOf(a *Agent, o *Object) (*Object, *Completion)
	SetPrototypeOf(a *Agent, o *Object, proto *Object) (bool, *Completion)
	IsExtensible(a *Agent, o *Object) (bool, *Completion)
	PreventExtensions(a *Agent, o *Object) (bool, *Completion)
	GetOwnProperty(a *Agent, o *Object, key PropertyKey) (*PropertyDescriptor, *Completion)
	DefineOwnProperty(a *Agent, o *Object, key PropertyKey, desc PropertyDescriptor) (bool, *Completion)
	HasProperty(a *Agent, o *Object, key PropertyKey) (bool, *Completion)
	Get(a *Agent, o *Object, key PropertyKey, receiver Value) (Value, *Completion)
	Set(a *Agent, o *Object, key PropertyKey, v Value, receiver Value) (bool, *Completion)
	Delete(a *Agent, o *Object, key PropertyKey) (bool, *Completion)
	OwnPropertyKeys(a *Agent, o *Object) ([]PropertyKey, *Completion)
}

// Object is a language object. Functions carry a FunctionBehavior; exotic
// objects carry a Behavior other than the ordinary one. Internal holds the
// object's internal slots, such as *PromiseData.
type Object struct {
	proto      *Object
	extensible bool
	properties map[PropertyKey]*Property
	keys       []PropertyKey
	behavior   Behavior
	fn         FunctionBehavior
	private    privateElements

	// Class names the kind of object for inspection, e.g. "Array".
	Class    string
	Internal any
}

func (*Object) Type() ValueType { return TypeObject }

var ordinary Behavior = ordinaryBehavior{}

// OrdinaryObjectCreate allocates an ordinary extensible object.
func OrdinaryObjectCreate(proto *Object) *Object {
	return &Object{proto: proto, extensible: true, behavior: ordinary, Class: "Object"}
}

// NewExoticObject allocates an object with custom internal methods.
func NewExoticObject(proto *Object, b Behavior, class string) *Object {
	return &Object{proto: proto, extensible: true, behavior: b, Class: class}
}

// Prototype returns [[Prototype]] without running exotic hooks.
func (o *Object) Prototype() *Object { return o.proto }

// Function returns the function behaviour, or nil for non-callables.
func (o *Object) Function() FunctionBehavior { return o.fn }

// --- own property storage ---

func (o *Object) getOwn(key PropertyKey) *Property {
	if o.properties == nil {
		return nil
	}
	return o.properties[key]
}

func (o *Object) setOwn(key PropertyKey, p *Property) {
	if o.properties == nil {
		o.properties = make(map[PropertyKey]*Property)
	}
	if _, exists := o.properties[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.properties[key] = p
}

func (o *Object) deleteOwn(key PropertyKey) {
	if _, exists := o.properties[key]; !exists {
		return
	}
	delete(o.properties, key)
	for i := len(o.keys) - 1; i >= 0; i-- {
		if o.keys[i] == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Put defines or replaces an own data property without consulting exotic
// hooks. It is meant for building fresh objects from Go.
func (o *Object) Put(key PropertyKey, v Value, attrs Attr) {
	o.setOwn(key, &Property{
		Value:        v,
		Writable:     attrs&AttrWritable != 0,
		Enumerable:   attrs&AttrEnumerable != 0,
		Configurable: attrs&AttrConfigurable != 0,
	})
}

// PutAccessor defines or replaces an own accessor property from Go.
func (o *Object) PutAccessor(key PropertyKey, get, set *Object, attrs Attr) {
	o.setOwn(key, &Property{
		Accessor:     true,
		Getter:       get,
		Setter:       set,
		Enumerable:   attrs&AttrEnumerable != 0,
		Configurable: attrs&AttrConfigurable != 0,
	})
}

// OwnValue reads an own data property without running getters.
func (o *Object) OwnValue(key PropertyKey) (Value, bool) {
	p := o.getOwn(key)
	if p == nil || p.Accessor {
		return nil, false
	}
	return p.Value, true
}

// orderedKeys returns own keys in property order: array indices ascending,
// then strings and symbols in creation order.
func (o *Object) orderedKeys() []PropertyKey {
	type index struct {
		n   uint32
		key PropertyKey
	}
	var indices []index
	var strs, syms []PropertyKey
	for _, k := range o.keys {
		switch k := k.(type) {
		case String:
			if n, ok := k.ArrayIndex(); ok {
				indices = append(indices, index{n, k})
			} else {
				strs = append(strs, k)
			}
		default:
			syms = append(syms, k)
		}
	}
	out := make([]PropertyKey, 0, len(o.keys))
	if len(indices) > 0 {
		sort.Slice(indices, func(i, j int) bool { return indices[i].n < indices[j].n })
		for _, ix := range indices {
			out = append(out, ix.key)
		}
	}
	out = append(out, strs...)
	return append(out, syms...)
}

// --- internal method dispatch ---

func (o *Object) GetPrototypeOf(a *Agent) (*Object, *Completion) {
	return o.behavior.GetPrototypeOf(a, o)
}

func (o *Object) SetPrototypeOf(a *Agent, proto *Object) (bool, *Completion) {
	return o.behavior.SetPrototypeOf(a, o, proto)
}

func (o *Object) IsExtensible(a *Agent) (bool, *Completion) {
	return o.behavior.IsExtensible(a, o)
}

func (o *Object) PreventExtensions(a *Agent) (bool, *Completion) {
	return o.behavior.PreventExtensions(a, o)
}

func (o *Object) GetOwnProperty(a *Agent, key PropertyKey) (*PropertyDescriptor, *Completion) {
	return o.behavior.GetOwnProperty(a, o, key)
}

func (o *Object) DefineOwnProperty(a *Agent, key PropertyKey, desc PropertyDescriptor) (bool, *Completion) {
	return o.behavior.DefineOwnProperty(a, o, key, desc)
}

func (o *Object) HasProperty(a *Agent, key PropertyKey) (bool, *Completion) {
	return o.behavior.HasProperty(a, o, key)
}

func (o *Object) Get(a *Agent, key PropertyKey, receiver Value) (Value, *Completion) {
	return o.behavior.Get(a, o, key, receiver)
}

func (o *Object) Set(a *Agent, key PropertyKey, v Value, receiver Value) (bool, *Completion) {
	return o.behavior.Set(a, o, key, v, receiver)
}

func (o *Object) Delete(a *Agent, key PropertyKey) (bool, *Completion) {
	return o.behavior.Delete(a, o, key)
}

func (o *Object) OwnPropertyKeys(a *Agent) ([]PropertyKey, *Completion) {
	return o.behavior.OwnPropertyKeys(a, o)
}

// Mark visits everything the object keeps alive. WeakRef targets and weak
// collection keys live in Internal and are skipped by their own Mark.
func (o *Object) Mark(visit Visitor) {
	if o.proto != nil {
		visit(o.proto)
	}
	for k, p := range o.properties {
		visitValue(visit, k)
		p.Mark(visit)
	}
	if o.fn != nil {
		o.fn.Mark(visit)
	}
	for _, pe := range o.private {
		pe.Mark(visit)
	}
	if m, ok := o.behavior.(Marker); ok {
		m.Mark(visit)
	}
	if m, ok := o.Internal.(Marker); ok {
		m.Mark(visit)
	}
}

// --- ordinary internal methods ---

type ordinaryBehavior struct{}

// plainStorage reports whether o keeps every own property in its property
// map and uses the ordinary lookup methods.
func plainStorage(o *Object) bool {
	switch o.behavior.(type) {
	case ordinaryBehavior, *arrayBehavior:
		return true
	}
	return false
}

func (ordinaryBehavior) GetPrototypeOf(a *Agent, o *Object) (*Object, *Completion) {
	return o.proto, nil
}

func (ordinaryBehavior) SetPrototypeOf(a *Agent, o *Object, proto *Object) (bool, *Completion) {
	return OrdinarySetPrototypeOf(o, proto), nil
}

// OrdinarySetPrototypeOf changes [[Prototype]] unless that would create a
// cycle or the object is not extensible.
func OrdinarySetPrototypeOf(o *Object, proto *Object) bool {
	if proto == o.proto {
		return true
	}
	if !o.extensible {
		return false
	}
	for p := proto; p != nil; {
		if p == o {
			return false
		}
		if !plainStorage(p) {
			break
		}
		p = p.proto
	}
	o.proto = proto
	return true
}

func (ordinaryBehavior) IsExtensible(a *Agent, o *Object) (bool, *Completion) {
	return o.extensible, nil
}

func (ordinaryBehavior) PreventExtensions(a *Agent, o *Object) (bool, *Completion) {
	o.extensible = false
	return true, nil
}

func (ordinaryBehavior) GetOwnProperty(a *Agent, o *Object, key PropertyKey) (*PropertyDescriptor, *Completion) {
	p := o.getOwn(key)
	if p == nil {
		return nil, nil
	}
	return descriptorOf(p), nil
}

func (ordinaryBehavior) DefineOwnProperty(a *Agent, o *Object, key PropertyKey, desc PropertyDescriptor) (bool, *Completion) {
	return OrdinaryDefineOwnProperty(a, o, key, desc)
}

// OrdinaryDefineOwnProperty validates desc against the current property and
// applies it.
func OrdinaryDefineOwnProperty(a *Agent, o *Object, key PropertyKey, desc PropertyDescriptor) (bool, *Completion) {
	current, c := o.GetOwnProperty(a, key)
	if c != nil {
		return false, c
	}
	extensible, c := o.IsExtensible(a)
	if c != nil {
		return false, c
	}
	return validateAndApplyPropertyDescriptor(o, key, extensible, desc, current), nil
}

func sameValueOrAbsent(has bool, a, b Value) bool {
	return !has || SameValue(a, b)
}

// validateAndApplyPropertyDescriptor implements ValidateAndApplyPropertyDescriptor.
// A nil o only validates.
func validateAndApplyPropertyDescriptor(o *Object, key PropertyKey, extensible bool, desc PropertyDescriptor, current *PropertyDescriptor) bool {
	if current == nil {
		if !extensible {
			return false
		}
		if o != nil {
			o.setOwn(key, propertyFrom(desc))
		}
		return true
	}
	if desc.Has == 0 {
		return true
	}
	if !current.Configurable {
		if desc.has(HasConfigurable) && desc.Configurable {
			return false
		}
		if desc.has(HasEnumerable) && desc.Enumerable != current.Enumerable {
			return false
		}
		if !desc.IsGenericDescriptor() && desc.IsAccessorDescriptor() != current.IsAccessorDescriptor() {
			return false
		}
		if current.IsAccessorDescriptor() {
			if !sameValueOrAbsent(desc.has(HasGet), desc.Get, current.Get) ||
				!sameValueOrAbsent(desc.has(HasSet), desc.Set, current.Set) {
				return false
			}
		} else if !current.Writable {
			if desc.has(HasWritable) && desc.Writable {
				return false
			}
			if !sameValueOrAbsent(desc.has(HasValue), desc.Value, current.Value) {
				return false
			}
		}
	}
	if o == nil {
		return true
	}
	p := o.getOwn(key)
	if p == nil {
		// Exotic objects may report properties they do not store.
		p = propertyFrom(*current)
		o.setOwn(key, p)
	}
	switch {
	case current.IsDataDescriptor() && desc.IsAccessorDescriptor():
		*p = Property{Accessor: true, Enumerable: p.Enumerable, Configurable: p.Configurable}
	case current.IsAccessorDescriptor() && desc.IsDataDescriptor():
		*p = Property{Value: Undefined, Enumerable: p.Enumerable, Configurable: p.Configurable}
	}
	if desc.has(HasValue) {
		p.Value = desc.Value
	}
	if desc.has(HasWritable) {
		p.Writable = desc.Writable
	}
	if desc.has(HasGet) {
		p.Getter = objectOrNil(desc.Get)
	}
	if desc.has(HasSet) {
		p.Setter = objectOrNil(desc.Set)
	}
	if desc.has(HasEnumerable) {
		p.Enumerable = desc.Enumerable
	}
	if desc.has(HasConfigurable) {
		p.Configurable = desc.Configurable
	}
	return true
}

func (ordinaryBehavior) HasProperty(a *Agent, o *Object, key PropertyKey) (bool, *Completion) {
	for {
		own, c := o.GetOwnProperty(a, key)
		if c != nil {
			return false, c
		}
		if own != nil {
			return true, nil
		}
		parent, c := o.GetPrototypeOf(a)
		if c != nil || parent == nil {
			return false, c
		}
		if !plainStorage(parent) {
			return parent.HasProperty(a, key)
		}
		o = parent
	}
}

func (ordinaryBehavior) Get(a *Agent, o *Object, key PropertyKey, receiver Value) (Value, *Completion) {
	return OrdinaryGet(a, o, key, receiver)
}

// OrdinaryGet walks the prototype chain looking for key.
func OrdinaryGet(a *Agent, o *Object, key PropertyKey, receiver Value) (Value, *Completion) {
	for {
		var p *Property
		if plainStorage(o) {
			p = o.getOwn(key)
		} else {
			desc, c := o.GetOwnProperty(a, key)
			if c != nil {
				return nil, c
			}
			if desc != nil {
				p = propertyFrom(*desc)
			}
		}
		if p != nil {
			if !p.Accessor {
				return p.Value, nil
			}
			if p.Getter == nil {
				return Undefined, nil
			}
			return Call(a, p.Getter, receiver, nil)
		}
		parent, c := o.GetPrototypeOf(a)
		if c != nil {
			return nil, c
		}
		if parent == nil {
			return Undefined, nil
		}
		if !plainStorage(parent) {
			return parent.Get(a, key, receiver)
		}
		o = parent
	}
}

func (ordinaryBehavior) Set(a *Agent, o *Object, key PropertyKey, v Value, receiver Value) (bool, *Completion) {
	return OrdinarySet(a, o, key, v, receiver)
}

// OrdinarySet implements OrdinarySet and OrdinarySetWithOwnDescriptor.
func OrdinarySet(a *Agent, o *Object, key PropertyKey, v Value, receiver Value) (bool, *Completion) {
	own, c := o.GetOwnProperty(a, key)
	if c != nil {
		return false, c
	}
	if own == nil {
		parent, c := o.GetPrototypeOf(a)
		if c != nil {
			return false, c
		}
		if parent != nil {
			return parent.Set(a, key, v, receiver)
		}
		own = &PropertyDescriptor{Value: Undefined, Writable: true, Enumerable: true, Configurable: true,
			Has: HasValue | HasWritable | HasEnumerable | HasConfigurable}
	}
	if own.IsDataDescriptor() {
		if !own.Writable {
			return false, nil
		}
		recv, ok := receiver.(*Object)
		if !ok {
			return false, nil
		}
		existing, c := recv.GetOwnProperty(a, key)
		if c != nil {
			return false, c
		}
		if existing != nil {
			if existing.IsAccessorDescriptor() || !existing.Writable {
				return false, nil
			}
			return recv.DefineOwnProperty(a, key, PropertyDescriptor{Value: v, Has: HasValue})
		}
		return CreateDataProperty(a, recv, key, v)
	}
	setter, ok := own.Set.(*Object)
	if !ok {
		return false, nil
	}
	if _, c := Call(a, setter, receiver, []Value{v}); c != nil {
		return false, c
	}
	return true, nil
}

func (ordinaryBehavior) Delete(a *Agent, o *Object, key PropertyKey) (bool, *Completion) {
	desc, c := o.GetOwnProperty(a, key)
	if c != nil {
		return false, c
	}
	if desc == nil {
		return true, nil
	}
	if desc.Configurable {
		o.deleteOwn(key)
		return true, nil
	}
	return false, nil
}

func (ordinaryBehavior) OwnPropertyKeys(a *Agent, o *Object) ([]PropertyKey, *Completion) {
	return o.orderedKeys(), nil
}

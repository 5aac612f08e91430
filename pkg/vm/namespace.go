package vm

import (
	"fmt"
	"sort"
)

// namespaceBehavior is the module namespace exotic object: a frozen view of
// a module's exports in code unit order.
type namespaceBehavior struct {
	ordinaryBehavior
	module  ModuleRecord
	exports []String
}

func (b *namespaceBehavior) Mark(visit Visitor) {
	visit(b.module)
}

func (b *namespaceBehavior) isExport(key PropertyKey) (String, bool) {
	s, ok := key.(String)
	if !ok {
		return "", false
	}
	i := sort.Search(len(b.exports), func(i int) bool { return b.exports[i].Compare(s) >= 0 })
	return s, i < len(b.exports) && b.exports[i] == s
}

// GetModuleNamespace returns the namespace object of m, creating it on
// first use. Ambiguous star exports are left out.
func GetModuleNamespace(a *Agent, m ModuleRecord) *Object {
	base := m.base()
	if base.namespace != nil {
		return base.namespace
	}
	var exports []String
	for _, name := range m.GetExportedNames(map[ModuleRecord]bool{}) {
		if resolution, ambiguous := m.ResolveExport(name, resolveSet{}); resolution != nil && !ambiguous {
			exports = append(exports, name)
		}
	}
	sort.Slice(exports, func(i, j int) bool { return exports[i].Compare(exports[j]) < 0 })
	o := NewExoticObject(nil, &namespaceBehavior{module: m, exports: exports}, "Module")
	o.Put(SymbolToStringTag, String("Module"), AttrNone)
	o.extensible = false
	base.namespace = o
	return o
}

func (b *namespaceBehavior) SetPrototypeOf(a *Agent, o *Object, proto *Object) (bool, *Completion) {
	return proto == nil, nil
}

func (b *namespaceBehavior) PreventExtensions(a *Agent, o *Object) (bool, *Completion) {
	return true, nil
}

func (b *namespaceBehavior) GetOwnProperty(a *Agent, o *Object, key PropertyKey) (*PropertyDescriptor, *Completion) {
	if _, isSymbol := key.(*Symbol); isSymbol {
		return b.ordinaryBehavior.GetOwnProperty(a, o, key)
	}
	if _, ok := b.isExport(key); !ok {
		return nil, nil
	}
	v, c := b.Get(a, o, key, o)
	if c != nil {
		return nil, c
	}
	d := DataDescriptor(v, AttrWritable|AttrEnumerable)
	return &d, nil
}

func (b *namespaceBehavior) DefineOwnProperty(a *Agent, o *Object, key PropertyKey, desc PropertyDescriptor) (bool, *Completion) {
	if _, isSymbol := key.(*Symbol); isSymbol {
		return OrdinaryDefineOwnProperty(a, o, key, desc)
	}
	current, c := b.GetOwnProperty(a, o, key)
	if c != nil || current == nil {
		return false, c
	}
	if (desc.has(HasConfigurable) && desc.Configurable) ||
		(desc.has(HasEnumerable) && !desc.Enumerable) ||
		desc.IsAccessorDescriptor() ||
		(desc.has(HasWritable) && !desc.Writable) {
		return false, nil
	}
	if desc.has(HasValue) {
		return SameValue(desc.Value, current.Value), nil
	}
	return true, nil
}

func (b *namespaceBehavior) HasProperty(a *Agent, o *Object, key PropertyKey) (bool, *Completion) {
	if _, isSymbol := key.(*Symbol); isSymbol {
		return b.ordinaryBehavior.HasProperty(a, o, key)
	}
	_, ok := b.isExport(key)
	return ok, nil
}

func (b *namespaceBehavior) Get(a *Agent, o *Object, key PropertyKey, receiver Value) (Value, *Completion) {
	if _, isSymbol := key.(*Symbol); isSymbol {
		return b.ordinaryBehavior.Get(a, o, key, receiver)
	}
	name, ok := b.isExport(key)
	if !ok {
		return Undefined, nil
	}
	binding, _ := b.module.ResolveExport(name, resolveSet{})
	if binding.Namespace {
		return GetModuleNamespace(a, binding.Module), nil
	}
	env := binding.Module.Environment()
	if env == nil {
		return nil, a.ThrowReferenceError(fmt.Sprintf("Cannot access '%s' before initialization", name))
	}
	return env.GetBindingValue(a, binding.BindingName, true)
}

func (b *namespaceBehavior) Set(a *Agent, o *Object, key PropertyKey, v Value, receiver Value) (bool, *Completion) {
	return false, nil
}

func (b *namespaceBehavior) Delete(a *Agent, o *Object, key PropertyKey) (bool, *Completion) {
	if _, isSymbol := key.(*Symbol); isSymbol {
		return b.ordinaryBehavior.Delete(a, o, key)
	}
	_, ok := b.isExport(key)
	return !ok, nil
}

func (b *namespaceBehavior) OwnPropertyKeys(a *Agent, o *Object) ([]PropertyKey, *Completion) {
	keys := make([]PropertyKey, 0, len(b.exports)+1)
	for _, name := range b.exports {
		keys = append(keys, name)
	}
	for _, k := range o.orderedKeys() {
		if _, isSymbol := k.(*Symbol); isSymbol {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// peek reads an export without running any code, for inspection.
func (b *namespaceBehavior) peek(name String) (Value, bool) {
	binding, ambiguous := b.module.ResolveExport(name, resolveSet{})
	if binding == nil || ambiguous {
		return nil, false
	}
	if binding.Namespace {
		ns := binding.Module.base().namespace
		return ns, ns != nil
	}
	return peekBinding(binding.Module, binding.BindingName, 0)
}

func peekBinding(m ModuleRecord, name String, depth int) (Value, bool) {
	env := m.base().environment
	if env == nil || depth > 64 {
		return nil, false
	}
	b := env.lookup(name)
	switch {
	case b == nil:
		return nil, false
	case b.module != nil:
		return peekBinding(b.module, b.target, depth+1)
	case !b.initialized:
		return nil, false
	}
	return b.value, true
}

package builtins

import (
	"fmt"
	"strings"

	"siskin/pkg/vm"
)

// orderedMap is the storage behind Map and Set: a hash index over an
// insertion-ordered entry list. Deleted entries are tombstoned and only
// dropped from the front, so iterator positions stay valid while the
// collection is mutated. Positions are absolute: entries[i] is at base+i.
type orderedMap struct {
	entries []*mapEntry
	index   map[any]*mapEntry
	base    int
	size    int
}

type mapEntry struct {
	key, value vm.Value
	pos        int
	deleted    bool
}

type nanKey struct{}

type bigIntKey string

func newOrderedMap() *orderedMap {
	return &orderedMap{index: make(map[any]*mapEntry)}
}

// hashKey normalizes v so that Go equality matches SameValueZero.
func hashKey(v vm.Value) any {
	switch x := v.(type) {
	case vm.Number:
		if x != x {
			return nanKey{}
		}
		if x == 0 {
			return vm.Number(0)
		}
	case *vm.BigInt:
		return bigIntKey(x.Int.String())
	}
	return v
}

// canonicalKey maps -0 to +0, as Map and Set store keys.
func canonicalKey(v vm.Value) vm.Value {
	if n, ok := v.(vm.Number); ok && n == 0 {
		return vm.Number(0)
	}
	return v
}

func (m *orderedMap) Get(key vm.Value) (vm.Value, bool) {
	e, ok := m.index[hashKey(key)]
	if !ok {
		return nil, false
	}
	return e.value, true
}

func (m *orderedMap) Has(key vm.Value) bool {
	_, ok := m.index[hashKey(key)]
	return ok
}

func (m *orderedMap) Set(key, value vm.Value) {
	hk := hashKey(key)
	if e, ok := m.index[hk]; ok {
		e.value = value
		return
	}
	e := &mapEntry{key: canonicalKey(key), value: value, pos: m.base + len(m.entries)}
	m.entries = append(m.entries, e)
	m.index[hk] = e
	m.size++
}

func (m *orderedMap) Delete(key vm.Value) bool {
	hk := hashKey(key)
	e, ok := m.index[hk]
	if !ok {
		return false
	}
	delete(m.index, hk)
	e.deleted, e.key, e.value = true, nil, nil
	m.size--
	m.dropFront()
	return true
}

func (m *orderedMap) Clear() {
	for _, e := range m.entries {
		e.deleted, e.key, e.value = true, nil, nil
	}
	clear(m.index)
	m.base += len(m.entries)
	m.entries = nil
	m.size = 0
}

func (m *orderedMap) Len() int {
	return m.size
}

func (m *orderedMap) dropFront() {
	n := 0
	for n < len(m.entries) && m.entries[n].deleted {
		n++
	}
	if n > 0 {
		clear(m.entries[:n])
		m.entries = m.entries[n:]
		m.base += n
	}
}

// next returns the first live entry at or after pos.
func (m *orderedMap) next(pos int) (*mapEntry, bool) {
	for i := max(pos-m.base, 0); i < len(m.entries); i++ {
		if e := m.entries[i]; !e.deleted {
			return e, true
		}
	}
	return nil, false
}

// each visits the live entries in order, including those added during the
// walk, and stops on the first abrupt completion.
func (m *orderedMap) each(fn func(key, value vm.Value) *vm.Completion) *vm.Completion {
	for pos := 0; ; {
		e, ok := m.next(pos)
		if !ok {
			return nil
		}
		pos = e.pos + 1
		if c := fn(e.key, e.value); c != nil {
			return c
		}
	}
}

func (m *orderedMap) Mark(visit vm.Visitor) {
	for _, e := range m.entries {
		if e.deleted {
			continue
		}
		markValue(visit, e.key)
		markValue(visit, e.value)
	}
}

// Inspect renders Map and Set objects as Map(n) { k => v } and
// Set(n) { v }.
func (m *orderedMap) Inspect(o *vm.Object, inspect func(vm.Value) string) string {
	var parts []string
	m.each(func(key, value vm.Value) *vm.Completion {
		if o.Class == "Set" {
			parts = append(parts, inspect(key))
		} else {
			parts = append(parts, inspect(key)+" => "+inspect(value))
		}
		return nil
	})
	head := fmt.Sprintf("%s(%d)", o.Class, m.Len())
	if len(parts) == 0 {
		return head + " {}"
	}
	return head + " { " + strings.Join(parts, ", ") + " }"
}

func markValue(visit vm.Visitor, v vm.Value) {
	if o, ok := v.(*vm.Object); ok && o != nil {
		visit(o)
	}
}

// collectionIterator walks an orderedMap for Map and Set iterators.
type collectionIterator struct {
	data *orderedMap
	pos  int
	kind vm.EnumerableKind
	done bool
}

func (it *collectionIterator) Mark(visit vm.Visitor) {
	if !it.done {
		visit(it.data)
	}
}

func (it *collectionIterator) step(a *vm.Agent) vm.Value {
	if it.done {
		return vm.CreateIterResultObject(a, vm.Undefined, true)
	}
	e, ok := it.data.next(it.pos)
	if !ok {
		it.done = true
		return vm.CreateIterResultObject(a, vm.Undefined, true)
	}
	it.pos = e.pos + 1
	var v vm.Value
	switch it.kind {
	case vm.EnumerateKeys:
		v = e.key
	case vm.EnumerateValues:
		v = e.value
	default:
		v = vm.CreateArrayFromList(a, []vm.Value{e.key, e.value})
	}
	return vm.CreateIterResultObject(a, v, false)
}

// newCollectionIterator creates an iterator object with the given
// prototype registered under protoName.
func newCollectionIterator(a *vm.Agent, protoName string, data *orderedMap, kind vm.EnumerableKind) *vm.Object {
	proto, _ := a.CurrentRealm().Intrinsics.Lookup(protoName)
	it := vm.OrdinaryObjectCreate(proto)
	it.Internal = &collectionIterator{data: data, kind: kind}
	return it
}

// addEntriesFromIterable feeds iterable to adder, as the Map and Set
// constructors do.
func addEntriesFromIterable(a *vm.Agent, target *vm.Object, iterable vm.Value, adderName vm.String, pairs bool) *vm.Completion {
	adder, c := vm.Get(a, target, adderName)
	if c != nil {
		return c
	}
	if !vm.IsCallable(adder) {
		return a.ThrowTypeError("'" + adderName.String() + "' returned for property '" + adderName.String() + "' of object '" + vm.Inspect(target) + "' is not a function")
	}
	rec, c := vm.GetIterator(a, iterable, vm.IteratorSync)
	if c != nil {
		return c
	}
	for {
		next, done, c := vm.IteratorStepValue(a, rec)
		if c != nil {
			return c
		}
		if done {
			return nil
		}
		args := []vm.Value{next}
		if pairs {
			entry, ok := next.(*vm.Object)
			if !ok {
				return closeWith(a, rec, a.ThrowTypeError("Iterator value "+vm.Inspect(next)+" is not an entry object"))
			}
			k, c := getIndex(a, entry, 0)
			if c != nil {
				return closeWith(a, rec, c)
			}
			v, c := getIndex(a, entry, 1)
			if c != nil {
				return closeWith(a, rec, c)
			}
			args = []vm.Value{k, v}
		}
		if _, c := vm.Call(a, adder, target, args); c != nil {
			return closeWith(a, rec, c)
		}
	}
}

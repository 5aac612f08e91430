package vm

import "sort"

// stringBehavior exposes the code units of a String wrapper as read-only
// index properties.
type stringBehavior struct {
	ordinaryBehavior
}

var stringExotic = &stringBehavior{}

// StringCreate allocates a String exotic object wrapping s.
func StringCreate(s String, proto *Object) *Object {
	o := NewExoticObject(proto, stringExotic, "String")
	o.Internal = &PrimitiveWrapper{Value: s}
	o.Put(lengthKey, Number(s.Length()), AttrNone)
	return o
}

func wrappedString(o *Object) String {
	return o.Internal.(*PrimitiveWrapper).Value.(String)
}

func stringGetOwnProperty(o *Object, key PropertyKey) *PropertyDescriptor {
	s, ok := key.(String)
	if !ok {
		return nil
	}
	index, ok := s.ArrayIndex()
	if !ok {
		return nil
	}
	str := wrappedString(o)
	if int(index) >= str.Length() {
		return nil
	}
	d := DataDescriptor(str.Substring(int(index), int(index)+1), AttrEnumerable)
	return &d
}

func (b *stringBehavior) GetOwnProperty(a *Agent, o *Object, key PropertyKey) (*PropertyDescriptor, *Completion) {
	if p := o.getOwn(key); p != nil {
		return descriptorOf(p), nil
	}
	return stringGetOwnProperty(o, key), nil
}

func (b *stringBehavior) DefineOwnProperty(a *Agent, o *Object, key PropertyKey, desc PropertyDescriptor) (bool, *Completion) {
	if current := stringGetOwnProperty(o, key); current != nil {
		return validateAndApplyPropertyDescriptor(nil, key, o.extensible, desc, current), nil
	}
	return OrdinaryDefineOwnProperty(a, o, key, desc)
}

func (b *stringBehavior) OwnPropertyKeys(a *Agent, o *Object) ([]PropertyKey, *Completion) {
	n := wrappedString(o).Length()
	keys := make([]PropertyKey, 0, n+len(o.keys))
	for i := 0; i < n; i++ {
		keys = append(keys, indexKey(i))
	}
	var extra []uint32
	for _, k := range o.keys {
		if s, ok := k.(String); ok {
			if idx, ok := s.ArrayIndex(); ok && int(idx) >= n {
				extra = append(extra, idx)
			}
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	for _, idx := range extra {
		keys = append(keys, indexKey(int(idx)))
	}
	for _, k := range o.orderedKeys() {
		if s, ok := k.(String); ok {
			if _, isIndex := s.ArrayIndex(); isIndex {
				continue
			}
		}
		keys = append(keys, k)
	}
	return keys, nil
}

package vm

import (
	"fmt"

	"siskin/pkg/errors"
)

// PrivateName is the identity of one #name declared by one class
// evaluation. Two evaluations of the same class body yield distinct names.
type PrivateName struct {
	Description String
}

func (n *PrivateName) Mark(visit Visitor) {}

// PrivateEnvironment maps the #names of a class body to their identities.
type PrivateEnvironment struct {
	Outer *PrivateEnvironment
	Names map[string]*PrivateName
}

// NewPrivateEnvironment creates an empty private environment.
func NewPrivateEnvironment(outer *PrivateEnvironment) *PrivateEnvironment {
	return &PrivateEnvironment{Outer: outer, Names: make(map[string]*PrivateName)}
}

func (e *PrivateEnvironment) Mark(visit Visitor) {
	if e.Outer != nil {
		visit(e.Outer)
	}
	for _, n := range e.Names {
		visit(n)
	}
}

// ResolvePrivateIdentifier finds the PrivateName for identifier. Early
// errors guarantee it exists, so running out of environments is an engine
// bug.
func ResolvePrivateIdentifier(env *PrivateEnvironment, identifier string) *PrivateName {
	for e := env; e != nil; e = e.Outer {
		if n, ok := e.Names[identifier]; ok {
			return n
		}
	}
	errors.Assertf("unresolvable private identifier #%s", identifier)
	return nil
}

// PrivateElementKind distinguishes fields, methods and accessors.
type PrivateElementKind uint8

const (
	PrivateField PrivateElementKind = iota
	PrivateMethod
	PrivateAccessor
)

// PrivateElement is one private field, method or accessor of an object.
type PrivateElement struct {
	Key    *PrivateName
	Kind   PrivateElementKind
	Value  Value
	Getter *Object
	Setter *Object
}

func (p *PrivateElement) Mark(visit Visitor) {
	visit(p.Key)
	visitValue(visit, p.Value)
	if p.Getter != nil {
		visit(p.Getter)
	}
	if p.Setter != nil {
		visit(p.Setter)
	}
}

// privateElements is stored next to an object's properties.
type privateElements []*PrivateElement

func (o *Object) privateElementFind(name *PrivateName) *PrivateElement {
	for _, pe := range o.private {
		if pe.Key == name {
			return pe
		}
	}
	return nil
}

// PrivateFieldAdd installs a private field on o.
func (a *Agent) PrivateFieldAdd(o *Object, name *PrivateName, v Value) *Completion {
	if o.privateElementFind(name) != nil {
		return a.ThrowTypeError(fmt.Sprintf("Cannot initialize #%s twice on the same object", name.Description))
	}
	o.private = append(o.private, &PrivateElement{Key: name, Kind: PrivateField, Value: v})
	return nil
}

// PrivateMethodOrAccessorAdd installs a private method or accessor on o.
func (a *Agent) PrivateMethodOrAccessorAdd(o *Object, method *PrivateElement) *Completion {
	if o.privateElementFind(method.Key) != nil {
		return a.ThrowTypeError(fmt.Sprintf("Cannot initialize private methods of class %s twice on the same object", method.Key.Description))
	}
	o.private = append(o.private, method)
	return nil
}

// PrivateGet reads #name from o.
func (a *Agent) PrivateGet(o *Object, name *PrivateName) (Value, *Completion) {
	pe := o.privateElementFind(name)
	if pe == nil {
		return nil, a.ThrowTypeError(fmt.Sprintf("Cannot read private member #%s from an object whose class did not declare it", name.Description))
	}
	switch pe.Kind {
	case PrivateField, PrivateMethod:
		return pe.Value, nil
	}
	if pe.Getter == nil {
		return nil, a.ThrowTypeError(fmt.Sprintf("'#%s' was defined without a getter", name.Description))
	}
	return Call(a, pe.Getter, o, nil)
}

// PrivateSet writes #name on o.
func (a *Agent) PrivateSet(o *Object, name *PrivateName, v Value) *Completion {
	pe := o.privateElementFind(name)
	if pe == nil {
		return a.ThrowTypeError(fmt.Sprintf("Cannot write private member #%s to an object whose class did not declare it", name.Description))
	}
	switch pe.Kind {
	case PrivateField:
		pe.Value = v
		return nil
	case PrivateMethod:
		return a.ThrowTypeError(fmt.Sprintf("Private method #%s is not writable", name.Description))
	}
	if pe.Setter == nil {
		return a.ThrowTypeError(fmt.Sprintf("'#%s' was defined without a setter", name.Description))
	}
	_, c := Call(a, pe.Setter, o, []Value{v})
	return c
}

// PrivateBrandCheck implements `#name in o`.
func PrivateBrandCheck(o *Object, name *PrivateName) bool {
	return o.privateElementFind(name) != nil
}

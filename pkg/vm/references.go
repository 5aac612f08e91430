package vm

import "fmt"

// Reference is the result of evaluating an identifier or a property access.
// Exactly one of env (environment reference), base (property reference) or
// unresolvable is set.
type Reference struct {
	env          Environment
	name         String
	strict       bool
	unresolvable bool

	base      Value
	key       PropertyKey
	private   *PrivateName
	thisValue Value // super references only
}

// IsPropertyReference reports whether r names a property.
func (r *Reference) IsPropertyReference() bool {
	return r.base != nil
}

// IsUnresolvable reports whether r names no binding at all.
func (r *Reference) IsUnresolvable() bool {
	return r.unresolvable
}

// Name returns the referenced identifier of an environment reference.
func (r *Reference) Name() String {
	return r.name
}

func (r *Reference) thisForProperty() Value {
	if r.thisValue != nil {
		return r.thisValue
	}
	return r.base
}

func (r *Reference) describeKey() string {
	if r.private != nil {
		return "#" + r.private.Description.String()
	}
	return keyString(r.key)
}

// GetValue reads through a reference.
func (a *Agent) GetValue(r *Reference) (Value, *Completion) {
	switch {
	case r.unresolvable:
		return nil, referenceErrorNotDefined(a, r.name)
	case r.base != nil:
		if IsNullish(r.base) {
			return nil, a.ThrowTypeError(fmt.Sprintf("Cannot read properties of %s (reading '%s')", Inspect(r.base), r.describeKey()))
		}
		if r.private != nil {
			o, ok := r.base.(*Object)
			if !ok {
				return nil, a.ThrowTypeError(fmt.Sprintf("Cannot read private member %s from a primitive", r.describeKey()))
			}
			return a.PrivateGet(o, r.private)
		}
		if o, ok := r.base.(*Object); ok {
			return o.Get(a, r.key, r.thisForProperty())
		}
		o, c := ToObject(a, r.base)
		if c != nil {
			return nil, c
		}
		return o.Get(a, r.key, r.thisForProperty())
	}
	return r.env.GetBindingValue(a, r.name, r.strict)
}

// PutValue writes through a reference.
func (a *Agent) PutValue(r *Reference, v Value) *Completion {
	switch {
	case r.unresolvable:
		if r.strict {
			return referenceErrorNotDefined(a, r.name)
		}
		return Set(a, a.CurrentRealm().GlobalObject, r.name, v, false)
	case r.base != nil:
		if IsNullish(r.base) {
			return a.ThrowTypeError(fmt.Sprintf("Cannot set properties of %s (setting '%s')", Inspect(r.base), r.describeKey()))
		}
		if r.private != nil {
			o, ok := r.base.(*Object)
			if !ok {
				return a.ThrowTypeError(fmt.Sprintf("Cannot write private member %s to a primitive", r.describeKey()))
			}
			return a.PrivateSet(o, r.private, v)
		}
		o, c := ToObject(a, r.base)
		if c != nil {
			return c
		}
		ok, c := o.Set(a, r.key, v, r.thisForProperty())
		if c != nil {
			return c
		}
		if !ok && r.strict {
			if _, isObject := r.base.(*Object); !isObject {
				return a.ThrowTypeError(fmt.Sprintf("Cannot create property '%s' on %s '%s'", r.describeKey(), TypeOf(r.base), Inspect(r.base)))
			}
			return a.ThrowTypeError(fmt.Sprintf("Cannot assign to read only property '%s' of object", r.describeKey()))
		}
		return nil
	}
	return r.env.SetMutableBinding(a, r.name, v, r.strict)
}

// InitializeReferencedBinding initialises the binding of an environment
// reference.
func (a *Agent) InitializeReferencedBinding(r *Reference, v Value) *Completion {
	return r.env.InitializeBinding(a, r.name, v)
}

// deleteReference implements the delete operator on a reference.
func (a *Agent) deleteReference(r *Reference) (Value, *Completion) {
	switch {
	case r.unresolvable:
		return True, nil
	case r.base != nil:
		if r.thisValue != nil {
			return nil, a.ThrowReferenceError("Unsupported reference to 'super'")
		}
		o, c := ToObject(a, r.base)
		if c != nil {
			return nil, c
		}
		ok, c := o.Delete(a, r.key)
		if c != nil {
			return nil, c
		}
		if !ok && r.strict {
			return nil, a.ThrowTypeError(fmt.Sprintf("Cannot delete property '%s' of %s", r.describeKey(), Inspect(r.base)))
		}
		return Boolean(ok), nil
	}
	ok, c := r.env.DeleteBinding(a, r.name)
	if c != nil {
		return nil, c
	}
	return Boolean(ok), nil
}

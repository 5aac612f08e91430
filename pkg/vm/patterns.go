package vm

import (
	"fmt"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/token"
)

// bindingInitialization binds v to target, which is an identifier, an
// object or array pattern, or (in assignment patterns) a member
// expression. With a nil env the names are assigned through references, as
// for var declarations and destructuring assignment; otherwise they are
// initialised in env.
func (a *Agent) bindingInitialization(target ast.Expression, v Value, env Environment) *Completion {
	switch t := target.(type) {
	case *ast.Identifier:
		return a.initializeBoundName(String(t.Name), v, env)
	case *ast.ObjectPattern:
		if IsNullish(v) {
			return a.ThrowTypeError(fmt.Sprintf("Cannot destructure '%s' as it is %s.", Inspect(v), Inspect(v)))
		}
		return a.objectBindingInitialization(t, v, env)
	case *ast.ArrayPattern:
		rec, c := GetIterator(a, v, IteratorSync)
		if c != nil {
			return c
		}
		c = a.arrayBindingInitialization(t, rec, env)
		if rec.Done {
			return c
		}
		result := NormalCompletion(nil)
		if c != nil {
			result = *c
		}
		return IteratorClose(a, rec, result).Abrupt()
	}
	ref, c := a.evaluateReference(target)
	if c != nil {
		return c
	}
	return a.PutValue(ref, v)
}

func (a *Agent) initializeBoundName(name String, v Value, env Environment) *Completion {
	if env != nil {
		return env.InitializeBinding(a, name, v)
	}
	ref, c := a.ResolveBinding(name, nil)
	if c != nil {
		return c
	}
	return a.PutValue(ref, v)
}

// splitDefault separates `target = default` pattern elements.
func splitDefault(e ast.Expression) (target, init ast.Expression) {
	if ae, ok := e.(*ast.AssignExpression); ok && ae.Operator == token.ASSIGN {
		return ae.Left, ae.Right
	}
	return e, nil
}

func isPattern(e ast.Expression) bool {
	switch e.(type) {
	case *ast.ObjectPattern, *ast.ArrayPattern:
		return true
	}
	return false
}

// targetReference evaluates the reference of a non-pattern assignment
// target ahead of the value it receives. Binding targets need none.
func (a *Agent) targetReference(target ast.Expression, env Environment) (*Reference, *Completion) {
	if env != nil || isPattern(target) {
		return nil, nil
	}
	return a.evaluateReference(target)
}

// defaultValue applies an element initializer when v is undefined.
func (a *Agent) defaultValue(target, init ast.Expression, v Value) (Value, *Completion) {
	if init == nil || !IsUndefined(v) {
		return v, nil
	}
	return a.assignedValue(target, init)
}

func (a *Agent) bindElement(target ast.Expression, ref *Reference, v Value, env Environment) *Completion {
	if ref != nil {
		return a.PutValue(ref, v)
	}
	return a.bindingInitialization(target, v, env)
}

func (a *Agent) objectBindingInitialization(p *ast.ObjectPattern, v Value, env Environment) *Completion {
	excluded := make([]PropertyKey, 0, len(p.Properties))
	for _, prop := range p.Properties {
		var (
			target, init ast.Expression
			key          PropertyKey
			c            *Completion
		)
		switch prop := prop.(type) {
		case *ast.PropertyShort:
			target, init = &prop.Name, prop.Initializer
			key = String(prop.Name.Name)
		case *ast.PropertyKeyed:
			if key, c = a.evaluatePropertyKey(prop.Key, prop.Computed); c != nil {
				return c
			}
			target, init = splitDefault(prop.Value)
		default:
			return a.ThrowSyntaxError("Invalid destructuring assignment target")
		}
		excluded = append(excluded, key)
		ref, c := a.targetReference(target, env)
		if c != nil {
			return c
		}
		val, c := GetV(a, v, key)
		if c != nil {
			return c
		}
		if val, c = a.defaultValue(target, init, val); c != nil {
			return c
		}
		if c := a.bindElement(target, ref, val, env); c != nil {
			return c
		}
	}
	if p.Rest == nil {
		return nil
	}
	ref, c := a.targetReference(p.Rest, env)
	if c != nil {
		return c
	}
	rest := OrdinaryObjectCreate(a.CurrentRealm().Intrinsics.ObjectPrototype)
	if c := CopyDataProperties(a, rest, v, excluded); c != nil {
		return c
	}
	return a.bindElement(p.Rest, ref, rest, env)
}

// arrayBindingInitialization consumes rec element by element. rec.Done is
// set once the iterator is exhausted or has thrown.
func (a *Agent) arrayBindingInitialization(p *ast.ArrayPattern, rec *IteratorRecord, env Environment) *Completion {
	for _, elem := range p.Elements {
		if elem == nil {
			if !rec.Done {
				if _, _, c := IteratorStepValue(a, rec); c != nil {
					return c
				}
			}
			continue
		}
		target, init := splitDefault(elem)
		ref, c := a.targetReference(target, env)
		if c != nil {
			return c
		}
		var val Value = Undefined
		if !rec.Done {
			next, done, c := IteratorStepValue(a, rec)
			if c != nil {
				return c
			}
			if !done {
				val = next
			}
		}
		if val, c = a.defaultValue(target, init, val); c != nil {
			return c
		}
		if c := a.bindElement(target, ref, val, env); c != nil {
			return c
		}
	}
	if p.Rest == nil {
		return nil
	}
	ref, c := a.targetReference(p.Rest, env)
	if c != nil {
		return c
	}
	var items []Value
	for !rec.Done {
		next, done, c := IteratorStepValue(a, rec)
		if c != nil {
			return c
		}
		if !done {
			items = append(items, next)
		}
	}
	return a.bindElement(p.Rest, ref, CreateArrayFromList(a, items), env)
}

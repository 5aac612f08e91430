package vm

import (
	"fmt"

	"github.com/dop251/goja/ast"
)

// ClassFieldDefinition is a field every instance (or the class itself, for
// static fields) receives. Name is a PropertyKey or a *PrivateName.
type ClassFieldDefinition struct {
	Name        any
	Initializer *Object
}

func (d *ClassFieldDefinition) Mark(visit Visitor) {
	if pn, ok := d.Name.(*PrivateName); ok {
		visit(pn)
	}
	if d.Initializer != nil {
		visit(d.Initializer)
	}
}

// staticElement is a static field or a static block, kept in source order.
type staticElement struct {
	field *ClassFieldDefinition
	block *Object
}

func isConstructorMethod(e ast.ClassElement) (*ast.MethodDefinition, bool) {
	m, ok := e.(*ast.MethodDefinition)
	if !ok || m.Static || m.Computed || m.Kind != ast.PropertyKindMethod {
		return nil, false
	}
	switch k := m.Key.(type) {
	case *ast.Identifier:
		return m, k.Name == "constructor"
	case *ast.StringLiteral:
		return m, k.Value == "constructor"
	}
	return nil, false
}

func (a *Agent) evaluateClassExpression(cls *ast.ClassLiteral, name any) (Value, *Completion) {
	var binding String
	if cls.Name != nil {
		binding = String(cls.Name.Name)
		name = binding
	}
	if name == nil {
		name = String("")
	}
	f, c := a.classDefinitionEvaluation(cls, binding, name)
	if c != nil {
		return nil, c
	}
	return f, nil
}

// classDefinitionEvaluation creates the constructor of cls with its
// prototype, methods and static elements. bindingName is the inner
// immutable binding, empty for anonymous classes.
func (a *Agent) classDefinitionEvaluation(cls *ast.ClassLiteral, bindingName String, name any) (*Object, *Completion) {
	ctx := a.RunningContext()
	realm := ctx.Realm
	env, outerPrivate, wasStrict := ctx.LexicalEnvironment, ctx.PrivateEnvironment, ctx.strict
	ctx.strict = true
	defer func() {
		ctx.LexicalEnvironment, ctx.PrivateEnvironment, ctx.strict = env, outerPrivate, wasStrict
	}()

	classEnv := NewDeclarativeEnvironment(env)
	if bindingName != "" {
		MustNormal(classEnv.CreateImmutableBinding(a, bindingName, true))
	}
	classPrivate := NewPrivateEnvironment(outerPrivate)
	for _, e := range cls.Body {
		var key ast.Expression
		switch e := e.(type) {
		case *ast.MethodDefinition:
			key = e.Key
		case *ast.FieldDefinition:
			key = e.Key
		}
		if id, ok := key.(*ast.PrivateIdentifier); ok {
			if _, seen := classPrivate.Names[privateKey(id)]; !seen {
				classPrivate.Names[privateKey(id)] = &PrivateName{Description: String(id.Name)}
			}
		}
	}

	protoParent, constructorParent := realm.Intrinsics.ObjectPrototype, realm.Intrinsics.FunctionPrototype
	if cls.SuperClass != nil {
		ctx.LexicalEnvironment = classEnv
		superclass, c := a.evaluate(cls.SuperClass)
		ctx.LexicalEnvironment = env
		if c != nil {
			return nil, c
		}
		switch {
		case superclass == Null:
			protoParent = nil
		case !IsConstructor(superclass):
			return nil, a.ThrowTypeError(fmt.Sprintf("Class extends value %s is not a constructor or null", Inspect(superclass)))
		default:
			parent := superclass.(*Object)
			pp, c := Get(a, parent, String("prototype"))
			if c != nil {
				return nil, c
			}
			switch pp := pp.(type) {
			case *Object:
				protoParent = pp
			default:
				if pp != Null {
					return nil, a.ThrowTypeError(fmt.Sprintf("Class extends value does not have valid prototype property %s", Inspect(pp)))
				}
				protoParent = nil
			}
			constructorParent = parent
		}
	}
	proto := OrdinaryObjectCreate(protoParent)
	ctx.LexicalEnvironment, ctx.PrivateEnvironment = classEnv, classPrivate

	var ctorNode *ast.MethodDefinition
	for _, e := range cls.Body {
		if m, ok := isConstructorMethod(e); ok {
			ctorNode = m
			break
		}
	}
	var F *Object
	if ctorNode != nil {
		F = a.OrdinaryFunctionCreate(constructorParent, ctx.program, ctorNode.Body, KindNormal, ThisModeStrict, classEnv, classPrivate)
	} else {
		F = a.OrdinaryFunctionCreate(constructorParent, ctx.program, cls, KindNormal, ThisModeStrict, classEnv, classPrivate)
		F.fn.(*ECMAScriptFunction).defaultCtor = true
		SetFunctionLength(F, 0)
	}
	fn := F.fn.(*ECMAScriptFunction)
	fn.IsClassConstructor = true
	fn.SourceText = cls.Source
	if cls.SuperClass != nil {
		fn.ConstructorKind = ConstructorDerived
	}
	SetFunctionName(F, name, "")
	MakeMethod(F, proto)
	a.MakeConstructor(F, false, proto)
	CreateMethodProperty(a, proto, String("constructor"), F)

	var (
		instanceFields  []*ClassFieldDefinition
		instanceMethods []*PrivateElement
		staticMethods   []*PrivateElement
		statics         []staticElement
	)
	for _, e := range cls.Body {
		if e == ast.ClassElement(ctorNode) {
			continue
		}
		switch e := e.(type) {
		case *ast.MethodDefinition:
			target := proto
			if e.Static {
				target = F
			}
			key, c := a.classElementName(e.Key, e.Computed)
			if c != nil {
				return nil, c
			}
			pe, c := a.methodDefinitionEvaluation(target, key, e.Kind, e.Body, false)
			if c != nil {
				return nil, c
			}
			if pe == nil {
				continue
			}
			if e.Static {
				staticMethods = addPrivateMethod(staticMethods, pe)
			} else {
				instanceMethods = addPrivateMethod(instanceMethods, pe)
			}
		case *ast.FieldDefinition:
			home := proto
			if e.Static {
				home = F
			}
			field, c := a.classFieldDefinitionEvaluation(e, home)
			if c != nil {
				return nil, c
			}
			if e.Static {
				statics = append(statics, staticElement{field: field})
			} else {
				instanceFields = append(instanceFields, field)
			}
		case *ast.ClassStaticBlock:
			block := a.OrdinaryFunctionCreate(realm.Intrinsics.FunctionPrototype, ctx.program, e, KindNormal, ThisModeStrict, classEnv, classPrivate)
			MakeMethod(block, F)
			statics = append(statics, staticElement{block: block})
		}
	}

	ctx.LexicalEnvironment = env
	if bindingName != "" {
		MustNormal(classEnv.InitializeBinding(a, bindingName, F))
	}
	fn.PrivateMethods = instanceMethods
	fn.Fields = instanceFields
	for _, m := range staticMethods {
		if c := a.PrivateMethodOrAccessorAdd(F, m); c != nil {
			return nil, c
		}
	}
	for _, s := range statics {
		var c *Completion
		if s.field != nil {
			c = a.defineField(F, s.field)
		} else {
			_, c = Call(a, s.block, F, nil)
		}
		if c != nil {
			return nil, c
		}
	}
	return F, nil
}

// addPrivateMethod merges a getter and setter of the same #name into one
// accessor element.
func addPrivateMethod(list []*PrivateElement, pe *PrivateElement) []*PrivateElement {
	if pe.Kind == PrivateAccessor {
		for _, existing := range list {
			if existing.Key == pe.Key && existing.Kind == PrivateAccessor {
				if pe.Getter != nil {
					existing.Getter = pe.Getter
				}
				if pe.Setter != nil {
					existing.Setter = pe.Setter
				}
				return list
			}
		}
	}
	return append(list, pe)
}

// classElementName evaluates the name of a class element: a PropertyKey,
// or a *PrivateName for #names.
func (a *Agent) classElementName(key ast.Expression, computed bool) (any, *Completion) {
	if id, ok := key.(*ast.PrivateIdentifier); ok && !computed {
		return ResolvePrivateIdentifier(a.RunningContext().PrivateEnvironment, privateKey(id)), nil
	}
	k, c := a.evaluatePropertyKey(key, computed)
	if c != nil {
		return nil, c
	}
	return k, nil
}

func (a *Agent) classFieldDefinitionEvaluation(e *ast.FieldDefinition, home *Object) (*ClassFieldDefinition, *Completion) {
	name, c := a.classElementName(e.Key, e.Computed)
	if c != nil {
		return nil, c
	}
	field := &ClassFieldDefinition{Name: name}
	if e.Initializer != nil {
		ctx := a.RunningContext()
		init := a.OrdinaryFunctionCreate(ctx.Realm.Intrinsics.FunctionPrototype, ctx.program, e, KindNormal, ThisModeStrict, ctx.LexicalEnvironment, ctx.PrivateEnvironment)
		MakeMethod(init, home)
		init.fn.(*ECMAScriptFunction).fieldName = name
		field.Initializer = init
	}
	return field, nil
}

// methodDefinitionEvaluation creates a method, getter or setter and
// installs it on obj. Methods with a #name are returned instead, for the
// class to add to its instances.
func (a *Agent) methodDefinitionEvaluation(obj *Object, key any, kind ast.PropertyKind, fn *ast.FunctionLiteral, enumerable bool) (*PrivateElement, *Completion) {
	ctx := a.RunningContext()
	closure := a.makeMethod(fn, ctx.LexicalEnvironment, ctx.PrivateEnvironment)
	MakeMethod(closure, obj)
	prefix := ""
	switch kind {
	case ast.PropertyKindGet:
		prefix = "get"
	case ast.PropertyKindSet:
		prefix = "set"
	}
	SetFunctionName(closure, key, prefix)

	if pn, ok := key.(*PrivateName); ok {
		switch kind {
		case ast.PropertyKindGet:
			return &PrivateElement{Key: pn, Kind: PrivateAccessor, Getter: closure}, nil
		case ast.PropertyKindSet:
			return &PrivateElement{Key: pn, Kind: PrivateAccessor, Setter: closure}, nil
		}
		return &PrivateElement{Key: pn, Kind: PrivateMethod, Value: closure}, nil
	}

	pk := key.(PropertyKey)
	desc := PropertyDescriptor{Enumerable: enumerable, Configurable: true, Has: HasEnumerable | HasConfigurable}
	switch kind {
	case ast.PropertyKindGet:
		desc.Get, desc.Has = closure, desc.Has|HasGet
	case ast.PropertyKindSet:
		desc.Set, desc.Has = closure, desc.Has|HasSet
	default:
		desc.Value, desc.Writable, desc.Has = closure, true, desc.Has|HasValue|HasWritable
	}
	return nil, DefinePropertyOrThrow(a, obj, pk, desc)
}

// makeMethod creates the function object of a method, which unlike a
// function expression is never a constructor.
func (a *Agent) makeMethod(fn *ast.FunctionLiteral, env Environment, privateEnv *PrivateEnvironment) *Object {
	if fn.Async || fn.Generator {
		return a.makeFunction(fn, env, privateEnv)
	}
	ctx := a.RunningContext()
	return a.OrdinaryFunctionCreate(ctx.Realm.Intrinsics.FunctionPrototype, ctx.program, fn, KindNormal, ThisModeGlobal, env, privateEnv)
}

// defineField runs a field initializer against receiver and defines the
// result.
func (a *Agent) defineField(receiver *Object, field *ClassFieldDefinition) *Completion {
	var v Value = Undefined
	if field.Initializer != nil {
		var c *Completion
		if v, c = Call(a, field.Initializer, receiver, nil); c != nil {
			return c
		}
	}
	if pn, ok := field.Name.(*PrivateName); ok {
		return a.PrivateFieldAdd(receiver, pn, v)
	}
	return CreateDataPropertyOrThrow(a, receiver, field.Name.(PropertyKey), v)
}

// InitializeInstanceElements adds the private methods and fields declared
// by constructor's class to o.
func (a *Agent) InitializeInstanceElements(o *Object, constructor *Object) *Completion {
	f, ok := constructor.fn.(*ECMAScriptFunction)
	if !ok {
		return nil
	}
	for _, m := range f.PrivateMethods {
		if c := a.PrivateMethodOrAccessorAdd(o, m); c != nil {
			return c
		}
	}
	for _, field := range f.Fields {
		if c := a.defineField(o, field); c != nil {
			return c
		}
	}
	return nil
}

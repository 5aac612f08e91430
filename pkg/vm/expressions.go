package vm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/token"

	"siskin/pkg/errors"
	"siskin/pkg/parser"
)

// shortCircuit ends an optional chain early. It travels up like an abrupt
// completion until the enclosing OptionalChain turns it into undefined, and
// it is never returned past that node.
var shortCircuit = &Completion{Type: Normal}

// evaluate evaluates an expression to a value.
func (a *Agent) evaluate(e ast.Expression) (Value, *Completion) {
	switch e := e.(type) {
	case *ast.NullLiteral:
		return Null, nil
	case *ast.BooleanLiteral:
		return Boolean(e.Value), nil
	case *ast.NumberLiteral:
		return numberLiteral(e), nil
	case *ast.StringLiteral:
		return String(e.Value), nil
	case *ast.TemplateLiteral:
		return a.evaluateTemplate(e)
	case *ast.RegExpLiteral:
		return a.evaluateRegExp(e)
	case *ast.Identifier:
		ref, c := a.ResolveBinding(String(e.Name), nil)
		if c != nil {
			return nil, c
		}
		return a.GetValue(ref)
	case *ast.ThisExpression:
		return a.ResolveThisBinding()
	case *ast.ArrayLiteral:
		return a.evaluateArrayLiteral(e)
	case *ast.ObjectLiteral:
		return a.evaluateObjectLiteral(e)
	case *ast.FunctionLiteral:
		return a.evaluateFunctionExpression(e, nil), nil
	case *ast.ArrowFunctionLiteral:
		return a.evaluateArrowFunction(e, nil), nil
	case *ast.ClassLiteral:
		return a.evaluateClassExpression(e, nil)
	case *ast.DotExpression:
		if p := a.program(); p != nil && p.IsImportMeta(e) {
			return a.importMeta(), nil
		}
		return a.evaluateMember(e)
	case *ast.BracketExpression, *ast.PrivateDotExpression:
		return a.evaluateMember(e)
	case *ast.CallExpression:
		return a.evaluateCall(e)
	case *ast.NewExpression:
		return a.evaluateNew(e)
	case *ast.UnaryExpression:
		return a.evaluateUnary(e)
	case *ast.BinaryExpression:
		return a.evaluateBinary(e)
	case *ast.AssignExpression:
		return a.evaluateAssign(e)
	case *ast.ConditionalExpression:
		test, c := a.evaluate(e.Test)
		if c != nil {
			return nil, c
		}
		if ToBoolean(test) {
			return a.evaluate(e.Consequent)
		}
		return a.evaluate(e.Alternate)
	case *ast.SequenceExpression:
		var v Value = Undefined
		for _, item := range e.Sequence {
			var c *Completion
			if v, c = a.evaluate(item); c != nil {
				return nil, c
			}
		}
		return v, nil
	case *ast.YieldExpression:
		return a.evaluateYield(e)
	case *ast.AwaitExpression:
		v, c := a.evaluate(e.Argument)
		if c != nil {
			return nil, c
		}
		return a.Await(v)
	case *ast.MetaProperty:
		return a.GetNewTarget(), nil
	case *ast.OptionalChain:
		v, c := a.evaluate(e.Expression)
		if c == shortCircuit {
			return Undefined, nil
		}
		return v, c
	case *ast.Optional:
		v, c := a.evaluate(e.Expression)
		if c != nil {
			return nil, c
		}
		if IsNullish(v) {
			return nil, shortCircuit
		}
		return v, nil
	}
	errors.Assertf("unexpected expression %T", e)
	return nil, nil
}

func numberLiteral(n *ast.NumberLiteral) Value {
	switch v := n.Value.(type) {
	case int64:
		return Number(v)
	case float64:
		return Number(v)
	case *big.Int:
		return NewBigInt(v)
	}
	errors.Assertf("unexpected number literal %T", n.Value)
	return nil
}

// namedEvaluation evaluates e, naming it when it is an anonymous function
// or class definition. name is a PropertyKey or a *PrivateName.
func (a *Agent) namedEvaluation(e ast.Expression, name any) (Value, *Completion) {
	if !parser.IsAnonymousFunctionDefinition(e) {
		return a.evaluate(e)
	}
	switch e := e.(type) {
	case *ast.FunctionLiteral:
		return a.evaluateFunctionExpression(e, name), nil
	case *ast.ArrowFunctionLiteral:
		return a.evaluateArrowFunction(e, name), nil
	case *ast.ClassLiteral:
		return a.evaluateClassExpression(e, name)
	}
	return a.evaluate(e)
}

// --- references ---

// evaluateReference evaluates an expression that denotes a binding or a
// property.
func (a *Agent) evaluateReference(e ast.Expression) (*Reference, *Completion) {
	switch e := e.(type) {
	case *ast.Identifier:
		return a.ResolveBinding(String(e.Name), nil)
	case *ast.DotExpression:
		key := String(e.Identifier.Name)
		if _, ok := e.Left.(*ast.SuperExpression); ok {
			return a.superReference(nil, key)
		}
		base, c := a.evaluate(e.Left)
		if c != nil {
			return nil, c
		}
		return &Reference{base: base, key: key, strict: a.isStrict()}, nil
	case *ast.BracketExpression:
		if _, ok := e.Left.(*ast.SuperExpression); ok {
			return a.superReference(e.Member, nil)
		}
		base, c := a.evaluate(e.Left)
		if c != nil {
			return nil, c
		}
		kv, c := a.evaluate(e.Member)
		if c != nil {
			return nil, c
		}
		key, c := ToPropertyKey(a, kv)
		if c != nil {
			return nil, c
		}
		return &Reference{base: base, key: key, strict: a.isStrict()}, nil
	case *ast.PrivateDotExpression:
		base, c := a.evaluate(e.Left)
		if c != nil {
			return nil, c
		}
		name := ResolvePrivateIdentifier(a.RunningContext().PrivateEnvironment, privateKey(&e.Identifier))
		return &Reference{base: base, private: name, strict: true}, nil
	}
	return nil, a.ThrowReferenceError("Invalid left-hand side in assignment")
}

func privateKey(id *ast.PrivateIdentifier) string {
	return id.Name.String()
}

// superReference builds the reference for super.key or super[member]. The
// this binding is read first so that it throws before super() in derived
// constructors.
func (a *Agent) superReference(member ast.Expression, key PropertyKey) (*Reference, *Completion) {
	env := GetThisEnvironment(a.lexicalEnvironment())
	this, c := env.(thisEnvironment).GetThisBinding(a)
	if c != nil {
		return nil, c
	}
	if member != nil {
		kv, c := a.evaluate(member)
		if c != nil {
			return nil, c
		}
		if key, c = ToPropertyKey(a, kv); c != nil {
			return nil, c
		}
	}
	fe, ok := env.(*FunctionEnvironment)
	if !ok {
		return nil, a.ThrowSyntaxError("'super' keyword unexpected here")
	}
	base, c := fe.GetSuperBase(a)
	if c != nil {
		return nil, c
	}
	return &Reference{base: base, key: key, strict: true, thisValue: this}, nil
}

func (a *Agent) evaluateMember(e ast.Expression) (Value, *Completion) {
	ref, c := a.evaluateReference(e)
	if c != nil {
		return nil, c
	}
	return a.GetValue(ref)
}

// --- literals ---

func (a *Agent) evaluateTemplate(e *ast.TemplateLiteral) (Value, *Completion) {
	if e.Tag != nil {
		return a.evaluateTaggedTemplate(e)
	}
	s := String(e.Elements[0].Parsed)
	for i, expr := range e.Expressions {
		v, c := a.evaluate(expr)
		if c != nil {
			return nil, c
		}
		str, c := ToString(a, v)
		if c != nil {
			return nil, c
		}
		s = s.Concat(str).Concat(String(e.Elements[i+1].Parsed))
	}
	return s, nil
}

func (a *Agent) evaluateTaggedTemplate(e *ast.TemplateLiteral) (Value, *Completion) {
	fn, this, c := a.evaluateCallee(e.Tag)
	if c != nil {
		return nil, c
	}
	args := make([]Value, 1, len(e.Expressions)+1)
	args[0] = a.getTemplateObject(e)
	for _, expr := range e.Expressions {
		v, c := a.evaluate(expr)
		if c != nil {
			return nil, c
		}
		args = append(args, v)
	}
	if !IsCallable(fn) {
		return nil, a.ThrowTypeError(fmt.Sprintf("%s is not a function", a.describe(e.Tag)))
	}
	return Call(a, fn, this, args)
}

// getTemplateObject returns the frozen strings array of a tagged template
// site. Each site yields the same object for the lifetime of the realm.
func (a *Agent) getTemplateObject(e *ast.TemplateLiteral) *Object {
	realm := a.CurrentRealm()
	if t, ok := realm.templates[e]; ok {
		return t
	}
	cooked := make([]Value, len(e.Elements))
	raw := make([]Value, len(e.Elements))
	for i, el := range e.Elements {
		raw[i] = NewString(strings.ReplaceAll(el.Literal, "\r\n", "\n"))
		if el.Valid {
			cooked[i] = String(el.Parsed)
		} else {
			cooked[i] = Undefined
		}
	}
	rawObj := CreateArrayFromList(a, raw)
	Must(SetIntegrityLevel(a, rawObj, Frozen))
	t := CreateArrayFromList(a, cooked)
	t.Put(String("raw"), rawObj, AttrNone)
	Must(SetIntegrityLevel(a, t, Frozen))
	realm.templates[e] = t
	return t
}

// evaluateRegExp constructs a RegExp through the %RegExp% intrinsic the
// built-in library registers.
func (a *Agent) evaluateRegExp(e *ast.RegExpLiteral) (Value, *Completion) {
	ctor, ok := a.CurrentRealm().Intrinsics.Lookup("%RegExp%")
	if !ok {
		return nil, a.ThrowSyntaxError("Regular expressions are not available in this realm")
	}
	o, c := Construct(a, ctor, []Value{NewString(e.Pattern), NewString(e.Flags)}, nil)
	if c != nil {
		return nil, c
	}
	return o, nil
}

func (a *Agent) evaluateArrayLiteral(e *ast.ArrayLiteral) (Value, *Completion) {
	arr := Must(ArrayCreate(a, 0, nil))
	n := 0
	for _, el := range e.Value {
		switch el := el.(type) {
		case nil:
			n++
		case *ast.SpreadElement:
			v, c := a.evaluate(el.Expression)
			if c != nil {
				return nil, c
			}
			rec, c := GetIterator(a, v, IteratorSync)
			if c != nil {
				return nil, c
			}
			for {
				item, done, c := IteratorStepValue(a, rec)
				if c != nil {
					return nil, c
				}
				if done {
					break
				}
				MustNormal(CreateDataPropertyOrThrow(a, arr, indexKey(n), item))
				n++
			}
		default:
			v, c := a.evaluate(el)
			if c != nil {
				return nil, c
			}
			MustNormal(CreateDataPropertyOrThrow(a, arr, indexKey(n), v))
			n++
		}
	}
	MustNormal(Set(a, arr, lengthKey, Number(n), true))
	return arr, nil
}

func (a *Agent) evaluateObjectLiteral(e *ast.ObjectLiteral) (Value, *Completion) {
	obj := OrdinaryObjectCreate(a.CurrentRealm().Intrinsics.ObjectPrototype)
	for _, p := range e.Value {
		if c := a.propertyDefinitionEvaluation(obj, p); c != nil {
			return nil, c
		}
	}
	return obj, nil
}

func (a *Agent) propertyDefinitionEvaluation(obj *Object, p ast.Property) *Completion {
	switch p := p.(type) {
	case *ast.SpreadElement:
		v, c := a.evaluate(p.Expression)
		if c != nil {
			return c
		}
		return CopyDataProperties(a, obj, v, nil)
	case *ast.PropertyShort:
		name := String(p.Name.Name)
		ref, c := a.ResolveBinding(name, nil)
		if c != nil {
			return c
		}
		v, c := a.GetValue(ref)
		if c != nil {
			return c
		}
		return CreateDataPropertyOrThrow(a, obj, name, v)
	case *ast.PropertyKeyed:
		if p.Kind != ast.PropertyKindValue {
			key, c := a.evaluatePropertyKey(p.Key, p.Computed)
			if c != nil {
				return c
			}
			fn, ok := p.Value.(*ast.FunctionLiteral)
			errors.Assert(ok, "method definition without a function literal")
			_, c = a.methodDefinitionEvaluation(obj, key, p.Kind, fn, true)
			return c
		}
		if !p.Computed && isProtoKey(p.Key) {
			v, c := a.evaluate(p.Value)
			if c != nil {
				return c
			}
			switch v := v.(type) {
			case *Object:
				_, c = obj.SetPrototypeOf(a, v)
			default:
				if v == Null {
					_, c = obj.SetPrototypeOf(a, nil)
				}
			}
			return c
		}
		key, c := a.evaluatePropertyKey(p.Key, p.Computed)
		if c != nil {
			return c
		}
		v, c := a.namedEvaluation(p.Value, key)
		if c != nil {
			return c
		}
		return CreateDataPropertyOrThrow(a, obj, key, v)
	}
	errors.Assertf("unexpected property %T", p)
	return nil
}

func isProtoKey(key ast.Expression) bool {
	s, ok := key.(*ast.StringLiteral)
	return ok && s.Value == "__proto__"
}

// evaluatePropertyKey evaluates a literal or computed property name.
func (a *Agent) evaluatePropertyKey(key ast.Expression, computed bool) (PropertyKey, *Completion) {
	if !computed {
		switch k := key.(type) {
		case *ast.StringLiteral:
			return String(k.Value), nil
		case *ast.Identifier:
			return String(k.Name), nil
		case *ast.NumberLiteral:
			return Must(ToPropertyKey(a, numberLiteral(k))), nil
		}
	}
	v, c := a.evaluate(key)
	if c != nil {
		return nil, c
	}
	return ToPropertyKey(a, v)
}

// --- functions ---

// evaluateFunctionExpression creates a function object for a function
// expression. A named expression gets its own scope binding its name.
func (a *Agent) evaluateFunctionExpression(fn *ast.FunctionLiteral, name any) *Object {
	ctx := a.RunningContext()
	if fn.Name == nil {
		f := a.makeFunction(fn, ctx.LexicalEnvironment, ctx.PrivateEnvironment)
		if name == nil {
			name = String("")
		}
		SetFunctionName(f, name, "")
		return f
	}
	id := String(fn.Name.Name)
	funcEnv := NewDeclarativeEnvironment(ctx.LexicalEnvironment)
	MustNormal(funcEnv.CreateImmutableBinding(a, id, false))
	f := a.makeFunction(fn, funcEnv, ctx.PrivateEnvironment)
	SetFunctionName(f, id, "")
	MustNormal(funcEnv.InitializeBinding(a, id, f))
	return f
}

func (a *Agent) evaluateArrowFunction(fn *ast.ArrowFunctionLiteral, name any) *Object {
	ctx := a.RunningContext()
	proto, kind := ctx.Realm.Intrinsics.FunctionPrototype, KindNormal
	if fn.Async {
		proto, kind = ctx.Realm.Intrinsics.AsyncFunctionPrototype, KindAsync
	}
	f := a.OrdinaryFunctionCreate(proto, ctx.program, fn, kind, ThisModeLexical, ctx.LexicalEnvironment, ctx.PrivateEnvironment)
	if name == nil {
		name = String("")
	}
	SetFunctionName(f, name, "")
	return f
}

// --- calls ---

func (a *Agent) evaluateCall(e *ast.CallExpression) (Value, *Completion) {
	switch callee := e.Callee.(type) {
	case *ast.SuperExpression:
		return a.evaluateSuperCall(e)
	case *ast.Identifier:
		if p := a.program(); p != nil && p.IsImportCall(callee) {
			return a.evaluateImportCall(e)
		}
	}
	fn, this, c := a.evaluateCallee(e.Callee)
	if c != nil {
		return nil, c
	}
	args, c := a.argumentListEvaluation(e.ArgumentList)
	if c != nil {
		return nil, c
	}
	if id, ok := e.Callee.(*ast.Identifier); ok && id.Name == "eval" && fn == a.CurrentRealm().Intrinsics.Eval {
		if len(args) == 0 {
			return Undefined, nil
		}
		return a.PerformEval(args[0], a.isStrict(), true)
	}
	if !IsCallable(fn) {
		return nil, a.ThrowTypeError(fmt.Sprintf("%s is not a function", a.describe(e.Callee)))
	}
	return Call(a, fn, this, args)
}

// evaluateCallee evaluates the function part of a call together with the
// this value a method call passes.
func (a *Agent) evaluateCallee(e ast.Expression) (fn Value, this Value, c *Completion) {
	switch e := e.(type) {
	case *ast.Optional:
		if fn, this, c = a.evaluateCallee(e.Expression); c != nil {
			return nil, nil, c
		}
		if IsNullish(fn) {
			return nil, nil, shortCircuit
		}
		return fn, this, nil
	case *ast.OptionalChain:
		fn, this, c = a.evaluateCallee(e.Expression)
		if c == shortCircuit {
			return Undefined, Undefined, nil
		}
		return fn, this, c
	case *ast.DotExpression:
		if p := a.program(); p != nil && p.IsImportMeta(e) {
			return a.importMeta(), Undefined, nil
		}
	case *ast.BracketExpression, *ast.PrivateDotExpression, *ast.Identifier:
	default:
		fn, c = a.evaluate(e)
		return fn, Undefined, c
	}
	ref, c := a.evaluateReference(e)
	if c != nil {
		return nil, nil, c
	}
	if fn, c = a.GetValue(ref); c != nil {
		return nil, nil, c
	}
	switch {
	case ref.IsPropertyReference():
		this = ref.thisForProperty()
	case ref.env != nil:
		this = ref.env.WithBaseObject()
	default:
		this = Undefined
	}
	return fn, this, nil
}

// describe renders a callee for error messages.
func (a *Agent) describe(e ast.Expression) string {
	if p := a.program(); p != nil {
		if text := p.Text(e); text != "" {
			return text
		}
	}
	return "expression"
}

func (a *Agent) argumentListEvaluation(list []ast.Expression) ([]Value, *Completion) {
	args := make([]Value, 0, len(list))
	for _, e := range list {
		if s, ok := e.(*ast.SpreadElement); ok {
			v, c := a.evaluate(s.Expression)
			if c != nil {
				return nil, c
			}
			items, c := IterableToList(a, v)
			if c != nil {
				return nil, c
			}
			args = append(args, items...)
			continue
		}
		v, c := a.evaluate(e)
		if c != nil {
			return nil, c
		}
		args = append(args, v)
	}
	return args, nil
}

// evaluateSuperCall constructs the parent class for super(...) and binds
// the result as this.
func (a *Agent) evaluateSuperCall(e *ast.CallExpression) (Value, *Completion) {
	env, ok := GetThisEnvironment(a.lexicalEnvironment()).(*FunctionEnvironment)
	if !ok {
		return nil, a.ThrowSyntaxError("'super' keyword unexpected here")
	}
	newTarget, _ := env.NewTarget.(*Object)
	parent, c := env.FunctionObject.GetPrototypeOf(a)
	if c != nil {
		return nil, c
	}
	args, c := a.argumentListEvaluation(e.ArgumentList)
	if c != nil {
		return nil, c
	}
	if parent == nil || !IsConstructor(parent) {
		return nil, a.ThrowTypeError("Super constructor is not a constructor")
	}
	if newTarget == nil {
		return nil, a.ThrowSyntaxError("'super' keyword unexpected here")
	}
	result, c := Construct(a, parent, args, newTarget)
	if c != nil {
		return nil, c
	}
	if c := env.BindThisValue(a, result); c != nil {
		return nil, c
	}
	if c := a.InitializeInstanceElements(result, env.FunctionObject); c != nil {
		return nil, c
	}
	return result, nil
}

func (a *Agent) evaluateNew(e *ast.NewExpression) (Value, *Completion) {
	ctor, c := a.evaluate(e.Callee)
	if c != nil {
		return nil, c
	}
	args, c := a.argumentListEvaluation(e.ArgumentList)
	if c != nil {
		return nil, c
	}
	co, ok := ctor.(*Object)
	if !ok || !IsConstructor(co) {
		return nil, a.ThrowTypeError(fmt.Sprintf("%s is not a constructor", a.describe(e.Callee)))
	}
	o, c := Construct(a, co, args, nil)
	if c != nil {
		return nil, c
	}
	return o, nil
}

// --- operators ---

func (a *Agent) evaluateUnary(e *ast.UnaryExpression) (Value, *Completion) {
	switch e.Operator {
	case token.DELETE:
		return a.evaluateDelete(e.Operand)
	case token.TYPEOF:
		if id, ok := e.Operand.(*ast.Identifier); ok {
			ref, c := a.ResolveBinding(String(id.Name), nil)
			if c != nil {
				return nil, c
			}
			if ref.IsUnresolvable() {
				return String("undefined"), nil
			}
			v, c := a.GetValue(ref)
			if c != nil {
				return nil, c
			}
			return TypeOf(v), nil
		}
		v, c := a.evaluate(e.Operand)
		if c != nil {
			return nil, c
		}
		return TypeOf(v), nil
	case token.INCREMENT, token.DECREMENT:
		return a.evaluateUpdate(e)
	}

	v, c := a.evaluate(e.Operand)
	if c != nil {
		return nil, c
	}
	switch e.Operator {
	case token.VOID:
		return Undefined, nil
	case token.NOT:
		return Boolean(!ToBoolean(v)), nil
	case token.PLUS:
		n, c := ToNumber(a, v)
		if c != nil {
			return nil, c
		}
		return n, nil
	case token.MINUS:
		n, c := ToNumeric(a, v)
		if c != nil {
			return nil, c
		}
		if b, ok := n.(*BigInt); ok {
			return NewBigInt(new(big.Int).Neg(b.Int)), nil
		}
		return -n.(Number), nil
	case token.BITWISE_NOT:
		n, c := ToNumeric(a, v)
		if c != nil {
			return nil, c
		}
		if b, ok := n.(*BigInt); ok {
			return NewBigInt(new(big.Int).Not(b.Int)), nil
		}
		i := Must(ToInt32(a, n))
		return Number(^i), nil
	}
	errors.Assertf("unexpected unary operator %s", e.Operator)
	return nil, nil
}

// evaluateUpdate implements prefix and postfix ++ and --.
func (a *Agent) evaluateUpdate(e *ast.UnaryExpression) (Value, *Completion) {
	ref, c := a.evaluateReference(e.Operand)
	if c != nil {
		return nil, c
	}
	v, c := a.GetValue(ref)
	if c != nil {
		return nil, c
	}
	old, c := ToNumeric(a, v)
	if c != nil {
		return nil, c
	}
	var updated Value
	switch n := old.(type) {
	case *BigInt:
		delta := big.NewInt(1)
		if e.Operator == token.DECREMENT {
			delta.SetInt64(-1)
		}
		updated = NewBigInt(delta.Add(delta, n.Int))
	case Number:
		if e.Operator == token.DECREMENT {
			updated = n - 1
		} else {
			updated = n + 1
		}
	}
	if c := a.PutValue(ref, updated); c != nil {
		return nil, c
	}
	if e.Postfix {
		return old, nil
	}
	return updated, nil
}

func (a *Agent) evaluateDelete(operand ast.Expression) (Value, *Completion) {
	switch operand := operand.(type) {
	case *ast.OptionalChain:
		ref, c := a.evaluateReference(operand.Expression)
		if c == shortCircuit {
			return True, nil
		}
		if c != nil {
			return nil, c
		}
		return a.deleteReference(ref)
	case *ast.Identifier, *ast.DotExpression, *ast.BracketExpression:
		ref, c := a.evaluateReference(operand)
		if c != nil {
			return nil, c
		}
		return a.deleteReference(ref)
	}
	if _, c := a.evaluate(operand); c != nil {
		return nil, c
	}
	return True, nil
}

func (a *Agent) evaluateBinary(e *ast.BinaryExpression) (Value, *Completion) {
	// `#x in o` is parsed with the private name on the left; the recorded
	// operator is not reliable for this form.
	if id, ok := e.Left.(*ast.PrivateIdentifier); ok {
		return a.evaluatePrivateIn(id, e.Right)
	}
	switch e.Operator {
	case token.LOGICAL_AND, token.LOGICAL_OR, token.COALESCE:
		l, c := a.evaluate(e.Left)
		if c != nil {
			return nil, c
		}
		if !continueLogical(e.Operator, l) {
			return l, nil
		}
		return a.evaluate(e.Right)
	}
	l, c := a.evaluate(e.Left)
	if c != nil {
		return nil, c
	}
	r, c := a.evaluate(e.Right)
	if c != nil {
		return nil, c
	}
	return a.applyBinaryOperator(e.Operator, l, r)
}

// continueLogical reports whether a logical operator goes on to evaluate
// its right operand given the left value.
func continueLogical(op token.Token, l Value) bool {
	switch op {
	case token.LOGICAL_AND:
		return ToBoolean(l)
	case token.LOGICAL_OR:
		return !ToBoolean(l)
	}
	return IsNullish(l)
}

func (a *Agent) evaluatePrivateIn(id *ast.PrivateIdentifier, right ast.Expression) (Value, *Completion) {
	r, c := a.evaluate(right)
	if c != nil {
		return nil, c
	}
	o, ok := r.(*Object)
	if !ok {
		return nil, a.ThrowTypeError(fmt.Sprintf("Cannot use 'in' operator to search for '#%s' in %s", privateKey(id), Inspect(r)))
	}
	name := ResolvePrivateIdentifier(a.RunningContext().PrivateEnvironment, privateKey(id))
	return Boolean(PrivateBrandCheck(o, name)), nil
}

func (a *Agent) evaluateAssign(e *ast.AssignExpression) (Value, *Completion) {
	switch e.Operator {
	case token.ASSIGN:
		switch e.Left.(type) {
		case *ast.ObjectPattern, *ast.ArrayPattern:
			v, c := a.evaluate(e.Right)
			if c != nil {
				return nil, c
			}
			if c := a.bindingInitialization(e.Left, v, nil); c != nil {
				return nil, c
			}
			return v, nil
		}
		ref, c := a.evaluateReference(e.Left)
		if c != nil {
			return nil, c
		}
		v, c := a.assignedValue(e.Left, e.Right)
		if c != nil {
			return nil, c
		}
		if c := a.PutValue(ref, v); c != nil {
			return nil, c
		}
		return v, nil
	case token.LOGICAL_AND, token.LOGICAL_OR, token.COALESCE:
		ref, c := a.evaluateReference(e.Left)
		if c != nil {
			return nil, c
		}
		l, c := a.GetValue(ref)
		if c != nil {
			return nil, c
		}
		if !continueLogical(e.Operator, l) {
			return l, nil
		}
		v, c := a.assignedValue(e.Left, e.Right)
		if c != nil {
			return nil, c
		}
		if c := a.PutValue(ref, v); c != nil {
			return nil, c
		}
		return v, nil
	}
	ref, c := a.evaluateReference(e.Left)
	if c != nil {
		return nil, c
	}
	l, c := a.GetValue(ref)
	if c != nil {
		return nil, c
	}
	r, c := a.evaluate(e.Right)
	if c != nil {
		return nil, c
	}
	v, c := a.applyBinaryOperator(e.Operator, l, r)
	if c != nil {
		return nil, c
	}
	if c := a.PutValue(ref, v); c != nil {
		return nil, c
	}
	return v, nil
}

// assignedValue evaluates the right side of an assignment, naming anonymous
// functions after an identifier target.
func (a *Agent) assignedValue(target, value ast.Expression) (Value, *Completion) {
	if id, ok := target.(*ast.Identifier); ok {
		return a.namedEvaluation(value, String(id.Name))
	}
	return a.evaluate(value)
}

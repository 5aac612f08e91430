package vm

import (
	"fmt"

	"github.com/dop251/goja/ast"

	"siskin/pkg/parser"
)

// FunctionBehavior gives an object [[Call]] and, optionally, [[Construct]].
type FunctionBehavior interface {
	Call(a *Agent, f *Object, this Value, args []Value) (Value, *Completion)
	Construct(a *Agent, f *Object, args []Value, newTarget *Object) (*Object, *Completion)
	IsConstructor() bool
	Realm() *Realm
	Mark(visit Visitor)
}

// FunctionKind distinguishes ordinary, generator and async functions.
type FunctionKind uint8

const (
	KindNormal FunctionKind = iota
	KindGenerator
	KindAsync
	KindAsyncGenerator
)

func (k FunctionKind) String() string {
	switch k {
	case KindGenerator:
		return "generator"
	case KindAsync:
		return "async"
	case KindAsyncGenerator:
		return "async generator"
	default:
		return "normal"
	}
}

func kindOf(async, generator bool) FunctionKind {
	switch {
	case async && generator:
		return KindAsyncGenerator
	case async:
		return KindAsync
	case generator:
		return KindGenerator
	}
	return KindNormal
}

// ThisMode decides how a function binds this.
type ThisMode uint8

const (
	ThisModeGlobal ThisMode = iota
	ThisModeStrict
	ThisModeLexical
)

// ConstructorKind separates base constructors from derived ones, which
// receive this from super().
type ConstructorKind uint8

const (
	ConstructorBase ConstructorKind = iota
	ConstructorDerived
)

// ECMAScriptFunction is a function defined in source code.
type ECMAScriptFunction struct {
	realm              *Realm
	Environment        Environment
	PrivateEnvironment *PrivateEnvironment
	ScriptOrModule     Referrer
	ThisMode           ThisMode
	Strict             bool
	HomeObject         *Object
	ConstructorKind    ConstructorKind
	IsClassConstructor bool
	Kind               FunctionKind
	SourceText         string

	// Class constructors carry the elements every instance receives.
	Fields         []*ClassFieldDefinition
	PrivateMethods []*PrivateElement

	// fieldName is the name anonymous functions in a class field initializer
	// are given: a PropertyKey or a *PrivateName.
	fieldName any

	program     *parser.Program
	node        ast.Node
	info        *functionInfo
	construct   bool
	defaultCtor bool
}

func (f *ECMAScriptFunction) IsConstructor() bool { return f.construct }
func (f *ECMAScriptFunction) Realm() *Realm       { return f.realm }

func (f *ECMAScriptFunction) Mark(visit Visitor) {
	visit(f.realm)
	if f.Environment != nil {
		visit(f.Environment)
	}
	if f.PrivateEnvironment != nil {
		visit(f.PrivateEnvironment)
	}
	if f.ScriptOrModule != nil {
		visit(f.ScriptOrModule)
	}
	if f.HomeObject != nil {
		visit(f.HomeObject)
	}
	for _, fd := range f.Fields {
		fd.Mark(visit)
	}
	for _, pe := range f.PrivateMethods {
		pe.Mark(visit)
	}
	if pn, ok := f.fieldName.(*PrivateName); ok {
		visit(pn)
	}
}

// functionInfo caches the static semantics of a function body.
type functionInfo struct {
	params     *ast.ParameterList
	body       []ast.Statement
	expression ast.Expression // concise arrow body or field initializer

	parameterNames          []String
	hasDuplicates           bool
	simpleParameterList     bool
	hasParameterExpressions bool
	varNames                []String
	functions               []*ast.FunctionDeclaration
	lexicalDeclarations     []ast.Node
	argumentsShadowed       bool
	usesArguments           bool
	length                  int
	useStrict               bool
}

func stringsOf[T ~string](names []T) []String {
	out := make([]String, len(names))
	for i, n := range names {
		out[i] = String(n)
	}
	return out
}

// functionInfoFor computes and caches the static semantics of node, which is
// a function literal, an arrow function, a class static block or a class
// field definition.
func (a *Agent) functionInfoFor(node ast.Node) *functionInfo {
	if info, ok := a.functionInfos[node]; ok {
		return info
	}
	info := &functionInfo{simpleParameterList: true}
	switch n := node.(type) {
	case *ast.FunctionLiteral:
		info.params = n.ParameterList
		if n.Body != nil {
			info.body = n.Body.List
		}
		info.usesArguments = parser.ContainsArguments(n) || containsDirectEval(n)
	case *ast.ArrowFunctionLiteral:
		info.params = n.ParameterList
		switch body := n.Body.(type) {
		case *ast.BlockStatement:
			info.body = body.List
		case *ast.ExpressionBody:
			info.expression = body.Expression
		}
	case *ast.ClassStaticBlock:
		if n.Block != nil {
			info.body = n.Block.List
		}
	case *ast.FieldDefinition:
		info.expression = n.Initializer
	}
	if info.params != nil {
		info.parameterNames = stringsOf(parser.BoundNames(info.params))
		info.simpleParameterList = parser.IsSimpleParameterList(info.params)
		info.hasParameterExpressions = parser.ContainsExpression(info.params)
		info.length = parser.ExpectedArgumentCount(info.params)
	}
	seen := make(map[String]bool, len(info.parameterNames))
	for _, name := range info.parameterNames {
		if seen[name] {
			info.hasDuplicates = true
		}
		seen[name] = true
	}
	info.useStrict = parser.HasUseStrict(info.body)
	info.varNames = stringsOf(parser.VarDeclaredNames(info.body, true))
	info.lexicalDeclarations = parser.LexicallyScopedDeclarations(info.body, true)

	// The last declaration of a name wins; keep them in source order.
	decls := parser.VarScopedDeclarations(info.body, true)
	functionNames := map[String]bool{}
	for i := len(decls) - 1; i >= 0; i-- {
		fd, ok := decls[i].(*ast.FunctionDeclaration)
		if !ok {
			continue
		}
		name := String(fd.Function.Name.Name)
		if functionNames[name] {
			continue
		}
		functionNames[name] = true
		info.functions = append([]*ast.FunctionDeclaration{fd}, info.functions...)
	}

	const arguments = String("arguments")
	if seen[arguments] {
		info.argumentsShadowed = true
	} else if !info.hasParameterExpressions {
		if functionNames[arguments] {
			info.argumentsShadowed = true
		}
		for _, d := range info.lexicalDeclarations {
			for _, name := range parser.BoundNames(d) {
				if String(name) == arguments {
					info.argumentsShadowed = true
				}
			}
		}
	}
	a.functionInfos[node] = info
	return info
}

// containsDirectEval reports whether a call to a plain `eval` identifier
// appears in fn outside nested non-arrow functions.
func containsDirectEval(fn *ast.FunctionLiteral) bool {
	found := false
	parser.Inspect(fn, func(n ast.Node) bool {
		if found {
			return false
		}
		switch n := n.(type) {
		case *ast.CallExpression:
			if id, ok := n.Callee.(*ast.Identifier); ok && id.Name == "eval" {
				found = true
			}
		case *ast.FunctionLiteral:
			return n == fn
		}
		return true
	})
	return found
}

// --- creation ---

// OrdinaryFunctionCreate allocates a function object for node. The running
// context supplies the realm and the active script or module.
func (a *Agent) OrdinaryFunctionCreate(proto *Object, program *parser.Program, node ast.Node, kind FunctionKind, thisMode ThisMode, env Environment, privateEnv *PrivateEnvironment) *Object {
	ctx := a.RunningContext()
	info := a.functionInfoFor(node)
	f := &ECMAScriptFunction{
		realm:              ctx.Realm,
		Environment:        env,
		PrivateEnvironment: privateEnv,
		ScriptOrModule:     a.GetActiveScriptOrModule(),
		Strict:             ctx.strict || info.useStrict,
		Kind:               kind,
		program:            program,
		node:               node,
		info:               info,
	}
	switch n := node.(type) {
	case *ast.FunctionLiteral:
		f.SourceText = n.Source
	case *ast.ArrowFunctionLiteral:
		f.SourceText = n.Source
	case *ast.ClassStaticBlock:
		f.SourceText = n.Source
	}
	switch {
	case thisMode == ThisModeLexical:
		f.ThisMode = ThisModeLexical
	case f.Strict:
		f.ThisMode = ThisModeStrict
	default:
		f.ThisMode = ThisModeGlobal
	}
	o := OrdinaryObjectCreate(proto)
	o.Class = "Function"
	o.fn = f
	SetFunctionLength(o, info.length)
	return o
}

// MakeConstructor gives f a [[Construct]] method and a prototype object.
// A nil prototype allocates a fresh one whose constructor points back at f.
func (a *Agent) MakeConstructor(f *Object, writablePrototype bool, prototype *Object) {
	if ef, ok := f.fn.(*ECMAScriptFunction); ok {
		ef.construct = true
	}
	if prototype == nil {
		prototype = OrdinaryObjectCreate(a.CurrentRealm().Intrinsics.ObjectPrototype)
		prototype.Put(String("constructor"), f, AttrDefault)
	}
	attrs := AttrNone
	if writablePrototype {
		attrs = AttrWritable
	}
	f.Put(String("prototype"), prototype, attrs)
}

// MakeMethod records the object super lookups of f start from.
func MakeMethod(f *Object, home *Object) {
	f.fn.(*ECMAScriptFunction).HomeObject = home
}

// SetFunctionName defines the name property. name is a PropertyKey or a
// *PrivateName; prefix is "get", "set", "bound" or empty.
func SetFunctionName(f *Object, name any, prefix string) {
	var s String
	switch n := name.(type) {
	case String:
		s = n
	case *Symbol:
		if d, ok := n.Description.(String); ok {
			s = NewString("[").Concat(d).Concat(NewString("]"))
		}
	case *PrivateName:
		s = NewString("#").Concat(n.Description)
	}
	if prefix != "" {
		s = NewString(prefix + " ").Concat(s)
	}
	f.Put(String("name"), s, AttrConfigurable)
}

// SetFunctionLength defines the length property.
func SetFunctionLength(f *Object, length int) {
	f.Put(lengthKey, Number(length), AttrConfigurable)
}

// functionName reads the own name property for diagnostics.
func functionName(f *Object) string {
	if v, ok := f.OwnValue(String("name")); ok {
		if s, ok := v.(String); ok && s != "" {
			return s.String()
		}
	}
	return "anonymous"
}

// --- [[Call]] / [[Construct]] ---

func (f *ECMAScriptFunction) Call(a *Agent, fo *Object, this Value, args []Value) (Value, *Completion) {
	if f.IsClassConstructor {
		return nil, a.ThrowTypeError(fmt.Sprintf("Class constructor %s cannot be invoked without 'new'", functionName(fo)))
	}
	callee, c := a.prepareForOrdinaryCall(fo, f, Undefined)
	if c != nil {
		return nil, c
	}
	a.ordinaryCallBindThis(f, callee, this)
	result := a.ordinaryCallEvaluateBody(fo, f, args)
	a.popContext(callee)
	switch result.Type {
	case Return:
		return result.Value, nil
	case Throw:
		return nil, &result
	}
	return Undefined, nil
}

func (f *ECMAScriptFunction) Construct(a *Agent, fo *Object, args []Value, newTarget *Object) (*Object, *Completion) {
	if f.defaultCtor {
		return a.defaultConstructor(fo, f, args, newTarget)
	}
	var thisArgument *Object
	if f.ConstructorKind == ConstructorBase {
		var c *Completion
		thisArgument, c = OrdinaryCreateFromConstructor(a, newTarget, func(i *Intrinsics) *Object { return i.ObjectPrototype })
		if c != nil {
			return nil, c
		}
	}
	callee, c := a.prepareForOrdinaryCall(fo, f, newTarget)
	if c != nil {
		return nil, c
	}
	constructorEnv := callee.LexicalEnvironment.(*FunctionEnvironment)
	if f.ConstructorKind == ConstructorBase {
		a.ordinaryCallBindThis(f, callee, thisArgument)
		if c := a.InitializeInstanceElements(thisArgument, fo); c != nil {
			a.popContext(callee)
			return nil, c
		}
	}
	result := a.ordinaryCallEvaluateBody(fo, f, args)
	a.popContext(callee)
	switch result.Type {
	case Return:
		if o, ok := result.Value.(*Object); ok {
			return o, nil
		}
		if f.ConstructorKind == ConstructorBase {
			return thisArgument, nil
		}
		if !IsUndefined(result.Value) {
			return nil, a.ThrowTypeError("Derived constructors may only return object or undefined")
		}
	case Throw:
		return nil, &result
	}
	this, c := constructorEnv.GetThisBinding(a)
	if c != nil {
		return nil, c
	}
	return this.(*Object), nil
}

// defaultConstructor is the behaviour of `constructor() {}` and
// `constructor(...args) { super(...args) }` for classes without one.
func (a *Agent) defaultConstructor(fo *Object, f *ECMAScriptFunction, args []Value, newTarget *Object) (*Object, *Completion) {
	var result *Object
	if f.ConstructorKind == ConstructorDerived {
		parent, c := fo.GetPrototypeOf(a)
		if c != nil {
			return nil, c
		}
		if parent == nil || !IsConstructor(parent) {
			return nil, a.ThrowTypeError("Super constructor is not a constructor")
		}
		result, c = Construct(a, parent, args, newTarget)
		if c != nil {
			return nil, c
		}
	} else {
		var c *Completion
		result, c = OrdinaryCreateFromConstructor(a, newTarget, func(i *Intrinsics) *Object { return i.ObjectPrototype })
		if c != nil {
			return nil, c
		}
	}
	if c := a.InitializeInstanceElements(result, fo); c != nil {
		return nil, c
	}
	return result, nil
}

func (a *Agent) prepareForOrdinaryCall(fo *Object, f *ECMAScriptFunction, newTarget Value) (*ExecutionContext, *Completion) {
	if newTarget == nil {
		newTarget = Undefined
	}
	env := NewFunctionEnvironment(fo, newTarget)
	ctx := &ExecutionContext{
		Function:            fo,
		Realm:               f.realm,
		ScriptOrModule:      f.ScriptOrModule,
		LexicalEnvironment:  env,
		VariableEnvironment: env,
		PrivateEnvironment:  f.PrivateEnvironment,
		strict:              f.Strict,
		program:             f.program,
	}
	if c := a.pushContext(ctx); c != nil {
		return nil, c
	}
	return ctx, nil
}

func (a *Agent) ordinaryCallBindThis(f *ECMAScriptFunction, callee *ExecutionContext, this Value) {
	if f.ThisMode == ThisModeLexical {
		return
	}
	thisValue := this
	if f.ThisMode != ThisModeStrict {
		if IsNullish(this) {
			thisValue = f.realm.GlobalEnv.GlobalThisValue
		} else {
			thisValue = Must(ToObject(a, this))
		}
	}
	MustNormal(callee.LexicalEnvironment.(*FunctionEnvironment).BindThisValue(a, thisValue))
}

// ordinaryCallEvaluateBody runs the body of f in the running context.
func (a *Agent) ordinaryCallEvaluateBody(fo *Object, f *ECMAScriptFunction, args []Value) Completion {
	switch n := f.node.(type) {
	case *ast.FieldDefinition:
		v, c := a.namedEvaluation(n.Initializer, f.fieldName)
		if c != nil {
			return *c
		}
		return Completion{Type: Return, Value: v}
	case *ast.ClassStaticBlock:
		if c := a.functionDeclarationInstantiation(fo, f, nil); c != nil {
			return *c
		}
		return a.evaluateStatementList(f.info.body)
	}

	switch f.Kind {
	case KindGenerator:
		if c := a.functionDeclarationInstantiation(fo, f, args); c != nil {
			return *c
		}
		g, c := OrdinaryCreateFromConstructor(a, fo, func(i *Intrinsics) *Object { return i.GeneratorPrototype })
		if c != nil {
			return *c
		}
		a.generatorStart(g, f)
		return Completion{Type: Return, Value: g}
	case KindAsyncGenerator:
		if c := a.functionDeclarationInstantiation(fo, f, args); c != nil {
			return *c
		}
		g, c := OrdinaryCreateFromConstructor(a, fo, func(i *Intrinsics) *Object { return i.AsyncGeneratorPrototype })
		if c != nil {
			return *c
		}
		a.asyncGeneratorStart(g, f)
		return Completion{Type: Return, Value: g}
	case KindAsync:
		capability := Must(NewPromiseCapability(a, a.CurrentRealm().Intrinsics.Promise))
		if c := a.functionDeclarationInstantiation(fo, f, args); c != nil {
			MustNormal(capability.Reject(a, c.Value))
		} else {
			a.asyncFunctionStart(capability, f)
		}
		return Completion{Type: Return, Value: capability.Promise}
	}

	if c := a.functionDeclarationInstantiation(fo, f, args); c != nil {
		return *c
	}
	return a.evaluateFunctionBody(f)
}

// evaluateFunctionBody evaluates the statements or concise expression of a
// normal, generator or async function after instantiation.
func (a *Agent) evaluateFunctionBody(f *ECMAScriptFunction) Completion {
	if f.info.expression != nil {
		v, c := a.evaluate(f.info.expression)
		if c != nil {
			return *c
		}
		return Completion{Type: Return, Value: v}
	}
	return a.evaluateStatementList(f.info.body)
}

// functionDeclarationInstantiation binds parameters, arguments, var and
// lexical declarations and hoisted functions in the running context.
func (a *Agent) functionDeclarationInstantiation(fo *Object, f *ECMAScriptFunction, args []Value) *Completion {
	ctx := a.RunningContext()
	info := f.info
	strict := f.Strict

	argumentsNeeded := f.ThisMode != ThisModeLexical && info.usesArguments && !info.argumentsShadowed

	env := ctx.LexicalEnvironment
	if !strict && info.hasParameterExpressions {
		env = NewDeclarativeEnvironment(env)
		ctx.LexicalEnvironment = env
	}
	for _, name := range info.parameterNames {
		exists, c := env.HasBinding(a, name)
		if c != nil {
			return c
		}
		if !exists {
			MustNormal(env.CreateMutableBinding(a, name, false))
			if info.hasDuplicates {
				MustNormal(env.InitializeBinding(a, name, Undefined))
			}
		}
	}
	parameterBindings := info.parameterNames
	if argumentsNeeded {
		ao := a.CreateUnmappedArgumentsObject(args)
		const arguments = String("arguments")
		if strict {
			MustNormal(env.CreateImmutableBinding(a, arguments, false))
		} else {
			MustNormal(env.CreateMutableBinding(a, arguments, false))
		}
		MustNormal(env.InitializeBinding(a, arguments, ao))
		parameterBindings = append(append([]String(nil), parameterBindings...), arguments)
	}

	if info.params != nil {
		target := env
		if info.hasDuplicates {
			target = nil
		}
		if c := a.bindParameters(info.params, args, target); c != nil {
			return c
		}
	}

	instantiated := make(map[String]bool, len(parameterBindings)+len(info.varNames))
	for _, n := range parameterBindings {
		instantiated[n] = true
	}
	var varEnv Environment
	if !info.hasParameterExpressions {
		for _, n := range info.varNames {
			if instantiated[n] {
				continue
			}
			instantiated[n] = true
			MustNormal(env.CreateMutableBinding(a, n, false))
			MustNormal(env.InitializeBinding(a, n, Undefined))
		}
		varEnv = env
	} else {
		varEnv = NewDeclarativeEnvironment(env)
		ctx.VariableEnvironment = varEnv
		isFunction := make(map[String]bool, len(info.functions))
		for _, fd := range info.functions {
			isFunction[String(fd.Function.Name.Name)] = true
		}
		isParameter := make(map[String]bool, len(parameterBindings))
		for _, n := range parameterBindings {
			isParameter[n] = true
		}
		for _, n := range info.varNames {
			if instantiated[n] {
				continue
			}
			instantiated[n] = true
			MustNormal(varEnv.CreateMutableBinding(a, n, false))
			var initial Value = Undefined
			if isParameter[n] && !isFunction[n] {
				v, c := env.GetBindingValue(a, n, false)
				if c != nil {
					return c
				}
				initial = v
			}
			MustNormal(varEnv.InitializeBinding(a, n, initial))
		}
	}

	lexEnv := varEnv
	if !strict {
		lexEnv = NewDeclarativeEnvironment(varEnv)
	}
	ctx.LexicalEnvironment = lexEnv
	for _, d := range info.lexicalDeclarations {
		constant := parser.IsConstantDeclaration(d)
		for _, name := range parser.BoundNames(d) {
			if constant {
				MustNormal(lexEnv.CreateImmutableBinding(a, String(name), true))
			} else {
				MustNormal(lexEnv.CreateMutableBinding(a, String(name), false))
			}
		}
	}
	for _, fd := range info.functions {
		fn := a.InstantiateFunctionObject(fd.Function, lexEnv, ctx.PrivateEnvironment)
		MustNormal(varEnv.SetMutableBinding(a, String(fd.Function.Name.Name), fn, false))
	}
	return nil
}

// bindParameters performs IteratorBindingInitialization of a formal
// parameter list over args. A nil env assigns through ResolveBinding, which
// sloppy functions with duplicate parameter names need.
func (a *Agent) bindParameters(params *ast.ParameterList, args []Value, env Environment) *Completion {
	for i, b := range params.List {
		var v Value = Undefined
		if i < len(args) {
			v = args[i]
		}
		if b.Initializer != nil && IsUndefined(v) {
			var c *Completion
			if id, ok := b.Target.(*ast.Identifier); ok {
				v, c = a.namedEvaluation(b.Initializer, String(id.Name))
			} else {
				v, c = a.evaluate(b.Initializer)
			}
			if c != nil {
				return c
			}
		}
		if c := a.bindingInitialization(b.Target, v, env); c != nil {
			return c
		}
	}
	if params.Rest != nil {
		var rest []Value
		if len(args) > len(params.List) {
			rest = append(rest, args[len(params.List):]...)
		}
		if c := a.bindingInitialization(params.Rest, CreateArrayFromList(a, rest), env); c != nil {
			return c
		}
	}
	return nil
}

// InstantiateFunctionObject creates the function object for a function
// declaration.
func (a *Agent) InstantiateFunctionObject(fn *ast.FunctionLiteral, env Environment, privateEnv *PrivateEnvironment) *Object {
	name := parser.DefaultBindingName
	if fn.Name != nil {
		name = fn.Name.Name
	}
	f := a.makeFunction(fn, env, privateEnv)
	if name == parser.DefaultBindingName {
		SetFunctionName(f, String("default"), "")
	} else {
		SetFunctionName(f, String(name), "")
	}
	return f
}

// makeFunction creates the function object for a function literal of any
// kind, including its prototype property, but without a name.
func (a *Agent) makeFunction(fn *ast.FunctionLiteral, env Environment, privateEnv *PrivateEnvironment) *Object {
	intr := &a.CurrentRealm().Intrinsics
	kind := kindOf(fn.Async, fn.Generator)
	ctx := a.RunningContext()
	switch kind {
	case KindGenerator:
		f := a.OrdinaryFunctionCreate(intr.GeneratorFunctionPrototype, ctx.program, fn, kind, ThisModeGlobal, env, privateEnv)
		f.Put(String("prototype"), OrdinaryObjectCreate(intr.GeneratorPrototype), AttrWritable)
		return f
	case KindAsyncGenerator:
		f := a.OrdinaryFunctionCreate(intr.AsyncGeneratorFunctionPrototype, ctx.program, fn, kind, ThisModeGlobal, env, privateEnv)
		f.Put(String("prototype"), OrdinaryObjectCreate(intr.AsyncGeneratorPrototype), AttrWritable)
		return f
	case KindAsync:
		return a.OrdinaryFunctionCreate(intr.AsyncFunctionPrototype, ctx.program, fn, kind, ThisModeGlobal, env, privateEnv)
	}
	f := a.OrdinaryFunctionCreate(intr.FunctionPrototype, ctx.program, fn, kind, ThisModeGlobal, env, privateEnv)
	a.MakeConstructor(f, true, nil)
	return f
}

package vm

import (
	"fmt"
	"strings"

	"github.com/dop251/goja/ast"

	"siskin/pkg/errors"
	"siskin/pkg/parser"
	"siskin/pkg/source"
)

// ScriptOptions name a script for stack traces and module resolution.
type ScriptOptions struct {
	Specifier   string
	HostDefined any
}

// Script is a parsed script bound to a realm.
type Script struct {
	Realm       *Realm
	Program     *parser.Program
	HostDefined any

	specifier string
	loaded    map[string]ModuleRecord
}

func (s *Script) Specifier() string { return s.specifier }

func (s *Script) loadedModules() map[string]ModuleRecord { return s.loaded }

func (s *Script) Mark(visit Visitor) {
	visit(s.Realm)
	for _, m := range s.loaded {
		visit(m)
	}
	if m, ok := s.HostDefined.(Marker); ok {
		visit(m)
	}
}

// ParseScript parses src as a script of r.
func (r *Realm) ParseScript(src string, opts ScriptOptions) (*Script, error) {
	name := opts.Specifier
	if name == "" {
		name = "<script>"
	}
	sf := source.NewSourceFile(name, opts.Specifier, src)
	prog, err := parser.ParseScript(sf)
	if err != nil {
		return nil, err
	}
	return &Script{
		Realm:       r,
		Program:     prog,
		HostDefined: opts.HostDefined,
		specifier:   opts.Specifier,
		loaded:      make(map[string]ModuleRecord),
	}, nil
}

// EvaluateScript parses and runs src in r. A syntax error is a Throw
// completion carrying a SyntaxError.
func (r *Realm) EvaluateScript(src string, opts ScriptOptions) Completion {
	var result Completion
	r.Scope(func() {
		script, err := r.ParseScript(src, opts)
		if err != nil {
			result = *r.agent.ThrowGoError(err)
			return
		}
		result = script.Evaluate()
	})
	return result
}

// Evaluate runs the script's global declaration instantiation and body.
func (s *Script) Evaluate() Completion {
	r, a := s.Realm, s.Realm.agent
	ctx := &ExecutionContext{
		Realm:               r,
		ScriptOrModule:      s,
		LexicalEnvironment:  r.GlobalEnv,
		VariableEnvironment: r.GlobalEnv,
		strict:              s.Program.Strict,
		program:             s.Program,
	}
	if c := a.pushContext(ctx); c != nil {
		return *c
	}
	defer a.popContext(ctx)
	if c := a.globalDeclarationInstantiation(s.Program.Body, r.GlobalEnv); c != nil {
		return *c
	}
	result := a.evaluateStatementList(s.Program.Body)
	if result.Type == Normal && result.Value == nil {
		result.Value = Undefined
	}
	return result
}

func redeclaration(a *Agent, name String) *Completion {
	return a.ThrowSyntaxError(fmt.Sprintf("Identifier '%s' has already been declared", name))
}

// topLevelFunctions picks the function declarations to instantiate: the
// last declaration of each name, in source order.
func topLevelFunctions(decls []ast.Node) ([]*ast.FunctionDeclaration, map[String]bool) {
	var functions []*ast.FunctionDeclaration
	names := map[String]bool{}
	for i := len(decls) - 1; i >= 0; i-- {
		fd, ok := decls[i].(*ast.FunctionDeclaration)
		if !ok {
			continue
		}
		name := String(fd.Function.Name.Name)
		if names[name] {
			continue
		}
		names[name] = true
		functions = append([]*ast.FunctionDeclaration{fd}, functions...)
	}
	return functions, names
}

func (a *Agent) globalDeclarationInstantiation(body []ast.Statement, env *GlobalEnvironment) *Completion {
	lexNames := parser.LexicallyDeclaredNames(body, true)
	varNames := parser.VarDeclaredNames(body, true)
	for _, n := range lexNames {
		name := String(n)
		if env.HasVarDeclaration(name) || env.HasLexicalDeclaration(name) {
			return redeclaration(a, name)
		}
		restricted, c := env.HasRestrictedGlobalProperty(a, name)
		if c != nil {
			return c
		}
		if restricted {
			return redeclaration(a, name)
		}
	}
	for _, n := range varNames {
		if env.HasLexicalDeclaration(String(n)) {
			return redeclaration(a, String(n))
		}
	}

	varDecls := parser.VarScopedDeclarations(body, true)
	functions, functionNames := topLevelFunctions(varDecls)
	for _, fd := range functions {
		name := String(fd.Function.Name.Name)
		ok, c := env.CanDeclareGlobalFunction(a, name)
		if c != nil {
			return c
		}
		if !ok {
			return a.ThrowTypeError(fmt.Sprintf("Cannot declare global function '%s'", name))
		}
	}
	var declaredVarNames []String
	seen := map[String]bool{}
	for _, d := range varDecls {
		if _, isFunction := d.(*ast.FunctionDeclaration); isFunction {
			continue
		}
		for _, n := range parser.BoundNames(d) {
			name := String(n)
			if functionNames[name] || seen[name] {
				continue
			}
			ok, c := env.CanDeclareGlobalVar(a, name)
			if c != nil {
				return c
			}
			if !ok {
				return a.ThrowTypeError(fmt.Sprintf("Cannot declare global variable '%s'", name))
			}
			seen[name] = true
			declaredVarNames = append(declaredVarNames, name)
		}
	}

	for _, d := range parser.LexicallyScopedDeclarations(body, true) {
		constant := parser.IsConstantDeclaration(d)
		for _, n := range parser.BoundNames(d) {
			var c *Completion
			if constant {
				c = env.CreateImmutableBinding(a, String(n), true)
			} else {
				c = env.CreateMutableBinding(a, String(n), false)
			}
			if c != nil {
				return c
			}
		}
	}
	for _, fd := range functions {
		fo := a.InstantiateFunctionObject(fd.Function, env, nil)
		if c := env.CreateGlobalFunctionBinding(a, String(fd.Function.Name.Name), fo, false); c != nil {
			return c
		}
	}
	for _, name := range declaredVarNames {
		if c := env.CreateGlobalVarBinding(a, name, false); c != nil {
			return c
		}
	}
	return nil
}

// --- eval ---

func indirectEval(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
	return a.PerformEval(Arg(args, 0), false, false)
}

// PerformEval evaluates x as a script body. Direct eval shares the
// caller's scope; indirect eval runs in the global scope.
func (a *Agent) PerformEval(x Value, strictCaller, direct bool) (Value, *Completion) {
	text, ok := x.(String)
	if !ok {
		return x, nil
	}
	running := a.RunningContext()
	realm := running.Realm
	opts := parser.Options{Strict: direct && strictCaller}
	if direct {
		if fe, ok := GetThisEnvironment(running.LexicalEnvironment).(*FunctionEnvironment); ok {
			f := fe.FunctionObject.fn.(*ECMAScriptFunction)
			opts.AllowNewTarget = true
			opts.AllowSuperProperty = fe.HasSuperBinding()
			opts.AllowSuperCall = f.ConstructorKind == ConstructorDerived
			_, opts.InClassField = f.node.(*ast.FieldDefinition)
		}
	}
	prog, err := parser.ParseScriptWith(source.NewEvalSource(text.String()), opts)
	if err != nil {
		return nil, a.ThrowGoError(err)
	}
	var (
		lexEnv     *DeclarativeEnvironment
		varEnv     Environment
		privateEnv *PrivateEnvironment
	)
	if direct {
		lexEnv = NewDeclarativeEnvironment(running.LexicalEnvironment)
		varEnv = running.VariableEnvironment
		privateEnv = running.PrivateEnvironment
		if c := checkPrivateNames(a, prog, privateEnv); c != nil {
			return nil, c
		}
	} else {
		lexEnv = NewDeclarativeEnvironment(realm.GlobalEnv)
		varEnv = realm.GlobalEnv
	}
	if prog.Strict {
		varEnv = lexEnv
	}
	ctx := &ExecutionContext{
		Realm:               realm,
		ScriptOrModule:      running.ScriptOrModule,
		LexicalEnvironment:  lexEnv,
		VariableEnvironment: varEnv,
		PrivateEnvironment:  privateEnv,
		strict:              prog.Strict,
		program:             prog,
	}
	if c := a.pushContext(ctx); c != nil {
		return nil, c
	}
	defer a.popContext(ctx)
	if c := a.evalDeclarationInstantiation(prog.Body, varEnv, lexEnv, privateEnv, prog.Strict); c != nil {
		return nil, c
	}
	result := a.evaluateStatementList(prog.Body)
	if result.Type == Throw {
		return nil, &result
	}
	return result.ValueOrUndefined(), nil
}

// checkPrivateNames rejects eval code that refers to a #name no enclosing
// class declares.
func checkPrivateNames(a *Agent, prog *parser.Program, env *PrivateEnvironment) *Completion {
	declared := map[string]bool{}
	var used []string
	visit := func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.ClassLiteral:
			for _, e := range n.Body {
				var key ast.Expression
				switch e := e.(type) {
				case *ast.MethodDefinition:
					key = e.Key
				case *ast.FieldDefinition:
					key = e.Key
				}
				if id, ok := key.(*ast.PrivateIdentifier); ok {
					declared[privateKey(id)] = true
				}
			}
		case *ast.PrivateDotExpression:
			used = append(used, privateKey(&n.Identifier))
		case *ast.BinaryExpression:
			if id, ok := n.Left.(*ast.PrivateIdentifier); ok {
				used = append(used, privateKey(id))
			}
		}
		return true
	}
	for _, stmt := range prog.Body {
		parser.Inspect(stmt, visit)
	}
	for _, name := range used {
		if declared[name] {
			continue
		}
		found := false
		for e := env; e != nil && !found; e = e.Outer {
			_, found = e.Names[name]
		}
		if !found {
			return a.ThrowSyntaxError(fmt.Sprintf("Private field '#%s' must be declared in an enclosing class", name))
		}
	}
	return nil
}

func (a *Agent) evalDeclarationInstantiation(body []ast.Statement, varEnv Environment, lexEnv *DeclarativeEnvironment, privateEnv *PrivateEnvironment, strict bool) *Completion {
	varNames := parser.VarDeclaredNames(body, true)
	global, isGlobal := varEnv.(*GlobalEnvironment)
	if !strict {
		if isGlobal {
			for _, n := range varNames {
				if global.HasLexicalDeclaration(String(n)) {
					return redeclaration(a, String(n))
				}
			}
		}
		for env := lexEnv.Outer(); env != varEnv && env != nil; env = env.Outer() {
			if _, isObject := env.(*ObjectEnvironment); isObject {
				continue
			}
			for _, n := range varNames {
				exists, c := env.HasBinding(a, String(n))
				if c != nil {
					return c
				}
				if exists {
					return redeclaration(a, String(n))
				}
			}
		}
	}

	varDecls := parser.VarScopedDeclarations(body, true)
	functions, functionNames := topLevelFunctions(varDecls)
	if isGlobal {
		for _, fd := range functions {
			ok, c := global.CanDeclareGlobalFunction(a, String(fd.Function.Name.Name))
			if c != nil {
				return c
			}
			if !ok {
				return a.ThrowTypeError(fmt.Sprintf("Cannot declare global function '%s'", fd.Function.Name.Name))
			}
		}
	}
	var declaredVarNames []String
	seen := map[String]bool{}
	for _, d := range varDecls {
		if _, isFunction := d.(*ast.FunctionDeclaration); isFunction {
			continue
		}
		for _, n := range parser.BoundNames(d) {
			name := String(n)
			if functionNames[name] || seen[name] {
				continue
			}
			if isGlobal {
				ok, c := global.CanDeclareGlobalVar(a, name)
				if c != nil {
					return c
				}
				if !ok {
					return a.ThrowTypeError(fmt.Sprintf("Cannot declare global variable '%s'", name))
				}
			}
			seen[name] = true
			declaredVarNames = append(declaredVarNames, name)
		}
	}

	for _, d := range parser.LexicallyScopedDeclarations(body, true) {
		constant := parser.IsConstantDeclaration(d)
		for _, n := range parser.BoundNames(d) {
			if constant {
				MustNormal(lexEnv.CreateImmutableBinding(a, String(n), true))
			} else {
				MustNormal(lexEnv.CreateMutableBinding(a, String(n), false))
			}
		}
	}
	for _, fd := range functions {
		name := String(fd.Function.Name.Name)
		fo := a.InstantiateFunctionObject(fd.Function, lexEnv, privateEnv)
		if isGlobal {
			if c := global.CreateGlobalFunctionBinding(a, name, fo, true); c != nil {
				return c
			}
			continue
		}
		exists, c := varEnv.HasBinding(a, name)
		if c != nil {
			return c
		}
		if exists {
			if c := varEnv.SetMutableBinding(a, name, fo, false); c != nil {
				return c
			}
			continue
		}
		MustNormal(varEnv.CreateMutableBinding(a, name, true))
		MustNormal(varEnv.InitializeBinding(a, name, fo))
	}
	for _, name := range declaredVarNames {
		if isGlobal {
			if c := global.CreateGlobalVarBinding(a, name, true); c != nil {
				return c
			}
			continue
		}
		exists, c := varEnv.HasBinding(a, name)
		if c != nil {
			return c
		}
		if !exists {
			MustNormal(varEnv.CreateMutableBinding(a, name, true))
			MustNormal(varEnv.InitializeBinding(a, name, Undefined))
		}
	}
	return nil
}

// --- dynamic functions ---

// CreateDynamicFunction implements the Function constructor family: the
// last argument is the body and the others are parameters.
func (a *Agent) CreateDynamicFunction(constructor, newTarget *Object, kind FunctionKind, args []Value) (Value, *Completion) {
	if newTarget == nil {
		newTarget = constructor
	}
	var params []string
	body := ""
	for i, arg := range args {
		s, c := ToString(a, arg)
		if c != nil {
			return nil, c
		}
		if i == len(args)-1 {
			body = s.String()
		} else {
			params = append(params, s.String())
		}
	}
	parseKind, fallback := parser.NormalFunction, func(i *Intrinsics) *Object { return i.FunctionPrototype }
	switch kind {
	case KindGenerator:
		parseKind, fallback = parser.GeneratorFunction, func(i *Intrinsics) *Object { return i.GeneratorFunctionPrototype }
	case KindAsync:
		parseKind, fallback = parser.AsyncFunction, func(i *Intrinsics) *Object { return i.AsyncFunctionPrototype }
	case KindAsyncGenerator:
		parseKind, fallback = parser.AsyncGeneratorFunction, func(i *Intrinsics) *Object { return i.AsyncGeneratorFunctionPrototype }
	}
	prog, fn, err := parser.ParseDynamicFunction(parseKind, strings.Join(params, ","), body)
	if err != nil {
		return nil, a.ThrowGoError(err)
	}
	proto, c := GetPrototypeFromConstructor(a, newTarget, fallback)
	if c != nil {
		return nil, c
	}
	realm := a.CurrentRealm()
	f := a.OrdinaryFunctionCreate(proto, prog, fn, kind, ThisModeGlobal, realm.GlobalEnv, nil)
	ef := f.fn.(*ECMAScriptFunction)
	// The running context is the built-in constructor's, which is strict.
	ef.Strict = ef.info.useStrict
	if ef.Strict {
		ef.ThisMode = ThisModeStrict
	} else {
		ef.ThisMode = ThisModeGlobal
	}
	errors.Assert(ef.Kind == kind, "dynamic function kind mismatch")
	SetFunctionName(f, String("anonymous"), "")
	switch kind {
	case KindGenerator:
		f.Put(String("prototype"), OrdinaryObjectCreate(realm.Intrinsics.GeneratorPrototype), AttrWritable)
	case KindAsyncGenerator:
		f.Put(String("prototype"), OrdinaryObjectCreate(realm.Intrinsics.AsyncGeneratorPrototype), AttrWritable)
	case KindNormal:
		a.MakeConstructor(f, true, nil)
	}
	return f, nil
}

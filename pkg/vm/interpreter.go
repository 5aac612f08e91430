package vm

import (
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/token"

	"siskin/pkg/errors"
	"siskin/pkg/parser"
)

// The evaluator walks goja syntax trees directly. Statements produce a
// Completion; expressions produce (Value, *Completion) where a non-nil
// completion is abrupt. Scope-introducing statements swap the running
// context's LexicalEnvironment and restore it on every exit path.

// evaluateStatementList evaluates list in order, threading the completion
// value of the last statement that produced one.
func (a *Agent) evaluateStatementList(list []ast.Statement) Completion {
	var last Value
	for _, s := range list {
		c := a.evaluateStatement(s)
		if c.Type != Normal {
			return UpdateEmpty(c, last)
		}
		if c.Value != nil {
			last = c.Value
		}
	}
	return NormalCompletion(last)
}

func (a *Agent) evaluateStatement(s ast.Statement) Completion {
	ctx := a.RunningContext()
	ctx.node = s
	if a.stepping {
		if c := a.pause(ctx, PauseStep); c != nil {
			return *c
		}
	}

	switch s := s.(type) {
	case *ast.ExpressionStatement:
		return completionFrom(a.evaluate(s.Expression))
	case *ast.VariableStatement:
		return a.evaluateVariableStatement(s)
	case *ast.LexicalDeclaration:
		if c := a.evaluateLexicalDeclaration(s); c != nil {
			return *c
		}
		return NormalCompletion(nil)
	case *ast.FunctionDeclaration, *ast.EmptyStatement:
		return NormalCompletion(nil)
	case *ast.ClassDeclaration:
		if c := a.evaluateClassDeclaration(s); c != nil {
			return *c
		}
		return NormalCompletion(nil)
	case *ast.BlockStatement:
		return a.evaluateBlock(s)
	case *ast.IfStatement:
		return a.evaluateIf(s)
	case *ast.DoWhileStatement, *ast.WhileStatement, *ast.ForStatement,
		*ast.ForInStatement, *ast.ForOfStatement, *ast.SwitchStatement, *ast.LabelledStatement:
		return a.labelledEvaluation(s, nil)
	case *ast.BranchStatement:
		var label string
		if s.Label != nil {
			label = string(s.Label.Name)
		}
		if s.Token == token.BREAK {
			return Completion{Type: Break, Target: label}
		}
		return Completion{Type: Continue, Target: label}
	case *ast.ReturnStatement:
		return a.evaluateReturn(s)
	case *ast.ThrowStatement:
		v, c := a.evaluate(s.Argument)
		if c != nil {
			return *c
		}
		return *ThrowCompletion(v)
	case *ast.TryStatement:
		return a.evaluateTry(s)
	case *ast.WithStatement:
		return a.evaluateWith(s)
	case *ast.DebuggerStatement:
		if c := a.pause(ctx, PauseDebuggerStatement); c != nil {
			return *c
		}
		return NormalCompletion(nil)
	case *ast.BadStatement:
		errors.Assertf("evaluating a bad statement")
	}
	errors.Assertf("unknown statement %T", s)
	return Completion{}
}

// --- declarations ---

func (a *Agent) evaluateVariableStatement(s *ast.VariableStatement) Completion {
	if p := a.program(); p != nil && p.Module != nil && p.Module.DefaultExpression == s {
		return completionFromAbrupt(a.evaluateDefaultExport(s.List[0]))
	}
	for _, b := range s.List {
		if b.Initializer == nil {
			continue
		}
		if c := a.initializeVarBinding(b.Target, b.Initializer); c != nil {
			return *c
		}
	}
	return NormalCompletion(nil)
}

// evaluateDefaultExport initialises *default* for `export default expr`.
func (a *Agent) evaluateDefaultExport(b *ast.Binding) *Completion {
	v, c := a.namedEvaluation(b.Initializer, String("default"))
	if c != nil {
		return c
	}
	return a.lexicalEnvironment().InitializeBinding(a, String(parser.DefaultBindingName), v)
}

func completionFromAbrupt(c *Completion) Completion {
	if c != nil {
		return *c
	}
	return NormalCompletion(nil)
}

// initializeVarBinding assigns the initializer of a var binding.
func (a *Agent) initializeVarBinding(target ast.BindingTarget, init ast.Expression) *Completion {
	if id, ok := target.(*ast.Identifier); ok {
		ref, c := a.ResolveBinding(String(id.Name), nil)
		if c != nil {
			return c
		}
		v, c := a.namedEvaluation(init, String(id.Name))
		if c != nil {
			return c
		}
		return a.PutValue(ref, v)
	}
	v, c := a.evaluate(init)
	if c != nil {
		return c
	}
	return a.bindingInitialization(target, v, nil)
}

func (a *Agent) evaluateLexicalDeclaration(s *ast.LexicalDeclaration) *Completion {
	for _, b := range s.List {
		if id, ok := b.Target.(*ast.Identifier); ok {
			ref, c := a.ResolveBinding(String(id.Name), nil)
			if c != nil {
				return c
			}
			var v Value = Undefined
			if b.Initializer != nil {
				if v, c = a.namedEvaluation(b.Initializer, String(id.Name)); c != nil {
					return c
				}
			}
			if c := a.InitializeReferencedBinding(ref, v); c != nil {
				return c
			}
			continue
		}
		v, c := a.evaluate(b.Initializer)
		if c != nil {
			return c
		}
		if c := a.bindingInitialization(b.Target, v, a.lexicalEnvironment()); c != nil {
			return c
		}
	}
	return nil
}

func (a *Agent) evaluateClassDeclaration(s *ast.ClassDeclaration) *Completion {
	cls := s.Class
	bindingName := String(cls.Name.Name)
	name := bindingName
	if cls.Name.Name == parser.DefaultBindingName {
		name = String("default")
	}
	f, c := a.classDefinitionEvaluation(cls, bindingName, name)
	if c != nil {
		return c
	}
	return a.lexicalEnvironment().InitializeBinding(a, bindingName, f)
}

// scopedDeclarations caches the lexically scoped declarations of a block
// or case block.
func (a *Agent) scopedDeclarations(node ast.Node, compute func() []ast.Node) []ast.Node {
	if decls, ok := a.scopeDecls[node]; ok {
		return decls
	}
	decls := compute()
	a.scopeDecls[node] = decls
	return decls
}

// blockDeclarationInstantiation creates the bindings of decls in env and
// initialises hoisted functions.
func (a *Agent) blockDeclarationInstantiation(decls []ast.Node, env *DeclarativeEnvironment) {
	privateEnv := a.RunningContext().PrivateEnvironment
	for _, d := range decls {
		constant := parser.IsConstantDeclaration(d)
		for _, n := range parser.BoundNames(d) {
			name := String(n)
			if env.lookup(name) != nil {
				// sloppy duplicate function declarations share a binding
				continue
			}
			if constant {
				MustNormal(env.CreateImmutableBinding(a, name, true))
			} else {
				MustNormal(env.CreateMutableBinding(a, name, false))
			}
		}
		if fd, ok := d.(*ast.FunctionDeclaration); ok {
			name := String(fd.Function.Name.Name)
			fo := a.InstantiateFunctionObject(fd.Function, env, privateEnv)
			if b := env.lookup(name); b.initialized {
				b.value = fo
			} else {
				MustNormal(env.InitializeBinding(a, name, fo))
			}
		}
	}
}

func (a *Agent) evaluateBlock(b *ast.BlockStatement) Completion {
	if len(b.List) == 0 {
		return NormalCompletion(nil)
	}
	decls := a.scopedDeclarations(b, func() []ast.Node {
		return parser.LexicallyScopedDeclarations(b.List, false)
	})
	if len(decls) == 0 {
		return a.evaluateStatementList(b.List)
	}
	blockEnv := NewDeclarativeEnvironment(a.lexicalEnvironment())
	a.blockDeclarationInstantiation(decls, blockEnv)
	old := a.setLexicalEnvironment(blockEnv)
	c := a.evaluateStatementList(b.List)
	a.setLexicalEnvironment(old)
	return c
}

// --- simple control flow ---

func (a *Agent) evaluateIf(s *ast.IfStatement) Completion {
	v, c := a.evaluate(s.Test)
	if c != nil {
		return *c
	}
	var result Completion
	switch {
	case ToBoolean(v):
		result = a.evaluateStatement(s.Consequent)
	case s.Alternate != nil:
		result = a.evaluateStatement(s.Alternate)
	default:
		return NormalCompletion(Undefined)
	}
	return UpdateEmpty(result, Undefined)
}

func (a *Agent) evaluateReturn(s *ast.ReturnStatement) Completion {
	if s.Argument == nil {
		return Completion{Type: Return, Value: Undefined}
	}
	v, c := a.evaluate(s.Argument)
	if c != nil {
		return *c
	}
	if f := a.RunningContext().Function; f != nil {
		if ef, ok := f.fn.(*ECMAScriptFunction); ok && ef.Kind == KindAsyncGenerator {
			if v, c = a.Await(v); c != nil {
				return *c
			}
		}
	}
	return Completion{Type: Return, Value: v}
}

func (a *Agent) evaluateTry(s *ast.TryStatement) Completion {
	result := a.evaluateBlock(s.Body)
	if s.Catch != nil && result.Type == Throw {
		result = a.evaluateCatch(s.Catch, result.Value)
	}
	if s.Finally != nil {
		f := a.evaluateBlock(s.Finally)
		if f.Type != Normal {
			return UpdateEmpty(f, Undefined)
		}
	}
	return UpdateEmpty(result, Undefined)
}

func (a *Agent) evaluateCatch(cs *ast.CatchStatement, thrown Value) Completion {
	if cs.Parameter == nil {
		return a.evaluateBlock(cs.Body)
	}
	catchEnv := NewDeclarativeEnvironment(a.lexicalEnvironment())
	for _, name := range parser.BoundNames(cs.Parameter) {
		MustNormal(catchEnv.CreateMutableBinding(a, String(name), false))
	}
	old := a.setLexicalEnvironment(catchEnv)
	defer a.setLexicalEnvironment(old)
	if c := a.bindingInitialization(cs.Parameter, thrown, catchEnv); c != nil {
		return *c
	}
	return a.evaluateBlock(cs.Body)
}

func (a *Agent) evaluateWith(s *ast.WithStatement) Completion {
	v, c := a.evaluate(s.Object)
	if c != nil {
		return *c
	}
	o, c := ToObject(a, v)
	if c != nil {
		return *c
	}
	old := a.setLexicalEnvironment(NewObjectEnvironment(o, true, a.lexicalEnvironment()))
	result := a.evaluateStatement(s.Body)
	a.setLexicalEnvironment(old)
	return UpdateEmpty(result, Undefined)
}

// --- breakable statements ---

// labelledEvaluation evaluates loops, switch and labelled statements with
// the label set of their enclosing labels.
func (a *Agent) labelledEvaluation(s ast.Statement, labels []string) Completion {
	switch s := s.(type) {
	case *ast.LabelledStatement:
		label := string(s.Label.Name)
		a.RunningContext().node = s
		var result Completion
		switch s.Statement.(type) {
		case *ast.DoWhileStatement, *ast.WhileStatement, *ast.ForStatement,
			*ast.ForInStatement, *ast.ForOfStatement, *ast.SwitchStatement, *ast.LabelledStatement:
			result = a.labelledEvaluation(s.Statement, append(labels, label))
		default:
			result = a.evaluateStatement(s.Statement)
		}
		if result.Type == Break && result.Target == label {
			result = NormalCompletion(result.Value)
		}
		return result
	case *ast.SwitchStatement:
		a.RunningContext().node = s
		result := a.evaluateSwitch(s)
		if result.Type == Break && result.Target == "" {
			return NormalCompletion(result.ValueOrUndefined())
		}
		return result
	}
	a.RunningContext().node = s
	result := a.loopEvaluation(s, labels)
	if result.Type == Break && result.Target == "" {
		return NormalCompletion(result.ValueOrUndefined())
	}
	return result
}

func (a *Agent) loopEvaluation(s ast.Statement, labels []string) Completion {
	switch s := s.(type) {
	case *ast.DoWhileStatement:
		var v Value = Undefined
		for {
			result := a.evaluateStatement(s.Body)
			if !loopContinues(result, labels) {
				return UpdateEmpty(result, v)
			}
			if result.Value != nil {
				v = result.Value
			}
			test, c := a.evaluate(s.Test)
			if c != nil {
				return *c
			}
			if !ToBoolean(test) {
				return NormalCompletion(v)
			}
		}
	case *ast.WhileStatement:
		var v Value = Undefined
		for {
			test, c := a.evaluate(s.Test)
			if c != nil {
				return *c
			}
			if !ToBoolean(test) {
				return NormalCompletion(v)
			}
			result := a.evaluateStatement(s.Body)
			if !loopContinues(result, labels) {
				return UpdateEmpty(result, v)
			}
			if result.Value != nil {
				v = result.Value
			}
		}
	case *ast.ForStatement:
		return a.evaluateFor(s, labels)
	case *ast.ForInStatement:
		return a.evaluateForIn(s, labels)
	case *ast.ForOfStatement:
		return a.evaluateForOf(s, labels)
	}
	errors.Assertf("not a loop: %T", s)
	return Completion{}
}

func (a *Agent) evaluateFor(s *ast.ForStatement, labels []string) Completion {
	switch init := s.Initializer.(type) {
	case *ast.ForLoopInitializerExpression:
		if _, c := a.evaluate(init.Expression); c != nil {
			return *c
		}
	case *ast.ForLoopInitializerVarDeclList:
		for _, b := range init.List {
			if b.Initializer == nil {
				continue
			}
			if c := a.initializeVarBinding(b.Target, b.Initializer); c != nil {
				return *c
			}
		}
	case *ast.ForLoopInitializerLexicalDecl:
		decl := &init.LexicalDeclaration
		constant := decl.Token == token.CONST
		oldEnv := a.lexicalEnvironment()
		loopEnv := NewDeclarativeEnvironment(oldEnv)
		names := stringsOf(parser.BoundNames(decl))
		for _, name := range names {
			if constant {
				MustNormal(loopEnv.CreateImmutableBinding(a, name, true))
			} else {
				MustNormal(loopEnv.CreateMutableBinding(a, name, false))
			}
		}
		a.setLexicalEnvironment(loopEnv)
		defer a.setLexicalEnvironment(oldEnv)
		if c := a.evaluateLexicalDeclaration(decl); c != nil {
			return *c
		}
		var perIteration []String
		if !constant {
			perIteration = names
		}
		return a.forBodyEvaluation(s, perIteration, labels)
	}
	return a.forBodyEvaluation(s, nil, labels)
}

func (a *Agent) forBodyEvaluation(s *ast.ForStatement, perIteration []String, labels []string) Completion {
	var v Value = Undefined
	a.createPerIterationEnvironment(perIteration)
	for {
		if s.Test != nil {
			test, c := a.evaluate(s.Test)
			if c != nil {
				return *c
			}
			if !ToBoolean(test) {
				return NormalCompletion(v)
			}
		}
		result := a.evaluateStatement(s.Body)
		if !loopContinues(result, labels) {
			return UpdateEmpty(result, v)
		}
		if result.Value != nil {
			v = result.Value
		}
		a.createPerIterationEnvironment(perIteration)
		if s.Update != nil {
			if _, c := a.evaluate(s.Update); c != nil {
				return *c
			}
		}
	}
}

// createPerIterationEnvironment copies the loop's let bindings into a
// fresh environment so closures capture one binding per iteration.
func (a *Agent) createPerIterationEnvironment(names []String) {
	if len(names) == 0 {
		return
	}
	last := a.lexicalEnvironment()
	env := NewDeclarativeEnvironment(last.Outer())
	for _, name := range names {
		MustNormal(env.CreateMutableBinding(a, name, false))
		v := Must(last.GetBindingValue(a, name, true))
		MustNormal(env.InitializeBinding(a, name, v))
	}
	a.setLexicalEnvironment(env)
}

// --- for-in / for-of ---

type iterationKind uint8

const (
	iterationEnumerate iterationKind = iota
	iterationIterate
	iterationAsyncIterate
)

// forIntoNames returns the TDZ names of a for-in/of head.
func forIntoNames(into ast.ForInto) []String {
	if d, ok := into.(*ast.ForDeclaration); ok {
		return stringsOf(parser.BoundNames(d.Target))
	}
	return nil
}

// forInOfHeadEvaluation evaluates the object or iterable of a for-in/of
// head with the loop's lexical names in TDZ.
func (a *Agent) forInOfHeadEvaluation(names []String, expr ast.Expression) (Value, *Completion) {
	if len(names) == 0 {
		return a.evaluate(expr)
	}
	oldEnv := a.lexicalEnvironment()
	tdz := NewDeclarativeEnvironment(oldEnv)
	for _, name := range names {
		MustNormal(tdz.CreateMutableBinding(a, name, false))
	}
	a.setLexicalEnvironment(tdz)
	v, c := a.evaluate(expr)
	a.setLexicalEnvironment(oldEnv)
	return v, c
}

func (a *Agent) evaluateForIn(s *ast.ForInStatement, labels []string) Completion {
	v, c := a.forInOfHeadEvaluation(forIntoNames(s.Into), s.Source)
	if c != nil {
		return *c
	}
	if IsNullish(v) {
		return Completion{Type: Break}
	}
	o := Must(ToObject(a, v))
	it := newForInIterator(o)
	step := func() (Value, bool, *Completion) { return it.next(a) }
	return a.forInOfBodyEvaluation(s.Into, s.Body, step, func(c Completion) Completion { return c }, labels)
}

func (a *Agent) evaluateForOf(s *ast.ForOfStatement, labels []string) Completion {
	kind := iterationIterate
	if p := a.program(); p != nil && p.IsAwaitLoop(s) {
		kind = iterationAsyncIterate
	}
	v, c := a.forInOfHeadEvaluation(forIntoNames(s.Into), s.Source)
	if c != nil {
		return *c
	}
	iterKind := IteratorSync
	if kind == iterationAsyncIterate {
		iterKind = IteratorAsync
	}
	rec, c := GetIterator(a, v, iterKind)
	if c != nil {
		return *c
	}
	step := func() (Value, bool, *Completion) {
		result, c := Call(a, rec.NextMethod, rec.Iterator, nil)
		if c != nil {
			return nil, false, c
		}
		if kind == iterationAsyncIterate {
			if result, c = a.Await(result); c != nil {
				return nil, false, c
			}
		}
		ro, ok := result.(*Object)
		if !ok {
			return nil, false, a.ThrowTypeError("Iterator result " + Inspect(result) + " is not an object")
		}
		done, c := IteratorComplete(a, ro)
		if c != nil || done {
			return nil, done, c
		}
		value, c := IteratorValue(a, ro)
		return value, false, c
	}
	closeIter := func(c Completion) Completion {
		if kind == iterationAsyncIterate {
			return a.AsyncIteratorClose(rec, c)
		}
		return IteratorClose(a, rec, c)
	}
	return a.forInOfBodyEvaluation(s.Into, s.Body, step, closeIter, labels)
}

// forInOfBodyEvaluation runs the loop body once per value step produces.
// closeIter finishes the iterator when the loop exits early.
func (a *Agent) forInOfBodyEvaluation(into ast.ForInto, body ast.Statement, step func() (Value, bool, *Completion), closeIter func(Completion) Completion, labels []string) Completion {
	oldEnv := a.lexicalEnvironment()
	var v Value = Undefined
	for {
		next, done, c := step()
		if c != nil {
			return *c
		}
		if done {
			return NormalCompletion(v)
		}
		if c := a.forBindingStep(into, next, oldEnv); c != nil {
			a.setLexicalEnvironment(oldEnv)
			return closeIter(*c)
		}
		result := a.evaluateStatement(body)
		a.setLexicalEnvironment(oldEnv)
		if !loopContinues(result, labels) {
			return closeIter(UpdateEmpty(result, v))
		}
		if result.Value != nil {
			v = result.Value
		}
	}
}

// forBindingStep binds the loop variable of one iteration.
func (a *Agent) forBindingStep(into ast.ForInto, v Value, oldEnv Environment) *Completion {
	switch into := into.(type) {
	case *ast.ForIntoVar:
		if id, ok := into.Binding.Target.(*ast.Identifier); ok {
			ref, c := a.ResolveBinding(String(id.Name), nil)
			if c != nil {
				return c
			}
			return a.PutValue(ref, v)
		}
		return a.bindingInitialization(into.Binding.Target, v, nil)
	case *ast.ForDeclaration:
		iterEnv := NewDeclarativeEnvironment(oldEnv)
		for _, name := range parser.BoundNames(into.Target) {
			if into.IsConst {
				MustNormal(iterEnv.CreateImmutableBinding(a, String(name), true))
			} else {
				MustNormal(iterEnv.CreateMutableBinding(a, String(name), false))
			}
		}
		a.setLexicalEnvironment(iterEnv)
		return a.bindingInitialization(into.Target, v, iterEnv)
	case *ast.ForIntoExpression:
		return a.bindingInitialization(into.Expression, v, nil)
	}
	errors.Assertf("unknown for-in/of head %T", into)
	return nil
}

// forInIterator implements EnumerateObjectProperties: own enumerable
// string keys first, then those of each prototype, skipping shadowed and
// deleted keys.
type forInIterator struct {
	object  *Object
	visited map[String]bool
	keys    []PropertyKey
	started bool
}

func newForInIterator(o *Object) *forInIterator {
	return &forInIterator{object: o, visited: make(map[String]bool)}
}

func (it *forInIterator) next(a *Agent) (Value, bool, *Completion) {
	for it.object != nil {
		if !it.started {
			keys, c := it.object.OwnPropertyKeys(a)
			if c != nil {
				return nil, false, c
			}
			it.keys = keys
			it.started = true
		}
		for len(it.keys) > 0 {
			key, ok := it.keys[0].(String)
			it.keys = it.keys[1:]
			if !ok || it.visited[key] {
				continue
			}
			desc, c := it.object.GetOwnProperty(a, key)
			if c != nil {
				return nil, false, c
			}
			if desc == nil {
				continue
			}
			it.visited[key] = true
			if desc.Enumerable {
				return key, false, nil
			}
		}
		proto, c := it.object.GetPrototypeOf(a)
		if c != nil {
			return nil, false, c
		}
		it.object, it.started = proto, false
	}
	return nil, true, nil
}

// --- switch ---

func (a *Agent) evaluateSwitch(s *ast.SwitchStatement) Completion {
	discriminant, c := a.evaluate(s.Discriminant)
	if c != nil {
		return *c
	}
	decls := a.scopedDeclarations(s, func() []ast.Node { return parser.CaseBlockDeclarations(s) })
	oldEnv := a.lexicalEnvironment()
	if len(decls) > 0 {
		blockEnv := NewDeclarativeEnvironment(oldEnv)
		a.blockDeclarationInstantiation(decls, blockEnv)
		a.setLexicalEnvironment(blockEnv)
		defer a.setLexicalEnvironment(oldEnv)
	}
	return a.caseBlockEvaluation(s, discriminant)
}

// caseBlockEvaluation tests the non-default clauses in source order and
// falls through from the first match, or from the default clause when
// nothing matches.
func (a *Agent) caseBlockEvaluation(s *ast.SwitchStatement, discriminant Value) Completion {
	start := -1
	for i, clause := range s.Body {
		if clause.Test == nil {
			continue
		}
		test, c := a.evaluate(clause.Test)
		if c != nil {
			return *c
		}
		if IsStrictlyEqual(discriminant, test) {
			start = i
			break
		}
	}
	if start < 0 {
		start = s.Default
	}
	var v Value = Undefined
	if start < 0 {
		return NormalCompletion(v)
	}
	for _, clause := range s.Body[start:] {
		result := a.evaluateStatementList(clause.Consequent)
		if result.Value != nil {
			v = result.Value
		}
		if result.Type != Normal {
			return UpdateEmpty(result, v)
		}
	}
	return NormalCompletion(v)
}

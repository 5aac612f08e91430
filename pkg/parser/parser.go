// Package parser turns source text into syntax trees for the evaluator.
//
// Expressions and statements come from goja's ECMAScript parser. Module
// syntax, top-level await and `for await` are handled by a token-level
// prepass that rewrites them into text of the same length, so every node
// offset still points into the original source.
package parser

import (
	"fmt"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
	goja "github.com/dop251/goja/parser"
	"github.com/dop251/goja/token"
	"github.com/dop251/goja/unistring"

	"siskin/pkg/errors"
	"siskin/pkg/source"
)

// --- Debug Flag ---
const debugParser = false

func debugPrintf(format string, args ...interface{}) {
	if debugParser {
		fmt.Printf("[Parser Debug] "+format+"\n", args...)
	}
}

// --- End Debug Flag ---

const modulePrefix = "(async function(){"

// Program is a parsed script, module or eval body.
type Program struct {
	Source *source.SourceFile
	Goal   source.Goal
	Body   []ast.Statement
	Strict bool

	// Module is set for module goals.
	Module *ModuleSyntax
	// HasTopLevelAwait is set when a module body awaits outside any function.
	HasTopLevelAwait bool

	prefix       int
	awaitLoops   map[int]bool
	importIdents map[int]bool
}

// Offset maps a node index to a byte offset in the original source.
func (p *Program) Offset(idx file.Idx) int {
	return int(idx) - 1 - p.prefix
}

// Position returns the source position of a node.
func (p *Program) Position(n ast.Node) errors.Position {
	start := p.Offset(n.Idx0())
	end := p.Offset(n.Idx1())
	if start < 0 {
		start = 0
	}
	if end < start {
		end = start
	}
	return errors.PositionAt(p.Source, start, end)
}

// Text returns the original source text of a node.
func (p *Program) Text(n ast.Node) string {
	start, end := p.Offset(n.Idx0()), p.Offset(n.Idx1())
	content := p.Source.Content
	if start < 0 || end > len(content) || start > end {
		return ""
	}
	return content[start:end]
}

// IsAwaitLoop reports whether a for-of statement was written `for await`.
func (p *Program) IsAwaitLoop(s *ast.ForOfStatement) bool {
	return p.awaitLoops[p.Offset(s.For)]
}

// IsImportCall reports whether id stands for the `import` keyword of an
// import() call or import.meta.
func (p *Program) IsImportCall(id *ast.Identifier) bool {
	return id.Name == importPlaceholder && p.importIdents[p.Offset(id.Idx)]
}

// IsImportMeta reports whether e is `import.meta`.
func (p *Program) IsImportMeta(e ast.Expression) bool {
	dot, ok := e.(*ast.DotExpression)
	if !ok || dot.Identifier.Name != "meta" {
		return false
	}
	id, ok := dot.Left.(*ast.Identifier)
	return ok && p.IsImportCall(id)
}

// Options adjust early errors for code parsed on behalf of running code,
// such as direct eval.
type Options struct {
	Strict             bool
	AllowNewTarget     bool
	AllowSuperProperty bool
	AllowSuperCall     bool
	InClassField       bool
}

// ParseScript parses sf as a Script.
func ParseScript(sf *source.SourceFile) (*Program, error) {
	return ParseScriptWith(sf, Options{})
}

// ParseScriptWith parses sf as a Script using opts.
func ParseScriptWith(sf *source.SourceFile, opts Options) (*Program, error) {
	scanner := newModuleScanner(sf, false)
	if err := scanner.scan(); err != nil {
		return nil, err
	}
	body, err := parseGoja(sf, string(scanner.buf), 0)
	if err != nil {
		return nil, err
	}
	prog := &Program{
		Source:       sf,
		Goal:         source.GoalScript,
		Body:         body,
		awaitLoops:   scanner.awaitLoops,
		importIdents: scanner.importIdents,
	}
	prog.Strict = opts.Strict || HasUseStrict(body)
	c := &checker{prog: prog}
	c.statements(body, scope{
		strict:        prog.Strict,
		newTarget:     opts.AllowNewTarget,
		superProperty: opts.AllowSuperProperty,
		superCall:     opts.AllowSuperCall,
		classField:    opts.InClassField,
	}, true)
	if c.err != nil {
		return nil, c.err
	}
	debugPrintf("parsed script %s: %d statements", sf.DisplayPath(), len(body))
	return prog, nil
}

// ParseModule parses sf as a Module.
func ParseModule(sf *source.SourceFile) (*Program, error) {
	scanner := newModuleScanner(sf, true)
	if err := scanner.scan(); err != nil {
		return nil, err
	}
	wrapped := modulePrefix + string(scanner.buf) + "\n})"
	body, err := parseGoja(sf, wrapped, len(modulePrefix))
	if err != nil {
		return nil, err
	}
	fn := moduleFunction(body)
	if fn == nil {
		return nil, &errors.SyntaxError{Position: errors.PositionAt(sf, len(sf.Content), len(sf.Content)), Msg: "Unexpected end of input"}
	}
	prog := &Program{
		Source:       sf,
		Goal:         source.GoalModule,
		Body:         fn.Body.List,
		Strict:       true,
		Module:       &scanner.syntax,
		prefix:       len(modulePrefix),
		awaitLoops:   scanner.awaitLoops,
		importIdents: scanner.importIdents,
	}
	if err := scanner.bind(prog); err != nil {
		return nil, err
	}
	c := &checker{prog: prog}
	c.statements(prog.Body, scope{strict: true, async: true, moduleTop: true}, false)
	if c.err != nil {
		return nil, c.err
	}
	prog.HasTopLevelAwait = c.tla
	debugPrintf("parsed module %s: %d requests, tla=%v", sf.DisplayPath(), len(prog.Module.Requests), prog.HasTopLevelAwait)
	return prog, nil
}

func moduleFunction(body []ast.Statement) *ast.FunctionLiteral {
	if len(body) != 1 {
		return nil
	}
	es, ok := body[0].(*ast.ExpressionStatement)
	if !ok {
		return nil
	}
	fn, ok := es.Expression.(*ast.FunctionLiteral)
	if !ok || fn.Body == nil {
		return nil
	}
	return fn
}

// FunctionKind selects the syntax ParseDynamicFunction assembles.
type FunctionKind int

const (
	NormalFunction FunctionKind = iota
	GeneratorFunction
	AsyncFunction
	AsyncGeneratorFunction
)

func (k FunctionKind) keyword() string {
	switch k {
	case GeneratorFunction:
		return "function*"
	case AsyncFunction:
		return "async function"
	case AsyncGeneratorFunction:
		return "async function*"
	default:
		return "function"
	}
}

// ParseDynamicFunction parses the pieces given to the Function constructor
// family. The parameters and body must each parse on their own.
func ParseDynamicFunction(kind FunctionKind, params, body string) (*Program, *ast.FunctionLiteral, error) {
	head := "(" + kind.keyword() + " anonymous(" + params + "\n) {\n"
	text := head + body + "\n})"
	sf := source.NewSourceFile("anonymous", "", text)
	prog, err := ParseScript(sf)
	if err != nil {
		return nil, nil, err
	}
	fn := moduleFunction(prog.Body)
	if fn == nil || prog.Offset(fn.Body.LeftBrace) != len(head)-2 || prog.Offset(fn.Body.RightBrace) != len(text)-2 {
		return nil, nil, &errors.SyntaxError{Position: errors.PositionAt(sf, 0, 0), Msg: "Invalid function arguments"}
	}
	return prog, fn, nil
}

func parseGoja(sf *source.SourceFile, text string, prefix int) ([]ast.Statement, error) {
	prog, err := goja.ParseFile(nil, sf.DisplayPath(), text, 0, goja.WithDisableSourceMaps)
	if err != nil {
		return nil, convertError(sf, err, prefix)
	}
	return prog.Body, nil
}

func convertError(sf *source.SourceFile, err error, prefix int) error {
	var first *goja.Error
	switch e := err.(type) {
	case goja.ErrorList:
		if len(e) > 0 {
			first = e[0]
		}
	case *goja.Error:
		first = e
	}
	if first == nil {
		return &errors.SyntaxError{Msg: err.Error(), Cause: err}
	}
	col := first.Position.Column
	if first.Position.Line == 1 {
		col -= prefix
	}
	offset := sf.Offset(first.Position.Line, col)
	msg := first.Message
	if strings.HasPrefix(msg, "Unexpected token") || strings.HasPrefix(msg, "Unexpected identifier") {
		msg = strings.ReplaceAll(msg, importPlaceholder, "import")
		msg = strings.ReplaceAll(msg, defaultPlaceholder, "default")
	}
	return &errors.SyntaxError{Position: errors.PositionAt(sf, offset, offset+1), Msg: msg, Cause: err}
}

// scope is the syntactic context the checker walks with.
type scope struct {
	function      bool
	async         bool
	strict        bool
	moduleTop     bool
	newTarget     bool
	superProperty bool
	superCall     bool
	classField    bool
}

// checker applies the early errors goja does not know about.
type checker struct {
	prog *Program
	err  *errors.SyntaxError
	tla  bool
}

func (c *checker) fail(n ast.Node, format string, args ...any) {
	if c.err == nil {
		c.err = &errors.SyntaxError{Position: c.prog.Position(n), Msg: fmt.Sprintf(format, args...)}
	}
}

func (c *checker) failAt(idx file.Idx, format string, args ...any) {
	if c.err == nil {
		off := c.prog.Offset(idx)
		c.err = &errors.SyntaxError{Position: errors.PositionAt(c.prog.Source, off, off+1), Msg: fmt.Sprintf(format, args...)}
	}
}

// statements checks a statement list that forms its own scope.
func (c *checker) statements(list []ast.Statement, s scope, topLevel bool) {
	c.declarations(list, s, topLevel, nil)
	for _, stmt := range list {
		c.node(stmt, s)
	}
}

func (c *checker) declarations(list []ast.Statement, s scope, topLevel bool, params []unistring.String) {
	lexical := map[unistring.String]bool{}
	functions := map[unistring.String]bool{}
	for _, d := range LexicallyScopedDeclarations(list, topLevel) {
		_, isFunction := d.(*ast.FunctionDeclaration)
		for _, name := range BoundNames(d) {
			if lexical[name] && !(isFunction && functions[name] && !s.strict) {
				c.fail(d, "Identifier '%s' has already been declared", name)
				return
			}
			lexical[name] = true
			if isFunction {
				functions[name] = true
			}
			if name == "let" {
				c.fail(d, "let is disallowed as a lexically bound name")
				return
			}
		}
	}
	for _, name := range params {
		if lexical[name] {
			c.fail(list[0], "Identifier '%s' has already been declared", name)
			return
		}
	}
	for _, d := range VarScopedDeclarations(list, topLevel) {
		if _, ok := d.(*ast.FunctionDeclaration); ok {
			continue
		}
		for _, name := range BoundNames(d) {
			if lexical[name] && name != DefaultBindingName {
				c.fail(d, "Identifier '%s' has already been declared", name)
				return
			}
		}
	}
	if topLevel {
		for _, d := range VarScopedDeclarations(list, topLevel) {
			if fd, ok := d.(*ast.FunctionDeclaration); ok && lexical[fd.Function.Name.Name] {
				c.fail(d, "Identifier '%s' has already been declared", fd.Function.Name.Name)
				return
			}
		}
	}
}

func (c *checker) function(fn *ast.FunctionLiteral, s scope) {
	inner := scope{
		function:      true,
		async:         fn.Async,
		strict:        s.strict || (fn.Body != nil && HasUseStrict(fn.Body.List)),
		newTarget:     true,
		superProperty: s.superProperty,
		superCall:     s.superCall,
	}
	if inner.strict && !IsSimpleParameterList(fn.ParameterList) && fn.Body != nil && HasUseStrict(fn.Body.List) {
		c.fail(fn, "Illegal 'use strict' directive in function with non-simple parameter list")
		return
	}
	c.params(fn.ParameterList, inner)
	if fn.Body != nil {
		c.declarations(fn.Body.List, inner, true, BoundNames(fn.ParameterList))
		for _, stmt := range fn.Body.List {
			c.node(stmt, inner)
		}
	}
}

func (c *checker) params(params *ast.ParameterList, s scope) {
	if params == nil {
		return
	}
	if s.strict || !IsSimpleParameterList(params) {
		seen := map[unistring.String]bool{}
		for _, name := range BoundNames(params) {
			if seen[name] {
				c.fail(params, "Duplicate parameter name not allowed in this context")
				return
			}
			seen[name] = true
		}
	}
	c.node(params, s)
}

func (c *checker) class(cls *ast.ClassLiteral, s scope) {
	s.strict = true
	if cls.SuperClass != nil {
		c.node(cls.SuperClass, s)
	}
	for _, el := range cls.Body {
		switch el := el.(type) {
		case *ast.MethodDefinition:
			if el.Computed {
				c.node(el.Key, s)
			}
			inner := s
			inner.superProperty = true
			inner.superCall = cls.SuperClass != nil && isConstructor(el)
			c.function(el.Body, inner)
		case *ast.FieldDefinition:
			if el.Computed {
				c.node(el.Key, s)
			}
			if el.Initializer != nil {
				c.node(el.Initializer, scope{
					function:      true,
					strict:        true,
					newTarget:     true,
					superProperty: true,
					classField:    true,
				})
			}
		case *ast.ClassStaticBlock:
			inner := scope{function: true, strict: true, newTarget: true, superProperty: true, classField: true}
			if el.Block != nil {
				c.statements(el.Block.List, inner, true)
			}
		}
	}
}

func isConstructor(m *ast.MethodDefinition) bool {
	if m.Static || m.Computed || m.Kind != ast.PropertyKindMethod {
		return false
	}
	key, ok := m.Key.(*ast.StringLiteral)
	return ok && key.Value == "constructor"
}

func (c *checker) node(n ast.Node, s scope) {
	if c.err != nil || n == nil || isNilNode(n) {
		return
	}
	switch n := n.(type) {
	case *ast.FunctionLiteral:
		c.function(n, s)
		return
	case *ast.FunctionDeclaration:
		c.function(n.Function, s)
		return
	case *ast.ArrowFunctionLiteral:
		inner := s
		inner.function = true
		inner.async = n.Async
		inner.moduleTop = false
		if block, ok := n.Body.(*ast.BlockStatement); ok && HasUseStrict(block.List) {
			inner.strict = true
		}
		c.params(n.ParameterList, inner)
		if block, ok := n.Body.(*ast.BlockStatement); ok {
			c.declarations(block.List, inner, true, BoundNames(n.ParameterList))
			for _, stmt := range block.List {
				c.node(stmt, inner)
			}
		} else {
			c.node(n.Body, inner)
		}
		return
	case *ast.ClassLiteral:
		c.class(n, s)
		return
	case *ast.ClassDeclaration:
		c.class(n.Class, s)
		return
	case *ast.ObjectLiteral:
		for _, p := range n.Value {
			if keyed, ok := p.(*ast.PropertyKeyed); ok {
				if fn, ok := keyed.Value.(*ast.FunctionLiteral); ok && keyed.Kind != ast.PropertyKindValue {
					if keyed.Computed {
						c.node(keyed.Key, s)
					}
					inner := s
					inner.superProperty = true
					inner.superCall = false
					c.function(fn, inner)
					continue
				}
			}
			c.node(p, s)
		}
		return
	case *ast.BlockStatement:
		c.statements(n.List, s, false)
		return
	case *ast.SwitchStatement:
		c.node(n.Discriminant, s)
		var all []ast.Statement
		for _, cs := range n.Body {
			all = append(all, cs.Consequent...)
		}
		c.declarations(all, s, false, nil)
		for _, cs := range n.Body {
			c.node(cs, s)
		}
		return
	case *ast.AwaitExpression:
		if s.moduleTop {
			c.tla = true
		}
	case *ast.ForOfStatement:
		if c.prog.IsAwaitLoop(n) {
			switch {
			case s.moduleTop:
				c.tla = true
			case !s.async:
				c.failAt(n.For, "for await is only valid in async functions and the top level bodies of modules")
				return
			}
		}
	case *ast.ReturnStatement:
		if !s.function {
			c.fail(n, "Illegal return statement")
			return
		}
	case *ast.WithStatement:
		if s.strict {
			c.fail(n, "Strict mode code may not include a with statement")
			return
		}
	case *ast.UnaryExpression:
		if _, ok := n.Operand.(*ast.Identifier); ok && s.strict && n.Operator == token.DELETE {
			c.fail(n, "Delete of an unqualified identifier in strict mode.")
			return
		}
	case *ast.MetaProperty:
		if n.Meta != nil && n.Meta.Name == "new" && !s.newTarget {
			c.failAt(n.Meta.Idx, "new.target expression is not allowed here")
			return
		}
	case *ast.SuperExpression:
		if !s.superProperty {
			c.fail(n, "'super' keyword unexpected here")
			return
		}
	case *ast.CallExpression:
		if _, ok := n.Callee.(*ast.SuperExpression); ok {
			if !s.superCall {
				c.fail(n, "'super' keyword unexpected here")
				return
			}
			for _, arg := range n.ArgumentList {
				c.node(arg, s)
			}
			return
		}
	case *ast.Identifier:
		if s.classField && n.Name == "arguments" {
			c.fail(n, "'arguments' is not allowed in class field initializer or static initialization block")
			return
		}
	}
	for _, child := range children(n) {
		c.node(child, s)
	}
}

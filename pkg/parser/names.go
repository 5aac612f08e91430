package parser

import (
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/token"
	"github.com/dop251/goja/unistring"
)

// DefaultBindingName is the local binding used for anonymous default exports.
const DefaultBindingName unistring.String = "*default*"

// BoundNames returns the names bound by a binding target or declaration.
func BoundNames(node ast.Node) []unistring.String {
	var names []unistring.String
	collectBoundNames(node, &names)
	return names
}

func collectBoundNames(node ast.Node, names *[]unistring.String) {
	switch n := node.(type) {
	case nil:
	case *ast.Identifier:
		if n != nil {
			*names = append(*names, n.Name)
		}
	case *ast.Binding:
		collectBoundNames(n.Target, names)
	case *ast.AssignExpression:
		// default value inside a pattern
		collectBoundNames(n.Left, names)
	case *ast.ArrayPattern:
		for _, el := range n.Elements {
			if el != nil {
				collectBoundNames(el, names)
			}
		}
		if n.Rest != nil {
			collectBoundNames(n.Rest, names)
		}
	case *ast.ObjectPattern:
		for _, p := range n.Properties {
			switch p := p.(type) {
			case *ast.PropertyShort:
				*names = append(*names, p.Name.Name)
			case *ast.PropertyKeyed:
				collectBoundNames(p.Value, names)
			case *ast.SpreadElement:
				collectBoundNames(p.Expression, names)
			}
		}
		if n.Rest != nil {
			collectBoundNames(n.Rest, names)
		}
	case *ast.VariableStatement:
		for _, b := range n.List {
			collectBoundNames(b, names)
		}
	case *ast.LexicalDeclaration:
		for _, b := range n.List {
			collectBoundNames(b, names)
		}
	case *ast.FunctionDeclaration:
		if n.Function.Name != nil {
			*names = append(*names, n.Function.Name.Name)
		}
	case *ast.ClassDeclaration:
		if n.Class.Name != nil {
			*names = append(*names, n.Class.Name.Name)
		}
	case *ast.ParameterList:
		for _, b := range n.List {
			collectBoundNames(b, names)
		}
		if n.Rest != nil {
			collectBoundNames(n.Rest, names)
		}
	case *ast.ForDeclaration:
		collectBoundNames(n.Target, names)
	}
}

// IsConstantDeclaration reports whether a lexical declaration node is const.
func IsConstantDeclaration(node ast.Node) bool {
	if d, ok := node.(*ast.LexicalDeclaration); ok {
		return d.Token == token.CONST
	}
	return false
}

// VarScopedDeclarations returns the var-scoped declarations of a statement
// list: *ast.Binding nodes from var statements and for heads, plus
// *ast.FunctionDeclaration nodes when topLevel is set (function or script
// bodies, where function declarations are var-scoped).
func VarScopedDeclarations(list []ast.Statement, topLevel bool) []ast.Node {
	var out []ast.Node
	for _, s := range list {
		if topLevel {
			if fd := topLevelFunction(s); fd != nil {
				out = append(out, fd)
				continue
			}
		}
		collectVarDecls(s, &out)
	}
	return out
}

func topLevelFunction(s ast.Statement) *ast.FunctionDeclaration {
	for {
		switch n := s.(type) {
		case *ast.FunctionDeclaration:
			return n
		case *ast.LabelledStatement:
			s = n.Statement
		default:
			return nil
		}
	}
}

func collectVarDecls(s ast.Statement, out *[]ast.Node) {
	switch n := s.(type) {
	case nil:
	case *ast.VariableStatement:
		for _, b := range n.List {
			*out = append(*out, b)
		}
	case *ast.BlockStatement:
		if n == nil {
			return
		}
		for _, st := range n.List {
			collectVarDecls(st, out)
		}
	case *ast.IfStatement:
		collectVarDecls(n.Consequent, out)
		collectVarDecls(n.Alternate, out)
	case *ast.DoWhileStatement:
		collectVarDecls(n.Body, out)
	case *ast.WhileStatement:
		collectVarDecls(n.Body, out)
	case *ast.ForStatement:
		if init, ok := n.Initializer.(*ast.ForLoopInitializerVarDeclList); ok {
			for _, b := range init.List {
				*out = append(*out, b)
			}
		}
		collectVarDecls(n.Body, out)
	case *ast.ForInStatement:
		if into, ok := n.Into.(*ast.ForIntoVar); ok {
			*out = append(*out, into.Binding)
		}
		collectVarDecls(n.Body, out)
	case *ast.ForOfStatement:
		if into, ok := n.Into.(*ast.ForIntoVar); ok {
			*out = append(*out, into.Binding)
		}
		collectVarDecls(n.Body, out)
	case *ast.WithStatement:
		collectVarDecls(n.Body, out)
	case *ast.SwitchStatement:
		for _, c := range n.Body {
			for _, st := range c.Consequent {
				collectVarDecls(st, out)
			}
		}
	case *ast.LabelledStatement:
		collectVarDecls(n.Statement, out)
	case *ast.TryStatement:
		collectVarDecls(n.Body, out)
		if n.Catch != nil {
			collectVarDecls(n.Catch.Body, out)
		}
		if n.Finally != nil {
			collectVarDecls(n.Finally, out)
		}
	}
}

// VarDeclaredNames returns the names of VarScopedDeclarations, deduplicated
// in first-seen order.
func VarDeclaredNames(list []ast.Statement, topLevel bool) []unistring.String {
	seen := map[unistring.String]bool{}
	var names []unistring.String
	for _, d := range VarScopedDeclarations(list, topLevel) {
		for _, name := range BoundNames(d) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// LexicallyScopedDeclarations returns the let/const/class declarations of a
// statement list, plus function declarations unless topLevel is set.
func LexicallyScopedDeclarations(list []ast.Statement, topLevel bool) []ast.Node {
	var out []ast.Node
	for _, s := range list {
		switch n := s.(type) {
		case *ast.LexicalDeclaration, *ast.ClassDeclaration:
			out = append(out, n)
		case *ast.FunctionDeclaration:
			if !topLevel {
				out = append(out, n)
			}
		case *ast.LabelledStatement:
			if fd := topLevelFunction(n); fd != nil && !topLevel {
				out = append(out, fd)
			}
		}
	}
	return out
}

// CaseBlockDeclarations returns the lexically scoped declarations of all
// clauses of a switch statement.
func CaseBlockDeclarations(sw *ast.SwitchStatement) []ast.Node {
	var out []ast.Node
	for _, c := range sw.Body {
		out = append(out, LexicallyScopedDeclarations(c.Consequent, false)...)
	}
	return out
}

// LexicallyDeclaredNames returns the BoundNames of LexicallyScopedDeclarations.
func LexicallyDeclaredNames(list []ast.Statement, topLevel bool) []unistring.String {
	var names []unistring.String
	for _, d := range LexicallyScopedDeclarations(list, topLevel) {
		names = append(names, BoundNames(d)...)
	}
	return names
}

// IsSimpleParameterList reports whether every parameter is a plain
// identifier without default and there is no rest element.
func IsSimpleParameterList(params *ast.ParameterList) bool {
	if params == nil {
		return true
	}
	if params.Rest != nil {
		return false
	}
	for _, b := range params.List {
		if _, ok := b.Target.(*ast.Identifier); !ok || b.Initializer != nil {
			return false
		}
	}
	return true
}

// ContainsExpression reports whether any parameter has an initializer or a
// computed key.
func ContainsExpression(params *ast.ParameterList) bool {
	if params == nil {
		return false
	}
	found := false
	check := func(n ast.Node) bool {
		if found {
			return false
		}
		switch n := n.(type) {
		case *ast.Binding:
			if n.Initializer != nil {
				found = true
			}
		case *ast.AssignExpression:
			found = true
		case *ast.PropertyShort:
			if n.Initializer != nil {
				found = true
			}
		case *ast.PropertyKeyed:
			if n.Computed {
				found = true
			}
		}
		return !found
	}
	for _, b := range params.List {
		Inspect(b, check)
	}
	if params.Rest != nil {
		Inspect(params.Rest, check)
	}
	return found
}

// ExpectedArgumentCount is the "length" of a function with these parameters.
func ExpectedArgumentCount(params *ast.ParameterList) int {
	if params == nil {
		return 0
	}
	for i, b := range params.List {
		if b.Initializer != nil {
			return i
		}
	}
	return len(params.List)
}

// HasUseStrict reports whether a statement list begins with a "use strict"
// directive prologue entry.
func HasUseStrict(list []ast.Statement) bool {
	for _, s := range list {
		es, ok := s.(*ast.ExpressionStatement)
		if !ok {
			return false
		}
		lit, ok := es.Expression.(*ast.StringLiteral)
		if !ok {
			return false
		}
		// directives must be written without escapes
		if lit.Literal == `"use strict"` || lit.Literal == `'use strict'` {
			return true
		}
	}
	return false
}

// IsAnonymousFunctionDefinition reports whether e is a function, arrow or
// class expression without its own name.
func IsAnonymousFunctionDefinition(e ast.Expression) bool {
	switch e := e.(type) {
	case *ast.FunctionLiteral:
		return e.Name == nil
	case *ast.ArrowFunctionLiteral:
		return true
	case *ast.ClassLiteral:
		return e.Name == nil
	}
	return false
}

// ContainsArguments reports whether "arguments" is referenced inside node,
// looking through arrow functions but not ordinary functions.
func ContainsArguments(node ast.Node) bool {
	found := false
	Inspect(node, func(n ast.Node) bool {
		if found {
			return false
		}
		switch n := n.(type) {
		case *ast.Identifier:
			if n.Name == "arguments" {
				found = true
			}
		case *ast.FunctionLiteral:
			return n == node
		case *ast.ClassLiteral:
			return false
		}
		return true
	})
	return found
}

package parser

import "github.com/dop251/goja/ast"

// Inspect traverses the syntax tree rooted at node in depth-first order.
// f is called for every node; when it returns false the node's children
// are skipped.
func Inspect(node ast.Node, f func(ast.Node) bool) {
	if node == nil || isNilNode(node) || !f(node) {
		return
	}
	for _, child := range children(node) {
		Inspect(child, f)
	}
}

func isNilNode(n ast.Node) bool {
	switch n := n.(type) {
	case *ast.BlockStatement:
		return n == nil
	case *ast.Identifier:
		return n == nil
	case *ast.FunctionLiteral:
		return n == nil
	case *ast.ClassLiteral:
		return n == nil
	case *ast.CatchStatement:
		return n == nil
	case *ast.ParameterList:
		return n == nil
	case *ast.Binding:
		return n == nil
	}
	return false
}

type nodeList []ast.Node

func (l *nodeList) add(nodes ...ast.Node) {
	for _, n := range nodes {
		if n != nil && !isNilNode(n) {
			*l = append(*l, n)
		}
	}
}

func (l *nodeList) expr(e ast.Expression) {
	if e != nil {
		l.add(e)
	}
}

func (l *nodeList) stmt(s ast.Statement) {
	if s != nil {
		l.add(s)
	}
}

func children(node ast.Node) []ast.Node {
	var l nodeList
	switch n := node.(type) {
	// expressions
	case *ast.ArrayLiteral:
		for _, e := range n.Value {
			l.expr(e)
		}
	case *ast.ArrayPattern:
		for _, e := range n.Elements {
			l.expr(e)
		}
		l.expr(n.Rest)
	case *ast.AssignExpression:
		l.expr(n.Left)
		l.expr(n.Right)
	case *ast.AwaitExpression:
		l.expr(n.Argument)
	case *ast.YieldExpression:
		l.expr(n.Argument)
	case *ast.BinaryExpression:
		l.expr(n.Left)
		l.expr(n.Right)
	case *ast.BracketExpression:
		l.expr(n.Left)
		l.expr(n.Member)
	case *ast.CallExpression:
		l.expr(n.Callee)
		for _, e := range n.ArgumentList {
			l.expr(e)
		}
	case *ast.NewExpression:
		l.expr(n.Callee)
		for _, e := range n.ArgumentList {
			l.expr(e)
		}
	case *ast.ConditionalExpression:
		l.expr(n.Test)
		l.expr(n.Consequent)
		l.expr(n.Alternate)
	case *ast.DotExpression:
		l.expr(n.Left)
	case *ast.PrivateDotExpression:
		l.expr(n.Left)
	case *ast.OptionalChain:
		l.expr(n.Expression)
	case *ast.Optional:
		l.expr(n.Expression)
	case *ast.FunctionLiteral:
		if n.ParameterList != nil {
			l.add(n.ParameterList)
		}
		if n.Body != nil {
			l.add(n.Body)
		}
	case *ast.ArrowFunctionLiteral:
		if n.ParameterList != nil {
			l.add(n.ParameterList)
		}
		l.add(n.Body)
	case *ast.ExpressionBody:
		l.expr(n.Expression)
	case *ast.ParameterList:
		for _, b := range n.List {
			l.add(b)
		}
		l.expr(n.Rest)
	case *ast.Binding:
		l.expr(n.Target)
		l.expr(n.Initializer)
	case *ast.ClassLiteral:
		l.expr(n.SuperClass)
		for _, el := range n.Body {
			l.add(el)
		}
	case *ast.FieldDefinition:
		l.expr(n.Key)
		l.expr(n.Initializer)
	case *ast.MethodDefinition:
		l.expr(n.Key)
		if n.Body != nil {
			l.add(n.Body)
		}
	case *ast.ClassStaticBlock:
		if n.Block != nil {
			l.add(n.Block)
		}
	case *ast.ObjectLiteral:
		for _, p := range n.Value {
			l.expr(p)
		}
	case *ast.ObjectPattern:
		for _, p := range n.Properties {
			l.expr(p)
		}
		l.expr(n.Rest)
	case *ast.PropertyShort:
		l.add(&n.Name)
		l.expr(n.Initializer)
	case *ast.PropertyKeyed:
		l.expr(n.Key)
		l.expr(n.Value)
	case *ast.SpreadElement:
		l.expr(n.Expression)
	case *ast.SequenceExpression:
		for _, e := range n.Sequence {
			l.expr(e)
		}
	case *ast.TemplateLiteral:
		l.expr(n.Tag)
		for _, e := range n.Expressions {
			l.expr(e)
		}
	case *ast.UnaryExpression:
		l.expr(n.Operand)

	// statements
	case *ast.BlockStatement:
		for _, s := range n.List {
			l.stmt(s)
		}
	case *ast.CaseStatement:
		l.expr(n.Test)
		for _, s := range n.Consequent {
			l.stmt(s)
		}
	case *ast.CatchStatement:
		l.expr(n.Parameter)
		if n.Body != nil {
			l.add(n.Body)
		}
	case *ast.DoWhileStatement:
		l.stmt(n.Body)
		l.expr(n.Test)
	case *ast.ExpressionStatement:
		l.expr(n.Expression)
	case *ast.ForInStatement:
		l.add(n.Into)
		l.expr(n.Source)
		l.stmt(n.Body)
	case *ast.ForOfStatement:
		l.add(n.Into)
		l.expr(n.Source)
		l.stmt(n.Body)
	case *ast.ForStatement:
		if n.Initializer != nil {
			l.add(n.Initializer)
		}
		l.expr(n.Test)
		l.expr(n.Update)
		l.stmt(n.Body)
	case *ast.ForLoopInitializerExpression:
		l.expr(n.Expression)
	case *ast.ForLoopInitializerVarDeclList:
		for _, b := range n.List {
			l.add(b)
		}
	case *ast.ForLoopInitializerLexicalDecl:
		for _, b := range n.LexicalDeclaration.List {
			l.add(b)
		}
	case *ast.ForIntoVar:
		l.add(n.Binding)
	case *ast.ForDeclaration:
		l.expr(n.Target)
	case *ast.ForIntoExpression:
		l.expr(n.Expression)
	case *ast.IfStatement:
		l.expr(n.Test)
		l.stmt(n.Consequent)
		l.stmt(n.Alternate)
	case *ast.LabelledStatement:
		l.stmt(n.Statement)
	case *ast.ReturnStatement:
		l.expr(n.Argument)
	case *ast.SwitchStatement:
		l.expr(n.Discriminant)
		for _, c := range n.Body {
			l.add(c)
		}
	case *ast.ThrowStatement:
		l.expr(n.Argument)
	case *ast.TryStatement:
		if n.Body != nil {
			l.add(n.Body)
		}
		if n.Catch != nil {
			l.add(n.Catch)
		}
		if n.Finally != nil {
			l.add(n.Finally)
		}
	case *ast.VariableStatement:
		for _, b := range n.List {
			l.add(b)
		}
	case *ast.LexicalDeclaration:
		for _, b := range n.List {
			l.add(b)
		}
	case *ast.WhileStatement:
		l.expr(n.Test)
		l.stmt(n.Body)
	case *ast.WithStatement:
		l.expr(n.Object)
		l.stmt(n.Body)
	case *ast.FunctionDeclaration:
		if n.Function != nil {
			l.add(n.Function)
		}
	case *ast.ClassDeclaration:
		if n.Class != nil {
			l.add(n.Class)
		}
	}
	return l
}

package vm

import (
	"github.com/dop251/goja/ast"

	"siskin/pkg/errors"
	"siskin/pkg/parser"
)

// ExecutionContext tracks the evaluation of one script, module, function or
// realm scope. Statements that introduce scopes replace LexicalEnvironment
// and restore it when they finish; a callee never touches its caller's
// context.
type ExecutionContext struct {
	Function            *Object
	Realm               *Realm
	ScriptOrModule      Referrer
	LexicalEnvironment  Environment
	VariableEnvironment Environment
	PrivateEnvironment  *PrivateEnvironment

	// Generator is the generator object whose body runs in this context.
	Generator *Object

	// origin is the call context an async or generator body was copied
	// from; stack traces show only one of them.
	origin *ExecutionContext

	strict  bool
	program *parser.Program
	node    ast.Node // statement being evaluated
}

// Strict reports whether the context runs strict mode code.
func (ctx *ExecutionContext) Strict() bool { return ctx.strict }

// Position returns the source position of the statement being evaluated,
// if known.
func (ctx *ExecutionContext) Position() (errors.Position, bool) {
	if ctx.program == nil || ctx.node == nil {
		return errors.Position{}, false
	}
	return ctx.program.Position(ctx.node), true
}

func (ctx *ExecutionContext) Mark(visit Visitor) {
	if ctx.Function != nil {
		visit(ctx.Function)
	}
	if ctx.Realm != nil {
		visit(ctx.Realm)
	}
	if ctx.ScriptOrModule != nil {
		visit(ctx.ScriptOrModule)
	}
	if ctx.LexicalEnvironment != nil {
		visit(ctx.LexicalEnvironment)
	}
	if ctx.VariableEnvironment != nil {
		visit(ctx.VariableEnvironment)
	}
	if ctx.PrivateEnvironment != nil {
		visit(ctx.PrivateEnvironment)
	}
	if ctx.Generator != nil {
		visit(ctx.Generator)
	}
}

// --- running context helpers used by the evaluator ---

func (a *Agent) lexicalEnvironment() Environment {
	return a.RunningContext().LexicalEnvironment
}

// setLexicalEnvironment swaps the running lexical environment and returns
// the previous one for restoring.
func (a *Agent) setLexicalEnvironment(env Environment) Environment {
	ctx := a.RunningContext()
	old := ctx.LexicalEnvironment
	ctx.LexicalEnvironment = env
	return old
}

func (a *Agent) isStrict() bool {
	return a.RunningContext().strict
}

func (a *Agent) program() *parser.Program {
	return a.RunningContext().program
}

package parser

import (
	"reflect"
	"testing"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/unistring"

	"siskin/pkg/source"
)

func parseBody(t *testing.T, src string) []ast.Statement {
	t.Helper()
	prog, err := ParseScript(source.NewEvalSource(src))
	if err != nil {
		t.Fatalf("ParseScript(%q): %v", src, err)
	}
	return prog.Body
}

func names(list ...string) []unistring.String {
	out := make([]unistring.String, len(list))
	for i, s := range list {
		out[i] = unistring.String(s)
	}
	return out
}

func TestVarDeclaredNames(t *testing.T) {
	body := parseBody(t, `
var a = 1, [b, {c, d: e = 2, ...f}] = g;
if (x) { var h; } else { for (var i of j) { var k; } }
try { var l; } catch { var m; } finally { var n; }
function fn() { var inner; }
let notVar;
label: var o;
`)
	got := VarDeclaredNames(body, true)
	want := names("a", "b", "c", "e", "f", "h", "i", "k", "l", "m", "n", "fn", "o")
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	lexical := LexicallyDeclaredNames(body, true)
	if !reflect.DeepEqual(lexical, names("notVar")) {
		t.Errorf("Expected lexical [notVar], got %v", lexical)
	}
	if l := LexicallyDeclaredNames(body, false); !reflect.DeepEqual(l, names("fn", "notVar")) {
		t.Errorf("Expected nested lexical [fn notVar], got %v", l)
	}
}

func TestParameterHelpers(t *testing.T) {
	tests := []struct {
		src      string
		simple   bool
		hasExpr  bool
		expected int
	}{
		{"(function (a, b) {})", true, false, 2},
		{"(function (a, b = 1, c) {})", false, true, 1},
		{"(function ({x}, ...rest) {})", false, false, 1},
		{"(function ([x = f()]) {})", false, true, 1},
		{"(function ({[k]: v}) {})", false, true, 1},
	}
	for _, tt := range tests {
		body := parseBody(t, tt.src)
		fn := body[0].(*ast.ExpressionStatement).Expression.(*ast.FunctionLiteral)
		if got := IsSimpleParameterList(fn.ParameterList); got != tt.simple {
			t.Errorf("%s: expected simple=%v, got %v", tt.src, tt.simple, got)
		}
		if got := ContainsExpression(fn.ParameterList); got != tt.hasExpr {
			t.Errorf("%s: expected ContainsExpression=%v, got %v", tt.src, tt.hasExpr, got)
		}
		if got := ExpectedArgumentCount(fn.ParameterList); got != tt.expected {
			t.Errorf("%s: expected length %d, got %d", tt.src, tt.expected, got)
		}
	}
}

func TestContainsArguments(t *testing.T) {
	body := parseBody(t, "(() => arguments); (function () { return arguments; }); (() => 1)")
	get := func(i int) ast.Node { return body[i].(*ast.ExpressionStatement).Expression }
	if !ContainsArguments(get(0)) {
		t.Errorf("Expected arrow to see arguments")
	}
	fn := get(1).(*ast.FunctionLiteral)
	if !ContainsArguments(fn) {
		t.Errorf("Expected function body to reference arguments")
	}
	if ContainsArguments(get(2)) {
		t.Errorf("Expected no arguments reference")
	}
}

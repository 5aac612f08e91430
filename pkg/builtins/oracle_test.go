package builtins

import (
	"testing"

	"github.com/dop251/goja"

	"siskin/pkg/vm"
)

// TestAgainstGoja checks that String(expr) matches goja for expressions
// whose result both engines agree on.
func TestAgainstGoja(t *testing.T) {
	exprs := []string{
		"[3, 1, 2].sort()",
		"'Hello, World'.split(', ').reverse().join(' ')",
		"(0.1 + 0.2).toString()",
		"(1e21).toString()",
		"(123.456).toFixed(1)",
		"(0.000001234).toPrecision(2)",
		"(1234.5678).toExponential(3)",
		"(-255).toString(2)",
		"parseInt('  -12e3')",
		"parseFloat('.5e-1x')",
		"Math.max() + ',' + Math.min()",
		"Math.round(2.5) + Math.round(-2.5)",
		"JSON.stringify({ b: [1, 'two', null, true], a: { c: 1.5 } })",
		"JSON.stringify(JSON.parse('[1, {\"x\": [2]}]'))",
		"Object.keys({ z: 1, 10: 2, 2: 3, a: 4 })",
		"'abcdef'.slice(-3, -1) + 'abcdef'.substring(4, 1)",
		"'  trim  '.trim() + '|' + 'x'.padEnd(3, 'ab')",
		"'aBc'.toUpperCase() + 'ÀÉ'.toLowerCase()",
		"'a-b_c'.replace(/[-_]/g, ' ')",
		"/(\\d+)-(\\d+)/.exec('10-20').slice(1)",
		"'x'.repeat(3).lastIndexOf('x')",
		"[1, [2, [3]]].toString()",
		"[1, 2, 3, 4, 5].slice(1, -1).indexOf(4)",
		"[5, 1, 10].sort((a, b) => a - b)",
		"Array.from({ length: 3 }, (_, i) => i * i)",
		"typeof Symbol.iterator + typeof null + typeof (() => 1)",
		"encodeURI('http://x.y/a b?c=d&e=ü')",
		"decodeURIComponent('%E2%82%AC%20')",
		"String([NaN, Infinity, -0, 1 / 3])",
		"new Map([[1, 'a'], [2, 'b']]).size + new Set([1, 2, 2]).size",
		"Number('0x10') + Number('  12  ') + Number('')",
		"isNaN(Number('12px'))",
		"(function () { return typeof this })()",
		"[...'abc'].map(c => c.charCodeAt(0))",
	}

	r, _ := newTestRealm(t)
	for _, expr := range exprs {
		src := "String(" + expr + ")"
		want, err := goja.New().RunString(src)
		if err != nil {
			t.Fatalf("goja failed on %s: %v", expr, err)
		}
		c := r.EvaluateScript(src, vm.ScriptOptions{Specifier: "oracle.js"})
		if c.Type == vm.Throw {
			t.Errorf("%s: threw %s", expr, vm.Inspect(c.Value))
			continue
		}
		if got := vm.Inspect(c.ValueOrUndefined()); got != want.String() {
			t.Errorf("%s: expected %q, got %q", expr, want.String(), got)
		}
	}
}

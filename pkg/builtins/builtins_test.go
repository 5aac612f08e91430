package builtins

import (
	"bytes"
	"strings"
	"testing"

	"siskin/pkg/vm"
)

var allFeatures = []string{vm.FeatureArrayGrouping, vm.FeaturePromiseWithResolvers, vm.FeatureJSONModules}

func newTestRealm(t *testing.T) (*vm.Realm, *bytes.Buffer) {
	t.Helper()
	return newRealmWithFeatures(t, allFeatures)
}

func newRealmWithFeatures(t *testing.T, features []string) (*vm.Realm, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	a := vm.NewAgent(vm.AgentOptions{
		Features:          features,
		RealmInitializers: Standard(Options{Stdout: &out, Stderr: &out}),
	})
	r, err := vm.NewRealm(a, nil)
	if err != nil {
		t.Fatalf("Failed to create realm: %v", err)
	}
	t.Cleanup(a.Close)
	return r, &out
}

// evaluate runs src, drains the job queue and renders the completion value.
func evaluate(t *testing.T, r *vm.Realm, src string) (string, bool) {
	t.Helper()
	c := r.EvaluateScript(src, vm.ScriptOptions{Specifier: "test.js"})
	r.Agent().RunJobs()
	if c.Type == vm.Throw {
		return vm.Inspect(c.Value), false
	}
	return vm.Inspect(c.ValueOrUndefined()), true
}

func TestBuiltins(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected string
	}{
		// Object
		{"keys", "Object.keys({ b: 1, a: 2, 1: 3 }).join()", "1,b,a"},
		{"entries", "JSON.stringify(Object.entries({ x: 1 }))", `[["x",1]]`},
		{"assign", "Object.assign({ a: 1 }, { b: 2 }, null).b", "2"},
		{"freeze", "'use strict'; const o = Object.freeze({ a: 1 }); try { o.a = 2 } catch (e) { e.name }", "TypeError"},
		{"isFrozen", "Object.isFrozen(Object.freeze({}))", "true"},
		{"create", "Object.getPrototypeOf(Object.create(null))", "null"},
		{"defineProperty", "const o = {}; Object.defineProperty(o, 'x', { get() { return 7 } }); o.x", "7"},
		{"fromEntries", "Object.fromEntries(new Map([['k', 'v']])).k", "v"},
		{"groupBy", "JSON.stringify(Object.groupBy([1, 2, 3], n => n % 2 ? 'odd' : 'even'))", `{"odd":[1,3],"even":[2]}`},

		// Function
		{"bind", "function f(a, b) { return this.x + a + b } f.bind({ x: 1 }, 2)(3)", "6"},
		{"bound name", "(function foo() {}).bind().name", "bound foo"},
		{"apply", "Math.max.apply(null, [1, 5, 3])", "5"},

		// Array
		{"map filter", "[1, 2, 3, 4].map(x => x * 2).filter(x => x > 4).join()", "6,8"},
		{"reduce", "[1, 2, 3].reduce((a, b) => a + b, 10)", "16"},
		{"sort stable", "[{ k: 1, v: 'a' }, { k: 0, v: 'b' }, { k: 1, v: 'c' }].sort((x, y) => x.k - y.k).map(o => o.v).join('')", "bac"},
		{"default sort", "[10, 9, 1, 100].sort().join()", "1,10,100,9"},
		{"flat", "[1, [2, [3, [4]]]].flat(2).length", "4"},
		{"at", "[1, 2, 3].at(-1)", "3"},
		{"includes NaN", "[NaN].includes(NaN)", "true"},
		{"from iterable", "Array.from(new Set([1, 1, 2])).length", "2"},
		{"toSorted", "const a = [3, 1, 2]; a.toSorted().join() + '|' + a.join()", "1,2,3|3,1,2"},
		{"array iterator", "[...['a', 'b'].entries()].join(';')", "0,a;1,b"},

		// String
		{"padStart", "'5'.padStart(3, '0')", "005"},
		{"replaceAll", "'a-b-c'.replaceAll('-', '+')", "a+b+c"},
		{"split", "'a,b,,c'.split(',').length", "4"},
		{"normalize", "'\\u0041\\u030A'.normalize('NFC') === '\\u00C5'", "true"},
		{"localeCompare", "['b', 'a', 'C'].sort((x, y) => x.localeCompare(y)).join('')", "abC"},
		{"codePointAt", "'😀'.codePointAt(0)", "128512"},
		{"string iterator", "[...'a😀b'].length", "3"},
		{"raw", "String.raw`a\\n${1}`", "a\\n1"},

		// Number, Boolean, BigInt, Symbol, Math
		{"toFixed", "(1.005).toFixed(2)", "1.00"},
		{"toString radix", "(255).toString(16)", "ff"},
		{"toPrecision", "(123.456).toPrecision(4)", "123.5"},
		{"isInteger", "Number.isInteger(5.0) && !Number.isInteger(5.5)", "true"},
		{"bigint", "(2n ** 64n).toString()", "18446744073709551616"},
		{"bigint asIntN", "BigInt.asIntN(8, 255n)", "-1n"},
		{"symbol description", "Symbol('s').description", "s"},
		{"symbol for", "Symbol.for('k') === Symbol.for('k')", "true"},
		{"math round", "Math.round(-0.5)", "-0"},
		{"math hypot", "Math.hypot(3, 4)", "5"},
		{"boolean", "new Boolean(false) ? 'truthy' : 'falsy'", "truthy"},

		// JSON
		{"stringify indent", "JSON.stringify({ a: [1] }, null, 2)", "{\n  \"a\": [\n    1\n  ]\n}"},
		{"stringify toJSON", "JSON.stringify({ toJSON() { return 'x' } })", `"x"`},
		{"parse reviver", "JSON.parse('{\"a\":1,\"b\":2}', (k, v) => k === 'a' ? undefined : v).a", "undefined"},
		{"parse error", "try { JSON.parse('{') } catch (e) { e.name }", "SyntaxError"},

		// RegExp
		{"exec groups", "/(?<y>\\d{4})-(?<m>\\d{2})/.exec('2024-05').groups.m", "05"},
		{"replace fn", "'abc'.replace(/b/, m => m.toUpperCase())", "aBc"},
		{"global match", "'a1b22c333'.match(/\\d+/g).join()", "1,22,333"},
		{"ignoreCase multiline", "/^b/im.test('a\\nB')", "true"},
		{"sticky", "const re = /a/y; re.test('ba')", "false"},
		{"matchAll", "[...'x1y2'.matchAll(/\\d/g)].map(m => m.index).join()", "1,3"},

		// Collections and weak references
		{"map order", "const m = new Map([[2, 'b'], [1, 'a']]); m.delete(2); m.set(2, 'c'); [...m.keys()].join()", "1,2"},
		{"map -0", "new Map([[-0, 'z']]).get(0)", "z"},
		{"set size", "new Set('hello').size", "4"},
		{"map groupBy", "Map.groupBy([1, 2, 3], n => n > 1).get(true).length", "2"},
		{"weakmap", "const k = {}; const w = new WeakMap([[k, 1]]); w.has(k) && !w.has({})", "true"},
		{"weakref deref", "const o = {}; new WeakRef(o).deref() === o", "true"},

		// Promise
		{"promise then", "let r; Promise.resolve(1).then(v => { r = v + 1 }); r", "undefined"},
		{"withResolvers", "typeof Promise.withResolvers().resolve", "function"},

		// Reflect
		{"ownKeys", "Reflect.ownKeys({ a: 1, [Symbol.iterator]: 0 }).length", "2"},
		{"construct", "Reflect.construct(Array, [3]).length", "3"},

		// Globals
		{"parseInt hex", "parseInt('0x1f')", "31"},
		{"parseFloat prefix", "parseFloat('3.14abc')", "3.14"},
		{"isNaN", "isNaN('abc') && !isFinite(Infinity)", "true"},
		{"encodeURIComponent", "encodeURIComponent('a b&c/ü')", "a%20b%26c%2F%C3%BC"},
		{"decodeURI reserved", "decodeURI('%2F%20')", "%2F "},
		{"globalThis", "globalThis.globalThis === globalThis", "true"},
		{"eval", "var ev = 1; eval('ev + 1')", "2"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r, _ := newTestRealm(t)
			got, ok := evaluate(t, r, test.src)
			if !ok {
				t.Fatalf("Expected %q to complete normally, it threw %s", test.src, got)
			}
			if got != test.expected {
				t.Errorf("Expected %s, got %s", test.expected, got)
			}
		})
	}
}

func TestBuiltinErrors(t *testing.T) {
	tests := []struct {
		src      string
		expected string
	}{
		{"null.x", "TypeError"},
		{"new Map([1])", "TypeError"},
		{"'abc'.repeat(-1)", "RangeError"},
		{"(1).toFixed(101)", "RangeError"},
		{"BigInt(1.5)", "RangeError"},
		{"1n + 1", "TypeError"},
		{"decodeURIComponent('%')", "URIError"},
		{"new RegExp('(')", "SyntaxError"},
		{"Symbol() + ''", "TypeError"},
		{"JSON.stringify(1n)", "TypeError"},
		{"const a = {}; a.self = a; JSON.stringify(a)", "TypeError"},
		{"performance.measure('m', 'no-such-mark')", "SyntaxError"},
	}

	r, _ := newTestRealm(t)
	for _, test := range tests {
		got, ok := evaluate(t, r, test.src)
		if ok {
			t.Errorf("Expected %q to throw, got %s", test.src, got)
			continue
		}
		if !strings.Contains(got, test.expected) {
			t.Errorf("Expected %q to throw a %s, got %s", test.src, test.expected, got)
		}
	}
}

func TestConsole(t *testing.T) {
	r, out := newTestRealm(t)
	src := `
console.log("plain", 1, "two", [1, "x"], { a: { b: { c: { d: 1 } } } });
console.log("%s is %i years", "Bob", 42.9, "extra");
console.error("to stderr");
console.group("group");
console.info("nested");
console.groupEnd();
console.count(); console.count();
console.log(new Map([[1, 2]]), new Set(["s"]));
`
	if got, ok := evaluate(t, r, src); !ok {
		t.Fatalf("Console script threw %s", got)
	}
	expected := []string{
		"plain 1 two [ 1, 'x' ] { a: { b: { c: [Object] } } }",
		"Bob is 42 years extra",
		"to stderr",
		"group",
		"  nested",
		"default: 1",
		"default: 2",
		"Map(1) { 1 => 2 } Set(1) { 's' }",
	}
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != len(expected) {
		t.Fatalf("Expected %d lines, got %d:\n%s", len(expected), len(lines), out.String())
	}
	for i := range expected {
		if lines[i] != expected[i] {
			t.Errorf("Line %d: expected %q, got %q", i+1, expected[i], lines[i])
		}
	}
}

func TestFeatureGatedBuiltins(t *testing.T) {
	r, _ := newRealmWithFeatures(t, nil)
	got, _ := evaluate(t, r, "[typeof Object.groupBy, typeof Map.groupBy, typeof Promise.withResolvers].join()")
	if got != "undefined,undefined,undefined" {
		t.Errorf("Expected gated builtins to be absent, got %s", got)
	}
}

func TestPerformance(t *testing.T) {
	r, _ := newTestRealm(t)
	tests := []struct {
		src      string
		expected string
	}{
		{"typeof performance.now()", "number"},
		{"performance.now() >= 0 && performance.timeOrigin > 0", "true"},
		{"performance.mark('a').entryType", "mark"},
		{"performance.mark('b'); performance.measure('ab', 'a', 'b').duration >= 0", "true"},
		{"performance.measure('explicit', 10, 25).duration", "15"},
		{"performance.getEntriesByType('mark').map(e => e.name).join()", "a,b"},
		{"performance.getEntriesByName('ab')[0].entryType", "measure"},
		{"performance.getEntries().length", "4"},
		{"performance.clearMarks('a'); performance.getEntriesByType('mark').length", "1"},
		{"performance.clearMeasures(); performance.getEntries().length", "1"},
		{"Object.prototype.toString.call(performance)", "[object Performance]"},
	}
	for _, test := range tests {
		got, ok := evaluate(t, r, test.src)
		if !ok {
			t.Errorf("%s: threw %s", test.src, got)
			continue
		}
		if got != test.expected {
			t.Errorf("%s: expected %s, got %s", test.src, test.expected, got)
		}
	}
}

package vm

import (
	"testing"
)

func TestScriptAddition(t *testing.T) {
	_, r := newTestRealm(t, AgentOptions{})
	c := evalScript(t, r, "1 + 1")
	if c.Type != Normal {
		t.Fatalf("Expected normal completion, got %s", c)
	}
	expectSame(t, "1 + 1", c.Value, Number(2))
}

func TestScriptThrowTypeError(t *testing.T) {
	_, r := newTestRealm(t, AgentOptions{})
	c := evalScript(t, r, "throw new TypeError('x')")
	if c.Type != Throw {
		t.Fatalf("Expected throw completion, got %s", c)
	}
	expectSame(t, "name", getProp(t, r, c.Value, "name"), String("TypeError"))
	expectSame(t, "message", getProp(t, r, c.Value, "message"), String("x"))
}

func TestScriptSyntaxError(t *testing.T) {
	_, r := newTestRealm(t, AgentOptions{})
	c := evalScript(t, r, "var = ;")
	if c.Type != Throw {
		t.Fatalf("Expected throw completion, got %s", c)
	}
	expectSame(t, "name", getProp(t, r, c.Value, "name"), String("SyntaxError"))
}

func TestAbruptPropagation(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantType CompletionType
		want     Value
	}{
		{"return from try", "(function(){ try { return 1 } finally { 2 } })()", Normal, Number(1)},
		{"finally overrides return", "(function(){ try { return 1 } finally { return 2 } })()", Normal, Number(2)},
		{"caught throw", "try { throw 1 } catch (e) { e + 1 }", Normal, Number(2)},
		{"throw crosses calls", "function f() { throw new RangeError('r') } function g() { f(); return 'after' } try { g() } catch (e) { e.name }", Normal, String("RangeError")},
		{"uncaught throw", "function f() { throw 5 } f(); 'unreached'", Throw, Number(5)},
		{"labelled continue and break", "var r = ''; outer: for (var i = 0; i < 3; i++) { for (var j = 0; j < 3; j++) { if (j == 1) continue outer; if (i == 2) break outer; r += i + '' + j } } r", Normal, String("0010")},
		{"throw from finally replaces return", "(function(){ try { return 1 } finally { throw 3 } })()", Throw, Number(3)},
		{"break out of switch", "var s = 0; switch (2) { case 1: s = 1; case 2: s += 2; case 3: s += 3; break; case 4: s = 4 } s", Normal, Number(5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, r := newTestRealm(t, AgentOptions{})
			c := evalScript(t, r, tt.src)
			if c.Type != tt.wantType {
				t.Fatalf("Expected %s completion, got %s", tt.wantType, c)
			}
			expectSame(t, tt.name, c.ValueOrUndefined(), tt.want)
		})
	}
}

func TestEnvironmentShadowingAndDelete(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want Value
	}{
		{"block shadows var", "var x = 1; { let x = 2; } x", Number(1)},
		{"function shadows global", "var x = 1; function f() { var x = 2; return x } f() + x", Number(3)},
		{"nested blocks", "let y = 1; { let y = 2; { let y = 3; } } y", Number(1)},
		{"closure sees outer", "function mk() { var n = 0; return function() { return ++n } } var inc = mk(); inc(); inc()", Number(2)},
		{"delete global property", "globalThis.z = 1; delete z; typeof z", String("undefined")},
		{"var is not deletable", "var w = 1; delete w", False},
		{"temporal dead zone", "try { t; let t = 1 } catch (e) { e.name }", String("ReferenceError")},
		{"strict unresolvable assignment", "(function(){ 'use strict'; try { undeclared = 1 } catch (e) { return e instanceof ReferenceError } })()", True},
		{"with statement", "var o = {p: 1}; with (o) { p = 2 } o.p", Number(2)},
		{"const assignment", "const k = 1; try { k = 2 } catch (e) { e.name }", String("TypeError")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, r := newTestRealm(t, AgentOptions{})
			expectSame(t, tt.name, mustEval(t, r, tt.src), tt.want)
		})
	}
}

func TestEval(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want Value
	}{
		{"direct eval sees globals", "var e1 = 1; eval('e1 + 1')", Number(2)},
		{"direct eval sees locals", "(function(){ var l = 5; return eval('l * 2') })()", Number(10)},
		{"indirect eval is global", "var g = 'global'; (function(){ var g = 'local'; return (0, eval)('g') })()", String("global")},
		{"sloppy eval declares var", "eval('var leaked = 3'); leaked", Number(3)},
		{"strict eval keeps vars", "'use strict'; eval('var kept = 1'); typeof kept", String("undefined")},
		{"eval of non-string", "eval(42)", Number(42)},
		{"Function constructor", "new Function('a', 'b', 'return a + b')(2, 3)", Number(5)},
		{"sloppy dynamic function this", "Function('return this')() === globalThis", True},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, r := newTestRealm(t, AgentOptions{})
			expectSame(t, tt.name, mustEval(t, r, tt.src), tt.want)
		})
	}
}

func TestGlobalRedeclaration(t *testing.T) {
	_, r := newTestRealm(t, AgentOptions{})
	mustEval(t, r, "let once = 1")
	c := evalScript(t, r, "var once = 2")
	if c.Type != Throw {
		t.Fatalf("Expected redeclaration to throw, got %s", c)
	}
	expectSame(t, "name", getProp(t, r, c.Value, "name"), String("SyntaxError"))
	expectSame(t, "binding unchanged", mustEval(t, r, "once"), Number(1))
}

func TestGenerators(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want Value
	}{
		{"next passes values", "function* g() { var x = yield 1; yield x * 2 } var it = g(); it.next(); it.next(21).value", Number(42)},
		{"delegation", "function* inner() { yield 1; yield 2 } function* outer() { yield* inner(); yield 3 } var s = 0; for (var v of outer()) s += v; s", Number(6)},
		{"return runs finally", "var log = ''; function* g() { try { yield 1 } finally { log += 'f' } } var it = g(); it.next(); it.return(7).value + log", String("7f")},
		{"done after completion", "function* g() { return 4 } var it = g(); var r1 = it.next(); var r2 = it.next(); r1.value + ':' + r1.done + ':' + r2.done", String("4:true:true")},
		{"spread", "function* g() { yield 1; yield 2; yield 3 } var a = [...g()]; a.length", Number(3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, r := newTestRealm(t, AgentOptions{})
			expectSame(t, tt.name, mustEval(t, r, tt.src), tt.want)
		})
	}
}

func TestClasses(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want Value
	}{
		{"fields and inheritance", "class A { #x = 1; static s = 2; get x() { return this.#x } } class B extends A { constructor() { super(); this.y = 3 } } var b = new B(); b.x + b.y + A.s", Number(6)},
		{"constructor property", "class K {} K.prototype.constructor === K", True},
		{"private methods", "class C { #secret() { return 'ok' } reveal() { return this.#secret() } } new C().reveal()", String("ok")},
		{"private in", "class D { #p; static has(o) { return #p in o } } D.has(new D()) + ':' + D.has({})", String("true:false")},
		{"static block", "class E { static v; static { E.v = 'init' } } E.v", String("init")},
		{"super property", "class P { m() { return 'p' } } class Q extends P { m() { return super.m() + 'q' } } new Q().m()", String("pq")},
		{"class constructor needs new", "class F {} try { F() } catch (e) { e.name }", String("TypeError")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, r := newTestRealm(t, AgentOptions{})
			expectSame(t, tt.name, mustEval(t, r, tt.src), tt.want)
		})
	}
}

func TestAsyncFunctionThrowRejects(t *testing.T) {
	_, r := newTestRealm(t, AgentOptions{})
	c := r.EvaluateScript("async function f() { throw new Error('boom') } f()", ScriptOptions{})
	if c.Type != Normal {
		t.Fatalf("Expected normal completion, got %s", c)
	}
	p, ok := c.Value.(*Object)
	if !ok || !IsPromise(p) {
		t.Fatalf("Expected a promise, got %s", Inspect(c.Value))
	}
	data := p.Internal.(*PromiseData)
	if data.State != PromiseRejected {
		t.Fatalf("Expected a rejected promise, got %s", data.State)
	}
	expectSame(t, "message", getProp(t, r, data.Result, "message"), String("boom"))
}

func TestAwaitResumesInJob(t *testing.T) {
	_, r := newTestRealm(t, AgentOptions{})
	mustEval(t, r, "var out = 'pending'; (async function(){ out = await Promise.resolve(4) + 1 })()")
	expectSame(t, "out", mustEval(t, r, "out"), Number(5))
}

func TestDebuggerHookKeepsCompletionValue(t *testing.T) {
	var pauses []DebuggerInfo
	_, r := newTestRealm(t, AgentOptions{
		OnDebugger: func(info DebuggerInfo) DebuggerDirective {
			pauses = append(pauses, info)
			if len(pauses) == 1 {
				return DebuggerStep
			}
			return DebuggerContinue
		},
	})
	expectSame(t, "result", mustEval(t, r, "var x = 1; debugger; x + 1"), Number(2))
	if len(pauses) != 2 {
		t.Fatalf("Expected 2 pauses, got %d", len(pauses))
	}
	if pauses[0].Reason != PauseDebuggerStatement {
		t.Errorf("Expected first pause at the debugger statement, got %s", pauses[0].Reason)
	}
	if pauses[1].Reason != PauseStep {
		t.Errorf("Expected second pause to be a step, got %s", pauses[1].Reason)
	}
}

func TestDebuggerHookPanicBecomesThrow(t *testing.T) {
	_, r := newTestRealm(t, AgentOptions{
		OnDebugger: func(info DebuggerInfo) DebuggerDirective {
			panic("host debugger crashed")
		},
	})
	c := evalScript(t, r, "debugger; 1")
	if c.Type != Throw {
		t.Fatalf("Expected throw completion, got %s", c)
	}
}

func TestScopePopsOnPanic(t *testing.T) {
	a, r := newTestRealm(t, AgentOptions{})
	before := a.StackDepth()
	func() {
		defer func() {
			if recover() == nil {
				t.Errorf("Expected the panic to propagate")
			}
		}()
		r.Scope(func() {
			r.Scope(func() {
				panic("host failure")
			})
		})
	}()
	if a.StackDepth() != before {
		t.Errorf("Expected stack depth %d, got %d", before, a.StackDepth())
	}
	expectSame(t, "realm still usable", mustEval(t, r, "2 * 3"), Number(6))
}

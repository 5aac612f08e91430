package vm

import (
	"fmt"
	"strings"
	"testing"

	"siskin/pkg/parser"
)

// mapLoader serves modules from an in-memory table, caching them per realm.
type mapLoader struct {
	realm   *Realm
	sources map[string]string
	fetches map[string]int
}

func (l *mapLoader) load(referrer Referrer, specifier string, attrs []parser.ImportAttribute, hostDefined any, finish FinishLoading) {
	if specifier == "panics" {
		panic("loader exploded")
	}
	key := ModuleCacheKey(specifier, attrs)
	if m, ok := l.realm.Modules().Get(key); ok {
		finish(m, nil)
		return
	}
	l.fetches[key]++
	src, ok := l.sources[specifier]
	if !ok {
		finish(nil, fmt.Errorf("Cannot find module '%s'", specifier))
		return
	}
	m, err := l.realm.ParseModule(src, ModuleOptions{Specifier: specifier})
	if err != nil {
		finish(nil, err)
		return
	}
	l.realm.Modules().Put(key, m)
	finish(m, nil)
}

func newModuleRealm(t *testing.T, sources map[string]string) (*Agent, *Realm, *mapLoader) {
	t.Helper()
	l := &mapLoader{sources: sources, fetches: make(map[string]int)}
	a, r := newTestRealm(t, AgentOptions{
		LoadImportedModule: l.load,
		GetImportMetaProperties: func(m *SourceTextModule) map[string]Value {
			return map[string]Value{"url": NewString("mem:///" + m.Specifier())}
		},
	})
	l.realm = r
	return a, r, l
}

// rootModule compiles and loads the graph rooted at specifier.
func rootModule(t *testing.T, r *Realm, l *mapLoader, specifier string) *SourceTextModule {
	t.Helper()
	var root *SourceTextModule
	r.Scope(func() {
		var c *Completion
		root, c = r.CompileModule(l.sources[specifier], ModuleOptions{Specifier: specifier})
		if c != nil {
			t.Fatalf("Failed to compile %s: %s", specifier, c)
		}
		r.Modules().Put(ModuleCacheKey(specifier, nil), root)
		state, v := root.LoadRequestedModules(nil).Settled()
		if state != PromiseFulfilled {
			t.Fatalf("Expected graph of %s to load, got %s %s", specifier, state, Inspect(v))
		}
	})
	return root
}

func linkAndEvaluate(t *testing.T, r *Realm, m ModuleRecord) *PromiseCapability {
	t.Helper()
	var capability *PromiseCapability
	r.Scope(func() {
		if c := m.Link(); c != nil {
			t.Fatalf("Link failed: %s", Inspect(c.Value))
		}
		capability = m.Evaluate()
	})
	r.Agent().RunJobs()
	return capability
}

func errorMessage(t *testing.T, r *Realm, v Value) string {
	t.Helper()
	msg, ok := getProp(t, r, v, "message").(String)
	if !ok {
		t.Fatalf("Expected an error with a message, got %s", Inspect(v))
	}
	return msg.String()
}

func TestModuleCycleEvaluatesOnce(t *testing.T) {
	_, r, l := newModuleRealm(t, map[string]string{
		"a": `import { b } from "b"; export const a = "A"; globalThis.log = (globalThis.log || "") + "a";`,
		"b": `import { a } from "a"; export const b = "B"; export function readA() { return a } globalThis.log = (globalThis.log || "") + "b";`,
	})
	a := rootModule(t, r, l, "a")
	capability := linkAndEvaluate(t, r, a)

	if state, v := capability.Settled(); state != PromiseFulfilled {
		t.Fatalf("Expected evaluation to fulfill, got %s %s", state, Inspect(v))
	}
	expectSame(t, "log", mustEval(t, r, "globalThis.log"), String("ba"))
	b, _ := r.Modules().Get(ModuleCacheKey("b", nil))
	for _, m := range []ModuleRecord{a, b} {
		if m.Status() != ModuleEvaluated {
			t.Errorf("Expected %s to be evaluated, got %s", m.Specifier(), m.Status())
		}
	}

	var again *PromiseCapability
	r.Scope(func() { again = a.Evaluate() })
	r.Agent().RunJobs()
	if again != capability {
		t.Errorf("Expected Evaluate to return the same capability")
	}
	expectSame(t, "log after second evaluate", mustEval(t, r, "globalThis.log"), String("ba"))
}

func TestModuleLiveBindings(t *testing.T) {
	_, r, l := newModuleRealm(t, map[string]string{
		"counter": `export let count = 0; export function inc() { count++ }`,
		"main":    `import { count, inc } from "counter"; inc(); inc(); globalThis.seen = count;`,
	})
	linkAndEvaluate(t, r, rootModule(t, r, l, "main"))
	expectSame(t, "seen", mustEval(t, r, "globalThis.seen"), Number(2))
}

func TestModuleExportForms(t *testing.T) {
	_, r, l := newModuleRealm(t, map[string]string{
		"lib":  `export default function () { return "def" } export const x = 1; export { x as y };`,
		"re":   `export * from "lib"; export { default as named } from "lib"; export * as all from "lib";`,
		"main": `import def, { y } from "lib"; import { named, x, all } from "re"; globalThis.out = def() + named() + x + y + all.x;`,
	})
	linkAndEvaluate(t, r, rootModule(t, r, l, "main"))
	expectSame(t, "out", mustEval(t, r, "globalThis.out"), String("defdef111"))
}

func TestModuleLinkErrorIsSticky(t *testing.T) {
	_, r, l := newModuleRealm(t, map[string]string{
		"bad": `import { missing } from "dep"; globalThis.ran = true;`,
		"dep": `export const present = 1;`,
	})
	bad := rootModule(t, r, l, "bad")
	var first, second *Completion
	r.Scope(func() {
		first = bad.Link()
		second = bad.Link()
	})
	if first == nil || first.Type != Throw {
		t.Fatalf("Expected link to throw, got %v", first)
	}
	expectSame(t, "name", getProp(t, r, first.Value, "name"), String("SyntaxError"))
	if second == nil || !SameValue(first.Value, second.Value) {
		t.Errorf("Expected relinking to report the same error")
	}
	if bad.Status() != ModuleErrored {
		t.Errorf("Expected errored status, got %s", bad.Status())
	}

	var capability *PromiseCapability
	r.Scope(func() { capability = bad.Evaluate() })
	state, reason := capability.Settled()
	if state != PromiseRejected || !SameValue(reason, first.Value) {
		t.Errorf("Expected evaluation to reject with the link error, got %s %s", state, Inspect(reason))
	}
	expectSame(t, "body did not run", mustEval(t, r, "globalThis.ran"), Undefined)
}

func TestModuleEvaluationErrorIsSticky(t *testing.T) {
	_, r, l := newModuleRealm(t, map[string]string{
		"thrower": `globalThis.runs = (globalThis.runs || 0) + 1; throw new Error("bad module");`,
		"main":    `import "thrower";`,
	})
	main := rootModule(t, r, l, "main")
	capability := linkAndEvaluate(t, r, main)
	state, reason := capability.Settled()
	if state != PromiseRejected {
		t.Fatalf("Expected rejection, got %s", state)
	}
	if msg := errorMessage(t, r, reason); msg != "bad module" {
		t.Errorf("Expected message 'bad module', got %q", msg)
	}

	thrower, _ := r.Modules().Get(ModuleCacheKey("thrower", nil))
	var again *PromiseCapability
	r.Scope(func() { again = thrower.Evaluate() })
	r.Agent().RunJobs()
	if _, v := again.Settled(); !SameValue(v, reason) {
		t.Errorf("Expected the stored error, got %s", Inspect(v))
	}
	expectSame(t, "runs", mustEval(t, r, "globalThis.runs"), Number(1))
}

func TestTopLevelAwaitFirstRejectionWins(t *testing.T) {
	_, r, l := newModuleRealm(t, map[string]string{
		"root": `import "slow"; import "fast"; globalThis.rootRan = true;`,
		"fast": `await null; throw new Error("fast");`,
		"slow": `await null; await null; await null; throw new Error("slow");`,
	})
	root := rootModule(t, r, l, "root")
	if root.HasTopLevelAwait() {
		t.Errorf("Expected root to have no top-level await of its own")
	}
	capability := linkAndEvaluate(t, r, root)
	state, reason := capability.Settled()
	if state != PromiseRejected {
		t.Fatalf("Expected rejection, got %s", state)
	}
	if msg := errorMessage(t, r, reason); msg != "fast" {
		t.Errorf("Expected the first rejection 'fast', got %q", msg)
	}
	expectSame(t, "root body", mustEval(t, r, "globalThis.rootRan"), Undefined)
	if root.Status() != ModuleErrored {
		t.Errorf("Expected root errored, got %s", root.Status())
	}
}

func TestTopLevelAwaitOrdering(t *testing.T) {
	_, r, l := newModuleRealm(t, map[string]string{
		"main": `import "x"; import "y"; globalThis.order += "main";`,
		"x":    `globalThis.order = ""; await Promise.resolve(); globalThis.order += "x";`,
		"y":    `globalThis.order += "y";`,
	})
	capability := linkAndEvaluate(t, r, rootModule(t, r, l, "main"))
	if state, v := capability.Settled(); state != PromiseFulfilled {
		t.Fatalf("Expected fulfilment, got %s %s", state, Inspect(v))
	}
	expectSame(t, "order", mustEval(t, r, "globalThis.order"), String("yxmain"))
}

func TestLoaderCalledOncePerKey(t *testing.T) {
	_, r, l := newModuleRealm(t, map[string]string{
		"main":   `import "left"; import "right"; import "shared";`,
		"left":   `import "shared";`,
		"right":  `import "shared"; export * from "shared";`,
		"shared": `export const s = 1;`,
	})
	linkAndEvaluate(t, r, rootModule(t, r, l, "main"))
	if n := l.fetches[ModuleCacheKey("shared", nil)]; n != 1 {
		t.Errorf("Expected shared to be fetched once, got %d", n)
	}
}

func TestMissingModuleRejectsLoad(t *testing.T) {
	_, r, l := newModuleRealm(t, map[string]string{
		"main":  `import "nowhere";`,
		"panic": `import "panics";`,
	})
	for _, root := range []string{"main", "panic"} {
		var m *SourceTextModule
		var state PromiseState
		var reason Value
		r.Scope(func() {
			var c *Completion
			m, c = r.CompileModule(l.sources[root], ModuleOptions{Specifier: root})
			if c != nil {
				t.Fatalf("Failed to compile: %s", c)
			}
			state, reason = m.LoadRequestedModules(nil).Settled()
		})
		if state != PromiseRejected {
			t.Errorf("%s: Expected load to reject, got %s", root, state)
			continue
		}
		if msg := errorMessage(t, r, reason); msg == "" {
			t.Errorf("%s: Expected an error message", root)
		}
		if m.Status() != ModuleNew {
			t.Errorf("%s: Expected status new, got %s", root, m.Status())
		}
	}
}

func TestDynamicImport(t *testing.T) {
	_, r, _ := newModuleRealm(t, map[string]string{
		"dep": `export const present = 1; export default "d";`,
	})
	mustEval(t, r, `
		var got, failed;
		import("dep").then(ns => { got = ns.present + ns.default });
		import("nope").catch(e => { failed = e.message });
	`)
	expectSame(t, "got", mustEval(t, r, "got"), String("1d"))
	failed, ok := mustEval(t, r, "failed").(String)
	if !ok || !strings.Contains(failed.String(), "nope") {
		t.Errorf("Expected a failure naming the module, got %v", failed)
	}
	expectSame(t, "same namespace", mustEval(t, r, `var n1; import("dep").then(ns => { n1 = ns }); 0`), Number(0))
	mustEval(t, r, `var same; import("dep").then(ns => { same = ns === n1 })`)
	expectSame(t, "identity", mustEval(t, r, "same"), True)
}

func TestDynamicImportAttributes(t *testing.T) {
	_, r, _ := newModuleRealm(t, map[string]string{"dep": `export const v = 1;`})
	mustEval(t, r, `var kind; import("dep", { with: { bogus: "x" } }).catch(e => { kind = e.name })`)
	expectSame(t, "unsupported key", mustEval(t, r, "kind"), String("SyntaxError"))
	mustEval(t, r, `var kind2; import("dep", { with: { type: 1 } }).catch(e => { kind2 = e.name })`)
	expectSame(t, "non-string value", mustEval(t, r, "kind2"), String("TypeError"))
}

func TestImportMeta(t *testing.T) {
	_, r, l := newModuleRealm(t, map[string]string{
		"main": `globalThis.url = import.meta.url; globalThis.same = import.meta === import.meta;`,
	})
	linkAndEvaluate(t, r, rootModule(t, r, l, "main"))
	expectSame(t, "url", mustEval(t, r, "url"), String("mem:///main"))
	expectSame(t, "same", mustEval(t, r, "same"), True)
}

func TestModuleNamespaceObject(t *testing.T) {
	a, r, l := newModuleRealm(t, map[string]string{
		"lib": `export const zeta = 1; export let alpha = 2; export default 3;`,
	})
	lib := rootModule(t, r, l, "lib")
	linkAndEvaluate(t, r, lib)

	var keys []PropertyKey
	var setOK, extensible bool
	r.Scope(func() {
		ns := GetModuleNamespace(a, lib)
		if GetModuleNamespace(a, lib) != ns {
			t.Errorf("Expected one namespace object per module")
		}
		keys, _ = ns.OwnPropertyKeys(a)
		setOK, _ = ns.Set(a, String("alpha"), Number(9), ns)
		extensible, _ = ns.IsExtensible(a)
	})
	var names []string
	for _, k := range keys {
		if s, ok := k.(String); ok {
			names = append(names, s.String())
		}
	}
	if got := strings.Join(names, ","); got != "alpha,default,zeta" {
		t.Errorf("Expected sorted exports alpha,default,zeta, got %s", got)
	}
	if setOK {
		t.Errorf("Expected namespace assignment to fail")
	}
	if extensible {
		t.Errorf("Expected namespace to be non-extensible")
	}
}

func TestSyntheticModule(t *testing.T) {
	_, r, l := newModuleRealm(t, map[string]string{
		"main": `import answer, { extra } from "synthetic"; globalThis.sum = answer + extra;`,
	})
	var synthetic *SyntheticModule
	r.Scope(func() {
		synthetic = r.NewSyntheticModule("synthetic", []string{"default", "extra"}, func(m *SyntheticModule) error {
			if err := m.SetExport("default", Number(40)); err != nil {
				return err
			}
			return m.SetExport("extra", Number(2))
		})
	})
	r.Modules().Put(ModuleCacheKey("synthetic", nil), synthetic)
	linkAndEvaluate(t, r, rootModule(t, r, l, "main"))
	expectSame(t, "sum", mustEval(t, r, "sum"), Number(42))
	if err := synthetic.SetExport("missing", Undefined); err == nil {
		t.Errorf("Expected SetExport of an unknown name to fail")
	}
}

func TestCompileModuleSyntaxErrorIsThrow(t *testing.T) {
	_, r := newTestRealm(t, AgentOptions{})
	m, c := r.CompileModule("export {", ModuleOptions{Specifier: "broken.mjs"})
	if m != nil {
		t.Errorf("Expected no module, got %s", m.Specifier())
	}
	if c == nil || c.Type != Throw {
		t.Fatalf("Expected a throw completion, got %v", c)
	}
	expectSame(t, "error name", getProp(t, r, c.Value, "name"), NewString("SyntaxError"))

	if _, err := r.ParseModule("export {", ModuleOptions{Specifier: "broken.mjs"}); err == nil {
		t.Error("Expected ParseModule to return the Go error")
	}
}

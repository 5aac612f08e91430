package driver

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"siskin/pkg/errors"
	"siskin/pkg/vm"
)

func newTestSession(t *testing.T, opts Options) (*Session, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	if opts.Stdout == nil {
		opts.Stdout = &out
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.BaseDir == "" && opts.FS == nil {
		opts.BaseDir = t.TempDir()
	}
	if opts.Exit == nil {
		opts.Exit = func(code int) { t.Errorf("unexpected process.exit(%d)", code) }
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("Expected a session, got error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, &out
}

func errorStrings(errs []errors.SiskinError) []string {
	var out []string
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}

func TestRunStringPersistsGlobals(t *testing.T) {
	s, _ := newTestSession(t, Options{})

	if _, errs := s.RunString("var base = 40; function bump(n) { return n + 2; }"); len(errs) > 0 {
		t.Fatalf("Unexpected errors: %v", errorStrings(errs))
	}
	value, errs := s.RunString("bump(base)")
	if len(errs) > 0 {
		t.Fatalf("Unexpected errors: %v", errorStrings(errs))
	}
	if value != vm.Number(42) {
		t.Errorf("Expected 42, got %s", vm.Inspect(value))
	}

	value, _ = s.Eval("typeof bump", "<repl>")
	if value != vm.NewString("function") {
		t.Errorf("Expected \"function\", got %s", vm.Inspect(value))
	}
}

func TestRunStringErrors(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		kind     string
		contains string
		exitCode int
	}{
		{"syntax", "let = ;", "Syntax", "", ExitSyntax},
		{"throw", "throw new Error('boom')", "Runtime", "Error: boom", ExitRuntime},
		{"reference", "missingBinding + 1", "Runtime", "ReferenceError", ExitRuntime},
		{"thrown primitive", "throw 7", "Runtime", "Uncaught 7", ExitRuntime},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s, _ := newTestSession(t, Options{})
			_, errs := s.RunString(test.source)
			if len(errs) != 1 {
				t.Fatalf("Expected 1 error, got %v", errorStrings(errs))
			}
			if errs[0].Kind() != test.kind {
				t.Errorf("Expected %s error, got %s: %v", test.kind, errs[0].Kind(), errs[0])
			}
			if !strings.Contains(errs[0].Error(), test.contains) {
				t.Errorf("Expected error to contain %q, got %q", test.contains, errs[0].Error())
			}
			if code := ExitCode(errs); code != test.exitCode {
				t.Errorf("Expected exit code %d, got %d", test.exitCode, code)
			}
		})
	}
}

func TestRunModuleFromMemory(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		t.Run(fmt.Sprintf("parallel=%v", parallel), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ParallelFetch = &parallel
			s, out := newTestSession(t, Options{Config: cfg})

			s.AddModule("main.js", `
import { add } from './utils.js';
import settings from './settings.json' with { type: 'json' };
export const result = add(settings.a, settings.b);
console.log("result", result);`)
			s.AddModule("utils.js", `export function add(a, b) { return a + b; }`)
			s.AddModule("settings.json", `{"a": 1, "b": 2}`)

			ns, errs := s.RunModule("main.js")
			if len(errs) > 0 {
				t.Fatalf("Unexpected errors: %v", errorStrings(errs))
			}
			if got := out.String(); got != "result 3\n" {
				t.Errorf("Expected \"result 3\\n\", got %q", got)
			}

			nsObj, ok := ns.(*vm.Object)
			if !ok {
				t.Fatalf("Expected a namespace object, got %s", vm.Inspect(ns))
			}
			var result vm.Value
			s.Realm().Scope(func() {
				result, _ = vm.Get(s.Agent(), nsObj, vm.NewString("result"))
			})
			if result != vm.Number(3) {
				t.Errorf("Expected export result = 3, got %s", vm.Inspect(result))
			}
		})
	}
}

func TestModuleInstancesAreCached(t *testing.T) {
	s, out := newTestSession(t, Options{})
	s.AddModule("main.js", `
import { n as first } from './counter.js';
import { n as second } from './counter.js';
const again = await import('./counter.js');
console.log(first, second, again.n);`)
	s.AddModule("counter.js", `console.log("evaluated"); export const n = 1;`)

	if _, errs := s.RunModule("main.js"); len(errs) > 0 {
		t.Fatalf("Unexpected errors: %v", errorStrings(errs))
	}
	if got := out.String(); got != "evaluated\n1 1 1\n" {
		t.Errorf("Expected a single evaluation, got %q", got)
	}
	if n := s.Realm().Modules().Len(); n != 2 {
		t.Errorf("Expected 2 cached modules, got %d", n)
	}
}

func TestRunModuleFromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"app/main.js":    {Data: []byte(`import { greet } from "../lib/greet.js"; console.log(greet("fs"), import.meta.url);`)},
		"lib/greet.js":   {Data: []byte(`export const greet = name => "hello " + name;`)},
		"lib/index.js":   {Data: []byte(`export default "index";`)},
		"app/default.js": {Data: []byte(`import v from "../lib"; console.log(v);`)},
	}
	s, out := newTestSession(t, Options{FS: fsys})

	if _, errs := s.RunModule("./app/main.js"); len(errs) > 0 {
		t.Fatalf("Unexpected errors: %v", errorStrings(errs))
	}
	if _, errs := s.RunModule("./app/default.js"); len(errs) > 0 {
		t.Fatalf("Unexpected errors: %v", errorStrings(errs))
	}
	expected := "hello fs app/main.js\nindex\n"
	if got := out.String(); got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
}

func TestModuleRootsAndImportMeta(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "vendor", "shout.js"), `export default s => s.toUpperCase();`)
	writeFile(t, filepath.Join(dir, "src", "main.mjs"), `
import shout from "shout";
console.log(shout("ok"));
console.log(import.meta.url === "file://" + import.meta.filename);
console.log(import.meta.dirname === import.meta.filename.slice(0, -"/main.mjs".length));`)

	cfg := DefaultConfig()
	cfg.ModuleRoots = []string{"vendor"}
	s, out := newTestSession(t, Options{BaseDir: dir, Config: cfg})

	if _, errs := s.RunModule("src/main.mjs"); len(errs) > 0 {
		t.Fatalf("Unexpected errors: %v", errorStrings(errs))
	}
	if got := out.String(); got != "OK\ntrue\ntrue\n" {
		t.Errorf("Expected %q, got %q", "OK\ntrue\ntrue\n", got)
	}
}

func TestModuleLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		modules  map[string]string
		features []string
		contains string
		exitCode int
	}{
		{
			name:     "missing module",
			modules:  map[string]string{"main.js": `import "./missing.js";`},
			contains: "Cannot find module './missing.js'",
			exitCode: ExitRuntime,
		},
		{
			name:     "syntax error in dependency",
			modules:  map[string]string{"main.js": `import "./bad.js";`, "bad.js": `export const = 1;`},
			exitCode: ExitSyntax,
		},
		{
			name:     "json without attribute",
			modules:  map[string]string{"main.js": `import data from "./data.json";`, "data.json": `{}`},
			contains: `without type: "json"`,
			exitCode: ExitRuntime,
		},
		{
			name:     "json modules disabled",
			modules:  map[string]string{"main.js": `import data from "./data.json" with { type: "json" };`, "data.json": `{}`},
			features: []string{},
			contains: "JSON modules are not enabled",
			exitCode: ExitRuntime,
		},
		{
			name:     "unknown attribute",
			modules:  map[string]string{"main.js": `import data from "./data.json" with { kind: "json" };`, "data.json": `{}`},
			contains: "Unsupported import attribute 'kind'",
			exitCode: ExitRuntime,
		},
		{
			name:     "invalid json",
			modules:  map[string]string{"main.js": `import data from "./data.json" with { type: "json" };`, "data.json": `{oops}`},
			contains: "SyntaxError",
			exitCode: ExitRuntime,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if test.features != nil {
				cfg.Features = test.features
			}
			s, _ := newTestSession(t, Options{Config: cfg})
			for path, src := range test.modules {
				s.AddModule(path, src)
			}
			_, errs := s.RunModule("main.js")
			if len(errs) == 0 {
				t.Fatal("Expected the module to fail")
			}
			if !strings.Contains(errs[0].Error(), test.contains) {
				t.Errorf("Expected error to contain %q, got %q", test.contains, errs[0].Error())
			}
			if code := ExitCode(errs); code != test.exitCode {
				t.Errorf("Expected exit code %d, got %d (%v)", test.exitCode, code, errorStrings(errs))
			}
		})
	}
}

func TestDynamicImportFromScript(t *testing.T) {
	s, out := newTestSession(t, Options{})
	s.AddModule("lib.js", `export const value = "dynamic";`)

	_, errs := s.RunString(`
import("./lib.js").then(m => console.log(m.value));
import("./nope.js").catch(e => console.log("caught", e instanceof Error));`)
	if len(errs) > 0 {
		t.Fatalf("Unexpected errors: %v", errorStrings(errs))
	}
	if got := out.String(); got != "dynamic\ncaught true\n" && got != "caught true\ndynamic\n" {
		t.Errorf("Unexpected output %q", got)
	}
}

func TestUnhandledRejections(t *testing.T) {
	s, _ := newTestSession(t, Options{})

	_, errs := s.RunString(`
const late = Promise.reject(new Error("late handler"));
Promise.resolve().then(() => late.catch(() => {}));
Promise.reject(new Error("dropped"));`)
	if len(errs) != 1 {
		t.Fatalf("Expected 1 unhandled rejection, got %v", errorStrings(errs))
	}
	if !strings.Contains(errs[0].Error(), "(in promise) Error: dropped") {
		t.Errorf("Expected the dropped rejection, got %q", errs[0].Error())
	}

	// Reported rejections are not reported again.
	if _, errs := s.RunString("1"); len(errs) != 0 {
		t.Errorf("Expected no errors on the next run, got %v", errorStrings(errs))
	}
}

func TestTimers(t *testing.T) {
	s, out := newTestSession(t, Options{})

	_, errs := s.RunString(`
const log = [];
setTimeout((a, b) => log.push("args " + a + b), 0, "x", "y");
const id = setTimeout(() => log.push("cancelled"), 1);
clearTimeout(id);
setTimeout(() => { throw new Error("timer failed"); }, 2);
setTimeout(() => console.log(log.join(",")), 30);`)
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "timer failed") {
		t.Fatalf("Expected the timer error, got %v", errorStrings(errs))
	}
	if got := out.String(); got != "args xy\n" {
		t.Errorf("Expected %q, got %q", "args xy\n", got)
	}
	if s.timers.Len() != 0 {
		t.Errorf("Expected no pending timers, got %d", s.timers.Len())
	}

	_, errs = s.RunString(`setTimeout("not a function")`)
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "TypeError") {
		t.Errorf("Expected a TypeError, got %v", errorStrings(errs))
	}
}

func TestCloseStopsTimers(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	s.realm.Scope(func() {
		script, err := s.realm.ParseScript(`setInterval(() => {}, 1000); setTimeout(() => {}, 1000);`, vm.ScriptOptions{})
		if err != nil {
			t.Fatal(err)
		}
		script.Evaluate()
	})
	if s.timers.Len() != 2 {
		t.Fatalf("Expected 2 timers, got %d", s.timers.Len())
	}
	if err := s.Close(); err != nil {
		t.Errorf("Expected clean Close, got %v", err)
	}
	if s.timers.Len() != 0 || s.agent.Jobs().HasPendingExternalOps() {
		t.Error("Expected Close to cancel every timer")
	}
}

func TestFeatureFlags(t *testing.T) {
	tests := []struct {
		features []string
		expected string
	}{
		{KnownFeatures, "function function"},
		{[]string{}, "undefined undefined"},
		{[]string{"array-grouping"}, "function undefined"},
	}
	for _, test := range tests {
		cfg := DefaultConfig()
		cfg.Features = test.features
		s, _ := newTestSession(t, Options{Config: cfg})
		value, errs := s.RunString("typeof Object.groupBy + ' ' + typeof Promise.withResolvers")
		if len(errs) > 0 {
			t.Fatalf("Unexpected errors: %v", errorStrings(errs))
		}
		if got := vm.Inspect(value); got != test.expected {
			t.Errorf("Features %v: expected %q, got %q", test.features, test.expected, got)
		}
	}
}

func TestTraceAndGCAfterRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GCAfterRun = true
	var traces []string
	s, _ := newTestSession(t, Options{
		Config: cfg,
		Tracef: func(format string, args ...any) {
			traces = append(traces, fmt.Sprintf(format, args...))
		},
	})
	s.AddModule("main.js", `import "./dep.js";`)
	s.AddModule("dep.js", ``)

	if _, errs := s.RunModule("main.js"); len(errs) > 0 {
		t.Fatalf("Unexpected errors: %v", errorStrings(errs))
	}
	joined := strings.Join(traces, "\n")
	id := s.Agent().Signifier.String()
	for _, want := range []string{"session " + id + " ready", "gc: agent=" + id, "modules: 2 fetched", "import graph: 2 modules, 1 edges"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected trace to contain %q, got:\n%s", want, joined)
		}
	}
}

func TestDisplayResult(t *testing.T) {
	var stdout, stderr bytes.Buffer
	noColor := false
	cfg := DefaultConfig()
	cfg.Color = &noColor
	s, _ := newTestSession(t, Options{Stdout: &stdout, Stderr: &stderr, Config: cfg})

	if !s.DisplayResult(s.RunString("[1, 2].length")) {
		t.Error("Expected success")
	}
	if stdout.String() != "2\n" {
		t.Errorf("Expected \"2\\n\", got %q", stdout.String())
	}

	if s.DisplayResult(s.RunString("throw new RangeError('out')")) {
		t.Error("Expected failure")
	}
	if !strings.Contains(stderr.String(), "RangeError: out") {
		t.Errorf("Expected the error on stderr, got %q", stderr.String())
	}
}

func TestRunFileMissing(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	_, errs := s.RunFile("does-not-exist.js")
	if len(errs) != 1 || errs[0].Kind() != "Load" {
		t.Fatalf("Expected a load error, got %v", errorStrings(errs))
	}
	if ExitCode(errs) != ExitRuntime {
		t.Errorf("Expected exit code %d, got %d", ExitRuntime, ExitCode(errs))
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

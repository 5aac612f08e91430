package driver

import (
	"runtime"
	"strings"
	"testing"
)

func runMainModule(t *testing.T, s *Session, src string) {
	t.Helper()
	s.AddModule("main.js", src)
	if _, errs := s.RunModule("main.js"); len(errs) > 0 {
		t.Fatalf("Unexpected errors: %v", errorStrings(errs))
	}
}

func TestPathModule(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("slash-separated expectations")
	}
	tests := []struct {
		expr     string
		expected string
	}{
		{`join("a", "b", "../c")`, "a/c"},
		{`join()`, ""},
		{`dirname("/x/y.js")`, "/x"},
		{`basename("/x/y.js")`, "y.js"},
		{`basename("/x/y.js", ".js")`, "y"},
		{`basename("/x/y.js", ".ts")`, "y.js"},
		{`extname("f.tar.gz")`, ".gz"},
		{`isAbsolute("/a")`, "true"},
		{`isAbsolute("a")`, "false"},
		{`normalize("a//b/./c/..")`, "a/b"},
		{`relative("/a/b", "/a/c/d")`, "../c/d"},
		{`resolve("/root", "x", "/abs", "y")`, "/abs/y"},
		{`sep`, "/"},
		{`platform`, runtime.GOOS},
		{`basename.length`, "1"},
		{`join.length`, "0"},
	}

	var b strings.Builder
	b.WriteString("import * as path from 'siskin:path';\n")
	for _, test := range tests {
		b.WriteString("console.log(String(path." + test.expr + "));\n")
	}
	s, out := newTestSession(t, Options{})
	runMainModule(t, s, b.String())

	got := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	if len(got) != len(tests) {
		t.Fatalf("Expected %d lines, got %d:\n%s", len(tests), len(got), out.String())
	}
	for i, test := range tests {
		if got[i] != test.expected {
			t.Errorf("path.%s: expected %q, got %q", test.expr, test.expected, got[i])
		}
	}
}

func TestPathModuleErrors(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	s.AddModule("main.js", `import { relative } from "siskin:path"; relative("a", "/b");`)
	_, errs := s.RunModule("main.js")
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "Rel: can't make /b relative to a") {
		t.Errorf("Expected the filepath.Rel error, got %v", errorStrings(errs))
	}
}

func TestProcessModule(t *testing.T) {
	t.Setenv("SISKIN_TEST_VALUE", "from env")
	var exitCodes []int
	s, out := newTestSession(t, Options{
		Args: []string{"siskin", "main.js", "--flag"},
		Exit: func(code int) { exitCodes = append(exitCodes, code) },
	})

	runMainModule(t, s, `
import process, { argv, env, platform, exit, nextTick, stdout } from "siskin:process";
console.log(argv.join(" "), argv === globalThis.process.argv);
console.log(env.SISKIN_TEST_VALUE, platform === process.platform);
console.log(typeof process.pid, process.version.startsWith("v"), typeof process.cwd());
const order = [];
nextTick((x) => { order.push(x); console.log(order.join(",")); }, "tick");
order.push("sync");
stdout.write("raw\n");
console.log(process.stdout.isTTY, typeof process.memoryUsage().heapUsed);
exit(3);
exit();`)

	expected := "siskin main.js --flag true\n" +
		"from env true\n" +
		"number true string\n" +
		"raw\n" +
		"false number\n" +
		"sync,tick\n"
	if got := out.String(); got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
	if len(exitCodes) != 2 || exitCodes[0] != 3 || exitCodes[1] != 0 {
		t.Errorf("Expected exit codes [3 0], got %v", exitCodes)
	}
}

func TestTimersModuleSleep(t *testing.T) {
	s, out := newTestSession(t, Options{})
	runMainModule(t, s, `
import { sleep, setTimeout } from "siskin:timers";
setTimeout(() => console.log("timer"), 5);
await sleep(20);
console.log("slept");`)

	if got := out.String(); got != "timer\nslept\n" {
		t.Errorf("Expected %q, got %q", "timer\nslept\n", got)
	}
}

func TestNextTickErrorsAreReported(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	_, errs := s.RunString(`process.nextTick(() => { throw new TypeError("tick failed"); });`)
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "TypeError: tick failed") {
		t.Errorf("Expected the nextTick error, got %v", errorStrings(errs))
	}
}

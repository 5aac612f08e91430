package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"siskin/pkg/driver"
)

func writeScript(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExecute(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "hello.js", `console.log("hello", process.argv.slice(2).join(","));`)
	module := writeScript(t, dir, "mod.mjs", `import { value } from "./dep.mjs"; console.log(value, import.meta.url.startsWith("file://"));`)
	writeScript(t, dir, "dep.mjs", `export const value = "dep";`)
	syntax := writeScript(t, dir, "syntax.js", `function (`)
	throws := writeScript(t, dir, "throws.js", `throw new TypeError("boom");`)
	grouping := writeScript(t, dir, "grouping.js", `console.log(typeof Object.groupBy);`)
	config := writeScript(t, dir, "siskin.yaml", "features: [json-modules]\ncolor: false\n")
	badConfig := writeScript(t, dir, "bad.yaml", "colour: true\n")

	tests := []struct {
		name   string
		args   []string
		code   int
		stdout string
		stderr string
	}{
		{"run script", []string{"run", script, "a", "--b"}, driver.ExitOK, "hello a,--b\n", ""},
		{"implicit run", []string{script}, driver.ExitOK, "hello \n", ""},
		{"module by extension", []string{"run", module}, driver.ExitOK, "dep true\n", ""},
		{"module as script", []string{"--module=false", "run", module}, driver.ExitSyntax, "", "Syntax Error"},
		{"syntax error", []string{"--no-color", "run", syntax}, driver.ExitSyntax, "", "Syntax Error"},
		{"runtime error", []string{"--no-color", "run", throws}, driver.ExitRuntime, "", "TypeError: boom"},
		{"missing file", []string{"run", filepath.Join(dir, "nope.js")}, driver.ExitRuntime, "", "nope.js"},
		{"eval", []string{"eval", "[1, 2, 3].map(x => x * 2)"}, driver.ExitOK, "[ 2, 4, 6 ]\n", ""},
		{"eval undefined", []string{"eval", "void 0"}, driver.ExitOK, "", ""},
		{"eval module", []string{"--module", "eval", "const x = await Promise.resolve(5); console.log(x)"}, driver.ExitOK, "5\n", ""},
		{"feature flag", []string{"--feature", "no-array-grouping", "run", grouping}, driver.ExitOK, "undefined\n", ""},
		{"config file", []string{"--config", config, "run", grouping}, driver.ExitOK, "undefined\n", ""},
		{"config feature override", []string{"--config", config, "--feature", "array-grouping", grouping}, driver.ExitOK, "function\n", ""},
		{"bad config", []string{"--config", badConfig, "eval", "1"}, driver.ExitUsage, "", "colour"},
		{"unknown feature", []string{"--feature", "macros", "eval", "1"}, driver.ExitUsage, "", `unknown feature "macros"`},
		{"eval without code", []string{"eval"}, driver.ExitUsage, "", "accepts 1 arg"},
		{"unknown flag", []string{"--frobnicate"}, driver.ExitUsage, "", "unknown flag"},
		{"version", []string{"--version"}, driver.ExitOK, "siskin " + driver.Version + "\n", ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := execute(test.args, strings.NewReader(""), &stdout, &stderr)
			if code != test.code {
				t.Errorf("Expected exit code %d, got %d (stderr: %s)", test.code, code, stderr.String())
			}
			if stdout.String() != test.stdout {
				t.Errorf("Expected stdout %q, got %q", test.stdout, stdout.String())
			}
			if test.stderr == "" && stderr.Len() > 0 {
				t.Errorf("Expected no stderr, got %q", stderr.String())
			}
			if !strings.Contains(stderr.String(), test.stderr) {
				t.Errorf("Expected stderr to contain %q, got %q", test.stderr, stderr.String())
			}
		})
	}
}

func TestDebugFlagTraces(t *testing.T) {
	dir := t.TempDir()
	module := writeScript(t, dir, "main.mjs", `import "./dep.mjs";`)
	writeScript(t, dir, "dep.mjs", ``)

	var stdout, stderr bytes.Buffer
	if code := execute([]string{"--debug", "run", module}, strings.NewReader(""), &stdout, &stderr); code != driver.ExitOK {
		t.Fatalf("Expected success, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "[siskin] modules: 2 fetched") {
		t.Errorf("Expected loader trace, got %q", stderr.String())
	}
}

func TestNeedsMoreInput(t *testing.T) {
	tests := []struct {
		src      string
		expected bool
	}{
		{"1 + 1\n", false},
		{"function f() {\n", true},
		{"function f() {\n return 1;\n}\n", false},
		{"[1, 2,\n", true},
		{"foo(\"(\")\n", false},
		{"'{'\n", false},
		{"`line one\n", true},
		{"`a ${ {x: 1}.x } b`\n", false},
		{"`a ${ f(\n", true},
		{"/* open comment\n", true},
		{"/* { */ 1\n", false},
		{"// {\n", false},
		{"'unterminated\n", false},
		{"}\n", false},
	}
	for _, test := range tests {
		if got := needsMoreInput(test.src); got != test.expected {
			t.Errorf("needsMoreInput(%q): expected %v, got %v", test.src, test.expected, got)
		}
	}
}

func TestReplEval(t *testing.T) {
	var out, errOut bytes.Buffer
	off := false
	cfg := driver.DefaultConfig()
	cfg.Color = &off
	s, err := driver.New(driver.Options{Config: cfg, Stdout: &out, Stderr: &errOut, BaseDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	r := &repl{session: s, out: &out}

	steps := []struct {
		input    string
		cont     bool
		expected string
	}{
		{"let n = 20\n", true, ""},
		{"n * 2 + 2\n", true, "42\n"},
		{"import { sep } from 'siskin:path'; console.log(sep)\n", true, "/\n"},
		{".help\n", true, replHelp + "\n"},
		{".nope\n", true, "Unknown command .nope, try .help\n"},
		{".exit\n", false, ""},
	}
	for _, step := range steps {
		out.Reset()
		if cont := r.eval(step.input); cont != step.cont {
			t.Errorf("%q: expected continue=%v, got %v", step.input, step.cont, cont)
		}
		if out.String() != step.expected {
			t.Errorf("%q: expected %q, got %q", step.input, step.expected, out.String())
		}
	}
	if errOut.Len() > 0 {
		t.Errorf("Expected no errors, got %q", errOut.String())
	}

	out.Reset()
	r.eval("undefinedName\n")
	if !strings.Contains(errOut.String(), "ReferenceError") {
		t.Errorf("Expected a ReferenceError, got %q", errOut.String())
	}
}

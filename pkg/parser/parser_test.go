package parser

import (
	"strings"
	"testing"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/unistring"

	"siskin/pkg/errors"
	"siskin/pkg/source"
)

func mustParseModule(t *testing.T, src string) *Program {
	t.Helper()
	prog, err := ParseModule(source.NewSourceFile("test.mjs", "/tmp/test.mjs", src))
	if err != nil {
		t.Fatalf("ParseModule(%q) returned error: %v", src, err)
	}
	return prog
}

func TestModuleEntries(t *testing.T) {
	prog := mustParseModule(t, `
import def, { a, b as c, "x-y" as d } from "./lib.js";
import * as ns from "./lib.js";
import "./side.js";
import data from "./data.json" with { type: "json" };
export { a, ns as space, e as f };
export * from "./star.js";
export * as all from "./star.js";
export { g as "h" } from "./other.js";
export let e = 1, z = 2;
export function fn() {}
export class K {}
`)
	m := prog.Module

	if len(m.Requests) != 5 {
		t.Fatalf("Expected 5 deduplicated requests, got %d: %+v", len(m.Requests), m.Requests)
	}
	if m.Requests[0].Specifier != "./lib.js" || m.Requests[2].Specifier != "./data.json" {
		t.Errorf("Unexpected request order: %+v", m.Requests)
	}
	if v, ok := m.Requests[2].Attribute("type"); !ok || v != "json" {
		t.Errorf("Expected type=json attribute, got %+v", m.Requests[2].Attributes)
	}

	if len(m.Imports) != 6 {
		t.Fatalf("Expected 6 import entries, got %d", len(m.Imports))
	}
	if m.Imports[0].ImportName != "default" || m.Imports[0].LocalName != "def" {
		t.Errorf("Expected default import, got %+v", m.Imports[0])
	}
	if m.Imports[3].ImportName != "x-y" || m.Imports[3].LocalName != "d" {
		t.Errorf("Expected string import name, got %+v", m.Imports[3])
	}
	if !m.Imports[4].Namespace || m.Imports[4].LocalName != "ns" {
		t.Errorf("Expected namespace import, got %+v", m.Imports[4])
	}

	locals := map[unistring.String]unistring.String{}
	for _, ee := range m.LocalExports {
		locals[ee.ExportName] = ee.LocalName
	}
	for export, local := range map[unistring.String]unistring.String{"space": "ns", "f": "e", "e": "e", "z": "z", "fn": "fn", "K": "K"} {
		if locals[export] != local {
			t.Errorf("Expected local export %s -> %s, got %q", export, local, locals[export])
		}
	}

	// `export { a }` re-exports an imported binding indirectly
	var sawA, sawAll, sawH bool
	for _, ee := range m.IndirectExports {
		switch ee.ExportName {
		case "a":
			sawA = ee.ImportName == "a" && ee.ModuleRequest == 0
		case "all":
			sawAll = ee.ImportKind == ImportAll
		case "h":
			sawH = ee.ImportName == "g"
		}
	}
	if !sawA || !sawAll || !sawH {
		t.Errorf("Missing indirect exports: %+v", m.IndirectExports)
	}
	if len(m.StarExports) != 1 || m.StarExports[0].ImportKind != ImportAllButDefault {
		t.Errorf("Expected one star export, got %+v", m.StarExports)
	}
}

func TestExportDefaultForms(t *testing.T) {
	tests := []struct {
		src   string
		local unistring.String
		check func(t *testing.T, prog *Program)
	}{
		{"export default function named() {}", "named", nil},
		{"export default class Named {}", "Named", nil},
		{"export default function () {}", DefaultBindingName, func(t *testing.T, prog *Program) {
			fd, ok := prog.Body[0].(*ast.FunctionDeclaration)
			if !ok || fd.Function.Name.Name != DefaultBindingName {
				t.Errorf("Expected anonymous default function declaration, got %T", prog.Body[0])
			}
		}},
		{"export default async function* () {}", DefaultBindingName, func(t *testing.T, prog *Program) {
			fd := prog.Body[0].(*ast.FunctionDeclaration)
			if !fd.Function.Async || !fd.Function.Generator {
				t.Errorf("Expected async generator, got async=%v generator=%v", fd.Function.Async, fd.Function.Generator)
			}
		}},
		{"export default class extends Object {}", DefaultBindingName, nil},
		{"export default 40 + 2;", DefaultBindingName, func(t *testing.T, prog *Program) {
			if prog.Module.DefaultExpression == nil {
				t.Fatalf("Expected a default expression")
			}
			b := prog.Module.DefaultExpression.List[0]
			if b.Target.(*ast.Identifier).Name != DefaultBindingName {
				t.Errorf("Expected *default* binding, got %v", b.Target)
			}
			if _, ok := b.Initializer.(*ast.BinaryExpression); !ok {
				t.Errorf("Expected binary initializer, got %T", b.Initializer)
			}
		}},
	}
	for _, tt := range tests {
		prog := mustParseModule(t, tt.src)
		exports := prog.Module.LocalExports
		if len(exports) != 1 || exports[0].ExportName != "default" || exports[0].LocalName != tt.local {
			t.Errorf("%q: expected default -> %s, got %+v", tt.src, tt.local, exports)
			continue
		}
		if tt.check != nil {
			tt.check(t, prog)
		}
	}
}

func TestOffsetsSurviveRewriting(t *testing.T) {
	src := "import { x } from './x.js';\nexport const y = x + 1;\n"
	prog := mustParseModule(t, src)
	decl, ok := prog.Body[0].(*ast.LexicalDeclaration)
	if !ok {
		t.Fatalf("Expected lexical declaration, got %T", prog.Body[0])
	}
	if got := prog.Text(decl.List[0]); got != "y = x + 1" {
		t.Errorf("Expected original text 'y = x + 1', got %q", got)
	}
	pos := prog.Position(decl.List[0].Initializer)
	if pos.Line != 2 || pos.Column != 18 {
		t.Errorf("Expected initializer at 2:18, got %d:%d", pos.Line, pos.Column)
	}
}

func TestTopLevelAwait(t *testing.T) {
	tests := []struct {
		src string
		tla bool
	}{
		{"await 1;", true},
		{"for await (const x of xs) {}", true},
		{"async function f() { await 1; }", false},
		{"const f = async () => { for await (const x of y) {} };", false},
		{"export const v = 1;", false},
	}
	for _, tt := range tests {
		prog := mustParseModule(t, tt.src)
		if prog.HasTopLevelAwait != tt.tla {
			t.Errorf("%q: expected HasTopLevelAwait=%v, got %v", tt.src, tt.tla, prog.HasTopLevelAwait)
		}
	}
}

func TestAwaitLoopMarker(t *testing.T) {
	prog := mustParseModule(t, "for await (const x of xs) {}\nfor (const y of ys) {}")
	first := prog.Body[0].(*ast.ForOfStatement)
	second := prog.Body[1].(*ast.ForOfStatement)
	if !prog.IsAwaitLoop(first) {
		t.Errorf("Expected first loop to be a for-await loop")
	}
	if prog.IsAwaitLoop(second) {
		t.Errorf("Expected second loop to be a plain for-of loop")
	}
}

func TestDynamicImportAndMeta(t *testing.T) {
	prog := mustParseModule(t, "const m = import('./x.js');\nconst u = import.meta.url;\nconst o = { import() { return 1; } };")
	call := prog.Body[0].(*ast.LexicalDeclaration).List[0].Initializer.(*ast.CallExpression)
	if id, ok := call.Callee.(*ast.Identifier); !ok || !prog.IsImportCall(id) {
		t.Errorf("Expected import() callee, got %T", call.Callee)
	}
	url := prog.Body[1].(*ast.LexicalDeclaration).List[0].Initializer.(*ast.DotExpression)
	if !prog.IsImportMeta(url.Left) {
		t.Errorf("Expected import.meta, got %T", url.Left)
	}

	script, err := ParseScript(source.NewEvalSource("import('./x.js').then(m => m)"))
	if err != nil {
		t.Fatalf("Expected import() to parse in a script, got %v", err)
	}
	callee := script.Body[0].(*ast.ExpressionStatement).Expression.(*ast.CallExpression).Callee.(*ast.DotExpression).Left.(*ast.CallExpression).Callee
	if !script.IsImportCall(callee.(*ast.Identifier)) {
		t.Errorf("Expected script import() to be recognised")
	}
}

func TestSyntaxErrors(t *testing.T) {
	tests := []struct {
		goal source.Goal
		src  string
		msg  string
	}{
		{source.GoalScript, "import x from 'y';", "Cannot use import statement outside a module"},
		{source.GoalScript, "import.meta", "Cannot use 'import.meta' outside a module"},
		{source.GoalScript, "for await (const x of y) {}", "for await is only valid"},
		{source.GoalScript, "'use strict'; with (a) {}", "Strict mode code may not include a with statement"},
		{source.GoalScript, "'use strict'; var x; delete x;", "Delete of an unqualified identifier"},
		{source.GoalScript, "let a; let a;", "Identifier 'a' has already been declared"},
		{source.GoalScript, "{ let b; var b; }", "Identifier 'b' has already been declared"},
		{source.GoalScript, "new.target", "new.target expression is not allowed here"},
		{source.GoalScript, "class A { m() { super(); } }", "'super' keyword unexpected here"},
		{source.GoalScript, "class A { x = arguments; }", "'arguments' is not allowed"},
		{source.GoalModule, "return 1;", "Illegal return statement"},
		{source.GoalModule, "with (a) {}", "Strict mode code may not include a with statement"},
		{source.GoalModule, "export { nope };", "Export 'nope' is not defined in module"},
		{source.GoalModule, "export const a = 1; export { a };", "Duplicate export of 'a'"},
		{source.GoalModule, "import { a } from 'x'; let a;", "Identifier 'a' has already been declared"},
		{source.GoalModule, "import { a } from 'x'; import { b as a } from 'y';", "Identifier 'a' has already been declared"},
		{source.GoalModule, "let x = ;", "Unexpected token"},
	}
	for _, tt := range tests {
		sf := source.NewSourceFile("t.js", "", tt.src)
		var err error
		if tt.goal == source.GoalModule {
			_, err = ParseModule(sf)
		} else {
			_, err = ParseScript(sf)
		}
		if err == nil {
			t.Errorf("%q: expected error containing %q, got none", tt.src, tt.msg)
			continue
		}
		se, ok := err.(*errors.SyntaxError)
		if !ok {
			t.Errorf("%q: expected *errors.SyntaxError, got %T", tt.src, err)
			continue
		}
		if !strings.Contains(se.Msg, tt.msg) {
			t.Errorf("%q: expected error containing %q, got %q", tt.src, tt.msg, se.Msg)
		}
	}
}

func TestSyntaxErrorPositionInModule(t *testing.T) {
	_, err := ParseModule(source.NewSourceFile("t.mjs", "", "let x = ;"))
	se, ok := err.(*errors.SyntaxError)
	if !ok {
		t.Fatalf("Expected *errors.SyntaxError, got %T", err)
	}
	if se.Line != 1 || se.Column != 9 {
		t.Errorf("Expected error at 1:9, got %d:%d", se.Line, se.Column)
	}
}

func TestHashbang(t *testing.T) {
	prog, err := ParseScript(source.NewEvalSource("#!/usr/bin/env siskin\n1 + 1"))
	if err != nil {
		t.Fatalf("Expected hashbang to be ignored, got %v", err)
	}
	if len(prog.Body) != 1 {
		t.Errorf("Expected 1 statement, got %d", len(prog.Body))
	}
}

func TestStrictDirective(t *testing.T) {
	tests := []struct {
		src    string
		strict bool
	}{
		{`"use strict"; x`, true},
		{`'use strict'`, true},
		{`"use\x20strict"; x`, false},
		{`x; "use strict"`, false},
	}
	for _, tt := range tests {
		prog, err := ParseScript(source.NewEvalSource(tt.src))
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tt.src, err)
		}
		if prog.Strict != tt.strict {
			t.Errorf("%q: expected strict=%v, got %v", tt.src, tt.strict, prog.Strict)
		}
	}
}

func TestParseDynamicFunction(t *testing.T) {
	_, fn, err := ParseDynamicFunction(AsyncFunction, "a, b = 2", "return a + b")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !fn.Async || len(fn.ParameterList.List) != 2 {
		t.Errorf("Expected async function with 2 params, got async=%v params=%d", fn.Async, len(fn.ParameterList.List))
	}

	if _, _, err := ParseDynamicFunction(NormalFunction, "a) {}, function (", "return 1"); err == nil {
		t.Errorf("Expected parameter injection to be rejected")
	}
}

package driver

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"testing"

	"siskin/pkg/modules"
	"siskin/pkg/vm"
)

type point struct {
	X      int `json:"x"`
	Y      int
	Secret string `json:"-"`
	hidden int
}

func declareTestModule(s *Session) *int {
	builds := 0
	s.DeclareModule("test:native", func(m *ModuleBuilder) {
		builds++
		m.Const("answer", 42)
		m.Const("tags", []string{"a", "b"})
		m.Const("point", point{X: 1, Y: 2, Secret: "s", hidden: 3})
		m.GoFunction("add", func(a, b int) int { return a + b })
		m.GoFunction("sum", func(nums ...float64) float64 {
			total := 0.0
			for _, n := range nums {
				total += n
			}
			return total
		})
		m.GoFunction("fail", func(msg string) error { return fmt.Errorf("failed: %s", msg) })
		m.GoFunction("parse", strconv.Atoi)
		m.GoFunction("keys", func(m map[string]int) []string {
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return keys
		})
		m.GoFunction("double", func(n *big.Int) *big.Int { return new(big.Int).Lsh(n, 1) })
		m.GoFunction("kind", func(v any) string { return fmt.Sprintf("%T", v) })
		m.GoFunction("realmName", func(a *vm.Agent, prefix string) string {
			return prefix + fmt.Sprint(a.CurrentRealm() == s.Realm())
		})
		m.Namespace("strings", func(n *NamespaceBuilder) {
			n.GoFunction("upper", strings.ToUpper)
			n.Const("empty", "")
		})
		m.Default("def")
	})
	return &builds
}

func TestNativeModuleExports(t *testing.T) {
	s, out := newTestSession(t, Options{})
	builds := declareTestModule(s)

	s.AddModule("main.js", `
import def, { answer, tags, point, add, sum, fail, parse, keys, double, kind, realmName, strings } from "test:native";
import * as again from "test:native";
console.log(def, answer, tags.length, tags[1]);
console.log(point.x, point.Y, "Secret" in point, "hidden" in point);
console.log(add(2, 3), add.length, sum(1, 2, 3.5), sum.length);
try { fail("nope"); } catch (e) { console.log(e instanceof Error, e.message); }
console.log(parse("12"));
try { parse("x"); } catch (e) { console.log(e.message); }
console.log(keys({ b: 1, a: 2 }).join());
console.log(double(21n) === 42n);
console.log(kind(1), kind("s"), kind(true), kind(null));
console.log(realmName("same realm: "), realmName.length);
console.log(strings.upper("abc"), strings.empty === "", again.add === add);`)

	if _, errs := s.RunModule("main.js"); len(errs) > 0 {
		t.Fatalf("Unexpected errors: %v", errorStrings(errs))
	}
	expected := []string{
		"def 42 2 b",
		"1 2 false false",
		"5 2 6.5 0",
		"true failed: nope",
		"12",
		`strconv.Atoi: parsing "x": invalid syntax`,
		"a,b",
		"true",
		"float64 string bool <nil>",
		"same realm: true 1",
		"ABC true true",
	}
	got := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(got) != len(expected) {
		t.Fatalf("Expected %d lines, got %d:\n%s", len(expected), len(got), out.String())
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Line %d: expected %q, got %q", i+1, expected[i], got[i])
		}
	}
	if *builds != 1 {
		t.Errorf("Expected the builder to run once, ran %d times", *builds)
	}
}

func TestNativeModuleArgumentErrors(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	declareTestModule(s)

	tests := []struct {
		source   string
		contains string
	}{
		{`m.add(1n, 2)`, "TypeError"},
		{`m.double("x")`, "SyntaxError"},
		{`m.keys(null).length`, ""},
		{`m.parse({ toString() { throw new RangeError("inner") } })`, "RangeError: inner"},
	}
	for _, test := range tests {
		_, errs := s.RunString(`import("test:native").then(m => ` + test.source + `)`)
		if test.contains == "" {
			if len(errs) != 0 {
				t.Errorf("%s: expected no errors, got %v", test.source, errorStrings(errs))
			}
			continue
		}
		if len(errs) != 1 || !strings.Contains(errs[0].Error(), test.contains) {
			t.Errorf("%s: expected an error containing %q, got %v", test.source, test.contains, errorStrings(errs))
		}
	}
}

func TestNativeModuleBuildErrors(t *testing.T) {
	tests := []struct {
		name     string
		build    func(m *ModuleBuilder)
		contains string
	}{
		{"not a func", func(m *ModuleBuilder) { m.GoFunction("x", 1) }, "export x: int is not a func"},
		{"too many results", func(m *ModuleBuilder) {
			m.GoFunction("x", func() (int, int, error) { return 0, 0, nil })
		}, "returns too many results"},
		{"second result not error", func(m *ModuleBuilder) {
			m.GoFunction("x", func() (int, string) { return 0, "" })
		}, "second result of func() (int, string) must be error"},
		{"unsupported const", func(m *ModuleBuilder) { m.Const("ch", make(chan int)) }, "unsupported Go type chan int"},
		{"map key", func(m *ModuleBuilder) { m.Const("m", map[int]string{}) }, "unsupported map key type int"},
		{"namespace", func(m *ModuleBuilder) {
			m.Namespace("ns", func(n *NamespaceBuilder) { n.GoFunction("bad", "nope") })
		}, "namespace ns: bad: string is not a func"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s, _ := newTestSession(t, Options{})
			s.DeclareModule("test:bad", test.build)
			s.AddModule("main.js", `import "test:bad";`)
			_, errs := s.RunModule("main.js")
			if len(errs) != 1 {
				t.Fatalf("Expected 1 error, got %v", errorStrings(errs))
			}
			if !strings.Contains(errs[0].Error(), test.contains) {
				t.Errorf("Expected error containing %q, got %q", test.contains, errs[0].Error())
			}
		})
	}
}

func TestNativeModuleResolver(t *testing.T) {
	r := NewNativeModuleResolver()
	r.Declare("b:mod", func(*ModuleBuilder) {})
	r.Declare("a:mod", func(*ModuleBuilder) {})

	if names := r.Names(); strings.Join(names, ",") != "a:mod,b:mod" {
		t.Errorf("Expected sorted names, got %v", names)
	}
	if !r.CanResolve("a:mod") || r.CanResolve("./a:mod") {
		t.Error("Expected only declared names to resolve")
	}

	resolved, err := r.Resolve("a:mod", "/somewhere/main.js")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resolved.Kind != modules.SourceNative || resolved.ResolvedPath != "a:mod" {
		t.Errorf("Expected a native module at a:mod, got %s at %s", resolved.Kind, resolved.ResolvedPath)
	}
	if nm, ok := resolved.Native.(*NativeModule); !ok || nm.Name() != "a:mod" {
		t.Errorf("Expected the declared module, got %v", resolved.Native)
	}
	if _, err := r.Resolve("c:mod", ""); err == nil {
		t.Error("Expected an error for an undeclared module")
	}
}

func TestGoToValue(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	var nilPoint *point

	tests := []struct {
		in       any
		expected string
	}{
		{nil, "null"},
		{nilPoint, "null"},
		{uint8(7), "7"},
		{float32(1.5), "1.5"},
		{"text", "text"},
		{[]int(nil), "[]"},
		{[2]bool{true, false}, "[ true, false ]"},
		{map[string]int{"b": 2, "a": 1}, "{ a: 1, b: 2 }"},
		{big.NewInt(5), "5n"},
		{&point{X: 3}, "{ x: 3, Y: 0 }"},
	}
	s.Realm().Scope(func() {
		for _, test := range tests {
			v, err := goToValue(s.Realm(), test.in)
			if err != nil {
				t.Errorf("%#v: unexpected error %v", test.in, err)
				continue
			}
			if got := vm.Inspect(v); got != test.expected {
				t.Errorf("%#v: expected %s, got %s", test.in, test.expected, got)
			}
		}
	})
}

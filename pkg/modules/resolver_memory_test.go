package modules

import (
	"io"
	"testing"
)

func TestMemoryResolverBasic(t *testing.T) {
	resolver := NewMemoryResolver("TestMemory")

	if resolver.Name() != "TestMemory" {
		t.Errorf("Expected name 'TestMemory', got '%s'", resolver.Name())
	}

	if resolver.Priority() != 50 {
		t.Errorf("Expected priority 50, got %d", resolver.Priority())
	}

	if NewMemoryResolver("").Name() != "Memory" {
		t.Error("Expected default name 'Memory'")
	}
}

func TestMemoryResolverAddModule(t *testing.T) {
	resolver := NewMemoryResolver("TestMemory")

	content := `export function greet(name) {
    return "Hello, " + name + "!";
}`
	resolver.AddModule("greet.js", content)

	modules := resolver.ListModules()
	if len(modules) != 1 || modules[0] != "greet.js" {
		t.Fatalf("Expected [greet.js], got %v", modules)
	}

	module := resolver.GetModule("greet.js")
	if module == nil {
		t.Fatal("Expected to find module, got nil")
	}
	if module.Content != content {
		t.Errorf("Expected content to match, got different content")
	}
}

func TestMemoryResolverCanResolve(t *testing.T) {
	resolver := NewMemoryResolver("TestMemory")
	resolver.AddModule("app", "export default 1;")

	tests := []struct {
		specifier  string
		canResolve bool
	}{
		{"./anything.js", true}, // Path specifiers are always tried
		{"../up.js", true},
		{"app", true},      // Stored bare name
		{"missing", false}, // Unknown bare name
		{"siskin:process", false},
	}

	for _, test := range tests {
		result := resolver.CanResolve(test.specifier)
		if result != test.canResolve {
			t.Errorf("CanResolve('%s') = %v, expected %v", test.specifier, result, test.canResolve)
		}
	}
}

func TestMemoryResolverResolve(t *testing.T) {
	resolver := NewMemoryResolver("TestMemory")
	resolver.AddModule("main.js", "import './utils';")
	resolver.AddModule("utils/index.js", "export * from './helper';")
	resolver.AddModule("utils/helper.mjs", "export function help() {}")
	resolver.AddModule("data.json", `{"a": 1}`)

	tests := []struct {
		specifier string
		fromPath  string
		expected  string
		kind      SourceKind
	}{
		{"./main.js", "", "main.js", SourceJavaScript},
		{"./main", "", "main.js", SourceJavaScript},
		{"./utils", "main.js", "utils/index.js", SourceJavaScript},
		{"./helper", "utils/index.js", "utils/helper.mjs", SourceJavaScript},
		{"../data.json", "utils/index.js", "data.json", SourceJSON},
		{"/data", "utils/helper.mjs", "data.json", SourceJSON},
	}

	for _, test := range tests {
		resolved, err := resolver.Resolve(test.specifier, test.fromPath)
		if err != nil {
			t.Errorf("Resolve('%s' from '%s'): unexpected error: %v", test.specifier, test.fromPath, err)
			continue
		}
		if resolved.ResolvedPath != test.expected {
			t.Errorf("Resolve('%s' from '%s'): expected '%s', got '%s'", test.specifier, test.fromPath, test.expected, resolved.ResolvedPath)
		}
		if resolved.Kind != test.kind {
			t.Errorf("Resolve('%s'): expected kind %s, got %s", test.specifier, test.kind, resolved.Kind)
		}
		if resolved.Resolver != "TestMemory" {
			t.Errorf("Expected resolver 'TestMemory', got '%s'", resolved.Resolver)
		}
		resolved.Source.Close()
	}

	if _, err := resolver.Resolve("./nope", "main.js"); err == nil {
		t.Error("Expected error for missing module")
	}
	if _, err := resolver.Resolve("../up.js", ""); err == nil {
		t.Error("Expected error for parent import without fromPath")
	}
}

func TestMemoryResolverUpdateAndRemove(t *testing.T) {
	resolver := NewMemoryResolver("")
	resolver.AddModule("a.js", "export const v = 1;")

	if err := resolver.UpdateModule("a.js", "export const v = 2;"); err != nil {
		t.Fatalf("Expected update to succeed, got %v", err)
	}
	if v := resolver.GetModule("a.js").Version; v != 2 {
		t.Errorf("Expected version 2 after update, got %d", v)
	}
	resolved, err := resolver.Resolve("./a.js", "")
	if err != nil {
		t.Fatalf("Expected successful resolution, got error: %v", err)
	}
	data, _ := io.ReadAll(resolved.Source)
	if string(data) != "export const v = 2;" {
		t.Errorf("Expected updated content, got %q", data)
	}

	if err := resolver.UpdateModule("missing.js", ""); err == nil {
		t.Error("Expected error updating a missing module")
	}

	resolver.RemoveModule("a.js")
	if resolver.GetModule("a.js") != nil {
		t.Error("Expected module to be removed")
	}

	resolver.AddModule("b.js", "")
	resolver.Clear()
	if len(resolver.ListModules()) != 0 {
		t.Errorf("Expected empty store after Clear, got %v", resolver.ListModules())
	}
}

package modules

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func TestFileSystemResolverBasic(t *testing.T) {
	resolver := NewFileSystemResolver(fstest.MapFS{}, "")

	if resolver.Name() != "FileSystem" {
		t.Errorf("Expected name 'FileSystem', got '%s'", resolver.Name())
	}

	if resolver.Priority() != 100 {
		t.Errorf("Expected priority 100, got %d", resolver.Priority())
	}
}

func TestFileSystemResolverCanResolve(t *testing.T) {
	resolver := NewFileSystemResolver(fstest.MapFS{}, "")

	tests := []struct {
		specifier  string
		canResolve bool
	}{
		{"./relative.js", true},
		{"../parent.js", true},
		{"/absolute.js", true},
		{"bare-module", false}, // No module roots configured
		{"siskin:process", false},
	}

	for _, test := range tests {
		result := resolver.CanResolve(test.specifier)
		if result != test.canResolve {
			t.Errorf("CanResolve('%s') = %v, expected %v", test.specifier, result, test.canResolve)
		}
	}

	resolver.SetRoots([]string{"lib"})
	if !resolver.CanResolve("bare-module") {
		t.Error("Expected bare specifiers to resolve once roots are set")
	}
	if resolver.CanResolve("siskin:process") {
		t.Error("Expected scheme specifiers to stay unresolvable")
	}
}

func TestFileSystemResolverStrategies(t *testing.T) {
	testFS := fstest.MapFS{
		"main.js":            {Data: []byte(`import "./lib/util.js";`)},
		"lib/util.js":        {Data: []byte(`export const util = 1;`)},
		"lib/helper.mjs":     {Data: []byte(`export const helper = 2;`)},
		"data/config.json":   {Data: []byte(`{"debug": true}`)},
		"pkg/index.js":       {Data: []byte(`export default "pkg";`)},
		"vendor/left-pad.js": {Data: []byte(`export default function leftPad() {}`)},
		"dir/only/index.mjs": {Data: []byte(`export {};`)},
		"lib/util.js.map":    {Data: []byte(`{}`)},
	}
	resolver := NewFileSystemResolver(testFS, "")
	resolver.SetRoots([]string{"vendor"})

	tests := []struct {
		name      string
		specifier string
		fromPath  string
		expected  string
		kind      SourceKind
	}{
		{"exact from host", "./main.js", "", "main.js", SourceJavaScript},
		{"exact relative", "./lib/util.js", "main.js", "lib/util.js", SourceJavaScript},
		{"sibling", "./helper.mjs", "lib/util.js", "lib/helper.mjs", SourceJavaScript},
		{"parent", "../main.js", "lib/util.js", "main.js", SourceJavaScript},
		{"extension probe", "./lib/util", "main.js", "lib/util.js", SourceJavaScript},
		{"mjs probe", "./lib/helper", "main.js", "lib/helper.mjs", SourceJavaScript},
		{"json", "./data/config.json", "main.js", "data/config.json", SourceJSON},
		{"json probe", "./data/config", "main.js", "data/config.json", SourceJSON},
		{"index", "./pkg", "main.js", "pkg/index.js", SourceJavaScript},
		{"index mjs", "./dir/only", "main.js", "dir/only/index.mjs", SourceJavaScript},
		{"root absolute", "/lib/util.js", "pkg/index.js", "lib/util.js", SourceJavaScript},
		{"bare from root", "left-pad", "main.js", "vendor/left-pad.js", SourceJavaScript},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			resolved, err := resolver.Resolve(test.specifier, test.fromPath)
			if err != nil {
				t.Fatalf("Expected successful resolution, got error: %v", err)
			}
			defer resolved.Source.Close()
			if resolved.ResolvedPath != test.expected {
				t.Errorf("Expected resolved path '%s', got '%s'", test.expected, resolved.ResolvedPath)
			}
			if resolved.Kind != test.kind {
				t.Errorf("Expected kind %s, got %s", test.kind, resolved.Kind)
			}
			if resolved.Specifier != test.specifier {
				t.Errorf("Expected specifier '%s', got '%s'", test.specifier, resolved.Specifier)
			}
		})
	}
}

func TestFileSystemResolverErrors(t *testing.T) {
	testFS := fstest.MapFS{
		"main.js":  {Data: []byte(`1`)},
		"lib/a.js": {Data: []byte(`2`)},
	}
	resolver := NewFileSystemResolver(testFS, "")

	tests := []struct {
		specifier string
		fromPath  string
	}{
		{"./missing.js", "main.js"},
		{"../outside.js", ""},
		{"../../escape.js", "lib/a.js"},
		{"./lib", "main.js"}, // directory without an index file
	}
	for _, test := range tests {
		if _, err := resolver.Resolve(test.specifier, test.fromPath); err == nil {
			t.Errorf("Expected error resolving '%s' from '%s'", test.specifier, test.fromPath)
		}
	}
}

func TestFileSystemResolverReadsSource(t *testing.T) {
	content := `export function test() { return "test"; }`
	resolver := NewFileSystemResolver(fstest.MapFS{"test.js": {Data: []byte(content)}}, "")

	resolved, err := resolver.Resolve("./test.js", "")
	if err != nil {
		t.Fatalf("Expected successful resolution, got error: %v", err)
	}
	defer resolved.Source.Close()

	sourceBytes, err := io.ReadAll(resolved.Source)
	if err != nil {
		t.Fatalf("Expected to read source, got error: %v", err)
	}
	if string(sourceBytes) != content {
		t.Errorf("Expected source content to match, got: %s", string(sourceBytes))
	}
}

func TestOSFileSystemResolver(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "src", "main.js"), []byte(`import "./dep";`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "src", "dep.js"), []byte(`export {};`), 0o644); err != nil {
		t.Fatal(err)
	}

	resolver := NewOSFileSystemResolver(dir)
	main, err := resolver.Resolve("./src/main.js", "")
	if err != nil {
		t.Fatalf("Expected successful resolution, got error: %v", err)
	}
	main.Source.Close()
	expected := filepath.Join(dir, "src", "main.js")
	if main.ResolvedPath != expected {
		t.Errorf("Expected absolute path '%s', got '%s'", expected, main.ResolvedPath)
	}

	dep, err := resolver.Resolve("./dep", main.ResolvedPath)
	if err != nil {
		t.Fatalf("Expected successful resolution, got error: %v", err)
	}
	dep.Source.Close()
	if dep.ResolvedPath != filepath.Join(dir, "src", "dep.js") {
		t.Errorf("Expected dep.js next to main.js, got '%s'", dep.ResolvedPath)
	}

	abs, err := resolver.Resolve(expected, "")
	if err != nil {
		t.Fatalf("Expected absolute specifier to resolve, got error: %v", err)
	}
	abs.Source.Close()
	if abs.ResolvedPath != expected {
		t.Errorf("Expected '%s', got '%s'", expected, abs.ResolvedPath)
	}
}

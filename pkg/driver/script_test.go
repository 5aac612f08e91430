package driver

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// scriptExpectations reads the `// expect: line` and
// `// expect-error: substring` comments of a test script, in order.
func scriptExpectations(t *testing.T, path string) (lines []string, errs []string) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if rest, ok := strings.CutPrefix(text, "// expect: "); ok {
			lines = append(lines, rest)
		} else if rest, ok := strings.CutPrefix(text, "// expect-error: "); ok {
			errs = append(errs, rest)
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return lines, errs
}

func runScriptFile(t *testing.T, path string, module bool) {
	t.Helper()
	wantLines, wantErrs := scriptExpectations(t, path)

	var out bytes.Buffer
	s, err := New(Options{
		BaseDir: filepath.Dir(path),
		Stdout:  &out,
		Stderr:  io.Discard,
		Exit:    func(code int) { t.Errorf("unexpected process.exit(%d)", code) },
	})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	defer s.Close()

	var errs []string
	if module {
		_, runErrs := s.RunModule("./" + filepath.Base(path))
		for _, e := range runErrs {
			errs = append(errs, e.Error())
		}
	} else {
		_, runErrs := s.RunFile(filepath.Base(path))
		for _, e := range runErrs {
			errs = append(errs, e.Error())
		}
	}

	got := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if out.Len() == 0 {
		got = nil
	}
	if len(got) != len(wantLines) {
		t.Fatalf("Expected %d output lines, got %d:\n%s\nerrors: %v", len(wantLines), len(got), out.String(), errs)
	}
	for i := range wantLines {
		if got[i] != wantLines[i] {
			t.Errorf("Line %d: expected %q, got %q", i+1, wantLines[i], got[i])
		}
	}

	if len(errs) != len(wantErrs) {
		t.Fatalf("Expected %d errors, got %d: %v", len(wantErrs), len(errs), errs)
	}
	for i := range wantErrs {
		if !strings.Contains(errs[i], wantErrs[i]) {
			t.Errorf("Error %d: expected it to contain %q, got %q", i+1, wantErrs[i], errs[i])
		}
	}
}

func TestScripts(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.js"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("Expected test scripts in testdata")
	}
	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			runScriptFile(t, file, false)
		})
	}
}

func TestModuleScripts(t *testing.T) {
	for _, name := range []string{"main.mjs", "tla.mjs", "broken_import.mjs"} {
		t.Run(name, func(t *testing.T) {
			runScriptFile(t, filepath.Join("testdata", "modules", name), true)
		})
	}
}

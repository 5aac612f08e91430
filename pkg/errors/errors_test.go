package errors

import (
	"bytes"
	"strings"
	"testing"

	"siskin/pkg/source"
)

func TestPrinterPlain(t *testing.T) {
	sf := source.NewSourceFile("main.js", "/tmp/main.js", "let x = 1;\nlet = ;\n")
	err := &SyntaxError{Position: PositionAt(sf, 15, 17), Msg: "Unexpected token ;"}

	var buf bytes.Buffer
	p := &Printer{Out: &buf}
	p.Print(err)

	out := buf.String()
	if !strings.Contains(out, "Syntax Error at /tmp/main.js:2:5: Unexpected token ;") {
		t.Errorf("Expected header line, got %q", out)
	}
	if !strings.Contains(out, "  let = ;\n") {
		t.Errorf("Expected source line, got %q", out)
	}
	if !strings.Contains(out, "      ^~\n") {
		t.Errorf("Expected marker under column 5, got %q", out)
	}
}

func TestPrinterWithoutPosition(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Out: &buf}
	p.Print(&RuntimeError{Msg: "TypeError: x", Stack: "    at <anonymous>"})

	out := buf.String()
	if !strings.HasPrefix(out, "Runtime Error: Uncaught TypeError: x\n") {
		t.Errorf("Expected generic runtime error, got %q", out)
	}
	if !strings.Contains(out, "at <anonymous>") {
		t.Errorf("Expected stack in output, got %q", out)
	}
}

func TestAssertPanics(t *testing.T) {
	defer func() {
		r := recover()
		ae, ok := r.(*AssertionError)
		if !ok {
			t.Fatalf("Expected *AssertionError panic, got %T", r)
		}
		if ae.Msg != "bad 3" {
			t.Errorf("Expected message 'bad 3', got %q", ae.Msg)
		}
	}()
	Assertf("bad %d", 3)
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err  SiskinError
		kind string
	}{
		{&SyntaxError{Msg: "x"}, "Syntax"},
		{&LoadError{Msg: "x"}, "Load"},
		{&RuntimeError{Msg: "x"}, "Runtime"},
	}
	for _, tt := range tests {
		if tt.err.Kind() != tt.kind {
			t.Errorf("Expected kind %s, got %s", tt.kind, tt.err.Kind())
		}
	}
}

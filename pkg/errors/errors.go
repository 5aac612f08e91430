package errors

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// SiskinError is the interface implemented by all host-facing siskin errors.
type SiskinError interface {
	error // Embed the standard error interface
	Pos() Position
	Kind() string // e.g., "Syntax", "Link", "Runtime"
	// Message returns the specific error message without position info.
	Message() string
	Unwrap() error // For error wrapping support (errors.Is/As)
}

// --- Concrete Error Types ---

// SyntaxError represents an error during lexing or parsing.
type SyntaxError struct {
	Position
	Msg   string
	Cause error // Underlying cause, if any
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("Syntax Error at %d:%d: %s", e.Line, e.Column, e.Msg)
}
func (e *SyntaxError) Pos() Position   { return e.Position }
func (e *SyntaxError) Kind() string    { return "Syntax" }
func (e *SyntaxError) Message() string { return e.Msg }
func (e *SyntaxError) Unwrap() error   { return e.Cause }
func (e *SyntaxError) CausedBy(cause error) *SyntaxError {
	e.Cause = cause
	return e
}

// LoadError represents a failure to resolve or fetch a module.
type LoadError struct {
	Position
	Specifier string
	Msg       string
	Cause     error
}

func (e *LoadError) Error() string {
	if e.Specifier != "" {
		return fmt.Sprintf("Load Error: cannot load %q: %s", e.Specifier, e.Msg)
	}
	return fmt.Sprintf("Load Error: %s", e.Msg)
}
func (e *LoadError) Pos() Position   { return e.Position }
func (e *LoadError) Kind() string    { return "Load" }
func (e *LoadError) Message() string { return e.Msg }
func (e *LoadError) Unwrap() error   { return e.Cause }
func (e *LoadError) CausedBy(cause error) *LoadError {
	e.Cause = cause
	return e
}

// RuntimeError represents an uncaught exception that reached the host.
// Value holds the thrown language value; Stack is the rendered trace, if any.
type RuntimeError struct {
	Position
	Msg   string
	Value any
	Stack string
	Cause error // Underlying cause, if any
}

func (e *RuntimeError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("Uncaught %s", e.Msg)
	}
	return fmt.Sprintf("Runtime Error at %d:%d: Uncaught %s", e.Line, e.Column, e.Msg)
}
func (e *RuntimeError) Pos() Position   { return e.Position }
func (e *RuntimeError) Kind() string    { return "Runtime" }
func (e *RuntimeError) Message() string { return "Uncaught " + e.Msg }
func (e *RuntimeError) Unwrap() error   { return e.Cause }
func (e *RuntimeError) CausedBy(cause error) *RuntimeError {
	e.Cause = cause
	return e
}

// AssertionError is the panic payload used when an engine invariant is
// violated. It is never a language-level exception.
type AssertionError struct {
	Msg string
}

func (e *AssertionError) Error() string { return "assertion failed: " + e.Msg }

// Assertf panics with an AssertionError.
func Assertf(format string, args ...any) {
	panic(&AssertionError{Msg: fmt.Sprintf(format, args...)})
}

// Assert panics with an AssertionError when cond is false.
func Assert(cond bool, msg string) {
	if !cond {
		panic(&AssertionError{Msg: msg})
	}
}

// --- Error Reporting ---

var (
	kindStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	posStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	sourceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	markerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	plainStyle  = lipgloss.NewStyle()
)

// Printer renders errors to a writer, optionally with colour.
type Printer struct {
	Out   io.Writer
	Color bool
}

func (p *Printer) style(s lipgloss.Style) lipgloss.Style {
	if !p.Color {
		return plainStyle
	}
	return s
}

// Print writes one error with its source line and a position marker.
func (p *Printer) Print(err SiskinError) {
	pos := err.Pos()
	kind := err.Kind()
	msg := err.Message()

	var lines []string
	name := ""
	if pos.Source != nil {
		lines = pos.Source.Lines()
		name = pos.Source.DisplayPath()
	}

	lineIdx := pos.Line - 1
	if lineIdx < 0 || lineIdx >= len(lines) {
		fmt.Fprintf(p.Out, "%s %s\n", p.style(kindStyle).Render(kind+" Error:"), msg)
		if rt, ok := err.(*RuntimeError); ok && rt.Stack != "" {
			fmt.Fprintln(p.Out, p.style(dimStyle).Render(rt.Stack))
		}
		return
	}

	where := fmt.Sprintf("%d:%d", pos.Line, pos.Column)
	if name != "" {
		where = name + ":" + where
	}
	fmt.Fprintf(p.Out, "%s %s %s\n", p.style(kindStyle).Render(kind+" Error"), p.style(posStyle).Render("at "+where+":"), msg)

	sourceLine := strings.TrimRight(lines[lineIdx], "\r\n\t ")
	fmt.Fprintf(p.Out, "  %s\n", p.style(sourceStyle).Render(sourceLine))

	col := pos.Column - 1
	if col < 0 {
		col = 0
	}
	marker := "^"
	if span := pos.EndPos - pos.StartPos; span > 1 {
		marker += strings.Repeat("~", span-1)
	}
	fmt.Fprintf(p.Out, "  %s%s\n", strings.Repeat(" ", col), p.style(markerStyle).Render(marker))
	if rt, ok := err.(*RuntimeError); ok && rt.Stack != "" {
		fmt.Fprintln(p.Out, p.style(dimStyle).Render(rt.Stack))
	}
}

// DisplayErrors prints a list of siskin errors to stderr in a user-friendly
// format, including the source line and position marker.
func DisplayErrors(errs []SiskinError) {
	p := &Printer{Out: os.Stderr}
	for _, err := range errs {
		p.Print(err)
		fmt.Fprintln(os.Stderr)
	}
}

// UncaughtError builds the RuntimeError a host reports for a throw that
// reached the top level. msg is the rendered thrown value and stack the
// trace captured when it was created, if any.
func UncaughtError(msg, stack string, value any) *RuntimeError {
	e := &RuntimeError{Msg: msg, Value: value, Stack: stack}
	if e.Stack == "" {
		e.Stack = "Uncaught " + msg
	}
	return e
}

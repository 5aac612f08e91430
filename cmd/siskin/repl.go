package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"siskin/pkg/driver"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("208"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

const replHelp = `.help    show this help
.gc      collect garbage and print statistics
.exit    leave the REPL (or press Ctrl+D)`

func newReplCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.repl()
		},
	}
}

func (g *globalOptions) repl() error {
	s, err := g.newSession([]string{"siskin"})
	if err != nil {
		return err
	}
	defer s.Close()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	history := s.Config().HistoryPath()
	if history != "" {
		if f, err := os.Open(history); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}

	fmt.Fprintln(g.stdout, g.banner(s))
	r := &repl{session: s, out: g.stdout}
	var pending strings.Builder
	for {
		prompt := "> "
		if pending.Len() > 0 {
			prompt = "... "
		}
		input, err := line.Prompt(prompt)
		if err == liner.ErrPromptAborted {
			pending.Reset()
			continue
		}
		if err == io.EOF {
			fmt.Fprintln(g.stdout)
			break
		}
		if err != nil {
			return err
		}

		pending.WriteString(input)
		pending.WriteByte('\n')
		src := pending.String()
		if needsMoreInput(src) {
			continue
		}
		pending.Reset()
		if strings.TrimSpace(src) == "" {
			continue
		}
		line.AppendHistory(strings.TrimRight(src, "\n"))
		if !r.eval(src) {
			break
		}
	}

	if history != "" {
		if f, err := os.Create(history); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}
	return nil
}

func (g *globalOptions) banner(s *driver.Session) string {
	title := "siskin " + driver.Version
	hint := "Type .help for commands, Ctrl+D to exit."
	if c := s.Config().Color; (c != nil && !*c) || g.noColor || !driver.IsTerminal(g.stdout) {
		return title + "\n" + hint
	}
	return bannerStyle.Render(title) + "\n" + hintStyle.Render(hint)
}

// repl evaluates complete REPL inputs against one session.
type repl struct {
	session *driver.Session
	out     io.Writer
	modules int
}

// eval runs one input and reports whether the REPL should continue.
func (r *repl) eval(src string) bool {
	trimmed := strings.TrimSpace(src)
	switch trimmed {
	case ".exit":
		return false
	case ".help":
		fmt.Fprintln(r.out, replHelp)
		return true
	case ".gc":
		fmt.Fprintln(r.out, r.session.Agent().GC())
		return true
	}
	if strings.HasPrefix(trimmed, ".") && !strings.ContainsAny(trimmed, " ;(") {
		fmt.Fprintf(r.out, "Unknown command %s, try .help\n", trimmed)
		return true
	}

	// Static imports are only valid in modules. Bindings of such an input do
	// not outlive it; import() keeps working in plain inputs.
	if isImportStatement(trimmed) {
		r.modules++
		name := fmt.Sprintf("repl-%d.mjs", r.modules)
		r.session.AddModule(name, src)
		_, errs := r.session.RunModule(name)
		r.session.DisplayResult(nil, errs)
		return true
	}
	r.session.DisplayResult(r.session.Eval(src, "<repl>"))
	return true
}

func isImportStatement(src string) bool {
	return (strings.HasPrefix(src, "import ") || strings.HasPrefix(src, "import{")) ||
		strings.Contains(src, "\nimport ")
}

// needsMoreInput reports whether src ends inside an open bracket, string,
// template literal or block comment.
func needsMoreInput(src string) bool {
	var (
		depth    int
		quote    byte
		template []int // bracket depth at each open ${
		inTmpl   bool
	)
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case quote != 0:
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			case '\n':
				// An unterminated string literal is a syntax error, not more input.
				quote = 0
			}
		case inTmpl:
			switch {
			case c == '\\':
				i++
			case c == '`':
				inTmpl = false
			case c == '$' && i+1 < len(src) && src[i+1] == '{':
				i++
				template = append(template, depth)
				depth++
				inTmpl = false
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return true
			}
			i += end + 3
		case c == '"' || c == '\'':
			quote = c
		case c == '`':
			inTmpl = true
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
			if n := len(template); n > 0 && depth == template[n-1] {
				template = template[:n-1]
				inTmpl = true
			}
		}
	}
	return depth > 0 || inTmpl
}

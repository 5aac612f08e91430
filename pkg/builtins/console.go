package builtins

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"siskin/pkg/vm"
)

// consoleState is shared by the methods of one realm's console object.
type consoleState struct {
	stdout, stderr io.Writer
	counters       map[string]int
	timers         map[string]time.Time
	groupIndent    int
	now            func() time.Time
}

func newConsoleState(stdout, stderr io.Writer) *consoleState {
	return &consoleState{
		stdout:   stdout,
		stderr:   stderr,
		counters: make(map[string]int),
		timers:   make(map[string]time.Time),
		now:      time.Now,
	}
}

// print writes one line, indented by the current group depth.
func (s *consoleState) print(w io.Writer, line string) {
	if s.groupIndent > 0 {
		pad := strings.Repeat("  ", s.groupIndent)
		line = pad + strings.ReplaceAll(line, "\n", "\n"+pad)
	}
	fmt.Fprintln(w, line)
}

// formatConsoleArgs renders console arguments. When the first argument is
// a string it is treated as a format with %s, %d, %i, %f, %o, %O, %j and %c
// directives; the remaining arguments are inspected and joined by spaces.
func formatConsoleArgs(a *vm.Agent, args []vm.Value) (string, *vm.Completion) {
	if len(args) == 0 {
		return "", nil
	}
	var b strings.Builder
	rest := args
	if format, ok := args[0].(vm.String); ok {
		rest = args[1:]
		f := format.String()
		for i := 0; i < len(f); i++ {
			if f[i] != '%' || i+1 >= len(f) {
				b.WriteByte(f[i])
				continue
			}
			verb := f[i+1]
			if verb == '%' {
				b.WriteByte('%')
				i++
				continue
			}
			if !strings.ContainsRune("sdifoOjc", rune(verb)) || len(rest) == 0 {
				b.WriteByte('%')
				continue
			}
			arg := rest[0]
			rest = rest[1:]
			i++
			switch verb {
			case 's':
				switch arg.(type) {
				case *vm.Object, *vm.Symbol:
					b.WriteString(vm.Inspect(arg))
				default:
					str, c := vm.ToString(a, arg)
					if c != nil {
						return "", c
					}
					b.WriteString(str.String())
				}
			case 'd', 'i':
				if _, ok := arg.(*vm.Object); ok {
					b.WriteString("NaN")
					continue
				}
				n, c := vm.ToNumeric(a, arg)
				if c != nil {
					return "", c
				}
				if num, ok := n.(vm.Number); ok && verb == 'i' {
					n = vm.Number(math.Trunc(float64(num)))
				}
				b.WriteString(vm.Inspect(n))
			case 'f':
				n, c := vm.ToNumber(a, arg)
				if c != nil {
					return "", c
				}
				b.WriteString(vm.Inspect(n))
			case 'j':
				out, c := jsonStringify(a, vm.Undefined, []vm.Value{arg}, nil)
				if c != nil {
					return "", c
				}
				b.WriteString(vm.Inspect(out))
			case 'c':
				// CSS has no meaning on a terminal.
			default:
				b.WriteString(vm.Inspect(arg))
			}
		}
	}
	for _, arg := range rest {
		if b.Len() > 0 || len(rest) < len(args) {
			b.WriteByte(' ')
		}
		b.WriteString(vm.Inspect(arg))
	}
	return b.String(), nil
}

func consoleLabel(a *vm.Agent, args []vm.Value) (string, *vm.Completion) {
	v := vm.Arg(args, 0)
	if vm.IsUndefined(v) {
		return "default", nil
	}
	s, c := vm.ToString(a, v)
	if c != nil {
		return "", c
	}
	return s.String(), nil
}

func formatDuration(d time.Duration) string {
	ms := float64(d.Microseconds()) / 1000
	if ms < 1000 {
		return strconv.FormatFloat(ms, 'f', 3, 64) + "ms"
	}
	return strconv.FormatFloat(ms/1000, 'f', 3, 64) + "s"
}

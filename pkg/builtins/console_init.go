package builtins

import (
	"fmt"
	"io"

	"siskin/pkg/vm"
)

type ConsoleInitializer struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (c *ConsoleInitializer) Name() string {
	return "console"
}

func (c *ConsoleInitializer) Priority() int {
	return PriorityConsole // 102 - After JSON
}

func (c *ConsoleInitializer) InitRealm(r *vm.Realm) error {
	console := namespace(r, "console")
	state := newConsoleState(c.Stdout, c.Stderr)

	printer := func(w io.Writer, prefix string) native {
		return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
			line, c := formatConsoleArgs(a, args)
			if c != nil {
				return nil, c
			}
			state.print(w, prefix+line)
			return vm.Undefined, nil
		}
	}
	method(r, console, "log", 0, printer(state.stdout, ""))
	method(r, console, "info", 0, printer(state.stdout, ""))
	method(r, console, "debug", 0, printer(state.stdout, ""))
	method(r, console, "error", 0, printer(state.stderr, ""))
	method(r, console, "warn", 0, printer(state.stderr, ""))
	method(r, console, "trace", 0, printer(state.stderr, "Trace: "))

	method(r, console, "dir", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		state.print(state.stdout, vm.Inspect(vm.Arg(args, 0)))
		return vm.Undefined, nil
	})

	method(r, console, "assert", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		if vm.ToBoolean(vm.Arg(args, 0)) {
			return vm.Undefined, nil
		}
		var rest []vm.Value
		if len(args) > 1 {
			rest = args[1:]
		}
		line, c := formatConsoleArgs(a, rest)
		if c != nil {
			return nil, c
		}
		if line == "" {
			state.print(state.stderr, "Assertion failed")
		} else {
			state.print(state.stderr, "Assertion failed: "+line)
		}
		return vm.Undefined, nil
	})

	method(r, console, "clear", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		state.groupIndent = 0
		return vm.Undefined, nil
	})

	method(r, console, "count", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		label, c := consoleLabel(a, args)
		if c != nil {
			return nil, c
		}
		state.counters[label]++
		state.print(state.stdout, fmt.Sprintf("%s: %d", label, state.counters[label]))
		return vm.Undefined, nil
	})
	method(r, console, "countReset", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		label, c := consoleLabel(a, args)
		if c != nil {
			return nil, c
		}
		if _, ok := state.counters[label]; !ok {
			state.print(state.stderr, fmt.Sprintf("Count for '%s' does not exist", label))
			return vm.Undefined, nil
		}
		state.counters[label] = 0
		return vm.Undefined, nil
	})

	method(r, console, "time", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		label, c := consoleLabel(a, args)
		if c != nil {
			return nil, c
		}
		if _, ok := state.timers[label]; ok {
			state.print(state.stderr, fmt.Sprintf("Label '%s' already exists for console.time()", label))
			return vm.Undefined, nil
		}
		state.timers[label] = state.now()
		return vm.Undefined, nil
	})
	timing := func(end bool) native {
		return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
			label, c := consoleLabel(a, args)
			if c != nil {
				return nil, c
			}
			start, ok := state.timers[label]
			if !ok {
				name := "console.timeLog()"
				if end {
					name = "console.timeEnd()"
				}
				state.print(state.stderr, fmt.Sprintf("No such label '%s' for %s", label, name))
				return vm.Undefined, nil
			}
			line := label + ": " + formatDuration(state.now().Sub(start))
			if !end && len(args) > 1 {
				extra, c := formatConsoleArgs(a, args[1:])
				if c != nil {
					return nil, c
				}
				line += " " + extra
			}
			if end {
				delete(state.timers, label)
			}
			state.print(state.stdout, line)
			return vm.Undefined, nil
		}
	}
	method(r, console, "timeLog", 0, timing(false))
	method(r, console, "timeEnd", 0, timing(true))

	group := func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		if len(args) > 0 {
			line, c := formatConsoleArgs(a, args)
			if c != nil {
				return nil, c
			}
			state.print(state.stdout, line)
		}
		state.groupIndent++
		return vm.Undefined, nil
	}
	method(r, console, "group", 0, group)
	method(r, console, "groupCollapsed", 0, group)
	method(r, console, "groupEnd", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		if state.groupIndent > 0 {
			state.groupIndent--
		}
		return vm.Undefined, nil
	})

	r.DefineGlobal("console", console)
	return nil
}

package driver

import (
	"io"
	"os"
	"runtime"
	"sort"
	"strings"

	"siskin/pkg/vm"
)

// Version is reported as process.version.
const Version = "0.1.0"

// ProcessInitializer sets up the process global. It is a host object, not
// part of the language, but scripts written for other hosts expect it.
type ProcessInitializer struct {
	argv   []string
	stdout io.Writer
	stderr io.Writer
	exit   func(code int)

	// object is the process object of the last realm initialized.
	object *vm.Object
}

// NewProcessInitializer creates a ProcessInitializer with the given argv.
func NewProcessInitializer(argv []string, stdout, stderr io.Writer, exit func(code int)) *ProcessInitializer {
	return &ProcessInitializer{argv: argv, stdout: stdout, stderr: stderr, exit: exit}
}

func (p *ProcessInitializer) Name() string {
	return "process"
}

func (p *ProcessInitializer) Priority() int {
	return 300 // After standard builtins
}

func (p *ProcessInitializer) InitRealm(r *vm.Realm) error {
	p.object = p.newProcessObject(r)
	r.DefineGlobal("process", p.object)
	return nil
}

func (p *ProcessInitializer) newProcessObject(r *vm.Realm) *vm.Object {
	a := r.Agent()
	newObject := func() *vm.Object {
		return vm.OrdinaryObjectCreate(r.Intrinsics.ObjectPrototype)
	}

	argv := make([]vm.Value, len(p.argv))
	for i, arg := range p.argv {
		argv[i] = vm.NewString(arg)
	}

	env := newObject()
	environ := os.Environ()
	sort.Strings(environ)
	for _, kv := range environ {
		if key, value, ok := strings.Cut(kv, "="); ok && key != "" {
			env.Put(vm.NewString(key), vm.NewString(value), vm.AttrAll)
		}
	}

	process := newObject()
	process.Put(vm.NewString("argv"), vm.CreateArrayFromList(a, argv), vm.AttrAll)
	process.Put(vm.NewString("env"), env, vm.AttrAll)
	process.Put(vm.NewString("platform"), vm.NewString(runtime.GOOS), vm.AttrAll)
	process.Put(vm.NewString("arch"), vm.NewString(runtime.GOARCH), vm.AttrAll)
	process.Put(vm.NewString("version"), vm.NewString("v"+Version), vm.AttrAll)
	process.Put(vm.NewString("pid"), vm.Number(os.Getpid()), vm.AttrAll)
	process.Put(vm.NewString("stdout"), p.stream(r, p.stdout), vm.AttrAll)
	process.Put(vm.NewString("stderr"), p.stream(r, p.stderr), vm.AttrAll)

	vm.DefineMethod(r, process, "cwd", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		cwd, err := os.Getwd()
		if err != nil {
			return vm.NewString(""), nil
		}
		return vm.NewString(cwd), nil
	})

	vm.DefineMethod(r, process, "exit", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		code := 0
		if arg := vm.Arg(args, 0); !vm.IsUndefined(arg) {
			n, c := vm.ToIntegerOrInfinity(a, arg)
			if c != nil {
				return nil, c
			}
			code = int(n)
		}
		p.exit(code)
		return vm.Undefined, nil
	})

	// nextTick callbacks run as ordinary jobs after the current one.
	vm.DefineMethod(r, process, "nextTick", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		callback, ok := vm.Arg(args, 0).(*vm.Object)
		if !ok || !vm.IsCallable(callback) {
			return nil, a.ThrowTypeError("process.nextTick: callback must be a function")
		}
		var rest []vm.Value
		if len(args) > 1 {
			rest = append(rest, args[1:]...)
		}
		marks := []vm.Marker{callback}
		for _, v := range rest {
			if m, ok := v.(vm.Marker); ok {
				marks = append(marks, m)
			}
		}
		a.EnqueueJob(r, func() {
			if _, c := vm.Call(a, callback, vm.Undefined, rest); c != nil {
				a.ReportError(c.Value)
			}
		}, marks...)
		return vm.Undefined, nil
	})

	vm.DefineMethod(r, process, "memoryUsage", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		result := newObject()
		result.Put(vm.NewString("heapUsed"), vm.Number(m.HeapAlloc), vm.AttrAll)
		result.Put(vm.NewString("heapTotal"), vm.Number(m.HeapSys), vm.AttrAll)
		result.Put(vm.NewString("rss"), vm.Number(m.Sys), vm.AttrAll)
		return result, nil
	})

	return process
}

// stream creates a minimal writable with write(chunk).
func (p *ProcessInitializer) stream(r *vm.Realm, w io.Writer) *vm.Object {
	o := vm.OrdinaryObjectCreate(r.Intrinsics.ObjectPrototype)
	vm.DefineMethod(r, o, "write", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		s, c := vm.ToString(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		if _, err := io.WriteString(w, s.String()); err != nil {
			return nil, a.ThrowError(err.Error())
		}
		return vm.True, nil
	})
	o.Put(vm.NewString("isTTY"), vm.Boolean(IsTerminal(w)), vm.AttrAll)
	return o
}

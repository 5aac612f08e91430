package driver

import (
	"path/filepath"
	"runtime"

	"siskin/pkg/vm"
)

// Names of the native modules every session declares.
const (
	ProcessModule = "siskin:process"
	TimersModule  = "siskin:timers"
	PathModule    = "siskin:path"
)

// declareBuiltinModules registers the host modules of s.
func (s *Session) declareBuiltinModules() {
	s.natives.Declare(ProcessModule, s.processModule)
	s.natives.Declare(TimersModule, s.timersModule)
	s.natives.Declare(PathModule, pathModule)
}

// processModule exports the properties of the process global, and the
// object itself as default.
func (s *Session) processModule(m *ModuleBuilder) {
	process := s.process.object
	if process == nil || s.realm != m.Realm() {
		process = s.process.newProcessObject(m.Realm())
	}
	for _, name := range []string{"argv", "env", "platform", "arch", "version", "pid", "cwd", "exit", "nextTick", "stdout", "stderr"} {
		v, ok := process.OwnValue(vm.NewString(name))
		if !ok {
			continue
		}
		m.Value(name, v)
	}
	m.Value("default", process)
}

// timersModule exports the timer functions plus a promise-returning sleep.
func (s *Session) timersModule(m *ModuleBuilder) {
	for name, fn := range s.timers.functions() {
		m.Function(name, fn.length, fn.behavior)
	}
	m.Function("sleep", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		return s.timers.sleep(a, args)
	})
}

// pathModule exposes slash-separated path helpers backed by path/filepath.
func pathModule(m *ModuleBuilder) {
	m.Const("sep", string(filepath.Separator))
	m.GoFunction("join", func(parts ...string) string {
		return filepath.Join(parts...)
	})
	m.GoFunction("dirname", filepath.Dir)
	m.GoFunction("basename", func(p string, ext ...string) string {
		base := filepath.Base(p)
		if len(ext) > 0 && ext[0] != "" && filepath.Ext(base) == ext[0] {
			base = base[:len(base)-len(ext[0])]
		}
		return base
	})
	m.GoFunction("extname", filepath.Ext)
	m.GoFunction("isAbsolute", filepath.IsAbs)
	m.GoFunction("normalize", filepath.Clean)
	m.GoFunction("relative", filepath.Rel)
	// A later absolute segment discards everything before it.
	m.GoFunction("resolve", func(parts ...string) (string, error) {
		joined := ""
		for _, part := range parts {
			if filepath.IsAbs(part) {
				joined = part
			} else {
				joined = filepath.Join(joined, part)
			}
		}
		return filepath.Abs(joined)
	})
	m.Const("platform", runtime.GOOS)
}

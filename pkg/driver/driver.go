package driver

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mattn/go-isatty"

	"siskin/pkg/builtins"
	"siskin/pkg/errors"
	"siskin/pkg/modules"
	"siskin/pkg/parser"
	"siskin/pkg/vm"
)

const debugDriver = false

func debugPrintf(format string, args ...interface{}) {
	if debugDriver {
		fmt.Fprintf(os.Stderr, "[driver] "+format+"\n", args...)
	}
}

// Process exit codes, following sysexits.h.
const (
	ExitOK      = 0
	ExitUsage   = 64
	ExitSyntax  = 65
	ExitRuntime = 70
)

// Options configure a Session.
type Options struct {
	// BaseDir anchors host imports and module roots. Defaults to ".".
	BaseDir string
	// FS replaces the operating system file system for module loading.
	FS fs.FS
	// Config defaults to DefaultConfig().
	Config *Config

	Stdout io.Writer
	Stderr io.Writer

	// Args become process.argv.
	Args []string
	// Exit implements process.exit. Defaults to os.Exit.
	Exit func(code int)
	// Tracef receives loader and GC summaries after every run.
	Tracef func(format string, args ...any)
}

// Session is a persistent interpreter session: one agent and one realm.
// Globals defined by one evaluation are visible to the next.
type Session struct {
	opts   Options
	config *Config

	agent   *vm.Agent
	realm   *vm.Realm
	loader  *modules.Loader
	natives *NativeModuleResolver
	memory  *modules.MemoryResolver
	files   *modules.FileSystemResolver
	timers  *timerSet
	process *ProcessInitializer
	printer *errors.Printer

	// rejections holds rejected promises without a handler, in order.
	rejections []*vm.Object
	// uncaught collects throws from timers and other host callbacks.
	uncaught []errors.SiskinError
	// syntaxErrs remembers module syntax errors of the current run so the
	// host can report them with their source position.
	syntaxErrs []errors.SiskinError

	closed bool
}

// New creates a session with the standard library, the host globals
// (process and timers) and the native modules siskin:process,
// siskin:timers and siskin:path.
func New(opts Options) (*Session, error) {
	if opts.BaseDir == "" {
		opts.BaseDir = "."
	}
	base, err := filepath.Abs(opts.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base dir %s: %w", opts.BaseDir, err)
	}
	opts.BaseDir = base
	if opts.Config == nil {
		opts.Config = DefaultConfig()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loaderConfig := modules.DefaultLoaderConfig()
	loaderConfig.EnableParallel = cfg.parallelFetch()
	if cfg.FetchWorkers > 0 {
		loaderConfig.NumWorkers = cfg.FetchWorkers
	}

	s := &Session{
		opts:    opts,
		config:  cfg,
		natives: NewNativeModuleResolver(),
		memory:  modules.NewMemoryResolver("Memory"),
	}
	if opts.FS != nil {
		s.files = modules.NewFileSystemResolver(opts.FS, "")
	} else {
		s.files = modules.NewOSFileSystemResolver(base)
	}
	if len(cfg.Extensions) > 0 {
		s.files.SetExtensions(cfg.Extensions)
	}
	s.files.SetRoots(cfg.ModuleRoots)
	s.loader = modules.NewLoader(loaderConfig, s.natives, s.memory, s.files)
	s.printer = &errors.Printer{Out: opts.Stderr, Color: s.colorEnabled()}
	s.timers = newTimerSet(s)
	s.process = NewProcessInitializer(opts.Args, opts.Stdout, opts.Stderr, opts.Exit)

	initializers := builtins.Standard(builtins.Options{Stdout: opts.Stdout, Stderr: opts.Stderr})
	initializers = append(initializers, &TimersInitializer{timers: s.timers}, s.process)

	s.agent = vm.NewAgent(vm.AgentOptions{
		Features:                cfg.Features,
		LoadImportedModule:      s.loadImportedModule,
		GetImportMetaProperties: s.importMeta,
		PromiseRejectionTracker: s.trackRejection,
		RealmInitializers:       initializers,
		ReportError:             s.reportError,
	})
	realm, err := vm.NewRealm(s.agent, s)
	if err != nil {
		s.loader.Close()
		return nil, err
	}
	s.realm = realm
	s.declareBuiltinModules()
	s.tracef("session %s ready in %s", s.agent.Signifier, base)
	return s, nil
}

// Agent returns the session's agent.
func (s *Session) Agent() *vm.Agent { return s.agent }

// Realm returns the session's realm.
func (s *Session) Realm() *vm.Realm { return s.realm }

// Loader returns the module loader.
func (s *Session) Loader() *modules.Loader { return s.loader }

// Config returns the configuration the session was created with.
func (s *Session) Config() *Config { return s.config }

// DeclareModule registers a native module importable by name.
func (s *Session) DeclareModule(name string, build func(*ModuleBuilder)) *NativeModule {
	return s.natives.Declare(name, build)
}

// AddModule registers an in-memory module source under path. In-memory
// modules shadow files with the same path.
func (s *Session) AddModule(path, src string) {
	s.memory.AddModule(path, src)
}

// RunString evaluates src as a script and drains the event loop.
func (s *Session) RunString(src string) (vm.Value, []errors.SiskinError) {
	return s.runScript(src, "<eval>")
}

// Eval evaluates src as a script named name, e.g. "<repl>".
func (s *Session) Eval(src, name string) (vm.Value, []errors.SiskinError) {
	return s.runScript(src, name)
}

// RunFile evaluates a file as a script. Its imports resolve relative to the
// file.
func (s *Session) RunFile(path string) (vm.Value, []errors.SiskinError) {
	src, name, err := s.readFile(path)
	if err != nil {
		return vm.Undefined, []errors.SiskinError{&errors.LoadError{Specifier: path, Msg: err.Error(), Cause: err}}
	}
	return s.runScript(src, name)
}

func (s *Session) readFile(path string) (string, string, error) {
	if s.opts.FS != nil {
		name := strings.TrimPrefix(filepath.ToSlash(filepath.Clean(path)), "/")
		data, err := fs.ReadFile(s.opts.FS, name)
		return string(data), name, err
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.opts.BaseDir, path)
	}
	data, err := os.ReadFile(path)
	return string(data), path, err
}

func (s *Session) runScript(src, specifier string) (vm.Value, []errors.SiskinError) {
	var (
		result vm.Value = vm.Undefined
		errs   []errors.SiskinError
	)
	s.syntaxErrs = nil
	s.realm.Scope(func() {
		script, err := s.realm.ParseScript(src, vm.ScriptOptions{Specifier: specifier})
		if err != nil {
			errs = append(errs, asSiskinError(err))
			return
		}
		c := script.Evaluate()
		if c.Type == vm.Throw {
			errs = append(errs, vm.NewException(&c).RuntimeError())
			return
		}
		result = c.ValueOrUndefined()
	})
	if o, ok := result.(*vm.Object); ok {
		release := s.agent.KeepAlive(o)
		defer release()
	}
	s.agent.RunEventLoop()
	return result, s.finishRun(errs)
}

// RunModule loads, links and evaluates the module graph rooted at
// specifier, then drains the event loop. It returns the module namespace.
// A specifier that is not a path, an in-memory module or a native module is
// taken relative to the base directory.
func (s *Session) RunModule(specifier string) (vm.Value, []errors.SiskinError) {
	s.syntaxErrs = nil
	record, err := s.loader.Fetch(s.hostSpecifier(specifier), "")
	if err != nil {
		return vm.Undefined, s.finishRun([]errors.SiskinError{&errors.LoadError{Specifier: specifier, Msg: err.Error(), Cause: err}})
	}

	var m vm.ModuleRecord
	s.realm.Scope(func() {
		m, err = s.instantiate(s.realm, record, nil)
	})
	if err != nil {
		return vm.Undefined, s.finishRun([]errors.SiskinError{asSiskinError(err)})
	}

	var capability *vm.PromiseCapability
	s.realm.Scope(func() { capability = m.LoadRequestedModules(nil) })
	if errs := s.settle(capability, "loading "+specifier); errs != nil {
		return vm.Undefined, s.finishRun(errs)
	}

	var linkErr *vm.Completion
	s.realm.Scope(func() { linkErr = m.Link() })
	if linkErr != nil {
		return vm.Undefined, s.finishRun([]errors.SiskinError{s.thrown(linkErr.Value)})
	}

	s.realm.Scope(func() { capability = m.Evaluate() })
	if errs := s.settle(capability, "evaluating "+specifier); errs != nil {
		return vm.Undefined, s.finishRun(errs)
	}

	s.agent.RunEventLoop()
	var ns vm.Value
	s.realm.Scope(func() { ns = vm.GetModuleNamespace(s.agent, m) })
	return ns, s.finishRun(nil)
}

// settle drives capability and converts a rejection into host errors. The
// promise is owned by the host, so its rejection is never reported as
// unhandled.
func (s *Session) settle(capability *vm.PromiseCapability, what string) []errors.SiskinError {
	state, reason := s.agent.Drive(capability.Promise)
	s.forgetRejection(capability.Promise)
	switch state {
	case vm.PromiseFulfilled:
		return nil
	case vm.PromiseRejected:
		if len(s.syntaxErrs) > 0 {
			return s.syntaxErrs
		}
		return []errors.SiskinError{s.thrown(reason)}
	}
	return []errors.SiskinError{&errors.RuntimeError{Msg: what + " never settled"}}
}

func (s *Session) hostSpecifier(specifier string) string {
	switch {
	case filepath.IsAbs(specifier),
		strings.HasPrefix(specifier, "./"),
		strings.HasPrefix(specifier, "../"),
		s.natives.CanResolve(specifier),
		s.memory.GetModule(specifier) != nil:
		return specifier
	}
	return "./" + specifier
}

// instantiate turns a fetched source into a module record of realm, reusing
// the realm's cached record for the same path and attributes.
func (s *Session) instantiate(realm *vm.Realm, record *modules.SourceRecord, attrs []parser.ImportAttribute) (vm.ModuleRecord, error) {
	key := vm.ModuleCacheKey(record.ResolvedPath, attrs)
	if m, ok := realm.Modules().Get(key); ok {
		debugPrintf("module cache hit %s", key)
		return m, nil
	}

	asJSON := importType(attrs) == "json"
	var m vm.ModuleRecord
	switch {
	case record.Kind == modules.SourceNative:
		if asJSON {
			return nil, fmt.Errorf("Cannot import native module '%s' as JSON", record.Specifier)
		}
		nm, ok := record.Native.(*NativeModule)
		if !ok {
			return nil, fmt.Errorf("Cannot load module '%s': unknown native module", record.Specifier)
		}
		sm, err := nm.Instantiate(realm)
		if err != nil {
			return nil, err
		}
		m = sm
	case asJSON:
		sm, err := realm.CreateJSONModule(record.ResolvedPath, record.Content)
		if err != nil {
			return nil, err
		}
		m = sm
	case record.Kind == modules.SourceJSON:
		return nil, fmt.Errorf("Cannot import JSON module '%s' without type: \"json\"", record.Specifier)
	default:
		sm, err := realm.ParseModule(record.Content, vm.ModuleOptions{Specifier: record.ResolvedPath, HostDefined: record})
		if err != nil {
			if se, ok := err.(errors.SiskinError); ok && se.Kind() == "Syntax" {
				s.syntaxErrs = append(s.syntaxErrs, se)
			}
			return nil, err
		}
		m = sm
	}
	realm.Modules().Put(key, m)
	debugPrintf("module %s instantiated (%s, %s)", key, record.Kind, record.Resolver)
	return m, nil
}

// loadImportedModule is the agent's module loading hook. The source is
// read on the loader's worker pool; compilation happens back on the agent
// thread in a posted job.
func (s *Session) loadImportedModule(referrer vm.Referrer, specifier string, attrs []parser.ImportAttribute, hostDefined any, finish vm.FinishLoading) {
	if err := s.checkAttributes(attrs); err != nil {
		finish(nil, err)
		return
	}
	realm := referrerRealm(referrer, s.realm)
	from := referrerPath(referrer)
	jobs := s.agent.Jobs()
	jobs.BeginExternalOp()
	s.loader.FetchAsync(specifier, from, func(record *modules.SourceRecord, err error) {
		jobs.Post(func() {
			realm.Scope(func() {
				if err != nil {
					finish(nil, err)
					return
				}
				m, err := s.instantiate(realm, record, attrs)
				if err != nil {
					finish(nil, err)
					return
				}
				finish(m, nil)
			})
		})
	})
}

func (s *Session) checkAttributes(attrs []parser.ImportAttribute) error {
	for _, attr := range attrs {
		if attr.Key != "type" {
			return fmt.Errorf("Unsupported import attribute '%s'", attr.Key)
		}
		if attr.Value != "json" {
			return fmt.Errorf("Unsupported module type '%s'", attr.Value)
		}
		if !s.agent.HasFeature(vm.FeatureJSONModules) {
			return fmt.Errorf("JSON modules are not enabled (feature %s)", vm.FeatureJSONModules)
		}
	}
	return nil
}

func importType(attrs []parser.ImportAttribute) string {
	for _, attr := range attrs {
		if attr.Key == "type" {
			return attr.Value
		}
	}
	return ""
}

// referrerPath is the path imports of referrer resolve against. Realms and
// synthetic script names like "<eval>" resolve against the base directory.
func referrerPath(referrer vm.Referrer) string {
	if referrer == nil {
		return ""
	}
	spec := referrer.Specifier()
	if spec == "" || strings.HasPrefix(spec, "<") {
		return ""
	}
	return spec
}

func referrerRealm(referrer vm.Referrer, fallback *vm.Realm) *vm.Realm {
	switch r := referrer.(type) {
	case *vm.Realm:
		return r
	case *vm.Script:
		return r.Realm
	case vm.ModuleRecord:
		return r.Realm()
	}
	return fallback
}

// importMeta supplies import.meta.url, filename and dirname.
func (s *Session) importMeta(m *vm.SourceTextModule) map[string]vm.Value {
	path := m.Specifier()
	url := path
	if filepath.IsAbs(path) {
		url = "file://" + filepath.ToSlash(path)
	}
	return map[string]vm.Value{
		"url":      vm.NewString(url),
		"filename": vm.NewString(path),
		"dirname":  vm.NewString(filepath.Dir(path)),
	}
}

func (s *Session) trackRejection(p *vm.Object, op vm.RejectionOperation) {
	debugPrintf("rejection %s", op)
	switch op {
	case vm.RejectionReject:
		if !slices.Contains(s.rejections, p) {
			s.rejections = append(s.rejections, p)
		}
	case vm.RejectionHandle:
		s.forgetRejection(p)
	}
}

func (s *Session) forgetRejection(p *vm.Object) {
	s.rejections = slices.DeleteFunc(s.rejections, func(q *vm.Object) bool { return q == p })
}

// uncaughtThrow records a throw that escaped a host callback.
func (s *Session) uncaughtThrow(c *vm.Completion) {
	s.uncaught = append(s.uncaught, vm.NewException(c).RuntimeError())
}

func (s *Session) reportError(v vm.Value) {
	s.uncaught = append(s.uncaught, s.thrown(v))
}

func (s *Session) thrown(v vm.Value) errors.SiskinError {
	return (&vm.Exception{Value: v}).RuntimeError()
}

// finishRun appends host-collected errors and unhandled rejections, then
// runs the configured after-run work.
func (s *Session) finishRun(errs []errors.SiskinError) []errors.SiskinError {
	errs = append(errs, s.uncaught...)
	s.uncaught = nil
	for _, p := range s.rejections {
		data, ok := p.Internal.(*vm.PromiseData)
		if !ok || data.State != vm.PromiseRejected || data.IsHandled {
			continue
		}
		rt := s.thrown(data.Result).(*errors.RuntimeError)
		rt.Msg = "(in promise) " + rt.Msg
		errs = append(errs, rt)
	}
	s.rejections = s.rejections[:0]
	s.syntaxErrs = nil

	if s.config.GCAfterRun {
		stats := s.agent.GC()
		s.tracef("gc: %s", stats)
	}
	s.traceLoader()
	return errs
}

func (s *Session) tracef(format string, args ...any) {
	if s.opts.Tracef != nil {
		s.opts.Tracef(format, args...)
	}
}

func (s *Session) traceLoader() {
	if s.opts.Tracef == nil {
		return
	}
	stats := s.loader.GetStats()
	s.tracef("modules: %d fetched in %s, %d cached (%d hits, %d misses), %d in realm",
		stats.Fetches, stats.TotalFetchTime, stats.Registry.TotalModules,
		stats.Registry.CacheHits, stats.Registry.CacheMisses, s.realm.Modules().Len())
	s.tracef("import graph: %d modules, %d edges, depth %d",
		stats.Graph.TotalModules, stats.Graph.TotalDependencies, stats.Graph.MaxDepth)
	if len(stats.Graph.CircularDeps) > 0 {
		s.tracef("import cycles through: %s", strings.Join(stats.Graph.CircularDeps, ", "))
	}
	if stats.WorkerPool.TotalJobs > 0 {
		s.tracef("fetch pool: %d workers, %d jobs (%d failed)",
			stats.WorkerPool.WorkerCount, stats.WorkerPool.TotalJobs, stats.WorkerPool.FailedJobs)
	}
}

// Close stops pending timers and the loader's worker pool. The session must
// not be used afterwards.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.timers.stopAll()
	err := s.loader.Close()
	s.agent.Close()
	return err
}

// DisplayResult prints errors to stderr and a non-undefined value to
// stdout. It reports whether there were no errors.
func (s *Session) DisplayResult(value vm.Value, errs []errors.SiskinError) bool {
	if len(errs) > 0 {
		s.DisplayErrors(errs)
		return false
	}
	if value != nil && !vm.IsUndefined(value) {
		fmt.Fprintln(s.opts.Stdout, vm.Inspect(value))
	}
	return true
}

// DisplayErrors prints errs with the session's colour setting.
func (s *Session) DisplayErrors(errs []errors.SiskinError) {
	for _, err := range errs {
		s.printer.Print(err)
		fmt.Fprintln(s.opts.Stderr)
	}
}

// ExitCode maps run errors onto a process exit code.
func ExitCode(errs []errors.SiskinError) int {
	if len(errs) == 0 {
		return ExitOK
	}
	for _, err := range errs {
		if err.Kind() == "Syntax" {
			return ExitSyntax
		}
	}
	return ExitRuntime
}

func asSiskinError(err error) errors.SiskinError {
	switch e := err.(type) {
	case errors.SiskinError:
		return e
	case *vm.Exception:
		return e.RuntimeError()
	}
	return &errors.LoadError{Msg: err.Error(), Cause: err}
}

func (s *Session) colorEnabled() bool {
	if s.config.Color != nil {
		return *s.config.Color
	}
	return os.Getenv("NO_COLOR") == "" && IsTerminal(s.opts.Stderr)
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

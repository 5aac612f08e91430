package vm

import (
	"fmt"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/unistring"

	"siskin/pkg/parser"
	"siskin/pkg/source"
)

// ModuleOptions name a module for resolution and stack traces.
type ModuleOptions struct {
	// Specifier is the resolved path or URL the module was loaded from.
	Specifier   string
	HostDefined any
}

// SourceTextModule is a module written in the language.
type SourceTextModule struct {
	CyclicModule

	Program *parser.Program

	importMeta *Object
	ctx        *ExecutionContext
}

// CompileModule parses src as a module of r. The module still has to be
// loaded, linked and evaluated. A syntax error is a Throw completion
// carrying a SyntaxError, as with EvaluateScript.
func (r *Realm) CompileModule(src string, opts ModuleOptions) (m *SourceTextModule, c *Completion) {
	m, err := r.ParseModule(src, opts)
	if err != nil {
		r.Scope(func() { c = r.agent.ThrowGoError(err) })
		return nil, c
	}
	return m, nil
}

// ParseModule is CompileModule for hosts that want the positioned Go
// error, such as *errors.SyntaxError, instead of a completion.
func (r *Realm) ParseModule(src string, opts ModuleOptions) (*SourceTextModule, error) {
	name := opts.Specifier
	if name == "" {
		name = "<module>"
	}
	prog, err := parser.ParseModule(source.NewSourceFile(name, opts.Specifier, src))
	if err != nil {
		return nil, err
	}
	m := &SourceTextModule{Program: prog}
	m.moduleBase = newModuleBase(r, opts.Specifier, opts.HostDefined)
	m.status = ModuleNew
	m.RequestedModules = prog.Module.Requests
	m.hasTLA = prog.HasTopLevelAwait
	debugModulePrintf("compiled %s: %d requests, tla=%v", name, len(m.RequestedModules), m.hasTLA)
	return m, nil
}

func (m *SourceTextModule) Mark(visit Visitor) {
	m.CyclicModule.Mark(visit)
	if m.importMeta != nil {
		visit(m.importMeta)
	}
	if m.ctx != nil {
		visit(m.ctx)
	}
}

func (m *SourceTextModule) LoadRequestedModules(hostDefined any) *PromiseCapability {
	return m.realm.agent.loadRequestedModules(m, hostDefined)
}

func (m *SourceTextModule) Link() *Completion { return link(m) }

func (m *SourceTextModule) Evaluate() *PromiseCapability { return evaluate(m) }

func (m *SourceTextModule) requested(index int) ModuleRecord {
	return getImportedModule(m, m.Program.Module.Requests[index])
}

func (m *SourceTextModule) GetExportedNames(exportStarSet map[ModuleRecord]bool) []String {
	if exportStarSet[m] {
		return nil
	}
	exportStarSet[m] = true
	syntax := m.Program.Module
	var names []String
	for _, e := range syntax.LocalExports {
		names = append(names, String(e.ExportName))
	}
	for _, e := range syntax.IndirectExports {
		names = append(names, String(e.ExportName))
	}
	for _, e := range syntax.StarExports {
		for _, n := range m.requested(e.ModuleRequest).GetExportedNames(exportStarSet) {
			if n == "default" || containsString(names, n) {
				continue
			}
			names = append(names, n)
		}
	}
	return names
}

func containsString(list []String, s String) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func (m *SourceTextModule) ResolveExport(name String, set resolveSet) (*ResolvedBinding, bool) {
	key := resolveEntry{module: m, name: name}
	if set[key] {
		// circular import request
		return nil, false
	}
	set[key] = true
	syntax := m.Program.Module
	for _, e := range syntax.LocalExports {
		if String(e.ExportName) == name {
			return &ResolvedBinding{Module: m, BindingName: String(e.LocalName)}, false
		}
	}
	for _, e := range syntax.IndirectExports {
		if String(e.ExportName) != name {
			continue
		}
		imported := m.requested(e.ModuleRequest)
		if e.ImportKind == parser.ImportAll {
			return &ResolvedBinding{Module: imported, Namespace: true}, false
		}
		return imported.ResolveExport(String(e.ImportName), set)
	}
	if name == "default" {
		return nil, false
	}
	var star *ResolvedBinding
	for _, e := range syntax.StarExports {
		resolution, ambiguous := m.requested(e.ModuleRequest).ResolveExport(name, set)
		if ambiguous {
			return nil, true
		}
		if resolution == nil {
			continue
		}
		if star == nil {
			star = resolution
			continue
		}
		if resolution.Module != star.Module || resolution.Namespace != star.Namespace || resolution.BindingName != star.BindingName {
			return nil, true
		}
	}
	return star, false
}

func unresolvableImport(a *Agent, specifier string, name String, ambiguous bool) *Completion {
	if ambiguous {
		return a.ThrowSyntaxError(fmt.Sprintf("The requested module '%s' contains conflicting star exports for name '%s'", specifier, name))
	}
	return a.ThrowSyntaxError(fmt.Sprintf("The requested module '%s' does not provide an export named '%s'", specifier, name))
}

func (m *SourceTextModule) initializeEnvironment() *Completion {
	a, realm := m.realm.agent, m.realm
	syntax := m.Program.Module
	for _, e := range syntax.IndirectExports {
		resolution, ambiguous := m.ResolveExport(String(e.ExportName), resolveSet{})
		if resolution == nil || ambiguous {
			return unresolvableImport(a, syntax.Requests[e.ModuleRequest].Specifier, String(e.ImportName), ambiguous)
		}
	}

	env := NewModuleEnvironment(realm.GlobalEnv)
	m.environment = env
	for _, ie := range syntax.Imports {
		imported := m.requested(ie.ModuleRequest)
		local := String(ie.LocalName)
		if ie.Namespace {
			MustNormal(env.CreateImmutableBinding(a, local, true))
			MustNormal(env.InitializeBinding(a, local, GetModuleNamespace(a, imported)))
			continue
		}
		resolution, ambiguous := imported.ResolveExport(String(ie.ImportName), resolveSet{})
		if resolution == nil || ambiguous {
			return unresolvableImport(a, syntax.Requests[ie.ModuleRequest].Specifier, String(ie.ImportName), ambiguous)
		}
		if resolution.Namespace {
			MustNormal(env.CreateImmutableBinding(a, local, true))
			MustNormal(env.InitializeBinding(a, local, GetModuleNamespace(a, resolution.Module)))
			continue
		}
		env.CreateImportBinding(local, resolution.Module, resolution.BindingName)
	}

	ctx := &ExecutionContext{
		Realm:               realm,
		ScriptOrModule:      m,
		LexicalEnvironment:  env,
		VariableEnvironment: env,
		strict:              true,
		program:             m.Program,
	}
	m.ctx = ctx
	if c := a.pushContext(ctx); c != nil {
		return c
	}
	defer a.popContext(ctx)

	declared := map[unistring.String]bool{parser.DefaultBindingName: true}
	for _, d := range parser.VarScopedDeclarations(m.Program.Body, false) {
		for _, name := range parser.BoundNames(d) {
			if declared[name] {
				continue
			}
			declared[name] = true
			MustNormal(env.CreateMutableBinding(a, String(name), false))
			MustNormal(env.InitializeBinding(a, String(name), Undefined))
		}
	}
	if syntax.DefaultExpression != nil {
		MustNormal(env.CreateMutableBinding(a, String(parser.DefaultBindingName), false))
	}
	for _, d := range parser.LexicallyScopedDeclarations(m.Program.Body, false) {
		constant := parser.IsConstantDeclaration(d)
		for _, name := range parser.BoundNames(d) {
			if constant {
				MustNormal(env.CreateImmutableBinding(a, String(name), true))
			} else {
				MustNormal(env.CreateMutableBinding(a, String(name), false))
			}
		}
		if fd, ok := d.(*ast.FunctionDeclaration); ok {
			fo := a.InstantiateFunctionObject(fd.Function, env, nil)
			MustNormal(env.InitializeBinding(a, String(parser.BoundNames(d)[0]), fo))
		}
	}
	return nil
}

func (m *SourceTextModule) executeModule(capability *PromiseCapability) *Completion {
	a := m.realm.agent
	ctx := m.ctx
	m.ctx = nil
	if capability == nil {
		if c := a.pushContext(ctx); c != nil {
			return c
		}
		defer a.popContext(ctx)
		result := a.evaluateStatementList(m.Program.Body)
		if result.Type == Throw {
			return &result
		}
		return nil
	}
	co := a.newCoroutine([]*ExecutionContext{ctx}, func(co *coroutine) Completion {
		result := a.evaluateStatementList(m.Program.Body)
		settleAsync(a, capability, result)
		return result
	})
	co.roots = []Marker{capability}
	co.run(resumeNormal(Undefined))
	return nil
}

package vm

import (
	"sort"

	"github.com/dop251/goja/ast"

	"siskin/pkg/errors"
	"siskin/pkg/parser"
)

// supportedImportAttributes lists the attribute keys the loader understands.
var supportedImportAttributes = map[string]bool{"type": true}

// dynamicImportState waits for the host to load the module of an import()
// call.
type dynamicImportState struct {
	capability *PromiseCapability
}

func (s *dynamicImportState) Mark(visit Visitor) {
	s.capability.Mark(visit)
}

func (s *dynamicImportState) continueLoading(a *Agent, m ModuleRecord, c *Completion) {
	delete(a.loading, s)
	a.continueDynamicImport(s.capability, m, c)
}

// evaluateImportCall implements import(specifier [, options]).
func (a *Agent) evaluateImportCall(e *ast.CallExpression) (Value, *Completion) {
	var referrer Referrer = a.CurrentRealm()
	if active := a.GetActiveScriptOrModule(); active != nil {
		referrer = active
	}
	specifier, c := a.evaluate(e.ArgumentList[0])
	if c != nil {
		return nil, c
	}
	var options Value = Undefined
	if len(e.ArgumentList) > 1 {
		if options, c = a.evaluate(e.ArgumentList[1]); c != nil {
			return nil, c
		}
	}
	capability := Must(NewPromiseCapability(a, a.CurrentRealm().Intrinsics.Promise))
	specifierString, c := ToString(a, specifier)
	if c != nil {
		return capability.rejectAbrupt(a, c)
	}
	attrs, c := a.importAttributes(options)
	if c != nil {
		return capability.rejectAbrupt(a, c)
	}
	req := parser.ModuleRequest{Specifier: specifierString.String(), Attributes: attrs}
	if m, ok := referrer.loadedModules()[req.Key()]; ok {
		a.continueDynamicImport(capability, m, nil)
		return capability.Promise, nil
	}
	state := &dynamicImportState{capability: capability}
	a.loading[state] = struct{}{}
	a.hostLoadImportedModule(referrer, req, nil, state)
	return capability.Promise, nil
}

// importAttributes reads the `with` object of import() options.
func (a *Agent) importAttributes(options Value) ([]parser.ImportAttribute, *Completion) {
	if options == Undefined {
		return nil, nil
	}
	opts, ok := options.(*Object)
	if !ok {
		return nil, a.ThrowTypeError("The second argument to import() must be an object")
	}
	with, c := Get(a, opts, String("with"))
	if c != nil || with == Undefined {
		return nil, c
	}
	withObj, ok := with.(*Object)
	if !ok {
		return nil, a.ThrowTypeError("The 'with' option must be an object")
	}
	entries, c := EnumerableOwnProperties(a, withObj, EnumerateKeys)
	if c != nil {
		return nil, c
	}
	var attrs []parser.ImportAttribute
	for _, k := range entries {
		key := k.(String)
		v, c := Get(a, withObj, key)
		if c != nil {
			return nil, c
		}
		s, ok := v.(String)
		if !ok {
			return nil, a.ThrowTypeError("Import attribute value must be a string")
		}
		attrs = append(attrs, parser.ImportAttribute{Key: key.String(), Value: s.String()})
	}
	for _, attr := range attrs {
		if !supportedImportAttributes[attr.Key] {
			return nil, a.ThrowSyntaxError("Unsupported import attribute '" + attr.Key + "'")
		}
	}
	return attrs, nil
}

// continueDynamicImport loads, links and evaluates the graph of m, then
// resolves capability with its namespace.
func (a *Agent) continueDynamicImport(capability *PromiseCapability, m ModuleRecord, c *Completion) {
	if c != nil {
		MustNormal(capability.Reject(a, c.Value))
		return
	}
	realm := a.CurrentRealm()
	onRejected := NewNativeFunction(realm, "", 1, func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		MustNormal(capability.Reject(a, Arg(args, 0)))
		return Undefined, nil
	}, capability)
	linkAndEvaluate := NewNativeFunction(realm, "", 0, func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		if c := m.Link(); c != nil {
			MustNormal(capability.Reject(a, c.Value))
			return Undefined, nil
		}
		onFulfilled := NewNativeFunction(a.CurrentRealm(), "", 0, func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
			MustNormal(capability.Resolve(a, GetModuleNamespace(a, m)))
			return Undefined, nil
		}, capability, m)
		PerformPromiseThen(a, m.Evaluate().Promise, onFulfilled, onRejected, nil)
		return Undefined, nil
	}, capability, m, onRejected)
	PerformPromiseThen(a, m.LoadRequestedModules(nil).Promise, linkAndEvaluate, onRejected, nil)
}

// importMeta returns the import.meta object of the running module.
func (a *Agent) importMeta() Value {
	m, ok := a.GetActiveScriptOrModule().(*SourceTextModule)
	errors.Assert(ok, "import.meta outside a source text module")
	if m.importMeta != nil {
		return m.importMeta
	}
	o := OrdinaryObjectCreate(nil)
	if hook := a.options.GetImportMetaProperties; hook != nil {
		props := hook(m)
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			o.Put(NewString(k), props[k], AttrAll)
		}
	}
	m.importMeta = o
	return o
}

package vm

import (
	"fmt"

	"siskin/pkg/errors"
	"siskin/pkg/parser"
)

// loadPayload is told the outcome of a host module load.
type loadPayload interface {
	Marker
	continueLoading(a *Agent, m ModuleRecord, c *Completion)
}

// graphLoadingState tracks one LoadRequestedModules call: how many loads
// are still outstanding and which modules were already walked.
type graphLoadingState struct {
	capability  *PromiseCapability
	isLoading   bool
	pending     int
	visited     map[cyclicModule]bool
	hostDefined any
}

func (s *graphLoadingState) Mark(visit Visitor) {
	s.capability.Mark(visit)
	for m := range s.visited {
		visit(m)
	}
	if h, ok := s.hostDefined.(Marker); ok {
		visit(h)
	}
}

func (a *Agent) loadRequestedModules(m cyclicModule, hostDefined any) *PromiseCapability {
	capability := Must(NewPromiseCapability(a, m.Realm().Intrinsics.Promise))
	state := &graphLoadingState{
		capability:  capability,
		isLoading:   true,
		pending:     1,
		visited:     make(map[cyclicModule]bool),
		hostDefined: hostDefined,
	}
	a.loading[state] = struct{}{}
	a.innerModuleLoading(state, m)
	return capability
}

func (a *Agent) innerModuleLoading(state *graphLoadingState, module ModuleRecord) {
	if cm, ok := module.(cyclicModule); ok && cm.cyclic().status == ModuleNew && !state.visited[cm] {
		state.visited[cm] = true
		requests := cm.cyclic().RequestedModules
		state.pending += len(requests)
		for _, req := range requests {
			if loaded, ok := cm.loadedModules()[req.Key()]; ok {
				a.innerModuleLoading(state, loaded)
			} else {
				a.hostLoadImportedModule(cm, req, state.hostDefined, state)
			}
			if !state.isLoading {
				return
			}
		}
	}
	state.pending--
	if state.pending > 0 {
		return
	}
	state.isLoading = false
	for m := range state.visited {
		if m.cyclic().status == ModuleNew {
			m.cyclic().status = ModuleUnlinked
		}
	}
	delete(a.loading, state)
	MustNormal(state.capability.Resolve(a, Undefined))
}

func (state *graphLoadingState) continueLoading(a *Agent, m ModuleRecord, c *Completion) {
	if !state.isLoading {
		return
	}
	if c != nil {
		state.isLoading = false
		delete(a.loading, state)
		MustNormal(state.capability.Reject(a, c.Value))
		return
	}
	a.innerModuleLoading(state, m)
}

// hostLoadImportedModule asks the host for the module req names. The host
// may finish synchronously or from a later job. A failing or panicking
// loader becomes a Throw completion.
func (a *Agent) hostLoadImportedModule(referrer Referrer, req parser.ModuleRequest, hostDefined any, payload loadPayload) {
	debugModulePrintf("load %q from %q", req.Specifier, referrer.Specifier())
	finished, finishing := false, false
	finish := func(m ModuleRecord, err error) {
		errors.Assert(!finished, "module load of "+req.Specifier+" finished twice")
		errors.Assert((m == nil) != (err == nil), "module load must finish with a module or an error")
		finished, finishing = true, true
		defer func() { finishing = false }()
		var c *Completion
		if err != nil {
			c = a.ThrowGoError(err)
		}
		a.finishLoadingImportedModule(referrer, req, payload, m, c)
	}
	hook := a.options.LoadImportedModule
	if hook == nil {
		finish(nil, fmt.Errorf("Cannot load module '%s': no module loader", req.Specifier))
		return
	}
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if _, ok := r.(*errors.AssertionError); ok || finishing || finished {
			panic(r)
		}
		finish(nil, fmt.Errorf("loading module '%s': %v", req.Specifier, r))
	}()
	hook(referrer, req.Specifier, req.Attributes, hostDefined, finish)
}

func (a *Agent) finishLoadingImportedModule(referrer Referrer, req parser.ModuleRequest, payload loadPayload, m ModuleRecord, c *Completion) {
	if c == nil {
		key := req.Key()
		if existing, ok := referrer.loadedModules()[key]; ok {
			errors.Assert(existing == m, "module request "+req.Specifier+" resolved to two modules")
		} else {
			referrer.loadedModules()[key] = m
		}
	}
	payload.continueLoading(a, m, c)
}

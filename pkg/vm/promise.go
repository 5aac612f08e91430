package vm

import "fmt"

// --- Debug Flag ---
const debugPromise = false

func debugPromisePrintf(format string, args ...interface{}) {
	if debugPromise {
		fmt.Printf("[Promise Debug] "+format+"\n", args...)
	}
}

// --- End Debug Flag ---

// PromiseState is the settlement state of a promise.
type PromiseState uint8

const (
	PromisePending PromiseState = iota
	PromiseFulfilled
	PromiseRejected
)

func (s PromiseState) String() string {
	switch s {
	case PromiseFulfilled:
		return "fulfilled"
	case PromiseRejected:
		return "rejected"
	default:
		return "pending"
	}
}

type reactionType uint8

const (
	reactionFulfill reactionType = iota
	reactionReject
)

// promiseReaction is a handler waiting for a promise to settle. A nil
// capability marks reactions created by await, whose result is discarded.
type promiseReaction struct {
	capability *PromiseCapability
	kind       reactionType
	handler    Value
}

func (r *promiseReaction) Mark(visit Visitor) {
	if r.capability != nil {
		r.capability.Mark(visit)
	}
	visitValue(visit, r.handler)
}

// PromiseData is the internal state of a promise object.
type PromiseData struct {
	State     PromiseState
	Result    Value
	IsHandled bool

	fulfillReactions []*promiseReaction
	rejectReactions  []*promiseReaction
}

func (p *PromiseData) Mark(visit Visitor) {
	visitValue(visit, p.Result)
	for _, r := range p.fulfillReactions {
		r.Mark(visit)
	}
	for _, r := range p.rejectReactions {
		r.Mark(visit)
	}
}

// IsPromise reports whether v is a promise object.
func IsPromise(v Value) bool {
	o, ok := v.(*Object)
	if !ok {
		return false
	}
	_, ok = o.Internal.(*PromiseData)
	return ok
}

// PromiseCapability is a promise with the functions that settle it.
type PromiseCapability struct {
	Promise *Object
	resolve Value
	reject  Value
}

func (c *PromiseCapability) Mark(visit Visitor) {
	if c.Promise != nil {
		visit(c.Promise)
	}
	visitValue(visit, c.resolve)
	visitValue(visit, c.reject)
}

// Resolve calls the capability's resolve function.
func (c *PromiseCapability) Resolve(a *Agent, v Value) *Completion {
	_, abrupt := Call(a, c.resolve, Undefined, []Value{v})
	return abrupt
}

// Functions returns the resolving functions, as Promise.withResolvers
// exposes them.
func (c *PromiseCapability) Functions() (resolve, reject Value) {
	return c.resolve, c.reject
}

// Reject calls the capability's reject function.
func (c *PromiseCapability) Reject(a *Agent, v Value) *Completion {
	_, abrupt := Call(a, c.reject, Undefined, []Value{v})
	return abrupt
}

// rejectAbrupt rejects the capability with a thrown value and returns its
// promise, as IfAbruptRejectPromise does.
func (c *PromiseCapability) rejectAbrupt(a *Agent, abrupt *Completion) (Value, *Completion) {
	if abrupt.Type != Throw {
		return nil, abrupt
	}
	if rc := c.Reject(a, abrupt.Value); rc != nil {
		return nil, rc
	}
	return c.Promise, nil
}

// Settled reports the state of the capability's promise when it is an
// intrinsic promise.
func (c *PromiseCapability) Settled() (PromiseState, Value) {
	if data, ok := c.Promise.Internal.(*PromiseData); ok {
		return data.State, data.Result
	}
	return PromisePending, nil
}

// capabilityExecutor collects the functions a promise constructor passes
// to its executor.
type capabilityExecutor struct {
	resolve, reject Value
}

func (e *capabilityExecutor) Mark(visit Visitor) {
	visitValue(visit, e.resolve)
	visitValue(visit, e.reject)
}

// NewPromiseCapability creates a promise through ctor along with its
// resolving functions.
func NewPromiseCapability(a *Agent, ctor Value) (*PromiseCapability, *Completion) {
	if !IsConstructor(ctor) {
		return nil, a.ThrowTypeError(fmt.Sprintf("%s is not a constructor", Inspect(ctor)))
	}
	c := ctor.(*Object)
	if realm := a.CurrentRealm(); c == realm.Intrinsics.Promise {
		p := newPromise(realm.Intrinsics.PromisePrototype)
		resolve, reject := createResolvingFunctions(a, p)
		return &PromiseCapability{Promise: p, resolve: resolve, reject: reject}, nil
	}
	collected := &capabilityExecutor{resolve: Undefined, reject: Undefined}
	executor := NewNativeFunction(a.CurrentRealm(), "", 2, func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		if !IsUndefined(collected.resolve) || !IsUndefined(collected.reject) {
			return nil, a.ThrowTypeError("Promise executor has already been invoked with non-undefined arguments")
		}
		collected.resolve, collected.reject = Arg(args, 0), Arg(args, 1)
		return Undefined, nil
	}, collected)
	promise, abrupt := Construct(a, c, []Value{executor}, nil)
	if abrupt != nil {
		return nil, abrupt
	}
	if !IsCallable(collected.resolve) {
		return nil, a.ThrowTypeError("Promise resolve function is not callable")
	}
	if !IsCallable(collected.reject) {
		return nil, a.ThrowTypeError("Promise reject function is not callable")
	}
	return &PromiseCapability{Promise: promise, resolve: collected.resolve, reject: collected.reject}, nil
}

func newPromise(proto *Object) *Object {
	p := OrdinaryObjectCreate(proto)
	p.Class = "Promise"
	p.Internal = &PromiseData{}
	return p
}

// resolvingState is shared by the resolve and reject functions of one
// promise so only the first call counts.
type resolvingState struct {
	promise  *Object
	resolved bool
}

func (s *resolvingState) Mark(visit Visitor) {
	visit(s.promise)
}

func createResolvingFunctions(a *Agent, p *Object) (resolve, reject *Object) {
	realm := a.CurrentRealm()
	state := &resolvingState{promise: p}
	resolve = NewNativeFunction(realm, "", 1, func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		if state.resolved {
			return Undefined, nil
		}
		state.resolved = true
		resolvePromise(a, state.promise, Arg(args, 0))
		return Undefined, nil
	}, state)
	reject = NewNativeFunction(realm, "", 1, func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		if state.resolved {
			return Undefined, nil
		}
		state.resolved = true
		RejectPromise(a, state.promise, Arg(args, 0))
		return Undefined, nil
	}, state)
	return resolve, reject
}

// resolvePromise adopts the state of a thenable resolution or fulfills p
// with it.
func resolvePromise(a *Agent, p *Object, resolution Value) {
	if resolution == Value(p) {
		c := a.ThrowTypeError("Chaining cycle detected for promise")
		RejectPromise(a, p, c.Value)
		return
	}
	o, ok := resolution.(*Object)
	if !ok {
		FulfillPromise(a, p, resolution)
		return
	}
	then, c := Get(a, o, String("then"))
	if c != nil {
		RejectPromise(a, p, c.Value)
		return
	}
	if !IsCallable(then) {
		FulfillPromise(a, p, resolution)
		return
	}
	thenObj := then.(*Object)
	realm := GetFunctionRealm(a, thenObj)
	debugPromisePrintf("queueing thenable job for %s", Inspect(resolution))
	a.EnqueueJob(realm, func() {
		resolve, reject := createResolvingFunctions(a, p)
		if _, c := Call(a, thenObj, o, []Value{resolve, reject}); c != nil {
			Call(a, reject, Undefined, []Value{c.Value})
		}
	}, p, o, thenObj)
}

// FulfillPromise settles a pending promise with v.
func FulfillPromise(a *Agent, p *Object, v Value) {
	data := p.Internal.(*PromiseData)
	reactions := data.fulfillReactions
	data.State, data.Result = PromiseFulfilled, v
	data.fulfillReactions, data.rejectReactions = nil, nil
	triggerPromiseReactions(a, reactions, v)
}

// RejectPromise settles a pending promise with reason.
func RejectPromise(a *Agent, p *Object, reason Value) {
	data := p.Internal.(*PromiseData)
	reactions := data.rejectReactions
	data.State, data.Result = PromiseRejected, reason
	data.fulfillReactions, data.rejectReactions = nil, nil
	if !data.IsHandled {
		a.trackRejection(p, RejectionReject)
	}
	triggerPromiseReactions(a, reactions, reason)
}

func triggerPromiseReactions(a *Agent, reactions []*promiseReaction, argument Value) {
	for _, r := range reactions {
		a.enqueueReactionJob(r, argument)
	}
}

func (a *Agent) enqueueReactionJob(r *promiseReaction, argument Value) {
	realm := a.CurrentRealm()
	if h, ok := r.handler.(*Object); ok {
		realm = GetFunctionRealm(a, h)
	}
	a.EnqueueJob(realm, func() {
		promiseReactionJob(a, r, argument)
	}, r, heldValues{argument})
}

func promiseReactionJob(a *Agent, r *promiseReaction, argument Value) {
	var (
		result Value
		abrupt *Completion
	)
	if IsUndefined(r.handler) {
		if r.kind == reactionFulfill {
			result = argument
		} else {
			abrupt = ThrowCompletion(argument)
		}
	} else {
		result, abrupt = Call(a, r.handler, Undefined, []Value{argument})
	}
	if r.capability == nil {
		if abrupt != nil {
			a.ReportError(abrupt.Value)
		}
		return
	}
	if abrupt != nil {
		r.capability.Reject(a, abrupt.Value)
		return
	}
	r.capability.Resolve(a, result)
}

// PerformPromiseThen registers reactions on p. A nil capability discards
// the derived result, as await does.
func PerformPromiseThen(a *Agent, p *Object, onFulfilled, onRejected Value, capability *PromiseCapability) Value {
	if !IsCallable(onFulfilled) {
		onFulfilled = Undefined
	}
	if !IsCallable(onRejected) {
		onRejected = Undefined
	}
	fulfill := &promiseReaction{capability: capability, kind: reactionFulfill, handler: onFulfilled}
	reject := &promiseReaction{capability: capability, kind: reactionReject, handler: onRejected}
	data := p.Internal.(*PromiseData)
	switch data.State {
	case PromisePending:
		data.fulfillReactions = append(data.fulfillReactions, fulfill)
		data.rejectReactions = append(data.rejectReactions, reject)
	case PromiseFulfilled:
		a.enqueueReactionJob(fulfill, data.Result)
	case PromiseRejected:
		if !data.IsHandled {
			a.trackRejection(p, RejectionHandle)
		}
		a.enqueueReactionJob(reject, data.Result)
	}
	data.IsHandled = true
	if capability == nil {
		return Undefined
	}
	return capability.Promise
}

// PromiseResolve returns x when it is already a promise made by ctor,
// otherwise a new promise resolved with x.
func PromiseResolve(a *Agent, ctor *Object, x Value) (*Object, *Completion) {
	if IsPromise(x) {
		xc, c := Get(a, x.(*Object), String("constructor"))
		if c != nil {
			return nil, c
		}
		if xc == Value(ctor) {
			return x.(*Object), nil
		}
	}
	capability, c := NewPromiseCapability(a, ctor)
	if c != nil {
		return nil, c
	}
	if c := capability.Resolve(a, x); c != nil {
		return nil, c
	}
	return capability.Promise, nil
}

// NewResolvedPromise returns an intrinsic promise fulfilled with v, or
// adopting v when it is a thenable.
func (a *Agent) NewResolvedPromise(v Value) *Object {
	capability := Must(NewPromiseCapability(a, a.CurrentRealm().Intrinsics.Promise))
	MustNormal(capability.Resolve(a, v))
	return capability.Promise
}

// NewRejectedPromise returns an intrinsic promise rejected with reason.
func (a *Agent) NewRejectedPromise(reason Value) *Object {
	capability := Must(NewPromiseCapability(a, a.CurrentRealm().Intrinsics.Promise))
	MustNormal(capability.Reject(a, reason))
	return capability.Promise
}

func thisPromise(a *Agent, this Value, method string) (*Object, *Completion) {
	if !IsPromise(this) {
		return nil, a.ThrowTypeError(fmt.Sprintf("Method Promise.prototype.%s called on incompatible receiver %s", method, Inspect(this)))
	}
	return this.(*Object), nil
}

func (r *Realm) initPromise() {
	i := &r.Intrinsics
	i.PromisePrototype = OrdinaryObjectCreate(i.ObjectPrototype)
	i.Promise = DefineConstructor(r, "Promise", 1, promiseConstructor, i.PromisePrototype, BuiltinOptions{})
	DefineGetter(r, i.Promise, SymbolSpecies, returnThis)
	i.PromisePrototype.Put(SymbolToStringTag, String("Promise"), AttrConfigurable)

	DefineMethod(r, i.PromisePrototype, "then", 2, promiseThen)
	DefineMethod(r, i.PromisePrototype, "catch", 1, func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		return Invoke(a, this, String("then"), []Value{Undefined, Arg(args, 0)})
	})
	DefineMethod(r, i.PromisePrototype, "finally", 1, promiseFinally)

	DefineMethod(r, i.Promise, "resolve", 1, func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		ctor, ok := this.(*Object)
		if !ok {
			return nil, a.ThrowTypeError("PromiseResolve called on non-object")
		}
		return PromiseResolve(a, ctor, Arg(args, 0))
	})
	DefineMethod(r, i.Promise, "reject", 1, func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		capability, c := NewPromiseCapability(a, this)
		if c != nil {
			return nil, c
		}
		if c := capability.Reject(a, Arg(args, 0)); c != nil {
			return nil, c
		}
		return capability.Promise, nil
	})
}

func promiseConstructor(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
	if newTarget == nil {
		return nil, a.ThrowTypeError("Promise constructor cannot be invoked without 'new'")
	}
	executor := Arg(args, 0)
	if !IsCallable(executor) {
		return nil, a.ThrowTypeError(fmt.Sprintf("Promise resolver %s is not a function", Inspect(executor)))
	}
	proto, c := GetPrototypeFromConstructor(a, newTarget, func(i *Intrinsics) *Object { return i.PromisePrototype })
	if c != nil {
		return nil, c
	}
	p := newPromise(proto)
	resolve, reject := createResolvingFunctions(a, p)
	if _, c := Call(a, executor, Undefined, []Value{resolve, reject}); c != nil {
		if _, rc := Call(a, reject, Undefined, []Value{c.Value}); rc != nil {
			return nil, rc
		}
	}
	return p, nil
}

func promiseThen(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
	p, c := thisPromise(a, this, "then")
	if c != nil {
		return nil, c
	}
	ctor, c := SpeciesConstructor(a, p, a.CurrentRealm().Intrinsics.Promise)
	if c != nil {
		return nil, c
	}
	capability, c := NewPromiseCapability(a, ctor)
	if c != nil {
		return nil, c
	}
	return PerformPromiseThen(a, p, Arg(args, 0), Arg(args, 1), capability), nil
}

// finallyState carries what the finally wrappers close over.
type finallyState struct {
	onFinally Value
	ctor      *Object
}

func (s *finallyState) Mark(visit Visitor) {
	visitValue(visit, s.onFinally)
	visit(s.ctor)
}

func promiseFinally(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
	p, ok := this.(*Object)
	if !ok {
		return nil, a.ThrowTypeError("Promise.prototype.finally called on non-object")
	}
	realm := a.CurrentRealm()
	ctor, c := SpeciesConstructor(a, p, realm.Intrinsics.Promise)
	if c != nil {
		return nil, c
	}
	onFinally := Arg(args, 0)
	if !IsCallable(onFinally) {
		return Invoke(a, p, String("then"), []Value{onFinally, onFinally})
	}
	state := &finallyState{onFinally: onFinally, ctor: ctor}
	// Each wrapper runs onFinally, waits for its result, then passes the
	// original outcome through.
	wrap := func(passThrough func(v Value) NativeFunction) *Object {
		return NewNativeFunction(realm, "", 1, func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
			result, c := Call(a, state.onFinally, Undefined, nil)
			if c != nil {
				return nil, c
			}
			promise, c := PromiseResolve(a, state.ctor, result)
			if c != nil {
				return nil, c
			}
			value := NewNativeFunction(a.CurrentRealm(), "", 0, passThrough(Arg(args, 0)), heldValues{Arg(args, 0)})
			return Invoke(a, promise, String("then"), []Value{value})
		}, state)
	}
	thenFinally := wrap(func(v Value) NativeFunction {
		return func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
			return v, nil
		}
	})
	catchFinally := wrap(func(reason Value) NativeFunction {
		return func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
			return nil, ThrowCompletion(reason)
		}
	})
	return Invoke(a, p, String("then"), []Value{thenFinally, catchFinally})
}

package vm

// Await suspends the running coroutine until v settles. It must be called
// from an async function, async generator or module body.
func (a *Agent) Await(v Value) (Value, *Completion) {
	co := a.currentCoroutine()
	realm := a.CurrentRealm()
	promise, c := PromiseResolve(a, realm.Intrinsics.Promise, v)
	if c != nil {
		return nil, c
	}
	onFulfilled := NewNativeFunction(realm, "", 1, func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		co.run(resumeNormal(Arg(args, 0)))
		return Undefined, nil
	}, co)
	onRejected := NewNativeFunction(realm, "", 1, func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		co.run(resumeAbrupt(ThrowCompletion(Arg(args, 0))))
		return Undefined, nil
	}, co)
	PerformPromiseThen(a, promise, onFulfilled, onRejected, nil)
	r := co.suspend(nil)
	return r.value, r.completion
}

// asyncFunctionStart runs the body of an async function up to its first
// await. The body settles capability when it finishes.
func (a *Agent) asyncFunctionStart(capability *PromiseCapability, f *ECMAScriptFunction) {
	co := a.newCoroutine([]*ExecutionContext{a.bodyContext(nil)}, func(co *coroutine) Completion {
		result := a.evaluateFunctionBody(f)
		settleAsync(a, capability, result)
		return result
	})
	co.roots = []Marker{capability}
	co.run(resumeNormal(Undefined))
}

// settleAsync resolves or rejects capability with the outcome of an async
// body.
func settleAsync(a *Agent, capability *PromiseCapability, result Completion) {
	switch result.Type {
	case Throw:
		MustNormal(capability.Reject(a, result.Value))
	case Return:
		MustNormal(capability.Resolve(a, result.Value))
	default:
		MustNormal(capability.Resolve(a, Undefined))
	}
}

func (r *Realm) initAsyncFunctions() {
	i := &r.Intrinsics
	i.AsyncFunctionPrototype = OrdinaryObjectCreate(i.FunctionPrototype)
	i.AsyncFunction = DefineConstructor(r, "AsyncFunction", 1, dynamicFunctionConstructor(KindAsync), i.AsyncFunctionPrototype, BuiltinOptions{Prototype: i.Function})
	i.AsyncFunctionPrototype.Put(String("constructor"), i.AsyncFunction, AttrConfigurable)
	i.AsyncFunctionPrototype.Put(SymbolToStringTag, String("AsyncFunction"), AttrConfigurable)
}

// --- async generators ---

// asyncGeneratorRequest is a queued call to next, return or throw.
type asyncGeneratorRequest struct {
	completion Completion
	capability *PromiseCapability
}

// asyncGeneratorData is the internal state of an async generator: the
// coroutine running its body and the requests waiting for it.
type asyncGeneratorData struct {
	generatorData
	queue []*asyncGeneratorRequest
}

func (g *asyncGeneratorData) Mark(visit Visitor) {
	g.generatorData.Mark(visit)
	for _, req := range g.queue {
		visitValue(visit, req.completion.Value)
		req.capability.Mark(visit)
	}
}

func (a *Agent) asyncGeneratorStart(g *Object, f *ECMAScriptFunction) {
	data := &asyncGeneratorData{generatorData: generatorData{state: generatorSuspendedStart}}
	data.co = a.newCoroutine([]*ExecutionContext{a.bodyContext(g)}, func(co *coroutine) Completion {
		result := a.evaluateFunctionBody(f)
		data.state = generatorCompleted
		switch result.Type {
		case Normal:
			result = NormalCompletion(Undefined)
		case Return:
			result = NormalCompletion(result.Value)
		}
		a.asyncGeneratorCompleteStep(data, result, true)
		a.asyncGeneratorDrainQueue(data)
		return result
	})
	g.Class = "AsyncGenerator"
	g.Internal = data
}

func (a *Agent) asyncGeneratorCompleteStep(data *asyncGeneratorData, completion Completion, done bool) {
	req := data.queue[0]
	data.queue[0] = nil
	data.queue = data.queue[1:]
	if completion.Type == Throw {
		MustNormal(req.capability.Reject(a, completion.Value))
		return
	}
	MustNormal(req.capability.Resolve(a, CreateIterResultObject(a, completion.Value, done)))
}

func (a *Agent) asyncGeneratorResume(data *asyncGeneratorData, completion Completion) {
	data.state = generatorExecuting
	if completion.Type == Normal {
		data.co.run(resumeNormal(completion.Value))
	} else {
		data.co.run(resumeAbrupt(&completion))
	}
	if data.co != nil && data.co.done {
		data.co = nil
	}
}

// asyncGeneratorYield hands value to the oldest request. The body keeps
// running when another request is already queued.
func (a *Agent) asyncGeneratorYield(value Value) (Value, *Completion) {
	data := a.RunningContext().Generator.Internal.(*asyncGeneratorData)
	a.asyncGeneratorCompleteStep(data, NormalCompletion(value), false)
	var r resumption
	if len(data.queue) > 0 {
		next := data.queue[0].completion
		if next.Type == Normal {
			r = resumeNormal(next.Value)
		} else {
			r = resumeAbrupt(&next)
		}
	} else {
		data.state = generatorSuspendedYield
		r = a.currentCoroutine().suspend(nil)
	}
	if r.completion == nil || r.completion.Type != Return {
		return r.value, r.completion
	}
	awaited, c := a.Await(r.completion.Value)
	if c != nil {
		return nil, c
	}
	return nil, &Completion{Type: Return, Value: awaited}
}

// asyncGeneratorAwaitReturn settles a return request on a generator that
// is not running its body.
func (a *Agent) asyncGeneratorAwaitReturn(data *asyncGeneratorData) {
	realm := a.CurrentRealm()
	req := data.queue[0]
	promise, c := PromiseResolve(a, realm.Intrinsics.Promise, req.completion.Value)
	if c != nil {
		data.state = generatorCompleted
		a.asyncGeneratorCompleteStep(data, *c, true)
		a.asyncGeneratorDrainQueue(data)
		return
	}
	settle := func(completion func(v Value) Completion) NativeFunction {
		return func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
			data.state = generatorCompleted
			a.asyncGeneratorCompleteStep(data, completion(Arg(args, 0)), true)
			a.asyncGeneratorDrainQueue(data)
			return Undefined, nil
		}
	}
	onFulfilled := NewNativeFunction(realm, "", 1, settle(NormalCompletion), data)
	onRejected := NewNativeFunction(realm, "", 1, settle(func(v Value) Completion { return *ThrowCompletion(v) }), data)
	PerformPromiseThen(a, promise, onFulfilled, onRejected, nil)
}

// asyncGeneratorDrainQueue answers the requests queued on a completed
// generator.
func (a *Agent) asyncGeneratorDrainQueue(data *asyncGeneratorData) {
	for len(data.queue) > 0 {
		completion := data.queue[0].completion
		if completion.Type == Return {
			data.state = generatorAwaitingReturn
			a.asyncGeneratorAwaitReturn(data)
			return
		}
		if completion.Type == Normal {
			completion = NormalCompletion(Undefined)
		}
		a.asyncGeneratorCompleteStep(data, completion, true)
	}
}

func asyncGeneratorMethod(kind CompletionType) NativeFunction {
	name := "next"
	switch kind {
	case Return:
		name = "return"
	case Throw:
		name = "throw"
	}
	return func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		capability := Must(NewPromiseCapability(a, a.CurrentRealm().Intrinsics.Promise))
		o, ok := this.(*Object)
		var data *asyncGeneratorData
		if ok {
			data, ok = o.Internal.(*asyncGeneratorData)
		}
		if !ok {
			c := a.ThrowTypeError(name + " method called on incompatible receiver " + Inspect(this))
			MustNormal(capability.Reject(a, c.Value))
			return capability.Promise, nil
		}
		value := Arg(args, 0)
		state := data.state
		switch kind {
		case Normal:
			if state == generatorCompleted {
				MustNormal(capability.Resolve(a, CreateIterResultObject(a, Undefined, true)))
				return capability.Promise, nil
			}
		case Throw:
			if state == generatorSuspendedStart {
				data.state, state = generatorCompleted, generatorCompleted
				data.co.stop()
				data.co = nil
			}
			if state == generatorCompleted {
				MustNormal(capability.Reject(a, value))
				return capability.Promise, nil
			}
		}
		completion := Completion{Type: kind, Value: value}
		data.queue = append(data.queue, &asyncGeneratorRequest{completion: completion, capability: capability})
		switch {
		case kind == Return && (state == generatorSuspendedStart || state == generatorCompleted):
			if state == generatorSuspendedStart {
				data.co.stop()
				data.co = nil
			}
			data.state = generatorAwaitingReturn
			a.asyncGeneratorAwaitReturn(data)
		case state == generatorSuspendedStart || state == generatorSuspendedYield:
			a.asyncGeneratorResume(data, completion)
		}
		return capability.Promise, nil
	}
}

func (r *Realm) initAsyncGenerators() {
	i := &r.Intrinsics
	i.AsyncGeneratorFunctionPrototype = OrdinaryObjectCreate(i.FunctionPrototype)
	i.AsyncGeneratorPrototype = OrdinaryObjectCreate(i.AsyncIteratorPrototype)
	i.AsyncGeneratorFunction = DefineConstructor(r, "AsyncGeneratorFunction", 1, dynamicFunctionConstructor(KindAsyncGenerator), i.AsyncGeneratorFunctionPrototype, BuiltinOptions{Prototype: i.Function})
	i.AsyncGeneratorFunctionPrototype.Put(String("constructor"), i.AsyncGeneratorFunction, AttrConfigurable)
	i.AsyncGeneratorFunctionPrototype.Put(String("prototype"), i.AsyncGeneratorPrototype, AttrConfigurable)
	i.AsyncGeneratorFunctionPrototype.Put(SymbolToStringTag, String("AsyncGeneratorFunction"), AttrConfigurable)

	i.AsyncGeneratorPrototype.Put(String("constructor"), i.AsyncGeneratorFunctionPrototype, AttrConfigurable)
	i.AsyncGeneratorPrototype.Put(SymbolToStringTag, String("AsyncGenerator"), AttrConfigurable)
	DefineMethod(r, i.AsyncGeneratorPrototype, "next", 1, asyncGeneratorMethod(Normal))
	DefineMethod(r, i.AsyncGeneratorPrototype, "return", 1, asyncGeneratorMethod(Return))
	DefineMethod(r, i.AsyncGeneratorPrototype, "throw", 1, asyncGeneratorMethod(Throw))
}

package vm

import (
	"github.com/dop251/goja/ast"
)

type generatorState uint8

const (
	generatorSuspendedStart generatorState = iota
	generatorSuspendedYield
	generatorExecuting
	generatorAwaitingReturn // async generators only
	generatorCompleted
)

// generatorData is the internal state of a generator object. Its body runs
// on a coroutine that suspends at every yield.
type generatorData struct {
	state generatorState
	co    *coroutine
}

func (g *generatorData) Mark(visit Visitor) {
	if g.co != nil && !g.co.done {
		visit(g.co)
	}
}

// bodyContext copies the running function context for a body that will
// outlive the call, as generator and async bodies do.
func (a *Agent) bodyContext(generator *Object) *ExecutionContext {
	running := a.RunningContext()
	ctx := *running
	ctx.origin = running
	ctx.Generator = generator
	return &ctx
}

// generatorStart prepares the body of f to run on the first call to next.
func (a *Agent) generatorStart(g *Object, f *ECMAScriptFunction) {
	data := &generatorData{state: generatorSuspendedStart}
	data.co = a.newCoroutine([]*ExecutionContext{a.bodyContext(g)}, func(co *coroutine) Completion {
		return a.evaluateFunctionBody(f)
	})
	g.Class = "Generator"
	g.Internal = data
}

func (a *Agent) generatorValidate(this Value, method string) (*generatorData, *Completion) {
	o, ok := this.(*Object)
	var data *generatorData
	if ok {
		data, ok = o.Internal.(*generatorData)
	}
	if !ok {
		return nil, a.ThrowTypeError(method + " method called on incompatible receiver " + Inspect(this))
	}
	if data.state == generatorExecuting {
		return nil, a.ThrowTypeError("Generator is already running")
	}
	return data, nil
}

// generatorResume runs the generator until its next yield or its end.
func (a *Agent) generatorResume(data *generatorData, r resumption) (Value, *Completion) {
	data.state = generatorExecuting
	data.co.run(r)
	if !data.co.done {
		data.state = generatorSuspendedYield
		return data.co.out, nil
	}
	data.state = generatorCompleted
	result := data.co.result
	data.co = nil
	switch result.Type {
	case Throw:
		return nil, &result
	case Return:
		return CreateIterResultObject(a, result.Value, true), nil
	}
	return CreateIterResultObject(a, Undefined, true), nil
}

func generatorNext(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
	data, c := a.generatorValidate(this, "next")
	if c != nil {
		return nil, c
	}
	if data.state == generatorCompleted {
		return CreateIterResultObject(a, Undefined, true), nil
	}
	return a.generatorResume(data, resumeNormal(Arg(args, 0)))
}

func generatorAbruptMethod(kind CompletionType) NativeFunction {
	name := "return"
	if kind == Throw {
		name = "throw"
	}
	return func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		data, c := a.generatorValidate(this, name)
		if c != nil {
			return nil, c
		}
		abrupt := &Completion{Type: kind, Value: Arg(args, 0)}
		if data.state == generatorSuspendedStart {
			data.state = generatorCompleted
			data.co.stop()
			data.co = nil
		}
		if data.state == generatorCompleted {
			if kind == Return {
				return CreateIterResultObject(a, abrupt.Value, true), nil
			}
			return nil, abrupt
		}
		return a.generatorResume(data, resumeAbrupt(abrupt))
	}
}

// generatorYield suspends a sync generator, handing out an iterator result
// object.
func (a *Agent) generatorYield(result Value) resumption {
	return a.currentCoroutine().suspend(result)
}

func (a *Agent) runningGeneratorKind() FunctionKind {
	if f := a.RunningContext().Function; f != nil {
		if ef, ok := f.fn.(*ECMAScriptFunction); ok {
			return ef.Kind
		}
	}
	return KindNormal
}

// evaluateYield implements yield and yield* for both generator kinds.
func (a *Agent) evaluateYield(e *ast.YieldExpression) (Value, *Completion) {
	var v Value = Undefined
	if e.Argument != nil {
		var c *Completion
		if v, c = a.evaluate(e.Argument); c != nil {
			return nil, c
		}
	}
	async := a.runningGeneratorKind() == KindAsyncGenerator
	if e.Delegate {
		return a.yieldDelegate(v, async)
	}
	if async {
		awaited, c := a.Await(v)
		if c != nil {
			return nil, c
		}
		return a.asyncGeneratorYield(awaited)
	}
	r := a.generatorYield(CreateIterResultObject(a, v, false))
	return r.value, r.completion
}

// yieldDelegate forwards next, throw and return to an inner iterator until
// it is done.
func (a *Agent) yieldDelegate(iterable Value, async bool) (Value, *Completion) {
	kind := IteratorSync
	if async {
		kind = IteratorAsync
	}
	rec, c := GetIterator(a, iterable, kind)
	if c != nil {
		return nil, c
	}
	co := a.currentCoroutine()
	co.roots = append(co.roots, rec)

	awaitResult := func(v Value) (*Object, *Completion) {
		if async {
			var c *Completion
			if v, c = a.Await(v); c != nil {
				return nil, c
			}
		}
		o, ok := v.(*Object)
		if !ok {
			return nil, a.ThrowTypeError("Iterator result " + Inspect(v) + " is not an object")
		}
		return o, nil
	}
	yield := func(inner *Object) Completion {
		if async {
			v, c := IteratorValue(a, inner)
			if c != nil {
				return *c
			}
			v, c = a.asyncGeneratorYield(v)
			if c != nil {
				return *c
			}
			return NormalCompletion(v)
		}
		r := a.generatorYield(inner)
		if r.completion != nil {
			return *r.completion
		}
		return NormalCompletion(r.value)
	}

	received := NormalCompletion(Undefined)
	for {
		var inner *Object
		switch received.Type {
		case Normal:
			v, c := Call(a, rec.NextMethod, rec.Iterator, []Value{received.Value})
			if c != nil {
				return nil, c
			}
			if inner, c = awaitResult(v); c != nil {
				return nil, c
			}
		case Throw:
			throw, c := GetMethod(a, rec.Iterator, String("throw"))
			if c != nil {
				return nil, c
			}
			if throw == nil {
				var closed Completion
				if async {
					closed = a.AsyncIteratorClose(rec, NormalCompletion(nil))
				} else {
					closed = IteratorClose(a, rec, NormalCompletion(nil))
				}
				if closed.Type != Normal {
					return nil, &closed
				}
				return nil, a.ThrowTypeError("The iterator does not provide a 'throw' method")
			}
			v, c := Call(a, throw, rec.Iterator, []Value{received.Value})
			if c != nil {
				return nil, c
			}
			if inner, c = awaitResult(v); c != nil {
				return nil, c
			}
		case Return:
			ret, c := GetMethod(a, rec.Iterator, String("return"))
			if c != nil {
				return nil, c
			}
			if ret == nil {
				value := received.Value
				if async {
					if value, c = a.Await(value); c != nil {
						return nil, c
					}
				}
				return nil, &Completion{Type: Return, Value: value}
			}
			v, c := Call(a, ret, rec.Iterator, []Value{received.Value})
			if c != nil {
				return nil, c
			}
			if inner, c = awaitResult(v); c != nil {
				return nil, c
			}
			done, c := IteratorComplete(a, inner)
			if c != nil {
				return nil, c
			}
			if done {
				value, c := IteratorValue(a, inner)
				if c != nil {
					return nil, c
				}
				if async {
					if value, c = a.Await(value); c != nil {
						return nil, c
					}
				}
				return nil, &Completion{Type: Return, Value: value}
			}
			received = yield(inner)
			continue
		}
		done, c := IteratorComplete(a, inner)
		if c != nil {
			return nil, c
		}
		if done {
			return IteratorValue(a, inner)
		}
		received = yield(inner)
	}
}

func (r *Realm) initGenerators() {
	i := &r.Intrinsics
	i.GeneratorFunctionPrototype = OrdinaryObjectCreate(i.FunctionPrototype)
	i.GeneratorPrototype = OrdinaryObjectCreate(i.IteratorPrototype)
	i.GeneratorFunction = DefineConstructor(r, "GeneratorFunction", 1, dynamicFunctionConstructor(KindGenerator), i.GeneratorFunctionPrototype, BuiltinOptions{Prototype: i.Function})
	i.GeneratorFunctionPrototype.Put(String("constructor"), i.GeneratorFunction, AttrConfigurable)
	i.GeneratorFunctionPrototype.Put(String("prototype"), i.GeneratorPrototype, AttrConfigurable)
	i.GeneratorFunctionPrototype.Put(SymbolToStringTag, String("GeneratorFunction"), AttrConfigurable)

	i.GeneratorPrototype.Put(String("constructor"), i.GeneratorFunctionPrototype, AttrConfigurable)
	i.GeneratorPrototype.Put(SymbolToStringTag, String("Generator"), AttrConfigurable)
	DefineMethod(r, i.GeneratorPrototype, "next", 1, generatorNext)
	DefineMethod(r, i.GeneratorPrototype, "return", 1, generatorAbruptMethod(Return))
	DefineMethod(r, i.GeneratorPrototype, "throw", 1, generatorAbruptMethod(Throw))
}

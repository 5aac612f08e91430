package builtins

import (
	"siskin/pkg/vm"
)

// PromiseInitializer adds the Promise statics. The constructor, then,
// catch, finally, resolve and reject are part of the core realm because
// async functions depend on them.
type PromiseInitializer struct{}

func (p *PromiseInitializer) Name() string {
	return "Promise"
}

func (p *PromiseInitializer) Priority() int {
	return PriorityPromise
}

func (p *PromiseInitializer) InitRealm(r *vm.Realm) error {
	ctor := r.Intrinsics.Promise
	method(r, ctor, "all", 1, promiseCombinator(combineAll))
	method(r, ctor, "allSettled", 1, promiseCombinator(combineAllSettled))
	method(r, ctor, "any", 1, promiseCombinator(combineAny))
	method(r, ctor, "race", 1, promiseCombinator(combineRace))
	if r.Agent().HasFeature(vm.FeaturePromiseWithResolvers) {
		method(r, ctor, "withResolvers", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
			capability, c := vm.NewPromiseCapability(a, this)
			if c != nil {
				return nil, c
			}
			resolve, reject := capability.Functions()
			o := newObject(a)
			createData(a, o, vm.String("promise"), capability.Promise)
			createData(a, o, vm.String("resolve"), resolve)
			createData(a, o, vm.String("reject"), reject)
			return o, nil
		})
	}
	method(r, ctor, "try", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		if _, ok := this.(*vm.Object); !ok {
			return nil, a.ThrowTypeError("Promise.try called on non-object")
		}
		capability, c := vm.NewPromiseCapability(a, this)
		if c != nil {
			return nil, c
		}
		var rest []vm.Value
		if len(args) > 1 {
			rest = args[1:]
		}
		v, c := vm.Call(a, vm.Arg(args, 0), vm.Undefined, rest)
		if c != nil {
			if c.Type != vm.Throw {
				return nil, c
			}
			if rc := capability.Reject(a, c.Value); rc != nil {
				return nil, rc
			}
		} else if rc := capability.Resolve(a, v); rc != nil {
			return nil, rc
		}
		return capability.Promise, nil
	})
	return nil
}

// combinatorState is shared by the element functions of one Promise.all,
// allSettled or any call.
type combinatorState struct {
	capability *vm.PromiseCapability
	values     []vm.Value
	remaining  int
}

func (s *combinatorState) Mark(visit vm.Visitor) {
	visit(s.capability)
	for _, v := range s.values {
		markValue(visit, v)
	}
}

// settle decrements the pending count and, when it reaches zero, calls
// finish with the collected values.
func (s *combinatorState) settle(a *vm.Agent, finish func(values *vm.Object) *vm.Completion) *vm.Completion {
	s.remaining--
	if s.remaining > 0 {
		return nil
	}
	return finish(vm.CreateArrayFromList(a, s.values))
}

// combinator handles one element of the iterable: next is the resolved
// promise for it and index its position.
type combinator func(a *vm.Agent, state *combinatorState, next vm.Value, index int) *vm.Completion

// combinatorKind pairs the per-element step with what runs once the
// iterable is exhausted.
type combinatorKind struct {
	step   combinator
	finish func(a *vm.Agent, state *combinatorState) *vm.Completion
}

// ifAbruptReject rejects capability with a thrown value, returning the
// promise, as the combinators report synchronous failures.
func ifAbruptReject(a *vm.Agent, capability *vm.PromiseCapability, c *vm.Completion) (vm.Value, *vm.Completion) {
	if c.Type != vm.Throw {
		return nil, c
	}
	if rc := capability.Reject(a, c.Value); rc != nil {
		return nil, rc
	}
	return capability.Promise, nil
}

func promiseCombinator(kind combinatorKind) native {
	return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		capability, c := vm.NewPromiseCapability(a, this)
		if c != nil {
			return nil, c
		}
		ctor := this.(*vm.Object)
		promiseResolve, c := vm.Get(a, ctor, vm.String("resolve"))
		if c == nil && !vm.IsCallable(promiseResolve) {
			c = a.ThrowTypeError("Promise resolve or reject function is not callable")
		}
		if c != nil {
			return ifAbruptReject(a, capability, c)
		}
		rec, c := vm.GetIterator(a, vm.Arg(args, 0), vm.IteratorSync)
		if c != nil {
			return ifAbruptReject(a, capability, c)
		}

		state := &combinatorState{capability: capability, remaining: 1}
		for index := 0; ; index++ {
			next, done, c := vm.IteratorStepValue(a, rec)
			if c != nil {
				return ifAbruptReject(a, capability, c)
			}
			if done {
				if kind.finish != nil {
					if c := kind.finish(a, state); c != nil {
						return ifAbruptReject(a, capability, c)
					}
				}
				return capability.Promise, nil
			}
			nextPromise, c := vm.Call(a, promiseResolve, ctor, []vm.Value{next})
			if c == nil {
				c = kind.step(a, state, nextPromise, index)
			}
			if c != nil {
				return ifAbruptReject(a, capability, closeWith(a, rec, c))
			}
		}
	}
}

// onceFunction creates a function that runs fn the first time any of the
// functions sharing called is invoked.
func onceFunction(a *vm.Agent, called *bool, state *combinatorState, fn func(a *vm.Agent, x vm.Value) *vm.Completion) *vm.Object {
	return vm.NewNativeFunction(a.CurrentRealm(), "", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		if *called {
			return vm.Undefined, nil
		}
		*called = true
		return vm.Undefined, fn(a, vm.Arg(args, 0))
	}, state)
}

func then(a *vm.Agent, promise vm.Value, onFulfilled, onRejected vm.Value) *vm.Completion {
	_, c := vm.Invoke(a, promise, vm.String("then"), []vm.Value{onFulfilled, onRejected})
	return c
}

func settledRecord(a *vm.Agent, status string, key vm.String, v vm.Value) *vm.Object {
	o := newObject(a)
	createData(a, o, vm.String("status"), vm.NewString(status))
	createData(a, o, key, v)
	return o
}

var combineAll = combinatorKind{
	step: func(a *vm.Agent, state *combinatorState, next vm.Value, index int) *vm.Completion {
		state.values = append(state.values, vm.Undefined)
		state.remaining++
		called := false
		onFulfilled := onceFunction(a, &called, state, func(a *vm.Agent, x vm.Value) *vm.Completion {
			state.values[index] = x
			return state.settle(a, func(values *vm.Object) *vm.Completion {
				return state.capability.Resolve(a, values)
			})
		})
		_, reject := state.capability.Functions()
		return then(a, next, onFulfilled, reject)
	},
	finish: func(a *vm.Agent, state *combinatorState) *vm.Completion {
		return state.settle(a, func(values *vm.Object) *vm.Completion {
			return state.capability.Resolve(a, values)
		})
	},
}

var combineAllSettled = combinatorKind{
	step: func(a *vm.Agent, state *combinatorState, next vm.Value, index int) *vm.Completion {
		state.values = append(state.values, vm.Undefined)
		state.remaining++
		called := false
		settleWith := func(status string, key vm.String) *vm.Object {
			return onceFunction(a, &called, state, func(a *vm.Agent, x vm.Value) *vm.Completion {
				state.values[index] = settledRecord(a, status, key, x)
				return state.settle(a, func(values *vm.Object) *vm.Completion {
					return state.capability.Resolve(a, values)
				})
			})
		}
		return then(a, next, settleWith("fulfilled", "value"), settleWith("rejected", "reason"))
	},
	finish: combineAll.finish,
}

func rejectAggregate(a *vm.Agent, state *combinatorState) func(errors *vm.Object) *vm.Completion {
	return func(errors *vm.Object) *vm.Completion {
		realm := a.CurrentRealm()
		err, c := vm.Construct(a, realm.Intrinsics.AggregateError, []vm.Value{errors, vm.String("All promises were rejected")}, nil)
		if c != nil {
			return c
		}
		return state.capability.Reject(a, err)
	}
}

var combineAny = combinatorKind{
	step: func(a *vm.Agent, state *combinatorState, next vm.Value, index int) *vm.Completion {
		state.values = append(state.values, vm.Undefined)
		state.remaining++
		called := false
		onRejected := onceFunction(a, &called, state, func(a *vm.Agent, x vm.Value) *vm.Completion {
			state.values[index] = x
			return state.settle(a, rejectAggregate(a, state))
		})
		resolve, _ := state.capability.Functions()
		return then(a, next, resolve, onRejected)
	},
	finish: func(a *vm.Agent, state *combinatorState) *vm.Completion {
		return state.settle(a, rejectAggregate(a, state))
	},
}

var combineRace = combinatorKind{
	step: func(a *vm.Agent, state *combinatorState, next vm.Value, index int) *vm.Completion {
		resolve, reject := state.capability.Functions()
		return then(a, next, resolve, reject)
	},
}

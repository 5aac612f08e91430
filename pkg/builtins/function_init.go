package builtins

import (
	"siskin/pkg/vm"
)

type FunctionInitializer struct{}

func (f *FunctionInitializer) Name() string {
	return "Function"
}

func (f *FunctionInitializer) Priority() int {
	return PriorityFunction
}

func (f *FunctionInitializer) InitRealm(r *vm.Realm) error {
	proto := r.Intrinsics.FunctionPrototype

	method(r, proto, "call", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		fn, c := callable(a, this, "Function.prototype.call receiver")
		if c != nil {
			return nil, c
		}
		var rest []vm.Value
		if len(args) > 1 {
			rest = args[1:]
		}
		return vm.Call(a, fn, vm.Arg(args, 0), rest)
	})

	method(r, proto, "apply", 2, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		fn, c := callable(a, this, "Function.prototype.apply receiver")
		if c != nil {
			return nil, c
		}
		argArray := vm.Arg(args, 1)
		if vm.IsNullish(argArray) {
			return vm.Call(a, fn, vm.Arg(args, 0), nil)
		}
		list, c := vm.CreateListFromArrayLike(a, argArray)
		if c != nil {
			return nil, c
		}
		return vm.Call(a, fn, vm.Arg(args, 0), list)
	})

	method(r, proto, "bind", 1, functionBind)

	method(r, proto, "toString", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, ok := this.(*vm.Object)
		if !ok || !vm.IsCallable(o) {
			return nil, a.ThrowTypeError("Function.prototype.toString requires that 'this' be a Function")
		}
		if fn, ok := o.Function().(*vm.ECMAScriptFunction); ok && fn.SourceText != "" {
			return vm.NewString(fn.SourceText), nil
		}
		name := ""
		if n, ok := o.OwnValue(vm.String("name")); ok {
			if s, ok := n.(vm.String); ok {
				name = s.String()
			}
		}
		return vm.NewString("function " + name + "() { [native code] }"), nil
	})

	hasInstance := vm.CreateBuiltinFunction(r, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		result, c := vm.OrdinaryHasInstance(a, this, vm.Arg(args, 0))
		return vm.Boolean(result), c
	}, 1, vm.SymbolHasInstance, vm.BuiltinOptions{})
	proto.Put(vm.SymbolHasInstance, hasInstance, vm.AttrNone)
	return nil
}

func functionBind(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	target, c := callable(a, this, "Bind target")
	if c != nil {
		return nil, c
	}
	var boundArgs []vm.Value
	if len(args) > 1 {
		boundArgs = append(boundArgs, args[1:]...)
	}
	f, c := vm.BoundFunctionCreate(a, target, vm.Arg(args, 0), boundArgs)
	if c != nil {
		return nil, c
	}

	length := 0.0
	hasLength, c := vm.HasOwnProperty(a, target, vm.String("length"))
	if c != nil {
		return nil, c
	}
	if hasLength {
		l, c := vm.Get(a, target, vm.String("length"))
		if c != nil {
			return nil, c
		}
		if n, ok := l.(vm.Number); ok {
			switch {
			case float64(n) == float64(vm.PosInfinity):
				length = float64(n)
			case float64(n) == float64(vm.NegInfinity):
				length = 0
			default:
				li, _ := vm.ToIntegerOrInfinity(a, n)
				length = max(0, li-float64(len(boundArgs)))
			}
		}
	}
	f.Put(vm.String("length"), vm.Number(length), vm.AttrConfigurable)

	name, c := vm.Get(a, target, vm.String("name"))
	if c != nil {
		return nil, c
	}
	s, ok := name.(vm.String)
	if !ok {
		s = ""
	}
	f.Put(vm.String("name"), vm.NewString("bound ").Concat(s), vm.AttrConfigurable)
	return f, nil
}

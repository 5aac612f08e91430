package builtins

import (
	"siskin/pkg/vm"
)

type BooleanInitializer struct{}

func (b *BooleanInitializer) Name() string {
	return "Boolean"
}

func (b *BooleanInitializer) Priority() int {
	return PriorityBoolean
}

func (b *BooleanInitializer) InitRealm(r *vm.Realm) error {
	proto := r.Intrinsics.BooleanPrototype
	ctor := vm.DefineConstructor(r, "Boolean", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		value := vm.Boolean(vm.ToBoolean(vm.Arg(args, 0)))
		if newTarget == nil {
			return value, nil
		}
		o, c := vm.OrdinaryCreateFromConstructor(a, newTarget, func(i *vm.Intrinsics) *vm.Object { return i.BooleanPrototype })
		if c != nil {
			return nil, c
		}
		o.Class, o.Internal = "Boolean", &vm.PrimitiveWrapper{Value: value}
		return o, nil
	}, proto, vm.BuiltinOptions{})

	method(r, proto, "toString", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		v, c := thisBoolean(a, this, "Boolean.prototype.toString")
		if c != nil {
			return nil, c
		}
		if v {
			return vm.String("true"), nil
		}
		return vm.String("false"), nil
	})
	method(r, proto, "valueOf", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		return thisBoolean(a, this, "Boolean.prototype.valueOf")
	})

	r.DefineGlobal("Boolean", ctor)
	return nil
}

func thisBoolean(a *vm.Agent, this vm.Value, method string) (vm.Boolean, *vm.Completion) {
	v, ok := vm.ThisPrimitive(this, vm.TypeBoolean)
	if !ok {
		return false, a.ThrowTypeError(method + " requires that 'this' be a Boolean")
	}
	return v.(vm.Boolean), nil
}

package builtins

import (
	"math/big"

	"siskin/pkg/vm"
)

type BigIntInitializer struct{}

func (b *BigIntInitializer) Name() string {
	return "BigInt"
}

func (b *BigIntInitializer) Priority() int {
	return PriorityBigInt
}

func (b *BigIntInitializer) InitRealm(r *vm.Realm) error {
	proto := r.Intrinsics.BigIntPrototype
	ctor := vm.DefineConstructor(r, "BigInt", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		if newTarget != nil {
			return nil, a.ThrowTypeError("BigInt is not a constructor")
		}
		prim, c := vm.ToPrimitive(a, vm.Arg(args, 0), vm.HintNumber)
		if c != nil {
			return nil, c
		}
		if n, ok := prim.(vm.Number); ok {
			return vm.NumberToBigInt(a, n)
		}
		return vm.ToBigInt(a, prim)
	}, proto, vm.BuiltinOptions{})

	method(r, ctor, "asIntN", 2, bigIntAsN(true))
	method(r, ctor, "asUintN", 2, bigIntAsN(false))

	method(r, proto, "toString", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		x, c := thisBigInt(a, this, "BigInt.prototype.toString")
		if c != nil {
			return nil, c
		}
		radix := 10.0
		if rv := vm.Arg(args, 0); !vm.IsUndefined(rv) {
			if radix, c = vm.ToIntegerOrInfinity(a, rv); c != nil {
				return nil, c
			}
			if radix < 2 || radix > 36 {
				return nil, a.ThrowRangeError("toString() radix must be between 2 and 36")
			}
		}
		return vm.NewString(x.Int.Text(int(radix))), nil
	})
	method(r, proto, "toLocaleString", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		x, c := thisBigInt(a, this, "BigInt.prototype.toLocaleString")
		if c != nil {
			return nil, c
		}
		return vm.NewString(x.String()), nil
	})
	method(r, proto, "valueOf", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		return thisBigInt(a, this, "BigInt.prototype.valueOf")
	})
	toStringTag(proto, "BigInt")

	r.DefineGlobal("BigInt", ctor)
	return nil
}

func thisBigInt(a *vm.Agent, this vm.Value, method string) (*vm.BigInt, *vm.Completion) {
	v, ok := vm.ThisPrimitive(this, vm.TypeBigInt)
	if !ok {
		return nil, a.ThrowTypeError(method + " requires that 'this' be a BigInt")
	}
	return v.(*vm.BigInt), nil
}

// bigIntAsN wraps a BigInt to the given bit width, two's complement when
// signed.
func bigIntAsN(signed bool) native {
	return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		bits, c := vm.ToIndex(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		x, c := vm.ToBigInt(a, vm.Arg(args, 1))
		if c != nil {
			return nil, c
		}
		if bits == 0 {
			return vm.BigIntFromInt64(0), nil
		}
		modulus := new(big.Int).Lsh(big.NewInt(1), uint(bits))
		mod := new(big.Int).Mod(x.Int, modulus)
		if signed && mod.Cmp(new(big.Int).Rsh(modulus, 1)) >= 0 {
			mod.Sub(mod, modulus)
		}
		return vm.NewBigInt(mod), nil
	}
}

package builtins

import (
	"math"
	"math/rand/v2"

	"siskin/pkg/vm"
)

type MathInitializer struct{}

func (m *MathInitializer) Name() string {
	return "Math"
}

func (m *MathInitializer) Priority() int {
	return PriorityMath // 100 - After core types
}

var mathConstants = []struct {
	name  string
	value float64
}{
	{"E", math.E},
	{"LN10", math.Ln10},
	{"LN2", math.Ln2},
	{"LOG10E", math.Log10E},
	{"LOG2E", math.Log2E},
	{"PI", math.Pi},
	{"SQRT1_2", math.Sqrt2 / 2},
	{"SQRT2", math.Sqrt2},
}

var mathUnary = []struct {
	name string
	fn   func(float64) float64
}{
	{"abs", math.Abs},
	{"acos", math.Acos},
	{"acosh", math.Acosh},
	{"asin", math.Asin},
	{"asinh", math.Asinh},
	{"atan", math.Atan},
	{"atanh", math.Atanh},
	{"cbrt", math.Cbrt},
	{"ceil", math.Ceil},
	{"cos", math.Cos},
	{"cosh", math.Cosh},
	{"exp", math.Exp},
	{"expm1", math.Expm1},
	{"floor", math.Floor},
	{"fround", mathFround},
	{"log", math.Log},
	{"log1p", math.Log1p},
	{"log10", math.Log10},
	{"log2", math.Log2},
	{"round", mathRound},
	{"sign", mathSign},
	{"sin", math.Sin},
	{"sinh", math.Sinh},
	{"sqrt", math.Sqrt},
	{"tan", math.Tan},
	{"tanh", math.Tanh},
	{"trunc", math.Trunc},
}

func (m *MathInitializer) InitRealm(r *vm.Realm) error {
	mathObj := namespace(r, "Math")
	for _, k := range mathConstants {
		constant(mathObj, k.name, vm.Number(k.value))
	}
	for _, u := range mathUnary {
		fn := u.fn
		method(r, mathObj, u.name, 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
			x, c := vm.ToNumber(a, vm.Arg(args, 0))
			if c != nil {
				return nil, c
			}
			return vm.Number(fn(float64(x))), nil
		})
	}

	method(r, mathObj, "atan2", 2, mathBinary(math.Atan2))
	method(r, mathObj, "pow", 2, mathBinary(mathPow))
	method(r, mathObj, "max", 2, mathVariadic(mathMax))
	method(r, mathObj, "min", 2, mathVariadic(mathMin))
	method(r, mathObj, "hypot", 2, mathVariadic(mathHypot))

	method(r, mathObj, "clz32", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		x, c := vm.ToUint32(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		return vm.Number(mathClz32(x)), nil
	})
	method(r, mathObj, "imul", 2, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		x, c := vm.ToUint32(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		y, c := vm.ToUint32(a, vm.Arg(args, 1))
		if c != nil {
			return nil, c
		}
		return vm.Number(mathImul(x, y)), nil
	})
	method(r, mathObj, "random", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		return vm.Number(rand.Float64()), nil
	})

	// sumPrecise takes an iterable of numbers and never coerces.
	method(r, mathObj, "sumPrecise", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		rec, c := vm.GetIterator(a, vm.Arg(args, 0), vm.IteratorSync)
		if c != nil {
			return nil, c
		}
		var xs []float64
		for {
			next, done, c := vm.IteratorStepValue(a, rec)
			if c != nil {
				return nil, c
			}
			if done {
				return vm.Number(mathSumPrecise(xs)), nil
			}
			n, ok := next.(vm.Number)
			if !ok {
				return nil, closeWith(a, rec, a.ThrowTypeError(vm.Inspect(next)+" is not a number"))
			}
			xs = append(xs, float64(n))
		}
	})

	r.Intrinsics.Register("%Math%", mathObj)
	r.DefineGlobal("Math", mathObj)
	return nil
}

func mathBinary(fn func(x, y float64) float64) native {
	return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		x, c := vm.ToNumber(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		y, c := vm.ToNumber(a, vm.Arg(args, 1))
		if c != nil {
			return nil, c
		}
		return vm.Number(fn(float64(x), float64(y))), nil
	}
}

// mathVariadic coerces every argument before folding, so a later
// argument's valueOf still runs when an earlier one is NaN.
func mathVariadic(fold func([]float64) float64) native {
	return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		xs := make([]float64, len(args))
		for i, arg := range args {
			x, c := vm.ToNumber(a, arg)
			if c != nil {
				return nil, c
			}
			xs[i] = float64(x)
		}
		return vm.Number(fold(xs)), nil
	}
}

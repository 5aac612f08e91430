package builtins

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"siskin/pkg/vm"
)

type NumberInitializer struct{}

func (n *NumberInitializer) Name() string {
	return "Number"
}

func (n *NumberInitializer) Priority() int {
	return PriorityNumber
}

func (n *NumberInitializer) InitRealm(r *vm.Realm) error {
	proto := r.Intrinsics.NumberPrototype
	ctor := vm.DefineConstructor(r, "Number", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		value := vm.Number(0)
		if len(args) > 0 {
			prim, c := vm.ToNumeric(a, args[0])
			if c != nil {
				return nil, c
			}
			switch p := prim.(type) {
			case *vm.BigInt:
				f, _ := new(big.Float).SetInt(p.Int).Float64()
				value = vm.Number(f)
			case vm.Number:
				value = p
			}
		}
		if newTarget == nil {
			return value, nil
		}
		o, c := vm.OrdinaryCreateFromConstructor(a, newTarget, func(i *vm.Intrinsics) *vm.Object { return i.NumberPrototype })
		if c != nil {
			return nil, c
		}
		o.Class, o.Internal = "Number", &vm.PrimitiveWrapper{Value: value}
		return o, nil
	}, proto, vm.BuiltinOptions{})

	constant(ctor, "MAX_SAFE_INTEGER", vm.Number(1<<53-1))
	constant(ctor, "MIN_SAFE_INTEGER", vm.Number(-(1<<53 - 1)))
	constant(ctor, "MAX_VALUE", vm.Number(math.MaxFloat64))
	constant(ctor, "MIN_VALUE", vm.Number(5e-324))
	constant(ctor, "EPSILON", vm.Number(math.Nextafter(1, 2)-1))
	constant(ctor, "POSITIVE_INFINITY", vm.PosInfinity)
	constant(ctor, "NEGATIVE_INFINITY", vm.NegInfinity)
	constant(ctor, "NaN", vm.NaN)

	method(r, ctor, "isFinite", 1, numberPredicate(func(f float64) bool {
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	}))
	method(r, ctor, "isNaN", 1, numberPredicate(math.IsNaN))
	method(r, ctor, "isInteger", 1, numberPredicate(isIntegral))
	method(r, ctor, "isSafeInteger", 1, numberPredicate(func(f float64) bool {
		return isIntegral(f) && math.Abs(f) <= 1<<53-1
	}))
	// Number.parseFloat and Number.parseInt are the global functions.
	parseFloat := vm.NewNativeFunction(r, "parseFloat", 1, globalParseFloat)
	parseInt := vm.NewNativeFunction(r, "parseInt", 2, globalParseInt)
	r.Intrinsics.Register("%parseFloat%", parseFloat)
	r.Intrinsics.Register("%parseInt%", parseInt)
	ctor.Put(vm.String("parseFloat"), parseFloat, vm.AttrDefault)
	ctor.Put(vm.String("parseInt"), parseInt, vm.AttrDefault)

	method(r, proto, "toString", 1, numberToString)
	method(r, proto, "toLocaleString", 0, numberToString)
	method(r, proto, "valueOf", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		return thisNumber(a, this, "Number.prototype.valueOf")
	})
	method(r, proto, "toFixed", 1, numberToFixed)
	method(r, proto, "toPrecision", 1, numberToPrecision)
	method(r, proto, "toExponential", 1, numberToExponential)

	r.DefineGlobal("Number", ctor)
	return nil
}

func isIntegral(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f)
}

func numberPredicate(test func(float64) bool) native {
	return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		n, ok := vm.Arg(args, 0).(vm.Number)
		return vm.Boolean(ok && test(float64(n))), nil
	}
}

func thisNumber(a *vm.Agent, this vm.Value, method string) (vm.Number, *vm.Completion) {
	v, ok := vm.ThisPrimitive(this, vm.TypeNumber)
	if !ok {
		return 0, a.ThrowTypeError(method + " requires that 'this' be a Number")
	}
	return v.(vm.Number), nil
}

func numberToString(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	x, c := thisNumber(a, this, "Number.prototype.toString")
	if c != nil {
		return nil, c
	}
	radix := 10.0
	if r := vm.Arg(args, 0); !vm.IsUndefined(r) {
		if radix, c = vm.ToIntegerOrInfinity(a, r); c != nil {
			return nil, c
		}
		if radix < 2 || radix > 36 {
			return nil, a.ThrowRangeError("toString() radix must be between 2 and 36")
		}
	}
	if radix == 10 {
		return vm.NumberToString(x), nil
	}
	return vm.NewString(formatRadix(float64(x), int(radix))), nil
}

// formatRadix renders f in a radix other than 10, with up to 52 fraction
// digits.
func formatRadix(f float64, radix int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	var b strings.Builder
	if f < 0 {
		b.WriteByte('-')
		f = -f
	}
	intPart, frac := math.Modf(f)
	if intPart < 1<<63 {
		b.WriteString(strconv.FormatUint(uint64(intPart), radix))
	} else {
		bi, _ := new(big.Float).SetFloat64(intPart).Int(nil)
		b.WriteString(bi.Text(radix))
	}
	if frac > 0 {
		b.WriteByte('.')
		for i := 0; i < 52 && frac > 0; i++ {
			frac *= float64(radix)
			digit, rest := math.Modf(frac)
			b.WriteString(strconv.FormatInt(int64(digit), radix))
			frac = rest
		}
	}
	return b.String()
}

func fractionDigits(a *vm.Agent, v vm.Value, lo, hi float64, method string) (int, *vm.Completion) {
	d, c := vm.ToIntegerOrInfinity(a, v)
	if c != nil {
		return 0, c
	}
	if d < lo || d > hi {
		return 0, a.ThrowRangeError(method + " argument must be between " + strconv.Itoa(int(lo)) + " and " + strconv.Itoa(int(hi)))
	}
	return int(d), nil
}

func numberToFixed(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	x, c := thisNumber(a, this, "Number.prototype.toFixed")
	if c != nil {
		return nil, c
	}
	digits, c := fractionDigits(a, vm.Arg(args, 0), 0, 100, "toFixed()")
	if c != nil {
		return nil, c
	}
	f := float64(x)
	if math.IsNaN(f) || math.Abs(f) >= 1e21 || math.IsInf(f, 0) {
		return vm.NumberToString(x), nil
	}
	s := strconv.FormatFloat(f, 'f', digits, 64)
	if s == "-0" || strings.HasPrefix(s, "-0.") && strings.Trim(s[3:], "0") == "" {
		s = s[1:]
	}
	return vm.NewString(s), nil
}

// jsExponent rewrites Go's e-notation exponent ("e+05", "e-07") the way
// the language prints it ("e+5", "e-7").
func jsExponent(s string) string {
	mant, exp, ok := strings.Cut(s, "e")
	if !ok {
		return s
	}
	sign := exp[:1]
	digits := strings.TrimLeft(exp[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return mant + "e" + sign + digits
}

func numberToExponential(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	x, c := thisNumber(a, this, "Number.prototype.toExponential")
	if c != nil {
		return nil, c
	}
	f := float64(x)
	fd := vm.Arg(args, 0)
	digits := -1
	if !vm.IsUndefined(fd) {
		if digits, c = fractionDigits(a, fd, 0, 100, "toExponential()"); c != nil {
			return nil, c
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return vm.NumberToString(x), nil
	}
	return vm.NewString(jsExponent(strconv.FormatFloat(f, 'e', digits, 64))), nil
}

func numberToPrecision(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	x, c := thisNumber(a, this, "Number.prototype.toPrecision")
	if c != nil {
		return nil, c
	}
	p := vm.Arg(args, 0)
	if vm.IsUndefined(p) {
		return vm.NumberToString(x), nil
	}
	precision, c := fractionDigits(a, p, 1, 100, "toPrecision()")
	if c != nil {
		return nil, c
	}
	f := float64(x)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return vm.NumberToString(x), nil
	}
	if f == 0 {
		if precision == 1 {
			return vm.String("0"), nil
		}
		return vm.NewString("0." + strings.Repeat("0", precision-1)), nil
	}
	e := strconv.FormatFloat(f, 'e', precision-1, 64)
	_, expPart, _ := strings.Cut(e, "e")
	exp, _ := strconv.Atoi(expPart)
	if exp < -6 || exp >= precision {
		return vm.NewString(jsExponent(e)), nil
	}
	return vm.NewString(strconv.FormatFloat(f, 'f', precision-1-exp, 64)), nil
}

package vm

import (
	"fmt"
	"math"
	"math/big"

	"github.com/dop251/goja/token"

	"siskin/pkg/errors"
)

// maxBigIntShift bounds BigInt shifts so a typo cannot allocate gigabytes.
const maxBigIntShift = 1 << 24

// applyBinaryOperator applies a non-logical binary operator to evaluated
// operands. Compound assignments use it too.
func (a *Agent) applyBinaryOperator(op token.Token, l, r Value) (Value, *Completion) {
	switch op {
	case token.EQUAL, token.NOT_EQUAL:
		eq, c := IsLooselyEqual(a, l, r)
		if c != nil {
			return nil, c
		}
		return Boolean(eq == (op == token.EQUAL)), nil
	case token.STRICT_EQUAL:
		return Boolean(IsStrictlyEqual(l, r)), nil
	case token.STRICT_NOT_EQUAL:
		return Boolean(!IsStrictlyEqual(l, r)), nil
	case token.LESS:
		res, c := IsLessThan(a, l, r, true)
		return Boolean(res == lessTrue), c
	case token.GREATER:
		res, c := IsLessThan(a, r, l, false)
		return Boolean(res == lessTrue), c
	case token.LESS_OR_EQUAL:
		res, c := IsLessThan(a, r, l, false)
		return Boolean(res == lessFalse), c
	case token.GREATER_OR_EQUAL:
		res, c := IsLessThan(a, l, r, true)
		return Boolean(res == lessFalse), c
	case token.INSTANCEOF:
		ok, c := InstanceofOperator(a, l, r)
		return Boolean(ok), c
	case token.IN:
		o, ok := r.(*Object)
		if !ok {
			return nil, a.ThrowTypeError(fmt.Sprintf("Cannot use 'in' operator to search for '%s' in %s", Inspect(l), Inspect(r)))
		}
		key, c := ToPropertyKey(a, l)
		if c != nil {
			return nil, c
		}
		has, c := o.HasProperty(a, key)
		return Boolean(has), c
	}
	return ApplyStringOrNumericBinaryOperator(a, op, l, r)
}

// ApplyStringOrNumericBinaryOperator implements + and the arithmetic,
// bitwise and shift operators, with BigInt support.
func ApplyStringOrNumericBinaryOperator(a *Agent, op token.Token, l, r Value) (Value, *Completion) {
	if op == token.PLUS {
		lp, c := ToPrimitive(a, l, HintNone)
		if c != nil {
			return nil, c
		}
		rp, c := ToPrimitive(a, r, HintNone)
		if c != nil {
			return nil, c
		}
		_, ls := lp.(String)
		_, rs := rp.(String)
		if ls || rs {
			lstr, c := ToString(a, lp)
			if c != nil {
				return nil, c
			}
			rstr, c := ToString(a, rp)
			if c != nil {
				return nil, c
			}
			return lstr.Concat(rstr), nil
		}
		l, r = lp, rp
	}
	ln, c := ToNumeric(a, l)
	if c != nil {
		return nil, c
	}
	rn, c := ToNumeric(a, r)
	if c != nil {
		return nil, c
	}
	lb, lBig := ln.(*BigInt)
	rb, rBig := rn.(*BigInt)
	if lBig != rBig {
		return nil, a.ThrowTypeError("Cannot mix BigInt and other types, use explicit conversions")
	}
	if lBig {
		return bigIntOperation(a, op, lb.Int, rb.Int)
	}
	return numberOperation(op, ln.(Number), rn.(Number)), nil
}

func numberOperation(op token.Token, x, y Number) Value {
	switch op {
	case token.PLUS:
		return x + y
	case token.MINUS:
		return x - y
	case token.MULTIPLY:
		return x * y
	case token.SLASH:
		return x / y
	case token.REMAINDER:
		return Number(math.Mod(float64(x), float64(y)))
	case token.EXPONENT:
		return numberExponentiate(x, y)
	case token.AND:
		return Number(toInt32(x) & toInt32(y))
	case token.OR:
		return Number(toInt32(x) | toInt32(y))
	case token.EXCLUSIVE_OR:
		return Number(toInt32(x) ^ toInt32(y))
	case token.SHIFT_LEFT:
		return Number(toInt32(x) << (toUint32(float64(y)) & 31))
	case token.SHIFT_RIGHT:
		return Number(toInt32(x) >> (toUint32(float64(y)) & 31))
	case token.UNSIGNED_SHIFT_RIGHT:
		return Number(toUint32(float64(x)) >> (toUint32(float64(y)) & 31))
	}
	errors.Assertf("unexpected numeric operator %s", op)
	return nil
}

func toInt32(n Number) int32 {
	return int32(toUint32(float64(n)))
}

// numberExponentiate differs from math.Pow where the language defines NaN.
func numberExponentiate(base, exponent Number) Number {
	b, e := float64(base), float64(exponent)
	if math.IsNaN(e) {
		return Number(math.NaN())
	}
	if math.Abs(b) == 1 && math.IsInf(e, 0) {
		return Number(math.NaN())
	}
	return Number(math.Pow(b, e))
}

func bigIntOperation(a *Agent, op token.Token, x, y *big.Int) (Value, *Completion) {
	z := new(big.Int)
	switch op {
	case token.PLUS:
		z.Add(x, y)
	case token.MINUS:
		z.Sub(x, y)
	case token.MULTIPLY:
		z.Mul(x, y)
	case token.SLASH:
		if y.Sign() == 0 {
			return nil, a.ThrowRangeError("Division by zero")
		}
		z.Quo(x, y)
	case token.REMAINDER:
		if y.Sign() == 0 {
			return nil, a.ThrowRangeError("Division by zero")
		}
		z.Rem(x, y)
	case token.EXPONENT:
		if y.Sign() < 0 {
			return nil, a.ThrowRangeError("Exponent must be non-negative")
		}
		if !y.IsInt64() || (y.Int64() > maxBigIntShift && x.CmpAbs(big.NewInt(1)) > 0) {
			return nil, a.ThrowRangeError("Maximum BigInt size exceeded")
		}
		z.Exp(x, y, nil)
	case token.AND:
		z.And(x, y)
	case token.OR:
		z.Or(x, y)
	case token.EXCLUSIVE_OR:
		z.Xor(x, y)
	case token.SHIFT_LEFT, token.SHIFT_RIGHT:
		shift := new(big.Int).Set(y)
		if op == token.SHIFT_RIGHT {
			shift.Neg(shift)
		}
		if !shift.IsInt64() || shift.Int64() > maxBigIntShift {
			if shift.Sign() > 0 && x.Sign() != 0 {
				return nil, a.ThrowRangeError("Maximum BigInt size exceeded")
			}
			if shift.Sign() > 0 || x.Sign() >= 0 {
				return NewBigInt(z), nil
			}
			return NewBigInt(z.SetInt64(-1)), nil
		}
		if n := shift.Int64(); n >= 0 {
			z.Lsh(x, uint(n))
		} else if -n > int64(x.BitLen()) {
			if x.Sign() < 0 {
				z.SetInt64(-1)
			}
		} else {
			z.Rsh(x, uint(-n))
		}
	case token.UNSIGNED_SHIFT_RIGHT:
		return nil, a.ThrowTypeError("BigInts have no unsigned right shift, use >> instead")
	default:
		errors.Assertf("unexpected BigInt operator %s", op)
	}
	return NewBigInt(z), nil
}

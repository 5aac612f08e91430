package vm

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

// PreferredType is the hint passed to ToPrimitive.
type PreferredType uint8

const (
	HintNone PreferredType = iota
	HintString
	HintNumber
)

func (h PreferredType) value() String {
	switch h {
	case HintString:
		return "string"
	case HintNumber:
		return "number"
	default:
		return "default"
	}
}

// ToPrimitive converts v to a primitive, calling @@toPrimitive, valueOf or
// toString on objects.
func ToPrimitive(a *Agent, v Value, hint PreferredType) (Value, *Completion) {
	o, ok := v.(*Object)
	if !ok {
		return v, nil
	}
	exotic, c := GetMethod(a, o, SymbolToPrimitive)
	if c != nil {
		return nil, c
	}
	if exotic != nil {
		result, c := Call(a, exotic, o, []Value{hint.value()})
		if c != nil {
			return nil, c
		}
		if _, isObject := result.(*Object); isObject {
			return nil, a.ThrowTypeError("Cannot convert object to primitive value")
		}
		return result, nil
	}
	if hint == HintNone {
		hint = HintNumber
	}
	return OrdinaryToPrimitive(a, o, hint)
}

// OrdinaryToPrimitive tries valueOf and toString in hint order.
func OrdinaryToPrimitive(a *Agent, o *Object, hint PreferredType) (Value, *Completion) {
	names := [2]String{"valueOf", "toString"}
	if hint == HintString {
		names = [2]String{"toString", "valueOf"}
	}
	for _, name := range names {
		method, c := Get(a, o, name)
		if c != nil {
			return nil, c
		}
		if IsCallable(method) {
			result, c := Call(a, method, o, nil)
			if c != nil {
				return nil, c
			}
			if _, isObject := result.(*Object); !isObject {
				return result, nil
			}
		}
	}
	return nil, a.ThrowTypeError("Cannot convert object to primitive value")
}

// ToBoolean never fails.
func ToBoolean(v Value) bool {
	switch v := v.(type) {
	case Boolean:
		return bool(v)
	case Number:
		return v != 0 && !math.IsNaN(float64(v))
	case String:
		return v != ""
	case *BigInt:
		return v.Int.Sign() != 0
	case *Symbol, *Object:
		return true
	}
	return false
}

// ToNumeric returns a Number or a *BigInt.
func ToNumeric(a *Agent, v Value) (Value, *Completion) {
	prim, c := ToPrimitive(a, v, HintNumber)
	if c != nil {
		return nil, c
	}
	if b, ok := prim.(*BigInt); ok {
		return b, nil
	}
	n, c := ToNumber(a, prim)
	if c != nil {
		return nil, c
	}
	return n, nil
}

// ToNumber converts v to a Number.
func ToNumber(a *Agent, v Value) (Number, *Completion) {
	switch v := v.(type) {
	case Number:
		return v, nil
	case Boolean:
		if v {
			return 1, nil
		}
		return 0, nil
	case String:
		return StringToNumber(v), nil
	case *Symbol:
		return 0, a.ThrowTypeError("Cannot convert a Symbol value to a number")
	case *BigInt:
		return 0, a.ThrowTypeError("Cannot convert a BigInt value to a number")
	case *Object:
		prim, c := ToPrimitive(a, v, HintNumber)
		if c != nil {
			return 0, c
		}
		return ToNumber(a, prim)
	}
	if v.Type() == TypeNull {
		return 0, nil
	}
	return NaN, nil
}

func isDigits(s string, digit func(byte) bool) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !digit(s[i]) {
			return false
		}
	}
	return true
}

func isDecimalDigit(c byte) bool { return c >= '0' && c <= '9' }
func isHexDigit(c byte) bool {
	return isDecimalDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
func isOctalDigit(c byte) bool  { return c >= '0' && c <= '7' }
func isBinaryDigit(c byte) bool { return c == '0' || c == '1' }

// isDecimalLiteral checks StrUnsignedDecimalLiteral without the Infinity form.
func isDecimalLiteral(s string) bool {
	i := 0
	intDigits := 0
	for i < len(s) && isDecimalDigit(s[i]) {
		i++
		intDigits++
	}
	fracDigits := 0
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDecimalDigit(s[i]) {
			i++
			fracDigits++
		}
	}
	if intDigits == 0 && fracDigits == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		if !isDigits(s[i:], isDecimalDigit) {
			return false
		}
		return true
	}
	return i == len(s)
}

// StringToNumber implements the StringNumericLiteral grammar.
func StringToNumber(s String) Number {
	trimmed := TrimString(s, true, true)
	if !trimmed.IsASCII() {
		return NaN
	}
	str := string(trimmed)
	if str == "" {
		return 0
	}
	if len(str) > 2 && str[0] == '0' {
		base, digit := 0, func(byte) bool { return false }
		switch str[1] {
		case 'x', 'X':
			base, digit = 16, isHexDigit
		case 'o', 'O':
			base, digit = 8, isOctalDigit
		case 'b', 'B':
			base, digit = 2, isBinaryDigit
		}
		if base != 0 {
			if !isDigits(str[2:], digit) {
				return NaN
			}
			return parseIntegerDigits(str[2:], base)
		}
	}
	sign := 1.0
	body := str
	switch body[0] {
	case '+':
		body = body[1:]
	case '-':
		sign = -1
		body = body[1:]
	}
	if body == "Infinity" {
		return Number(math.Inf(int(sign)))
	}
	if !isDecimalLiteral(body) {
		return NaN
	}
	f, err := strconv.ParseFloat(body, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); !ok || ne.Err != strconv.ErrRange {
			return NaN
		}
	}
	return Number(sign * f)
}

func parseIntegerDigits(digits string, base int) Number {
	if v, err := strconv.ParseUint(digits, base, 64); err == nil {
		return Number(float64(v))
	}
	n, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return NaN
	}
	f, _ := new(big.Float).SetInt(n).Float64()
	return Number(f)
}

// ToString converts v to a String.
func ToString(a *Agent, v Value) (String, *Completion) {
	switch v := v.(type) {
	case String:
		return v, nil
	case Number:
		return NumberToString(v), nil
	case Boolean:
		if v {
			return "true", nil
		}
		return "false", nil
	case *BigInt:
		return String(v.Int.String()), nil
	case *Symbol:
		return "", a.ThrowTypeError("Cannot convert a Symbol value to a string")
	case *Object:
		prim, c := ToPrimitive(a, v, HintString)
		if c != nil {
			return "", c
		}
		return ToString(a, prim)
	}
	if v.Type() == TypeNull {
		return "null", nil
	}
	return "undefined", nil
}

func formatInt(i int64) string {
	return strconv.FormatInt(i, 10)
}

// NumberToString implements Number::toString with radix 10.
func NumberToString(n Number) String {
	f := float64(n)
	switch {
	case math.IsNaN(f):
		return "NaN"
	case f == 0:
		return "0"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f < 0:
		return "-" + NumberToString(-n)
	}
	if f == math.Trunc(f) && f < 1e21 {
		if f < 1<<53 {
			return String(strconv.FormatInt(int64(f), 10))
		}
	}
	// Shortest round-trip digits and exponent.
	e := strconv.FormatFloat(f, 'e', -1, 64)
	mant, expPart, _ := strings.Cut(e, "e")
	digits := strings.Replace(mant, ".", "", 1)
	exp, _ := strconv.Atoi(expPart)
	k := len(digits)
	point := exp + 1 // the decimal point sits after `point` digits

	var b strings.Builder
	switch {
	case k <= point && point <= 21:
		b.WriteString(digits)
		b.WriteString(strings.Repeat("0", point-k))
	case 0 < point && point <= 21:
		b.WriteString(digits[:point])
		b.WriteByte('.')
		b.WriteString(digits[point:])
	case -6 < point && point <= 0:
		b.WriteString("0.")
		b.WriteString(strings.Repeat("0", -point))
		b.WriteString(digits)
	default:
		b.WriteByte(digits[0])
		if k > 1 {
			b.WriteByte('.')
			b.WriteString(digits[1:])
		}
		b.WriteByte('e')
		if point-1 >= 0 {
			b.WriteByte('+')
		}
		b.WriteString(strconv.Itoa(point - 1))
	}
	return String(b.String())
}

// ToPropertyKey converts v to a String or a *Symbol.
func ToPropertyKey(a *Agent, v Value) (PropertyKey, *Completion) {
	switch v := v.(type) {
	case String:
		return v, nil
	case *Symbol:
		return v, nil
	case Number:
		if i := int(v); float64(i) == float64(v) && i >= 0 && i < len(smallIndexKeys) {
			return smallIndexKeys[i], nil
		}
	}
	key, c := ToPrimitive(a, v, HintString)
	if c != nil {
		return nil, c
	}
	if sym, ok := key.(*Symbol); ok {
		return sym, nil
	}
	s, c := ToString(a, key)
	if c != nil {
		return nil, c
	}
	return s, nil
}

// ToObject wraps primitives; undefined and null throw.
func ToObject(a *Agent, v Value) (*Object, *Completion) {
	intr := &a.CurrentRealm().Intrinsics
	switch v := v.(type) {
	case *Object:
		return v, nil
	case Boolean:
		o := OrdinaryObjectCreate(intr.BooleanPrototype)
		o.Class, o.Internal = "Boolean", &PrimitiveWrapper{Value: v}
		return o, nil
	case Number:
		o := OrdinaryObjectCreate(intr.NumberPrototype)
		o.Class, o.Internal = "Number", &PrimitiveWrapper{Value: v}
		return o, nil
	case String:
		return StringCreate(v, intr.StringPrototype), nil
	case *Symbol:
		o := OrdinaryObjectCreate(intr.SymbolPrototype)
		o.Class, o.Internal = "Symbol", &PrimitiveWrapper{Value: v}
		return o, nil
	case *BigInt:
		o := OrdinaryObjectCreate(intr.BigIntPrototype)
		o.Class, o.Internal = "BigInt", &PrimitiveWrapper{Value: v}
		return o, nil
	}
	return nil, a.ThrowTypeError("Cannot convert undefined or null to object")
}

// PrimitiveWrapper is the internal slot of Boolean, Number, String, Symbol
// and BigInt wrapper objects.
type PrimitiveWrapper struct {
	Value Value
}

// ThisPrimitive unwraps v for the valueOf family of methods.
func ThisPrimitive(v Value, t ValueType) (Value, bool) {
	if v.Type() == t {
		return v, true
	}
	if o, ok := v.(*Object); ok {
		if w, ok := o.Internal.(*PrimitiveWrapper); ok && w.Value.Type() == t {
			return w.Value, true
		}
	}
	return nil, false
}

// ToIntegerOrInfinity truncates towards zero, mapping NaN to 0.
func ToIntegerOrInfinity(a *Agent, v Value) (float64, *Completion) {
	n, c := ToNumber(a, v)
	if c != nil {
		return 0, c
	}
	f := float64(n)
	if math.IsNaN(f) || f == 0 {
		return 0, nil
	}
	return math.Trunc(f), nil
}

func toUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Mod(math.Trunc(f), 4294967296)
	if f < 0 {
		f += 4294967296
	}
	return uint32(f)
}

// ToInt32 applies the modular int32 conversion.
func ToInt32(a *Agent, v Value) (int32, *Completion) {
	n, c := ToNumber(a, v)
	if c != nil {
		return 0, c
	}
	return int32(toUint32(float64(n))), nil
}

// ToUint32 applies the modular uint32 conversion.
func ToUint32(a *Agent, v Value) (uint32, *Completion) {
	n, c := ToNumber(a, v)
	if c != nil {
		return 0, c
	}
	return toUint32(float64(n)), nil
}

// ToLength clamps to [0, 2^53-1].
func ToLength(a *Agent, v Value) (int64, *Completion) {
	f, c := ToIntegerOrInfinity(a, v)
	if c != nil {
		return 0, c
	}
	if f <= 0 {
		return 0, nil
	}
	if f > 1<<53-1 {
		return 1<<53 - 1, nil
	}
	return int64(f), nil
}

// ToIndex converts v to a non-negative integer index or throws RangeError.
func ToIndex(a *Agent, v Value) (int64, *Completion) {
	if IsUndefined(v) {
		return 0, nil
	}
	f, c := ToIntegerOrInfinity(a, v)
	if c != nil {
		return 0, c
	}
	if f < 0 || f > 1<<53-1 {
		return 0, a.ThrowRangeError("Invalid index")
	}
	return int64(f), nil
}

// ToBigInt converts v to a BigInt following the BigInt() rules for
// primitives.
func ToBigInt(a *Agent, v Value) (*BigInt, *Completion) {
	prim, c := ToPrimitive(a, v, HintNumber)
	if c != nil {
		return nil, c
	}
	switch p := prim.(type) {
	case *BigInt:
		return p, nil
	case Boolean:
		if p {
			return BigIntFromInt64(1), nil
		}
		return BigIntFromInt64(0), nil
	case String:
		b, ok := StringToBigInt(p)
		if !ok {
			return nil, a.ThrowSyntaxError("Cannot convert " + p.String() + " to a BigInt")
		}
		return b, nil
	case Number:
		return nil, a.ThrowTypeError("Cannot convert " + NumberToString(p).String() + " to a BigInt")
	case *Symbol:
		return nil, a.ThrowTypeError("Cannot convert a Symbol value to a BigInt")
	}
	return nil, a.ThrowTypeError("Cannot convert " + TypeOf(prim).String() + " to a BigInt")
}

// StringToBigInt parses StringIntegerLiteral.
func StringToBigInt(s String) (*BigInt, bool) {
	t := TrimString(s, true, true)
	if !t.IsASCII() {
		return nil, false
	}
	str := string(t)
	if str == "" {
		return BigIntFromInt64(0), true
	}
	base := 10
	if len(str) > 2 && str[0] == '0' {
		switch str[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 10 {
			str = str[2:]
		}
	}
	neg := false
	if base == 10 && (str[0] == '+' || str[0] == '-') {
		neg = str[0] == '-'
		str = str[1:]
	}
	digit := isDecimalDigit
	switch base {
	case 16:
		digit = isHexDigit
	case 8:
		digit = isOctalDigit
	case 2:
		digit = isBinaryDigit
	}
	if !isDigits(str, digit) {
		return nil, false
	}
	n, ok := new(big.Int).SetString(str, base)
	if !ok {
		return nil, false
	}
	if neg {
		n.Neg(n)
	}
	return NewBigInt(n), true
}

// NumberToBigInt converts an integral Number.
func NumberToBigInt(a *Agent, n Number) (*BigInt, *Completion) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, a.ThrowRangeError("The number " + NumberToString(n).String() + " cannot be converted to a BigInt because it is not an integer")
	}
	b, _ := big.NewFloat(f).Int(nil)
	return NewBigInt(b), nil
}

// CanonicalNumericIndexString returns the number a string canonically
// represents, if any.
func CanonicalNumericIndexString(s String) (Number, bool) {
	if s == "-0" {
		return Number(math.Copysign(0, -1)), true
	}
	n := StringToNumber(s)
	if NumberToString(n) != s {
		return 0, false
	}
	return n, true
}

// SameValue distinguishes +0/-0 and equates NaNs.
func SameValue(x, y Value) bool {
	if nx, ok := x.(Number); ok {
		ny, ok := y.(Number)
		if !ok {
			return false
		}
		fx, fy := float64(nx), float64(ny)
		if math.IsNaN(fx) && math.IsNaN(fy) {
			return true
		}
		return fx == fy && math.Signbit(fx) == math.Signbit(fy)
	}
	return sameValueNonNumber(x, y)
}

// SameValueZero is SameValue with +0 equal to -0.
func SameValueZero(x, y Value) bool {
	if nx, ok := x.(Number); ok {
		ny, ok := y.(Number)
		if !ok {
			return false
		}
		if math.IsNaN(float64(nx)) && math.IsNaN(float64(ny)) {
			return true
		}
		return nx == ny
	}
	return sameValueNonNumber(x, y)
}

func sameValueNonNumber(x, y Value) bool {
	if x.Type() != y.Type() {
		return false
	}
	if bx, ok := x.(*BigInt); ok {
		return bx.Int.Cmp(y.(*BigInt).Int) == 0
	}
	return x == y
}

// IsStrictlyEqual implements ===.
func IsStrictlyEqual(x, y Value) bool {
	if nx, ok := x.(Number); ok {
		ny, ok := y.(Number)
		return ok && nx == ny
	}
	return sameValueNonNumber(x, y)
}

// IsLooselyEqual implements ==.
func IsLooselyEqual(a *Agent, x, y Value) (bool, *Completion) {
	if x.Type() == y.Type() {
		return IsStrictlyEqual(x, y), nil
	}
	if IsNullish(x) && IsNullish(y) {
		return true, nil
	}
	switch xv := x.(type) {
	case Number:
		switch yv := y.(type) {
		case String:
			return xv == StringToNumber(yv), nil
		case *BigInt:
			return compareBigIntNumber(yv, xv) == 0, nil
		}
	case String:
		switch yv := y.(type) {
		case Number:
			return StringToNumber(xv) == yv, nil
		case *BigInt:
			b, ok := StringToBigInt(xv)
			return ok && b.Int.Cmp(yv.Int) == 0, nil
		}
	case *BigInt:
		switch yv := y.(type) {
		case String:
			b, ok := StringToBigInt(yv)
			return ok && b.Int.Cmp(xv.Int) == 0, nil
		case Number:
			return compareBigIntNumber(xv, yv) == 0, nil
		}
	case Boolean:
		n, _ := ToNumber(a, xv)
		return IsLooselyEqual(a, n, y)
	}
	if yb, ok := y.(Boolean); ok {
		n, _ := ToNumber(a, yb)
		return IsLooselyEqual(a, x, n)
	}
	if _, isObject := y.(*Object); isObject {
		switch x.Type() {
		case TypeString, TypeNumber, TypeBigInt, TypeSymbol:
			prim, c := ToPrimitive(a, y, HintNone)
			if c != nil {
				return false, c
			}
			return IsLooselyEqual(a, x, prim)
		}
	}
	if _, isObject := x.(*Object); isObject {
		switch y.Type() {
		case TypeString, TypeNumber, TypeBigInt, TypeSymbol:
			prim, c := ToPrimitive(a, x, HintNone)
			if c != nil {
				return false, c
			}
			return IsLooselyEqual(a, prim, y)
		}
	}
	return false, nil
}

// compareBigIntNumber returns -1, 0 or 1, or 2 when n is NaN.
func compareBigIntNumber(b *BigInt, n Number) int {
	f := float64(n)
	if math.IsNaN(f) {
		return 2
	}
	if math.IsInf(f, 1) {
		return -1
	}
	if math.IsInf(f, -1) {
		return 1
	}
	bf := new(big.Float).SetInt(b.Int)
	return bf.Cmp(big.NewFloat(f))
}

// lessThanResult is the three-valued result of IsLessThan.
type lessThanResult uint8

const (
	lessFalse lessThanResult = iota
	lessTrue
	lessUndefined
)

// IsLessThan compares two values. leftFirst controls the order of the
// primitive conversions.
func IsLessThan(a *Agent, x, y Value, leftFirst bool) (lessThanResult, *Completion) {
	var px, py Value
	var c *Completion
	if leftFirst {
		if px, c = ToPrimitive(a, x, HintNumber); c != nil {
			return lessFalse, c
		}
		if py, c = ToPrimitive(a, y, HintNumber); c != nil {
			return lessFalse, c
		}
	} else {
		if py, c = ToPrimitive(a, y, HintNumber); c != nil {
			return lessFalse, c
		}
		if px, c = ToPrimitive(a, x, HintNumber); c != nil {
			return lessFalse, c
		}
	}
	sx, xIsString := px.(String)
	sy, yIsString := py.(String)
	if xIsString && yIsString {
		if sx.Compare(sy) < 0 {
			return lessTrue, nil
		}
		return lessFalse, nil
	}
	if bx, ok := px.(*BigInt); ok && yIsString {
		by, ok := StringToBigInt(sy)
		if !ok {
			return lessUndefined, nil
		}
		return boolLess(bx.Int.Cmp(by.Int) < 0), nil
	}
	if by, ok := py.(*BigInt); ok && xIsString {
		bx, ok := StringToBigInt(sx)
		if !ok {
			return lessUndefined, nil
		}
		return boolLess(bx.Int.Cmp(by.Int) < 0), nil
	}
	nx, c := ToNumeric(a, px)
	if c != nil {
		return lessFalse, c
	}
	ny, c := ToNumeric(a, py)
	if c != nil {
		return lessFalse, c
	}
	switch x := nx.(type) {
	case Number:
		switch y := ny.(type) {
		case Number:
			if math.IsNaN(float64(x)) || math.IsNaN(float64(y)) {
				return lessUndefined, nil
			}
			return boolLess(x < y), nil
		case *BigInt:
			r := compareBigIntNumber(y, x)
			if r == 2 {
				return lessUndefined, nil
			}
			return boolLess(r > 0), nil
		}
	case *BigInt:
		switch y := ny.(type) {
		case *BigInt:
			return boolLess(x.Int.Cmp(y.Int) < 0), nil
		case Number:
			r := compareBigIntNumber(x, y)
			if r == 2 {
				return lessUndefined, nil
			}
			return boolLess(r < 0), nil
		}
	}
	return lessFalse, nil
}

func boolLess(b bool) lessThanResult {
	if b {
		return lessTrue
	}
	return lessFalse
}

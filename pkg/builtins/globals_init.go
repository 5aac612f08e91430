package builtins

import (
	"math"
	"strconv"
	"strings"

	"siskin/pkg/vm"
)

type GlobalsInitializer struct{}

func (g *GlobalsInitializer) Name() string {
	return "Globals"
}

func (g *GlobalsInitializer) Priority() int {
	return PriorityGlobals
}

func (g *GlobalsInitializer) InitRealm(r *vm.Realm) error {
	// Number.parseFloat and Number.parseInt are the same function objects.
	for _, name := range []string{"parseFloat", "parseInt"} {
		if fn, ok := r.Intrinsics.Lookup("%" + name + "%"); ok {
			r.DefineGlobal(name, fn)
		}
	}

	r.DefineGlobal("isNaN", vm.NewNativeFunction(r, "isNaN", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		n, c := vm.ToNumber(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		return vm.Boolean(n != n), nil
	}))
	r.DefineGlobal("isFinite", vm.NewNativeFunction(r, "isFinite", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		n, c := vm.ToNumber(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		return vm.Boolean(!math.IsNaN(float64(n)) && !math.IsInf(float64(n), 0)), nil
	}))

	r.DefineGlobal("queueMicrotask", vm.NewNativeFunction(r, "queueMicrotask", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		callback, c := callable(a, vm.Arg(args, 0), "The \"callback\" argument")
		if c != nil {
			return nil, c
		}
		a.EnqueueJob(a.CurrentRealm(), func() {
			if _, c := vm.Call(a, callback, vm.Undefined, nil); c != nil {
				a.ReportError(c.Value)
			}
		}, callback)
		return vm.Undefined, nil
	}))

	uri := []struct {
		name string
		fn   native
	}{
		{"encodeURI", uriEncoder(uriReserved + "#")},
		{"encodeURIComponent", uriEncoder("")},
		{"decodeURI", uriDecoder(uriReserved + "#")},
		{"decodeURIComponent", uriDecoder("")},
	}
	for _, u := range uri {
		r.DefineGlobal(u.name, vm.NewNativeFunction(r, u.name, 1, u.fn))
	}
	return nil
}

// jsWhitespace lists WhiteSpace and LineTerminator code points.
const jsWhitespace = " \t\n\r\v\f\u00a0\u1680\u2000\u2001\u2002\u2003\u2004\u2005\u2006\u2007\u2008\u2009\u200a\u2028\u2029\u202f\u205f\u3000\ufeff"

func globalParseFloat(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	s, c := vm.ToString(a, vm.Arg(args, 0))
	if c != nil {
		return nil, c
	}
	return vm.Number(parseFloatPrefix(strings.TrimLeft(s.String(), jsWhitespace))), nil
}

// parseFloatPrefix parses the longest prefix of s that is a
// StrDecimalLiteral, returning NaN when there is none.
func parseFloatPrefix(s string) float64 {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	if strings.HasPrefix(s[i:], "Infinity") {
		if s[0] == '-' {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return math.NaN()
	}
	end := i
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && isDigit(s[j]) {
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			end = j
		}
	}
	f, _ := strconv.ParseFloat(strings.TrimSuffix(s[:end], "."), 64)
	return f
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func globalParseInt(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	s, c := vm.ToString(a, vm.Arg(args, 0))
	if c != nil {
		return nil, c
	}
	radix, c := vm.ToInt32(a, vm.Arg(args, 1))
	if c != nil {
		return nil, c
	}
	return vm.Number(parseIntPrefix(strings.TrimLeft(s.String(), jsWhitespace), int(radix))), nil
}

// parseIntPrefix parses the longest run of digits valid in radix. A zero
// radix means 10, or 16 when s has a 0x prefix.
func parseIntPrefix(s string, radix int) float64 {
	sign := 1.0
	if s != "" && (s[0] == '+' || s[0] == '-') {
		if s[0] == '-' {
			sign = -1
		}
		s = s[1:]
	}
	stripPrefix := true
	switch {
	case radix == 0:
		radix = 10
	case radix < 2 || radix > 36:
		return math.NaN()
	case radix != 16:
		stripPrefix = false
	}
	if stripPrefix && len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
		radix = 16
	}
	end := 0
	for end < len(s) && digitValue(s[end]) < radix {
		end++
	}
	if end == 0 {
		return math.NaN()
	}
	digits := s[:end]
	if radix == 10 {
		// Decimal digits round correctly through ParseFloat.
		f, _ := strconv.ParseFloat(digits, 64)
		return sign * f
	}
	result := 0.0
	for i := 0; i < len(digits); i++ {
		result = result*float64(radix) + float64(digitValue(digits[i]))
	}
	return sign * result
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	}
	return 36
}

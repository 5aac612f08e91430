package builtins

import (
	"math"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"siskin/pkg/vm"
)

type StringInitializer struct{}

func (s *StringInitializer) Name() string {
	return "String"
}

func (s *StringInitializer) Priority() int {
	return PriorityString
}

func (s *StringInitializer) InitRealm(r *vm.Realm) error {
	proto := r.Intrinsics.StringPrototype
	ctor := vm.DefineConstructor(r, "String", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		str := vm.String("")
		if len(args) > 0 {
			if sym, ok := args[0].(*vm.Symbol); ok && newTarget == nil {
				return sym.DescriptiveString(), nil
			}
			var c *vm.Completion
			if str, c = vm.ToString(a, args[0]); c != nil {
				return nil, c
			}
		}
		if newTarget == nil {
			return str, nil
		}
		p, c := vm.GetPrototypeFromConstructor(a, newTarget, func(i *vm.Intrinsics) *vm.Object { return i.StringPrototype })
		if c != nil {
			return nil, c
		}
		return vm.StringCreate(str, p), nil
	}, proto, vm.BuiltinOptions{})

	method(r, ctor, "fromCharCode", 1, stringFromCharCode)
	method(r, ctor, "fromCodePoint", 1, stringFromCodePoint)
	method(r, ctor, "raw", 1, stringRaw)

	method(r, proto, "at", 1, stringAt)
	method(r, proto, "charAt", 1, stringCharAt)
	method(r, proto, "charCodeAt", 1, stringCharCodeAt)
	method(r, proto, "codePointAt", 1, stringCodePointAt)
	method(r, proto, "concat", 1, stringConcat)
	method(r, proto, "endsWith", 1, stringEndsWith)
	method(r, proto, "includes", 1, stringIncludes)
	method(r, proto, "indexOf", 1, stringIndexOf)
	method(r, proto, "lastIndexOf", 1, stringLastIndexOf)
	method(r, proto, "localeCompare", 1, stringLocaleCompare)
	method(r, proto, "match", 1, stringMatchVia(vm.SymbolMatch, "match"))
	method(r, proto, "matchAll", 1, stringMatchAll)
	method(r, proto, "normalize", 0, stringNormalize)
	method(r, proto, "padEnd", 1, stringPad(false))
	method(r, proto, "padStart", 1, stringPad(true))
	method(r, proto, "repeat", 1, stringRepeat)
	method(r, proto, "replace", 2, stringReplace(false))
	method(r, proto, "replaceAll", 2, stringReplace(true))
	method(r, proto, "search", 1, stringMatchVia(vm.SymbolSearch, "search"))
	method(r, proto, "slice", 2, stringSlice)
	method(r, proto, "split", 2, stringSplit)
	method(r, proto, "startsWith", 1, stringStartsWith)
	method(r, proto, "substring", 2, stringSubstring)
	method(r, proto, "toLowerCase", 0, stringCase(false, false))
	method(r, proto, "toUpperCase", 0, stringCase(true, false))
	method(r, proto, "toLocaleLowerCase", 0, stringCase(false, true))
	method(r, proto, "toLocaleUpperCase", 0, stringCase(true, true))
	method(r, proto, "trim", 0, stringTrim(true, true))
	method(r, proto, "trimStart", 0, stringTrim(true, false))
	method(r, proto, "trimEnd", 0, stringTrim(false, true))
	method(r, proto, "isWellFormed", 0, stringIsWellFormed)
	method(r, proto, "toWellFormed", 0, stringToWellFormed)
	method(r, proto, "toString", 0, stringValueOf("String.prototype.toString"))
	method(r, proto, "valueOf", 0, stringValueOf("String.prototype.valueOf"))

	iterProto := vm.OrdinaryObjectCreate(r.Intrinsics.IteratorPrototype)
	method(r, iterProto, "next", 0, stringIteratorNext)
	toStringTag(iterProto, "String Iterator")
	r.Intrinsics.Register("%StringIteratorPrototype%", iterProto)
	vm.DefineSymbolMethod(r, proto, vm.SymbolIterator, 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		str, c := thisString(a, this, "String.prototype[Symbol.iterator]")
		if c != nil {
			return nil, c
		}
		it := vm.OrdinaryObjectCreate(iterProto)
		it.Class, it.Internal = "String Iterator", &stringIterator{s: str}
		return it, nil
	})

	r.Intrinsics.Register("%String%", ctor)
	r.DefineGlobal("String", ctor)
	return nil
}

// thisString is RequireObjectCoercible followed by ToString.
func thisString(a *vm.Agent, this vm.Value, method string) (vm.String, *vm.Completion) {
	if vm.IsNullish(this) {
		return "", a.ThrowTypeError(method + " called on null or undefined")
	}
	return vm.ToString(a, this)
}

func stringArg(a *vm.Agent, args []vm.Value, i int) (vm.String, *vm.Completion) {
	return vm.ToString(a, vm.Arg(args, i))
}

func stringValueOf(name string) native {
	return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		v, ok := vm.ThisPrimitive(this, vm.TypeString)
		if !ok {
			return nil, a.ThrowTypeError(name + " requires that 'this' be a String")
		}
		return v, nil
	}
}

func stringFromCharCode(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	units := make([]uint16, len(args))
	for i, v := range args {
		n, c := vm.ToUint32(a, v)
		if c != nil {
			return nil, c
		}
		units[i] = uint16(n)
	}
	return vm.StringFromUnits(units), nil
}

func stringFromCodePoint(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	var units []uint16
	for _, v := range args {
		n, c := vm.ToNumber(a, v)
		if c != nil {
			return nil, c
		}
		f := float64(n)
		if !isIntegral(f) || f < 0 || f > 0x10FFFF {
			return nil, a.ThrowRangeError("Invalid code point " + vm.Inspect(v))
		}
		units = utf16.AppendRune(units, rune(f))
	}
	return vm.StringFromUnits(units), nil
}

func stringRaw(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	cooked, c := vm.ToObject(a, vm.Arg(args, 0))
	if c != nil {
		return nil, c
	}
	rawValue, c := vm.Get(a, cooked, vm.String("raw"))
	if c != nil {
		return nil, c
	}
	raw, length, c := arrayLike(a, rawValue)
	if c != nil {
		return nil, c
	}
	var result vm.String
	for k := int64(0); k < length; k++ {
		seg, c := getIndex(a, raw, k)
		if c != nil {
			return nil, c
		}
		s, c := vm.ToString(a, seg)
		if c != nil {
			return nil, c
		}
		result = result.Concat(s)
		if k+1 < length && int(k)+1 < len(args) {
			sub, c := vm.ToString(a, args[k+1])
			if c != nil {
				return nil, c
			}
			result = result.Concat(sub)
		}
	}
	return result, nil
}

func stringAt(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	s, c := thisString(a, this, "String.prototype.at")
	if c != nil {
		return nil, c
	}
	rel, c := vm.ToIntegerOrInfinity(a, vm.Arg(args, 0))
	if c != nil {
		return nil, c
	}
	k := rel
	if rel < 0 {
		k += float64(s.Length())
	}
	if k < 0 || k >= float64(s.Length()) {
		return vm.Undefined, nil
	}
	return s.Substring(int(k), int(k)+1), nil
}

// stringPosition reads a position argument, returning -1 when it is out
// of range.
func stringPosition(a *vm.Agent, s vm.String, args []vm.Value) (int, *vm.Completion) {
	pos, c := vm.ToIntegerOrInfinity(a, vm.Arg(args, 0))
	if c != nil {
		return 0, c
	}
	if pos < 0 || pos >= float64(s.Length()) {
		return -1, nil
	}
	return int(pos), nil
}

func stringCharAt(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	s, c := thisString(a, this, "String.prototype.charAt")
	if c != nil {
		return nil, c
	}
	pos, c := stringPosition(a, s, args)
	if c != nil || pos < 0 {
		return vm.String(""), c
	}
	return s.Substring(pos, pos+1), nil
}

func stringCharCodeAt(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	s, c := thisString(a, this, "String.prototype.charCodeAt")
	if c != nil {
		return nil, c
	}
	pos, c := stringPosition(a, s, args)
	if c != nil || pos < 0 {
		return vm.NaN, c
	}
	return vm.Number(s.At(pos)), nil
}

func stringCodePointAt(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	s, c := thisString(a, this, "String.prototype.codePointAt")
	if c != nil {
		return nil, c
	}
	pos, c := stringPosition(a, s, args)
	if c != nil || pos < 0 {
		return vm.Undefined, c
	}
	cp, _ := s.CodePointAt(pos)
	return vm.Number(cp), nil
}

func stringConcat(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	s, c := thisString(a, this, "String.prototype.concat")
	if c != nil {
		return nil, c
	}
	for _, v := range args {
		next, c := vm.ToString(a, v)
		if c != nil {
			return nil, c
		}
		s = s.Concat(next)
	}
	return s, nil
}

// isRegExp reports whether v should be treated as a regular expression.
func isRegExp(a *vm.Agent, v vm.Value) (bool, *vm.Completion) {
	o, ok := v.(*vm.Object)
	if !ok {
		return false, nil
	}
	matcher, c := vm.Get(a, o, vm.SymbolMatch)
	if c != nil {
		return false, c
	}
	if !vm.IsUndefined(matcher) {
		return vm.ToBoolean(matcher), nil
	}
	_, ok = o.Internal.(*regExpData)
	return ok, nil
}

// searchString reads the search argument of startsWith, endsWith and
// includes, which must not be a regular expression.
func searchString(a *vm.Agent, args []vm.Value, method string) (vm.String, *vm.Completion) {
	re, c := isRegExp(a, vm.Arg(args, 0))
	if c != nil {
		return "", c
	}
	if re {
		return "", a.ThrowTypeError("First argument to String.prototype." + method + " must not be a regular expression")
	}
	return stringArg(a, args, 0)
}

func stringStartsWith(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	s, c := thisString(a, this, "String.prototype.startsWith")
	if c != nil {
		return nil, c
	}
	search, c := searchString(a, args, "startsWith")
	if c != nil {
		return nil, c
	}
	start, c := clampedArg(a, args, 1, s.Length(), 0)
	if c != nil {
		return nil, c
	}
	end := start + search.Length()
	return vm.Boolean(end <= s.Length() && s.Substring(start, end) == search), nil
}

func stringEndsWith(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	s, c := thisString(a, this, "String.prototype.endsWith")
	if c != nil {
		return nil, c
	}
	search, c := searchString(a, args, "endsWith")
	if c != nil {
		return nil, c
	}
	end, c := clampedArg(a, args, 1, s.Length(), s.Length())
	if c != nil {
		return nil, c
	}
	start := end - search.Length()
	return vm.Boolean(start >= 0 && s.Substring(start, end) == search), nil
}

func stringIncludes(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	s, c := thisString(a, this, "String.prototype.includes")
	if c != nil {
		return nil, c
	}
	search, c := searchString(a, args, "includes")
	if c != nil {
		return nil, c
	}
	start, c := clampedArg(a, args, 1, s.Length(), 0)
	if c != nil {
		return nil, c
	}
	return vm.Boolean(s.IndexOf(search, start) >= 0), nil
}

// clampedArg reads args[i] as an integer clamped to [0, length].
func clampedArg(a *vm.Agent, args []vm.Value, i, length, def int) (int, *vm.Completion) {
	v := vm.Arg(args, i)
	if vm.IsUndefined(v) {
		return def, nil
	}
	n, c := vm.ToIntegerOrInfinity(a, v)
	if c != nil {
		return 0, c
	}
	return int(clampInt(n, 0, int64(length))), nil
}

func stringIndexOf(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	s, c := thisString(a, this, "String.prototype.indexOf")
	if c != nil {
		return nil, c
	}
	search, c := stringArg(a, args, 0)
	if c != nil {
		return nil, c
	}
	start, c := clampedArg(a, args, 1, s.Length(), 0)
	if c != nil {
		return nil, c
	}
	return vm.Number(s.IndexOf(search, start)), nil
}

func stringLastIndexOf(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	s, c := thisString(a, this, "String.prototype.lastIndexOf")
	if c != nil {
		return nil, c
	}
	search, c := stringArg(a, args, 0)
	if c != nil {
		return nil, c
	}
	pos, c := vm.ToNumber(a, vm.Arg(args, 1))
	if c != nil {
		return nil, c
	}
	start := s.Length()
	if !math.IsNaN(float64(pos)) {
		n, _ := vm.ToIntegerOrInfinity(a, pos)
		start = int(clampInt(n, 0, int64(s.Length())))
	}
	return vm.Number(s.LastIndexOf(search, start)), nil
}

// localeTag parses a locales argument, falling back to the root locale.
func localeTag(a *vm.Agent, v vm.Value) (language.Tag, *vm.Completion) {
	if o, ok := v.(*vm.Object); ok && vm.IsArray(o) {
		first, c := getIndex(a, o, 0)
		if c != nil {
			return language.Und, c
		}
		v = first
	}
	if vm.IsUndefined(v) {
		return language.Und, nil
	}
	s, c := vm.ToString(a, v)
	if c != nil {
		return language.Und, c
	}
	tag, err := language.Parse(s.String())
	if err != nil {
		return language.Und, a.ThrowRangeError("Incorrect locale information provided")
	}
	return tag, nil
}

func stringLocaleCompare(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	s, c := thisString(a, this, "String.prototype.localeCompare")
	if c != nil {
		return nil, c
	}
	that, c := stringArg(a, args, 0)
	if c != nil {
		return nil, c
	}
	tag, c := localeTag(a, vm.Arg(args, 1))
	if c != nil {
		return nil, c
	}
	return vm.Number(collate.New(tag).CompareString(s.String(), that.String())), nil
}

func stringNormalize(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	s, c := thisString(a, this, "String.prototype.normalize")
	if c != nil {
		return nil, c
	}
	form := "NFC"
	if f := vm.Arg(args, 0); !vm.IsUndefined(f) {
		fs, c := vm.ToString(a, f)
		if c != nil {
			return nil, c
		}
		form = fs.String()
	}
	var f norm.Form
	switch form {
	case "NFC":
		f = norm.NFC
	case "NFD":
		f = norm.NFD
	case "NFKC":
		f = norm.NFKC
	case "NFKD":
		f = norm.NFKD
	default:
		return nil, a.ThrowRangeError("The normalization form should be one of NFC, NFD, NFKC, NFKD.")
	}
	return vm.NewString(f.String(s.String())), nil
}

func stringPad(atStart bool) native {
	name := "String.prototype.padEnd"
	if atStart {
		name = "String.prototype.padStart"
	}
	return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		s, c := thisString(a, this, name)
		if c != nil {
			return nil, c
		}
		maxLength, c := vm.ToLength(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		if maxLength <= int64(s.Length()) {
			return s, nil
		}
		filler := vm.String(" ")
		if f := vm.Arg(args, 1); !vm.IsUndefined(f) {
			if filler, c = vm.ToString(a, f); c != nil {
				return nil, c
			}
		}
		if filler.Length() == 0 {
			return s, nil
		}
		fillLen := int(maxLength) - s.Length()
		var pad vm.String
		for pad.Length() < fillLen {
			pad = pad.Concat(filler)
		}
		pad = pad.Substring(0, fillLen)
		if atStart {
			return pad.Concat(s), nil
		}
		return s.Concat(pad), nil
	}
}

func stringRepeat(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	s, c := thisString(a, this, "String.prototype.repeat")
	if c != nil {
		return nil, c
	}
	n, c := vm.ToIntegerOrInfinity(a, vm.Arg(args, 0))
	if c != nil {
		return nil, c
	}
	if n < 0 || math.IsInf(n, 1) {
		return nil, a.ThrowRangeError("Invalid count value: " + vm.Inspect(vm.Number(n)))
	}
	if n == 0 || s.Length() == 0 {
		return vm.String(""), nil
	}
	if float64(s.Length())*n > 1<<29 {
		return nil, a.ThrowRangeError("Invalid string length")
	}
	if s.IsASCII() {
		return vm.String(strings.Repeat(string(s), int(n))), nil
	}
	units := make([]uint16, 0, s.Length()*int(n))
	for range int(n) {
		units = append(units, s.Units()...)
	}
	return vm.StringFromUnits(units), nil
}

// getSubstitution expands $-patterns in a replacement template.
func getSubstitution(a *vm.Agent, matched, str vm.String, position int, captures []vm.Value, namedCaptures vm.Value, replacement vm.String) (vm.String, *vm.Completion) {
	var result []uint16
	units := replacement.Units()
	tail := min(position+matched.Length(), str.Length())
	appendValue := func(v vm.Value) *vm.Completion {
		if vm.IsUndefined(v) {
			return nil
		}
		s, c := vm.ToString(a, v)
		if c != nil {
			return c
		}
		result = append(result, s.Units()...)
		return nil
	}
	for i := 0; i < len(units); i++ {
		u := units[i]
		if u != '$' || i+1 >= len(units) {
			result = append(result, u)
			continue
		}
		next := units[i+1]
		switch {
		case next == '$':
			result = append(result, '$')
			i++
		case next == '&':
			result = append(result, matched.Units()...)
			i++
		case next == '`':
			result = append(result, str.Substring(0, position).Units()...)
			i++
		case next == '\'':
			result = append(result, str.Substring(tail, str.Length()).Units()...)
			i++
		case next >= '0' && next <= '9':
			index := int(next - '0')
			width := 1
			if i+2 < len(units) && units[i+2] >= '0' && units[i+2] <= '9' {
				if two := index*10 + int(units[i+2]-'0'); two >= 1 && two <= len(captures) {
					index, width = two, 2
				}
			}
			if index < 1 || index > len(captures) {
				result = append(result, u)
				continue
			}
			if c := appendValue(captures[index-1]); c != nil {
				return "", c
			}
			i += width
		case next == '<':
			end := -1
			for j := i + 2; j < len(units); j++ {
				if units[j] == '>' {
					end = j
					break
				}
			}
			if vm.IsUndefined(namedCaptures) || end < 0 {
				result = append(result, u)
				continue
			}
			groups, c := vm.ToObject(a, namedCaptures)
			if c != nil {
				return "", c
			}
			capture, c := vm.Get(a, groups, vm.StringFromUnits(units[i+2:end]))
			if c != nil {
				return "", c
			}
			if c := appendValue(capture); c != nil {
				return "", c
			}
			i = end
		default:
			result = append(result, u)
		}
	}
	return vm.StringFromUnits(result), nil
}

func stringReplace(all bool) native {
	name := "replace"
	if all {
		name = "replaceAll"
	}
	return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		if vm.IsNullish(this) {
			return nil, a.ThrowTypeError("String.prototype." + name + " called on null or undefined")
		}
		searchValue, replaceValue := vm.Arg(args, 0), vm.Arg(args, 1)
		if !vm.IsNullish(searchValue) {
			if all {
				re, c := isRegExp(a, searchValue)
				if c != nil {
					return nil, c
				}
				if re {
					flags, c := vm.GetV(a, searchValue, vm.String("flags"))
					if c != nil {
						return nil, c
					}
					if vm.IsNullish(flags) {
						return nil, a.ThrowTypeError("String.prototype.replaceAll called with a non-global RegExp argument")
					}
					fs, c := vm.ToString(a, flags)
					if c != nil {
						return nil, c
					}
					if fs.IndexOf(vm.String("g"), 0) < 0 {
						return nil, a.ThrowTypeError("replaceAll must be called with a global RegExp")
					}
				}
			}
			replacer, c := vm.GetMethod(a, searchValue, vm.SymbolReplace)
			if c != nil {
				return nil, c
			}
			if replacer != nil {
				return vm.Call(a, replacer, searchValue, []vm.Value{this, replaceValue})
			}
		}
		s, c := vm.ToString(a, this)
		if c != nil {
			return nil, c
		}
		search, c := vm.ToString(a, searchValue)
		if c != nil {
			return nil, c
		}
		functional := vm.IsCallable(replaceValue)
		var template vm.String
		if !functional {
			if template, c = vm.ToString(a, replaceValue); c != nil {
				return nil, c
			}
		}

		var positions []int
		advance := max(search.Length(), 1)
		for pos := s.IndexOf(search, 0); pos >= 0; pos = s.IndexOf(search, pos+advance) {
			positions = append(positions, pos)
			if !all || pos+advance > s.Length() {
				break
			}
		}
		end := 0
		var result vm.String
		for _, p := range positions {
			var replacement vm.String
			if functional {
				v, c := vm.Call(a, replaceValue, vm.Undefined, []vm.Value{search, vm.Number(p), s})
				if c != nil {
					return nil, c
				}
				if replacement, c = vm.ToString(a, v); c != nil {
					return nil, c
				}
			} else if replacement, c = getSubstitution(a, search, s, p, nil, vm.Undefined, template); c != nil {
				return nil, c
			}
			result = result.Concat(s.Substring(end, p)).Concat(replacement)
			end = p + search.Length()
		}
		if len(positions) == 0 {
			return s, nil
		}
		return result.Concat(s.Substring(end, s.Length())), nil
	}
}

// stringMatchVia implements match and search, which dispatch to the
// argument's @@match or @@search, creating a RegExp when needed.
func stringMatchVia(sym *vm.Symbol, name string) native {
	return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		if vm.IsNullish(this) {
			return nil, a.ThrowTypeError("String.prototype." + name + " called on null or undefined")
		}
		regexp := vm.Arg(args, 0)
		if !vm.IsNullish(regexp) {
			m, c := vm.GetMethod(a, regexp, sym)
			if c != nil {
				return nil, c
			}
			if m != nil {
				return vm.Call(a, m, regexp, []vm.Value{this})
			}
		}
		s, c := vm.ToString(a, this)
		if c != nil {
			return nil, c
		}
		rx, c := regExpCreate(a, regexp, vm.Undefined)
		if c != nil {
			return nil, c
		}
		return vm.Invoke(a, rx, sym, []vm.Value{s})
	}
}

func stringMatchAll(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	if vm.IsNullish(this) {
		return nil, a.ThrowTypeError("String.prototype.matchAll called on null or undefined")
	}
	regexp := vm.Arg(args, 0)
	if !vm.IsNullish(regexp) {
		re, c := isRegExp(a, regexp)
		if c != nil {
			return nil, c
		}
		if re {
			flags, c := vm.GetV(a, regexp, vm.String("flags"))
			if c != nil {
				return nil, c
			}
			fs, c := vm.ToString(a, flags)
			if c != nil {
				return nil, c
			}
			if fs.IndexOf(vm.String("g"), 0) < 0 {
				return nil, a.ThrowTypeError("String.prototype.matchAll called with a non-global RegExp argument")
			}
		}
		matcher, c := vm.GetMethod(a, regexp, vm.SymbolMatchAll)
		if c != nil {
			return nil, c
		}
		if matcher != nil {
			return vm.Call(a, matcher, regexp, []vm.Value{this})
		}
	}
	s, c := vm.ToString(a, this)
	if c != nil {
		return nil, c
	}
	rx, c := regExpCreate(a, regexp, vm.String("g"))
	if c != nil {
		return nil, c
	}
	return vm.Invoke(a, rx, vm.SymbolMatchAll, []vm.Value{s})
}

func stringSlice(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	s, c := thisString(a, this, "String.prototype.slice")
	if c != nil {
		return nil, c
	}
	length := int64(s.Length())
	start, c := relativeArg(a, args, 0, length, 0)
	if c != nil {
		return nil, c
	}
	end, c := relativeArg(a, args, 1, length, length)
	if c != nil {
		return nil, c
	}
	if start >= end {
		return vm.String(""), nil
	}
	return s.Substring(int(start), int(end)), nil
}

func stringSubstring(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	s, c := thisString(a, this, "String.prototype.substring")
	if c != nil {
		return nil, c
	}
	start, c := clampedArg(a, args, 0, s.Length(), 0)
	if c != nil {
		return nil, c
	}
	end, c := clampedArg(a, args, 1, s.Length(), s.Length())
	if c != nil {
		return nil, c
	}
	return s.Substring(min(start, end), max(start, end)), nil
}

func stringSplit(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	if vm.IsNullish(this) {
		return nil, a.ThrowTypeError("String.prototype.split called on null or undefined")
	}
	separator, limitArg := vm.Arg(args, 0), vm.Arg(args, 1)
	if !vm.IsNullish(separator) {
		splitter, c := vm.GetMethod(a, separator, vm.SymbolSplit)
		if c != nil {
			return nil, c
		}
		if splitter != nil {
			return vm.Call(a, splitter, separator, []vm.Value{this, limitArg})
		}
	}
	s, c := vm.ToString(a, this)
	if c != nil {
		return nil, c
	}
	limit := uint32(math.MaxUint32)
	if !vm.IsUndefined(limitArg) {
		if limit, c = vm.ToUint32(a, limitArg); c != nil {
			return nil, c
		}
	}
	sep, c := vm.ToString(a, separator)
	if c != nil {
		return nil, c
	}
	if limit == 0 {
		return vm.CreateArrayFromList(a, nil), nil
	}
	if vm.IsUndefined(separator) {
		return vm.CreateArrayFromList(a, []vm.Value{s}), nil
	}
	var parts []vm.Value
	if sep.Length() == 0 {
		for i := 0; i < s.Length() && uint32(len(parts)) < limit; i++ {
			parts = append(parts, s.Substring(i, i+1))
		}
		return vm.CreateArrayFromList(a, parts), nil
	}
	start := 0
	for pos := s.IndexOf(sep, 0); pos >= 0; pos = s.IndexOf(sep, start) {
		parts = append(parts, s.Substring(start, pos))
		if uint32(len(parts)) >= limit {
			return vm.CreateArrayFromList(a, parts), nil
		}
		start = pos + sep.Length()
	}
	parts = append(parts, s.Substring(start, s.Length()))
	return vm.CreateArrayFromList(a, parts), nil
}

func stringCase(upper, locale bool) native {
	return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		s, c := thisString(a, this, "String.prototype.toLowerCase")
		if c != nil {
			return nil, c
		}
		tag := language.Und
		if locale {
			if tag, c = localeTag(a, vm.Arg(args, 0)); c != nil {
				return nil, c
			}
		}
		if s.IsASCII() {
			if upper {
				return vm.String(strings.ToUpper(string(s))), nil
			}
			return vm.String(strings.ToLower(string(s))), nil
		}
		caser := cases.Lower(tag)
		if upper {
			caser = cases.Upper(tag)
		}
		return vm.NewString(caser.String(s.String())), nil
	}
}

func stringTrim(start, end bool) native {
	return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		s, c := thisString(a, this, "String.prototype.trim")
		if c != nil {
			return nil, c
		}
		return vm.TrimString(s, start, end), nil
	}
}

// loneSurrogate returns the index of the first unpaired surrogate in s,
// or -1.
func loneSurrogate(s vm.String, from int) int {
	for i := from; i < s.Length(); {
		cp, n := s.CodePointAt(i)
		if n == 1 && utf16.IsSurrogate(cp) {
			return i
		}
		i += n
	}
	return -1
}

func stringIsWellFormed(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	s, c := thisString(a, this, "String.prototype.isWellFormed")
	if c != nil {
		return nil, c
	}
	return vm.Boolean(s.IsASCII() || loneSurrogate(s, 0) < 0), nil
}

func stringToWellFormed(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	s, c := thisString(a, this, "String.prototype.toWellFormed")
	if c != nil {
		return nil, c
	}
	if s.IsASCII() || loneSurrogate(s, 0) < 0 {
		return s, nil
	}
	units := append([]uint16(nil), s.Units()...)
	for i := loneSurrogate(s, 0); i >= 0; i = loneSurrogate(s, i+1) {
		units[i] = 0xFFFD
	}
	return vm.StringFromUnits(units), nil
}

type stringIterator struct {
	s    vm.String
	pos  int
	done bool
}

func stringIteratorNext(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	it, c := thisInternal[*stringIterator](a, this, "String Iterator.prototype.next")
	if c != nil {
		return nil, c
	}
	if it.done || it.pos >= it.s.Length() {
		it.done = true
		return vm.CreateIterResultObject(a, vm.Undefined, true), nil
	}
	_, n := it.s.CodePointAt(it.pos)
	v := it.s.Substring(it.pos, it.pos+n)
	it.pos += n
	return vm.CreateIterResultObject(a, v, false), nil
}

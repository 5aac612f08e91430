package builtins

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/dlclark/regexp2"

	"siskin/pkg/vm"
)

type RegExpInitializer struct{}

func (ri *RegExpInitializer) Name() string {
	return "RegExp"
}

func (ri *RegExpInitializer) Priority() int {
	return PriorityRegExp
}

// regExpData is the internal state of a RegExp object.
type regExpData struct {
	source vm.String
	flags  string
	names  []string // group names by capture index, "" when unnamed

	re       *regexp2.Regexp
	anchored *regexp2.Regexp // re behind \G, for the sticky flag

	global, ignoreCase, multiline, dotAll, unicode, sticky, hasIndices bool

	// The last converted input, since global loops exec the same string.
	lastString vm.String
	lastInput  *regExpInput
}

func (ri *RegExpInitializer) InitRealm(r *vm.Realm) error {
	proto := vm.OrdinaryObjectCreate(r.Intrinsics.ObjectPrototype)
	var ctor *vm.Object
	ctor = vm.DefineConstructor(r, "RegExp", 2, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		return regExpConstructor(a, ctor, args, newTarget)
	}, proto, vm.BuiltinOptions{})
	vm.DefineGetter(r, ctor, vm.SymbolSpecies, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		return this, nil
	})

	for _, flag := range []struct {
		name string
		get  func(d *regExpData) bool
	}{
		{"hasIndices", func(d *regExpData) bool { return d.hasIndices }},
		{"global", func(d *regExpData) bool { return d.global }},
		{"ignoreCase", func(d *regExpData) bool { return d.ignoreCase }},
		{"multiline", func(d *regExpData) bool { return d.multiline }},
		{"dotAll", func(d *regExpData) bool { return d.dotAll }},
		{"unicode", func(d *regExpData) bool { return d.unicode && !strings.Contains(d.flags, "v") }},
		{"unicodeSets", func(d *regExpData) bool { return strings.Contains(d.flags, "v") }},
		{"sticky", func(d *regExpData) bool { return d.sticky }},
	} {
		get := flag.get
		name := "RegExp.prototype." + flag.name
		vm.DefineGetter(r, proto, vm.NewString(flag.name), func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
			if this == proto {
				return vm.Undefined, nil
			}
			d, c := thisInternal[*regExpData](a, this, name)
			if c != nil {
				return nil, c
			}
			return vm.Boolean(get(d)), nil
		})
	}
	vm.DefineGetter(r, proto, vm.String("flags"), regExpFlags)
	vm.DefineGetter(r, proto, vm.String("source"), func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		if this == proto {
			return vm.String("(?:)"), nil
		}
		d, c := thisInternal[*regExpData](a, this, "RegExp.prototype.source")
		if c != nil {
			return nil, c
		}
		return escapePattern(d.source), nil
	})

	method(r, proto, "exec", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		if _, c := thisInternal[*regExpData](a, this, "RegExp.prototype.exec"); c != nil {
			return nil, c
		}
		s, c := stringArg(a, args, 0)
		if c != nil {
			return nil, c
		}
		return regExpBuiltinExec(a, this.(*vm.Object), s)
	})
	method(r, proto, "test", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		rx, c := thisObject(a, this, "RegExp.prototype.test")
		if c != nil {
			return nil, c
		}
		s, c := stringArg(a, args, 0)
		if c != nil {
			return nil, c
		}
		m, c := regExpExec(a, rx, s)
		if c != nil {
			return nil, c
		}
		return vm.Boolean(m != nil), nil
	})
	method(r, proto, "toString", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		rx, c := thisObject(a, this, "RegExp.prototype.toString")
		if c != nil {
			return nil, c
		}
		var parts [2]vm.String
		for i, key := range []vm.String{"source", "flags"} {
			v, c := vm.Get(a, rx, key)
			if c != nil {
				return nil, c
			}
			if parts[i], c = vm.ToString(a, v); c != nil {
				return nil, c
			}
		}
		return vm.String("/").Concat(parts[0]).Concat(vm.String("/")).Concat(parts[1]), nil
	})
	vm.DefineSymbolMethod(r, proto, vm.SymbolMatch, 1, regExpMatch)
	vm.DefineSymbolMethod(r, proto, vm.SymbolMatchAll, 1, regExpMatchAll)
	vm.DefineSymbolMethod(r, proto, vm.SymbolReplace, 2, regExpReplace)
	vm.DefineSymbolMethod(r, proto, vm.SymbolSearch, 1, regExpSearch)
	vm.DefineSymbolMethod(r, proto, vm.SymbolSplit, 2, regExpSplit)

	iterProto := vm.OrdinaryObjectCreate(r.Intrinsics.IteratorPrototype)
	method(r, iterProto, "next", 0, regExpStringIteratorNext)
	toStringTag(iterProto, "RegExp String Iterator")

	r.Intrinsics.Register("%RegExp%", ctor)
	r.Intrinsics.Register("%RegExp.prototype%", proto)
	r.Intrinsics.Register("%RegExpStringIteratorPrototype%", iterProto)
	r.DefineGlobal("RegExp", ctor)
	return nil
}

func regExpConstructor(a *vm.Agent, ctor *vm.Object, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	pattern, flags := vm.Arg(args, 0), vm.Arg(args, 1)
	patternIsRegExp, c := isRegExp(a, pattern)
	if c != nil {
		return nil, c
	}
	if newTarget == nil {
		newTarget = ctor
		if patternIsRegExp && vm.IsUndefined(flags) {
			patternCtor, c := vm.Get(a, pattern.(*vm.Object), vm.String("constructor"))
			if c != nil {
				return nil, c
			}
			if vm.SameValue(newTarget, patternCtor) {
				return pattern, nil
			}
		}
	}
	var p, f vm.Value = pattern, flags
	if po, ok := pattern.(*vm.Object); ok {
		if d, ok := po.Internal.(*regExpData); ok {
			p = d.source
			if vm.IsUndefined(flags) {
				f = vm.NewString(d.flags)
			}
		} else if patternIsRegExp {
			if p, c = vm.Get(a, po, vm.String("source")); c != nil {
				return nil, c
			}
			if vm.IsUndefined(flags) {
				if f, c = vm.Get(a, po, vm.String("flags")); c != nil {
					return nil, c
				}
			}
		}
	}
	o, c := vm.OrdinaryCreateFromConstructor(a, newTarget, func(i *vm.Intrinsics) *vm.Object {
		proto, _ := i.Lookup("%RegExp.prototype%")
		return proto
	})
	if c != nil {
		return nil, c
	}
	o.Put(vm.String("lastIndex"), vm.Number(0), vm.AttrWritable)
	return regExpInitialize(a, o, p, f)
}

func regExpInitialize(a *vm.Agent, o *vm.Object, pattern, flags vm.Value) (vm.Value, *vm.Completion) {
	var p vm.String
	if !vm.IsUndefined(pattern) {
		var c *vm.Completion
		if p, c = vm.ToString(a, pattern); c != nil {
			return nil, c
		}
	}
	var f vm.String
	if !vm.IsUndefined(flags) {
		var c *vm.Completion
		if f, c = vm.ToString(a, flags); c != nil {
			return nil, c
		}
	}
	d, err := compileRegExp(p, f.String())
	if err != nil {
		return nil, a.ThrowSyntaxError(err.Error())
	}
	o.Class, o.Internal = "RegExp", d
	if c := vm.Set(a, o, vm.String("lastIndex"), vm.Number(0), true); c != nil {
		return nil, c
	}
	return o, nil
}

// regExpCreate constructs a RegExp with the current realm's constructor.
func regExpCreate(a *vm.Agent, pattern, flags vm.Value) (*vm.Object, *vm.Completion) {
	ctor, _ := a.CurrentRealm().Intrinsics.Lookup("%RegExp%")
	return vm.Construct(a, ctor, []vm.Value{pattern, flags}, nil)
}

func compileRegExp(source vm.String, flags string) (*regExpData, error) {
	d := &regExpData{source: source, flags: flags}
	for _, f := range flags {
		var seen *bool
		switch f {
		case 'd':
			seen = &d.hasIndices
		case 'g':
			seen = &d.global
		case 'i':
			seen = &d.ignoreCase
		case 'm':
			seen = &d.multiline
		case 's':
			seen = &d.dotAll
		case 'u', 'v':
			seen = &d.unicode
		case 'y':
			seen = &d.sticky
		default:
			return nil, fmt.Errorf("Invalid flags supplied to RegExp constructor '%s'", flags)
		}
		if *seen {
			return nil, fmt.Errorf("Invalid flags supplied to RegExp constructor '%s'", flags)
		}
		*seen = true
	}
	if strings.Contains(flags, "u") && strings.Contains(flags, "v") {
		return nil, fmt.Errorf("Invalid flags supplied to RegExp constructor '%s'", flags)
	}

	translated, names, err := translatePattern(source.String(), d.dotAll)
	if err != nil {
		return nil, fmt.Errorf("Invalid regular expression: /%s/%s: %s", source, flags, err)
	}
	d.names = names
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	if d.ignoreCase {
		opts |= regexp2.IgnoreCase
	}
	if d.multiline {
		opts |= regexp2.Multiline
	}
	if d.unicode {
		opts |= regexp2.Unicode
	}
	if d.re, err = regexp2.Compile(translated, opts); err != nil {
		return nil, fmt.Errorf("Invalid regular expression: /%s/%s: %s", source, flags, err)
	}
	if d.anchored, err = regexp2.Compile(`\G(?:`+translated+`)`, opts); err != nil {
		return nil, fmt.Errorf("Invalid regular expression: /%s/%s: %s", source, flags, err)
	}
	return d, nil
}

// translatePattern rewrites the pattern into the regexp2 dialect. Named
// groups become plain groups so that capture numbering follows source
// order; the names are returned by capture index.
func translatePattern(src string, dotAll bool) (string, []string, error) {
	names := []string{""}
	index := map[string]int{}
	// First pass: number the capturing groups.
	inClass := false
	for i := 0; i < len(src); i++ {
		switch ch := src[i]; {
		case ch == '\\':
			i++
		case inClass:
			inClass = ch != ']'
		case ch == '[':
			inClass = true
		case ch == '(':
			if !strings.HasPrefix(src[i+1:], "?") {
				names = append(names, "")
				continue
			}
			rest := src[i+2:]
			if strings.HasPrefix(rest, "<") && !strings.HasPrefix(rest, "<=") && !strings.HasPrefix(rest, "<!") {
				end := strings.IndexByte(rest, '>')
				if end < 0 {
					return "", nil, fmt.Errorf("Invalid capture group name")
				}
				name := rest[1:end]
				if name == "" {
					return "", nil, fmt.Errorf("Invalid capture group name")
				}
				if _, dup := index[name]; dup {
					return "", nil, fmt.Errorf("Duplicate capture group name")
				}
				index[name] = len(names)
				names = append(names, name)
			}
		}
	}

	var b strings.Builder
	inClass = false
	for i := 0; i < len(src); i++ {
		ch := src[i]
		switch {
		case ch == '\\':
			if strings.HasPrefix(src[i+1:], "k<") && len(index) > 0 {
				end := strings.IndexByte(src[i+3:], '>')
				if end < 0 {
					return "", nil, fmt.Errorf("Invalid named reference")
				}
				n, ok := index[src[i+3:i+3+end]]
				if !ok {
					return "", nil, fmt.Errorf("Invalid named capture referenced")
				}
				b.WriteString(`(?:\` + strconv.Itoa(n) + `)`)
				i += 3 + end
				continue
			}
			b.WriteByte(ch)
			if i+1 < len(src) {
				i++
				b.WriteByte(src[i])
			}
		case inClass:
			inClass = ch != ']'
			b.WriteByte(ch)
		case ch == '[':
			switch {
			case strings.HasPrefix(src[i:], "[^]"):
				b.WriteString(`[\s\S]`)
				i += 2
			case strings.HasPrefix(src[i:], "[]"):
				b.WriteString(`(?!)`)
				i++
			default:
				inClass = true
				b.WriteByte(ch)
			}
		case ch == '(' && strings.HasPrefix(src[i:], "(?<") && !strings.HasPrefix(src[i:], "(?<=") && !strings.HasPrefix(src[i:], "(?<!"):
			b.WriteByte('(')
			i += strings.IndexByte(src[i:], '>')
		case ch == '.':
			if dotAll {
				b.WriteString(`[\s\S]`)
			} else {
				b.WriteString(`[^\n\r\u2028\u2029]`)
			}
		default:
			b.WriteByte(ch)
		}
	}
	return b.String(), names, nil
}

// escapePattern renders source so that /source/ parses back to it.
func escapePattern(source vm.String) vm.String {
	if source.Length() == 0 {
		return vm.String("(?:)")
	}
	s := source.String()
	var b strings.Builder
	inClass := false
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; {
		case ch == '\\' && i+1 < len(s):
			b.WriteByte(ch)
			i++
			b.WriteByte(s[i])
		case ch == '/' && !inClass:
			b.WriteString(`\/`)
		case ch == '\n':
			b.WriteString(`\n`)
		case ch == '\r':
			b.WriteString(`\r`)
		default:
			switch ch {
			case '[':
				inClass = true
			case ']':
				inClass = false
			}
			b.WriteByte(ch)
		}
	}
	if b.String() == s {
		return source
	}
	return vm.NewString(b.String())
}

func regExpFlags(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	rx, c := thisObject(a, this, "RegExp.prototype.flags")
	if c != nil {
		return nil, c
	}
	var b strings.Builder
	for _, flag := range []struct {
		ch   byte
		name vm.String
	}{
		{'d', "hasIndices"}, {'g', "global"}, {'i', "ignoreCase"}, {'m', "multiline"},
		{'s', "dotAll"}, {'u', "unicode"}, {'v', "unicodeSets"}, {'y', "sticky"},
	} {
		v, c := vm.Get(a, rx, flag.name)
		if c != nil {
			return nil, c
		}
		if vm.ToBoolean(v) {
			b.WriteByte(flag.ch)
		}
	}
	return vm.NewString(b.String()), nil
}

// regExpInput is a string prepared for matching. Without the unicode
// flag every code unit is one rune, so rune and code unit indices agree.
type regExpInput struct {
	runes   []rune
	offsets []int // code unit offset of each rune, unicode mode only
}

func newRegExpInput(s vm.String, unicode bool) *regExpInput {
	units := s.Units()
	in := &regExpInput{runes: make([]rune, 0, len(units))}
	if !unicode {
		for _, u := range units {
			in.runes = append(in.runes, rune(u))
		}
		return in
	}
	in.offsets = make([]int, 0, len(units)+1)
	for i := 0; i < len(units); {
		cp, n := s.CodePointAt(i)
		in.runes = append(in.runes, cp)
		in.offsets = append(in.offsets, i)
		i += n
	}
	in.offsets = append(in.offsets, len(units))
	return in
}

func (in *regExpInput) runeIndex(unit int) int {
	if in.offsets == nil {
		return unit
	}
	return sort.SearchInts(in.offsets, unit)
}

func (in *regExpInput) unitIndex(r int) int {
	if in.offsets == nil {
		return r
	}
	return in.offsets[r]
}

func (in *regExpInput) text(start, end int) vm.String {
	units := make([]uint16, 0, end-start)
	for _, r := range in.runes[start:end] {
		if r > 0xFFFF {
			r1, r2 := utf16.EncodeRune(r)
			units = append(units, uint16(r1), uint16(r2))
		} else {
			units = append(units, uint16(r))
		}
	}
	return vm.StringFromUnits(units)
}

func (d *regExpData) input(s vm.String) *regExpInput {
	if d.lastInput == nil || d.lastString != s {
		d.lastString, d.lastInput = s, newRegExpInput(s, d.unicode)
	}
	return d.lastInput
}

// regExpBuiltinExec runs the matcher from lastIndex and builds the match
// array, or returns null.
func regExpBuiltinExec(a *vm.Agent, rx *vm.Object, s vm.String) (vm.Value, *vm.Completion) {
	d := rx.Internal.(*regExpData)
	li, c := vm.Get(a, rx, vm.String("lastIndex"))
	if c != nil {
		return nil, c
	}
	lastIndex, c := vm.ToLength(a, li)
	if c != nil {
		return nil, c
	}
	if !d.global && !d.sticky {
		lastIndex = 0
	}
	fail := func() (vm.Value, *vm.Completion) {
		if d.global || d.sticky {
			if c := vm.Set(a, rx, vm.String("lastIndex"), vm.Number(0), true); c != nil {
				return nil, c
			}
		}
		return vm.Null, nil
	}
	if lastIndex > int64(s.Length()) {
		return fail()
	}
	in := d.input(s)
	re := d.re
	if d.sticky {
		re = d.anchored
	}
	m, err := re.FindRunesMatchStartingAt(in.runes, in.runeIndex(int(lastIndex)))
	if err != nil {
		return nil, a.ThrowError(err.Error())
	}
	if m == nil {
		return fail()
	}
	start, end := in.unitIndex(m.Index), in.unitIndex(m.Index+m.Length)
	if d.global || d.sticky {
		if c := vm.Set(a, rx, vm.String("lastIndex"), vm.Number(end), true); c != nil {
			return nil, c
		}
	}

	groups := m.Groups()
	values := make([]vm.Value, len(d.names))
	var indices []vm.Value
	for i := range d.names {
		values[i] = vm.Undefined
		if i < len(groups) && len(groups[i].Captures) > 0 {
			g := groups[i]
			values[i] = in.text(g.Index, g.Index+g.Length)
			if d.hasIndices {
				indices = append(indices, vm.CreateArrayFromList(a, []vm.Value{
					vm.Number(in.unitIndex(g.Index)), vm.Number(in.unitIndex(g.Index + g.Length)),
				}))
			}
		} else if d.hasIndices {
			indices = append(indices, vm.Undefined)
		}
	}
	result := vm.CreateArrayFromList(a, values)
	createData(a, result, vm.String("index"), vm.Number(start))
	createData(a, result, vm.String("input"), s)

	var groupsObj, indexGroups vm.Value = vm.Undefined, vm.Undefined
	for i, name := range d.names {
		if name == "" {
			continue
		}
		if groupsObj == vm.Undefined {
			groupsObj = vm.OrdinaryObjectCreate(nil)
			indexGroups = vm.OrdinaryObjectCreate(nil)
		}
		createData(a, groupsObj.(*vm.Object), vm.NewString(name), values[i])
		if d.hasIndices {
			createData(a, indexGroups.(*vm.Object), vm.NewString(name), indices[i])
		}
	}
	createData(a, result, vm.String("groups"), groupsObj)
	if d.hasIndices {
		indicesArr := vm.CreateArrayFromList(a, indices)
		createData(a, indicesArr, vm.String("groups"), indexGroups)
		createData(a, result, vm.String("indices"), indicesArr)
	}
	return result, nil
}

// regExpExec calls a user-defined exec when present. A nil result means
// no match.
func regExpExec(a *vm.Agent, rx *vm.Object, s vm.String) (*vm.Object, *vm.Completion) {
	exec, c := vm.Get(a, rx, vm.String("exec"))
	if c != nil {
		return nil, c
	}
	var result vm.Value
	if vm.IsCallable(exec) {
		if result, c = vm.Call(a, exec, rx, []vm.Value{s}); c != nil {
			return nil, c
		}
		if o, ok := result.(*vm.Object); ok {
			return o, nil
		}
		if result != vm.Null {
			return nil, a.ThrowTypeError("exec result must be an object or null")
		}
		return nil, nil
	}
	if _, ok := rx.Internal.(*regExpData); !ok {
		return nil, a.ThrowTypeError("RegExp exec method called on incompatible receiver " + vm.Inspect(rx))
	}
	if result, c = regExpBuiltinExec(a, rx, s); c != nil {
		return nil, c
	}
	if result == vm.Null {
		return nil, nil
	}
	return result.(*vm.Object), nil
}

func advanceStringIndex(s vm.String, index int64, unicode bool) int64 {
	if !unicode || index+1 >= int64(s.Length()) {
		return index + 1
	}
	_, n := s.CodePointAt(int(index))
	return index + int64(n)
}

// regExpFlagString reads rx.flags as a Go string.
func regExpFlagString(a *vm.Agent, rx *vm.Object) (string, *vm.Completion) {
	v, c := vm.Get(a, rx, vm.String("flags"))
	if c != nil {
		return "", c
	}
	s, c := vm.ToString(a, v)
	return s.String(), c
}

// matchString returns ToString(match[0]).
func matchString(a *vm.Agent, m *vm.Object) (vm.String, *vm.Completion) {
	v, c := getIndex(a, m, 0)
	if c != nil {
		return "", c
	}
	return vm.ToString(a, v)
}

// bumpEmptyMatch advances lastIndex past an empty match so global loops
// make progress.
func bumpEmptyMatch(a *vm.Agent, rx *vm.Object, s vm.String, unicode bool) *vm.Completion {
	li, c := vm.Get(a, rx, vm.String("lastIndex"))
	if c != nil {
		return c
	}
	thisIndex, c := vm.ToLength(a, li)
	if c != nil {
		return c
	}
	return vm.Set(a, rx, vm.String("lastIndex"), vm.Number(advanceStringIndex(s, thisIndex, unicode)), true)
}

func regExpMatch(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	rx, c := thisObject(a, this, "RegExp.prototype[Symbol.match]")
	if c != nil {
		return nil, c
	}
	s, c := stringArg(a, args, 0)
	if c != nil {
		return nil, c
	}
	flags, c := regExpFlagString(a, rx)
	if c != nil {
		return nil, c
	}
	if !strings.Contains(flags, "g") {
		m, c := regExpExec(a, rx, s)
		if c != nil || m == nil {
			return vm.Null, c
		}
		return m, nil
	}
	unicode := strings.ContainsAny(flags, "uv")
	if c := vm.Set(a, rx, vm.String("lastIndex"), vm.Number(0), true); c != nil {
		return nil, c
	}
	var matches []vm.Value
	for {
		m, c := regExpExec(a, rx, s)
		if c != nil {
			return nil, c
		}
		if m == nil {
			if len(matches) == 0 {
				return vm.Null, nil
			}
			return vm.CreateArrayFromList(a, matches), nil
		}
		matched, c := matchString(a, m)
		if c != nil {
			return nil, c
		}
		matches = append(matches, matched)
		if matched.Length() == 0 {
			if c := bumpEmptyMatch(a, rx, s, unicode); c != nil {
				return nil, c
			}
		}
	}
}

type regExpStringIterator struct {
	matcher *vm.Object
	s       vm.String
	global  bool
	unicode bool
	done    bool
}

func (it *regExpStringIterator) Mark(visit vm.Visitor) {
	visit(it.matcher)
}

func regExpMatchAll(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	rx, c := thisObject(a, this, "RegExp.prototype[Symbol.matchAll]")
	if c != nil {
		return nil, c
	}
	s, c := stringArg(a, args, 0)
	if c != nil {
		return nil, c
	}
	realm := a.CurrentRealm()
	defaultCtor, _ := realm.Intrinsics.Lookup("%RegExp%")
	ctor, c := vm.SpeciesConstructor(a, rx, defaultCtor)
	if c != nil {
		return nil, c
	}
	flags, c := regExpFlagString(a, rx)
	if c != nil {
		return nil, c
	}
	matcher, c := vm.Construct(a, ctor, []vm.Value{rx, vm.NewString(flags)}, nil)
	if c != nil {
		return nil, c
	}
	li, c := vm.Get(a, rx, vm.String("lastIndex"))
	if c != nil {
		return nil, c
	}
	lastIndex, c := vm.ToLength(a, li)
	if c != nil {
		return nil, c
	}
	if c := vm.Set(a, matcher, vm.String("lastIndex"), vm.Number(lastIndex), true); c != nil {
		return nil, c
	}
	iterProto, _ := realm.Intrinsics.Lookup("%RegExpStringIteratorPrototype%")
	it := vm.OrdinaryObjectCreate(iterProto)
	it.Class = "RegExp String Iterator"
	it.Internal = &regExpStringIterator{
		matcher: matcher,
		s:       s,
		global:  strings.Contains(flags, "g"),
		unicode: strings.ContainsAny(flags, "uv"),
	}
	return it, nil
}

func regExpStringIteratorNext(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	it, c := thisInternal[*regExpStringIterator](a, this, "%RegExpStringIteratorPrototype%.next")
	if c != nil {
		return nil, c
	}
	if it.done {
		return vm.CreateIterResultObject(a, vm.Undefined, true), nil
	}
	m, c := regExpExec(a, it.matcher, it.s)
	if c != nil {
		return nil, c
	}
	if m == nil {
		it.done = true
		return vm.CreateIterResultObject(a, vm.Undefined, true), nil
	}
	if !it.global {
		it.done = true
		return vm.CreateIterResultObject(a, m, false), nil
	}
	matched, c := matchString(a, m)
	if c != nil {
		return nil, c
	}
	if matched.Length() == 0 {
		if c := bumpEmptyMatch(a, it.matcher, it.s, it.unicode); c != nil {
			return nil, c
		}
	}
	return vm.CreateIterResultObject(a, m, false), nil
}

func regExpReplace(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	rx, c := thisObject(a, this, "RegExp.prototype[Symbol.replace]")
	if c != nil {
		return nil, c
	}
	s, c := stringArg(a, args, 0)
	if c != nil {
		return nil, c
	}
	replaceValue := vm.Arg(args, 1)
	functional := vm.IsCallable(replaceValue)
	var template vm.String
	if !functional {
		if template, c = vm.ToString(a, replaceValue); c != nil {
			return nil, c
		}
	}
	flags, c := regExpFlagString(a, rx)
	if c != nil {
		return nil, c
	}
	global := strings.Contains(flags, "g")
	unicode := strings.ContainsAny(flags, "uv")
	if global {
		if c := vm.Set(a, rx, vm.String("lastIndex"), vm.Number(0), true); c != nil {
			return nil, c
		}
	}
	var results []*vm.Object
	for {
		m, c := regExpExec(a, rx, s)
		if c != nil {
			return nil, c
		}
		if m == nil {
			break
		}
		results = append(results, m)
		if !global {
			break
		}
		matched, c := matchString(a, m)
		if c != nil {
			return nil, c
		}
		if matched.Length() == 0 {
			if c := bumpEmptyMatch(a, rx, s, unicode); c != nil {
				return nil, c
			}
		}
	}

	var result vm.String
	next := 0
	for _, m := range results {
		nCaptures, c := vm.LengthOfArrayLike(a, m)
		if c != nil {
			return nil, c
		}
		matched, c := matchString(a, m)
		if c != nil {
			return nil, c
		}
		idx, c := vm.Get(a, m, vm.String("index"))
		if c != nil {
			return nil, c
		}
		posf, c := vm.ToIntegerOrInfinity(a, idx)
		if c != nil {
			return nil, c
		}
		position := int(clampInt(posf, 0, int64(s.Length())))
		captures := make([]vm.Value, 0, max(nCaptures-1, 0))
		for n := int64(1); n < nCaptures; n++ {
			capN, c := getIndex(a, m, n)
			if c != nil {
				return nil, c
			}
			if !vm.IsUndefined(capN) {
				if capN, c = vm.ToString(a, capN); c != nil {
					return nil, c
				}
			}
			captures = append(captures, capN)
		}
		namedCaptures, c := vm.Get(a, m, vm.String("groups"))
		if c != nil {
			return nil, c
		}
		var replacement vm.String
		if functional {
			fnArgs := append([]vm.Value{matched}, captures...)
			fnArgs = append(fnArgs, vm.Number(position), s)
			if !vm.IsUndefined(namedCaptures) {
				fnArgs = append(fnArgs, namedCaptures)
			}
			v, c := vm.Call(a, replaceValue, vm.Undefined, fnArgs)
			if c != nil {
				return nil, c
			}
			if replacement, c = vm.ToString(a, v); c != nil {
				return nil, c
			}
		} else {
			if !vm.IsUndefined(namedCaptures) {
				if namedCaptures, c = vm.ToObject(a, namedCaptures); c != nil {
					return nil, c
				}
			}
			if replacement, c = getSubstitution(a, matched, s, position, captures, namedCaptures, template); c != nil {
				return nil, c
			}
		}
		if position >= next {
			result = result.Concat(s.Substring(next, position)).Concat(replacement)
			next = position + matched.Length()
		}
	}
	if next >= s.Length() {
		return result, nil
	}
	return result.Concat(s.Substring(next, s.Length())), nil
}

func regExpSearch(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	rx, c := thisObject(a, this, "RegExp.prototype[Symbol.search]")
	if c != nil {
		return nil, c
	}
	s, c := stringArg(a, args, 0)
	if c != nil {
		return nil, c
	}
	previous, c := vm.Get(a, rx, vm.String("lastIndex"))
	if c != nil {
		return nil, c
	}
	if !vm.SameValue(previous, vm.Number(0)) {
		if c := vm.Set(a, rx, vm.String("lastIndex"), vm.Number(0), true); c != nil {
			return nil, c
		}
	}
	m, c := regExpExec(a, rx, s)
	if c != nil {
		return nil, c
	}
	current, c := vm.Get(a, rx, vm.String("lastIndex"))
	if c != nil {
		return nil, c
	}
	if !vm.SameValue(current, previous) {
		if c := vm.Set(a, rx, vm.String("lastIndex"), previous, true); c != nil {
			return nil, c
		}
	}
	if m == nil {
		return vm.Number(-1), nil
	}
	return vm.Get(a, m, vm.String("index"))
}

func regExpSplit(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	rx, c := thisObject(a, this, "RegExp.prototype[Symbol.split]")
	if c != nil {
		return nil, c
	}
	s, c := stringArg(a, args, 0)
	if c != nil {
		return nil, c
	}
	defaultCtor, _ := a.CurrentRealm().Intrinsics.Lookup("%RegExp%")
	ctor, c := vm.SpeciesConstructor(a, rx, defaultCtor)
	if c != nil {
		return nil, c
	}
	flags, c := regExpFlagString(a, rx)
	if c != nil {
		return nil, c
	}
	unicode := strings.ContainsAny(flags, "uv")
	newFlags := flags
	if !strings.Contains(flags, "y") {
		newFlags += "y"
	}
	splitter, c := vm.Construct(a, ctor, []vm.Value{rx, vm.NewString(newFlags)}, nil)
	if c != nil {
		return nil, c
	}
	limit := uint32(1<<32 - 1)
	if l := vm.Arg(args, 1); !vm.IsUndefined(l) {
		if limit, c = vm.ToUint32(a, l); c != nil {
			return nil, c
		}
	}
	var parts []vm.Value
	if limit == 0 {
		return vm.CreateArrayFromList(a, nil), nil
	}
	size := int64(s.Length())
	if size == 0 {
		m, c := regExpExec(a, splitter, s)
		if c != nil {
			return nil, c
		}
		if m != nil {
			return vm.CreateArrayFromList(a, nil), nil
		}
		return vm.CreateArrayFromList(a, []vm.Value{s}), nil
	}
	p := int64(0)
	for q := p; q < size; {
		if c := vm.Set(a, splitter, vm.String("lastIndex"), vm.Number(q), true); c != nil {
			return nil, c
		}
		m, c := regExpExec(a, splitter, s)
		if c != nil {
			return nil, c
		}
		if m == nil {
			q = advanceStringIndex(s, q, unicode)
			continue
		}
		li, c := vm.Get(a, splitter, vm.String("lastIndex"))
		if c != nil {
			return nil, c
		}
		e, c := vm.ToLength(a, li)
		if c != nil {
			return nil, c
		}
		e = min(e, size)
		if e == p {
			q = advanceStringIndex(s, q, unicode)
			continue
		}
		parts = append(parts, s.Substring(int(p), int(q)))
		if uint32(len(parts)) == limit {
			return vm.CreateArrayFromList(a, parts), nil
		}
		p = e
		nCaptures, c := vm.LengthOfArrayLike(a, m)
		if c != nil {
			return nil, c
		}
		for i := int64(1); i < nCaptures; i++ {
			capture, c := getIndex(a, m, i)
			if c != nil {
				return nil, c
			}
			parts = append(parts, capture)
			if uint32(len(parts)) == limit {
				return vm.CreateArrayFromList(a, parts), nil
			}
		}
		q = p
	}
	parts = append(parts, s.Substring(int(p), int(size)))
	return vm.CreateArrayFromList(a, parts), nil
}

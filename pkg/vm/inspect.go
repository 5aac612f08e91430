package vm

import (
	"strconv"
	"strings"
	"unicode"
)

// Inspector lets an internal slot render its object, e.g. Map entries.
// inspect renders nested values.
type Inspector interface {
	Inspect(o *Object, inspect func(Value) string) string
}

const inspectDepth = 2

// Inspect renders a value for display without running any user code.
// Top-level strings are printed as is; nested ones are quoted.
func Inspect(v Value) string {
	if s, ok := v.(String); ok {
		return s.String()
	}
	p := &inspector{seen: map[*Object]bool{}}
	return p.value(v, 0)
}

type inspector struct {
	seen map[*Object]bool
}

func (p *inspector) value(v Value, depth int) string {
	switch v := v.(type) {
	case nil:
		return "<empty>"
	case String:
		return quoteJSString(v.String())
	case Number:
		if v == 0 && 1/float64(v) < 0 {
			return "-0"
		}
		return NumberToString(v).String()
	case Boolean:
		if v {
			return "true"
		}
		return "false"
	case *BigInt:
		return v.String() + "n"
	case *Symbol:
		return v.DescriptiveString().String()
	case *Object:
		return p.object(v, depth)
	}
	if IsUndefined(v) {
		return "undefined"
	}
	return "null"
}

func quoteJSString(s string) string {
	quote := byte('\'')
	if strings.IndexByte(s, '\'') >= 0 && strings.IndexByte(s, '"') < 0 {
		quote = '"'
	}
	var b strings.Builder
	b.WriteByte(quote)
	for _, r := range s {
		switch {
		case r == rune(quote) || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\r':
			b.WriteString(`\r`)
		case r < 0x20:
			b.WriteString(`\x`)
			b.WriteString(strconv.FormatInt(int64(r)+0x100, 16)[1:])
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(quote)
	return b.String()
}

func (p *inspector) object(o *Object, depth int) string {
	if p.seen[o] {
		return "[Circular]"
	}
	p.seen[o] = true
	defer delete(p.seen, o)

	nested := func(v Value) string { return p.value(v, depth+1) }
	if in, ok := o.Internal.(Inspector); ok {
		return in.Inspect(o, nested)
	}

	switch data := o.Internal.(type) {
	case *ErrorData:
		if s, ok := o.OwnValue(String("stack")); ok {
			if s, ok := s.(String); ok && depth == 0 {
				return s.String()
			}
		}
		return "[" + describeThrown(o) + "]"
	case *PromiseData:
		switch data.State {
		case PromisePending:
			return "Promise { <pending> }"
		case PromiseRejected:
			return "Promise { <rejected> " + nested(data.Result) + " }"
		}
		return "Promise { " + nested(data.Result) + " }"
	case *PrimitiveWrapper:
		kind := data.Value.Type().String()
		return "[" + strings.ToUpper(kind[:1]) + kind[1:] + ": " + p.value(data.Value, depth+1) + "]"
	case *WeakRefData:
		return "WeakRef { <opaque> }"
	case *WeakMapData:
		return "WeakMap { <items unknown> }"
	case *WeakSetData:
		return "WeakSet { <items unknown> }"
	}

	if o.fn != nil {
		return p.function(o)
	}
	if ns, ok := o.behavior.(*namespaceBehavior); ok {
		return p.namespace(ns, depth)
	}
	if IsArray(o) {
		if depth > inspectDepth {
			return "[Array]"
		}
		return p.array(o, depth)
	}
	prefix := p.constructorPrefix(o)
	if depth > inspectDepth {
		if prefix == "" {
			return "[Object]"
		}
		return "[" + strings.TrimSpace(prefix) + "]"
	}
	entries := p.properties(o, depth, nil)
	if len(entries) == 0 {
		return prefix + "{}"
	}
	return prefix + "{ " + strings.Join(entries, ", ") + " }"
}

func (p *inspector) function(o *Object) string {
	name := ""
	if v, ok := o.OwnValue(String("name")); ok {
		if s, ok := v.(String); ok {
			name = s.String()
		}
	}
	if f, ok := o.fn.(*ECMAScriptFunction); ok && f.IsClassConstructor {
		if name == "" {
			return "[class (anonymous)]"
		}
		return "[class " + name + "]"
	}
	kind := "Function"
	if f, ok := o.fn.(*ECMAScriptFunction); ok {
		switch f.Kind {
		case KindGenerator:
			kind = "GeneratorFunction"
		case KindAsync:
			kind = "AsyncFunction"
		case KindAsyncGenerator:
			kind = "AsyncGeneratorFunction"
		}
	}
	if name == "" {
		return "[" + kind + " (anonymous)]"
	}
	return "[" + kind + ": " + name + "]"
}

func (p *inspector) array(o *Object, depth int) string {
	length := o.behavior.(*arrayBehavior).arrayLength(o)
	var parts []string
	holes := 0
	flushHoles := func() {
		if holes == 0 {
			return
		}
		if holes == 1 {
			parts = append(parts, "<1 empty item>")
		} else {
			parts = append(parts, "<"+strconv.Itoa(holes)+" empty items>")
		}
		holes = 0
	}
	const maxItems = 100
	shown := uint32(0)
	for i := uint32(0); i < length && shown < maxItems; i++ {
		prop := o.getOwn(indexKey(int(i)))
		if prop == nil {
			holes++
			continue
		}
		flushHoles()
		parts = append(parts, p.propertyValue(prop, depth))
		shown++
	}
	flushHoles()
	if length > maxItems && shown == maxItems {
		parts = append(parts, "... "+strconv.Itoa(int(length-maxItems))+" more items")
	}
	parts = append(parts, p.properties(o, depth, func(k PropertyKey) bool {
		if s, ok := k.(String); ok {
			if _, isIndex := s.ArrayIndex(); isIndex || s == lengthKey {
				return false
			}
		}
		return true
	})...)
	if len(parts) == 0 {
		return "[]"
	}
	return "[ " + strings.Join(parts, ", ") + " ]"
}

func (p *inspector) namespace(ns *namespaceBehavior, depth int) string {
	var parts []string
	for _, name := range ns.exports {
		v, ok := ns.peek(name)
		rendered := "<uninitialized>"
		if ok {
			rendered = p.value(v, depth+1)
		}
		parts = append(parts, inspectKey(name)+": "+rendered)
	}
	if len(parts) == 0 {
		return "[Module: null prototype] {}"
	}
	return "[Module: null prototype] { " + strings.Join(parts, ", ") + " }"
}

// properties renders own enumerable properties accepted by keep.
func (p *inspector) properties(o *Object, depth int, keep func(PropertyKey) bool) []string {
	var parts []string
	for _, k := range o.orderedKeys() {
		if keep != nil && !keep(k) {
			continue
		}
		prop := o.getOwn(k)
		if prop == nil || !prop.Enumerable {
			continue
		}
		parts = append(parts, inspectKey(k)+": "+p.propertyValue(prop, depth))
	}
	return parts
}

func (p *inspector) propertyValue(prop *Property, depth int) string {
	if !prop.Accessor {
		return p.value(prop.Value, depth+1)
	}
	switch {
	case prop.Getter != nil && prop.Setter != nil:
		return "[Getter/Setter]"
	case prop.Getter != nil:
		return "[Getter]"
	}
	return "[Setter]"
}

// constructorPrefix names the class of instances, e.g. "Point ".
func (p *inspector) constructorPrefix(o *Object) string {
	if o.proto == nil {
		return "[Object: null prototype] "
	}
	if tag, ok := lookupDataValue(o, SymbolToStringTag); ok {
		if s, ok := tag.(String); ok && s != "" {
			return "Object [" + s.String() + "] "
		}
	}
	ctor, ok := lookupDataValue(o.proto, String("constructor"))
	if !ok {
		return ""
	}
	co, ok := ctor.(*Object)
	if !ok {
		return ""
	}
	name, _ := co.OwnValue(String("name"))
	if s, ok := name.(String); ok && s != "" && s != "Object" {
		return s.String() + " "
	}
	return ""
}

func inspectKey(k PropertyKey) string {
	switch k := k.(type) {
	case *Symbol:
		return "[" + k.DescriptiveString().String() + "]"
	case String:
		s := k.String()
		if isIdentifierName(s) {
			return s
		}
		if _, ok := k.ArrayIndex(); ok {
			return s
		}
		return quoteJSString(s)
	}
	return "?"
}

func isIdentifierName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '$' || r == '_' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

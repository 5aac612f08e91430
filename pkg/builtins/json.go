package builtins

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"

	"siskin/pkg/vm"
)

// parseJSONText converts JSON text to values, preserving object key order.
// Lone surrogate escapes decode to U+FFFD.
func parseJSONText(a *vm.Agent, text string) (vm.Value, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	v, err := parseJSONValue(a, dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("Unexpected non-whitespace character after JSON")
	}
	return v, nil
}

func parseJSONValue(a *vm.Agent, dec *json.Decoder) (vm.Value, error) {
	token, err := dec.Token()
	if err == io.EOF {
		return nil, errors.New("Unexpected end of JSON input")
	}
	if err != nil {
		return nil, err
	}

	switch t := token.(type) {
	case nil:
		return vm.Null, nil
	case bool:
		return vm.Boolean(t), nil
	case json.Number:
		f, err := strconv.ParseFloat(string(t), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return nil, err
		}
		return vm.Number(f), nil
	case string:
		return vm.NewString(t), nil
	case json.Delim:
		switch t {
		case '{':
			o := newObject(a)
			for dec.More() {
				keyToken, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyToken.(string)
				if !ok {
					return nil, errors.New("expected string key in object")
				}
				value, err := parseJSONValue(a, dec)
				if err != nil {
					return nil, err
				}
				createData(a, o, vm.NewString(key), value)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return o, nil
		case '[':
			var elements []vm.Value
			for dec.More() {
				elem, err := parseJSONValue(a, dec)
				if err != nil {
					return nil, err
				}
				elements = append(elements, elem)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return vm.CreateArrayFromList(a, elements), nil
		}
	}
	return nil, errors.New("unexpected JSON token")
}

// internalizeJSONProperty walks the parse result bottom-up, replacing each
// property with the reviver's return value or deleting it on undefined.
func internalizeJSONProperty(a *vm.Agent, reviver vm.Value, holder *vm.Object, name vm.String) (vm.Value, *vm.Completion) {
	val, c := vm.Get(a, holder, name)
	if c != nil {
		return nil, c
	}
	if o, ok := val.(*vm.Object); ok {
		var keys []vm.String
		if vm.IsArray(o) {
			n, c := vm.LengthOfArrayLike(a, o)
			if c != nil {
				return nil, c
			}
			for i := int64(0); i < n; i++ {
				keys = append(keys, vm.IndexKey(i))
			}
		} else {
			list, c := vm.EnumerableOwnProperties(a, o, vm.EnumerateKeys)
			if c != nil {
				return nil, c
			}
			for _, k := range list {
				keys = append(keys, k.(vm.String))
			}
		}
		for _, key := range keys {
			elem, c := internalizeJSONProperty(a, reviver, o, key)
			if c != nil {
				return nil, c
			}
			if vm.IsUndefined(elem) {
				_, c = o.Delete(a, key)
			} else {
				_, c = vm.CreateDataProperty(a, o, key, elem)
			}
			if c != nil {
				return nil, c
			}
		}
	}
	return vm.Call(a, reviver, holder, []vm.Value{name, val})
}

// quoteJSONString appends the JSON string literal for units to dst.
// Paired surrogates pass through, lone ones are escaped.
func quoteJSONString(dst []uint16, units []uint16) []uint16 {
	const hex = "0123456789abcdef"
	escape := func(u uint16) {
		dst = append(dst, '\\', 'u', uint16(hex[u>>12]), uint16(hex[u>>8&0xf]), uint16(hex[u>>4&0xf]), uint16(hex[u&0xf]))
	}
	dst = append(dst, '"')
	for i := 0; i < len(units); i++ {
		u := units[i]
		switch {
		case u == '\b':
			dst = append(dst, '\\', 'b')
		case u == '\t':
			dst = append(dst, '\\', 't')
		case u == '\n':
			dst = append(dst, '\\', 'n')
		case u == '\f':
			dst = append(dst, '\\', 'f')
		case u == '\r':
			dst = append(dst, '\\', 'r')
		case u == '"' || u == '\\':
			dst = append(dst, '\\', u)
		case u < 0x20:
			escape(u)
		case u >= 0xD800 && u <= 0xDBFF:
			if i+1 < len(units) && units[i+1] >= 0xDC00 && units[i+1] <= 0xDFFF {
				dst = append(dst, u, units[i+1])
				i++
			} else {
				escape(u)
			}
		case u >= 0xDC00 && u <= 0xDFFF:
			escape(u)
		default:
			dst = append(dst, u)
		}
	}
	return append(dst, '"')
}

// jsonRawText is the internal slot of objects made by JSON.rawJSON.
type jsonRawText struct {
	text vm.String
}

// jsonStringifier holds the state of one JSON.stringify call.
type jsonStringifier struct {
	a            *vm.Agent
	replacer     vm.Value
	propertyList []vm.String
	gap          []uint16
	indent       []uint16
	stack        []*vm.Object
}

func asciiUnits(s string) []uint16 {
	units := make([]uint16, len(s))
	for i := 0; i < len(s); i++ {
		units[i] = uint16(s[i])
	}
	return units
}

// serializeProperty returns the JSON text for holder[key]; ok is false
// when the value has no JSON representation.
func (s *jsonStringifier) serializeProperty(holder *vm.Object, key vm.String) (out []uint16, ok bool, c *vm.Completion) {
	a := s.a
	value, c := vm.Get(a, holder, key)
	if c != nil {
		return nil, false, c
	}
	return s.serializeValue(holder, key, value)
}

func (s *jsonStringifier) serializeValue(holder *vm.Object, key vm.String, value vm.Value) ([]uint16, bool, *vm.Completion) {
	a := s.a
	switch value.(type) {
	case *vm.Object, *vm.BigInt:
		toJSON, c := vm.GetV(a, value, vm.String("toJSON"))
		if c != nil {
			return nil, false, c
		}
		if vm.IsCallable(toJSON) {
			if value, c = vm.Call(a, toJSON, value, []vm.Value{key}); c != nil {
				return nil, false, c
			}
		}
	}
	if s.replacer != nil {
		var c *vm.Completion
		if value, c = vm.Call(a, s.replacer, holder, []vm.Value{key, value}); c != nil {
			return nil, false, c
		}
	}
	if o, ok := value.(*vm.Object); ok {
		switch internal := o.Internal.(type) {
		case *jsonRawText:
			return internal.text.Units(), true, nil
		case *vm.PrimitiveWrapper:
			switch internal.Value.(type) {
			case vm.Number:
				n, c := vm.ToNumber(a, o)
				if c != nil {
					return nil, false, c
				}
				value = n
			case vm.String:
				str, c := vm.ToString(a, o)
				if c != nil {
					return nil, false, c
				}
				value = str
			case vm.Boolean, *vm.BigInt:
				value = internal.Value
			}
		}
	}

	switch v := value.(type) {
	case vm.Boolean:
		if v {
			return asciiUnits("true"), true, nil
		}
		return asciiUnits("false"), true, nil
	case vm.String:
		return quoteJSONString(nil, v.Units()), true, nil
	case vm.Number:
		if v != v || v-v != 0 {
			return asciiUnits("null"), true, nil
		}
		return vm.NumberToString(v).Units(), true, nil
	case *vm.BigInt:
		return nil, false, a.ThrowTypeError("Do not know how to serialize a BigInt")
	case *vm.Object:
		if vm.IsCallable(v) {
			return nil, false, nil
		}
		var out []uint16
		var c *vm.Completion
		if vm.IsArray(v) {
			out, c = s.serializeArray(v)
		} else {
			out, c = s.serializeObject(v)
		}
		return out, c == nil, c
	}
	if value == vm.Null {
		return asciiUnits("null"), true, nil
	}
	return nil, false, nil
}

func (s *jsonStringifier) enter(o *vm.Object) *vm.Completion {
	for _, seen := range s.stack {
		if seen == o {
			return s.a.ThrowTypeError("Converting circular structure to JSON")
		}
	}
	s.stack = append(s.stack, o)
	return nil
}

func (s *jsonStringifier) leave() {
	s.stack = s.stack[:len(s.stack)-1]
}

// join wraps parts in open and close, putting each part on its own line
// when a gap is set.
func (s *jsonStringifier) join(open, close uint16, parts [][]uint16, stepback []uint16) []uint16 {
	if len(parts) == 0 {
		return []uint16{open, close}
	}
	out := []uint16{open}
	for i, p := range parts {
		if i > 0 {
			out = append(out, ',')
		}
		if len(s.gap) > 0 {
			out = append(out, '\n')
			out = append(out, s.indent...)
		}
		out = append(out, p...)
	}
	if len(s.gap) > 0 {
		out = append(out, '\n')
		out = append(out, stepback...)
	}
	return append(out, close)
}

func (s *jsonStringifier) serializeObject(o *vm.Object) ([]uint16, *vm.Completion) {
	if c := s.enter(o); c != nil {
		return nil, c
	}
	defer s.leave()
	stepback := s.indent
	s.indent = append(append([]uint16(nil), s.indent...), s.gap...)
	defer func() { s.indent = stepback }()

	keys := s.propertyList
	if keys == nil {
		list, c := vm.EnumerableOwnProperties(s.a, o, vm.EnumerateKeys)
		if c != nil {
			return nil, c
		}
		for _, k := range list {
			keys = append(keys, k.(vm.String))
		}
	}
	var parts [][]uint16
	for _, key := range keys {
		str, ok, c := s.serializeProperty(o, key)
		if c != nil {
			return nil, c
		}
		if !ok {
			continue
		}
		member := quoteJSONString(nil, key.Units())
		member = append(member, ':')
		if len(s.gap) > 0 {
			member = append(member, ' ')
		}
		parts = append(parts, append(member, str...))
	}
	return s.join('{', '}', parts, stepback), nil
}

func (s *jsonStringifier) serializeArray(o *vm.Object) ([]uint16, *vm.Completion) {
	if c := s.enter(o); c != nil {
		return nil, c
	}
	defer s.leave()
	stepback := s.indent
	s.indent = append(append([]uint16(nil), s.indent...), s.gap...)
	defer func() { s.indent = stepback }()

	n, c := vm.LengthOfArrayLike(s.a, o)
	if c != nil {
		return nil, c
	}
	parts := make([][]uint16, 0, n)
	for i := int64(0); i < n; i++ {
		str, ok, c := s.serializeProperty(o, vm.IndexKey(i))
		if c != nil {
			return nil, c
		}
		if !ok {
			str = asciiUnits("null")
		}
		parts = append(parts, str)
	}
	return s.join('[', ']', parts, stepback), nil
}

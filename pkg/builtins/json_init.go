package builtins

import (
	"siskin/pkg/vm"
)

type JSONInitializer struct{}

func (j *JSONInitializer) Name() string {
	return "JSON"
}

func (j *JSONInitializer) Priority() int {
	return PriorityJSON // 101 - After Math
}

func (j *JSONInitializer) InitRealm(r *vm.Realm) error {
	jsonObj := namespace(r, "JSON")

	method(r, jsonObj, "parse", 2, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		text, c := vm.ToString(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		v, err := parseJSONText(a, text.String())
		if err != nil {
			return nil, a.ThrowSyntaxError("JSON.parse: " + err.Error())
		}
		reviver := vm.Arg(args, 1)
		if !vm.IsCallable(reviver) {
			return v, nil
		}
		root := newObject(a)
		createData(a, root, vm.String(""), v)
		return internalizeJSONProperty(a, reviver, root, vm.String(""))
	})

	method(r, jsonObj, "stringify", 3, jsonStringify)

	method(r, jsonObj, "rawJSON", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		text, c := vm.ToString(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		if n := text.Length(); n == 0 || isJSONWhitespace(text.At(0)) || isJSONWhitespace(text.At(n-1)) {
			return nil, a.ThrowSyntaxError("Invalid value for JSON.rawJSON")
		}
		v, err := parseJSONText(a, text.String())
		if err != nil {
			return nil, a.ThrowSyntaxError("JSON.rawJSON: " + err.Error())
		}
		if _, ok := v.(*vm.Object); ok {
			return nil, a.ThrowSyntaxError("JSON.rawJSON cannot create objects or arrays")
		}
		o := vm.OrdinaryObjectCreate(nil)
		o.Internal = &jsonRawText{text: text}
		createData(a, o, vm.String("rawJSON"), text)
		vm.Must(vm.SetIntegrityLevel(a, o, vm.Frozen))
		return o, nil
	})

	method(r, jsonObj, "isRawJSON", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		if o, ok := vm.Arg(args, 0).(*vm.Object); ok {
			_, raw := o.Internal.(*jsonRawText)
			return vm.Boolean(raw), nil
		}
		return vm.False, nil
	})

	r.Intrinsics.Register("%JSON%", jsonObj)
	r.DefineGlobal("JSON", jsonObj)
	return nil
}

func isJSONWhitespace(u uint16) bool {
	return u == '\t' || u == '\n' || u == '\r' || u == ' '
}

func jsonStringify(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	s := &jsonStringifier{a: a}

	if replacer, ok := vm.Arg(args, 1).(*vm.Object); ok {
		if vm.IsCallable(replacer) {
			s.replacer = replacer
		} else if vm.IsArray(replacer) {
			list, c := jsonPropertyList(a, replacer)
			if c != nil {
				return nil, c
			}
			s.propertyList = list
		}
	}

	space := vm.Arg(args, 2)
	if o, ok := space.(*vm.Object); ok {
		if w, ok := o.Internal.(*vm.PrimitiveWrapper); ok {
			var c *vm.Completion
			switch w.Value.(type) {
			case vm.Number:
				space, c = vm.ToNumber(a, o)
			case vm.String:
				space, c = vm.ToString(a, o)
			}
			if c != nil {
				return nil, c
			}
		}
	}
	switch sp := space.(type) {
	case vm.Number:
		n, _ := vm.ToIntegerOrInfinity(a, sp)
		for i := 0; i < int(clampInt(n, 0, 10)); i++ {
			s.gap = append(s.gap, ' ')
		}
	case vm.String:
		units := sp.Units()
		s.gap = append(s.gap, units[:min(len(units), 10)]...)
	}

	wrapper := newObject(a)
	createData(a, wrapper, vm.String(""), vm.Arg(args, 0))
	out, ok, c := s.serializeProperty(wrapper, vm.String(""))
	if c != nil {
		return nil, c
	}
	if !ok {
		return vm.Undefined, nil
	}
	return vm.StringFromUnits(out), nil
}

// jsonPropertyList collects the allow-list of keys from an array replacer,
// keeping the first occurrence of each.
func jsonPropertyList(a *vm.Agent, replacer *vm.Object) ([]vm.String, *vm.Completion) {
	n, c := vm.LengthOfArrayLike(a, replacer)
	if c != nil {
		return nil, c
	}
	list := []vm.String{}
	seen := make(map[vm.String]bool)
	for i := int64(0); i < n; i++ {
		v, c := vm.Get(a, replacer, vm.IndexKey(i))
		if c != nil {
			return nil, c
		}
		var item vm.String
		switch x := v.(type) {
		case vm.String:
			item = x
		case vm.Number:
			item = vm.NumberToString(x)
		case *vm.Object:
			w, ok := x.Internal.(*vm.PrimitiveWrapper)
			if !ok {
				continue
			}
			switch w.Value.(type) {
			case vm.String, vm.Number:
				if item, c = vm.ToString(a, x); c != nil {
					return nil, c
				}
			default:
				continue
			}
		default:
			continue
		}
		if !seen[item] {
			seen[item] = true
			list = append(list, item)
		}
	}
	return list, nil
}

package builtins

import (
	"math"
	"strings"

	"siskin/pkg/vm"
)

type ArrayInitializer struct{}

func (ai *ArrayInitializer) Name() string {
	return "Array"
}

func (ai *ArrayInitializer) Priority() int {
	return PriorityArray
}

func (ai *ArrayInitializer) InitRealm(r *vm.Realm) error {
	ctor, proto := r.Intrinsics.Array, r.Intrinsics.ArrayPrototype

	method(r, ctor, "from", 1, arrayFrom)
	method(r, ctor, "of", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, c := constructThisOrArray(a, this, len(args))
		if c != nil {
			return nil, c
		}
		for i, v := range args {
			if c := vm.CreateDataPropertyOrThrow(a, o, vm.IndexKey(int64(i)), v); c != nil {
				return nil, c
			}
		}
		return o, vm.Set(a, o, vm.String("length"), vm.Number(len(args)), true)
	})

	method(r, proto, "at", 1, arrayAt)
	method(r, proto, "concat", 1, arrayConcat)
	method(r, proto, "every", 1, arrayPredicate(func(hit bool) (bool, vm.Value) { return !hit, vm.False }, vm.True))
	method(r, proto, "some", 1, arrayPredicate(func(hit bool) (bool, vm.Value) { return hit, vm.True }, vm.False))
	method(r, proto, "fill", 1, arrayFill)
	method(r, proto, "filter", 1, arrayFilter)
	method(r, proto, "find", 1, arrayFind(false, false))
	method(r, proto, "findIndex", 1, arrayFind(false, true))
	method(r, proto, "findLast", 1, arrayFind(true, false))
	method(r, proto, "findLastIndex", 1, arrayFind(true, true))
	method(r, proto, "flat", 0, arrayFlat)
	method(r, proto, "flatMap", 1, arrayFlatMap)
	method(r, proto, "forEach", 1, arrayForEach)
	method(r, proto, "includes", 1, arrayIncludes)
	method(r, proto, "indexOf", 1, arrayIndexOf)
	method(r, proto, "lastIndexOf", 1, arrayLastIndexOf)
	method(r, proto, "join", 1, arrayJoin)
	method(r, proto, "map", 1, arrayMap)
	method(r, proto, "pop", 0, arrayPop)
	method(r, proto, "push", 1, arrayPush)
	method(r, proto, "reduce", 1, arrayReduce(false))
	method(r, proto, "reduceRight", 1, arrayReduce(true))
	method(r, proto, "reverse", 0, arrayReverse)
	method(r, proto, "shift", 0, arrayShift)
	method(r, proto, "unshift", 1, arrayUnshift)
	method(r, proto, "slice", 2, arraySlice)
	method(r, proto, "splice", 2, arraySplice)
	method(r, proto, "sort", 1, arraySort)
	method(r, proto, "toReversed", 0, arrayToReversed)
	method(r, proto, "toSorted", 1, arrayToSorted)
	method(r, proto, "with", 2, arrayWith)
	method(r, proto, "toString", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, c := vm.ToObject(a, this)
		if c != nil {
			return nil, c
		}
		join, c := vm.Get(a, o, vm.String("join"))
		if c != nil {
			return nil, c
		}
		if !vm.IsCallable(join) {
			return objectToString(a, o, nil, nil)
		}
		return vm.Call(a, join, o, nil)
	})

	unscopables := vm.OrdinaryObjectCreate(nil)
	for _, name := range []string{"at", "fill", "find", "findIndex", "findLast", "findLastIndex", "flat", "flatMap", "includes", "keys", "entries", "values", "toReversed", "toSorted"} {
		unscopables.Put(vm.NewString(name), vm.True, vm.AttrAll)
	}
	proto.Put(vm.SymbolUnscopables, unscopables, vm.AttrConfigurable)
	return nil
}

// arrayLike converts this to an object and reads its length.
func arrayLike(a *vm.Agent, this vm.Value) (*vm.Object, int64, *vm.Completion) {
	o, c := vm.ToObject(a, this)
	if c != nil {
		return nil, 0, c
	}
	length, c := vm.LengthOfArrayLike(a, o)
	if c != nil {
		return nil, 0, c
	}
	return o, length, nil
}

func getIndex(a *vm.Agent, o *vm.Object, i int64) (vm.Value, *vm.Completion) {
	return vm.Get(a, o, vm.IndexKey(i))
}

func hasIndex(a *vm.Agent, o *vm.Object, i int64) (bool, *vm.Completion) {
	return vm.HasProperty(a, o, vm.IndexKey(i))
}

func setLength(a *vm.Agent, o *vm.Object, n int64) *vm.Completion {
	return vm.Set(a, o, vm.String("length"), vm.Number(n), true)
}

// constructThisOrArray is the "IsConstructor(C) ? Construct(C) : ArrayCreate"
// step of Array.of and Array.from.
func constructThisOrArray(a *vm.Agent, this vm.Value, length int) (*vm.Object, *vm.Completion) {
	if ctor, ok := this.(*vm.Object); ok && vm.IsConstructor(ctor) {
		if length < 0 {
			return vm.Construct(a, ctor, nil, nil)
		}
		return vm.Construct(a, ctor, []vm.Value{vm.Number(length)}, nil)
	}
	return vm.ArrayCreate(a, uint64(max(length, 0)), nil)
}

// arraySpeciesCreate creates the result array of map, filter and friends.
func arraySpeciesCreate(a *vm.Agent, original *vm.Object, length int64) (*vm.Object, *vm.Completion) {
	if !vm.IsArray(original) {
		return vm.ArrayCreate(a, uint64(length), nil)
	}
	ctor, c := vm.Get(a, original, vm.String("constructor"))
	if c != nil {
		return nil, c
	}
	if co, ok := ctor.(*vm.Object); ok {
		if vm.IsConstructor(co) && vm.GetFunctionRealm(a, co) != a.CurrentRealm() && co == vm.GetFunctionRealm(a, co).Intrinsics.Array {
			ctor = vm.Undefined
		} else {
			species, c := vm.Get(a, co, vm.SymbolSpecies)
			if c != nil {
				return nil, c
			}
			if species == vm.Null {
				species = vm.Undefined
			}
			ctor = species
		}
	}
	if vm.IsUndefined(ctor) {
		return vm.ArrayCreate(a, uint64(length), nil)
	}
	co, ok := ctor.(*vm.Object)
	if !ok || !vm.IsConstructor(co) {
		return nil, a.ThrowTypeError("object.constructor[Symbol.species] is not a constructor")
	}
	return vm.Construct(a, co, []vm.Value{vm.Number(length)}, nil)
}

func arrayFrom(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	items, mapFn, thisArg := vm.Arg(args, 0), vm.Arg(args, 1), vm.Arg(args, 2)
	mapping := !vm.IsUndefined(mapFn)
	if mapping && !vm.IsCallable(mapFn) {
		return nil, a.ThrowTypeError(vm.Inspect(mapFn) + " is not a function")
	}
	mapValue := func(v vm.Value, k int64) (vm.Value, *vm.Completion) {
		if !mapping {
			return v, nil
		}
		return vm.Call(a, mapFn, thisArg, []vm.Value{v, vm.Number(k)})
	}

	usingIterator, c := vm.GetMethod(a, items, vm.SymbolIterator)
	if c != nil {
		return nil, c
	}
	if usingIterator != nil {
		o, c := constructThisOrArray(a, this, -1)
		if c != nil {
			return nil, c
		}
		rec, c := vm.GetIteratorFromMethod(a, items, usingIterator)
		if c != nil {
			return nil, c
		}
		for k := int64(0); ; k++ {
			v, done, c := vm.IteratorStepValue(a, rec)
			if c != nil {
				return nil, c
			}
			if done {
				return o, setLength(a, o, k)
			}
			mapped, c := mapValue(v, k)
			if c == nil {
				c = vm.CreateDataPropertyOrThrow(a, o, vm.IndexKey(k), mapped)
			}
			if c != nil {
				return nil, closeWith(a, rec, c)
			}
		}
	}

	src, length, c := arrayLike(a, items)
	if c != nil {
		return nil, c
	}
	o, c := constructThisOrArray(a, this, int(length))
	if c != nil {
		return nil, c
	}
	for k := int64(0); k < length; k++ {
		v, c := getIndex(a, src, k)
		if c != nil {
			return nil, c
		}
		if v, c = mapValue(v, k); c != nil {
			return nil, c
		}
		if c := vm.CreateDataPropertyOrThrow(a, o, vm.IndexKey(k), v); c != nil {
			return nil, c
		}
	}
	return o, setLength(a, o, length)
}

func arrayAt(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, length, c := arrayLike(a, this)
	if c != nil {
		return nil, c
	}
	rel, c := vm.ToIntegerOrInfinity(a, vm.Arg(args, 0))
	if c != nil {
		return nil, c
	}
	k := rel
	if rel < 0 {
		k = float64(length) + rel
	}
	if k < 0 || k >= float64(length) {
		return vm.Undefined, nil
	}
	return getIndex(a, o, int64(k))
}

func isConcatSpreadable(a *vm.Agent, v vm.Value) (bool, *vm.Completion) {
	o, ok := v.(*vm.Object)
	if !ok {
		return false, nil
	}
	spreadable, c := vm.Get(a, o, vm.SymbolIsConcatSpreadable)
	if c != nil {
		return false, c
	}
	if !vm.IsUndefined(spreadable) {
		return vm.ToBoolean(spreadable), nil
	}
	return vm.IsArray(o), nil
}

func arrayConcat(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, c := vm.ToObject(a, this)
	if c != nil {
		return nil, c
	}
	result, c := arraySpeciesCreate(a, o, 0)
	if c != nil {
		return nil, c
	}
	n := int64(0)
	for _, item := range append([]vm.Value{o}, args...) {
		spreadable, c := isConcatSpreadable(a, item)
		if c != nil {
			return nil, c
		}
		if !spreadable {
			if c := vm.CreateDataPropertyOrThrow(a, result, vm.IndexKey(n), item); c != nil {
				return nil, c
			}
			n++
			continue
		}
		e := item.(*vm.Object)
		length, c := vm.LengthOfArrayLike(a, e)
		if c != nil {
			return nil, c
		}
		for k := int64(0); k < length; k, n = k+1, n+1 {
			exists, c := hasIndex(a, e, k)
			if c != nil {
				return nil, c
			}
			if !exists {
				continue
			}
			v, c := getIndex(a, e, k)
			if c != nil {
				return nil, c
			}
			if c := vm.CreateDataPropertyOrThrow(a, result, vm.IndexKey(n), v); c != nil {
				return nil, c
			}
		}
	}
	return result, setLength(a, result, n)
}

// visitCallback calls fn(value, index, o) for each present element in
// order, stopping when visit returns stop.
func forEachPresent(a *vm.Agent, o *vm.Object, length int64, fn func(k int64, v vm.Value) (stop bool, c *vm.Completion)) *vm.Completion {
	for k := int64(0); k < length; k++ {
		exists, c := hasIndex(a, o, k)
		if c != nil {
			return c
		}
		if !exists {
			continue
		}
		v, c := getIndex(a, o, k)
		if c != nil {
			return c
		}
		stop, c := fn(k, v)
		if c != nil || stop {
			return c
		}
	}
	return nil
}

func callbackArgs(a *vm.Agent, args []vm.Value) (*vm.Object, vm.Value, *vm.Completion) {
	fn, c := callable(a, vm.Arg(args, 0), vm.Inspect(vm.Arg(args, 0)))
	return fn, vm.Arg(args, 1), c
}

// arrayPredicate implements every and some: stop decides, given the
// callback result, whether to return early and with what.
func arrayPredicate(stop func(hit bool) (bool, vm.Value), otherwise vm.Value) native {
	return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, length, c := arrayLike(a, this)
		if c != nil {
			return nil, c
		}
		fn, thisArg, c := callbackArgs(a, args)
		if c != nil {
			return nil, c
		}
		result := otherwise
		c = forEachPresent(a, o, length, func(k int64, v vm.Value) (bool, *vm.Completion) {
			hit, c := vm.Call(a, fn, thisArg, []vm.Value{v, vm.Number(k), o})
			if c != nil {
				return true, c
			}
			done, value := stop(vm.ToBoolean(hit))
			if done {
				result = value
			}
			return done, nil
		})
		return result, c
	}
}

func arrayFill(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, length, c := arrayLike(a, this)
	if c != nil {
		return nil, c
	}
	start, c := relativeArg(a, args, 1, length, 0)
	if c != nil {
		return nil, c
	}
	end, c := relativeArg(a, args, 2, length, length)
	if c != nil {
		return nil, c
	}
	for k := start; k < end; k++ {
		if c := vm.Set(a, o, vm.IndexKey(k), vm.Arg(args, 0), true); c != nil {
			return nil, c
		}
	}
	return o, nil
}

func arrayFilter(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, length, c := arrayLike(a, this)
	if c != nil {
		return nil, c
	}
	fn, thisArg, c := callbackArgs(a, args)
	if c != nil {
		return nil, c
	}
	result, c := arraySpeciesCreate(a, o, 0)
	if c != nil {
		return nil, c
	}
	to := int64(0)
	c = forEachPresent(a, o, length, func(k int64, v vm.Value) (bool, *vm.Completion) {
		keep, c := vm.Call(a, fn, thisArg, []vm.Value{v, vm.Number(k), o})
		if c != nil {
			return true, c
		}
		if vm.ToBoolean(keep) {
			if c := vm.CreateDataPropertyOrThrow(a, result, vm.IndexKey(to), v); c != nil {
				return true, c
			}
			to++
		}
		return false, nil
	})
	if c != nil {
		return nil, c
	}
	return result, nil
}

func arrayFind(fromEnd, wantIndex bool) native {
	return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, length, c := arrayLike(a, this)
		if c != nil {
			return nil, c
		}
		fn, thisArg, c := callbackArgs(a, args)
		if c != nil {
			return nil, c
		}
		for i := int64(0); i < length; i++ {
			k := i
			if fromEnd {
				k = length - 1 - i
			}
			v, c := getIndex(a, o, k)
			if c != nil {
				return nil, c
			}
			hit, c := vm.Call(a, fn, thisArg, []vm.Value{v, vm.Number(k), o})
			if c != nil {
				return nil, c
			}
			if vm.ToBoolean(hit) {
				if wantIndex {
					return vm.Number(k), nil
				}
				return v, nil
			}
		}
		if wantIndex {
			return vm.Number(-1), nil
		}
		return vm.Undefined, nil
	}
}

// flattenInto appends the elements of source to target starting at
// index, descending depth levels into nested arrays.
func flattenInto(a *vm.Agent, target, source *vm.Object, sourceLen, start int64, depth float64, mapper *vm.Object, thisArg vm.Value) (int64, *vm.Completion) {
	index := start
	c := forEachPresent(a, source, sourceLen, func(k int64, v vm.Value) (bool, *vm.Completion) {
		if mapper != nil {
			var c *vm.Completion
			if v, c = vm.Call(a, mapper, thisArg, []vm.Value{v, vm.Number(k), source}); c != nil {
				return true, c
			}
		}
		if depth > 0 && vm.IsArray(v) {
			inner := v.(*vm.Object)
			innerLen, c := vm.LengthOfArrayLike(a, inner)
			if c != nil {
				return true, c
			}
			if index, c = flattenInto(a, target, inner, innerLen, index, depth-1, nil, nil); c != nil {
				return true, c
			}
			return false, nil
		}
		if c := vm.CreateDataPropertyOrThrow(a, target, vm.IndexKey(index), v); c != nil {
			return true, c
		}
		index++
		return false, nil
	})
	return index, c
}

func arrayFlat(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, length, c := arrayLike(a, this)
	if c != nil {
		return nil, c
	}
	depth := 1.0
	if d := vm.Arg(args, 0); !vm.IsUndefined(d) {
		if depth, c = vm.ToIntegerOrInfinity(a, d); c != nil {
			return nil, c
		}
		depth = max(depth, 0)
	}
	result, c := arraySpeciesCreate(a, o, 0)
	if c != nil {
		return nil, c
	}
	if _, c := flattenInto(a, result, o, length, 0, depth, nil, nil); c != nil {
		return nil, c
	}
	return result, nil
}

func arrayFlatMap(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, length, c := arrayLike(a, this)
	if c != nil {
		return nil, c
	}
	fn, thisArg, c := callbackArgs(a, args)
	if c != nil {
		return nil, c
	}
	result, c := arraySpeciesCreate(a, o, 0)
	if c != nil {
		return nil, c
	}
	if _, c := flattenInto(a, result, o, length, 0, 1, fn, thisArg); c != nil {
		return nil, c
	}
	return result, nil
}

func arrayForEach(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, length, c := arrayLike(a, this)
	if c != nil {
		return nil, c
	}
	fn, thisArg, c := callbackArgs(a, args)
	if c != nil {
		return nil, c
	}
	c = forEachPresent(a, o, length, func(k int64, v vm.Value) (bool, *vm.Completion) {
		_, c := vm.Call(a, fn, thisArg, []vm.Value{v, vm.Number(k), o})
		return false, c
	})
	return vm.Undefined, c
}

func searchStart(a *vm.Agent, args []vm.Value, length int64) (int64, *vm.Completion) {
	n, c := vm.ToIntegerOrInfinity(a, vm.Arg(args, 1))
	if c != nil {
		return 0, c
	}
	if math.IsInf(n, 1) {
		return length, nil
	}
	return vm.RelativeIndex(n, length), nil
}

func arrayIncludes(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, length, c := arrayLike(a, this)
	if c != nil || length == 0 {
		return vm.False, c
	}
	k, c := searchStart(a, args, length)
	if c != nil {
		return nil, c
	}
	for ; k < length; k++ {
		v, c := getIndex(a, o, k)
		if c != nil {
			return nil, c
		}
		if vm.SameValueZero(v, vm.Arg(args, 0)) {
			return vm.True, nil
		}
	}
	return vm.False, nil
}

func arrayIndexOf(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, length, c := arrayLike(a, this)
	if c != nil || length == 0 {
		return vm.Number(-1), c
	}
	k, c := searchStart(a, args, length)
	if c != nil {
		return nil, c
	}
	for ; k < length; k++ {
		exists, c := hasIndex(a, o, k)
		if c != nil {
			return nil, c
		}
		if !exists {
			continue
		}
		v, c := getIndex(a, o, k)
		if c != nil {
			return nil, c
		}
		if vm.IsStrictlyEqual(v, vm.Arg(args, 0)) {
			return vm.Number(k), nil
		}
	}
	return vm.Number(-1), nil
}

func arrayLastIndexOf(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, length, c := arrayLike(a, this)
	if c != nil || length == 0 {
		return vm.Number(-1), c
	}
	k := length - 1
	if len(args) > 1 {
		n, c := vm.ToIntegerOrInfinity(a, args[1])
		if c != nil {
			return nil, c
		}
		switch {
		case math.IsInf(n, -1):
			return vm.Number(-1), nil
		case n >= 0:
			k = min(int64(min(n, float64(length-1))), length-1)
		default:
			k = length + int64(n)
		}
	}
	for ; k >= 0; k-- {
		exists, c := hasIndex(a, o, k)
		if c != nil {
			return nil, c
		}
		if !exists {
			continue
		}
		v, c := getIndex(a, o, k)
		if c != nil {
			return nil, c
		}
		if vm.IsStrictlyEqual(v, vm.Arg(args, 0)) {
			return vm.Number(k), nil
		}
	}
	return vm.Number(-1), nil
}

func arrayJoin(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, length, c := arrayLike(a, this)
	if c != nil {
		return nil, c
	}
	sep := vm.String(",")
	if s := vm.Arg(args, 0); !vm.IsUndefined(s) {
		if sep, c = vm.ToString(a, s); c != nil {
			return nil, c
		}
	}
	var result vm.String
	for k := int64(0); k < length; k++ {
		if k > 0 {
			result = result.Concat(sep)
		}
		v, c := getIndex(a, o, k)
		if c != nil {
			return nil, c
		}
		if vm.IsNullish(v) {
			continue
		}
		s, c := vm.ToString(a, v)
		if c != nil {
			return nil, c
		}
		result = result.Concat(s)
	}
	return result, nil
}

func arrayMap(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, length, c := arrayLike(a, this)
	if c != nil {
		return nil, c
	}
	fn, thisArg, c := callbackArgs(a, args)
	if c != nil {
		return nil, c
	}
	result, c := arraySpeciesCreate(a, o, length)
	if c != nil {
		return nil, c
	}
	c = forEachPresent(a, o, length, func(k int64, v vm.Value) (bool, *vm.Completion) {
		mapped, c := vm.Call(a, fn, thisArg, []vm.Value{v, vm.Number(k), o})
		if c != nil {
			return true, c
		}
		return false, vm.CreateDataPropertyOrThrow(a, result, vm.IndexKey(k), mapped)
	})
	if c != nil {
		return nil, c
	}
	return result, nil
}

func arrayPop(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, length, c := arrayLike(a, this)
	if c != nil {
		return nil, c
	}
	if length == 0 {
		return vm.Undefined, setLength(a, o, 0)
	}
	v, c := getIndex(a, o, length-1)
	if c != nil {
		return nil, c
	}
	if c := vm.DeletePropertyOrThrow(a, o, vm.IndexKey(length-1)); c != nil {
		return nil, c
	}
	return v, setLength(a, o, length-1)
}

func arrayPush(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, length, c := arrayLike(a, this)
	if c != nil {
		return nil, c
	}
	if length+int64(len(args)) > 1<<53-1 {
		return nil, a.ThrowTypeError("Pushing " + vm.NumberToString(vm.Number(len(args))).String() + " elements on an array-like of length " + vm.NumberToString(vm.Number(length)).String() + " is disallowed")
	}
	for _, v := range args {
		if c := vm.Set(a, o, vm.IndexKey(length), v, true); c != nil {
			return nil, c
		}
		length++
	}
	return vm.Number(length), setLength(a, o, length)
}

func arrayReduce(fromEnd bool) native {
	return func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		o, length, c := arrayLike(a, this)
		if c != nil {
			return nil, c
		}
		fn, c := callable(a, vm.Arg(args, 0), vm.Inspect(vm.Arg(args, 0)))
		if c != nil {
			return nil, c
		}
		index := func(i int64) int64 {
			if fromEnd {
				return length - 1 - i
			}
			return i
		}
		i := int64(0)
		var acc vm.Value
		if len(args) > 1 {
			acc = args[1]
		} else {
			for ; i < length && acc == nil; i++ {
				exists, c := hasIndex(a, o, index(i))
				if c != nil {
					return nil, c
				}
				if exists {
					if acc, c = getIndex(a, o, index(i)); c != nil {
						return nil, c
					}
				}
			}
			if acc == nil {
				return nil, a.ThrowTypeError("Reduce of empty array with no initial value")
			}
		}
		for ; i < length; i++ {
			k := index(i)
			exists, c := hasIndex(a, o, k)
			if c != nil {
				return nil, c
			}
			if !exists {
				continue
			}
			v, c := getIndex(a, o, k)
			if c != nil {
				return nil, c
			}
			if acc, c = vm.Call(a, fn, vm.Undefined, []vm.Value{acc, v, vm.Number(k), o}); c != nil {
				return nil, c
			}
		}
		return acc, nil
	}
}

func arrayReverse(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, length, c := arrayLike(a, this)
	if c != nil {
		return nil, c
	}
	for lower := int64(0); lower < length/2; lower++ {
		upper := length - 1 - lower
		lk, uk := vm.IndexKey(lower), vm.IndexKey(upper)
		lowerExists, c := vm.HasProperty(a, o, lk)
		if c != nil {
			return nil, c
		}
		var lowerValue, upperValue vm.Value
		if lowerExists {
			if lowerValue, c = vm.Get(a, o, lk); c != nil {
				return nil, c
			}
		}
		upperExists, c := vm.HasProperty(a, o, uk)
		if c != nil {
			return nil, c
		}
		if upperExists {
			if upperValue, c = vm.Get(a, o, uk); c != nil {
				return nil, c
			}
		}
		for _, step := range []struct {
			exists bool
			key    vm.PropertyKey
			value  vm.Value
		}{{upperExists, lk, upperValue}, {lowerExists, uk, lowerValue}} {
			if step.exists {
				c = vm.Set(a, o, step.key, step.value, true)
			} else {
				c = vm.DeletePropertyOrThrow(a, o, step.key)
			}
			if c != nil {
				return nil, c
			}
		}
	}
	return o, nil
}

// moveElement copies index from to index to, deleting the target when the
// source is a hole.
func moveElement(a *vm.Agent, o *vm.Object, from, to int64) *vm.Completion {
	exists, c := hasIndex(a, o, from)
	if c != nil {
		return c
	}
	if !exists {
		return vm.DeletePropertyOrThrow(a, o, vm.IndexKey(to))
	}
	v, c := getIndex(a, o, from)
	if c != nil {
		return c
	}
	return vm.Set(a, o, vm.IndexKey(to), v, true)
}

func arrayShift(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, length, c := arrayLike(a, this)
	if c != nil {
		return nil, c
	}
	if length == 0 {
		return vm.Undefined, setLength(a, o, 0)
	}
	first, c := getIndex(a, o, 0)
	if c != nil {
		return nil, c
	}
	for k := int64(1); k < length; k++ {
		if c := moveElement(a, o, k, k-1); c != nil {
			return nil, c
		}
	}
	if c := vm.DeletePropertyOrThrow(a, o, vm.IndexKey(length-1)); c != nil {
		return nil, c
	}
	return first, setLength(a, o, length-1)
}

func arrayUnshift(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, length, c := arrayLike(a, this)
	if c != nil {
		return nil, c
	}
	n := int64(len(args))
	if n > 0 {
		for k := length; k > 0; k-- {
			if c := moveElement(a, o, k-1, k+n-1); c != nil {
				return nil, c
			}
		}
		for j, v := range args {
			if c := vm.Set(a, o, vm.IndexKey(int64(j)), v, true); c != nil {
				return nil, c
			}
		}
	}
	return vm.Number(length + n), setLength(a, o, length+n)
}

func arraySlice(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, length, c := arrayLike(a, this)
	if c != nil {
		return nil, c
	}
	start, c := relativeArg(a, args, 0, length, 0)
	if c != nil {
		return nil, c
	}
	end, c := relativeArg(a, args, 1, length, length)
	if c != nil {
		return nil, c
	}
	count := max(end-start, 0)
	result, c := arraySpeciesCreate(a, o, count)
	if c != nil {
		return nil, c
	}
	n := int64(0)
	for k := start; k < end; k, n = k+1, n+1 {
		exists, c := hasIndex(a, o, k)
		if c != nil {
			return nil, c
		}
		if !exists {
			continue
		}
		v, c := getIndex(a, o, k)
		if c != nil {
			return nil, c
		}
		if c := vm.CreateDataPropertyOrThrow(a, result, vm.IndexKey(n), v); c != nil {
			return nil, c
		}
	}
	return result, setLength(a, result, n)
}

func arraySplice(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, length, c := arrayLike(a, this)
	if c != nil {
		return nil, c
	}
	start, c := relativeArg(a, args, 0, length, 0)
	if c != nil {
		return nil, c
	}
	var items []vm.Value
	deleteCount := int64(0)
	switch len(args) {
	case 0:
	case 1:
		deleteCount = length - start
	default:
		dc, c := vm.ToIntegerOrInfinity(a, args[1])
		if c != nil {
			return nil, c
		}
		deleteCount = clampInt(dc, 0, length-start)
		items = args[2:]
	}
	removed, c := arraySpeciesCreate(a, o, deleteCount)
	if c != nil {
		return nil, c
	}
	for k := int64(0); k < deleteCount; k++ {
		exists, c := hasIndex(a, o, start+k)
		if c != nil {
			return nil, c
		}
		if !exists {
			continue
		}
		v, c := getIndex(a, o, start+k)
		if c != nil {
			return nil, c
		}
		if c := vm.CreateDataPropertyOrThrow(a, removed, vm.IndexKey(k), v); c != nil {
			return nil, c
		}
	}
	if c := setLength(a, removed, deleteCount); c != nil {
		return nil, c
	}

	itemCount := int64(len(items))
	switch {
	case itemCount < deleteCount:
		for k := start; k < length-deleteCount; k++ {
			if c := moveElement(a, o, k+deleteCount, k+itemCount); c != nil {
				return nil, c
			}
		}
		for k := length; k > length-deleteCount+itemCount; k-- {
			if c := vm.DeletePropertyOrThrow(a, o, vm.IndexKey(k-1)); c != nil {
				return nil, c
			}
		}
	case itemCount > deleteCount:
		for k := length - deleteCount; k > start; k-- {
			if c := moveElement(a, o, k+deleteCount-1, k+itemCount-1); c != nil {
				return nil, c
			}
		}
	}
	for i, v := range items {
		if c := vm.Set(a, o, vm.IndexKey(start+int64(i)), v, true); c != nil {
			return nil, c
		}
	}
	return removed, setLength(a, o, length-deleteCount+itemCount)
}

// sortValues sorts values with the comparator, stably. Undefined sorts
// last and is never passed to the comparator.
func sortValues(a *vm.Agent, values []vm.Value, comparefn vm.Value) ([]vm.Value, *vm.Completion) {
	var defined []vm.Value
	undefined := 0
	for _, v := range values {
		if vm.IsUndefined(v) {
			undefined++
		} else {
			defined = append(defined, v)
		}
	}
	less := func(x, y vm.Value) (bool, *vm.Completion) {
		if !vm.IsUndefined(comparefn) {
			v, c := vm.Call(a, comparefn, vm.Undefined, []vm.Value{x, y})
			if c != nil {
				return false, c
			}
			n, c := vm.ToNumber(a, v)
			return n < 0, c
		}
		xs, c := vm.ToString(a, x)
		if c != nil {
			return false, c
		}
		ys, c := vm.ToString(a, y)
		if c != nil {
			return false, c
		}
		return xs.Compare(ys) < 0, nil
	}
	sorted, c := mergeSort(defined, less)
	if c != nil {
		return nil, c
	}
	for range undefined {
		sorted = append(sorted, vm.Undefined)
	}
	return sorted, nil
}

func mergeSort(values []vm.Value, less func(x, y vm.Value) (bool, *vm.Completion)) ([]vm.Value, *vm.Completion) {
	if len(values) < 2 {
		return values, nil
	}
	mid := len(values) / 2
	left, c := mergeSort(values[:mid], less)
	if c != nil {
		return nil, c
	}
	right, c := mergeSort(values[mid:], less)
	if c != nil {
		return nil, c
	}
	out := make([]vm.Value, 0, len(values))
	for len(left) > 0 && len(right) > 0 {
		rightFirst, c := less(right[0], left[0])
		if c != nil {
			return nil, c
		}
		if rightFirst {
			out = append(out, right[0])
			right = right[1:]
		} else {
			out = append(out, left[0])
			left = left[1:]
		}
	}
	out = append(out, left...)
	return append(out, right...), nil
}

func sortComparator(a *vm.Agent, args []vm.Value) (vm.Value, *vm.Completion) {
	comparefn := vm.Arg(args, 0)
	if !vm.IsUndefined(comparefn) && !vm.IsCallable(comparefn) {
		return nil, a.ThrowTypeError("The comparison function must be either a function or undefined")
	}
	return comparefn, nil
}

func arraySort(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	comparefn, c := sortComparator(a, args)
	if c != nil {
		return nil, c
	}
	o, length, c := arrayLike(a, this)
	if c != nil {
		return nil, c
	}
	var values []vm.Value
	c = forEachPresent(a, o, length, func(k int64, v vm.Value) (bool, *vm.Completion) {
		values = append(values, v)
		return false, nil
	})
	if c != nil {
		return nil, c
	}
	sorted, c := sortValues(a, values, comparefn)
	if c != nil {
		return nil, c
	}
	for i, v := range sorted {
		if c := vm.Set(a, o, vm.IndexKey(int64(i)), v, true); c != nil {
			return nil, c
		}
	}
	for k := int64(len(sorted)); k < length; k++ {
		if c := vm.DeletePropertyOrThrow(a, o, vm.IndexKey(k)); c != nil {
			return nil, c
		}
	}
	return o, nil
}

// elements reads indices [0, length) including holes as undefined.
func elements(a *vm.Agent, o *vm.Object, length int64) ([]vm.Value, *vm.Completion) {
	values := make([]vm.Value, 0, length)
	for k := int64(0); k < length; k++ {
		v, c := getIndex(a, o, k)
		if c != nil {
			return nil, c
		}
		values = append(values, v)
	}
	return values, nil
}

func arrayToReversed(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, length, c := arrayLike(a, this)
	if c != nil {
		return nil, c
	}
	values, c := elements(a, o, length)
	if c != nil {
		return nil, c
	}
	for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
		values[i], values[j] = values[j], values[i]
	}
	return vm.CreateArrayFromList(a, values), nil
}

func arrayToSorted(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	comparefn, c := sortComparator(a, args)
	if c != nil {
		return nil, c
	}
	o, length, c := arrayLike(a, this)
	if c != nil {
		return nil, c
	}
	values, c := elements(a, o, length)
	if c != nil {
		return nil, c
	}
	sorted, c := sortValues(a, values, comparefn)
	if c != nil {
		return nil, c
	}
	return vm.CreateArrayFromList(a, sorted), nil
}

func arrayWith(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
	o, length, c := arrayLike(a, this)
	if c != nil {
		return nil, c
	}
	rel, c := vm.ToIntegerOrInfinity(a, vm.Arg(args, 0))
	if c != nil {
		return nil, c
	}
	index := rel
	if rel < 0 {
		index = float64(length) + rel
	}
	if index < 0 || index >= float64(length) {
		return nil, a.ThrowRangeError("Invalid index : " + strings.TrimSuffix(vm.NumberToString(vm.Number(rel)).String(), ".0"))
	}
	values, c := elements(a, o, length)
	if c != nil {
		return nil, c
	}
	values[int64(index)] = vm.Arg(args, 1)
	return vm.CreateArrayFromList(a, values), nil
}

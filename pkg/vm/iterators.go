package vm

import (
	"fmt"
)

// IteratorKind selects sync or async iteration in GetIterator.
type IteratorKind uint8

const (
	IteratorSync IteratorKind = iota
	IteratorAsync
)

// IteratorRecord is an iterator with its cached next method. Done is set
// once the iterator is exhausted or one of its methods threw, after which
// it must not be closed.
type IteratorRecord struct {
	Iterator   *Object
	NextMethod Value
	Done       bool
}

func (r *IteratorRecord) Mark(visit Visitor) {
	visit(r.Iterator)
	visitValue(visit, r.NextMethod)
}

// GetIteratorFromMethod calls method on obj and wraps the iterator.
func GetIteratorFromMethod(a *Agent, obj Value, method Value) (*IteratorRecord, *Completion) {
	it, c := Call(a, method, obj, nil)
	if c != nil {
		return nil, c
	}
	o, ok := it.(*Object)
	if !ok {
		return nil, a.ThrowTypeError("Result of the Symbol.iterator method is not an object")
	}
	next, c := Get(a, o, String("next"))
	if c != nil {
		return nil, c
	}
	return &IteratorRecord{Iterator: o, NextMethod: next}, nil
}

// GetIterator obtains an iterator from obj. Async iteration falls back to
// wrapping a sync iterator.
func GetIterator(a *Agent, obj Value, kind IteratorKind) (*IteratorRecord, *Completion) {
	if kind == IteratorAsync {
		method, c := GetMethod(a, obj, SymbolAsyncIterator)
		if c != nil {
			return nil, c
		}
		if method == nil {
			syncMethod, c := GetMethod(a, obj, SymbolIterator)
			if c != nil {
				return nil, c
			}
			if syncMethod == nil {
				return nil, a.ThrowTypeError(fmt.Sprintf("%s is not async iterable", Inspect(obj)))
			}
			syncRec, c := GetIteratorFromMethod(a, obj, syncMethod)
			if c != nil {
				return nil, c
			}
			return a.CreateAsyncFromSyncIterator(syncRec), nil
		}
		return GetIteratorFromMethod(a, obj, method)
	}
	method, c := GetMethod(a, obj, SymbolIterator)
	if c != nil {
		return nil, c
	}
	if method == nil {
		return nil, a.ThrowTypeError(fmt.Sprintf("%s is not iterable", Inspect(obj)))
	}
	return GetIteratorFromMethod(a, obj, method)
}

// IteratorNext calls next, passing v unless it is nil.
func IteratorNext(a *Agent, rec *IteratorRecord, v Value) (*Object, *Completion) {
	var args []Value
	if v != nil {
		args = []Value{v}
	}
	result, c := Call(a, rec.NextMethod, rec.Iterator, args)
	if c != nil {
		rec.Done = true
		return nil, c
	}
	o, ok := result.(*Object)
	if !ok {
		rec.Done = true
		return nil, a.ThrowTypeError(fmt.Sprintf("Iterator result %s is not an object", Inspect(result)))
	}
	return o, nil
}

// IteratorComplete reads the done flag of an iterator result.
func IteratorComplete(a *Agent, result *Object) (bool, *Completion) {
	done, c := Get(a, result, String("done"))
	if c != nil {
		return false, c
	}
	return ToBoolean(done), nil
}

// IteratorValue reads the value of an iterator result.
func IteratorValue(a *Agent, result *Object) (Value, *Completion) {
	return Get(a, result, String("value"))
}

// IteratorStepValue advances rec and returns the next value, or done.
func IteratorStepValue(a *Agent, rec *IteratorRecord) (Value, bool, *Completion) {
	result, c := IteratorNext(a, rec, nil)
	if c != nil {
		return nil, false, c
	}
	done, c := IteratorComplete(a, result)
	if c != nil {
		rec.Done = true
		return nil, false, c
	}
	if done {
		rec.Done = true
		return nil, true, nil
	}
	v, c := IteratorValue(a, result)
	if c != nil {
		rec.Done = true
	}
	return v, false, c
}

// IteratorClose calls the iterator's return method on early exit. A throw
// completion wins over anything return does.
func IteratorClose(a *Agent, rec *IteratorRecord, completion Completion) Completion {
	ret, c := GetMethod(a, rec.Iterator, String("return"))
	if c == nil && ret != nil {
		var result Value
		result, c = Call(a, ret, rec.Iterator, nil)
		if c == nil {
			if _, ok := result.(*Object); !ok && completion.Type != Throw {
				return *a.ThrowTypeError(fmt.Sprintf("Iterator result %s is not an object", Inspect(result)))
			}
		}
	}
	if completion.Type == Throw {
		return completion
	}
	if c != nil {
		return *c
	}
	return completion
}

// AsyncIteratorClose is IteratorClose for async iterators: the result of
// return is awaited.
func (a *Agent) AsyncIteratorClose(rec *IteratorRecord, completion Completion) Completion {
	ret, c := GetMethod(a, rec.Iterator, String("return"))
	if c == nil && ret != nil {
		var result Value
		result, c = Call(a, ret, rec.Iterator, nil)
		if c == nil {
			result, c = a.Await(result)
		}
		if c == nil {
			if _, ok := result.(*Object); !ok && completion.Type != Throw {
				return *a.ThrowTypeError(fmt.Sprintf("Iterator result %s is not an object", Inspect(result)))
			}
		}
	}
	if completion.Type == Throw {
		return completion
	}
	if c != nil {
		return *c
	}
	return completion
}

// IterableToList drains the iterator of v into a slice.
func IterableToList(a *Agent, v Value) ([]Value, *Completion) {
	rec, c := GetIterator(a, v, IteratorSync)
	if c != nil {
		return nil, c
	}
	var values []Value
	for {
		next, done, c := IteratorStepValue(a, rec)
		if c != nil {
			return nil, c
		}
		if done {
			return values, nil
		}
		values = append(values, next)
	}
}

// CreateIterResultObject creates a {value, done} object.
func CreateIterResultObject(a *Agent, v Value, done bool) *Object {
	o := OrdinaryObjectCreate(a.CurrentRealm().Intrinsics.ObjectPrototype)
	o.Put(String("value"), v, AttrAll)
	o.Put(String("done"), Boolean(done), AttrAll)
	return o
}

// --- array iterators ---

type arrayIterator struct {
	target *Object // nil once exhausted
	index  int64
	kind   EnumerableKind
}

func (it *arrayIterator) Mark(visit Visitor) {
	if it.target != nil {
		visit(it.target)
	}
}

// CreateArrayIterator iterates the keys, values or entries of an
// array-like object.
func (a *Agent) CreateArrayIterator(target *Object, kind EnumerableKind) *Object {
	it := OrdinaryObjectCreate(a.CurrentRealm().Intrinsics.ArrayIteratorPrototype)
	it.Class = "Array Iterator"
	it.Internal = &arrayIterator{target: target, kind: kind}
	return it
}

func arrayIteratorNext(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
	o, ok := this.(*Object)
	var it *arrayIterator
	if ok {
		it, ok = o.Internal.(*arrayIterator)
	}
	if !ok {
		return nil, a.ThrowTypeError("next method called on incompatible receiver " + Inspect(this))
	}
	if it.target == nil {
		return CreateIterResultObject(a, Undefined, true), nil
	}
	length, c := LengthOfArrayLike(a, it.target)
	if c != nil {
		return nil, c
	}
	if it.index >= length {
		it.target = nil
		return CreateIterResultObject(a, Undefined, true), nil
	}
	index := it.index
	it.index++
	key := String(formatInt(index))
	if it.kind == EnumerateKeys {
		return CreateIterResultObject(a, Number(index), false), nil
	}
	v, c := Get(a, it.target, key)
	if c != nil {
		return nil, c
	}
	if it.kind == EnumerateValues {
		return CreateIterResultObject(a, v, false), nil
	}
	return CreateIterResultObject(a, CreateArrayFromList(a, []Value{Number(index), v}), false), nil
}

func arrayIterationMethod(kind EnumerableKind) NativeFunction {
	return func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		o, c := ToObject(a, this)
		if c != nil {
			return nil, c
		}
		return a.CreateArrayIterator(o, kind), nil
	}
}

func returnThis(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
	return this, nil
}

// initIterators creates %IteratorPrototype%, %AsyncIteratorPrototype%,
// the array iterator and the async-from-sync iterator prototypes, and the
// iteration methods of %Array.prototype%.
func (r *Realm) initIterators() {
	i := &r.Intrinsics
	i.IteratorPrototype = OrdinaryObjectCreate(i.ObjectPrototype)
	DefineSymbolMethod(r, i.IteratorPrototype, SymbolIterator, 0, returnThis)

	i.AsyncIteratorPrototype = OrdinaryObjectCreate(i.ObjectPrototype)
	DefineSymbolMethod(r, i.AsyncIteratorPrototype, SymbolAsyncIterator, 0, returnThis)

	i.ArrayIteratorPrototype = OrdinaryObjectCreate(i.IteratorPrototype)
	DefineMethod(r, i.ArrayIteratorPrototype, "next", 0, arrayIteratorNext)
	i.ArrayIteratorPrototype.Put(SymbolToStringTag, String("Array Iterator"), AttrConfigurable)

	values := DefineMethod(r, i.ArrayPrototype, "values", 0, arrayIterationMethod(EnumerateValues))
	DefineMethod(r, i.ArrayPrototype, "keys", 0, arrayIterationMethod(EnumerateKeys))
	DefineMethod(r, i.ArrayPrototype, "entries", 0, arrayIterationMethod(EnumerateEntries))
	i.ArrayPrototype.Put(SymbolIterator, values, AttrDefault)

	i.AsyncFromSyncIteratorPrototype = OrdinaryObjectCreate(i.AsyncIteratorPrototype)
	DefineMethod(r, i.AsyncFromSyncIteratorPrototype, "next", 1, asyncFromSyncNext)
	DefineMethod(r, i.AsyncFromSyncIteratorPrototype, "return", 1, asyncFromSyncReturn)
	DefineMethod(r, i.AsyncFromSyncIteratorPrototype, "throw", 1, asyncFromSyncThrow)
}

// --- async-from-sync iterators ---

type asyncFromSyncIterator struct {
	rec *IteratorRecord
}

func (it *asyncFromSyncIterator) Mark(visit Visitor) {
	it.rec.Mark(visit)
}

// CreateAsyncFromSyncIterator adapts a sync iterator for for-await and
// yield* in async generators. Values are awaited before being handed out.
func (a *Agent) CreateAsyncFromSyncIterator(syncRec *IteratorRecord) *IteratorRecord {
	o := OrdinaryObjectCreate(a.CurrentRealm().Intrinsics.AsyncFromSyncIteratorPrototype)
	o.Class = "Async-from-Sync Iterator"
	o.Internal = &asyncFromSyncIterator{rec: syncRec}
	next := Must(Get(a, o, String("next")))
	return &IteratorRecord{Iterator: o, NextMethod: next}
}

func asyncFromSyncReceiver(this Value) *asyncFromSyncIterator {
	o := this.(*Object)
	return o.Internal.(*asyncFromSyncIterator)
}

func asyncFromSyncNext(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
	it := asyncFromSyncReceiver(this)
	capability := Must(NewPromiseCapability(a, a.CurrentRealm().Intrinsics.Promise))
	var v Value
	if len(args) > 0 {
		v = args[0]
	}
	result, c := IteratorNext(a, it.rec, v)
	if c != nil {
		return capability.rejectAbrupt(a, c)
	}
	return a.asyncFromSyncIteratorContinuation(result, capability, it.rec, true)
}

func asyncFromSyncReturn(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
	it := asyncFromSyncReceiver(this)
	capability := Must(NewPromiseCapability(a, a.CurrentRealm().Intrinsics.Promise))
	ret, c := GetMethod(a, it.rec.Iterator, String("return"))
	if c != nil {
		return capability.rejectAbrupt(a, c)
	}
	if ret == nil {
		if c := capability.Resolve(a, CreateIterResultObject(a, Arg(args, 0), true)); c != nil {
			return nil, c
		}
		return capability.Promise, nil
	}
	var callArgs []Value
	if len(args) > 0 {
		callArgs = args[:1]
	}
	result, c := Call(a, ret, it.rec.Iterator, callArgs)
	if c != nil {
		return capability.rejectAbrupt(a, c)
	}
	ro, ok := result.(*Object)
	if !ok {
		return capability.rejectAbrupt(a, a.ThrowTypeError("iterator.return() did not return an object"))
	}
	return a.asyncFromSyncIteratorContinuation(ro, capability, it.rec, false)
}

func asyncFromSyncThrow(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
	it := asyncFromSyncReceiver(this)
	capability := Must(NewPromiseCapability(a, a.CurrentRealm().Intrinsics.Promise))
	throw, c := GetMethod(a, it.rec.Iterator, String("throw"))
	if c != nil {
		return capability.rejectAbrupt(a, c)
	}
	if throw == nil {
		it.rec.Done = true
		closed := IteratorClose(a, it.rec, NormalCompletion(nil))
		if closed.Type == Throw {
			return capability.rejectAbrupt(a, &closed)
		}
		return capability.rejectAbrupt(a, a.ThrowTypeError("The iterator does not provide a 'throw' method"))
	}
	result, c := Call(a, throw, it.rec.Iterator, []Value{Arg(args, 0)})
	if c != nil {
		return capability.rejectAbrupt(a, c)
	}
	ro, ok := result.(*Object)
	if !ok {
		return capability.rejectAbrupt(a, a.ThrowTypeError("iterator.throw() did not return an object"))
	}
	return a.asyncFromSyncIteratorContinuation(ro, capability, it.rec, true)
}

// asyncFromSyncIteratorContinuation resolves capability with the awaited
// value of a sync iterator result. A rejected value closes the sync
// iterator when closeOnRejection is set and the iterator is not done.
func (a *Agent) asyncFromSyncIteratorContinuation(result *Object, capability *PromiseCapability, syncRec *IteratorRecord, closeOnRejection bool) (Value, *Completion) {
	done, c := IteratorComplete(a, result)
	if c != nil {
		return capability.rejectAbrupt(a, c)
	}
	value, c := IteratorValue(a, result)
	if c != nil {
		return capability.rejectAbrupt(a, c)
	}
	realm := a.CurrentRealm()
	wrapper, c := PromiseResolve(a, realm.Intrinsics.Promise, value)
	if c != nil {
		if !done && closeOnRejection {
			closed := IteratorClose(a, syncRec, *c)
			c = &closed
		}
		return capability.rejectAbrupt(a, c)
	}
	onFulfilled := NewNativeFunction(realm, "", 1, func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		return CreateIterResultObject(a, Arg(args, 0), done), nil
	})
	var onRejected Value = Undefined
	if !done && closeOnRejection {
		onRejected = NewNativeFunction(realm, "", 1, func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
			closed := IteratorClose(a, syncRec, *ThrowCompletion(Arg(args, 0)))
			return nil, &closed
		}, syncRec)
	}
	PerformPromiseThen(a, wrapper, onFulfilled, onRejected, capability)
	return capability.Promise, nil
}

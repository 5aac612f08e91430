package vm

// CreateUnmappedArgumentsObject creates the arguments object of a call.
// Parameters are never mapped: assigning to a parameter does not change
// arguments and vice versa, in sloppy code too.
func (a *Agent) CreateUnmappedArgumentsObject(args []Value) *Object {
	intr := &a.CurrentRealm().Intrinsics
	o := OrdinaryObjectCreate(intr.ObjectPrototype)
	o.Class = "Arguments"
	o.Put(lengthKey, Number(len(args)), AttrDefault)
	for i, v := range args {
		o.Put(indexKey(i), v, AttrAll)
	}
	if values, ok := intr.ArrayPrototype.OwnValue(String("values")); ok {
		o.Put(SymbolIterator, values, AttrDefault)
	}
	o.PutAccessor(String("callee"), intr.ThrowTypeError, intr.ThrowTypeError, AttrNone)
	return o
}

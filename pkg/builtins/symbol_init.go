package builtins

import (
	"siskin/pkg/vm"
)

type SymbolInitializer struct{}

func (s *SymbolInitializer) Name() string {
	return "Symbol"
}

func (s *SymbolInitializer) Priority() int {
	return PrioritySymbol
}

func (s *SymbolInitializer) InitRealm(r *vm.Realm) error {
	proto := r.Intrinsics.SymbolPrototype
	ctor := vm.DefineConstructor(r, "Symbol", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		if newTarget != nil {
			return nil, a.ThrowTypeError("Symbol is not a constructor")
		}
		desc := vm.Arg(args, 0)
		if vm.IsUndefined(desc) {
			return &vm.Symbol{Description: vm.Undefined}, nil
		}
		str, c := vm.ToString(a, desc)
		if c != nil {
			return nil, c
		}
		return &vm.Symbol{Description: str}, nil
	}, proto, vm.BuiltinOptions{})

	for name, sym := range vm.WellKnownSymbols {
		constant(ctor, name, sym)
	}
	method(r, ctor, "for", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		key, c := vm.ToString(a, vm.Arg(args, 0))
		if c != nil {
			return nil, c
		}
		return a.SymbolFor(key), nil
	})
	method(r, ctor, "keyFor", 1, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		sym, ok := vm.Arg(args, 0).(*vm.Symbol)
		if !ok {
			return nil, a.ThrowTypeError(vm.Inspect(vm.Arg(args, 0)) + " is not a symbol")
		}
		if key, ok := a.SymbolKeyFor(sym); ok {
			return key, nil
		}
		return vm.Undefined, nil
	})

	method(r, proto, "toString", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		sym, c := thisSymbol(a, this, "Symbol.prototype.toString")
		if c != nil {
			return nil, c
		}
		return sym.DescriptiveString(), nil
	})
	method(r, proto, "valueOf", 0, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		sym, c := thisSymbol(a, this, "Symbol.prototype.valueOf")
		if c != nil {
			return nil, c
		}
		return sym, nil
	})
	vm.DefineGetter(r, proto, vm.String("description"), func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		sym, c := thisSymbol(a, this, "Symbol.prototype.description")
		if c != nil {
			return nil, c
		}
		return sym.Description, nil
	})
	toPrimitive := vm.CreateBuiltinFunction(r, func(a *vm.Agent, this vm.Value, args []vm.Value, newTarget *vm.Object) (vm.Value, *vm.Completion) {
		sym, c := thisSymbol(a, this, "Symbol.prototype [ @@toPrimitive ]")
		if c != nil {
			return nil, c
		}
		return sym, nil
	}, 1, vm.SymbolToPrimitive, vm.BuiltinOptions{})
	proto.Put(vm.SymbolToPrimitive, toPrimitive, vm.AttrConfigurable)
	toStringTag(proto, "Symbol")

	r.DefineGlobal("Symbol", ctor)
	return nil
}

func thisSymbol(a *vm.Agent, this vm.Value, method string) (*vm.Symbol, *vm.Completion) {
	v, ok := vm.ThisPrimitive(this, vm.TypeSymbol)
	if !ok {
		return nil, a.ThrowTypeError(method + " requires that 'this' be a Symbol")
	}
	return v.(*vm.Symbol), nil
}

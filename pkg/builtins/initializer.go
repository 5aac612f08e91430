package builtins

import (
	"io"
	"os"

	"siskin/pkg/vm"
)

// Priority constants for initialization order
const (
	PriorityObject      = 0   // Object.prototype methods first, everything inherits them
	PriorityFunction    = 1   // Function.prototype
	PrioritySymbol      = 2   // Symbol, needed by iterators and toStringTag
	PriorityArray       = 3   // Array methods
	PriorityString      = 10  // String primitives
	PriorityNumber      = 11  // Number primitives
	PriorityBoolean     = 12  // Boolean primitives
	PriorityBigInt      = 13  // BigInt primitives
	PriorityRegExp      = 14  // RegExp, after String so the Symbol.replace hooks exist
	PriorityCollections = 20  // Map and Set
	PriorityWeak        = 21  // WeakMap, WeakSet, WeakRef, FinalizationRegistry
	PriorityPromise     = 30  // Promise combinators
	PriorityReflect     = 40  // Reflect
	PriorityMath        = 100 // Math object
	PriorityJSON        = 101 // JSON object
	PriorityConsole     = 102 // Console object
	PriorityPerformance = 103 // performance clock and user timing
	PriorityGlobals     = 110 // global functions
)

// Options configures the standard library.
type Options struct {
	// Stdout and Stderr receive console output. They default to the
	// process streams.
	Stdout io.Writer
	Stderr io.Writer
}

// Standard returns the initializers of the standard library, ready for
// vm.AgentOptions.RealmInitializers.
func Standard(opts Options) []vm.RealmInitializer {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return []vm.RealmInitializer{
		&ObjectInitializer{},
		&FunctionInitializer{},
		&SymbolInitializer{},
		&ArrayInitializer{},
		&StringInitializer{},
		&NumberInitializer{},
		&BooleanInitializer{},
		&BigIntInitializer{},
		&RegExpInitializer{},
		&MapInitializer{},
		&SetInitializer{},
		&WeakInitializer{},
		&PromiseInitializer{},
		&ReflectInitializer{},
		&MathInitializer{},
		&JSONInitializer{},
		&ConsoleInitializer{Stdout: opts.Stdout, Stderr: opts.Stderr},
		&PerformanceInitializer{},
		&GlobalsInitializer{},
	}
}

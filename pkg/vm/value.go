// Package vm is a tree-walking ECMAScript evaluator.
//
// Every algorithm that can complete abruptly returns a *Completion (nil when
// the completion is normal) next to its value. Code that may suspend, such
// as async function bodies and generators, runs inside a coroutine owned by
// the Agent; see coroutine.go.
package vm

import (
	"fmt"
	"math"
	"math/big"
)

// --- Debug Flag ---
const debugVM = false

func debugPrintf(format string, args ...interface{}) {
	if debugVM {
		fmt.Printf("[VM Debug] "+format+"\n", args...)
	}
}

// --- End Debug Flag ---

// ValueType is the language type of a Value.
type ValueType uint8

const (
	TypeUndefined ValueType = iota
	TypeNull
	TypeBoolean
	TypeString
	TypeSymbol
	TypeNumber
	TypeBigInt
	TypeObject
)

func (vt ValueType) String() string {
	switch vt {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "boolean"
	case TypeString:
		return "string"
	case TypeSymbol:
		return "symbol"
	case TypeNumber:
		return "number"
	case TypeBigInt:
		return "bigint"
	case TypeObject:
		return "object"
	default:
		return fmt.Sprintf("<unknown type: %d>", vt)
	}
}

// Value is any language value: Undefined, Null, Boolean, Number, String,
// *Symbol, *BigInt or *Object.
type Value interface {
	Type() ValueType
}

type undefinedValue struct{}
type nullValue struct{}

func (undefinedValue) Type() ValueType { return TypeUndefined }
func (nullValue) Type() ValueType      { return TypeNull }
func (undefinedValue) String() string  { return "undefined" }
func (nullValue) String() string       { return "null" }

var (
	Undefined Value = undefinedValue{}
	Null      Value = nullValue{}
)

// Boolean is a language boolean.
type Boolean bool

func (Boolean) Type() ValueType { return TypeBoolean }

const (
	True  = Boolean(true)
	False = Boolean(false)
)

// Number is an IEEE-754 double.
type Number float64

func (Number) Type() ValueType { return TypeNumber }

var (
	NaN         = Number(math.NaN())
	PosInfinity = Number(math.Inf(1))
	NegInfinity = Number(math.Inf(-1))
)

// BigInt is an arbitrary precision integer. The wrapped value is never
// mutated after construction.
type BigInt struct {
	Int *big.Int
}

func (*BigInt) Type() ValueType { return TypeBigInt }

// NewBigInt wraps v; the caller must not mutate v afterwards.
func NewBigInt(v *big.Int) *BigInt {
	return &BigInt{Int: v}
}

// BigIntFromInt64 creates a BigInt from an int64.
func BigIntFromInt64(v int64) *BigInt {
	return &BigInt{Int: big.NewInt(v)}
}

func (b *BigInt) String() string {
	return b.Int.String()
}

// Symbol is a unique language symbol.
type Symbol struct {
	Description Value // Undefined or String
}

func (*Symbol) Type() ValueType { return TypeSymbol }

// NewSymbol creates a symbol with a description.
func NewSymbol(description string) *Symbol {
	return &Symbol{Description: NewString(description)}
}

// DescriptiveString renders a symbol as Symbol(description).
func (s *Symbol) DescriptiveString() String {
	desc := String("")
	if d, ok := s.Description.(String); ok {
		desc = d
	}
	return NewString("Symbol(").Concat(desc).Concat(NewString(")"))
}

func (s *Symbol) isPropertyKey() {}

// Well-known symbols are shared by every realm and agent.
var (
	SymbolAsyncIterator      = NewSymbol("Symbol.asyncIterator")
	SymbolHasInstance        = NewSymbol("Symbol.hasInstance")
	SymbolIsConcatSpreadable = NewSymbol("Symbol.isConcatSpreadable")
	SymbolIterator           = NewSymbol("Symbol.iterator")
	SymbolMatch              = NewSymbol("Symbol.match")
	SymbolMatchAll           = NewSymbol("Symbol.matchAll")
	SymbolReplace            = NewSymbol("Symbol.replace")
	SymbolSearch             = NewSymbol("Symbol.search")
	SymbolSpecies            = NewSymbol("Symbol.species")
	SymbolSplit              = NewSymbol("Symbol.split")
	SymbolToPrimitive        = NewSymbol("Symbol.toPrimitive")
	SymbolToStringTag        = NewSymbol("Symbol.toStringTag")
	SymbolUnscopables        = NewSymbol("Symbol.unscopables")
)

// WellKnownSymbols maps the property names of the Symbol constructor to the
// well-known symbols.
var WellKnownSymbols = map[string]*Symbol{
	"asyncIterator":      SymbolAsyncIterator,
	"hasInstance":        SymbolHasInstance,
	"isConcatSpreadable": SymbolIsConcatSpreadable,
	"iterator":           SymbolIterator,
	"match":              SymbolMatch,
	"matchAll":           SymbolMatchAll,
	"replace":            SymbolReplace,
	"search":             SymbolSearch,
	"species":            SymbolSpecies,
	"split":              SymbolSplit,
	"toPrimitive":        SymbolToPrimitive,
	"toStringTag":        SymbolToStringTag,
	"unscopables":        SymbolUnscopables,
}

// PropertyKey is a String or a *Symbol.
type PropertyKey interface {
	Value
	isPropertyKey()
}

// IsUndefined reports whether v is undefined.
func IsUndefined(v Value) bool {
	return v == nil || v.Type() == TypeUndefined
}

// IsNullish reports whether v is undefined or null.
func IsNullish(v Value) bool {
	if v == nil {
		return true
	}
	t := v.Type()
	return t == TypeUndefined || t == TypeNull
}

// AsObject returns v as an object, or nil.
func AsObject(v Value) *Object {
	o, _ := v.(*Object)
	return o
}

// IsCallable reports whether v is a function object.
func IsCallable(v Value) bool {
	o, ok := v.(*Object)
	return ok && o.fn != nil
}

// IsConstructor reports whether v has a [[Construct]] method.
func IsConstructor(v Value) bool {
	o, ok := v.(*Object)
	return ok && o.fn != nil && o.fn.IsConstructor()
}

// TypeOf implements the typeof operator.
func TypeOf(v Value) String {
	switch v.Type() {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "object"
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeSymbol:
		return "symbol"
	case TypeBigInt:
		return "bigint"
	}
	if IsCallable(v) {
		return "function"
	}
	return "object"
}

package vm

import (
	"fmt"

	"siskin/pkg/errors"
)

// CompletionType tags the outcome of an algorithm.
type CompletionType uint8

const (
	Normal CompletionType = iota
	Break
	Continue
	Return
	Throw
)

func (t CompletionType) String() string {
	switch t {
	case Normal:
		return "normal"
	case Break:
		return "break"
	case Continue:
		return "continue"
	case Return:
		return "return"
	case Throw:
		return "throw"
	default:
		return fmt.Sprintf("<completion %d>", uint8(t))
	}
}

// Completion is the result of evaluating a statement. A nil Value stands for
// empty. Target is the label of a break or continue, if any.
//
// Expressions and abstract operations return (Value, *Completion) instead,
// where a non-nil completion is always abrupt and must be propagated by the
// caller unless it intercepts that kind:
//
//	v, c := ToPrimitive(a, x, HintNone)
//	if c != nil {
//		return nil, c
//	}
type Completion struct {
	Type   CompletionType
	Value  Value
	Target string
}

// NormalCompletion wraps a value.
func NormalCompletion(v Value) Completion {
	return Completion{Type: Normal, Value: v}
}

// ThrowCompletion creates an abrupt completion throwing v.
func ThrowCompletion(v Value) *Completion {
	return &Completion{Type: Throw, Value: v}
}

// IsAbrupt reports whether c is anything but a normal completion.
func (c Completion) IsAbrupt() bool {
	return c.Type != Normal
}

// Abrupt returns a pointer to c when it is abrupt, otherwise nil. It turns a
// statement completion into the form expressions propagate.
func (c Completion) Abrupt() *Completion {
	if c.Type == Normal {
		return nil
	}
	return &c
}

// ValueOrUndefined returns the completion value, mapping empty to undefined.
func (c Completion) ValueOrUndefined() Value {
	if c.Value == nil {
		return Undefined
	}
	return c.Value
}

func (c Completion) String() string {
	if c.Target != "" {
		return fmt.Sprintf("%s(%s)", c.Type, c.Target)
	}
	if c.Value == nil {
		return c.Type.String() + "(empty)"
	}
	return fmt.Sprintf("%s(%s)", c.Type, Inspect(c.Value))
}

// Mark visits the completion value.
func (c *Completion) Mark(visit Visitor) {
	if c != nil {
		visitValue(visit, c.Value)
	}
}

// Must unwraps a result the caller knows cannot be abrupt. An abrupt
// completion here is an engine bug.
func Must[T any](v T, c *Completion) T {
	if c != nil {
		errors.Assertf("unexpected abrupt completion: %s", c)
	}
	return v
}

// MustNormal asserts that c is nil.
func MustNormal(c *Completion) {
	if c != nil {
		errors.Assertf("unexpected abrupt completion: %s", c)
	}
}

// UpdateEmpty replaces an empty completion value with v.
func UpdateEmpty(c Completion, v Value) Completion {
	if c.Value == nil {
		c.Value = v
	}
	return c
}

// completionFrom turns an expression result into a statement completion.
func completionFrom(v Value, c *Completion) Completion {
	if c != nil {
		return *c
	}
	return NormalCompletion(v)
}

// loopContinues implements LoopContinues for a label set.
func loopContinues(c Completion, labels []string) bool {
	switch c.Type {
	case Normal:
		return true
	case Continue:
		if c.Target == "" {
			return true
		}
		for _, l := range labels {
			if l == c.Target {
				return true
			}
		}
	}
	return false
}

package vm

import (
	"fmt"
	"strings"

	"siskin/pkg/errors"
)

// ErrorData marks objects created by the Error constructors.
type ErrorData struct{}

// Exception carries a thrown value across a Go API boundary.
type Exception struct {
	Value Value
}

func (e *Exception) Error() string {
	return "Uncaught " + describeThrown(e.Value)
}

// NewException wraps the value of a Throw completion.
func NewException(c *Completion) *Exception {
	errors.Assert(c != nil && c.Type == Throw, "NewException needs a throw completion")
	return &Exception{Value: c.Value}
}

// Stack returns the stack property of a thrown error object, if any.
func (e *Exception) Stack() string {
	if o, ok := e.Value.(*Object); ok {
		if s, ok := o.OwnValue(String("stack")); ok {
			if s, ok := s.(String); ok {
				return s.String()
			}
		}
	}
	return ""
}

// RuntimeError converts the exception for host error reporting.
func (e *Exception) RuntimeError() *errors.RuntimeError {
	return errors.UncaughtError(describeThrown(e.Value), e.Stack(), e.Value)
}

// describeThrown renders a thrown value as `Name: message` without running
// any user code.
func describeThrown(v Value) string {
	o, ok := v.(*Object)
	if !ok || !isErrorObject(o) {
		return Inspect(v)
	}
	name, msg := errorNameAndMessage(o)
	switch {
	case msg == "":
		return name
	case name == "":
		return msg
	}
	return name + ": " + msg
}

func isErrorObject(o *Object) bool {
	_, ok := o.Internal.(*ErrorData)
	return ok
}

// errorNameAndMessage reads name and message through the prototype chain,
// ignoring accessors.
func errorNameAndMessage(o *Object) (name, msg string) {
	name = "Error"
	if v, ok := lookupDataValue(o, String("name")); ok {
		if s, ok := v.(String); ok {
			name = s.String()
		}
	}
	if v, ok := lookupDataValue(o, String("message")); ok {
		if s, ok := v.(String); ok {
			msg = s.String()
		}
	}
	return name, msg
}

func lookupDataValue(o *Object, key PropertyKey) (Value, bool) {
	for ; o != nil; o = o.proto {
		if p := o.getOwn(key); p != nil {
			if p.Accessor {
				return nil, false
			}
			return p.Value, true
		}
	}
	return nil, false
}

// newErrorObject creates an error with the given prototype and a stack
// trace of the running code.
func (a *Agent) newErrorObject(realm *Realm, proto *Object, msg string) *Object {
	o := OrdinaryObjectCreate(proto)
	o.Class, o.Internal = "Error", &ErrorData{}
	if msg != "" {
		o.Put(String("message"), NewString(msg), AttrDefault)
	}
	a.captureStack(o, 0)
	return o
}

// captureStack installs the stack property, skipping the innermost skip
// frames.
func (a *Agent) captureStack(o *Object, skip int) {
	var b strings.Builder
	b.WriteString(describeThrown(o))
	for _, frame := range a.stackFrames(skip) {
		b.WriteString("\n    at ")
		b.WriteString(frame)
	}
	o.Put(String("stack"), NewString(b.String()), AttrDefault)
}

// stackFrames renders the execution-context stack, innermost first.
func (a *Agent) stackFrames(skip int) []string {
	var frames []string
	for i := len(a.stack) - 1 - skip; i >= 0; i-- {
		ctx := a.stack[i]
		if ctx.origin != nil && i > 0 && a.stack[i-1] == ctx.origin {
			continue
		}
		if ctx.Function == nil && ctx.program == nil {
			continue
		}
		name := "<anonymous>"
		if ctx.Function != nil {
			name = functionName(ctx.Function)
		}
		if ctx.Function != nil {
			if _, native := ctx.Function.fn.(*BuiltinFunction); native {
				frames = append(frames, name+" (native)")
				continue
			}
		}
		pos, ok := ctx.Position()
		if !ok {
			frames = append(frames, name)
			continue
		}
		where := fmt.Sprintf("%s:%d:%d", pos.Source.DisplayPath(), pos.Line, pos.Column)
		if ctx.Function == nil {
			frames = append(frames, where)
		} else {
			frames = append(frames, name+" ("+where+")")
		}
	}
	return frames
}

// --- Error constructors ---

func (r *Realm) initErrors() {
	i := &r.Intrinsics
	i.ErrorPrototype = OrdinaryObjectCreate(i.ObjectPrototype)
	i.Error = DefineConstructor(r, "Error", 1, errorConstructor(func(i *Intrinsics) *Object { return i.ErrorPrototype }), i.ErrorPrototype, BuiltinOptions{})
	i.ErrorPrototype.Put(String("name"), String("Error"), AttrDefault)
	i.ErrorPrototype.Put(String("message"), String(""), AttrDefault)
	DefineMethod(r, i.ErrorPrototype, "toString", 0, errorToString)

	native := func(name string, pick func(*Intrinsics) *Object) (*Object, *Object) {
		proto := OrdinaryObjectCreate(i.ErrorPrototype)
		ctor := DefineConstructor(r, name, 1, errorConstructor(pick), proto, BuiltinOptions{Prototype: i.Error})
		proto.Put(String("name"), NewString(name), AttrDefault)
		proto.Put(String("message"), String(""), AttrDefault)
		return ctor, proto
	}
	i.TypeError, i.TypeErrorPrototype = native("TypeError", func(i *Intrinsics) *Object { return i.TypeErrorPrototype })
	i.RangeError, i.RangeErrorPrototype = native("RangeError", func(i *Intrinsics) *Object { return i.RangeErrorPrototype })
	i.SyntaxError, i.SyntaxErrorPrototype = native("SyntaxError", func(i *Intrinsics) *Object { return i.SyntaxErrorPrototype })
	i.ReferenceError, i.ReferenceErrorPrototype = native("ReferenceError", func(i *Intrinsics) *Object { return i.ReferenceErrorPrototype })
	i.EvalError, i.EvalErrorPrototype = native("EvalError", func(i *Intrinsics) *Object { return i.EvalErrorPrototype })
	i.URIError, i.URIErrorPrototype = native("URIError", func(i *Intrinsics) *Object { return i.URIErrorPrototype })

	i.AggregateErrorPrototype = OrdinaryObjectCreate(i.ErrorPrototype)
	i.AggregateError = DefineConstructor(r, "AggregateError", 2, aggregateErrorConstructor, i.AggregateErrorPrototype, BuiltinOptions{Prototype: i.Error})
	i.AggregateErrorPrototype.Put(String("name"), String("AggregateError"), AttrDefault)
	i.AggregateErrorPrototype.Put(String("message"), String(""), AttrDefault)
}

func newErrorFromConstructor(a *Agent, newTarget *Object, pick func(*Intrinsics) *Object, message, options Value) (*Object, *Completion) {
	if newTarget == nil {
		newTarget = a.RunningContext().Function
	}
	o, c := OrdinaryCreateFromConstructor(a, newTarget, pick)
	if c != nil {
		return nil, c
	}
	o.Class, o.Internal = "Error", &ErrorData{}
	if !IsUndefined(message) {
		msg, c := ToString(a, message)
		if c != nil {
			return nil, c
		}
		o.Put(String("message"), msg, AttrDefault)
	}
	if opts, ok := options.(*Object); ok {
		has, c := HasProperty(a, opts, String("cause"))
		if c != nil {
			return nil, c
		}
		if has {
			cause, c := Get(a, opts, String("cause"))
			if c != nil {
				return nil, c
			}
			o.Put(String("cause"), cause, AttrDefault)
		}
	}
	// The innermost frame is the constructor itself.
	a.captureStack(o, 1)
	return o, nil
}

func errorConstructor(pick func(*Intrinsics) *Object) NativeFunction {
	return func(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
		return newErrorFromConstructor(a, newTarget, pick, Arg(args, 0), Arg(args, 1))
	}
}

func aggregateErrorConstructor(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
	o, c := newErrorFromConstructor(a, newTarget, func(i *Intrinsics) *Object { return i.AggregateErrorPrototype }, Arg(args, 1), Arg(args, 2))
	if c != nil {
		return nil, c
	}
	list, c := IterableToList(a, Arg(args, 0))
	if c != nil {
		return nil, c
	}
	o.Put(String("errors"), CreateArrayFromList(a, list), AttrDefault)
	return o, nil
}

func errorToString(a *Agent, this Value, args []Value, newTarget *Object) (Value, *Completion) {
	o, ok := this.(*Object)
	if !ok {
		return nil, a.ThrowTypeError("Error.prototype.toString requires that 'this' be an Object")
	}
	name := String("Error")
	if v, c := Get(a, o, String("name")); c != nil {
		return nil, c
	} else if !IsUndefined(v) {
		if name, c = ToString(a, v); c != nil {
			return nil, c
		}
	}
	var msg String
	if v, c := Get(a, o, String("message")); c != nil {
		return nil, c
	} else if !IsUndefined(v) {
		if msg, c = ToString(a, v); c != nil {
			return nil, c
		}
	}
	switch {
	case name == "":
		return msg, nil
	case msg == "":
		return name, nil
	}
	return name.Concat(String(": ")).Concat(msg), nil
}

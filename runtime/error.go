// Package runtime holds the engine's uniform throw/exception
// representation: the native error kinds ECMA-262 mandates
// (TypeError, RangeError, ...) plus the Exception wrapper the VM
// propagates for a `throw` of *any* JS value, not just native errors.
// The environment and compiler packages return plain Go errors rather
// than importing vm (which would import them back, completing a
// cycle); the VM wraps those into an Exception at the point it catches
// them.
package runtime

import (
	"fmt"

	"github.com/wudi/esprel/values"
)

// Kind names the native error constructors ECMA-262 §19.5 describes.
// Stored on an Error object's Internal payload so instanceof and
// Error.prototype.toString can recover it without a type switch on
// the underlying class hierarchy this engine doesn't otherwise model.
type Kind string

const (
	TypeError      Kind = "TypeError"
	RangeError     Kind = "RangeError"
	ReferenceError Kind = "ReferenceError"
	SyntaxError    Kind = "SyntaxError"
	URIError       Kind = "URIError"
	EvalError      Kind = "EvalError"
	AggregateError Kind = "AggregateError"
	// InternalError is not an ECMA-262 kind; it tags the engine's own
	// cooperative-interrupt signal, surfaced
	// to host code the same way any other thrown error is.
	InternalError Kind = "InternalError"
)

// StackFrame is one captured call-frame entry, innermost first, for an
// Error object's stack trace.
type StackFrame struct {
	FunctionName string
	Line         int
}

// ErrorData is the Internal payload of an Object with Class == "Error":
// enough to render `name: message` and a stack without re-deriving it
// from the property map on every access.
type ErrorData struct {
	Kind    Kind
	Message string
	Cause   values.Value
	HasCause bool
	Stack   []StackFrame
}

// Exception is what the VM's dispatch loop and Call/Construct helpers
// actually propagate as a Go error for an abrupt `throw` completion:
// the thrown value exactly as JS code produced it (which need not be
// an Error object at all), plus a Stack field for a call-stack
// snapshot, which the VM leaves empty (its captureStack records no
// frames).
type Exception struct {
	Value values.Value
	Stack []StackFrame
}

func (e *Exception) Error() string {
	if obj := e.Value.AsObject(); obj != nil {
		if data, ok := obj.Internal.(*ErrorData); ok {
			return fmt.Sprintf("%s: %s", data.Kind, data.Message)
		}
	}
	return e.Value.ToStringValue()
}

// NewException wraps an already-constructed JS value (typically an
// Error object built via NewErrorObject, but any value is legal) as
// the Go error the VM's handler search unwinds on.
func NewException(v values.Value, stack []StackFrame) *Exception {
	return &Exception{Value: v, Stack: stack}
}

// NewErrorObject builds a native Error instance of the given kind.
// proto is the realm's prototype for that kind (Error.prototype,
// TypeError.prototype, ...); callers without a realm handy (e.g. very
// early bootstrap) may pass nil, leaving Prototype unset.
func NewErrorObject(kind Kind, proto *values.Object, message string) *values.Object {
	obj := values.NewObject(proto)
	obj.Class = "Error"
	obj.Internal = &ErrorData{Kind: kind, Message: message}
	obj.SetData(values.StringKey("message"), values.String(message))
	obj.SetData(values.StringKey("name"), values.String(string(kind)))
	obj.SetData(values.StringKey("stack"), values.String(string(kind)+": "+message))
	return obj
}

// Throw builds a native error of kind and returns it pre-wrapped as
// the Exception the VM propagates, the one-call convenience every
// opcode handler reaches for instead of building ErrorData by hand.
func Throw(kind Kind, proto *values.Object, format string, args ...interface{}) *Exception {
	msg := fmt.Sprintf(format, args...)
	obj := NewErrorObject(kind, proto, msg)
	return &Exception{Value: values.ObjectValue(obj)}
}

// IsErrorKind reports whether v is a native Error object of exactly kind.
func IsErrorKind(v values.Value, kind Kind) bool {
	obj := v.AsObject()
	if obj == nil {
		return false
	}
	data, ok := obj.Internal.(*ErrorData)
	return ok && data.Kind == kind
}

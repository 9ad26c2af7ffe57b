// Package errors provides the application error type for the hypercube
// optimization service: a wrapped cause annotated with the operation and
// component it failed in, plus a captured stack. It interoperates with the
// standard errors package through Unwrap.
package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// Error is an error with service context attached.
type Error struct {
	// Err is the wrapped cause, if any.
	Err error
	// Message describes the failure in human terms.
	Message string
	// Operation names the action that failed, e.g. "start optimization".
	Operation string
	// Component names the package or subsystem, e.g. "server".
	Component string
	// Stack holds the call stack captured at construction.
	Stack []string
}

// Error renders "component: operation: message: cause", skipping empty
// parts.
func (e *Error) Error() string {
	parts := make([]string, 0, 4)
	if e.Component != "" {
		parts = append(parts, e.Component)
	}
	if e.Operation != "" {
		parts = append(parts, e.Operation)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithOperation sets the operation and returns the error for chaining.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// WithComponent sets the component and returns the error for chaining.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// StackTrace returns the stack captured when the error was constructed.
func (e *Error) StackTrace() []string {
	return e.Stack
}

// New creates an error from a message.
func New(msg string) *Error {
	return &Error{
		Message: msg,
		Stack:   callStack(),
	}
}

// Newf creates an error from a format string.
func Newf(format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Stack:   callStack(),
	}
}

// Wrap annotates err with a message. Returns nil when err is nil.
func Wrap(err error, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Err:     err,
		Message: msg,
		Stack:   callStack(),
	}
}

// Wrapf annotates err with a formatted message. Returns nil when err is nil.
func Wrapf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Err:     err,
		Message: fmt.Sprintf(format, args...),
		Stack:   callStack(),
	}
}

// callStack captures the stack above the constructor, with runtime and this
// package's own frames removed.
func callStack() []string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	stack := make([]string, 0, n)
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") && !strings.Contains(frame.File, "internal/errors") {
			stack = append(stack, fmt.Sprintf("%s\n\t%s:%d", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}
	return stack
}

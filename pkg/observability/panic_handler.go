package observability

import (
	"fmt"
	"runtime/debug"
)

// PanicError is a recovered panic together with the stack it was raised on
type PanicError struct {
	Value any
	Stack string
}

// NewPanicError captures the current stack. Call it from the deferred
// function that recovered r.
func NewPanicError(r any) *PanicError {
	return &PanicError{Value: r, Stack: string(debug.Stack())}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// RecoverPanic recovers from a panic and logs it with the stack trace.
//
//	defer observability.RecoverPanic(logger, "tax rate watcher")
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
	}
}

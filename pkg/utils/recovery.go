package utils

import (
	"fmt"
	"runtime/debug"
)

// PanicError carries a value recovered from a panicking trial or worker
// goroutine, together with the stack at the point of the panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("recovered panic: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error, so
// errors.Is works through panic(err).
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

func recovered(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

// RecoverAsError must be deferred directly. A panic in the surrounding
// function is turned into a *PanicError stored in *errp.
func RecoverAsError(errp *error) {
	if v := recover(); v != nil {
		*errp = recovered(v)
	}
}

// RecoverWithCallback must be deferred directly. A panic is handed to fn as
// a *PanicError instead of unwinding the goroutine.
func RecoverWithCallback(fn func(error)) {
	if v := recover(); v != nil {
		fn(recovered(v))
	}
}

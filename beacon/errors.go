package beacon

import (
	"errors"
	"fmt"
)

var (
	// ErrRadioUnavailable means the adapter is absent or powered off. The operation
	// was skipped.
	ErrRadioUnavailable = errors.New("radio unavailable")

	// ErrNoServer means a response was attempted before the connection server opened.
	ErrNoServer = errors.New("connection server not open")

	// ErrRequestNotPending means the stack no longer tracks the request, usually
	// because the peer disconnected.
	ErrRequestNotPending = errors.New("request not pending")
)

// FaultError is any unexpected failure or panic caught at an operation boundary.
type FaultError struct {
	Op     string
	Source string // dynamic type of the cause
	Err    error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Source, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}

func newFault(op string, err error) *FaultError {
	return &FaultError{Op: op, Source: fmt.Sprintf("%T", err), Err: err}
}

func panicFault(op string, r interface{}) *FaultError {
	err, ok := r.(error)
	if !ok {
		err = fmt.Errorf("panic: %v", r)
	}
	return &FaultError{Op: op, Source: fmt.Sprintf("%T", r), Err: err}
}

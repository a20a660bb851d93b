package engine

import (
	"errors"
	"fmt"
)

// ErrInterrupted is returned by a delete whose wait was cut short by
// context cancellation (process shutdown). The store is left unchanged.
var ErrInterrupted = errors.New("interrupted while waiting for insert")

// InterruptedError carries the task and name of an interrupted delete.
// It matches ErrInterrupted with errors.Is and unwraps to the context cause.
type InterruptedError struct {
	Task  int
	Name  string
	Cause error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("task %d: delete %q: %v: %v", e.Task, e.Name, ErrInterrupted, e.Cause)
}

// Is implements errors.Is matching against ErrInterrupted.
func (e *InterruptedError) Is(target error) bool {
	return target == ErrInterrupted
}

func (e *InterruptedError) Unwrap() error {
	return e.Cause
}

// IsInterrupted returns true if err is or wraps an interrupted delete.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted)
}

package repeat

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInterval = errors.New("repeat: interval must be > 0")
	ErrNilAction       = errors.New("repeat: action is nil")
	ErrAlreadyStarted  = errors.New("repeat: already started")
	ErrStopped         = errors.New("repeat: stopped")
)

// PanicError carries a panic recovered from an action.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

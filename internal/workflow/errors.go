package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is wrapped by every TransitionError.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrSessionAbandoned is returned when the session was cancelled or
	// reset while a verification or validation call was running. The late
	// result is discarded.
	ErrSessionAbandoned = errors.New("session abandoned")
)

// TransitionError reports an event that is not allowed in the current state.
type TransitionError struct {
	Event string
	From  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s in state %q", e.Event, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// ValidationError reports rejected user input. The state is left as is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

package studio

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when a mutating action arrives while a gateway call
// from a previous action is still outstanding. StartOver is exempt.
var ErrBusy = errors.New("another action is still in progress")

// DecodeError reports an upload that could not be read as image bytes.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode upload: %s", e.Reason)
}

// GatewayError wraps a failed generation call. The message is passed
// through for display; the user may retry the same action.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// PreconditionError reports an action invoked in a step missing its
// required data. The caller should have prevented it; state is never
// mutated when one is returned.
type PreconditionError struct {
	Action string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Reason)
}

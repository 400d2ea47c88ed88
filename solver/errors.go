package solver

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is the sentinel for a missing or unusable backend.
	ErrUnavailable = errors.New("solver: backend unavailable")
	// ErrNotRegistered means no backend is registered under the name.
	ErrNotRegistered = errors.New("solver: backend not registered")
	// ErrNoVariables rejects problems without decision variables.
	ErrNoVariables = errors.New("solver: problem has no variables")
)

// UnavailableError names the function that needed a backend which is
// not present in the environment.
type UnavailableError struct {
	Func    string
	Backend string
	Err     error
}

func (e *UnavailableError) Error() string {
	msg := fmt.Sprintf("solver: function %s not available since %s backend was not found", e.Func, e.Backend)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnavailableError) Unwrap() []error { return []error{ErrUnavailable, e.Err} }

// Package rangeerr defines the error taxonomy shared by the action space,
// the action runtime and reward accounting.
//
// Setup-time failures (InvalidConfiguration, DuplicateActionName) abort
// environment construction. DispatchOutOfRange and HandlerExecution abort the
// current tick. A handler that runs and reports Succeeded=false is not an error.
package rangeerr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration covers bad range widths, unknown dispatch kinds,
	// unknown handler names and malformed registration payloads.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrDuplicateActionName is returned when two actions share a display name.
	ErrDuplicateActionName = errors.New("duplicate action name")
	// ErrDispatchOutOfRange is returned when a token resolves to no registered entry.
	ErrDispatchOutOfRange = errors.New("dispatch out of range")
	// ErrHandlerExecution marks a handler's own internal failure, e.g. a target
	// that no longer exists.
	ErrHandlerExecution = errors.New("handler execution failure")
)

// Invalid wraps ErrInvalidConfiguration with a formatted reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

// Duplicate wraps ErrDuplicateActionName with the offending name.
func Duplicate(name string) error {
	return fmt.Errorf("%w: %q", ErrDuplicateActionName, name)
}

// Execution wraps ErrHandlerExecution for the named action.
func Execution(action string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrHandlerExecution, action, err)
}

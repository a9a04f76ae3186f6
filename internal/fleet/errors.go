package fleet

import (
	"errors"
	"fmt"
)

// Domain errors for the fleet package. Their messages double as protocol
// error strings, so they are kept wire-friendly.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, fleet.ErrUnknownDevice) {
//	    // handle unknown device
//	}
var (
	// ErrDuplicateDevice is returned when registering a device name that is
	// already present.
	ErrDuplicateDevice = errors.New("duplicate device_name")

	// ErrUnknownDevice is returned when a device name is not registered.
	ErrUnknownDevice = errors.New("unknown device_name")

	// ErrDeviceUnavailable is returned when a command targets a device that
	// is not bound and connected. Distinct from device-side command
	// failures; stable for clients to match on.
	ErrDeviceUnavailable = errors.New("device_unavailable")

	// ErrValidation marks malformed or out-of-range command arguments.
	// Validation happens before the operation gate is acquired. Check with
	// errors.Is; concrete errors carry a human-readable message only.
	ErrValidation = errors.New("validation error")

	// ErrCommandFailed is returned when a command completed but the device
	// reported a non-success status.
	ErrCommandFailed = errors.New("command_failed")
)

// ValidationError is an argument validation failure. Its message is exactly
// what goes on the wire; errors.Is(err, ErrValidation) matches it.
type ValidationError struct {
	Msg string
}

// Error implements error.
func (e *ValidationError) Error() string {
	return e.Msg
}

// Is reports ErrValidation as this error's sentinel.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// validationErrorf builds a ValidationError with a formatted message.
func validationErrorf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

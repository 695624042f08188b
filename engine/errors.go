package engine

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by all engine operations. Callers match with
// errors.Is; the transport maps each class to its own status code.
var (
	// ErrInvalidInput marks malformed or out-of-contract arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnavailable marks a missing or not-ready model collaborator.
	ErrUnavailable = errors.New("model unavailable")
	// ErrInternal marks an unexpected engine fault.
	ErrInternal = errors.New("internal error")
)

func invalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func unavailablef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}

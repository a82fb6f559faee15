package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrInvalidInput marks input that was rejected before any mutation.
var ErrInvalidInput = errors.New("invalid input")

func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func NotFound(what string, id any) error {
	return fmt.Errorf("%s %v: %w", what, id, ErrorRecordNotFound)
}

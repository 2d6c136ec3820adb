package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is the sentinel matched by every InputError.
var ErrInvalidInput = errors.New("invalid input")

// InputError reports which input was rejected and, when the problem is tied
// to one element of a series, at which index. Index is -1 otherwise.
type InputError struct {
	Input  string
	Index  int
	Reason string
}

func (e *InputError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("invalid input %s at index %d: %s", e.Input, e.Index, e.Reason)
	}
	return fmt.Sprintf("invalid input %s: %s", e.Input, e.Reason)
}

// Unwrap lets errors.Is(err, ErrInvalidInput) match.
func (e *InputError) Unwrap() error { return ErrInvalidInput }

// Invalid builds an InputError for the named input.
func Invalid(input string, index int, format string, args ...any) error {
	return &InputError{Input: input, Index: index, Reason: fmt.Sprintf(format, args...)}
}

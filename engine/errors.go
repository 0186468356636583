package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is the sentinel all input validation failures unwrap to.
var ErrValidation = errors.New("validation failed")

// ValidationError reports the missing fields of a malformed public
// operation input. The operation aborts with no side effects.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

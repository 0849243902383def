package cmd

import (
	"errors"
	"fmt"
)

// SilentExitError carries an exit code out of a command that has
// already produced all of its user-facing output. Execute translates
// it to the code without printing anything further.
type SilentExitError struct {
	Code int
}

func (e *SilentExitError) Error() string {
	return fmt.Sprintf("exit %d", e.Code)
}

// NewSilentExit wraps an exit code for return from a RunE.
func NewSilentExit(code int) error {
	return &SilentExitError{Code: code}
}

// IsSilentExit reports whether err is a silent exit, and its code.
func IsSilentExit(err error) (int, bool) {
	var se *SilentExitError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

package session

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionCompleted = errors.New("session already completed")
	ErrBreakAlreadyOpen = errors.New("a break is already in progress")
	ErrNoOpenBreak      = errors.New("no break in progress")
	ErrInvalidStatus    = errors.New("status must be active or paused")
)

// PersistError reports a failed store write. The in-memory session keeps
// the mutation that preceded the failure.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist session (%s): %v", e.Op, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// IsStateError reports whether err is a rejected transition rather than
// an infrastructure failure.
func IsStateError(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionCompleted) ||
		errors.Is(err, ErrBreakAlreadyOpen) ||
		errors.Is(err, ErrNoOpenBreak) ||
		errors.Is(err, ErrInvalidStatus)
}

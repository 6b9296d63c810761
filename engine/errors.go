package engine

import (
	"errors"
	"fmt"
)

// Errors returned by engine operations. Every operation validates before it
// mutates, so a returned error always means the match was left untouched.
var (
	// ErrInactiveMatch is returned when an operation targets a completed
	// or cancelled match.
	ErrInactiveMatch = errors.New("match is not active")

	// ErrDuplicatePlayer is returned when a player being added is already
	// part of the match.
	ErrDuplicatePlayer = errors.New("player already in match")

	// ErrRoundNotFound is returned when a round ID does not belong to the
	// match.
	ErrRoundNotFound = errors.New("round not found in match")
)

// ValidationError reports caller-supplied data that violates a game rule.
// Recoverable: the caller corrects the input and retries.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// InvalidRoundDataError reports an internal consistency failure between a
// round's predictions and the results supplied for it (e.g. a stale round
// reference from a collaborator). Non-recoverable for the call, but raised
// before any write.
type InvalidRoundDataError struct {
	Reason string
}

func (e *InvalidRoundDataError) Error() string { return e.Reason }

func invalidRoundDataf(format string, args ...interface{}) error {
	return &InvalidRoundDataError{Reason: fmt.Sprintf(format, args...)}
}

package model

import "errors"

var (
	// ErrNotFound is returned when a record does not exist or its blob cannot
	// be decoded.
	ErrNotFound = errors.New("portfolio not found")

	// ErrInvalidTransition is returned when a review action is attempted on a
	// record that is no longer pending.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrUnauthorized is returned when the acting account may not review the record.
	ErrUnauthorized = errors.New("account not authorized for this action")
)

// ErrValidation is returned by service methods when the caller supplies invalid
// input. Handlers should convert this to HTTP 400 rather than 500.
type ErrValidation struct{ Msg string }

func (e *ErrValidation) Error() string { return e.Msg }

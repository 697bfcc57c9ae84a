package model

import "fmt"

// Action is a review decision applied to a pending record.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// Transition returns the status reached by applying action to a record in
// status from. Only pending records move; verified and rejected are terminal.
func Transition(from Status, action Action) (Status, error) {
	if from != StatusPending {
		return from, fmt.Errorf("%w: cannot %s a %s portfolio", ErrInvalidTransition, action, from)
	}
	switch action {
	case ActionApprove:
		return StatusVerified, nil
	case ActionReject:
		return StatusRejected, nil
	default:
		return from, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}
}

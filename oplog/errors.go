package oplog

import (
	"errors"
	"fmt"
)

var (
	// ErrReplayInconsistency indicates an operation references an element
	// that does not exist in the derived state at its sequence.
	ErrReplayInconsistency = errors.New("replay inconsistency")

	// ErrSequenceOrder indicates a restored log whose sequences are not
	// strictly increasing.
	ErrSequenceOrder = errors.New("operation sequences are not strictly increasing")

	// ErrDuplicateID indicates two elements share an id.
	ErrDuplicateID = errors.New("duplicate element id")

	// ErrNoChange is returned by Edit when neither content nor metadata change.
	ErrNoChange = errors.New("edit does not change the element")
)

// ReplayError reports an operation that could not be applied to the state
// derived from the operations before it.
type ReplayError struct {
	OperationID string
	Sequence    uint64
	ElementID   string
	Reason      string
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("operation %s (seq %d) on %q: %s", e.OperationID, e.Sequence, e.ElementID, e.Reason)
}

func (e *ReplayError) Unwrap() error { return ErrReplayInconsistency }

func inconsistent(op Operation, format string, args ...any) *ReplayError {
	return &ReplayError{
		OperationID: op.ID,
		Sequence:    op.Sequence,
		ElementID:   op.ElementID,
		Reason:      fmt.Sprintf(format, args...),
	}
}

package batch

import (
	"errors"
	"fmt"

	"github.com/arbiter-io/arbiter/internal/record"
)

// ErrBatchNotFound is returned when an operation references an unknown
// batch.
var ErrBatchNotFound = errors.New("batch not found")

// TransitionError is raised for a state transition the machine does not
// allow. It indicates an orchestration bug by the caller, not a recoverable
// runtime condition.
type TransitionError struct {
	BatchID string
	From    record.BatchStatus
	To      record.BatchStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s for batch %s", e.From, e.To, e.BatchID)
}

// IsTransitionError reports whether err is an invalid state transition.
// Uses errors.As to handle wrapped errors.
func IsTransitionError(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

// ReconciliationError is raised when a batch tries to complete with
// untracked artifacts. Reconciliation always fails closed: the batch stays
// in VERIFYING and the untracked delta is reported.
type ReconciliationError struct {
	BatchID        string
	UntrackedDelta []string
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("batch %s is not balanced: %d untracked artifact(s): %v",
		e.BatchID, len(e.UntrackedDelta), e.UntrackedDelta)
}

// IsReconciliationError reports whether err is a reconciliation failure.
// Uses errors.As to handle wrapped errors.
func IsReconciliationError(err error) bool {
	var re *ReconciliationError
	return errors.As(err, &re)
}

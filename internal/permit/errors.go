package permit

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a package or document does not exist.
	ErrNotFound = errors.New("permit: not found")

	// ErrAlreadyInState is returned when a transition targets a state the
	// package has already reached or passed. Callers treat it as a benign
	// re-trigger, not a failure.
	ErrAlreadyInState = errors.New("permit: already in state")

	// ErrStatusConflict is returned by storage when a conditional status
	// update matched no record because the package status changed underneath
	// the caller.
	ErrStatusConflict = errors.New("permit: status conflict")
)

// PreconditionError reports a lifecycle transition attempted before its
// preconditions hold. Reason carries the machine-readable cause and the
// category slices carry the actionable detail.
type PreconditionError struct {
	Reason               Reason
	MissingCategories    []string
	UnverifiedCategories []string
	UnverifiedCount      int
}

func (e *PreconditionError) Error() string {
	switch e.Reason {
	case ReasonNoDocuments:
		return "permit: package has no documents"
	case ReasonMissingDocuments:
		return fmt.Sprintf("permit: missing documents for %s", strings.Join(e.MissingCategories, ", "))
	case ReasonUnverifiedDocuments:
		if e.UnverifiedCount == 1 {
			return "permit: 1 document still needs verification"
		}
		return fmt.Sprintf("permit: %d documents still need verification", e.UnverifiedCount)
	case ReasonNotBuilding:
		return "permit: package is not in building"
	case ReasonNotReadyForBilling:
		return "permit: package is not ready for billing"
	}
	return fmt.Sprintf("permit: precondition failed (%s)", e.Reason)
}

// NewPreconditionError builds a PreconditionError from a failed eligibility
// evaluation.
func NewPreconditionError(elig Eligibility) *PreconditionError {
	return &PreconditionError{
		Reason:               elig.Reason,
		MissingCategories:    elig.MissingCategories,
		UnverifiedCategories: elig.UnverifiedCategories,
		UnverifiedCount:      elig.UnverifiedCount,
	}
}

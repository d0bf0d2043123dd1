package inventory

import (
	"errors"
)

// Outcome tags the result of an operation for rendering by the routing layer.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeNoContent   Outcome = "no_content"
	OutcomeClientError Outcome = "client_error"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeConflict    Outcome = "conflict"
	OutcomeServerError Outcome = "server_error"
)

// ClassifyOutcome maps an operation error onto an Outcome.
// Lock conflicts stay distinct from validation failures so clients know a fresh read and a retry can succeed.
func ClassifyOutcome(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrOptimisticLockConflict):
		return OutcomeConflict
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrValidationFailed),
		errors.Is(err, ErrBatchTooLarge),
		errors.Is(err, ErrLockSuppressionForbidden),
		errors.Is(err, ErrHRIDConflict),
		errors.Is(err, ErrHRIDChanged),
		errors.Is(err, ErrIDGenerationConflict),
		errors.Is(err, ErrDuplicateKey),
		errors.Is(err, ErrDanglingReference):
		return OutcomeClientError
	default:
		return OutcomeServerError
	}
}

// ClassifyNoBodyOutcome is ClassifyOutcome for operations that return no document, like updates and deletes.
func ClassifyNoBodyOutcome(err error) Outcome {
	if err == nil {
		return OutcomeNoContent
	}

	return ClassifyOutcome(err)
}

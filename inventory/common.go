package inventory

import (
	"errors"
)

var (
	// ErrOptimisticLockConflict is returned when the stored version does not match the incoming version.
	ErrOptimisticLockConflict = errors.New("optimistic lock conflict, the record was changed by someone else")

	// ErrLockSuppressionForbidden is returned when a batch requests lock suppression while the policy forbids it.
	ErrLockSuppressionForbidden = errors.New(
		"DB_ALLOW_SUPPRESS_OPTIMISTIC_LOCKING environment variable doesn't allow to disable optimistic locking")

	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrValidationFailed is the sentinel every *ValidationError matches.
	ErrValidationFailed = errors.New("validation failed")

	// ErrBatchTooLarge is returned when a batch exceeds the configured maximum size.
	ErrBatchTooLarge = errors.New("batch exceeds the maximum number of records")

	// ErrHRIDConflict is returned when an HRID already exists.
	ErrHRIDConflict = errors.New("hrid already exists")

	// ErrHRIDChanged is returned when an update tries to change an assigned HRID.
	ErrHRIDChanged = errors.New("the hrid field cannot be changed")

	// ErrIDGenerationConflict is returned when the identifier sequence could not be locked.
	ErrIDGenerationConflict = errors.New("identifier generation conflict")

	// ErrDuplicateKey is returned when a unique constraint is violated.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrDanglingReference is returned when a foreign key points to a missing record.
	ErrDanglingReference = errors.New("referenced record is not present")

	// ErrEmptyTenant is returned when an empty tenant id is supplied.
	ErrEmptyTenant = errors.New("tenant must not be empty")

	// ErrInvalidTenant is returned when a tenant id can't name a database schema.
	ErrInvalidTenant = errors.New("tenant must consist of lower case letters, digits and underscores")

	// ErrNilDatabaseConnection is returned when a nil connection is supplied.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrBuildingQueryFailed is returned when a SQL statement could not be built.
	ErrBuildingQueryFailed = errors.New("building the query failed")

	// ErrQueryingFailed is returned when a query could not be executed.
	ErrQueryingFailed = errors.New("querying failed")

	// ErrWritingFailed is returned when a modifying statement could not be executed.
	ErrWritingFailed = errors.New("writing failed")

	// ErrScanningDBRowFailed is returned when a row could not be scanned.
	ErrScanningDBRowFailed = errors.New("scanning db row failed")

	// ErrGettingRowsAffectedFailed is returned when the affected rows count is unavailable.
	ErrGettingRowsAffectedFailed = errors.New("getting rows affected failed")

	// ErrBeginTxFailed is returned when a transaction could not be started.
	ErrBeginTxFailed = errors.New("beginning the transaction failed")

	// ErrCommitFailed is returned when a transaction could not be committed.
	ErrCommitFailed = errors.New("committing the transaction failed")

	// ErrDecodingDocumentFailed is returned when a stored jsonb document could not be decoded.
	ErrDecodingDocumentFailed = errors.New("decoding the stored document failed")

	// ErrEncodingDocumentFailed is returned when a document could not be encoded.
	ErrEncodingDocumentFailed = errors.New("encoding the document failed")

	// ErrRollbackFailed is returned when a failed transaction could not be rolled back.
	ErrRollbackFailed = errors.New("rolling back the transaction failed")

	// ErrCascadeFailed is returned when recomputing items of a changed holdings record failed.
	ErrCascadeFailed = errors.New("updating items of the holdings record failed")
)

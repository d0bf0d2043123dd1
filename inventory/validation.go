package inventory

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxNoteLength is the maximum number of characters of a single note.
const MaxNoteLength = 32000

const (
	fieldNotes               = "notes"
	fieldAdministrativeNotes = "administrativeNotes"
	fieldStatisticalCodeIDs  = "statisticalCodeIds"
	fieldHoldingsRecordID    = "holdingsRecordId"
	fieldHRID                = "hrid"
	msgNoteTooLong           = "A note has exceeded the 32,000 character limit."
	msgInvalidUUID           = "invalid UUID format"
	msgHoldingsDoesNotExist  = "Holdings record does not exist"
	msgHRIDChanged           = "The hrid field cannot be changed: new=%s, old=%s"
)

// FieldError describes one invalid field of an incoming document.
type FieldError struct {
	Field   string
	Value   string
	Message string
}

// ValidationError is a client error with one or more field-level errors.
// It matches ErrValidationFailed and, when set, the more specific Cause.
type ValidationError struct {
	Errors []FieldError
	Cause  error
}

// NewValidationError builds a ValidationError with a single field error.
func NewValidationError(field, value, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Value: value, Message: message}}}
}

// Error implements error.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}

	return ErrValidationFailed.Error() + ": " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrValidationFailed) true for every ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// Unwrap exposes the specific cause, if any.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// HoldingsRecordDoesNotExist is returned when an Item references a missing HoldingsRecord.
func HoldingsRecordDoesNotExist(holdingsRecordID string) *ValidationError {
	return NewValidationError(fieldHoldingsRecordID, holdingsRecordID, msgHoldingsDoesNotExist)
}

// RefuseLongNotes fails when any note or administrative note exceeds MaxNoteLength characters.
func RefuseLongNotes(notes []Note, administrativeNotes []string) error {
	for _, note := range administrativeNotes {
		if utf8.RuneCountInString(note) > MaxNoteLength {
			return NewValidationError(fieldAdministrativeNotes, note, msgNoteTooLong)
		}
	}

	for _, note := range notes {
		if utf8.RuneCountInString(note.Note) > MaxNoteLength {
			return NewValidationError(fieldNotes, note.Note, msgNoteTooLong)
		}
	}

	return nil
}

// ValidateUUIDs fails on the first statistical code id that is not a UUID.
func ValidateUUIDs(statisticalCodeIDs []string) error {
	for _, id := range statisticalCodeIDs {
		if _, err := uuid.Parse(id); err != nil {
			return NewValidationError(fieldStatisticalCodeIDs, id, msgInvalidUUID)
		}
	}

	return nil
}

// RefuseWhenHRIDChanged fails when an assigned HRID would be replaced.
func RefuseWhenHRIDChanged(oldHRID, newHRID string) error {
	if oldHRID == newHRID {
		return nil
	}

	return &ValidationError{
		Errors: []FieldError{{Field: fieldHRID, Value: newHRID, Message: fmt.Sprintf(msgHRIDChanged, newHRID, oldHRID)}},
		Cause:  ErrHRIDChanged,
	}
}

// ValidateInstance runs the document-level checks of an Instance.
func ValidateInstance(instance *Instance) error {
	if err := ValidateUUIDs(instance.StatisticalCodeIDs); err != nil {
		return err
	}

	return RefuseLongNotes(instance.Notes, instance.AdministrativeNotes)
}

// ValidateHoldingsRecord runs the document-level checks of a HoldingsRecord.
func ValidateHoldingsRecord(holdings *HoldingsRecord) error {
	if err := ValidateUUIDs(holdings.StatisticalCodeIDs); err != nil {
		return err
	}

	return RefuseLongNotes(holdings.Notes, holdings.AdministrativeNotes)
}

// ValidateItem runs the document-level checks of an Item.
func ValidateItem(item *Item) error {
	if err := ValidateUUIDs(item.StatisticalCodeIDs); err != nil {
		return err
	}

	return RefuseLongNotes(item.Notes, item.AdministrativeNotes)
}

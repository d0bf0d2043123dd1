package postgresengine

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/librarystack/inventory-storage-go/inventory"
)

const (
	sqlStateLockNotAvailable  = "55P03"
	sqlStateOptimisticLocking = "23F09"
	sqlStateInvalidTextRepr   = "22P02"
	msgHRIDAlreadyExists      = "HRID value already exists in table %s: %s"
	msgValueAlreadyExists     = "%s value already exists in table %s: %s"
	msgReferenceNotPresent    = "Cannot set %s.%s = %s because it does not exist in %s.id."
	msgStillReferenced        = "Cannot delete %s.%s = %s because id is still referenced from table %s."
	fieldHRID                 = "hrid"
	hridValueStart            = "=("
	hridValueEnd              = ")"
)

// driverError is the part of a PostgreSQL error the translation looks at, independent of the driver.
type driverError struct {
	code    string
	message string
	detail  string
	table   string
	cause   error
}

func (d driverError) text() string {
	if d.detail == "" {
		return d.message
	}

	return d.message + " " + d.detail
}

// errorClassifier rewrites a driver error into the validation taxonomy.
// A classifier applies when its SQLSTATE matches, if set, and its pattern matches, if set.
type errorClassifier struct {
	name     string
	sqlState string
	pattern  *regexp.Regexp
	classify func(d driverError, match []string) error
}

// errorClassifiers are evaluated in order, the first applying classifier wins.
var errorClassifiers = []errorClassifier{
	{
		name:    "hrid already exists",
		pattern: regexp.MustCompile(`Key \(lower\((?:[\w.]*f_unaccent\()?jsonb ->> 'hrid'::text\)\)?\)=\(`),
		classify: func(d driverError, _ []string) error {
			value := extractHRIDValue(d.text())
			return &inventory.ValidationError{
				Errors: []inventory.FieldError{{Field: fieldHRID, Value: value, Message: fmt.Sprintf(msgHRIDAlreadyExists, d.table, value)}},
				Cause:  errors.Join(inventory.ErrHRIDConflict, d.cause),
			}
		},
	},
	{
		name:     "identifier generation conflict",
		sqlState: sqlStateLockNotAvailable,
		classify: func(d driverError, _ []string) error {
			return errors.Join(inventory.ErrIDGenerationConflict, d.cause)
		},
	},
	{
		name:     "optimistic locking",
		sqlState: sqlStateOptimisticLocking,
		classify: func(d driverError, _ []string) error {
			return errors.Join(inventory.ErrOptimisticLockConflict, d.cause)
		},
	},
	{
		name:    "duplicate key",
		pattern: regexp.MustCompile(`Key \((.+?)\)=\((.*?)\) already exists`),
		classify: func(d driverError, m []string) error {
			field := jsonFieldName(m[1])
			return &inventory.ValidationError{
				Errors: []inventory.FieldError{{Field: field, Value: m[2], Message: fmt.Sprintf(msgValueAlreadyExists, field, d.table, m[2])}},
				Cause:  errors.Join(inventory.ErrDuplicateKey, d.cause),
			}
		},
	},
	{
		name:    "dangling reference",
		pattern: regexp.MustCompile(`Key \((.+?)\)=\((.*?)\) is not present in table "(.+?)"`),
		classify: func(d driverError, m []string) error {
			field := jsonFieldName(m[1])
			return &inventory.ValidationError{
				Errors: []inventory.FieldError{{Field: field, Value: m[2], Message: fmt.Sprintf(msgReferenceNotPresent, d.table, field, m[2], m[3])}},
				Cause:  errors.Join(inventory.ErrDanglingReference, d.cause),
			}
		},
	},
	{
		name:    "still referenced",
		pattern: regexp.MustCompile(`Key \((.+?)\)=\((.*?)\) is still referenced from table "(.+?)"`),
		classify: func(d driverError, m []string) error {
			field := jsonFieldName(m[1])
			return &inventory.ValidationError{
				Errors: []inventory.FieldError{{Field: field, Value: m[2], Message: fmt.Sprintf(msgStillReferenced, d.table, field, m[2], m[3])}},
				Cause:  errors.Join(inventory.ErrDanglingReference, d.cause),
			}
		},
	},
	{
		name:     "invalid input syntax",
		sqlState: sqlStateInvalidTextRepr,
		classify: func(d driverError, _ []string) error {
			return &inventory.ValidationError{
				Errors: []inventory.FieldError{{Message: d.message}},
				Cause:  d.cause,
			}
		},
	},
}

// translateDriverError rewrites known PostgreSQL errors into the inventory error taxonomy.
// Errors of other origin, and driver errors no classifier applies to, are returned unchanged.
func translateDriverError(err error) error {
	d, ok := asDriverError(err)
	if !ok {
		return err
	}

	for _, c := range errorClassifiers {
		if c.sqlState != "" && c.sqlState != d.code {
			continue
		}

		var match []string
		if c.pattern != nil {
			if match = c.pattern.FindStringSubmatch(d.text()); match == nil {
				continue
			}
		}

		return c.classify(d, match)
	}

	return err
}

func asDriverError(err error) (driverError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return driverError{code: pgErr.Code, message: pgErr.Message, detail: pgErr.Detail, table: pgErr.TableName, cause: err}, true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return driverError{code: string(pqErr.Code), message: pqErr.Message, detail: pqErr.Detail, table: pqErr.Table, cause: err}, true
	}

	return driverError{}, false
}

// extractHRIDValue returns the text between the first "=(" and the following ")".
func extractHRIDValue(text string) string {
	start := strings.Index(text, hridValueStart)
	if start < 0 {
		return ""
	}

	start += len(hridValueStart)
	end := strings.Index(text[start:], hridValueEnd)
	if end <= 0 {
		return ""
	}

	return text[start : start+end]
}

var jsonbFieldExpression = regexp.MustCompile(`jsonb ->> '(\w+)'`)

// jsonFieldName maps generated reference columns and index expressions back to the document field they are derived from.
func jsonFieldName(column string) string {
	if m := jsonbFieldExpression.FindStringSubmatch(column); m != nil {
		return m[1]
	}

	switch column {
	case colInstanceID:
		return "instanceId"
	case colHoldingsRecordID:
		return "holdingsRecordId"
	default:
		return column
	}
}

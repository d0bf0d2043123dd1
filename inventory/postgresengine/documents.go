package postgresengine

import (
	"context"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/librarystack/inventory-storage-go/inventory"
	"github.com/librarystack/inventory-storage-go/inventory/postgresengine/internal/adapters"
)

const (
	logActionSelect = "select"
	logActionInsert = "insert"
	logActionUpdate = "update"
	logActionDelete = "delete"
)

// document is implemented by pointers to the three entity documents.
type document[T any] interface {
	*T
	inventory.Record
}

func builder() goqu.DialectWrapper {
	return goqu.Dialect(dialectPostgres)
}

func toSQL(ds interface {
	ToSQL() (string, []any, error)
}) (string, error) {
	sqlQuery, _, err := ds.ToSQL()
	if err != nil {
		return "", errors.Join(inventory.ErrBuildingQueryFailed, err)
	}

	return sqlQuery, nil
}

// query runs a statement returning rows.
func (s *scope) query(ctx context.Context, sqlQuery, action string) (adapters.DBRows, error) {
	start := time.Now()
	rows, queryErr := s.q.Query(ctx, sqlQuery)
	s.engine.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if queryErr != nil {
		s.engine.logErrorContext(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, errors.Join(inventory.ErrQueryingFailed, translateDriverError(queryErr))
	}

	return rows, nil
}

// closeRows safely closes database rows and logs any errors.
func (s *scope) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		s.engine.logWarnContext(ctx, logMsgCloseRowsFailed, closeErr)
	}
}

// scanStrings runs a query and scans every row into a slice of nullable string columns.
func (s *scope) scanStrings(ctx context.Context, sqlQuery, action string, columns int) ([][]*string, error) {
	rows, err := s.query(ctx, sqlQuery, action)
	if err != nil {
		return nil, err
	}
	defer s.closeRows(ctx, rows)

	result := make([][]*string, 0)
	for rows.Next() {
		values := make([]*string, columns)
		dest := make([]any, columns)
		for i := range values {
			dest[i] = &values[i]
		}

		if scanErr := rows.Scan(dest...); scanErr != nil {
			return nil, errors.Join(inventory.ErrScanningDBRowFailed, scanErr)
		}

		result = append(result, values)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		s.engine.logErrorContext(ctx, logMsgDBQueryFailed, rowsErr, logAttrQuery, sqlQuery)
		return nil, errors.Join(inventory.ErrQueryingFailed, translateDriverError(rowsErr))
	}

	return result, nil
}

func decode[T any, P document[T]](content string) (P, error) {
	doc := P(new(T))
	if err := inventory.DecodeDocument([]byte(content), doc); err != nil {
		return nil, err
	}

	return doc, nil
}

// selectDocuments reads the documents of a table matching the condition, optionally locking them.
func selectDocuments[T any, P document[T]](
	ctx context.Context,
	s *scope,
	table string,
	where exp.Expression,
	forUpdate bool,
) ([]P, error) {
	ds := builder().From(s.table(table)).Select(goqu.L(selectJsonbText)).Where(where).Order(goqu.C(colID).Asc())
	if forUpdate {
		ds = ds.ForUpdate(exp.Wait)
	}

	sqlQuery, err := toSQL(ds)
	if err != nil {
		return nil, err
	}

	rows, err := s.scanStrings(ctx, sqlQuery, logActionSelect, 1)
	if err != nil {
		return nil, err
	}

	docs := make([]P, 0, len(rows))
	for _, row := range rows {
		doc, err := decode[T, P](*row[0])
		if err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

// selectDocument reads one document by id, nil when it does not exist.
func selectDocument[T any, P document[T]](ctx context.Context, s *scope, table, id string, forUpdate bool) (P, error) {
	docs, err := selectDocuments[T, P](ctx, s, table, goqu.C(colID).Eq(id), forUpdate)
	if err != nil || len(docs) == 0 {
		return nil, err
	}

	return docs[0], nil
}

// updateDocument replaces the stored content of an existing document.
func updateDocument[T any, P document[T]](ctx context.Context, s *scope, table string, doc P) error {
	content, err := inventory.EncodeDocument(doc)
	if err != nil {
		return err
	}

	sqlQuery, err := toSQL(builder().Update(s.table(table)).
		Set(goqu.Record{colJsonb: goqu.L(castJsonb, string(content))}).
		Where(goqu.C(colID).Eq(doc.RecordID())))
	if err != nil {
		return err
	}

	affected, err := s.execAffected(ctx, sqlQuery, logActionUpdate)
	if err != nil {
		return err
	}

	if affected == 0 {
		return inventory.ErrNotFound
	}

	return nil
}

// deleteDocuments removes the matching documents and returns their last stored content.
func deleteDocuments[T any, P document[T]](ctx context.Context, s *scope, table string, where exp.Expression) ([]P, error) {
	sqlQuery, err := toSQL(builder().Delete(s.table(table)).Where(where).Returning(goqu.L(selectJsonbText)))
	if err != nil {
		return nil, err
	}

	rows, err := s.scanStrings(ctx, sqlQuery, logActionDelete, 1)
	if err != nil {
		return nil, err
	}

	docs := make([]P, 0, len(rows))
	for _, row := range rows {
		doc, err := decode[T, P](*row[0])
		if err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

// deleteAllDocuments removes every row of a table without reading them.
func deleteAllDocuments(ctx context.Context, s *scope, table string) (int64, error) {
	sqlQuery, err := toSQL(builder().Delete(s.table(table)))
	if err != nil {
		return 0, err
	}

	return s.execAffected(ctx, sqlQuery, logActionDelete)
}

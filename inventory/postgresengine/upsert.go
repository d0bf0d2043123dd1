package postgresengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"

	"github.com/librarystack/inventory-storage-go/inventory"
)

const logActionUpsert = "upsert"

// upsertedRow is one row written by a batch statement. Old is nil when the row was inserted.
type upsertedRow struct {
	ID  string
	Old *string
	New string
}

// The upsert statement. Every CTE sees the snapshot taken before the statement, so old_data
// holds the prior state even though updated and inserted change the same rows.
//
// The version check is part of the UPDATE condition: a row whose stored version differs from the
// incoming one is not updated and missing from the result. Postgres re-evaluates the condition
// against the latest committed row after waiting for a concurrent writer, so lost updates are impossible.
const upsertStatement = `WITH upsert_data AS (%[1]s),
old_data AS (
  SELECT id, jsonb::text AS old_content FROM %[2]s WHERE id IN (SELECT id FROM upsert_data)
),
updated AS (
  UPDATE %[2]s AS t SET jsonb = CASE
    WHEN u.data->>'_version' = '-1' THEN %[3]s - '_version'
    ELSE jsonb_set(%[3]s, '{_version}', to_jsonb(COALESCE((t.jsonb->>'_version')::int, 0) + 1))
  END
  FROM upsert_data u
  WHERE t.id = u.id
    AND (u.data->>'_version' = '-1' OR (t.jsonb->'_version') IS NOT DISTINCT FROM (u.data->'_version'))
  RETURNING t.id, t.jsonb::text AS new_content
),
inserted AS (
  INSERT INTO %[2]s (id, jsonb)
  SELECT id, jsonb_set(data, '{_version}', '1') FROM upsert_data WHERE id NOT IN (SELECT id FROM old_data)
  RETURNING id, jsonb::text AS new_content
),
upserted AS (
  SELECT id, new_content FROM updated
  UNION ALL
  SELECT id, new_content FROM inserted
)
SELECT u.id::text, o.old_content, u.new_content
FROM upserted u
LEFT JOIN old_data o ON o.id = u.id`

// The stored created part of the metadata survives a replace.
const keepCreatedMetadata = `(u.data || jsonb_build_object('metadata', COALESCE(u.data->'metadata', '{}'::jsonb) ||
    jsonb_strip_nulls(jsonb_build_object(
      'createdDate', t.jsonb#>'{metadata,createdDate}',
      'createdByUserId', t.jsonb#>'{metadata,createdByUserId}'))))`

// upsertDocuments inserts or replaces a batch in one statement and returns the prior state of every row.
func upsertDocuments[T any, P document[T]](ctx context.Context, s *scope, table string, docs []P) ([]upsertedRow, error) {
	upsertData, err := upsertDataQuery(docs)
	if err != nil {
		return nil, err
	}

	sqlQuery := fmt.Sprintf(upsertStatement, upsertData, s.qualifiedName(table), keepCreatedMetadata)

	rows, err := s.scanStrings(ctx, sqlQuery, logActionUpsert, 3)
	if err != nil {
		return nil, err
	}

	if len(rows) != len(docs) {
		s.engine.logOperation(ctx, logMsgLockConflict,
			logAttrTenant, s.rc.Tenant, logAttrExpected, len(docs), logAttrWritten, len(rows))

		return nil, inventory.ErrOptimisticLockConflict
	}

	result := make([]upsertedRow, 0, len(rows))
	for _, row := range rows {
		result = append(result, upsertedRow{ID: *row[0], Old: row[1], New: *row[2]})
	}

	return result, nil
}

// insertDocuments inserts a batch of new records in one statement.
func insertDocuments[T any, P document[T]](ctx context.Context, s *scope, table string, docs []P) ([]upsertedRow, error) {
	values := make([]any, 0, len(docs))
	for _, doc := range docs {
		content, err := inventory.EncodeDocument(doc)
		if err != nil {
			return nil, err
		}

		values = append(values, goqu.Record{
			colID:    goqu.L(castUUID, doc.RecordID()),
			colJsonb: goqu.L(castJsonb, string(content)),
		})
	}

	sqlQuery, err := toSQL(builder().Insert(s.table(table)).
		Rows(values...).
		Returning(goqu.L("id::text"), goqu.L(selectJsonbText)))
	if err != nil {
		return nil, err
	}

	rows, err := s.scanStrings(ctx, sqlQuery, logActionInsert, 2)
	if err != nil {
		return nil, err
	}

	result := make([]upsertedRow, 0, len(rows))
	for _, row := range rows {
		result = append(result, upsertedRow{ID: *row[0], New: *row[1]})
	}

	return result, nil
}

// upsertDataQuery renders the incoming batch as a relation of (id, data) rows.
func upsertDataQuery[T any, P document[T]](docs []P) (string, error) {
	placeholders := make([]string, 0, len(docs))
	args := make([]any, 0, 2*len(docs))

	for _, doc := range docs {
		content, err := inventory.EncodeDocument(doc)
		if err != nil {
			return "", err
		}

		placeholders = append(placeholders, "(?::uuid, ?::jsonb)")
		args = append(args, doc.RecordID(), string(content))
	}

	return toSQL(builder().
		From(goqu.L("(VALUES "+strings.Join(placeholders, ", ")+") AS v(id, data)", args...)).
		Select(goqu.C(colID), goqu.L("data")))
}

package postgresengine

import (
	"context"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/librarystack/inventory-storage-go/inventory"
	"github.com/librarystack/inventory-storage-go/inventory/optimisticlock"
)

const (
	operationCreate      = "create_"
	operationGet         = "get_"
	operationUpdate      = "update_"
	operationDelete      = "delete_"
	operationDeleteAll   = "delete_all_"
	operationDeleteWhere = "delete_where_"
	operationBatch       = "batch_"

	msgDuplicateBatchID = "must be unique within the batch"
)

// BatchOptions control a batch write.
type BatchOptions struct {
	// Upsert replaces existing records. Without it every record must be new.
	Upsert bool

	// OptimisticLocking enforces the version check record by record.
	// Without it the batch suppresses the check, which the lock policy must permit.
	OptimisticLocking bool
}

// entityType binds the generic operations to one table and its entity specific steps.
type entityType[T any, P document[T]] struct {
	kind     inventory.EntityKind
	table    string
	hrid     hridKind
	validate func(P) error

	// prepare sets derived values inside the transaction. olds holds the stored state of updated records.
	prepare func(ctx context.Context, s *scope, docs []P, olds map[string]P) error

	// keepsHRID reports whether an update may replace the stored HRID.
	keepsHRID func(updated P) bool

	// afterUpdate runs after a single update, afterBatch after a batch statement.
	afterUpdate func(ctx context.Context, s *scope, old, updated P) error
	afterBatch  func(ctx context.Context, s *scope, rows []upsertedRow, written []P) error

	// beforeTransaction runs before the write transaction begins.
	beforeTransaction func(ctx context.Context, e *Engine, rc inventory.RequestContext, docs []P) error

	// snapshots turns records into the snapshots their events publish. Without it the records are published as stored.
	snapshots func(ctx context.Context, s *scope, docs []P) ([]any, error)
}

func (et entityType[T, P]) eventSnapshots(ctx context.Context, s *scope, docs ...P) ([]any, error) {
	if et.snapshots != nil {
		return et.snapshots(ctx, s, docs)
	}

	snapshots := make([]any, len(docs))
	for i, doc := range docs {
		snapshots[i] = doc
	}

	return snapshots, nil
}

// writeBatch is the path of every create: it validates and stamps the records, then inserts or upserts them in one transaction.
func writeBatch[T any, P document[T]](
	ctx context.Context,
	e *Engine,
	rc inventory.RequestContext,
	et entityType[T, P],
	operation string,
	docs []P,
	options BatchOptions,
) ([]P, error) {
	if len(docs) > e.maxBatchSize {
		return nil, inventory.ErrBatchTooLarge
	}

	if len(docs) == 0 {
		return []P{}, nil
	}

	if options.Upsert {
		if err := optimisticlock.ResolveBatch(e.guard, docs, options.OptimisticLocking); err != nil {
			return nil, err
		}
	}

	now := e.now().UTC()
	ids := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		if err := et.validate(doc); err != nil {
			return nil, err
		}

		if doc.RecordID() == "" {
			doc.SetRecordID(newID())
		}

		if _, duplicate := ids[doc.RecordID()]; duplicate {
			return nil, inventory.NewValidationError("id", doc.RecordID(), msgDuplicateBatchID)
		}
		ids[doc.RecordID()] = struct{}{}

		if !options.Upsert {
			doc.SetRecordVersion(e.guard.CheckInsert(doc.RecordVersion()))
		}

		inventory.StampMetadata(doc, rc, now)
	}

	if et.beforeTransaction != nil {
		if err := et.beforeTransaction(ctx, e, rc, docs); err != nil {
			return nil, err
		}
	}

	var written []P

	err := e.inTransaction(ctx, rc, operation+et.table, func(ctx context.Context, s *scope) error {
		if options.Upsert {
			if err := keepStoredHRIDs(ctx, s, et, docs); err != nil {
				return err
			}
		}

		if err := assignHRIDs(ctx, s, et.hrid, docs); err != nil {
			return err
		}

		if et.prepare != nil {
			if err := et.prepare(ctx, s, docs, nil); err != nil {
				return err
			}
		}

		var rows []upsertedRow
		var err error
		if options.Upsert {
			rows, err = upsertDocuments[T, P](ctx, s, et.table, docs)
		} else {
			rows, err = insertDocuments[T, P](ctx, s, et.table, docs)
		}
		if err != nil {
			return err
		}

		written, err = recordBatchEvents(ctx, s, et, rows)
		if err != nil {
			return err
		}

		if et.afterBatch != nil {
			if err := et.afterBatch(ctx, s, rows, written); err != nil {
				return err
			}
		}

		e.logOperation(ctx, logMsgRecordsWritten, logAttrTenant, s.rc.Tenant,
			logAttrEntity, string(et.kind), logAttrRecordCount, len(rows))
		e.recordValueMetricsContext(ctx, metricRecordsWritten, float64(len(rows)), operation+et.table, statusSuccess)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return written, nil
}

// recordBatchEvents decodes the written rows and records a CREATE or UPDATE event per row.
func recordBatchEvents[T any, P document[T]](
	ctx context.Context,
	s *scope,
	et entityType[T, P],
	rows []upsertedRow,
) ([]P, error) {
	written := make([]P, 0, len(rows))
	olds := make([]P, 0, len(rows))

	for _, row := range rows {
		updated, err := decode[T, P](row.New)
		if err != nil {
			return nil, err
		}

		written = append(written, updated)

		if row.Old == nil {
			olds = append(olds, nil)
			continue
		}

		old, err := decode[T, P](*row.Old)
		if err != nil {
			return nil, err
		}

		olds = append(olds, old)
	}

	newSnapshots, err := et.eventSnapshots(ctx, s, written...)
	if err != nil {
		return nil, err
	}

	oldSnapshots, err := et.eventSnapshots(ctx, s, olds...)
	if err != nil {
		return nil, err
	}

	for i, row := range rows {
		if olds[i] == nil {
			if err := s.record(inventory.BuildCreatedEvent(et.kind, s.rc.Tenant, row.ID, newSnapshots[i])); err != nil {
				return nil, err
			}

			continue
		}

		if err := s.record(inventory.BuildUpdatedEvent(et.kind, s.rc.Tenant, row.ID, oldSnapshots[i], newSnapshots[i])); err != nil {
			return nil, err
		}
	}

	return written, nil
}

// keepStoredHRIDs carries the stored HRID over to the records of a batch that replace existing ones,
// so only new records draw from the sequence. A replacement may not change an assigned HRID.
func keepStoredHRIDs[T any, P document[T]](ctx context.Context, s *scope, et entityType[T, P], docs []P) error {
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.RecordID())
	}

	sqlQuery, err := toSQL(builder().From(s.table(et.table)).
		Select(goqu.L("id::text"), goqu.L("jsonb->>'hrid'")).
		Where(goqu.C(colID).In(ids)))
	if err != nil {
		return err
	}

	rows, err := s.scanStrings(ctx, sqlQuery, logActionHRID, 2)
	if err != nil {
		return err
	}

	stored := make(map[string]string, len(rows))
	for _, row := range rows {
		hrid := ""
		if row[1] != nil {
			hrid = *row[1]
		}
		stored[*row[0]] = hrid
	}

	for _, doc := range docs {
		hrid, ok := stored[doc.RecordID()]
		if !ok {
			continue
		}

		if doc.RecordHRID() == "" {
			doc.SetRecordHRID(hrid)
			continue
		}

		if et.keepsHRID != nil && et.keepsHRID(doc) {
			continue
		}

		if err := inventory.RefuseWhenHRIDChanged(hrid, doc.RecordHRID()); err != nil {
			return err
		}
	}

	return nil
}

// createOne stores one new record.
func createOne[T any, P document[T]](
	ctx context.Context,
	e *Engine,
	rc inventory.RequestContext,
	et entityType[T, P],
	doc P,
) (P, error) {
	written, err := writeBatch(ctx, e, rc, et, operationCreate, []P{doc}, BatchOptions{})
	if err != nil {
		return nil, err
	}

	return written[0], nil
}

// getOne reads one record by id.
func getOne[T any, P document[T]](
	ctx context.Context,
	e *Engine,
	rc inventory.RequestContext,
	et entityType[T, P],
	id string,
) (P, error) {
	var found P

	err := e.read(ctx, rc, operationGet+et.table, func(ctx context.Context, s *scope) error {
		var err error
		if found, err = selectDocument[T, P](ctx, s, et.table, id, false); err != nil {
			return err
		}

		if found == nil {
			return inventory.ErrNotFound
		}

		return nil
	})

	return found, err
}

// updateOne replaces an existing record after the HRID and version checks.
// An update that changes nothing but the metadata is skipped and emits no event.
func updateOne[T any, P document[T]](
	ctx context.Context,
	e *Engine,
	rc inventory.RequestContext,
	et entityType[T, P],
	doc P,
) error {
	if err := et.validate(doc); err != nil {
		return err
	}

	return e.inTransaction(ctx, rc, operationUpdate+et.table, func(ctx context.Context, s *scope) error {
		old, err := selectDocument[T, P](ctx, s, et.table, doc.RecordID(), true)
		if err != nil {
			return err
		}

		if old == nil {
			return inventory.ErrNotFound
		}

		if doc.RecordHRID() == "" {
			doc.SetRecordHRID(old.RecordHRID())
		}

		if et.keepsHRID == nil || !et.keepsHRID(doc) {
			if err := inventory.RefuseWhenHRIDChanged(old.RecordHRID(), doc.RecordHRID()); err != nil {
				return err
			}
		}

		if et.prepare != nil {
			if err := et.prepare(ctx, s, []P{doc}, map[string]P{old.RecordID(): old}); err != nil {
				return err
			}
		}

		version, err := e.guard.Check(doc.RecordVersion(), old.RecordVersion())
		if err != nil {
			e.logOperation(ctx, logMsgLockConflict, logAttrTenant, s.rc.Tenant, logAttrRecordID, doc.RecordID())
			return err
		}

		unchanged, err := inventory.EqualsIgnoringMetadata(old, doc)
		if err != nil {
			return err
		}

		if unchanged {
			e.logOperation(ctx, logMsgUpdateSkipped, logAttrTenant, s.rc.Tenant, logAttrRecordID, doc.RecordID())
			return nil
		}

		doc.SetRecordVersion(version)
		doc.SetRecordMetadata(old.RecordMetadata())
		inventory.StampMetadata(doc, s.rc, s.now)

		if err := updateDocument[T, P](ctx, s, et.table, doc); err != nil {
			return err
		}

		snapshots, err := et.eventSnapshots(ctx, s, old, doc)
		if err != nil {
			return err
		}

		if err := s.record(inventory.BuildUpdatedEvent(et.kind, s.rc.Tenant, doc.RecordID(), snapshots[0], snapshots[1])); err != nil {
			return err
		}

		if et.afterUpdate != nil {
			return et.afterUpdate(ctx, s, old, doc)
		}

		return nil
	})
}

// deleteOne removes one record by id.
func deleteOne[T any, P document[T]](
	ctx context.Context,
	e *Engine,
	rc inventory.RequestContext,
	et entityType[T, P],
	id string,
) error {
	return e.inTransaction(ctx, rc, operationDelete+et.table, func(ctx context.Context, s *scope) error {
		deleted, err := deleteRecorded(ctx, s, et, goqu.C(colID).Eq(id))
		if err != nil {
			return err
		}

		if deleted == 0 {
			return inventory.ErrNotFound
		}

		return nil
	})
}

// deleteAll removes every record of the table and emits a single ALL_REMOVED event regardless of the row count.
func deleteAll[T any, P document[T]](
	ctx context.Context,
	e *Engine,
	rc inventory.RequestContext,
	et entityType[T, P],
) error {
	return e.inTransaction(ctx, rc, operationDeleteAll+et.table, func(ctx context.Context, s *scope) error {
		if _, err := deleteAllDocuments(ctx, s, et.table); err != nil {
			return err
		}

		s.events = append(s.events, inventory.BuildAllRemovedEvent(et.kind, s.rc.Tenant))

		return nil
	})
}

// deleteWhere removes the records matching a pre-translated SQL condition and emits a DELETE event for each.
// A condition matching everything is a delete-all.
func deleteWhere[T any, P document[T]](
	ctx context.Context,
	e *Engine,
	rc inventory.RequestContext,
	et entityType[T, P],
	predicate string,
) (int, error) {
	if matchesAll(predicate) {
		return 0, deleteAll(ctx, e, rc, et)
	}

	var deleted int

	err := e.inTransaction(ctx, rc, operationDeleteWhere+et.table, func(ctx context.Context, s *scope) error {
		var err error
		deleted, err = deleteRecorded(ctx, s, et, goqu.L(predicate))

		return err
	})

	return deleted, err
}

func deleteRecorded[T any, P document[T]](
	ctx context.Context,
	s *scope,
	et entityType[T, P],
	where exp.Expression,
) (int, error) {
	deleted, err := deleteDocuments[T, P](ctx, s, et.table, where)
	if err != nil {
		return 0, err
	}

	snapshots, err := et.eventSnapshots(ctx, s, deleted...)
	if err != nil {
		return 0, err
	}

	for i, doc := range deleted {
		if err := s.record(inventory.BuildDeletedEvent(et.kind, s.rc.Tenant, doc.RecordID(), snapshots[i])); err != nil {
			return 0, err
		}
	}

	return len(deleted), nil
}

func matchesAll(predicate string) bool {
	trimmed := strings.TrimSpace(predicate)
	return trimmed == "" || strings.EqualFold(trimmed, "true")
}

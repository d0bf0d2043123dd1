package postgresengine

import (
	"context"
	"errors"

	"github.com/doug-martin/goqu/v9"

	"github.com/librarystack/inventory-storage-go/inventory"
	"github.com/librarystack/inventory-storage-go/inventory/effectivevalues"
)

const logActionShare = "share instances"

var holdingsType = entityType[inventory.HoldingsRecord, *inventory.HoldingsRecord]{
	kind:     inventory.EntityHoldingsRecord,
	table:    tableHoldings,
	hrid:     hridHoldings,
	validate: inventory.ValidateHoldingsRecord,
	prepare: func(_ context.Context, _ *scope, docs []*inventory.HoldingsRecord, _ map[string]*inventory.HoldingsRecord) error {
		for _, holdings := range docs {
			effectivevalues.PopulateHoldings(holdings)
		}

		return nil
	},
	afterUpdate: func(ctx context.Context, s *scope, old, updated *inventory.HoldingsRecord) error {
		items, err := itemsOfHoldings(ctx, s, updated.ID)
		if err != nil {
			return errors.Join(inventory.ErrCascadeFailed, err)
		}

		return cascadeHoldingsChange(ctx, s, old, updated, items)
	},
	afterBatch:        cascadeUpsertedHoldings,
	beforeTransaction: shareMissingInstances,
}

// CreateHoldingsRecord stores a new HoldingsRecord and returns it as stored.
func (e *Engine) CreateHoldingsRecord(
	ctx context.Context,
	rc inventory.RequestContext,
	holdings *inventory.HoldingsRecord,
) (*inventory.HoldingsRecord, error) {
	return createOne(ctx, e, rc, holdingsType, holdings)
}

// GetHoldingsRecord reads a HoldingsRecord by id.
func (e *Engine) GetHoldingsRecord(ctx context.Context, rc inventory.RequestContext, id string) (*inventory.HoldingsRecord, error) {
	return getOne(ctx, e, rc, holdingsType, id)
}

// UpdateHoldingsRecord replaces an existing HoldingsRecord and recomputes its Items in the same transaction.
func (e *Engine) UpdateHoldingsRecord(ctx context.Context, rc inventory.RequestContext, holdings *inventory.HoldingsRecord) error {
	return updateOne(ctx, e, rc, holdingsType, holdings)
}

// DeleteHoldingsRecord removes a HoldingsRecord.
func (e *Engine) DeleteHoldingsRecord(ctx context.Context, rc inventory.RequestContext, id string) error {
	return deleteOne(ctx, e, rc, holdingsType, id)
}

// DeleteAllHoldingsRecords removes every HoldingsRecord of the tenant.
func (e *Engine) DeleteAllHoldingsRecords(ctx context.Context, rc inventory.RequestContext) error {
	return deleteAll(ctx, e, rc, holdingsType)
}

// DeleteHoldingsRecordsWhere removes the HoldingsRecords matching a pre-translated SQL condition.
func (e *Engine) DeleteHoldingsRecordsWhere(ctx context.Context, rc inventory.RequestContext, predicate string) (int, error) {
	return deleteWhere(ctx, e, rc, holdingsType, predicate)
}

// UpsertHoldingsRecords writes a batch of HoldingsRecords in one transaction.
// Items of replaced HoldingsRecords that changed are recomputed before the commit.
func (e *Engine) UpsertHoldingsRecords(
	ctx context.Context,
	rc inventory.RequestContext,
	holdings []*inventory.HoldingsRecord,
	options BatchOptions,
) ([]*inventory.HoldingsRecord, error) {
	return writeBatch(ctx, e, rc, holdingsType, operationBatch, holdings, options)
}

// shareMissingInstances asks the consortium to share the Instances the HoldingsRecords reference
// but the tenant does not have. It stops at the first answer saying the tenant is no consortium member.
func shareMissingInstances(
	ctx context.Context,
	e *Engine,
	rc inventory.RequestContext,
	docs []*inventory.HoldingsRecord,
) error {
	if e.sharer == nil {
		return nil
	}

	referenced := make([]string, 0, len(docs))
	for _, holdings := range docs {
		if holdings.InstanceID != "" {
			referenced = append(referenced, holdings.InstanceID)
		}
	}

	referenced = unique(referenced)
	if len(referenced) == 0 {
		return nil
	}

	var missing []string
	var resolved inventory.RequestContext

	err := e.read(ctx, rc, "find_missing_instances", func(ctx context.Context, s *scope) error {
		resolved = s.rc

		sqlQuery, err := toSQL(builder().From(s.table(tableInstance)).
			Select(goqu.L("id::text")).
			Where(goqu.C(colID).In(referenced)))
		if err != nil {
			return err
		}

		rows, err := s.scanStrings(ctx, sqlQuery, logActionShare, 1)
		if err != nil {
			return err
		}

		found := make([]string, 0, len(rows))
		for _, row := range rows {
			found = append(found, *row[0])
		}

		missing = difference(referenced, found)

		return nil
	})
	if err != nil {
		return err
	}

	for _, instanceID := range missing {
		shared, err := e.sharer.ShareInstance(ctx, resolved, instanceID)
		if err != nil {
			e.logErrorContext(ctx, logMsgShareInstanceFailed, err, logAttrTenant, resolved.Tenant, logAttrRecordID, instanceID)
			return err
		}

		if !shared {
			return nil
		}
	}

	return nil
}

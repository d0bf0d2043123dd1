package postgresengine

import (
	"context"
	"errors"

	"github.com/doug-martin/goqu/v9"

	"github.com/librarystack/inventory-storage-go/inventory"
)

// HoldingsByIDs reads HoldingsRecords in the scope's transaction, so Items see HoldingsRecords written earlier in it.
func (s *scope) HoldingsByIDs(ctx context.Context, ids []string) (map[string]*inventory.HoldingsRecord, error) {
	found, err := selectDocuments[inventory.HoldingsRecord](ctx, s, tableHoldings, goqu.C(colID).In(ids), false)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*inventory.HoldingsRecord, len(found))
	for _, holdings := range found {
		byID[holdings.ID] = holdings
	}

	return byID, nil
}

// itemsOfHoldings reads and locks the Items of a HoldingsRecord.
func itemsOfHoldings(ctx context.Context, s *scope, holdingsID string) ([]*inventory.Item, error) {
	return selectDocuments[inventory.Item](ctx, s, tableItem, goqu.C(colHoldingsRecordID).Eq(holdingsID), true)
}

// cascadeHoldingsChange brings the Items of a HoldingsRecord in line with its new state.
// Nothing happens when the HoldingsRecord is unchanged apart from its metadata. Otherwise every
// given Item is recomputed against the new HoldingsRecord, written and recorded as an UPDATE event.
// The Items must be locked by the caller's transaction, see itemsOfHoldings.
func cascadeHoldingsChange(
	ctx context.Context,
	s *scope,
	old, updated *inventory.HoldingsRecord,
	items []*inventory.Item,
) error {
	unchanged, err := inventory.EqualsIgnoringMetadata(old, updated)
	if err != nil {
		return errors.Join(inventory.ErrCascadeFailed, err)
	}

	if unchanged || len(items) == 0 {
		return nil
	}

	for _, before := range items {
		after := before.Clone()
		s.engine.calculator.Populate(after, updated)

		after.Version = s.engine.guard.Next(before.Version)
		inventory.StampMetadata(after, s.rc, s.now)

		if err := updateDocument(ctx, s, tableItem, after); err != nil {
			return errors.Join(inventory.ErrCascadeFailed, err)
		}

		event, err := inventory.BuildUpdatedEvent(inventory.EntityItem, s.rc.Tenant, after.ID,
			inventory.NewItemSnapshot(before, old.InstanceID), inventory.NewItemSnapshot(after, updated.InstanceID))
		if err := s.record(event, err); err != nil {
			return errors.Join(inventory.ErrCascadeFailed, err)
		}
	}

	s.engine.logOperation(ctx, logMsgItemsCascaded,
		logAttrTenant, s.rc.Tenant, logAttrRecordID, updated.ID, logAttrRecordCount, len(items))
	s.engine.recordValueMetricsContext(ctx, metricItemsCascaded, float64(len(items)), tableHoldings, statusSuccess)

	return nil
}

// cascadeUpsertedHoldings runs the cascade for every HoldingsRecord of a batch that existed before it.
// The Items are read and locked after the statement, inside the batch transaction.
func cascadeUpsertedHoldings(ctx context.Context, s *scope, rows []upsertedRow, written []*inventory.HoldingsRecord) error {
	byID := make(map[string]*inventory.HoldingsRecord, len(written))
	for _, holdings := range written {
		byID[holdings.ID] = holdings
	}

	for _, row := range rows {
		if row.Old == nil {
			continue
		}

		old, err := decode[inventory.HoldingsRecord](*row.Old)
		if err != nil {
			return errors.Join(inventory.ErrCascadeFailed, err)
		}

		items, err := itemsOfHoldings(ctx, s, row.ID)
		if err != nil {
			return errors.Join(inventory.ErrCascadeFailed, err)
		}

		if err := cascadeHoldingsChange(ctx, s, old, byID[row.ID], items); err != nil {
			return err
		}
	}

	return nil
}

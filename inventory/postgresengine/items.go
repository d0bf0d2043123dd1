package postgresengine

import (
	"context"

	"github.com/librarystack/inventory-storage-go/inventory"
)

// statusDateLayout renders Item status dates in UTC with millisecond precision.
const statusDateLayout = "2006-01-02T15:04:05.000Z07:00"

var itemType = entityType[inventory.Item, *inventory.Item]{
	kind:      inventory.EntityItem,
	table:     tableItem,
	hrid:      hridItems,
	validate:  inventory.ValidateItem,
	prepare:   prepareItems,
	snapshots: itemSnapshots,
}

// CreateItem stores a new Item with its effective values and returns it as stored.
func (e *Engine) CreateItem(ctx context.Context, rc inventory.RequestContext, item *inventory.Item) (*inventory.Item, error) {
	return createOne(ctx, e, rc, itemType, item)
}

// GetItem reads an Item by id.
func (e *Engine) GetItem(ctx context.Context, rc inventory.RequestContext, id string) (*inventory.Item, error) {
	return getOne(ctx, e, rc, itemType, id)
}

// UpdateItem replaces an existing Item and recomputes its effective values.
func (e *Engine) UpdateItem(ctx context.Context, rc inventory.RequestContext, item *inventory.Item) error {
	return updateOne(ctx, e, rc, itemType, item)
}

// DeleteItem removes an Item.
func (e *Engine) DeleteItem(ctx context.Context, rc inventory.RequestContext, id string) error {
	return deleteOne(ctx, e, rc, itemType, id)
}

// DeleteAllItems removes every Item of the tenant.
func (e *Engine) DeleteAllItems(ctx context.Context, rc inventory.RequestContext) error {
	return deleteAll(ctx, e, rc, itemType)
}

// DeleteItemsWhere removes the Items matching a pre-translated SQL condition.
func (e *Engine) DeleteItemsWhere(ctx context.Context, rc inventory.RequestContext, predicate string) (int, error) {
	return deleteWhere(ctx, e, rc, itemType, predicate)
}

// UpsertItems writes a batch of Items in one transaction.
func (e *Engine) UpsertItems(
	ctx context.Context,
	rc inventory.RequestContext,
	items []*inventory.Item,
	options BatchOptions,
) ([]*inventory.Item, error) {
	return writeBatch(ctx, e, rc, itemType, operationBatch, items, options)
}

// prepareItems stamps the status dates and computes the effective values of the Items.
// The HoldingsRecords are read through the scope, so those written earlier in the transaction are visible.
func prepareItems(ctx context.Context, s *scope, items []*inventory.Item, olds map[string]*inventory.Item) error {
	for _, item := range items {
		stampStatusDate(item, olds[item.ID], s.now.Format(statusDateLayout))
	}

	return s.engine.calculator.PopulateItems(ctx, s, items)
}

// stampStatusDate sets the status date when the status is new or changed, and keeps it otherwise.
func stampStatusDate(item, old *inventory.Item, now string) {
	switch {
	case old == nil:
		if item.Status.Date == "" {
			item.Status.Date = now
		}
	case old.Status.Name != item.Status.Name:
		item.Status.Date = now
	default:
		item.Status.Date = old.Status.Date
	}
}

// itemSnapshots pairs every Item with the Instance id of its HoldingsRecord. Nil Items stay nil.
func itemSnapshots(ctx context.Context, s *scope, items []*inventory.Item) ([]any, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item != nil {
			ids = append(ids, item.HoldingsRecordID)
		}
	}

	var holdings map[string]*inventory.HoldingsRecord
	if len(ids) > 0 {
		var err error
		if holdings, err = s.HoldingsByIDs(ctx, ids); err != nil {
			return nil, err
		}
	}

	snapshots := make([]any, len(items))
	for i, item := range items {
		if item == nil {
			continue
		}

		instanceID := ""
		if owner, ok := holdings[item.HoldingsRecordID]; ok {
			instanceID = owner.InstanceID
		}

		snapshots[i] = inventory.NewItemSnapshot(item, instanceID)
	}

	return snapshots, nil
}

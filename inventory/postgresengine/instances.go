package postgresengine

import (
	"context"

	"github.com/librarystack/inventory-storage-go/inventory"
)

var instanceType = entityType[inventory.Instance, *inventory.Instance]{
	kind:      inventory.EntityInstance,
	table:     tableInstance,
	hrid:      hridInstances,
	validate:  inventory.ValidateInstance,
	keepsHRID: (*inventory.Instance).IsShadowCopy,
	afterUpdate: func(ctx context.Context, s *scope, old, updated *inventory.Instance) error {
		return writeSubjectLinks(ctx, s, updated.ID, old.Subjects, updated.Subjects)
	},
	afterBatch: writeBatchSubjectLinks,
}

// CreateInstance stores a new Instance and returns it as stored.
func (e *Engine) CreateInstance(
	ctx context.Context,
	rc inventory.RequestContext,
	instance *inventory.Instance,
) (*inventory.Instance, error) {
	return createOne(ctx, e, rc, instanceType, instance)
}

// GetInstance reads an Instance by id.
func (e *Engine) GetInstance(ctx context.Context, rc inventory.RequestContext, id string) (*inventory.Instance, error) {
	return getOne(ctx, e, rc, instanceType, id)
}

// UpdateInstance replaces an existing Instance.
// Shadow copies controlled by the consortium central tenant may change their HRID.
func (e *Engine) UpdateInstance(ctx context.Context, rc inventory.RequestContext, instance *inventory.Instance) error {
	return updateOne(ctx, e, rc, instanceType, instance)
}

// DeleteInstance removes an Instance together with its source record and relationships.
func (e *Engine) DeleteInstance(ctx context.Context, rc inventory.RequestContext, id string) error {
	return deleteOne(ctx, e, rc, instanceType, id)
}

// DeleteAllInstances removes every Instance of the tenant.
func (e *Engine) DeleteAllInstances(ctx context.Context, rc inventory.RequestContext) error {
	return deleteAll(ctx, e, rc, instanceType)
}

// DeleteInstancesWhere removes the Instances matching a pre-translated SQL condition.
func (e *Engine) DeleteInstancesWhere(ctx context.Context, rc inventory.RequestContext, predicate string) (int, error) {
	return deleteWhere(ctx, e, rc, instanceType, predicate)
}

// UpsertInstances writes a batch of Instances in one transaction.
func (e *Engine) UpsertInstances(
	ctx context.Context,
	rc inventory.RequestContext,
	instances []*inventory.Instance,
	options BatchOptions,
) ([]*inventory.Instance, error) {
	return writeBatch(ctx, e, rc, instanceType, operationBatch, instances, options)
}

func writeBatchSubjectLinks(ctx context.Context, s *scope, rows []upsertedRow, written []*inventory.Instance) error {
	for i, row := range rows {
		var oldSubjects []inventory.Subject
		if row.Old != nil {
			old, err := decode[inventory.Instance](*row.Old)
			if err != nil {
				return err
			}
			oldSubjects = old.Subjects
		}

		if err := writeSubjectLinks(ctx, s, row.ID, oldSubjects, written[i].Subjects); err != nil {
			return err
		}
	}

	return nil
}

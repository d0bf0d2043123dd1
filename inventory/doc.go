// Package inventory provides the core types of the holdings hierarchy engine.
//
// The hierarchy has three levels:
//   - Instance: the bibliographic record
//   - HoldingsRecord: a grouping of an Instance at a location
//   - Item: an individually circulating piece of a HoldingsRecord
//
// This package defines the entity documents, the domain event contract,
// the error taxonomy with its mapping onto request outcomes, and the
// dependency-free observability interfaces shared by all engine packages.
//
// Storage lives in package postgresengine, derived values in package
// effectivevalues, event emission in package domainevent.
//
// Typical usage:
//
//	engine, _ := postgresengine.NewEngineFromPGXPool(pool,
//		postgresengine.WithTenant("diku"),
//		postgresengine.WithEventPublisher(publisher),
//	)
//
//	created, err := engine.CreateItem(ctx, rc, item)
//	if errors.Is(err, inventory.ErrValidationFailed) {
//		// render field errors
//	}
package inventory

// Package postgresengine provides the PostgreSQL storage engine of the holdings hierarchy.
//
// Every tenant owns a schema named "<tenant>_mod_inventory_storage" with one jsonb table per
// entity type. The engine supports multiple database adapters (pgx, sql.DB, sqlx) and runs every
// mutation in one transaction, publishing its DomainEvents only after the commit.
//
// Key features:
//   - Optimistic locking on the _version field, with time-boxed suppression
//   - Set-based batch upserts that return the prior state of every row in the same statement
//   - Item effective values recomputed whenever their HoldingsRecord changes
//   - HRID assignment from per-tenant sequences
//   - Subject source and type join tables
//   - Lease-guarded refresh of materialized views
//
// Usage examples:
//
//	db, _ := pgxpool.New(context.Background(), dsn)
//	engine, _ := postgresengine.NewEngineFromPGXPool(
//		db,
//		postgresengine.WithTenant("diku"),
//		postgresengine.WithEventPublisher(publisher),
//		postgresengine.WithContextualLogger(logger),
//	)
//
//	_ = engine.Migrate(ctx, "diku")
//	holdings, _ := engine.CreateHoldingsRecord(ctx, rc, holdings)
//	written, err := engine.UpsertItems(ctx, rc, items, postgresengine.BatchOptions{Upsert: true, OptimisticLocking: true})
package postgresengine
